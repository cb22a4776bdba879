package internal

import (
	"context"
	"fmt"
	"sync"
	"time"

	"storefront/entity"
	"storefront/services"
)

const maxItemQuantity = 99

// CartStore applies cart mutations and persists the result through a repository.
type CartStore struct {
	repository services.CartRepository
	guard      sync.Mutex
	locks      map[string]*cartLock
}

// cartLock is dropped from the map once no caller holds or waits on it
type cartLock struct {
	mutex sync.Mutex
	refs  int
}

func NewCartStore(repository services.CartRepository) *CartStore {
	return &CartStore{
		repository: repository,
		locks:      make(map[string]*cartLock),
	}
}

// lockCart serializes mutations of one cart
func (s *CartStore) lockCart(token string) *cartLock {
	s.guard.Lock()
	lock, ok := s.locks[token]
	if !ok {
		lock = &cartLock{}
		s.locks[token] = lock
	}
	lock.refs++
	s.guard.Unlock()

	lock.mutex.Lock()
	return lock
}

func (s *CartStore) unlockCart(token string, lock *cartLock) {
	lock.mutex.Unlock()

	s.guard.Lock()
	defer s.guard.Unlock()
	lock.refs--
	if lock.refs == 0 {
		delete(s.locks, token)
	}
}

// Get returns the cart for token; an unknown token yields an empty cart.
func (s *CartStore) Get(ctx context.Context, token string) (*entity.Cart, error) {
	if token == "" {
		return nil, fmt.Errorf("%w: empty cart token", ErrBadRequest)
	}
	cart, err := s.repository.GetCart(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("get cart: %w", err)
	}
	if cart == nil {
		cart = &entity.Cart{Token: token}
	}
	if cart.Items == nil {
		cart.Items = []entity.CartItem{}
	}
	return cart, nil
}

// Add puts an item in the cart or increases the quantity of the same product.
func (s *CartStore) Add(ctx context.Context, token string, item entity.CartItem) (*entity.Cart, error) {
	if item.ProductId <= 0 {
		return nil, fmt.Errorf("%w: invalid product id %d", ErrBadRequest, item.ProductId)
	}
	if item.Quantity <= 0 {
		item.Quantity = 1
	}
	if item.Price.IsNegative() {
		return nil, fmt.Errorf("%w: negative price", ErrBadRequest)
	}
	return s.mutate(ctx, token, func(cart *entity.Cart) {
		for i := range cart.Items {
			if cart.Items[i].ProductId == item.ProductId {
				cart.Items[i].Quantity = min(cart.Items[i].Quantity+item.Quantity, maxItemQuantity)
				return
			}
		}
		item.Quantity = min(item.Quantity, maxItemQuantity)
		cart.Items = append(cart.Items, item)
	})
}

// UpdateQuantity sets the quantity of a product; zero or less removes it.
func (s *CartStore) UpdateQuantity(ctx context.Context, token string, productId, quantity int) (*entity.Cart, error) {
	if quantity <= 0 {
		return s.Remove(ctx, token, productId)
	}
	found := false
	cart, err := s.mutate(ctx, token, func(cart *entity.Cart) {
		for i := range cart.Items {
			if cart.Items[i].ProductId == productId {
				cart.Items[i].Quantity = min(quantity, maxItemQuantity)
				found = true
				return
			}
		}
	})
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("%w: product %d not in cart", ErrNotFound, productId)
	}
	return cart, nil
}

func (s *CartStore) Remove(ctx context.Context, token string, productId int) (*entity.Cart, error) {
	return s.mutate(ctx, token, func(cart *entity.Cart) {
		items := cart.Items[:0]
		for _, item := range cart.Items {
			if item.ProductId != productId {
				items = append(items, item)
			}
		}
		cart.Items = items
	})
}

func (s *CartStore) Clear(ctx context.Context, token string) error {
	if token == "" {
		return fmt.Errorf("%w: empty cart token", ErrBadRequest)
	}
	lock := s.lockCart(token)
	defer s.unlockCart(token, lock)
	if err := s.repository.DeleteCart(ctx, token); err != nil {
		return fmt.Errorf("delete cart: %w", err)
	}
	return nil
}

func (s *CartStore) mutate(ctx context.Context, token string, change func(cart *entity.Cart)) (*entity.Cart, error) {
	if token == "" {
		return nil, fmt.Errorf("%w: empty cart token", ErrBadRequest)
	}
	lock := s.lockCart(token)
	defer s.unlockCart(token, lock)

	cart, err := s.Get(ctx, token)
	if err != nil {
		return nil, err
	}
	change(cart)
	cart.Updated = time.Now()
	if err = s.repository.SaveCart(ctx, cart); err != nil {
		return nil, fmt.Errorf("save cart: %w", err)
	}
	return cart, nil
}

// MemoryCarts keeps carts in process memory when no database is configured.
type MemoryCarts struct {
	mutex sync.RWMutex
	carts map[string]entity.Cart
}

func NewMemoryCarts() *MemoryCarts {
	return &MemoryCarts{
		carts: make(map[string]entity.Cart),
	}
}

func (m *MemoryCarts) GetCart(_ context.Context, token string) (*entity.Cart, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	cart, ok := m.carts[token]
	if !ok {
		return nil, nil
	}
	cart.Items = append([]entity.CartItem(nil), cart.Items...)
	return &cart, nil
}

func (m *MemoryCarts) SaveCart(_ context.Context, cart *entity.Cart) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	stored := *cart
	stored.Items = append([]entity.CartItem(nil), cart.Items...)
	m.carts[cart.Token] = stored
	return nil
}

func (m *MemoryCarts) DeleteCart(_ context.Context, token string) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	delete(m.carts, token)
	return nil
}
