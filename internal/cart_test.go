package internal

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront/entity"
)

func serum(quantity int) entity.CartItem {
	return entity.CartItem{ProductId: 11, Name: "Botaani Serum", Price: decimal.RequireFromString("249.99"), Quantity: quantity}
}

func bodyOil(quantity int) entity.CartItem {
	return entity.CartItem{ProductId: 12, Name: "Botaani Body", Price: decimal.RequireFromString("180"), Quantity: quantity}
}

func TestCartGetUnknownToken(t *testing.T) {
	store := NewCartStore(NewMemoryCarts())

	cart, err := store.Get(context.Background(), "abc")
	require.NoError(t, err)

	assert.Equal(t, "abc", cart.Token)
	assert.NotNil(t, cart.Items)
	assert.Empty(t, cart.Items)
	assert.True(t, cart.Subtotal().IsZero())
}

func TestCartAddMergesSameProduct(t *testing.T) {
	ctx := context.Background()
	store := NewCartStore(NewMemoryCarts())

	_, err := store.Add(ctx, "abc", serum(1))
	require.NoError(t, err)
	_, err = store.Add(ctx, "abc", bodyOil(0))
	require.NoError(t, err)
	cart, err := store.Add(ctx, "abc", serum(2))
	require.NoError(t, err)

	require.Len(t, cart.Items, 2)
	assert.Equal(t, 3, cart.Items[0].Quantity)
	assert.Equal(t, 1, cart.Items[1].Quantity)
	assert.Equal(t, 4, cart.Count())
	assert.Equal(t, "929.97", cart.Subtotal().StringFixed(2))
	assert.Equal(t, []entity.LineItemRequest{{ProductId: 11, Quantity: 3}, {ProductId: 12, Quantity: 1}}, cart.LineItems())
}

func TestCartQuantityIsCapped(t *testing.T) {
	ctx := context.Background()
	store := NewCartStore(NewMemoryCarts())

	cart, err := store.Add(ctx, "abc", serum(150))
	require.NoError(t, err)
	assert.Equal(t, 99, cart.Items[0].Quantity)

	cart, err = store.Add(ctx, "abc", serum(5))
	require.NoError(t, err)
	assert.Equal(t, 99, cart.Items[0].Quantity)
}

func TestCartUpdateQuantity(t *testing.T) {
	ctx := context.Background()
	store := NewCartStore(NewMemoryCarts())
	_, err := store.Add(ctx, "abc", serum(1))
	require.NoError(t, err)

	cart, err := store.UpdateQuantity(ctx, "abc", 11, 4)
	require.NoError(t, err)
	assert.Equal(t, 4, cart.Items[0].Quantity)

	_, err = store.UpdateQuantity(ctx, "abc", 99, 1)
	assert.True(t, errors.Is(err, ErrNotFound), "got %v", err)

	cart, err = store.UpdateQuantity(ctx, "abc", 11, 0)
	require.NoError(t, err)
	assert.Empty(t, cart.Items)
}

func TestCartRemoveAndClear(t *testing.T) {
	ctx := context.Background()
	store := NewCartStore(NewMemoryCarts())
	_, _ = store.Add(ctx, "abc", serum(1))
	_, _ = store.Add(ctx, "abc", bodyOil(1))

	cart, err := store.Remove(ctx, "abc", 11)
	require.NoError(t, err)
	require.Len(t, cart.Items, 1)
	assert.Equal(t, 12, cart.Items[0].ProductId)

	require.NoError(t, store.Clear(ctx, "abc"))
	cart, err = store.Get(ctx, "abc")
	require.NoError(t, err)
	assert.Empty(t, cart.Items)
}

func TestCartRejectsInvalidInput(t *testing.T) {
	ctx := context.Background()
	store := NewCartStore(NewMemoryCarts())

	_, err := store.Add(ctx, "", serum(1))
	assert.True(t, errors.Is(err, ErrBadRequest))

	_, err = store.Add(ctx, "abc", entity.CartItem{ProductId: 0, Quantity: 1})
	assert.True(t, errors.Is(err, ErrBadRequest))

	negative := serum(1)
	negative.Price = decimal.NewFromInt(-1)
	_, err = store.Add(ctx, "abc", negative)
	assert.True(t, errors.Is(err, ErrBadRequest))

	assert.True(t, errors.Is(store.Clear(ctx, ""), ErrBadRequest))
}

func TestCartsAreIsolated(t *testing.T) {
	ctx := context.Background()
	store := NewCartStore(NewMemoryCarts())
	_, _ = store.Add(ctx, "first", serum(1))

	cart, err := store.Get(ctx, "second")
	require.NoError(t, err)
	assert.Empty(t, cart.Items)
}

func TestCartConcurrentAdds(t *testing.T) {
	ctx := context.Background()
	store := NewCartStore(NewMemoryCarts())

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = store.Add(ctx, "abc", serum(1))
		}()
	}
	wg.Wait()

	cart, err := store.Get(ctx, "abc")
	require.NoError(t, err)
	assert.Equal(t, 20, cart.Count())
}

func TestCartLocksAreReleased(t *testing.T) {
	ctx := context.Background()
	store := NewCartStore(NewMemoryCarts())

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		token := fmt.Sprintf("cart-%d", i%5)
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = store.Add(ctx, token, serum(1))
			_, _ = store.UpdateQuantity(ctx, token, 11, 3)
		}()
	}
	wg.Wait()
	assert.Empty(t, store.locks)

	for i := 0; i < 5; i++ {
		token := fmt.Sprintf("cart-%d", i)
		cart, err := store.Get(ctx, token)
		require.NoError(t, err)
		assert.Equal(t, 3, cart.Count())
		require.NoError(t, store.Clear(ctx, token))
	}
	_, err := store.Remove(ctx, "cart-0", 11)
	require.NoError(t, err)
	_, err = store.UpdateQuantity(ctx, "cart-0", 12, 1)
	require.Error(t, err)
	assert.Empty(t, store.locks)
}

func TestMemoryCartsReturnsCopies(t *testing.T) {
	ctx := context.Background()
	carts := NewMemoryCarts()
	require.NoError(t, carts.SaveCart(ctx, &entity.Cart{Token: "abc", Items: []entity.CartItem{serum(1)}}))

	cart, err := carts.GetCart(ctx, "abc")
	require.NoError(t, err)
	cart.Items[0].Quantity = 50

	stored, err := carts.GetCart(ctx, "abc")
	require.NoError(t, err)
	assert.Equal(t, 1, stored.Items[0].Quantity)
}
