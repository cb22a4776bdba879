package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

type CartItem struct {
	ProductId int             `json:"product_id" bson:"product_id"`
	Name      string          `json:"name" bson:"name"`
	Price     decimal.Decimal `json:"price" bson:"price"`
	Quantity  int             `json:"quantity" bson:"quantity"`
	Image     string          `json:"image,omitempty" bson:"image"`
}

// Cart belongs to an opaque client token.
type Cart struct {
	Token   string     `json:"token" bson:"token"`
	Items   []CartItem `json:"items" bson:"items"`
	Updated time.Time  `json:"updated" bson:"updated"`
}

func (c *Cart) Subtotal() decimal.Decimal {
	total := decimal.Zero
	for _, item := range c.Items {
		total = total.Add(item.Price.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}
	return total
}

func (c *Cart) Count() int {
	count := 0
	for _, item := range c.Items {
		count += item.Quantity
	}
	return count
}

// LineItems converts the cart into order lines.
func (c *Cart) LineItems() []LineItemRequest {
	items := make([]LineItemRequest, 0, len(c.Items))
	for _, item := range c.Items {
		items = append(items, LineItemRequest{ProductId: item.ProductId, Quantity: item.Quantity})
	}
	return items
}
