package entity

// Order statuses as reported by the commerce backend
const (
	OrderStatusPending    = "pending"
	OrderStatusProcessing = "processing"
	OrderStatusCompleted  = "completed"
	OrderStatusFailed     = "failed"
	OrderStatusCancelled  = "cancelled"
)

// Address is a billing or shipping address.
type Address struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email,omitempty"`
	Phone     string `json:"phone,omitempty"`
	Address1  string `json:"address_1"`
	City      string `json:"city"`
	State     string `json:"state"`
	Postcode  string `json:"postcode"`
	Country   string `json:"country"`
}

type LineItemRequest struct {
	ProductId int `json:"product_id"`
	Quantity  int `json:"quantity"`
}

// CreateOrderRequest is what checkout submits.
type CreateOrderRequest struct {
	Billing    Address           `json:"billing"`
	Shipping   Address           `json:"shipping"`
	LineItems  []LineItemRequest `json:"line_items"`
	CustomerId int               `json:"customer_id,omitempty"`
}

// LineItem is an order line as returned by the backend.
type LineItem struct {
	Id        int    `json:"id"`
	ProductId int    `json:"product_id,omitempty"`
	Name      string `json:"name"`
	Quantity  int    `json:"quantity"`
	Total     string `json:"total"`
	Image     string `json:"image,omitempty"`
}

// OrderReference identifies an order in the commerce backend.
type OrderReference struct {
	Id       int    `json:"order_id"`
	OrderKey string `json:"order_key"`
	Total    string `json:"total"`
	Currency string `json:"currency"`
	Status   string `json:"status"`

	// CheckoutUrl and OrderUrl point to the backend site when it is configured
	CheckoutUrl string `json:"checkout_url,omitempty"`
	OrderUrl    string `json:"order_url,omitempty"`
}

// Order is the order view the storefront needs.
type Order struct {
	Id                 int        `json:"id"`
	OrderKey           string     `json:"order_key"`
	Status             string     `json:"status"`
	Total              string     `json:"total"`
	Currency           string     `json:"currency"`
	DateCreated        string     `json:"date_created"`
	DatePaid           *string    `json:"date_paid"`
	Billing            Address    `json:"billing"`
	Shipping           Address    `json:"shipping"`
	LineItems          []LineItem `json:"line_items"`
	PaymentMethod      string     `json:"payment_method"`
	PaymentMethodTitle string     `json:"payment_method_title"`
	TransactionId      string     `json:"transaction_id"`
}

func (o *Order) Reference() OrderReference {
	return OrderReference{
		Id:       o.Id,
		OrderKey: o.OrderKey,
		Total:    o.Total,
		Currency: o.Currency,
		Status:   o.Status,
	}
}

// OrderUpdate is applied when a payment is confirmed.
// Applying the same update twice leaves the order in the same state.
type OrderUpdate struct {
	Status        string `json:"status"`
	TransactionId string `json:"transaction_id"`
	SetPaid       bool   `json:"set_paid"`
}
