package services

import (
	"context"

	"storefront/entity"
)

type Payments interface {
	Initiate(ctx context.Context, request *entity.InitiatePaymentRequest) (*entity.PaymentRequest, error)
	Notify(ctx context.Context, body []byte) error
}

// Commerce is the headless commerce backend holding catalog and orders.
type Commerce interface {
	CreateOrder(ctx context.Context, request *entity.CreateOrderRequest) (*entity.Order, error)
	GetOrder(ctx context.Context, orderId string) (*entity.Order, error)
	UpdateOrder(ctx context.Context, orderId string, update *entity.OrderUpdate) error
	Products(ctx context.Context) ([]entity.Product, error)
	ProductBySlug(ctx context.Context, slug string) (*entity.Product, error)
	ShippingMethods(ctx context.Context, request *entity.ShippingRequest) ([]entity.ShippingMethod, error)
}
