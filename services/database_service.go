package services

import (
	"context"

	"storefront/entity"
)

type Database interface {
	WriteLogMessage(data Data) error

	GetNotification(ctx context.Context, gatewayPaymentId string) (*entity.NotificationRecord, error)
	SaveNotification(ctx context.Context, record *entity.NotificationRecord) error
	MarkNotificationReconciled(ctx context.Context, gatewayPaymentId string, reconcileError string) error
}

type Data interface {
	DataType() string
}

// CartRepository is the persistence boundary of the cart store.
type CartRepository interface {
	GetCart(ctx context.Context, token string) (*entity.Cart, error)
	SaveCart(ctx context.Context, cart *entity.Cart) error
	DeleteCart(ctx context.Context, token string) error
}
