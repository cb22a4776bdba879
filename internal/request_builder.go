package internal

import (
	"fmt"
	"strings"

	"storefront/entity"
)

// RequestBuilder assembles the payment fields sent to the gateway.
type RequestBuilder struct {
	gateway *entity.GatewayConfig
}

func NewRequestBuilder(gateway *entity.GatewayConfig) *RequestBuilder {
	return &RequestBuilder{
		gateway: gateway,
	}
}

// Build fills the required fields unconditionally and the optional ones only when set.
// Optional fields are omitted rather than left empty.
func (b *RequestBuilder) Build(order *entity.PaymentOrder, customer *entity.Customer, urls entity.CallbackURLs) (entity.PaymentFields, error) {
	if b.gateway == nil || strings.TrimSpace(b.gateway.MerchantId) == "" || strings.TrimSpace(b.gateway.MerchantKey) == "" {
		return nil, fmt.Errorf("%w: merchant id and merchant key must be set", ErrConfiguration)
	}
	if order == nil || order.Id == "" {
		return nil, fmt.Errorf("%w: order id is required", ErrBadRequest)
	}
	if customer == nil {
		return nil, fmt.Errorf("%w: customer is required", ErrBadRequest)
	}
	if order.Amount.IsNegative() {
		return nil, fmt.Errorf("%w: amount %s is negative", ErrBadRequest, order.Amount.String())
	}

	fields := entity.PaymentFields{
		entity.FieldMerchantId:   b.gateway.MerchantId,
		entity.FieldMerchantKey:  b.gateway.MerchantKey,
		entity.FieldReturnUrl:    urls.ReturnUrl,
		entity.FieldCancelUrl:    urls.CancelUrl,
		entity.FieldNotifyUrl:    urls.NotifyUrl,
		entity.FieldNameFirst:    customer.FirstName,
		entity.FieldNameLast:     customer.LastName,
		entity.FieldEmailAddress: customer.Email,
		entity.FieldPaymentId:    order.Id,
		entity.FieldAmount:       order.Amount.StringFixed(2),
		entity.FieldItemName:     order.ItemName,
	}

	fields.SetOptional(entity.FieldItemDescription, order.Description)
	fields.SetOptional(entity.FieldCellNumber, customer.CellNumber)
	fields.SetOptional(entity.FieldCustomInt1, order.CustomInt1)
	fields.SetOptional(entity.FieldCustomStr1, order.CustomStr1)
	if strings.TrimSpace(customer.ConfirmationEmail) != "" {
		fields[entity.FieldEmailConfirmation] = "1"
		fields[entity.FieldConfirmationAddress] = customer.ConfirmationEmail
	}

	return fields, nil
}
