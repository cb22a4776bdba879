// Package entity defines data models for the storefront payment service.
package entity

import "strings"

// PayFast field names
const (
	FieldMerchantId          = "merchant_id"
	FieldMerchantKey         = "merchant_key"
	FieldReturnUrl           = "return_url"
	FieldCancelUrl           = "cancel_url"
	FieldNotifyUrl           = "notify_url"
	FieldNameFirst           = "name_first"
	FieldNameLast            = "name_last"
	FieldEmailAddress        = "email_address"
	FieldCellNumber          = "cell_number"
	FieldPaymentId           = "m_payment_id"
	FieldAmount              = "amount"
	FieldItemName            = "item_name"
	FieldItemDescription     = "item_description"
	FieldCustomInt1          = "custom_int1"
	FieldCustomStr1          = "custom_str1"
	FieldEmailConfirmation   = "email_confirmation"
	FieldConfirmationAddress = "confirmation_address"

	FieldGatewayPaymentId = "pf_payment_id"
	FieldPaymentStatus    = "payment_status"
	FieldAmountGross      = "amount_gross"
	FieldAmountFee        = "amount_fee"
	FieldAmountNet        = "amount_net"

	FieldSignature  = "signature"
	FieldPassphrase = "passphrase"
)

// SignatureOrder is the gateway documentation order of signed fields.
// It is neither alphabetical nor insertion order. Fields outside it, including
// the ones only a notification carries, are not signed.
var SignatureOrder = []string{
	FieldMerchantId,
	FieldMerchantKey,
	FieldReturnUrl,
	FieldCancelUrl,
	FieldNotifyUrl,
	FieldNameFirst,
	FieldNameLast,
	FieldEmailAddress,
	FieldCellNumber,
	FieldPaymentId,
	FieldAmount,
	FieldItemName,
	FieldItemDescription,
	FieldCustomInt1,
	FieldCustomStr1,
	FieldEmailConfirmation,
	FieldConfirmationAddress,
}

// PaymentFields maps a gateway field name to its value.
// A field that is absent and a field holding an empty string are equivalent:
// neither takes part in the signature.
type PaymentFields map[string]string

// SetOptional stores the value only when it is not blank.
func (f PaymentFields) SetOptional(key, value string) {
	if strings.TrimSpace(value) == "" {
		delete(f, key)
		return
	}
	f[key] = value
}

// Has reports whether the field is present with a non-blank value.
func (f PaymentFields) Has(key string) bool {
	return strings.TrimSpace(f[key]) != ""
}

// Ordered returns present fields as name/value pairs in signature order.
func (f PaymentFields) Ordered() []Field {
	fields := make([]Field, 0, len(f))
	for _, key := range SignatureOrder {
		if f.Has(key) {
			fields = append(fields, Field{Name: key, Value: f[key]})
		}
	}
	return fields
}

// Field is a single gateway field.
type Field struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}
