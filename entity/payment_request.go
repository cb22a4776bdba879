package entity

import "github.com/shopspring/decimal"

// InitiatePaymentRequest is sent by checkout once the order exists in the commerce backend.
type InitiatePaymentRequest struct {
	OrderId         string          `json:"orderId"`
	Amount          decimal.Decimal `json:"amount"`
	ItemName        string          `json:"itemName"`
	ItemDescription string          `json:"itemDescription,omitempty"`
	FirstName       string          `json:"firstName"`
	LastName        string          `json:"lastName"`
	Email           string          `json:"email"`
	CellNumber      string          `json:"cellNumber,omitempty"`
	CustomInt1      string          `json:"customInt1,omitempty"`
	CustomStr1      string          `json:"customStr1,omitempty"`
	// ConfirmationEmail requests a gateway confirmation mail to this address
	ConfirmationEmail string `json:"confirmationEmail,omitempty"`
}

// PaymentOrder is the order part of a payment request.
type PaymentOrder struct {
	Id          string
	Amount      decimal.Decimal
	ItemName    string
	Description string
	CustomInt1  string
	CustomStr1  string
}

// Customer is the payer part of a payment request.
type Customer struct {
	FirstName         string
	LastName          string
	Email             string
	CellNumber        string
	ConfirmationEmail string
}

// PaymentRequest carries signed payment fields back to the browser.
type PaymentRequest struct {
	Success     bool          `json:"success"`
	PaymentData PaymentFields `json:"paymentData"`
	Signature   string        `json:"signature"`
	ProcessUrl  string        `json:"processUrl"`
}
