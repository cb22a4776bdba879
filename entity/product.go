package entity

import "github.com/shopspring/decimal"

// Product is the catalog view served to the storefront.
type Product struct {
	Id          int             `json:"id"`
	Title       string          `json:"title"`
	Subtitle    string          `json:"subtitle"`
	Price       decimal.Decimal `json:"price"`
	Category    string          `json:"category"`
	Description string          `json:"description"`
	Image       string          `json:"image"`
	Slug        string          `json:"slug"`
}

// ShippingRequest asks for the shipping methods available at an address.
type ShippingRequest struct {
	Country  string            `json:"country"`
	State    string            `json:"state"`
	City     string            `json:"city"`
	Postcode string            `json:"postcode"`
	Items    []LineItemRequest `json:"items"`
}

type ShippingMethod struct {
	Id          string          `json:"id"`
	InstanceId  int             `json:"instance_id"`
	Title       string          `json:"title"`
	Cost        decimal.Decimal `json:"cost"`
	Description string          `json:"description"`
}
