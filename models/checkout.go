package models

import "github.com/shopspring/decimal"

// CheckoutItem is one line of an inbound checkout request.
type CheckoutItem struct {
	ProductID string          `json:"product_id" binding:"required"`
	Quantity  int             `json:"quantity" binding:"required"`
	Price     decimal.Decimal `json:"price"`
}

// CheckoutData carries the billing contact (required) and an optional
// shipping contact. Empty shipping fields default to their billing
// counterparts field by field.
type CheckoutData struct {
	BillingFirstName    string `json:"billing_first_name" binding:"required"`
	BillingLastName     string `json:"billing_last_name" binding:"required"`
	BillingAddressLine1 string `json:"billing_address_line1" binding:"required"`
	BillingAddressLine2 string `json:"billing_address_line2"`
	BillingCity         string `json:"billing_city" binding:"required"`
	BillingState        string `json:"billing_state"`
	BillingPostalCode   string `json:"billing_postal_code" binding:"required"`
	BillingCountry      string `json:"billing_country" binding:"required"`
	BillingPhoneNumber  string `json:"billing_phone_number"`
	BillingEmail        string `json:"billing_email" binding:"required,email"`

	ShippingFirstName    string `json:"shipping_first_name"`
	ShippingLastName     string `json:"shipping_last_name"`
	ShippingAddressLine1 string `json:"shipping_address_line1"`
	ShippingAddressLine2 string `json:"shipping_address_line2"`
	ShippingCity         string `json:"shipping_city"`
	ShippingState        string `json:"shipping_state"`
	ShippingPostalCode   string `json:"shipping_postal_code"`
	ShippingCountry      string `json:"shipping_country"`
	ShippingPhoneNumber  string `json:"shipping_phone_number"`
	ShippingEmail        string `json:"shipping_email"`
}

// Billing returns the billing address block.
func (d CheckoutData) Billing() Contact {
	return Contact{
		FirstName:    d.BillingFirstName,
		LastName:     d.BillingLastName,
		AddressLine1: d.BillingAddressLine1,
		AddressLine2: d.BillingAddressLine2,
		City:         d.BillingCity,
		State:        d.BillingState,
		PostalCode:   d.BillingPostalCode,
		Country:      d.BillingCountry,
		PhoneNumber:  d.BillingPhoneNumber,
		Email:        d.BillingEmail,
	}
}

// Shipping returns the shipping address block, falling back to the billing
// value for every field left empty.
func (d CheckoutData) Shipping() Contact {
	b := d.Billing()
	return Contact{
		FirstName:    fallback(d.ShippingFirstName, b.FirstName),
		LastName:     fallback(d.ShippingLastName, b.LastName),
		AddressLine1: fallback(d.ShippingAddressLine1, b.AddressLine1),
		AddressLine2: fallback(d.ShippingAddressLine2, b.AddressLine2),
		City:         fallback(d.ShippingCity, b.City),
		State:        fallback(d.ShippingState, b.State),
		PostalCode:   fallback(d.ShippingPostalCode, b.PostalCode),
		Country:      fallback(d.ShippingCountry, b.Country),
		PhoneNumber:  fallback(d.ShippingPhoneNumber, b.PhoneNumber),
		Email:        fallback(d.ShippingEmail, b.Email),
	}
}

func fallback(v, def string) string {
	if v != "" {
		return v
	}
	return def
}
