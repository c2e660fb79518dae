package recovery

import (
	"strings"

	"github.com/shopspring/decimal"
)

// DefaultCountryCode is used when neither address nor checkout carries a country
const DefaultCountryCode = "IN"

// Address is a postal address as exchanged with the storefront
type Address struct {
	FirstName   string `json:"first_name,omitempty"`
	LastName    string `json:"last_name,omitempty"`
	Company     string `json:"company,omitempty"`
	Address1    string `json:"address1,omitempty"`
	Address2    string `json:"address2,omitempty"`
	City        string `json:"city,omitempty"`
	Province    string `json:"province,omitempty"`
	Country     string `json:"country,omitempty"`
	CountryCode string `json:"country_code,omitempty"`
	Zip         string `json:"zip,omitempty"`
	Phone       string `json:"phone,omitempty"`
}

// Customer is a storefront customer reference
type Customer struct {
	ID             int64    `json:"id,omitempty"`
	Email          string   `json:"email,omitempty"`
	FirstName      string   `json:"first_name,omitempty"`
	LastName       string   `json:"last_name,omitempty"`
	Phone          string   `json:"phone,omitempty"`
	DefaultAddress *Address `json:"default_address,omitempty"`
}

// LineItem is a purchased variant and quantity
type LineItem struct {
	ID           int64           `json:"id,omitempty"`
	VariantID    int64           `json:"variant_id,omitempty"`
	ProductID    int64           `json:"product_id,omitempty"`
	Title        string          `json:"title,omitempty"`
	VariantTitle string          `json:"variant_title,omitempty"`
	SKU          string          `json:"sku,omitempty"`
	Quantity     int             `json:"quantity"`
	Price        decimal.Decimal `json:"price"`
}

// ShippingLine is a selected shipping method
type ShippingLine struct {
	Title             string              `json:"title,omitempty"`
	Code              string              `json:"code,omitempty"`
	Source            string              `json:"source,omitempty"`
	Price             decimal.NullDecimal `json:"price"`
	OriginalShopPrice decimal.NullDecimal `json:"original_shop_price"`
}

// TaxLine is a tax applied to the checkout
type TaxLine struct {
	Title string          `json:"title,omitempty"`
	Rate  float64         `json:"rate"`
	Price decimal.Decimal `json:"price"`
}

// Checkout is an immutable snapshot of a checkout as received from the storefront.
// Token is the checkout token; CartToken identifies the cart across updates.
type Checkout struct {
	ID              int64           `json:"id,omitempty"`
	Token           string          `json:"token,omitempty"`
	CartToken       string          `json:"cart_token"`
	Email           string          `json:"email,omitempty"`
	Phone           string          `json:"phone,omitempty"`
	CountryCode     string          `json:"country_code,omitempty"`
	Currency        string          `json:"currency,omitempty"`
	TotalPrice      decimal.Decimal `json:"total_price"`
	SubtotalPrice   decimal.Decimal `json:"subtotal_price"`
	TotalTax        decimal.Decimal `json:"total_tax"`
	TotalDiscounts  decimal.Decimal `json:"total_discounts"`
	ShippingAddress *Address        `json:"shipping_address,omitempty"`
	BillingAddress  *Address        `json:"billing_address,omitempty"`
	LineItems       []LineItem      `json:"line_items"`
	ShippingLines   []ShippingLine  `json:"shipping_lines"`
	TaxLines        []TaxLine       `json:"tax_lines"`
	Customer        *Customer       `json:"customer,omitempty"`
}

// ContactPhone returns the phone used to reach the customer: the shipping
// address phone when present, otherwise the checkout phone.
func (c *Checkout) ContactPhone() string {
	if c.ShippingAddress != nil && c.ShippingAddress.Phone != "" {
		return c.ShippingAddress.Phone
	}
	return c.Phone
}

// OrderPhone returns the phone recorded on a materialized order: the checkout
// phone first, then shipping and billing address phones.
func (c *Checkout) OrderPhone() string {
	if c.Phone != "" {
		return c.Phone
	}
	if c.ShippingAddress != nil && c.ShippingAddress.Phone != "" {
		return c.ShippingAddress.Phone
	}
	if c.BillingAddress != nil {
		return c.BillingAddress.Phone
	}
	return ""
}

// MatchPhones returns every phone on the checkout that may identify the payer
func (c *Checkout) MatchPhones() []string {
	phones := make([]string, 0, 3)
	if c.ShippingAddress != nil && c.ShippingAddress.Phone != "" {
		phones = append(phones, c.ShippingAddress.Phone)
	}
	if c.BillingAddress != nil && c.BillingAddress.Phone != "" {
		phones = append(phones, c.BillingAddress.Phone)
	}
	if c.Phone != "" {
		phones = append(phones, c.Phone)
	}
	return phones
}

// HasContactInfo reports whether the checkout carries a phone with at least ten
// digits or an email address.
func (c *Checkout) HasContactInfo() bool {
	return len(Digits(c.ContactPhone())) >= 10 || strings.TrimSpace(c.Email) != ""
}

// HasAnyContact is the looser check applied right before sending a reminder
func (c *Checkout) HasAnyContact() bool {
	if c.Email != "" || c.Phone != "" {
		return true
	}
	return c.ShippingAddress != nil && c.ShippingAddress.Phone != ""
}

// Country returns the ISO country code for the customer, falling back to
// DefaultCountryCode.
func (c *Checkout) Country() string {
	return c.CountryOr(DefaultCountryCode)
}

// CountryOr returns the shipping, billing or checkout country code, or fallback
func (c *Checkout) CountryOr(fallback string) string {
	switch {
	case c.ShippingAddress != nil && c.ShippingAddress.CountryCode != "":
		return c.ShippingAddress.CountryCode
	case c.BillingAddress != nil && c.BillingAddress.CountryCode != "":
		return c.BillingAddress.CountryCode
	case c.CountryCode != "":
		return c.CountryCode
	default:
		return fallback
	}
}

// FirstName returns the shipping first name, or "Customer"
func (c *Checkout) FirstName() string {
	if c.ShippingAddress != nil && c.ShippingAddress.FirstName != "" {
		return c.ShippingAddress.FirstName
	}
	return "Customer"
}

// RecoveryPath is the storefront path that resumes this checkout
func (c *Checkout) RecoveryPath() string {
	return "checkouts/cn/" + c.CartToken + "/information"
}
