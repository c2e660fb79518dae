package recovery

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Order is an order as returned by the storefront
type Order struct {
	ID              int64           `json:"id"`
	Name            string          `json:"name,omitempty"`
	Email           string          `json:"email,omitempty"`
	Phone           string          `json:"phone,omitempty"`
	CartToken       string          `json:"cart_token,omitempty"`
	CheckoutToken   string          `json:"checkout_token,omitempty"`
	Currency        string          `json:"currency,omitempty"`
	TotalPrice      decimal.Decimal `json:"total_price"`
	FinancialStatus string          `json:"financial_status,omitempty"`
	OrderStatusURL  string          `json:"order_status_url,omitempty"`
	Customer        *Customer       `json:"customer,omitempty"`
	ShippingAddress *Address        `json:"shipping_address,omitempty"`
	BillingAddress  *Address        `json:"billing_address,omitempty"`
	LineItems       []LineItem      `json:"line_items"`
}

// Phones returns the non-empty phone fields of the order in lookup order:
// order phone, customer phone, customer default address phone, shipping phone.
func (o *Order) Phones() []string {
	candidates := []string{o.Phone}
	if o.Customer != nil {
		candidates = append(candidates, o.Customer.Phone)
		if o.Customer.DefaultAddress != nil {
			candidates = append(candidates, o.Customer.DefaultAddress.Phone)
		}
	}
	if o.ShippingAddress != nil {
		candidates = append(candidates, o.ShippingAddress.Phone)
	}

	phones := candidates[:0]
	for _, p := range candidates {
		if p != "" {
			phones = append(phones, p)
		}
	}
	return phones
}

// Emails returns the non-empty order and customer emails
func (o *Order) Emails() []string {
	emails := make([]string, 0, 2)
	if o.Email != "" {
		emails = append(emails, o.Email)
	}
	if o.Customer != nil && o.Customer.Email != "" {
		emails = append(emails, o.Customer.Email)
	}
	return emails
}

// Country returns the order's ISO country code, falling back to DefaultCountryCode
func (o *Order) Country() string {
	return o.CountryOr(DefaultCountryCode)
}

// CountryOr returns the shipping or billing country code, or fallback
func (o *Order) CountryOr(fallback string) string {
	switch {
	case o.ShippingAddress != nil && o.ShippingAddress.CountryCode != "":
		return o.ShippingAddress.CountryCode
	case o.BillingAddress != nil && o.BillingAddress.CountryCode != "":
		return o.BillingAddress.CountryCode
	default:
		return fallback
	}
}

// FirstName returns the shipping or customer first name, or "Customer"
func (o *Order) FirstName() string {
	if o.ShippingAddress != nil && o.ShippingAddress.FirstName != "" {
		return o.ShippingAddress.FirstName
	}
	if o.Customer != nil && o.Customer.FirstName != "" {
		return o.Customer.FirstName
	}
	return "Customer"
}

// ContactPhone returns the shipping phone or the customer phone
func (o *Order) ContactPhone() string {
	if o.ShippingAddress != nil && o.ShippingAddress.Phone != "" {
		return o.ShippingAddress.Phone
	}
	if o.Customer != nil {
		return o.Customer.Phone
	}
	return ""
}

// DisplayName returns the order name without its leading '#'
func (o *Order) DisplayName() string {
	name := strings.ReplaceAll(o.Name, "#", "")
	if name == "" {
		return "Unknown Order"
	}
	return name
}

// StatusPath returns the customer-facing order status path. The storefront's
// order_status_url is reduced to its path; without one the account page under
// shopURL is used.
func (o *Order) StatusPath(shopURL string) string {
	if o.OrderStatusURL == "" {
		return strings.TrimRight(shopURL, "/") + "/account/order/" + strconv.FormatInt(o.ID, 10)
	}
	u, err := url.Parse(o.OrderStatusURL)
	if err != nil || u.Path == "" {
		return o.OrderStatusURL
	}
	return strings.TrimPrefix(u.Path, "/")
}

// ---------------------------------------------------------------------------
// Order creation payload
// ---------------------------------------------------------------------------

// OrderLineItem is a line item on an order creation request
type OrderLineItem struct {
	VariantID int64  `json:"variant_id"`
	Quantity  int    `json:"quantity"`
	Title     string `json:"title,omitempty"`
	Price     string `json:"price"`
}

// OrderShippingLine is a shipping line on an order creation request
type OrderShippingLine struct {
	Title  string `json:"title"`
	Price  string `json:"price"`
	Code   string `json:"code"`
	Source string `json:"source"`
}

// OrderTaxLine is a tax line on an order creation request
type OrderTaxLine struct {
	Price string  `json:"price"`
	Rate  float64 `json:"rate"`
	Title string  `json:"title"`
}

// Transaction records how an order was paid
type Transaction struct {
	Kind          string `json:"kind"`
	Status        string `json:"status"`
	Amount        string `json:"amount"`
	Gateway       string `json:"gateway"`
	Authorization string `json:"authorization"`
}

// OrderRequest is the payload used to create a paid order
type OrderRequest struct {
	Email           string              `json:"email,omitempty"`
	Phone           string              `json:"phone,omitempty"`
	Currency        string              `json:"currency"`
	Customer        *Customer           `json:"customer,omitempty"`
	BillingAddress  Address             `json:"billing_address"`
	ShippingAddress Address             `json:"shipping_address"`
	LineItems       []OrderLineItem     `json:"line_items"`
	ShippingLines   []OrderShippingLine `json:"shipping_lines"`
	TaxLines        []OrderTaxLine      `json:"tax_lines"`
	TotalTax        string              `json:"total_tax"`
	TotalDiscounts  string              `json:"total_discounts"`
	FinancialStatus string              `json:"financial_status"`
	Transactions    []Transaction       `json:"transactions"`
	Note            string              `json:"note"`
	Tags            string              `json:"tags"`
}

// CustomerQuery is a customer search by a single field
type CustomerQuery struct {
	Field string // "phone" or "email"
	Value string
}

// ---------------------------------------------------------------------------
// Catalog
// ---------------------------------------------------------------------------

// Variant is a purchasable product variant
type Variant struct {
	ID                int64  `json:"id"`
	ProductID         int64  `json:"product_id"`
	Title             string `json:"title,omitempty"`
	Option1           string `json:"option1,omitempty"`
	ImageID           int64  `json:"image_id,omitempty"`
	InventoryItemID   int64  `json:"inventory_item_id,omitempty"`
	InventoryQuantity int    `json:"inventory_quantity"`
}

// ProductImage is a product image and the variants it depicts
type ProductImage struct {
	ID         int64   `json:"id"`
	ProductID  int64   `json:"product_id,omitempty"`
	Src        string  `json:"src"`
	VariantIDs []int64 `json:"variant_ids"`
}

// Product is a catalog product
type Product struct {
	ID       int64  `json:"id"`
	Title    string `json:"title"`
	BodyHTML string `json:"body_html,omitempty"`
}

// Location is an inventory location
type Location struct {
	ID     int64  `json:"id"`
	Name   string `json:"name,omitempty"`
	Active bool   `json:"active"`
}

// InventoryAdjustment is a relative change of available stock at a location
type InventoryAdjustment struct {
	LocationID      int64 `json:"location_id"`
	InventoryItemID int64 `json:"inventory_item_id"`
	Delta           int   `json:"available_adjustment"`
}

// Fulfillment is a shipment created for an order
type Fulfillment struct {
	ID             int64      `json:"id"`
	OrderID        int64      `json:"order_id"`
	Name           string     `json:"name,omitempty"`
	TrackingNumber string     `json:"tracking_number,omitempty"`
	TrackingURL    string     `json:"tracking_url,omitempty"`
	Destination    *Address   `json:"destination,omitempty"`
	LineItems      []LineItem `json:"line_items"`
}

// OrderDisplayName returns the order name without '#' and without the
// fulfillment suffix after '.'
func (f *Fulfillment) OrderDisplayName() string {
	name := strings.ReplaceAll(f.Name, "#", "")
	name, _, _ = strings.Cut(name, ".")
	if name == "" {
		return "Unknown Order"
	}
	return name
}
