package recovery

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/cartsync/backend/internal/domain/recovery"
	"github.com/cartsync/backend/internal/infrastructure/logger"
	"github.com/cartsync/backend/internal/infrastructure/telemetry"
)

const (
	// OrderTags marks orders created from a captured payment
	OrderTags = "ManualOrder, RazorpayPaid"

	paymentGatewayName = "razorpay"
	defaultCurrency    = "INR"
	defaultShipping    = "Standard"
)

// OrderMaterializerConfig holds the dependencies of an OrderMaterializer
type OrderMaterializerConfig struct {
	Platform       recovery.OrderPlatform
	Metrics        Metrics
	DefaultCountry string
	Logger         *zap.Logger
}

// OrderMaterializer turns a checkout and the payment that settled it into a
// paid storefront order, then deducts the ordered stock.
type OrderMaterializer struct {
	platform       recovery.OrderPlatform
	metrics        Metrics
	defaultCountry string
	logger         *zap.Logger
}

// NewOrderMaterializer creates a new OrderMaterializer
func NewOrderMaterializer(cfg OrderMaterializerConfig) *OrderMaterializer {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = nopMetrics{}
	}
	country := cfg.DefaultCountry
	if country == "" {
		country = recovery.DefaultCountryCode
	}
	return &OrderMaterializer{
		platform:       cfg.Platform,
		metrics:        metrics,
		defaultCountry: country,
		logger:         log.Named("order_materializer"),
	}
}

// Materialize creates the paid order for checkout c settled by payment p.
// Inventory deduction afterwards is best effort: failures are logged per
// item and never undo the order.
func (m *OrderMaterializer) Materialize(ctx context.Context, c *recovery.Checkout, p *recovery.Payment) (order *recovery.Order, err error) {
	if c == nil || p == nil || p.ID == "" {
		return nil, recovery.ErrCheckoutIncomplete
	}
	ctx, span := telemetry.StartServiceSpan(ctx, "order_materializer", "materialize",
		telemetry.WithAttribute(telemetry.SpanAttrPaymentID, p.ID),
	)
	defer func() {
		if order != nil {
			telemetry.SetAttributes(span, telemetry.SpanAttrOrderID, order.ID)
		}
		telemetry.RecordError(span, err)
		span.End()
	}()
	log := logger.WithLogger(ctx, m.logger).With(
		zap.String("cart_token", c.CartToken),
		zap.String("payment_id", p.ID),
	)

	phone := recovery.FormatPhone(c.OrderPhone(), c.CountryOr(m.defaultCountry))
	customerID, err := m.resolveCustomer(ctx, phone, c.Email)
	if err != nil {
		return nil, fmt.Errorf("resolve customer: %w", err)
	}

	order, err = m.platform.CreateOrder(ctx, BuildOrderRequest(c, p, customerID, phone))
	if err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}
	log.Info("Order created from captured payment",
		zap.Int64("order_id", order.ID),
		zap.Int64("customer_id", customerID),
	)

	items := order.LineItems
	if len(items) == 0 {
		items = c.LineItems
	}
	m.deductInventory(ctx, items, log)

	return order, nil
}

// resolveCustomer finds an existing customer by phone, then by email.
// Returns 0 when neither matches.
func (m *OrderMaterializer) resolveCustomer(ctx context.Context, phone, email string) (int64, error) {
	if phone != "" {
		customers, err := m.platform.SearchCustomers(ctx, recovery.CustomerQuery{Field: "phone", Value: phone})
		if err != nil {
			return 0, err
		}
		if len(customers) > 0 && customers[0].ID != 0 {
			return customers[0].ID, nil
		}
	}
	if email != "" {
		customers, err := m.platform.SearchCustomers(ctx, recovery.CustomerQuery{Field: "email", Value: email})
		if err != nil {
			return 0, err
		}
		if len(customers) > 0 {
			return customers[0].ID, nil
		}
	}
	return 0, nil
}

// deductInventory subtracts each item's quantity at the primary location
func (m *OrderMaterializer) deductInventory(ctx context.Context, items []recovery.LineItem, log *logger.ContextLogger) {
	locations, err := m.platform.ListLocations(ctx)
	if err == nil && len(locations) == 0 {
		err = recovery.ErrNoLocation
	}
	if err != nil {
		log.Error("Cannot adjust inventory", zap.Error(err))
		m.metrics.RecordInventoryAdjustment(ctx, err)
		return
	}
	locationID := locations[0].ID

	for _, item := range items {
		if item.VariantID == 0 {
			log.Warn("Line item has no variant, skipping inventory adjustment", zap.String("title", item.Title))
			continue
		}
		err := m.adjustItem(ctx, locationID, item)
		m.metrics.RecordInventoryAdjustment(ctx, err)
		if err != nil {
			log.Error("Inventory adjustment failed", zap.Int64("variant_id", item.VariantID), zap.Error(err))
			continue
		}
		log.Debug("Inventory adjusted", zap.Int64("variant_id", item.VariantID), zap.Int("quantity", quantityOf(item)))
	}
}

var errNoInventoryItem = errors.New("variant has no inventory item")

func (m *OrderMaterializer) adjustItem(ctx context.Context, locationID int64, item recovery.LineItem) error {
	variant, err := m.platform.GetVariant(ctx, item.VariantID)
	if err != nil {
		return err
	}
	if variant.InventoryItemID == 0 {
		return errNoInventoryItem
	}
	return m.platform.AdjustInventory(ctx, recovery.InventoryAdjustment{
		LocationID:      locationID,
		InventoryItemID: variant.InventoryItemID,
		Delta:           -quantityOf(item),
	})
}

func quantityOf(item recovery.LineItem) int {
	if item.Quantity <= 0 {
		return 1
	}
	return item.Quantity
}

// ---------------------------------------------------------------------------
// Order payload
// ---------------------------------------------------------------------------

// BuildOrderRequest mirrors checkout c into a paid order request. customerID
// is an existing customer to attach (0 for none) and phone the customer's
// phone in international form.
func BuildOrderRequest(c *recovery.Checkout, p *recovery.Payment, customerID int64, phone string) *recovery.OrderRequest {
	req := &recovery.OrderRequest{
		Phone:           c.OrderPhone(),
		Currency:        c.Currency,
		Customer:        orderCustomer(c, customerID, phone),
		BillingAddress:  orderAddress(c.BillingAddress),
		ShippingAddress: orderAddress(c.ShippingAddress),
		LineItems:       make([]recovery.OrderLineItem, 0, len(c.LineItems)),
		ShippingLines:   []recovery.OrderShippingLine{orderShippingLine(c.ShippingLines)},
		TaxLines:        make([]recovery.OrderTaxLine, 0, len(c.TaxLines)),
		TotalTax:        c.TotalTax.StringFixed(2),
		TotalDiscounts:  c.TotalDiscounts.StringFixed(2),
		FinancialStatus: "paid",
		Transactions: []recovery.Transaction{{
			Kind:          "sale",
			Status:        "success",
			Amount:        c.TotalPrice.StringFixed(2),
			Gateway:       paymentGatewayName,
			Authorization: p.ID,
		}},
		Note: fmt.Sprintf("Auto-created after Razorpay capture (%s) | cart_token: %s | checkout_token: %s",
			p.ID, c.CartToken, c.Token),
		Tags: OrderTags,
	}
	if req.Currency == "" {
		req.Currency = defaultCurrency
	}
	if customerID == 0 {
		req.Email = c.Email
	}

	for _, item := range c.LineItems {
		req.LineItems = append(req.LineItems, recovery.OrderLineItem{
			VariantID: item.VariantID,
			Quantity:  quantityOf(item),
			Title:     item.Title,
			Price:     item.Price.StringFixed(2),
		})
	}
	for _, tax := range c.TaxLines {
		req.TaxLines = append(req.TaxLines, recovery.OrderTaxLine{
			Price: tax.Price.StringFixed(2),
			Rate:  tax.Rate,
			Title: tax.Title,
		})
	}
	return req
}

// orderCustomer prefers the checkout's own customer, then an existing
// customer ID, then a guest built from the addresses.
func orderCustomer(c *recovery.Checkout, customerID int64, phone string) *recovery.Customer {
	switch {
	case c.Customer != nil:
		return c.Customer
	case customerID != 0:
		return &recovery.Customer{ID: customerID}
	}

	guest := &recovery.Customer{FirstName: "Guest", Email: c.Email, Phone: phone}
	for _, a := range []*recovery.Address{c.ShippingAddress, c.BillingAddress} {
		if a != nil && a.FirstName != "" {
			guest.FirstName = a.FirstName
			break
		}
	}
	for _, a := range []*recovery.Address{c.ShippingAddress, c.BillingAddress} {
		if a != nil && a.LastName != "" {
			guest.LastName = a.LastName
			break
		}
	}
	return guest
}

func orderAddress(a *recovery.Address) recovery.Address {
	if a == nil {
		return recovery.Address{}
	}
	return recovery.Address{
		FirstName: a.FirstName,
		LastName:  a.LastName,
		Address1:  a.Address1,
		Address2:  a.Address2,
		City:      a.City,
		Province:  a.Province,
		Country:   a.Country,
		Zip:       a.Zip,
		Phone:     a.Phone,
	}
}

func orderShippingLine(lines []recovery.ShippingLine) recovery.OrderShippingLine {
	out := recovery.OrderShippingLine{
		Title:  defaultShipping,
		Price:  decimal.Zero.StringFixed(2),
		Code:   defaultShipping,
		Source: "shopify",
	}
	if len(lines) == 0 {
		return out
	}

	first := lines[0]
	if first.Title != "" {
		out.Title = first.Title
	}
	if first.Code != "" {
		out.Code = first.Code
	}
	switch {
	case first.Price.Valid:
		out.Price = first.Price.Decimal.StringFixed(2)
	case first.OriginalShopPrice.Valid:
		out.Price = first.OriginalShopPrice.Decimal.StringFixed(2)
	}
	return out
}
