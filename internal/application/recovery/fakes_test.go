package recovery

import (
	"context"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/cartsync/backend/internal/domain/recovery"
	"github.com/cartsync/backend/internal/infrastructure/ledger"
)

// =============================================================================
// Fakes
// =============================================================================

// fakePlatform is an in-memory storefront
type fakePlatform struct {
	mu sync.Mutex

	orders    []recovery.Order
	customers map[string][]recovery.Customer // "field:value" → customers
	locations []recovery.Location
	variants  map[int64]*recovery.Variant
	products  map[int64]*recovery.Product
	images    map[int64][]recovery.ProductImage

	listOrdersErr   error
	searchErr       error
	createErr       error
	locationsErr    error
	adjustErr       map[int64]error // inventory item → error
	createDelay     time.Duration
	created         []*recovery.OrderRequest
	adjustments     []recovery.InventoryAdjustment
	customerQueries []recovery.CustomerQuery
	nextOrderID     int64
}

func newFakePlatform() *fakePlatform {
	return &fakePlatform{
		customers:   make(map[string][]recovery.Customer),
		locations:   []recovery.Location{{ID: 11, Name: "Main", Active: true}},
		variants:    make(map[int64]*recovery.Variant),
		products:    make(map[int64]*recovery.Product),
		images:      make(map[int64][]recovery.ProductImage),
		adjustErr:   make(map[int64]error),
		nextOrderID: 9000,
	}
}

func (p *fakePlatform) ListRecentOrders(ctx context.Context, limit int) ([]recovery.Order, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.listOrdersErr != nil {
		return nil, p.listOrdersErr
	}
	orders := make([]recovery.Order, len(p.orders))
	copy(orders, p.orders)
	if len(orders) > limit {
		orders = orders[:limit]
	}
	return orders, nil
}

func (p *fakePlatform) GetOrder(ctx context.Context, orderID int64) (*recovery.Order, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := range p.orders {
		if p.orders[i].ID == orderID {
			o := p.orders[i]
			return &o, nil
		}
	}
	return nil, recovery.ErrNotFound
}

func (p *fakePlatform) SearchCustomers(ctx context.Context, q recovery.CustomerQuery) ([]recovery.Customer, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.customerQueries = append(p.customerQuries, q)
	if p.searchErr != nil {
		return nil, p.searchErr
	}
	return p.customers[q.Field+":"+q.Value], nil
}

func (p *fakePlatform) CreateOrder(ctx context.Context, req *recovery.OrderRequest) (*recovery.Order, error) {
	if p.createDelay > 0 {
		time.Sleep(p.createDelay)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.createErr != nil {
		return nil, p.createErr
	}
	p.created = append(p.created, req)
	p.nextOrderID++

	order := recovery.Order{ID: p.nextOrderID, Name: "#" + strconv.FormatInt(p.nextOrderID, 10), Email: req.Email, Phone: req.Phone}
	for _, li := range req.LineItems {
		order.LineItems = append(order.LineItems, recovery.LineItem{VariantID: li.VariantID, Quantity: li.Quantity, Title: li.Title})
	}
	return &order, nil
}

func (p *fakePlatform) ListLocations(ctx context.Context) ([]recovery.Location, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.locations, p.locationsErr
}

func (p *fakePlatform) GetVariant(ctx context.Context, variantID int64) (*recovery.Variant, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	v, ok := p.variants[variantID]
	if !ok {
		return nil, recovery.ErrNotFound
	}
	return v, nil
}

func (p *fakePlatform) GetProduct(ctx context.Context, productID int64) (*recovery.Product, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	pr, ok := p.products[productID]
	if !ok {
		return nil, recovery.ErrNotFound
	}
	return pr, nil
}

func (p *fakePlatform) ListProductImages(ctx context.Context, productID int64) ([]recovery.ProductImage, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.images[productID], nil
}

func (p *fakePlatform) AdjustInventory(ctx context.Context, adj recovery.InventoryAdjustment) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.adjustErr[adj.InventoryItemID]; err != nil {
		return err
	}
	p.adjustments = append(p.adjustments, adj)
	return nil
}

func (p *fakePlatform) createdOrders() []*recovery.OrderRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*recovery.OrderRequest(nil), p.created...)
}

// fakeGateway returns a fixed list of payments
type fakeGateway struct {
	mu       sync.Mutex
	payments []recovery.Payment
	err      error
	from, to time.Time
	calls    int
}

func (g *fakeGateway) ListPayments(ctx context.Context, from, to time.Time, count int) ([]recovery.Payment, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	g.from, g.to = from, to
	return g.payments, g.err
}

// recordingQueue collects enqueued jobs
type recordingQueue struct {
	mu   sync.Mutex
	jobs []*recovery.NotificationJob
	err  error
}

func (q *recordingQueue) Enqueue(job *recovery.NotificationJob) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.jobs = append(q.jobs, job)
	return nil
}

func (q *recordingQueue) kinds() []recovery.NotificationKind {
	q.mu.Lock()
	defer q.mu.Unlock()
	kinds := make([]recovery.NotificationKind, 0, len(q.jobs))
	for _, j := range q.jobs {
		kinds = append(kinds, j.Kind)
	}
	return kinds
}

// recordingNotifier collects sent messages
type recordingNotifier struct {
	mu   sync.Mutex
	sent []*recovery.Message
	err  error
}

func (n *recordingNotifier) Send(ctx context.Context, msg *recovery.Message) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.sent = append(n.sent, msg)
	return nil
}

// recordingMetrics counts recorded outcomes
type recordingMetrics struct {
	mu            sync.Mutex
	outcomes      map[recovery.Outcome]int
	notifications int
	adjustments   int
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{outcomes: make(map[recovery.Outcome]int)}
}

func (m *recordingMetrics) RecordReconciliation(_ context.Context, outcome recovery.Outcome, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outcomes[outcome]++
}

func (m *recordingMetrics) RecordNotification(context.Context, recovery.NotificationKind, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notifications++
}

func (m *recordingMetrics) RecordInventoryAdjustment(context.Context, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.adjustments++
}

func newTestLedger(t *testing.T) *ledger.MemoryLedger {
	t.Helper()
	l := ledger.NewMemoryLedger()
	t.Cleanup(func() { _ = l.Close() })
	return l
}

// =============================================================================
// Fixtures
// =============================================================================

var testNow = time.Date(2025, 6, 1, 15, 0, 0, 0, time.Local)

func testCheckout() *recovery.Checkout {
	return &recovery.Checkout{
		Token:      "chk-1",
		CartToken:  "cart-1",
		Email:      "asha@example.com",
		Phone:      "",
		Currency:   "INR",
		TotalPrice: decimal.RequireFromString("499.00"),
		TotalTax:   decimal.RequireFromString("76.12"),
		ShippingAddress: &recovery.Address{
			FirstName:   "Asha",
			LastName:    "Rao",
			Address1:    "1 MG Road",
			City:        "Pune",
			Country:     "India",
			CountryCode: "IN",
			Zip:         "411001",
			Phone:       "98765 43210",
		},
		LineItems: []recovery.LineItem{
			{VariantID: 21, ProductID: 31, Title: "Mug", Quantity: 2, Price: decimal.RequireFromString("249.5")},
		},
		ShippingLines: []recovery.ShippingLine{
			{Title: "Express", Code: "EXP", Price: decimal.NewNullDecimal(decimal.RequireFromString("0"))},
		},
		TaxLines: []recovery.TaxLine{
			{Title: "GST", Rate: 0.18, Price: decimal.RequireFromString("76.12")},
		},
	}
}

func capturedPayment(id string, created time.Time, cancelURL string) recovery.Payment {
	return recovery.Payment{
		ID:        id,
		Amount:    49900,
		Currency:  "INR",
		Status:    recovery.PaymentStatusCaptured,
		Contact:   "+919876543210",
		CreatedAt: created.Unix(),
		Notes:     recovery.Notes{CancelURL: cancelURL},
	}
}
