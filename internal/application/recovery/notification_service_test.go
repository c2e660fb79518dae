package recovery

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cartsync/backend/internal/domain/recovery"
	"github.com/cartsync/backend/internal/infrastructure/ledger"
)

var testCampaigns = Campaigns{
	Reminder:          "cart_reminder",
	OrderConfirmation: "order_confirmed",
	LowStock:          "low_stock",
	Fulfillment:       "order_shipped",
}

type notifierFixture struct {
	platform *fakePlatform
	notifier *recordingNotifier
	ledger   *ledger.MemoryLedger
	metrics  *recordingMetrics
	service  *NotificationService
}

func newNotifierFixture(t *testing.T, campaigns Campaigns) *notifierFixture {
	t.Helper()
	f := &notifierFixture{
		platform: newFakePlatform(),
		notifier: &recordingNotifier{},
		ledger:   newTestLedger(t),
		metrics:  newRecordingMetrics(),
	}
	f.service = NewNotificationService(NotificationServiceConfig{
		Platform:         f.platform,
		Notifier:         f.notifier,
		Processed:        f.ledger,
		Metrics:          f.metrics,
		Campaigns:        campaigns,
		StoreURL:         "https://shop.example",
		AdminDestination: "+919999999999",
		FallbackImageURL: "https://cdn.example/fallback.jpg",
	})
	return f
}

func testOrder() *recovery.Order {
	return &recovery.Order{
		ID:             4001,
		Name:           "#1042",
		TotalPrice:     decimal.RequireFromString("1299.5"),
		OrderStatusURL: "https://shop.example/12345/orders/abc/authenticate?key=xyz",
		ShippingAddress: &recovery.Address{
			FirstName:   "Asha",
			Phone:       "098765 43210",
			CountryCode: "IN",
		},
		LineItems: []recovery.LineItem{{VariantID: 21, ProductID: 31, Quantity: 1}},
	}
}

// ---------------------------------------------------------------------------
// Reminder
// ---------------------------------------------------------------------------

func TestHandle_Reminder(t *testing.T) {
	f := newNotifierFixture(t, testCampaigns)
	f.platform.variants[21] = &recovery.Variant{ID: 21, ImageID: 702}
	f.platform.images[31] = []recovery.ProductImage{
		{ID: 701, Src: "https://cdn.example/a.jpg?v=1"},
		{ID: 702, Src: "https://cdn.example/b.jpg?v=2"},
	}

	err := f.service.Handle(context.Background(), recovery.NewReminderJob(testCheckout()))
	require.NoError(t, err)

	require.Len(t, f.notifier.sent, 1)
	msg := f.notifier.sent[0]
	assert.Equal(t, "cart_reminder", msg.Campaign)
	assert.Equal(t, "+919876543210", msg.Destination)
	assert.Equal(t, "Asha", msg.UserName)
	assert.Equal(t, "organic", msg.Source)
	assert.Equal(t, []string{"Asha", "499.00", "checkouts/cn/cart-1/information"}, msg.TemplateParams)
	assert.Equal(t, &recovery.Media{URL: "https://cdn.example/b.jpg", Filename: "product.jpg"}, msg.Media)
	assert.Equal(t, "checkouts/cn/cart-1/information", msg.ButtonURL)
	assert.Equal(t, 1, f.metrics.notifications)
}

func TestHandle_ReminderImage(t *testing.T) {
	tests := []struct {
		name     string
		variant  *recovery.Variant
		images   []recovery.ProductImage
		expected string
	}{
		{
			name:     "no images falls back",
			expected: "https://cdn.example/fallback.jpg",
		},
		{
			name:     "variant without image uses first",
			variant:  &recovery.Variant{ID: 21},
			images:   []recovery.ProductImage{{ID: 1, Src: "https://cdn.example/first.jpg?x"}, {ID: 2, Src: "https://cdn.example/second.jpg"}},
			expected: "https://cdn.example/first.jpg",
		},
		{
			name:     "variant lookup failure uses first",
			images:   []recovery.ProductImage{{ID: 1, Src: "https://cdn.example/first.jpg"}},
			expected: "https://cdn.example/first.jpg",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newNotifierFixture(t, testCampaigns)
			if tt.variant != nil {
				f.platform.variants[tt.variant.ID] = tt.variant
			}
			f.platform.images[31] = tt.images

			require.NoError(t, f.service.Handle(context.Background(), recovery.NewReminderJob(testCheckout())))
			require.Len(t, f.notifier.sent, 1)
			assert.Equal(t, tt.expected, f.notifier.sent[0].Media.URL)
		})
	}
}

func TestHandle_ReminderSkipped(t *testing.T) {
	tests := []struct {
		name      string
		campaigns Campaigns
		checkout  func() *recovery.Checkout
	}{
		{
			name:      "campaign disabled",
			campaigns: Campaigns{},
			checkout:  testCheckout,
		},
		{
			name:      "no contact",
			campaigns: testCampaigns,
			checkout: func() *recovery.Checkout {
				c := testCheckout()
				c.Email = ""
				c.ShippingAddress.Phone = ""
				return c
			},
		},
		{
			name:      "email only",
			campaigns: testCampaigns,
			checkout: func() *recovery.Checkout {
				c := testCheckout()
				c.ShippingAddress.Phone = ""
				return c
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newNotifierFixture(t, tt.campaigns)
			err := f.service.Handle(context.Background(), recovery.NewReminderJob(tt.checkout()))
			require.NoError(t, err)
			assert.Empty(t, f.notifier.sent)
		})
	}
}

// ---------------------------------------------------------------------------
// Order confirmation
// ---------------------------------------------------------------------------

func TestHandle_OrderConfirmation(t *testing.T) {
	f := newNotifierFixture(t, testCampaigns)
	f.platform.images[31] = []recovery.ProductImage{
		{ID: 1, Src: "https://cdn.example/other.jpg", VariantIDs: []int64{20}},
		{ID: 2, Src: "https://cdn.example/mine.jpg?v=3", VariantIDs: []int64{21, 22}},
	}
	ctx := context.Background()

	require.NoError(t, f.service.Handle(ctx, recovery.NewOrderConfirmationJob(testOrder())))

	require.Len(t, f.notifier.sent, 1)
	msg := f.notifier.sent[0]
	assert.Equal(t, "order_confirmed", msg.Campaign)
	assert.Equal(t, "+919876543210", msg.Destination)
	assert.Equal(t, []string{"Asha", "1042", "₹1299.50", "12345/orders/abc/authenticate"}, msg.TemplateParams)
	assert.Equal(t, &recovery.Media{URL: "https://cdn.example/mine.jpg", Filename: "order.jpg"}, msg.Media)
	assert.Equal(t, "12345/orders/abc/authenticate", msg.ButtonURL)

	done, err := f.ledger.Contains(ctx, recovery.ProcessedOrders, "4001")
	require.NoError(t, err)
	assert.True(t, done)
}

func TestHandle_OrderConfirmationFailures(t *testing.T) {
	t.Run("missing phone", func(t *testing.T) {
		f := newNotifierFixture(t, testCampaigns)
		o := testOrder()
		o.ShippingAddress.Phone = ""

		err := f.service.Handle(context.Background(), recovery.NewOrderConfirmationJob(o))
		assert.ErrorIs(t, err, recovery.ErrMissingContact)
		assert.Empty(t, f.notifier.sent)
	})

	t.Run("send fails leaves order unprocessed", func(t *testing.T) {
		f := newNotifierFixture(t, testCampaigns)
		f.notifier.err = recovery.ErrCollaboratorUnavailable
		ctx := context.Background()

		err := f.service.Handle(ctx, recovery.NewOrderConfirmationJob(testOrder()))
		assert.ErrorIs(t, err, recovery.ErrCollaboratorUnavailable)

		done, err := f.ledger.Contains(ctx, recovery.ProcessedOrders, "4001")
		require.NoError(t, err)
		assert.False(t, done)
		assert.Equal(t, 1, f.metrics.notifications)
	})

	t.Run("nil order", func(t *testing.T) {
		f := newNotifierFixture(t, testCampaigns)
		err := f.service.Handle(context.Background(), &recovery.NotificationJob{Kind: recovery.NotificationOrderConfirmation})
		assert.ErrorIs(t, err, recovery.ErrIncompleteEvent)
	})
}

// ---------------------------------------------------------------------------
// Low stock
// ---------------------------------------------------------------------------

func TestHandle_LowStock(t *testing.T) {
	f := newNotifierFixture(t, testCampaigns)
	o := testOrder()
	o.LineItems = []recovery.LineItem{
		{VariantID: 21, ProductID: 31, Quantity: 1},
		{VariantID: 22, ProductID: 32, Quantity: 1},
	}
	f.platform.orders = []recovery.Order{*o}
	f.platform.products[31] = &recovery.Product{ID: 31, Title: "Mug", BodyHTML: "<div><p> MUG-001 </p></div>"}
	f.platform.products[32] = &recovery.Product{ID: 32, Title: "Plate"}
	f.platform.variants[21] = &recovery.Variant{ID: 21, InventoryQuantity: 3}
	f.platform.variants[22] = &recovery.Variant{ID: 22, InventoryQuantity: 4, Option1: "Blue"}

	require.NoError(t, f.service.Handle(context.Background(), recovery.NewLowStockJob(o)))

	require.Len(t, f.notifier.sent, 1)
	msg := f.notifier.sent[0]
	assert.Equal(t, "low_stock", msg.Campaign)
	assert.Equal(t, "+919999999999", msg.Destination)
	assert.Equal(t, "Admin", msg.UserName)
	assert.Equal(t, "low_stock", msg.Source)
	assert.Equal(t, []string{"Mug", "MUG-001", "Default Variant", "3", "4", "admin/products/31?variant=21"}, msg.TemplateParams)
	assert.Equal(t, "https://cdn.example/fallback.jpg", msg.Media.URL)
}

func TestHandle_LowStockPartialFailure(t *testing.T) {
	f := newNotifierFixture(t, testCampaigns)
	o := testOrder()
	o.LineItems = []recovery.LineItem{
		{VariantID: 99, ProductID: 99, Quantity: 1},
		{VariantID: 21, ProductID: 31, Quantity: 1},
	}
	f.platform.orders = []recovery.Order{*o}
	f.platform.products[31] = &recovery.Product{ID: 31, Title: "Mug"}
	f.platform.variants[21] = &recovery.Variant{ID: 21, InventoryQuantity: 0, Option1: "Red"}

	err := f.service.Handle(context.Background(), recovery.NewLowStockJob(o))
	assert.Error(t, err)

	require.Len(t, f.notifier.sent, 1, "later items are still checked")
	assert.Equal(t, []string{"Mug", "No code available", "Red", "0", "4", "admin/products/31?variant=21"}, f.notifier.sent[0].TemplateParams)
}

func TestHandle_LowStockSkipped(t *testing.T) {
	f := newNotifierFixture(t, Campaigns{Reminder: "r"})
	require.NoError(t, f.service.Handle(context.Background(), recovery.NewLowStockJob(testOrder())))
	assert.Empty(t, f.notifier.sent)
}

func TestProductCode(t *testing.T) {
	tests := []struct {
		name string
		html string
		want string
	}{
		{"empty", "", "No code available"},
		{"no paragraph", "<div>Plain</div>", "No code available"},
		{"paragraph", "<p>SKU-7</p>", "SKU-7"},
		{"nested", "<section><span>x</span><p>  AB-12 </p></section>", "AB-12"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ProductCode(tt.html))
		})
	}
}

// ---------------------------------------------------------------------------
// Fulfillment
// ---------------------------------------------------------------------------

func TestHandle_Fulfillment(t *testing.T) {
	f := newNotifierFixture(t, testCampaigns)
	ful := &recovery.Fulfillment{
		ID:             8001,
		OrderID:        4001,
		Name:           "#1042.1",
		TrackingNumber: "AWB123",
		TrackingURL:    "https://track.example/AWB123",
		Destination:    &recovery.Address{FirstName: "Asha", Phone: "+1 415 555 0100", CountryCode: "US"},
	}
	ctx := context.Background()

	require.NoError(t, f.service.Handle(ctx, recovery.NewFulfillmentJob(ful)))

	require.Len(t, f.notifier.sent, 1)
	msg := f.notifier.sent[0]
	assert.Equal(t, "order_shipped", msg.Campaign)
	assert.Equal(t, "+14155550100", msg.Destination)
	assert.Equal(t, "fulfillment", msg.Source)
	assert.Equal(t, []string{"Asha", "1042", "AWB123", "https://track.example/AWB123"}, msg.TemplateParams)
	assert.Equal(t, "https://track.example/AWB123", msg.ButtonURL)

	done, err := f.ledger.Contains(ctx, recovery.ProcessedFulfillments, "8001")
	require.NoError(t, err)
	assert.True(t, done)
}

func TestHandle_FulfillmentDefaults(t *testing.T) {
	f := newNotifierFixture(t, testCampaigns)
	ful := &recovery.Fulfillment{ID: 8002, Destination: &recovery.Address{Phone: "9876543210"}}

	require.NoError(t, f.service.Handle(context.Background(), recovery.NewFulfillmentJob(ful)))

	require.Len(t, f.notifier.sent, 1)
	assert.Equal(t, "+919876543210", f.notifier.sent[0].Destination)
	assert.Equal(t, []string{"Customer", "Unknown Order", "Unknown fulfillment", ""}, f.notifier.sent[0].TemplateParams)
}

func TestHandle_FulfillmentWithoutDestination(t *testing.T) {
	f := newNotifierFixture(t, testCampaigns)
	err := f.service.Handle(context.Background(), recovery.NewFulfillmentJob(&recovery.Fulfillment{ID: 8003}))
	assert.ErrorIs(t, err, recovery.ErrMissingContact)
}

func TestHandle_UnknownKind(t *testing.T) {
	f := newNotifierFixture(t, testCampaigns)
	err := f.service.Handle(context.Background(), &recovery.NotificationJob{Kind: "SMOKE_SIGNAL"})
	assert.ErrorIs(t, err, recovery.ErrUnknownNotification)

	assert.ErrorIs(t, f.service.Handle(context.Background(), nil), recovery.ErrUnknownNotification)
}

func TestSend_WrapsError(t *testing.T) {
	f := newNotifierFixture(t, testCampaigns)
	boom := errors.New("boom")
	f.notifier.err = boom

	err := f.service.Handle(context.Background(), recovery.NewReminderJob(testCheckout()))
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "send checkout_reminder")
}
