package recovery

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCheckout() *Checkout {
	return &Checkout{
		Token:      "chk_1",
		CartToken:  "cart_abc",
		Email:      "asha@example.com",
		Phone:      "+91 98765 43210",
		TotalPrice: decimal.RequireFromString("1299.00"),
		ShippingAddress: &Address{
			FirstName:   "Asha",
			Phone:       "9876543210",
			CountryCode: "IN",
		},
	}
}

func captured(id string, createdAt time.Time, contact string, amount int64, cancelURL string) Payment {
	return Payment{
		ID:        id,
		Amount:    amount,
		Status:    PaymentStatusCaptured,
		Contact:   contact,
		CreatedAt: createdAt.Unix(),
		Notes:     Notes{CancelURL: cancelURL},
	}
}

func TestSelectPayment(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	window := 120 * time.Minute

	tests := []struct {
		name     string
		payments []Payment
		wantID   string
	}{
		{
			name:     "phone and amount match",
			payments: []Payment{captured("pay_1", now.Add(-30*time.Minute), "+919876543210", 129900, "https://shop/cancel")},
			wantID:   "pay_1",
		},
		{
			name:     "cart token in cancel url matches regardless of amount",
			payments: []Payment{captured("pay_2", now.Add(-10*time.Minute), "+910000000000", 100, "https://shop/cart/cart_abc/cancel")},
			wantID:   "pay_2",
		},
		{
			name:     "phone matches but amount differs",
			payments: []Payment{captured("pay_3", now.Add(-10*time.Minute), "+919876543210", 129800, "https://shop/cancel")},
		},
		{
			name: "not captured",
			payments: []Payment{{
				ID: "pay_4", Amount: 129900, Status: "authorized", Contact: "+919876543210",
				CreatedAt: now.Add(-5 * time.Minute).Unix(), Notes: Notes{CancelURL: "https://shop/cart_abc"},
			}},
		},
		{
			name:     "missing cancel url note",
			payments: []Payment{captured("pay_5", now.Add(-5*time.Minute), "+919876543210", 129900, "")},
		},
		{
			name:     "older than window",
			payments: []Payment{captured("pay_6", now.Add(-121*time.Minute), "+919876543210", 129900, "https://shop/cart_abc")},
		},
		{
			name:     "window lower bound is inclusive",
			payments: []Payment{captured("pay_7", now.Add(-120*time.Minute), "+919876543210", 129900, "https://shop/cancel")},
			wantID:   "pay_7",
		},
		{
			name:     "created in the future",
			payments: []Payment{captured("pay_8", now.Add(time.Minute), "+919876543210", 129900, "https://shop/cart_abc")},
		},
		{
			name: "most recent match wins",
			payments: []Payment{
				captured("pay_old", now.Add(-60*time.Minute), "+919876543210", 129900, "https://shop/cancel"),
				captured("pay_new", now.Add(-5*time.Minute), "+919876543210", 129900, "https://shop/cancel"),
				captured("pay_mid", now.Add(-30*time.Minute), "+919876543210", 129900, "https://shop/cancel"),
			},
			wantID: "pay_new",
		},
		{
			name: "tie keeps first encountered",
			payments: []Payment{
				captured("pay_first", now.Add(-5*time.Minute), "+919876543210", 129900, "https://shop/cancel"),
				captured("pay_second", now.Add(-5*time.Minute), "+919876543210", 129900, "https://shop/cancel"),
			},
			wantID: "pay_first",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SelectPayment(testCheckout(), tt.payments, now, window)
			if tt.wantID == "" {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, tt.wantID, got.ID)
		})
	}
}

func TestSelectPayment_EmptyCartTokenNeverMatchesByToken(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	c := testCheckout()
	c.CartToken = ""
	payments := []Payment{captured("pay_1", now.Add(-time.Minute), "+910000000000", 1, "https://shop/anything")}

	assert.Nil(t, SelectPayment(c, payments, now, 2*time.Hour))
}

func TestSelectPayment_BillingPhoneMatches(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	c := &Checkout{
		CartToken:      "cart_x",
		TotalPrice:     decimal.RequireFromString("500"),
		BillingAddress: &Address{Phone: "091234 56789"},
	}
	payments := []Payment{captured("pay_b", now.Add(-time.Minute), "+91 91234 56789", 50000, "https://shop/cancel")}

	got := SelectPayment(c, payments, now, 2*time.Hour)
	require.NotNil(t, got)
	assert.Equal(t, "pay_b", got.ID)
}

func TestNotes_UnmarshalJSON(t *testing.T) {
	t.Run("object with cancel url", func(t *testing.T) {
		var p Payment
		err := json.Unmarshal([]byte(`{"id":"pay_1","amount":129900,"status":"captured","created_at":1748779200,"notes":{"cancelUrl":"https://shop/cart_abc","source":"checkout","attempt":2}}`), &p)
		require.NoError(t, err)
		assert.Equal(t, "https://shop/cart_abc", p.Notes.CancelURL)
		assert.Equal(t, "checkout", p.Notes.Values["source"])
		assert.NotContains(t, p.Notes.Values, "attempt")
	})

	t.Run("empty array", func(t *testing.T) {
		var p Payment
		err := json.Unmarshal([]byte(`{"id":"pay_2","notes":[]}`), &p)
		require.NoError(t, err)
		assert.Empty(t, p.Notes.CancelURL)
	})

	t.Run("null", func(t *testing.T) {
		var p Payment
		err := json.Unmarshal([]byte(`{"id":"pay_3","notes":null}`), &p)
		require.NoError(t, err)
		assert.Empty(t, p.Notes.CancelURL)
	})
}

func TestPayment_AmountMajor(t *testing.T) {
	p := Payment{Amount: 129950}
	assert.True(t, p.AmountMajor().Equal(decimal.RequireFromString("1299.50")))
}
