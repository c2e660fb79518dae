package payment

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cartsync/backend/internal/domain/recovery"
)

func TestRazorpayConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  *RazorpayConfig
		wantErr error
	}{
		{"valid config", &RazorpayConfig{KeyID: "rzp_test", KeySecret: "secret"}, nil},
		{"missing key id", &RazorpayConfig{KeySecret: "secret"}, ErrRazorpayMissingKeyID},
		{"missing key secret", &RazorpayConfig{KeyID: "rzp_test"}, ErrRazorpayMissingKeySecret},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, RazorpayDefaultBaseURL, tt.config.BaseURL)
			assert.Equal(t, 30, tt.config.TimeoutSeconds)
		})
	}
}

func newTestRazorpayAdapter(t *testing.T, handler http.HandlerFunc) *RazorpayAdapter {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	adapter, err := NewRazorpayAdapter(&RazorpayConfig{KeyID: "rzp_test", KeySecret: "secret", BaseURL: server.URL})
	require.NoError(t, err)
	return adapter
}

func TestRazorpayAdapter_ListPayments(t *testing.T) {
	from := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	to := from.Add(10 * time.Hour)

	t.Run("queries the window with basic auth", func(t *testing.T) {
		adapter := newTestRazorpayAdapter(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/v1/payments", r.URL.Path)
			assert.Equal(t, "1748736000", r.URL.Query().Get("from"))
			assert.Equal(t, "1748772000", r.URL.Query().Get("to"))
			assert.Equal(t, "100", r.URL.Query().Get("count"))

			user, pass, ok := r.BasicAuth()
			assert.True(t, ok)
			assert.Equal(t, "rzp_test", user)
			assert.Equal(t, "secret", pass)

			_, _ = w.Write([]byte(`{"entity":"collection","count":2,"items":[
				{"id":"pay_A","amount":49900,"currency":"INR","status":"captured","contact":"+919876543210",
				 "created_at":1748770000,"notes":{"cancelUrl":"https://shop/checkouts/cn/cart-1"}},
				{"id":"pay_B","amount":100,"status":"failed","created_at":1748760000,"notes":[]}
			]}`))
		})

		payments, err := adapter.ListPayments(context.Background(), from, to, 100)
		require.NoError(t, err)
		require.Len(t, payments, 2)

		assert.Equal(t, "pay_A", payments[0].ID)
		assert.Equal(t, int64(49900), payments[0].Amount)
		assert.Equal(t, "https://shop/checkouts/cn/cart-1", payments[0].Notes.CancelURL)
		assert.Equal(t, "499", payments[0].AmountMajor().String())
		assert.Empty(t, payments[1].Notes.CancelURL)
	})

	t.Run("clamps count to the page limit", func(t *testing.T) {
		adapter := newTestRazorpayAdapter(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "100", r.URL.Query().Get("count"))
			_, _ = w.Write([]byte(`{"entity":"collection","count":0,"items":[]}`))
		})

		payments, err := adapter.ListPayments(context.Background(), from, to, 500)
		require.NoError(t, err)
		assert.Empty(t, payments)
	})

	t.Run("auth failure maps to ErrCollaboratorRequestFailed", func(t *testing.T) {
		adapter := newTestRazorpayAdapter(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":{"code":"BAD_REQUEST_ERROR","description":"Authentication failed"}}`))
		})

		_, err := adapter.ListPayments(context.Background(), from, to, 100)
		require.ErrorIs(t, err, recovery.ErrCollaboratorRequestFailed)
		assert.Contains(t, err.Error(), "Authentication failed")
	})

	t.Run("malformed body", func(t *testing.T) {
		adapter := newTestRazorpayAdapter(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`not json`))
		})

		_, err := adapter.ListPayments(context.Background(), from, to, 100)
		assert.ErrorIs(t, err, recovery.ErrInvalidResponse)
	})

	t.Run("unreachable gateway", func(t *testing.T) {
		server := httptest.NewServer(http.NotFoundHandler())
		base := server.URL
		server.Close()

		adapter, err := NewRazorpayAdapter(&RazorpayConfig{KeyID: "k", KeySecret: "s", BaseURL: base})
		require.NoError(t, err)

		_, err = adapter.ListPayments(context.Background(), from, to, 100)
		assert.ErrorIs(t, err, recovery.ErrCollaboratorUnavailable)
	})
}
