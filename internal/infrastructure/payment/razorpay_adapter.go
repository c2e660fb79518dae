package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/cartsync/backend/internal/domain/recovery"
)

// maxResponseSize is the maximum allowed response size from Razorpay (10MB)
const maxResponseSize = 10 * 1024 * 1024

// RazorpayAdapter implements recovery.PaymentGateway for Razorpay
type RazorpayAdapter struct {
	config     *RazorpayConfig
	httpClient *http.Client
}

// NewRazorpayAdapter creates a new Razorpay adapter
func NewRazorpayAdapter(config *RazorpayConfig) (*RazorpayAdapter, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &RazorpayAdapter{
		config: config,
		httpClient: &http.Client{
			Timeout:   time.Duration(config.TimeoutSeconds) * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}, nil
}

var _ recovery.PaymentGateway = (*RazorpayAdapter)(nil)

// ListPayments returns up to count payments created in [from, to]. Razorpay
// serves at most 100 payments per call; larger counts are clamped.
func (a *RazorpayAdapter) ListPayments(ctx context.Context, from, to time.Time, count int) ([]recovery.Payment, error) {
	if count <= 0 || count > razorpayMaxCount {
		count = razorpayMaxCount
	}

	query := url.Values{}
	query.Set("from", strconv.FormatInt(from.Unix(), 10))
	query.Set("to", strconv.FormatInt(to.Unix(), 10))
	query.Set("count", strconv.Itoa(count))

	body, err := a.doRequest(ctx, "/v1/payments?"+query.Encode())
	if err != nil {
		return nil, err
	}

	var collection razorpayCollection
	if err := json.Unmarshal(body, &collection); err != nil {
		return nil, fmt.Errorf("%w: razorpay: %v", recovery.ErrInvalidResponse, err)
	}
	return collection.Items, nil
}

// doRequest performs an authenticated GET against the API
func (a *RazorpayAdapter) doRequest(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.config.BaseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("razorpay: failed to create request: %w", err)
	}
	req.SetBasicAuth(a.config.KeyID, a.config.KeySecret)
	req.Header.Set("Accept", "application/json")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: razorpay: %v", recovery.ErrCollaboratorUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("%w: razorpay: failed to read response: %v", recovery.ErrCollaboratorUnavailable, err)
	}

	if resp.StatusCode >= 400 {
		var errResp RazorpayErrorResponse
		if json.Unmarshal(body, &errResp) == nil && errResp.Error.Code != "" {
			return nil, fmt.Errorf("%w: razorpay HTTP %d: %s: %s",
				recovery.ErrCollaboratorRequestFailed, resp.StatusCode, errResp.Error.Code, errResp.Error.Description)
		}
		return nil, fmt.Errorf("%w: razorpay HTTP %d", recovery.ErrCollaboratorRequestFailed, resp.StatusCode)
	}

	return body, nil
}
