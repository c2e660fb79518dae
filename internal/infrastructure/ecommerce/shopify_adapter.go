package ecommerce

import (
	"bytes"
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

// maxResponseSize is the maximum allowed response size from the Shopify API (10MB)
const maxResponseSize = 10 * 1024 * 1024

// ShopifyAdapter implements recovery.OrderPlatform over the Shopify Admin REST API
type ShopifyAdapter struct {
	config     *ShopifyConfig
	httpClient *http.Client
}

// NewShopifyAdapter creates a new Shopify adapter with the given configuration
func NewShopifyAdapter(config *ShopifyConfig) (*ShopifyAdapter, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &ShopifyAdapter{
		config: config,
		httpClient: &http.Client{
			Timeout:   time.Duration(config.TimeoutSeconds) * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}, nil
}

var _ recovery.OrderPlatform = (*ShopifyAdapter)(nil)

// ---------------------------------------------------------------------------
// Orders
// ---------------------------------------------------------------------------

// ListRecentOrders returns the most recent orders in any status
func (a *ShopifyAdapter) ListRecentOrders(ctx context.Context, limit int) ([]recovery.Order, error) {
	query := url.Values{}
	query.Set("status", "any")
	query.Set("limit", strconv.Itoa(limit))

	var resp shopifyOrdersResponse
	if err := a.doRequest(ctx, http.MethodGet, "orders.json", query, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Orders, nil
}

// GetOrder returns a single order
func (a *ShopifyAdapter) GetOrder(ctx context.Context, orderID int64) (*recovery.Order, error) {
	var resp shopifyOrderResponse
	if err := a.doRequest(ctx, http.MethodGet, "orders/"+strconv.FormatInt(orderID, 10)+".json", nil, nil, &resp); err != nil {
		return nil, err
	}
	if resp.Order == nil {
		return nil, fmt.Errorf("%w: shopify order %d missing from response", recovery.ErrInvalidResponse, orderID)
	}
	return resp.Order, nil
}

// CreateOrder submits a new order
func (a *ShopifyAdapter) CreateOrder(ctx context.Context, req *recovery.OrderRequest) (*recovery.Order, error) {
	var resp shopifyOrderResponse
	if err := a.doRequest(ctx, http.MethodPost, "orders.json", nil, shopifyOrderRequest{Order: req}, &resp); err != nil {
		return nil, err
	}
	if resp.Order == nil || resp.Order.ID == 0 {
		return nil, fmt.Errorf("%w: shopify order creation returned no order", recovery.ErrInvalidResponse)
	}
	return resp.Order, nil
}

// ---------------------------------------------------------------------------
// Customers
// ---------------------------------------------------------------------------

// SearchCustomers finds customers with a "field:value" search query
func (a *ShopifyAdapter) SearchCustomers(ctx context.Context, q recovery.CustomerQuery) ([]recovery.Customer, error) {
	query := url.Values{}
	query.Set("query", q.Field+":"+q.Value)

	var resp shopifyCustomersResponse
	if err := a.doRequest(ctx, http.MethodGet, "customers/search.json", query, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Customers, nil
}

// ---------------------------------------------------------------------------
// Catalog and inventory
// ---------------------------------------------------------------------------

// ListLocations returns the shop's inventory locations
func (a *ShopifyAdapter) ListLocations(ctx context.Context) ([]recovery.Location, error) {
	var resp shopifyLocationsResponse
	if err := a.doRequest(ctx, http.MethodGet, "locations.json", nil, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Locations, nil
}

// GetVariant returns a product variant
func (a *ShopifyAdapter) GetVariant(ctx context.Context, variantID int64) (*recovery.Variant, error) {
	var resp shopifyVariantResponse
	if err := a.doRequest(ctx, http.MethodGet, "variants/"+strconv.FormatInt(variantID, 10)+".json", nil, nil, &resp); err != nil {
		return nil, err
	}
	if resp.Variant == nil {
		return nil, fmt.Errorf("%w: shopify variant %d missing from response", recovery.ErrInvalidResponse, variantID)
	}
	return resp.Variant, nil
}

// GetProduct returns a product
func (a *ShopifyAdapter) GetProduct(ctx context.Context, productID int64) (*recovery.Product, error) {
	var resp shopifyProductResponse
	if err := a.doRequest(ctx, http.MethodGet, "products/"+strconv.FormatInt(productID, 10)+".json", nil, nil, &resp); err != nil {
		return nil, err
	}
	if resp.Product == nil {
		return nil, fmt.Errorf("%w: shopify product %d missing from response", recovery.ErrInvalidResponse, productID)
	}
	return resp.Product, nil
}

// ListProductImages returns the images of a product
func (a *ShopifyAdapter) ListProductImages(ctx context.Context, productID int64) ([]recovery.ProductImage, error) {
	var resp shopifyImagesResponse
	if err := a.doRequest(ctx, http.MethodGet, "products/"+strconv.FormatInt(productID, 10)+"/images.json", nil, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Images, nil
}

// AdjustInventory changes the available quantity of an inventory item at a location
func (a *ShopifyAdapter) AdjustInventory(ctx context.Context, adj recovery.InventoryAdjustment) error {
	return a.doRequest(ctx, http.MethodPost, "inventory_levels/adjust.json", nil, adj, nil)
}

// ---------------------------------------------------------------------------
// Transport
// ---------------------------------------------------------------------------

// doRequest performs an Admin API call. body, when not nil, is sent as JSON;
// out, when not nil, receives the decoded response.
func (a *ShopifyAdapter) doRequest(ctx context.Context, method, resource string, query url.Values, body, out any) error {
	endpoint := a.config.AdminURL(resource)
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("shopify: failed to encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("shopify: failed to create request: %w", err)
	}
	req.Header.Set("X-Shopify-Access-Token", a.config.AccessToken)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: shopify: %v", recovery.ErrCollaboratorUnavailable, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return fmt.Errorf("%w: shopify: failed to read response: %v", recovery.ErrCollaboratorUnavailable, err)
	}

	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%w: shopify %s", recovery.ErrNotFound, resource)
	}
	if resp.StatusCode >= 400 {
		var errResp ShopifyErrorResponse
		if json.Unmarshal(respBody, &errResp) == nil && errResp.Errors != nil {
			return fmt.Errorf("%w: shopify HTTP %d: %v", recovery.ErrCollaboratorRequestFailed, resp.StatusCode, errResp.Errors)
		}
		return fmt.Errorf("%w: shopify HTTP %d", recovery.ErrCollaboratorRequestFailed, resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("%w: shopify: %v", recovery.ErrInvalidResponse, err)
	}
	return nil
}
