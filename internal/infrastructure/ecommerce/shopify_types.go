package ecommerce

import "github.com/cartsync/backend/internal/domain/recovery"

// ---------------------------------------------------------------------------
// Shopify Admin REST envelopes
// ---------------------------------------------------------------------------

// ShopifyErrorResponse is the body Shopify returns with 4xx/5xx statuses.
// Errors is either a string or a field → messages object.
type ShopifyErrorResponse struct {
	Errors any `json:"errors"`
}

type shopifyOrdersResponse struct {
	Orders []recovery.Order `json:"orders"`
}

type shopifyOrderResponse struct {
	Order *recovery.Order `json:"order"`
}

type shopifyOrderRequest struct {
	Order *recovery.OrderRequest `json:"order"`
}

type shopifyCustomersResponse struct {
	Customers []recovery.Customer `json:"customers"`
}

type shopifyLocationsResponse struct {
	Locations []recovery.Location `json:"locations"`
}

type shopifyVariantResponse struct {
	Variant *recovery.Variant `json:"variant"`
}

type shopifyProductResponse struct {
	Product *recovery.Product `json:"product"`
}

type shopifyImagesResponse struct {
	Images []recovery.ProductImage `json:"images"`
}
