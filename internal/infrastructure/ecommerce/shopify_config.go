package ecommerce

import (
	"errors"
	"strings"
)

// ShopifyConfig holds configuration for the Shopify Admin REST API
type ShopifyConfig struct {
	// Domain is the shop's myshopify.com domain
	Domain string
	// AccessToken is the Admin API access token of the custom app
	AccessToken string
	// APIVersion is the dated Admin API version, e.g. 2025-04
	APIVersion string
	// BaseURL overrides https://{Domain}; used by tests
	BaseURL string
	// TimeoutSeconds is the HTTP request timeout
	TimeoutSeconds int
}

// ShopifyDefaultAPIVersion is the Admin API version used when none is configured
const ShopifyDefaultAPIVersion = "2025-04"

// Errors for Shopify configuration
var (
	ErrShopifyConfigMissingDomain      = errors.New("shopify: shop domain is required")
	ErrShopifyConfigMissingAccessToken = errors.New("shopify: access token is required")
)

// NewShopifyConfig creates a new Shopify configuration with defaults
func NewShopifyConfig(domain, accessToken string) *ShopifyConfig {
	return &ShopifyConfig{
		Domain:         domain,
		AccessToken:    accessToken,
		APIVersion:     ShopifyDefaultAPIVersion,
		TimeoutSeconds: 30,
	}
}

// Validate validates the Shopify configuration and fills in defaults
func (c *ShopifyConfig) Validate() error {
	if c.Domain == "" && c.BaseURL == "" {
		return ErrShopifyConfigMissingDomain
	}
	if c.AccessToken == "" {
		return ErrShopifyConfigMissingAccessToken
	}
	if c.APIVersion == "" {
		c.APIVersion = ShopifyDefaultAPIVersion
	}
	if c.BaseURL == "" {
		c.BaseURL = "https://" + strings.TrimPrefix(strings.TrimPrefix(c.Domain, "https://"), "http://")
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	if c.TimeoutSeconds <= 0 {
		c.TimeoutSeconds = 30
	}
	return nil
}

// AdminURL returns the versioned Admin API URL for resource, e.g. "orders.json"
func (c *ShopifyConfig) AdminURL(resource string) string {
	return c.BaseURL + "/admin/api/" + c.APIVersion + "/" + strings.TrimPrefix(resource, "/")
}
