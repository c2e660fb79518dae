package payment

import (
	"errors"
	"strings"
)

// RazorpayConfig contains configuration for the Razorpay REST API
type RazorpayConfig struct {
	// KeyID is the API key ID used as the basic auth user
	KeyID string
	// KeySecret is the API key secret used as the basic auth password
	KeySecret string
	// BaseURL is the API root, https://api.razorpay.com by default
	BaseURL string
	// TimeoutSeconds is the HTTP request timeout
	TimeoutSeconds int
}

// RazorpayDefaultBaseURL is the production API root
const RazorpayDefaultBaseURL = "https://api.razorpay.com"

// razorpayMaxCount is the largest page the payments endpoint serves
const razorpayMaxCount = 100

// Errors for configuration validation
var (
	ErrRazorpayMissingKeyID     = errors.New("razorpay: missing key ID")
	ErrRazorpayMissingKeySecret = errors.New("razorpay: missing key secret")
)

// Validate validates the configuration and fills in defaults
func (c *RazorpayConfig) Validate() error {
	if c.KeyID == "" {
		return ErrRazorpayMissingKeyID
	}
	if c.KeySecret == "" {
		return ErrRazorpayMissingKeySecret
	}
	if c.BaseURL == "" {
		c.BaseURL = RazorpayDefaultBaseURL
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	if c.TimeoutSeconds <= 0 {
		c.TimeoutSeconds = 30
	}
	return nil
}
