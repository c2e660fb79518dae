package messaging

import (
	"errors"
	"strings"
)

// AiSensyConfig holds configuration for the AiSensy campaign API
type AiSensyConfig struct {
	// APIKey authenticates campaign calls
	APIKey string
	// BaseURL is the API root, https://backend.aisensy.com by default
	BaseURL string
	// TimeoutSeconds is the HTTP request timeout
	TimeoutSeconds int
}

// AiSensyDefaultBaseURL is the production API root
const AiSensyDefaultBaseURL = "https://backend.aisensy.com"

// aiSensyCampaignPath is the campaign send endpoint
const aiSensyCampaignPath = "/campaign/t1/api/v2"

// ErrAiSensyMissingAPIKey is returned when no API key is configured
var ErrAiSensyMissingAPIKey = errors.New("aisensy: API key is required")

// Validate validates the configuration and fills in defaults
func (c *AiSensyConfig) Validate() error {
	if c.APIKey == "" {
		return ErrAiSensyMissingAPIKey
	}
	if c.BaseURL == "" {
		c.BaseURL = AiSensyDefaultBaseURL
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	if c.TimeoutSeconds <= 0 {
		c.TimeoutSeconds = 30
	}
	return nil
}
