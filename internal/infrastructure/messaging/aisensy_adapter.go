package messaging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/cartsync/backend/internal/domain/recovery"
)

// maxResponseSize is the maximum allowed response size from AiSensy (1MB)
const maxResponseSize = 1024 * 1024

// ErrMissingDestination is returned for messages without a destination
var ErrMissingDestination = errors.New("aisensy: message has no destination")

// AiSensyNotifier implements recovery.Notifier over AiSensy WhatsApp campaigns
type AiSensyNotifier struct {
	config     *AiSensyConfig
	httpClient *http.Client
}

// NewAiSensyNotifier creates a new AiSensy notifier
func NewAiSensyNotifier(config *AiSensyConfig) (*AiSensyNotifier, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &AiSensyNotifier{
		config: config,
		httpClient: &http.Client{
			Timeout:   time.Duration(config.TimeoutSeconds) * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}, nil
}

var _ recovery.Notifier = (*AiSensyNotifier)(nil)

// Send delivers msg through its campaign
func (n *AiSensyNotifier) Send(ctx context.Context, msg *recovery.Message) error {
	if msg.Destination == "" {
		return ErrMissingDestination
	}

	payload, err := json.Marshal(n.buildRequest(msg))
	if err != nil {
		return fmt.Errorf("aisensy: failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.config.BaseURL+aiSensyCampaignPath, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("aisensy: failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: aisensy: %v", recovery.ErrCollaboratorUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return fmt.Errorf("%w: aisensy: failed to read response: %v", recovery.ErrCollaboratorUnavailable, err)
	}

	if resp.StatusCode >= 400 {
		var errResp AiSensyErrorResponse
		if json.Unmarshal(body, &errResp) == nil && (errResp.Message != "" || errResp.Error != "") {
			return fmt.Errorf("%w: aisensy HTTP %d: %s%s",
				recovery.ErrCollaboratorRequestFailed, resp.StatusCode, errResp.Message, errResp.Error)
		}
		return fmt.Errorf("%w: aisensy HTTP %d", recovery.ErrCollaboratorRequestFailed, resp.StatusCode)
	}
	return nil
}

func (n *AiSensyNotifier) buildRequest(msg *recovery.Message) *aiSensyCampaignRequest {
	params := msg.TemplateParams
	if params == nil {
		params = []string{}
	}

	req := &aiSensyCampaignRequest{
		APIKey:         n.config.APIKey,
		CampaignName:   msg.Campaign,
		Destination:    msg.Destination,
		UserName:       msg.UserName,
		Source:         msg.Source,
		TemplateParams: params,
	}
	if msg.Media != nil {
		req.Media = &aiSensyMedia{URL: msg.Media.URL, Filename: msg.Media.Filename}
	}
	if msg.ButtonURL != "" {
		req.Buttons = []aiSensyButton{{
			Type:       "button",
			SubType:    "url",
			Index:      "0",
			Parameters: []aiSensyButtonParameter{{Type: "text", Text: msg.ButtonURL}},
		}}
	}
	return req
}
