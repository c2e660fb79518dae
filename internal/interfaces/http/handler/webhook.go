package handler

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"go.uber.org/zap"

	"github.com/cartsync/backend/internal/domain/recovery"
	"github.com/cartsync/backend/internal/infrastructure/logger"
	"github.com/cartsync/backend/internal/interfaces/http/dto"
)

// WebhookService accepts storefront events
type WebhookService interface {
	RecordCheckout(ctx context.Context, c *recovery.Checkout) (bool, error)
	AcceptOrder(ctx context.Context, o *recovery.Order) (bool, error)
	AcceptFulfillment(ctx context.Context, f *recovery.Fulfillment) (bool, error)
}

// WebhookHandler receives the storefront webhooks
type WebhookHandler struct {
	BaseHandler
	service WebhookService
}

// NewWebhookHandler creates a new WebhookHandler
func NewWebhookHandler(service WebhookService) *WebhookHandler {
	return &WebhookHandler{service: service}
}

// AbandonedCheckout handles POST /webhook/abandoned-checkouts.
// The sender is acknowledged before the payload is read so a slow ledger
// never causes redelivery; payloads without a cart token are dropped.
func (h *WebhookHandler) AbandonedCheckout(c *gin.Context) {
	reqLog := logger.GetGinLogger(c)
	body, readErr := io.ReadAll(c.Request.Body)

	c.String(http.StatusOK, "OK")
	c.Writer.Flush()

	if readErr != nil {
		reqLog.Warn("Dropping unreadable checkout webhook", zap.Error(readErr))
		return
	}
	var checkout recovery.Checkout
	if err := json.Unmarshal(body, &checkout); err != nil {
		reqLog.Warn("Dropping malformed checkout webhook", zap.Error(err))
		return
	}

	ctx := context.WithoutCancel(c.Request.Context())
	if checkout.CartToken != "" {
		ctx, reqLog = logger.WithCartToken(ctx, reqLog, checkout.CartToken)
	}
	recorded, err := h.service.RecordCheckout(ctx, &checkout)
	if err != nil {
		_ = c.Error(err)
		reqLog.Error("Failed to record checkout", zap.Error(err))
		return
	}
	if !recorded {
		reqLog.Debug("Checkout webhook without cart token ignored")
	}
}

// OrderConfirmation handles POST /webhook/order-confirmation
func (h *WebhookHandler) OrderConfirmation(c *gin.Context) {
	var event dto.OrderEvent
	if err := c.ShouldBindBodyWith(&event, binding.JSON); err != nil {
		h.HandleBindError(c, err)
		return
	}
	var order recovery.Order
	if err := c.ShouldBindBodyWith(&order, binding.JSON); err != nil {
		h.HandleBindError(c, err)
		return
	}

	accepted, err := h.service.AcceptOrder(c.Request.Context(), &order)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	if !accepted {
		logger.GetGinLogger(c).Info("Order already processed", zap.Int64("order_id", order.ID))
	}
	h.Success(c, dto.WebhookAck{Accepted: accepted})
}

// FulfillmentCreation handles POST /webhook/fulfillment-creation
func (h *WebhookHandler) FulfillmentCreation(c *gin.Context) {
	var event dto.FulfillmentEvent
	if err := c.ShouldBindBodyWith(&event, binding.JSON); err != nil {
		h.HandleBindError(c, err)
		return
	}
	var fulfillment recovery.Fulfillment
	if err := c.ShouldBindBodyWith(&fulfillment, binding.JSON); err != nil {
		h.HandleBindError(c, err)
		return
	}

	accepted, err := h.service.AcceptFulfillment(c.Request.Context(), &fulfillment)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, dto.WebhookAck{Accepted: accepted})
}
