package payment

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/uniedit/checkout/internal/module/payment/domain"
	"github.com/uniedit/checkout/internal/shared/response"
	"go.uber.org/zap"
)

// DefaultSignatureHeader carries the gateway's webhook HMAC.
const DefaultSignatureHeader = "Cko-Signature"

// maxWebhookBody bounds the raw body read for a delivery.
const maxWebhookBody = 1 << 20

// WebhookHandler handles gateway webhook deliveries and the webhook log.
type WebhookHandler struct {
	reconciler      *Reconciler
	signatureHeader string
	logger          *zap.Logger
}

// NewWebhookHandler creates a new webhook handler.
func NewWebhookHandler(reconciler *Reconciler, signatureHeader string, logger *zap.Logger) *WebhookHandler {
	if signatureHeader == "" {
		signatureHeader = DefaultSignatureHeader
	}
	return &WebhookHandler{
		reconciler:      reconciler,
		signatureHeader: signatureHeader,
		logger:          logger,
	}
}

// RegisterRoutes registers the gateway delivery route.
func (h *WebhookHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/checkout", h.HandleWebhook)
	r.POST("/validate", h.ValidateWebhook)
}

// RegisterLogRoutes registers the webhook log routes.
func (h *WebhookHandler) RegisterLogRoutes(r *gin.RouterGroup) {
	events := r.Group("/webhook-events")
	{
		events.GET("/failed", h.ListFailed)
		events.GET("/:event_id", h.GetEvent)
	}
}

// HandleWebhook receives one gateway notification.
//
//	@Summary		Receive gateway webhook
//	@Description	Verify, deduplicate and apply a signed gateway notification
//	@Tags			Webhooks
//	@Accept			json
//	@Produce		json
//	@Param			Cko-Signature	header		string	true	"HMAC-SHA256 of the raw body"
//	@Success		200				{object}	WebhookAckResponse
//	@Failure		400				{object}	response.ErrorResponse
//	@Failure		401				{object}	WebhookAckResponse
//	@Failure		500				{object}	response.ErrorResponse
//	@Router			/webhooks/checkout [post]
func (h *WebhookHandler) HandleWebhook(c *gin.Context) {
	// Raw bytes are needed for the signature; never re-encode the body.
	payload, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBody))
	if err != nil {
		h.logger.Warn("failed to read webhook body", zap.Error(err))
		response.BadRequest(c, "failed to read body")
		return
	}

	sig := c.GetHeader(h.signatureHeader)
	if sig == "" {
		response.AppError(c, ToAppError(ErrMissingSignature))
		return
	}

	result, err := h.reconciler.Receive(c.Request.Context(), payload, sig)
	if err != nil {
		appErr := ToAppError(err)
		if appErr.StatusCode >= http.StatusInternalServerError {
			h.logger.Error("webhook processing failed", zap.Error(err))
		}
		response.AppError(c, appErr)
		return
	}

	status := http.StatusOK
	if result.Outcome == OutcomeRejected {
		status = http.StatusUnauthorized
	}
	c.JSON(status, WebhookAckResponse{Status: string(result.Outcome)})
}

// ValidateWebhook checks a delivery's signature without applying it.
//
//	@Summary		Validate gateway webhook
//	@Description	Report whether a delivery is signed correctly and which payment it names
//	@Tags			Webhooks
//	@Accept			json
//	@Produce		json
//	@Param			Cko-Signature	header		string	false	"HMAC-SHA256 of the raw body"
//	@Success		200				{object}	ValidationResult
//	@Failure		400				{object}	response.ErrorResponse
//	@Router			/webhooks/validate [post]
func (h *WebhookHandler) ValidateWebhook(c *gin.Context) {
	payload, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBody))
	if err != nil {
		response.BadRequest(c, "failed to read body")
		return
	}

	result, err := h.reconciler.Validate(payload, c.GetHeader(h.signatureHeader))
	if err != nil {
		response.AppError(c, ToAppError(err))
		return
	}
	c.JSON(http.StatusOK, result)
}

// ListFailed returns webhook log entries that failed.
//
//	@Summary		List failed webhooks
//	@Tags			Webhooks
//	@Produce		json
//	@Param			limit	query		int	false	"Max entries"	default(50)
//	@Success		200		{array}		WebhookEventResponse
//	@Router			/webhook-events/failed [get]
func (h *WebhookHandler) ListFailed(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit <= 0 || limit > 500 {
		response.BadRequest(c, "limit must be between 1 and 500")
		return
	}

	events, err := h.reconciler.ListFailedWebhooks(c.Request.Context(), limit)
	if err != nil {
		response.AppError(c, ToAppError(err))
		return
	}

	out := make([]*WebhookEventResponse, 0, len(events))
	for _, e := range events {
		out = append(out, WebhookEventToResponse(e))
	}
	c.JSON(http.StatusOK, gin.H{"events": out})
}

// GetEvent returns the log entry for a gateway event ID.
//
//	@Summary		Get webhook event
//	@Tags			Webhooks
//	@Produce		json
//	@Param			event_id	path		string	true	"Gateway event ID"
//	@Success		200			{object}	WebhookEventResponse
//	@Failure		404			{object}	response.ErrorResponse
//	@Router			/webhook-events/{event_id} [get]
func (h *WebhookHandler) GetEvent(c *gin.Context) {
	event, err := h.reconciler.GetWebhookEvent(c.Request.Context(), c.Param("event_id"))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			response.AppError(c, ToAppError(ErrWebhookEventNotFound))
			return
		}
		response.AppError(c, ToAppError(err))
		return
	}

	c.JSON(http.StatusOK, WebhookEventToResponse(event))
}
