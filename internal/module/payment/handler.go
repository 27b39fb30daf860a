package payment

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/uniedit/checkout/internal/module/payment/domain"
	"github.com/uniedit/checkout/internal/shared/response"
	"go.uber.org/zap"
)

// IdempotencyKeyHeader is forwarded to the gateway on capture, refund and void.
const IdempotencyKeyHeader = "Idempotency-Key"

// Handler handles HTTP requests for sessions and payments.
type Handler struct {
	payments *Service
	sessions *SessionService
	logger   *zap.Logger
}

// NewHandler creates a new payment handler.
func NewHandler(payments *Service, sessions *SessionService, logger *zap.Logger) *Handler {
	return &Handler{payments: payments, sessions: sessions, logger: logger}
}

// RegisterRoutes registers the payment routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	sessions := r.Group("/sessions")
	{
		sessions.POST("", h.CreateSession)
		sessions.GET("/:id", h.GetSession)
		sessions.POST("/:id/sync", h.SyncSession)
	}

	r.GET("/gateway-sessions/:session_id", h.GetSessionByGatewayID)

	returns := r.Group("/returns")
	{
		returns.GET("/success", h.ReturnSuccess)
		returns.GET("/failure", h.ReturnFailure)
	}

	references := r.Group("/references")
	{
		references.GET("/:reference", h.GetSessionByReference)
		references.GET("/:reference/payments", h.PaymentHistory)
	}

	payments := r.Group("/payments")
	{
		payments.POST("", h.CreateDirectPayment)
		payments.GET("/search", h.SearchPayments)
		payments.GET("/:id", h.GetPayment)
		payments.GET("/:id/details", h.GetPaymentDetails)
		payments.GET("/:id/actions", h.GetPaymentActions)
		payments.GET("/:id/captures", h.GetPaymentCaptures)
		payments.GET("/:id/voids", h.GetPaymentVoids)
		payments.POST("/:id/capture", h.Capture)
		payments.POST("/:id/void", h.Void)
		payments.POST("/:id/refunds", h.Refund)
		payments.GET("/:id/refunds", h.ListRefunds)
	}
}

// CreateSession creates a hosted payment session.
//
//	@Summary		Create payment session
//	@Description	Create a hosted payment page at the gateway for a merchant reference
//	@Tags			Sessions
//	@Accept			json
//	@Produce		json
//	@Param			request	body		CreateSessionRequest	true	"Session request"
//	@Success		201		{object}	SessionResponse
//	@Failure		400		{object}	response.ErrorResponse
//	@Failure		409		{object}	response.ErrorResponse
//	@Failure		422		{object}	response.ErrorResponse
//	@Failure		502		{object}	response.ErrorResponse
//	@Router			/sessions [post]
func (h *Handler) CreateSession(c *gin.Context) {
	var req CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	session, err := h.sessions.CreateSession(c.Request.Context(), req.toInput())
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusCreated, SessionToResponse(session))
}

// GetSession returns a session by ID.
//
//	@Summary		Get payment session
//	@Tags			Sessions
//	@Produce		json
//	@Param			id	path		string	true	"Session ID"
//	@Success		200	{object}	SessionResponse
//	@Failure		404	{object}	response.ErrorResponse
//	@Router			/sessions/{id} [get]
func (h *Handler) GetSession(c *gin.Context) {
	id, ok := sessionID(c)
	if !ok {
		return
	}

	session, err := h.sessions.GetSession(c.Request.Context(), id)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, SessionToResponse(session))
}

// GetSessionByGatewayID returns a session by its gateway hosted session id.
//
//	@Summary		Get session by gateway session ID
//	@Tags			Sessions
//	@Produce		json
//	@Param			session_id	path		string	true	"Gateway hosted session ID"
//	@Success		200			{object}	SessionResponse
//	@Failure		404			{object}	response.ErrorResponse
//	@Router			/gateway-sessions/{session_id} [get]
func (h *Handler) GetSessionByGatewayID(c *gin.Context) {
	session, err := h.sessions.GetSessionByGatewayID(c.Request.Context(), c.Param("session_id"))
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, SessionToResponse(session))
}

// ReturnSuccess resolves the gateway's success redirect.
//
//	@Summary		Success redirect
//	@Tags			Sessions
//	@Produce		json
//	@Param			sessionId	query		string	true	"Gateway hosted session ID"
//	@Success		200			{object}	ReturnResponse
//	@Failure		400			{object}	response.ErrorResponse
//	@Failure		404			{object}	response.ErrorResponse
//	@Router			/returns/success [get]
func (h *Handler) ReturnSuccess(c *gin.Context) {
	h.handleReturn(c, "success")
}

// ReturnFailure resolves the gateway's failure redirect.
//
//	@Summary		Failure redirect
//	@Tags			Sessions
//	@Produce		json
//	@Param			sessionId	query		string	true	"Gateway hosted session ID"
//	@Success		200			{object}	ReturnResponse
//	@Failure		400			{object}	response.ErrorResponse
//	@Failure		404			{object}	response.ErrorResponse
//	@Router			/returns/failure [get]
func (h *Handler) ReturnFailure(c *gin.Context) {
	h.handleReturn(c, "failure")
}

func (h *Handler) handleReturn(c *gin.Context, result string) {
	gatewayID := c.Query("sessionId")
	if gatewayID == "" {
		response.BadRequest(c, "missing session ID")
		return
	}

	session, err := h.sessions.GetSessionByGatewayID(c.Request.Context(), gatewayID)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, ReturnResponse{Result: result, Session: SessionToResponse(session)})
}

// SyncSession refreshes a session's status from the gateway.
//
//	@Summary		Sync payment session
//	@Description	Copy the gateway's current session status onto the stored session
//	@Tags			Sessions
//	@Produce		json
//	@Param			id	path		string	true	"Session ID"
//	@Success		200	{object}	SessionResponse
//	@Failure		404	{object}	response.ErrorResponse
//	@Failure		502	{object}	response.ErrorResponse
//	@Router			/sessions/{id}/sync [post]
func (h *Handler) SyncSession(c *gin.Context) {
	id, ok := sessionID(c)
	if !ok {
		return
	}

	session, err := h.sessions.SyncSession(c.Request.Context(), id)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, SessionToResponse(session))
}

// GetSessionByReference returns the session for a merchant reference.
//
//	@Summary		Get session by reference
//	@Tags			Sessions
//	@Produce		json
//	@Param			reference	path		string	true	"Merchant reference"
//	@Success		200			{object}	SessionResponse
//	@Failure		404			{object}	response.ErrorResponse
//	@Router			/references/{reference} [get]
func (h *Handler) GetSessionByReference(c *gin.Context) {
	session, err := h.sessions.GetSessionByReference(c.Request.Context(), c.Param("reference"))
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, SessionToResponse(session))
}

// PaymentHistory lists the payments made against a reference.
//
//	@Summary		Payment history
//	@Description	Payments made against a merchant reference, newest first
//	@Tags			Sessions
//	@Produce		json
//	@Param			reference	path		string	true	"Merchant reference"
//	@Success		200			{array}		PaymentResponse
//	@Router			/references/{reference}/payments [get]
func (h *Handler) PaymentHistory(c *gin.Context) {
	payments, err := h.sessions.PaymentHistory(c.Request.Context(), c.Param("reference"))
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"payments": PaymentsToResponse(payments)})
}

// CreateDirectPayment charges a card against a session reference.
//
//	@Summary		Create direct payment
//	@Tags			Payments
//	@Accept			json
//	@Produce		json
//	@Param			request			body		DirectPaymentRequest	true	"Payment request"
//	@Param			Idempotency-Key	header		string					false	"Idempotency key"
//	@Success		201				{object}	PaymentResponse
//	@Failure		400				{object}	response.ErrorResponse
//	@Failure		404				{object}	response.ErrorResponse
//	@Failure		502				{object}	response.ErrorResponse
//	@Router			/payments [post]
func (h *Handler) CreateDirectPayment(c *gin.Context) {
	var req DirectPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	p, err := h.payments.CreateDirectPayment(c.Request.Context(), DirectPaymentInput{
		Reference:      req.Reference,
		Amount:         req.Amount,
		Currency:       domain.NewCurrency(req.Currency),
		Source:         req.Source,
		Capture:        req.Capture,
		CustomerEmail:  req.CustomerEmail,
		CustomerName:   req.CustomerName,
		BillingAddress: req.BillingAddress,
		Metadata:       req.Metadata,
		IdempotencyKey: c.GetHeader(IdempotencyKeyHeader),
	})
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusCreated, PaymentToResponse(p))
}

// GetPayment returns a stored payment with its refunds.
//
//	@Summary		Get payment
//	@Tags			Payments
//	@Produce		json
//	@Param			id	path		string	true	"Gateway payment ID"
//	@Success		200	{object}	PaymentResponse
//	@Failure		404	{object}	response.ErrorResponse
//	@Router			/payments/{id} [get]
func (h *Handler) GetPayment(c *gin.Context) {
	p, err := h.payments.GetPayment(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, PaymentToResponse(p))
}

// GetPaymentDetails returns the gateway's view of a payment.
//
//	@Summary		Get gateway payment details
//	@Tags			Payments
//	@Produce		json
//	@Param			id	path		string	true	"Gateway payment ID"
//	@Success		200	{object}	map[string]interface{}
//	@Failure		502	{object}	response.ErrorResponse
//	@Router			/payments/{id}/details [get]
func (h *Handler) GetPaymentDetails(c *gin.Context) {
	details, err := h.payments.GetPaymentDetails(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, details)
}

// GetPaymentActions lists the gateway actions on a payment.
//
//	@Summary		List gateway payment actions
//	@Tags			Payments
//	@Produce		json
//	@Param			id	path		string	true	"Gateway payment ID"
//	@Success		200	{object}	map[string]interface{}
//	@Failure		502	{object}	response.ErrorResponse
//	@Router			/payments/{id}/actions [get]
func (h *Handler) GetPaymentActions(c *gin.Context) {
	actions, err := h.payments.PaymentActions(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"actions": actions})
}

// GetPaymentCaptures lists the capture actions on a payment.
//
//	@Summary		List payment captures
//	@Tags			Payments
//	@Produce		json
//	@Param			id	path		string	true	"Gateway payment ID"
//	@Success		200	{object}	map[string]interface{}
//	@Failure		502	{object}	response.ErrorResponse
//	@Router			/payments/{id}/captures [get]
func (h *Handler) GetPaymentCaptures(c *gin.Context) {
	captures, err := h.payments.PaymentCaptures(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"captures": captures})
}

// GetPaymentVoids lists the void actions on a payment.
//
//	@Summary		List payment voids
//	@Tags			Payments
//	@Produce		json
//	@Param			id	path		string	true	"Gateway payment ID"
//	@Success		200	{object}	map[string]interface{}
//	@Failure		502	{object}	response.ErrorResponse
//	@Router			/payments/{id}/voids [get]
func (h *Handler) GetPaymentVoids(c *gin.Context) {
	voids, err := h.payments.PaymentVoids(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"voids": voids})
}

// SearchPayments searches gateway payments.
//
//	@Summary		Search payments
//	@Description	Query the gateway for payments by reference, status and creation window
//	@Tags			Payments
//	@Produce		json
//	@Param			reference	query		string	false	"Merchant reference"
//	@Param			status		query		string	false	"Gateway payment status"
//	@Param			from		query		string	false	"Created at or after (RFC 3339)"
//	@Param			to			query		string	false	"Created at or before (RFC 3339)"
//	@Param			limit		query		int		false	"Page size"
//	@Param			skip		query		int		false	"Offset"
//	@Success		200			{object}	map[string]interface{}
//	@Failure		400			{object}	response.ErrorResponse
//	@Failure		422			{object}	response.ErrorResponse
//	@Failure		502			{object}	response.ErrorResponse
//	@Router			/payments/search [get]
func (h *Handler) SearchPayments(c *gin.Context) {
	var req SearchPaymentsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	result, err := h.payments.SearchPayments(c.Request.Context(), req.toFilter())
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"payments":    result.Data,
		"total_count": result.TotalCount,
	})
}

// Capture captures an authorized payment.
//
//	@Summary		Capture payment
//	@Description	Capture the full amount, or part of it when amount is set
//	@Tags			Payments
//	@Accept			json
//	@Produce		json
//	@Param			id				path		string			true	"Gateway payment ID"
//	@Param			request			body		CaptureRequest	false	"Capture request"
//	@Param			Idempotency-Key	header		string			false	"Idempotency key"
//	@Success		200				{object}	PaymentResponse
//	@Failure		404				{object}	response.ErrorResponse
//	@Failure		409				{object}	response.ErrorResponse
//	@Failure		502				{object}	response.ErrorResponse
//	@Router			/payments/{id}/capture [post]
func (h *Handler) Capture(c *gin.Context) {
	var req CaptureRequest
	if !bindOptionalJSON(c, &req) {
		return
	}

	p, err := h.payments.Capture(c.Request.Context(), c.Param("id"), CaptureInput{
		Amount:         req.Amount,
		Reference:      req.Reference,
		IdempotencyKey: c.GetHeader(IdempotencyKeyHeader),
	})
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, PaymentToResponse(p))
}

// Void cancels an authorized payment.
//
//	@Summary		Void payment
//	@Tags			Payments
//	@Accept			json
//	@Produce		json
//	@Param			id				path		string		true	"Gateway payment ID"
//	@Param			request			body		VoidRequest	false	"Void request"
//	@Param			Idempotency-Key	header		string		false	"Idempotency key"
//	@Success		200				{object}	PaymentResponse
//	@Failure		404				{object}	response.ErrorResponse
//	@Failure		409				{object}	response.ErrorResponse
//	@Failure		502				{object}	response.ErrorResponse
//	@Router			/payments/{id}/void [post]
func (h *Handler) Void(c *gin.Context) {
	var req VoidRequest
	if !bindOptionalJSON(c, &req) {
		return
	}

	p, err := h.payments.Void(c.Request.Context(), c.Param("id"), VoidInput{
		Reference:      req.Reference,
		IdempotencyKey: c.GetHeader(IdempotencyKeyHeader),
	})
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, PaymentToResponse(p))
}

// Refund refunds a captured payment.
//
//	@Summary		Refund payment
//	@Description	Refund part of a captured payment, or everything left when amount is omitted
//	@Tags			Payments
//	@Accept			json
//	@Produce		json
//	@Param			id				path		string			true	"Gateway payment ID"
//	@Param			request			body		RefundRequest	false	"Refund request"
//	@Param			Idempotency-Key	header		string			false	"Idempotency key"
//	@Success		201				{object}	RefundResponse
//	@Failure		404				{object}	response.ErrorResponse
//	@Failure		409				{object}	response.ErrorResponse
//	@Failure		422				{object}	response.ErrorResponse
//	@Failure		502				{object}	response.ErrorResponse
//	@Router			/payments/{id}/refunds [post]
func (h *Handler) Refund(c *gin.Context) {
	var req RefundRequest
	if !bindOptionalJSON(c, &req) {
		return
	}

	refund, err := h.payments.Refund(c.Request.Context(), c.Param("id"), RefundInput{
		Amount:         req.Amount,
		Reason:         req.Reason,
		Reference:      req.Reference,
		IdempotencyKey: c.GetHeader(IdempotencyKeyHeader),
	})
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusCreated, RefundToResponse(refund))
}

// ListRefunds lists the refunds of a payment.
//
//	@Summary		List refunds
//	@Tags			Payments
//	@Produce		json
//	@Param			id	path		string	true	"Gateway payment ID"
//	@Success		200	{array}		RefundResponse
//	@Failure		404	{object}	response.ErrorResponse
//	@Router			/payments/{id}/refunds [get]
func (h *Handler) ListRefunds(c *gin.Context) {
	refunds, err := h.payments.ListRefunds(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.handleError(c, err)
		return
	}

	out := make([]*RefundResponse, 0, len(refunds))
	for _, r := range refunds {
		out = append(out, RefundToResponse(r))
	}
	c.JSON(http.StatusOK, gin.H{"refunds": out})
}

// --- Helpers ---

func sessionID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid session ID")
		return uuid.Nil, false
	}
	return id, true
}

// bindOptionalJSON binds a JSON body that may be absent.
func bindOptionalJSON(c *gin.Context, obj any) bool {
	if err := c.ShouldBindJSON(obj); err != nil && !errors.Is(err, io.EOF) {
		response.BadRequest(c, err.Error())
		return false
	}
	return true
}

func (h *Handler) handleError(c *gin.Context, err error) {
	appErr := ToAppError(err)
	if appErr.StatusCode >= http.StatusInternalServerError {
		h.logger.Error("request failed",
			zap.String("path", c.FullPath()),
			zap.Error(err),
		)
	}
	response.AppError(c, appErr)
}
