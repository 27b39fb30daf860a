package payment

import (
	"time"

	"github.com/google/uuid"
	"github.com/uniedit/checkout/internal/module/payment/domain"
	"github.com/uniedit/checkout/internal/module/payment/gateway"
)

// CreateSessionRequest represents a request to create a hosted payment session.
type CreateSessionRequest struct {
	Reference      string         `json:"reference" binding:"required,max=255"`
	Amount         int64          `json:"amount" binding:"required,gt=0"`
	Currency       string         `json:"currency" binding:"required,len=3"`
	Description    string         `json:"description,omitempty"`
	CustomerEmail  string         `json:"customer_email,omitempty"`
	CustomerName   string         `json:"customer_name,omitempty"`
	SuccessURL     string         `json:"success_url,omitempty"`
	CancelURL      string         `json:"cancel_url,omitempty"`
	FailureURL     string         `json:"failure_url,omitempty"`
	BillingAddress map[string]any `json:"billing_address,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	PaymentMethods []string       `json:"payment_methods,omitempty"`
	// ExpiresIn is the session lifetime in seconds.
	ExpiresIn      int64          `json:"expires_in,omitempty" binding:"gte=0"`
}

func (r *CreateSessionRequest) toInput() CreateSessionInput {
	return CreateSessionInput{
		Reference:      r.Reference,
		Amount:         r.Amount,
		Currency:       r.Currency,
		Description:    r.Description,
		CustomerEmail:  r.CustomerEmail,
		CustomerName:   r.CustomerName,
		SuccessURL:     r.SuccessURL,
		CancelURL:      r.CancelURL,
		FailureURL:     r.FailureURL,
		BillingAddress: r.BillingAddress,
		Metadata:       r.Metadata,
		PaymentMethods: r.PaymentMethods,
		TTL:            time.Duration(r.ExpiresIn) * time.Second,
	}
}

// DirectPaymentRequest represents a card payment against a session.
type DirectPaymentRequest struct {
	Reference      string         `json:"reference" binding:"required"`
	Amount         int64          `json:"amount,omitempty" binding:"gte=0"`
	Currency       string         `json:"currency,omitempty" binding:"omitempty,len=3"`
	Source         map[string]any `json:"source" binding:"required"`
	Capture        *bool          `json:"capture,omitempty"`
	CustomerEmail  string         `json:"customer_email,omitempty" binding:"omitempty,email"`
	CustomerName   string         `json:"customer_name,omitempty"`
	BillingAddress map[string]any `json:"billing_address,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

// CaptureRequest represents a capture request. Omit amount for a full capture.
type CaptureRequest struct {
	Amount    *int64 `json:"amount,omitempty"`
	Reference string `json:"reference,omitempty"`
}

// RefundRequest represents a refund request. Omit amount to refund
// everything left.
type RefundRequest struct {
	Amount    *int64 `json:"amount,omitempty"`
	Reason    string `json:"reason,omitempty"`
	Reference string `json:"reference,omitempty"`
}

// VoidRequest represents a void request.
type VoidRequest struct {
	Reference string `json:"reference,omitempty"`
}

// SearchPaymentsRequest holds gateway payment search filters. Times are RFC 3339.
type SearchPaymentsRequest struct {
	Reference string    `form:"reference"`
	Status    string    `form:"status"`
	From      time.Time `form:"from" time_format:"2006-01-02T15:04:05Z07:00"`
	To        time.Time `form:"to" time_format:"2006-01-02T15:04:05Z07:00"`
	Limit     int       `form:"limit" binding:"gte=0,lte=100"`
	Skip      int       `form:"skip" binding:"gte=0"`
}

func (r *SearchPaymentsRequest) toFilter() *gateway.SearchFilter {
	f := &gateway.SearchFilter{
		Reference: r.Reference,
		Status:    r.Status,
		Limit:     r.Limit,
		Skip:      r.Skip,
	}
	if !r.From.IsZero() {
		f.From = &r.From
	}
	if !r.To.IsZero() {
		f.To = &r.To
	}
	return f
}

// SessionResponse represents a payment session in API responses.
type SessionResponse struct {
	ID            uuid.UUID      `json:"id"`
	GatewayID     string         `json:"gateway_id,omitempty"`
	Reference     string         `json:"reference"`
	Amount        int64          `json:"amount"`
	Currency      string         `json:"currency"`
	DisplayAmount string         `json:"display_amount"`
	Description   string         `json:"description,omitempty"`
	CustomerEmail string         `json:"customer_email,omitempty"`
	CustomerName  string         `json:"customer_name,omitempty"`
	PaymentURL    string         `json:"payment_url,omitempty"`
	Status        string         `json:"status"`
	Metadata      map[string]any `json:"metadata,omitempty"`
	ExpiresAt     *time.Time     `json:"expires_at,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// SessionToResponse converts a domain Session to SessionResponse.
func SessionToResponse(s *domain.Session) *SessionResponse {
	return &SessionResponse{
		ID:            s.ID,
		GatewayID:     s.GatewayID,
		Reference:     s.Reference,
		Amount:        s.Amount,
		Currency:      s.Currency.String(),
		DisplayAmount: s.Money().Display(),
		Description:   s.Description,
		CustomerEmail: s.CustomerEmail,
		CustomerName:  s.CustomerName,
		PaymentURL:    s.PaymentURL,
		Status:        string(s.Status),
		Metadata:      s.Metadata,
		ExpiresAt:     s.ExpiresAt,
		CreatedAt:     s.CreatedAt,
		UpdatedAt:     s.UpdatedAt,
	}
}

// ReturnResponse answers a gateway redirect back to the merchant.
type ReturnResponse struct {
	Result  string           `json:"result"`
	Session *SessionResponse `json:"session"`
}

// PaymentResponse represents a payment in API responses.
type PaymentResponse struct {
	ID              string            `json:"id"`
	SessionID       *uuid.UUID        `json:"session_id,omitempty"`
	Reference       string            `json:"reference,omitempty"`
	Amount          int64             `json:"amount"`
	Currency        string            `json:"currency"`
	DisplayAmount   string            `json:"display_amount"`
	Status          string            `json:"status"`
	Approved        bool              `json:"approved"`
	RefundedAmount  *int64            `json:"refunded_amount"`
	ResponseCode    string            `json:"response_code,omitempty"`
	ResponseSummary string            `json:"response_summary,omitempty"`
	PaymentType     string            `json:"payment_type,omitempty"`
	Source          map[string]any    `json:"source,omitempty"`
	Capturable      bool              `json:"capturable"`
	Refundable      bool              `json:"refundable"`
	Voidable        bool              `json:"voidable"`
	Refunds         []*RefundResponse `json:"refunds,omitempty"`
	ApprovedAt      *time.Time        `json:"approved_at,omitempty"`
	CapturedAt      *time.Time        `json:"captured_at,omitempty"`
	VoidedAt        *time.Time        `json:"voided_at,omitempty"`
	RefundedAt      *time.Time        `json:"refunded_at,omitempty"`
	ExpiresAt       *time.Time        `json:"expires_at,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
}

// PaymentToResponse converts a domain Payment to PaymentResponse.
func PaymentToResponse(p *domain.Payment) *PaymentResponse {
	resp := &PaymentResponse{
		ID:              p.ID(),
		Reference:       p.Reference(),
		Amount:          p.Amount(),
		Currency:        p.Currency().String(),
		DisplayAmount:   p.Money().Display(),
		Status:          p.Status().String(),
		Approved:        p.Approved(),
		RefundedAmount:  p.RefundedAmount(),
		ResponseCode:    p.ResponseCode(),
		ResponseSummary: p.ResponseSummary(),
		PaymentType:     p.PaymentType(),
		Source:          p.Source(),
		Capturable:      p.Capturable(),
		Refundable:      p.Refundable(),
		Voidable:        p.Voidable(),
		ApprovedAt:      p.ApprovedAt(),
		CapturedAt:      p.CapturedAt(),
		VoidedAt:        p.VoidedAt(),
		RefundedAt:      p.RefundedAt(),
		ExpiresAt:       p.ExpiresAt(),
		CreatedAt:       p.CreatedAt(),
		UpdatedAt:       p.UpdatedAt(),
	}
	if id := p.SessionID(); id != uuid.Nil {
		resp.SessionID = &id
	}
	for _, r := range p.Refunds() {
		resp.Refunds = append(resp.Refunds, RefundToResponse(r))
	}
	return resp
}

// PaymentsToResponse converts a list of payments.
func PaymentsToResponse(payments []*domain.Payment) []*PaymentResponse {
	out := make([]*PaymentResponse, 0, len(payments))
	for _, p := range payments {
		out = append(out, PaymentToResponse(p))
	}
	return out
}

// RefundResponse represents a refund in API responses.
type RefundResponse struct {
	ID              string     `json:"id"`
	PaymentID       string     `json:"payment_id"`
	Amount          int64      `json:"amount"`
	Currency        string     `json:"currency"`
	DisplayAmount   string     `json:"display_amount"`
	Status          string     `json:"status"`
	Reason          string     `json:"reason,omitempty"`
	Reference       string     `json:"reference,omitempty"`
	ResponseCode    string     `json:"response_code,omitempty"`
	ResponseSummary string     `json:"response_summary,omitempty"`
	ProcessedAt     *time.Time `json:"processed_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

// RefundToResponse converts a domain Refund to RefundResponse.
func RefundToResponse(r *domain.Refund) *RefundResponse {
	return &RefundResponse{
		ID:              r.ID,
		PaymentID:       r.PaymentID,
		Amount:          r.Amount,
		Currency:        r.Currency.String(),
		DisplayAmount:   r.Money().Display(),
		Status:          string(r.Status),
		Reason:          r.Reason,
		Reference:       r.Reference,
		ResponseCode:    r.ResponseCode,
		ResponseSummary: r.ResponseSummary,
		ProcessedAt:     r.ProcessedAt,
		CreatedAt:       r.CreatedAt,
	}
}

// WebhookEventResponse represents a webhook log entry in API responses.
// The raw payload and signature are not exposed.
type WebhookEventResponse struct {
	ID             uuid.UUID      `json:"id"`
	EventID        string         `json:"event_id"`
	EventType      string         `json:"event_type"`
	PaymentID      string         `json:"payment_id,omitempty"`
	Reference      string         `json:"reference,omitempty"`
	SignatureValid bool           `json:"signature_valid"`
	Status         string         `json:"status"`
	Error          string         `json:"error,omitempty"`
	ProcessedData  map[string]any `json:"processed_data,omitempty"`
	Attempts       int            `json:"attempts"`
	ReceivedAt     time.Time      `json:"received_at"`
	ProcessedAt    *time.Time     `json:"processed_at,omitempty"`
}

// WebhookEventToResponse converts a domain WebhookEvent to WebhookEventResponse.
func WebhookEventToResponse(e *domain.WebhookEvent) *WebhookEventResponse {
	return &WebhookEventResponse{
		ID:             e.ID,
		EventID:        e.EventID,
		EventType:      e.EventType,
		PaymentID:      e.PaymentID,
		Reference:      e.Reference,
		SignatureValid: e.SignatureValid,
		Status:         string(e.Status),
		Error:          e.ErrorMessage,
		ProcessedData:  e.ProcessedData,
		Attempts:       e.Attempts,
		ReceivedAt:     e.ReceivedAt,
		ProcessedAt:    e.ProcessedAt,
	}
}

// WebhookAckResponse acknowledges a webhook delivery.
type WebhookAckResponse struct {
	Status string `json:"status"`
}
