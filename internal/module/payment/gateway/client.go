package gateway

import (
	"context"
	"time"
)

// Client is the outbound interface to the card payment gateway.
type Client interface {
	// Name returns the configured gateway name.
	Name() string

	CreateHostedSession(ctx context.Context, req *HostedSessionRequest) (*HostedSessionResponse, error)
	GetHostedSession(ctx context.Context, id string) (*HostedSessionResponse, error)

	CreatePayment(ctx context.Context, req *PaymentRequest) (*PaymentResponse, error)
	GetPayment(ctx context.Context, id string) (*PaymentResponse, error)
	GetPaymentActions(ctx context.Context, id string) ([]map[string]any, error)
	SearchPayments(ctx context.Context, filter *SearchFilter) (*SearchResult, error)

	CapturePayment(ctx context.Context, id string, req *CaptureRequest) (*ActionResponse, error)
	RefundPayment(ctx context.Context, id string, req *RefundRequest) (*ActionResponse, error)
	VoidPayment(ctx context.Context, id string, req *VoidRequest) (*ActionResponse, error)
}

// Customer identifies the paying customer.
type Customer struct {
	Email string `json:"email,omitempty"`
	Name  string `json:"name,omitempty"`
}

// HostedSessionRequest creates a hosted payment page.
type HostedSessionRequest struct {
	Amount         int64          `json:"amount"`
	Currency       string         `json:"currency"`
	Reference      string         `json:"reference"`
	Description    string         `json:"description,omitempty"`
	SuccessURL     string         `json:"success_url,omitempty"`
	CancelURL      string         `json:"cancel_url,omitempty"`
	FailureURL     string         `json:"failure_url,omitempty"`
	Customer       *Customer      `json:"customer,omitempty"`
	BillingAddress map[string]any `json:"billing_address,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	PaymentMethods []string       `json:"allow_payment_methods,omitempty"`
}

// HostedSessionResponse is the gateway's view of a hosted session.
type HostedSessionResponse struct {
	ID        string         `json:"id"`
	Status    string         `json:"status"`
	Reference string         `json:"reference,omitempty"`
	Amount    int64          `json:"amount,omitempty"`
	Currency  string         `json:"currency,omitempty"`
	Links     map[string]any `json:"links,omitempty"`
	HALLinks  map[string]any `json:"_links,omitempty"`
}

// PaymentURL returns the customer-facing payment page. It reads
// links.payment, falling back to _links.redirect.href.
func (r *HostedSessionResponse) PaymentURL() string {
	if s, ok := r.Links["payment"].(string); ok && s != "" {
		return s
	}
	if redirect, ok := r.HALLinks["redirect"].(map[string]any); ok {
		if href, ok := redirect["href"].(string); ok {
			return href
		}
	}
	return ""
}

// PaymentRequest requests a direct card payment.
type PaymentRequest struct {
	Amount         int64          `json:"amount"`
	Currency       string         `json:"currency"`
	Reference      string         `json:"reference"`
	Source         map[string]any `json:"source"`
	Capture        *bool          `json:"capture,omitempty"`
	Customer       *Customer      `json:"customer,omitempty"`
	BillingAddress map[string]any `json:"billing_address,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	IdempotencyKey string         `json:"-"`
}

// PaymentResponse is the gateway's view of a payment.
type PaymentResponse struct {
	ID                  string         `json:"id"`
	Status              string         `json:"status"`
	Approved            *bool          `json:"approved,omitempty"`
	Amount              int64          `json:"amount"`
	Currency            string         `json:"currency"`
	Reference           string         `json:"reference,omitempty"`
	ResponseCode        string         `json:"response_code,omitempty"`
	ResponseSummary     string         `json:"response_summary,omitempty"`
	PaymentType         string         `json:"payment_type,omitempty"`
	ProcessingChannelID string         `json:"processing_channel_id,omitempty"`
	Source              map[string]any `json:"source,omitempty"`
	Customer            map[string]any `json:"customer,omitempty"`
	BillingAddress      map[string]any `json:"billing_address,omitempty"`
	ShippingAddress     map[string]any `json:"shipping_address,omitempty"`
	Risk                map[string]any `json:"risk,omitempty"`
	Metadata            map[string]any `json:"metadata,omitempty"`
	Links               map[string]any `json:"_links,omitempty"`
	ApprovedOn          *time.Time     `json:"approved_on,omitempty"`
	ExpiresOn           *time.Time     `json:"expires_on,omitempty"`
}

// SearchFilter narrows a payment search. Zero fields are not sent.
type SearchFilter struct {
	Reference string
	Status    string
	From      *time.Time
	To        *time.Time
	Limit     int
	Skip      int
}

// SearchResult is one page of gateway payments.
type SearchResult struct {
	Limit      int              `json:"limit,omitempty"`
	Skip       int              `json:"skip,omitempty"`
	TotalCount int              `json:"total_count,omitempty"`
	Data       []map[string]any `json:"data"`
}

// CaptureRequest captures an authorized payment. A nil amount captures
// the full amount.
type CaptureRequest struct {
	Amount         *int64         `json:"amount,omitempty"`
	Reference      string         `json:"reference,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	IdempotencyKey string         `json:"-"`
}

// RefundRequest refunds a captured payment.
type RefundRequest struct {
	Amount         int64          `json:"amount"`
	Reference      string         `json:"reference,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	IdempotencyKey string         `json:"-"`
}

// VoidRequest voids an authorized payment.
type VoidRequest struct {
	Reference      string `json:"reference,omitempty"`
	IdempotencyKey string `json:"-"`
}

// ActionResponse is returned by capture, refund and void. Some gateways
// only return action_id, so ID falls back to it.
type ActionResponse struct {
	ID              string `json:"id,omitempty"`
	ActionID        string `json:"action_id,omitempty"`
	Status          string `json:"status,omitempty"`
	Reference       string `json:"reference,omitempty"`
	ResponseCode    string `json:"response_code,omitempty"`
	ResponseSummary string `json:"response_summary,omitempty"`
}

// Identifier returns the gateway-assigned id of the action.
func (r *ActionResponse) Identifier() string {
	if r.ID != "" {
		return r.ID
	}
	return r.ActionID
}
