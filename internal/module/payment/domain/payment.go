package domain

import (
	"fmt"
	"maps"
	"reflect"
	"time"

	"github.com/google/uuid"
)

// Payment is one attempt to charge a session. It is the aggregate root for
// captures, voids and refunds.
type Payment struct {
	id                  string
	sessionID           uuid.UUID
	reference           string
	amount              int64
	currency            Currency
	status              PaymentStatus
	approved            bool
	refundedAmount      *int64
	responseCode        string
	responseSummary     string
	paymentType         string
	processingChannelID string
	source              map[string]any
	customer            map[string]any
	billingAddress      map[string]any
	shippingAddress     map[string]any
	risk                map[string]any
	metadata            map[string]any
	links               map[string]any
	approvedAt          *time.Time
	capturedAt          *time.Time
	voidedAt            *time.Time
	refundedAt          *time.Time
	expiresAt           *time.Time
	refunds             []*Refund
	createdAt           time.Time
	updatedAt           time.Time
}

// PaymentState is the persisted form of a Payment.
type PaymentState struct {
	ID                  string
	SessionID           uuid.UUID
	Reference           string
	Amount              int64
	Currency            Currency
	Status              PaymentStatus
	Approved            bool
	RefundedAmount      *int64
	ResponseCode        string
	ResponseSummary     string
	PaymentType         string
	ProcessingChannelID string
	Source              map[string]any
	Customer            map[string]any
	BillingAddress      map[string]any
	ShippingAddress     map[string]any
	Risk                map[string]any
	Metadata            map[string]any
	Links               map[string]any
	ApprovedAt          *time.Time
	CapturedAt          *time.Time
	VoidedAt            *time.Time
	RefundedAt          *time.Time
	ExpiresAt           *time.Time
	Refunds             []*Refund
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// NewPayment creates a Pending payment with a gateway-assigned id.
func NewPayment(id string, amount int64, currency Currency) *Payment {
	now := time.Now()
	return &Payment{
		id:        id,
		amount:    amount,
		currency:  currency,
		status:    PaymentStatusPending,
		createdAt: now,
		updatedAt: now,
	}
}

// RestorePayment recreates a Payment from persisted data.
func RestorePayment(s PaymentState) *Payment {
	p := &Payment{
		id:                  s.ID,
		sessionID:           s.SessionID,
		reference:           s.Reference,
		amount:              s.Amount,
		currency:            s.Currency,
		status:              s.Status,
		approved:            s.Approved,
		refundedAmount:      s.RefundedAmount,
		responseCode:        s.ResponseCode,
		responseSummary:     s.ResponseSummary,
		paymentType:         s.PaymentType,
		processingChannelID: s.ProcessingChannelID,
		source:              s.Source,
		customer:            s.Customer,
		billingAddress:      s.BillingAddress,
		shippingAddress:     s.ShippingAddress,
		risk:                s.Risk,
		metadata:            s.Metadata,
		links:               s.Links,
		approvedAt:          s.ApprovedAt,
		capturedAt:          s.CapturedAt,
		voidedAt:            s.VoidedAt,
		refundedAt:          s.RefundedAt,
		expiresAt:           s.ExpiresAt,
		createdAt:           s.CreatedAt,
		updatedAt:           s.UpdatedAt,
	}
	for _, r := range s.Refunds {
		r.PaymentID = p.id
		p.refunds = append(p.refunds, r)
	}
	return p
}

// State returns a copy of the payment's fields for persistence.
func (p *Payment) State() PaymentState {
	return PaymentState{
		ID:                  p.id,
		SessionID:           p.sessionID,
		Reference:           p.reference,
		Amount:              p.amount,
		Currency:            p.currency,
		Status:              p.status,
		Approved:            p.approved,
		RefundedAmount:      p.refundedAmount,
		ResponseCode:        p.responseCode,
		ResponseSummary:     p.responseSummary,
		PaymentType:         p.paymentType,
		ProcessingChannelID: p.processingChannelID,
		Source:              p.source,
		Customer:            p.customer,
		BillingAddress:      p.billingAddress,
		ShippingAddress:     p.shippingAddress,
		Risk:                p.risk,
		Metadata:            p.metadata,
		Links:               p.links,
		ApprovedAt:          p.approvedAt,
		CapturedAt:          p.capturedAt,
		VoidedAt:            p.voidedAt,
		RefundedAt:          p.refundedAt,
		ExpiresAt:           p.expiresAt,
		Refunds:             p.Refunds(),
		CreatedAt:           p.createdAt,
		UpdatedAt:           p.updatedAt,
	}
}

// --- Getters ---

func (p *Payment) ID() string                     { return p.id }
func (p *Payment) SessionID() uuid.UUID           { return p.sessionID }
func (p *Payment) Reference() string              { return p.reference }
func (p *Payment) Amount() int64                  { return p.amount }
func (p *Payment) Currency() Currency             { return p.currency }
func (p *Payment) Money() Money                   { return NewMoney(p.amount, p.currency) }
func (p *Payment) Status() PaymentStatus          { return p.status }
func (p *Payment) Approved() bool                 { return p.approved }
func (p *Payment) RefundedAmount() *int64         { return p.refundedAmount }
func (p *Payment) ResponseCode() string           { return p.responseCode }
func (p *Payment) ResponseSummary() string        { return p.responseSummary }
func (p *Payment) PaymentType() string            { return p.paymentType }
func (p *Payment) ProcessingChannelID() string    { return p.processingChannelID }
func (p *Payment) Source() map[string]any         { return p.source }
func (p *Payment) Customer() map[string]any       { return p.customer }
func (p *Payment) BillingAddress() map[string]any { return p.billingAddress }
func (p *Payment) ShippingAddress() map[string]any { return p.shippingAddress }
func (p *Payment) Risk() map[string]any            { return p.risk }
func (p *Payment) Metadata() map[string]any        { return p.metadata }
func (p *Payment) Links() map[string]any           { return p.links }
func (p *Payment) ApprovedAt() *time.Time          { return p.approvedAt }
func (p *Payment) CapturedAt() *time.Time          { return p.capturedAt }
func (p *Payment) VoidedAt() *time.Time            { return p.voidedAt }
func (p *Payment) RefundedAt() *time.Time          { return p.refundedAt }
func (p *Payment) ExpiresAt() *time.Time           { return p.expiresAt }
func (p *Payment) CreatedAt() time.Time            { return p.createdAt }
func (p *Payment) UpdatedAt() time.Time            { return p.updatedAt }

// Refunds returns the refunds recorded against the payment, oldest first.
func (p *Payment) Refunds() []*Refund {
	out := make([]*Refund, len(p.refunds))
	copy(out, p.refunds)
	return out
}

// --- Predicates ---

// Captured reports whether funds have been settled.
func (p *Payment) Captured() bool {
	return p.capturedAt != nil || p.status.impliesCapture()
}

// Voided reports whether the authorization was cancelled.
func (p *Payment) Voided() bool {
	return p.voidedAt != nil || p.status == PaymentStatusVoided
}

// RefundedTotal returns the refunded amount, treating null as zero.
func (p *Payment) RefundedTotal() int64 {
	if p.refundedAmount == nil {
		return 0
	}
	return *p.refundedAmount
}

// FullyRefunded reports whether nothing is left to refund.
func (p *Payment) FullyRefunded() bool {
	return p.status == PaymentStatusRefunded || p.RefundedTotal() >= p.amount
}

// AvailableRefund returns amount minus the refunded amount, floored at zero.
func (p *Payment) AvailableRefund() int64 {
	return max(0, p.amount-p.RefundedTotal())
}

// Capturable reports whether a capture may be requested.
func (p *Payment) Capturable() bool {
	return p.approved && !p.Captured() && !p.Voided()
}

// Voidable reports whether a void may be requested.
func (p *Payment) Voidable() bool {
	return p.approved && !p.Captured() && !p.Voided()
}

// Refundable reports whether a refund may be requested. Only a settled
// status qualifies: a capture timestamp survives a later Declined, Voided
// or Expired status.
func (p *Payment) Refundable() bool {
	return p.status.impliesCapture() && !p.FullyRefunded()
}

// HasRefund reports whether a refund with the given id is recorded.
func (p *Payment) HasRefund(id string) bool {
	for _, r := range p.refunds {
		if r.ID == id {
			return true
		}
	}
	return false
}

// ApprovedRefundTotal sums the amounts of approved refunds.
func (p *Payment) ApprovedRefundTotal() int64 {
	var total int64
	for _, r := range p.refunds {
		if r.IsApproved() {
			total += r.Amount
		}
	}
	return total
}

// --- Domain Methods ---

// Approve marks the payment approved by the gateway.
func (p *Payment) Approve(at time.Time) {
	p.setStatus(PaymentStatusAuthorized, at)
	p.approvedAt = &at
}

// MarkCaptured records a successful capture.
func (p *Payment) MarkCaptured(responseCode, responseSummary string, at time.Time) error {
	if !p.Capturable() {
		return fmt.Errorf("capture payment %s in status %q: %w", p.id, p.status, ErrInvalidState)
	}
	p.setStatus(PaymentStatusCaptured, at)
	p.setResponse(responseCode, responseSummary)
	p.updatedAt = at
	return nil
}

// MarkVoided records a successful void.
func (p *Payment) MarkVoided(responseCode, responseSummary string, at time.Time) error {
	if !p.Voidable() {
		return fmt.Errorf("void payment %s in status %q: %w", p.id, p.status, ErrInvalidState)
	}
	p.setStatus(PaymentStatusVoided, at)
	p.setResponse(responseCode, responseSummary)
	p.updatedAt = at
	return nil
}

// CheckRefund validates a refund request and resolves its amount. A nil
// amount means the whole available amount.
func (p *Payment) CheckRefund(amount *int64) (int64, error) {
	if !p.Refundable() {
		if p.status.impliesCapture() {
			return 0, fmt.Errorf("refund payment %s: nothing left to refund: %w", p.id, ErrAmountExceedsAvailable)
		}
		return 0, fmt.Errorf("refund payment %s in status %q: %w", p.id, p.status, ErrInvalidState)
	}
	available := p.AvailableRefund()
	if amount == nil {
		return available, nil
	}
	if *amount <= 0 {
		return 0, fmt.Errorf("refund amount %d: %w", *amount, ErrInvalidAmount)
	}
	if *amount > available {
		return 0, fmt.Errorf("refund %d of payment %s, available %d: %w", *amount, p.id, available, ErrAmountExceedsAvailable)
	}
	return *amount, nil
}

// AddRefund attaches a gateway-accepted refund. Only an approved refund
// changes the refunded total and status.
func (p *Payment) AddRefund(r *Refund, at time.Time) error {
	if r.Amount <= 0 {
		return fmt.Errorf("refund amount %d: %w", r.Amount, ErrInvalidAmount)
	}
	if r.IsApproved() && r.Amount > p.AvailableRefund() {
		return fmt.Errorf("refund %d of payment %s, available %d: %w", r.Amount, p.id, p.AvailableRefund(), ErrAmountExceedsAvailable)
	}
	previous := p.RefundedTotal()
	r.PaymentID = p.id
	if r.Currency == "" {
		r.Currency = p.currency
	}
	p.refunds = append(p.refunds, r)
	p.updatedAt = at
	if !r.IsApproved() {
		return nil
	}

	// refundedAmount may include refunds only reported by webhook, so it
	// never drops below the previous total.
	total := min(max(p.ApprovedRefundTotal(), previous+r.Amount), p.amount)
	p.refundedAmount = &total

	if total >= p.amount {
		p.status = PaymentStatusRefunded
	} else {
		p.status = PaymentStatusPartiallyRefunded
	}
	p.refundedAt = &at
	return nil
}

// PaymentUpdate carries gateway-reported fields. Nil fields are left alone.
type PaymentUpdate struct {
	Amount              *int64
	Currency            *Currency
	Status              *PaymentStatus
	ResponseCode        *string
	ResponseSummary     *string
	PaymentType         *string
	ProcessingChannelID *string
	Source              map[string]any
	Customer            map[string]any
	BillingAddress      map[string]any
	ShippingAddress     map[string]any
	Risk                map[string]any
	Metadata            map[string]any
	Links               map[string]any
	ApprovedOn          *time.Time
	ExpiresOn           *time.Time
}

// Apply writes absolute field values onto the payment. Applying the same
// update twice leaves the payment unchanged. It reports whether anything
// changed.
func (p *Payment) Apply(u PaymentUpdate, at time.Time) bool {
	changed := false

	// amount never drops below what has already been refunded
	if u.Amount != nil && *u.Amount >= 0 && *u.Amount >= p.RefundedTotal() && *u.Amount != p.amount {
		p.amount = *u.Amount
		changed = true
	}
	if u.Currency != nil && *u.Currency != "" && *u.Currency != p.currency {
		p.currency = *u.Currency
		changed = true
	}
	// approved_on goes first so a status implying approval keeps it
	if u.ApprovedOn != nil && p.approvedAt == nil {
		t := *u.ApprovedOn
		p.approvedAt = &t
		changed = true
	}
	if u.Status != nil && *u.Status != "" && *u.Status != p.status {
		p.setStatus(*u.Status, at)
		changed = true
	}
	if u.ExpiresOn != nil && (p.expiresAt == nil || !p.expiresAt.Equal(*u.ExpiresOn)) {
		t := *u.ExpiresOn
		p.expiresAt = &t
		changed = true
	}
	changed = setString(&p.responseCode, u.ResponseCode) || changed
	changed = setString(&p.responseSummary, u.ResponseSummary) || changed
	changed = setString(&p.paymentType, u.PaymentType) || changed
	changed = setString(&p.processingChannelID, u.ProcessingChannelID) || changed
	changed = setBlob(&p.source, u.Source) || changed
	changed = setBlob(&p.customer, u.Customer) || changed
	changed = setBlob(&p.billingAddress, u.BillingAddress) || changed
	changed = setBlob(&p.shippingAddress, u.ShippingAddress) || changed
	changed = setBlob(&p.risk, u.Risk) || changed
	changed = setBlob(&p.metadata, u.Metadata) || changed
	changed = setBlob(&p.links, u.Links) || changed

	if !changed {
		return false
	}
	p.updatedAt = at
	return true
}

// setStatus changes the status and keeps approved and the lifecycle
// timestamps consistent with it.
func (p *Payment) setStatus(s PaymentStatus, at time.Time) {
	p.status = s
	p.approved = s.impliesApproval()
	if p.approved && p.approvedAt == nil {
		p.approvedAt = &at
	}
	if s.impliesCapture() && p.capturedAt == nil {
		p.capturedAt = &at
	}
	switch s {
	case PaymentStatusVoided:
		if p.voidedAt == nil {
			p.voidedAt = &at
		}
	case PaymentStatusRefunded:
		if p.refundedAt == nil {
			p.refundedAt = &at
		}
		full := p.amount
		p.refundedAmount = &full
	}
}

func (p *Payment) setResponse(code, summary string) {
	if code != "" {
		p.responseCode = code
	}
	if summary != "" {
		p.responseSummary = summary
	}
}

func setString(dst *string, v *string) bool {
	if v == nil || *v == *dst {
		return false
	}
	*dst = *v
	return true
}

func setBlob(dst *map[string]any, v map[string]any) bool {
	if v == nil || blobEqual(*dst, v) {
		return false
	}
	*dst = maps.Clone(v)
	return true
}

func blobEqual(a, b map[string]any) bool {
	if len(a) == 0 && len(b) == 0 {
		return true
	}
	return reflect.DeepEqual(a, b)
}
