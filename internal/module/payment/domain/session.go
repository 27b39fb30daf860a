package domain

import (
	"slices"
	"time"

	"github.com/google/uuid"
)

// Session is a hosted checkout attempt for one merchant reference.
// It owns the payments made against it; each Payment keeps only the
// session id and reference.
type Session struct {
	ID             uuid.UUID
	GatewayID      string
	Reference      string
	Amount         int64
	Currency       Currency
	Description    string
	CustomerEmail  string
	CustomerName   string
	BillingAddress map[string]any
	SuccessURL     string
	CancelURL      string
	FailureURL     string
	PaymentURL     string
	Status         SessionStatus
	PaymentMethods []string
	Metadata       map[string]any
	ExpiresAt      *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time

	payments []*Payment
}

// NewSession creates a pending session expiring after ttl.
func NewSession(reference string, amount int64, currency Currency, ttl time.Duration) *Session {
	now := time.Now()
	s := &Session{
		ID:        uuid.New(),
		Reference: reference,
		Amount:    amount,
		Currency:  currency,
		Status:    SessionStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if ttl > 0 {
		expires := now.Add(ttl)
		s.ExpiresAt = &expires
	}
	return s
}

// Clone returns a copy of the session without its payment links.
func (s *Session) Clone() *Session {
	out := *s
	out.PaymentMethods = slices.Clone(s.PaymentMethods)
	out.payments = nil
	return &out
}

// Money returns the session amount.
func (s *Session) Money() Money {
	return NewMoney(s.Amount, s.Currency)
}

// IsExpired reports whether the session expiry has passed at now.
func (s *Session) IsExpired(now time.Time) bool {
	return s.ExpiresAt != nil && s.ExpiresAt.Before(now)
}

// MarkCreated records a successful hosted session creation.
func (s *Session) MarkCreated(gatewayID, paymentURL string) {
	s.GatewayID = gatewayID
	s.PaymentURL = paymentURL
	s.Status = SessionStatusCreated
	s.UpdatedAt = time.Now()
}

// MarkFailed records a failed hosted session creation.
func (s *Session) MarkFailed() {
	s.Status = SessionStatusFailed
	s.UpdatedAt = time.Now()
}

// SetStatus sets a gateway-reported status. Empty means unknown.
func (s *Session) SetStatus(status SessionStatus) bool {
	if status == "" {
		status = SessionStatusUnknown
	}
	if s.Status == status {
		return false
	}
	s.Status = status
	s.UpdatedAt = time.Now()
	return true
}

// ApplyEvent maps a webhook event type onto the session status. It returns
// false for event types that do not affect the session.
func (s *Session) ApplyEvent(eventType string) bool {
	status, ok := SessionStatusForEvent(eventType)
	if !ok {
		return false
	}
	return s.SetStatus(status)
}

// AddPayment links p to the session. Adding the same payment twice is a no-op.
func (s *Session) AddPayment(p *Payment) {
	p.sessionID = s.ID
	p.reference = s.Reference
	for _, existing := range s.payments {
		if existing.id == p.id {
			return
		}
	}
	s.payments = append(s.payments, p)
}

// Payments returns the payments linked to the session in memory.
func (s *Session) Payments() []*Payment {
	out := make([]*Payment, len(s.payments))
	copy(out, s.payments)
	return out
}
