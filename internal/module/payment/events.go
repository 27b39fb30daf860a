package payment

import (
	"github.com/uniedit/checkout/internal/infra/events"
	"github.com/uniedit/checkout/internal/module/payment/domain"
)

// Event type constants.
const (
	PaymentStatusChangedType = "PaymentStatusChanged"
	RefundRecordedType       = "RefundRecorded"
	SessionStatusChangedType = "SessionStatusChanged"
)

// Transition sources.
const (
	SourceOperation = "operation"
	SourceWebhook   = "webhook"
	SourceDirect    = "direct"
)

// EventPublisher publishes domain events.
type EventPublisher interface {
	Publish(event events.Event)
}

type nopPublisher struct{}

func (nopPublisher) Publish(events.Event) {}

// PaymentStatusChangedEvent is emitted whenever a payment's status changes
// or a payment is first recorded.
type PaymentStatusChangedEvent struct {
	events.BaseEvent

	PaymentID string               `json:"payment_id"`
	Reference string               `json:"reference"`
	From      domain.PaymentStatus `json:"from,omitempty"`
	To        domain.PaymentStatus `json:"to"`
	Amount    int64                `json:"amount"`
	Currency  string               `json:"currency"`
	Source    string               `json:"source"`
}

func newPaymentStatusChanged(p *domain.Payment, from domain.PaymentStatus, source string) PaymentStatusChangedEvent {
	return PaymentStatusChangedEvent{
		BaseEvent: events.NewBaseEvent(PaymentStatusChangedType, p.ID(), "Payment"),
		PaymentID: p.ID(),
		Reference: p.Reference(),
		From:      from,
		To:        p.Status(),
		Amount:    p.Amount(),
		Currency:  p.Currency().String(),
		Source:    source,
	}
}

// RefundRecordedEvent is emitted when a refund is stored.
type RefundRecordedEvent struct {
	events.BaseEvent

	PaymentID      string              `json:"payment_id"`
	RefundID       string              `json:"refund_id"`
	Amount         int64               `json:"amount"`
	Currency       string              `json:"currency"`
	Status         domain.RefundStatus `json:"status"`
	RefundedAmount int64               `json:"refunded_amount"`
	Source         string              `json:"source"`
}

func newRefundRecorded(p *domain.Payment, r *domain.Refund, source string) RefundRecordedEvent {
	return RefundRecordedEvent{
		BaseEvent:      events.NewBaseEvent(RefundRecordedType, p.ID(), "Payment"),
		PaymentID:      p.ID(),
		RefundID:       r.ID,
		Amount:         r.Amount,
		Currency:       r.Currency.String(),
		Status:         r.Status,
		RefundedAmount: p.RefundedTotal(),
		Source:         source,
	}
}

// SessionStatusChangedEvent is emitted when a session's status changes.
type SessionStatusChangedEvent struct {
	events.BaseEvent

	Reference string               `json:"reference"`
	From      domain.SessionStatus `json:"from"`
	To        domain.SessionStatus `json:"to"`
}

func newSessionStatusChanged(s *domain.Session, from domain.SessionStatus) SessionStatusChangedEvent {
	return SessionStatusChangedEvent{
		BaseEvent: events.NewBaseEvent(SessionStatusChangedType, s.ID.String(), "Session"),
		Reference: s.Reference,
		From:      from,
		To:        s.Status,
	}
}

// EventRecorder records payment and session events as metrics.
type EventRecorder interface {
	RecordTransition(from, to, source string)
	RecordRefund(status, source, currency string, amount int64)
	RecordSessionTransition(from, to string)
}

// NewMetricsHandler feeds payment transitions, recorded refunds and
// session transitions into metrics.
func NewMetricsHandler(m EventRecorder) events.Handler {
	return events.Group{
		events.On(PaymentStatusChangedType, func(ev PaymentStatusChangedEvent) error {
			m.RecordTransition(orNone(string(ev.From)), string(ev.To), ev.Source)
			return nil
		}),
		events.On(RefundRecordedType, func(ev RefundRecordedEvent) error {
			m.RecordRefund(string(ev.Status), ev.Source, ev.Currency, ev.Amount)
			return nil
		}),
		events.On(SessionStatusChangedType, func(ev SessionStatusChangedEvent) error {
			m.RecordSessionTransition(orNone(string(ev.From)), string(ev.To))
			return nil
		}),
	}
}

func orNone(s string) string {
	if s == "" {
		return "none"
	}
	return s
}
