package domain

import "time"

// Refund is one refund attempt against a payment.
type Refund struct {
	ID              string
	PaymentID       string
	Amount          int64
	Currency        Currency
	Status          RefundStatus
	Reason          string
	Reference       string
	ResponseCode    string
	ResponseSummary string
	ProcessedAt     *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// NewRefund creates a refund from a gateway response. An empty status
// defaults to Approved.
func NewRefund(id string, amount int64, status RefundStatus) *Refund {
	if status == "" {
		status = RefundStatusApproved
	}
	now := time.Now()
	return &Refund{
		ID:          id,
		Amount:      amount,
		Status:      status,
		ProcessedAt: &now,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// IsApproved reports whether the refund counts towards the refunded total.
func (r *Refund) IsApproved() bool {
	return r.Status == RefundStatusApproved
}

// Money returns the refund amount.
func (r *Refund) Money() Money {
	return NewMoney(r.Amount, r.Currency)
}
