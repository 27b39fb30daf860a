package payment

import (
	"context"
	"errors"
	"fmt"

	"github.com/uniedit/checkout/internal/infra/lock"
	"github.com/uniedit/checkout/internal/module/payment/domain"
	"github.com/uniedit/checkout/internal/module/payment/gateway"
)

// Recorder records operation and webhook outcomes.
type Recorder interface {
	RecordOperation(operation, result string)
	RecordWebhook(eventType, outcome string)
	RecordExpiredSessions(n int64)
}

type nopRecorder struct{}

func (nopRecorder) RecordOperation(string, string) {}
func (nopRecorder) RecordWebhook(string, string)   {}
func (nopRecorder) RecordExpiredSessions(int64)    {}

func paymentLockKey(id string) string        { return "payment:" + id }
func sessionLockKey(reference string) string { return "session:" + reference }
func webhookLockKey(eventID string) string   { return "webhook:" + eventID }

// acquire takes a named lock, mapping a wait timeout onto
// domain.ErrLockNotAcquired.
func acquire(ctx context.Context, locker lock.Locker, key string) (func(), error) {
	release, err := locker.Acquire(ctx, key)
	if err != nil {
		if errors.Is(err, lock.ErrNotAcquired) {
			return nil, fmt.Errorf("lock %s: %w", key, domain.ErrLockNotAcquired)
		}
		return nil, fmt.Errorf("lock %s: %w", key, err)
	}
	return release, nil
}

// resultLabel maps an operation error onto a metrics label.
func resultLabel(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, domain.ErrNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrInvalidState):
		return "invalid_state"
	case errors.Is(err, domain.ErrAmountExceedsAvailable):
		return "amount_exceeds_available"
	case errors.Is(err, domain.ErrInvalidAmount):
		return "invalid_amount"
	case errors.Is(err, domain.ErrUpstream):
		return "upstream_error"
	case errors.Is(err, domain.ErrLockNotAcquired):
		return "lock_timeout"
	default:
		return "error"
	}
}

// updateFromPayment converts a gateway payment into a domain update.
func updateFromPayment(resp *gateway.PaymentResponse) domain.PaymentUpdate {
	u := domain.PaymentUpdate{
		Source:          resp.Source,
		Customer:        resp.Customer,
		BillingAddress:  resp.BillingAddress,
		ShippingAddress: resp.ShippingAddress,
		Risk:            resp.Risk,
		Metadata:        resp.Metadata,
		Links:           resp.Links,
		ApprovedOn:      resp.ApprovedOn,
		ExpiresOn:       resp.ExpiresOn,
	}
	if resp.Amount > 0 {
		amount := resp.Amount
		u.Amount = &amount
	}
	if resp.Currency != "" {
		c := domain.NewCurrency(resp.Currency)
		u.Currency = &c
	}
	if resp.Status != "" {
		status := domain.PaymentStatus(resp.Status)
		u.Status = &status
	}
	u.ResponseCode = nonEmpty(resp.ResponseCode)
	u.ResponseSummary = nonEmpty(resp.ResponseSummary)
	u.PaymentType = nonEmpty(resp.PaymentType)
	u.ProcessingChannelID = nonEmpty(resp.ProcessingChannelID)
	return u
}

func nonEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
