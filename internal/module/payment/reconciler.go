package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/uniedit/checkout/internal/infra/archive"
	"github.com/uniedit/checkout/internal/infra/lock"
	"github.com/uniedit/checkout/internal/module/payment/domain"
	"github.com/uniedit/checkout/internal/module/payment/signature"
	"go.uber.org/zap"
)

// Outcome is the result of receiving one webhook delivery.
type Outcome string

const (
	OutcomeProcessed Outcome = "processed"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeRejected  Outcome = "rejected"
	OutcomeIgnored   Outcome = "ignored"
	OutcomeFailed    Outcome = "failed"
)

const invalidSignatureReason = "invalid signature"

var (
	errMissingIdentifiers = errors.New("event data has no payment id or reference")
	errUnknownReference   = errors.New("no session for reference")
)

// ReceiveResult describes a handled delivery.
type ReceiveResult struct {
	Outcome Outcome
	Event   *domain.WebhookEvent
}

// webhookEnvelope is the outer shape of a gateway notification.
type webhookEnvelope struct {
	ID   string         `json:"id"`
	Type string         `json:"type"`
	Data map[string]any `json:"data"`
}

// Reconciler verifies inbound gateway events and applies them to local
// payment and session state.
type Reconciler struct {
	repo     Repository
	verifier signature.Verifier
	locker   lock.Locker
	archive  archive.Archive
	events   EventPublisher
	metrics  Recorder
	logger   *zap.Logger
	now      func() time.Time
}

// NewReconciler creates a webhook reconciler.
func NewReconciler(
	repo Repository,
	verifier signature.Verifier,
	locker lock.Locker,
	store archive.Archive,
	publisher EventPublisher,
	metrics Recorder,
	logger *zap.Logger,
) *Reconciler {
	if store == nil {
		store = archive.Nop{}
	}
	if publisher == nil {
		publisher = nopPublisher{}
	}
	if metrics == nil {
		metrics = nopRecorder{}
	}
	return &Reconciler{
		repo:     repo,
		verifier: verifier,
		locker:   locker,
		archive:  store,
		events:   publisher,
		metrics:  metrics,
		logger:   logger,
		now:      time.Now,
	}
}

// Receive handles one raw webhook delivery. payload must be the unparsed
// request body. An invalid signature is logged and reported as
// OutcomeRejected without touching payment or session state.
func (r *Reconciler) Receive(ctx context.Context, payload []byte, sig string) (*ReceiveResult, error) {
	if len(bytes.TrimSpace(payload)) == 0 {
		return nil, ErrEmptyPayload
	}

	var env webhookEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, fmt.Errorf("decode webhook: %v: %w", err, domain.ErrMalformedPayload)
	}

	event := domain.NewWebhookEvent(env.ID, env.Type, payload, sig)
	event.PaymentID = stringField(env.Data, "id")
	event.Reference = stringField(env.Data, "reference")

	logger := r.logger.With(
		zap.String("event_id", event.EventID),
		zap.String("event_type", event.EventType),
	)

	if !r.verifier.Verify(payload, sig) {
		return r.reject(ctx, event, logger)
	}
	event.MarkVerified()

	release, err := acquire(ctx, r.locker, webhookLockKey(event.EventID))
	if err != nil {
		return nil, err
	}
	defer release()

	inserted, err := r.repo.InsertWebhookEventIfAbsent(ctx, event)
	if err != nil {
		return nil, err
	}
	if !inserted {
		existing, err := r.repo.GetWebhookEventByDedupeKey(ctx, event.DedupeKey)
		if err != nil {
			return nil, err
		}
		if existing.IsProcessed() {
			logger.Info("duplicate webhook ignored", zap.Int("attempts", existing.Attempts))
			r.metrics.RecordWebhook(event.EventType, string(OutcomeDuplicate))
			return &ReceiveResult{Outcome: OutcomeDuplicate, Event: existing}, nil
		}

		existing.Retry(payload, sig)
		existing.EventType = event.EventType
		existing.PaymentID = event.PaymentID
		existing.Reference = event.Reference
		existing.SignatureValid = true
		event = existing
		if err := r.repo.UpdateWebhookEvent(ctx, event); err != nil {
			return nil, err
		}
		logger.Info("retrying webhook", zap.Int("attempts", event.Attempts))
	}

	r.archivePayload(ctx, event, logger)

	snapshot, applyErr := r.Apply(ctx, event.EventType, env.Data)
	outcome := OutcomeProcessed
	switch {
	case applyErr == nil:
		event.MarkProcessed(snapshot)
	case errors.Is(applyErr, errMissingIdentifiers):
		// retrying cannot help, so the entry is closed
		event.MarkProcessed(map[string]any{"skipped": applyErr.Error()})
		outcome = OutcomeIgnored
	case errors.Is(applyErr, errUnknownReference):
		// left failed so a redelivery after the session exists is applied
		event.MarkFailed(applyErr)
		outcome = OutcomeIgnored
	default:
		event.MarkFailed(applyErr)
		outcome = OutcomeFailed
	}

	if err := r.repo.UpdateWebhookEvent(ctx, event); err != nil {
		return nil, err
	}
	r.metrics.RecordWebhook(event.EventType, string(outcome))

	if outcome == OutcomeFailed {
		logger.Error("webhook processing failed", zap.Error(applyErr))
		return &ReceiveResult{Outcome: outcome, Event: event}, applyErr
	}
	logger.Info("webhook handled", zap.String("outcome", string(outcome)))
	return &ReceiveResult{Outcome: outcome, Event: event}, nil
}

// ValidationResult reports whether a delivery would be accepted.
type ValidationResult struct {
	Valid     bool   `json:"valid"`
	EventID   string `json:"event_id,omitempty"`
	EventType string `json:"event_type,omitempty"`
	PaymentID string `json:"payment_id,omitempty"`
	Reference string `json:"reference,omitempty"`
}

// Validate checks the signature of a raw delivery and extracts its
// identifiers. Nothing is locked, stored or applied.
func (r *Reconciler) Validate(payload []byte, sig string) (*ValidationResult, error) {
	if len(bytes.TrimSpace(payload)) == 0 {
		return nil, ErrEmptyPayload
	}

	var env webhookEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, fmt.Errorf("decode webhook: %v: %w", err, domain.ErrMalformedPayload)
	}

	res := &ValidationResult{
		Valid:     r.verifier.Verify(payload, sig),
		EventID:   env.ID,
		EventType: env.Type,
		PaymentID: stringField(env.Data, "id"),
		Reference: stringField(env.Data, "reference"),
	}
	if !res.Valid {
		r.logger.Debug("webhook validation failed",
			zap.String("event_id", env.ID),
			zap.String("event_type", env.Type),
		)
	}
	return res, nil
}

func (r *Reconciler) reject(ctx context.Context, event *domain.WebhookEvent, logger *zap.Logger) (*ReceiveResult, error) {
	event.MarkRejected(invalidSignatureReason)
	logger.Warn("webhook signature rejected",
		zap.String("signature", event.TruncatedSignature()),
		zap.String("payment_id", event.PaymentID),
	)

	if _, err := r.repo.InsertWebhookEventIfAbsent(ctx, event); err != nil {
		return nil, err
	}
	r.archivePayload(ctx, event, logger)
	r.metrics.RecordWebhook(event.EventType, string(OutcomeRejected))
	return &ReceiveResult{Outcome: OutcomeRejected, Event: event}, nil
}

func (r *Reconciler) archivePayload(ctx context.Context, event *domain.WebhookEvent, logger *zap.Logger) {
	key := fmt.Sprintf("webhooks/%s/%s.json", event.ReceivedAt.UTC().Format("2006/01/02"), event.ID)
	meta := map[string]string{
		"event-id":        event.EventID,
		"event-type":      event.EventType,
		"signature-valid": strconv.FormatBool(event.SignatureValid),
	}
	if err := r.archive.Put(ctx, key, event.Payload, meta); err != nil {
		logger.Warn("failed to archive webhook payload", zap.Error(err))
	}
}

// Apply writes one verified event onto the payment it names and the
// session owning its reference. It returns the applied snapshot.
//
// Events without a payment id or reference, and events for an unknown
// reference, change nothing.
func (r *Reconciler) Apply(ctx context.Context, eventType string, data map[string]any) (map[string]any, error) {
	paymentID := stringField(data, "id")
	reference := stringField(data, "reference")
	if paymentID == "" || reference == "" {
		r.logger.Warn("webhook data missing payment id or reference",
			zap.String("event_type", eventType),
			zap.String("payment_id", paymentID),
			zap.String("reference", reference),
		)
		return nil, errMissingIdentifiers
	}

	releasePayment, err := acquire(ctx, r.locker, paymentLockKey(paymentID))
	if err != nil {
		return nil, err
	}
	defer releasePayment()

	releaseSession, err := acquire(ctx, r.locker, sessionLockKey(reference))
	if err != nil {
		return nil, err
	}
	defer releaseSession()

	session, err := r.repo.GetSessionByReference(ctx, reference)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			r.logger.Warn("webhook for unknown session reference",
				zap.String("event_type", eventType),
				zap.String("payment_id", paymentID),
				zap.String("reference", reference),
			)
			return nil, fmt.Errorf("%w %q", errUnknownReference, reference)
		}
		return nil, err
	}

	now := r.now()
	created := false
	p, err := r.repo.GetPayment(ctx, paymentID)
	switch {
	case errors.Is(err, ErrPaymentNotFound):
		p = domain.NewPayment(paymentID, session.Amount, session.Currency)
		created = true
		r.logger.Info("payment first seen via webhook",
			zap.String("payment_id", paymentID),
			zap.String("reference", reference),
		)
	case err != nil:
		return nil, err
	}
	if created || p.SessionID() != session.ID {
		session.AddPayment(p)
	}

	from := p.Status()
	refund := r.refundFromEvent(p, eventType, data, now)
	changed := p.Apply(updateFromEvent(eventType, data), now)

	switch {
	case refund != nil:
		if err := r.repo.RecordRefund(ctx, p, refund); err != nil {
			return nil, err
		}
		r.events.Publish(newRefundRecorded(p, refund, SourceWebhook))
	case created || changed:
		if err := r.repo.SavePayment(ctx, p); err != nil {
			return nil, err
		}
	}
	if created || p.Status() != from {
		r.events.Publish(newPaymentStatusChanged(p, from, SourceWebhook))
	}

	sessionFrom := session.Status
	if session.ApplyEvent(eventType) {
		if err := r.repo.UpdateSession(ctx, session); err != nil {
			return nil, err
		}
		r.events.Publish(newSessionStatusChanged(session, sessionFrom))
	}

	snapshot := map[string]any{
		"payment_id":      p.ID(),
		"reference":       reference,
		"status":          p.Status().String(),
		"amount":          p.Amount(),
		"currency":        p.Currency().String(),
		"refunded_amount": p.RefundedTotal(),
		"session_status":  string(session.Status),
		"payment_created": created,
	}
	if refund != nil {
		snapshot["refund_id"] = refund.ID
	}
	return snapshot, nil
}

// refundFromEvent records a refund reported by a payment_refunded event
// unless a refund with the same action id is already known.
func (r *Reconciler) refundFromEvent(p *domain.Payment, eventType string, data map[string]any, now time.Time) *domain.Refund {
	if eventType != "payment_refunded" {
		return nil
	}
	actionID := stringField(data, "action_id")
	amount, ok := amountField(data, "amount")
	if actionID == "" || !ok || amount <= 0 || p.HasRefund(actionID) {
		return nil
	}

	refund := domain.NewRefund(actionID, amount, domain.RefundStatusApproved)
	refund.Reference = stringField(data, "reference")
	refund.ResponseCode = stringField(data, "response_code")
	refund.ResponseSummary = stringField(data, "response_summary")
	if err := p.AddRefund(refund, now); err != nil {
		r.logger.Warn("refund from webhook not recorded",
			zap.String("payment_id", p.ID()),
			zap.String("refund_id", actionID),
			zap.Int64("amount", amount),
			zap.Error(err),
		)
		return nil
	}
	return refund
}

// amountEvents carry the payment amount in data.amount. Action events
// carry the amount of the action instead.
var amountEvents = map[string]bool{
	"payment_approved":             true,
	"payment_pending":              true,
	"payment_declined":             true,
	"payment_expired":              true,
	"payment_authorization_failed": true,
	"card_verified":                true,
	"card_verification_declined":   true,
}

// updateFromEvent reads absolute field values from webhook data. A missing
// data.status falls back to the status the event type implies.
func updateFromEvent(eventType string, data map[string]any) domain.PaymentUpdate {
	var u domain.PaymentUpdate

	if amountEvents[eventType] {
		if amount, ok := amountField(data, "amount"); ok {
			u.Amount = &amount
		}
	}
	if c := stringField(data, "currency"); c != "" {
		currency := domain.NewCurrency(c)
		u.Currency = &currency
	}
	if s := stringField(data, "status"); s != "" {
		status := domain.PaymentStatus(s)
		u.Status = &status
	} else if status, ok := domain.PaymentStatusForEvent(eventType); ok {
		u.Status = &status
	}

	u.ResponseCode = nonEmpty(stringField(data, "response_code"))
	u.ResponseSummary = nonEmpty(stringField(data, "response_summary"))
	u.PaymentType = nonEmpty(stringField(data, "payment_type"))
	u.ProcessingChannelID = nonEmpty(stringField(data, "processing_channel_id"))
	u.Source = mapField(data, "source")
	u.Customer = mapField(data, "customer")
	u.BillingAddress = mapField(data, "billing_address")
	u.ShippingAddress = mapField(data, "shipping_address")
	u.Risk = mapField(data, "risk")
	u.Metadata = mapField(data, "metadata")
	u.Links = mapField(data, "_links")
	u.ApprovedOn = timeField(data, "approved_on")
	u.ExpiresOn = timeField(data, "expires_on")
	return u
}

// ListFailedWebhooks returns failed log entries, newest first.
func (r *Reconciler) ListFailedWebhooks(ctx context.Context, limit int) ([]*domain.WebhookEvent, error) {
	return r.repo.ListWebhookEventsByStatus(ctx, domain.WebhookStatusFailed, limit)
}

// GetWebhookEvent returns the log entry for a gateway event id.
func (r *Reconciler) GetWebhookEvent(ctx context.Context, eventID string) (*domain.WebhookEvent, error) {
	return r.repo.GetWebhookEvent(ctx, eventID)
}

// CleanupWebhookLog deletes processed entries created before the cutoff.
func (r *Reconciler) CleanupWebhookLog(ctx context.Context, before time.Time) (int64, error) {
	n, err := r.repo.DeleteWebhookEventsBefore(ctx, domain.WebhookStatusProcessed, before)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		r.logger.Info("webhook log cleaned up", zap.Int64("deleted", n), zap.Time("before", before))
	}
	return n, nil
}

func stringField(data map[string]any, key string) string {
	s, _ := data[key].(string)
	return s
}

func mapField(data map[string]any, key string) map[string]any {
	m, _ := data[key].(map[string]any)
	return m
}

// amountField reads an integer minor-unit amount.
func amountField(data map[string]any, key string) (int64, bool) {
	switch v := data[key].(type) {
	case int:
		return int64(v), v >= 0
	case int64:
		return v, v >= 0
	case json.Number:
		n, err := v.Int64()
		return n, err == nil && n >= 0
	case float64:
		if v < 0 || v != math.Trunc(v) || v > math.MaxInt64 {
			return 0, false
		}
		return int64(v), true
	case string:
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n < 0 {
			return 0, false
		}
		return n, true
	}
	return 0, false
}

func timeField(data map[string]any, key string) *time.Time {
	s := stringField(data, key)
	if s == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return nil
	}
	return &t
}
