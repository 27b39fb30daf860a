package payment

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/uniedit/checkout/internal/infra/lock"
	"github.com/uniedit/checkout/internal/module/payment/domain"
	"github.com/uniedit/checkout/internal/module/payment/gateway"
	"go.uber.org/zap"
)

// Service implements payment operations.
type Service struct {
	repo    Repository
	gateway gateway.Client
	locker  lock.Locker
	events  EventPublisher
	metrics Recorder
	logger  *zap.Logger
	now     func() time.Time
}

// NewService creates a new payment service.
func NewService(
	repo Repository,
	gw gateway.Client,
	locker lock.Locker,
	publisher EventPublisher,
	metrics Recorder,
	logger *zap.Logger,
) *Service {
	if publisher == nil {
		publisher = nopPublisher{}
	}
	if metrics == nil {
		metrics = nopRecorder{}
	}
	return &Service{
		repo:    repo,
		gateway: gw,
		locker:  locker,
		events:  publisher,
		metrics: metrics,
		logger:  logger,
		now:     time.Now,
	}
}

// CaptureInput holds capture parameters.
type CaptureInput struct {
	// Amount captures part of the payment. Nil captures the full amount.
	Amount         *int64
	Reference      string
	IdempotencyKey string
}

// Capture settles an authorized payment.
func (s *Service) Capture(ctx context.Context, paymentID string, in CaptureInput) (*domain.Payment, error) {
	p, err := s.capture(ctx, paymentID, in)
	s.metrics.RecordOperation("capture", resultLabel(err))
	return p, err
}

func (s *Service) capture(ctx context.Context, paymentID string, in CaptureInput) (*domain.Payment, error) {
	release, err := acquire(ctx, s.locker, paymentLockKey(paymentID))
	if err != nil {
		return nil, err
	}
	defer release()

	p, err := s.repo.GetPayment(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if !p.Capturable() {
		return nil, fmt.Errorf("capture payment %s in status %q: %w", paymentID, p.Status(), domain.ErrInvalidState)
	}
	if in.Amount != nil && (*in.Amount <= 0 || *in.Amount > p.Amount()) {
		return nil, fmt.Errorf("capture amount %d of %d: %w", *in.Amount, p.Amount(), domain.ErrInvalidAmount)
	}

	resp, err := s.gateway.CapturePayment(ctx, paymentID, &gateway.CaptureRequest{
		Amount:         in.Amount,
		Reference:      in.Reference,
		IdempotencyKey: in.IdempotencyKey,
	})
	if err != nil {
		s.logger.Error("capture failed at gateway",
			zap.String("payment_id", paymentID),
			zap.Error(err),
		)
		return nil, fmt.Errorf("capture payment %s: %w", paymentID, err)
	}

	from := p.Status()
	if err := p.MarkCaptured(resp.ResponseCode, resp.ResponseSummary, s.now()); err != nil {
		return nil, err
	}
	if err := s.repo.SavePayment(ctx, p); err != nil {
		s.logger.Error("captured payment could not be saved",
			zap.String("payment_id", paymentID),
			zap.String("action_id", resp.Identifier()),
			zap.Error(err),
		)
		return nil, err
	}

	s.events.Publish(newPaymentStatusChanged(p, from, SourceOperation))
	s.logger.Info("payment captured",
		zap.String("payment_id", paymentID),
		zap.String("action_id", resp.Identifier()),
		zap.String("amount", p.Money().String()),
	)
	return p, nil
}

// RefundInput holds refund parameters.
type RefundInput struct {
	// Amount refunds part of the payment. Nil refunds everything left.
	Amount         *int64
	Reference      string
	Reason         string
	IdempotencyKey string
}

// Refund returns funds for a captured payment.
func (s *Service) Refund(ctx context.Context, paymentID string, in RefundInput) (*domain.Refund, error) {
	r, err := s.refund(ctx, paymentID, in)
	s.metrics.RecordOperation("refund", resultLabel(err))
	return r, err
}

func (s *Service) refund(ctx context.Context, paymentID string, in RefundInput) (*domain.Refund, error) {
	release, err := acquire(ctx, s.locker, paymentLockKey(paymentID))
	if err != nil {
		return nil, err
	}
	defer release()

	p, err := s.repo.GetPayment(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	amount, err := p.CheckRefund(in.Amount)
	if err != nil {
		return nil, err
	}

	resp, err := s.gateway.RefundPayment(ctx, paymentID, &gateway.RefundRequest{
		Amount:         amount,
		Reference:      in.Reference,
		IdempotencyKey: in.IdempotencyKey,
	})
	if err != nil {
		s.logger.Error("refund failed at gateway",
			zap.String("payment_id", paymentID),
			zap.Int64("amount", amount),
			zap.Error(err),
		)
		return nil, fmt.Errorf("refund payment %s: %w", paymentID, err)
	}

	refundID := resp.Identifier()
	if refundID == "" {
		refundID = "rfd_" + uuid.NewString()
		s.logger.Warn("gateway returned no refund id, using local id",
			zap.String("payment_id", paymentID),
			zap.String("refund_id", refundID),
		)
	}

	now := s.now()
	refund := domain.NewRefund(refundID, amount, domain.NewRefundStatus(resp.Status))
	refund.Reason = in.Reason
	refund.Reference = in.Reference
	if refund.Reference == "" {
		refund.Reference = resp.Reference
	}
	refund.ResponseCode = resp.ResponseCode
	refund.ResponseSummary = resp.ResponseSummary

	from := p.Status()
	if err := p.AddRefund(refund, now); err != nil {
		return nil, err
	}
	if err := s.repo.RecordRefund(ctx, p, refund); err != nil {
		s.logger.Error("accepted refund could not be recorded",
			zap.String("payment_id", paymentID),
			zap.String("refund_id", refundID),
			zap.Int64("amount", amount),
			zap.Error(err),
		)
		return nil, err
	}

	s.events.Publish(newRefundRecorded(p, refund, SourceOperation))
	if p.Status() != from {
		s.events.Publish(newPaymentStatusChanged(p, from, SourceOperation))
	}
	s.logger.Info("payment refunded",
		zap.String("payment_id", paymentID),
		zap.String("refund_id", refundID),
		zap.String("amount", refund.Money().String()),
		zap.Int64("refunded_amount", p.RefundedTotal()),
		zap.String("status", p.Status().String()),
	)
	return refund, nil
}

// VoidInput holds void parameters.
type VoidInput struct {
	Reference      string
	IdempotencyKey string
}

// Void cancels an authorized payment.
func (s *Service) Void(ctx context.Context, paymentID string, in VoidInput) (*domain.Payment, error) {
	p, err := s.void(ctx, paymentID, in)
	s.metrics.RecordOperation("void", resultLabel(err))
	return p, err
}

func (s *Service) void(ctx context.Context, paymentID string, in VoidInput) (*domain.Payment, error) {
	release, err := acquire(ctx, s.locker, paymentLockKey(paymentID))
	if err != nil {
		return nil, err
	}
	defer release()

	p, err := s.repo.GetPayment(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if !p.Voidable() {
		return nil, fmt.Errorf("void payment %s in status %q: %w", paymentID, p.Status(), domain.ErrInvalidState)
	}

	resp, err := s.gateway.VoidPayment(ctx, paymentID, &gateway.VoidRequest{
		Reference:      in.Reference,
		IdempotencyKey: in.IdempotencyKey,
	})
	if err != nil {
		s.logger.Error("void failed at gateway",
			zap.String("payment_id", paymentID),
			zap.Error(err),
		)
		return nil, fmt.Errorf("void payment %s: %w", paymentID, err)
	}

	from := p.Status()
	if err := p.MarkVoided(resp.ResponseCode, resp.ResponseSummary, s.now()); err != nil {
		return nil, err
	}
	if err := s.repo.SavePayment(ctx, p); err != nil {
		s.logger.Error("voided payment could not be saved",
			zap.String("payment_id", paymentID),
			zap.Error(err),
		)
		return nil, err
	}

	s.events.Publish(newPaymentStatusChanged(p, from, SourceOperation))
	s.logger.Info("payment voided", zap.String("payment_id", paymentID))
	return p, nil
}

// DirectPaymentInput requests a card payment against an existing session.
type DirectPaymentInput struct {
	Reference      string
	Amount         int64
	Currency       domain.Currency
	Source         map[string]any
	Capture        *bool
	CustomerEmail  string
	CustomerName   string
	BillingAddress map[string]any
	Metadata       map[string]any
	IdempotencyKey string
}

// CreateDirectPayment charges a card for a known session reference and
// records the resulting payment.
func (s *Service) CreateDirectPayment(ctx context.Context, in DirectPaymentInput) (*domain.Payment, error) {
	release, err := acquire(ctx, s.locker, sessionLockKey(in.Reference))
	if err != nil {
		return nil, err
	}
	defer release()

	session, err := s.repo.GetSessionByReference(ctx, in.Reference)
	if err != nil {
		return nil, err
	}

	amount := in.Amount
	if amount == 0 {
		amount = session.Amount
	}
	currency := in.Currency
	if currency == "" {
		currency = session.Currency
	}

	req := &gateway.PaymentRequest{
		Amount:         amount,
		Currency:       currency.String(),
		Reference:      in.Reference,
		Source:         in.Source,
		Capture:        in.Capture,
		BillingAddress: in.BillingAddress,
		Metadata:       in.Metadata,
		IdempotencyKey: in.IdempotencyKey,
	}
	if in.CustomerEmail != "" || in.CustomerName != "" {
		req.Customer = &gateway.Customer{Email: in.CustomerEmail, Name: in.CustomerName}
	}

	resp, err := s.gateway.CreatePayment(ctx, req)
	if err != nil {
		s.logger.Error("direct payment failed at gateway",
			zap.String("reference", in.Reference),
			zap.Error(err),
		)
		return nil, fmt.Errorf("create direct payment for %s: %w", in.Reference, err)
	}

	p := domain.NewPayment(resp.ID, amount, currency)
	session.AddPayment(p)
	p.Apply(updateFromPayment(resp), s.now())

	if err := s.repo.SavePayment(ctx, p); err != nil {
		return nil, err
	}

	s.events.Publish(newPaymentStatusChanged(p, "", SourceDirect))
	s.logger.Info("direct payment created",
		zap.String("payment_id", p.ID()),
		zap.String("reference", in.Reference),
		zap.String("status", p.Status().String()),
	)
	return p, nil
}

// GetPayment returns a stored payment with its refunds.
func (s *Service) GetPayment(ctx context.Context, paymentID string) (*domain.Payment, error) {
	return s.repo.GetPayment(ctx, paymentID)
}

// ListRefunds returns the refunds of a stored payment, newest first.
func (s *Service) ListRefunds(ctx context.Context, paymentID string) ([]*domain.Refund, error) {
	if _, err := s.repo.GetPayment(ctx, paymentID); err != nil {
		return nil, err
	}
	return s.repo.ListRefunds(ctx, paymentID)
}

// GetPaymentDetails fetches the gateway's current view of a payment.
func (s *Service) GetPaymentDetails(ctx context.Context, paymentID string) (*gateway.PaymentResponse, error) {
	resp, err := s.gateway.GetPayment(ctx, paymentID)
	if err != nil {
		return nil, fmt.Errorf("get payment details %s: %w", paymentID, err)
	}
	return resp, nil
}

// PaymentActions lists the gateway actions on a payment.
func (s *Service) PaymentActions(ctx context.Context, paymentID string) ([]map[string]any, error) {
	actions, err := s.gateway.GetPaymentActions(ctx, paymentID)
	if err != nil {
		return nil, fmt.Errorf("get payment actions %s: %w", paymentID, err)
	}
	return actions, nil
}

// SearchPayments queries the gateway for payments matching filter.
func (s *Service) SearchPayments(ctx context.Context, filter *gateway.SearchFilter) (*gateway.SearchResult, error) {
	if filter == nil {
		filter = &gateway.SearchFilter{}
	}
	if filter.From != nil && filter.To != nil && filter.From.After(*filter.To) {
		return nil, fmt.Errorf("%w: from is after to", domain.ErrValidation)
	}
	res, err := s.gateway.SearchPayments(ctx, filter)
	if err != nil {
		s.logger.Error("search payments failed",
			zap.String("reference", filter.Reference),
			zap.String("status", filter.Status),
			zap.Error(err),
		)
		return nil, fmt.Errorf("search payments: %w", err)
	}
	return res, nil
}

// PaymentCaptures lists the capture actions on a payment.
func (s *Service) PaymentCaptures(ctx context.Context, paymentID string) ([]map[string]any, error) {
	return s.actionsOfType(ctx, paymentID, "Capture")
}

// PaymentVoids lists the void actions on a payment.
func (s *Service) PaymentVoids(ctx context.Context, paymentID string) ([]map[string]any, error) {
	return s.actionsOfType(ctx, paymentID, "Void")
}

func (s *Service) actionsOfType(ctx context.Context, paymentID, actionType string) ([]map[string]any, error) {
	actions, err := s.PaymentActions(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	out := make([]map[string]any, 0, len(actions))
	for _, a := range actions {
		if t, _ := a["type"].(string); strings.EqualFold(t, actionType) {
			out = append(out, a)
		}
	}
	return out, nil
}
