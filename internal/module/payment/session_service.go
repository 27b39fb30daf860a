package payment

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/uniedit/checkout/internal/infra/lock"
	"github.com/uniedit/checkout/internal/module/payment/domain"
	"github.com/uniedit/checkout/internal/module/payment/gateway"
	"go.uber.org/zap"
)

// DefaultSessionTTL is used when neither the caller nor the config sets
// an expiry.
const DefaultSessionTTL = 24 * time.Hour

// CreateSessionInput requests a hosted payment session.
type CreateSessionInput struct {
	Reference      string         `validate:"required,max=255"`
	Amount         int64          `validate:"gt=0"`
	Currency       string         `validate:"required,iso4217"`
	Description    string         `validate:"max=1024"`
	CustomerEmail  string         `validate:"omitempty,email"`
	CustomerName   string         `validate:"max=255"`
	SuccessURL     string         `validate:"omitempty,url"`
	CancelURL      string         `validate:"omitempty,url"`
	FailureURL     string         `validate:"omitempty,url"`
	BillingAddress map[string]any
	Metadata       map[string]any
	PaymentMethods []string
	// TTL overrides the default session expiry.
	TTL            time.Duration `validate:"gte=0"`
}

// SessionService manages hosted payment sessions.
type SessionService struct {
	repo       Repository
	gateway    gateway.Client
	locker     lock.Locker
	events     EventPublisher
	metrics    Recorder
	validate   *validator.Validate
	defaultTTL time.Duration
	logger     *zap.Logger
}

// NewSessionService creates a new session service.
func NewSessionService(
	repo Repository,
	gw gateway.Client,
	locker lock.Locker,
	publisher EventPublisher,
	metrics Recorder,
	defaultTTL time.Duration,
	logger *zap.Logger,
) *SessionService {
	if publisher == nil {
		publisher = nopPublisher{}
	}
	if metrics == nil {
		metrics = nopRecorder{}
	}
	if defaultTTL <= 0 {
		defaultTTL = DefaultSessionTTL
	}
	return &SessionService{
		repo:       repo,
		gateway:    gw,
		locker:     locker,
		events:     publisher,
		metrics:    metrics,
		validate:   validator.New(validator.WithRequiredStructEnabled()),
		defaultTTL: defaultTTL,
		logger:     logger,
	}
}

// CreateSession creates a hosted session at the gateway and stores it.
// A gateway failure is stored as a failed session and returned.
func (s *SessionService) CreateSession(ctx context.Context, in CreateSessionInput) (*domain.Session, error) {
	session, err := s.createSession(ctx, in)
	s.metrics.RecordOperation("create_session", resultLabel(err))
	return session, err
}

func (s *SessionService) createSession(ctx context.Context, in CreateSessionInput) (*domain.Session, error) {
	in.Currency = strings.ToUpper(strings.TrimSpace(in.Currency))
	if err := s.validate.Struct(in); err != nil {
		return nil, validationError(err)
	}

	release, err := acquire(ctx, s.locker, sessionLockKey(in.Reference))
	if err != nil {
		return nil, err
	}
	defer release()

	if _, err := s.repo.GetSessionByReference(ctx, in.Reference); err == nil {
		return nil, fmt.Errorf("session reference %q already exists: %w", in.Reference, domain.ErrInvalidState)
	} else if !errors.Is(err, ErrSessionNotFound) {
		return nil, err
	}

	ttl := in.TTL
	if ttl == 0 {
		ttl = s.defaultTTL
	}
	session := domain.NewSession(in.Reference, in.Amount, domain.NewCurrency(in.Currency), ttl)
	session.Description = in.Description
	session.CustomerEmail = in.CustomerEmail
	session.CustomerName = in.CustomerName
	session.SuccessURL = in.SuccessURL
	session.CancelURL = in.CancelURL
	session.FailureURL = in.FailureURL
	session.BillingAddress = in.BillingAddress
	session.Metadata = in.Metadata
	session.PaymentMethods = in.PaymentMethods

	req := &gateway.HostedSessionRequest{
		Amount:         session.Amount,
		Currency:       session.Currency.String(),
		Reference:      session.Reference,
		Description:    session.Description,
		SuccessURL:     session.SuccessURL,
		CancelURL:      session.CancelURL,
		FailureURL:     session.FailureURL,
		BillingAddress: session.BillingAddress,
		Metadata:       session.Metadata,
		PaymentMethods: session.PaymentMethods,
	}
	if session.CustomerEmail != "" || session.CustomerName != "" {
		req.Customer = &gateway.Customer{Email: session.CustomerEmail, Name: session.CustomerName}
	}

	resp, gwErr := s.gateway.CreateHostedSession(ctx, req)
	if gwErr != nil {
		session.MarkFailed()
		if err := s.repo.CreateSession(ctx, session); err != nil {
			s.logger.Error("failed session could not be stored",
				zap.String("reference", session.Reference),
				zap.Error(err),
			)
		}
		s.logger.Error("hosted session creation failed",
			zap.String("reference", session.Reference),
			zap.Error(gwErr),
		)
		return nil, fmt.Errorf("create session %s: %w", session.Reference, gwErr)
	}

	session.MarkCreated(resp.ID, resp.PaymentURL())
	if err := s.repo.CreateSession(ctx, session); err != nil {
		return nil, err
	}

	s.events.Publish(newSessionStatusChanged(session, domain.SessionStatusPending))
	s.logger.Info("payment session created",
		zap.String("session_id", session.ID.String()),
		zap.String("reference", session.Reference),
		zap.String("amount", session.Money().String()),
	)
	return session, nil
}

// GetSession returns a stored session.
func (s *SessionService) GetSession(ctx context.Context, id uuid.UUID) (*domain.Session, error) {
	return s.repo.GetSession(ctx, id)
}

// GetSessionByReference returns the session for a merchant reference.
func (s *SessionService) GetSessionByReference(ctx context.Context, reference string) (*domain.Session, error) {
	return s.repo.GetSessionByReference(ctx, reference)
}

// GetSessionByGatewayID returns the session behind a gateway hosted
// session id, as carried on the success and failure redirects.
func (s *SessionService) GetSessionByGatewayID(ctx context.Context, gatewayID string) (*domain.Session, error) {
	if gatewayID == "" {
		return nil, ErrSessionNotFound
	}
	return s.repo.GetSessionByGatewayID(ctx, gatewayID)
}

// PaymentHistory returns the payments made against a reference, newest
// first. An unknown reference has no history.
func (s *SessionService) PaymentHistory(ctx context.Context, reference string) ([]*domain.Payment, error) {
	session, err := s.repo.GetSessionByReference(ctx, reference)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return []*domain.Payment{}, nil
		}
		return nil, err
	}
	return s.repo.ListPaymentsBySession(ctx, session.ID)
}

// SyncSession copies the gateway's session status onto the stored session.
func (s *SessionService) SyncSession(ctx context.Context, id uuid.UUID) (*domain.Session, error) {
	session, err := s.repo.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	if session.GatewayID == "" {
		return nil, fmt.Errorf("sync session %s without gateway id: %w", id, domain.ErrInvalidState)
	}

	release, err := acquire(ctx, s.locker, sessionLockKey(session.Reference))
	if err != nil {
		return nil, err
	}
	defer release()

	resp, err := s.gateway.GetHostedSession(ctx, session.GatewayID)
	if err != nil {
		return nil, fmt.Errorf("sync session %s: %w", id, err)
	}

	// reload under the lock so a concurrent webhook write is not lost
	session, err = s.repo.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	from := session.Status
	if session.SetStatus(domain.SessionStatus(resp.Status)) {
		if err := s.repo.UpdateSession(ctx, session); err != nil {
			return nil, err
		}
		s.events.Publish(newSessionStatusChanged(session, from))
		s.logger.Info("session synced",
			zap.String("session_id", id.String()),
			zap.String("from", string(from)),
			zap.String("status", string(session.Status)),
		)
	}
	return session, nil
}

// CleanupExpiredSessions deletes sessions still pending after their
// expiry and returns how many were removed.
func (s *SessionService) CleanupExpiredSessions(ctx context.Context, now time.Time) (int64, error) {
	n, err := s.repo.DeleteExpiredSessions(ctx, now)
	if err != nil {
		return 0, err
	}
	s.metrics.RecordExpiredSessions(n)
	if n > 0 {
		s.logger.Info("expired sessions deleted", zap.Int64("count", n))
	}
	return n, nil
}

// ValidationError lists the fields that failed validation.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for field, tag := range e.Fields {
		parts = append(parts, field+" failed "+tag)
	}
	slices.Sort(parts)
	return "validation failed: " + strings.Join(parts, ", ")
}

func (e *ValidationError) Is(target error) bool { return target == domain.ErrValidation }

func validationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%v: %w", err, domain.ErrValidation)
	}
	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		fields[fe.Field()] = fe.Tag()
	}
	return &ValidationError{Fields: fields}
}
