package payment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/uniedit/checkout/internal/module/payment/domain"
	"github.com/uniedit/checkout/internal/module/payment/entity"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository defines the interface for payment data access.
type Repository interface {
	// Session operations
	CreateSession(ctx context.Context, session *domain.Session) error
	UpdateSession(ctx context.Context, session *domain.Session) error
	GetSession(ctx context.Context, id uuid.UUID) (*domain.Session, error)
	GetSessionByReference(ctx context.Context, reference string) (*domain.Session, error)
	GetSessionByGatewayID(ctx context.Context, gatewayID string) (*domain.Session, error)
	DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error)

	// Payment operations
	GetPayment(ctx context.Context, id string) (*domain.Payment, error)
	SavePayment(ctx context.Context, payment *domain.Payment) error
	ListPaymentsBySession(ctx context.Context, sessionID uuid.UUID) ([]*domain.Payment, error)

	// Refund operations
	RecordRefund(ctx context.Context, payment *domain.Payment, refund *domain.Refund) error
	ListRefunds(ctx context.Context, paymentID string) ([]*domain.Refund, error)

	// Webhook event operations
	InsertWebhookEventIfAbsent(ctx context.Context, event *domain.WebhookEvent) (bool, error)
	GetWebhookEventByDedupeKey(ctx context.Context, key string) (*domain.WebhookEvent, error)
	GetWebhookEvent(ctx context.Context, eventID string) (*domain.WebhookEvent, error)
	UpdateWebhookEvent(ctx context.Context, event *domain.WebhookEvent) error
	ListWebhookEventsByStatus(ctx context.Context, status domain.WebhookStatus, limit int) ([]*domain.WebhookEvent, error)
	DeleteWebhookEventsBefore(ctx context.Context, status domain.WebhookStatus, before time.Time) (int64, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository creates a new payment repository.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

// --- Session Operations ---

func (r *repository) CreateSession(ctx context.Context, session *domain.Session) error {
	ent := entity.FromDomainSession(session)
	if err := r.db.WithContext(ctx).Create(ent).Error; err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

func (r *repository) UpdateSession(ctx context.Context, session *domain.Session) error {
	ent := entity.FromDomainSession(session)
	if err := r.db.WithContext(ctx).Save(ent).Error; err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	return nil
}

func (r *repository) GetSession(ctx context.Context, id uuid.UUID) (*domain.Session, error) {
	return r.findSession(ctx, "get session", "id = ?", id)
}

func (r *repository) GetSessionByReference(ctx context.Context, reference string) (*domain.Session, error) {
	return r.findSession(ctx, "get session by reference", "reference = ?", reference)
}

func (r *repository) GetSessionByGatewayID(ctx context.Context, gatewayID string) (*domain.Session, error) {
	return r.findSession(ctx, "get session by gateway id", "gateway_id = ?", gatewayID)
}

// findSession loads a session together with its payments.
func (r *repository) findSession(ctx context.Context, op, query string, arg any) (*domain.Session, error) {
	var ent entity.SessionEntity
	err := r.db.WithContext(ctx).First(&ent, query, arg).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	session := ent.ToDomain()
	payments, err := r.ListPaymentsBySession(ctx, session.ID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	for _, p := range payments {
		session.AddPayment(p)
	}
	return session, nil
}

func (r *repository) DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("status = ? AND expires_at IS NOT NULL AND expires_at < ?", string(domain.SessionStatusPending), now).
		Delete(&entity.SessionEntity{})
	if res.Error != nil {
		return 0, fmt.Errorf("delete expired sessions: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// --- Payment Operations ---

func (r *repository) GetPayment(ctx context.Context, id string) (*domain.Payment, error) {
	var ent entity.PaymentEntity
	err := r.db.WithContext(ctx).
		Preload("Refunds", func(db *gorm.DB) *gorm.DB {
			return db.Order("created_at ASC")
		}).
		First(&ent, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPaymentNotFound
		}
		return nil, fmt.Errorf("get payment: %w", err)
	}
	return ent.ToDomain(), nil
}

func (r *repository) SavePayment(ctx context.Context, payment *domain.Payment) error {
	if err := upsertPayment(r.db.WithContext(ctx), payment); err != nil {
		return fmt.Errorf("save payment: %w", err)
	}
	return nil
}

func upsertPayment(db *gorm.DB, payment *domain.Payment) error {
	ent := entity.FromDomainPayment(payment)
	return db.Omit("Refunds").Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		UpdateAll: true,
	}).Create(ent).Error
}

func (r *repository) ListPaymentsBySession(ctx context.Context, sessionID uuid.UUID) ([]*domain.Payment, error) {
	var entities []*entity.PaymentEntity
	err := r.db.WithContext(ctx).
		Preload("Refunds").
		Where("session_id = ?", sessionID).
		Order("created_at DESC").
		Find(&entities).Error
	if err != nil {
		return nil, fmt.Errorf("list payments by session: %w", err)
	}

	payments := make([]*domain.Payment, len(entities))
	for i, ent := range entities {
		payments[i] = ent.ToDomain()
	}
	return payments, nil
}

// --- Refund Operations ---

// RecordRefund stores a new refund and the payment totals it changed in
// one transaction.
func (r *repository) RecordRefund(ctx context.Context, payment *domain.Payment, refund *domain.Refund) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(entity.FromDomainRefund(refund)).Error; err != nil {
			return err
		}
		return upsertPayment(tx, payment)
	})
	if err != nil {
		return fmt.Errorf("record refund: %w", err)
	}
	return nil
}

func (r *repository) ListRefunds(ctx context.Context, paymentID string) ([]*domain.Refund, error) {
	var entities []*entity.RefundEntity
	err := r.db.WithContext(ctx).
		Where("payment_id = ?", paymentID).
		Order("created_at DESC").
		Find(&entities).Error
	if err != nil {
		return nil, fmt.Errorf("list refunds: %w", err)
	}

	refunds := make([]*domain.Refund, len(entities))
	for i, ent := range entities {
		refunds[i] = ent.ToDomain()
	}
	return refunds, nil
}

// --- Webhook Event Operations ---

// InsertWebhookEventIfAbsent inserts the event unless a row with the same
// dedupe key exists. It reports whether the row was inserted.
func (r *repository) InsertWebhookEventIfAbsent(ctx context.Context, event *domain.WebhookEvent) (bool, error) {
	ent := entity.FromDomainWebhookEvent(event)
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "dedupe_key"}},
			DoNothing: true,
		}).
		Create(ent)
	if res.Error != nil {
		return false, fmt.Errorf("insert webhook event: %w", res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) GetWebhookEventByDedupeKey(ctx context.Context, key string) (*domain.WebhookEvent, error) {
	var ent entity.WebhookEventEntity
	err := r.db.WithContext(ctx).First(&ent, "dedupe_key = ?", key).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrWebhookEventNotFound
		}
		return nil, fmt.Errorf("get webhook event by dedupe key: %w", err)
	}
	return ent.ToDomain(), nil
}

// GetWebhookEvent returns the log entry for a gateway event id, preferring
// the verified delivery over rejected ones.
func (r *repository) GetWebhookEvent(ctx context.Context, eventID string) (*domain.WebhookEvent, error) {
	var ent entity.WebhookEventEntity
	err := r.db.WithContext(ctx).
		Where("event_id = ?", eventID).
		Order("signature_valid DESC").
		Order("created_at DESC").
		First(&ent).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrWebhookEventNotFound
		}
		return nil, fmt.Errorf("get webhook event: %w", err)
	}
	return ent.ToDomain(), nil
}

func (r *repository) UpdateWebhookEvent(ctx context.Context, event *domain.WebhookEvent) error {
	ent := entity.FromDomainWebhookEvent(event)
	if err := r.db.WithContext(ctx).Save(ent).Error; err != nil {
		return fmt.Errorf("update webhook event: %w", err)
	}
	return nil
}

func (r *repository) ListWebhookEventsByStatus(ctx context.Context, status domain.WebhookStatus, limit int) ([]*domain.WebhookEvent, error) {
	var entities []*entity.WebhookEventEntity
	query := r.db.WithContext(ctx).
		Where("status = ?", string(status)).
		Order("created_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&entities).Error; err != nil {
		return nil, fmt.Errorf("list webhook events: %w", err)
	}

	events := make([]*domain.WebhookEvent, len(entities))
	for i, ent := range entities {
		events[i] = ent.ToDomain()
	}
	return events, nil
}

func (r *repository) DeleteWebhookEventsBefore(ctx context.Context, status domain.WebhookStatus, before time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("status = ? AND created_at < ?", string(status), before).
		Delete(&entity.WebhookEventEntity{})
	if res.Error != nil {
		return 0, fmt.Errorf("delete webhook events: %w", res.Error)
	}
	return res.RowsAffected, nil
}
