package entity

import (
	"time"

	"github.com/google/uuid"
	"github.com/uniedit/checkout/internal/module/payment/domain"
	"gorm.io/datatypes"
)

// WebhookEventEntity is the GORM entity for WebhookEvent.
type WebhookEventEntity struct {
	ID             uuid.UUID `gorm:"type:uuid;primaryKey"`
	EventID        string    `gorm:"index;size:255;not null"`
	DedupeKey      string    `gorm:"uniqueIndex;size:255;not null"`
	EventType      string    `gorm:"index;not null"`
	PaymentID      string    `gorm:"index;size:64"`
	Reference      string    `gorm:"size:255"`
	Payload        string    `gorm:"type:text"`
	Signature      string
	SignatureValid bool          `gorm:"default:false"`
	Status         string        `gorm:"not null;index"`
	ErrorMessage   string
	ProcessedData  datatypes.JSON `gorm:"type:jsonb"`
	Attempts       int            `gorm:"default:1"`
	ReceivedAt     time.Time
	ProcessedAt    *time.Time
	CreatedAt      time.Time `gorm:"index"`
	UpdatedAt      time.Time
}

// TableName returns the database table name.
func (WebhookEventEntity) TableName() string {
	return "payment_webhook_events"
}

// ToDomain converts entity to domain WebhookEvent.
func (e *WebhookEventEntity) ToDomain() *domain.WebhookEvent {
	return &domain.WebhookEvent{
		ID:             e.ID,
		EventID:        e.EventID,
		DedupeKey:      e.DedupeKey,
		EventType:      e.EventType,
		PaymentID:      e.PaymentID,
		Reference:      e.Reference,
		Payload:        []byte(e.Payload),
		Signature:      e.Signature,
		SignatureValid: e.SignatureValid,
		Status:         domain.WebhookStatus(e.Status),
		ErrorMessage:   e.ErrorMessage,
		ProcessedData:  fromJSON(e.ProcessedData),
		Attempts:       e.Attempts,
		ReceivedAt:     e.ReceivedAt,
		ProcessedAt:    e.ProcessedAt,
		CreatedAt:      e.CreatedAt,
		UpdatedAt:      e.UpdatedAt,
	}
}

// FromDomainWebhookEvent converts domain WebhookEvent to entity.
func FromDomainWebhookEvent(e *domain.WebhookEvent) *WebhookEventEntity {
	return &WebhookEventEntity{
		ID:             e.ID,
		EventID:        e.EventID,
		DedupeKey:      e.DedupeKey,
		EventType:      e.EventType,
		PaymentID:      e.PaymentID,
		Reference:      e.Reference,
		Payload:        string(e.Payload),
		Signature:      e.Signature,
		SignatureValid: e.SignatureValid,
		Status:         string(e.Status),
		ErrorMessage:   e.ErrorMessage,
		ProcessedData:  toJSON(e.ProcessedData),
		Attempts:       e.Attempts,
		ReceivedAt:     e.ReceivedAt,
		ProcessedAt:    e.ProcessedAt,
		CreatedAt:      e.CreatedAt,
		UpdatedAt:      e.UpdatedAt,
	}
}

// All returns every entity for migration.
func All() []any {
	return []any{
		&SessionEntity{},
		&PaymentEntity{},
		&RefundEntity{},
		&WebhookEventEntity{},
	}
}
