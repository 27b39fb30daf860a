package entity

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/uniedit/checkout/internal/module/payment/domain"
	"gorm.io/datatypes"
)

// SessionEntity is the GORM entity for Session.
type SessionEntity struct {
	ID             uuid.UUID `gorm:"type:uuid;primaryKey"`
	GatewayID      *string   `gorm:"uniqueIndex;size:64"`
	Reference      string    `gorm:"uniqueIndex;size:255;not null"`
	Amount         int64     `gorm:"not null"`
	Currency       string    `gorm:"size:3;not null"`
	Description    string
	CustomerEmail  string
	CustomerName   string
	BillingAddress datatypes.JSON `gorm:"type:jsonb"`
	SuccessURL     string
	CancelURL      string
	FailureURL     string
	PaymentURL     string
	Status         string         `gorm:"not null;index"`
	PaymentMethods pq.StringArray `gorm:"type:text[]"`
	Metadata       datatypes.JSON `gorm:"type:jsonb"`
	ExpiresAt      *time.Time     `gorm:"index"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// TableName returns the database table name.
func (SessionEntity) TableName() string {
	return "payment_sessions"
}

// ToDomain converts entity to domain Session.
func (e *SessionEntity) ToDomain() *domain.Session {
	var gatewayID string
	if e.GatewayID != nil {
		gatewayID = *e.GatewayID
	}
	return &domain.Session{
		ID:             e.ID,
		GatewayID:      gatewayID,
		Reference:      e.Reference,
		Amount:         e.Amount,
		Currency:       domain.Currency(e.Currency),
		Description:    e.Description,
		CustomerEmail:  e.CustomerEmail,
		CustomerName:   e.CustomerName,
		BillingAddress: fromJSON(e.BillingAddress),
		SuccessURL:     e.SuccessURL,
		CancelURL:      e.CancelURL,
		FailureURL:     e.FailureURL,
		PaymentURL:     e.PaymentURL,
		Status:         domain.SessionStatus(e.Status),
		PaymentMethods: []string(e.PaymentMethods),
		Metadata:       fromJSON(e.Metadata),
		ExpiresAt:      e.ExpiresAt,
		CreatedAt:      e.CreatedAt,
		UpdatedAt:      e.UpdatedAt,
	}
}

// FromDomainSession converts domain Session to entity.
func FromDomainSession(s *domain.Session) *SessionEntity {
	// sessions that failed at the gateway have no id; NULL keeps the
	// unique index satisfied
	var gatewayID *string
	if s.GatewayID != "" {
		id := s.GatewayID
		gatewayID = &id
	}
	return &SessionEntity{
		ID:             s.ID,
		GatewayID:      gatewayID,
		Reference:      s.Reference,
		Amount:         s.Amount,
		Currency:       string(s.Currency),
		Description:    s.Description,
		CustomerEmail:  s.CustomerEmail,
		CustomerName:   s.CustomerName,
		BillingAddress: toJSON(s.BillingAddress),
		SuccessURL:     s.SuccessURL,
		CancelURL:      s.CancelURL,
		FailureURL:     s.FailureURL,
		PaymentURL:     s.PaymentURL,
		Status:         string(s.Status),
		PaymentMethods: pq.StringArray(s.PaymentMethods),
		Metadata:       toJSON(s.Metadata),
		ExpiresAt:      s.ExpiresAt,
		CreatedAt:      s.CreatedAt,
		UpdatedAt:      s.UpdatedAt,
	}
}
