package entity

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/uniedit/checkout/internal/module/payment/domain"
	"gorm.io/datatypes"
)

// PaymentEntity is the GORM entity for Payment.
type PaymentEntity struct {
	ID                  string    `gorm:"primaryKey;size:64"`
	SessionID           uuid.UUID `gorm:"type:uuid;index"`
	Reference           string    `gorm:"index;size:255"`
	Amount              int64     `gorm:"not null"`
	Currency            string    `gorm:"size:3;not null"`
	Status              string    `gorm:"not null;index"`
	Approved            bool      `gorm:"default:false"`
	RefundedAmount      *int64
	ResponseCode        string
	ResponseSummary     string
	PaymentType         string
	ProcessingChannelID string
	Source              datatypes.JSON `gorm:"type:jsonb"`
	Customer            datatypes.JSON `gorm:"type:jsonb"`
	BillingAddress      datatypes.JSON `gorm:"type:jsonb"`
	ShippingAddress     datatypes.JSON `gorm:"type:jsonb"`
	Risk                datatypes.JSON `gorm:"type:jsonb"`
	Metadata            datatypes.JSON `gorm:"type:jsonb"`
	Links               datatypes.JSON `gorm:"type:jsonb"`
	ApprovedAt          *time.Time
	CapturedAt          *time.Time
	VoidedAt            *time.Time
	RefundedAt          *time.Time
	ExpiresAt           *time.Time
	Refunds             []*RefundEntity `gorm:"foreignKey:PaymentID;references:ID"`
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// TableName returns the database table name.
func (PaymentEntity) TableName() string {
	return "payments"
}

// ToDomain converts entity to domain Payment.
func (e *PaymentEntity) ToDomain() *domain.Payment {
	refunds := make([]*domain.Refund, 0, len(e.Refunds))
	for _, r := range e.Refunds {
		refunds = append(refunds, r.ToDomain())
	}
	return domain.RestorePayment(domain.PaymentState{
		ID:                  e.ID,
		SessionID:           e.SessionID,
		Reference:           e.Reference,
		Amount:              e.Amount,
		Currency:            domain.Currency(e.Currency),
		Status:              domain.PaymentStatus(e.Status),
		Approved:            e.Approved,
		RefundedAmount:      e.RefundedAmount,
		ResponseCode:        e.ResponseCode,
		ResponseSummary:     e.ResponseSummary,
		PaymentType:         e.PaymentType,
		ProcessingChannelID: e.ProcessingChannelID,
		Source:              fromJSON(e.Source),
		Customer:            fromJSON(e.Customer),
		BillingAddress:      fromJSON(e.BillingAddress),
		ShippingAddress:     fromJSON(e.ShippingAddress),
		Risk:                fromJSON(e.Risk),
		Metadata:            fromJSON(e.Metadata),
		Links:               fromJSON(e.Links),
		ApprovedAt:          e.ApprovedAt,
		CapturedAt:          e.CapturedAt,
		VoidedAt:            e.VoidedAt,
		RefundedAt:          e.RefundedAt,
		ExpiresAt:           e.ExpiresAt,
		Refunds:             refunds,
		CreatedAt:           e.CreatedAt,
		UpdatedAt:           e.UpdatedAt,
	})
}

// FromDomainPayment converts domain Payment to entity. Refunds are not
// included; they are written through RefundEntity.
func FromDomainPayment(p *domain.Payment) *PaymentEntity {
	s := p.State()
	return &PaymentEntity{
		ID:                  s.ID,
		SessionID:           s.SessionID,
		Reference:           s.Reference,
		Amount:              s.Amount,
		Currency:            string(s.Currency),
		Status:              string(s.Status),
		Approved:            s.Approved,
		RefundedAmount:      s.RefundedAmount,
		ResponseCode:        s.ResponseCode,
		ResponseSummary:     s.ResponseSummary,
		PaymentType:         s.PaymentType,
		ProcessingChannelID: s.ProcessingChannelID,
		Source:              toJSON(s.Source),
		Customer:            toJSON(s.Customer),
		BillingAddress:      toJSON(s.BillingAddress),
		ShippingAddress:     toJSON(s.ShippingAddress),
		Risk:                toJSON(s.Risk),
		Metadata:            toJSON(s.Metadata),
		Links:               toJSON(s.Links),
		ApprovedAt:          s.ApprovedAt,
		CapturedAt:          s.CapturedAt,
		VoidedAt:            s.VoidedAt,
		RefundedAt:          s.RefundedAt,
		ExpiresAt:           s.ExpiresAt,
		CreatedAt:           s.CreatedAt,
		UpdatedAt:           s.UpdatedAt,
	}
}

// RefundEntity is the GORM entity for Refund.
type RefundEntity struct {
	ID              string `gorm:"primaryKey;size:64"`
	PaymentID       string `gorm:"index;size:64;not null"`
	Amount          int64  `gorm:"not null"`
	Currency        string `gorm:"size:3;not null"`
	Status          string `gorm:"not null"`
	Reason          string
	Reference       string
	ResponseCode    string
	ResponseSummary string
	ProcessedAt     *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// TableName returns the database table name.
func (RefundEntity) TableName() string {
	return "payment_refunds"
}

// ToDomain converts entity to domain Refund.
func (e *RefundEntity) ToDomain() *domain.Refund {
	return &domain.Refund{
		ID:              e.ID,
		PaymentID:       e.PaymentID,
		Amount:          e.Amount,
		Currency:        domain.Currency(e.Currency),
		Status:          domain.RefundStatus(e.Status),
		Reason:          e.Reason,
		Reference:       e.Reference,
		ResponseCode:    e.ResponseCode,
		ResponseSummary: e.ResponseSummary,
		ProcessedAt:     e.ProcessedAt,
		CreatedAt:       e.CreatedAt,
		UpdatedAt:       e.UpdatedAt,
	}
}

// FromDomainRefund converts domain Refund to entity.
func FromDomainRefund(r *domain.Refund) *RefundEntity {
	return &RefundEntity{
		ID:              r.ID,
		PaymentID:       r.PaymentID,
		Amount:          r.Amount,
		Currency:        string(r.Currency),
		Status:          string(r.Status),
		Reason:          r.Reason,
		Reference:       r.Reference,
		ResponseCode:    r.ResponseCode,
		ResponseSummary: r.ResponseSummary,
		ProcessedAt:     r.ProcessedAt,
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
	}
}

func toJSON(m map[string]any) datatypes.JSON {
	if m == nil {
		return nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil
	}
	return datatypes.JSON(b)
}

func fromJSON(j datatypes.JSON) map[string]any {
	if len(j) == 0 || string(j) == "null" {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal(j, &m); err != nil {
		return nil
	}
	return m
}
