package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/google/uuid"
)

// WebhookEvent is the log record of one inbound gateway notification.
//
// DedupeKey carries the unique constraint: it is the gateway event id for
// verified deliveries and a random key for rejected ones.
type WebhookEvent struct {
	ID             uuid.UUID
	EventID        string
	DedupeKey      string
	EventType      string
	PaymentID      string
	Reference      string
	Payload        []byte
	Signature      string
	SignatureValid bool
	Status         WebhookStatus
	ErrorMessage   string
	ProcessedData  map[string]any
	Attempts       int
	ReceivedAt     time.Time
	ProcessedAt    *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// NewWebhookEvent creates a pending log entry. An empty event id is
// replaced by a digest of the payload so identical redeliveries collide.
func NewWebhookEvent(eventID, eventType string, payload []byte, signature string) *WebhookEvent {
	if eventID == "" {
		sum := sha256.Sum256(payload)
		eventID = "sha256:" + hex.EncodeToString(sum[:])
	}
	if eventType == "" {
		eventType = "unknown"
	}
	now := time.Now()
	return &WebhookEvent{
		ID:         uuid.New(),
		EventID:    eventID,
		EventType:  eventType,
		Payload:    payload,
		Signature:  signature,
		Status:     WebhookStatusPending,
		Attempts:   1,
		ReceivedAt: now,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// MarkVerified records a valid signature.
func (e *WebhookEvent) MarkVerified() {
	e.SignatureValid = true
	e.DedupeKey = e.EventID
}

// MarkRejected records a failed signature check.
func (e *WebhookEvent) MarkRejected(reason string) {
	e.SignatureValid = false
	e.DedupeKey = "rejected:" + e.ID.String()
	e.Status = WebhookStatusFailed
	e.ErrorMessage = reason
	e.UpdatedAt = time.Now()
}

// MarkProcessed records a successful apply and the data it applied.
func (e *WebhookEvent) MarkProcessed(data map[string]any) {
	now := time.Now()
	e.Status = WebhookStatusProcessed
	e.ErrorMessage = ""
	e.ProcessedData = data
	e.ProcessedAt = &now
	e.UpdatedAt = now
}

// MarkFailed records a failed apply.
func (e *WebhookEvent) MarkFailed(err error) {
	e.Status = WebhookStatusFailed
	e.ErrorMessage = err.Error()
	e.UpdatedAt = time.Now()
}

// Retry prepares a previously failed or interrupted entry for another
// attempt with a fresh delivery.
func (e *WebhookEvent) Retry(payload []byte, signature string) {
	e.Payload = payload
	e.Signature = signature
	e.Status = WebhookStatusPending
	e.ErrorMessage = ""
	e.Attempts++
	e.UpdatedAt = time.Now()
}

// IsProcessed reports whether the event was applied.
func (e *WebhookEvent) IsProcessed() bool {
	return e.Status == WebhookStatusProcessed
}

// TruncatedSignature returns a loggable prefix of the signature.
func (e *WebhookEvent) TruncatedSignature() string {
	return TruncateSignature(e.Signature)
}

// TruncateSignature shortens a signature for logs.
func TruncateSignature(sig string) string {
	if len(sig) <= 10 {
		return sig
	}
	return sig[:10] + "..."
}
