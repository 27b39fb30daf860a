package domain

import "strings"

// PaymentStatus is the gateway-reported status of a payment.
// The set is open: statuses the gateway introduces later are kept verbatim
// and IsKnown reports false for them. Operations gate on the payment
// predicates (Capturable, Refundable, Voidable), never on this value alone.
type PaymentStatus string

const (
	PaymentStatusPending                  PaymentStatus = "Pending"
	PaymentStatusAuthorized               PaymentStatus = "Authorized"
	PaymentStatusCaptured                 PaymentStatus = "Captured"
	PaymentStatusPartiallyRefunded        PaymentStatus = "Partially Refunded"
	PaymentStatusRefunded                 PaymentStatus = "Refunded"
	PaymentStatusVoided                   PaymentStatus = "Voided"
	PaymentStatusDeclined                 PaymentStatus = "Declined"
	PaymentStatusExpired                  PaymentStatus = "Expired"
	PaymentStatusCardVerified             PaymentStatus = "Card Verified"
	PaymentStatusCardVerificationDeclined PaymentStatus = "Card Verification Declined"
)

var knownPaymentStatuses = map[PaymentStatus]struct{}{
	PaymentStatusPending:                  {},
	PaymentStatusAuthorized:               {},
	PaymentStatusCaptured:                 {},
	PaymentStatusPartiallyRefunded:        {},
	PaymentStatusRefunded:                 {},
	PaymentStatusVoided:                   {},
	PaymentStatusDeclined:                 {},
	PaymentStatusExpired:                  {},
	PaymentStatusCardVerified:             {},
	PaymentStatusCardVerificationDeclined: {},
}

// IsKnown reports whether s is one of the enumerated statuses.
func (s PaymentStatus) IsKnown() bool {
	_, ok := knownPaymentStatuses[s]
	return ok
}

// impliesApproval reports whether a payment in status s has been approved.
func (s PaymentStatus) impliesApproval() bool {
	switch s {
	case PaymentStatusAuthorized, PaymentStatusCaptured,
		PaymentStatusPartiallyRefunded, PaymentStatusRefunded:
		return true
	}
	return false
}

// impliesCapture reports whether funds have been settled in status s.
func (s PaymentStatus) impliesCapture() bool {
	switch s {
	case PaymentStatusCaptured, PaymentStatusPartiallyRefunded, PaymentStatusRefunded:
		return true
	}
	return false
}

func (s PaymentStatus) String() string { return string(s) }

// SessionStatus is the status of a hosted payment session.
type SessionStatus string

const (
	SessionStatusPending   SessionStatus = "pending"
	SessionStatusCreated   SessionStatus = "created"
	SessionStatusActive    SessionStatus = "active"
	SessionStatusPaid      SessionStatus = "paid"
	SessionStatusCaptured  SessionStatus = "captured"
	SessionStatusRefunded  SessionStatus = "refunded"
	SessionStatusCancelled SessionStatus = "cancelled"
	SessionStatusExpired   SessionStatus = "expired"
	SessionStatusFailed    SessionStatus = "failed"
	SessionStatusUnknown   SessionStatus = "unknown"
)

// sessionStatusByEvent maps webhook event types onto session statuses.
var sessionStatusByEvent = map[string]SessionStatus{
	"payment_approved": SessionStatusPaid,
	"payment_declined": SessionStatusFailed,
	"payment_captured": SessionStatusCaptured,
	"payment_refunded": SessionStatusRefunded,
	"payment_voided":   SessionStatusCancelled,
	"payment_expired":  SessionStatusExpired,
}

// SessionStatusForEvent returns the session status an event type implies.
// ok is false for event types that do not affect the session.
func SessionStatusForEvent(eventType string) (status SessionStatus, ok bool) {
	status, ok = sessionStatusByEvent[eventType]
	return status, ok
}

// paymentStatusByEvent is used when a webhook payload omits data.status.
// payment_refunded has no entry since it is also sent for partial refunds.
var paymentStatusByEvent = map[string]PaymentStatus{
	"payment_approved":             PaymentStatusAuthorized,
	"payment_declined":             PaymentStatusDeclined,
	"payment_captured":             PaymentStatusCaptured,
	"payment_voided":               PaymentStatusVoided,
	"payment_expired":              PaymentStatusExpired,
	"payment_pending":              PaymentStatusPending,
	"card_verified":                PaymentStatusCardVerified,
	"card_verification_declined":   PaymentStatusCardVerificationDeclined,
	"payment_authorization_failed": PaymentStatusDeclined,
}

// PaymentStatusForEvent returns the payment status an event type implies.
func PaymentStatusForEvent(eventType string) (status PaymentStatus, ok bool) {
	status, ok = paymentStatusByEvent[eventType]
	return status, ok
}

// RefundStatus is the status of a refund attempt.
type RefundStatus string

const (
	RefundStatusPending    RefundStatus = "pending"
	RefundStatusApproved   RefundStatus = "Approved"
	RefundStatusDeclined   RefundStatus = "Declined"
	RefundStatusFailed     RefundStatus = "Failed"
	RefundStatusProcessing RefundStatus = "Processing"
)

var refundStatuses = []RefundStatus{
	RefundStatusPending, RefundStatusApproved, RefundStatusDeclined,
	RefundStatusFailed, RefundStatusProcessing,
}

// NewRefundStatus matches a gateway status case-insensitively against the
// known refund statuses. Empty means Approved; unknown values are kept.
func NewRefundStatus(s string) RefundStatus {
	s = strings.TrimSpace(s)
	if s == "" {
		return RefundStatusApproved
	}
	for _, known := range refundStatuses {
		if strings.EqualFold(s, string(known)) {
			return known
		}
	}
	return RefundStatus(s)
}

// WebhookStatus is the processing status of a logged webhook event.
type WebhookStatus string

const (
	WebhookStatusPending   WebhookStatus = "pending"
	WebhookStatusProcessed WebhookStatus = "processed"
	WebhookStatusFailed    WebhookStatus = "failed"
)
