package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func int64Ptr(v int64) *int64 { return &v }

func authorizedPayment(amount int64) *Payment {
	p := NewPayment("pay_test", amount, "USD")
	p.Approve(time.Now())
	return p
}

func capturedPayment(t *testing.T, amount int64) *Payment {
	t.Helper()
	p := authorizedPayment(amount)
	require.NoError(t, p.MarkCaptured("10000", "Approved", time.Now()))
	return p
}

// settledThen captures a payment and then moves it to status, the way a
// late webhook would.
func settledThen(t *testing.T, status PaymentStatus) *Payment {
	t.Helper()
	p := capturedPayment(t, 1000)
	p.Apply(PaymentUpdate{Status: &status}, time.Now())
	require.NotNil(t, p.CapturedAt())
	return p
}

func TestPayment_Predicates(t *testing.T) {
	tests := []struct {
		name       string
		payment    func(t *testing.T) *Payment
		capturable bool
		voidable   bool
		refundable bool
	}{
		{
			name:    "pending",
			payment: func(t *testing.T) *Payment { return NewPayment("pay_1", 1000, "USD") },
		},
		{
			name:       "authorized",
			payment:    func(t *testing.T) *Payment { return authorizedPayment(1000) },
			capturable: true,
			voidable:   true,
		},
		{
			name:       "captured",
			payment:    func(t *testing.T) *Payment { return capturedPayment(t, 1000) },
			refundable: true,
		},
		{
			name: "voided",
			payment: func(t *testing.T) *Payment {
				p := authorizedPayment(1000)
				require.NoError(t, p.MarkVoided("", "", time.Now()))
				return p
			},
		},
		{
			name: "declined",
			payment: func(t *testing.T) *Payment {
				p := authorizedPayment(1000)
				status := PaymentStatusDeclined
				p.Apply(PaymentUpdate{Status: &status}, time.Now())
				return p
			},
		},
		{
			name: "partially refunded",
			payment: func(t *testing.T) *Payment {
				p := capturedPayment(t, 1000)
				require.NoError(t, p.AddRefund(NewRefund("rf_1", 400, ""), time.Now()))
				return p
			},
			refundable: true,
		},
		{
			name: "fully refunded",
			payment: func(t *testing.T) *Payment {
				p := capturedPayment(t, 1000)
				require.NoError(t, p.AddRefund(NewRefund("rf_1", 1000, ""), time.Now()))
				return p
			},
		},
		{
			name:    "declined after capture",
			payment: func(t *testing.T) *Payment { return settledThen(t, PaymentStatusDeclined) },
		},
		{
			name:    "voided after capture",
			payment: func(t *testing.T) *Payment { return settledThen(t, PaymentStatusVoided) },
		},
		{
			name:    "expired after capture",
			payment: func(t *testing.T) *Payment { return settledThen(t, PaymentStatusExpired) },
		},
		{
			name: "unknown status keeps predicates closed",
			payment: func(t *testing.T) *Payment {
				p := NewPayment("pay_1", 1000, "USD")
				status := PaymentStatus("Retry Scheduled")
				p.Apply(PaymentUpdate{Status: &status}, time.Now())
				return p
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := tt.payment(t)
			assert.Equal(t, tt.capturable, p.Capturable(), "capturable")
			assert.Equal(t, tt.voidable, p.Voidable(), "voidable")
			assert.Equal(t, tt.refundable, p.Refundable(), "refundable")

			assert.Equal(t, p.Approved() && !p.Captured() && !p.Voided(), p.Capturable())
			assert.Equal(t, p.Status().impliesCapture() && !p.FullyRefunded(), p.Refundable())
			if p.Approved() {
				assert.True(t, p.Status().impliesApproval(), "approved payment in status %q", p.Status())
			}
		})
	}
}

func TestPaymentStatus_IsKnown(t *testing.T) {
	assert.True(t, PaymentStatusCaptured.IsKnown())
	assert.True(t, PaymentStatusCardVerificationDeclined.IsKnown())
	assert.False(t, PaymentStatus("Retry Scheduled").IsKnown())
}

func TestPayment_MarkCaptured(t *testing.T) {
	t.Run("captures authorized payment", func(t *testing.T) {
		p := authorizedPayment(10000)
		require.NoError(t, p.MarkCaptured("10000", "Approved", time.Now()))

		assert.Equal(t, PaymentStatusCaptured, p.Status())
		assert.NotNil(t, p.CapturedAt())
		assert.Nil(t, p.RefundedAmount())
		assert.Equal(t, "Approved", p.ResponseSummary())
	})

	t.Run("rejects voided payment", func(t *testing.T) {
		p := authorizedPayment(10000)
		require.NoError(t, p.MarkVoided("", "", time.Now()))

		err := p.MarkCaptured("", "", time.Now())
		assert.True(t, errors.Is(err, ErrInvalidState))
		assert.Equal(t, PaymentStatusVoided, p.Status())
	})

	t.Run("rejects second capture", func(t *testing.T) {
		p := capturedPayment(t, 10000)
		err := p.MarkCaptured("", "", time.Now())
		assert.True(t, errors.Is(err, ErrInvalidState))
	})
}

func TestPayment_RefundLifecycle(t *testing.T) {
	p := capturedPayment(t, 10000)

	amount, err := p.CheckRefund(int64Ptr(4000))
	require.NoError(t, err)
	require.NoError(t, p.AddRefund(NewRefund("rf_1", amount, ""), time.Now()))
	assert.Equal(t, int64(4000), p.RefundedTotal())
	assert.Equal(t, PaymentStatusPartiallyRefunded, p.Status())

	amount, err = p.CheckRefund(nil)
	require.NoError(t, err)
	assert.Equal(t, int64(6000), amount)
	require.NoError(t, p.AddRefund(NewRefund("rf_2", amount, ""), time.Now()))
	assert.Equal(t, int64(10000), p.RefundedTotal())
	assert.Equal(t, PaymentStatusRefunded, p.Status())
	assert.Len(t, p.Refunds(), 2)

	_, err = p.CheckRefund(int64Ptr(1))
	assert.True(t, errors.Is(err, ErrAmountExceedsAvailable))
}

func TestPayment_CheckRefund(t *testing.T) {
	t.Run("rejects amount over available", func(t *testing.T) {
		p := capturedPayment(t, 1000)
		_, err := p.CheckRefund(int64Ptr(1001))
		assert.True(t, errors.Is(err, ErrAmountExceedsAvailable))
	})

	t.Run("rejects non-positive amount", func(t *testing.T) {
		p := capturedPayment(t, 1000)
		_, err := p.CheckRefund(int64Ptr(0))
		assert.True(t, errors.Is(err, ErrInvalidAmount))
	})

	t.Run("rejects uncaptured payment", func(t *testing.T) {
		p := authorizedPayment(1000)
		_, err := p.CheckRefund(nil)
		assert.True(t, errors.Is(err, ErrInvalidState))
	})

	for _, status := range []PaymentStatus{PaymentStatusDeclined, PaymentStatusVoided, PaymentStatusExpired} {
		t.Run("rejects captured payment now "+string(status), func(t *testing.T) {
			p := settledThen(t, status)
			_, err := p.CheckRefund(int64Ptr(100))
			assert.True(t, errors.Is(err, ErrInvalidState))
			assert.Equal(t, status, p.Status())
		})
	}
}

func TestPayment_AddRefund(t *testing.T) {
	for _, status := range []RefundStatus{RefundStatusPending, RefundStatusDeclined, RefundStatusFailed} {
		t.Run(string(status)+" refund leaves the payment captured", func(t *testing.T) {
			p := capturedPayment(t, 1000)
			require.NoError(t, p.AddRefund(NewRefund("rf_1", 300, status), time.Now()))

			assert.Equal(t, int64(0), p.RefundedTotal())
			assert.Equal(t, PaymentStatusCaptured, p.Status())
			assert.Nil(t, p.RefundedAt())
			assert.Equal(t, int64(0), p.ApprovedRefundTotal())
			assert.Len(t, p.Refunds(), 1)
		})
	}

	t.Run("keeps refunded amount within bounds", func(t *testing.T) {
		p := capturedPayment(t, 1000)
		for i := 0; i < 4; i++ {
			amount, err := p.CheckRefund(int64Ptr(250))
			require.NoError(t, err)
			require.NoError(t, p.AddRefund(NewRefund("", amount, ""), time.Now()))
			assert.GreaterOrEqual(t, p.RefundedTotal(), int64(0))
			assert.LessOrEqual(t, p.RefundedTotal(), p.Amount())
		}
		assert.Equal(t, PaymentStatusRefunded, p.Status())
		assert.Equal(t, int64(0), p.AvailableRefund())
	})

	t.Run("sets refund currency from payment", func(t *testing.T) {
		p := capturedPayment(t, 1000)
		r := NewRefund("rf_1", 100, "")
		require.NoError(t, p.AddRefund(r, time.Now()))
		assert.Equal(t, Currency("USD"), r.Currency)
		assert.Equal(t, p.ID(), r.PaymentID)
	})
}

func TestPayment_Apply(t *testing.T) {
	t.Run("writes present fields only", func(t *testing.T) {
		p := authorizedPayment(5000)
		code := "20005"
		p.Apply(PaymentUpdate{ResponseCode: &code, Risk: map[string]any{"flagged": false}}, time.Now())

		assert.Equal(t, "20005", p.ResponseCode())
		assert.Equal(t, int64(5000), p.Amount())
		assert.Equal(t, PaymentStatusAuthorized, p.Status())
		assert.Equal(t, false, p.Risk()["flagged"])
	})

	t.Run("replaying the same update changes nothing", func(t *testing.T) {
		p := authorizedPayment(5000)
		status := PaymentStatusCaptured
		summary := "Approved"
		u := PaymentUpdate{Status: &status, ResponseSummary: &summary, Source: map[string]any{"type": "card"}}

		assert.True(t, p.Apply(u, time.Now()))
		before := p.State()

		assert.False(t, p.Apply(u, time.Now().Add(time.Minute)))
		assert.Equal(t, before, p.State())
	})

	t.Run("declined clears approval", func(t *testing.T) {
		p := authorizedPayment(5000)
		status := PaymentStatusDeclined
		p.Apply(PaymentUpdate{Status: &status}, time.Now())

		assert.False(t, p.Approved())
		assert.False(t, p.Capturable())
	})

	t.Run("ignores amount below refunded total", func(t *testing.T) {
		p := capturedPayment(t, 5000)
		require.NoError(t, p.AddRefund(NewRefund("rf_1", 3000, ""), time.Now()))
		p.Apply(PaymentUpdate{Amount: int64Ptr(1000)}, time.Now())

		assert.Equal(t, int64(5000), p.Amount())
	})

	t.Run("refunded status settles refunded amount", func(t *testing.T) {
		p := capturedPayment(t, 5000)
		status := PaymentStatusRefunded
		p.Apply(PaymentUpdate{Status: &status}, time.Now())

		assert.Equal(t, int64(5000), p.RefundedTotal())
		assert.False(t, p.Refundable())
	})
}

func TestSession_AddPayment(t *testing.T) {
	s := NewSession("ref_1", 5000, "GBP", time.Hour)
	p := NewPayment("pay_1", 5000, "GBP")

	s.AddPayment(p)
	s.AddPayment(p)

	assert.Equal(t, s.ID, p.SessionID())
	assert.Equal(t, "ref_1", p.Reference())
	assert.Len(t, s.Payments(), 1)
}

func TestSession_ApplyEvent(t *testing.T) {
	tests := []struct {
		eventType string
		expected  SessionStatus
		changed   bool
	}{
		{"payment_approved", SessionStatusPaid, true},
		{"payment_declined", SessionStatusFailed, true},
		{"payment_captured", SessionStatusCaptured, true},
		{"payment_refunded", SessionStatusRefunded, true},
		{"payment_voided", SessionStatusCancelled, true},
		{"payment_expired", SessionStatusExpired, true},
		{"dispute_received", SessionStatusCreated, false},
	}

	for _, tt := range tests {
		t.Run(tt.eventType, func(t *testing.T) {
			s := NewSession("ref_1", 5000, "GBP", time.Hour)
			s.MarkCreated("hps_1", "https://pay.example/hps_1")

			assert.Equal(t, tt.changed, s.ApplyEvent(tt.eventType))
			assert.Equal(t, tt.expected, s.Status)
		})
	}
}

func TestSession_IsExpired(t *testing.T) {
	s := NewSession("ref_1", 100, "USD", time.Hour)
	assert.False(t, s.IsExpired(time.Now()))
	assert.True(t, s.IsExpired(time.Now().Add(2*time.Hour)))

	noExpiry := NewSession("ref_2", 100, "USD", 0)
	assert.False(t, noExpiry.IsExpired(time.Now().Add(1000*time.Hour)))
}

func TestMoney_Display(t *testing.T) {
	tests := []struct {
		money    Money
		expected string
	}{
		{NewMoney(10000, "USD"), "100.00"},
		{NewMoney(5, "EUR"), "0.05"},
		{NewMoney(500, "JPY"), "500"},
		{NewMoney(1234, "KWD"), "1.234"},
	}

	for _, tt := range tests {
		t.Run(tt.money.Currency.String(), func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.money.Display())
		})
	}
	assert.Equal(t, "100.00 USD", NewMoney(10000, "USD").String())
}

func TestCurrency_Valid(t *testing.T) {
	assert.True(t, NewCurrency(" gbp ").Valid())
	assert.False(t, Currency("GB").Valid())
	assert.False(t, Currency("G1P").Valid())
}

func TestNewWebhookEvent(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		e := NewWebhookEvent("", "", []byte(`{"a":1}`), "abcdef0123456789")
		assert.Contains(t, e.EventID, "sha256:")
		assert.Equal(t, "unknown", e.EventType)
		assert.Equal(t, WebhookStatusPending, e.Status)
		assert.Equal(t, "abcdef0123...", e.TruncatedSignature())
	})

	t.Run("rejected events never share a dedupe key", func(t *testing.T) {
		a := NewWebhookEvent("evt_1", "payment_captured", nil, "x")
		b := NewWebhookEvent("evt_1", "payment_captured", nil, "x")
		a.MarkRejected("invalid signature")
		b.MarkRejected("invalid signature")

		assert.NotEqual(t, a.DedupeKey, b.DedupeKey)
		assert.Equal(t, WebhookStatusFailed, a.Status)
		assert.Equal(t, "invalid signature", a.ErrorMessage)
	})

	t.Run("verified events dedupe on event id", func(t *testing.T) {
		e := NewWebhookEvent("evt_1", "payment_captured", nil, "x")
		e.MarkVerified()
		assert.Equal(t, "evt_1", e.DedupeKey)
	})
}
