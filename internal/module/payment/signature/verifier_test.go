package signature

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHMACVerifier_Verify(t *testing.T) {
	const secret = "whsec_test"
	payload := []byte(`{"id":"evt_1","type":"payment_captured","data":{"id":"pay_1","reference":"ref_1"}}`)
	valid := Sign(payload, secret)

	v := NewHMACVerifier(secret)

	tests := []struct {
		name      string
		payload   []byte
		signature string
		want      bool
	}{
		{"valid", payload, valid, true},
		{"upper case hex", payload, strings.ToUpper(valid), true},
		{"tampered payload", append([]byte(" "), payload...), valid, false},
		{"wrong secret", payload, Sign(payload, "other"), false},
		{"empty signature", payload, "", false},
		{"not hex", payload, "zz-not-hex", false},
		{"truncated", payload, valid[:20], false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, v.Verify(tt.payload, tt.signature))
		})
	}
}

func TestVerify_EmptySecret(t *testing.T) {
	payload := []byte(`{}`)
	assert.False(t, Verify(payload, Sign(payload, ""), nil))
}

func TestSign_Deterministic(t *testing.T) {
	payload := []byte("abc")
	assert.Equal(t, Sign(payload, "k"), Sign(payload, "k"))
	assert.Len(t, Sign(payload, "k"), 64)
}
