// Package signature authenticates inbound gateway webhooks.
package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Verifier checks webhook signatures against a shared secret.
type Verifier interface {
	Verify(payload []byte, signature string) bool
}

// HMACVerifier verifies hex-encoded HMAC-SHA256 signatures computed over
// the raw request body.
type HMACVerifier struct {
	secret []byte
}

// NewHMACVerifier creates a verifier for the given shared secret.
func NewHMACVerifier(secret string) *HMACVerifier {
	return &HMACVerifier{secret: []byte(secret)}
}

// Verify reports whether signature matches payload. It never panics and
// returns false for empty secrets, empty signatures and non-hex input.
func (v *HMACVerifier) Verify(payload []byte, signature string) bool {
	return Verify(payload, signature, v.secret)
}

// Verify computes HMAC-SHA256(secret, payload) and compares it to the
// hex signature in constant time.
func Verify(payload []byte, signature string, secret []byte) bool {
	if len(secret) == 0 || signature == "" {
		return false
	}
	supplied, err := hex.DecodeString(strings.TrimSpace(signature))
	if err != nil {
		return false
	}
	return hmac.Equal(compute(payload, secret), supplied)
}

// Sign returns the hex signature of payload.
func Sign(payload []byte, secret string) string {
	return hex.EncodeToString(compute(payload, []byte(secret)))
}

func compute(payload, secret []byte) []byte {
	mac := hmac.New(sha256.New, secret)
	mac.Write(payload)
	return mac.Sum(nil)
}
