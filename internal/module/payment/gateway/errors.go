package gateway

import (
	"errors"
	"fmt"

	"github.com/uniedit/checkout/internal/module/payment/domain"
)

// UpstreamError wraps every failed gateway call: transport errors,
// non-2xx responses and undecodable bodies.
type UpstreamError struct {
	Op         string
	StatusCode int
	Body       string
	Err        error
}

func (e *UpstreamError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("gateway %s: status %d: %s", e.Op, e.StatusCode, e.Body)
	}
	return fmt.Sprintf("gateway %s: %v", e.Op, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// Is makes every UpstreamError match domain.ErrUpstream.
func (e *UpstreamError) Is(target error) bool {
	return target == domain.ErrUpstream
}

// Retryable reports whether the failure is on the gateway side.
func (e *UpstreamError) Retryable() bool {
	return e.StatusCode == 0 || e.StatusCode >= 500 || e.StatusCode == 429
}

// AsUpstream extracts an UpstreamError from err.
func AsUpstream(err error) (*UpstreamError, bool) {
	var ue *UpstreamError
	if errors.As(err, &ue) {
		return ue, true
	}
	return nil, false
}
