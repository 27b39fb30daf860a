package payment

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/uniedit/checkout/internal/module/payment/domain"
	apperrors "github.com/uniedit/checkout/internal/shared/errors"
)

// Module errors.
var (
	ErrPaymentNotFound      = fmt.Errorf("payment %w", domain.ErrNotFound)
	ErrSessionNotFound      = fmt.Errorf("session %w", domain.ErrNotFound)
	ErrWebhookEventNotFound = fmt.Errorf("webhook event %w", domain.ErrNotFound)
	ErrMissingSignature     = errors.New("missing webhook signature")
	ErrEmptyPayload         = errors.New("empty webhook payload")
)

// ToAppError maps module errors onto API errors. Unknown errors become
// internal errors.
func ToAppError(err error) *apperrors.AppError {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	switch {
	case errors.Is(err, ErrPaymentNotFound):
		return apperrors.NotFound("payment")
	case errors.Is(err, ErrSessionNotFound):
		return apperrors.NotFound("session")
	case errors.Is(err, ErrWebhookEventNotFound):
		return apperrors.NotFound("webhook event")
	case errors.Is(err, domain.ErrNotFound):
		return apperrors.NotFound("resource")
	case errors.Is(err, domain.ErrInvalidState):
		return apperrors.NewAppError("INVALID_STATE", err.Error(), http.StatusConflict, err)
	case errors.Is(err, domain.ErrAmountExceedsAvailable):
		return apperrors.NewAppError("AMOUNT_EXCEEDS_AVAILABLE", err.Error(), http.StatusUnprocessableEntity, err)
	case errors.Is(err, domain.ErrInvalidAmount):
		return apperrors.NewAppError("INVALID_AMOUNT", err.Error(), http.StatusBadRequest, err)
	case errors.Is(err, domain.ErrValidation):
		return apperrors.ValidationError(err.Error())
	case errors.Is(err, domain.ErrUpstream):
		return apperrors.NewAppError("UPSTREAM_ERROR", "payment gateway request failed", http.StatusBadGateway, err)
	case errors.Is(err, ErrMissingSignature), errors.Is(err, ErrEmptyPayload):
		return apperrors.BadRequest(err.Error())
	case errors.Is(err, domain.ErrMalformedPayload):
		return apperrors.NewAppError("MALFORMED_PAYLOAD", err.Error(), http.StatusBadRequest, err)
	case errors.Is(err, domain.ErrLockNotAcquired):
		return apperrors.NewAppError("CONCURRENT_UPDATE", "payment is being updated, retry later", http.StatusConflict, err)
	default:
		return apperrors.Internal("internal error", err)
	}
}
