package payment

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/uniedit/checkout/internal/module/payment/domain"
	"github.com/uniedit/checkout/internal/module/payment/gateway"
	"github.com/uniedit/checkout/internal/module/payment/signature"
	"github.com/uniedit/checkout/internal/shared/response"
	"go.uber.org/zap"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestRouter(f *fixture) *gin.Engine {
	r := gin.New()
	logger := zap.NewNop()

	api := r.Group("/api/v1")
	NewHandler(f.payments, f.sessions, logger).RegisterRoutes(api)
	webhooks := NewWebhookHandler(f.reconciler, "", logger)
	webhooks.RegisterLogRoutes(api)
	webhooks.RegisterRoutes(r.Group("/webhooks"))
	return r
}

func doRequest(r http.Handler, method, path string, body []byte, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeBody[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestHandler_Sessions(t *testing.T) {
	t.Run("create", func(t *testing.T) {
		f := newFixture(t)
		r := newTestRouter(f)
		f.gateway.On("CreateHostedSession", mock.Anything, mock.Anything).Return(&gateway.HostedSessionResponse{
			ID:       "hps_http",
			HALLinks: map[string]any{"redirect": map[string]any{"href": "https://pay.example/r"}},
		}, nil)

		body := []byte(`{"reference":"ord_http","amount":2500,"currency":"gbp","expires_in":600}`)
		w := doRequest(r, http.MethodPost, "/api/v1/sessions", body, nil)

		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
		resp := decodeBody[SessionResponse](t, w)
		assert.Equal(t, "GBP", resp.Currency)
		assert.Equal(t, "https://pay.example/r", resp.PaymentURL)
		assert.Equal(t, "created", resp.Status)
	})

	t.Run("create with bad body", func(t *testing.T) {
		f := newFixture(t)
		w := doRequest(newTestRouter(f), http.MethodPost, "/api/v1/sessions", []byte(`{"amount":"x"}`), nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("create with unknown currency", func(t *testing.T) {
		f := newFixture(t)
		body := []byte(`{"reference":"ord_bad","amount":100,"currency":"ZZZ"}`)
		w := doRequest(newTestRouter(f), http.MethodPost, "/api/v1/sessions", body, nil)
		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
		assert.Equal(t, "VALIDATION_ERROR", decodeBody[response.ErrorResponse](t, w).Code)
	})

	t.Run("get", func(t *testing.T) {
		f := newFixture(t)
		r := newTestRouter(f)
		s := f.seedSession(t, "ref_get", 1000, "USD")

		w := doRequest(r, http.MethodGet, "/api/v1/sessions/"+s.ID.String(), nil, nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "ref_get", decodeBody[SessionResponse](t, w).Reference)

		w = doRequest(r, http.MethodGet, "/api/v1/references/ref_get", nil, nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, s.ID, decodeBody[SessionResponse](t, w).ID)
	})

	t.Run("get by gateway session id", func(t *testing.T) {
		f := newFixture(t)
		r := newTestRouter(f)
		s := f.seedSession(t, "ref_gw", 1000, "USD")

		w := doRequest(r, http.MethodGet, "/api/v1/gateway-sessions/hps_ref_gw", nil, nil)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		assert.Equal(t, s.ID, decodeBody[SessionResponse](t, w).ID)

		w = doRequest(r, http.MethodGet, "/api/v1/gateway-sessions/hps_nope", nil, nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("redirect returns", func(t *testing.T) {
		f := newFixture(t)
		r := newTestRouter(f)
		s := f.seedSession(t, "ref_ret", 1000, "USD")

		w := doRequest(r, http.MethodGet, "/api/v1/returns/success?sessionId=hps_ref_ret", nil, nil)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		ret := decodeBody[ReturnResponse](t, w)
		assert.Equal(t, "success", ret.Result)
		require.NotNil(t, ret.Session)
		assert.Equal(t, s.ID, ret.Session.ID)

		w = doRequest(r, http.MethodGet, "/api/v1/returns/failure?sessionId=hps_ref_ret", nil, nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "failure", decodeBody[ReturnResponse](t, w).Result)

		w = doRequest(r, http.MethodGet, "/api/v1/returns/success", nil, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)

		w = doRequest(r, http.MethodGet, "/api/v1/returns/failure?sessionId=hps_unknown", nil, nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("get with bad id", func(t *testing.T) {
		f := newFixture(t)
		w := doRequest(newTestRouter(f), http.MethodGet, "/api/v1/sessions/not-a-uuid", nil, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("get unknown", func(t *testing.T) {
		f := newFixture(t)
		w := doRequest(newTestRouter(f), http.MethodGet, "/api/v1/sessions/"+uuid.NewString(), nil, nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Equal(t, "NOT_FOUND", decodeBody[response.ErrorResponse](t, w).Code)
	})

	t.Run("history", func(t *testing.T) {
		f := newFixture(t)
		r := newTestRouter(f)
		s := f.seedSession(t, "ref_hist", 1000, "USD")
		f.seedPayment(t, s, "pay_hist", 1000, true, false)

		w := doRequest(r, http.MethodGet, "/api/v1/references/ref_hist/payments", nil, nil)
		require.Equal(t, http.StatusOK, w.Code)
		body := decodeBody[map[string][]PaymentResponse](t, w)
		require.Len(t, body["payments"], 1)
		assert.Equal(t, "pay_hist", body["payments"][0].ID)

		w = doRequest(r, http.MethodGet, "/api/v1/references/nobody/payments", nil, nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Empty(t, decodeBody[map[string][]PaymentResponse](t, w)["payments"])
	})
}

func TestHandler_Payments(t *testing.T) {
	t.Run("capture forwards idempotency key", func(t *testing.T) {
		f := newFixture(t)
		r := newTestRouter(f)
		s := f.seedSession(t, "ref_cap", 1000, "USD")
		f.seedPayment(t, s, "pay_cap", 1000, true, false)
		f.gateway.On("CapturePayment", mock.Anything, "pay_cap", mock.MatchedBy(func(req *gateway.CaptureRequest) bool {
			return req.IdempotencyKey == "idem-1" && req.Amount == nil
		})).Return(&gateway.ActionResponse{ActionID: "act_1", ResponseCode: "10000"}, nil)

		w := doRequest(r, http.MethodPost, "/api/v1/payments/pay_cap/capture", nil, map[string]string{IdempotencyKeyHeader: "idem-1"})

		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		resp := decodeBody[PaymentResponse](t, w)
		assert.Equal(t, domain.PaymentStatusCaptured.String(), resp.Status)
		assert.True(t, resp.Refundable)
		f.gateway.AssertExpectations(t)
	})

	t.Run("capture voided is conflict", func(t *testing.T) {
		f := newFixture(t)
		r := newTestRouter(f)
		s := f.seedSession(t, "ref_v", 1000, "USD")
		p := f.seedPayment(t, s, "pay_v", 1000, true, false)
		require.NoError(t, p.MarkVoided("10000", "Approved", p.UpdatedAt()))
		require.NoError(t, f.repo.SavePayment(t.Context(), p))

		w := doRequest(r, http.MethodPost, "/api/v1/payments/pay_v/capture", nil, nil)
		assert.Equal(t, http.StatusConflict, w.Code)
		assert.Equal(t, "INVALID_STATE", decodeBody[response.ErrorResponse](t, w).Code)
	})

	t.Run("refund over amount", func(t *testing.T) {
		f := newFixture(t)
		r := newTestRouter(f)
		s := f.seedSession(t, "ref_r", 1000, "USD")
		f.seedPayment(t, s, "pay_r", 1000, true, true)

		w := doRequest(r, http.MethodPost, "/api/v1/payments/pay_r/refunds", []byte(`{"amount":1001}`), nil)
		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
		assert.Equal(t, "AMOUNT_EXCEEDS_AVAILABLE", decodeBody[response.ErrorResponse](t, w).Code)
	})

	t.Run("refund created", func(t *testing.T) {
		f := newFixture(t)
		r := newTestRouter(f)
		s := f.seedSession(t, "ref_rc", 1000, "USD")
		f.seedPayment(t, s, "pay_rc", 1000, true, true)
		f.gateway.On("RefundPayment", mock.Anything, "pay_rc", mock.Anything).
			Return(&gateway.ActionResponse{ActionID: "act_r"}, nil)

		w := doRequest(r, http.MethodPost, "/api/v1/payments/pay_rc/refunds", []byte(`{"amount":400,"reason":"damaged"}`), nil)
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
		refund := decodeBody[RefundResponse](t, w)
		assert.Equal(t, int64(400), refund.Amount)
		assert.Equal(t, "act_r", refund.ID)

		w = doRequest(r, http.MethodGet, "/api/v1/payments/pay_rc/refunds", nil, nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Len(t, decodeBody[map[string][]RefundResponse](t, w)["refunds"], 1)
	})

	t.Run("upstream failure is bad gateway", func(t *testing.T) {
		f := newFixture(t)
		r := newTestRouter(f)
		s := f.seedSession(t, "ref_u", 1000, "USD")
		f.seedPayment(t, s, "pay_u", 1000, true, false)
		f.gateway.On("VoidPayment", mock.Anything, "pay_u", mock.Anything).
			Return(nil, &gateway.UpstreamError{Op: "void payment", StatusCode: http.StatusServiceUnavailable})

		w := doRequest(r, http.MethodPost, "/api/v1/payments/pay_u/void", nil, nil)
		assert.Equal(t, http.StatusBadGateway, w.Code)
		assert.Equal(t, "UPSTREAM_ERROR", decodeBody[response.ErrorResponse](t, w).Code)
	})

	t.Run("search", func(t *testing.T) {
		f := newFixture(t)
		r := newTestRouter(f)
		f.gateway.On("SearchPayments", mock.Anything, mock.MatchedBy(func(filter *gateway.SearchFilter) bool {
			return filter.Reference == "ord-9" && filter.Status == "Captured" &&
				filter.From != nil && filter.From.Equal(time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)) &&
				filter.To == nil && filter.Limit == 5
		})).Return(&gateway.SearchResult{TotalCount: 1, Data: []map[string]any{{"id": "pay_s"}}}, nil)

		w := doRequest(r, http.MethodGet, "/api/v1/payments/search?reference=ord-9&status=Captured&from=2024-01-02T03:04:05Z&limit=5", nil, nil)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		body := decodeBody[map[string]any](t, w)
		assert.EqualValues(t, 1, body["total_count"])
		require.Len(t, body["payments"], 1)
		f.gateway.AssertExpectations(t)
	})

	t.Run("search with bad time", func(t *testing.T) {
		f := newFixture(t)
		w := doRequest(newTestRouter(f), http.MethodGet, "/api/v1/payments/search?from=yesterday", nil, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("search with inverted range", func(t *testing.T) {
		f := newFixture(t)
		w := doRequest(newTestRouter(f), http.MethodGet, "/api/v1/payments/search?from=2024-02-01T00:00:00Z&to=2024-01-01T00:00:00Z", nil, nil)
		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
		assert.Equal(t, "VALIDATION_ERROR", decodeBody[response.ErrorResponse](t, w).Code)
	})

	t.Run("captures and voids", func(t *testing.T) {
		f := newFixture(t)
		r := newTestRouter(f)
		f.gateway.On("GetPaymentActions", mock.Anything, "pay_act").Return([]map[string]any{
			{"id": "act_1", "type": "Authorization"},
			{"id": "act_2", "type": "Capture"},
			{"id": "act_3", "type": "Void"},
		}, nil)

		w := doRequest(r, http.MethodGet, "/api/v1/payments/pay_act/captures", nil, nil)
		require.Equal(t, http.StatusOK, w.Code)
		captures := decodeBody[map[string][]map[string]any](t, w)["captures"]
		require.Len(t, captures, 1)
		assert.Equal(t, "act_2", captures[0]["id"])

		w = doRequest(r, http.MethodGet, "/api/v1/payments/pay_act/voids", nil, nil)
		require.Equal(t, http.StatusOK, w.Code)
		voids := decodeBody[map[string][]map[string]any](t, w)["voids"]
		require.Len(t, voids, 1)
		assert.Equal(t, "act_3", voids[0]["id"])
	})

	t.Run("unknown payment", func(t *testing.T) {
		f := newFixture(t)
		w := doRequest(newTestRouter(f), http.MethodGet, "/api/v1/payments/pay_missing", nil, nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestWebhookHandler(t *testing.T) {
	approved := webhookBody(t, "evt_http", "payment_approved", map[string]any{
		"id":        "pay_wh",
		"reference": "ref_wh",
		"amount":    1000,
	})

	t.Run("processed then duplicate", func(t *testing.T) {
		f := newFixture(t)
		r := newTestRouter(f)
		f.seedSession(t, "ref_wh", 1000, "USD")
		headers := map[string]string{DefaultSignatureHeader: sign(approved)}

		w := doRequest(r, http.MethodPost, "/webhooks/checkout", approved, headers)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		assert.Equal(t, string(OutcomeProcessed), decodeBody[WebhookAckResponse](t, w).Status)

		w = doRequest(r, http.MethodPost, "/webhooks/checkout", approved, headers)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, string(OutcomeDuplicate), decodeBody[WebhookAckResponse](t, w).Status)

		w = doRequest(r, http.MethodGet, "/api/v1/webhook-events/evt_http", nil, nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "payment_approved", decodeBody[WebhookEventResponse](t, w).EventType)
	})

	t.Run("bad signature is unauthorized", func(t *testing.T) {
		f := newFixture(t)
		headers := map[string]string{DefaultSignatureHeader: signature.Sign(approved, "other")}
		w := doRequest(newTestRouter(f), http.MethodPost, "/webhooks/checkout", approved, headers)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Equal(t, string(OutcomeRejected), decodeBody[WebhookAckResponse](t, w).Status)
	})

	t.Run("missing signature", func(t *testing.T) {
		f := newFixture(t)
		w := doRequest(newTestRouter(f), http.MethodPost, "/webhooks/checkout", approved, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("empty body", func(t *testing.T) {
		f := newFixture(t)
		headers := map[string]string{DefaultSignatureHeader: sign([]byte{})}
		w := doRequest(newTestRouter(f), http.MethodPost, "/webhooks/checkout", []byte{}, headers)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("unknown reference is ignored and listed as failed", func(t *testing.T) {
		f := newFixture(t)
		r := newTestRouter(f)
		headers := map[string]string{DefaultSignatureHeader: sign(approved)}

		w := doRequest(r, http.MethodPost, "/webhooks/checkout", approved, headers)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, string(OutcomeIgnored), decodeBody[WebhookAckResponse](t, w).Status)

		w = doRequest(r, http.MethodGet, "/api/v1/webhook-events/failed", nil, nil)
		require.Equal(t, http.StatusOK, w.Code)
		events := decodeBody[map[string][]WebhookEventResponse](t, w)["events"]
		require.Len(t, events, 1)
		assert.Equal(t, "evt_http", events[0].EventID)
	})

	t.Run("validate does not apply", func(t *testing.T) {
		f := newFixture(t)
		r := newTestRouter(f)
		f.seedSession(t, "ref_wh", 1000, "USD")

		w := doRequest(r, http.MethodPost, "/webhooks/validate", approved, map[string]string{DefaultSignatureHeader: sign(approved)})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		res := decodeBody[ValidationResult](t, w)
		assert.True(t, res.Valid)
		assert.Equal(t, "payment_approved", res.EventType)
		assert.Equal(t, "pay_wh", res.PaymentID)

		w = doRequest(r, http.MethodPost, "/webhooks/validate", approved, nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.False(t, decodeBody[ValidationResult](t, w).Valid)

		w = doRequest(r, http.MethodPost, "/webhooks/validate", []byte{}, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)

		w = doRequest(r, http.MethodGet, "/api/v1/webhook-events/evt_http", nil, nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
		w = doRequest(r, http.MethodGet, "/api/v1/payments/pay_wh", nil, nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("failed list rejects bad limit", func(t *testing.T) {
		f := newFixture(t)
		w := doRequest(newTestRouter(f), http.MethodGet, "/api/v1/webhook-events/failed?limit=0", nil, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("unknown event", func(t *testing.T) {
		f := newFixture(t)
		w := doRequest(newTestRouter(f), http.MethodGet, "/api/v1/webhook-events/evt_nope", nil, nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestToAppError(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"payment not found", ErrPaymentNotFound, http.StatusNotFound, "NOT_FOUND"},
		{"session not found", ErrSessionNotFound, http.StatusNotFound, "NOT_FOUND"},
		{"invalid state", domain.ErrInvalidState, http.StatusConflict, "INVALID_STATE"},
		{"over refund", domain.ErrAmountExceedsAvailable, http.StatusUnprocessableEntity, "AMOUNT_EXCEEDS_AVAILABLE"},
		{"invalid amount", domain.ErrInvalidAmount, http.StatusBadRequest, "INVALID_AMOUNT"},
		{"validation", &ValidationError{Fields: map[string]string{"Currency": "iso4217"}}, http.StatusUnprocessableEntity, "VALIDATION_ERROR"},
		{"upstream", &gateway.UpstreamError{Op: "x", StatusCode: 500}, http.StatusBadGateway, "UPSTREAM_ERROR"},
		{"missing signature", ErrMissingSignature, http.StatusBadRequest, "BAD_REQUEST"},
		{"malformed", domain.ErrMalformedPayload, http.StatusBadRequest, "MALFORMED_PAYLOAD"},
		{"lock", domain.ErrLockNotAcquired, http.StatusConflict, "CONCURRENT_UPDATE"},
		{"unknown", assert.AnError, http.StatusInternalServerError, "INTERNAL_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			appErr := ToAppError(tt.err)
			assert.Equal(t, tt.status, appErr.StatusCode)
			assert.Equal(t, tt.code, appErr.Code)
		})
	}
}
