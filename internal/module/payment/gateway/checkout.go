package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sony/gobreaker/v2"
	"github.com/uniedit/checkout/internal/infra/httpclient"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

const (
	sandboxTokenURL    = "https://access.sandbox.checkout.com/connect/token"
	productionTokenURL = "https://access.checkout.com/connect/token"

	idempotencyHeader = "Cko-Idempotency-Key"
	maxErrorBody      = 4096
)

// Observer receives call outcomes, typically for metrics.
type Observer interface {
	ObserveCall(gateway, op, status string, d time.Duration)
	BreakerStateChanged(gateway string, state gobreaker.State)
}

type nopObserver struct{}

func (nopObserver) ObserveCall(string, string, string, time.Duration) {}
func (nopObserver) BreakerStateChanged(string, gobreaker.State)       {}

// CheckoutClient talks to the gateway REST API over HTTP.
type CheckoutClient struct {
	cfg      Config
	baseURL  string
	client   *http.Client
	breaker  *gobreaker.CircuitBreaker[[]byte]
	observer Observer
	logger   *zap.Logger
}

// Option configures a CheckoutClient.
type Option func(*CheckoutClient)

// WithHTTPClient replaces the pooled HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *CheckoutClient) { c.client = hc }
}

// WithObserver sets the call observer.
func WithObserver(o Observer) Option {
	return func(c *CheckoutClient) {
		if o != nil {
			c.observer = o
		}
	}
}

// NewClient creates a gateway client for one resolved account config.
func NewClient(cfg Config, logger *zap.Logger, opts ...Option) *CheckoutClient {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}

	c := &CheckoutClient{
		cfg:      cfg,
		baseURL:  strings.TrimRight(cfg.ResolvedBaseURL(), "/"),
		client:   httpclient.New(cfg.HTTP),
		observer: nopObserver{},
		logger:   logger.Named("gateway").With(zap.String("gateway", cfg.Name)),
	}
	for _, opt := range opts {
		opt(c)
	}

	if cfg.OAuth.Enabled() {
		c.client = c.oauthClient(c.client)
	}

	c.breaker = gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.Breaker.MaxHalfOpen,
		Interval:    cfg.Breaker.Interval,
		Timeout:     cfg.Breaker.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.Breaker.FailureThreshold
		},
		IsSuccessful: isBreakerSuccess,
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.logger.Warn("gateway circuit breaker state changed",
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
			c.observer.BreakerStateChanged(name, to)
		},
	})

	return c
}

func (c *CheckoutClient) oauthClient(base *http.Client) *http.Client {
	tokenURL := c.cfg.OAuth.TokenURL
	if tokenURL == "" {
		tokenURL = productionTokenURL
		if c.cfg.Sandbox {
			tokenURL = sandboxTokenURL
		}
	}
	cc := &clientcredentials.Config{
		ClientID:     c.cfg.OAuth.ClientID,
		ClientSecret: c.cfg.OAuth.ClientSecret,
		TokenURL:     tokenURL,
		Scopes:       c.cfg.OAuth.Scopes,
	}
	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, base)
	hc := cc.Client(ctx)
	hc.Timeout = base.Timeout
	return hc
}

// isBreakerSuccess counts client errors as successes so a run of bad
// requests does not open the breaker.
func isBreakerSuccess(err error) bool {
	if err == nil {
		return true
	}
	if errors.Is(err, context.Canceled) {
		return true
	}
	if ue, ok := AsUpstream(err); ok {
		return !ue.Retryable()
	}
	return false
}

// Name returns the configured gateway name.
func (c *CheckoutClient) Name() string { return c.cfg.Name }

// BreakerState returns the current circuit breaker state.
func (c *CheckoutClient) BreakerState() gobreaker.State { return c.breaker.State() }

// CreateHostedSession creates a hosted payment page session.
func (c *CheckoutClient) CreateHostedSession(ctx context.Context, req *HostedSessionRequest) (*HostedSessionResponse, error) {
	var out HostedSessionResponse
	if err := c.do(ctx, "create_hosted_session", http.MethodPost, "/hosted-payments-sessions", req, "", &out); err != nil {
		return nil, err
	}
	if out.ID == "" {
		return nil, &UpstreamError{Op: "create_hosted_session", Err: errors.New("response has no session id")}
	}
	return &out, nil
}

// GetHostedSession fetches a hosted session.
func (c *CheckoutClient) GetHostedSession(ctx context.Context, id string) (*HostedSessionResponse, error) {
	var out HostedSessionResponse
	if err := c.do(ctx, "get_hosted_session", http.MethodGet, "/hosted-payments-sessions/"+url.PathEscape(id), nil, "", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreatePayment requests a direct payment.
func (c *CheckoutClient) CreatePayment(ctx context.Context, req *PaymentRequest) (*PaymentResponse, error) {
	var out PaymentResponse
	if err := c.do(ctx, "create_payment", http.MethodPost, "/payments", req, req.IdempotencyKey, &out); err != nil {
		return nil, err
	}
	if out.ID == "" {
		return nil, &UpstreamError{Op: "create_payment", Err: errors.New("response has no payment id")}
	}
	return &out, nil
}

// GetPayment fetches payment details.
func (c *CheckoutClient) GetPayment(ctx context.Context, id string) (*PaymentResponse, error) {
	var out PaymentResponse
	if err := c.do(ctx, "get_payment", http.MethodGet, "/payments/"+url.PathEscape(id), nil, "", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetPaymentActions lists the actions performed on a payment.
func (c *CheckoutClient) GetPaymentActions(ctx context.Context, id string) ([]map[string]any, error) {
	var out []map[string]any
	if err := c.do(ctx, "get_payment_actions", http.MethodGet, "/payments/"+url.PathEscape(id)+"/actions", nil, "", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// SearchPayments lists gateway payments matching filter.
func (c *CheckoutClient) SearchPayments(ctx context.Context, filter *SearchFilter) (*SearchResult, error) {
	q := url.Values{}
	if filter != nil {
		if filter.Reference != "" {
			q.Set("reference", filter.Reference)
		}
		if filter.Status != "" {
			q.Set("status", filter.Status)
		}
		if filter.From != nil {
			q.Set("from", filter.From.UTC().Format(time.RFC3339))
		}
		if filter.To != nil {
			q.Set("to", filter.To.UTC().Format(time.RFC3339))
		}
		if filter.Limit > 0 {
			q.Set("limit", strconv.Itoa(filter.Limit))
		}
		if filter.Skip > 0 {
			q.Set("skip", strconv.Itoa(filter.Skip))
		}
	}
	path := "/payments"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var out SearchResult
	if err := c.do(ctx, "search_payments", http.MethodGet, path, nil, "", &out); err != nil {
		return nil, err
	}
	if out.Data == nil {
		out.Data = []map[string]any{}
	}
	return &out, nil
}

// CapturePayment captures an authorized payment.
func (c *CheckoutClient) CapturePayment(ctx context.Context, id string, req *CaptureRequest) (*ActionResponse, error) {
	if req == nil {
		req = &CaptureRequest{}
	}
	return c.action(ctx, "capture", id, "/captures", req, req.IdempotencyKey)
}

// RefundPayment refunds a captured payment.
func (c *CheckoutClient) RefundPayment(ctx context.Context, id string, req *RefundRequest) (*ActionResponse, error) {
	return c.action(ctx, "refund", id, "/refunds", req, req.IdempotencyKey)
}

// VoidPayment voids an authorized payment.
func (c *CheckoutClient) VoidPayment(ctx context.Context, id string, req *VoidRequest) (*ActionResponse, error) {
	if req == nil {
		req = &VoidRequest{}
	}
	return c.action(ctx, "void", id, "/voids", req, req.IdempotencyKey)
}

func (c *CheckoutClient) action(ctx context.Context, op, id, suffix string, body any, idempotencyKey string) (*ActionResponse, error) {
	var out ActionResponse
	if err := c.do(ctx, op, http.MethodPost, "/payments/"+url.PathEscape(id)+suffix, body, idempotencyKey, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// do runs one request through the circuit breaker and decodes the body
// into out. Every failure comes back as *UpstreamError.
func (c *CheckoutClient) do(ctx context.Context, op, method, path string, body any, idempotencyKey string, out any) error {
	start := time.Now()
	raw, err := c.breaker.Execute(func() ([]byte, error) {
		return c.send(ctx, op, method, path, body, idempotencyKey)
	})
	elapsed := time.Since(start)

	if err != nil {
		ue, ok := AsUpstream(err)
		if !ok {
			ue = &UpstreamError{Op: op, Err: err}
		}
		c.observer.ObserveCall(c.cfg.Name, op, callStatus(ue), elapsed)
		c.logger.Error("gateway request failed",
			zap.String("op", op),
			zap.String("path", path),
			zap.Int("status_code", ue.StatusCode),
			zap.Duration("duration", elapsed),
			zap.Error(err),
		)
		return ue
	}

	c.observer.ObserveCall(c.cfg.Name, op, "ok", elapsed)
	c.logger.Debug("gateway request completed",
		zap.String("op", op),
		zap.String("path", path),
		zap.Duration("duration", elapsed),
	)

	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &UpstreamError{Op: op, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

func (c *CheckoutClient) send(ctx context.Context, op, method, path string, body any, idempotencyKey string) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, &UpstreamError{Op: op, Err: fmt.Errorf("marshal request: %w", err)}
		}
		reader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, &UpstreamError{Op: op, Err: fmt.Errorf("create request: %w", err)}
	}

	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if !c.cfg.OAuth.Enabled() {
		req.Header.Set("Authorization", "Bearer "+c.cfg.SecretKey)
	}
	if idempotencyKey != "" {
		req.Header.Set(idempotencyHeader, idempotencyKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &UpstreamError{Op: op, Err: fmt.Errorf("request failed: %w", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &UpstreamError{Op: op, StatusCode: resp.StatusCode, Body: string(errBody)}
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &UpstreamError{Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("read response: %w", err)}
	}
	return raw, nil
}

func callStatus(ue *UpstreamError) string {
	switch {
	case errors.Is(ue.Err, gobreaker.ErrOpenState), errors.Is(ue.Err, gobreaker.ErrTooManyRequests):
		return "breaker_open"
	case ue.StatusCode > 0:
		return strconv.Itoa(ue.StatusCode)
	default:
		return "error"
	}
}

var _ Client = (*CheckoutClient)(nil)
