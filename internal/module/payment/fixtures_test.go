package payment

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/uniedit/checkout/internal/infra/events"
	"github.com/uniedit/checkout/internal/infra/lock"
	"github.com/uniedit/checkout/internal/module/payment/domain"
	"github.com/uniedit/checkout/internal/module/payment/gateway"
	"github.com/uniedit/checkout/internal/module/payment/signature"
	"go.uber.org/zap"
)

const testWebhookSecret = "whsec_test"

// --- Mock gateway ---

type MockGateway struct {
	mock.Mock
}

func (m *MockGateway) Name() string { return "mock" }

func (m *MockGateway) CreateHostedSession(ctx context.Context, req *gateway.HostedSessionRequest) (*gateway.HostedSessionResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*gateway.HostedSessionResponse), args.Error(1)
}

func (m *MockGateway) GetHostedSession(ctx context.Context, id string) (*gateway.HostedSessionResponse, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*gateway.HostedSessionResponse), args.Error(1)
}

func (m *MockGateway) CreatePayment(ctx context.Context, req *gateway.PaymentRequest) (*gateway.PaymentResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*gateway.PaymentResponse), args.Error(1)
}

func (m *MockGateway) GetPayment(ctx context.Context, id string) (*gateway.PaymentResponse, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*gateway.PaymentResponse), args.Error(1)
}

func (m *MockGateway) GetPaymentActions(ctx context.Context, id string) ([]map[string]any, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]map[string]any), args.Error(1)
}

func (m *MockGateway) SearchPayments(ctx context.Context, filter *gateway.SearchFilter) (*gateway.SearchResult, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*gateway.SearchResult), args.Error(1)
}

func (m *MockGateway) CapturePayment(ctx context.Context, id string, req *gateway.CaptureRequest) (*gateway.ActionResponse, error) {
	args := m.Called(ctx, id, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*gateway.ActionResponse), args.Error(1)
}

func (m *MockGateway) RefundPayment(ctx context.Context, id string, req *gateway.RefundRequest) (*gateway.ActionResponse, error) {
	args := m.Called(ctx, id, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*gateway.ActionResponse), args.Error(1)
}

func (m *MockGateway) VoidPayment(ctx context.Context, id string, req *gateway.VoidRequest) (*gateway.ActionResponse, error) {
	args := m.Called(ctx, id, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*gateway.ActionResponse), args.Error(1)
}

var _ gateway.Client = (*MockGateway)(nil)

// --- Recording doubles ---

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(e events.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
}

func (p *recordingPublisher) ofType(eventType string) []events.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []events.Event
	for _, e := range p.events {
		if e.EventType() == eventType {
			out = append(out, e)
		}
	}
	return out
}

type recordingMetrics struct {
	mu         sync.Mutex
	operations []string
	webhooks   []string
	expired    int64
}

func (m *recordingMetrics) RecordOperation(operation, result string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.operations = append(m.operations, operation+":"+result)
}

func (m *recordingMetrics) RecordWebhook(eventType, outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.webhooks = append(m.webhooks, eventType+":"+outcome)
}

func (m *recordingMetrics) RecordExpiredSessions(n int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.expired += n
}

// --- Fixture ---

type fixture struct {
	repo       *MemoryRepository
	gateway    *MockGateway
	publisher  *recordingPublisher
	metrics    *recordingMetrics
	payments   *Service
	sessions   *SessionService
	reconciler *Reconciler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	repo := NewMemoryRepository()
	gw := new(MockGateway)
	locker := lock.NewLocalLocker(lock.Config{Wait: 2 * time.Second})
	publisher := &recordingPublisher{}
	metrics := &recordingMetrics{}
	logger := zap.NewNop()

	return &fixture{
		repo:       repo,
		gateway:    gw,
		publisher:  publisher,
		metrics:    metrics,
		payments:   NewService(repo, gw, locker, publisher, metrics, logger),
		sessions:   NewSessionService(repo, gw, locker, publisher, metrics, time.Hour, logger),
		reconciler: NewReconciler(repo, signature.NewHMACVerifier(testWebhookSecret), locker, nil, publisher, metrics, logger),
	}
}

// seedSession stores a created session for reference.
func (f *fixture) seedSession(t *testing.T, reference string, amount int64, currency domain.Currency) *domain.Session {
	t.Helper()
	s := domain.NewSession(reference, amount, currency, time.Hour)
	s.MarkCreated("hps_"+reference, "https://pay.example/"+reference)
	require.NoError(t, f.repo.CreateSession(context.Background(), s))
	return s
}

// seedPayment stores a payment linked to session. authorize and capture
// advance it along the lifecycle.
func (f *fixture) seedPayment(t *testing.T, s *domain.Session, id string, amount int64, authorize, capture bool) *domain.Payment {
	t.Helper()
	p := domain.NewPayment(id, amount, s.Currency)
	s.AddPayment(p)
	if authorize {
		p.Approve(time.Now())
	}
	if capture {
		require.NoError(t, p.MarkCaptured("10000", "Approved", time.Now()))
	}
	require.NoError(t, f.repo.SavePayment(context.Background(), p))
	return p
}

func int64Ptr(v int64) *int64 { return &v }
