package payment

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/uniedit/checkout/internal/module/payment/domain"
)

// MemoryRepository is an in-process Repository. It backs tests and the
// "memory" database driver for local runs.
type MemoryRepository struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]*domain.Session
	payments map[string]*domain.Payment
	events   map[string]*domain.WebhookEvent // by dedupe key
}

// NewMemoryRepository creates an empty in-memory repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		sessions: make(map[uuid.UUID]*domain.Session),
		payments: make(map[string]*domain.Payment),
		events:   make(map[string]*domain.WebhookEvent),
	}
}

// --- Session Operations ---

func (r *MemoryRepository) CreateSession(_ context.Context, session *domain.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[session.ID] = session.Clone()
	return nil
}

func (r *MemoryRepository) UpdateSession(_ context.Context, session *domain.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[session.ID] = session.Clone()
	return nil
}

func (r *MemoryRepository) GetSession(_ context.Context, id uuid.UUID) (*domain.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return r.withPayments(s), nil
}

func (r *MemoryRepository) GetSessionByReference(_ context.Context, reference string) (*domain.Session, error) {
	return r.findSession(func(s *domain.Session) bool { return s.Reference == reference })
}

func (r *MemoryRepository) GetSessionByGatewayID(_ context.Context, gatewayID string) (*domain.Session, error) {
	return r.findSession(func(s *domain.Session) bool { return gatewayID != "" && s.GatewayID == gatewayID })
}

func (r *MemoryRepository) findSession(match func(*domain.Session) bool) (*domain.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, s := range r.sessions {
		if match(s) {
			return r.withPayments(s), nil
		}
	}
	return nil, ErrSessionNotFound
}

// withPayments must be called with the lock held.
func (r *MemoryRepository) withPayments(s *domain.Session) *domain.Session {
	out := s.Clone()
	for _, p := range r.sortedPayments(s.ID) {
		out.AddPayment(p)
	}
	return out
}

func (r *MemoryRepository) DeleteExpiredSessions(_ context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, s := range r.sessions {
		if s.Status == domain.SessionStatusPending && s.IsExpired(now) {
			delete(r.sessions, id)
			n++
		}
	}
	return n, nil
}

// --- Payment Operations ---

func (r *MemoryRepository) GetPayment(_ context.Context, id string) (*domain.Payment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.payments[id]
	if !ok {
		return nil, ErrPaymentNotFound
	}
	return clonePayment(p), nil
}

func (r *MemoryRepository) SavePayment(_ context.Context, payment *domain.Payment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.storePayment(payment)
	return nil
}

// storePayment keeps the refunds already stored; refunds are only added
// through RecordRefund.
func (r *MemoryRepository) storePayment(payment *domain.Payment) {
	st := clonePayment(payment).State()
	if existing, ok := r.payments[st.ID]; ok {
		st.Refunds = existing.Refunds()
	} else {
		st.Refunds = nil
	}
	r.payments[st.ID] = domain.RestorePayment(st)
}

func (r *MemoryRepository) ListPaymentsBySession(_ context.Context, sessionID uuid.UUID) ([]*domain.Payment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sortedPayments(sessionID), nil
}

// sortedPayments returns clones, newest first. Must be called with the
// lock held.
func (r *MemoryRepository) sortedPayments(sessionID uuid.UUID) []*domain.Payment {
	var out []*domain.Payment
	for _, p := range r.payments {
		if p.SessionID() == sessionID {
			out = append(out, clonePayment(p))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt().After(out[j].CreatedAt())
	})
	return out
}

// --- Refund Operations ---

func (r *MemoryRepository) RecordRefund(_ context.Context, payment *domain.Payment, refund *domain.Refund) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	st := clonePayment(payment).State()
	var refunds []*domain.Refund
	if existing, ok := r.payments[st.ID]; ok {
		refunds = existing.Refunds()
	}
	rc := *refund
	st.Refunds = append(refunds, &rc)
	r.payments[st.ID] = domain.RestorePayment(st)
	return nil
}

func (r *MemoryRepository) ListRefunds(_ context.Context, paymentID string) ([]*domain.Refund, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.payments[paymentID]
	if !ok {
		return []*domain.Refund{}, nil
	}
	refunds := p.Refunds()
	out := make([]*domain.Refund, 0, len(refunds))
	for i := len(refunds) - 1; i >= 0; i-- {
		rc := *refunds[i]
		out = append(out, &rc)
	}
	return out, nil
}

// --- Webhook Event Operations ---

func (r *MemoryRepository) InsertWebhookEventIfAbsent(_ context.Context, event *domain.WebhookEvent) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.events[event.DedupeKey]; ok {
		return false, nil
	}
	ec := *event
	r.events[event.DedupeKey] = &ec
	return true, nil
}

func (r *MemoryRepository) GetWebhookEventByDedupeKey(_ context.Context, key string) (*domain.WebhookEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.events[key]
	if !ok {
		return nil, ErrWebhookEventNotFound
	}
	ec := *e
	return &ec, nil
}

func (r *MemoryRepository) GetWebhookEvent(_ context.Context, eventID string) (*domain.WebhookEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var best *domain.WebhookEvent
	for _, e := range r.events {
		if e.EventID != eventID {
			continue
		}
		if best == nil ||
			(e.SignatureValid && !best.SignatureValid) ||
			(e.SignatureValid == best.SignatureValid && e.CreatedAt.After(best.CreatedAt)) {
			best = e
		}
	}
	if best == nil {
		return nil, ErrWebhookEventNotFound
	}
	ec := *best
	return &ec, nil
}

func (r *MemoryRepository) UpdateWebhookEvent(_ context.Context, event *domain.WebhookEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	ec := *event
	r.events[event.DedupeKey] = &ec
	return nil
}

func (r *MemoryRepository) ListWebhookEventsByStatus(_ context.Context, status domain.WebhookStatus, limit int) ([]*domain.WebhookEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*domain.WebhookEvent
	for _, e := range r.events {
		if e.Status == status {
			ec := *e
			out = append(out, &ec)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *MemoryRepository) DeleteWebhookEventsBefore(_ context.Context, status domain.WebhookStatus, before time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for key, e := range r.events {
		if e.Status == status && e.CreatedAt.Before(before) {
			delete(r.events, key)
			n++
		}
	}
	return n, nil
}

func clonePayment(p *domain.Payment) *domain.Payment {
	st := p.State()
	refunds := make([]*domain.Refund, len(st.Refunds))
	for i, r := range st.Refunds {
		rc := *r
		refunds[i] = &rc
	}
	st.Refunds = refunds
	return domain.RestorePayment(st)
}

var _ Repository = (*MemoryRepository)(nil)
