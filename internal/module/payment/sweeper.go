package payment

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// SweeperConfig contains sweeper configuration.
type SweeperConfig struct {
	Interval time.Duration
	// WebhookRetention is how long processed webhook log entries are kept.
	// Zero keeps them forever.
	WebhookRetention time.Duration
	Timeout          time.Duration
}

// DefaultSweeperConfig returns the default sweeper configuration.
func DefaultSweeperConfig() *SweeperConfig {
	return &SweeperConfig{
		Interval: 5 * time.Minute,
		Timeout:  30 * time.Second,
	}
}

// Sweeper periodically deletes expired sessions and old webhook log entries.
type Sweeper struct {
	sessions   *SessionService
	reconciler *Reconciler
	config     *SweeperConfig
	logger     *zap.Logger

	started  atomic.Bool
	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// NewSweeper creates a new sweeper.
func NewSweeper(sessions *SessionService, reconciler *Reconciler, config *SweeperConfig, logger *zap.Logger) *Sweeper {
	if config == nil {
		config = DefaultSweeperConfig()
	}
	if config.Interval <= 0 {
		config.Interval = DefaultSweeperConfig().Interval
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultSweeperConfig().Timeout
	}
	return &Sweeper{
		sessions:   sessions,
		reconciler: reconciler,
		config:     config,
		logger:     logger,
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}
}

// Start starts the background sweep loop.
func (s *Sweeper) Start() {
	if !s.started.CompareAndSwap(false, true) {
		return
	}
	go s.loop()
}

// Stop stops the loop and waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
	if s.started.Load() {
		<-s.done
	}
}

func (s *Sweeper) loop() {
	defer close(s.done)

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.Sweep(time.Now())
		}
	}
}

// Sweep runs one cleanup pass.
func (s *Sweeper) Sweep(now time.Time) {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Timeout)
	defer cancel()

	if _, err := s.sessions.CleanupExpiredSessions(ctx, now); err != nil {
		s.logger.Error("expired session cleanup failed", zap.Error(err))
	}

	if s.reconciler == nil || s.config.WebhookRetention <= 0 {
		return
	}
	if _, err := s.reconciler.CleanupWebhookLog(ctx, now.Add(-s.config.WebhookRetention)); err != nil {
		s.logger.Error("webhook log cleanup failed", zap.Error(err))
	}
}
