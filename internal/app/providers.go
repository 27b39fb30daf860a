package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/wire"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/uniedit/checkout/internal/infra/archive"
	"github.com/uniedit/checkout/internal/infra/events"
	"github.com/uniedit/checkout/internal/infra/lock"
	"github.com/uniedit/checkout/internal/module/payment"
	"github.com/uniedit/checkout/internal/module/payment/entity"
	"github.com/uniedit/checkout/internal/module/payment/gateway"
	"github.com/uniedit/checkout/internal/module/payment/signature"
	"github.com/uniedit/checkout/internal/shared/cache"
	"github.com/uniedit/checkout/internal/shared/config"
	"github.com/uniedit/checkout/internal/shared/database"
	"github.com/uniedit/checkout/internal/shared/logger"
	"github.com/uniedit/checkout/internal/shared/metrics"
	"github.com/uniedit/checkout/internal/shared/middleware"
)

// InfraSet provides infrastructure dependencies.
var InfraSet = wire.NewSet(
	ProvideLogger,
	ProvideRegistry,
	ProvideMetrics,
	ProvideDatabase,
	ProvideRedis,
	ProvideLocker,
	ProvideEventBus,
	ProvideArchive,
	ProvideIdempotencyStore,
)

// PaymentSet provides the payment module.
var PaymentSet = wire.NewSet(
	ProvideRepository,
	ProvideGateway,
	ProvideVerifier,
	ProvideServices,
	ProvideSweeper,
	ProvideHandlers,
)

// ProviderSet is the complete application provider set.
var ProviderSet = wire.NewSet(InfraSet, PaymentSet, NewRouter, NewApp)

// ProvideLogger creates the application logger.
func ProvideLogger(cfg *config.Config) *zap.Logger {
	return logger.New(&logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
	})
}

// ProvideRegistry creates the Prometheus registry served on /metrics.
func ProvideRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// ProvideMetrics creates the application metrics.
func ProvideMetrics(cfg *config.Config, reg *prometheus.Registry) *metrics.Metrics {
	return metrics.New(cfg.Metrics.Namespace, reg)
}

// ProvideDatabase opens Postgres. The memory driver has no database.
func ProvideDatabase(cfg *config.Config, log *zap.Logger) (*gorm.DB, func(), error) {
	if cfg.Database.IsMemory() {
		log.Warn("using in-memory repository; state is lost on restart")
		return nil, func() {}, nil
	}

	db, err := database.New(&cfg.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("init database: %w", err)
	}
	if cfg.Database.AutoMigrate {
		if err := database.Migrate(db, entity.All()...); err != nil {
			_ = database.Close(db)
			return nil, nil, err
		}
	}
	cleanup := func() {
		if err := database.Close(db); err != nil {
			log.Warn("close database", zap.Error(err))
		}
	}
	return db, cleanup, nil
}

// ProvideRedis connects to Redis. Redis is optional unless the lock
// backend needs it.
func ProvideRedis(cfg *config.Config, log *zap.Logger) (goredis.UniversalClient, func(), error) {
	if !cfg.Redis.Enabled() {
		return nil, func() {}, nil
	}

	client, err := cache.NewRedisClient(&cfg.Redis)
	if err != nil {
		if usesRedisLock(cfg) {
			return nil, nil, fmt.Errorf("init redis: %w", err)
		}
		log.Warn("redis unavailable, continuing without it", zap.Error(err))
		return nil, func() {}, nil
	}
	return client, func() { _ = cache.Close(client) }, nil
}

func usesRedisLock(cfg *config.Config) bool {
	return strings.EqualFold(cfg.Lock.Backend, "redis")
}

// ProvideLocker selects the per-aggregate locker.
func ProvideLocker(cfg *config.Config, client goredis.UniversalClient, log *zap.Logger) lock.Locker {
	if usesRedisLock(cfg) && client != nil {
		return lock.NewRedisLocker(client, cfg.Lock.Config, log)
	}
	log.Info("using in-process locks")
	return lock.NewLocalLocker(cfg.Lock.Config)
}

// ProvideEventBus creates the domain event bus with its handlers.
func ProvideEventBus(log *zap.Logger, m *metrics.Metrics) *events.Bus {
	bus := events.NewBus(log)
	bus.Register(payment.NewMetricsHandler(m))
	return bus
}

// ProvideArchive creates the raw webhook archive. A disabled archive
// stores nothing.
func ProvideArchive(cfg *config.Config) (archive.Archive, error) {
	if !cfg.Archive.Enabled {
		return archive.Nop{}, nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	a, err := archive.NewS3Archive(ctx, cfg.Archive)
	if err != nil {
		return nil, fmt.Errorf("init archive: %w", err)
	}
	return a, nil
}

// ProvideIdempotencyStore returns a Redis store, or nil without Redis.
func ProvideIdempotencyStore(client goredis.UniversalClient) middleware.IdempotencyStore {
	if client == nil {
		return nil
	}
	return middleware.NewRedisIdempotencyStore(client)
}

// ProvideRepository selects the payment repository.
func ProvideRepository(cfg *config.Config, db *gorm.DB) payment.Repository {
	if cfg.Database.IsMemory() || db == nil {
		return payment.NewMemoryRepository()
	}
	return payment.NewRepository(db)
}

// ProvideGateway creates the gateway client for the configured account.
func ProvideGateway(cfg *config.Config, log *zap.Logger, m *metrics.Metrics) gateway.Client {
	return gateway.NewClient(cfg.Gateway, log, gateway.WithObserver(m))
}

// ProvideVerifier creates the webhook signature verifier.
func ProvideVerifier(cfg *config.Config) signature.Verifier {
	return signature.NewHMACVerifier(cfg.Webhook.Secret)
}

// Services groups the payment module services.
type Services struct {
	Payments   *payment.Service
	Sessions   *payment.SessionService
	Reconciler *payment.Reconciler
}

// ProvideServices creates the payment module services.
func ProvideServices(
	cfg *config.Config,
	repo payment.Repository,
	gw gateway.Client,
	locker lock.Locker,
	verifier signature.Verifier,
	store archive.Archive,
	bus *events.Bus,
	m *metrics.Metrics,
	log *zap.Logger,
) *Services {
	return &Services{
		Payments:   payment.NewService(repo, gw, locker, bus, m, log.Named("payments")),
		Sessions:   payment.NewSessionService(repo, gw, locker, bus, m, cfg.Sessions.DefaultTTL, log.Named("sessions")),
		Reconciler: payment.NewReconciler(repo, verifier, locker, store, bus, m, log.Named("webhooks")),
	}
}

// ProvideSweeper creates the background cleanup loop.
func ProvideSweeper(cfg *config.Config, services *Services, log *zap.Logger) *payment.Sweeper {
	return payment.NewSweeper(services.Sessions, services.Reconciler, &payment.SweeperConfig{
		Interval:         cfg.Sessions.SweepInterval,
		WebhookRetention: cfg.Webhook.Retention,
	}, log.Named("sweeper"))
}

// Handlers groups the HTTP handlers.
type Handlers struct {
	Payment *payment.Handler
	Webhook *payment.WebhookHandler
}

// ProvideHandlers creates the HTTP handlers.
func ProvideHandlers(cfg *config.Config, services *Services, log *zap.Logger) *Handlers {
	return &Handlers{
		Payment: payment.NewHandler(services.Payments, services.Sessions, log),
		Webhook: payment.NewWebhookHandler(services.Reconciler, cfg.Webhook.SignatureHeader, log),
	}
}
