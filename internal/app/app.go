package app

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerfiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/uniedit/checkout/cmd/server/docs" // swagger docs
	"github.com/uniedit/checkout/internal/module/payment"
	"github.com/uniedit/checkout/internal/shared/config"
	"github.com/uniedit/checkout/internal/shared/metrics"
	"github.com/uniedit/checkout/internal/shared/middleware"
)

// App represents the application.
type App struct {
	config  *config.Config
	router  *gin.Engine
	sweeper *payment.Sweeper
	logger  *zap.Logger
	cleanup func()
}

// New creates a new application instance and starts its background work.
func New(cfg *config.Config) (*App, error) {
	app, cleanup, err := InitializeApp(cfg)
	if err != nil {
		return nil, err
	}
	app.cleanup = cleanup
	app.sweeper.Start()
	return app, nil
}

// NewApp assembles the application from its parts.
func NewApp(cfg *config.Config, router *gin.Engine, sweeper *payment.Sweeper, log *zap.Logger) *App {
	return &App{
		config:  cfg,
		router:  router,
		sweeper: sweeper,
		logger:  log,
	}
}

// NewRouter creates and configures the Gin router.
func NewRouter(
	cfg *config.Config,
	handlers *Handlers,
	m *metrics.Metrics,
	reg *prometheus.Registry,
	store middleware.IdempotencyStore,
	log *zap.Logger,
) *gin.Engine {
	if cfg.Server.Mode != "" {
		gin.SetMode(cfg.Server.Mode)
	}

	r := gin.New()

	r.Use(middleware.Recovery(log))
	r.Use(middleware.RequestID(log))
	r.Use(middleware.Logging(log))
	r.Use(middleware.CORS(corsConfig(cfg)))
	if cfg.Metrics.Enabled {
		r.Use(middleware.Metrics(m))
		r.GET(cfg.Metrics.Path, gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})))
	}

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	if cfg.Server.Swagger {
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerfiles.Handler))
	}

	v1 := r.Group("/api/v1")
	v1.Use(middleware.Idempotency(store, middleware.IdempotencyConfig{Logger: log}))
	handlers.Payment.RegisterRoutes(v1)
	handlers.Webhook.RegisterLogRoutes(v1)

	// Deliveries are signed over the raw body and retried by the gateway;
	// they skip the idempotency replay.
	handlers.Webhook.RegisterRoutes(r.Group("/webhooks"))

	return r
}

func corsConfig(cfg *config.Config) middleware.CORSConfig {
	c := middleware.DefaultCORSConfig()
	if len(cfg.Server.AllowedOrigins) > 0 {
		c.AllowOrigins = cfg.Server.AllowedOrigins
	}
	return c
}

// Router returns the HTTP router.
func (a *App) Router() *gin.Engine {
	return a.router
}

// Logger returns the application logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Stop stops background work and releases resources.
func (a *App) Stop() {
	if a.sweeper != nil {
		a.sweeper.Stop()
	}
	if a.cleanup != nil {
		a.cleanup()
	}
	if a.logger != nil {
		_ = a.logger.Sync()
	}
}
