package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uniedit/checkout/internal/shared/logger"
	"github.com/uniedit/checkout/internal/shared/metrics"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func serve(r http.Handler, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRequestID(t *testing.T) {
	t.Run("generates new request ID when not provided", func(t *testing.T) {
		router := gin.New()
		router.Use(RequestID(nil))
		router.GET("/test", func(c *gin.Context) {
			c.String(http.StatusOK, GetRequestID(c))
		})

		w := serve(router, http.MethodGet, "/test", "", nil)

		assert.Equal(t, http.StatusOK, w.Code)
		headerID := w.Header().Get(RequestIDHeader)
		assert.NotEmpty(t, headerID)
		assert.Equal(t, headerID, w.Body.String())
	})

	t.Run("uses existing request ID and scopes the logger", func(t *testing.T) {
		core, logs := observer.New(zap.InfoLevel)
		router := gin.New()
		router.Use(RequestID(zap.New(core)))
		router.GET("/test", func(c *gin.Context) {
			logger.FromContext(c.Request.Context()).Info("inside handler")
			c.Status(http.StatusNoContent)
		})

		w := serve(router, http.MethodGet, "/test", "", map[string]string{RequestIDHeader: "req-123"})

		assert.Equal(t, "req-123", w.Header().Get(RequestIDHeader))
		require.Equal(t, 1, logs.Len())
		assert.Equal(t, "req-123", logs.All()[0].ContextMap()["request_id"])
	})
}

func TestLogging(t *testing.T) {
	tests := []struct {
		name   string
		status int
		level  string
	}{
		{"success", http.StatusOK, "info"},
		{"client error", http.StatusNotFound, "warn"},
		{"server error", http.StatusBadGateway, "error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			core, logs := observer.New(zap.DebugLevel)
			router := gin.New()
			router.Use(Logging(zap.New(core)))
			router.GET("/test", func(c *gin.Context) { c.Status(tt.status) })

			serve(router, http.MethodGet, "/test?x=1", "", nil)

			require.Equal(t, 1, logs.Len())
			entry := logs.All()[0]
			assert.Equal(t, tt.level, entry.Level.String())
			fields := entry.ContextMap()
			assert.Equal(t, int64(tt.status), fields["status"])
			assert.Equal(t, "/test", fields["path"])
			assert.Equal(t, "x=1", fields["query"])
		})
	}
}

func TestRecovery(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	router := gin.New()
	router.Use(Recovery(zap.New(core)))
	router.GET("/panic", func(c *gin.Context) { panic("boom") })

	w := serve(router, http.MethodGet, "/panic", "", nil)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "INTERNAL_ERROR")
	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "boom", logs.All()[0].ContextMap()["error"])
}

func TestMetrics(t *testing.T) {
	m := metrics.New("test", prometheus.NewRegistry())
	router := gin.New()
	router.Use(Metrics(m))
	router.GET("/payments/:id", func(c *gin.Context) { c.Status(http.StatusOK) })

	serve(router, http.MethodGet, "/payments/pay_1", "", nil)
	serve(router, http.MethodGet, "/payments/pay_2", "", nil)

	assert.Equal(t, float64(2), testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "/payments/:id", "2xx")))
	assert.Equal(t, float64(0), testutil.ToFloat64(m.HTTPRequestsInFlight))
}

func TestCORS(t *testing.T) {
	router := gin.New()
	router.Use(CORS(DefaultCORSConfig()))
	router.POST("/test", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := serve(router, http.MethodOptions, "/test", "", map[string]string{
		"Origin":                        "https://shop.example",
		"Access-Control-Request-Method": "POST",
	})

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

// memoryIdempotencyStore is an in-process IdempotencyStore.
type memoryIdempotencyStore struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMemoryIdempotencyStore() *memoryIdempotencyStore {
	return &memoryIdempotencyStore{data: make(map[string][]byte)}
}

func (s *memoryIdempotencyStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.data[key]
	if !ok {
		return nil, ErrIdempotencyMiss
	}
	return v, nil
}

func (s *memoryIdempotencyStore) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = value
	return nil
}

func (s *memoryIdempotencyStore) SetNX(_ context.Context, key string, _ time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data[key]; ok {
		return false, nil
	}
	s.data[key] = []byte("1")
	return true, nil
}

func (s *memoryIdempotencyStore) Del(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
	return nil
}

func TestIdempotency(t *testing.T) {
	newRouter := func(store IdempotencyStore, calls *int, status int) *gin.Engine {
		router := gin.New()
		router.Use(Idempotency(store, IdempotencyConfig{}))
		router.POST("/payments/:id/capture", func(c *gin.Context) {
			*calls++
			c.JSON(status, gin.H{"call": *calls})
		})
		router.GET("/payments/:id", func(c *gin.Context) {
			*calls++
			c.Status(http.StatusOK)
		})
		return router
	}
	key := map[string]string{IdempotencyKeyHeader: "idem-1"}

	t.Run("replays the cached response", func(t *testing.T) {
		var calls int
		router := newRouter(newMemoryIdempotencyStore(), &calls, http.StatusOK)

		first := serve(router, http.MethodPost, "/payments/pay_1/capture", `{}`, key)
		second := serve(router, http.MethodPost, "/payments/pay_1/capture", `{}`, key)

		assert.Equal(t, 1, calls)
		assert.Equal(t, first.Body.String(), second.Body.String())
		assert.Equal(t, "true", second.Header().Get(IdempotentReplayHeader))
		assert.Empty(t, first.Header().Get(IdempotentReplayHeader))
	})

	t.Run("different path or body is not replayed", func(t *testing.T) {
		var calls int
		router := newRouter(newMemoryIdempotencyStore(), &calls, http.StatusOK)

		serve(router, http.MethodPost, "/payments/pay_1/capture", `{}`, key)
		serve(router, http.MethodPost, "/payments/pay_2/capture", `{}`, key)
		serve(router, http.MethodPost, "/payments/pay_1/capture", `{"amount":5}`, key)

		assert.Equal(t, 3, calls)
	})

	t.Run("server errors are not cached", func(t *testing.T) {
		var calls int
		router := newRouter(newMemoryIdempotencyStore(), &calls, http.StatusBadGateway)

		serve(router, http.MethodPost, "/payments/pay_1/capture", `{}`, key)
		serve(router, http.MethodPost, "/payments/pay_1/capture", `{}`, key)

		assert.Equal(t, 2, calls)
	})

	t.Run("in-flight key is a conflict", func(t *testing.T) {
		var calls int
		store := newMemoryIdempotencyStore()
		router := newRouter(store, &calls, http.StatusOK)

		req := httptest.NewRequest(http.MethodPost, "/payments/pay_1/capture", bytes.NewBufferString(`{}`))
		req.Header.Set(IdempotencyKeyHeader, "idem-1")
		c, _ := gin.CreateTestContext(httptest.NewRecorder())
		c.Request = req
		require.NoError(t, store.Set(context.Background(), idempotencyCacheKey(c, "idem-1")+":lock", []byte("1"), time.Minute))

		w := serve(router, http.MethodPost, "/payments/pay_1/capture", `{}`, key)

		assert.Equal(t, http.StatusConflict, w.Code)
		assert.Zero(t, calls)
		var body map[string]any
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, "REQUEST_IN_PROGRESS", body["code"])
	})

	t.Run("without key or store", func(t *testing.T) {
		var calls int
		router := newRouter(nil, &calls, http.StatusOK)
		serve(router, http.MethodPost, "/payments/pay_1/capture", `{}`, key)
		serve(router, http.MethodPost, "/payments/pay_1/capture", `{}`, key)
		assert.Equal(t, 2, calls)

		calls = 0
		router = newRouter(newMemoryIdempotencyStore(), &calls, http.StatusOK)
		serve(router, http.MethodPost, "/payments/pay_1/capture", `{}`, nil)
		serve(router, http.MethodPost, "/payments/pay_1/capture", `{}`, nil)
		assert.Equal(t, 2, calls)
	})
}
