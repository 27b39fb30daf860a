package lock

import (
	"context"
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalLocker(t *testing.T) {
	t.Run("serializes holders of the same key", func(t *testing.T) {
		l := NewLocalLocker(Config{Wait: 5 * time.Second})

		var active, maxActive atomic.Int32
		var wg sync.WaitGroup
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				release, err := l.Acquire(context.Background(), "payment:pay_1")
				if !assert.NoError(t, err) {
					return
				}
				n := active.Add(1)
				for {
					m := maxActive.Load()
					if n <= m || maxActive.CompareAndSwap(m, n) {
						break
					}
				}
				time.Sleep(time.Millisecond)
				active.Add(-1)
				release()
			}()
		}
		wg.Wait()

		assert.Equal(t, int32(1), maxActive.Load())
		assert.Zero(t, l.held())
	})

	t.Run("different keys do not block", func(t *testing.T) {
		l := NewLocalLocker(Config{Wait: 50 * time.Millisecond})

		r1, err := l.Acquire(context.Background(), "a")
		require.NoError(t, err)
		defer r1()

		r2, err := l.Acquire(context.Background(), "b")
		require.NoError(t, err)
		r2()
	})

	t.Run("times out", func(t *testing.T) {
		l := NewLocalLocker(Config{Wait: 20 * time.Millisecond})

		release, err := l.Acquire(context.Background(), "k")
		require.NoError(t, err)
		defer release()

		_, err = l.Acquire(context.Background(), "k")
		assert.True(t, errors.Is(err, ErrNotAcquired))
	})

	t.Run("honours context cancellation", func(t *testing.T) {
		l := NewLocalLocker(Config{Wait: time.Minute})

		release, err := l.Acquire(context.Background(), "k")
		require.NoError(t, err)
		defer release()

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err = l.Acquire(ctx, "k")
		assert.ErrorIs(t, err, context.Canceled)
	})

	t.Run("release is idempotent", func(t *testing.T) {
		l := NewLocalLocker(Config{Wait: 20 * time.Millisecond})

		release, err := l.Acquire(context.Background(), "k")
		require.NoError(t, err)
		release()
		release()

		again, err := l.Acquire(context.Background(), "k")
		require.NoError(t, err)
		again()
		assert.Zero(t, l.held())
	})
}

func TestRedisLocker(t *testing.T) {
	addr := os.Getenv("CHECKOUT_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("CHECKOUT_TEST_REDIS_ADDR not set")
	}
	client := goredis.NewClient(&goredis.Options{Addr: addr})
	defer client.Close()

	l := NewRedisLocker(client, Config{Wait: 100 * time.Millisecond, Prefix: "test:lock:"}, nil)
	ctx := context.Background()

	release, err := l.Acquire(ctx, "pay_1")
	require.NoError(t, err)

	_, err = l.Acquire(ctx, "pay_1")
	assert.True(t, errors.Is(err, ErrNotAcquired))

	release()
	again, err := l.Acquire(ctx, "pay_1")
	require.NoError(t, err)
	again()
}
