package ratelimiter

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// unreachableRedis fails fast so the limiter falls back to its configured burst.
func unreachableRedis(t *testing.T) *redis.Client {
	t.Helper()

	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestNewRateLimiter_NilClient(t *testing.T) {
	_, err := NewRateLimiter(nil, 1, 1, time.Minute)
	assert.Error(t, err)
}

func TestNewRateLimiter_DefaultTTL(t *testing.T) {
	rl, err := NewRateLimiter(unreachableRedis(t), 1, 1, 0)
	require.NoError(t, err)
	assert.Equal(t, 5*time.Minute, rl.ttl)
}

func TestGetLimiter_ReusesBucketPerKey(t *testing.T) {
	rl, err := NewRateLimiter(unreachableRedis(t), 0.001, 3, time.Minute)
	require.NoError(t, err)

	first := rl.GetLimiter(t.Context(), "10.0.0.1")
	again := rl.GetLimiter(t.Context(), "10.0.0.1")
	other := rl.GetLimiter(t.Context(), "10.0.0.2")

	assert.Same(t, first, again)
	assert.NotSame(t, first, other)
	assert.Equal(t, 3, first.Burst())
}

func TestRateLimitMiddleware(t *testing.T) {
	rl, err := NewRateLimiter(unreachableRedis(t), 0.001, 2, time.Minute)
	require.NoError(t, err)

	app := fiber.New()
	app.Use(rl.RateLimitMiddleware())
	app.Get("/", func(c *fiber.Ctx) error {
		return c.SendStatus(http.StatusOK)
	})

	statuses := make([]int, 0, 3)
	for range 3 {
		resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/", nil))
		require.NoError(t, err)
		statuses = append(statuses, resp.StatusCode)
	}

	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, statuses)
}
