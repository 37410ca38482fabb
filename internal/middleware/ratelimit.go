package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/flicky/grocery-storefront/internal/apperr"
)

var errTooManyRequests = apperr.New(apperr.RateLimited, "rate_limited", "too many requests, try again later")

// Counter counts hits on a key inside a fixed window.
type Counter interface {
	Hit(ctx context.Context, key string, window time.Duration) (count int64, ttl time.Duration, err error)
}

type RedisCounter struct {
	client *redis.Client
}

func NewRedisCounter(client *redis.Client) *RedisCounter {
	return &RedisCounter{client: client}
}

func (r *RedisCounter) Hit(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	pipe := r.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.ExpireNX(ctx, key, window)
	ttl := pipe.TTL(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, 0, fmt.Errorf("rate limit %s: %w", key, err)
	}
	return incr.Val(), ttl.Val(), nil
}

// RateLimit allows max requests per client IP and window under the given
// scope. Counter failures let the request through.
func RateLimit(counter Counter, scope string, max int, window time.Duration, log *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := "ratelimit:" + scope + ":" + c.ClientIP()
		n, ttl, err := counter.Hit(c.Request.Context(), key, window)
		if err != nil {
			log.Warn("rate limiter unavailable", "error", err, "scope", scope)
			c.Next()
			return
		}
		if n > int64(max) {
			if ttl > 0 {
				c.Header("Retry-After", strconv.Itoa(int(ttl.Seconds())))
			}
			Abort(c, errTooManyRequests)
			return
		}
		c.Next()
	}
}
