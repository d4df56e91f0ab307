// Package ratelimit throttles credential endpoints with a fixed-window
// counter kept in Redis.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"inkwell/common"
)

type Limiter struct {
	rdb    *redis.Client
	limit  int
	window time.Duration
}

// New returns nil when rdb is nil; a nil Limiter allows everything.
func New(rdb *redis.Client, limit int, window time.Duration) *Limiter {
	if rdb == nil {
		return nil
	}
	return &Limiter{rdb: rdb, limit: limit, window: window}
}

// Connect parses a redis:// URL. An empty URL disables limiting.
func Connect(url string) (*redis.Client, error) {
	if url == "" {
		return nil, nil
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return redis.NewClient(opts), nil
}

// Key hashes the parts into a short, fixed-width redis key.
func Key(resource string, parts ...string) string {
	d := xxhash.New()
	for _, p := range parts {
		_, _ = d.WriteString(p)
		_, _ = d.Write([]byte{0})
	}
	return fmt.Sprintf("rl:%s:%016x", resource, d.Sum64())
}

// Allow counts one hit against key and reports whether it is within limit.
func (l *Limiter) Allow(ctx context.Context, key string) (bool, error) {
	if l == nil {
		return true, nil
	}
	cnt, err := l.rdb.Incr(ctx, key).Result()
	if err != nil {
		return false, err
	}
	if cnt == 1 {
		if err := l.rdb.Expire(ctx, key, l.window).Err(); err != nil {
			return false, err
		}
	}
	return cnt <= int64(l.limit), nil
}

// Exceeded reports whether key has used up its window, without counting a
// hit. Callers that only count failures pair it with Allow.
func (l *Limiter) Exceeded(ctx context.Context, key string) (bool, error) {
	if l == nil {
		return false, nil
	}
	cnt, err := l.rdb.Get(ctx, key).Int64()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return cnt >= int64(l.limit), nil
}

// Middleware limits requests per client IP for the named resource. Redis
// failures let the request through.
func (l *Limiter) Middleware(resource string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if l == nil {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		allowed, err := l.Allow(ctx, Key(resource, c.ClientIP()))
		if err != nil {
			common.Logger.WarnContext(ctx, "rate limit unavailable", slog.String("resource", resource), slog.Any("error", err))
			c.Next()
			return
		}
		if !allowed {
			common.RespondJSON(c, common.NewTooManyRequestsError("Rate limit exceeded"))
			return
		}
		c.Next()
	}
}
