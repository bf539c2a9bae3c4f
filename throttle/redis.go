// Package throttle bounds sign in and password reset attempts per key.
package throttle

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/redis/go-redis/v9"
	auth "github.com/txnjournal/go-txn-auth"
)

const keyPrefix = "txn_auth:attempts:"

// Counter is the subset of redis commands the limiter uses. *redis.Client
// and *redis.ClusterClient satisfy it.
type Counter interface {
	Incr(ctx context.Context, key string) *redis.IntCmd
	ExpireNX(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
	TTL(ctx context.Context, key string) *redis.DurationCmd
}

// RedisLimiter is a fixed window counter: the first attempt opens a window
// of Window, and at most Limit attempts are allowed inside it.
type RedisLimiter struct {
	client Counter
	limit  int64
	window time.Duration
	logger auth.Logger
}

var _ auth.AttemptLimiter = (*RedisLimiter)(nil)

// NewRedisLimiter returns a limiter over client.
func NewRedisLimiter(client Counter, limit int, window time.Duration, logger auth.Logger) *RedisLimiter {
	if limit <= 0 {
		limit = 5
	}
	if window <= 0 {
		window = 15 * time.Minute
	}
	if logger == nil {
		logger = auth.DefaultLogger()
	}
	return &RedisLimiter{client: client, limit: int64(limit), window: window, logger: logger}
}

// NewRedisClient connects to addr.
func NewRedisClient(addr, password string) *redis.Client {
	return redis.NewClient(&redis.Options{Addr: addr, Password: password})
}

// Allow implements auth.AttemptLimiter.
func (l *RedisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	k := keyPrefix + key
	count, err := l.client.Incr(ctx, k).Result()
	if err != nil {
		return false, goerrors.Wrap(err, goerrors.CategoryOperation, "attempt counter unavailable")
	}
	if err := l.client.ExpireNX(ctx, k, l.window).Err(); err != nil {
		l.logger.Warn("attempt counter expiry not set", "key", key, "error", err)
	}
	if count > l.limit {
		ttl, _ := l.client.TTL(ctx, k).Result()
		l.logger.Info("attempt limit reached", "key", key, "count", count, "retry_in", ttl)
		return false, nil
	}
	return true, nil
}
