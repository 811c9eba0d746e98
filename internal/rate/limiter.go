package rate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config holds rate limiter tuning parameters.
type Config struct {
	Prefix      string
	Window      time.Duration
	MaxRequests int
}

// Limiter enforces the per-phone verification-code issuance budget using
// Redis fixed-window counters.
type Limiter struct {
	redis  redis.UniversalClient
	config Config
}

// New creates a rate [Limiter] backed by the given Redis client.
func New(redisClient redis.UniversalClient, cfg Config) *Limiter {
	return &Limiter{
		redis:  redisClient,
		config: cfg,
	}
}

// Allow records one issuance request for the phone and reports whether it
// fits the window budget. When the budget is exhausted it returns
// [ErrRateLimited] together with the time until the window rolls over.
func (l *Limiter) Allow(ctx context.Context, phone string) (time.Duration, error) {
	key := l.key(phone)

	count, err := l.incrementWithTTL(ctx, key, l.config.Window)
	if err != nil {
		return 0, err
	}

	if count > int64(l.config.MaxRequests) {
		retryAfter, err := l.remaining(ctx, key)
		if err != nil {
			return 0, err
		}
		return retryAfter, ErrRateLimited
	}

	return 0, nil
}

// Peek reports the current request count for a phone without consuming
// budget. Missing keys return zero.
func (l *Limiter) Peek(ctx context.Context, phone string) (int, error) {
	count, err := l.redis.Get(ctx, l.key(phone)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if count < 0 {
		return 0, nil
	}
	return int(count), nil
}

// Reset clears the window for a phone. Used by operator tooling, never by
// the request path.
func (l *Limiter) Reset(ctx context.Context, phone string) error {
	if err := l.redis.Del(ctx, l.key(phone)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

func (l *Limiter) key(phone string) string {
	return l.config.Prefix + ":" + phone
}

func (l *Limiter) remaining(ctx context.Context, key string) (time.Duration, error) {
	ttl, err := l.redis.PTTL(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if ttl < 0 {
		// Key vanished between INCR and PTTL; the next request starts a
		// fresh window.
		return 0, nil
	}
	return ttl, nil
}

func (l *Limiter) incrementWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	// Fixed-window semantics: set TTL only for the first hit in the window.
	if count == 1 {
		if err := l.redis.Expire(ctx, key, ttl).Err(); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}

	return count, nil
}
