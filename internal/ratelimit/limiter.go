package ratelimit

import (
	"context"
	"errors"
	"strings"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/meterbill/internal/config"
)

const keyWrite = "ratelimit:write:"

// WriteLimiter throttles mutating API calls per client.
type WriteLimiter struct {
	bucket *TokenBucket
	prefix string
	rate   float64
	burst  int
}

// NewWriteLimiter returns nil when rate limiting is disabled.
func NewWriteLimiter(cfg config.Config, client redis.UniversalClient) (*WriteLimiter, error) {
	limitCfg := cfg.RateLimit
	if !limitCfg.Enabled {
		return nil, nil
	}
	if client == nil {
		return nil, errors.New("rate limiting requires redis")
	}
	if limitCfg.WriteRate <= 0 || limitCfg.WriteBurst <= 0 {
		return nil, errors.New("write rate limit must be positive")
	}
	return &WriteLimiter{
		bucket: NewTokenBucket(client),
		prefix: cfg.Redis.KeyPrefix + ":",
		rate:   limitCfg.WriteRate,
		burst:  limitCfg.WriteBurst,
	}, nil
}

func (l *WriteLimiter) Enabled() bool {
	return l != nil && l.bucket != nil
}

func (l *WriteLimiter) Allow(ctx context.Context, client string) (Result, error) {
	if !l.Enabled() {
		return Result{Allowed: true}, nil
	}
	return l.bucket.Allow(ctx, l.prefix+keyWrite+strings.TrimSpace(client), l.rate, l.burst)
}
