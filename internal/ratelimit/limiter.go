package ratelimit

import (
	"context"
	"fmt"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/leadbridge/internal/clock"
	"github.com/smallbiznis/leadbridge/internal/config"
)

const keySubmissionIP = "leadbridge:ratelimit:submission:%s"

type Result struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
}

type bucket interface {
	Allow(ctx context.Context, key string, rate float64, burst int) (Result, error)
}

// SubmissionLimiter throttles public form submissions per client IP.
type SubmissionLimiter struct {
	enabled bool
	bucket  bucket
	rate    float64
	burst   int
}

func NewSubmissionLimiter(cfg config.Config, client *redis.Client, c clock.Clock) *SubmissionLimiter {
	limitCfg := cfg.RateLimit
	l := &SubmissionLimiter{
		enabled: limitCfg.Enabled && limitCfg.SubmissionRate > 0 && limitCfg.SubmissionBurst > 0,
		rate:    limitCfg.SubmissionRate,
		burst:   limitCfg.SubmissionBurst,
	}
	if client != nil {
		l.bucket = NewTokenBucket(client)
	} else {
		l.bucket = NewMemoryBucket(c)
	}
	return l
}

func (l *SubmissionLimiter) Enabled() bool {
	return l != nil && l.enabled
}

// AllowIP fails open when the backing store errors.
func (l *SubmissionLimiter) AllowIP(ctx context.Context, ip string) (Result, error) {
	if !l.Enabled() {
		return Result{Allowed: true}, nil
	}
	res, err := l.bucket.Allow(ctx, fmt.Sprintf(keySubmissionIP, strings.TrimSpace(ip)), l.rate, l.burst)
	if err != nil {
		return Result{Allowed: true}, err
	}
	return res, nil
}
