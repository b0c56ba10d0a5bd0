package connection

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"strings"
	"time"

	"github.com/smallbiznis/leadbridge/internal/cache"
	"github.com/smallbiznis/leadbridge/internal/clock"
	"github.com/smallbiznis/leadbridge/internal/crm"
	"github.com/smallbiznis/leadbridge/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	CacheKeyPrefix = "iare_crm_auto_connection_test_"
	StatusCacheKey = "iare_crm_connection_status"
	CacheTTL       = 30 * time.Minute
)

const (
	CodeOK               = "ok"
	CodeMissingAPIKey    = "missing_api_key"
	CodeInvalidAPIKey    = "invalid_api_key"
	CodeConnectionFailed = "connection_failed"
	CodeUnknown          = "unknown"
)

// Checker performs the remote credential check.
type Checker interface {
	TestConnection(ctx context.Context, apiKey string) crm.Result
}

// Result is a connection test outcome as shown to admins.
type Result struct {
	Success  bool            `json:"success"`
	Message  string          `json:"message"`
	Code     string          `json:"code"`
	Data     json.RawMessage `json:"data,omitempty"`
	Details  json.RawMessage `json:"details,omitempty"`
	Cached   bool            `json:"cached"`
	TestedAt time.Time       `json:"tested_at"`
}

type Params struct {
	fx.In

	Checker Checker
	Store   cache.Store
	Clock   clock.Clock
	Log     *zap.Logger
	Metrics *metrics.Metrics `optional:"true"`
}

type Tester struct {
	checker Checker
	store   cache.Store
	clock   clock.Clock
	log     *zap.Logger
	metrics *metrics.Metrics
}

func New(p Params) *Tester {
	return &Tester{
		checker: p.Checker,
		store:   p.Store,
		clock:   p.Clock,
		log:     p.Log.Named("connection.tester"),
		metrics: p.Metrics,
	}
}

// CacheKey is the cache entry holding the last result for apiKey.
func CacheKey(apiKey string) string {
	sum := md5.Sum([]byte(apiKey))
	return CacheKeyPrefix + hex.EncodeToString(sum[:])
}

// Test checks apiKey against the CRM, reusing a result younger than CacheTTL.
// Malformed keys are rejected without a network call.
func (t *Tester) Test(ctx context.Context, apiKey string) Result {
	if strings.TrimSpace(apiKey) == "" {
		return t.local(ctx, CodeMissingAPIKey, "API key is required for testing connection.")
	}
	key := crm.SanitizeAPIKey(apiKey)
	if !crm.ValidateAPIKey(key) {
		return t.local(ctx, CodeInvalidAPIKey, "Invalid API key format.")
	}

	cacheKey := CacheKey(key)
	var cached Result
	found, err := t.store.Get(ctx, cacheKey, &cached)
	if err != nil {
		t.log.Warn("read cached connection test failed", zap.Error(err))
	}
	if found {
		cached.Cached = true
		t.metrics.RecordConnectionTest(ctx, cached.Code, true)
		return cached
	}

	res := t.run(ctx, key)
	if err := t.store.Set(ctx, cacheKey, res, CacheTTL); err != nil {
		t.log.Warn("cache connection test failed", zap.Error(err))
	}
	t.metrics.RecordConnectionTest(ctx, res.Code, false)
	return res
}

// Retest drops any cached result for apiKey and tests again.
func (t *Tester) Retest(ctx context.Context, apiKey string) Result {
	t.Invalidate(ctx, apiKey)
	return t.Test(ctx, apiKey)
}

// Status returns the cached result for apiKey without testing.
func (t *Tester) Status(ctx context.Context, apiKey string) Result {
	key := crm.SanitizeAPIKey(apiKey)
	if key == "" {
		return Result{Code: CodeMissingAPIKey, Message: "No API key configured"}
	}
	var cached Result
	found, err := t.store.Get(ctx, CacheKey(key), &cached)
	if err != nil || !found {
		return Result{Code: CodeUnknown, Message: "Connection status unknown"}
	}
	cached.Cached = true
	return cached
}

func (t *Tester) run(ctx context.Context, apiKey string) Result {
	res := t.checker.TestConnection(ctx, apiKey)
	now := t.clock.Now()
	if res.Success {
		return Result{
			Success:  true,
			Message:  res.Message,
			Code:     CodeOK,
			Data:     res.Data,
			TestedAt: now,
		}
	}

	t.log.Warn("connection test failed",
		zap.String("api_key", crm.MaskAPIKey(apiKey)),
		zap.String("code", res.Code),
		zap.Int("status_code", res.StatusCode),
		zap.Error(res.Err),
	)
	return Result{
		Success:  false,
		Message:  res.Message,
		Code:     CodeConnectionFailed,
		Details:  res.Data,
		TestedAt: now,
	}
}

func (t *Tester) local(ctx context.Context, code, message string) Result {
	t.metrics.RecordConnectionTest(ctx, code, false)
	return Result{Code: code, Message: message, TestedAt: t.clock.Now()}
}

// Invalidate drops the cached result for apiKey.
func (t *Tester) Invalidate(ctx context.Context, apiKey string) {
	keys := []string{StatusCacheKey}
	if key := crm.SanitizeAPIKey(apiKey); key != "" {
		keys = append(keys, CacheKey(key))
	}
	if err := t.store.Delete(ctx, keys...); err != nil {
		t.log.Warn("invalidate connection test failed", zap.Error(err))
	}
}

// APIKeyChanged drops results cached for both the old and new key.
func (t *Tester) APIKeyChanged(ctx context.Context, oldKey, newKey string) {
	t.Invalidate(ctx, oldKey)
	t.Invalidate(ctx, newKey)
}
