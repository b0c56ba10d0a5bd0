package geolocation

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/smallbiznis/leadbridge/internal/cache"
	"github.com/smallbiznis/leadbridge/internal/config"
	"github.com/smallbiznis/leadbridge/internal/observability/metrics"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const (
	CacheKeyPrefix = "iare_crm_geolocation_"
	lookupFields   = "status,message,country,countryCode,region,regionName,city"
	probeIP        = "8.8.8.8"
	maxBodyBytes   = 64 << 10
)

type Params struct {
	fx.In

	Config  config.Config
	Store   cache.Store
	Log     *zap.Logger
	Metrics *metrics.Metrics `optional:"true"`
}

type Resolver struct {
	endpoint  string
	ttl       time.Duration
	userAgent string
	client    *http.Client
	store     cache.Store
	log       *zap.Logger
	metrics   *metrics.Metrics
	group     singleflight.Group
}

func New(p Params) *Resolver {
	geoCfg := p.Config.Geolocation
	endpoint := strings.TrimSpace(geoCfg.Endpoint)
	if endpoint == "" {
		endpoint = "http://ip-api.com/json/"
	}
	if !strings.HasSuffix(endpoint, "/") {
		endpoint += "/"
	}
	timeout := geoCfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ttl := geoCfg.CacheTTL
	if ttl <= 0 {
		ttl = 72 * time.Hour
	}

	return &Resolver{
		endpoint:  endpoint,
		ttl:       ttl,
		userAgent: p.Config.CRM.UserAgent,
		client: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		store:   p.Store,
		log:     p.Log.Named("geolocation"),
		metrics: p.Metrics,
	}
}

// CacheKey returns the store key for ip.
func CacheKey(ip string) string {
	sum := md5.Sum([]byte(ip))
	return CacheKeyPrefix + hex.EncodeToString(sum[:])
}

// Resolve returns the cached location for ip or looks it up. Only successful
// lookups are cached.
func (r *Resolver) Resolve(ctx context.Context, ip string) (*Location, error) {
	ip = strings.TrimSpace(ip)
	if ip == "" {
		return nil, fmt.Errorf("%w: ip is required", ErrLookupFailed)
	}

	key := CacheKey(ip)
	var cached Location
	found, err := r.store.Get(ctx, key, &cached)
	if err != nil {
		r.log.Warn("geolocation cache read failed", zap.Error(err))
	}
	if found && cached.OK() {
		r.metrics.RecordGeolocationLookup(ctx, "cache")
		return &cached, nil
	}

	// The shared fetch outlives any single waiter; the client timeout bounds it.
	fetchCtx := context.WithoutCancel(ctx)
	v, err, _ := r.group.Do(key, func() (any, error) {
		loc, err := r.fetch(fetchCtx, ip)
		if err != nil {
			return nil, err
		}
		if !loc.OK() {
			return nil, fmt.Errorf("%w: %s", ErrLookupFailed, loc.Message)
		}
		if err := r.store.Set(fetchCtx, key, loc, r.ttl); err != nil {
			r.log.Warn("geolocation cache write failed", zap.Error(err))
		}
		return loc, nil
	})
	if err != nil {
		r.metrics.RecordGeolocationLookup(ctx, "failed")
		return nil, err
	}

	r.metrics.RecordGeolocationLookup(ctx, "api")
	loc := *v.(*Location)
	return &loc, nil
}

func (r *Resolver) fetch(ctx context.Context, ip string) (*Location, error) {
	target := r.endpoint + url.PathEscape(ip) + "?fields=" + lookupFields
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLookupFailed, err)
	}
	if r.userAgent != "" {
		req.Header.Set("User-Agent", r.userAgent)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLookupFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: unexpected status %d", ErrLookupFailed, resp.StatusCode)
	}

	var loc Location
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(&loc); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrLookupFailed, err)
	}
	return &loc, nil
}

// ClearCache drops the cached location for ip.
func (r *Resolver) ClearCache(ctx context.Context, ip string) error {
	return r.store.Delete(ctx, CacheKey(strings.TrimSpace(ip)))
}

// ClearAllCache drops every cached location.
func (r *Resolver) ClearAllCache(ctx context.Context) (int, error) {
	return r.store.DeletePrefix(ctx, CacheKeyPrefix)
}

type ConnectivityResult struct {
	Success bool      `json:"success"`
	Message string    `json:"message"`
	Data    *Location `json:"data"`
}

// TestConnectivity probes the lookup service without touching the cache.
func (r *Resolver) TestConnectivity(ctx context.Context) ConnectivityResult {
	loc, err := r.fetch(ctx, probeIP)
	if err == nil && loc.OK() {
		return ConnectivityResult{
			Success: true,
			Message: "IP-API.com connectivity test successful",
			Data:    loc,
		}
	}
	if err != nil {
		r.log.Warn("geolocation connectivity test failed", zap.Error(err))
	}
	return ConnectivityResult{
		Success: false,
		Message: "Failed to connect to IP-API.com service",
		Data:    loc,
	}
}
