package geolocation

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/smallbiznis/leadbridge/internal/cache"
	"github.com/smallbiznis/leadbridge/internal/clock"
	"github.com/smallbiznis/leadbridge/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type ipAPIStub struct {
	server *httptest.Server
	hits   atomic.Int32
	status string
}

func newIPAPIStub(t *testing.T) *ipAPIStub {
	t.Helper()
	stub := &ipAPIStub{status: StatusSuccess}
	stub.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		stub.hits.Add(1)
		assert.Equal(t, lookupFields, r.URL.Query().Get("fields"))
		ip := strings.TrimPrefix(r.URL.Path, "/json/")
		w.Header().Set("Content-Type", "application/json")
		if stub.status != StatusSuccess {
			fmt.Fprintf(w, `{"status":"fail","message":"reserved range"}`)
			return
		}
		fmt.Fprintf(w, `{"status":"success","country":"Brazil","countryCode":"BR","region":"PE","regionName":"Pernambuco","city":"Recife","query":%q}`, ip)
	}))
	t.Cleanup(stub.server.Close)
	return stub
}

func newTestResolver(t *testing.T, endpoint string, c clock.Clock) *Resolver {
	t.Helper()
	cfg := config.Config{Geolocation: config.GeolocationConfig{
		Endpoint: endpoint,
		Timeout:  2 * time.Second,
		CacheTTL: 72 * time.Hour,
	}}
	return New(Params{Config: cfg, Store: cache.NewMemoryStore(c), Log: zap.NewNop()})
}

func TestResolveCachesSuccessfulLookups(t *testing.T) {
	stub := newIPAPIStub(t)
	fake := clock.NewFakeClock(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))
	r := newTestResolver(t, stub.server.URL+"/json/", fake)
	ctx := context.Background()

	first, err := r.Resolve(ctx, "200.1.2.3")
	require.NoError(t, err)
	assert.Equal(t, "Recife", first.City)

	fake.Advance(71 * time.Hour)
	second, err := r.Resolve(ctx, "200.1.2.3")
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), stub.hits.Load(), "second call within 72h must be served from cache")

	fake.Advance(2 * time.Hour)
	_, err = r.Resolve(ctx, "200.1.2.3")
	require.NoError(t, err)
	assert.Equal(t, int32(2), stub.hits.Load(), "expired entry triggers a new lookup")
}

func TestResolveDoesNotCacheFailures(t *testing.T) {
	stub := newIPAPIStub(t)
	stub.status = "fail"
	r := newTestResolver(t, stub.server.URL+"/json/", clock.NewFakeClock(time.Now()))
	ctx := context.Background()

	_, err := r.Resolve(ctx, "10.0.0.1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrLookupFailed))

	_, err = r.Resolve(ctx, "10.0.0.1")
	require.Error(t, err)
	assert.Equal(t, int32(2), stub.hits.Load())
}

func TestResolveTransportFailure(t *testing.T) {
	r := newTestResolver(t, "http://127.0.0.1:1/json/", clock.New())
	loc, err := r.Resolve(context.Background(), "200.1.2.3")
	assert.Nil(t, loc)
	assert.ErrorIs(t, err, ErrLookupFailed)
	assert.Equal(t, Fields{}, FormatLocationData(loc))
}

func TestClearCacheForcesLookup(t *testing.T) {
	stub := newIPAPIStub(t)
	r := newTestResolver(t, stub.server.URL+"/json/", clock.New())
	ctx := context.Background()

	_, err := r.Resolve(ctx, "200.1.2.3")
	require.NoError(t, err)
	require.NoError(t, r.ClearCache(ctx, "200.1.2.3"))
	_, err = r.Resolve(ctx, "200.1.2.3")
	require.NoError(t, err)
	assert.Equal(t, int32(2), stub.hits.Load())

	n, err := r.ClearAllCache(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestTestConnectivityBypassesCache(t *testing.T) {
	stub := newIPAPIStub(t)
	r := newTestResolver(t, stub.server.URL+"/json/", clock.New())

	res := r.TestConnectivity(context.Background())
	assert.True(t, res.Success)
	res = r.TestConnectivity(context.Background())
	assert.True(t, res.Success)
	assert.Equal(t, int32(2), stub.hits.Load())
}

func TestFormatLocationData(t *testing.T) {
	assert.Equal(t, Fields{City: "Recife", State: "Pernambuco", Country: "Brazil"}, FormatLocationData(&Location{
		Status: StatusSuccess, City: "Recife", Region: "PE", RegionName: "Pernambuco", Country: "Brazil",
	}))
	assert.Equal(t, Fields{}, FormatLocationData(&Location{Status: "fail", City: "x"}))
	assert.Equal(t, Fields{}, FormatLocationData(nil))
}

func TestCacheKey(t *testing.T) {
	assert.True(t, strings.HasPrefix(CacheKey("1.1.1.1"), "iare_crm_geolocation_"))
	assert.Len(t, CacheKey("1.1.1.1"), len(CacheKeyPrefix)+32)
	assert.NotEqual(t, CacheKey("1.1.1.1"), CacheKey("1.1.1.2"))
}
