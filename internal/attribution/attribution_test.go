package attribution

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/leadbridge/internal/clock"
	"github.com/smallbiznis/leadbridge/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(policy string, includeTerm bool) *Service {
	cfg := config.Config{Attribution: config.AttributionConfig{
		CookiePrefix: "iare_crm_",
		TTL:          30 * 24 * time.Hour,
		MergePolicy:  policy,
		IncludeTerm:  includeTerm,
	}}
	return New(cfg, clock.NewFakeClock(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)))
}

func TestCaptureWhitelist(t *testing.T) {
	s := newTestService("replace", false)
	rec, ok := s.Capture(url.Values{
		"utm_source": {" google "},
		"utm_medium": {""},
		"utm_term":   {"shoes"},
		"gclid":      {"abc"},
	})
	require.True(t, ok)
	assert.Equal(t, Record{KeySource: "google"}, rec)

	_, ok = s.Capture(url.Values{"page": {"2"}})
	assert.False(t, ok)
}

func TestCaptureIncludesTermWhenEnabled(t *testing.T) {
	s := newTestService("replace", true)
	rec, ok := s.Capture(url.Values{"utm_term": {"shoes"}})
	require.True(t, ok)
	assert.Equal(t, "shoes", rec[KeyTerm])
	assert.Contains(t, s.Keys(), KeyTerm)
}

func TestApplyPolicies(t *testing.T) {
	existing := Record{KeySource: "google", KeyMedium: "cpc"}
	captured := Record{KeySource: "facebook"}

	assert.Equal(t, Record{KeySource: "facebook"}, Apply(existing, captured, PolicyReplace))
	assert.Equal(t, Record{KeySource: "facebook", KeyMedium: "cpc"}, Apply(existing, captured, PolicyMerge))
	assert.Equal(t, existing, Apply(existing, Record{}, PolicyReplace))
}

func TestParsePolicyDefaultsToReplace(t *testing.T) {
	assert.Equal(t, PolicyReplace, ParsePolicy(""))
	assert.Equal(t, PolicyReplace, ParsePolicy("bogus"))
	assert.Equal(t, PolicyMerge, ParsePolicy("MERGE"))
}

func TestWriteAndReadCookies(t *testing.T) {
	s := newTestService("replace", false)
	w := httptest.NewRecorder()
	s.Write(w, Record{KeySource: "google ads", KeyCampaign: "spring"})

	resp := w.Result()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	var sawTimestamp bool
	for _, c := range resp.Cookies() {
		if c.MaxAge > 0 {
			assert.Equal(t, "/", c.Path)
			assert.Equal(t, http.SameSiteLaxMode, c.SameSite)
			assert.Equal(t, 30*24*60*60, c.MaxAge)
			req.AddCookie(&http.Cookie{Name: c.Name, Value: c.Value})
		}
		if c.Name == "iare_crm_timestamp" {
			sawTimestamp = true
		}
	}
	assert.True(t, sawTimestamp)
	assert.Equal(t, Record{KeySource: "google ads", KeyCampaign: "spring"}, s.FromRequest(req))

	at, ok := s.CapturedAt(req)
	require.True(t, ok)
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), at)
}

func TestGinMiddlewareExposesRecord(t *testing.T) {
	gin.SetMode(gin.TestMode)
	s := newTestService("merge", false)

	r := gin.New()
	r.Use(GinMiddleware(s))
	var got Record
	r.GET("/landing", func(c *gin.Context) {
		got = FromContext(c.Request.Context())
		c.Status(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodGet, "/landing?utm_source=newsletter", nil)
	req.AddCookie(&http.Cookie{Name: "iare_crm_utm_medium", Value: "email"})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, Record{KeySource: "newsletter", KeyMedium: "email"}, got)
	assert.NotEmpty(t, w.Result().Cookies())
}

func TestNoCaptureLeavesCookiesAlone(t *testing.T) {
	gin.SetMode(gin.TestMode)
	s := newTestService("replace", false)

	r := gin.New()
	r.Use(GinMiddleware(s))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/?page=2", nil)
	req.AddCookie(&http.Cookie{Name: "iare_crm_utm_source", Value: "google"})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Empty(t, w.Result().Cookies())
}
