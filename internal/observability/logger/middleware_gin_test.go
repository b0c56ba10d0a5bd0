package logger

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	obscontext "github.com/smallbiznis/leadbridge/internal/observability/context"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func newObservedRouter(t *testing.T) (*gin.Engine, *observer.ObservedLogs) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	core, logs := observer.New(zapcore.DebugLevel)
	restore := zap.ReplaceGlobals(zap.New(core))
	t.Cleanup(restore)

	r := gin.New()
	r.Use(GinMiddleware(MiddlewareConfig{}))
	return r, logs
}

func TestGinMiddlewareTagsFormKey(t *testing.T) {
	r, logs := newObservedRouter(t)

	var seen string
	r.POST("/v1/forms/:page_id/:widget_id/submissions", func(c *gin.Context) {
		seen = obscontext.FormKeyFromContext(c.Request.Context())
		c.Status(http.StatusAccepted)
	})

	req := httptest.NewRequest(http.MethodPost, "/v1/forms/42/abc/submissions", nil)
	req.Header.Set("X-Request-Id", "req-1")
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	assert.Equal(t, "42_abc", seen)
	assert.Equal(t, "req-1", resp.Header().Get("X-Request-Id"))

	entries := logs.FilterMessage("http_request").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "req-1", fields["request_id"])
	assert.Equal(t, "42_abc", fields["form_key"])
	assert.Equal(t, int64(http.StatusAccepted), fields["status"])
}

func TestGinMiddlewareGeneratesRequestID(t *testing.T) {
	r, _ := newObservedRouter(t)
	r.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })

	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.NotEmpty(t, resp.Header().Get("X-Request-Id"))
}

func TestGinMiddlewareLevels(t *testing.T) {
	r, logs := newObservedRouter(t)
	r.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/limited", func(c *gin.Context) { c.Status(http.StatusTooManyRequests) })
	r.GET("/broken", func(c *gin.Context) { c.Status(http.StatusInternalServerError) })

	for _, path := range []string{"/health", "/limited", "/broken"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	entries := logs.FilterMessage("http_request").All()
	require.Len(t, entries, 3)
	assert.Equal(t, zapcore.DebugLevel, entries[0].Level)
	assert.Equal(t, zapcore.WarnLevel, entries[1].Level)
	assert.Equal(t, zapcore.ErrorLevel, entries[2].Level)
}
