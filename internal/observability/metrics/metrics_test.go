package metrics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.opentelemetry.io/otel/attribute"
)

func TestFilterAttributesDropsForbiddenLabels(t *testing.T) {
	attrs := FilterAttributes(
		attribute.String("reason", "no_campaign"),
		attribute.String("email", "jane@example.com"),
		attribute.String("status", "created"),
	)
	if len(attrs) != 2 {
		t.Fatalf("expected 2 attributes, got %d", len(attrs))
	}
	for _, attr := range attrs {
		if attr.Key == "email" {
			t.Fatalf("expected email to be dropped")
		}
	}
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	m.RecordLeadSubmitted(context.Background(), "created")
	m.RecordLeadDropped(context.Background(), "no_campaign")
	m.RecordRotationSelected(context.Background(), "A")
	m.RecordGeolocationLookup(context.Background(), "cache")
	m.RecordConnectionTest(context.Background(), "ok", true)
	m.RecordJobRun(context.Background(), "connection_check", "ok", time.Second)
}

func TestNoopMetricsRecord(t *testing.T) {
	m := NewNoop()
	if m == nil {
		t.Fatalf("expected noop metrics")
	}
	m.RecordLeadSubmitted(context.Background(), "created")
}

func TestGinMiddlewareCountsRequests(t *testing.T) {
	gin.SetMode(gin.TestMode)
	reg := prometheus.NewRegistry()
	httpMetrics := NewHTTPMetricsWithRegisterer(reg)

	r := gin.New()
	r.Use(GinMiddleware(httpMetrics))
	r.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })

	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	}

	got := testutil.ToFloat64(httpMetrics.requests.WithLabelValues(http.MethodGet, "/health", "200"))
	if got != 2 {
		t.Fatalf("expected 2 requests recorded, got %v", got)
	}
}
