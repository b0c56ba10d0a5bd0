package metrics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Config configures the metrics provider.
type Config struct {
	Enabled          bool
	ExporterEndpoint string
	ExporterProtocol string
	ServiceName      string
}

// Metrics exposes application-level instruments.
type Metrics struct {
	leadsSubmitted     metric.Int64Counter
	leadsDropped       metric.Int64Counter
	rotationSelected   metric.Int64Counter
	geolocationLookups metric.Int64Counter
	connectionTests    metric.Int64Counter
	jobRuns            metric.Int64Counter
	jobDuration        metric.Float64Histogram
}

// NewProvider configures and registers the meter provider.
func NewProvider(lc fx.Lifecycle, cfg Config, log *zap.Logger) (metric.MeterProvider, error) {
	if !cfg.Enabled {
		provider := noop.NewMeterProvider()
		otel.SetMeterProvider(provider)
		return provider, nil
	}

	exporter, err := newExporter(cfg.ExporterProtocol, cfg.ExporterEndpoint)
	if err != nil {
		return nil, err
	}

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(10*time.Second))
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(provider)

	if lc != nil {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				if log != nil {
					log.Info("shutting down meter provider")
				}
				return provider.Shutdown(ctx)
			},
		})
	}

	if log != nil {
		log.Info("metrics initialized",
			zap.String("endpoint", cfg.ExporterEndpoint),
			zap.String("protocol", cfg.ExporterProtocol),
		)
	}

	return provider, nil
}

// New configures the domain metrics instruments.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "leadbridge"
	}
	meter := provider.Meter(name)

	leadsSubmitted, err := meter.Int64Counter("leadbridge_leads_submitted_total")
	if err != nil {
		return nil, err
	}
	leadsDropped, err := meter.Int64Counter("leadbridge_leads_dropped_total")
	if err != nil {
		return nil, err
	}
	rotationSelected, err := meter.Int64Counter("leadbridge_rotation_selected_total")
	if err != nil {
		return nil, err
	}
	geolocationLookups, err := meter.Int64Counter("leadbridge_geolocation_lookups_total")
	if err != nil {
		return nil, err
	}
	connectionTests, err := meter.Int64Counter("leadbridge_connection_tests_total")
	if err != nil {
		return nil, err
	}
	jobRuns, err := meter.Int64Counter("leadbridge_scheduler_job_runs_total")
	if err != nil {
		return nil, err
	}
	jobDuration, err := meter.Float64Histogram("leadbridge_scheduler_job_duration_seconds", metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}

	return &Metrics{
		leadsSubmitted:     leadsSubmitted,
		leadsDropped:       leadsDropped,
		rotationSelected:   rotationSelected,
		geolocationLookups: geolocationLookups,
		connectionTests:    connectionTests,
		jobRuns:            jobRuns,
		jobDuration:        jobDuration,
	}, nil
}

// NewNoop returns instruments bound to a noop provider.
func NewNoop() *Metrics {
	m, _ := New(Config{}, noop.NewMeterProvider())
	return m
}

// RecordLeadSubmitted counts a lead forwarded to the CRM by outcome status.
func (m *Metrics) RecordLeadSubmitted(ctx context.Context, status string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("status", strings.TrimSpace(status)))
	m.leadsSubmitted.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordLeadDropped counts a submission skipped before reaching the CRM.
func (m *Metrics) RecordLeadDropped(ctx context.Context, reason string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("reason", strings.TrimSpace(reason)))
	m.leadsDropped.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordRotationSelected counts a routing decision.
func (m *Metrics) RecordRotationSelected(ctx context.Context, campaignID string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("campaign_id", strings.TrimSpace(campaignID)))
	m.rotationSelected.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordGeolocationLookup counts lookups by source (cache, api, failed).
func (m *Metrics) RecordGeolocationLookup(ctx context.Context, source string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("source", strings.TrimSpace(source)))
	m.geolocationLookups.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordConnectionTest counts admin connection tests by result code.
func (m *Metrics) RecordConnectionTest(ctx context.Context, code string, cached bool) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("status_code", strings.TrimSpace(code)),
		attribute.Bool("cached", cached),
	)
	m.connectionTests.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordJobRun counts one scheduler job run by outcome (ok, error, timeout, skipped).
func (m *Metrics) RecordJobRun(ctx context.Context, job, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("job", strings.TrimSpace(job)),
		attribute.String("outcome", strings.TrimSpace(outcome)),
	)
	m.jobRuns.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.jobDuration.Record(ctx, elapsed.Seconds(), metric.WithAttributes(attrs...))
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	protocol = strings.ToLower(strings.TrimSpace(protocol))
	switch protocol {
	case "http", "http/protobuf":
		opts := []otlpmetrichttp.Option{}
		if endpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(endpoint))
		}
		return otlpmetrichttp.New(context.Background(), opts...)
	case "grpc", "grpc/protobuf", "":
		opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetricgrpc.WithEndpoint(endpoint))
		}
		return otlpmetricgrpc.New(context.Background(), opts...)
	default:
		return nil, fmt.Errorf("unsupported OTLP protocol %q", protocol)
	}
}

var allowedLabelKeys = map[attribute.Key]struct{}{
	"status":      {},
	"status_code": {},
	"reason":      {},
	"source":      {},
	"campaign_id": {},
	"cached":      {},
	"job":         {},
	"outcome":     {},
}

// FilterAttributes strips disallowed labels to keep metrics low-cardinality.
func FilterAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	filtered := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if _, ok := allowedLabelKeys[attr.Key]; !ok {
			continue
		}
		filtered = append(filtered, attr)
	}
	return filtered
}
