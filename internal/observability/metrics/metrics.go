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
	Environment      string
}

// Metrics exposes application-level instruments.
type Metrics struct {
	rowsWritten      metric.Int64Counter
	ingestRuns       metric.Int64Counter
	sheetsSkipped    metric.Int64Counter
	queries          metric.Int64Counter
	rowsPurged       metric.Int64Counter
	rateLimitAllowed metric.Int64Counter
	rateLimitDenied  metric.Int64Counter
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
		name = "sheetseries"
	}
	meter := provider.Meter(name)

	rowsWritten, err := meter.Int64Counter("sheetseries_rows_written_total")
	if err != nil {
		return nil, err
	}
	ingestRuns, err := meter.Int64Counter("sheetseries_ingest_runs_total")
	if err != nil {
		return nil, err
	}
	sheetsSkipped, err := meter.Int64Counter("sheetseries_sheets_skipped_total")
	if err != nil {
		return nil, err
	}
	queries, err := meter.Int64Counter("sheetseries_queries_total")
	if err != nil {
		return nil, err
	}
	rowsPurged, err := meter.Int64Counter("sheetseries_rows_purged_total")
	if err != nil {
		return nil, err
	}
	rateLimitAllowed, err := meter.Int64Counter("sheetseries_rate_limit_allowed_total")
	if err != nil {
		return nil, err
	}
	rateLimitDenied, err := meter.Int64Counter("sheetseries_rate_limit_denied_total")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		rowsWritten:      rowsWritten,
		ingestRuns:       ingestRuns,
		sheetsSkipped:    sheetsSkipped,
		queries:          queries,
		rowsPurged:       rowsPurged,
		rateLimitAllowed: rateLimitAllowed,
		rateLimitDenied:  rateLimitDenied,
	}, nil
}

// RecordIngest counts one workbook ingestion and the rows it wrote.
func (m *Metrics) RecordIngest(ctx context.Context, client, source, status string, rows, skippedSheets int) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("client", strings.TrimSpace(client)),
		attribute.String("source", strings.TrimSpace(source)),
		attribute.String("status", strings.TrimSpace(status)),
	)
	m.ingestRuns.Add(ctx, 1, metric.WithAttributes(attrs...))
	if rows > 0 {
		m.rowsWritten.Add(ctx, int64(rows), metric.WithAttributes(attrs...))
	}
	if skippedSheets > 0 {
		m.sheetsSkipped.Add(ctx, int64(skippedSheets), metric.WithAttributes(attrs...))
	}
}

// RecordQuery counts an aggregation or snapshot query by kind.
func (m *Metrics) RecordQuery(ctx context.Context, kind string, found bool) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("kind", strings.TrimSpace(kind)),
		attribute.Bool("found", found),
	)
	m.queries.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordPurge counts rows removed by retention.
func (m *Metrics) RecordPurge(ctx context.Context, source string, rows int64) {
	if m == nil || rows <= 0 {
		return
	}
	attrs := FilterAttributes(attribute.String("source", strings.TrimSpace(source)))
	m.rowsPurged.Add(ctx, rows, metric.WithAttributes(attrs...))
}

// RecordRateLimitAllowed increments rate limit allow counts.
func (m *Metrics) RecordRateLimitAllowed(ctx context.Context, client, endpoint string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("client", strings.TrimSpace(client)),
		attribute.String("endpoint", strings.TrimSpace(endpoint)),
	)
	m.rateLimitAllowed.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordRateLimitDenied increments rate limit deny counts.
func (m *Metrics) RecordRateLimitDenied(ctx context.Context, client, endpoint, reason string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("client", strings.TrimSpace(client)),
		attribute.String("endpoint", strings.TrimSpace(endpoint)),
		attribute.String("reason", strings.TrimSpace(reason)),
	)
	m.rateLimitDenied.Add(ctx, 1, metric.WithAttributes(attrs...))
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
	"client":      {},
	"source":      {},
	"status":      {},
	"kind":        {},
	"found":       {},
	"endpoint":    {},
	"status_code": {},
	"reason":      {},
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
