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

// Metrics exposes billing engine instruments.
type Metrics struct {
	billsCreated         metric.Int64Counter
	billsCancelled       metric.Int64Counter
	ledgerEntries        metric.Int64Counter
	payments             metric.Int64Counter
	concurrencyConflicts metric.Int64Counter
	reconciliationNeeded metric.Int64Counter
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

// New configures the billing engine instruments.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "billbook"
	}
	meter := provider.Meter(name)

	billsCreated, err := meter.Int64Counter("billbook_bills_created_total")
	if err != nil {
		return nil, err
	}
	billsCancelled, err := meter.Int64Counter("billbook_bills_cancelled_total")
	if err != nil {
		return nil, err
	}
	ledgerEntries, err := meter.Int64Counter("billbook_ledger_entries_total")
	if err != nil {
		return nil, err
	}
	payments, err := meter.Int64Counter("billbook_payments_total")
	if err != nil {
		return nil, err
	}
	conflicts, err := meter.Int64Counter("billbook_ledger_concurrency_conflicts_total")
	if err != nil {
		return nil, err
	}
	reconciliation, err := meter.Int64Counter("billbook_reconciliation_required_total")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		billsCreated:         billsCreated,
		billsCancelled:       billsCancelled,
		ledgerEntries:        ledgerEntries,
		payments:             payments,
		concurrencyConflicts: conflicts,
		reconciliationNeeded: reconciliation,
	}, nil
}

// RecordBillCreated increments created bill counts.
func (m *Metrics) RecordBillCreated(ctx context.Context, direction, jurisdiction string, isReturn bool) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("direction", strings.TrimSpace(direction)),
		attribute.String("jurisdiction", strings.TrimSpace(jurisdiction)),
		attribute.Bool("is_return", isReturn),
	)
	m.billsCreated.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func (m *Metrics) RecordBillCancelled(ctx context.Context, direction string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("direction", strings.TrimSpace(direction)))
	m.billsCancelled.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordLedgerEntry increments ledger entry counts.
func (m *Metrics) RecordLedgerEntry(ctx context.Context, kind string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("kind", strings.TrimSpace(kind)))
	m.ledgerEntries.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordPayment increments payment counts by mode and classification.
func (m *Metrics) RecordPayment(ctx context.Context, mode, status string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("mode", strings.TrimSpace(mode)),
		attribute.String("payment_status", strings.TrimSpace(status)),
	)
	m.payments.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordConcurrencyConflict counts optimistic balance update collisions.
func (m *Metrics) RecordConcurrencyConflict(ctx context.Context, kind string, exhausted bool) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("kind", strings.TrimSpace(kind)),
		attribute.Bool("exhausted", exhausted),
	)
	m.concurrencyConflicts.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordReconciliationRequired counts operations left partially applied.
func (m *Metrics) RecordReconciliationRequired(ctx context.Context, operation string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("operation", strings.TrimSpace(operation)))
	m.reconciliationNeeded.Add(ctx, 1, metric.WithAttributes(attrs...))
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
	"direction":      {},
	"jurisdiction":   {},
	"is_return":      {},
	"kind":           {},
	"mode":           {},
	"payment_status": {},
	"exhausted":      {},
	"operation":      {},
	"reason":         {},
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
