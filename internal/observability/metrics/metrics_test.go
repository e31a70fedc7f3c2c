package metrics

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric/noop"
)

func TestFilterAttributesDropsForbiddenLabels(t *testing.T) {
	attrs := FilterAttributes(
		attribute.String("kind", "bill"),
		attribute.String("party_id", "456"),
		attribute.String("direction", "sales"),
	)
	if len(attrs) != 2 {
		t.Fatalf("expected 2 attributes, got %d", len(attrs))
	}
	for _, attr := range attrs {
		if attr.Key == "party_id" {
			t.Fatalf("expected party_id to be dropped")
		}
	}
}

func TestMetricsWithNoopProvider(t *testing.T) {
	m, err := New(Config{}, noop.NewMeterProvider())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ctx := context.Background()
	m.RecordBillCreated(ctx, "sales", "intrastate", false)
	m.RecordLedgerEntry(ctx, "bill")
	m.RecordConcurrencyConflict(ctx, "payment", true)

	var nilMetrics *Metrics
	nilMetrics.RecordReconciliationRequired(ctx, "create_bill")
}
