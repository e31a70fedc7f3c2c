package metrics

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"gorm.io/gorm"
)

func TestClassifyFailureReason(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{name: "deadline", err: context.DeadlineExceeded, want: FailureReasonDeadlineExceeded},
		{name: "lock_timeout", err: &pgconn.PgError{Code: "55P03"}, want: FailureReasonDBLockTimeout},
		{name: "serialization", err: &pgconn.PgError{Code: "40001"}, want: FailureReasonSerializationFailure},
		{name: "deadlock", err: &pgconn.PgError{Code: "40P01"}, want: FailureReasonSerializationFailure},
		{name: "duplicate", err: gorm.ErrDuplicatedKey, want: FailureReasonUniqueViolation},
		{name: "unknown", err: errors.New("boom"), want: FailureReasonUnknown},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ClassifyFailureReason(tc.err); got != tc.want {
				t.Fatalf("expected reason %q, got %q", tc.want, got)
			}
		})
	}
}

func TestLedgerMetricsCounters(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewLedgerMetrics(registry, Config{ServiceName: "billbook", Environment: "test"})

	m.IncPostingAttempt("bill", PostingOutcomeApplied)
	m.IncPostingAttempt("bill", PostingOutcomeApplied)
	m.IncPostingAttempt("bill", PostingOutcomeConflict)
	m.IncPostingFailure(&pgconn.PgError{Code: "40001"})
	m.ObserveLockWait(LockBackendLocal, 3*time.Millisecond)

	if got := testutil.ToFloat64(m.postingAttempts.WithLabelValues("bill", PostingOutcomeApplied)); got != 2 {
		t.Fatalf("expected 2 applied attempts, got %v", got)
	}
	if got := testutil.ToFloat64(m.postingFailures.WithLabelValues(FailureReasonSerializationFailure)); got != 1 {
		t.Fatalf("expected 1 serialization failure, got %v", got)
	}
	if got := testutil.CollectAndCount(m.lockWait); got != 1 {
		t.Fatalf("expected one lock wait series, got %d", got)
	}
}

func TestNilLedgerMetricsIsSafe(t *testing.T) {
	var m *LedgerMetrics
	m.IncPostingAttempt("bill", PostingOutcomeApplied)
	m.ObserveLockWait(LockBackendRedis, time.Second)
	m.IncPostingFailure(errors.New("boom"))
}

func TestPostingDurationHistogramSamples(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewLedgerMetrics(registry, Config{})

	m.ObservePostingDuration("payment", 2*time.Millisecond)
	m.ObservePostingDuration("payment", 40*time.Millisecond)
	m.ObserveLockWait(LockBackendRedis, -time.Second)

	observer, err := m.postingDuration.GetMetricWithLabelValues("payment")
	if err != nil {
		t.Fatalf("lookup histogram: %v", err)
	}
	var sample dto.Metric
	if err := observer.(prometheus.Histogram).Write(&sample); err != nil {
		t.Fatalf("write histogram: %v", err)
	}
	if got := sample.GetHistogram().GetSampleCount(); got != 2 {
		t.Fatalf("expected 2 samples, got %d", got)
	}
	labels := map[string]string{}
	for _, pair := range sample.GetLabel() {
		labels[pair.GetName()] = pair.GetValue()
	}
	if labels["service"] != "billbook" || labels["env"] != "unknown" {
		t.Fatalf("unexpected const labels %v", labels)
	}

	var wait dto.Metric
	waitObserver, err := m.lockWait.GetMetricWithLabelValues(LockBackendRedis)
	if err != nil {
		t.Fatalf("lookup lock wait: %v", err)
	}
	if err := waitObserver.(prometheus.Histogram).Write(&wait); err != nil {
		t.Fatalf("write lock wait: %v", err)
	}
	if got := wait.GetHistogram().GetSampleSum(); got != 0 {
		t.Fatalf("negative waits clamp to zero, got sum %v", got)
	}
}
