package metrics

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"
)

const (
	PostingOutcomeApplied   = "applied"
	PostingOutcomeConflict  = "conflict"
	PostingOutcomeDuplicate = "duplicate"
	PostingOutcomeFailed    = "failed"
)

const (
	LockBackendLocal = "local"
	LockBackendRedis = "redis"
)

const (
	FailureReasonDeadlineExceeded     = "deadline_exceeded"
	FailureReasonDBLockTimeout        = "db_lock_timeout"
	FailureReasonSerializationFailure = "serialization_failure"
	FailureReasonUniqueViolation      = "unique_violation"
	FailureReasonUnknown              = "unknown"
)

// LedgerMetrics captures posting contention signals scraped through /metrics.
type LedgerMetrics struct {
	postingAttempts *prometheus.CounterVec
	postingDuration *prometheus.HistogramVec
	lockWait        *prometheus.HistogramVec
	postingFailures *prometheus.CounterVec
}

var (
	ledgerMetricsOnce sync.Once
	ledgerMetrics     *LedgerMetrics
)

// LedgerWithConfig returns the singleton ledger metrics registry using config labels.
func LedgerWithConfig(cfg Config) *LedgerMetrics {
	ledgerMetricsOnce.Do(func() {
		ledgerMetrics = NewLedgerMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return ledgerMetrics
}

// NewLedgerMetrics registers ledger collectors on registerer.
func NewLedgerMetrics(registerer prometheus.Registerer, cfg Config) *LedgerMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "billbook"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "unknown"
	}
	constLabels := prometheus.Labels{
		"service": serviceName,
		"env":     environment,
	}

	postingAttempts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "billbook_ledger_posting_attempts_total",
		Help:        "Ledger posting attempts by entry kind and outcome.",
		ConstLabels: constLabels,
	}, []string{"kind", "outcome"})
	postingDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:        "billbook_ledger_posting_duration_seconds",
		Help:        "End-to-end ledger posting latency including lock wait and retries.",
		Buckets:     []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		ConstLabels: constLabels,
	}, []string{"kind"})
	lockWait := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:        "billbook_party_lock_wait_seconds",
		Help:        "Time spent waiting for the per-party posting lock.",
		Buckets:     []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		ConstLabels: constLabels,
	}, []string{"backend"})
	postingFailures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "billbook_ledger_posting_failures_total",
		Help:        "Ledger posting failures by low-cardinality reason.",
		ConstLabels: constLabels,
	}, []string{"reason"})

	registerer.MustRegister(postingAttempts, postingDuration, lockWait, postingFailures)

	return &LedgerMetrics{
		postingAttempts: postingAttempts,
		postingDuration: postingDuration,
		lockWait:        lockWait,
		postingFailures: postingFailures,
	}
}

func (m *LedgerMetrics) IncPostingAttempt(kind, outcome string) {
	if m == nil || m.postingAttempts == nil {
		return
	}
	m.postingAttempts.WithLabelValues(kind, outcome).Inc()
}

func (m *LedgerMetrics) ObservePostingDuration(kind string, d time.Duration) {
	if m == nil || m.postingDuration == nil {
		return
	}
	m.postingDuration.WithLabelValues(kind).Observe(d.Seconds())
}

// ObserveLockWait records how long a poster waited for the party lock.
func (m *LedgerMetrics) ObserveLockWait(backend string, d time.Duration) {
	if m == nil || m.lockWait == nil {
		return
	}
	if d < 0 {
		d = 0
	}
	m.lockWait.WithLabelValues(backend).Observe(d.Seconds())
}

func (m *LedgerMetrics) IncPostingFailure(err error) {
	if m == nil || m.postingFailures == nil || err == nil {
		return
	}
	m.postingFailures.WithLabelValues(ClassifyFailureReason(err)).Inc()
}

// ClassifyFailureReason maps storage errors to low-cardinality reasons.
func ClassifyFailureReason(err error) string {
	if err == nil {
		return FailureReasonUnknown
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return FailureReasonDeadlineExceeded
	}
	if hasPGCode(err, "55P03") {
		return FailureReasonDBLockTimeout
	}
	if hasPGCode(err, "40001") || hasPGCode(err, "40P01") {
		return FailureReasonSerializationFailure
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) || hasPGCode(err, "23505") {
		return FailureReasonUniqueViolation
	}
	return FailureReasonUnknown
}

func hasPGCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == code
	}
	return false
}
