// Package partylock serializes ledger postings per party.
package partylock

import (
	"context"
	"errors"
	"time"

	obsmetrics "github.com/smallbiznis/billbook/internal/observability/metrics"
)

var ErrLockTimeout = errors.New("party_lock_timeout")

// Release gives the lock back. It is safe to call once.
type Release func()

type Locker interface {
	Lock(ctx context.Context, key string) (Release, error)
}

// Chain acquires every locker in order and releases them in reverse.
func Chain(lockers ...Locker) Locker {
	filtered := make([]Locker, 0, len(lockers))
	for _, l := range lockers {
		if l != nil {
			filtered = append(filtered, l)
		}
	}
	if len(filtered) == 1 {
		return filtered[0]
	}
	return chain(filtered)
}

type chain []Locker

func (c chain) Lock(ctx context.Context, key string) (Release, error) {
	releases := make([]Release, 0, len(c))
	releaseAll := func() {
		for i := len(releases) - 1; i >= 0; i-- {
			releases[i]()
		}
	}
	for _, l := range c {
		release, err := l.Lock(ctx, key)
		if err != nil {
			releaseAll()
			return nil, err
		}
		releases = append(releases, release)
	}
	return releaseAll, nil
}

type instrumented struct {
	next    Locker
	backend string
	metrics *obsmetrics.LedgerMetrics
}

// Instrument records lock wait time under backend.
func Instrument(next Locker, backend string, metrics *obsmetrics.LedgerMetrics) Locker {
	if metrics == nil {
		return next
	}
	return &instrumented{next: next, backend: backend, metrics: metrics}
}

func (i *instrumented) Lock(ctx context.Context, key string) (Release, error) {
	start := time.Now()
	release, err := i.next.Lock(ctx, key)
	i.metrics.ObserveLockWait(i.backend, time.Since(start))
	return release, err
}
