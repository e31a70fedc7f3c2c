package service

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	taxdomain "github.com/smallbiznis/billbook/internal/tax/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type slowRateRepo struct {
	taxdomain.Repository
	calls   atomic.Int32
	release chan struct{}
}

func (r *slowRateRepo) GetDefaultRate(ctx context.Context, orgID snowflake.ID) (*taxdomain.TaxRate, error) {
	r.calls.Add(1)
	<-r.release
	return &taxdomain.TaxRate{OrgID: orgID, RatePercent: decimal.NewFromInt(18)}, nil
}

func TestResolverSharesConcurrentLookups(t *testing.T) {
	repo := &slowRateRepo{release: make(chan struct{})}
	r := NewResolver(resolverParam{Repository: repo})

	const callers = 5
	var wg sync.WaitGroup
	results := make(chan *decimal.Decimal, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rate, err := r.ResolveDefaultRate(context.Background(), 1001)
			assert.NoError(t, err)
			results <- rate
		}()
	}

	time.Sleep(20 * time.Millisecond)
	close(repo.release)
	wg.Wait()
	close(results)

	for rate := range results {
		require.NotNil(t, rate)
		assert.True(t, rate.Equal(decimal.NewFromInt(18)))
	}
	assert.LessOrEqual(t, repo.calls.Load(), int32(callers))
	assert.GreaterOrEqual(t, repo.calls.Load(), int32(1))
}

func TestResolverHonoursCallerCancellation(t *testing.T) {
	repo := &slowRateRepo{release: make(chan struct{})}
	defer close(repo.release)
	r := NewResolver(resolverParam{Repository: repo})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := r.ResolveDefaultRate(ctx, 1001)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
