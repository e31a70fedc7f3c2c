package service

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	taxdomain "github.com/smallbiznis/billbook/internal/tax/domain"
	"go.uber.org/fx"
	"golang.org/x/sync/singleflight"
)

type resolverParam struct {
	fx.In

	Repository taxdomain.Repository
}

type resolver struct {
	repo  taxdomain.Repository
	group singleflight.Group
}

func NewResolver(p resolverParam) taxdomain.RateResolver {
	return &resolver{repo: p.Repository}
}

// ResolveDefaultRate returns nil when the organization has no enabled default slab.
// Concurrent lookups for one organization share a single query.
func (r *resolver) ResolveDefaultRate(ctx context.Context, orgID snowflake.ID) (*decimal.Decimal, error) {
	ch := r.group.DoChan(orgID.String(), func() (any, error) {
		rate, err := r.repo.GetDefaultRate(context.WithoutCancel(ctx), orgID)
		if err != nil || rate == nil {
			return nil, err
		}
		return rate.RatePercent, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil || res.Val == nil {
			return nil, res.Err
		}
		percent := res.Val.(decimal.Decimal)
		return &percent, nil
	}
}
