package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/billbook/internal/clock"
	"github.com/smallbiznis/billbook/internal/orgcontext"
	taxdomain "github.com/smallbiznis/billbook/internal/tax/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type serviceParams struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  taxdomain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	repo  taxdomain.Repository
}

func NewService(p serviceParams) taxdomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("tax.service"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,
	}
}

func (s *Service) List(ctx context.Context, req taxdomain.ListRequest) ([]taxdomain.Response, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return nil, taxdomain.ErrInvalidOrganization
	}

	items, err := s.repo.List(ctx, orgID, taxdomain.ListRequest{
		Code:      strings.TrimSpace(req.Code),
		IsEnabled: req.IsEnabled,
	})
	if err != nil {
		return nil, err
	}

	resp := make([]taxdomain.Response, 0, len(items))
	for i := range items {
		resp = append(resp, toResponse(&items[i]))
	}
	return resp, nil
}

// Create stores a GST slab. A new default slab replaces the previous default.
func (s *Service) Create(ctx context.Context, req taxdomain.CreateRequest) (*taxdomain.Response, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return nil, taxdomain.ErrInvalidOrganization
	}

	now := s.clock.Now()
	record := &taxdomain.TaxRate{
		ID:          s.genID.Generate(),
		OrgID:       orgID,
		Code:        strings.ToUpper(strings.TrimSpace(req.Code)),
		Name:        strings.TrimSpace(req.Name),
		RatePercent: req.RatePercent,
		IsDefault:   req.IsDefault,
		IsEnabled:   true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := record.Validate(); err != nil {
		return nil, err
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if record.IsDefault {
			if err := repo.ClearDefault(ctx, orgID); err != nil {
				return err
			}
		}
		return repo.Create(ctx, record)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("tax rate created",
		zap.String("org_id", orgID.String()),
		zap.String("tax_rate_id", record.ID.String()),
		zap.String("code", record.Code),
		zap.Bool("is_default", record.IsDefault),
	)

	resp := toResponse(record)
	return &resp, nil
}

func (s *Service) Disable(ctx context.Context, id string) (*taxdomain.Response, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return nil, taxdomain.ErrInvalidOrganization
	}

	rateID, err := snowflake.ParseString(strings.TrimSpace(id))
	if err != nil {
		return nil, taxdomain.ErrInvalidID
	}

	item, err := s.repo.FindByID(ctx, orgID, rateID)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, taxdomain.ErrNotFound
	}

	item.IsEnabled = false
	item.IsDefault = false
	item.UpdatedAt = s.clock.Now()
	if err := s.repo.Update(ctx, item); err != nil {
		return nil, err
	}

	resp := toResponse(item)
	return &resp, nil
}

func toResponse(rate *taxdomain.TaxRate) taxdomain.Response {
	return taxdomain.Response{
		ID:             rate.ID.String(),
		OrganizationID: rate.OrgID.String(),
		Code:           rate.Code,
		Name:           rate.Name,
		RatePercent:    rate.RatePercent,
		IsDefault:      rate.IsDefault,
		IsEnabled:      rate.IsEnabled,
		CreatedAt:      rate.CreatedAt,
		UpdatedAt:      rate.UpdatedAt,
	}
}
