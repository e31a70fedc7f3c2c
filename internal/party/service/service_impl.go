package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	auditdomain "github.com/smallbiznis/billbook/internal/audit/domain"
	"github.com/smallbiznis/billbook/internal/clock"
	ledgerdomain "github.com/smallbiznis/billbook/internal/ledger/domain"
	"github.com/smallbiznis/billbook/internal/orgcontext"
	"github.com/smallbiznis/billbook/internal/party/domain"
	"github.com/smallbiznis/billbook/pkg/db/pagination"
	"github.com/smallbiznis/billbook/pkg/money"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Clock    clock.Clock
	Repo     domain.Repository
	Poster   ledgerdomain.Poster
	AuditSvc auditdomain.Service `optional:"true"`
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	clock    clock.Clock
	repo     domain.Repository
	poster   ledgerdomain.Poster
	auditSvc auditdomain.Service
}

func New(p Params) domain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("party.service"),
		genID:    p.GenID,
		clock:    p.Clock,
		repo:     p.Repo,
		poster:   p.Poster,
		auditSvc: p.AuditSvc,
	}
}

// Register creates a party. A non-zero opening balance becomes the first
// ledger entry, written in the same transaction as the party row.
func (s *Service) Register(ctx context.Context, req domain.RegisterPartyRequest) (domain.Party, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return domain.Party{}, domain.ErrInvalidOrganization
	}

	name := strings.TrimSpace(req.DisplayName)
	if name == "" {
		return domain.Party{}, domain.ErrInvalidName
	}
	role, ok := domain.ParseRole(req.Role)
	if !ok {
		return domain.Party{}, domain.ErrInvalidRole
	}
	if req.OpeningBalance != nil && !money.IsCents(*req.OpeningBalance) {
		return domain.Party{}, domain.ErrInvalidOpening
	}

	now := s.clock.Now()
	party := domain.Party{
		ID:             s.genID.Generate(),
		OrgID:          orgID,
		DisplayName:    name,
		Role:           role,
		RunningBalance: decimal.Zero,
		IsActive:       true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.Insert(ctx, tx, &party); err != nil {
			return err
		}
		if req.OpeningBalance == nil || req.OpeningBalance.IsZero() {
			return nil
		}
		_, err := s.poster.PostOpeningBalance(ctx, tx, &party, *req.OpeningBalance)
		return err
	})
	if err != nil {
		return domain.Party{}, err
	}

	s.log.Info("party registered",
		zap.String("org_id", orgID.String()),
		zap.String("party_id", party.ID.String()),
		zap.String("role", string(party.Role)),
		zap.String("opening_balance", party.RunningBalance.String()),
	)
	s.audit(ctx, auditdomain.ActionPartyRegistered, party.ID, map[string]any{
		"role":            string(party.Role),
		"opening_balance": money.Format(party.RunningBalance),
	})

	return party, nil
}

func (s *Service) GetByID(ctx context.Context, id string) (domain.Party, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return domain.Party{}, domain.ErrInvalidOrganization
	}

	partyID, err := s.parseID(id)
	if err != nil {
		return domain.Party{}, err
	}

	item, err := s.repo.FindByID(ctx, s.db, orgID, partyID)
	if err != nil {
		return domain.Party{}, err
	}
	if item == nil {
		return domain.Party{}, domain.ErrUnknownParty
	}
	return *item, nil
}

// GetPartyBalance returns the current running balance.
func (s *Service) GetPartyBalance(ctx context.Context, id string) (decimal.Decimal, error) {
	party, err := s.GetByID(ctx, id)
	if err != nil {
		return decimal.Zero, err
	}
	return party.RunningBalance, nil
}

func (s *Service) List(ctx context.Context, req domain.ListPartyRequest) (domain.ListPartyResponse, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return domain.ListPartyResponse{}, domain.ErrInvalidOrganization
	}

	filter := domain.ListPartyFilter{ActiveOnly: req.ActiveOnly}
	if raw := strings.TrimSpace(req.Role); raw != "" {
		role, ok := domain.ParseRole(raw)
		if !ok {
			return domain.ListPartyResponse{}, domain.ErrInvalidRole
		}
		filter.Role = role
	}

	cursor, err := pagination.DecodeCursor(strings.TrimSpace(req.PageToken))
	if err != nil {
		return domain.ListPartyResponse{}, err
	}
	var after *snowflake.ID
	if cursor != nil {
		id, err := snowflake.ParseString(cursor.ID)
		if err != nil {
			return domain.ListPartyResponse{}, pagination.ErrInvalidPageToken
		}
		after = &id
	}

	limit := req.Limit()
	items, err := s.repo.List(ctx, s.db, orgID, filter, limit+1, after)
	if err != nil {
		return domain.ListPartyResponse{}, err
	}

	page, info, err := pagination.BuildCursorPageInfo(items, limit, func(p domain.Party) pagination.Cursor {
		return pagination.Cursor{ID: p.ID.String()}
	})
	if err != nil {
		return domain.ListPartyResponse{}, err
	}
	if page == nil {
		page = []domain.Party{}
	}
	return domain.ListPartyResponse{PageInfo: info, Parties: page}, nil
}

// Deactivate stops new bills and payments for the party. Parties are never deleted.
func (s *Service) Deactivate(ctx context.Context, id string) (domain.Party, error) {
	party, err := s.GetByID(ctx, id)
	if err != nil {
		return domain.Party{}, err
	}
	if !party.IsActive {
		return party, nil
	}

	now := s.clock.Now()
	if err := s.repo.SetActive(ctx, s.db, party.OrgID, party.ID, false, now); err != nil {
		return domain.Party{}, err
	}
	party.IsActive = false
	party.UpdatedAt = now

	s.log.Info("party deactivated",
		zap.String("org_id", party.OrgID.String()),
		zap.String("party_id", party.ID.String()),
	)
	s.audit(ctx, auditdomain.ActionPartyDeactivated, party.ID, nil)
	return party, nil
}

func (s *Service) audit(ctx context.Context, action string, partyID snowflake.ID, metadata map[string]any) {
	if s.auditSvc == nil {
		return
	}
	if err := s.auditSvc.AuditLog(ctx, action, "party", partyID.String(), metadata); err != nil {
		s.log.Warn("failed to write party audit log", zap.String("action", action), zap.Error(err))
	}
}

func (s *Service) parseID(value string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil || id == 0 {
		return 0, domain.ErrInvalidID
	}
	return id, nil
}
