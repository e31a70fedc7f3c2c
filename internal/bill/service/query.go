package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/billbook/internal/bill/domain"
	"github.com/smallbiznis/billbook/internal/orgcontext"
	partydomain "github.com/smallbiznis/billbook/internal/party/domain"
	"github.com/smallbiznis/billbook/pkg/db/pagination"
)

func (s *Service) GetBill(ctx context.Context, billID string) (domain.Bill, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return domain.Bill{}, domain.ErrInvalidOrganization
	}
	id, err := parseBillID(billID)
	if err != nil {
		return domain.Bill{}, err
	}

	bill, err := s.repo.FindByID(ctx, s.db, orgID, id)
	if err != nil {
		return domain.Bill{}, err
	}
	if bill == nil {
		return domain.Bill{}, domain.ErrBillNotFound
	}
	lines, err := s.repo.ListLines(ctx, s.db, orgID, id)
	if err != nil {
		return domain.Bill{}, err
	}
	bill.Lines = lines
	return *bill, nil
}

func (s *Service) ListBills(ctx context.Context, req domain.ListBillRequest) (domain.ListBillResponse, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return domain.ListBillResponse{}, domain.ErrInvalidOrganization
	}

	var filter domain.ListBillFilter
	if raw := strings.TrimSpace(req.PartyID); raw != "" {
		partyID, err := snowflake.ParseString(raw)
		if err != nil || partyID == 0 {
			return domain.ListBillResponse{}, partydomain.ErrInvalidID
		}
		filter.PartyID = &partyID
	}
	switch status := domain.Status(strings.ToLower(strings.TrimSpace(req.Status))); status {
	case "":
	case domain.StatusDraft, domain.StatusCancelled:
		filter.Status = status
	default:
		return domain.ListBillResponse{}, domain.ErrInvalidStatus
	}

	cursor, err := pagination.DecodeCursor(strings.TrimSpace(req.PageToken))
	if err != nil {
		return domain.ListBillResponse{}, err
	}
	var after *snowflake.ID
	if cursor != nil {
		id, err := snowflake.ParseString(cursor.ID)
		if err != nil {
			return domain.ListBillResponse{}, pagination.ErrInvalidPageToken
		}
		after = &id
	}

	limit := req.Limit()
	items, err := s.repo.List(ctx, s.db, orgID, filter, limit+1, after)
	if err != nil {
		return domain.ListBillResponse{}, err
	}

	page, info, err := pagination.BuildCursorPageInfo(items, limit, func(b domain.Bill) pagination.Cursor {
		return pagination.Cursor{ID: b.ID.String()}
	})
	if err != nil {
		return domain.ListBillResponse{}, err
	}
	if page == nil {
		page = []domain.Bill{}
	}
	return domain.ListBillResponse{PageInfo: info, Bills: page}, nil
}
