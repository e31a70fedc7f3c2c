package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	ledgerdomain "github.com/smallbiznis/billbook/internal/ledger/domain"
	"github.com/smallbiznis/billbook/internal/orgcontext"
	partydomain "github.com/smallbiznis/billbook/internal/party/domain"
	"github.com/smallbiznis/billbook/pkg/db/pagination"
	"go.uber.org/zap"
)

const replayBatchSize = 500

// ListEntries returns the party statement in posting order.
func (s *Service) ListEntries(ctx context.Context, req ledgerdomain.ListEntriesRequest) (ledgerdomain.ListEntriesResponse, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return ledgerdomain.ListEntriesResponse{}, ledgerdomain.ErrInvalidOrganization
	}
	party, err := s.loadParty(ctx, orgID, req.PartyID)
	if err != nil {
		return ledgerdomain.ListEntriesResponse{}, err
	}

	cursor, err := pagination.DecodeCursor(strings.TrimSpace(req.PageToken))
	if err != nil {
		return ledgerdomain.ListEntriesResponse{}, err
	}
	var after int64
	if cursor != nil {
		after = cursor.Sequence
	}

	limit := req.Limit()
	items, err := s.repo.ListByParty(ctx, s.db, orgID, party.ID, after, limit+1)
	if err != nil {
		return ledgerdomain.ListEntriesResponse{}, err
	}

	page, info, err := pagination.BuildCursorPageInfo(items, limit, func(e ledgerdomain.LedgerEntry) pagination.Cursor {
		return pagination.Cursor{Sequence: e.Sequence}
	})
	if err != nil {
		return ledgerdomain.ListEntriesResponse{}, err
	}
	if page == nil {
		page = []ledgerdomain.LedgerEntry{}
	}
	return ledgerdomain.ListEntriesResponse{PageInfo: info, Entries: page}, nil
}

// Replay recomputes the balance from zero over every entry and compares it with
// the stored running balance. The party lock is held so no posting interleaves.
func (s *Service) Replay(ctx context.Context, partyID string) (ledgerdomain.ReplayResult, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return ledgerdomain.ReplayResult{}, ledgerdomain.ErrInvalidOrganization
	}
	id, err := parsePartyID(partyID)
	if err != nil {
		return ledgerdomain.ReplayResult{}, err
	}

	release, err := s.locker.Lock(ctx, lockKey(orgID, id))
	if err != nil {
		return ledgerdomain.ReplayResult{}, err
	}
	defer release()

	party, err := s.loadParty(ctx, orgID, partyID)
	if err != nil {
		return ledgerdomain.ReplayResult{}, err
	}

	result := ledgerdomain.ReplayResult{
		PartyID:         party.ID,
		ComputedBalance: decimal.Zero,
		StoredBalance:   party.RunningBalance,
	}

	var after int64
	for {
		batch, err := s.repo.ListByParty(ctx, s.db, orgID, party.ID, after, replayBatchSize)
		if err != nil {
			return ledgerdomain.ReplayResult{}, err
		}
		for _, entry := range batch {
			result.Entries++
			result.ComputedBalance = result.ComputedBalance.Add(entry.Amount)
			if result.BrokenSequence == 0 &&
				(entry.Sequence != int64(result.Entries) || !entry.ClosingAmount.Equal(result.ComputedBalance)) {
				result.BrokenSequence = entry.Sequence
			}
			after = entry.Sequence
		}
		if len(batch) < replayBatchSize {
			break
		}
	}
	if result.BrokenSequence == 0 && int64(result.Entries) != party.BalanceVersion {
		result.BrokenSequence = int64(result.Entries) + 1
	}

	if !result.Consistent() {
		s.log.Error("ledger replay mismatch",
			zap.String("org_id", orgID.String()),
			zap.String("party_id", party.ID.String()),
			zap.String("computed_balance", result.ComputedBalance.String()),
			zap.String("stored_balance", result.StoredBalance.String()),
			zap.Int64("broken_sequence", result.BrokenSequence),
		)
		return result, ledgerdomain.ErrLedgerMismatch
	}
	return result, nil
}

func (s *Service) loadParty(ctx context.Context, orgID snowflake.ID, partyID string) (*partydomain.Party, error) {
	id, err := parsePartyID(partyID)
	if err != nil {
		return nil, err
	}
	party, err := s.partyRepo.FindByID(ctx, s.db, orgID, id)
	if err != nil {
		return nil, err
	}
	if party == nil {
		return nil, ledgerdomain.ErrUnknownParty
	}
	return party, nil
}

func parsePartyID(value string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil || id == 0 {
		return 0, ledgerdomain.ErrInvalidParty
	}
	return id, nil
}
