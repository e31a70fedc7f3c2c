package domain

import (
	"context"

	"github.com/shopspring/decimal"
	partydomain "github.com/smallbiznis/billbook/internal/party/domain"
	"github.com/smallbiznis/billbook/pkg/db/pagination"
	"gorm.io/gorm"
)

// Poster is the single write path for party balances.
type Poster interface {
	Post(ctx context.Context, req PostRequest) (*LedgerEntry, error)
	// PostOpeningBalance appends the first entry of a party created inside tx.
	PostOpeningBalance(ctx context.Context, tx *gorm.DB, party *partydomain.Party, amount decimal.Decimal) (*LedgerEntry, error)
}

type ListEntriesRequest struct {
	PartyID string
	pagination.Pagination
}

type ListEntriesResponse struct {
	pagination.PageInfo
	Entries []LedgerEntry `json:"entries"`
}

type Service interface {
	Poster
	FindByBillAndKind(ctx context.Context, billID string, kind Kind) (*LedgerEntry, error)
	ListEntries(ctx context.Context, req ListEntriesRequest) (ListEntriesResponse, error)
	Replay(ctx context.Context, partyID string) (ReplayResult, error)
}
