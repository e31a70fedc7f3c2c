package service

import (
	"context"

	"github.com/shopspring/decimal"
	ledgerdomain "github.com/smallbiznis/billbook/internal/ledger/domain"
	partydomain "github.com/smallbiznis/billbook/internal/party/domain"
	"github.com/stretchr/testify/mock"
	"gorm.io/gorm"
)

// mockLedger matches Post calls on the request kind.
type mockLedger struct {
	mock.Mock
}

func (m *mockLedger) Post(ctx context.Context, req ledgerdomain.PostRequest) (*ledgerdomain.LedgerEntry, error) {
	args := m.Called(req.Kind)
	entry, _ := args.Get(0).(*ledgerdomain.LedgerEntry)
	return entry, args.Error(1)
}

func (m *mockLedger) PostOpeningBalance(ctx context.Context, tx *gorm.DB, party *partydomain.Party, amount decimal.Decimal) (*ledgerdomain.LedgerEntry, error) {
	args := m.Called(party.ID, amount)
	entry, _ := args.Get(0).(*ledgerdomain.LedgerEntry)
	return entry, args.Error(1)
}

func (m *mockLedger) FindByBillAndKind(ctx context.Context, billID string, kind ledgerdomain.Kind) (*ledgerdomain.LedgerEntry, error) {
	args := m.Called(billID, kind)
	entry, _ := args.Get(0).(*ledgerdomain.LedgerEntry)
	return entry, args.Error(1)
}

func (m *mockLedger) ListEntries(ctx context.Context, req ledgerdomain.ListEntriesRequest) (ledgerdomain.ListEntriesResponse, error) {
	args := m.Called(req.PartyID)
	resp, _ := args.Get(0).(ledgerdomain.ListEntriesResponse)
	return resp, args.Error(1)
}

func (m *mockLedger) Replay(ctx context.Context, partyID string) (ledgerdomain.ReplayResult, error) {
	args := m.Called(partyID)
	result, _ := args.Get(0).(ledgerdomain.ReplayResult)
	return result, args.Error(1)
}
