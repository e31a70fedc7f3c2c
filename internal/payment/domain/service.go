package domain

import (
	"context"

	"github.com/shopspring/decimal"
	ledgerdomain "github.com/smallbiznis/billbook/internal/ledger/domain"
)

type RecordPaymentRequest struct {
	PartyID   string          `json:"party_id"`
	Direction string          `json:"direction"`
	Amount    decimal.Decimal `json:"amount"`
	Details   PaymentDetails  `json:"details"`
	BillID    string          `json:"bill_id,omitempty"`
	Narration string          `json:"narration,omitempty"`
}

type RecordPaymentResult struct {
	Payment           Payment                  `json:"payment"`
	LedgerEntry       ledgerdomain.LedgerEntry `json:"ledger_entry"`
	NewRunningBalance decimal.Decimal          `json:"new_running_balance"`
	Allocation        *Allocation              `json:"allocation,omitempty"`
}

type Service interface {
	RecordPayment(ctx context.Context, req RecordPaymentRequest) (RecordPaymentResult, error)
	ListByBill(ctx context.Context, billID string) ([]Payment, error)
}
