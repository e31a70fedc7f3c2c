package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	partydomain "github.com/smallbiznis/billbook/internal/party/domain"
	"gorm.io/gorm"
)

// Kind is the business event behind a ledger entry.
type Kind string

const (
	KindOpeningBalance Kind = "opening_balance"
	KindBill           Kind = "bill"
	KindPayment        Kind = "payment"
	KindReturn         Kind = "return"
	KindCancellation   Kind = "cancellation"
)

func (k Kind) Valid() bool {
	switch k {
	case KindOpeningBalance, KindBill, KindPayment, KindReturn, KindCancellation:
		return true
	default:
		return false
	}
}

// OncePerBill reports whether a bill may carry at most one entry of this kind.
func (k Kind) OncePerBill() bool {
	return k == KindBill || k == KindReturn || k == KindCancellation
}

// LedgerEntry is an append-only line of a party statement.
// ClosingAmount(n) == ClosingAmount(n-1) + Amount(n) in Sequence order.
type LedgerEntry struct {
	ID            snowflake.ID          `gorm:"primaryKey" json:"id"`
	OrgID         snowflake.ID          `gorm:"not null;index" json:"organization_id"`
	PartyID       snowflake.ID          `gorm:"column:party_id;not null;uniqueIndex:ux_party_ledger_entries_party_seq,priority:1" json:"party_id"`
	BillID        *snowflake.ID         `gorm:"column:bill_id;index" json:"bill_id,omitempty"`
	Direction     partydomain.Direction `gorm:"type:text;not null" json:"direction"`
	Kind          Kind                  `gorm:"type:text;not null" json:"kind"`
	Narration     string                `gorm:"type:text;not null" json:"narration"`
	Amount        decimal.Decimal       `gorm:"type:numeric(20,2);not null" json:"amount"`
	ClosingAmount decimal.Decimal       `gorm:"column:closing_amount;type:numeric(20,2);not null" json:"closing_amount"`
	Sequence      int64                 `gorm:"not null;uniqueIndex:ux_party_ledger_entries_party_seq,priority:2" json:"sequence"`
	CreatedAt     time.Time             `gorm:"not null" json:"created_at"`
}

func (LedgerEntry) TableName() string { return "party_ledger_entries" }

// PostRequest asks the poster to append one entry. Amount is a magnitude except
// for KindOpeningBalance (signed as given) and KindCancellation (the signed
// delta of the entry being reversed).
type PostRequest struct {
	PartyID   snowflake.ID
	Direction partydomain.Direction
	Kind      Kind
	Narration string
	Amount    decimal.Decimal
	BillID    *snowflake.ID

	// Attach runs inside the posting transaction after the entry is written.
	// An error rolls the entry back. It may run more than once on conflict retry.
	Attach func(ctx context.Context, tx *gorm.DB, entry *LedgerEntry) error
}

type ReplayResult struct {
	PartyID         snowflake.ID    `json:"party_id"`
	Entries         int             `json:"entries"`
	ComputedBalance decimal.Decimal `json:"computed_balance"`
	StoredBalance   decimal.Decimal `json:"stored_balance"`
	BrokenSequence  int64           `json:"broken_sequence,omitempty"`
}

// Consistent reports whether the replay matched the stored balance with an unbroken chain.
func (r ReplayResult) Consistent() bool {
	return r.BrokenSequence == 0 && r.ComputedBalance.Equal(r.StoredBalance)
}
