package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	paymentdomain "github.com/smallbiznis/billbook/internal/payment/domain"
	"gorm.io/gorm"
)

type ListBillFilter struct {
	PartyID *snowflake.ID
	Status  Status
}

type Repository interface {
	// Insert writes the bill header and its lines.
	Insert(ctx context.Context, db *gorm.DB, bill *Bill) error
	// Delete removes a bill and its lines. Used only to compensate a failed posting.
	Delete(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) error
	FindByID(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*Bill, error)
	ListLines(ctx context.Context, db *gorm.DB, orgID, billID snowflake.ID) ([]BillLine, error)
	List(ctx context.Context, db *gorm.DB, orgID snowflake.ID, filter ListBillFilter, limit int, after *snowflake.ID) ([]Bill, error)
	// MarkCancelled moves a draft bill to cancelled and returns the rows changed.
	MarkCancelled(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID, at time.Time) (int64, error)
	// ApplyPayment sets the paid amount if it still equals expectedPaid.
	ApplyPayment(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID, expectedPaid, paid, remaining decimal.Decimal, status paymentdomain.Status, at time.Time) (int64, error)
	// ReturnedLines sums what non-cancelled returns of the bill took from each
	// original line, keyed by original line id.
	ReturnedLines(ctx context.Context, db *gorm.DB, orgID, originalBillID snowflake.ID) (map[snowflake.ID]ReturnedLine, error)
	CountActiveReturns(ctx context.Context, db *gorm.DB, orgID, originalBillID snowflake.ID) (int64, error)
}
