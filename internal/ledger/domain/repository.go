package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, entry *LedgerEntry) error
	FindByBillAndKind(ctx context.Context, db *gorm.DB, orgID, billID snowflake.ID, kind Kind) (*LedgerEntry, error)
	ListByParty(ctx context.Context, db *gorm.DB, orgID, partyID snowflake.ID, afterSequence int64, limit int) ([]LedgerEntry, error)
}
