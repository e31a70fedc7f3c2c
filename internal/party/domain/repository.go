package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, party *Party) error
	FindByID(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*Party, error)
	List(ctx context.Context, db *gorm.DB, orgID snowflake.ID, filter ListPartyFilter, limit int, after *snowflake.ID) ([]Party, error)
	// CompareAndSetBalance writes balance and version+1 only if the stored
	// version still equals expectedVersion. It returns the rows affected.
	CompareAndSetBalance(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID, expectedVersion int64, balance decimal.Decimal, updatedAt time.Time) (int64, error)
	SetActive(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID, active bool, updatedAt time.Time) error
}

type ListPartyFilter struct {
	Role       Role
	ActiveOnly bool
}
