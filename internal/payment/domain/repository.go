package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, payment *Payment) error
	ListByBill(ctx context.Context, db *gorm.DB, orgID, billID snowflake.ID) ([]Payment, error)
}
