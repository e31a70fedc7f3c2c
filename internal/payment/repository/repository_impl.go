package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/billbook/internal/payment/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, payment *domain.Payment) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO payments (
			id, org_id, party_id, bill_id, direction, amount, mode, details,
			ledger_entry_id, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		payment.ID,
		payment.OrgID,
		payment.PartyID,
		payment.BillID,
		payment.Direction,
		payment.Amount,
		payment.Mode,
		payment.Details,
		payment.LedgerEntryID,
		payment.CreatedAt,
	).Error
}

func (r *repo) ListByBill(ctx context.Context, db *gorm.DB, orgID, billID snowflake.ID) ([]domain.Payment, error) {
	var items []domain.Payment
	err := db.WithContext(ctx).Raw(
		`SELECT id, org_id, party_id, bill_id, direction, amount, mode, details,
			ledger_entry_id, created_at
		 FROM payments
		 WHERE org_id = ? AND bill_id = ?
		 ORDER BY created_at ASC, id ASC`,
		orgID,
		billID,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}
