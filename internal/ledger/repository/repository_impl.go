package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/billbook/internal/ledger/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

const entryColumns = `id, org_id, party_id, bill_id, direction, kind, narration, amount, closing_amount, sequence, created_at`

func (r *repo) Insert(ctx context.Context, db *gorm.DB, entry *domain.LedgerEntry) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO party_ledger_entries (`+entryColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID,
		entry.OrgID,
		entry.PartyID,
		entry.BillID,
		entry.Direction,
		entry.Kind,
		entry.Narration,
		entry.Amount,
		entry.ClosingAmount,
		entry.Sequence,
		entry.CreatedAt,
	).Error
}

func (r *repo) FindByBillAndKind(ctx context.Context, db *gorm.DB, orgID, billID snowflake.ID, kind domain.Kind) (*domain.LedgerEntry, error) {
	var entry domain.LedgerEntry
	err := db.WithContext(ctx).Raw(
		`SELECT `+entryColumns+`
		 FROM party_ledger_entries
		 WHERE org_id = ? AND bill_id = ? AND kind = ?
		 ORDER BY sequence ASC
		 LIMIT 1`,
		orgID,
		billID,
		kind,
	).Scan(&entry).Error
	if err != nil {
		return nil, err
	}
	if entry.ID == 0 {
		return nil, nil
	}
	return &entry, nil
}

func (r *repo) ListByParty(ctx context.Context, db *gorm.DB, orgID, partyID snowflake.ID, afterSequence int64, limit int) ([]domain.LedgerEntry, error) {
	var entries []domain.LedgerEntry
	stmt := db.WithContext(ctx).
		Model(&domain.LedgerEntry{}).
		Where("org_id = ? AND party_id = ? AND sequence > ?", orgID, partyID, afterSequence).
		Order("sequence asc")
	if limit > 0 {
		stmt = stmt.Limit(limit)
	}
	if err := stmt.Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}
