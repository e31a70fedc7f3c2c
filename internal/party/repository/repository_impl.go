package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/billbook/internal/party/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

const partyColumns = `id, org_id, display_name, role, running_balance, balance_version, is_active, created_at, updated_at`

func (r *repo) Insert(ctx context.Context, db *gorm.DB, party *domain.Party) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO parties (`+partyColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		party.ID,
		party.OrgID,
		party.DisplayName,
		party.Role,
		party.RunningBalance,
		party.BalanceVersion,
		party.IsActive,
		party.CreatedAt,
		party.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*domain.Party, error) {
	var party domain.Party
	err := db.WithContext(ctx).Raw(
		`SELECT `+partyColumns+` FROM parties WHERE org_id = ? AND id = ?`,
		orgID,
		id,
	).Scan(&party).Error
	if err != nil {
		return nil, err
	}
	if party.ID == 0 {
		return nil, nil
	}
	return &party, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, orgID snowflake.ID, filter domain.ListPartyFilter, limit int, after *snowflake.ID) ([]domain.Party, error) {
	var parties []domain.Party
	stmt := db.WithContext(ctx).
		Model(&domain.Party{}).
		Where("org_id = ?", orgID)
	if filter.Role != "" {
		stmt = stmt.Where("role = ?", filter.Role)
	}
	if filter.ActiveOnly {
		stmt = stmt.Where("is_active = ?", true)
	}
	if after != nil {
		stmt = stmt.Where("id > ?", *after)
	}
	err := stmt.
		Order("id asc").
		Limit(limit).
		Find(&parties).Error
	if err != nil {
		return nil, err
	}
	return parties, nil
}

func (r *repo) CompareAndSetBalance(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID, expectedVersion int64, balance decimal.Decimal, updatedAt time.Time) (int64, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE parties
		 SET running_balance = ?, balance_version = balance_version + 1, updated_at = ?
		 WHERE org_id = ? AND id = ? AND balance_version = ?`,
		balance,
		updatedAt,
		orgID,
		id,
		expectedVersion,
	)
	return result.RowsAffected, result.Error
}

func (r *repo) SetActive(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID, active bool, updatedAt time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE parties SET is_active = ?, updated_at = ? WHERE org_id = ? AND id = ?`,
		active,
		updatedAt,
		orgID,
		id,
	).Error
}
