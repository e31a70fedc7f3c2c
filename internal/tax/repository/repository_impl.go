package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	taxdomain "github.com/smallbiznis/billbook/internal/tax/domain"
	"gorm.io/gorm"
)

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) taxdomain.Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) taxdomain.Repository {
	return &repository{db: tx}
}

const rateColumns = `id, org_id, code, name, rate_percent, is_default, is_enabled, created_at, updated_at`

func (r *repository) GetDefaultRate(ctx context.Context, orgID snowflake.ID) (*taxdomain.TaxRate, error) {
	var rate taxdomain.TaxRate
	err := r.db.WithContext(ctx).Raw(
		`SELECT `+rateColumns+`
		 FROM tax_rates
		 WHERE org_id = ? AND is_enabled = ? AND is_default = ?
		 ORDER BY id ASC
		 LIMIT 1`,
		orgID, true, true,
	).Scan(&rate).Error
	if err != nil {
		return nil, err
	}
	if rate.ID == 0 {
		return nil, nil
	}
	return &rate, nil
}

func (r *repository) Create(ctx context.Context, rate *taxdomain.TaxRate) error {
	return r.db.WithContext(ctx).Exec(
		`INSERT INTO tax_rates (`+rateColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rate.ID,
		rate.OrgID,
		rate.Code,
		rate.Name,
		rate.RatePercent,
		rate.IsDefault,
		rate.IsEnabled,
		rate.CreatedAt,
		rate.UpdatedAt,
	).Error
}

func (r *repository) FindByID(ctx context.Context, orgID, id snowflake.ID) (*taxdomain.TaxRate, error) {
	var rate taxdomain.TaxRate
	err := r.db.WithContext(ctx).Raw(
		`SELECT `+rateColumns+` FROM tax_rates WHERE org_id = ? AND id = ?`,
		orgID,
		id,
	).Scan(&rate).Error
	if err != nil {
		return nil, err
	}
	if rate.ID == 0 {
		return nil, nil
	}
	return &rate, nil
}

func (r *repository) List(ctx context.Context, orgID snowflake.ID, filter taxdomain.ListRequest) ([]taxdomain.TaxRate, error) {
	var items []taxdomain.TaxRate
	stmt := r.db.WithContext(ctx).
		Model(&taxdomain.TaxRate{}).
		Where("org_id = ?", orgID)

	if filter.Code != "" {
		stmt = stmt.Where("code = ?", filter.Code)
	}
	if filter.IsEnabled != nil {
		stmt = stmt.Where("is_enabled = ?", *filter.IsEnabled)
	}

	if err := stmt.Order("rate_percent ASC").Order("id ASC").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repository) Update(ctx context.Context, rate *taxdomain.TaxRate) error {
	return r.db.WithContext(ctx).Exec(
		`UPDATE tax_rates
		 SET name = ?, rate_percent = ?, is_default = ?, is_enabled = ?, updated_at = ?
		 WHERE org_id = ? AND id = ?`,
		rate.Name,
		rate.RatePercent,
		rate.IsDefault,
		rate.IsEnabled,
		rate.UpdatedAt,
		rate.OrgID,
		rate.ID,
	).Error
}

func (r *repository) ClearDefault(ctx context.Context, orgID snowflake.ID) error {
	return r.db.WithContext(ctx).Exec(
		`UPDATE tax_rates SET is_default = ? WHERE org_id = ? AND is_default = ?`,
		false, orgID, true,
	).Error
}
