package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/billbook/internal/bill/domain"
	paymentdomain "github.com/smallbiznis/billbook/internal/payment/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

const billColumns = `id, org_id, bill_number, direction, party_id, jurisdiction, subtotal,
	cgst_total, sgst_total, igst_total, gst_total, grand_total, amount_paid, remaining,
	payment_status, status, is_return, original_bill_id, created_at, updated_at, cancelled_at`

const lineColumns = `id, org_id, bill_id, position, product_ref, description, quantity, unit_price,
	gst_rate, taxable_amount, cgst, sgst, igst, line_total, original_line_id, created_at`

func (r *repo) Insert(ctx context.Context, db *gorm.DB, bill *domain.Bill) error {
	err := db.WithContext(ctx).Exec(
		`INSERT INTO bills (`+billColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		bill.ID,
		bill.OrgID,
		bill.BillNumber,
		bill.Direction,
		bill.PartyID,
		bill.Jurisdiction,
		bill.Subtotal,
		bill.CGSTTotal,
		bill.SGSTTotal,
		bill.IGSTTotal,
		bill.GSTTotal,
		bill.GrandTotal,
		bill.AmountPaid,
		bill.Remaining,
		bill.PaymentStatus,
		bill.Status,
		bill.IsReturn,
		bill.OriginalBillID,
		bill.CreatedAt,
		bill.UpdatedAt,
		bill.CancelledAt,
	).Error
	if err != nil {
		return err
	}

	for i := range bill.Lines {
		line := &bill.Lines[i]
		err := db.WithContext(ctx).Exec(
			`INSERT INTO bill_lines (`+lineColumns+`)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			line.ID,
			line.OrgID,
			line.BillID,
			line.Position,
			line.ProductRef,
			line.Description,
			line.Quantity,
			line.UnitPrice,
			line.GSTRate,
			line.TaxableAmount,
			line.CGST,
			line.SGST,
			line.IGST,
			line.LineTotal,
			line.OriginalLineID,
			line.CreatedAt,
		).Error
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *repo) Delete(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) error {
	if err := db.WithContext(ctx).Exec(
		`DELETE FROM bill_lines WHERE org_id = ? AND bill_id = ?`,
		orgID,
		id,
	).Error; err != nil {
		return err
	}
	return db.WithContext(ctx).Exec(
		`DELETE FROM bills WHERE org_id = ? AND id = ?`,
		orgID,
		id,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*domain.Bill, error) {
	var bill domain.Bill
	err := db.WithContext(ctx).Raw(
		`SELECT `+billColumns+` FROM bills WHERE org_id = ? AND id = ?`,
		orgID,
		id,
	).Scan(&bill).Error
	if err != nil {
		return nil, err
	}
	if bill.ID == 0 {
		return nil, nil
	}
	return &bill, nil
}

func (r *repo) ListLines(ctx context.Context, db *gorm.DB, orgID, billID snowflake.ID) ([]domain.BillLine, error) {
	var lines []domain.BillLine
	err := db.WithContext(ctx).Raw(
		`SELECT `+lineColumns+` FROM bill_lines
		 WHERE org_id = ? AND bill_id = ?
		 ORDER BY position ASC`,
		orgID,
		billID,
	).Scan(&lines).Error
	if err != nil {
		return nil, err
	}
	return lines, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, orgID snowflake.ID, filter domain.ListBillFilter, limit int, after *snowflake.ID) ([]domain.Bill, error) {
	var bills []domain.Bill
	stmt := db.WithContext(ctx).
		Model(&domain.Bill{}).
		Where("org_id = ?", orgID)
	if filter.PartyID != nil {
		stmt = stmt.Where("party_id = ?", *filter.PartyID)
	}
	if filter.Status != "" {
		stmt = stmt.Where("status = ?", filter.Status)
	}
	if after != nil {
		stmt = stmt.Where("id > ?", *after)
	}
	err := stmt.
		Order("id asc").
		Limit(limit).
		Find(&bills).Error
	if err != nil {
		return nil, err
	}
	return bills, nil
}

func (r *repo) MarkCancelled(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID, at time.Time) (int64, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE bills SET status = ?, cancelled_at = ?, updated_at = ?
		 WHERE org_id = ? AND id = ? AND status = ?`,
		domain.StatusCancelled,
		at,
		at,
		orgID,
		id,
		domain.StatusDraft,
	)
	return result.RowsAffected, result.Error
}

func (r *repo) ApplyPayment(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID, expectedPaid, paid, remaining decimal.Decimal, status paymentdomain.Status, at time.Time) (int64, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE bills SET amount_paid = ?, remaining = ?, payment_status = ?, updated_at = ?
		 WHERE org_id = ? AND id = ? AND amount_paid = ?`,
		paid,
		remaining,
		status,
		at,
		orgID,
		id,
		expectedPaid,
	)
	return result.RowsAffected, result.Error
}

func (r *repo) ReturnedLines(ctx context.Context, db *gorm.DB, orgID, originalBillID snowflake.ID) (map[snowflake.ID]domain.ReturnedLine, error) {
	var rows []domain.BillLine
	err := db.WithContext(ctx).Raw(
		`SELECT l.* FROM bill_lines l
		 JOIN bills b ON b.id = l.bill_id
		 WHERE b.org_id = ? AND b.original_bill_id = ? AND b.is_return = ? AND b.status <> ?
		   AND l.original_line_id IS NOT NULL`,
		orgID,
		originalBillID,
		true,
		domain.StatusCancelled,
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	// summed here rather than with SUM(): sqlite stores numeric columns as REAL
	out := make(map[snowflake.ID]domain.ReturnedLine, len(rows))
	for _, row := range rows {
		out[*row.OriginalLineID] = out[*row.OriginalLineID].Add(row)
	}
	return out, nil
}

func (r *repo) CountActiveReturns(ctx context.Context, db *gorm.DB, orgID, originalBillID snowflake.ID) (int64, error) {
	var count int64
	err := db.WithContext(ctx).Raw(
		`SELECT COUNT(1) FROM bills
		 WHERE org_id = ? AND original_bill_id = ? AND is_return = ? AND status <> ?`,
		orgID,
		originalBillID,
		true,
		domain.StatusCancelled,
	).Scan(&count).Error
	return count, err
}
