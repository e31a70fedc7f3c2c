package service

import (
	"github.com/shopspring/decimal"
	taxdomain "github.com/smallbiznis/billbook/internal/tax/domain"
)

// Aggregate sums computed lines into bill totals.
func Aggregate(lines []taxdomain.ComputedLine) (taxdomain.BillTotals, error) {
	if len(lines) == 0 {
		return taxdomain.BillTotals{}, taxdomain.ErrEmptyBill
	}

	totals := taxdomain.BillTotals{
		Subtotal:  decimal.Zero,
		CGSTTotal: decimal.Zero,
		SGSTTotal: decimal.Zero,
		IGSTTotal: decimal.Zero,
	}
	for _, line := range lines {
		if line.Quantity <= 0 || line.UnitPrice.IsNegative() {
			return taxdomain.BillTotals{}, taxdomain.ErrInvalidLineItem
		}
		totals.Subtotal = totals.Subtotal.Add(line.TaxableAmount)
		totals.CGSTTotal = totals.CGSTTotal.Add(line.CGST)
		totals.SGSTTotal = totals.SGSTTotal.Add(line.SGST)
		totals.IGSTTotal = totals.IGSTTotal.Add(line.IGST)
	}
	totals.GSTTotal = totals.CGSTTotal.Add(totals.SGSTTotal).Add(totals.IGSTTotal)
	totals.GrandTotal = totals.Subtotal.Add(totals.GSTTotal)

	return totals, nil
}
