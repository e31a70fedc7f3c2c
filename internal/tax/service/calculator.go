package service

import (
	"github.com/shopspring/decimal"
	taxdomain "github.com/smallbiznis/billbook/internal/tax/domain"
	"github.com/smallbiznis/billbook/pkg/money"
)

// ResolveRate picks the explicit line rate, then the bill-level fallback, then zero.
func ResolveRate(explicit, fallback *decimal.Decimal) decimal.Decimal {
	if explicit != nil {
		return *explicit
	}
	if fallback != nil {
		return *fallback
	}
	return decimal.Zero
}

// ComputeLine splits the GST of a single line. Every monetary field is rounded
// half-up to two places exactly once.
func ComputeLine(in taxdomain.LineInput) (taxdomain.ComputedLine, error) {
	if in.Quantity <= 0 || in.UnitPrice.IsNegative() {
		return taxdomain.ComputedLine{}, taxdomain.ErrInvalidLineItem
	}

	rate := ResolveRate(in.ExplicitRate, in.FallbackRate)
	if rate.IsNegative() {
		return taxdomain.ComputedLine{}, taxdomain.ErrInvalidTaxRate
	}

	taxable := money.Round2(in.UnitPrice.Mul(decimal.NewFromInt(in.Quantity)))
	gst := money.PercentOf(taxable, rate)

	line := taxdomain.ComputedLine{
		Quantity:      in.Quantity,
		UnitPrice:     in.UnitPrice,
		GSTRate:       rate,
		TaxableAmount: taxable,
		CGST:          decimal.Zero,
		SGST:          decimal.Zero,
		IGST:          decimal.Zero,
		LineTotal:     taxable.Add(gst),
	}

	if in.Intrastate {
		line.CGST = money.Halve(gst)
		line.SGST = gst.Sub(line.CGST)
	} else {
		line.IGST = gst
	}

	return line, nil
}

// ComputeLines computes every input in order.
func ComputeLines(inputs []taxdomain.LineInput) ([]taxdomain.ComputedLine, error) {
	if len(inputs) == 0 {
		return nil, taxdomain.ErrEmptyBill
	}
	lines := make([]taxdomain.ComputedLine, 0, len(inputs))
	for _, in := range inputs {
		line, err := ComputeLine(in)
		if err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	return lines, nil
}
