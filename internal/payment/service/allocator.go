package service

import (
	"github.com/shopspring/decimal"
	paymentdomain "github.com/smallbiznis/billbook/internal/payment/domain"
	"github.com/smallbiznis/billbook/pkg/money"
)

// Allocate applies tendered on top of previouslyPaid against grandTotal.
// Remaining never goes below zero; any excess is reported as Overpaid.
func Allocate(grandTotal, tendered, previouslyPaid decimal.Decimal) (paymentdomain.Allocation, error) {
	if grandTotal.IsNegative() || tendered.IsNegative() || previouslyPaid.IsNegative() {
		return paymentdomain.Allocation{}, paymentdomain.ErrInvalidAmount
	}

	totalPaid := money.Round2(previouslyPaid.Add(tendered))
	remaining := money.Round2(grandTotal).Sub(totalPaid)

	out := paymentdomain.Allocation{
		TotalPaid:      totalPaid,
		Remaining:      money.MaxZero(remaining),
		Classification: paymentdomain.StatusAdvance,
		Overpaid:       decimal.Zero,
	}
	if !remaining.IsPositive() {
		out.Classification = paymentdomain.StatusFull
		out.Overpaid = remaining.Neg()
	}
	return out, nil
}
