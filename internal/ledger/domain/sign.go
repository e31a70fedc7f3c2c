package domain

import (
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/billbook/pkg/money"
)

// SignedAmount turns the amount of a post request into the delta applied to the
// party balance. It is the only place where ledger signs are decided. Amounts
// finer than a paisa are refused.
//
//	opening_balance  +amount (amount may be negative for an advance)
//	bill             +amount
//	payment          -amount
//	return           -amount
//	cancellation     -amount, amount being the reversed entry's delta
func SignedAmount(kind Kind, amount decimal.Decimal) (decimal.Decimal, error) {
	if !money.IsCents(amount) {
		return decimal.Zero, ErrSubCentAmount
	}
	switch kind {
	case KindOpeningBalance:
		return amount, nil
	case KindCancellation:
		return amount.Neg(), nil
	case KindBill:
		if amount.IsNegative() {
			return decimal.Zero, ErrNegativeAmount
		}
		return amount, nil
	case KindPayment, KindReturn:
		if amount.IsNegative() {
			return decimal.Zero, ErrNegativeAmount
		}
		return amount.Neg(), nil
	default:
		return decimal.Zero, ErrInvalidKind
	}
}
