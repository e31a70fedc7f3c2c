package domain

import "errors"

var (
	ErrInvalidOrganization = errors.New("invalid_organization")
	ErrInvalidAmount       = errors.New("invalid_amount")
	ErrInvalidMode         = errors.New("invalid_mode")
	ErrInvalidDetails      = errors.New("invalid_details")
	ErrInvalidBill         = errors.New("invalid_bill")
	ErrBillNotPayable      = errors.New("bill_not_payable")
)

func IsValidation(err error) bool {
	return errors.Is(err, ErrInvalidAmount) ||
		errors.Is(err, ErrInvalidMode) ||
		errors.Is(err, ErrInvalidDetails) ||
		errors.Is(err, ErrInvalidBill)
}
