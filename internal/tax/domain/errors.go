package domain

import "errors"

var (
	ErrInvalidOrganization = errors.New("invalid_organization")
	ErrInvalidName         = errors.New("invalid_name")
	ErrInvalidID           = errors.New("invalid_id")
	ErrNotFound            = errors.New("not_found")
	ErrInvalidTaxCode      = errors.New("invalid_tax_code")
	ErrInvalidTaxRate      = errors.New("invalid_tax_rate")
	ErrEmptyBill           = errors.New("empty_bill")
	ErrInvalidLineItem     = errors.New("invalid_line_item")
)

// IsValidation reports whether err was caused by caller input.
func IsValidation(err error) bool {
	return errors.Is(err, ErrInvalidName) ||
		errors.Is(err, ErrInvalidID) ||
		errors.Is(err, ErrInvalidTaxCode) ||
		errors.Is(err, ErrInvalidTaxRate) ||
		errors.Is(err, ErrEmptyBill) ||
		errors.Is(err, ErrInvalidLineItem)
}
