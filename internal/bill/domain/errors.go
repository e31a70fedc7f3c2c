package domain

import (
	"errors"
	"fmt"

	"github.com/bwmarrin/snowflake"
	ledgerdomain "github.com/smallbiznis/billbook/internal/ledger/domain"
	partydomain "github.com/smallbiznis/billbook/internal/party/domain"
	paymentdomain "github.com/smallbiznis/billbook/internal/payment/domain"
	taxdomain "github.com/smallbiznis/billbook/internal/tax/domain"
)

var (
	ErrInvalidOrganization   = errors.New("invalid_organization")
	ErrInvalidID             = errors.New("invalid_id")
	ErrInvalidDirection      = errors.New("invalid_direction")
	ErrInvalidJurisdiction   = errors.New("invalid_jurisdiction")
	ErrInvalidTendered       = errors.New("invalid_amount_tendered")
	ErrInvalidReturnLine     = errors.New("invalid_return_line")
	ErrInvalidStatus         = errors.New("invalid_status")
	ErrDuplicateBillNumber   = errors.New("duplicate_bill_number")
	ErrBillNotFound          = errors.New("bill_not_found")
	ErrBillCancelled         = errors.New("bill_cancelled")
	ErrBillHasReturns        = errors.New("bill_has_returns")
	ErrReturnOfReturn        = errors.New("return_of_return")
	ErrReturnExceedsOriginal = errors.New("return_exceeds_original")

	// ErrLedgerPostFailure means the bill was persisted, its ledger posting
	// failed, and the bill was removed again.
	ErrLedgerPostFailure = errors.New("ledger_post_failure")
	// ErrReconciliationRequired means the compensating delete also failed and
	// a persisted bill has no ledger entry.
	ErrReconciliationRequired = errors.New("reconciliation_required")
	// ErrPaymentNotRecorded means the bill and its ledger entry stand but the
	// payment tendered with it was not recorded.
	ErrPaymentNotRecorded = errors.New("payment_not_recorded")
)

// ReconciliationError carries both failures of a bill that could not be
// compensated.
type ReconciliationError struct {
	BillID          snowflake.ID
	PostErr         error
	CompensationErr error
}

func (e *ReconciliationError) Error() string {
	return fmt.Sprintf("reconciliation_required: bill %s: post: %v; compensation: %v", e.BillID, e.PostErr, e.CompensationErr)
}

func (e *ReconciliationError) Unwrap() []error {
	return []error{ErrReconciliationRequired, e.PostErr, e.CompensationErr}
}

func IsValidation(err error) bool {
	return errors.Is(err, ErrInvalidID) ||
		errors.Is(err, ErrInvalidDirection) ||
		errors.Is(err, ErrInvalidJurisdiction) ||
		errors.Is(err, ErrInvalidTendered) ||
		errors.Is(err, ErrInvalidReturnLine) ||
		errors.Is(err, ErrInvalidStatus) ||
		errors.Is(err, ErrReturnOfReturn) ||
		errors.Is(err, ErrReturnExceedsOriginal) ||
		taxdomain.IsValidation(err) ||
		paymentdomain.IsValidation(err) ||
		partydomain.IsValidation(err) ||
		ledgerdomain.IsValidation(err)
}
