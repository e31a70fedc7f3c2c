package domain

import (
	"errors"

	partydomain "github.com/smallbiznis/billbook/internal/party/domain"
)

var (
	ErrInvalidOrganization = errors.New("invalid_organization")
	ErrInvalidParty        = errors.New("invalid_party")
	ErrInvalidKind         = errors.New("invalid_kind")
	ErrInvalidDirection    = errors.New("invalid_direction")
	ErrNegativeAmount      = errors.New("negative_amount")
	ErrSubCentAmount       = errors.New("invalid_amount_precision")
	ErrDuplicatePosting    = errors.New("duplicate_posting")
	ErrConcurrencyConflict = errors.New("concurrency_conflict")
	ErrLedgerMismatch      = errors.New("ledger_mismatch")

	ErrUnknownParty      = partydomain.ErrUnknownParty
	ErrPartyInactive     = partydomain.ErrPartyInactive
	ErrDirectionMismatch = partydomain.ErrDirectionMismatch
)

func IsValidation(err error) bool {
	return errors.Is(err, ErrInvalidParty) ||
		errors.Is(err, ErrInvalidKind) ||
		errors.Is(err, ErrInvalidDirection) ||
		errors.Is(err, ErrNegativeAmount) ||
		errors.Is(err, ErrSubCentAmount) ||
		errors.Is(err, ErrDirectionMismatch)
}
