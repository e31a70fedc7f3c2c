package domain

import "errors"

var (
	ErrInvalidOrganization = errors.New("invalid_organization")
	ErrInvalidName         = errors.New("invalid_name")
	ErrInvalidRole         = errors.New("invalid_role")
	ErrInvalidID           = errors.New("invalid_id")
	ErrUnknownParty        = errors.New("unknown_party")
	ErrPartyInactive       = errors.New("party_inactive")
	ErrDirectionMismatch   = errors.New("direction_mismatch")
	ErrInvalidOpening      = errors.New("invalid_opening_balance")
)

func IsValidation(err error) bool {
	return errors.Is(err, ErrInvalidName) ||
		errors.Is(err, ErrInvalidRole) ||
		errors.Is(err, ErrInvalidID) ||
		errors.Is(err, ErrInvalidOpening) ||
		errors.Is(err, ErrDirectionMismatch)
}
