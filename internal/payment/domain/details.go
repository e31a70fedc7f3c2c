package domain

import (
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
)

type Mode string

const (
	ModeCash    Mode = "cash"
	ModeUPI     Mode = "upi"
	ModeCheque  Mode = "cheque"
	ModeCard    Mode = "card"
	ModeFinance Mode = "finance"
)

func ParseMode(raw string) (Mode, bool) {
	mode := Mode(strings.ToLower(strings.TrimSpace(raw)))
	switch mode {
	case ModeCash, ModeUPI, ModeCheque, ModeCard, ModeFinance:
		return mode, true
	default:
		return "", false
	}
}

// PaymentDetails is a tagged union keyed by Mode. Exactly the block matching
// Mode may be set.
type PaymentDetails struct {
	Mode    Mode            `json:"mode" validate:"required"`
	UPI     *UPIDetails     `json:"upi,omitempty"`
	Cheque  *ChequeDetails  `json:"cheque,omitempty"`
	Card    *CardDetails    `json:"card,omitempty"`
	Finance *FinanceDetails `json:"finance,omitempty"`
}

type UPIDetails struct {
	UTR string `json:"utr" validate:"required,max=64"`
}

type ChequeDetails struct {
	Bank   string `json:"bank" validate:"required,max=128"`
	Number string `json:"number" validate:"required,numeric,max=32"`
	Date   string `json:"date" validate:"required,datetime=2006-01-02"`
}

type CardDetails struct {
	Type string `json:"type" validate:"required,oneof=credit debit"`
}

type FinanceDetails struct {
	Name string `json:"name" validate:"required,max=128"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks that the block for Mode is present and well formed and that
// no other block is set.
func (d PaymentDetails) Validate() error {
	mode, ok := ParseMode(string(d.Mode))
	if !ok {
		return ErrInvalidMode
	}

	var block any
	set := 0
	for _, present := range []bool{d.UPI != nil, d.Cheque != nil, d.Card != nil, d.Finance != nil} {
		if present {
			set++
		}
	}

	switch mode {
	case ModeCash:
		if set != 0 {
			return ErrInvalidDetails
		}
		return nil
	case ModeUPI:
		if d.UPI == nil {
			return ErrInvalidDetails
		}
		block = d.UPI
	case ModeCheque:
		if d.Cheque == nil {
			return ErrInvalidDetails
		}
		block = d.Cheque
	case ModeCard:
		if d.Card == nil {
			return ErrInvalidDetails
		}
		block = d.Card
	case ModeFinance:
		if d.Finance == nil {
			return ErrInvalidDetails
		}
		block = d.Finance
	default:
		return ErrInvalidMode
	}
	if set != 1 {
		return ErrInvalidDetails
	}

	if err := validate.Struct(block); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return &DetailsError{Field: verrs[0].Field(), Tag: verrs[0].Tag()}
		}
		return ErrInvalidDetails
	}
	return nil
}

// Normalize lower-cases the mode and trims string fields.
func (d PaymentDetails) Normalize() PaymentDetails {
	out := d
	out.Mode = Mode(strings.ToLower(strings.TrimSpace(string(d.Mode))))
	if d.UPI != nil {
		out.UPI = &UPIDetails{UTR: strings.TrimSpace(d.UPI.UTR)}
	}
	if d.Cheque != nil {
		out.Cheque = &ChequeDetails{
			Bank:   strings.TrimSpace(d.Cheque.Bank),
			Number: strings.TrimSpace(d.Cheque.Number),
			Date:   strings.TrimSpace(d.Cheque.Date),
		}
	}
	if d.Card != nil {
		out.Card = &CardDetails{Type: strings.ToLower(strings.TrimSpace(d.Card.Type))}
	}
	if d.Finance != nil {
		out.Finance = &FinanceDetails{Name: strings.TrimSpace(d.Finance.Name)}
	}
	return out
}

// DetailsError names the detail field that failed validation.
type DetailsError struct {
	Field string
	Tag   string
}

func (e *DetailsError) Error() string {
	return "invalid_details: " + strings.ToLower(e.Field) + " " + e.Tag
}

func (e *DetailsError) Unwrap() error { return ErrInvalidDetails }
