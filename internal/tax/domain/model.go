package domain

import (
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

// Jurisdiction decides whether GST splits into CGST+SGST or is charged as IGST.
type Jurisdiction string

const (
	JurisdictionIntrastate Jurisdiction = "intrastate"
	JurisdictionInterstate Jurisdiction = "interstate"
)

func (j Jurisdiction) Valid() bool {
	return j == JurisdictionIntrastate || j == JurisdictionInterstate
}

func (j Jurisdiction) Intrastate() bool {
	return j == JurisdictionIntrastate
}

// ParseJurisdiction accepts the stored values case-insensitively.
func ParseJurisdiction(raw string) (Jurisdiction, bool) {
	j := Jurisdiction(strings.ToLower(strings.TrimSpace(raw)))
	return j, j.Valid()
}

// TaxRate is an org-scoped GST slab. The enabled default slab is the bill-level
// fallback rate for lines that carry no rate of their own.
type TaxRate struct {
	ID    snowflake.ID `gorm:"primaryKey"`
	OrgID snowflake.ID `gorm:"column:org_id;not null;index"`

	Code        string          `gorm:"type:text;not null"`
	Name        string          `gorm:"type:text;not null"`
	RatePercent decimal.Decimal `gorm:"column:rate_percent;type:numeric(7,4);not null"`
	IsDefault   bool            `gorm:"column:is_default;not null;default:false"`
	IsEnabled   bool            `gorm:"column:is_enabled;not null;default:true"`

	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

func (TaxRate) TableName() string { return "tax_rates" }

func (t *TaxRate) Validate() error {
	if strings.TrimSpace(t.Code) == "" {
		return ErrInvalidTaxCode
	}
	if strings.TrimSpace(t.Name) == "" {
		return ErrInvalidName
	}
	if t.RatePercent.IsNegative() {
		return ErrInvalidTaxRate
	}
	return nil
}

// LineInput is one bill line before tax. UnitPrice is already net of discount.
type LineInput struct {
	Quantity     int64
	UnitPrice    decimal.Decimal
	ExplicitRate *decimal.Decimal
	FallbackRate *decimal.Decimal
	Intrastate   bool
}

// ComputedLine holds the GST split of one line. Exactly one of the
// CGST/SGST pair or IGST is non-zero unless the rate is zero.
type ComputedLine struct {
	Quantity      int64
	UnitPrice     decimal.Decimal
	GSTRate       decimal.Decimal
	TaxableAmount decimal.Decimal
	CGST          decimal.Decimal
	SGST          decimal.Decimal
	IGST          decimal.Decimal
	LineTotal     decimal.Decimal
}

// GST returns the total tax charged on the line.
func (l ComputedLine) GST() decimal.Decimal {
	return l.CGST.Add(l.SGST).Add(l.IGST)
}

type BillTotals struct {
	Subtotal   decimal.Decimal
	CGSTTotal  decimal.Decimal
	SGSTTotal  decimal.Decimal
	IGSTTotal  decimal.Decimal
	GSTTotal   decimal.Decimal
	GrandTotal decimal.Decimal
}
