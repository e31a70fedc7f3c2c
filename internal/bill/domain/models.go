package domain

import (
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	partydomain "github.com/smallbiznis/billbook/internal/party/domain"
	paymentdomain "github.com/smallbiznis/billbook/internal/payment/domain"
	taxdomain "github.com/smallbiznis/billbook/internal/tax/domain"
)

type Status string

const (
	StatusDraft     Status = "draft"
	StatusCancelled Status = "cancelled"
)

// State is a step of the bill creation lifecycle. Transitions are logged.
type State string

const (
	StateValidating         State = "validating"
	StateComputing          State = "computing"
	StatePersisted          State = "persisted"
	StateLedgerPosted       State = "ledger_posted"
	StateCompensatingDelete State = "compensating_delete"
	StateRejected           State = "rejected"
)

// Bill is a sale or purchase document. Totals are derived from its lines and
// never edited after creation; the only transition is draft to cancelled.
type Bill struct {
	ID             snowflake.ID           `json:"id" gorm:"primaryKey"`
	OrgID          snowflake.ID           `json:"organization_id" gorm:"not null;index;uniqueIndex:ux_bills_org_number,priority:1"`
	BillNumber     string                 `json:"bill_number" gorm:"type:text;not null;uniqueIndex:ux_bills_org_number,priority:2"`
	Direction      partydomain.Direction  `json:"direction" gorm:"type:text;not null"`
	PartyID        snowflake.ID           `json:"party_id" gorm:"not null;index"`
	Jurisdiction   taxdomain.Jurisdiction `json:"jurisdiction" gorm:"type:text;not null"`
	Subtotal       decimal.Decimal        `json:"subtotal" gorm:"type:numeric(20,2);not null"`
	CGSTTotal      decimal.Decimal        `json:"cgst_total" gorm:"column:cgst_total;type:numeric(20,2);not null"`
	SGSTTotal      decimal.Decimal        `json:"sgst_total" gorm:"column:sgst_total;type:numeric(20,2);not null"`
	IGSTTotal      decimal.Decimal        `json:"igst_total" gorm:"column:igst_total;type:numeric(20,2);not null"`
	GSTTotal       decimal.Decimal        `json:"gst_total" gorm:"column:gst_total;type:numeric(20,2);not null"`
	GrandTotal     decimal.Decimal        `json:"grand_total" gorm:"type:numeric(20,2);not null"`
	AmountPaid     decimal.Decimal        `json:"amount_paid" gorm:"type:numeric(20,2);not null"`
	Remaining      decimal.Decimal        `json:"remaining" gorm:"type:numeric(20,2);not null"`
	PaymentStatus  paymentdomain.Status   `json:"payment_status" gorm:"type:text;not null"`
	Status         Status                 `json:"status" gorm:"type:text;not null"`
	IsReturn       bool                   `json:"is_return" gorm:"not null"`
	OriginalBillID *snowflake.ID          `json:"original_bill_id,omitempty" gorm:"index"`
	CreatedAt      time.Time              `json:"created_at" gorm:"not null"`
	UpdatedAt      time.Time              `json:"updated_at" gorm:"not null"`
	CancelledAt    *time.Time             `json:"cancelled_at,omitempty"`

	Lines []BillLine `json:"lines,omitempty" gorm:"-"`
}

func (Bill) TableName() string { return "bills" }

// Totals returns the aggregate view of the bill.
func (b Bill) Totals() taxdomain.BillTotals {
	return taxdomain.BillTotals{
		Subtotal:   b.Subtotal,
		CGSTTotal:  b.CGSTTotal,
		SGSTTotal:  b.SGSTTotal,
		IGSTTotal:  b.IGSTTotal,
		GSTTotal:   b.GSTTotal,
		GrandTotal: b.GrandTotal,
	}
}

type BillLine struct {
	ID             snowflake.ID    `json:"id" gorm:"primaryKey"`
	OrgID          snowflake.ID    `json:"organization_id" gorm:"not null;index"`
	BillID         snowflake.ID    `json:"bill_id" gorm:"not null;index"`
	Position       int             `json:"position" gorm:"not null"`
	ProductRef     string          `json:"product_ref" gorm:"type:text"`
	Description    string          `json:"description" gorm:"type:text"`
	Quantity       int64           `json:"quantity" gorm:"not null"`
	UnitPrice      decimal.Decimal `json:"unit_price" gorm:"type:numeric(20,2);not null"`
	GSTRate        decimal.Decimal `json:"gst_rate" gorm:"column:gst_rate;type:numeric(7,4);not null"`
	TaxableAmount  decimal.Decimal `json:"taxable_amount" gorm:"type:numeric(20,2);not null"`
	CGST           decimal.Decimal `json:"cgst" gorm:"column:cgst;type:numeric(20,2);not null"`
	SGST           decimal.Decimal `json:"sgst" gorm:"column:sgst;type:numeric(20,2);not null"`
	IGST           decimal.Decimal `json:"igst" gorm:"column:igst;type:numeric(20,2);not null"`
	LineTotal      decimal.Decimal `json:"line_total" gorm:"type:numeric(20,2);not null"`
	OriginalLineID *snowflake.ID   `json:"original_line_id,omitempty" gorm:"index"`
	CreatedAt      time.Time       `json:"created_at" gorm:"not null"`
}

func (BillLine) TableName() string { return "bill_lines" }

// ReturnedLine is the running sum of return lines against one original line.
type ReturnedLine struct {
	Quantity      int64
	TaxableAmount decimal.Decimal
	CGST          decimal.Decimal
	SGST          decimal.Decimal
	IGST          decimal.Decimal
	LineTotal     decimal.Decimal
}

// Add folds one return line into the sum.
func (r ReturnedLine) Add(line BillLine) ReturnedLine {
	return ReturnedLine{
		Quantity:      r.Quantity + line.Quantity,
		TaxableAmount: r.TaxableAmount.Add(line.TaxableAmount),
		CGST:          r.CGST.Add(line.CGST),
		SGST:          r.SGST.Add(line.SGST),
		IGST:          r.IGST.Add(line.IGST),
		LineTotal:     r.LineTotal.Add(line.LineTotal),
	}
}

// Outstanding is what is left of the original line after the returns so far.
// The final return of a line posts exactly this, so the pieces add back up to
// the original amounts regardless of per-return rounding.
func (r ReturnedLine) Outstanding(original BillLine) taxdomain.ComputedLine {
	return taxdomain.ComputedLine{
		Quantity:      original.Quantity - r.Quantity,
		UnitPrice:     original.UnitPrice,
		GSTRate:       original.GSTRate,
		TaxableAmount: original.TaxableAmount.Sub(r.TaxableAmount),
		CGST:          original.CGST.Sub(r.CGST),
		SGST:          original.SGST.Sub(r.SGST),
		IGST:          original.IGST.Sub(r.IGST),
		LineTotal:     original.LineTotal.Sub(r.LineTotal),
	}
}

// DefaultNumber builds a bill number when the caller does not supply one.
func DefaultNumber(direction partydomain.Direction, isReturn bool, id snowflake.ID) string {
	var prefix string
	switch {
	case direction == partydomain.DirectionSale && isReturn:
		prefix = "CN"
	case direction == partydomain.DirectionPurchase && isReturn:
		prefix = "DN"
	case direction == partydomain.DirectionPurchase:
		prefix = "PUR"
	default:
		prefix = "INV"
	}
	return prefix + "-" + id.String()
}

// NormalizeNumber trims and upper-cases a caller supplied bill number.
func NormalizeNumber(raw string) string {
	return strings.ToUpper(strings.TrimSpace(raw))
}
