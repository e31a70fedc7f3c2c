package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	partydomain "github.com/smallbiznis/billbook/internal/party/domain"
	"gorm.io/datatypes"
)

// Payment is a money movement against a party, optionally applied to one bill.
type Payment struct {
	ID            snowflake.ID          `json:"id" gorm:"primaryKey"`
	OrgID         snowflake.ID          `json:"organization_id" gorm:"not null;index"`
	PartyID       snowflake.ID          `json:"party_id" gorm:"not null;index"`
	BillID        *snowflake.ID         `json:"bill_id,omitempty" gorm:"index"`
	Direction     partydomain.Direction `json:"direction" gorm:"type:text;not null"`
	Amount        decimal.Decimal       `json:"amount" gorm:"type:numeric(20,2);not null"`
	Mode          Mode                  `json:"mode" gorm:"type:text;not null"`
	Details       datatypes.JSON        `json:"details" gorm:"type:json"`
	LedgerEntryID snowflake.ID          `json:"ledger_entry_id" gorm:"not null"`
	CreatedAt     time.Time             `json:"created_at" gorm:"not null"`
}

func (Payment) TableName() string { return "payments" }

// Allocation is the outcome of applying a tendered amount to a bill total.
type Allocation struct {
	TotalPaid      decimal.Decimal `json:"total_paid"`
	Remaining      decimal.Decimal `json:"remaining"`
	Classification Status          `json:"payment_status"`
	Overpaid       decimal.Decimal `json:"overpaid"`
}

type Status string

const (
	StatusFull    Status = "full"
	StatusAdvance Status = "advance"
)
