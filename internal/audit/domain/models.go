package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

const (
	ActionBillCreated            = "bill.created"
	ActionBillCancelled          = "bill.cancelled"
	ActionReturnPosted           = "bill.return_posted"
	ActionPaymentRecorded        = "payment.recorded"
	ActionPartyRegistered        = "party.registered"
	ActionPartyDeactivated       = "party.deactivated"
	ActionReconciliationRequired = "ledger.reconciliation_required"
)

type AuditLog struct {
	ID         snowflake.ID      `gorm:"primaryKey" json:"id"`
	OrgID      snowflake.ID      `gorm:"not null;index" json:"organization_id"`
	Action     string            `gorm:"type:text;not null;index" json:"action"`
	TargetType string            `gorm:"column:target_type;type:text;not null" json:"target_type"`
	TargetID   string            `gorm:"column:target_id;type:text;not null" json:"target_id"`
	RequestID  string            `gorm:"column:request_id;type:text" json:"request_id,omitempty"`
	Metadata   datatypes.JSONMap `gorm:"type:json" json:"metadata,omitempty"`
	CreatedAt  time.Time         `gorm:"not null" json:"created_at"`
}

func (AuditLog) TableName() string { return "audit_logs" }

type ListFilter struct {
	OrgID      snowflake.ID
	Action     string
	TargetType string
	TargetID   string
	BeforeID   *snowflake.ID
	Limit      int
}
