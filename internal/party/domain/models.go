package domain

import (
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

// Role is what the party is to the business.
type Role string

const (
	RoleCustomer Role = "customer"
	RoleVendor   Role = "vendor"
)

// Direction is the side of a bill: sales to customers, purchases from vendors.
type Direction string

const (
	DirectionSale     Direction = "sale"
	DirectionPurchase Direction = "purchase"
)

func ParseRole(raw string) (Role, bool) {
	role := Role(strings.ToLower(strings.TrimSpace(raw)))
	return role, role.Valid()
}

func (r Role) Valid() bool {
	return r == RoleCustomer || r == RoleVendor
}

// Direction returns the only bill direction the role may take part in.
func (r Role) Direction() Direction {
	if r == RoleVendor {
		return DirectionPurchase
	}
	return DirectionSale
}

func ParseDirection(raw string) (Direction, bool) {
	direction := Direction(strings.ToLower(strings.TrimSpace(raw)))
	return direction, direction.Valid()
}

func (d Direction) Valid() bool {
	return d == DirectionSale || d == DirectionPurchase
}

// Party is a customer or vendor account. For customers a positive running
// balance is owed to the business; for vendors it is owed by the business.
type Party struct {
	ID             snowflake.ID    `gorm:"primaryKey" json:"id"`
	OrgID          snowflake.ID    `gorm:"not null;index" json:"organization_id"`
	DisplayName    string          `gorm:"column:display_name;not null" json:"display_name"`
	Role           Role            `gorm:"type:text;not null" json:"role"`
	RunningBalance decimal.Decimal `gorm:"column:running_balance;type:numeric(20,2);not null;default:0" json:"running_balance"`
	BalanceVersion int64           `gorm:"column:balance_version;not null;default:0" json:"balance_version"`
	IsActive       bool            `gorm:"column:is_active;not null;default:true" json:"is_active"`
	CreatedAt      time.Time       `gorm:"not null" json:"created_at"`
	UpdatedAt      time.Time       `gorm:"not null" json:"updated_at"`
}

func (Party) TableName() string { return "parties" }
