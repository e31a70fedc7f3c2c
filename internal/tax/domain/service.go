package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

// RateResolver returns the bill-level fallback GST rate for an organization.
type RateResolver interface {
	ResolveDefaultRate(ctx context.Context, orgID snowflake.ID) (*decimal.Decimal, error)
}

type Service interface {
	Create(ctx context.Context, req CreateRequest) (*Response, error)
	List(ctx context.Context, req ListRequest) ([]Response, error)
	Disable(ctx context.Context, id string) (*Response, error)
}

type ListRequest struct {
	Code      string
	IsEnabled *bool
}

type CreateRequest struct {
	Code        string          `json:"code"`
	Name        string          `json:"name"`
	RatePercent decimal.Decimal `json:"rate_percent"`
	IsDefault   bool            `json:"is_default"`
}

type Response struct {
	ID             string          `json:"id"`
	OrganizationID string          `json:"organization_id"`
	Code           string          `json:"code"`
	Name           string          `json:"name"`
	RatePercent    decimal.Decimal `json:"rate_percent"`
	IsDefault      bool            `json:"is_default"`
	IsEnabled      bool            `json:"is_enabled"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}
