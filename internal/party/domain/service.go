package domain

import (
	"context"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/billbook/pkg/db/pagination"
)

type RegisterPartyRequest struct {
	DisplayName    string
	Role           string
	OpeningBalance *decimal.Decimal
}

type ListPartyRequest struct {
	Role       string
	ActiveOnly bool
	pagination.Pagination
}

type ListPartyResponse struct {
	pagination.PageInfo
	Parties []Party `json:"parties"`
}

type Service interface {
	Register(ctx context.Context, req RegisterPartyRequest) (Party, error)
	GetByID(ctx context.Context, id string) (Party, error)
	List(ctx context.Context, req ListPartyRequest) (ListPartyResponse, error)
	GetPartyBalance(ctx context.Context, id string) (decimal.Decimal, error)
	Deactivate(ctx context.Context, id string) (Party, error)
}
