package domain

import (
	"context"

	"github.com/shopspring/decimal"
	ledgerdomain "github.com/smallbiznis/billbook/internal/ledger/domain"
	paymentdomain "github.com/smallbiznis/billbook/internal/payment/domain"
	"github.com/smallbiznis/billbook/pkg/db/pagination"
)

type LineRequest struct {
	ProductRef  string           `json:"product_ref"`
	Description string           `json:"description"`
	Quantity    int64            `json:"quantity"`
	UnitPrice   decimal.Decimal  `json:"unit_price"`
	GSTRate     *decimal.Decimal `json:"gst_rate,omitempty"`
}

type CreateBillRequest struct {
	BillNumber   string `json:"bill_number"`
	Direction    string `json:"direction"`
	PartyID      string `json:"party_id"`
	Jurisdiction string `json:"jurisdiction"`

	// DefaultGSTRate applies to lines without a rate. When nil the
	// organization's default tax rate is used.
	DefaultGSTRate *decimal.Decimal              `json:"default_gst_rate,omitempty"`
	Lines          []LineRequest                 `json:"lines"`
	AmountTendered decimal.Decimal               `json:"amount_tendered"`
	Payment        *paymentdomain.PaymentDetails `json:"payment,omitempty"`
}

type CreateBillResult struct {
	Bill          Bill                      `json:"bill"`
	LedgerEntry   ledgerdomain.LedgerEntry  `json:"ledger_entry"`
	PaymentEntry  *ledgerdomain.LedgerEntry `json:"payment_entry,omitempty"`
	Remaining     decimal.Decimal           `json:"remaining"`
	PaymentStatus paymentdomain.Status      `json:"payment_status"`
	Overpaid      decimal.Decimal           `json:"overpaid"`
}

type CancelBillResult struct {
	Bill           Bill                     `json:"bill"`
	ReversingEntry ledgerdomain.LedgerEntry `json:"reversing_entry"`
}

// ReturnLineRequest returns Quantity units of the original line at LineIndex
// (zero-based position on the original bill).
type ReturnLineRequest struct {
	LineIndex int   `json:"line_index"`
	Quantity  int64 `json:"quantity"`
}

type PostReturnRequest struct {
	OriginalBillID string              `json:"original_bill_id"`
	BillNumber     string              `json:"bill_number"`
	Lines          []ReturnLineRequest `json:"lines"`
}

type PostReturnResult struct {
	ReturnBill     Bill                     `json:"return_bill"`
	ReversingEntry ledgerdomain.LedgerEntry `json:"reversing_entry"`
}

type ListBillRequest struct {
	PartyID string
	Status  string
	pagination.Pagination
}

type ListBillResponse struct {
	pagination.PageInfo
	Bills []Bill `json:"bills"`
}

type Service interface {
	CreateBill(ctx context.Context, req CreateBillRequest) (CreateBillResult, error)
	CancelBill(ctx context.Context, billID string) (CancelBillResult, error)
	PostReturn(ctx context.Context, req PostReturnRequest) (PostReturnResult, error)
	GetBill(ctx context.Context, billID string) (Bill, error)
	ListBills(ctx context.Context, req ListBillRequest) (ListBillResponse, error)
}
