package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	billdomain "github.com/smallbiznis/billbook/internal/bill/domain"
	ledgerdomain "github.com/smallbiznis/billbook/internal/ledger/domain"
	"github.com/smallbiznis/billbook/internal/orgcontext"
	partydomain "github.com/smallbiznis/billbook/internal/party/domain"
	paymentdomain "github.com/smallbiznis/billbook/internal/payment/domain"
	taxdomain "github.com/smallbiznis/billbook/internal/tax/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const testOrg = "1001"

type fakePartyService struct {
	register   func(ctx context.Context, req partydomain.RegisterPartyRequest) (partydomain.Party, error)
	balance    func(ctx context.Context, id string) (decimal.Decimal, error)
	lastOrgID  snowflake.ID
	lastOrgSet bool
}

func (f *fakePartyService) Register(ctx context.Context, req partydomain.RegisterPartyRequest) (partydomain.Party, error) {
	f.lastOrgID, f.lastOrgSet = orgcontext.OrgIDFromContext(ctx)
	return f.register(ctx, req)
}

func (f *fakePartyService) GetByID(context.Context, string) (partydomain.Party, error) {
	return partydomain.Party{}, partydomain.ErrUnknownParty
}

func (f *fakePartyService) List(context.Context, partydomain.ListPartyRequest) (partydomain.ListPartyResponse, error) {
	return partydomain.ListPartyResponse{Parties: []partydomain.Party{}}, nil
}

func (f *fakePartyService) GetPartyBalance(ctx context.Context, id string) (decimal.Decimal, error) {
	return f.balance(ctx, id)
}

func (f *fakePartyService) Deactivate(context.Context, string) (partydomain.Party, error) {
	return partydomain.Party{}, nil
}

type fakeLedgerService struct {
	replay func(ctx context.Context, partyID string) (ledgerdomain.ReplayResult, error)
}

func (f *fakeLedgerService) Post(context.Context, ledgerdomain.PostRequest) (*ledgerdomain.LedgerEntry, error) {
	return nil, errors.New("not used")
}

func (f *fakeLedgerService) PostOpeningBalance(context.Context, *gorm.DB, *partydomain.Party, decimal.Decimal) (*ledgerdomain.LedgerEntry, error) {
	return nil, errors.New("not used")
}

func (f *fakeLedgerService) FindByBillAndKind(context.Context, string, ledgerdomain.Kind) (*ledgerdomain.LedgerEntry, error) {
	return nil, nil
}

func (f *fakeLedgerService) ListEntries(context.Context, ledgerdomain.ListEntriesRequest) (ledgerdomain.ListEntriesResponse, error) {
	return ledgerdomain.ListEntriesResponse{Entries: []ledgerdomain.LedgerEntry{}}, nil
}

func (f *fakeLedgerService) Replay(ctx context.Context, partyID string) (ledgerdomain.ReplayResult, error) {
	return f.replay(ctx, partyID)
}

type fakeBillService struct {
	create func(ctx context.Context, req billdomain.CreateBillRequest) (billdomain.CreateBillResult, error)
	cancel func(ctx context.Context, billID string) (billdomain.CancelBillResult, error)
}

func (f *fakeBillService) CreateBill(ctx context.Context, req billdomain.CreateBillRequest) (billdomain.CreateBillResult, error) {
	return f.create(ctx, req)
}

func (f *fakeBillService) CancelBill(ctx context.Context, billID string) (billdomain.CancelBillResult, error) {
	return f.cancel(ctx, billID)
}

func (f *fakeBillService) PostReturn(context.Context, billdomain.PostReturnRequest) (billdomain.PostReturnResult, error) {
	return billdomain.PostReturnResult{}, billdomain.ErrReturnExceedsOriginal
}

func (f *fakeBillService) GetBill(context.Context, string) (billdomain.Bill, error) {
	return billdomain.Bill{}, billdomain.ErrBillNotFound
}

func (f *fakeBillService) ListBills(context.Context, billdomain.ListBillRequest) (billdomain.ListBillResponse, error) {
	return billdomain.ListBillResponse{Bills: []billdomain.Bill{}}, nil
}

type fakePaymentService struct {
	record func(ctx context.Context, req paymentdomain.RecordPaymentRequest) (paymentdomain.RecordPaymentResult, error)
}

func (f *fakePaymentService) RecordPayment(ctx context.Context, req paymentdomain.RecordPaymentRequest) (paymentdomain.RecordPaymentResult, error) {
	return f.record(ctx, req)
}

func (f *fakePaymentService) ListByBill(context.Context, string) ([]paymentdomain.Payment, error) {
	return []paymentdomain.Payment{}, nil
}

type fakeTaxService struct{}

func (fakeTaxService) Create(context.Context, taxdomain.CreateRequest) (*taxdomain.Response, error) {
	return nil, taxdomain.ErrInvalidTaxRate
}

func (fakeTaxService) List(context.Context, taxdomain.ListRequest) ([]taxdomain.Response, error) {
	return []taxdomain.Response{}, nil
}

func (fakeTaxService) Disable(context.Context, string) (*taxdomain.Response, error) {
	return nil, taxdomain.ErrNotFound
}

type testServer struct {
	engine   *gin.Engine
	parties  *fakePartyService
	ledger   *fakeLedgerService
	bills    *fakeBillService
	payments *fakePaymentService
}

func newTestServer(t *testing.T) testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.Use(ErrorHandlingMiddleware())

	ts := testServer{
		engine: r,
		parties: &fakePartyService{
			register: func(context.Context, partydomain.RegisterPartyRequest) (partydomain.Party, error) {
				return partydomain.Party{}, nil
			},
			balance: func(context.Context, string) (decimal.Decimal, error) {
				return decimal.Zero, nil
			},
		},
		ledger: &fakeLedgerService{
			replay: func(context.Context, string) (ledgerdomain.ReplayResult, error) {
				return ledgerdomain.ReplayResult{}, nil
			},
		},
		bills: &fakeBillService{
			create: func(context.Context, billdomain.CreateBillRequest) (billdomain.CreateBillResult, error) {
				return billdomain.CreateBillResult{}, nil
			},
			cancel: func(context.Context, string) (billdomain.CancelBillResult, error) {
				return billdomain.CancelBillResult{}, nil
			},
		},
		payments: &fakePaymentService{
			record: func(context.Context, paymentdomain.RecordPaymentRequest) (paymentdomain.RecordPaymentResult, error) {
				return paymentdomain.RecordPaymentResult{}, nil
			},
		},
	}

	NewServer(ServerParams{
		Gin:        r,
		PartySvc:   ts.parties,
		LedgerSvc:  ts.ledger,
		BillSvc:    ts.bills,
		PaymentSvc: ts.payments,
		TaxSvc:     fakeTaxService{},
	})
	return ts
}

func (ts testServer) do(t *testing.T, method, path string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()

	var reader *bytes.Reader
	switch v := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(v))
	default:
		raw, err := json.Marshal(v)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderOrg, testOrg)
	rec := httptest.NewRecorder()
	ts.engine.ServeHTTP(rec, req)

	var decoded map[string]any
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &decoded), rec.Body.String())
	}
	return rec, decoded
}

func errorType(t *testing.T, body map[string]any) string {
	t.Helper()
	payload, ok := body["error"].(map[string]any)
	require.True(t, ok, "missing error payload: %v", body)
	return payload["type"].(string)
}

func TestMissingOrganizationHeaderIsRejected(t *testing.T) {
	ts := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/parties", nil)
	rec := httptest.NewRecorder()
	ts.engine.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "missing_organization")
}

func TestInvalidOrganizationHeaderIsValidationError(t *testing.T) {
	ts := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/parties", nil)
	req.Header.Set(HeaderOrg, "not-a-number")
	rec := httptest.NewRecorder()
	ts.engine.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid_organization")
}

func TestRegisterPartyScopesRequestToOrganization(t *testing.T) {
	ts := newTestServer(t)
	var got partydomain.RegisterPartyRequest
	ts.parties.register = func(_ context.Context, req partydomain.RegisterPartyRequest) (partydomain.Party, error) {
		got = req
		return partydomain.Party{ID: 42, DisplayName: req.DisplayName, Role: partydomain.Role(req.Role)}, nil
	}

	rec, body := ts.do(t, http.MethodPost, "/v1/parties", map[string]any{
		"display_name":    "  Sharma Traders ",
		"role":            "customer",
		"opening_balance": "150.50",
	})

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.True(t, ts.parties.lastOrgSet)
	assert.Equal(t, snowflake.ID(1001), ts.parties.lastOrgID)
	assert.Equal(t, "Sharma Traders", got.DisplayName)
	require.NotNil(t, got.OpeningBalance)
	assert.True(t, got.OpeningBalance.Equal(decimal.RequireFromString("150.5")))
	assert.Equal(t, "Sharma Traders", body["data"].(map[string]any)["display_name"])
}

func TestMalformedJSONIsInvalidRequest(t *testing.T) {
	ts := newTestServer(t)

	rec, body := ts.do(t, http.MethodPost, "/v1/parties", "{not json")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "validation_error", errorType(t, body))
	assert.Contains(t, rec.Body.String(), "invalid_request")
}

func TestPartyBalanceRendersTwoDecimals(t *testing.T) {
	ts := newTestServer(t)
	ts.parties.balance = func(context.Context, string) (decimal.Decimal, error) {
		return decimal.RequireFromString("236"), nil
	}

	rec, body := ts.do(t, http.MethodGet, "/v1/parties/77/balance", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	data := body["data"].(map[string]any)
	assert.Equal(t, "236.00", data["running_balance"])
	assert.Equal(t, "77", data["party_id"])
}

func TestUnknownPartyIsNotFound(t *testing.T) {
	ts := newTestServer(t)

	rec, body := ts.do(t, http.MethodGet, "/v1/parties/77", nil)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "unknown_party", errorType(t, body))
}

func TestReplayMismatchReturnsFigures(t *testing.T) {
	ts := newTestServer(t)
	ts.ledger.replay = func(context.Context, string) (ledgerdomain.ReplayResult, error) {
		return ledgerdomain.ReplayResult{
			PartyID:         77,
			Entries:         2,
			ComputedBalance: decimal.RequireFromString("136"),
			StoredBalance:   decimal.RequireFromString("999"),
		}, ledgerdomain.ErrLedgerMismatch
	}

	rec, body := ts.do(t, http.MethodPost, "/v1/parties/77/replay", nil)

	require.Equal(t, http.StatusConflict, rec.Code)
	data := body["data"].(map[string]any)
	assert.Equal(t, false, data["consistent"])
	assert.Equal(t, "136.00", data["computed_balance"])
	assert.Equal(t, "999.00", data["stored_balance"])
}

func TestCreateBillPassesRequestThrough(t *testing.T) {
	ts := newTestServer(t)
	var got billdomain.CreateBillRequest
	ts.bills.create = func(_ context.Context, req billdomain.CreateBillRequest) (billdomain.CreateBillResult, error) {
		got = req
		return billdomain.CreateBillResult{
			Remaining:     decimal.RequireFromString("136"),
			PaymentStatus: paymentdomain.StatusAdvance,
		}, nil
	}

	rec, _ := ts.do(t, http.MethodPost, "/v1/bills", map[string]any{
		"direction":       "sale",
		"party_id":        "77",
		"jurisdiction":    "intrastate",
		"amount_tendered": "100",
		"lines": []map[string]any{
			{"product_ref": "SKU-1", "quantity": 2, "unit_price": "100", "gst_rate": "18"},
		},
		"payment": map[string]any{"mode": "upi", "upi": map[string]any{"utr": "123456789012"}},
	})

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "sale", got.Direction)
	require.Len(t, got.Lines, 1)
	assert.Equal(t, int64(2), got.Lines[0].Quantity)
	assert.True(t, got.AmountTendered.Equal(decimal.NewFromInt(100)))
	require.NotNil(t, got.Payment)
	assert.Equal(t, paymentdomain.ModeUPI, got.Payment.Mode)
	require.NotNil(t, got.Payment.UPI)
	assert.Equal(t, "123456789012", got.Payment.UPI.UTR)
}

func TestCreateBillWithUnrecordedPaymentStillReturnsBill(t *testing.T) {
	ts := newTestServer(t)
	ts.bills.create = func(context.Context, billdomain.CreateBillRequest) (billdomain.CreateBillResult, error) {
		return billdomain.CreateBillResult{Bill: billdomain.Bill{ID: 9, BillNumber: "INV-9"}},
			fmt.Errorf("%w: %w", billdomain.ErrPaymentNotRecorded, ledgerdomain.ErrConcurrencyConflict)
	}

	rec, body := ts.do(t, http.MethodPost, "/v1/bills", map[string]any{
		"direction": "sale", "party_id": "77", "jurisdiction": "intrastate",
	})

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "payment_not_recorded", errorType(t, body))
	bill := body["data"].(map[string]any)["bill"].(map[string]any)
	assert.Equal(t, "INV-9", bill["bill_number"])
}

func TestRecordPaymentDetailsErrorNamesField(t *testing.T) {
	ts := newTestServer(t)
	ts.payments.record = func(_ context.Context, req paymentdomain.RecordPaymentRequest) (paymentdomain.RecordPaymentResult, error) {
		return paymentdomain.RecordPaymentResult{}, req.Details.Validate()
	}

	rec, body := ts.do(t, http.MethodPost, "/v1/payments", map[string]any{
		"party_id":  "77",
		"direction": "sale",
		"amount":    "50",
		"details":   map[string]any{"mode": "upi", "upi": map[string]any{"utr": ""}},
	})

	require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
	payload := body["error"].(map[string]any)
	fields := payload["errors"].([]any)
	require.Len(t, fields, 1)
	assert.Equal(t, "details.utr", fields[0].(map[string]any)["field"])
	assert.Equal(t, "invalid_details", fields[0].(map[string]any)["code"])
}

func TestErrorMapping(t *testing.T) {
	cases := []struct {
		name     string
		err      error
		status   int
		wantType string
	}{
		{"empty bill", taxdomain.ErrEmptyBill, http.StatusBadRequest, "validation_error"},
		{"direction mismatch", partydomain.ErrDirectionMismatch, http.StatusBadRequest, "validation_error"},
		{"unknown party", partydomain.ErrUnknownParty, http.StatusNotFound, "unknown_party"},
		{"bill not found", billdomain.ErrBillNotFound, http.StatusNotFound, "not_found"},
		{"cancelled", billdomain.ErrBillCancelled, http.StatusConflict, "bill_cancelled"},
		{"has returns", billdomain.ErrBillHasReturns, http.StatusConflict, "bill_has_returns"},
		{"duplicate number", billdomain.ErrDuplicateBillNumber, http.StatusConflict, "duplicate_bill_number"},
		{"conflict", fmt.Errorf("post: %w", ledgerdomain.ErrConcurrencyConflict), http.StatusConflict, "concurrency_conflict"},
		{"inactive", partydomain.ErrPartyInactive, http.StatusConflict, "party_inactive"},
		{"ledger failure", billdomain.ErrLedgerPostFailure, http.StatusInternalServerError, "ledger_post_failure"},
		{"opaque", errors.New("boom"), http.StatusInternalServerError, "internal_error"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			status, payload := mapError(tc.err)
			assert.Equal(t, tc.status, status)
			assert.Equal(t, tc.wantType, payload.Type)
		})
	}
}

func TestReconciliationErrorWinsOverWrappedCause(t *testing.T) {
	err := &billdomain.ReconciliationError{
		BillID:          snowflake.ID(555),
		PostErr:         partydomain.ErrDirectionMismatch,
		CompensationErr: errors.New("connection reset"),
	}

	status, payload := mapError(err)

	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, "reconciliation_required", payload.Type)
	assert.Equal(t, "555", payload.BillID)
}

func TestCancelBillConflict(t *testing.T) {
	ts := newTestServer(t)
	ts.bills.cancel = func(context.Context, string) (billdomain.CancelBillResult, error) {
		return billdomain.CancelBillResult{}, billdomain.ErrBillCancelled
	}

	rec, body := ts.do(t, http.MethodPost, "/v1/bills/9/cancel", nil)

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "bill_cancelled", errorType(t, body))
}

func TestPostReturnExceedingOriginalIsValidation(t *testing.T) {
	ts := newTestServer(t)

	rec, body := ts.do(t, http.MethodPost, "/v1/bills/9/returns", map[string]any{
		"lines": []map[string]any{{"line_index": 0, "quantity": 5}},
	})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	fields := body["error"].(map[string]any)["errors"].([]any)
	assert.Equal(t, "return_exceeds_original", fields[0].(map[string]any)["code"])
}

func TestUnknownRouteIsNotFound(t *testing.T) {
	ts := newTestServer(t)

	rec, body := ts.do(t, http.MethodGet, "/v1/nothing-here", nil)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", errorType(t, body))
}

func TestSecurityHeadersAreSet(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(SecurityHeaders(false))
	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusOK) })

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
}

func TestSecurityHeadersRedirectPlainHTTPInProduction(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(SecurityHeaders(true))
	called := false
	r.GET("/v1/bills", func(c *gin.Context) {
		called = true
		c.Status(http.StatusOK)
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "http://billbook.local/v1/bills", nil))

	assert.Equal(t, http.StatusMovedPermanently, rec.Code)
	assert.False(t, called)
}
