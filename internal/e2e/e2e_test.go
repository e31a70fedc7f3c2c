package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/billbook/internal/clock"
	"github.com/smallbiznis/billbook/internal/config"
	"github.com/smallbiznis/billbook/internal/migration"
	"github.com/smallbiznis/billbook/internal/observability"
	"github.com/smallbiznis/billbook/internal/partylock"
	"github.com/smallbiznis/billbook/internal/server"
	"github.com/smallbiznis/billbook/pkg/db"
	"go.uber.org/fx"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

const orgHeader = "7001"

type testEnv struct {
	app     *fx.App
	db      *gorm.DB
	redis   *miniredis.Miniredis
	baseURL string
	httpSrv *httptest.Server
	workDir string
}

var env *testEnv

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)

	var err error
	env, err = startEnv()
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to start test environment:", err)
		os.Exit(1)
	}

	code := m.Run()
	env.shutdown()
	os.Exit(code)
}

func startEnv() (*testEnv, error) {
	workDir, err := os.MkdirTemp("", "billbook-e2e-")
	if err != nil {
		return nil, err
	}
	redisSrv, err := miniredis.Run()
	if err != nil {
		return nil, err
	}

	setEnv := map[string]string{
		"ENVIRONMENT":            "test",
		"LOG_LEVEL":              "error",
		"HTTP_ADDR":              "127.0.0.1:0",
		"DATABASE_TYPE":          "sqlite",
		"DATABASE_PATH":          filepath.Join(workDir, "billbook.db"),
		"DATABASE_MAX_OPEN_CONN": "1",
		"DATABASE_MIGRATE":       "true",
		"REDIS_ADDR":             redisSrv.Addr(),
		"ENGINE_CONFIG_PATHS":    workDir,
	}
	for key, value := range setEnv {
		if err := os.Setenv(key, value); err != nil {
			return nil, err
		}
	}

	var (
		srv    *server.Server
		dbConn *gorm.DB
	)
	app := fx.New(
		fx.NopLogger,
		config.Module,
		observability.Module,
		db.Module,
		migration.Module,
		clock.Module,
		partylock.Module,
		fx.Provide(func() (*snowflake.Node, error) { return snowflake.NewNode(3) }),
		server.Module,
		fx.Populate(&srv, &dbConn),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := app.Start(ctx); err != nil {
		redisSrv.Close()
		return nil, err
	}

	httpSrv := httptest.NewServer(srv.Engine())
	return &testEnv{
		app:     app,
		db:      dbConn,
		redis:   redisSrv,
		baseURL: httpSrv.URL,
		httpSrv: httpSrv,
		workDir: workDir,
	}, nil
}

func (e *testEnv) shutdown() {
	if e == nil {
		return
	}
	if e.httpSrv != nil {
		e.httpSrv.Close()
	}
	if e.app != nil {
		_ = e.app.Stop(context.Background())
	}
	if e.redis != nil {
		e.redis.Close()
	}
	_ = os.RemoveAll(e.workDir)
}

func resetDatabase(t *testing.T) {
	t.Helper()
	for _, table := range []string{"payments", "bill_lines", "party_ledger_entries", "bills", "parties", "tax_rates", "audit_logs"} {
		if err := env.db.Exec("DELETE FROM " + table).Error; err != nil {
			t.Fatalf("reset %s: %v", table, err)
		}
	}
}

func doJSON(t *testing.T, method, path string, payload any) (int, map[string]any) {
	t.Helper()

	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("encode json: %v", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(method, env.baseURL+path, body)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set(server.HeaderOrg, orgHeader)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read response: %v", err)
	}
	var decoded map[string]any
	if len(data) > 0 {
		if err := json.Unmarshal(data, &decoded); err != nil {
			t.Fatalf("decode %s: %v", string(data), err)
		}
	}
	return resp.StatusCode, decoded
}

func mustStatus(t *testing.T, want, got int, body map[string]any) {
	t.Helper()
	if got != want {
		t.Fatalf("expected status %d, got %d: %v", want, got, body)
	}
}

func data(body map[string]any) map[string]any {
	return body["data"].(map[string]any)
}

func decimalField(t *testing.T, obj map[string]any, key string) decimal.Decimal {
	t.Helper()
	raw, ok := obj[key]
	if !ok {
		t.Fatalf("missing %s in %v", key, obj)
	}
	value, err := decimal.NewFromString(fmt.Sprint(raw))
	if err != nil {
		t.Fatalf("parse %s=%v: %v", key, raw, err)
	}
	return value
}

func assertDecimal(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	if !got.Equal(decimal.RequireFromString(want)) {
		t.Fatalf("expected %s, got %s", want, got.String())
	}
}

func registerParty(t *testing.T, role string) string {
	t.Helper()
	status, body := doJSON(t, http.MethodPost, "/v1/parties", map[string]any{
		"display_name": fmt.Sprintf("%s %d", role, time.Now().UnixNano()),
		"role":         role,
	})
	mustStatus(t, http.StatusCreated, status, body)
	return data(body)["id"].(string)
}

func partyBalance(t *testing.T, partyID string) decimal.Decimal {
	t.Helper()
	status, body := doJSON(t, http.MethodGet, "/v1/parties/"+partyID+"/balance", nil)
	mustStatus(t, http.StatusOK, status, body)
	return decimalField(t, data(body), "running_balance")
}

func replayConsistent(t *testing.T, partyID string) map[string]any {
	t.Helper()
	status, body := doJSON(t, http.MethodPost, "/v1/parties/"+partyID+"/replay", nil)
	mustStatus(t, http.StatusOK, status, body)
	result := data(body)
	if result["consistent"] != true {
		t.Fatalf("expected consistent replay, got %v", result)
	}
	return result
}

func saleBill(partyID string, tendered string, payment map[string]any) map[string]any {
	req := map[string]any{
		"direction":    "sale",
		"party_id":     partyID,
		"jurisdiction": "intrastate",
		"lines": []map[string]any{
			{"product_ref": "SKU-1", "description": "Widget", "quantity": 2, "unit_price": "100", "gst_rate": "18"},
		},
	}
	if tendered != "" {
		req["amount_tendered"] = tendered
	}
	if payment != nil {
		req["payment"] = payment
	}
	return req
}

func TestE2E_HealthCheck(t *testing.T) {
	resp, err := http.Get(env.baseURL + "/healthz")
	if err != nil {
		t.Fatalf("health request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.StatusCode)
	}
}

func TestE2E_BillPaymentAndCancellation(t *testing.T) {
	resetDatabase(t)
	partyID := registerParty(t, "customer")

	status, body := doJSON(t, http.MethodPost, "/v1/bills", saleBill(partyID, "100", map[string]any{
		"mode": "upi",
		"upi":  map[string]any{"utr": "412345678901"},
	}))
	mustStatus(t, http.StatusCreated, status, body)
	created := data(body)
	bill := created["bill"].(map[string]any)
	billID := bill["id"].(string)
	assertDecimal(t, "236", decimalField(t, bill, "grand_total"))
	assertDecimal(t, "18", decimalField(t, bill, "cgst_total"))
	assertDecimal(t, "136", decimalField(t, created, "remaining"))
	if created["payment_status"] != "advance" {
		t.Fatalf("expected advance, got %v", created["payment_status"])
	}
	assertDecimal(t, "136", partyBalance(t, partyID))

	status, body = doJSON(t, http.MethodPost, "/v1/payments", map[string]any{
		"party_id":  partyID,
		"direction": "sale",
		"amount":    "136",
		"bill_id":   billID,
		"details":   map[string]any{"mode": "cash"},
	})
	mustStatus(t, http.StatusCreated, status, body)
	assertDecimal(t, "0", decimalField(t, data(body), "new_running_balance"))

	status, body = doJSON(t, http.MethodGet, "/v1/bills/"+billID, nil)
	mustStatus(t, http.StatusOK, status, body)
	if data(body)["payment_status"] != "full" {
		t.Fatalf("expected bill fully paid, got %v", data(body))
	}

	status, body = doJSON(t, http.MethodGet, "/v1/bills/"+billID+"/payments", nil)
	mustStatus(t, http.StatusOK, status, body)
	if n := len(body["data"].([]any)); n != 2 {
		t.Fatalf("expected 2 payments on the bill, got %d", n)
	}

	status, body = doJSON(t, http.MethodPost, "/v1/bills/"+billID+"/cancel", nil)
	mustStatus(t, http.StatusOK, status, body)
	assertDecimal(t, "-236", partyBalance(t, partyID))

	status, body = doJSON(t, http.MethodPost, "/v1/bills/"+billID+"/cancel", nil)
	mustStatus(t, http.StatusConflict, status, body)

	replay := replayConsistent(t, partyID)
	if replay["entries"] != float64(4) {
		t.Fatalf("expected 4 ledger entries, got %v", replay["entries"])
	}

	status, body = doJSON(t, http.MethodGet, "/v1/parties/"+partyID+"/ledger?page_size=2", nil)
	mustStatus(t, http.StatusOK, status, body)
	pageInfo := body["page_info"].(map[string]any)
	if pageInfo["has_more"] != true {
		t.Fatalf("expected a second ledger page, got %v", pageInfo)
	}
}

func TestE2E_PurchaseReturn(t *testing.T) {
	resetDatabase(t)
	vendorID := registerParty(t, "vendor")

	status, body := doJSON(t, http.MethodPost, "/v1/bills", map[string]any{
		"direction":    "purchase",
		"party_id":     vendorID,
		"jurisdiction": "interstate",
		"lines": []map[string]any{
			{"product_ref": "RAW-1", "quantity": 10, "unit_price": "50", "gst_rate": "5"},
		},
	})
	mustStatus(t, http.StatusCreated, status, body)
	billID := data(body)["bill"].(map[string]any)["id"].(string)
	assertDecimal(t, "525", partyBalance(t, vendorID))

	status, body = doJSON(t, http.MethodPost, "/v1/bills/"+billID+"/returns", map[string]any{
		"lines": []map[string]any{{"line_index": 0, "quantity": 4}},
	})
	mustStatus(t, http.StatusCreated, status, body)
	returnBill := data(body)["return_bill"].(map[string]any)
	assertDecimal(t, "210", decimalField(t, returnBill, "grand_total"))
	assertDecimal(t, "10", decimalField(t, returnBill, "igst_total"))
	assertDecimal(t, "315", partyBalance(t, vendorID))

	status, body = doJSON(t, http.MethodPost, "/v1/bills/"+billID+"/returns", map[string]any{
		"lines": []map[string]any{{"line_index": 0, "quantity": 7}},
	})
	mustStatus(t, http.StatusBadRequest, status, body)

	status, body = doJSON(t, http.MethodPost, "/v1/bills/"+billID+"/cancel", nil)
	mustStatus(t, http.StatusConflict, status, body)

	replayConsistent(t, vendorID)
}

func TestE2E_OrganizationDefaultTaxRate(t *testing.T) {
	resetDatabase(t)
	partyID := registerParty(t, "customer")

	status, body := doJSON(t, http.MethodPost, "/v1/tax-rates", map[string]any{
		"code":         "gst12",
		"name":         "GST 12%",
		"rate_percent": "12",
		"is_default":   true,
	})
	mustStatus(t, http.StatusCreated, status, body)

	status, body = doJSON(t, http.MethodPost, "/v1/bills", map[string]any{
		"direction":    "sale",
		"party_id":     partyID,
		"jurisdiction": "interstate",
		"lines": []map[string]any{
			{"product_ref": "SKU-9", "quantity": 1, "unit_price": "1000"},
		},
	})
	mustStatus(t, http.StatusCreated, status, body)
	bill := data(body)["bill"].(map[string]any)
	assertDecimal(t, "120", decimalField(t, bill, "igst_total"))
	assertDecimal(t, "1120", decimalField(t, bill, "grand_total"))
}

func TestE2E_ConcurrentPaymentsSettleExactly(t *testing.T) {
	resetDatabase(t)
	partyID := registerParty(t, "customer")

	status, body := doJSON(t, http.MethodPost, "/v1/bills", saleBill(partyID, "", nil))
	mustStatus(t, http.StatusCreated, status, body)

	const workers = 8
	g, ctx := errgroup.WithContext(context.Background())
	for i := 0; i < workers; i++ {
		g.Go(func() error {
			raw, err := json.Marshal(map[string]any{
				"party_id":  partyID,
				"direction": "sale",
				"amount":    "12.50",
				"details":   map[string]any{"mode": "cash"},
			})
			if err != nil {
				return err
			}
			req, err := http.NewRequestWithContext(ctx, http.MethodPost, env.baseURL+"/v1/payments", bytes.NewReader(raw))
			if err != nil {
				return err
			}
			req.Header.Set("Content-Type", "application/json")
			req.Header.Set(server.HeaderOrg, orgHeader)
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusCreated {
				return fmt.Errorf("payment status %d", resp.StatusCode)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("concurrent payments: %v", err)
	}

	assertDecimal(t, "136", partyBalance(t, partyID))
	replay := replayConsistent(t, partyID)
	if replay["entries"] != float64(workers+1) {
		t.Fatalf("expected %d entries, got %v", workers+1, replay["entries"])
	}
}

func TestE2E_ValidationLeavesNothingBehind(t *testing.T) {
	resetDatabase(t)
	partyID := registerParty(t, "customer")

	status, body := doJSON(t, http.MethodPost, "/v1/bills", map[string]any{
		"direction":    "purchase",
		"party_id":     partyID,
		"jurisdiction": "intrastate",
		"lines": []map[string]any{
			{"quantity": 1, "unit_price": "10", "gst_rate": "18"},
		},
	})
	mustStatus(t, http.StatusBadRequest, status, body)

	status, body = doJSON(t, http.MethodPost, "/v1/bills", map[string]any{
		"direction":    "sale",
		"party_id":     "123456789",
		"jurisdiction": "intrastate",
		"lines": []map[string]any{
			{"quantity": 1, "unit_price": "10", "gst_rate": "18"},
		},
	})
	mustStatus(t, http.StatusNotFound, status, body)

	var bills int64
	if err := env.db.Table("bills").Count(&bills).Error; err != nil {
		t.Fatalf("count bills: %v", err)
	}
	if bills != 0 {
		t.Fatalf("expected no persisted bills, got %d", bills)
	}
	assertDecimal(t, "0", partyBalance(t, partyID))
}

func TestE2E_AuditLog(t *testing.T) {
	resetDatabase(t)
	partyID := registerParty(t, "customer")

	status, body := doJSON(t, http.MethodPost, "/v1/bills", saleBill(partyID, "", nil))
	mustStatus(t, http.StatusCreated, status, body)

	status, body = doJSON(t, http.MethodGet, "/v1/audit-logs?action=bill.created", nil)
	mustStatus(t, http.StatusOK, status, body)
	if n := len(body["data"].([]any)); n != 1 {
		t.Fatalf("expected one bill.created audit log, got %d", n)
	}
}
