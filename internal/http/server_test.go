package http

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"movimenti/internal/cache"
	"movimenti/internal/core"
	"movimenti/internal/importer"
	"movimenti/internal/services"
	"movimenti/internal/storage"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewSQLiteRepository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	dashboards := services.NewDashboardService(repo,
		cache.NewLRUCache[core.Dashboard](100, 5*time.Minute),
		cache.NewLRUCache[[]core.Movement](200, 5*time.Minute))
	movements := services.NewMovementService(repo, nil, dashboards)
	budgets := services.NewBudgetService(repo)
	imp := importer.NewImporter(movements)

	srv := NewServer(":0", repo, movements, dashboards, budgets, imp)
	t.Cleanup(func() { srv.rateLimiter.stop() })
	return srv
}

func doRequest(t *testing.T, srv *Server, method, path, user, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if user != "" {
		req.Header.Set("X-User-ID", user)
	}
	rr := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, req)
	return rr
}

func decodeBody[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rr.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode response %q: %v", rr.Body.String(), err)
	}
	return v
}

func createAccountHTTP(t *testing.T, srv *Server, user string, initialCents int64) int64 {
	t.Helper()
	body := fmt.Sprintf(`{"name":"Checking","bank":"Test","initial_balance_cents":%d}`, initialCents)
	rr := doRequest(t, srv, http.MethodPost, "/api/accounts", user, body)
	if rr.Code != http.StatusCreated {
		t.Fatalf("create account status = %d: %s", rr.Code, rr.Body.String())
	}
	return decodeBody[accountPayload](t, rr).ID
}

func TestHealthEndpoints(t *testing.T) {
	srv := newTestServer(t)

	for _, path := range []string{"/healthz", "/readyz"} {
		rr := doRequest(t, srv, http.MethodGet, path, "", "")
		if rr.Code != http.StatusOK {
			t.Errorf("%s status = %d", path, rr.Code)
		}
	}
}

func TestAPIRequiresUser(t *testing.T) {
	srv := newTestServer(t)

	rr := doRequest(t, srv, http.MethodGet, "/api/movements", "", "")
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rr.Code)
	}
}

func TestMovementLifecycleOverHTTP(t *testing.T) {
	srv := newTestServer(t)

	accountID := createAccountHTTP(t, srv, "user-1", 5000)

	body := fmt.Sprintf(`{"date":"2026-08-10","description":"Groceries","kind":"expense","category_id":3,"amount":"12,50","payment_method":"card","origin_account_id":%d}`, accountID)
	rr := doRequest(t, srv, http.MethodPost, "/api/movements", "user-1", body)
	if rr.Code != http.StatusCreated {
		t.Fatalf("create status = %d: %s", rr.Code, rr.Body.String())
	}
	created := decodeBody[movementPayload](t, rr)
	if created.AmountCents != 1250 {
		t.Errorf("amount_cents = %d, want 1250", created.AmountCents)
	}
	if created.ReconciliationMonth != "2026-08" {
		t.Errorf("reconciliation_month = %s, want 2026-08", created.ReconciliationMonth)
	}

	// The balance reflects the expense.
	rr = doRequest(t, srv, http.MethodGet, fmt.Sprintf("/api/accounts/%d", accountID), "user-1", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("get account status = %d", rr.Code)
	}
	if got := decodeBody[accountPayload](t, rr).ComputedBalanceCents; got != 3750 {
		t.Errorf("balance = %d, want 3750", got)
	}

	// Patch the amount; untouched fields survive.
	rr = doRequest(t, srv, http.MethodPatch, fmt.Sprintf("/api/movements/%d", created.ID), "user-1",
		`{"amount_cents":500}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("patch status = %d: %s", rr.Code, rr.Body.String())
	}
	patched := decodeBody[movementPayload](t, rr)
	if patched.AmountCents != 500 || patched.Description != "Groceries" {
		t.Errorf("got %+v", patched)
	}

	rr = doRequest(t, srv, http.MethodGet, fmt.Sprintf("/api/accounts/%d", accountID), "user-1", "")
	if got := decodeBody[accountPayload](t, rr).ComputedBalanceCents; got != 4500 {
		t.Errorf("balance after patch = %d, want 4500", got)
	}

	// Delete restores the balance.
	rr = doRequest(t, srv, http.MethodDelete, fmt.Sprintf("/api/movements/%d", created.ID), "user-1", "")
	if rr.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d", rr.Code)
	}
	rr = doRequest(t, srv, http.MethodGet, fmt.Sprintf("/api/movements/%d", created.ID), "user-1", "")
	if rr.Code != http.StatusNotFound {
		t.Errorf("get after delete status = %d, want 404", rr.Code)
	}
	rr = doRequest(t, srv, http.MethodGet, fmt.Sprintf("/api/accounts/%d", accountID), "user-1", "")
	if got := decodeBody[accountPayload](t, rr).ComputedBalanceCents; got != 5000 {
		t.Errorf("balance after delete = %d, want 5000", got)
	}
}

func TestPatchClearsOptionalField(t *testing.T) {
	srv := newTestServer(t)

	accountID := createAccountHTTP(t, srv, "user-1", 0)

	body := fmt.Sprintf(`{"date":"2026-08-10","description":"Rate","kind":"expense","amount_cents":1000,"origin_account_id":%d,"installments":12}`, accountID)
	rr := doRequest(t, srv, http.MethodPost, "/api/movements", "user-1", body)
	if rr.Code != http.StatusCreated {
		t.Fatalf("create status = %d: %s", rr.Code, rr.Body.String())
	}
	created := decodeBody[movementPayload](t, rr)
	if created.Installments == nil || *created.Installments != 12 {
		t.Fatalf("installments = %v, want 12", created.Installments)
	}

	// Explicit null clears; the absent amount stays.
	rr = doRequest(t, srv, http.MethodPatch, fmt.Sprintf("/api/movements/%d", created.ID), "user-1",
		`{"installments":null}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("patch status = %d: %s", rr.Code, rr.Body.String())
	}
	patched := decodeBody[movementPayload](t, rr)
	if patched.Installments != nil {
		t.Errorf("installments = %v, want cleared", patched.Installments)
	}
	if patched.AmountCents != 1000 {
		t.Errorf("amount_cents = %d, want untouched 1000", patched.AmountCents)
	}
}

func TestMovementValidationStatus(t *testing.T) {
	srv := newTestServer(t)

	accountID := createAccountHTTP(t, srv, "user-1", 0)

	tests := []struct {
		name string
		body string
		want int
	}{
		{
			name: "malformed JSON",
			body: `{`,
			want: http.StatusBadRequest,
		},
		{
			name: "zero amount",
			body: fmt.Sprintf(`{"date":"2026-08-10","description":"x","kind":"expense","origin_account_id":%d}`, accountID),
			want: http.StatusUnprocessableEntity,
		},
		{
			name: "transfer to same account",
			body: fmt.Sprintf(`{"date":"2026-08-10","description":"x","kind":"transfer","amount_cents":100,"origin_account_id":%d,"destination_account_id":%d}`, accountID, accountID),
			want: http.StatusUnprocessableEntity,
		},
		{
			name: "unknown origin account",
			body: `{"date":"2026-08-10","description":"x","kind":"expense","amount_cents":100,"origin_account_id":999}`,
			want: http.StatusNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := doRequest(t, srv, http.MethodPost, "/api/movements", "user-1", tt.body)
			if rr.Code != tt.want {
				t.Errorf("status = %d, want %d: %s", rr.Code, tt.want, rr.Body.String())
			}
		})
	}
}

func TestMovementListFilters(t *testing.T) {
	srv := newTestServer(t)

	accountID := createAccountHTTP(t, srv, "user-1", 0)

	create := func(date, kind string, categoryID int64) {
		t.Helper()
		field := "origin_account_id"
		if kind == "income" {
			field = "destination_account_id"
		}
		body := fmt.Sprintf(`{"date":"%s","description":"m","kind":"%s","category_id":%d,"amount_cents":100,"%s":%d}`,
			date, kind, categoryID, field, accountID)
		rr := doRequest(t, srv, http.MethodPost, "/api/movements", "user-1", body)
		if rr.Code != http.StatusCreated {
			t.Fatalf("create status = %d: %s", rr.Code, rr.Body.String())
		}
	}

	create("2026-07-01", "expense", 1)
	create("2026-08-01", "expense", 1)
	create("2026-08-02", "income", 2)

	rr := doRequest(t, srv, http.MethodGet, "/api/movements", "user-1", "")
	if got := len(decodeBody[[]movementPayload](t, rr)); got != 3 {
		t.Errorf("unfiltered = %d, want 3", got)
	}

	rr = doRequest(t, srv, http.MethodGet, "/api/movements?year=2026&month=8", "user-1", "")
	if got := len(decodeBody[[]movementPayload](t, rr)); got != 2 {
		t.Errorf("august = %d, want 2", got)
	}

	rr = doRequest(t, srv, http.MethodGet, "/api/movements?year=2026&month=8&kind=expense", "user-1", "")
	if got := len(decodeBody[[]movementPayload](t, rr)); got != 1 {
		t.Errorf("august expenses = %d, want 1", got)
	}

	rr = doRequest(t, srv, http.MethodGet, "/api/movements?kind=bogus", "user-1", "")
	if rr.Code != http.StatusBadRequest {
		t.Errorf("bogus kind status = %d, want 400", rr.Code)
	}

	// Another user sees nothing.
	rr = doRequest(t, srv, http.MethodGet, "/api/movements", "user-2", "")
	if got := len(decodeBody[[]movementPayload](t, rr)); got != 0 {
		t.Errorf("user-2 movements = %d, want 0", got)
	}
}

func TestDashboardEndpoint(t *testing.T) {
	srv := newTestServer(t)

	accountID := createAccountHTTP(t, srv, "user-1", 10000)

	now := time.Now().UTC()
	body := fmt.Sprintf(`{"date":"%s","description":"Groceries","kind":"expense","category_id":3,"amount_cents":2500,"origin_account_id":%d}`,
		now.Format("2006-01-02"), accountID)
	rr := doRequest(t, srv, http.MethodPost, "/api/movements", "user-1", body)
	if rr.Code != http.StatusCreated {
		t.Fatalf("create status = %d: %s", rr.Code, rr.Body.String())
	}

	rr = doRequest(t, srv, http.MethodGet, "/api/dashboard", "user-1", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("dashboard status = %d", rr.Code)
	}
	d := decodeBody[dashboardPayload](t, rr)
	if d.TotalBalanceCents != 7500 {
		t.Errorf("total = %d, want 7500", d.TotalBalanceCents)
	}
	if len(d.CurrentMonth) != 1 {
		t.Errorf("current month = %d, want 1", len(d.CurrentMonth))
	}
	if len(d.History) != 6 {
		t.Errorf("history = %d months, want 6", len(d.History))
	}
	if len(d.TopCategories) != 1 || d.TopCategories[0].CategoryID != 3 {
		t.Errorf("top categories = %+v", d.TopCategories)
	}
}

func TestAccountWriteInvalidatesDashboard(t *testing.T) {
	srv := newTestServer(t)

	createAccountHTTP(t, srv, "user-1", 10000)

	// Populate the dashboard cache.
	rr := doRequest(t, srv, http.MethodGet, "/api/dashboard", "user-1", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("dashboard status = %d", rr.Code)
	}
	if got := decodeBody[dashboardPayload](t, rr).TotalBalanceCents; got != 10000 {
		t.Fatalf("total = %d, want 10000", got)
	}

	// A new account's initial balance must show up immediately, not
	// after TTL expiry.
	createAccountHTTP(t, srv, "user-1", 5000)

	rr = doRequest(t, srv, http.MethodGet, "/api/dashboard", "user-1", "")
	if got := decodeBody[dashboardPayload](t, rr).TotalBalanceCents; got != 15000 {
		t.Errorf("total after account create = %d, want 15000", got)
	}
}

func TestBudgetConflictStatus(t *testing.T) {
	srv := newTestServer(t)

	body := `{"category_id":3,"month":"2026-08","limit_cents":50000}`
	rr := doRequest(t, srv, http.MethodPost, "/api/budgets", "user-1", body)
	if rr.Code != http.StatusCreated {
		t.Fatalf("create status = %d: %s", rr.Code, rr.Body.String())
	}
	rr = doRequest(t, srv, http.MethodPost, "/api/budgets", "user-1", body)
	if rr.Code != http.StatusConflict {
		t.Errorf("duplicate status = %d, want 409", rr.Code)
	}

	rr = doRequest(t, srv, http.MethodGet, "/api/budgets?month=2026-08", "user-1", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("list status = %d", rr.Code)
	}
	if got := len(decodeBody[[]budgetStatusPayload](t, rr)); got != 1 {
		t.Errorf("budgets = %d, want 1", got)
	}
}

func TestImportEndpoint(t *testing.T) {
	srv := newTestServer(t)

	accountID := createAccountHTTP(t, srv, "user-1", 0)

	csvData := fmt.Sprintf(`date,description,kind,amount,category_id,payment_method,origin_account_id,destination_account_id
2026-08-01,Groceries,expense,12.50,3,card,%d,
bad-date,Broken,expense,1.00,,,%d,
`, accountID, accountID)

	rr := doRequest(t, srv, http.MethodPost, "/api/import", "user-1", csvData)
	if rr.Code != http.StatusOK {
		t.Fatalf("import status = %d: %s", rr.Code, rr.Body.String())
	}
	result := decodeBody[importer.Result](t, rr)
	if result.Imported != 1 || len(result.Failed) != 1 {
		t.Errorf("result = %+v, want 1 imported and 1 failed", result)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	srv := newTestServer(t)

	rr := doRequest(t, srv, http.MethodPut, "/api/movements", "user-1", "")
	if rr.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", rr.Code)
	}
	if got := rr.Header().Get("Allow"); got != "GET, POST" {
		t.Errorf("Allow = %q, want %q", got, "GET, POST")
	}
}
