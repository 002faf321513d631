package http

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"finledger/internal/engine"
	"finledger/internal/reports"
	"finledger/internal/storage"
)

type fixture struct {
	ts *httptest.Server

	userID            string
	accountID         string
	savingsID         string
	expenseCategoryID string
	incomeCategoryID  string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	repo, err := storage.NewRepository(filepath.Join(t.TempDir(), "api.db"))
	if err != nil {
		t.Fatalf("open repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	eng := engine.New(repo, repo, repo, repo, repo, repo, nil)
	srv := NewServer(":0", eng, repo, reports.New(repo))

	f := &fixture{ts: httptest.NewServer(srv.Handler)}
	t.Cleanup(f.ts.Close)

	f.userID = f.post(t, "/api/users", `{"name":"Ada","email":"ada@example.com"}`)["ID"].(string)
	f.accountID = f.post(t, "/api/accounts",
		fmt.Sprintf(`{"user_id":%q,"name":"checking","balance":"500.00"}`, f.userID))["ID"].(string)
	f.savingsID = f.post(t, "/api/accounts",
		fmt.Sprintf(`{"user_id":%q,"name":"savings","balance":"150.00"}`, f.userID))["ID"].(string)
	f.expenseCategoryID = f.post(t, "/api/categories",
		fmt.Sprintf(`{"user_id":%q,"name":"Groceries","type":"EXPENSE"}`, f.userID))["ID"].(string)
	f.incomeCategoryID = f.post(t, "/api/categories",
		fmt.Sprintf(`{"user_id":%q,"name":"Salary","type":"INCOME"}`, f.userID))["ID"].(string)
	return f
}

func (f *fixture) do(t *testing.T, method, path, body string) (*http.Response, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(method, f.ts.URL+path, bytes.NewBufferString(body))
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := f.ts.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	var payload map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&payload)
	return resp, payload
}

func (f *fixture) post(t *testing.T, path, body string) map[string]any {
	t.Helper()
	resp, payload := f.do(t, http.MethodPost, path, body)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("POST %s: status %d (%v)", path, resp.StatusCode, payload)
	}
	return payload
}

func (f *fixture) accountBalance(t *testing.T, accountID string) string {
	t.Helper()
	resp, payload := f.do(t, http.MethodGet, "/api/accounts/"+accountID, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get account: status %d", resp.StatusCode)
	}
	return payload["Balance"].(string)
}

func (f *fixture) expenseBody(amount string) string {
	return fmt.Sprintf(`{"user_id":%q,"account_id":%q,"category_id":%q,"amount":%q,"type":"EXPENSE","occurred_at":"2024-06-15"}`,
		f.userID, f.accountID, f.expenseCategoryID, amount)
}

func TestPostTransactionAdjustsBalance(t *testing.T) {
	f := newFixture(t)

	resp, payload := f.do(t, http.MethodPost, "/api/transactions", f.expenseBody("120.50"))
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status %d (%v)", resp.StatusCode, payload)
	}
	if payload["amount"] != "120.5" {
		t.Fatalf("amount = %v", payload["amount"])
	}

	if got := f.accountBalance(t, f.accountID); got != "379.5" {
		t.Fatalf("balance = %s", got)
	}
}

func TestDeleteTransactionRestoresBalance(t *testing.T) {
	f := newFixture(t)

	_, payload := f.do(t, http.MethodPost, "/api/transactions", f.expenseBody("120.50"))
	id := payload["id"].(string)

	resp, _ := f.do(t, http.MethodDelete, "/api/transactions/"+id, "")
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("delete status %d", resp.StatusCode)
	}
	if got := f.accountBalance(t, f.accountID); got != "500" {
		t.Fatalf("balance after reversal = %s", got)
	}

	resp, _ = f.do(t, http.MethodDelete, "/api/transactions/"+id, "")
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("second delete status %d", resp.StatusCode)
	}
}

func TestBudgetExceededMapsTo400(t *testing.T) {
	f := newFixture(t)
	f.post(t, "/api/budgets", fmt.Sprintf(
		`{"user_id":%q,"category_id":%q,"year":2024,"month":6,"amount":"200.00"}`,
		f.userID, f.expenseCategoryID))

	resp, _ := f.do(t, http.MethodPost, "/api/transactions", f.expenseBody("150.00"))
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("first expense: status %d", resp.StatusCode)
	}

	resp, payload := f.do(t, http.MethodPost, "/api/transactions", f.expenseBody("60.00"))
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("over-budget expense: status %d (%v)", resp.StatusCode, payload)
	}
}

func TestTransferViaAPI(t *testing.T) {
	f := newFixture(t)

	body := fmt.Sprintf(
		`{"user_id":%q,"account_id":%q,"category_id":%q,"amount":"75.00","type":"TRANSFER","occurred_at":"2024-06-15","transfer_account_id":%q}`,
		f.userID, f.accountID, f.expenseCategoryID, f.savingsID)
	resp, payload := f.do(t, http.MethodPost, "/api/transactions", body)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status %d (%v)", resp.StatusCode, payload)
	}

	if got := f.accountBalance(t, f.accountID); got != "425" {
		t.Fatalf("source balance = %s", got)
	}
	if got := f.accountBalance(t, f.savingsID); got != "225" {
		t.Fatalf("destination balance = %s", got)
	}
}

func TestUpdateTransactionViaAPI(t *testing.T) {
	f := newFixture(t)

	_, payload := f.do(t, http.MethodPost, "/api/transactions", f.expenseBody("100.00"))
	id := payload["id"].(string)

	resp, updated := f.do(t, http.MethodPatch, "/api/transactions/"+id, `{"amount":"130.00"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("patch status %d (%v)", resp.StatusCode, updated)
	}
	if got := f.accountBalance(t, f.accountID); got != "370" {
		t.Fatalf("balance after amount edit = %s", got)
	}

	resp, _ = f.do(t, http.MethodPatch, "/api/transactions/"+id, `{}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("empty patch status %d", resp.StatusCode)
	}
}

func TestGetUnknownTransactionIs404(t *testing.T) {
	f := newFixture(t)
	resp, _ := f.do(t, http.MethodGet, "/api/transactions/00000000-0000-0000-0000-000000000001", "")
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status %d", resp.StatusCode)
	}
}

func TestMonthlyReportEndpoint(t *testing.T) {
	f := newFixture(t)

	f.do(t, http.MethodPost, "/api/transactions", f.expenseBody("100.00"))
	incomeBody := fmt.Sprintf(
		`{"user_id":%q,"account_id":%q,"category_id":%q,"amount":"2000.00","type":"INCOME","occurred_at":"2024-06-01"}`,
		f.userID, f.accountID, f.incomeCategoryID)
	f.do(t, http.MethodPost, "/api/transactions", incomeBody)

	resp, payload := f.do(t, http.MethodGet,
		"/api/reports/monthly?user="+f.userID+"&year=2024&month=6", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d (%v)", resp.StatusCode, payload)
	}
	if payload["income"] != "2000" || payload["expenses"] != "100" || payload["net"] != "1900" {
		t.Fatalf("rollups = %v / %v / %v", payload["income"], payload["expenses"], payload["net"])
	}
	if payload["period"] != "2024-06" {
		t.Fatalf("period = %v", payload["period"])
	}
}
