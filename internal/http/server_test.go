package http

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"tallyo/internal/core"
	"tallyo/internal/log"
	"tallyo/internal/services"
	"tallyo/internal/storage"
)

const (
	testSessionToken = "sess-tok"
	testAPIToken     = "api-tok"
)

func newTestServer(t *testing.T, opts Options) *Server {
	t.Helper()

	repo, err := storage.NewSQLiteRepository(":memory:")
	if err != nil {
		t.Fatalf("open repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	ctx := context.Background()
	if err := repo.CreateUser(ctx, storage.User{ID: "u1", Email: "u1@example.com"}); err != nil {
		t.Fatalf("seed user: %v", err)
	}
	if err := repo.CreateSession(ctx, "u1", testSessionToken, time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("seed session: %v", err)
	}
	if err := repo.CreateAPIToken(ctx, "u1", testAPIToken); err != nil {
		t.Fatalf("seed api token: %v", err)
	}

	logger := log.New(log.Config{Handler: slog.NewTextHandler(io.Discard, nil)})
	tx := services.NewTransactionService(repo, nil)
	rep := services.NewReportService(repo)
	imp := services.NewImportService(repo, nil)

	s := NewServer(":0", repo, tx, rep, imp, logger, opts)
	t.Cleanup(func() { s.Shutdown(context.Background()) })
	return s
}

func doJSON(t *testing.T, s *Server, method, path, body string, authed bool) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	r := httptest.NewRequest(method, path, reader)
	if body != "" {
		r.Header.Set("Content-Type", "application/json")
	}
	if authed {
		r.Header.Set("Authorization", "Bearer "+testSessionToken)
	}
	w := httptest.NewRecorder()
	s.Server.Handler.ServeHTTP(w, r)
	return w
}

func decodeResult(t *testing.T, w *httptest.ResponseRecorder) core.Result {
	t.Helper()
	var res core.Result
	if err := json.Unmarshal(w.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode result envelope: %v (body %q)", err, w.Body.String())
	}
	return res
}

func TestHealthEndpoints(t *testing.T) {
	s := newTestServer(t, Options{})

	if w := doJSON(t, s, "GET", "/healthz", "", false); w.Code != http.StatusOK {
		t.Fatalf("healthz = %d", w.Code)
	}
	if w := doJSON(t, s, "GET", "/readyz", "", false); w.Code != http.StatusOK {
		t.Fatalf("readyz = %d", w.Code)
	}
}

func TestUnauthorizedWithoutSession(t *testing.T) {
	s := newTestServer(t, Options{})

	paths := []struct{ method, path string }{
		{"GET", "/api/transactions"},
		{"POST", "/api/categories"},
		{"GET", "/api/charts/stats"},
	}
	for _, p := range paths {
		t.Run(p.method+" "+p.path, func(t *testing.T) {
			w := doJSON(t, s, p.method, p.path, "", false)
			if w.Code != http.StatusUnauthorized {
				t.Fatalf("status = %d, want 401", w.Code)
			}
			res := decodeResult(t, w)
			if res.OK || res.Message != "Unauthorized" {
				t.Fatalf("envelope = %+v", res)
			}
		})
	}
}

func TestTransactionLifecycle(t *testing.T) {
	s := newTestServer(t, Options{})

	// category used by the mutation below
	w := doJSON(t, s, "POST", "/api/categories", `{"name":"Groceries","color":"#00aa00"}`, true)
	if w.Code != http.StatusCreated {
		t.Fatalf("create category = %d: %s", w.Code, w.Body.String())
	}
	var cat core.Category
	if err := json.Unmarshal(w.Body.Bytes(), &cat); err != nil {
		t.Fatalf("decode category: %v", err)
	}

	w = doJSON(t, s, "POST", "/api/transactions", `{"date":"2026-08-12","vendor":"ACME MARKET 0042","amount":-1250}`, true)
	if w.Code != http.StatusCreated {
		t.Fatalf("create transaction = %d: %s", w.Code, w.Body.String())
	}
	var created core.Transaction
	if err := json.Unmarshal(w.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode transaction: %v", err)
	}
	if created.ID == "" || created.UserID != "u1" {
		t.Fatalf("created transaction = %+v", created)
	}

	w = doJSON(t, s, "POST", "/api/transactions/"+created.ID+"/category",
		fmt.Sprintf(`{"categoryId":%q}`, cat.ID), true)
	if res := decodeResult(t, w); w.Code != http.StatusOK || !res.OK {
		t.Fatalf("set category = %d %+v", w.Code, res)
	}

	w = doJSON(t, s, "POST", "/api/transactions/"+created.ID+"/description", `{"description":"weekly shop"}`, true)
	if res := decodeResult(t, w); w.Code != http.StatusOK || !res.OK {
		t.Fatalf("set description = %d %+v", w.Code, res)
	}

	w = doJSON(t, s, "GET", "/api/transactions", "", true)
	if w.Code != http.StatusOK {
		t.Fatalf("list = %d", w.Code)
	}
	var rows []core.TransactionView
	if err := json.Unmarshal(w.Body.Bytes(), &rows); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("list rows = %d, want 1", len(rows))
	}
	if rows[0].Category == nil || rows[0].Category.Name != "Groceries" {
		t.Fatalf("joined category = %+v", rows[0].Category)
	}
	if rows[0].Description == nil || *rows[0].Description != "weekly shop" {
		t.Fatalf("description = %v", rows[0].Description)
	}

	w = doJSON(t, s, "GET", "/api/transactions/unreviewed-count", "", true)
	var count map[string]int64
	if err := json.Unmarshal(w.Body.Bytes(), &count); err != nil {
		t.Fatalf("decode count: %v", err)
	}
	if count["count"] != 1 {
		t.Fatalf("unreviewed count = %d, want 1", count["count"])
	}

	w = doJSON(t, s, "POST", "/api/transactions/"+created.ID+"/reviewed", `{"reviewed":true}`, true)
	if res := decodeResult(t, w); !res.OK {
		t.Fatalf("set reviewed = %+v", res)
	}

	w = doJSON(t, s, "GET", "/api/transactions/unreviewed-count", "", true)
	count = nil
	if err := json.Unmarshal(w.Body.Bytes(), &count); err != nil {
		t.Fatalf("decode count: %v", err)
	}
	if count["count"] != 0 {
		t.Fatalf("unreviewed count after review = %d, want 0", count["count"])
	}

	w = doJSON(t, s, "DELETE", "/api/transactions/"+created.ID, "", true)
	if res := decodeResult(t, w); w.Code != http.StatusOK || !res.OK {
		t.Fatalf("delete = %d %+v", w.Code, res)
	}

	w = doJSON(t, s, "DELETE", "/api/transactions/"+created.ID, "", true)
	if w.Code != http.StatusNotFound {
		t.Fatalf("double delete = %d, want 404", w.Code)
	}
}

func TestSuggestCategoryEndpoint(t *testing.T) {
	s := newTestServer(t, Options{})

	w := doJSON(t, s, "POST", "/api/categories", `{"name":"Coffee","color":"#8b4513"}`, true)
	var cat core.Category
	if err := json.Unmarshal(w.Body.Bytes(), &cat); err != nil {
		t.Fatalf("decode category: %v", err)
	}

	var lastID string
	for i := 0; i < 3; i++ {
		w = doJSON(t, s, "POST", "/api/transactions",
			fmt.Sprintf(`{"date":"2026-08-%02d","vendor":"COFFEE BAR","amount":-400}`, 10+i), true)
		var tx core.Transaction
		if err := json.Unmarshal(w.Body.Bytes(), &tx); err != nil {
			t.Fatalf("decode transaction: %v", err)
		}
		lastID = tx.ID
		if i < 2 {
			doJSON(t, s, "POST", "/api/transactions/"+tx.ID+"/category",
				fmt.Sprintf(`{"categoryId":%q}`, cat.ID), true)
		}
	}

	w = doJSON(t, s, "GET", "/api/transactions/"+lastID+"/suggest-category", "", true)
	if w.Code != http.StatusOK {
		t.Fatalf("suggest = %d", w.Code)
	}
	var suggestion map[string]*string
	if err := json.Unmarshal(w.Body.Bytes(), &suggestion); err != nil {
		t.Fatalf("decode suggestion: %v", err)
	}
	if got := suggestion["categoryId"]; got == nil || *got != cat.ID {
		t.Fatalf("suggestion = %v, want %s", got, cat.ID)
	}

	// unknown transaction suggests nothing rather than failing
	w = doJSON(t, s, "GET", "/api/transactions/nope/suggest-category", "", true)
	if w.Code != http.StatusOK {
		t.Fatalf("suggest unknown = %d", w.Code)
	}
	suggestion = nil
	if err := json.Unmarshal(w.Body.Bytes(), &suggestion); err != nil {
		t.Fatalf("decode suggestion: %v", err)
	}
	if suggestion["categoryId"] != nil {
		t.Fatalf("suggestion for unknown transaction = %v", *suggestion["categoryId"])
	}
}

func TestSplitEndpoint(t *testing.T) {
	s := newTestServer(t, Options{})

	w := doJSON(t, s, "POST", "/api/transactions", `{"date":"2026-08-12","vendor":"SUPERSTORE","amount":-3000}`, true)
	var tx core.Transaction
	if err := json.Unmarshal(w.Body.Bytes(), &tx); err != nil {
		t.Fatalf("decode transaction: %v", err)
	}

	w = doJSON(t, s, "POST", "/api/transactions/"+tx.ID+"/split", `{"firstAmount":-1000,"secondAmount":-1000}`, true)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("mismatched split = %d, want 400: %s", w.Code, w.Body.String())
	}

	w = doJSON(t, s, "POST", "/api/transactions/"+tx.ID+"/split", `{"firstAmount":-1000,"secondAmount":-2000}`, true)
	if w.Code != http.StatusOK {
		t.Fatalf("split = %d: %s", w.Code, w.Body.String())
	}
	var res splitResponse
	if err := json.Unmarshal(w.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode split response: %v", err)
	}
	if !res.OK || res.Transaction == nil || res.Transaction.AmountCents != -2000 {
		t.Fatalf("split response = %+v", res)
	}

	w = doJSON(t, s, "GET", "/api/transactions", "", true)
	var rows []core.TransactionView
	if err := json.Unmarshal(w.Body.Bytes(), &rows); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	var sum int64
	for _, row := range rows {
		sum += row.AmountCents
	}
	if len(rows) != 2 || sum != -3000 {
		t.Fatalf("after split: %d rows summing %d", len(rows), sum)
	}
}

func TestCategoryConflict(t *testing.T) {
	s := newTestServer(t, Options{})

	body := `{"name":"Rent","color":"#336699"}`
	if w := doJSON(t, s, "POST", "/api/categories", body, true); w.Code != http.StatusCreated {
		t.Fatalf("first create = %d", w.Code)
	}

	w := doJSON(t, s, "POST", "/api/categories", body, true)
	if w.Code != http.StatusConflict {
		t.Fatalf("duplicate create = %d, want 409", w.Code)
	}
	res := decodeResult(t, w)
	if res.OK || res.Message != "A category with this name already exists." {
		t.Fatalf("conflict envelope = %+v", res)
	}
}

func TestCategoryValidation(t *testing.T) {
	s := newTestServer(t, Options{})

	w := doJSON(t, s, "POST", "/api/categories", `{"name":"","color":"#123456"}`, true)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("empty name = %d, want 400", w.Code)
	}

	w = doJSON(t, s, "POST", "/api/categories", `{"name":"Stuff","color":"123456"}`, true)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("bad color = %d, want 400", w.Code)
	}
}

func TestUpdateCategoryNotFound(t *testing.T) {
	s := newTestServer(t, Options{})

	w := doJSON(t, s, "POST", "/api/categories/nope", `{"name":"Renamed","color":"#112233"}`, true)
	if w.Code != http.StatusNotFound {
		t.Fatalf("update unknown category = %d, want 404", w.Code)
	}
}

func TestPayeeEndpoints(t *testing.T) {
	s := newTestServer(t, Options{})

	w := doJSON(t, s, "POST", "/api/payees", `{"name":"Electric Co"}`, true)
	if w.Code != http.StatusCreated {
		t.Fatalf("create payee = %d: %s", w.Code, w.Body.String())
	}
	var p core.Payee
	if err := json.Unmarshal(w.Body.Bytes(), &p); err != nil {
		t.Fatalf("decode payee: %v", err)
	}

	if w = doJSON(t, s, "POST", "/api/payees/"+p.ID+"/keywords", `{"keyword":"electric"}`, true); w.Code != http.StatusOK {
		t.Fatalf("add keyword = %d", w.Code)
	}

	w = doJSON(t, s, "GET", "/api/payees/"+p.ID, "", true)
	var got core.Payee
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode payee: %v", err)
	}
	if len(got.Keywords) != 1 || got.Keywords[0] != "electric" {
		t.Fatalf("keywords = %v", got.Keywords)
	}

	if w = doJSON(t, s, "DELETE", "/api/payees/"+p.ID+"/keywords", `{"keyword":"electric"}`, true); w.Code != http.StatusOK {
		t.Fatalf("remove keyword = %d", w.Code)
	}
	if w = doJSON(t, s, "DELETE", "/api/payees/"+p.ID+"/keywords", `{"keyword":"electric"}`, true); w.Code != http.StatusNotFound {
		t.Fatalf("remove absent keyword = %d, want 404", w.Code)
	}
}

func TestImportEndpoint(t *testing.T) {
	s := newTestServer(t, Options{})

	rows := `[{"date":"2026-08-12","vendor":"BANK A","amount":-100,"externalId":"e1"},
	          {"date":"2026-08-13","vendor":"BANK B","amount":-200,"externalId":"e2"}]`

	r := httptest.NewRequest("POST", "/api/transactions/import", strings.NewReader(rows))
	r.Header.Set("Authorization", "Bearer wrong")
	w := httptest.NewRecorder()
	s.Server.Handler.ServeHTTP(w, r)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("wrong token = %d, want 401", w.Code)
	}

	importReq := func(body string) *httptest.ResponseRecorder {
		r := httptest.NewRequest("POST", "/api/transactions/import", strings.NewReader(body))
		r.Header.Set("Authorization", "Bearer "+testAPIToken)
		w := httptest.NewRecorder()
		s.Server.Handler.ServeHTTP(w, r)
		return w
	}

	w2 := importReq(`[{"date":"2026-08-12","vendor":"","amount":-100,"externalId":"e1"}]`)
	if w2.Code != http.StatusBadRequest {
		t.Fatalf("invalid row = %d, want 400: %s", w2.Code, w2.Body.String())
	}

	w2 = importReq(rows)
	if w2.Code != http.StatusOK {
		t.Fatalf("import = %d: %s", w2.Code, w2.Body.String())
	}
	if res := decodeResult(t, w2); !res.OK || res.Message != "2" {
		t.Fatalf("import envelope = %+v", res)
	}

	// replaying the same batch inserts nothing
	w2 = importReq(rows)
	if res := decodeResult(t, w2); !res.OK || res.Message != "0" {
		t.Fatalf("replay envelope = %+v", res)
	}
}

func TestChartsEndpoints(t *testing.T) {
	s := newTestServer(t, Options{})

	doJSON(t, s, "POST", "/api/transactions", `{"date":"2026-08-12","vendor":"SHOP","amount":-500}`, true)

	w := doJSON(t, s, "GET", "/api/charts/stats", "", true)
	var stats storage.SummaryStats
	if err := json.Unmarshal(w.Body.Bytes(), &stats); err != nil {
		t.Fatalf("decode stats: %v", err)
	}
	if stats.Count != 1 || stats.Expenses != 500 {
		t.Fatalf("stats = %+v", stats)
	}

	for _, path := range []string{
		"/api/charts/category-breakdown",
		"/api/charts/income-vs-expense",
		"/api/charts/monthly-expense?months=3",
	} {
		if w := doJSON(t, s, "GET", path, "", true); w.Code != http.StatusOK {
			t.Fatalf("%s = %d", path, w.Code)
		}
	}

	if w := doJSON(t, s, "GET", "/api/charts/monthly-expense?months=0", "", true); w.Code != http.StatusBadRequest {
		t.Fatalf("months=0 = %d, want 400", w.Code)
	}

	// writes invalidate the cached projection
	doJSON(t, s, "POST", "/api/transactions", `{"date":"2026-08-13","vendor":"SHOP","amount":-300}`, true)
	w = doJSON(t, s, "GET", "/api/charts/stats", "", true)
	if err := json.Unmarshal(w.Body.Bytes(), &stats); err != nil {
		t.Fatalf("decode stats: %v", err)
	}
	if stats.Count != 2 || stats.Expenses != 800 {
		t.Fatalf("stats after write = %+v", stats)
	}
}

func TestRateLimitOnWrites(t *testing.T) {
	s := newTestServer(t, Options{RateLimitPerMinute: 2})

	body := `{"date":"2026-08-12","vendor":"SHOP","amount":-100}`
	for i := 0; i < 2; i++ {
		if w := doJSON(t, s, "POST", "/api/transactions", body, true); w.Code != http.StatusCreated {
			t.Fatalf("request %d = %d", i, w.Code)
		}
	}

	w := doJSON(t, s, "POST", "/api/transactions", body, true)
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("over limit = %d, want 429", w.Code)
	}
	if w.Header().Get("Retry-After") != "60" {
		t.Fatalf("Retry-After = %q", w.Header().Get("Retry-After"))
	}

	// reads are not rate limited
	if w := doJSON(t, s, "GET", "/api/transactions", "", true); w.Code != http.StatusOK {
		t.Fatalf("read after limit = %d", w.Code)
	}
}

func TestSecurityHeaders(t *testing.T) {
	s := newTestServer(t, Options{})

	w := doJSON(t, s, "GET", "/api/transactions", "", true)
	if got := w.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Fatalf("X-Content-Type-Options = %q", got)
	}
	if got := w.Header().Get("X-Frame-Options"); got != "DENY" {
		t.Fatalf("X-Frame-Options = %q", got)
	}
}

func TestMalformedJSONBody(t *testing.T) {
	s := newTestServer(t, Options{})

	w := doJSON(t, s, "POST", "/api/transactions", `{"date":`, true)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("malformed body = %d, want 400", w.Code)
	}
}
