package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"catatusaha/backend/internal/cache"
	"catatusaha/backend/internal/service"
	"catatusaha/backend/internal/store/memory"
)

const testSecret = "test-secret-key-at-least-32-chars!"

// newTestAPI builds a full API with an in-memory store and a real Service so
// handler tests exercise the complete request path.
func newTestAPI(t *testing.T) *API {
	t.Helper()

	svc := service.New(memory.New(), cache.NoopSuggestionCache{}, 5*time.Second, 10)
	return New(svc, NewTokenVerifier(testSecret), "*")
}

func mintToken(t *testing.T, userID string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  userID,
		"name": "Owner",
		"exp":  time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func doJSON(t *testing.T, handler http.Handler, method, path, token string, payload any) *httptest.ResponseRecorder {
	t.Helper()
	var body *bytes.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal payload: %v", err)
		}
		body = bytes.NewReader(raw)
	} else {
		body = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	return body
}

func TestHandleHealth(t *testing.T) {
	handler := newTestAPI(t).Handler()

	rec := doJSON(t, handler, http.MethodGet, "/healthz", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if decodeBody(t, rec)["ok"] != true {
		t.Fatal("expected ok:true")
	}
}

func TestAuthRequired(t *testing.T) {
	handler := newTestAPI(t).Handler()

	rec := doJSON(t, handler, http.MethodGet, "/api/v1/catalog/search?kind=sale&input=rice", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}

	rec = doJSON(t, handler, http.MethodGet, "/api/v1/catalog/search?kind=sale&input=rice", "not-a-jwt", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for garbage token, got %d", rec.Code)
	}
}

func TestRejectsTokenSignedWithWrongSecret(t *testing.T) {
	handler := newTestAPI(t).Handler()

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "user-1",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte("some-other-secret-that-is-32-chars"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	rec := doJSON(t, handler, http.MethodGet, "/api/v1/catalog/search?kind=sale&input=rice", signed, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestCatalogSearch(t *testing.T) {
	handler := newTestAPI(t).Handler()
	token := mintToken(t, "user-1")

	rec := doJSON(t, handler, http.MethodGet, "/api/v1/catalog/search?kind=sale&input=rice", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	data, ok := decodeBody(t, rec)["data"].([]any)
	if !ok || len(data) != 2 {
		t.Fatalf("expected 2 catalog entries, got %v", data)
	}

	rec = doJSON(t, handler, http.MethodGet, "/api/v1/catalog/search?kind=refund&input=rice", token, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unknown kind: expected 400, got %d", rec.Code)
	}
}

func TestEntryLifecycleOverHTTP(t *testing.T) {
	handler := newTestAPI(t).Handler()
	token := mintToken(t, "user-1")

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/entries", token, map[string]string{"kind": "sale"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create entry: expected 201, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	entry := decodeBody(t, rec)["data"].(map[string]any)
	entryID := entry["id"].(string)
	rows := entry["rows"].([]any)
	rowID := rows[0].(map[string]any)["row_id"].(string)

	base := "/api/v1/entries/" + entryID

	rec = doJSON(t, handler, http.MethodPatch, base+"/rows/"+rowID, token, map[string]string{"field": "name", "value": "Rice ~ kg"})
	if rec.Code != http.StatusOK {
		t.Fatalf("edit name: expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	rec = doJSON(t, handler, http.MethodPatch, base+"/rows/"+rowID, token, map[string]string{"field": "price", "value": "100.00"})
	if rec.Code != http.StatusOK {
		t.Fatalf("edit price: got %d", rec.Code)
	}
	rec = doJSON(t, handler, http.MethodPatch, base+"/rows/"+rowID, token, map[string]string{"field": "quantity", "value": "2"})
	if rec.Code != http.StatusOK {
		t.Fatalf("edit quantity: got %d", rec.Code)
	}

	rec = doJSON(t, handler, http.MethodPut, base+"/rate", token, map[string]int{"comm_perc": 20})
	if rec.Code != http.StatusOK {
		t.Fatalf("set rate: got %d (body: %s)", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, handler, http.MethodPost, base+"/submit", token, map[string]string{"date": "2026-08-30"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("submit: expected 201, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	view := decodeBody(t, rec)["data"].(map[string]any)
	if view["state"] != "committed" {
		t.Fatalf("state = %v", view["state"])
	}
	totals := view["totals"].(map[string]any)
	if fmt.Sprint(totals["subtotal"]) != "0" {
		t.Fatalf("ledger should reset after commit, subtotal = %v", totals["subtotal"])
	}

	rec = doJSON(t, handler, http.MethodGet, "/api/v1/transactions?kind=sale&from=2026-08-01&to=2026-08-31", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list: got %d", rec.Code)
	}
	listed := decodeBody(t, rec)["data"].([]any)
	if len(listed) != 1 {
		t.Fatalf("listed = %v", listed)
	}
	txID := listed[0].(map[string]any)["id"].(string)

	rec = doJSON(t, handler, http.MethodGet, "/api/v1/transactions/"+txID+"/details?kind=sale", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("details: got %d (body: %s)", rec.Code, rec.Body.String())
	}
	detail := decodeBody(t, rec)["data"].(map[string]any)
	if fmt.Sprint(detail["comm_total"]) != "40" {
		t.Fatalf("comm_total = %v", detail["comm_total"])
	}
	if fmt.Sprint(detail["amount"]) != "160" {
		t.Fatalf("amount = %v", detail["amount"])
	}
}

func TestSubmitEmptyEntryReturns422(t *testing.T) {
	handler := newTestAPI(t).Handler()
	token := mintToken(t, "user-1")

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/entries", token, map[string]string{"kind": "sale"})
	entryID := decodeBody(t, rec)["data"].(map[string]any)["id"].(string)

	rec = doJSON(t, handler, http.MethodPost, "/api/v1/entries/"+entryID+"/submit", token, map[string]string{})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d (body: %s)", rec.Code, rec.Body.String())
	}
}

func TestInvalidRateReturns400(t *testing.T) {
	handler := newTestAPI(t).Handler()
	token := mintToken(t, "user-1")

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/entries", token, map[string]string{"kind": "sale"})
	entryID := decodeBody(t, rec)["data"].(map[string]any)["id"].(string)

	rec = doJSON(t, handler, http.MethodPut, "/api/v1/entries/"+entryID+"/rate", token, map[string]int{"comm_perc": 25})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestForeignEntryReturns404(t *testing.T) {
	handler := newTestAPI(t).Handler()

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/entries", mintToken(t, "user-1"), map[string]string{"kind": "sale"})
	entryID := decodeBody(t, rec)["data"].(map[string]any)["id"].(string)

	rec = doJSON(t, handler, http.MethodGet, "/api/v1/entries/"+entryID, mintToken(t, "user-2"), nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestDashboardInvalidRangeReturns400WithEmptiedData(t *testing.T) {
	handler := newTestAPI(t).Handler()
	token := mintToken(t, "user-1")

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/entries", token, map[string]string{"kind": "sale"})
	entryID := decodeBody(t, rec)["data"].(map[string]any)["id"].(string)

	rec = doJSON(t, handler, http.MethodGet, "/api/v1/entries/"+entryID+"/dashboard?kind=sale&from=2026-08-31&to=2026-08-01", token, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	body := decodeBody(t, rec)
	dash, ok := body["data"].(map[string]any)
	if !ok {
		t.Fatalf("body = %v", body)
	}
	if rows, ok := dash["transactions"].([]any); !ok || len(rows) != 0 {
		t.Fatalf("transactions = %v", dash["transactions"])
	}
}

func TestStatelessSubmitDivergentTotalsReturns400(t *testing.T) {
	handler := newTestAPI(t).Handler()
	token := mintToken(t, "user-1")

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/transactions", token, map[string]any{
		"kind": "sale",
		"date": "2026-08-30",
		"smry": []map[string]any{
			{"name": "Rice ~ kg", "price": "100.00", "quantity": "2"},
		},
		"subtotal":         "200.00",
		"comm_perc":        20,
		"commission_total": "40.00",
		"grand_total":      "999.00",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d (body: %s)", rec.Code, rec.Body.String())
	}
}

func TestStatelessSubmitPersists(t *testing.T) {
	handler := newTestAPI(t).Handler()
	token := mintToken(t, "user-1")

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/transactions", token, map[string]any{
		"kind": "sale",
		"date": "2026-08-30",
		"smry": []map[string]any{
			{"name": "Rice ~ kg", "price": "100.00", "quantity": "2"},
		},
		"subtotal":         "200.00",
		"comm_perc":        20,
		"commission_total": "40.00",
		"grand_total":      "160.00",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if body["ok"] != true {
		t.Fatalf("body = %v", body)
	}
	data := body["data"].(map[string]any)
	if data["id"] == "" || data["id"] == nil {
		t.Fatalf("missing transaction id: %v", data)
	}
}

func TestCORSPreflight(t *testing.T) {
	handler := newTestAPI(t).Handler()

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/entries", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Fatalf("missing CORS origin header")
	}
	if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Fatalf("missing security headers")
	}
}

func TestUnknownEntryPathReturns404(t *testing.T) {
	handler := newTestAPI(t).Handler()
	token := mintToken(t, "user-1")

	rec := doJSON(t, handler, http.MethodGet, "/api/v1/entries/xyz/unknown", token, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}
