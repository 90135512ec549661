// Package httpapi is the HTTP boundary: routing, auth, JSON codecs, and the
// mapping from service sentinel errors to response statuses.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"catatusaha/backend/internal/domain"
	"catatusaha/backend/internal/ledger"
	"catatusaha/backend/internal/reports"
	"catatusaha/backend/internal/service"
	"catatusaha/backend/internal/session"
	"catatusaha/backend/internal/store"
)

type API struct {
	service       *service.Service
	verifier      *TokenVerifier
	allowedOrigin string
}

func New(svc *service.Service, verifier *TokenVerifier, allowedOrigin string) *API {
	return &API{
		service:       svc,
		verifier:      verifier,
		allowedOrigin: allowedOrigin,
	}
}

func (a *API) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", a.handleHealth)

	mux.HandleFunc("/api/v1/catalog/search", a.requireAuth(a.handleCatalogSearch))
	mux.HandleFunc("/api/v1/transactions", a.requireAuth(a.handleTransactions))
	mux.HandleFunc("/api/v1/transactions/", a.requireAuth(a.handleTransactionActions))
	mux.HandleFunc("/api/v1/reports/overall", a.requireAuth(a.handleOverallReport))
	mux.HandleFunc("/api/v1/reports/itemwise", a.requireAuth(a.handleItemWiseReport))
	mux.HandleFunc("/api/v1/reports/expensewise", a.requireAuth(a.handleExpenseWiseReport))
	mux.HandleFunc("/api/v1/entries", a.requireAuth(a.handleEntries))
	mux.HandleFunc("/api/v1/entries/", a.requireAuth(a.handleEntryActions))

	return a.withMiddleware(mux)
}

func (a *API) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		authorization := strings.TrimSpace(r.Header.Get("Authorization"))
		if !strings.HasPrefix(strings.ToLower(authorization), "bearer ") {
			writeError(w, http.StatusUnauthorized, errors.New("missing bearer token"))
			return
		}

		token := strings.TrimSpace(authorization[len("Bearer "):])
		actor, err := a.verifier.Verify(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, err)
			return
		}

		next(w, r.WithContext(service.WithActor(r.Context(), actor)))
	}
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"ok": true,
		"at": time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *API) handleCatalogSearch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	entries, err := a.service.SearchCatalog(r.Context(), r.URL.Query().Get("kind"), r.URL.Query().Get("input"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": entries})
}

func (a *API) handleTransactions(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		q := r.URL.Query()
		rows, err := a.service.ListTransactions(r.Context(), q.Get("kind"), q.Get("from"), q.Get("to"))
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"data": rows})
	case http.MethodPost:
		var req domain.TransactionSubmitRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}

		created, err := a.service.SubmitTransaction(r.Context(), req)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, domain.TransactionSubmitResponse{Ok: true, Data: created})
	default:
		writeMethodNotAllowed(w)
	}
}

// handleTransactionActions serves /api/v1/transactions/{id}/details.
func (a *API) handleTransactionActions(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/v1/transactions/")
	parts := strings.Split(strings.Trim(rest, "/"), "/")
	if len(parts) != 2 || parts[1] != "details" || parts[0] == "" {
		writeError(w, http.StatusNotFound, errors.New("not found"))
		return
	}
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	detail, err := a.service.TransactionDetail(r.Context(), r.URL.Query().Get("kind"), parts[0])
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": detail})
}

func (a *API) handleOverallReport(w http.ResponseWriter, r *http.Request) {
	a.handleSummaryReport(w, r, a.service.OverallSales)
}

func (a *API) handleItemWiseReport(w http.ResponseWriter, r *http.Request) {
	a.handleSummaryReport(w, r, a.service.ItemWiseSales)
}

func (a *API) handleExpenseWiseReport(w http.ResponseWriter, r *http.Request) {
	a.handleSummaryReport(w, r, a.service.ExpenseWiseSales)
}

func (a *API) handleSummaryReport(w http.ResponseWriter, r *http.Request, query func(ctx context.Context, from, to string) ([]domain.ReportSummaryRow, error)) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	rows, err := query(r.Context(), r.URL.Query().Get("from"), r.URL.Query().Get("to"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": rows})
}

func (a *API) handleEntries(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}

	var req struct {
		Kind string `json:"kind"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	view, err := a.service.CreateEntry(r.Context(), req.Kind)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"data": view})
}

// handleEntryActions routes everything under /api/v1/entries/{id}/...
func (a *API) handleEntryActions(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/v1/entries/")
	parts := strings.Split(strings.Trim(rest, "/"), "/")
	if len(parts) == 0 || parts[0] == "" {
		writeError(w, http.StatusNotFound, errors.New("not found"))
		return
	}
	entryID := parts[0]

	switch {
	case len(parts) == 1:
		a.handleEntry(w, r, entryID)
	case len(parts) == 2 && parts[1] == "rows":
		a.handleEntryRows(w, r, entryID)
	case len(parts) == 3 && parts[1] == "rows":
		a.handleEntryRow(w, r, entryID, parts[2])
	case len(parts) == 4 && parts[1] == "rows" && parts[3] == "resolve":
		a.handleEntryRowResolve(w, r, entryID, parts[2])
	case len(parts) == 2 && parts[1] == "rate":
		a.handleEntryRate(w, r, entryID)
	case len(parts) == 2 && parts[1] == "submit":
		a.handleEntrySubmit(w, r, entryID)
	case len(parts) == 2 && parts[1] == "dashboard":
		a.handleEntryDashboard(w, r, entryID)
	case len(parts) == 3 && parts[1] == "dashboard" && parts[2] == "transactions":
		a.handleEntryDashboardReload(w, r, entryID)
	case len(parts) == 2 && parts[1] == "drilldown":
		a.handleEntryDrilldown(w, r, entryID)
	default:
		writeError(w, http.StatusNotFound, errors.New("not found"))
	}
}

func (a *API) handleEntry(w http.ResponseWriter, r *http.Request, entryID string) {
	switch r.Method {
	case http.MethodGet:
		view, err := a.service.GetEntry(r.Context(), entryID)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"data": view})
	case http.MethodDelete:
		if err := a.service.DiscardEntry(r.Context(), entryID); err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleEntryRows(w http.ResponseWriter, r *http.Request, entryID string) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}

	view, err := a.service.AddRow(r.Context(), entryID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"data": view})
}

func (a *API) handleEntryRow(w http.ResponseWriter, r *http.Request, entryID string, rowID string) {
	switch r.Method {
	case http.MethodPatch:
		var req struct {
			Field string `json:"field"`
			Value string `json:"value"`
		}
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}

		view, err := a.service.EditRow(r.Context(), entryID, rowID, req.Field, req.Value)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"data": view})
	case http.MethodDelete:
		view, err := a.service.RemoveRow(r.Context(), entryID, rowID)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"data": view})
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleEntryRowResolve(w http.ResponseWriter, r *http.Request, entryID string, rowID string) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}

	var req struct {
		EntryID string `json:"entry_id"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	view, err := a.service.ResolveSuggestion(r.Context(), entryID, rowID, req.EntryID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": view})
}

func (a *API) handleEntryRate(w http.ResponseWriter, r *http.Request, entryID string) {
	if r.Method != http.MethodPut {
		writeMethodNotAllowed(w)
		return
	}

	var req struct {
		CommissionRate int `json:"comm_perc"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	view, err := a.service.SetRate(r.Context(), entryID, req.CommissionRate)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": view})
}

func (a *API) handleEntrySubmit(w http.ResponseWriter, r *http.Request, entryID string) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}

	var req struct {
		Date string `json:"date"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	view, err := a.service.SubmitEntry(r.Context(), entryID, req.Date)
	if err != nil {
		// The snapshot still carries the preserved ledger so the
		// client can re-render and retry.
		writeJSON(w, statusFor(err), map[string]any{"error": err.Error(), "data": view})
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"data": view})
}

func (a *API) handleEntryDashboard(w http.ResponseWriter, r *http.Request, entryID string) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	q := r.URL.Query()
	dash, err := a.service.Dashboard(r.Context(), entryID, q.Get("kind"), q.Get("from"), q.Get("to"))
	if err != nil {
		if errors.Is(err, reports.ErrInvalidRange) {
			// The emptied dashboard still renders; the client shows
			// the range error alongside it.
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error(), "data": dash})
			return
		}
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": dash})
}

func (a *API) handleEntryDashboardReload(w http.ResponseWriter, r *http.Request, entryID string) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}

	dash, err := a.service.ReloadTransactions(r.Context(), entryID, r.URL.Query().Get("kind"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": dash})
}

func (a *API) handleEntryDrilldown(w http.ResponseWriter, r *http.Request, entryID string) {
	switch r.Method {
	case http.MethodPost:
		var req struct {
			Kind          string `json:"kind"`
			TransactionID string `json:"transaction_id"`
		}
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}

		detail, err := a.service.OpenDrilldown(r.Context(), entryID, req.Kind, req.TransactionID)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"data": detail})
	case http.MethodDelete:
		if err := a.service.CloseDrilldown(r.Context(), entryID); err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Access-Control-Allow-Origin", a.allowedOrigin)
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PUT,PATCH,DELETE,OPTIONS")
		w.Header().Set("Vary", "Origin")

		if r.Method == http.MethodPost || r.Method == http.MethodPut || r.Method == http.MethodPatch {
			r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		startedAt := time.Now()
		next.ServeHTTP(w, r)
		log.Printf("%s %s %s", r.Method, r.URL.Path, time.Since(startedAt))
	})
}

// statusFor maps service sentinel errors to response statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, session.ErrSubmitInFlight):
		return http.StatusConflict
	case errors.Is(err, session.ErrEmptyTransaction):
		return http.StatusUnprocessableEntity
	case errors.Is(err, store.ErrInvalidPayload),
		errors.Is(err, reports.ErrInvalidRange),
		errors.Is(err, ledger.ErrUnknownField),
		errors.Is(err, ledger.ErrUnknownRow),
		errors.Is(err, session.ErrInvalidRate):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeServiceError(w http.ResponseWriter, err error) {
	writeError(w, statusFor(err), err)
}

func decodeJSON(r *http.Request, dest any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(dest)
}

func writeMethodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
}

func writeError(w http.ResponseWriter, status int, err error) {
	// 4xx messages are user-facing; 5xx responses get a generic message so
	// internal details never leak.
	msg := err.Error()
	if status >= 500 {
		log.Printf("internal error (status %d): %v", status, err)
		msg = "internal server error"
	}
	writeJSON(w, status, map[string]any{
		"error": msg,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
