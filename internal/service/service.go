// Package service coordinates the entry sessions, the catalog suggestion
// pipeline, report loading, and transaction persistence behind one API the
// HTTP layer calls into.
package service

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"catatusaha/backend/internal/cache"
	"catatusaha/backend/internal/domain"
	"catatusaha/backend/internal/ledger"
	"catatusaha/backend/internal/reports"
	"catatusaha/backend/internal/session"
	"catatusaha/backend/internal/settle"
	"catatusaha/backend/internal/store"
	"catatusaha/backend/internal/xid"
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

const dateLayout = "2006-01-02"

// entry bundles the per-terminal state: the ledger session plus that
// viewer's dashboard requestor and drill-down resolver.
type entry struct {
	sess      *session.Session
	requestor *reports.Requestor
	resolver  *reports.Resolver
	createdAt time.Time
}

type Service struct {
	repo          store.Repository
	suggestions   cache.SuggestionCache
	suggestionTTL time.Duration
	sessionLimit  int

	mu      sync.Mutex
	entries map[string]*entry
}

func New(repo store.Repository, suggestions cache.SuggestionCache, suggestionTTL time.Duration, sessionLimit int) *Service {
	if suggestions == nil {
		suggestions = cache.NoopSuggestionCache{}
	}
	if suggestionTTL <= 0 {
		suggestionTTL = 15 * time.Second
	}
	if sessionLimit < 1 {
		sessionLimit = 200
	}

	return &Service{
		repo:          repo,
		suggestions:   suggestions,
		suggestionTTL: suggestionTTL,
		sessionLimit:  sessionLimit,
		entries:       map[string]*entry{},
	}
}

// CreateEntry opens a fresh entry session for the authenticated actor. The
// oldest session is evicted once the limit is reached.
func (s *Service) CreateEntry(ctx context.Context, rawKind string) (session.View, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return session.View{}, fmt.Errorf("authenticated actor required")
	}
	kind, ok := domain.ParseKind(rawKind)
	if !ok {
		return session.View{}, store.ErrInvalidPayload
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.entries) >= s.sessionLimit {
		s.evictOldestLocked()
	}

	sess := session.New(xid.New("entry"), actor.UserID, kind)
	s.entries[sess.ID()] = &entry{
		sess:      sess,
		requestor: reports.NewRequestor(s.repo),
		resolver:  reports.NewResolver(s.repo),
		createdAt: time.Now().UTC(),
	}
	return sess.Snapshot(), nil
}

func (s *Service) evictOldestLocked() {
	var oldestID string
	var oldestAt time.Time
	for id, e := range s.entries {
		if oldestID == "" || e.createdAt.Before(oldestAt) {
			oldestID, oldestAt = id, e.createdAt
		}
	}
	if oldestID != "" {
		log.Printf("[service] session limit reached, evicting %s", oldestID)
		delete(s.entries, oldestID)
	}
}

func (s *Service) entryFor(ctx context.Context, sessionID string) (*entry, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return nil, fmt.Errorf("authenticated actor required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	e, found := s.entries[sessionID]
	if !found || e.sess.Owner() != actor.UserID {
		return nil, store.ErrNotFound
	}
	return e, nil
}

func (s *Service) GetEntry(ctx context.Context, sessionID string) (session.View, error) {
	e, err := s.entryFor(ctx, sessionID)
	if err != nil {
		return session.View{}, err
	}
	return e.sess.Snapshot(), nil
}

func (s *Service) DiscardEntry(ctx context.Context, sessionID string) error {
	if _, err := s.entryFor(ctx, sessionID); err != nil {
		return err
	}

	s.mu.Lock()
	delete(s.entries, sessionID)
	s.mu.Unlock()
	return nil
}

func (s *Service) AddRow(ctx context.Context, sessionID string) (session.View, error) {
	e, err := s.entryFor(ctx, sessionID)
	if err != nil {
		return session.View{}, err
	}
	if _, err := e.sess.AddRow(); err != nil {
		return session.View{}, err
	}
	return e.sess.Snapshot(), nil
}

func (s *Service) RemoveRow(ctx context.Context, sessionID string, rowID string) (session.View, error) {
	e, err := s.entryFor(ctx, sessionID)
	if err != nil {
		return session.View{}, err
	}
	if err := e.sess.RemoveRow(rowID); err != nil {
		return session.View{}, err
	}
	return e.sess.Snapshot(), nil
}

// EditRow applies one field edit. A name edit re-keys the suggestion slot
// and triggers a catalog lookup; the lookup result is installed only if
// still current when it lands.
func (s *Service) EditRow(ctx context.Context, sessionID string, rowID string, field string, value string) (session.View, error) {
	e, err := s.entryFor(ctx, sessionID)
	if err != nil {
		return session.View{}, err
	}

	edit, err := ledger.ParseFieldEdit(field, value)
	if err != nil {
		return session.View{}, err
	}

	_, ticket, err := e.sess.EditRow(rowID, edit)
	if err != nil {
		return session.View{}, err
	}
	if ticket != nil {
		entries, lookupErr := s.lookupSuggestions(ctx, e.sess.Kind(), ticket.Query)
		if lookupErr != nil {
			log.Printf("[service] suggestion lookup %q failed: %v", ticket.Query, lookupErr)
		} else {
			e.sess.ApplySuggestions(*ticket, entries)
		}
	}
	return e.sess.Snapshot(), nil
}

func (s *Service) ResolveSuggestion(ctx context.Context, sessionID string, rowID string, entryID string) (session.View, error) {
	e, err := s.entryFor(ctx, sessionID)
	if err != nil {
		return session.View{}, err
	}
	if _, err := e.sess.ResolveSuggestion(rowID, entryID); err != nil {
		return session.View{}, err
	}
	return e.sess.Snapshot(), nil
}

func (s *Service) SetRate(ctx context.Context, sessionID string, rate int) (session.View, error) {
	e, err := s.entryFor(ctx, sessionID)
	if err != nil {
		return session.View{}, err
	}
	if err := e.sess.SetRate(rate); err != nil {
		return session.View{}, err
	}
	return e.sess.Snapshot(), nil
}

// SubmitEntry runs the session's submit protocol against the repository.
// The session's own state machine guards double submits and empty ledgers.
func (s *Service) SubmitEntry(ctx context.Context, sessionID string, rawDate string) (session.View, error) {
	e, err := s.entryFor(ctx, sessionID)
	if err != nil {
		return session.View{}, err
	}

	date := time.Now().UTC().Truncate(24 * time.Hour)
	if strings.TrimSpace(rawDate) != "" {
		date, err = time.Parse(dateLayout, rawDate)
		if err != nil {
			return session.View{}, store.ErrInvalidPayload
		}
	}

	_, err = e.sess.Submit(ctx, session.SubmitterFunc(s.repo.CreateTransaction), date)
	if err != nil {
		return e.sess.Snapshot(), err
	}
	return e.sess.Snapshot(), nil
}

// SubmitTransaction is the stateless boundary submit: the caller sends rows
// plus the totals it computed, and the service re-derives the totals and
// rejects the payload if they diverge.
func (s *Service) SubmitTransaction(ctx context.Context, req domain.TransactionSubmitRequest) (*domain.Transaction, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return nil, fmt.Errorf("authenticated actor required")
	}
	kind, ok := domain.ParseKind(req.Kind)
	if !ok {
		return nil, store.ErrInvalidPayload
	}
	if !domain.ValidCommissionRate(req.CommissionRate) && !(kind == domain.KindExpense && req.CommissionRate == 0) {
		return nil, session.ErrInvalidRate
	}

	date := time.Now().UTC().Truncate(24 * time.Hour)
	if strings.TrimSpace(req.Date) != "" {
		parsed, err := time.Parse(dateLayout, req.Date)
		if err != nil {
			return nil, store.ErrInvalidPayload
		}
		date = parsed
	}

	rows := make([]domain.LineItem, 0, len(req.LineItems))
	lines := make([]domain.TransactionLine, 0, len(req.LineItems))
	for _, item := range req.LineItems {
		row := domain.LineItem{
			ReferenceID: item.ReferenceID,
			Name:        item.Name,
			UnitPrice:   item.UnitPrice,
			Quantity:    item.Quantity,
			LineTotal:   item.UnitPrice.Mul(item.Quantity),
		}
		rows = append(rows, row)
		if row.Effective() {
			lines = append(lines, domain.TransactionLine{
				ReferenceID: row.ReferenceID,
				Name:        strings.TrimSpace(row.Name),
				UnitPrice:   row.UnitPrice,
				Quantity:    row.Quantity,
				LineTotal:   row.LineTotal,
			})
		}
	}
	if len(lines) == 0 {
		return nil, session.ErrEmptyTransaction
	}

	totals := settle.Rounded(settle.Compute(rows, kind, req.CommissionRate))
	if !totals.Subtotal.Equal(req.Subtotal) || !totals.CommissionTotal.Equal(req.CommissionTotal) || !totals.GrandTotal.Equal(req.GrandTotal) {
		return nil, store.ErrInvalidPayload
	}

	return s.repo.CreateTransaction(ctx, domain.Transaction{
		Kind:            kind,
		Date:            date,
		OwnerUserID:     actor.UserID,
		LineItems:       lines,
		Subtotal:        totals.Subtotal,
		CommissionRate:  totals.CommissionRate,
		CommissionTotal: totals.CommissionTotal,
		GrandTotal:      totals.GrandTotal,
	})
}

// SearchCatalog serves the suggestion endpoint directly. Results are cached
// by kind and normalized query; cache failures fall through to the store.
func (s *Service) SearchCatalog(ctx context.Context, rawKind string, query string) ([]domain.CatalogEntry, error) {
	kind, ok := domain.ParseKind(rawKind)
	if !ok {
		return nil, store.ErrInvalidPayload
	}
	return s.lookupSuggestions(ctx, kind, query)
}

func (s *Service) lookupSuggestions(ctx context.Context, kind domain.Kind, query string) ([]domain.CatalogEntry, error) {
	trimmed := strings.TrimSpace(query)
	if trimmed == "" {
		return []domain.CatalogEntry{}, nil
	}

	key := fmt.Sprintf("sugg:%s:%s", kind, strings.ToLower(trimmed))
	if cached, hit, err := s.suggestions.Get(ctx, key); err != nil {
		log.Printf("[service] suggestion cache get failed: %v", err)
	} else if hit {
		return cached, nil
	}

	entries, err := s.repo.SearchCatalog(ctx, kind, trimmed)
	if err != nil {
		return nil, err
	}
	if entries == nil {
		entries = []domain.CatalogEntry{}
	}
	if err := s.suggestions.Set(ctx, key, entries, s.suggestionTTL); err != nil {
		log.Printf("[service] suggestion cache set failed: %v", err)
	}
	return entries, nil
}

// Dashboard loads all four report slots for a session's viewer and returns
// the resulting view. An inverted range returns the emptied dashboard along
// with reports.ErrInvalidRange.
func (s *Service) Dashboard(ctx context.Context, sessionID string, rawKind string, rawFrom string, rawTo string) (domain.Dashboard, error) {
	e, err := s.entryFor(ctx, sessionID)
	if err != nil {
		return domain.EmptyDashboard(), err
	}
	kind, ok := domain.ParseKind(rawKind)
	if !ok {
		return domain.EmptyDashboard(), store.ErrInvalidPayload
	}
	// The range check is the requestor's: an inverted range must also
	// reset its slots, not just fail.
	from, to, err := parseDates(rawFrom, rawTo)
	if err != nil {
		return domain.EmptyDashboard(), err
	}

	loadErr := e.requestor.Load(ctx, kind, from, to)
	return e.requestor.View(), loadErr
}

func (s *Service) ReloadTransactions(ctx context.Context, sessionID string, rawKind string) (domain.Dashboard, error) {
	e, err := s.entryFor(ctx, sessionID)
	if err != nil {
		return domain.EmptyDashboard(), err
	}
	kind, ok := domain.ParseKind(rawKind)
	if !ok {
		return domain.EmptyDashboard(), store.ErrInvalidPayload
	}

	reloadErr := e.requestor.ReloadTransactions(ctx, kind)
	return e.requestor.View(), reloadErr
}

func (s *Service) OpenDrilldown(ctx context.Context, sessionID string, rawKind string, transactionID string) (domain.TransactionDetail, error) {
	e, err := s.entryFor(ctx, sessionID)
	if err != nil {
		return domain.TransactionDetail{}, err
	}
	kind, ok := domain.ParseKind(rawKind)
	if !ok {
		return domain.TransactionDetail{}, store.ErrInvalidPayload
	}

	if err := e.resolver.Open(ctx, kind, transactionID); err != nil {
		return domain.TransactionDetail{}, err
	}
	detail, _ := e.resolver.Current()
	return detail, nil
}

func (s *Service) CloseDrilldown(ctx context.Context, sessionID string) error {
	e, err := s.entryFor(ctx, sessionID)
	if err != nil {
		return err
	}
	e.resolver.Close()
	return nil
}

// The four raw report reads back the stateless GET endpoints. Unlike the
// session dashboard they fail fast on the first error.

func (s *Service) OverallSales(ctx context.Context, rawFrom string, rawTo string) ([]domain.ReportSummaryRow, error) {
	_, from, to, err := parseReportArgs("sale", rawFrom, rawTo)
	if err != nil {
		return nil, err
	}
	rows, err := s.repo.OverallSales(ctx, from, to)
	return emptyIfNilSummary(rows), err
}

func (s *Service) ItemWiseSales(ctx context.Context, rawFrom string, rawTo string) ([]domain.ReportSummaryRow, error) {
	_, from, to, err := parseReportArgs("sale", rawFrom, rawTo)
	if err != nil {
		return nil, err
	}
	rows, err := s.repo.ItemWiseSales(ctx, from, to)
	return emptyIfNilSummary(rows), err
}

func (s *Service) ExpenseWiseSales(ctx context.Context, rawFrom string, rawTo string) ([]domain.ReportSummaryRow, error) {
	_, from, to, err := parseReportArgs("sale", rawFrom, rawTo)
	if err != nil {
		return nil, err
	}
	rows, err := s.repo.ExpenseWiseSales(ctx, from, to)
	return emptyIfNilSummary(rows), err
}

func (s *Service) ListTransactions(ctx context.Context, rawKind string, rawFrom string, rawTo string) ([]domain.TransactionSummaryRow, error) {
	kind, from, to, err := parseReportArgs(rawKind, rawFrom, rawTo)
	if err != nil {
		return nil, err
	}
	rows, err := s.repo.ListTransactions(ctx, kind, from, to)
	if rows == nil {
		rows = []domain.TransactionSummaryRow{}
	}
	return rows, err
}

func (s *Service) TransactionDetail(ctx context.Context, rawKind string, id string) (domain.TransactionDetail, error) {
	kind, ok := domain.ParseKind(rawKind)
	if !ok {
		return domain.TransactionDetail{}, store.ErrInvalidPayload
	}
	return s.repo.TransactionDetail(ctx, kind, id)
}

// parseReportArgs normalizes the query-string report arguments. Blank dates
// default to today, matching the dashboard's initial load.
func parseReportArgs(rawKind string, rawFrom string, rawTo string) (domain.Kind, time.Time, time.Time, error) {
	kind, ok := domain.ParseKind(rawKind)
	if !ok {
		return "", time.Time{}, time.Time{}, store.ErrInvalidPayload
	}
	from, to, err := parseDates(rawFrom, rawTo)
	if err != nil {
		return "", time.Time{}, time.Time{}, err
	}
	if from.After(to) {
		return "", time.Time{}, time.Time{}, reports.ErrInvalidRange
	}
	return kind, from, to, nil
}

func parseDates(rawFrom string, rawTo string) (time.Time, time.Time, error) {
	today := time.Now().UTC().Truncate(24 * time.Hour)
	from, to := today, today
	var err error
	if strings.TrimSpace(rawFrom) != "" {
		if from, err = time.Parse(dateLayout, rawFrom); err != nil {
			return time.Time{}, time.Time{}, store.ErrInvalidPayload
		}
	}
	if strings.TrimSpace(rawTo) != "" {
		if to, err = time.Parse(dateLayout, rawTo); err != nil {
			return time.Time{}, time.Time{}, store.ErrInvalidPayload
		}
	}
	return from, to, nil
}

func emptyIfNilSummary(rows []domain.ReportSummaryRow) []domain.ReportSummaryRow {
	if rows == nil {
		return []domain.ReportSummaryRow{}
	}
	return rows
}
