// Package session hosts one terminal's in-progress transaction entry: the
// ledger being edited, the chosen kind and commission rate, and the submit
// state machine Idle -> Submitting -> {Committed | Failed}.
package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"catatusaha/backend/internal/domain"
	"catatusaha/backend/internal/ledger"
	"catatusaha/backend/internal/settle"
)

var (
	ErrEmptyTransaction = errors.New("nothing to submit")
	ErrSubmitInFlight   = errors.New("submission already in flight")
	ErrInvalidRate      = errors.New("commission rate not in allowed set")
)

// State is the submission protocol state. Committed and Failed are terminal
// for one submit attempt; any ledger mutation returns the session to Idle.
type State string

const (
	StateIdle       State = "idle"
	StateSubmitting State = "submitting"
	StateCommitted  State = "committed"
	StateFailed     State = "failed"
)

// Submitter persists a built transaction. It is called at most once per
// submit attempt: there is no automatic retry and no deduplication token,
// so a lost acknowledgment after a store-side commit surfaces as Failed.
// That inconsistency window is an accepted operational risk.
type Submitter interface {
	SubmitTransaction(ctx context.Context, tx domain.Transaction) (*domain.Transaction, error)
}

// SubmitterFunc adapts a function to the Submitter interface.
type SubmitterFunc func(ctx context.Context, tx domain.Transaction) (*domain.Transaction, error)

func (f SubmitterFunc) SubmitTransaction(ctx context.Context, tx domain.Transaction) (*domain.Transaction, error) {
	return f(ctx, tx)
}

// View is a read snapshot of a session for rendering.
type View struct {
	ID             string                `json:"id"`
	Kind           domain.Kind           `json:"kind"`
	State          State                 `json:"state"`
	Rows           []domain.LineItem     `json:"rows"`
	Totals         domain.Totals         `json:"totals"`
	SuggestionRow  string                `json:"suggestion_row,omitempty"`
	Suggestions    []domain.CatalogEntry `json:"suggestions,omitempty"`
	FocusRowID     string                `json:"focus_row_id,omitempty"`
	LastError      string                `json:"last_error,omitempty"`
	LastCommitted  string                `json:"last_committed_id,omitempty"`
	CommissionRate int                   `json:"comm_perc"`
}

type Session struct {
	mu sync.Mutex

	id          string
	ownerUserID string
	kind        domain.Kind
	rate        int

	ledger *ledger.Ledger
	state  State

	focusRowID    string
	lastErr       error
	lastCommitted *domain.Transaction
}

func New(id string, ownerUserID string, kind domain.Kind) *Session {
	s := &Session{
		id:          id,
		ownerUserID: ownerUserID,
		kind:        kind,
		rate:        domain.DefaultCommissionRate,
		ledger:      ledger.New(),
		state:       StateIdle,
	}
	rows := s.ledger.Rows()
	s.focusRowID = rows[0].RowID
	return s
}

func (s *Session) ID() string        { return s.id }
func (s *Session) Owner() string     { return s.ownerUserID }
func (s *Session) Kind() domain.Kind { return s.kind }

// AddRow appends a blank row and moves the focus intent onto it.
func (s *Session) AddRow() (domain.LineItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateSubmitting {
		return domain.LineItem{}, ErrSubmitInFlight
	}
	row := s.ledger.AddRow()
	s.focusRowID = row.RowID
	s.touch()
	return row, nil
}

// RemoveRow deletes one row; unknown ids are ignored. Removing the last row
// is allowed, leaving a transient empty ledger.
func (s *Session) RemoveRow(rowID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateSubmitting {
		return ErrSubmitInFlight
	}
	s.ledger.RemoveRow(rowID)
	if s.focusRowID == rowID {
		s.focusRowID = ""
	}
	s.touch()
	return nil
}

// EditRow applies a field edit and returns the lookup ticket the caller
// should run against the catalog, if any.
func (s *Session) EditRow(rowID string, edit ledger.FieldEdit) (domain.LineItem, *ledger.SuggestionTicket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateSubmitting {
		return domain.LineItem{}, nil, ErrSubmitInFlight
	}
	row, ticket, err := s.ledger.Edit(rowID, edit)
	if err != nil {
		return domain.LineItem{}, nil, err
	}
	s.touch()
	return row, ticket, nil
}

// ApplySuggestions installs a completed catalog lookup; stale results are
// discarded by the ledger's generation check.
func (s *Session) ApplySuggestions(ticket ledger.SuggestionTicket, entries []domain.CatalogEntry) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ledger.ApplySuggestions(ticket, entries)
}

// ResolveSuggestion accepts the identified entry from the open suggestion
// list. The entry must be on the list; accepting something the user was
// never shown is rejected.
func (s *Session) ResolveSuggestion(rowID string, entryID string) (domain.LineItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateSubmitting {
		return domain.LineItem{}, ErrSubmitInFlight
	}

	owner, entries := s.ledger.Suggestions()
	if owner != rowID {
		return domain.LineItem{}, ledger.ErrUnknownRow
	}
	for _, entry := range entries {
		if entry.ID == entryID {
			row, err := s.ledger.ResolveSuggestion(rowID, entry)
			if err == nil {
				s.touch()
			}
			return row, err
		}
	}
	return domain.LineItem{}, ledger.ErrUnknownRow
}

// SetRate selects a commission rate from the fixed allowed set.
func (s *Session) SetRate(rate int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateSubmitting {
		return ErrSubmitInFlight
	}
	if !domain.ValidCommissionRate(rate) {
		return ErrInvalidRate
	}
	s.rate = rate
	s.touch()
	return nil
}

// Submit builds and sends the transaction once. At least one row must have
// a non-blank name and non-zero quantity, otherwise ErrEmptyTransaction and
// the submitter is never called. On success the ledger resets to a single
// blank row; on failure it is left untouched so the user can retry without
// retyping.
func (s *Session) Submit(ctx context.Context, submitter Submitter, date time.Time) (*domain.Transaction, error) {
	s.mu.Lock()
	if s.state == StateSubmitting {
		s.mu.Unlock()
		return nil, ErrSubmitInFlight
	}

	rows := s.ledger.Rows()
	effective := make([]domain.TransactionLine, 0, len(rows))
	for _, row := range rows {
		if !row.Effective() {
			continue
		}
		effective = append(effective, domain.TransactionLine{
			ReferenceID: row.ReferenceID,
			Name:        strings.TrimSpace(row.Name),
			UnitPrice:   row.UnitPrice,
			Quantity:    row.Quantity,
			LineTotal:   row.LineTotal,
		})
	}
	if len(effective) == 0 {
		s.mu.Unlock()
		return nil, ErrEmptyTransaction
	}

	totals := settle.Rounded(settle.Compute(rows, s.kind, s.rate))
	tx := domain.Transaction{
		Kind:            s.kind,
		Date:            date,
		OwnerUserID:     s.ownerUserID,
		LineItems:       effective,
		Subtotal:        totals.Subtotal,
		CommissionRate:  totals.CommissionRate,
		CommissionTotal: totals.CommissionTotal,
		GrandTotal:      totals.GrandTotal,
	}

	s.state = StateSubmitting
	s.mu.Unlock()

	created, err := submitter.SubmitTransaction(ctx, tx)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.state = StateFailed
		s.lastErr = err
		return nil, err
	}

	s.state = StateCommitted
	s.lastErr = nil
	s.lastCommitted = created
	s.ledger.Reset()
	s.focusRowID = s.ledger.Rows()[0].RowID
	return created, nil
}

// Totals recomputes the display totals for the current ledger state.
func (s *Session) Totals() domain.Totals {
	s.mu.Lock()
	defer s.mu.Unlock()
	return settle.Rounded(settle.Compute(s.ledger.Rows(), s.kind, s.rate))
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Snapshot returns the full render view.
func (s *Session) Snapshot() View {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows := s.ledger.Rows()
	suggRow, entries := s.ledger.Suggestions()

	view := View{
		ID:             s.id,
		Kind:           s.kind,
		State:          s.state,
		Rows:           rows,
		Totals:         settle.Rounded(settle.Compute(rows, s.kind, s.rate)),
		SuggestionRow:  suggRow,
		Suggestions:    entries,
		FocusRowID:     s.focusRowID,
		CommissionRate: s.rate,
	}
	if s.lastErr != nil {
		view.LastError = s.lastErr.Error()
	}
	if s.lastCommitted != nil {
		view.LastCommitted = s.lastCommitted.ID
	}
	return view
}

// touch returns terminal states back to Idle once the user edits again.
func (s *Session) touch() {
	if s.state == StateCommitted || s.state == StateFailed {
		s.state = StateIdle
	}
}
