package ledger

import (
	"errors"
	"strings"

	"github.com/shopspring/decimal"

	"catatusaha/backend/internal/domain"
	"catatusaha/backend/internal/xid"
)

var (
	ErrUnknownField = errors.New("unknown ledger field")
	ErrUnknownRow   = errors.New("unknown ledger row")
)

// FieldEdit is the closed set of row mutations. Each edit carries the raw
// text as typed; numeric fields parse blank or garbage input as zero.
type FieldEdit interface {
	isFieldEdit()
}

type NameEdit struct{ Text string }
type QuantityEdit struct{ Text string }
type PriceEdit struct{ Text string }

func (NameEdit) isFieldEdit()     {}
func (QuantityEdit) isFieldEdit() {}
func (PriceEdit) isFieldEdit()    {}

// ParseFieldEdit maps a wire-level field name onto the closed edit union.
func ParseFieldEdit(field string, value string) (FieldEdit, error) {
	switch strings.ToLower(strings.TrimSpace(field)) {
	case "name":
		return NameEdit{Text: value}, nil
	case "quantity":
		return QuantityEdit{Text: value}, nil
	case "price":
		return PriceEdit{Text: value}, nil
	}
	return nil, ErrUnknownField
}

// SuggestionTicket tags one catalog lookup with the generation it was issued
// under. A result is applied only while its ticket is still the latest, so a
// slow response can never overwrite a newer keystroke's suggestions.
type SuggestionTicket struct {
	RowID string
	Gen   uint64
	Query string
}

type suggestionSlot struct {
	rowID   string
	gen     uint64
	entries []domain.CatalogEntry
}

// Ledger is the ordered arena of rows for one not-yet-submitted transaction.
// Rows are addressed by stable ids, never by positional side channels, and
// insertion order is display order is submission order.
//
// A ledger is not safe for concurrent use; the owning session serializes
// access, matching the one-logical-thread editing model.
type Ledger struct {
	rows []domain.LineItem
	sugg suggestionSlot
}

// New returns a ledger holding a single blank row.
func New() *Ledger {
	l := &Ledger{rows: make([]domain.LineItem, 0, 8)}
	l.AddRow()
	return l
}

func blankRow() domain.LineItem {
	return domain.LineItem{
		RowID:     xid.New("row"),
		UnitPrice: decimal.Zero,
		Quantity:  decimal.Zero,
		LineTotal: decimal.Zero,
	}
}

// AddRow appends a blank row at the end and returns it. Existing rows keep
// their positions; the returned row carries the focus intent.
func (l *Ledger) AddRow() domain.LineItem {
	row := blankRow()
	l.rows = append(l.rows, row)
	return row
}

// RemoveRow deletes the identified row. Unknown ids are ignored, and the
// last remaining row is removable: an empty ledger is a legal transient
// state between a removal and the next AddRow.
func (l *Ledger) RemoveRow(rowID string) {
	for i, row := range l.rows {
		if row.RowID == rowID {
			l.rows = append(l.rows[:i], l.rows[i+1:]...)
			if l.sugg.rowID == rowID {
				l.clearSuggestions()
			}
			return
		}
	}
}

// Edit applies one field edit to the identified row. Quantity and price
// edits recompute LineTotal against the current value of the other field.
// Every mutation re-keys the suggestion lookup to the edited row: the
// returned ticket, if non-nil, is the lookup the caller should run for the
// row's current free-text name. A blank name yields no ticket and clears
// the open suggestion list.
func (l *Ledger) Edit(rowID string, edit FieldEdit) (domain.LineItem, *SuggestionTicket, error) {
	idx := l.index(rowID)
	if idx < 0 {
		return domain.LineItem{}, nil, ErrUnknownRow
	}

	row := &l.rows[idx]
	switch e := edit.(type) {
	case NameEdit:
		row.Name = e.Text
		// Free-text typing invalidates a previously accepted suggestion.
		row.ReferenceID = ""
	case QuantityEdit:
		row.Quantity = parseAmount(e.Text)
		row.LineTotal = row.UnitPrice.Mul(row.Quantity)
	case PriceEdit:
		row.UnitPrice = parseAmount(e.Text)
		row.LineTotal = row.UnitPrice.Mul(row.Quantity)
	default:
		return domain.LineItem{}, nil, ErrUnknownField
	}

	query := strings.TrimSpace(row.Name)
	if query == "" {
		l.clearSuggestions()
		return *row, nil, nil
	}

	l.sugg.gen++
	l.sugg.rowID = rowID
	l.sugg.entries = nil
	return *row, &SuggestionTicket{RowID: rowID, Gen: l.sugg.gen, Query: query}, nil
}

// ApplySuggestions installs a lookup result, unless a newer edit superseded
// the ticket. Reports whether the result was applied.
func (l *Ledger) ApplySuggestions(ticket SuggestionTicket, entries []domain.CatalogEntry) bool {
	if ticket.Gen != l.sugg.gen || ticket.RowID != l.sugg.rowID {
		return false
	}
	l.sugg.entries = entries
	return true
}

// Suggestions returns the row id owning the single open suggestion list and
// its entries. Only one row's list is open at a time.
func (l *Ledger) Suggestions() (string, []domain.CatalogEntry) {
	if len(l.sugg.entries) == 0 {
		return l.sugg.rowID, nil
	}
	out := make([]domain.CatalogEntry, len(l.sugg.entries))
	copy(out, l.sugg.entries)
	return l.sugg.rowID, out
}

// ResolveSuggestion accepts a catalog entry for the identified row: the
// reference id is set, the display name becomes "{name} ~ {uom}", and the
// open suggestion list is cleared.
func (l *Ledger) ResolveSuggestion(rowID string, entry domain.CatalogEntry) (domain.LineItem, error) {
	idx := l.index(rowID)
	if idx < 0 {
		return domain.LineItem{}, ErrUnknownRow
	}
	row := &l.rows[idx]
	row.ReferenceID = entry.ID
	row.Name = entry.DisplayName()
	l.clearSuggestions()
	return *row, nil
}

// Rows returns a copy of the rows in display order.
func (l *Ledger) Rows() []domain.LineItem {
	out := make([]domain.LineItem, len(l.rows))
	copy(out, l.rows)
	return out
}

func (l *Ledger) Len() int {
	return len(l.rows)
}

// Reset clears the ledger back to a single blank row. Called only after a
// successful submission; nothing else ever implicitly clears the ledger.
func (l *Ledger) Reset() {
	l.rows = l.rows[:0]
	l.AddRow()
	l.clearSuggestions()
}

func (l *Ledger) index(rowID string) int {
	for i, row := range l.rows {
		if row.RowID == rowID {
			return i
		}
	}
	return -1
}

func (l *Ledger) clearSuggestions() {
	l.sugg.rowID = ""
	l.sugg.entries = nil
}

// parseAmount mirrors the capture UI's numeric handling: blank or
// non-numeric input is zero, never NaN, and negative input is clamped to
// zero (returns are not part of the default business rules).
func parseAmount(text string) decimal.Decimal {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(trimmed)
	if err != nil || d.IsNegative() {
		return decimal.Zero
	}
	return d
}
