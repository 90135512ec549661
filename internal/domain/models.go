package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Kind selects which catalog and which commission rule applies to a
// transaction: sales carry a commission deduction, expenses never do.
type Kind string

const (
	KindSale    Kind = "sale"
	KindExpense Kind = "expense"
)

func ParseKind(raw string) (Kind, bool) {
	switch Kind(strings.ToLower(strings.TrimSpace(raw))) {
	case KindSale:
		return KindSale, true
	case KindExpense:
		return KindExpense, true
	}
	return "", false
}

// CommissionRates is the fixed set of selectable commission percentages.
var CommissionRates = []int{10, 20, 30, 40, 50}

const DefaultCommissionRate = 10

func ValidCommissionRate(rate int) bool {
	for _, r := range CommissionRates {
		if r == rate {
			return true
		}
	}
	return false
}

// CatalogEntry is one record of the external item/expense catalog as this
// core consumes it. Master-data CRUD lives elsewhere.
type CatalogEntry struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	UnitOfMeasure string `json:"uom"`
}

// DisplayName is the composed row name used once a suggestion is accepted.
func (e CatalogEntry) DisplayName() string {
	return e.Name + " ~ " + e.UnitOfMeasure
}

// LineItem is one editable row of an in-progress transaction. LineTotal is
// derived and recomputed on every price/quantity edit, never set directly.
type LineItem struct {
	RowID       string          `json:"row_id"`
	ReferenceID string          `json:"reference_id,omitempty"`
	Name        string          `json:"name"`
	UnitPrice   decimal.Decimal `json:"price"`
	Quantity    decimal.Decimal `json:"quantity"`
	LineTotal   decimal.Decimal `json:"total"`
}

// Effective reports whether the row counts toward submission: it needs a
// non-blank name and a non-zero quantity. Ineffective rows stay visible in
// the ledger but are not persisted.
func (li LineItem) Effective() bool {
	return strings.TrimSpace(li.Name) != "" && !li.Quantity.IsZero()
}

// Totals is derived from a ledger, a kind and a commission rate; it is never
// stored independently of the rows it was computed from.
type Totals struct {
	Subtotal        decimal.Decimal `json:"subtotal"`
	CommissionRate  int             `json:"comm_perc"`
	CommissionTotal decimal.Decimal `json:"commission_total"`
	GrandTotal      decimal.Decimal `json:"grand_total"`
}

// TransactionLine is a persisted row of a committed transaction.
type TransactionLine struct {
	ReferenceID string          `json:"reference_id,omitempty"`
	Name        string          `json:"name"`
	UnitPrice   decimal.Decimal `json:"price"`
	Quantity    decimal.Decimal `json:"quantity"`
	LineTotal   decimal.Decimal `json:"total"`
}

// Transaction is the store-owned persisted record. It is created atomically
// on submit and immutable afterward; a re-submission creates a new one.
type Transaction struct {
	ID              string            `json:"id"`
	Kind            Kind              `json:"kind"`
	Date            time.Time         `json:"date"`
	OwnerUserID     string            `json:"owner_user_id"`
	LineItems       []TransactionLine `json:"line_items"`
	Subtotal        decimal.Decimal   `json:"subtotal"`
	CommissionRate  int               `json:"comm_perc"`
	CommissionTotal decimal.Decimal   `json:"commission_total"`
	GrandTotal      decimal.Decimal   `json:"grand_total"`
	CreatedAt       time.Time         `json:"created_at"`
}

// ReportSummaryRow is a generic aggregation bucket, used for the overall
// report and both breakdown reports alike.
type ReportSummaryRow struct {
	Label string          `json:"label"`
	Value decimal.Decimal `json:"value"`
}

// TransactionSummaryRow is one row of the report transaction list.
type TransactionSummaryRow struct {
	ID        string          `json:"id"`
	Date      string          `json:"date"`
	ItemCount int             `json:"items"`
	Amount    decimal.Decimal `json:"amount"`
}

// TransactionDetailRow is a read-only projection of one persisted line item.
type TransactionDetailRow struct {
	Name  string          `json:"name"`
	Qty   decimal.Decimal `json:"qty"`
	Price decimal.Decimal `json:"price"`
	Total decimal.Decimal `json:"total"`
}

// TransactionDetail is the drill-down view of one persisted transaction:
// its itemized rows plus the stored commission/grand-total footer. The
// footer values are read back verbatim, never recomputed.
type TransactionDetail struct {
	TransactionID   string                 `json:"transaction_id"`
	Kind            Kind                   `json:"kind"`
	Rows            []TransactionDetailRow `json:"rows"`
	CommissionTotal decimal.Decimal        `json:"comm_total"`
	GrandTotal      decimal.Decimal        `json:"amount"`
}

// Dashboard is the combined view the four report slots populate. Slices are
// always non-nil; a failed slot keeps its prior (or empty) contents.
type Dashboard struct {
	Overall      []ReportSummaryRow      `json:"overall_sales"`
	ItemWise     []ReportSummaryRow      `json:"item_wise_sales"`
	ExpenseWise  []ReportSummaryRow      `json:"expense_wise_sales"`
	Transactions []TransactionSummaryRow `json:"transactions"`
}

func EmptyDashboard() Dashboard {
	return Dashboard{
		Overall:      []ReportSummaryRow{},
		ItemWise:     []ReportSummaryRow{},
		ExpenseWise:  []ReportSummaryRow{},
		Transactions: []TransactionSummaryRow{},
	}
}

// Actor identifies the authenticated owner on whose behalf the core acts.
// Tokens are issued by the external identity service; this core only reads
// the claims it needs.
type Actor struct {
	UserID string
	Name   string
}

type SubmitLineItem struct {
	ReferenceID string          `json:"reference_id,omitempty"`
	Name        string          `json:"name"`
	UnitPrice   decimal.Decimal `json:"price"`
	Quantity    decimal.Decimal `json:"quantity"`
	LineTotal   decimal.Decimal `json:"total"`
}

// TransactionSubmitRequest is the boundary submit payload: the line rows
// plus the totals the capture side computed. The service re-derives the
// totals and rejects the payload when they diverge.
type TransactionSubmitRequest struct {
	Kind            string           `json:"kind"`
	Date            string           `json:"date,omitempty"`
	LineItems       []SubmitLineItem `json:"smry"`
	Subtotal        decimal.Decimal  `json:"subtotal"`
	CommissionRate  int              `json:"comm_perc"`
	CommissionTotal decimal.Decimal  `json:"commission_total"`
	GrandTotal      decimal.Decimal  `json:"grand_total"`
}

type TransactionSubmitResponse struct {
	Ok   bool         `json:"ok"`
	Data *Transaction `json:"data,omitempty"`
}
