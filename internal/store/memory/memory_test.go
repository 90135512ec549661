package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"catatusaha/backend/internal/domain"
	"catatusaha/backend/internal/store"
)

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func saleTx(date string, lines ...domain.TransactionLine) domain.Transaction {
	subtotal := decimal.Zero
	for _, l := range lines {
		subtotal = subtotal.Add(l.LineTotal)
	}
	commission := subtotal.Mul(dec("0.2")).Round(2)
	return domain.Transaction{
		Kind:            domain.KindSale,
		Date:            day(date),
		OwnerUserID:     "user-1",
		LineItems:       lines,
		Subtotal:        subtotal.Round(2),
		CommissionRate:  20,
		CommissionTotal: commission,
		GrandTotal:      subtotal.Round(2).Sub(commission),
	}
}

func expenseTx(date string, lines ...domain.TransactionLine) domain.Transaction {
	subtotal := decimal.Zero
	for _, l := range lines {
		subtotal = subtotal.Add(l.LineTotal)
	}
	return domain.Transaction{
		Kind:            domain.KindExpense,
		Date:            day(date),
		OwnerUserID:     "user-1",
		LineItems:       lines,
		Subtotal:        subtotal,
		CommissionRate:  0,
		CommissionTotal: decimal.Zero,
		GrandTotal:      subtotal,
	}
}

func line(name, price, qty string) domain.TransactionLine {
	p, q := dec(price), dec(qty)
	return domain.TransactionLine{Name: name, UnitPrice: p, Quantity: q, LineTotal: p.Mul(q)}
}

func TestSearchCatalog(t *testing.T) {
	s := New()
	ctx := context.Background()

	entries, err := s.SearchCatalog(ctx, domain.KindSale, "rice")
	if err != nil {
		t.Fatalf("SearchCatalog: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("len = %d, want 2 (Rice, Rice Premium)", len(entries))
	}

	entries, err = s.SearchCatalog(ctx, domain.KindSale, "  RICE  ")
	if err != nil || len(entries) != 2 {
		t.Fatalf("case/space-insensitive search: %v, %d entries", err, len(entries))
	}

	entries, err = s.SearchCatalog(ctx, domain.KindExpense, "rice")
	if err != nil || len(entries) != 0 {
		t.Fatalf("expense catalog should not contain rice: %v, %d entries", err, len(entries))
	}

	entries, err = s.SearchCatalog(ctx, domain.KindSale, "   ")
	if err != nil || len(entries) != 0 {
		t.Fatalf("blank query must return empty, got %v, %d entries", err, len(entries))
	}
}

func TestCreateAndFindTransaction(t *testing.T) {
	s := New()
	ctx := context.Background()

	created, err := s.CreateTransaction(ctx, saleTx("2026-08-30", line("Rice ~ kg", "12.50", "2")))
	if err != nil {
		t.Fatalf("CreateTransaction: %v", err)
	}
	if created.ID == "" {
		t.Fatal("store must assign an id")
	}
	if created.CreatedAt.IsZero() {
		t.Fatal("store must stamp CreatedAt")
	}

	found, err := s.FindTransactionByID(ctx, created.ID)
	if err != nil {
		t.Fatalf("FindTransactionByID: %v", err)
	}
	if len(found.LineItems) != 1 || found.LineItems[0].Name != "Rice ~ kg" {
		t.Fatalf("lines = %+v", found.LineItems)
	}

	if _, err := s.FindTransactionByID(ctx, "tx-missing"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestCreateTransactionRejectsBadPayload(t *testing.T) {
	s := New()
	ctx := context.Background()

	bad := saleTx("2026-08-30", line("Rice ~ kg", "10", "1"))
	bad.Kind = "refund"
	if _, err := s.CreateTransaction(ctx, bad); !errors.Is(err, store.ErrInvalidPayload) {
		t.Fatalf("unknown kind: err = %v", err)
	}

	empty := saleTx("2026-08-30")
	if _, err := s.CreateTransaction(ctx, empty); !errors.Is(err, store.ErrInvalidPayload) {
		t.Fatalf("no lines: err = %v", err)
	}
}

func TestOverallSalesBuckets(t *testing.T) {
	s := New()
	ctx := context.Background()

	mustCreate(t, s, saleTx("2026-08-10", line("Rice ~ kg", "100.00", "2")))    // subtotal 200, commission 40
	mustCreate(t, s, expenseTx("2026-08-12", line("Fuel ~ litre", "30.00", "1")))
	mustCreate(t, s, saleTx("2026-07-01", line("Sugar ~ kg", "999.00", "1"))) // outside range

	rows, err := s.OverallSales(ctx, day("2026-08-01"), day("2026-08-31"))
	if err != nil {
		t.Fatalf("OverallSales: %v", err)
	}
	want := map[string]string{"Sales": "200", "Expense": "30", "Commission": "40"}
	if len(rows) != 3 {
		t.Fatalf("rows = %+v", rows)
	}
	for _, row := range rows {
		if row.Value.String() != want[row.Label] {
			t.Fatalf("%s = %s, want %s", row.Label, row.Value, want[row.Label])
		}
	}
}

func TestItemWiseGroupsByNameWithinKind(t *testing.T) {
	s := New()
	ctx := context.Background()

	mustCreate(t, s, saleTx("2026-08-10", line("Rice ~ kg", "10.00", "2"), line("Sugar ~ kg", "5.00", "1")))
	mustCreate(t, s, saleTx("2026-08-11", line("Rice ~ kg", "10.00", "3")))
	mustCreate(t, s, expenseTx("2026-08-11", line("Fuel ~ litre", "7.00", "1")))

	rows, err := s.ItemWiseSales(ctx, day("2026-08-01"), day("2026-08-31"))
	if err != nil {
		t.Fatalf("ItemWiseSales: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("rows = %+v", rows)
	}
	if rows[0].Label != "Rice ~ kg" || rows[0].Value.String() != "50" {
		t.Fatalf("rice bucket = %+v", rows[0])
	}
	if rows[1].Label != "Sugar ~ kg" || rows[1].Value.String() != "5" {
		t.Fatalf("sugar bucket = %+v", rows[1])
	}

	expenses, err := s.ExpenseWiseSales(ctx, day("2026-08-01"), day("2026-08-31"))
	if err != nil || len(expenses) != 1 || expenses[0].Label != "Fuel ~ litre" {
		t.Fatalf("expense buckets = %+v (%v)", expenses, err)
	}
}

func TestListTransactionsFiltersAndSorts(t *testing.T) {
	s := New()
	ctx := context.Background()

	first := mustCreate(t, s, saleTx("2026-08-10", line("Rice ~ kg", "10.00", "1")))
	second := mustCreate(t, s, saleTx("2026-08-20", line("Sugar ~ kg", "5.00", "2")))
	mustCreate(t, s, expenseTx("2026-08-15", line("Fuel ~ litre", "7.00", "1")))

	rows, err := s.ListTransactions(ctx, domain.KindSale, day("2026-08-01"), day("2026-08-31"))
	if err != nil {
		t.Fatalf("ListTransactions: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("rows = %+v", rows)
	}
	if rows[0].ID != second.ID || rows[1].ID != first.ID {
		t.Fatalf("not newest-first: %+v", rows)
	}
	if rows[0].Date != "2026-08-20" || rows[0].ItemCount != 1 || rows[0].Amount.String() != "8" {
		t.Fatalf("row = %+v", rows[0])
	}
}

func TestTransactionDetailReadsStoredFooter(t *testing.T) {
	s := New()
	ctx := context.Background()

	tx := saleTx("2026-08-10", line("Rice ~ kg", "100.00", "2"))
	// Deliberately skewed footer: the detail view must echo what was
	// stored, never recompute.
	tx.CommissionTotal = dec("41.00")
	tx.GrandTotal = dec("159.00")
	created := mustCreate(t, s, tx)

	detail, err := s.TransactionDetail(ctx, domain.KindSale, created.ID)
	if err != nil {
		t.Fatalf("TransactionDetail: %v", err)
	}
	if detail.CommissionTotal.String() != "41" || detail.GrandTotal.String() != "159" {
		t.Fatalf("footer = %s / %s", detail.CommissionTotal, detail.GrandTotal)
	}
	if len(detail.Rows) != 1 || detail.Rows[0].Total.String() != "200" {
		t.Fatalf("rows = %+v", detail.Rows)
	}

	if _, err := s.TransactionDetail(ctx, domain.KindExpense, created.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("kind mismatch: err = %v", err)
	}
	if _, err := s.TransactionDetail(ctx, domain.KindSale, "tx-missing"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("missing id: err = %v", err)
	}
}

func mustCreate(t *testing.T, s *Store, tx domain.Transaction) *domain.Transaction {
	t.Helper()
	created, err := s.CreateTransaction(context.Background(), tx)
	if err != nil {
		t.Fatalf("CreateTransaction: %v", err)
	}
	return created
}
