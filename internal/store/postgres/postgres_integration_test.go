package postgres

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"catatusaha/backend/internal/domain"
	"catatusaha/backend/internal/store"
)

func TestCreateTransactionRoundTrip(t *testing.T) {
	databaseURL := os.Getenv("CATATUSAHA_TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("set CATATUSAHA_TEST_DATABASE_URL to run postgres integration test")
	}

	ctx := context.Background()
	s, err := New(ctx, databaseURL)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Close()
	})

	stamp := time.Now().UnixNano()
	owner := fmt.Sprintf("user-it-%d", stamp)
	date, _ := time.Parse("2006-01-02", "2026-08-30")

	created, err := s.CreateTransaction(ctx, domain.Transaction{
		Kind:        domain.KindSale,
		Date:        date,
		OwnerUserID: owner,
		LineItems: []domain.TransactionLine{
			{Name: "Rice ~ kg", UnitPrice: decimal.RequireFromString("12.50"), Quantity: decimal.NewFromInt(2), LineTotal: decimal.RequireFromString("25.00")},
			{ReferenceID: "itm-sugar", Name: "Sugar ~ kg", UnitPrice: decimal.RequireFromString("8.00"), Quantity: decimal.NewFromInt(1), LineTotal: decimal.RequireFromString("8.00")},
		},
		Subtotal:        decimal.RequireFromString("33.00"),
		CommissionRate:  10,
		CommissionTotal: decimal.RequireFromString("3.30"),
		GrandTotal:      decimal.RequireFromString("29.70"),
	})
	if err != nil {
		t.Fatalf("create transaction: %v", err)
	}
	t.Cleanup(func() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM transaction_items WHERE transaction_id = $1`, created.ID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM transactions WHERE id = $1`, created.ID)
	})

	found, err := s.FindTransactionByID(ctx, created.ID)
	if err != nil {
		t.Fatalf("find transaction: %v", err)
	}
	if len(found.LineItems) != 2 {
		t.Fatalf("line items = %d, want 2", len(found.LineItems))
	}
	if found.LineItems[0].Name != "Rice ~ kg" || found.LineItems[1].ReferenceID != "itm-sugar" {
		t.Fatalf("line order or reference lost: %+v", found.LineItems)
	}
	if !found.GrandTotal.Equal(decimal.RequireFromString("29.70")) {
		t.Fatalf("grand total = %s", found.GrandTotal)
	}

	detail, err := s.TransactionDetail(ctx, domain.KindSale, created.ID)
	if err != nil {
		t.Fatalf("transaction detail: %v", err)
	}
	if !detail.CommissionTotal.Equal(decimal.RequireFromString("3.30")) {
		t.Fatalf("detail commission = %s", detail.CommissionTotal)
	}
	if _, err := s.TransactionDetail(ctx, domain.KindExpense, created.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("kind mismatch err = %v, want ErrNotFound", err)
	}
}
