// Package memory is an in-process Repository used for dev/demo mode and
// tests. It seeds a small catalog per kind and computes the report
// aggregations on read.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"catatusaha/backend/internal/domain"
	"catatusaha/backend/internal/store"
	"catatusaha/backend/internal/xid"
)

type Store struct {
	mu               sync.RWMutex
	catalogByKind    map[domain.Kind][]domain.CatalogEntry
	transactionsByID map[string]*domain.Transaction
	order            []string
}

func New() *Store {
	return &Store{
		catalogByKind:    seedCatalog(),
		transactionsByID: map[string]*domain.Transaction{},
	}
}

func seedCatalog() map[domain.Kind][]domain.CatalogEntry {
	return map[domain.Kind][]domain.CatalogEntry{
		domain.KindSale: {
			{ID: "itm-rice", Name: "Rice", UnitOfMeasure: "kg"},
			{ID: "itm-rice-premium", Name: "Rice Premium", UnitOfMeasure: "kg"},
			{ID: "itm-sugar", Name: "Sugar", UnitOfMeasure: "kg"},
			{ID: "itm-cooking-oil", Name: "Cooking Oil", UnitOfMeasure: "litre"},
			{ID: "itm-eggs", Name: "Eggs", UnitOfMeasure: "tray"},
			{ID: "itm-flour", Name: "Flour", UnitOfMeasure: "kg"},
			{ID: "itm-instant-noodles", Name: "Instant Noodles", UnitOfMeasure: "box"},
			{ID: "itm-mineral-water", Name: "Mineral Water", UnitOfMeasure: "carton"},
		},
		domain.KindExpense: {
			{ID: "exp-fuel", Name: "Fuel", UnitOfMeasure: "litre"},
			{ID: "exp-electricity", Name: "Electricity", UnitOfMeasure: "kwh"},
			{ID: "exp-rent", Name: "Shop Rent", UnitOfMeasure: "month"},
			{ID: "exp-packaging", Name: "Packaging", UnitOfMeasure: "pack"},
			{ID: "exp-transport", Name: "Transport", UnitOfMeasure: "trip"},
		},
	}
}

func (s *Store) SearchCatalog(_ context.Context, kind domain.Kind, query string) ([]domain.CatalogEntry, error) {
	needle := strings.ToLower(strings.TrimSpace(query))
	if needle == "" {
		return []domain.CatalogEntry{}, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []domain.CatalogEntry{}
	for _, entry := range s.catalogByKind[kind] {
		if strings.Contains(strings.ToLower(entry.Name), needle) {
			out = append(out, entry)
		}
	}
	return out, nil
}

func (s *Store) CreateTransaction(_ context.Context, tx domain.Transaction) (*domain.Transaction, error) {
	if tx.Kind != domain.KindSale && tx.Kind != domain.KindExpense {
		return nil, store.ErrInvalidPayload
	}
	if len(tx.LineItems) == 0 {
		return nil, store.ErrInvalidPayload
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx.ID = xid.New("tx")
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = time.Now().UTC()
	}
	stored := tx
	stored.LineItems = append([]domain.TransactionLine(nil), tx.LineItems...)
	s.transactionsByID[stored.ID] = &stored
	s.order = append(s.order, stored.ID)

	result := stored
	return &result, nil
}

func (s *Store) FindTransactionByID(_ context.Context, id string) (*domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tx, ok := s.transactionsByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	result := *tx
	result.LineItems = append([]domain.TransactionLine(nil), tx.LineItems...)
	return &result, nil
}

func inRange(date, from, to time.Time) bool {
	day := date.Truncate(24 * time.Hour)
	return !day.Before(from.Truncate(24*time.Hour)) && !day.After(to.Truncate(24*time.Hour))
}

// OverallSales returns three buckets for the range: gross sales, total
// expenses, and total commission deducted from sales.
func (s *Store) OverallSales(_ context.Context, from, to time.Time) ([]domain.ReportSummaryRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sales := decimal.Zero
	expenses := decimal.Zero
	commission := decimal.Zero
	for _, tx := range s.transactionsByID {
		if !inRange(tx.Date, from, to) {
			continue
		}
		switch tx.Kind {
		case domain.KindSale:
			sales = sales.Add(tx.Subtotal)
			commission = commission.Add(tx.CommissionTotal)
		case domain.KindExpense:
			expenses = expenses.Add(tx.GrandTotal)
		}
	}

	return []domain.ReportSummaryRow{
		{Label: "Sales", Value: sales},
		{Label: "Expense", Value: expenses},
		{Label: "Commission", Value: commission},
	}, nil
}

func (s *Store) ItemWiseSales(_ context.Context, from, to time.Time) ([]domain.ReportSummaryRow, error) {
	return s.lineTotalsByName(domain.KindSale, from, to), nil
}

func (s *Store) ExpenseWiseSales(_ context.Context, from, to time.Time) ([]domain.ReportSummaryRow, error) {
	return s.lineTotalsByName(domain.KindExpense, from, to), nil
}

func (s *Store) lineTotalsByName(kind domain.Kind, from, to time.Time) []domain.ReportSummaryRow {
	s.mu.RLock()
	defer s.mu.RUnlock()

	byName := map[string]decimal.Decimal{}
	for _, tx := range s.transactionsByID {
		if tx.Kind != kind || !inRange(tx.Date, from, to) {
			continue
		}
		for _, line := range tx.LineItems {
			byName[line.Name] = byName[line.Name].Add(line.LineTotal)
		}
	}

	out := make([]domain.ReportSummaryRow, 0, len(byName))
	for name, total := range byName {
		out = append(out, domain.ReportSummaryRow{Label: name, Value: total})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Label < out[j].Label })
	return out
}

func (s *Store) ListTransactions(_ context.Context, kind domain.Kind, from, to time.Time) ([]domain.TransactionSummaryRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []domain.TransactionSummaryRow{}
	// Walk in insertion order so rows with the same date keep a stable
	// relative order after the date sort.
	for _, id := range s.order {
		tx := s.transactionsByID[id]
		if tx.Kind != kind || !inRange(tx.Date, from, to) {
			continue
		}
		out = append(out, domain.TransactionSummaryRow{
			ID:        tx.ID,
			Date:      tx.Date.Format("2006-01-02"),
			ItemCount: len(tx.LineItems),
			Amount:    tx.GrandTotal,
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date > out[j].Date })
	return out, nil
}

func (s *Store) TransactionDetail(_ context.Context, kind domain.Kind, id string) (domain.TransactionDetail, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tx, ok := s.transactionsByID[id]
	if !ok || tx.Kind != kind {
		return domain.TransactionDetail{}, store.ErrNotFound
	}

	rows := make([]domain.TransactionDetailRow, 0, len(tx.LineItems))
	for _, line := range tx.LineItems {
		rows = append(rows, domain.TransactionDetailRow{
			Name:  line.Name,
			Qty:   line.Quantity,
			Price: line.UnitPrice,
			Total: line.LineTotal,
		})
	}
	return domain.TransactionDetail{
		TransactionID:   tx.ID,
		Kind:            tx.Kind,
		Rows:            rows,
		CommissionTotal: tx.CommissionTotal,
		GrandTotal:      tx.GrandTotal,
	}, nil
}
