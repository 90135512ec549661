// Package reports drives the reporting dashboard: four independent
// aggregate queries fanned out in parallel over a date range, with per-slot
// failure isolation and last-write-wins superseding by request generation.
package reports

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"catatusaha/backend/internal/domain"
)

var ErrInvalidRange = errors.New("invalid date range")

// Queries is the aggregate contract the requestor depends on. All ranges
// are inclusive calendar dates.
type Queries interface {
	OverallSales(ctx context.Context, from, to time.Time) ([]domain.ReportSummaryRow, error)
	ItemWiseSales(ctx context.Context, from, to time.Time) ([]domain.ReportSummaryRow, error)
	ExpenseWiseSales(ctx context.Context, from, to time.Time) ([]domain.ReportSummaryRow, error)
	ListTransactions(ctx context.Context, kind domain.Kind, from, to time.Time) ([]domain.TransactionSummaryRow, error)
}

type slot int

const (
	slotOverall slot = iota
	slotItemWise
	slotExpenseWise
)

// Requestor owns one viewer's dashboard state. Every Load supersedes the
// previous one: each invocation bumps a generation, and a slot result is
// applied only while its generation is still the latest, so a slow response
// from an older range can never overwrite a newer one.
type Requestor struct {
	queries Queries

	mu   sync.Mutex
	gen  uint64
	view domain.Dashboard

	kind domain.Kind
	from time.Time
	to   time.Time
}

func NewRequestor(queries Queries) *Requestor {
	return &Requestor{
		queries: queries,
		view:    domain.EmptyDashboard(),
		kind:    domain.KindSale,
	}
}

// Load re-runs all four queries for the inclusive [from, to] range. A range
// with from after to fails fast with ErrInvalidRange and resets every slot
// to empty rather than leaving stale rows behind. A single failing query
// logs and keeps its slot's previous contents; the other three still apply.
func (r *Requestor) Load(ctx context.Context, kind domain.Kind, from, to time.Time) error {
	if from.After(to) {
		r.mu.Lock()
		r.gen++
		r.view = domain.EmptyDashboard()
		r.mu.Unlock()
		return ErrInvalidRange
	}

	r.mu.Lock()
	r.gen++
	gen := r.gen
	r.kind = kind
	r.from = from
	r.to = to
	r.mu.Unlock()

	var g errgroup.Group
	g.Go(func() error {
		rows, err := r.queries.OverallSales(ctx, from, to)
		r.applySummary(gen, slotOverall, rows, err)
		return nil
	})
	g.Go(func() error {
		rows, err := r.queries.ItemWiseSales(ctx, from, to)
		r.applySummary(gen, slotItemWise, rows, err)
		return nil
	})
	g.Go(func() error {
		rows, err := r.queries.ExpenseWiseSales(ctx, from, to)
		r.applySummary(gen, slotExpenseWise, rows, err)
		return nil
	})
	g.Go(func() error {
		rows, err := r.queries.ListTransactions(ctx, kind, from, to)
		r.applyTransactions(gen, rows, err)
		return nil
	})
	return g.Wait()
}

// ReloadTransactions refreshes only the transaction-list slot for the
// current range, optionally switching the listed kind. This backs the
// manual refresh control on the transaction card.
func (r *Requestor) ReloadTransactions(ctx context.Context, kind domain.Kind) error {
	r.mu.Lock()
	if r.from.IsZero() && r.to.IsZero() {
		r.mu.Unlock()
		return nil
	}
	r.gen++
	gen := r.gen
	r.kind = kind
	from, to := r.from, r.to
	r.mu.Unlock()

	rows, err := r.queries.ListTransactions(ctx, kind, from, to)
	r.applyTransactions(gen, rows, err)
	return err
}

func (r *Requestor) applySummary(gen uint64, s slot, rows []domain.ReportSummaryRow, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if gen != r.gen {
		return // superseded by a newer load
	}
	if err != nil {
		log.Printf("[reports] slot %d query failed: %v", s, err)
		return
	}
	if rows == nil {
		rows = []domain.ReportSummaryRow{}
	}
	switch s {
	case slotOverall:
		r.view.Overall = rows
	case slotItemWise:
		r.view.ItemWise = rows
	case slotExpenseWise:
		r.view.ExpenseWise = rows
	}
}

func (r *Requestor) applyTransactions(gen uint64, rows []domain.TransactionSummaryRow, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if gen != r.gen {
		return
	}
	if err != nil {
		log.Printf("[reports] transaction list query failed: %v", err)
		return
	}
	if rows == nil {
		rows = []domain.TransactionSummaryRow{}
	}
	r.view.Transactions = rows
}

// View returns a copy of the current dashboard.
func (r *Requestor) View() domain.Dashboard {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := domain.Dashboard{
		Overall:      make([]domain.ReportSummaryRow, len(r.view.Overall)),
		ItemWise:     make([]domain.ReportSummaryRow, len(r.view.ItemWise)),
		ExpenseWise:  make([]domain.ReportSummaryRow, len(r.view.ExpenseWise)),
		Transactions: make([]domain.TransactionSummaryRow, len(r.view.Transactions)),
	}
	copy(out.Overall, r.view.Overall)
	copy(out.ItemWise, r.view.ItemWise)
	copy(out.ExpenseWise, r.view.ExpenseWise)
	copy(out.Transactions, r.view.Transactions)
	return out
}
