package store

import (
	"context"
	"errors"
	"time"

	"catatusaha/backend/internal/domain"
)

var (
	ErrNotFound       = errors.New("not found")
	ErrInvalidPayload = errors.New("invalid payload")
)

// Repository is the persistence contract for catalog lookups, transaction
// writes, and the report aggregations. Date ranges are inclusive calendar
// days; implementations compare on the transaction date, not CreatedAt.
type Repository interface {
	SearchCatalog(ctx context.Context, kind domain.Kind, query string) ([]domain.CatalogEntry, error)
	CreateTransaction(ctx context.Context, tx domain.Transaction) (*domain.Transaction, error)
	FindTransactionByID(ctx context.Context, id string) (*domain.Transaction, error)
	OverallSales(ctx context.Context, from, to time.Time) ([]domain.ReportSummaryRow, error)
	ItemWiseSales(ctx context.Context, from, to time.Time) ([]domain.ReportSummaryRow, error)
	ExpenseWiseSales(ctx context.Context, from, to time.Time) ([]domain.ReportSummaryRow, error)
	ListTransactions(ctx context.Context, kind domain.Kind, from, to time.Time) ([]domain.TransactionSummaryRow, error)
	TransactionDetail(ctx context.Context, kind domain.Kind, id string) (domain.TransactionDetail, error)
}
