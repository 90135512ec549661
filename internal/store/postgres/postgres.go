// Package postgres is the production Repository. Expected schema:
//
//	catalog_items(id text pk, kind text, name text, uom text)
//	transactions(id text pk, kind text, tx_date date, owner_user_id text,
//	    subtotal numeric, comm_perc int, commission_total numeric,
//	    grand_total numeric, created_at timestamptz)
//	transaction_items(id text pk, transaction_id text fk, position int,
//	    reference_id text, name text, unit_price numeric, quantity numeric,
//	    line_total numeric)
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/shopspring/decimal"

	"catatusaha/backend/internal/domain"
	"catatusaha/backend/internal/store"
	"catatusaha/backend/internal/xid"
)

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) SearchCatalog(ctx context.Context, kind domain.Kind, query string) ([]domain.CatalogEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, uom
		FROM catalog_items
		WHERE kind = $1 AND name ILIKE '%' || $2 || '%'
		ORDER BY name
		LIMIT 20
	`, string(kind), query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := []domain.CatalogEntry{}
	for rows.Next() {
		var e domain.CatalogEntry
		if err := rows.Scan(&e.ID, &e.Name, &e.UnitOfMeasure); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

// CreateTransaction inserts the header and all line items in one database
// transaction; a partial write is never visible.
func (s *Store) CreateTransaction(ctx context.Context, txn domain.Transaction) (*domain.Transaction, error) {
	if txn.Kind != domain.KindSale && txn.Kind != domain.KindExpense {
		return nil, store.ErrInvalidPayload
	}
	if len(txn.LineItems) == 0 {
		return nil, store.ErrInvalidPayload
	}

	txn.ID = xid.New("tx")
	if txn.CreatedAt.IsZero() {
		txn.CreatedAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO transactions (id, kind, tx_date, owner_user_id, subtotal, comm_perc, commission_total, grand_total, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, txn.ID, string(txn.Kind), txn.Date, txn.OwnerUserID, txn.Subtotal, txn.CommissionRate, txn.CommissionTotal, txn.GrandTotal, txn.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrInvalidPayload
		}
		return nil, err
	}

	for i, line := range txn.LineItems {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO transaction_items (id, transaction_id, position, reference_id, name, unit_price, quantity, line_total)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		`, xid.New("txi"), txn.ID, i, nullIfEmpty(line.ReferenceID), line.Name, line.UnitPrice, line.Quantity, line.LineTotal)
		if err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	created := txn
	return &created, nil
}

func (s *Store) FindTransactionByID(ctx context.Context, id string) (*domain.Transaction, error) {
	var txn domain.Transaction
	var kind string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, kind, tx_date, owner_user_id, subtotal, comm_perc, commission_total, grand_total, created_at
		FROM transactions
		WHERE id = $1
	`, id).Scan(&txn.ID, &kind, &txn.Date, &txn.OwnerUserID, &txn.Subtotal, &txn.CommissionRate, &txn.CommissionTotal, &txn.GrandTotal, &txn.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	txn.Kind = domain.Kind(kind)

	lines, err := s.loadLines(ctx, txn.ID)
	if err != nil {
		return nil, err
	}
	txn.LineItems = lines
	return &txn, nil
}

func (s *Store) loadLines(ctx context.Context, transactionID string) ([]domain.TransactionLine, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT COALESCE(reference_id, ''), name, unit_price, quantity, line_total
		FROM transaction_items
		WHERE transaction_id = $1
		ORDER BY position
	`, transactionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	lines := []domain.TransactionLine{}
	for rows.Next() {
		var line domain.TransactionLine
		if err := rows.Scan(&line.ReferenceID, &line.Name, &line.UnitPrice, &line.Quantity, &line.LineTotal); err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return lines, nil
}

func (s *Store) OverallSales(ctx context.Context, from, to time.Time) ([]domain.ReportSummaryRow, error) {
	var sales, commission, expenses decimal.Decimal
	err := s.db.QueryRowContext(ctx, `
		SELECT
			COALESCE(SUM(subtotal) FILTER (WHERE kind = 'sale'), 0),
			COALESCE(SUM(commission_total) FILTER (WHERE kind = 'sale'), 0),
			COALESCE(SUM(grand_total) FILTER (WHERE kind = 'expense'), 0)
		FROM transactions
		WHERE tx_date BETWEEN $1 AND $2
	`, from, to).Scan(&sales, &commission, &expenses)
	if err != nil {
		return nil, err
	}

	return []domain.ReportSummaryRow{
		{Label: "Sales", Value: sales},
		{Label: "Expense", Value: expenses},
		{Label: "Commission", Value: commission},
	}, nil
}

func (s *Store) ItemWiseSales(ctx context.Context, from, to time.Time) ([]domain.ReportSummaryRow, error) {
	return s.lineTotalsByName(ctx, domain.KindSale, from, to)
}

func (s *Store) ExpenseWiseSales(ctx context.Context, from, to time.Time) ([]domain.ReportSummaryRow, error) {
	return s.lineTotalsByName(ctx, domain.KindExpense, from, to)
}

func (s *Store) lineTotalsByName(ctx context.Context, kind domain.Kind, from, to time.Time) ([]domain.ReportSummaryRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT ti.name, COALESCE(SUM(ti.line_total), 0)
		FROM transaction_items ti
		JOIN transactions t ON t.id = ti.transaction_id
		WHERE t.kind = $1 AND t.tx_date BETWEEN $2 AND $3
		GROUP BY ti.name
		ORDER BY ti.name
	`, string(kind), from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.ReportSummaryRow{}
	for rows.Next() {
		var row domain.ReportSummaryRow
		if err := rows.Scan(&row.Label, &row.Value); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) ListTransactions(ctx context.Context, kind domain.Kind, from, to time.Time) ([]domain.TransactionSummaryRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT t.id, to_char(t.tx_date, 'YYYY-MM-DD'), COUNT(ti.id), t.grand_total
		FROM transactions t
		LEFT JOIN transaction_items ti ON ti.transaction_id = t.id
		WHERE t.kind = $1 AND t.tx_date BETWEEN $2 AND $3
		GROUP BY t.id, t.tx_date, t.grand_total, t.created_at
		ORDER BY t.tx_date DESC, t.created_at DESC
	`, string(kind), from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.TransactionSummaryRow{}
	for rows.Next() {
		var row domain.TransactionSummaryRow
		if err := rows.Scan(&row.ID, &row.Date, &row.ItemCount, &row.Amount); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) TransactionDetail(ctx context.Context, kind domain.Kind, id string) (domain.TransactionDetail, error) {
	var detail domain.TransactionDetail
	var gotKind string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, kind, commission_total, grand_total
		FROM transactions
		WHERE id = $1 AND kind = $2
	`, id, string(kind)).Scan(&detail.TransactionID, &gotKind, &detail.CommissionTotal, &detail.GrandTotal)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.TransactionDetail{}, store.ErrNotFound
		}
		return domain.TransactionDetail{}, err
	}
	detail.Kind = domain.Kind(gotKind)

	rows, err := s.db.QueryContext(ctx, `
		SELECT name, quantity, unit_price, line_total
		FROM transaction_items
		WHERE transaction_id = $1
		ORDER BY position
	`, id)
	if err != nil {
		return domain.TransactionDetail{}, err
	}
	defer rows.Close()

	detail.Rows = []domain.TransactionDetailRow{}
	for rows.Next() {
		var row domain.TransactionDetailRow
		if err := rows.Scan(&row.Name, &row.Qty, &row.Price, &row.Total); err != nil {
			return domain.TransactionDetail{}, err
		}
		detail.Rows = append(detail.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return domain.TransactionDetail{}, err
	}
	return detail, nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
