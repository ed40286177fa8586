package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// ExportRecord represents one ledger entry written to a Beancount file.
type ExportRecord struct {
	ID             int64
	LedgerKind     string
	CounterpartyID string
	EntryKey       string
	EntryDate      string
	Amount         decimal.Decimal
	BeancountFile  string
	ExportedAt     time.Time
}

// ExportHistory manages export history operations.
type ExportHistory struct {
	conn *Connection
}

// NewExportHistory creates a new ExportHistory instance.
func NewExportHistory(conn *Connection) *ExportHistory {
	return &ExportHistory{conn: conn}
}

// RecordExports records exported entries in one transaction.
// Records already present are updated.
func (h *ExportHistory) RecordExports(ctx context.Context, records []ExportRecord) error {
	query := `
		INSERT INTO export_history (ledger_kind, counterparty_id, entry_key, entry_date, amount, beancount_file)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(ledger_kind, counterparty_id, entry_key) DO UPDATE SET
			entry_date = excluded.entry_date,
			amount = excluded.amount,
			beancount_file = excluded.beancount_file,
			exported_at = CURRENT_TIMESTAMP
	`

	return h.conn.Transaction(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, query)
		if err != nil {
			return fmt.Errorf("failed to prepare export insert: %w", err)
		}
		defer stmt.Close()

		for _, r := range records {
			if _, err := stmt.ExecContext(ctx,
				r.LedgerKind,
				r.CounterpartyID,
				r.EntryKey,
				r.EntryDate,
				r.Amount.String(),
				r.BeancountFile,
			); err != nil {
				return fmt.Errorf("failed to record export of %s: %w", r.EntryKey, err)
			}
		}
		return nil
	})
}

// ExportedKeys returns the entry keys already exported for a counterparty.
func (h *ExportHistory) ExportedKeys(ctx context.Context, kind, counterpartyID string) (map[string]bool, error) {
	rows, err := h.conn.QueryContext(ctx,
		`SELECT entry_key FROM export_history WHERE ledger_kind = ? AND counterparty_id = ?`,
		kind, counterpartyID)
	if err != nil {
		return nil, fmt.Errorf("failed to get exported keys: %w", err)
	}
	defer rows.Close()

	keys := make(map[string]bool)
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("failed to scan entry key: %w", err)
		}
		keys[key] = true
	}
	return keys, rows.Err()
}

// Records returns the export records of a counterparty, newest entry first.
func (h *ExportHistory) Records(ctx context.Context, kind, counterpartyID string) ([]ExportRecord, error) {
	query := `
		SELECT id, ledger_kind, counterparty_id, entry_key, entry_date, amount, beancount_file, exported_at
		FROM export_history
		WHERE ledger_kind = ? AND counterparty_id = ?
		ORDER BY entry_date DESC, id DESC
	`

	rows, err := h.conn.QueryContext(ctx, query, kind, counterpartyID)
	if err != nil {
		return nil, fmt.Errorf("failed to get export records: %w", err)
	}
	defer rows.Close()

	var records []ExportRecord
	for rows.Next() {
		var r ExportRecord
		var amount string
		if err := rows.Scan(
			&r.ID,
			&r.LedgerKind,
			&r.CounterpartyID,
			&r.EntryKey,
			&r.EntryDate,
			&amount,
			&r.BeancountFile,
			&r.ExportedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan export record: %w", err)
		}
		if r.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("invalid stored amount %q: %w", amount, err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// DeleteExports forgets the exports of a counterparty so they are written
// again on the next export. It returns the number of records removed.
func (h *ExportHistory) DeleteExports(ctx context.Context, kind, counterpartyID string) (int64, error) {
	result, err := h.conn.ExecContext(ctx,
		`DELETE FROM export_history WHERE ledger_kind = ? AND counterparty_id = ?`,
		kind, counterpartyID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete export records: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}

// Stats represents export statistics.
type Stats struct {
	TotalEntries        int
	TotalCounterparties int
	ByKind              map[string]int
	LastExport          sql.NullString
}

// Stats retrieves export statistics.
func (h *ExportHistory) Stats(ctx context.Context) (*Stats, error) {
	stats := Stats{ByKind: make(map[string]int)}

	err := h.conn.QueryRowContext(ctx, `
		SELECT COUNT(*), COUNT(DISTINCT ledger_kind || ':' || counterparty_id)
		FROM export_history
	`).Scan(&stats.TotalEntries, &stats.TotalCounterparties)
	if err != nil {
		return nil, fmt.Errorf("failed to get export counts: %w", err)
	}

	rows, err := h.conn.QueryContext(ctx, `SELECT ledger_kind, COUNT(*) FROM export_history GROUP BY ledger_kind`)
	if err != nil {
		return nil, fmt.Errorf("failed to get counts by kind: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var kind string
		var n int
		if err := rows.Scan(&kind, &n); err != nil {
			return nil, fmt.Errorf("failed to scan kind count: %w", err)
		}
		stats.ByKind[kind] = n
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	err = h.conn.QueryRowContext(ctx, `SELECT MAX(exported_at) FROM export_history`).Scan(&stats.LastExport)
	if err != nil && err != sql.ErrNoRows {
		return nil, fmt.Errorf("failed to get last export time: %w", err)
	}

	return &stats, nil
}
