// Package db keeps the local state of the CLI in SQLite: the login session and
// the history of ledger entries exported to Beancount.
package db

import "context"

// Schema defines the SQL statements to create database tables.
const Schema = `
-- Session key/value table
-- Holds the bearer token, the serialized user and the selected company
CREATE TABLE IF NOT EXISTS session (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL,
    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

-- Export history table
-- Tracks which ledger entries have been written to Beancount files
CREATE TABLE IF NOT EXISTS export_history (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    ledger_kind TEXT NOT NULL,         -- 'vendor', 'expense' or 'customer'
    counterparty_id TEXT NOT NULL,
    entry_key TEXT NOT NULL,           -- source:id:side of the entry
    entry_date TEXT NOT NULL,          -- YYYY-MM-DD, empty when undated
    amount TEXT NOT NULL,              -- decimal string
    beancount_file TEXT NOT NULL,
    exported_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    UNIQUE(ledger_kind, counterparty_id, entry_key)
);

CREATE INDEX IF NOT EXISTS idx_export_history_counterparty
    ON export_history(ledger_kind, counterparty_id);

CREATE INDEX IF NOT EXISTS idx_export_history_date
    ON export_history(entry_date);
`

// InitializeSchema creates all tables if they don't exist.
func InitializeSchema(conn *Connection) error {
	if _, err := conn.ExecContext(context.Background(), Schema); err != nil {
		return err
	}
	return nil
}
