/*
Package sqlite provides a SQLite-backed Store for local runs and tests.

It implements the same surface as the MongoDB store: the read side used by
reconciliation, the transactional write side used by lot splitting, and the
record writes used by the API and the sheet importer.

Money is stored as decimal TEXT and instants as fixed-width UTC TEXT so that
string comparison orders them correctly. Lots carry a version column that
split transactions check before decrementing the parent quantity.
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Store implements the persistence interfaces using SQLite.
type Store struct {
	db *sql.DB
}

// New opens (and migrates) the database at dbPath. Use ":memory:" for tests.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single connection keeps ":memory:" databases shared and serializes writers.
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS buildings (
		id TEXT PRIMARY KEY,
		site_id TEXT NOT NULL DEFAULT '',
		name TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS lots (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL DEFAULT '',
		lot_type TEXT NOT NULL,
		breed TEXT NOT NULL DEFAULT '',
		site_id TEXT NOT NULL DEFAULT '',
		building_id TEXT NOT NULL DEFAULT '',
		placement_date TEXT NOT NULL,
		age_at_placement_days INTEGER NOT NULL DEFAULT 0,
		initial_quantity INTEGER NOT NULL,
		current_quantity INTEGER NOT NULL CHECK (current_quantity >= 0),
		unit_price TEXT NOT NULL DEFAULT '0',
		transport_cost TEXT NOT NULL DEFAULT '0',
		other_initial_costs TEXT NOT NULL DEFAULT '0',
		status TEXT NOT NULL,
		parent_lot_id TEXT NOT NULL DEFAULT '',
		split_ratio TEXT NOT NULL DEFAULT '0',
		version INTEGER NOT NULL DEFAULT 1,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_lots_site ON lots(site_id);
	CREATE INDEX IF NOT EXISTS idx_lots_building ON lots(building_id);

	CREATE TABLE IF NOT EXISTS expenses (
		id TEXT PRIMARY KEY,
		expense_date TEXT NOT NULL,
		category TEXT NOT NULL DEFAULT '',
		lot_id TEXT NOT NULL DEFAULT '',
		site_id TEXT NOT NULL DEFAULT '',
		supplier_id TEXT NOT NULL DEFAULT '',
		amount TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT ''
	);
	CREATE INDEX IF NOT EXISTS idx_expenses_lot_date ON expenses(lot_id, expense_date);

	CREATE TABLE IF NOT EXISTS sales (
		id TEXT PRIMARY KEY,
		sale_date TEXT NOT NULL,
		sale_type TEXT NOT NULL,
		quantity INTEGER NOT NULL DEFAULT 0,
		unit_price TEXT NOT NULL DEFAULT '0',
		lines_json TEXT NOT NULL DEFAULT '[]',
		total_amount TEXT NOT NULL,
		payment_status TEXT NOT NULL,
		amount_paid TEXT NOT NULL DEFAULT '0',
		client_id TEXT NOT NULL DEFAULT '',
		lot_id TEXT NOT NULL DEFAULT '',
		site_id TEXT NOT NULL DEFAULT ''
	);
	CREATE INDEX IF NOT EXISTS idx_sales_lot_date ON sales(lot_id, sale_date);

	CREATE TABLE IF NOT EXISTS production (
		id TEXT PRIMARY KEY,
		lot_id TEXT NOT NULL,
		record_date TEXT NOT NULL,
		kind TEXT NOT NULL,
		normal_eggs INTEGER NOT NULL DEFAULT 0,
		cracked_eggs INTEGER NOT NULL DEFAULT 0,
		dirty_eggs INTEGER NOT NULL DEFAULT 0,
		small_eggs INTEGER NOT NULL DEFAULT 0,
		laying_rate REAL NOT NULL DEFAULT 0,
		average_weight_grams REAL NOT NULL DEFAULT 0,
		age_days INTEGER NOT NULL DEFAULT 0,
		feed_kg REAL NOT NULL DEFAULT 0,
		mortality INTEGER NOT NULL DEFAULT 0,
		notes TEXT NOT NULL DEFAULT ''
	);
	-- One observation per lot, day and kind; later writes replace earlier ones.
	CREATE UNIQUE INDEX IF NOT EXISTS idx_production_slot ON production(lot_id, record_date, kind);

	-- Split audit trail: no foreign keys so rows survive lot deletion.
	CREATE TABLE IF NOT EXISTS lot_splits (
		id TEXT PRIMARY KEY,
		parent_lot_id TEXT NOT NULL,
		child_lot_id TEXT NOT NULL,
		transferred_quantity INTEGER NOT NULL,
		parent_quantity_before INTEGER NOT NULL,
		ratio TEXT NOT NULL,
		expenses_distributed INTEGER NOT NULL,
		adjustments_json TEXT NOT NULL DEFAULT '[]',
		created_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_lot_splits_parent ON lot_splits(parent_lot_id);
	CREATE INDEX IF NOT EXISTS idx_lot_splits_child ON lot_splits(child_lot_id);

	CREATE TABLE IF NOT EXISTS authoritative_summaries (
		lot_id TEXT PRIMARY KEY,
		total_expenses TEXT NOT NULL,
		total_revenue TEXT NOT NULL,
		net_profit TEXT NOT NULL DEFAULT '0',
		gross_profit TEXT NOT NULL DEFAULT '0',
		profit_margin_percent TEXT NOT NULL DEFAULT '0',
		breakdown_json TEXT NOT NULL DEFAULT '{}',
		computed_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS summary_snapshots (
		id TEXT PRIMARY KEY,
		payload_json TEXT NOT NULL,
		created_at TEXT NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	return time.Parse(timeLayout, value)
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
