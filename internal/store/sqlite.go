package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Ashfaaq98/case-tracker/internal/cases"
)

var (
	// ErrNotFound is returned when a row addressed by id or token does not exist.
	ErrNotFound = errors.New("not found")
	// ErrExpired is returned when a magic link is past its expiry.
	ErrExpired = errors.New("expired")
)

// Store represents the SQLite storage implementation
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// ListOptions controls ordering and the row cap of ListCases.
type ListOptions struct {
	OrderBy    string
	Descending bool
	Limit      int
}

// sortable columns accepted by ListCases
var orderColumns = map[string]bool{
	"id":            true,
	"next_date":     true,
	"previous_date": true,
	"case_number":   true,
}

// NewStore creates a new SQLite store instance
func NewStore(dbPath string) (*Store, error) {
	memory := dbPath == ":memory:"

	// Ensure target directory exists (e.g., ./data)
	if dir := filepath.Dir(dbPath); !memory && dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory %s: %w", dir, err)
		}
	}

	dsn := dbPath
	if !memory {
		dsn += dsnParams
	}
	db, err := sql.Open(sqliteDriver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if memory {
		// every connection to :memory: is a separate database
		db.SetMaxOpenConns(1)
	}

	store := &Store{db: db, now: time.Now}

	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate performs database migrations
func (s *Store) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS cases (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			active INTEGER NOT NULL DEFAULT 1,
			previous_date TEXT,
			next_date TEXT,
			case_number TEXT NOT NULL DEFAULT '',
			court_details TEXT NOT NULL DEFAULT '',
			court_type TEXT NOT NULL DEFAULT '',
			our_party TEXT NOT NULL DEFAULT '',
			purpose TEXT NOT NULL DEFAULT '',
			notes TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			email TEXT NOT NULL UNIQUE,
			created_at INTEGER NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS magic_links (
			id TEXT PRIMARY KEY,
			token_hash TEXT NOT NULL UNIQUE,
			email TEXT NOT NULL,
			expires_at INTEGER NOT NULL,
			used_at INTEGER,
			created_at INTEGER NOT NULL
		)`,

		`CREATE INDEX IF NOT EXISTS idx_cases_next_date ON cases(next_date)`,
		`CREATE INDEX IF NOT EXISTS idx_cases_case_number ON cases(case_number)`,
		`CREATE INDEX IF NOT EXISTS idx_magic_links_expires_at ON magic_links(expires_at)`,
	}

	for _, migration := range migrations {
		if _, err := s.db.Exec(migration); err != nil {
			return fmt.Errorf("failed to execute migration: %w", err)
		}
	}

	return s.setupAuditTables()
}

// ListCases returns up to opts.Limit cases. NULL dates sort last ascending and
// first descending, matching Postgres defaults.
func (s *Store) ListCases(ctx context.Context, opts ListOptions) ([]cases.Record, error) {
	col := strings.ToLower(strings.TrimSpace(opts.OrderBy))
	if col == "" {
		col = "next_date"
	}
	if !orderColumns[col] {
		return nil, fmt.Errorf("unsupported order column %q", opts.OrderBy)
	}

	dir, nulls := "ASC", "ASC"
	if opts.Descending {
		dir, nulls = "DESC", "DESC"
	}

	query := `SELECT id, active, previous_date, next_date, case_number, court_details,
		court_type, our_party, purpose, notes FROM cases
		ORDER BY ` + col + ` IS NULL ` + nulls + `, ` + col + ` ` + dir + `, id ASC`
	args := []interface{}{}
	if opts.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, opts.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query cases: %w", err)
	}
	defer rows.Close()

	out := make([]cases.Record, 0)
	for rows.Next() {
		r, err := scanCase(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating case rows: %w", err)
	}

	return out, nil
}

// GetCase returns a single case by id
func (s *Store) GetCase(ctx context.Context, id int64) (cases.Record, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, active, previous_date, next_date, case_number,
		court_details, court_type, our_party, purpose, notes FROM cases WHERE id = ?`, id)
	r, err := scanCase(row)
	if errors.Is(err, sql.ErrNoRows) {
		return cases.Record{}, fmt.Errorf("case %d: %w", id, ErrNotFound)
	}
	return r, err
}

// InsertCase stores a new case and returns its id. Any id on r is ignored.
func (s *Store) InsertCase(ctx context.Context, r cases.Record) (int64, error) {
	now := s.now().Unix()
	res, err := s.db.ExecContext(ctx, `INSERT INTO cases (
		active, previous_date, next_date, case_number, court_details, court_type,
		our_party, purpose, notes, created_at, updated_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.Active, nullDate(r.PreviousDate), nullDate(r.NextDate), r.CaseNumber,
		r.CourtDetails, r.CourtType, r.OurParty, r.Purpose, r.Notes, now, now,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert case: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read case id: %w", err)
	}
	return id, nil
}

// UpdateCase replaces every editable column of case id.
func (s *Store) UpdateCase(ctx context.Context, id int64, r cases.Record) error {
	res, err := s.db.ExecContext(ctx, `UPDATE cases SET
		active = ?, previous_date = ?, next_date = ?, case_number = ?, court_details = ?,
		court_type = ?, our_party = ?, purpose = ?, notes = ?, updated_at = ?
		WHERE id = ?`,
		r.Active, nullDate(r.PreviousDate), nullDate(r.NextDate), r.CaseNumber,
		r.CourtDetails, r.CourtType, r.OurParty, r.Purpose, r.Notes, s.now().Unix(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to update case: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("case %d: %w", id, ErrNotFound)
	}
	return nil
}

// CountCases returns the number of stored cases
func (s *Store) CountCases(ctx context.Context) (int, error) {
	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM cases`).Scan(&total); err != nil {
		return 0, fmt.Errorf("failed to count cases: %w", err)
	}
	return total, nil
}

// Reset deletes every row from every table.
func (s *Store) Reset(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin reset: %w", err)
	}
	defer tx.Rollback()

	for _, table := range []string{"audit_entries", "magic_links", "users", "cases"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}
	// AUTOINCREMENT counters live in sqlite_sequence
	if _, err := tx.ExecContext(ctx, `DELETE FROM sqlite_sequence WHERE name = 'cases'`); err != nil {
		return fmt.Errorf("failed to reset case ids: %w", err)
	}

	return tx.Commit()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanCase(row rowScanner) (cases.Record, error) {
	var (
		r          cases.Record
		prev, next sql.NullString
		active     sql.NullBool
	)
	err := row.Scan(&r.ID, &active, &prev, &next, &r.CaseNumber, &r.CourtDetails,
		&r.CourtType, &r.OurParty, &r.Purpose, &r.Notes)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return r, err
		}
		return r, fmt.Errorf("failed to scan case: %w", err)
	}
	r.Active = active.Valid && active.Bool
	r.PreviousDate = prev.String
	r.NextDate = next.String
	return r, nil
}

func nullDate(s string) interface{} {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return s
}
