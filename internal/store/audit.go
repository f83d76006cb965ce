package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Audit actions recorded by the local backend
const (
	ActionCaseCreated = "case_created"
	ActionCaseUpdated = "case_updated"
	ActionSignedIn    = "signed_in"
	ActionSignedOut   = "signed_out"
	ActionLinkSent    = "magic_link_sent"
)

// AuditEntry represents an audit log entry
type AuditEntry struct {
	ID        string                 `json:"id"`
	CaseID    int64                  `json:"case_id,omitempty"` // 0 for session actions
	Action    string                 `json:"action"`
	Actor     string                 `json:"actor"`   // email of the signed-in user
	Details   map[string]interface{} `json:"details"` // action-specific data
	Timestamp time.Time              `json:"timestamp"`
}

// setupAuditTables creates the audit table if it doesn't exist
func (s *Store) setupAuditTables() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS audit_entries (
			id TEXT PRIMARY KEY,
			case_id INTEGER NOT NULL DEFAULT 0,
			action TEXT NOT NULL,
			actor TEXT NOT NULL,
			details TEXT NOT NULL,
			timestamp INTEGER NOT NULL
		)`,

		`CREATE INDEX IF NOT EXISTS idx_audit_case_id ON audit_entries(case_id)`,
		`CREATE INDEX IF NOT EXISTS idx_audit_timestamp ON audit_entries(timestamp)`,
		`CREATE INDEX IF NOT EXISTS idx_audit_action ON audit_entries(action)`,
	}

	for _, migration := range migrations {
		if _, err := s.db.Exec(migration); err != nil {
			return fmt.Errorf("failed to execute audit migration: %w", err)
		}
	}
	return nil
}

// AddAuditEntry adds an audit entry to the database
func (s *Store) AddAuditEntry(ctx context.Context, entry AuditEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = s.now()
	}
	if entry.Details == nil {
		entry.Details = map[string]interface{}{}
	}

	detailsJSON, err := json.Marshal(entry.Details)
	if err != nil {
		return fmt.Errorf("failed to marshal audit details: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `INSERT INTO audit_entries (id, case_id, action, actor, details, timestamp)
		VALUES (?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.CaseID, entry.Action, entry.Actor, string(detailsJSON), entry.Timestamp.UnixNano())
	if err != nil {
		return fmt.Errorf("failed to insert audit entry: %w", err)
	}

	return nil
}

// GetAuditEntries retrieves audit entries for a case, newest first.
// A caseID of 0 returns session entries.
func (s *Store) GetAuditEntries(ctx context.Context, caseID int64, limit int) ([]AuditEntry, error) {
	query := `SELECT id, case_id, action, actor, details, timestamp
		FROM audit_entries WHERE case_id = ? ORDER BY timestamp DESC, rowid DESC`
	args := []interface{}{caseID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit entries: %w", err)
	}
	defer rows.Close()

	var entries []AuditEntry
	for rows.Next() {
		var (
			entry       AuditEntry
			detailsJSON string
			timestamp   int64
		)
		if err := rows.Scan(&entry.ID, &entry.CaseID, &entry.Action, &entry.Actor, &detailsJSON, &timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		entry.Timestamp = time.Unix(0, timestamp)

		if err := json.Unmarshal([]byte(detailsJSON), &entry.Details); err != nil {
			// If unmarshaling fails, store as string
			entry.Details = map[string]interface{}{"raw": detailsJSON}
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audit rows: %w", err)
	}

	return entries, nil
}

// LogCaseAction logs a case-related action
func (s *Store) LogCaseAction(ctx context.Context, caseID int64, action, actor string, details map[string]interface{}) error {
	return s.AddAuditEntry(ctx, AuditEntry{
		CaseID:  caseID,
		Action:  action,
		Actor:   actor,
		Details: details,
	})
}

// LogSessionAction logs a sign-in, sign-out or link request
func (s *Store) LogSessionAction(ctx context.Context, action, actor string) error {
	return s.AddAuditEntry(ctx, AuditEntry{
		Action: action,
		Actor:  actor,
	})
}
