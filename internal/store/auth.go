package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// User is a locally known account, keyed by email
type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

// MagicLink is a pending one-time sign-in link. Only the token hash is stored.
type MagicLink struct {
	ID        string
	TokenHash string
	Email     string
	ExpiresAt time.Time
	UsedAt    time.Time
	CreatedAt time.Time
}

// GetOrCreateUser returns the user for email, creating it on first sign-in.
func (s *Store) GetOrCreateUser(ctx context.Context, email string) (User, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	var (
		u         User
		createdAt int64
	)
	err := s.db.QueryRowContext(ctx, `SELECT id, email, created_at FROM users WHERE email = ?`, email).
		Scan(&u.ID, &u.Email, &createdAt)
	if err == nil {
		u.CreatedAt = time.Unix(createdAt, 0)
		return u, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return User{}, fmt.Errorf("failed to query user: %w", err)
	}

	u = User{ID: uuid.NewString(), Email: email, CreatedAt: s.now()}
	_, err = s.db.ExecContext(ctx, `INSERT INTO users (id, email, created_at) VALUES (?, ?, ?)
		ON CONFLICT(email) DO NOTHING`, u.ID, u.Email, u.CreatedAt.Unix())
	if err != nil {
		return User{}, fmt.Errorf("failed to create user: %w", err)
	}

	// Re-read in case a concurrent sign-in won the insert.
	err = s.db.QueryRowContext(ctx, `SELECT id, email, created_at FROM users WHERE email = ?`, email).
		Scan(&u.ID, &u.Email, &createdAt)
	if err != nil {
		return User{}, fmt.Errorf("failed to read user: %w", err)
	}
	u.CreatedAt = time.Unix(createdAt, 0)
	return u, nil
}

// SaveMagicLink records a freshly issued link.
func (s *Store) SaveMagicLink(ctx context.Context, link MagicLink) (string, error) {
	if link.ID == "" {
		link.ID = uuid.NewString()
	}
	if link.CreatedAt.IsZero() {
		link.CreatedAt = s.now()
	}

	_, err := s.db.ExecContext(ctx, `INSERT INTO magic_links (id, token_hash, email, expires_at, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		link.ID, link.TokenHash, strings.ToLower(strings.TrimSpace(link.Email)),
		link.ExpiresAt.Unix(), link.CreatedAt.Unix())
	if err != nil {
		return "", fmt.Errorf("failed to save magic link: %w", err)
	}
	return link.ID, nil
}

// ConsumeMagicLink marks the link with tokenHash as used and returns its email.
// Used and unknown links both report ErrNotFound.
func (s *Store) ConsumeMagicLink(ctx context.Context, tokenHash string, now time.Time) (string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var (
		id, email string
		expiresAt int64
		usedAt    sql.NullInt64
	)
	err = tx.QueryRowContext(ctx, `SELECT id, email, expires_at, used_at FROM magic_links WHERE token_hash = ?`, tokenHash).
		Scan(&id, &email, &expiresAt, &usedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("magic link: %w", ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("failed to query magic link: %w", err)
	}
	if usedAt.Valid {
		return "", fmt.Errorf("magic link already used: %w", ErrNotFound)
	}
	if !now.Before(time.Unix(expiresAt, 0)) {
		return "", fmt.Errorf("magic link: %w", ErrExpired)
	}

	res, err := tx.ExecContext(ctx, `UPDATE magic_links SET used_at = ? WHERE id = ? AND used_at IS NULL`, now.Unix(), id)
	if err != nil {
		return "", fmt.Errorf("failed to consume magic link: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return "", fmt.Errorf("magic link already used: %w", ErrNotFound)
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit magic link: %w", err)
	}
	return email, nil
}

// DeleteExpiredMagicLinks removes links that expired or were used before now.
func (s *Store) DeleteExpiredMagicLinks(ctx context.Context, now time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM magic_links WHERE expires_at <= ? OR used_at IS NOT NULL`, now.Unix())
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired magic links: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}
