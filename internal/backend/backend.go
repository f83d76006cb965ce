// Package backend abstracts the hosted service that owns authentication and
// case persistence. The app layer only ever talks to the Backend interface.
package backend

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/Ashfaaq98/case-tracker/internal/cases"
)

var (
	// ErrNotAuthenticated is returned by case operations when no valid session exists.
	ErrNotAuthenticated = errors.New("not signed in")
	// ErrInvalidEmail is returned when a magic link is requested for a malformed address.
	ErrInvalidEmail = errors.New("invalid email format")
	// ErrInvalidLink is returned when a magic-link token is unknown or already used.
	ErrInvalidLink = errors.New("login link is invalid or has already been used")
	// ErrLinkExpired is returned when a magic-link token is past its expiry.
	ErrLinkExpired = errors.New("login link has expired")
)

// Identity is the authenticated user's handle
type Identity struct {
	UserID string `json:"id"`
	Email  string `json:"email"`
}

// Session is what gets persisted between runs
type Session struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	ExpiresAt    time.Time `json:"expires_at"`
	User         Identity  `json:"user"`
}

// Expired reports whether the access token is no longer usable at now.
func (s *Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

// ListOptions describes a case query
type ListOptions struct {
	OrderBy   string
	Ascending bool
	Limit     int
}

// DefaultListOptions orders by next_date ascending and caps at cases.MaxFetch.
func DefaultListOptions() ListOptions {
	return ListOptions{OrderBy: "next_date", Ascending: true, Limit: cases.MaxFetch}
}

func (o ListOptions) withDefaults() ListOptions {
	if o.OrderBy == "" {
		o.OrderBy = "next_date"
	}
	if o.Limit <= 0 || o.Limit > cases.MaxFetch {
		o.Limit = cases.MaxFetch
	}
	return o
}

// Backend is the external collaborator for auth and case storage
type Backend interface {
	// GetCurrentSession returns the signed-in identity, or nil when there is none
	GetCurrentSession(ctx context.Context) (*Identity, error)

	// SubscribeSessionChanges calls fn with the new identity (or nil) on every session change
	SubscribeSessionChanges(fn func(*Identity)) *Subscription

	// RequestMagicLink asks the service to send a one-time login link to email
	RequestMagicLink(ctx context.Context, email string) error

	// VerifyMagicLink completes sign-in from a token or a full link
	VerifyMagicLink(ctx context.Context, tokenOrLink string) (*Identity, error)

	// SignOut terminates the current session
	SignOut(ctx context.Context) error

	ListCases(ctx context.Context, opts ListOptions) ([]cases.Record, error)
	InsertCase(ctx context.Context, record cases.Record) error
	UpdateCase(ctx context.Context, id int64, record cases.Record) error

	Close() error
}

// Subscription is a handle on a session-change listener
type Subscription struct {
	once   sync.Once
	cancel func()
}

// NewSubscription returns a Subscription that runs cancel on the first Unsubscribe.
func NewSubscription(cancel func()) *Subscription {
	return &Subscription{cancel: cancel}
}

// Unsubscribe releases the listener. Calling it more than once is safe.
func (s *Subscription) Unsubscribe() {
	if s == nil {
		return
	}
	s.once.Do(func() {
		if s.cancel != nil {
			s.cancel()
		}
	})
}

// APIError is an error response from the hosted service
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	return e.Message
}
