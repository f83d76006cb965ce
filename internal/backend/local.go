package backend

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/mail"
	"net/url"
	"strings"
	"time"

	"github.com/Ashfaaq98/case-tracker/internal/bus"
	"github.com/Ashfaaq98/case-tracker/internal/cases"
	"github.com/Ashfaaq98/case-tracker/internal/store"
)

// Defaults for the local backend
const (
	DefaultLinkTTL    = 15 * time.Minute
	DefaultSessionTTL = 7 * 24 * time.Hour
	DefaultLinkURL    = "case-tracker://verify"
	minSecretLen      = 16
)

// LocalOptions configures a Local backend
type LocalOptions struct {
	LinkTTL    time.Duration
	SessionTTL time.Duration
	LinkURL    string // base of the emailed link; the token is appended as ?token=
	Mailer     Mailer
	Bus        bus.Bus
	Logger     *log.Logger
}

// Local is a self-hosted backend over SQLite with emailed magic links and
// HS256 session tokens.
type Local struct {
	store    *store.Store
	sessions *SessionFile
	secret   []byte
	opts     LocalOptions
	hub      *sessionHub
	now      func() time.Time
}

// NewLocal creates a local backend. It takes ownership of st and opts.Bus.
func NewLocal(st *store.Store, sessions *SessionFile, secret []byte, opts LocalOptions) (*Local, error) {
	if len(secret) < minSecretLen {
		return nil, fmt.Errorf("jwt secret must be at least %d bytes", minSecretLen)
	}
	if opts.Logger == nil {
		opts.Logger = log.New(io.Discard, "", 0)
	}
	if opts.LinkTTL <= 0 {
		opts.LinkTTL = DefaultLinkTTL
	}
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = DefaultSessionTTL
	}
	if opts.LinkURL == "" {
		opts.LinkURL = DefaultLinkURL
	}
	if opts.Mailer == nil {
		return nil, errors.New("local backend requires a mailer")
	}
	if opts.Bus == nil {
		opts.Bus = bus.NewNullBus(opts.Logger)
	}

	l := &Local{
		store:    st,
		sessions: sessions,
		secret:   secret,
		opts:     opts,
		now:      time.Now,
	}
	l.hub = newSessionHub(sessions, l.currentIdentity, opts.Logger)
	return l, nil
}

// Store exposes the underlying store for maintenance commands.
func (l *Local) Store() *store.Store {
	return l.store
}

// Bus exposes the change-notification bus.
func (l *Local) Bus() bus.Bus {
	return l.opts.Bus
}

func (l *Local) currentIdentity() *Identity {
	id, err := l.GetCurrentSession(context.Background())
	if err != nil {
		l.opts.Logger.Printf("Failed to read session: %v", err)
		return nil
	}
	return id
}

// GetCurrentSession returns the identity in a valid stored session.
// An expired or tampered token counts as no session.
func (l *Local) GetCurrentSession(ctx context.Context) (*Identity, error) {
	s, err := l.sessions.Load()
	if err != nil || s == nil {
		return nil, err
	}
	id, err := parseSessionToken(s.AccessToken, l.secret, l.now())
	if err != nil {
		l.opts.Logger.Printf("Ignoring stored session: %v", err)
		return nil, nil
	}
	return id, nil
}

// SubscribeSessionChanges registers fn for session changes
func (l *Local) SubscribeSessionChanges(fn func(*Identity)) *Subscription {
	return l.hub.subscribe(fn)
}

// RequestMagicLink validates email, stores a hashed single-use token and mails the link.
func (l *Local) RequestMagicLink(ctx context.Context, email string) error {
	addr, err := mail.ParseAddress(strings.TrimSpace(email))
	if err != nil || !strings.Contains(addr.Address, "@") {
		return ErrInvalidEmail
	}
	address := strings.ToLower(addr.Address)
	now := l.now()

	if n, err := l.store.DeleteExpiredMagicLinks(ctx, now); err != nil {
		l.opts.Logger.Printf("Failed to purge expired links: %v", err)
	} else if n > 0 {
		l.opts.Logger.Printf("Purged %d expired login links", n)
	}

	pair, err := generateLinkToken()
	if err != nil {
		return err
	}
	if _, err := l.store.SaveMagicLink(ctx, store.MagicLink{
		TokenHash: pair.Hash,
		Email:     address,
		ExpiresAt: now.Add(l.opts.LinkTTL),
	}); err != nil {
		return err
	}

	link := l.opts.LinkURL + "?token=" + url.QueryEscape(pair.Token)
	body := fmt.Sprintf("Open this link to sign in to Case Tracker:\r\n\r\n%s\r\n\r\nOr run:\r\n\r\n  case-tracker verify %s\r\n\r\nThe link expires in %s and works once.\r\n",
		link, pair.Token, l.opts.LinkTTL)
	if err := l.opts.Mailer.Send(ctx, Message{To: address, Subject: "Your Case Tracker login link", Body: body}); err != nil {
		return fmt.Errorf("failed to send login link: %w", err)
	}

	if err := l.store.LogSessionAction(ctx, store.ActionLinkSent, address); err != nil {
		l.opts.Logger.Printf("Failed to audit link request: %v", err)
	}
	return nil
}

// VerifyMagicLink consumes the token, then issues and persists a session.
func (l *Local) VerifyMagicLink(ctx context.Context, tokenOrLink string) (*Identity, error) {
	_, token := extractToken(tokenOrLink)
	if token == "" {
		return nil, ErrInvalidLink
	}
	now := l.now()

	email, err := l.store.ConsumeMagicLink(ctx, hashToken(token), now)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return nil, ErrInvalidLink
	case errors.Is(err, store.ErrExpired):
		return nil, ErrLinkExpired
	case err != nil:
		return nil, err
	}

	user, err := l.store.GetOrCreateUser(ctx, email)
	if err != nil {
		return nil, err
	}
	id := Identity{UserID: user.ID, Email: user.Email}

	access, exp, err := issueSessionToken(id, l.secret, now, l.opts.SessionTTL)
	if err != nil {
		return nil, err
	}
	if err := l.sessions.Save(&Session{AccessToken: access, ExpiresAt: exp, User: id}); err != nil {
		return nil, err
	}
	l.hub.publish(&id)

	if err := l.store.LogSessionAction(ctx, store.ActionSignedIn, id.Email); err != nil {
		l.opts.Logger.Printf("Failed to audit sign-in: %v", err)
	}
	l.publish(ctx, bus.ChangeMessage{Kind: bus.KindSignedIn, Actor: id.Email}, true)
	l.opts.Logger.Printf("Signed in %s", id.Email)
	return &id, nil
}

// SignOut removes the stored session. Signing out with no session succeeds.
func (l *Local) SignOut(ctx context.Context) error {
	id, err := l.GetCurrentSession(ctx)
	if err != nil {
		l.opts.Logger.Printf("Failed to read session before sign-out: %v", err)
	}
	if err := l.sessions.Clear(); err != nil {
		return err
	}
	l.hub.publish(nil)

	if id != nil {
		if err := l.store.LogSessionAction(ctx, store.ActionSignedOut, id.Email); err != nil {
			l.opts.Logger.Printf("Failed to audit sign-out: %v", err)
		}
		l.publish(ctx, bus.ChangeMessage{Kind: bus.KindSignedOut, Actor: id.Email}, true)
		l.opts.Logger.Printf("Signed out %s", id.Email)
	}
	return nil
}

func (l *Local) requireIdentity(ctx context.Context) (*Identity, error) {
	id, err := l.GetCurrentSession(ctx)
	if err != nil {
		return nil, err
	}
	if id == nil {
		return nil, ErrNotAuthenticated
	}
	return id, nil
}

// ListCases returns cases for a signed-in user
func (l *Local) ListCases(ctx context.Context, opts ListOptions) ([]cases.Record, error) {
	if _, err := l.requireIdentity(ctx); err != nil {
		return nil, err
	}
	opts = opts.withDefaults()
	return l.store.ListCases(ctx, store.ListOptions{
		OrderBy:    opts.OrderBy,
		Descending: !opts.Ascending,
		Limit:      opts.Limit,
	})
}

// InsertCase stores a new case; any id on record is ignored.
func (l *Local) InsertCase(ctx context.Context, record cases.Record) error {
	id, err := l.requireIdentity(ctx)
	if err != nil {
		return err
	}
	caseID, err := l.store.InsertCase(ctx, cases.Normalize(record))
	if err != nil {
		return err
	}

	if err := l.store.LogCaseAction(ctx, caseID, store.ActionCaseCreated, id.Email, map[string]interface{}{
		"case_number": record.CaseNumber,
	}); err != nil {
		l.opts.Logger.Printf("Failed to audit case %d: %v", caseID, err)
	}
	l.publish(ctx, bus.ChangeMessage{Kind: bus.KindCaseCreated, CaseID: caseID, CaseNumber: record.CaseNumber, Actor: id.Email}, false)
	return nil
}

// UpdateCase replaces the case with the given id
func (l *Local) UpdateCase(ctx context.Context, caseID int64, record cases.Record) error {
	id, err := l.requireIdentity(ctx)
	if err != nil {
		return err
	}
	if err := l.store.UpdateCase(ctx, caseID, cases.Normalize(record)); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("case %d: %w", caseID, err)
		}
		return err
	}

	if err := l.store.LogCaseAction(ctx, caseID, store.ActionCaseUpdated, id.Email, map[string]interface{}{
		"case_number": record.CaseNumber,
	}); err != nil {
		l.opts.Logger.Printf("Failed to audit case %d: %v", caseID, err)
	}
	l.publish(ctx, bus.ChangeMessage{Kind: bus.KindCaseUpdated, CaseID: caseID, CaseNumber: record.CaseNumber, Actor: id.Email}, false)
	return nil
}

// publish sends a change notification; failures are logged, never returned.
func (l *Local) publish(ctx context.Context, msg bus.ChangeMessage, session bool) {
	msg.Timestamp = l.now().Unix()
	var err error
	if session {
		err = l.opts.Bus.PublishSessionChange(ctx, msg)
	} else {
		err = l.opts.Bus.PublishCaseChange(ctx, msg)
	}
	if err != nil {
		l.opts.Logger.Printf("Failed to publish %s: %v", msg.Kind, err)
	}
}

// Close stops the session watcher and releases the bus and store.
func (l *Local) Close() error {
	l.hub.close()
	busErr := l.opts.Bus.Close()
	if err := l.store.Close(); err != nil {
		return fmt.Errorf("failed to close store: %w", err)
	}
	if busErr != nil {
		return fmt.Errorf("failed to close bus: %w", busErr)
	}
	return nil
}
