// Package app holds the case tracker's application state. All state changes
// go through App methods, and each change is reported to the OnChange
// listener with a fresh snapshot.
package app

import (
	"context"
	"errors"
	"io"
	"log"
	"slices"
	"sync"
	"time"

	"github.com/Ashfaaq98/case-tracker/internal/backend"
	"github.com/Ashfaaq98/case-tracker/internal/cases"
)

// LinkSentMessage is shown after a magic link was requested successfully.
const LinkSentMessage = "Check your email for a login link."

// Notifier shows a blocking message to the user
type Notifier interface {
	Alert(msg string)
}

// NotifierFunc adapts a function to Notifier
type NotifierFunc func(msg string)

// Alert calls f(msg)
func (f NotifierFunc) Alert(msg string) { f(msg) }

// State is a snapshot of everything the view renders
type State struct {
	Identity *backend.Identity
	Cases    []cases.Record
	Loading  bool
	Query    string
	Draft    *cases.Record
	DraftSeq uint64 // bumped whenever a form is opened
	Saving   bool
}

// SignedIn reports whether an identity is present
func (s State) SignedIn() bool {
	return s.Identity != nil
}

// Visible returns the records matching the current query
func (s State) Visible() []cases.Record {
	return slices.Collect(cases.Filter(s.Cases, s.Query))
}

// Options configures an App
type Options struct {
	Notifier Notifier
	OnChange func(State)
	Logger   *log.Logger
	Now      func() time.Time
}

// App is the state container
type App struct {
	backend  backend.Backend
	notifier Notifier
	onChange func(State)
	logger   *log.Logger
	now      func() time.Time

	mu        sync.Mutex
	ctx       context.Context
	state     State
	fetchGen  uint64 // identifies the fetch whose result may still be applied
	inflight  int
	sub       *backend.Subscription
	fetchWG   sync.WaitGroup
	closed    bool
	closeOnce sync.Once
}

// New creates an App over b
func New(b backend.Backend, opts Options) *App {
	if opts.Notifier == nil {
		opts.Notifier = NotifierFunc(func(string) {})
	}
	if opts.Logger == nil {
		opts.Logger = log.New(io.Discard, "", 0)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &App{
		backend:  b,
		notifier: opts.Notifier,
		onChange: opts.OnChange,
		logger:   opts.Logger,
		now:      opts.Now,
	}
}

// SetOnChange replaces the change listener
func (a *App) SetOnChange(fn func(State)) {
	a.mu.Lock()
	a.onChange = fn
	a.mu.Unlock()
}

// State returns a snapshot of the current state
func (a *App) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.snapshotLocked()
}

func (a *App) snapshotLocked() State {
	s := a.state
	s.Cases = slices.Clone(a.state.Cases)
	if a.state.Draft != nil {
		d := *a.state.Draft
		s.Draft = &d
	}
	if a.state.Identity != nil {
		id := *a.state.Identity
		s.Identity = &id
	}
	return s
}

// update applies fn under the lock and then notifies the listener.
func (a *App) update(fn func(s *State)) {
	a.mu.Lock()
	fn(&a.state)
	snap := a.snapshotLocked()
	listener := a.onChange
	a.mu.Unlock()

	if listener != nil {
		listener(snap)
	}
}

// Start reads the current session and subscribes to session changes.
func (a *App) Start(ctx context.Context) error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.ctx = ctx
	subscribe := a.sub == nil
	a.mu.Unlock()

	if subscribe {
		sub := a.backend.SubscribeSessionChanges(func(id *backend.Identity) {
			a.setIdentity(a.baseContext(), id)
		})
		a.mu.Lock()
		closed := a.closed
		if !closed {
			a.sub = sub
		}
		a.mu.Unlock()
		if closed {
			sub.Unsubscribe()
			return nil
		}
	}

	id, err := a.backend.GetCurrentSession(ctx)
	if err != nil {
		a.logger.Printf("Failed to read current session: %v", err)
		a.notifier.Alert(err.Error())
		return err
	}
	a.setIdentity(ctx, id)
	return nil
}

func (a *App) baseContext() context.Context {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.ctx == nil {
		return context.Background()
	}
	return a.ctx
}

// setIdentity replaces the identity wholesale. An absent to present
// transition starts exactly one fetch.
func (a *App) setIdentity(ctx context.Context, id *backend.Identity) {
	var signedIn, signedOut, fetch bool
	a.update(func(s *State) {
		signedIn = s.Identity == nil && id != nil
		signedOut = s.Identity != nil && id == nil
		s.Identity = id
		if signedOut {
			a.clearLocked(s)
		}
		// Add runs under the lock so Close never waits concurrently with it
		fetch = signedIn && !a.closed
		if fetch {
			a.fetchWG.Add(1)
		}
	})
	if signedIn {
		a.logger.Printf("Signed in as %s", id.Email)
	}
	if fetch {
		go func() {
			defer a.fetchWG.Done()
			a.Fetch(ctx)
		}()
	}
	if signedOut {
		a.logger.Printf("Session ended")
	}
}

// clearLocked empties the list, resets the query and closes any form.
// Pending fetches are superseded.
func (a *App) clearLocked(s *State) {
	a.fetchGen++
	s.Cases = nil
	s.Loading = false
	s.Draft = nil
	s.Query = ""
}

// Close releases the session subscription and waits for background fetches.
// A Start after Close does nothing.
func (a *App) Close() {
	a.closeOnce.Do(func() {
		a.mu.Lock()
		a.closed = true
		sub := a.sub
		a.sub = nil
		a.mu.Unlock()
		sub.Unsubscribe()
		a.fetchWG.Wait()
	})
}

// SignIn requests a magic link for email. The address is not checked here.
func (a *App) SignIn(ctx context.Context, email string) {
	if err := a.backend.RequestMagicLink(ctx, email); err != nil {
		a.logger.Printf("Magic link request failed: %v", err)
		a.notifier.Alert(err.Error())
		return
	}
	a.logger.Printf("Magic link requested for %s", email)
	a.notifier.Alert(LinkSentMessage)
}

// Verify completes a magic link from inside the app.
func (a *App) Verify(ctx context.Context, tokenOrLink string) {
	id, err := a.backend.VerifyMagicLink(ctx, tokenOrLink)
	if err != nil {
		a.logger.Printf("Magic link verification failed: %v", err)
		a.notifier.Alert(err.Error())
		return
	}
	a.setIdentity(ctx, id)
}

// SignOut ends the session. The case list is emptied even when the backend fails.
func (a *App) SignOut(ctx context.Context) {
	err := a.backend.SignOut(ctx)
	a.update(func(s *State) {
		s.Identity = nil
		a.clearLocked(s)
	})
	if err != nil {
		a.logger.Printf("Sign out failed: %v", err)
		a.notifier.Alert(err.Error())
	}
}

// Fetch replaces the list with the backend's cases. On error the previous
// list is kept. A fetch started later, or a sign-out, discards this result.
func (a *App) Fetch(ctx context.Context) {
	var gen uint64
	a.update(func(s *State) {
		a.fetchGen++
		gen = a.fetchGen
		a.inflight++
		s.Loading = true
	})

	records, err := a.backend.ListCases(ctx, backend.DefaultListOptions())

	var stale bool
	a.update(func(s *State) {
		a.inflight--
		s.Loading = a.inflight > 0
		if gen != a.fetchGen {
			stale = true
			return
		}
		if err == nil {
			if len(records) > cases.MaxFetch {
				records = records[:cases.MaxFetch]
			}
			s.Cases = cases.NormalizeAll(records)
		}
	})

	switch {
	case stale:
		a.logger.Printf("Discarded superseded fetch result")
	case err != nil:
		a.logger.Printf("Fetch failed: %v", err)
		a.notifier.Alert(err.Error())
	default:
		a.logger.Printf("Fetched %d cases", len(records))
	}
}

// SetQuery replaces the search text
func (a *App) SetQuery(q string) {
	a.update(func(s *State) { s.Query = q })
}

// Visible returns the records matching the current query
func (a *App) Visible() []cases.Record {
	return a.State().Visible()
}

// Edit opens the form on a copy of record
func (a *App) Edit(record cases.Record) {
	a.update(func(s *State) {
		d := record
		s.Draft = &d
		s.DraftSeq++
	})
}

// StartNew opens the form on a blank draft dated today
func (a *App) StartNew() {
	a.Edit(cases.NewDraft(a.now()))
}

// SetDraftField replaces one field of the draft
func (a *App) SetDraftField(f cases.Field, value string) {
	a.update(func(s *State) {
		if s.Draft == nil {
			return
		}
		d := s.Draft.With(f, value)
		s.Draft = &d
	})
}

// SetDraftActive sets the draft's active flag
func (a *App) SetDraftActive(active bool) {
	a.update(func(s *State) {
		if s.Draft == nil {
			return
		}
		d := s.Draft.WithActive(active)
		s.Draft = &d
	})
}

// ErrNoDraft is returned by Save when no form is open
var ErrNoDraft = errors.New("no case is being edited")

// Save writes the draft: an update when it has an id, an insert otherwise.
// On success the form closes and the list is fetched again. On failure the
// error is alerted and the draft stays open.
func (a *App) Save(ctx context.Context) error {
	var (
		draft  cases.Record
		seq    uint64
		status error
		busy   bool
	)
	a.update(func(s *State) {
		switch {
		case s.Draft == nil:
			status = ErrNoDraft
		case s.Saving:
			busy = true
		default:
			draft = *s.Draft
			seq = s.DraftSeq
			s.Saving = true
		}
	})
	if status != nil || busy {
		return status
	}

	var err error
	if draft.HasID() {
		err = a.backend.UpdateCase(ctx, draft.ID, draft)
	} else {
		err = a.backend.InsertCase(ctx, draft)
	}

	a.update(func(s *State) {
		s.Saving = false
		if err == nil && s.DraftSeq == seq {
			s.Draft = nil
		}
	})
	if err != nil {
		a.logger.Printf("Save failed: %v", err)
		a.notifier.Alert(err.Error())
		return err
	}

	a.logger.Printf("Saved case %q", draft.CaseNumber)
	a.Fetch(ctx)
	return nil
}

// Cancel discards the draft without writing or fetching
func (a *App) Cancel() {
	a.update(func(s *State) { s.Draft = nil })
}
