package app

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Ashfaaq98/case-tracker/internal/backend"
	"github.com/Ashfaaq98/case-tracker/internal/cases"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type updateCall struct {
	ID     int64
	Record cases.Record
}

// fakeBackend records calls and returns canned results.
type fakeBackend struct {
	mu sync.Mutex

	identity   *backend.Identity
	sessionErr error
	listResult []cases.Record
	listErr    error
	listGate   chan struct{} // when set, ListCases blocks until it is closed or receives
	linkErr    error
	signOutErr error
	writeErr   error

	listCalls   int
	linkEmails  []string
	inserts     []cases.Record
	updates     []updateCall
	signOuts    int
	subscribers []func(*backend.Identity)
	unsubs      int
}

func (f *fakeBackend) GetCurrentSession(context.Context) (*backend.Identity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.identity, f.sessionErr
}

func (f *fakeBackend) SubscribeSessionChanges(fn func(*backend.Identity)) *backend.Subscription {
	f.mu.Lock()
	f.subscribers = append(f.subscribers, fn)
	f.mu.Unlock()
	return backend.NewSubscription(func() {
		f.mu.Lock()
		f.unsubs++
		f.subscribers = nil
		f.mu.Unlock()
	})
}

func (f *fakeBackend) emit(id *backend.Identity) {
	f.mu.Lock()
	subs := append([]func(*backend.Identity){}, f.subscribers...)
	f.mu.Unlock()
	for _, fn := range subs {
		fn(id)
	}
}

func (f *fakeBackend) subscriberCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subscribers)
}

func (f *fakeBackend) RequestMagicLink(_ context.Context, email string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.linkEmails = append(f.linkEmails, email)
	return f.linkErr
}

func (f *fakeBackend) VerifyMagicLink(context.Context, string) (*backend.Identity, error) {
	return f.identity, nil
}

func (f *fakeBackend) SignOut(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.signOuts++
	return f.signOutErr
}

func (f *fakeBackend) ListCases(ctx context.Context, opts backend.ListOptions) ([]cases.Record, error) {
	f.mu.Lock()
	f.listCalls++
	gate := f.listGate
	result := append([]cases.Record(nil), f.listResult...)
	err := f.listErr
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}
	return result, err
}

func (f *fakeBackend) InsertCase(_ context.Context, r cases.Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inserts = append(f.inserts, r)
	return f.writeErr
}

func (f *fakeBackend) UpdateCase(_ context.Context, id int64, r cases.Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates = append(f.updates, updateCall{ID: id, Record: r})
	return f.writeErr
}

func (f *fakeBackend) Close() error { return nil }

func (f *fakeBackend) calls() (list, inserts, updates int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.listCalls, len(f.inserts), len(f.updates)
}

type alerts struct {
	mu   sync.Mutex
	msgs []string
}

func (a *alerts) Alert(msg string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.msgs = append(a.msgs, msg)
}

func (a *alerts) all() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.msgs...)
}

var fixedNow = func() time.Time { return time.Date(2024, 3, 15, 9, 30, 0, 0, time.Local) }

func newTestApp(t *testing.T, fb *fakeBackend) (*App, *alerts) {
	t.Helper()
	al := &alerts{}
	a := New(fb, Options{Notifier: al, Now: fixedNow})
	t.Cleanup(a.Close)
	return a, al
}

var alice = &backend.Identity{UserID: "u1", Email: "alice@example.com"}

func TestStartWithoutSessionDoesNotFetch(t *testing.T) {
	fb := &fakeBackend{}
	a, _ := newTestApp(t, fb)

	require.NoError(t, a.Start(context.Background()))
	a.Close()

	list, _, _ := fb.calls()
	assert.Zero(t, list)
	assert.False(t, a.State().SignedIn())
}

func TestStartWithSessionFetchesOnce(t *testing.T) {
	fb := &fakeBackend{identity: alice, listResult: []cases.Record{{ID: 1, CaseNumber: "CV-1"}}}
	a, _ := newTestApp(t, fb)

	require.NoError(t, a.Start(context.Background()))
	// the subscription repeating the same identity must not fetch again
	fb.emit(alice)
	a.Close()

	list, _, _ := fb.calls()
	assert.Equal(t, 1, list)
	assert.Len(t, a.State().Cases, 1)
}

func TestStartSessionErrorIsAlerted(t *testing.T) {
	fb := &fakeBackend{sessionErr: errors.New("session store unreadable")}
	a, al := newTestApp(t, fb)

	assert.Error(t, a.Start(context.Background()))
	assert.Equal(t, []string{"session store unreadable"}, al.all())
}

func TestSessionTransitionsFetchOncePerSignIn(t *testing.T) {
	fb := &fakeBackend{}
	a, _ := newTestApp(t, fb)
	require.NoError(t, a.Start(context.Background()))

	fb.emit(alice)
	fb.emit(alice)
	fb.emit(nil)
	fb.emit(alice)
	a.Close()

	list, _, _ := fb.calls()
	assert.Equal(t, 2, list, "one fetch per absent to present transition")
}

func TestCloseUnsubscribes(t *testing.T) {
	fb := &fakeBackend{}
	a, _ := newTestApp(t, fb)
	require.NoError(t, a.Start(context.Background()))
	a.Close()
	a.Close()

	assert.Equal(t, 1, fb.unsubs)
}

func TestStartAfterCloseRegistersNothing(t *testing.T) {
	fb := &fakeBackend{identity: alice}
	a, _ := newTestApp(t, fb)

	a.Close()
	require.NoError(t, a.Start(context.Background()))
	a.Close()

	list, _, _ := fb.calls()
	assert.Zero(t, fb.subscriberCount(), "no listener may outlive Close")
	assert.Zero(t, list)
}

func TestStartRacingCloseLeavesNoListener(t *testing.T) {
	for i := 0; i < 50; i++ {
		fb := &fakeBackend{identity: alice}
		a, _ := newTestApp(t, fb)

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = a.Start(context.Background())
		}()
		go func() {
			defer wg.Done()
			a.Close()
		}()
		wg.Wait()

		// a late session event must not start a fetch after Close has waited
		fb.emit(nil)
		fb.emit(alice)
		assert.Zero(t, fb.subscriberCount(), "iteration %d", i)
	}
}

func TestSignOutResetsQuery(t *testing.T) {
	fb := &fakeBackend{identity: alice, listResult: []cases.Record{{ID: 1, OurParty: "Acme"}}}
	a, _ := newTestApp(t, fb)
	require.NoError(t, a.Start(context.Background()))
	a.Close()
	a.SetQuery("acme")

	a.SignOut(context.Background())

	assert.Empty(t, a.State().Query)
}

func TestSignInAlerts(t *testing.T) {
	fb := &fakeBackend{}
	a, al := newTestApp(t, fb)

	a.SignIn(context.Background(), "")
	assert.Equal(t, []string{""}, fb.linkEmails, "no local validation")
	assert.Equal(t, []string{LinkSentMessage}, al.all())

	fb.linkErr = errors.New("invalid email format")
	a.SignIn(context.Background(), "nope")
	assert.Equal(t, []string{LinkSentMessage, "invalid email format"}, al.all())
}

func TestFetchNormalizesAndReplaces(t *testing.T) {
	fb := &fakeBackend{listResult: []cases.Record{
		{ID: 1, PreviousDate: "2024-01-01T10:00:00+00:00", NextDate: "2024-01-10T00:00:00Z"},
		{ID: 2},
	}}
	a, _ := newTestApp(t, fb)

	a.Fetch(context.Background())
	st := a.State()
	require.Len(t, st.Cases, 2)
	assert.Equal(t, "2024-01-01", st.Cases[0].PreviousDate)
	assert.Equal(t, "2024-01-10", st.Cases[0].NextDate)
	assert.Empty(t, st.Cases[1].NextDate)
	assert.False(t, st.Loading)

	fb.listResult = []cases.Record{{ID: 3}}
	a.Fetch(context.Background())
	assert.Equal(t, int64(3), a.State().Cases[0].ID, "full replace")
}

func TestFetchCapsAtMax(t *testing.T) {
	many := make([]cases.Record, cases.MaxFetch+5)
	for i := range many {
		many[i].ID = int64(i + 1)
	}
	fb := &fakeBackend{listResult: many}
	a, _ := newTestApp(t, fb)

	a.Fetch(context.Background())
	assert.Len(t, a.State().Cases, cases.MaxFetch)
}

func TestFetchErrorKeepsPreviousList(t *testing.T) {
	fb := &fakeBackend{listResult: []cases.Record{{ID: 1}}}
	a, al := newTestApp(t, fb)
	a.Fetch(context.Background())

	fb.listErr = errors.New("permission denied for table cases")
	a.Fetch(context.Background())

	st := a.State()
	assert.Len(t, st.Cases, 1)
	assert.False(t, st.Loading)
	assert.Equal(t, []string{"permission denied for table cases"}, al.all())
}

func TestSupersededFetchIsDiscarded(t *testing.T) {
	gate := make(chan struct{})
	fb := &fakeBackend{listResult: []cases.Record{{ID: 1, CaseNumber: "old"}}, listGate: gate}
	a, _ := newTestApp(t, fb)

	done := make(chan struct{})
	go func() {
		a.Fetch(context.Background())
		close(done)
	}()
	require.Eventually(t, func() bool { l, _, _ := fb.calls(); return l == 1 }, time.Second, time.Millisecond)
	assert.True(t, a.State().Loading)

	// second fetch starts after the first and completes first
	fb.mu.Lock()
	fb.listResult = []cases.Record{{ID: 2, CaseNumber: "new"}}
	fb.listGate = nil
	fb.mu.Unlock()
	a.Fetch(context.Background())
	assert.True(t, a.State().Loading, "first fetch still in flight")

	close(gate)
	<-done

	st := a.State()
	require.Len(t, st.Cases, 1)
	assert.Equal(t, "new", st.Cases[0].CaseNumber)
	assert.False(t, st.Loading)
}

func TestSignOutClearsListEvenOnError(t *testing.T) {
	fb := &fakeBackend{identity: alice, listResult: []cases.Record{{ID: 1}, {ID: 2}}}
	a, al := newTestApp(t, fb)
	require.NoError(t, a.Start(context.Background()))
	a.Close()
	a.StartNew()

	fb.signOutErr = errors.New("network down")
	a.SignOut(context.Background())

	st := a.State()
	assert.Empty(t, st.Cases)
	assert.Nil(t, st.Identity)
	assert.Nil(t, st.Draft)
	assert.Equal(t, []string{"network down"}, al.all())
	assert.Equal(t, 1, fb.signOuts)
}

func TestSignOutSupersedesInflightFetch(t *testing.T) {
	gate := make(chan struct{})
	fb := &fakeBackend{listResult: []cases.Record{{ID: 1}}, listGate: gate}
	a, _ := newTestApp(t, fb)

	done := make(chan struct{})
	go func() {
		a.Fetch(context.Background())
		close(done)
	}()
	require.Eventually(t, func() bool { l, _, _ := fb.calls(); return l == 1 }, time.Second, time.Millisecond)

	a.SignOut(context.Background())
	close(gate)
	<-done

	assert.Empty(t, a.State().Cases)
}

func TestStartNewDraft(t *testing.T) {
	a, _ := newTestApp(t, &fakeBackend{})
	a.StartNew()

	st := a.State()
	require.NotNil(t, st.Draft)
	want := cases.Record{Active: true, PreviousDate: "2024-03-15"}
	if diff := cmp.Diff(want, *st.Draft); diff != "" {
		t.Fatalf("draft mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, uint64(1), st.DraftSeq)
}

func TestEditCopiesRecord(t *testing.T) {
	a, _ := newTestApp(t, &fakeBackend{})
	rec := cases.Record{ID: 42, CaseNumber: "CV-42", OurParty: "Acme"}
	a.Edit(rec)
	a.SetDraftField(cases.FieldOurParty, "Globex")

	assert.Equal(t, "Acme", rec.OurParty)
	st := a.State()
	assert.Equal(t, "Globex", st.Draft.OurParty)
	assert.Equal(t, "CV-42", st.Draft.CaseNumber)
}

func TestDraftUpdatesWithoutFormAreIgnored(t *testing.T) {
	a, _ := newTestApp(t, &fakeBackend{})
	a.SetDraftField(cases.FieldNotes, "x")
	a.SetDraftActive(false)
	assert.Nil(t, a.State().Draft)
	assert.ErrorIs(t, a.Save(context.Background()), ErrNoDraft)
}

func TestSaveNewInsertsOnce(t *testing.T) {
	fb := &fakeBackend{}
	a, _ := newTestApp(t, fb)
	a.StartNew()
	a.SetDraftField(cases.FieldCaseNumber, "CV-7")
	a.SetDraftActive(false)

	require.NoError(t, a.Save(context.Background()))

	list, inserts, updates := fb.calls()
	assert.Equal(t, 1, inserts)
	assert.Zero(t, updates)
	assert.Equal(t, 1, list, "save fetches again")
	assert.Equal(t, "CV-7", fb.inserts[0].CaseNumber)
	assert.False(t, fb.inserts[0].Active)
	assert.Nil(t, a.State().Draft, "form closes")
}

func TestSaveExistingUpdatesOnce(t *testing.T) {
	fb := &fakeBackend{}
	a, _ := newTestApp(t, fb)
	a.Edit(cases.Record{ID: 42, Active: true, CaseNumber: "CV-42"})
	a.SetDraftField(cases.FieldNextDate, "2024-06-01")

	require.NoError(t, a.Save(context.Background()))

	_, inserts, updates := fb.calls()
	assert.Zero(t, inserts)
	require.Equal(t, 1, updates)
	assert.Equal(t, int64(42), fb.updates[0].ID)
	assert.Equal(t, "2024-06-01", fb.updates[0].Record.NextDate)
}

func TestSaveErrorKeepsDraftOpen(t *testing.T) {
	fb := &fakeBackend{writeErr: errors.New(`null value in column "case_number"`)}
	a, al := newTestApp(t, fb)
	a.StartNew()

	err := a.Save(context.Background())
	assert.Error(t, err)

	st := a.State()
	require.NotNil(t, st.Draft)
	assert.False(t, st.Saving)
	assert.Equal(t, []string{`null value in column "case_number"`}, al.all())
	list, _, _ := fb.calls()
	assert.Zero(t, list, "no refetch after a failed save")
}

func TestCancelDiscardsWithoutWrites(t *testing.T) {
	fb := &fakeBackend{}
	a, _ := newTestApp(t, fb)
	a.Edit(cases.Record{ID: 1})
	a.SetDraftField(cases.FieldNotes, "changed")
	a.Cancel()

	assert.Nil(t, a.State().Draft)
	list, inserts, updates := fb.calls()
	assert.Zero(t, list+inserts+updates)
}

func TestOnChangeReceivesSnapshots(t *testing.T) {
	var (
		mu     sync.Mutex
		states []State
	)
	a := New(&fakeBackend{}, Options{
		Now: fixedNow,
		OnChange: func(s State) {
			mu.Lock()
			states = append(states, s)
			mu.Unlock()
		},
	})
	a.SetQuery("acme")
	a.StartNew()

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, states, 2)
	assert.Equal(t, "acme", states[0].Query)
	assert.Nil(t, states[0].Draft)
	assert.NotNil(t, states[1].Draft)
}

func TestEndToEndFetchAndFilter(t *testing.T) {
	fb := &fakeBackend{identity: alice, listResult: []cases.Record{
		{ID: 1, NextDate: "2024-01-10T00:00:00Z", CaseNumber: "CV-1", CourtDetails: "District", OurParty: "Acme"},
	}}
	a, _ := newTestApp(t, fb)
	require.NoError(t, a.Start(context.Background()))
	a.Close()

	st := a.State()
	require.Len(t, st.Cases, 1)
	assert.Equal(t, "2024-01-10", st.Cases[0].NextDate)

	a.SetQuery("acme")
	visible := a.Visible()
	require.Len(t, visible, 1)
	assert.Equal(t, int64(1), visible[0].ID)

	a.SetQuery("zzz")
	assert.Empty(t, a.Visible())
}
