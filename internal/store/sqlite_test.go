package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/Ashfaaq98/case-tracker/internal/cases"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestNewStore(t *testing.T) {
	store := newTestStore(t)

	// Verify tables were created
	for _, table := range []string{"cases", "users", "magic_links", "audit_entries"} {
		var count int
		err := store.db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&count)
		require.NoError(t, err)
		assert.Equal(t, 1, count, "expected table %s", table)
	}
}

func TestNewStoreCreatesDirectory(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nested", "dir", "cases.db")
	s, err := NewStore(dbPath)
	require.NoError(t, err)
	defer s.Close()

	assert.FileExists(t, dbPath)
}

func TestInsertAndGetCase(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	id, err := store.InsertCase(ctx, cases.Record{
		ID:           99, // ignored
		Active:       true,
		PreviousDate: "2024-03-15",
		CaseNumber:   "CV-1",
		CourtDetails: "District",
		OurParty:     "Acme",
	})
	require.NoError(t, err)
	assert.NotEqual(t, int64(99), id)

	got, err := store.GetCase(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, id, got.ID)
	assert.True(t, got.Active)
	assert.Equal(t, "2024-03-15", got.PreviousDate)
	assert.Empty(t, got.NextDate, "empty date should round-trip as NULL")
	assert.Equal(t, "CV-1", got.CaseNumber)
	assert.Equal(t, "Acme", got.OurParty)
}

func TestGetCaseNotFound(t *testing.T) {
	store := newTestStore(t)
	_, err := store.GetCase(context.Background(), 12345)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateCase(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	id, err := store.InsertCase(ctx, cases.Record{Active: true, CaseNumber: "CV-1"})
	require.NoError(t, err)

	err = store.UpdateCase(ctx, id, cases.Record{Active: false, CaseNumber: "CV-1A", NextDate: "2024-05-01"})
	require.NoError(t, err)

	got, err := store.GetCase(ctx, id)
	require.NoError(t, err)
	assert.False(t, got.Active)
	assert.Equal(t, "CV-1A", got.CaseNumber)
	assert.Equal(t, "2024-05-01", got.NextDate)

	err = store.UpdateCase(ctx, id+100, cases.Record{})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListCasesOrderAndLimit(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for _, next := range []string{"2024-03-01", "", "2024-01-10", "2024-02-20"} {
		_, err := store.InsertCase(ctx, cases.Record{CaseNumber: "n" + next, NextDate: next})
		require.NoError(t, err)
	}

	got, err := store.ListCases(ctx, ListOptions{OrderBy: "next_date", Limit: 1000})
	require.NoError(t, err)
	require.Len(t, got, 4)
	assert.Equal(t, "2024-01-10", got[0].NextDate)
	assert.Equal(t, "2024-02-20", got[1].NextDate)
	assert.Equal(t, "2024-03-01", got[2].NextDate)
	assert.Empty(t, got[3].NextDate, "NULL next_date sorts last")

	limited, err := store.ListCases(ctx, ListOptions{OrderBy: "next_date", Limit: 2})
	require.NoError(t, err)
	assert.Len(t, limited, 2)

	desc, err := store.ListCases(ctx, ListOptions{OrderBy: "next_date", Descending: true})
	require.NoError(t, err)
	assert.Empty(t, desc[0].NextDate, "NULL next_date sorts first descending")
	assert.Equal(t, "2024-03-01", desc[1].NextDate)
}

func TestListCasesRejectsUnknownColumn(t *testing.T) {
	store := newTestStore(t)
	_, err := store.ListCases(context.Background(), ListOptions{OrderBy: "notes; DROP TABLE cases"})
	assert.Error(t, err)
}

func TestListCasesEmpty(t *testing.T) {
	store := newTestStore(t)
	got, err := store.ListCases(context.Background(), ListOptions{})
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestCountAndReset(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := store.InsertCase(ctx, cases.Record{CaseNumber: "x"})
		require.NoError(t, err)
	}
	n, err := store.CountCases(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	require.NoError(t, store.Reset(ctx))
	n, err = store.CountCases(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	id, err := store.InsertCase(ctx, cases.Record{CaseNumber: "fresh"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), id, "ids restart after reset")
}

func TestUpdatedAtUsesClock(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	fixed := time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return fixed }

	id, err := store.InsertCase(ctx, cases.Record{CaseNumber: "CV-1"})
	require.NoError(t, err)

	var createdAt, updatedAt int64
	require.NoError(t, store.db.QueryRow(`SELECT created_at, updated_at FROM cases WHERE id = ?`, id).Scan(&createdAt, &updatedAt))
	assert.Equal(t, fixed.Unix(), createdAt)
	assert.Equal(t, fixed.Unix(), updatedAt)
}
