package cmd

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Ashfaaq98/case-tracker/internal/backend"
	"github.com/Ashfaaq98/case-tracker/internal/bus"
	"github.com/Ashfaaq98/case-tracker/internal/cases"
	"github.com/Ashfaaq98/case-tracker/internal/store"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// listOnly serves a fixed case list; every other call is unused here
type listOnly struct {
	backend.Backend
	records []cases.Record
	opts    backend.ListOptions
}

func (l *listOnly) ListCases(_ context.Context, opts backend.ListOptions) ([]cases.Record, error) {
	l.opts = opts
	return l.records, nil
}

func TestListCasesFiltersAndNormalizes(t *testing.T) {
	b := &listOnly{records: []cases.Record{
		{ID: 1, Active: true, CaseNumber: "CV-1", CourtDetails: "High Court", OurParty: "Acme", NextDate: "2024-04-01T09:00:00Z"},
		{ID: 2, CaseNumber: "CR-9", CourtDetails: "District", OurParty: "Smith"},
	}}
	var out bytes.Buffer

	require.NoError(t, listCases(context.Background(), &out, b, "acme", 0))

	assert.Equal(t, backend.DefaultListOptions(), b.opts)
	text := out.String()
	assert.Contains(t, text, "Found 1 cases:")
	assert.Contains(t, text, "1. [ACTIVE] CV-1 — High Court")
	assert.Contains(t, text, "Previous: -  Next: 2024-04-01\n")
	assert.NotContains(t, text, "CR-9")
}

func TestListCasesEmptyAndLimit(t *testing.T) {
	b := &listOnly{records: sampleCases(4, time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC))}

	var out bytes.Buffer
	require.NoError(t, listCases(context.Background(), &out, b, "", 2))
	assert.Contains(t, out.String(), "Found 2 cases:")

	out.Reset()
	require.NoError(t, listCases(context.Background(), &out, b, "no such case", 0))
	assert.Equal(t, "No cases found.\n", out.String())
}

func TestListAudit(t *testing.T) {
	st, err := store.NewStore(filepath.Join(t.TempDir(), "cases.db"))
	require.NoError(t, err)
	defer st.Close()
	ctx := context.Background()

	require.NoError(t, st.LogCaseAction(ctx, 3, store.ActionCaseCreated, "a@example.com", map[string]interface{}{"case_number": "CV-3"}))

	var out bytes.Buffer
	require.NoError(t, listAudit(ctx, &out, st, 3, 0))
	assert.Contains(t, out.String(), "case_created by a@example.com")
	assert.Contains(t, out.String(), "Details: case_number=CV-3")

	out.Reset()
	require.NoError(t, listAudit(ctx, &out, st, 99, 0))
	assert.Equal(t, "No audit entries found.\n", out.String())
}

func TestSampleCases(t *testing.T) {
	now := time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)
	records := sampleCases(6, now)
	require.Len(t, records, 6)

	first := records[0]
	assert.Equal(t, "Ci-100/2024", first.CaseNumber)
	assert.Equal(t, "2024-03-08", first.PreviousDate)
	assert.Equal(t, "2024-03-18", first.NextDate)
	assert.True(t, first.Active)

	assert.Empty(t, records[2].NextDate, "every third case has no next date")
	assert.False(t, records[3].Active)
	for _, r := range records {
		assert.False(t, r.HasID())
	}
}

func TestResolvePathRelativeToBase(t *testing.T) {
	assert.Equal(t, filepath.Join("/base", "data", "x.db"), resolvePathRelativeToBase("/base", "./data/x.db"))
	assert.Equal(t, "/abs/x.db", resolvePathRelativeToBase("/base", "/abs/x.db"))
	assert.Equal(t, ":memory:", resolvePathRelativeToBase("/base", ":memory:"))
}

func TestErrorFilterWriter(t *testing.T) {
	var out bytes.Buffer
	w := &errorFilterWriter{&out}

	n, err := w.Write([]byte("Fetched 3 cases\n"))
	require.NoError(t, err)
	assert.Equal(t, 16, n)
	assert.Empty(t, out.String())

	_, err = w.Write([]byte("Save failed: boom\n"))
	require.NoError(t, err)
	assert.Equal(t, "Save failed: boom\n", out.String())
}

func TestPrintChange(t *testing.T) {
	ts := time.Date(2024, 3, 15, 10, 0, 0, 0, time.Local).Unix()
	var out bytes.Buffer

	printChange(&out, bus.ChangeMessage{Kind: bus.KindCaseUpdated, CaseID: 7, CaseNumber: "CV-7", Actor: "a@example.com", Timestamp: ts})
	printChange(&out, bus.ChangeMessage{Kind: bus.KindSignedOut, Actor: "a@example.com", Timestamp: ts})

	assert.Equal(t,
		"2024-03-15 10:00:00 case_updated case 7 (CV-7) by a@example.com\n"+
			"2024-03-15 10:00:00 signed_out by a@example.com\n",
		out.String())
}

func TestConfigBackend(t *testing.T) {
	c := Config{
		Supabase: SupabaseConfig{URL: "https://x.supabase.co", AnonKey: "anon"},
		Local:    LocalConfig{DBPath: "db", LinkTTL: time.Minute},
		Session:  SessionConfig{File: "s.json"},
		Redis:    RedisConfig{URL: "redis://r"},
	}

	got := c.Backend()
	assert.Equal(t, "https://x.supabase.co", got.SupabaseURL)
	assert.Equal(t, "anon", got.SupabaseAnonKey)
	assert.Equal(t, "db", got.DBPath)
	assert.Equal(t, time.Minute, got.LinkTTL)
	assert.Equal(t, "s.json", got.SessionFile)
	assert.Equal(t, "redis://r", got.RedisURL)
	assert.Equal(t, "[supabase] ", backendPrefix(c))
	assert.Equal(t, "[local] ", backendPrefix(Config{}))
}

func TestConfirmReadsCommandInput(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"yes\n", true},
		{"Y\n", true},
		{"  y  ", true},
		{"no\n", false},
		{"\n", false},
		{"", false},
	}
	for _, tt := range tests {
		c := &cobra.Command{}
		var out bytes.Buffer
		c.SetIn(strings.NewReader(tt.input))
		c.SetOut(&out)

		assert.Equal(t, tt.want, confirm(c, "Continue? "), "input %q", tt.input)
		assert.Equal(t, "Continue? ", out.String())
	}
}
