package bus

import (
	"bytes"
	"context"
	"log"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewBusFallsBackToNull(t *testing.T) {
	b := NewBus("", nil)
	_, ok := b.(*NullBus)
	assert.True(t, ok, "empty URL should yield NullBus")

	b = NewBus("not-a-redis-url", nil)
	_, ok = b.(*NullBus)
	assert.True(t, ok, "invalid URL should yield NullBus")
}

func TestNullBusPublishLogs(t *testing.T) {
	var buf bytes.Buffer
	nb := NewNullBus(log.New(&buf, "", 0))
	ctx := context.Background()

	require.NoError(t, nb.PublishCaseChange(ctx, ChangeMessage{Kind: KindCaseCreated, CaseID: 7}))
	require.NoError(t, nb.PublishSessionChange(ctx, ChangeMessage{Kind: KindSignedIn, Actor: "a@example.com"}))
	assert.Contains(t, buf.String(), "case_created for case 7")
	assert.Contains(t, buf.String(), "signed_in for a@example.com")

	stats, err := nb.GetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, "null", stats["type"])
	assert.NoError(t, nb.HealthCheck(ctx))
	assert.NoError(t, nb.Close())
}

func TestNullBusReadBlocksUntilCancel(t *testing.T) {
	nb := NewNullBus(log.New(&bytes.Buffer{}, "", 0))
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := nb.ReadCaseChanges(ctx, "g", "c", func(context.Context, ChangeMessage) error {
		t.Fatal("handler must not be called")
		return nil
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestChangeCodecRoundTrip(t *testing.T) {
	in := ChangeMessage{Kind: KindCaseUpdated, CaseID: 42, CaseNumber: "CV-1", Actor: "a@example.com", Timestamp: 1710500000}
	fields := map[string]string{}
	for k, v := range encodeChange(in) {
		switch val := v.(type) {
		case string:
			fields[k] = val
		case int64:
			fields[k] = strconv.FormatInt(val, 10)
		}
	}
	assert.Equal(t, in, decodeChange(fields))
}

func TestParseTimestamp(t *testing.T) {
	ts, err := parseTimestamp("1710500000000")
	require.NoError(t, err)
	assert.Equal(t, int64(1710500000), ts)

	ts, err = parseTimestamp("2024-03-15T12:00:00Z")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC).Unix(), ts)

	_, err = parseTimestamp("yesterday")
	assert.Error(t, err)
}
