package backend

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateLinkToken(t *testing.T) {
	a, err := generateLinkToken()
	require.NoError(t, err)
	b, err := generateLinkToken()
	require.NoError(t, err)

	assert.NotEqual(t, a.Token, b.Token)
	assert.Len(t, a.Token, 43, "32 bytes in unpadded base64url")
	assert.Len(t, a.Hash, 64)
	assert.Equal(t, hashToken(a.Token), a.Hash)
	assert.NotContains(t, a.Hash, a.Token)
}

func TestExtractToken(t *testing.T) {
	tests := []struct {
		in      string
		wantKey string
		want    string
	}{
		{"abc_DEF-123", "token", "abc_DEF-123"},
		{"  abc  ", "token", "abc"},
		{"case-tracker://verify?token=abc", "token", "abc"},
		{"https://x.supabase.co/auth/v1/verify?token_hash=h1&type=magiclink", "token_hash", "h1"},
		{"http://localhost:3000/#access_token=jwt&refresh_token=r", "access_token", "jwt"},
		{"https://example.com/?foo=bar", "token", ""},
	}
	for _, tt := range tests {
		key, got := extractToken(tt.in)
		assert.Equal(t, tt.wantKey, key, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestSessionTokenRoundTrip(t *testing.T) {
	now := time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)
	id := Identity{UserID: "u1", Email: "a@example.com"}

	token, exp, err := issueSessionToken(id, testSecret, now, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, now.Add(time.Hour), exp)

	got, err := parseSessionToken(token, testSecret, now.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, id, *got)

	_, err = parseSessionToken(token, testSecret, now.Add(2*time.Hour))
	assert.Error(t, err, "expired")

	_, err = parseSessionToken(token, []byte("wrong-secret-wrong-secret"), now)
	assert.Error(t, err, "bad signature")

	peeked, peekExp, err := peekSessionToken(token)
	require.NoError(t, err)
	assert.Equal(t, id, *peeked)
	assert.True(t, exp.Equal(peekExp))
}
