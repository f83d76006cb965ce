package backend

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	linkTokenBytes = 32 // 256 bits
	localIssuer    = "case-tracker-local"
)

type tokenPair struct {
	Token string // value sent in the link
	Hash  string // value in storage
}

func generateLinkToken() (*tokenPair, error) {
	b := make([]byte, linkTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return nil, fmt.Errorf("failed to generate link token: %w", err)
	}
	token := base64.RawURLEncoding.EncodeToString(b)
	return &tokenPair{Token: token, Hash: hashToken(token)}, nil
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// extractToken accepts a bare token or a link carrying token=, token_hash=
// or access_token= in its query or fragment.
func extractToken(tokenOrLink string) (string, string) {
	s := strings.TrimSpace(tokenOrLink)
	if !strings.Contains(s, "://") && !strings.ContainsAny(s, "?#=") {
		return "token", s
	}
	u, err := url.Parse(s)
	if err != nil {
		return "token", s
	}
	for _, vals := range []string{u.Fragment, u.RawQuery} {
		q, err := url.ParseQuery(vals)
		if err != nil {
			continue
		}
		for _, key := range []string{"access_token", "token_hash", "token"} {
			if v := q.Get(key); v != "" {
				return key, v
			}
		}
	}
	return "token", ""
}

// sessionClaims are the JWT claims carried by session access tokens.
type sessionClaims struct {
	jwt.RegisteredClaims
	Email string `json:"email"`
}

func issueSessionToken(id Identity, secret []byte, now time.Time, ttl time.Duration) (string, time.Time, error) {
	exp := now.Add(ttl)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, sessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.UserID,
			Issuer:    localIssuer,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
		Email: id.Email,
	})
	signed, err := token.SignedString(secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign session token: %w", err)
	}
	return signed, exp, nil
}

func parseSessionToken(tokenString string, secret []byte, now time.Time) (*Identity, error) {
	claims := &sessionClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(localIssuer),
		jwt.WithTimeFunc(func() time.Time { return now }),
	)
	if err != nil {
		return nil, err
	}
	if !token.Valid || claims.Subject == "" {
		return nil, errors.New("invalid session token")
	}
	return &Identity{UserID: claims.Subject, Email: claims.Email}, nil
}

// peekSessionToken reads claims without verifying the signature; the hosted
// service verifies its own tokens.
func peekSessionToken(tokenString string) (*Identity, time.Time, error) {
	claims := &sessionClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tokenString, claims); err != nil {
		return nil, time.Time{}, fmt.Errorf("failed to parse access token: %w", err)
	}
	var exp time.Time
	if claims.ExpiresAt != nil {
		exp = claims.ExpiresAt.Time
	}
	return &Identity{UserID: claims.Subject, Email: claims.Email}, exp, nil
}
