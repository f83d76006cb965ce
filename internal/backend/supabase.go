package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/Ashfaaq98/case-tracker/internal/cases"
)

const casesTable = "cases"

// SupabaseOptions configures a Supabase backend
type SupabaseOptions struct {
	URL        string
	AnonKey    string
	RedirectTo string // optional redirect for the emailed link
	HTTPClient *http.Client
	Logger     *log.Logger
}

// Supabase talks to a hosted Supabase project: GoTrue for auth and
// PostgREST for the cases table.
type Supabase struct {
	baseURL  string
	anonKey  string
	redirect string
	client   *http.Client
	sessions *SessionFile
	logger   *log.Logger
	hub      *sessionHub
	now      func() time.Time

	refreshMu sync.Mutex
}

// NewSupabase creates a Supabase backend persisting its session in sessions
func NewSupabase(sessions *SessionFile, opts SupabaseOptions) (*Supabase, error) {
	if opts.URL == "" {
		return nil, errors.New("supabase url is required")
	}
	if opts.AnonKey == "" {
		return nil, errors.New("supabase anon key is required")
	}
	if _, err := url.Parse(opts.URL); err != nil {
		return nil, fmt.Errorf("failed to parse supabase url: %w", err)
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if opts.Logger == nil {
		opts.Logger = log.New(io.Discard, "", 0)
	}

	s := &Supabase{
		baseURL:  strings.TrimRight(opts.URL, "/"),
		anonKey:  opts.AnonKey,
		redirect: opts.RedirectTo,
		client:   opts.HTTPClient,
		sessions: sessions,
		logger:   opts.Logger,
		now:      time.Now,
	}
	s.hub = newSessionHub(sessions, s.storedIdentity, opts.Logger)
	return s, nil
}

type tokenResponse struct {
	AccessToken  string   `json:"access_token"`
	RefreshToken string   `json:"refresh_token"`
	ExpiresIn    int64    `json:"expires_in"`
	ExpiresAt    int64    `json:"expires_at"`
	User         Identity `json:"user"`
}

// storedIdentity reads the session file without touching the network. A
// session that is expired with no way to refresh counts as absent.
func (s *Supabase) storedIdentity() *Identity {
	sess, err := s.sessions.Load()
	if err != nil {
		s.logger.Printf("Failed to read session: %v", err)
		return nil
	}
	if sess == nil || (sess.Expired(s.now()) && sess.RefreshToken == "") {
		return nil
	}
	return copyIdentity(&sess.User)
}

// GetCurrentSession returns the stored identity, refreshing an expired token once.
func (s *Supabase) GetCurrentSession(ctx context.Context) (*Identity, error) {
	sess, err := s.sessions.Load()
	if err != nil || sess == nil {
		return nil, err
	}
	if sess.Expired(s.now()) {
		sess, err = s.refresh(ctx, sess)
		if err != nil {
			s.logger.Printf("Session refresh failed: %v", err)
			return nil, nil
		}
	}
	return copyIdentity(&sess.User), nil
}

// SubscribeSessionChanges registers fn for session changes
func (s *Supabase) SubscribeSessionChanges(fn func(*Identity)) *Subscription {
	return s.hub.subscribe(fn)
}

// RequestMagicLink asks GoTrue to email a login link. The address is passed
// through unvalidated; the service decides.
func (s *Supabase) RequestMagicLink(ctx context.Context, email string) error {
	q := url.Values{}
	if s.redirect != "" {
		q.Set("redirect_to", s.redirect)
	}
	body := map[string]interface{}{"email": email, "create_user": true}
	return s.do(ctx, http.MethodPost, "/auth/v1/otp", q, body, s.anonKey, nil, nil)
}

// VerifyMagicLink accepts a token hash or the redirect link. A link whose
// fragment already carries an access_token is completed with a user lookup.
func (s *Supabase) VerifyMagicLink(ctx context.Context, tokenOrLink string) (*Identity, error) {
	if frag := linkFragment(tokenOrLink); frag.Get("access_token") != "" {
		if desc := frag.Get("error_description"); desc != "" {
			return nil, &APIError{Status: http.StatusUnauthorized, Code: frag.Get("error_code"), Message: desc}
		}
		resp := tokenResponse{
			AccessToken:  frag.Get("access_token"),
			RefreshToken: frag.Get("refresh_token"),
		}
		resp.ExpiresIn, _ = strconv.ParseInt(frag.Get("expires_in"), 10, 64)
		resp.ExpiresAt, _ = strconv.ParseInt(frag.Get("expires_at"), 10, 64)
		if err := s.do(ctx, http.MethodGet, "/auth/v1/user", nil, nil, resp.AccessToken, &resp.User, nil); err != nil {
			return nil, err
		}
		return s.establish(resp)
	}

	_, token := extractToken(tokenOrLink)
	if token == "" {
		return nil, ErrInvalidLink
	}
	var resp tokenResponse
	body := map[string]string{"type": "magiclink", "token_hash": token}
	if err := s.do(ctx, http.MethodPost, "/auth/v1/verify", nil, body, s.anonKey, &resp, nil); err != nil {
		return nil, err
	}
	return s.establish(resp)
}

func (s *Supabase) establish(resp tokenResponse) (*Identity, error) {
	sess, err := s.sessionFrom(resp)
	if err != nil {
		return nil, err
	}
	if err := s.sessions.Save(sess); err != nil {
		return nil, err
	}
	s.hub.publish(&sess.User)
	s.logger.Printf("Signed in %s", sess.User.Email)
	return copyIdentity(&sess.User), nil
}

func (s *Supabase) sessionFrom(resp tokenResponse) (*Session, error) {
	if resp.AccessToken == "" {
		return nil, errors.New("auth response carried no access token")
	}
	claimed, exp, err := peekSessionToken(resp.AccessToken)
	if err != nil {
		return nil, err
	}
	switch {
	case resp.ExpiresAt > 0:
		exp = time.Unix(resp.ExpiresAt, 0)
	case resp.ExpiresIn > 0:
		exp = s.now().Add(time.Duration(resp.ExpiresIn) * time.Second)
	}
	user := resp.User
	if user.UserID == "" {
		user.UserID = claimed.UserID
	}
	if user.Email == "" {
		user.Email = claimed.Email
	}
	return &Session{
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		ExpiresAt:    exp,
		User:         user,
	}, nil
}

// refresh exchanges the refresh token for a new session. Concurrent callers
// share one exchange.
func (s *Supabase) refresh(ctx context.Context, old *Session) (*Session, error) {
	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()

	// Another caller may have refreshed while we waited.
	if cur, err := s.sessions.Load(); err == nil && cur != nil && !cur.Expired(s.now()) {
		return cur, nil
	}
	if old.RefreshToken == "" {
		return nil, ErrNotAuthenticated
	}

	var resp tokenResponse
	q := url.Values{"grant_type": {"refresh_token"}}
	body := map[string]string{"refresh_token": old.RefreshToken}
	if err := s.do(ctx, http.MethodPost, "/auth/v1/token", q, body, s.anonKey, &resp, nil); err != nil {
		return nil, fmt.Errorf("failed to refresh session: %w", err)
	}
	sess, err := s.sessionFrom(resp)
	if err != nil {
		return nil, err
	}
	if err := s.sessions.Save(sess); err != nil {
		return nil, err
	}
	s.hub.publish(&sess.User)
	return sess, nil
}

func (s *Supabase) accessToken(ctx context.Context) (string, error) {
	sess, err := s.sessions.Load()
	if err != nil {
		return "", err
	}
	if sess == nil {
		return "", ErrNotAuthenticated
	}
	if sess.Expired(s.now()) {
		if sess, err = s.refresh(ctx, sess); err != nil {
			return "", fmt.Errorf("%w: %v", ErrNotAuthenticated, err)
		}
	}
	return sess.AccessToken, nil
}

// SignOut revokes the session server-side. The local session is cleared even
// when the request fails, and the failure is returned.
func (s *Supabase) SignOut(ctx context.Context) error {
	var reqErr error
	if sess, err := s.sessions.Load(); err == nil && sess != nil {
		reqErr = s.do(ctx, http.MethodPost, "/auth/v1/logout", nil, nil, sess.AccessToken, nil, nil)
	}
	if err := s.sessions.Clear(); err != nil {
		return err
	}
	s.hub.publish(nil)
	return reqErr
}

// ListCases selects every column of the cases table
func (s *Supabase) ListCases(ctx context.Context, opts ListOptions) ([]cases.Record, error) {
	token, err := s.accessToken(ctx)
	if err != nil {
		return nil, err
	}
	opts = opts.withDefaults()
	dir := "desc"
	if opts.Ascending {
		dir = "asc"
	}
	q := url.Values{
		"select": {"*"},
		"order":  {opts.OrderBy + "." + dir},
		"limit":  {strconv.Itoa(opts.Limit)},
	}
	records := []cases.Record{}
	if err := s.do(ctx, http.MethodGet, "/rest/v1/"+casesTable, q, nil, token, &records, nil); err != nil {
		return nil, err
	}
	return records, nil
}

// InsertCase inserts record without its id
func (s *Supabase) InsertCase(ctx context.Context, record cases.Record) error {
	token, err := s.accessToken(ctx)
	if err != nil {
		return err
	}
	record.ID = 0
	headers := map[string]string{"Prefer": "return=minimal"}
	return s.do(ctx, http.MethodPost, "/rest/v1/"+casesTable, nil, record, token, nil, headers)
}

// UpdateCase patches the row with the given id
func (s *Supabase) UpdateCase(ctx context.Context, id int64, record cases.Record) error {
	token, err := s.accessToken(ctx)
	if err != nil {
		return err
	}
	record.ID = 0
	q := url.Values{"id": {"eq." + strconv.FormatInt(id, 10)}}
	headers := map[string]string{"Prefer": "return=minimal"}
	return s.do(ctx, http.MethodPatch, "/rest/v1/"+casesTable, q, record, token, nil, headers)
}

// Close stops the session watcher
func (s *Supabase) Close() error {
	s.hub.close()
	s.client.CloseIdleConnections()
	return nil
}

func (s *Supabase) do(ctx context.Context, method, path string, query url.Values, body interface{}, bearer string, out interface{}, headers map[string]string) error {
	u := s.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("apikey", s.anonKey)
	req.Header.Set("Authorization", "Bearer "+bearer)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return decodeAPIError(resp.StatusCode, data)
	}
	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// decodeAPIError understands both GoTrue and PostgREST error bodies.
func decodeAPIError(status int, data []byte) error {
	var body struct {
		Msg              string          `json:"msg"`
		Message          string          `json:"message"`
		ErrorDescription string          `json:"error_description"`
		Error            string          `json:"error"`
		Code             json.RawMessage `json:"code"`
		ErrorCode        string          `json:"error_code"`
	}
	_ = json.Unmarshal(data, &body)

	apiErr := &APIError{Status: status, Code: body.ErrorCode}
	for _, m := range []string{body.Msg, body.Message, body.ErrorDescription, body.Error} {
		if m != "" {
			apiErr.Message = m
			break
		}
	}
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(status)
	}
	if apiErr.Code == "" && len(body.Code) > 0 {
		var code string
		if err := json.Unmarshal(body.Code, &code); err == nil {
			apiErr.Code = code
		} else {
			apiErr.Code = string(body.Code)
		}
	}
	return apiErr
}

// linkFragment returns the parsed fragment of a redirect link, if any.
func linkFragment(link string) url.Values {
	i := strings.IndexByte(link, '#')
	if i < 0 {
		return url.Values{}
	}
	v, err := url.ParseQuery(link[i+1:])
	if err != nil {
		return url.Values{}
	}
	return v
}
