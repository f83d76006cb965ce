package backend

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Ashfaaq98/case-tracker/internal/bus"
	"github.com/Ashfaaq98/case-tracker/internal/store"
	"github.com/natefinch/atomic"
)

// Config selects and configures a backend
type Config struct {
	SupabaseURL     string
	SupabaseAnonKey string
	RedirectTo      string

	DBPath     string
	JWTSecret  string
	OutboxDir  string
	LinkTTL    time.Duration
	SessionTTL time.Duration

	SessionFile string
	RedisURL    string
}

// New picks the Supabase backend when a URL is configured and the local
// SQLite backend otherwise.
func New(cfg Config, logger *log.Logger) (Backend, error) {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	if cfg.SessionFile == "" {
		return nil, errors.New("session file path is required")
	}
	sessions := NewSessionFile(cfg.SessionFile)

	if cfg.SupabaseURL != "" {
		logger.Printf("Using Supabase backend at %s", cfg.SupabaseURL)
		return NewSupabase(sessions, SupabaseOptions{
			URL:        cfg.SupabaseURL,
			AnonKey:    cfg.SupabaseAnonKey,
			RedirectTo: cfg.RedirectTo,
			Logger:     logger,
		})
	}

	logger.Printf("Using local backend at %s", cfg.DBPath)
	return NewLocalFromConfig(cfg, logger)
}

// NewLocalFromConfig builds the local backend, creating a signing secret
// next to the database when none is configured.
func NewLocalFromConfig(cfg Config, logger *log.Logger) (*Local, error) {
	if cfg.DBPath == "" {
		return nil, errors.New("local database path is required")
	}
	secret := []byte(cfg.JWTSecret)
	if len(secret) == 0 {
		var err error
		secret, err = loadOrCreateSecret(filepath.Join(filepath.Dir(cfg.DBPath), "jwt.secret"))
		if err != nil {
			return nil, err
		}
	}

	st, err := store.NewStore(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize store: %w", err)
	}

	outbox := cfg.OutboxDir
	if outbox == "" {
		outbox = filepath.Join(filepath.Dir(cfg.DBPath), "outbox")
	}

	l, err := NewLocal(st, NewSessionFile(cfg.SessionFile), secret, LocalOptions{
		LinkTTL:    cfg.LinkTTL,
		SessionTTL: cfg.SessionTTL,
		Mailer:     NewOutboxMailer(outbox, logger),
		Bus:        bus.NewBus(cfg.RedisURL, logger),
		Logger:     logger,
	})
	if err != nil {
		st.Close()
		return nil, err
	}
	return l, nil
}

func loadOrCreateSecret(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err == nil {
		if s := strings.TrimSpace(string(data)); s != "" {
			return []byte(s), nil
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to read jwt secret: %w", err)
	}

	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return nil, fmt.Errorf("failed to generate jwt secret: %w", err)
	}
	secret := hex.EncodeToString(b)

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("failed to create secret directory: %w", err)
	}
	if err := atomic.WriteFile(path, strings.NewReader(secret)); err != nil {
		return nil, fmt.Errorf("failed to write jwt secret: %w", err)
	}
	if err := os.Chmod(path, 0o600); err != nil {
		return nil, fmt.Errorf("failed to restrict jwt secret: %w", err)
	}
	return []byte(secret), nil
}
