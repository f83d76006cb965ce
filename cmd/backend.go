package cmd

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"github.com/Ashfaaq98/case-tracker/internal/backend"
)

func backendPrefix(config Config) string {
	if config.Supabase.URL != "" {
		return "[supabase] "
	}
	return "[local] "
}

// commandLogger writes to stderr, keeping only error lines above info level.
func commandLogger(config Config, prefix string) *log.Logger {
	var w io.Writer = os.Stderr
	switch strings.ToLower(config.Log.Level) {
	case "warn", "warning", "error":
		w = &errorFilterWriter{os.Stderr}
	}
	return log.New(w, prefix, log.LstdFlags)
}

// openBackend builds the configured backend for a one-shot CLI command.
func openBackend(config Config) (backend.Backend, error) {
	cfg := config.Backend()
	cfg.DBPath = resolvePathRelativeToBase(getWorkingDir(), cfg.DBPath)
	b, err := backend.New(cfg, commandLogger(config, backendPrefix(config)))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize backend: %w", err)
	}
	return b, nil
}

// openLocal builds the local backend regardless of supabase.url.
func openLocal(config Config) (*backend.Local, error) {
	cfg := config.Backend()
	cfg.DBPath = resolvePathRelativeToBase(getWorkingDir(), cfg.DBPath)
	l, err := backend.NewLocalFromConfig(cfg, commandLogger(config, "[local] "))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize local backend: %w", err)
	}
	return l, nil
}
