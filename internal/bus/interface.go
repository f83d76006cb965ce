package bus

import (
	"context"
	"io"
	"log"
)

// Change kinds carried on the bus
const (
	KindCaseCreated = "case_created"
	KindCaseUpdated = "case_updated"
	KindSignedIn    = "signed_in"
	KindSignedOut   = "signed_out"
)

// Stream names
const (
	CaseStream    = "case_changes"
	SessionStream = "session_changes"
)

// ChangeMessage describes one write made through a backend
type ChangeMessage struct {
	Kind       string `json:"kind"`
	CaseID     int64  `json:"case_id,omitempty"`
	CaseNumber string `json:"case_number,omitempty"`
	Actor      string `json:"actor"`
	Timestamp  int64  `json:"timestamp"`
}

// Bus defines the interface for change-notification bus implementations
type Bus interface {
	// PublishCaseChange publishes a case insert/update to the case stream
	PublishCaseChange(ctx context.Context, msg ChangeMessage) error

	// PublishSessionChange publishes a sign-in/sign-out to the session stream
	PublishSessionChange(ctx context.Context, msg ChangeMessage) error

	// ReadCaseChanges consumes the case stream until ctx is cancelled
	ReadCaseChanges(ctx context.Context, group, consumer string, handler func(ctx context.Context, msg ChangeMessage) error) error

	// GetStats returns basic statistics about the bus
	GetStats(ctx context.Context) (map[string]interface{}, error)

	// HealthCheck performs a health check on the bus connection
	HealthCheck(ctx context.Context) error

	// Close closes the bus connection
	Close() error
}

// NewBus creates a new bus instance based on the Redis URL
// If redisURL is empty or invalid, returns a NullBus
func NewBus(redisURL string, logger *log.Logger) Bus {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}

	if redisURL == "" {
		return NewNullBus(logger)
	}

	// Try to create Redis bus
	redisBus, err := NewRedisBus(redisURL, logger)
	if err == nil {
		return redisBus
	}

	// Fall back to null bus if Redis fails
	logger.Printf("Redis unavailable (%v); change notifications disabled", err)
	return NewNullBus(logger)
}
