package backend

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/natefinch/atomic"
)

// Message is an outgoing email
type Message struct {
	To      string
	Subject string
	Body    string
}

// Mailer delivers magic-link messages
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// OutboxMailer writes each message as a file in Dir instead of sending it.
type OutboxMailer struct {
	Dir    string
	logger *log.Logger
	now    func() time.Time
}

// NewOutboxMailer creates an outbox mailer writing under dir
func NewOutboxMailer(dir string, logger *log.Logger) *OutboxMailer {
	if logger == nil {
		logger = log.New(log.Writer(), "[mailer] ", log.LstdFlags)
	}
	return &OutboxMailer{Dir: dir, logger: logger, now: time.Now}
}

// Send writes msg to <dir>/<timestamp>-<recipient>.eml
func (m *OutboxMailer) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.MkdirAll(m.Dir, 0o700); err != nil {
		return fmt.Errorf("failed to create outbox directory: %w", err)
	}

	name := fmt.Sprintf("%s-%s.eml", m.now().UTC().Format("20060102T150405.000000000"), safeFileName(msg.To))
	path := filepath.Join(m.Dir, name)

	var b strings.Builder
	fmt.Fprintf(&b, "To: %s\r\n", msg.To)
	fmt.Fprintf(&b, "Subject: %s\r\n", msg.Subject)
	fmt.Fprintf(&b, "Date: %s\r\n", m.now().Format(time.RFC1123Z))
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n\r\n")
	b.WriteString(msg.Body)

	if err := atomic.WriteFile(path, strings.NewReader(b.String())); err != nil {
		return fmt.Errorf("failed to write outbox message: %w", err)
	}
	m.logger.Printf("Magic link for %s written to %s", msg.To, path)
	return nil
}

func safeFileName(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_', r == '@':
			return r
		}
		return '_'
	}, s)
}
