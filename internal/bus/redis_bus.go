package bus

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisBus provides Redis Streams-based change notifications
type RedisBus struct {
	client *redis.Client
	logger *log.Logger
	maxLen int64
}

// StreamMessage represents a message in a Redis Stream
type StreamMessage struct {
	ID     string            `json:"id"`
	Fields map[string]string `json:"fields"`
}

// StreamHandler is a function that processes stream messages
type StreamHandler func(ctx context.Context, message StreamMessage) error

// defaultMaxLen caps each stream so a long-running install does not grow unbounded
const defaultMaxLen = 10000

// NewRedisBus creates a new Redis bus instance
func NewRedisBus(redisURL string, logger *log.Logger) (*RedisBus, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	if logger == nil {
		logger = log.New(log.Writer(), "[RedisBus] ", log.LstdFlags)
	}

	return &RedisBus{
		client: client,
		logger: logger,
		maxLen: defaultMaxLen,
	}, nil
}

// Close closes the Redis connection
func (rb *RedisBus) Close() error {
	return rb.client.Close()
}

// PublishCaseChange publishes a case change to the case stream
func (rb *RedisBus) PublishCaseChange(ctx context.Context, msg ChangeMessage) error {
	if err := rb.publish(ctx, CaseStream, msg); err != nil {
		return fmt.Errorf("failed to publish case change: %w", err)
	}
	rb.logger.Printf("Published %s for case %d", msg.Kind, msg.CaseID)
	return nil
}

// PublishSessionChange publishes a session change to the session stream
func (rb *RedisBus) PublishSessionChange(ctx context.Context, msg ChangeMessage) error {
	if err := rb.publish(ctx, SessionStream, msg); err != nil {
		return fmt.Errorf("failed to publish session change: %w", err)
	}
	rb.logger.Printf("Published %s for %s", msg.Kind, msg.Actor)
	return nil
}

func (rb *RedisBus) publish(ctx context.Context, stream string, msg ChangeMessage) error {
	if msg.Timestamp == 0 {
		msg.Timestamp = time.Now().Unix()
	}
	return rb.client.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		MaxLen: rb.maxLen,
		Approx: true,
		Values: encodeChange(msg),
	}).Err()
}

// CreateConsumerGroup creates a consumer group for a stream if it doesn't exist
func (rb *RedisBus) CreateConsumerGroup(ctx context.Context, stream, group string) error {
	// Try to create the consumer group, ignore error if it already exists
	result := rb.client.XGroupCreateMkStream(ctx, stream, group, "0")
	if err := result.Err(); err != nil {
		if !strings.HasPrefix(err.Error(), "BUSYGROUP") {
			return fmt.Errorf("failed to create consumer group %s for stream %s: %w", group, stream, err)
		}
	}

	rb.logger.Printf("Consumer group %s ready for stream %s", group, stream)
	return nil
}

// ReadStream reads messages from a stream using consumer groups
func (rb *RedisBus) ReadStream(ctx context.Context, stream, group, consumer string, handler StreamHandler) error {
	if err := rb.CreateConsumerGroup(ctx, stream, group); err != nil {
		return err
	}

	rb.logger.Printf("Starting stream reader for %s (group: %s, consumer: %s)", stream, group, consumer)

	for {
		select {
		case <-ctx.Done():
			rb.logger.Printf("Stream reader for %s stopping due to context cancellation", stream)
			return ctx.Err()
		default:
		}

		result := rb.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    group,
			Consumer: consumer,
			Streams:  []string{stream, ">"},
			Count:    10,
			Block:    1 * time.Second,
		})

		if err := result.Err(); err != nil {
			if errors.Is(err, redis.Nil) {
				// No messages available, continue
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			rb.logger.Printf("Error reading from stream %s: %v", stream, err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(5 * time.Second):
			}
			continue
		}

		for _, st := range result.Val() {
			for _, message := range st.Messages {
				streamMsg := StreamMessage{
					ID:     message.ID,
					Fields: make(map[string]string),
				}
				for key, value := range message.Values {
					if strValue, ok := value.(string); ok {
						streamMsg.Fields[key] = strValue
					}
				}

				if err := handler(ctx, streamMsg); err != nil {
					rb.logger.Printf("Error processing message %s: %v", message.ID, err)
					continue
				}

				if err := rb.client.XAck(ctx, st.Stream, group, message.ID).Err(); err != nil {
					rb.logger.Printf("Error acknowledging message %s: %v", message.ID, err)
				}
			}
		}
	}
}

// ReadCaseChanges reads from the case stream
func (rb *RedisBus) ReadCaseChanges(ctx context.Context, group, consumer string, handler func(ctx context.Context, msg ChangeMessage) error) error {
	return rb.ReadStream(ctx, CaseStream, group, consumer, func(ctx context.Context, message StreamMessage) error {
		return handler(ctx, decodeChange(message.Fields))
	})
}

// GetStreamInfo returns information about a stream
func (rb *RedisBus) GetStreamInfo(ctx context.Context, stream string) (*redis.XInfoStream, error) {
	result := rb.client.XInfoStream(ctx, stream)
	if err := result.Err(); err != nil {
		return nil, fmt.Errorf("failed to get stream info for %s: %w", stream, err)
	}
	return result.Val(), nil
}

// DeleteStreams removes both change streams
func (rb *RedisBus) DeleteStreams(ctx context.Context) error {
	if err := rb.client.Del(ctx, CaseStream, SessionStream).Err(); err != nil {
		return fmt.Errorf("failed to delete streams: %w", err)
	}
	return nil
}

// HealthCheck performs a health check on the Redis connection
func (rb *RedisBus) HealthCheck(ctx context.Context) error {
	return rb.client.Ping(ctx).Err()
}

// GetStats returns basic statistics about the Redis streams
func (rb *RedisBus) GetStats(ctx context.Context) (map[string]interface{}, error) {
	stats := map[string]interface{}{"type": "redis"}

	for _, stream := range []string{CaseStream, SessionStream} {
		info, err := rb.GetStreamInfo(ctx, stream)
		if err != nil {
			continue
		}
		stats[stream] = map[string]interface{}{
			"length":         info.Length,
			"first_entry_id": info.FirstEntry.ID,
			"last_entry_id":  info.LastEntry.ID,
		}
	}

	return stats, nil
}

func encodeChange(msg ChangeMessage) map[string]interface{} {
	return map[string]interface{}{
		"kind":        msg.Kind,
		"case_id":     msg.CaseID,
		"case_number": msg.CaseNumber,
		"actor":       msg.Actor,
		"timestamp":   msg.Timestamp,
	}
}

func decodeChange(fields map[string]string) ChangeMessage {
	msg := ChangeMessage{
		Kind:       fields["kind"],
		CaseNumber: fields["case_number"],
		Actor:      fields["actor"],
	}
	if id, err := strconv.ParseInt(fields["case_id"], 10, 64); err == nil {
		msg.CaseID = id
	}
	if ts, err := parseTimestamp(fields["timestamp"]); err == nil {
		msg.Timestamp = ts
	}
	return msg
}

// parseTimestamp parses a timestamp string to int64
func parseTimestamp(timestamp string) (int64, error) {
	if timestamp == "" {
		return time.Now().Unix(), nil
	}

	// Try numeric epoch (seconds or milliseconds)
	if n, err := strconv.ParseInt(timestamp, 10, 64); err == nil {
		// 13+ digits are milliseconds
		if n > 1_000_000_000_000 {
			return n / 1000, nil
		}
		return n, nil
	}

	if ts, err := time.Parse(time.RFC3339Nano, timestamp); err == nil {
		return ts.Unix(), nil
	}

	return time.Now().Unix(), fmt.Errorf("unable to parse timestamp: %s", timestamp)
}
