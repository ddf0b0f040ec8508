package stream

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// ErrDeadLettered is returned once a failing message was moved to the dead letter stream
var ErrDeadLettered = errors.New("message dead-lettered")

// RetryHandler retries message processing and dead-letters what keeps failing
type RetryHandler struct {
	client        *redis.Client
	deadLetterKey string
	maxAttempts   int
	baseDelay     time.Duration
}

func NewRetryHandler(client *redis.Client, deadLetterKey string) *RetryHandler {
	return &RetryHandler{
		client:        client,
		deadLetterKey: deadLetterKey,
		maxAttempts:   3,
		baseDelay:     500 * time.Millisecond,
	}
}

// RetryWithBackoff runs fn up to maxAttempts times, doubling the delay between
// attempts. The message goes to the dead letter stream when every attempt fails,
// and the returned error then wraps ErrDeadLettered.
func (h *RetryHandler) RetryWithBackoff(ctx context.Context, fn func() error, messageID string, fields map[string]interface{}) error {
	var lastErr error
	delay := h.baseDelay

	for attempt := 1; attempt <= h.maxAttempts; attempt++ {
		if lastErr = fn(); lastErr == nil {
			return nil
		}

		log.Warn().
			Err(lastErr).
			Str("message_id", messageID).
			Int("attempt", attempt).
			Msg("Processing attempt failed")

		if attempt == h.maxAttempts {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}

	if err := h.deadLetter(ctx, messageID, fields, lastErr); err != nil {
		log.Error().Err(err).Str("message_id", messageID).Msg("Failed to dead-letter message")
		return fmt.Errorf("giving up after %d attempts: %w", h.maxAttempts, lastErr)
	}

	return fmt.Errorf("%w after %d attempts: %w", ErrDeadLettered, h.maxAttempts, lastErr)
}

func (h *RetryHandler) deadLetter(ctx context.Context, messageID string, fields map[string]interface{}, cause error) error {
	values := make(map[string]interface{}, len(fields)+3)
	for k, v := range fields {
		values[k] = v
	}
	values["original_id"] = messageID
	values["error"] = cause.Error()
	values["failed_at"] = time.Now().UTC().Format(time.RFC3339)

	if err := h.client.XAdd(ctx, &redis.XAddArgs{
		Stream: h.deadLetterKey,
		Values: values,
	}).Err(); err != nil {
		return fmt.Errorf("failed to add to dead letter stream: %w", err)
	}

	log.Info().Str("message_id", messageID).Str("stream", h.deadLetterKey).Msg("Message dead-lettered")
	return nil
}
