package stream

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/eduportal/integrity/internal/models"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const (
	readCount       = 10
	readBlock       = time.Second
	pendingMinIdle  = time.Minute
	pendingPageSize = 100
)

// SubmissionProcessor handles one submission read from the stream
type SubmissionProcessor interface {
	Check(ctx context.Context, sub *models.Submission) (*models.PlagiarismReport, error)
}

// Consumer reads submissions from a Redis stream through a consumer group
type Consumer struct {
	client        *redis.Client
	streamKey     string
	group         string
	name          string
	processor     SubmissionProcessor
	retryHandler  *RetryHandler
	retention     time.Duration
	minIdle       time.Duration
	pendingEvery  time.Duration
	cleanupEvery  time.Duration
	lastPendingAt time.Time
}

func NewConsumer(
	client *redis.Client,
	streamKey string,
	group string,
	name string,
	processor SubmissionProcessor,
	retryHandler *RetryHandler,
	retention time.Duration,
) *Consumer {
	return &Consumer{
		client:        client,
		streamKey:     streamKey,
		group:         group,
		name:          name,
		processor:     processor,
		retryHandler:  retryHandler,
		retention:     retention,
		minIdle:       pendingMinIdle,
		pendingEvery:  30 * time.Second,
		cleanupEvery:  time.Hour,
		lastPendingAt: time.Now(),
	}
}

// Start blocks consuming the stream until ctx is cancelled
func (c *Consumer) Start(ctx context.Context) error {
	if err := c.ensureGroup(ctx); err != nil {
		log.Warn().Err(err).Msg("Failed to create consumer group")
	}

	// messages left pending by a crashed consumer
	if err := c.claimPending(ctx); err != nil {
		log.Warn().Err(err).Msg("Failed to recover pending submissions on startup")
	}
	c.lastPendingAt = time.Now()

	go c.trimPeriodically(ctx)

	log.Info().
		Str("stream", c.streamKey).
		Str("group", c.group).
		Str("consumer", c.name).
		Dur("retention", c.retention).
		Msg("Submission consumer started")

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := c.poll(ctx); err != nil {
			log.Error().Err(err).Msg("Error consuming submissions")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Second):
			}
		}
	}
}

func (c *Consumer) ensureGroup(ctx context.Context) error {
	err := c.client.XGroupCreateMkStream(ctx, c.streamKey, c.group, "$").Err()
	if err != nil && strings.Contains(err.Error(), "BUSYGROUP") {
		log.Debug().Str("group", c.group).Msg("Consumer group already exists")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to create consumer group: %w", err)
	}

	log.Info().Str("group", c.group).Str("stream", c.streamKey).Msg("Created consumer group")
	return nil
}

// claimPending takes over messages idle in the group's pending list
func (c *Consumer) claimPending(ctx context.Context) error {
	pending, err := c.client.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: c.streamKey,
		Group:  c.group,
		Start:  "-",
		End:    "+",
		Count:  pendingPageSize,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to list pending messages: %w", err)
	}

	ids := make([]string, 0, len(pending))
	for _, p := range pending {
		if p.Idle >= c.minIdle {
			ids = append(ids, p.ID)
		}
	}
	if len(ids) == 0 {
		return nil
	}

	claimed, err := c.client.XClaim(ctx, &redis.XClaimArgs{
		Stream:   c.streamKey,
		Group:    c.group,
		Consumer: c.name,
		MinIdle:  c.minIdle,
		Messages: ids,
	}).Result()
	if err != nil {
		return fmt.Errorf("failed to claim messages: %w", err)
	}

	log.Info().Int("claimed", len(claimed)).Msg("Claimed idle pending submissions")

	for i := range claimed {
		if err := c.handle(ctx, &claimed[i]); err != nil {
			log.Error().Err(err).Str("message_id", claimed[i].ID).Msg("Failed to process claimed submission")
		}
	}
	return nil
}

func (c *Consumer) poll(ctx context.Context) error {
	if time.Since(c.lastPendingAt) > c.pendingEvery {
		if err := c.claimPending(ctx); err != nil {
			log.Warn().Err(err).Msg("Failed to recover pending submissions")
		}
		c.lastPendingAt = time.Now()
	}

	streams, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    c.group,
		Consumer: c.name,
		Streams:  []string{c.streamKey, ">"},
		Count:    readCount,
		Block:    readBlock,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read from stream: %w", err)
	}

	for _, stream := range streams {
		for i := range stream.Messages {
			msg := &stream.Messages[i]
			if err := c.handle(ctx, msg); err != nil {
				log.Error().Err(err).Str("message_id", msg.ID).Msg("Failed to process submission")
			}
		}
	}
	return nil
}

// handle checks one message. Bad payloads and dead-lettered messages are
// acknowledged so they never come back through claimPending.
func (c *Consumer) handle(ctx context.Context, msg *redis.XMessage) error {
	submission, err := ParseSubmission(msg)
	if err != nil {
		log.Error().Err(err).Str("message_id", msg.ID).Msg("Dropping malformed submission")
		_ = c.ack(ctx, msg.ID)
		return err
	}

	err = c.retryHandler.RetryWithBackoff(ctx, func() error {
		_, err := c.processor.Check(ctx, submission)
		return err
	}, msg.ID, msg.Values)
	if errors.Is(err, ErrDeadLettered) {
		log.Warn().Err(err).Str("message_id", msg.ID).Msg("Submission dead-lettered")
		return c.ack(ctx, msg.ID)
	}
	if err != nil {
		return err
	}

	return c.ack(ctx, msg.ID)
}

func (c *Consumer) trimPeriodically(ctx context.Context) {
	ticker := time.NewTicker(c.cleanupEvery)
	defer ticker.Stop()

	for {
		if err := c.trim(ctx); err != nil {
			log.Error().Err(err).Msg("Failed to trim submission stream")
		}

		select {
		case <-ctx.Done():
			log.Info().Msg("Stream trimming stopped")
			return
		case <-ticker.C:
		}
	}
}

// trim drops stream entries older than the retention window
func (c *Consumer) trim(ctx context.Context) error {
	cutoff := time.Now().Add(-c.retention)
	minID := fmt.Sprintf("%d-0", cutoff.UnixMilli())

	trimmed, err := c.client.XTrimMinID(ctx, c.streamKey, minID).Result()
	if err != nil {
		return fmt.Errorf("failed to trim stream: %w", err)
	}

	if trimmed > 0 {
		log.Debug().
			Int64("trimmed", trimmed).
			Str("cutoff", cutoff.Format(time.RFC3339)).
			Msg("Trimmed old submissions")
	}
	return nil
}

func (c *Consumer) ack(ctx context.Context, id string) error {
	if err := c.client.XAck(ctx, c.streamKey, c.group, id).Err(); err != nil {
		log.Error().Err(err).Str("message_id", id).Msg("Failed to acknowledge message")
		return err
	}
	return nil
}
