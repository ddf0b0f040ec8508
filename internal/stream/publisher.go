package stream

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/eduportal/integrity/internal/models"
	"github.com/eduportal/integrity/internal/proctoring"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const lockStreamMaxLen = 10000

// LockPublisher announces locked attempts so the portal can auto-submit them
type LockPublisher struct {
	client    *redis.Client
	streamKey string
}

func NewLockPublisher(client *redis.Client, streamKey string) *LockPublisher {
	return &LockPublisher{client: client, streamKey: streamKey}
}

func (p *LockPublisher) PublishLock(ctx context.Context, state proctoring.SessionState) error {
	id, err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.streamKey,
		MaxLen: lockStreamMaxLen,
		Approx: true,
		Values: map[string]interface{}{
			"sessionId":    state.ID,
			"assignmentId": state.AssignmentID,
			"studentId":    state.StudentID,
			"strikes":      strconv.Itoa(state.Strikes),
			"lockedAt":     time.Now().UTC().Format(time.RFC3339),
		},
	}).Result()
	if err != nil {
		return fmt.Errorf("failed to publish lock: %w", err)
	}

	log.Debug().Str("sessionId", state.ID).Str("entry", id).Msg("Auto-submit request published")
	return nil
}

// SubmissionPublisher enqueues submissions for the consumer group
type SubmissionPublisher struct {
	client    *redis.Client
	streamKey string
}

func NewSubmissionPublisher(client *redis.Client, streamKey string) *SubmissionPublisher {
	return &SubmissionPublisher{client: client, streamKey: streamKey}
}

// Enqueue adds the submission to the stream and returns the entry ID
func (p *SubmissionPublisher) Enqueue(ctx context.Context, sub *models.Submission) (string, error) {
	values, err := EncodeSubmission(sub)
	if err != nil {
		return "", err
	}

	id, err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.streamKey,
		Values: values,
	}).Result()
	if err != nil {
		return "", fmt.Errorf("failed to enqueue submission: %w", err)
	}

	log.Debug().Str("submissionId", sub.SubmissionID).Str("entry", id).Msg("Submission enqueued")
	return id, nil
}
