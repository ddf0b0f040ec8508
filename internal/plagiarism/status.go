package plagiarism

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/eduportal/integrity/internal/models"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const (
	checkStatusPrefix   = "plagiarism_check_status:"
	sessionStatusPrefix = "proctoring_session_status:"
	statusTTL           = 12 * time.Hour
)

var validSteps = map[models.Step]bool{
	models.StepIdle:         true,
	models.StepInitiated:    true,
	models.StepLoadingNotes: true,
	models.StepScoring:      true,
	models.StepCompleted:    true,
	models.StepFailed:       true,
}

// StatusStore keeps short-lived progress markers in Redis
type StatusStore struct {
	client *redis.Client
}

func NewStatusStore(client *redis.Client) *StatusStore {
	return &StatusStore{client: client}
}

func (s *StatusStore) UpdateStatus(ctx context.Context, submissionID string, step models.Step) error {
	if !validSteps[step] {
		return fmt.Errorf("unknown step: %s", step)
	}

	rkey := checkStatusPrefix + submissionID

	err := s.client.Set(ctx, rkey, string(step), statusTTL).Err()
	if err != nil {
		log.Error().Err(err).
			Str("step", string(step)).
			Str("submissionId", submissionID).
			Str("redisKey", rkey).
			Msg("Failed to update status in Redis")
		return fmt.Errorf("failed to update status in Redis: %w", err)
	}

	log.Trace().
		Str("step", string(step)).
		Str("submissionId", submissionID).
		Msg("Status updated in Redis")

	return nil
}

// Status returns the current step of a check, StepIdle when none is recorded
func (s *StatusStore) Status(ctx context.Context, submissionID string) (models.Step, error) {
	val, err := s.client.Get(ctx, checkStatusPrefix+submissionID).Result()
	if errors.Is(err, redis.Nil) {
		return models.StepIdle, nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read status from Redis: %w", err)
	}
	return models.Step(val), nil
}

func (s *StatusStore) SetSessionStatus(ctx context.Context, sessionID string, status string) error {
	if err := s.client.Set(ctx, sessionStatusPrefix+sessionID, status, statusTTL).Err(); err != nil {
		return fmt.Errorf("failed to update session status in Redis: %w", err)
	}
	return nil
}
