package stream

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/eduportal/integrity/internal/models"
	"github.com/redis/go-redis/v9"
)

// PayloadField is the stream field holding the JSON submission
const PayloadField = "payload"

var ErrInvalidSubmission = errors.New("invalid submission")

// ParseSubmission decodes and validates the submission carried by a message
func ParseSubmission(msg *redis.XMessage) (*models.Submission, error) {
	raw, ok := msg.Values[PayloadField].(string)
	if !ok || raw == "" {
		return nil, fmt.Errorf("%w: missing %q field", ErrInvalidSubmission, PayloadField)
	}

	var sub models.Submission
	if err := json.Unmarshal([]byte(raw), &sub); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSubmission, err)
	}

	switch {
	case sub.SubmissionID == "":
		return nil, fmt.Errorf("%w: submissionId is required", ErrInvalidSubmission)
	case sub.SubjectID == "":
		return nil, fmt.Errorf("%w: subjectId is required", ErrInvalidSubmission)
	}

	return &sub, nil
}

// EncodeSubmission builds the stream fields for a submission
func EncodeSubmission(sub *models.Submission) (map[string]interface{}, error) {
	b, err := json.Marshal(sub)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal submission: %w", err)
	}
	return map[string]interface{}{PayloadField: string(b)}, nil
}
