package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/eduportal/integrity/internal/proctoring"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const signalBatchSize = 50

// SignalQueue reads face and movement detections that the portal's
// detection worker pushes onto a per-session Redis list
type SignalQueue struct {
	client *redis.Client
	prefix string
}

func NewSignalQueue(client *redis.Client, prefix string) *SignalQueue {
	return &SignalQueue{client: client, prefix: prefix}
}

// SourceFor returns the signal source of one session
func (q *SignalQueue) SourceFor(info proctoring.SessionInfo) proctoring.SignalSource {
	return &sessionSignals{client: q.client, key: q.prefix + info.ID}
}

type sessionSignals struct {
	client *redis.Client
	key    string
}

// Poll pops up to one batch of queued signals. Malformed entries are skipped.
func (s *sessionSignals) Poll(ctx context.Context) ([]proctoring.Event, error) {
	raw, err := s.client.LPopCount(ctx, s.key, signalBatchSize).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to pop signals: %w", err)
	}

	events := make([]proctoring.Event, 0, len(raw))
	for _, entry := range raw {
		event, err := DecodeSignal(entry)
		if err != nil {
			log.Warn().Err(err).Str("key", s.key).Msg("Skipping malformed signal")
			continue
		}
		events = append(events, event)
	}
	return events, nil
}

// DecodeSignal parses a JSON signal such as {"type":"excessive_movement","amount":7}
func DecodeSignal(entry string) (proctoring.Event, error) {
	var wire struct {
		Type   string `json:"type"`
		Amount int    `json:"amount"`
	}
	if err := json.Unmarshal([]byte(entry), &wire); err != nil {
		return proctoring.Event{}, fmt.Errorf("failed to decode signal: %w", err)
	}

	kind, err := proctoring.ParseEventKind(wire.Type)
	if err != nil {
		return proctoring.Event{}, err
	}
	return proctoring.Event{Kind: kind, Amount: wire.Amount}, nil
}
