package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/eduportal/integrity/internal/proctoring"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	sessionsCollection = "proctoring_sessions"
	warningsCollection = "proctoring_warnings"
)

type ProctoringRepository struct {
	mongoRepo *MongoRepository
}

func NewProctoringRepository(mongoRepo *MongoRepository) *ProctoringRepository {
	return &ProctoringRepository{
		mongoRepo: mongoRepo,
	}
}

// SaveSession upserts the session state keyed by session ID
func (r *ProctoringRepository) SaveSession(ctx context.Context, state *proctoring.SessionState) error {
	filter := bson.M{"sessionId": state.ID}
	opts := options.Replace().SetUpsert(true)

	if err := r.mongoRepo.ReplaceOne(ctx, sessionsCollection, filter, state, opts); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

func (r *ProctoringRepository) InsertWarning(ctx context.Context, w *proctoring.WarningRecord) error {
	if w.CreatedAt.IsZero() {
		w.CreatedAt = time.Now()
	}
	if err := r.mongoRepo.InsertOne(ctx, warningsCollection, w); err != nil {
		return fmt.Errorf("failed to insert warning: %w", err)
	}
	return nil
}

// WarningsBySession lists a session's warnings in the order they were raised
func (r *ProctoringRepository) WarningsBySession(ctx context.Context, sessionID string) ([]*proctoring.WarningRecord, error) {
	filter := bson.M{"sessionId": sessionID}
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}})

	cursor, err := r.mongoRepo.FindMany(ctx, warningsCollection, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find warnings: %w", err)
	}
	defer cursor.Close(ctx)

	warnings := make([]*proctoring.WarningRecord, 0)
	if err := cursor.All(ctx, &warnings); err != nil {
		return nil, fmt.Errorf("failed to decode warnings: %w", err)
	}
	return warnings, nil
}
