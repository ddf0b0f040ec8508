package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/eduportal/integrity/internal/similarity"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const notesCollection = "notes"

// Note is a course note as stored in MongoDB
type Note struct {
	ID        string    `bson:"id" json:"id"`
	SubjectID string    `bson:"subjectId" json:"subjectId"`
	Title     string    `bson:"title" json:"title"`
	Content   string    `bson:"content" json:"content"`
	CreatedAt time.Time `bson:"createdAt" json:"createdAt"`
}

type NotesRepository struct {
	mongoRepo *MongoRepository
}

func NewNotesRepository(mongoRepo *MongoRepository) *NotesRepository {
	return &NotesRepository{
		mongoRepo: mongoRepo,
	}
}

func (r *NotesRepository) InsertNote(ctx context.Context, note *Note) error {
	note.CreatedAt = time.Now()
	err := r.mongoRepo.InsertOne(ctx, notesCollection, note)
	if err != nil {
		return fmt.Errorf("failed to insert note: %w", err)
	}

	return nil
}

// NotesBySubject returns the subject's notes as scoring documents, oldest first
func (r *NotesRepository) NotesBySubject(ctx context.Context, subjectID string) ([]similarity.Document, error) {
	filter := bson.M{"subjectId": subjectID}
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}})

	cursor, err := r.mongoRepo.FindMany(ctx, notesCollection, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find notes: %w", err)
	}
	defer cursor.Close(ctx)

	var notes []*Note
	if err := cursor.All(ctx, &notes); err != nil {
		return nil, fmt.Errorf("failed to decode notes: %w", err)
	}

	docs := make([]similarity.Document, 0, len(notes))
	for _, n := range notes {
		docs = append(docs, similarity.Document{ID: n.ID, Title: n.Title, Content: n.Content})
	}
	return docs, nil
}
