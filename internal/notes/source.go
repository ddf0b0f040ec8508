package notes

import (
	"context"

	"github.com/eduportal/integrity/internal/similarity"
)

// Source supplies the reference documents of a subject
type Source interface {
	NotesBySubject(ctx context.Context, subjectID string) ([]similarity.Document, error)
}
