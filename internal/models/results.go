package models

import (
	"time"

	"github.com/eduportal/integrity/internal/similarity"
)

type Step string

const (
	StepIdle         Step = "idle"
	StepInitiated    Step = "initiated"
	StepLoadingNotes Step = "loading_notes"
	StepScoring      Step = "scoring"
	StepCompleted    Step = "completed"
	StepFailed       Step = "failed"
)

// Risk levels derived from a submission score
const (
	RiskClean            = "clean"
	RiskSuspicious       = "suspicious"
	RiskHighlySuspicious = "highly suspicious"
	RiskNearCopy         = "near copy"
)

// AnswerReport is the similarity result for one answer
type AnswerReport struct {
	QuestionID string            `bson:"questionId" json:"questionId"`
	Result     similarity.Result `bson:"result" json:"result"`
}

// PlagiarismReport is the stored outcome of checking a submission
type PlagiarismReport struct {
	SubmissionID     string         `bson:"submissionId" json:"submissionId"`
	AssignmentID     string         `bson:"assignmentId" json:"assignmentId"`
	SubjectID        string         `bson:"subjectId" json:"subjectId"`
	StudentID        string         `bson:"studentId" json:"studentId"`
	Score            int            `bson:"score" json:"score"`
	Risk             string         `bson:"risk" json:"risk"`
	Status           string         `bson:"status" json:"status"` // pending, completed, failed
	FlaggedQuestions []string       `bson:"flagged_questions" json:"flaggedQuestions"`
	Answers          []AnswerReport `bson:"answers" json:"answers"`
	NotesCompared    int            `bson:"notes_compared" json:"notesCompared"`
	Error            string         `bson:"error,omitempty" json:"error,omitempty"`
	CreatedAt        time.Time      `bson:"createdAt" json:"createdAt"`
}

// CheckResponse is returned when a check is accepted
type CheckResponse struct {
	Step         Step   `json:"step"`
	SubmissionID string `json:"submissionId"`
}

// ScoreRequest is the body of a direct similarity request. Pointers let the
// handler tell a missing field from an empty one.
type ScoreRequest struct {
	CandidateText *string                `json:"candidateText"`
	Documents     *[]similarity.Document `json:"documents"`
}
