package plagiarism

import (
	"context"
	"fmt"
	"time"

	"github.com/eduportal/integrity/internal/metrics"
	"github.com/eduportal/integrity/internal/models"
	"github.com/eduportal/integrity/internal/notes"
	"github.com/eduportal/integrity/internal/similarity"
	"github.com/rs/zerolog/log"
)

type ReportStore interface {
	InsertReport(ctx context.Context, report *models.PlagiarismReport) error
}

type StatusTracker interface {
	UpdateStatus(ctx context.Context, submissionID string, step models.Step) error
}

// ScoringJob scores one answer against the subject's notes
type ScoringJob struct {
	Index      int
	Answer     models.Answer
	Documents  []similarity.Document
	ResultChan chan<- ScoredAnswer
}

// ScoredAnswer carries a job's result back to the checker
type ScoredAnswer struct {
	Index  int
	Report models.AnswerReport
}

// Execute executes the scoring job
func (j *ScoringJob) Execute(ctx context.Context) error {
	result := similarity.Score(j.Answer.Text, j.Documents)

	scored := ScoredAnswer{
		Index: j.Index,
		Report: models.AnswerReport{
			QuestionID: j.Answer.QuestionID,
			Result:     result,
		},
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case j.ResultChan <- scored:
		return nil
	}
}

// Checker runs a submission's answers through the similarity scorer
type Checker struct {
	notes      notes.Source
	reports    ReportStore
	status     StatusTracker
	workerPool *WorkerPool
}

func NewChecker(source notes.Source, reports ReportStore, status StatusTracker, workerPool *WorkerPool) *Checker {
	return &Checker{
		notes:      source,
		reports:    reports,
		status:     status,
		workerPool: workerPool,
	}
}

// Check scores every answer of the submission, stores the report and returns it
func (c *Checker) Check(ctx context.Context, sub *models.Submission) (*models.PlagiarismReport, error) {
	start := time.Now()
	defer func() {
		metrics.CheckDuration.Observe(time.Since(start).Seconds())
	}()

	c.updateStatus(ctx, sub.SubmissionID, models.StepInitiated)

	c.updateStatus(ctx, sub.SubmissionID, models.StepLoadingNotes)
	docs, err := c.notes.NotesBySubject(ctx, sub.SubjectID)
	if err != nil {
		log.Error().Err(err).Str("subjectId", sub.SubjectID).Msg("Failed to load notes")
		return nil, c.fail(ctx, sub, fmt.Errorf("failed to load notes: %w", err))
	}

	c.updateStatus(ctx, sub.SubmissionID, models.StepScoring)
	answers, err := c.scoreAnswers(ctx, sub.Answers, docs)
	if err != nil {
		return nil, c.fail(ctx, sub, fmt.Errorf("failed to score answers: %w", err))
	}

	report := BuildReport(sub, answers, len(docs))
	if err := c.reports.InsertReport(ctx, report); err != nil {
		return nil, c.fail(ctx, sub, err)
	}

	c.updateStatus(ctx, sub.SubmissionID, models.StepCompleted)
	metrics.CheckCount.WithLabelValues(string(models.StepCompleted)).Inc()

	log.Info().
		Str("submissionId", sub.SubmissionID).
		Int("answers", len(answers)).
		Int("notes", len(docs)).
		Int("score", report.Score).
		Str("risk", report.Risk).
		Msg("Plagiarism check completed")

	return report, nil
}

// scoreAnswers fans the answers out to the worker pool and keeps their order
func (c *Checker) scoreAnswers(ctx context.Context, answers []models.Answer, docs []similarity.Document) ([]models.AnswerReport, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	resultChan := make(chan ScoredAnswer, len(answers))

	for i, answer := range answers {
		job := &ScoringJob{
			Index:      i,
			Answer:     answer,
			Documents:  docs,
			ResultChan: resultChan,
		}
		if err := c.workerPool.Submit(ctx, job); err != nil {
			return nil, fmt.Errorf("failed to submit job: %w", err)
		}
	}

	reports := make([]models.AnswerReport, len(answers))
	for received := 0; received < len(answers); received++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case scored := <-resultChan:
			reports[scored.Index] = scored.Report
		}
	}

	return reports, nil
}

// fail stores a failed report and marks the check failed. It returns cause.
func (c *Checker) fail(ctx context.Context, sub *models.Submission, cause error) error {
	metrics.CheckCount.WithLabelValues(string(models.StepFailed)).Inc()

	failed := &models.PlagiarismReport{
		SubmissionID:     sub.SubmissionID,
		AssignmentID:     sub.AssignmentID,
		SubjectID:        sub.SubjectID,
		StudentID:        sub.StudentID,
		Status:           "failed",
		FlaggedQuestions: []string{},
		Answers:          []models.AnswerReport{},
		Error:            cause.Error(),
	}

	// the check context may already be done
	storeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	if err := c.reports.InsertReport(storeCtx, failed); err != nil {
		log.Error().Err(err).Str("submissionId", sub.SubmissionID).Msg("Failed to store failed report")
	}
	c.updateStatus(storeCtx, sub.SubmissionID, models.StepFailed)

	return cause
}

func (c *Checker) updateStatus(ctx context.Context, submissionID string, step models.Step) {
	if c.status == nil {
		return
	}
	if err := c.status.UpdateStatus(ctx, submissionID, step); err != nil {
		log.Warn().Err(err).Str("submissionId", submissionID).Str("step", string(step)).Msg("Failed to update status")
	}
}

// BuildReport aggregates answer results into a submission report
func BuildReport(sub *models.Submission, answers []models.AnswerReport, notesCompared int) *models.PlagiarismReport {
	score := 0
	flagged := make([]string, 0)
	for _, a := range answers {
		if len(a.Result.Details) > 0 {
			flagged = append(flagged, a.QuestionID)
		}
		score = max(score, a.Result.Score)
	}

	return &models.PlagiarismReport{
		SubmissionID:     sub.SubmissionID,
		AssignmentID:     sub.AssignmentID,
		SubjectID:        sub.SubjectID,
		StudentID:        sub.StudentID,
		Score:            score,
		Risk:             RiskLevel(score),
		Status:           "completed",
		FlaggedQuestions: flagged,
		Answers:          answers,
		NotesCompared:    notesCompared,
	}
}
