package api

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/eduportal/integrity/internal/models"
	"github.com/eduportal/integrity/internal/proctoring"
	"github.com/eduportal/integrity/internal/repository"
	"github.com/eduportal/integrity/internal/similarity"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

type SubmissionChecker interface {
	Check(ctx context.Context, sub *models.Submission) (*models.PlagiarismReport, error)
}

type ReportReader interface {
	LatestReport(ctx context.Context, submissionID string) (*models.PlagiarismReport, error)
}

type StatusReader interface {
	Status(ctx context.Context, submissionID string) (models.Step, error)
}

type SubmissionQueue interface {
	Enqueue(ctx context.Context, sub *models.Submission) (string, error)
}

type NoteWriter interface {
	InsertNote(ctx context.Context, note *repository.Note) error
}

type WarningReader interface {
	WarningsBySession(ctx context.Context, sessionID string) ([]*proctoring.WarningRecord, error)
}

// SessionManager is implemented by *proctoring.Registry
type SessionManager interface {
	Start(ctx context.Context, info proctoring.SessionInfo) (*proctoring.Monitor, error)
	Get(id string) (*proctoring.Monitor, error)
	Record(id string, event proctoring.Event) (*proctoring.Warning, proctoring.SessionState, error)
	Finish(ctx context.Context, id string) (proctoring.SessionState, error)
}

// HandlerDeps holds the collaborators of the HTTP handlers
type HandlerDeps struct {
	Checker             SubmissionChecker
	Queue               SubmissionQueue
	Notes               NoteWriter
	Reports             ReportReader
	Status              StatusReader
	Sessions            SessionManager
	Warnings            WarningReader
	MaxConcurrentChecks int
	CheckTimeout        time.Duration
}

// Handler holds dependencies for handlers
type Handler struct {
	deps         HandlerDeps
	checkSem     chan struct{} // bounds concurrent checks
	checkTimeout time.Duration
	inflight     sync.WaitGroup
}

func NewHandler(deps HandlerDeps) *Handler {
	return &Handler{
		deps:         deps,
		checkSem:     make(chan struct{}, max(deps.MaxConcurrentChecks, 1)),
		checkTimeout: deps.CheckTimeout,
	}
}

// EventResponse is returned for every recorded proctoring event
type EventResponse struct {
	Warning *proctoring.Warning     `json:"warning"`
	State   proctoring.SessionState `json:"state"`
}

// StatusResponse reports the progress of a plagiarism check
type StatusResponse struct {
	SubmissionID string      `json:"submissionId"`
	Step         models.Step `json:"step"`
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
	})
}

// Score runs the similarity scorer directly on the request body
func (h *Handler) Score(c *gin.Context) {
	var req models.ScoreRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, "Invalid request body", "INVALID_ARGUMENT")
		return
	}
	if req.CandidateText == nil || req.Documents == nil {
		abortWithError(c, http.StatusBadRequest, "candidateText and documents are required", "INVALID_ARGUMENT")
		return
	}
	if err := similarity.Validate(*req.Documents); err != nil {
		abortWithError(c, http.StatusBadRequest, err.Error(), "INVALID_ARGUMENT")
		return
	}

	c.JSON(http.StatusOK, similarity.Score(*req.CandidateText, *req.Documents))
}

// CheckSubmission accepts a submission and scores it in the background
func (h *Handler) CheckSubmission(c *gin.Context) {
	var sub models.Submission
	if err := c.ShouldBindJSON(&sub); err != nil {
		abortWithError(c, http.StatusBadRequest, "Invalid request body", "INVALID_REQUEST")
		return
	}

	ctx := c.Request.Context()
	select {
	case h.checkSem <- struct{}{}:
	case <-ctx.Done():
		abortWithError(c, http.StatusRequestTimeout, "Request cancelled", "REQUEST_TIMEOUT")
		return
	}

	c.JSON(http.StatusAccepted, models.CheckResponse{
		Step:         models.StepInitiated,
		SubmissionID: sub.SubmissionID,
	})

	h.inflight.Add(1)
	go h.processCheck(&sub)
}

// Wait blocks until every background check started by CheckSubmission returns
func (h *Handler) Wait() {
	h.inflight.Wait()
}

func (h *Handler) processCheck(sub *models.Submission) {
	defer h.inflight.Done()
	defer func() { <-h.checkSem }()

	ctx, cancel := context.WithTimeout(context.Background(), h.checkTimeout)
	defer cancel()

	if _, err := h.deps.Checker.Check(ctx, sub); err != nil {
		log.Error().Err(err).Str("submissionId", sub.SubmissionID).Msg("Plagiarism check failed")
		return
	}
	log.Debug().Str("submissionId", sub.SubmissionID).Msg("Plagiarism check finished")
}

// QueueSubmission hands the submission to the stream consumers
func (h *Handler) QueueSubmission(c *gin.Context) {
	var sub models.Submission
	if err := c.ShouldBindJSON(&sub); err != nil {
		abortWithError(c, http.StatusBadRequest, "Invalid request body", "INVALID_REQUEST")
		return
	}

	entryID, err := h.deps.Queue.Enqueue(c.Request.Context(), &sub)
	if err != nil {
		log.Error().Err(err).Str("submissionId", sub.SubmissionID).Msg("Failed to queue submission")
		abortWithError(c, http.StatusServiceUnavailable, "Failed to queue submission", "QUEUE_UNAVAILABLE")
		return
	}

	c.JSON(http.StatusAccepted, models.QueueResponse{SubmissionID: sub.SubmissionID, EntryID: entryID})
}

func (h *Handler) AddNote(c *gin.Context) {
	var req models.NoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, "Invalid request body", "INVALID_REQUEST")
		return
	}

	note := &repository.Note{
		ID:        req.ID,
		SubjectID: c.Param("id"),
		Title:     req.Title,
		Content:   req.Content,
	}
	if note.ID == "" {
		note.ID = uuid.New().String()
	}

	if err := h.deps.Notes.InsertNote(c.Request.Context(), note); err != nil {
		log.Error().Err(err).Str("subjectId", note.SubjectID).Msg("Failed to store note")
		abortWithError(c, http.StatusInternalServerError, "Failed to store note", "INTERNAL_ERROR")
		return
	}

	c.JSON(http.StatusCreated, note)
}

func (h *Handler) GetReport(c *gin.Context) {
	id := c.Param("id")

	report, err := h.deps.Reports.LatestReport(c.Request.Context(), id)
	if err != nil {
		log.Error().Err(err).Str("submissionId", id).Msg("Failed to load report")
		abortWithError(c, http.StatusInternalServerError, "Failed to load report", "INTERNAL_ERROR")
		return
	}
	if report == nil {
		abortWithError(c, http.StatusNotFound, "No report for submission", "REPORT_NOT_FOUND")
		return
	}

	c.JSON(http.StatusOK, report)
}

func (h *Handler) GetStatus(c *gin.Context) {
	id := c.Param("id")

	step, err := h.deps.Status.Status(c.Request.Context(), id)
	if err != nil {
		log.Error().Err(err).Str("submissionId", id).Msg("Failed to read check status")
		abortWithError(c, http.StatusInternalServerError, "Failed to read status", "INTERNAL_ERROR")
		return
	}

	c.JSON(http.StatusOK, StatusResponse{SubmissionID: id, Step: step})
}

func (h *Handler) StartSession(c *gin.Context) {
	var req models.StartSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, "Invalid request body", "INVALID_REQUEST")
		return
	}

	m, err := h.deps.Sessions.Start(c.Request.Context(), proctoring.SessionInfo{
		ID:           req.SessionID,
		AssignmentID: req.AssignmentID,
		StudentID:    req.StudentID,
	})
	if errors.Is(err, proctoring.ErrSessionExists) {
		abortWithError(c, http.StatusConflict, err.Error(), "SESSION_EXISTS")
		return
	}
	if err != nil {
		log.Error().Err(err).Str("assignmentId", req.AssignmentID).Msg("Failed to start session")
		abortWithError(c, http.StatusInternalServerError, "Failed to start session", "INTERNAL_ERROR")
		return
	}

	c.JSON(http.StatusCreated, m.Snapshot())
}

func (h *Handler) RecordEvent(c *gin.Context) {
	var req models.EventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, "Invalid request body", "INVALID_REQUEST")
		return
	}

	kind, err := proctoring.ParseEventKind(req.Type)
	if err != nil {
		abortWithError(c, http.StatusBadRequest, err.Error(), "INVALID_EVENT")
		return
	}

	w, state, err := h.deps.Sessions.Record(c.Param("id"), proctoring.Event{Kind: kind, Amount: req.Amount})
	if err != nil {
		h.sessionError(c, err)
		return
	}

	c.JSON(http.StatusOK, EventResponse{Warning: w, State: state})
}

func (h *Handler) GetSession(c *gin.Context) {
	m, err := h.deps.Sessions.Get(c.Param("id"))
	if err != nil {
		h.sessionError(c, err)
		return
	}
	c.JSON(http.StatusOK, m.Snapshot())
}

func (h *Handler) FinishSession(c *gin.Context) {
	state, err := h.deps.Sessions.Finish(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.sessionError(c, err)
		return
	}
	c.JSON(http.StatusOK, state)
}

func (h *Handler) ListWarnings(c *gin.Context) {
	id := c.Param("id")

	warnings, err := h.deps.Warnings.WarningsBySession(c.Request.Context(), id)
	if err != nil {
		log.Error().Err(err).Str("sessionId", id).Msg("Failed to load warnings")
		abortWithError(c, http.StatusInternalServerError, "Failed to load warnings", "INTERNAL_ERROR")
		return
	}
	if warnings == nil {
		warnings = []*proctoring.WarningRecord{}
	}

	c.JSON(http.StatusOK, gin.H{"sessionId": id, "warnings": warnings})
}

func (h *Handler) sessionError(c *gin.Context, err error) {
	if errors.Is(err, proctoring.ErrSessionNotFound) {
		abortWithError(c, http.StatusNotFound, err.Error(), "SESSION_NOT_FOUND")
		return
	}
	log.Error().Err(err).Str("sessionId", c.Param("id")).Msg("Session operation failed")
	abortWithError(c, http.StatusInternalServerError, "Session operation failed", "INTERNAL_ERROR")
}
