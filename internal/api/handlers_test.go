package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/eduportal/integrity/internal/models"
	"github.com/eduportal/integrity/internal/proctoring"
	"github.com/eduportal/integrity/internal/repository"
	"github.com/eduportal/integrity/internal/similarity"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const testSecret = "test-secret"

type fakeChecker struct {
	got chan *models.Submission
}

func (f *fakeChecker) Check(ctx context.Context, sub *models.Submission) (*models.PlagiarismReport, error) {
	f.got <- sub
	return &models.PlagiarismReport{SubmissionID: sub.SubmissionID, Status: "completed"}, nil
}

type fakeQueue struct {
	err error
}

func (f *fakeQueue) Enqueue(ctx context.Context, sub *models.Submission) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return "1700000000000-0", nil
}

type fakeNoteStore struct {
	notes []*repository.Note
}

func (f *fakeNoteStore) InsertNote(ctx context.Context, note *repository.Note) error {
	f.notes = append(f.notes, note)
	return nil
}

type fakeReports struct {
	reports map[string]*models.PlagiarismReport
}

func (f *fakeReports) LatestReport(ctx context.Context, id string) (*models.PlagiarismReport, error) {
	return f.reports[id], nil
}

type fakeStatus struct{}

func (fakeStatus) Status(ctx context.Context, id string) (models.Step, error) {
	if id == "running" {
		return models.StepScoring, nil
	}
	return models.StepIdle, nil
}

type fakeWarnings struct {
	records map[string][]*proctoring.WarningRecord
}

func (f *fakeWarnings) WarningsBySession(ctx context.Context, id string) ([]*proctoring.WarningRecord, error) {
	return f.records[id], nil
}

type testServer struct {
	router  *gin.Engine
	checker *fakeChecker
	queue   *fakeQueue
	notes   *fakeNoteStore
}

func newTestServer(t *testing.T, rps float64) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	ctx, cancel := context.WithCancel(context.Background())
	registry := proctoring.NewRegistry(ctx, proctoring.RegistryDeps{})
	t.Cleanup(func() {
		registry.Close()
		cancel()
	})

	checker := &fakeChecker{got: make(chan *models.Submission, 1)}
	queue := &fakeQueue{}
	notes := &fakeNoteStore{}
	handler := NewHandler(HandlerDeps{
		Checker: checker,
		Queue:   queue,
		Notes:   notes,
		Reports: &fakeReports{reports: map[string]*models.PlagiarismReport{
			"done": {SubmissionID: "done", Score: 72, Risk: models.RiskHighlySuspicious, Status: "completed"},
		}},
		Status:   fakeStatus{},
		Sessions: registry,
		Warnings: &fakeWarnings{records: map[string][]*proctoring.WarningRecord{
			"old": {{SessionID: "old", Reason: proctoring.ReasonTabSwitch, Strikes: 1}},
		}},
		MaxConcurrentChecks: 2,
		CheckTimeout:        time.Second,
	})

	return &testServer{
		router:  SetupRoutes(ctx, RouteConfig{JWTSecret: testSecret, RateLimitRPS: rps}, handler),
		checker: checker,
		queue:   queue,
		notes:   notes,
	}
}

func signToken(t *testing.T, secret string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "portal",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	s, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("SignedString() error = %v", err)
	}
	return s
}

func (s *testServer) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if raw, ok := body.(string); ok {
			buf.WriteString(raw)
		} else if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+signToken(t, testSecret))

	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return v
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, 100)

	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
}

func TestScore(t *testing.T) {
	s := newTestServer(t, 100)
	text := "the quick brown fox jumps over the lazy dog"

	tests := []struct {
		name     string
		body     interface{}
		wantCode int
		wantErr  string
	}{
		{
			name: "identical document",
			body: map[string]interface{}{
				"candidateText": text,
				"documents":     []similarity.Document{{ID: "n1", Title: "Fox", Content: text}},
			},
			wantCode: http.StatusOK,
		},
		{name: "missing documents", body: map[string]interface{}{"candidateText": text}, wantCode: http.StatusBadRequest, wantErr: "INVALID_ARGUMENT"},
		{name: "missing candidate", body: map[string]interface{}{"documents": []similarity.Document{}}, wantCode: http.StatusBadRequest, wantErr: "INVALID_ARGUMENT"},
		{
			name: "document without id",
			body: map[string]interface{}{
				"candidateText": text,
				"documents":     []similarity.Document{{Content: text}},
			},
			wantCode: http.StatusBadRequest,
			wantErr:  "INVALID_ARGUMENT",
		},
		{name: "malformed json", body: `{"candidateText":`, wantCode: http.StatusBadRequest, wantErr: "INVALID_ARGUMENT"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := s.do(t, http.MethodPost, "/api/v1/similarity/score", tt.body)
			if w.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d (%s)", w.Code, tt.wantCode, w.Body.String())
			}
			if tt.wantErr != "" {
				if got := decode[ErrorResponse](t, w); got.Code != tt.wantErr {
					t.Errorf("code = %q, want %q", got.Code, tt.wantErr)
				}
				return
			}
			res := decode[similarity.Result](t, w)
			if res.Score != 100 || len(res.Details) != 1 || res.Details[0].DocumentID != "n1" {
				t.Errorf("unexpected result %+v", res)
			}
		})
	}
}

func TestCheckSubmission(t *testing.T) {
	s := newTestServer(t, 100)

	sub := models.Submission{
		SubmissionID: "sub-1",
		AssignmentID: "a1",
		SubjectID:    "bio",
		StudentID:    "st1",
		Answers:      []models.Answer{{QuestionID: "q1", Text: "glucose"}},
	}
	w := s.do(t, http.MethodPost, "/api/v1/submissions/check", sub)
	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202 (%s)", w.Code, w.Body.String())
	}
	resp := decode[models.CheckResponse](t, w)
	if resp.Step != models.StepInitiated || resp.SubmissionID != "sub-1" {
		t.Errorf("unexpected response %+v", resp)
	}

	select {
	case got := <-s.checker.got:
		if got.SubmissionID != "sub-1" || got.SubjectID != "bio" {
			t.Errorf("checker got %+v", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("submission was not checked")
	}

	w = s.do(t, http.MethodPost, "/api/v1/submissions/check", map[string]string{"assignmentId": "a1"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("incomplete submission status = %d, want 400", w.Code)
	}
}

func TestReportAndStatus(t *testing.T) {
	s := newTestServer(t, 100)

	w := s.do(t, http.MethodGet, "/api/v1/submissions/done/report", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("report status = %d, want 200", w.Code)
	}
	if got := decode[models.PlagiarismReport](t, w); got.Score != 72 || got.Risk != models.RiskHighlySuspicious {
		t.Errorf("unexpected report %+v", got)
	}

	w = s.do(t, http.MethodGet, "/api/v1/submissions/missing/report", nil)
	if w.Code != http.StatusNotFound || decode[ErrorResponse](t, w).Code != "REPORT_NOT_FOUND" {
		t.Errorf("missing report = %d %s", w.Code, w.Body.String())
	}

	w = s.do(t, http.MethodGet, "/api/v1/submissions/running/status", nil)
	if got := decode[StatusResponse](t, w); got.Step != models.StepScoring || got.SubmissionID != "running" {
		t.Errorf("status = %+v", got)
	}
	w = s.do(t, http.MethodGet, "/api/v1/submissions/unknown/status", nil)
	if got := decode[StatusResponse](t, w); got.Step != models.StepIdle {
		t.Errorf("status = %+v, want idle", got)
	}
}

func TestSessionLifecycle(t *testing.T) {
	s := newTestServer(t, 100)

	w := s.do(t, http.MethodPost, "/api/v1/sessions", models.StartSessionRequest{SessionID: "s1", AssignmentID: "a1", StudentID: "st1"})
	if w.Code != http.StatusCreated {
		t.Fatalf("start status = %d, want 201 (%s)", w.Code, w.Body.String())
	}
	if st := decode[proctoring.SessionState](t, w); st.ID != "s1" || st.Strikes != 0 || st.Locked {
		t.Errorf("unexpected start state %+v", st)
	}

	w = s.do(t, http.MethodPost, "/api/v1/sessions", models.StartSessionRequest{SessionID: "s1", AssignmentID: "a1", StudentID: "st1"})
	if w.Code != http.StatusConflict {
		t.Errorf("duplicate start status = %d, want 409", w.Code)
	}

	events := []struct {
		body       models.EventRequest
		wantReason string
		wantLocked bool
		strikes    int
	}{
		{body: models.EventRequest{Type: "tab_switch"}, wantReason: proctoring.ReasonTabSwitch, strikes: 1},
		{body: models.EventRequest{Type: "no_face_detected"}, wantReason: proctoring.ReasonNoFace, strikes: 1},
		{body: models.EventRequest{Type: "excessive_movement", Amount: 3}, strikes: 1},
		{body: models.EventRequest{Type: "copy_attempt"}, wantReason: proctoring.ReasonCopy, strikes: 2},
		{body: models.EventRequest{Type: "paste_attempt"}, wantReason: proctoring.ReasonAssignmentLock, wantLocked: true, strikes: 3},
		{body: models.EventRequest{Type: "tab_switch"}, wantLocked: true, strikes: 3},
	}
	for i, ev := range events {
		w := s.do(t, http.MethodPost, "/api/v1/sessions/s1/events", ev.body)
		if w.Code != http.StatusOK {
			t.Fatalf("event %d status = %d (%s)", i, w.Code, w.Body.String())
		}
		resp := decode[EventResponse](t, w)
		gotReason := ""
		if resp.Warning != nil {
			gotReason = resp.Warning.Reason
		}
		if gotReason != ev.wantReason {
			t.Errorf("event %d (%s) warning = %q, want %q", i, ev.body.Type, gotReason, ev.wantReason)
		}
		if resp.State.Locked != ev.wantLocked || resp.State.Strikes != ev.strikes {
			t.Errorf("event %d state = %+v, want locked=%v strikes=%d", i, resp.State, ev.wantLocked, ev.strikes)
		}
	}

	w = s.do(t, http.MethodPost, "/api/v1/sessions/s1/events", models.EventRequest{Type: "screenshot"})
	if w.Code != http.StatusBadRequest || decode[ErrorResponse](t, w).Code != "INVALID_EVENT" {
		t.Errorf("unknown event = %d %s", w.Code, w.Body.String())
	}

	w = s.do(t, http.MethodGet, "/api/v1/sessions/s1", nil)
	if st := decode[proctoring.SessionState](t, w); !st.Locked || st.LastWarning != proctoring.ReasonAssignmentLock {
		t.Errorf("session state = %+v", st)
	}

	w = s.do(t, http.MethodDelete, "/api/v1/sessions/s1", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("finish status = %d", w.Code)
	}
	if st := decode[proctoring.SessionState](t, w); st.EndedAt == nil {
		t.Errorf("finished session has no end time: %+v", st)
	}

	for _, method := range []string{http.MethodGet, http.MethodDelete} {
		w = s.do(t, method, "/api/v1/sessions/s1", nil)
		if w.Code != http.StatusNotFound || decode[ErrorResponse](t, w).Code != "SESSION_NOT_FOUND" {
			t.Errorf("%s after finish = %d %s", method, w.Code, w.Body.String())
		}
	}
	w = s.do(t, http.MethodPost, "/api/v1/sessions/s1/events", models.EventRequest{Type: "tab_switch"})
	if w.Code != http.StatusNotFound {
		t.Errorf("event after finish = %d, want 404", w.Code)
	}
}

func TestStartSessionGeneratesID(t *testing.T) {
	s := newTestServer(t, 100)

	w := s.do(t, http.MethodPost, "/api/v1/sessions", models.StartSessionRequest{AssignmentID: "a1", StudentID: "st1"})
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d", w.Code)
	}
	if st := decode[proctoring.SessionState](t, w); st.ID == "" {
		t.Error("expected a generated session id")
	}

	w = s.do(t, http.MethodPost, "/api/v1/sessions", map[string]string{"assignmentId": "a1"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("missing studentId status = %d, want 400", w.Code)
	}
}

func TestListWarnings(t *testing.T) {
	s := newTestServer(t, 100)

	w := s.do(t, http.MethodGet, "/api/v1/sessions/old/warnings", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), proctoring.ReasonTabSwitch) {
		t.Errorf("body = %s", w.Body.String())
	}

	w = s.do(t, http.MethodGet, "/api/v1/sessions/none/warnings", nil)
	if !strings.Contains(w.Body.String(), `"warnings":[]`) {
		t.Errorf("empty warnings body = %s", w.Body.String())
	}
}

func TestQueueSubmission(t *testing.T) {
	s := newTestServer(t, 100)
	sub := models.Submission{SubmissionID: "sub-2", AssignmentID: "a1", SubjectID: "bio", StudentID: "st1"}

	w := s.do(t, http.MethodPost, "/api/v1/submissions/queue", sub)
	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202 (%s)", w.Code, w.Body.String())
	}
	if got := decode[models.QueueResponse](t, w); got.SubmissionID != "sub-2" || got.EntryID == "" {
		t.Errorf("unexpected response %+v", got)
	}

	s.queue.err = errors.New("redis down")
	w = s.do(t, http.MethodPost, "/api/v1/submissions/queue", sub)
	if w.Code != http.StatusServiceUnavailable || decode[ErrorResponse](t, w).Code != "QUEUE_UNAVAILABLE" {
		t.Errorf("queue failure = %d %s", w.Code, w.Body.String())
	}
}

func TestAddNote(t *testing.T) {
	s := newTestServer(t, 100)

	w := s.do(t, http.MethodPost, "/api/v1/subjects/bio/notes", models.NoteRequest{Title: "Cells", Content: "Cells are the unit of life."})
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201 (%s)", w.Code, w.Body.String())
	}
	if len(s.notes.notes) != 1 {
		t.Fatalf("stored %d notes, want 1", len(s.notes.notes))
	}
	if n := s.notes.notes[0]; n.SubjectID != "bio" || n.ID == "" || n.Title != "Cells" {
		t.Errorf("unexpected note %+v", n)
	}

	w = s.do(t, http.MethodPost, "/api/v1/subjects/bio/notes", map[string]string{"title": "Empty"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("missing content status = %d, want 400", w.Code)
	}
}

type blockingChecker struct {
	started chan struct{}
	release chan struct{}
}

func (b *blockingChecker) Check(ctx context.Context, sub *models.Submission) (*models.PlagiarismReport, error) {
	b.started <- struct{}{}
	<-b.release
	return &models.PlagiarismReport{SubmissionID: sub.SubmissionID}, nil
}

func TestHandlerWaitDrainsChecks(t *testing.T) {
	gin.SetMode(gin.TestMode)

	checker := &blockingChecker{started: make(chan struct{}, 1), release: make(chan struct{})}
	handler := NewHandler(HandlerDeps{Checker: checker, MaxConcurrentChecks: 1, CheckTimeout: time.Second})
	router := gin.New()
	router.POST("/check", handler.CheckSubmission)

	body := `{"submissionId":"sub-9","assignmentId":"a1","subjectId":"bio","studentId":"st1","answers":[{"questionId":"q1","text":"x"}]}`
	req := httptest.NewRequest(http.MethodPost, "/check", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202 (%s)", w.Code, w.Body.String())
	}

	select {
	case <-checker.started:
	case <-time.After(2 * time.Second):
		t.Fatal("check did not start")
	}

	drained := make(chan struct{})
	go func() {
		handler.Wait()
		close(drained)
	}()

	select {
	case <-drained:
		t.Fatal("Wait() returned while a check was running")
	case <-time.After(50 * time.Millisecond):
	}

	close(checker.release)
	select {
	case <-drained:
	case <-time.After(2 * time.Second):
		t.Fatal("Wait() did not return after the check finished")
	}
}
