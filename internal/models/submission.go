package models

// Answer is one free-text answer of a submission
type Answer struct {
	QuestionID string `json:"questionId" binding:"required"`
	Text       string `json:"text"`
}

// Submission represents an assignment submission, from the API or the Redis stream
type Submission struct {
	SubmissionID string   `json:"submissionId" binding:"required"`
	AssignmentID string   `json:"assignmentId" binding:"required"`
	SubjectID    string   `json:"subjectId" binding:"required"`
	StudentID    string   `json:"studentId" binding:"required"`
	Answers      []Answer `json:"answers" binding:"dive"`
}

// NoteRequest adds a course note to a subject
type NoteRequest struct {
	ID      string `json:"id"`
	Title   string `json:"title" binding:"required"`
	Content string `json:"content" binding:"required"`
}

// QueueResponse is returned when a submission is handed to the stream
type QueueResponse struct {
	SubmissionID string `json:"submissionId"`
	EntryID      string `json:"entryId"`
}
