package models

// StartSessionRequest opens a proctoring session for an attempt
type StartSessionRequest struct {
	SessionID    string `json:"sessionId"`
	AssignmentID string `json:"assignmentId" binding:"required"`
	StudentID    string `json:"studentId" binding:"required"`
}

// EventRequest carries one browser-side violation signal
type EventRequest struct {
	Type   string `json:"type" binding:"required"`
	Amount int    `json:"amount"`
}
