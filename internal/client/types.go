package client

import (
	"strings"
	"time"
)

// JobStatus is the lifecycle state of an ExtractionJob.
type JobStatus string

const (
	JobStatusPending   JobStatus = "PENDING"
	JobStatusSucceeded JobStatus = "SUCCEEDED"
	JobStatusFailed    JobStatus = "FAILED"
)

// TrainingStatus mirrors the status strings reported by GET /models/{id}/status.
type TrainingStatus string

const (
	TrainingStatusTraining TrainingStatus = "training"
	TrainingStatusReady    TrainingStatus = "ready"
	TrainingStatusFailed   TrainingStatus = "failed"
	TrainingStatusUnknown  TrainingStatus = "unknown"
)

// IsTerminal reports whether no further transition can happen from s.
func (s TrainingStatus) IsTerminal() bool {
	return s == TrainingStatusReady || s == TrainingStatusFailed
}

// ExtractionJob is one extraction request and its outcome.
// Status moves from PENDING to a terminal state at most once.
type ExtractionJob struct {
	DocumentRef  string            `json:"document_ref"`
	ModelID      string            `json:"model_id"`
	Status       JobStatus         `json:"status"`
	Fields       map[string]string `json:"fields,omitempty"`
	ErrorMessage string            `json:"error_message,omitempty"`
}

// IsTerminal reports whether the job has been resolved.
func (j *ExtractionJob) IsTerminal() bool {
	return j.Status == JobStatusSucceeded || j.Status == JobStatusFailed
}

// Succeed resolves the job with fields. It returns false if the job was already terminal.
func (j *ExtractionJob) Succeed(fields map[string]string) bool {
	if j.IsTerminal() {
		return false
	}
	j.Status = JobStatusSucceeded
	j.Fields = fields
	return true
}

// UnspecifiedExtractionError replaces a blank failure message.
const UnspecifiedExtractionError = "backend reported an unspecified extraction error"

// Fail resolves the job with an error message. A blank message is replaced
// with UnspecifiedExtractionError. It returns false if the job was already terminal.
func (j *ExtractionJob) Fail(message string) bool {
	if j.IsTerminal() {
		return false
	}
	if strings.TrimSpace(message) == "" {
		message = UnspecifiedExtractionError
	}
	j.Status = JobStatusFailed
	j.ErrorMessage = message
	return true
}

// TrainingJob is a submitted training run identified by its model id.
type TrainingJob struct {
	ModelID           string         `json:"model_id"`
	Name              string         `json:"name"`
	Description       string         `json:"description"`
	TrainingDocuments []string       `json:"training_documents"`
	Status            TrainingStatus `json:"status"`
}

// Observe records a status report. Reports arriving after a terminal state
// and "unknown" reports are ignored. It returns true when the status changed.
func (j *TrainingJob) Observe(status TrainingStatus) bool {
	if j.Status.IsTerminal() || status == TrainingStatusUnknown || status == j.Status {
		return false
	}
	j.Status = status
	return true
}

// Model is the client-side read-only copy of a backend model.
type Model struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Description string         `json:"description"`
	CreatedAt   time.Time      `json:"createdAt"`
	Status      TrainingStatus `json:"status"`
}

// Document is a binary blob submitted for extraction or training.
type Document struct {
	Name        string
	ContentType string
	Data        []byte
}
