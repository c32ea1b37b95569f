package dto

import "github.com/google/uuid"

type FaceResponse struct {
	Box        [4]int     `json:"box"` // x1, y1, x2, y2
	Confidence float32    `json:"confidence"`
	Outcome    string     `json:"outcome"` // matched, unmatched, errored
	StudentID  *uuid.UUID `json:"student_id,omitempty"`
	Distance   float32    `json:"distance,omitempty"`
	Redacted   bool       `json:"redacted"`
	Error      string     `json:"error,omitempty"`
}

type ResultResponse struct {
	ID        uuid.UUID      `json:"id"`
	ClassName string         `json:"class_name"`
	Status    string         `json:"status"`
	SourceRef string         `json:"source_ref"`
	OutputRef string         `json:"output_ref"`
	Faces     []FaceResponse `json:"faces"`
	Error     string         `json:"error,omitempty"`
	CreatedAt string         `json:"created_at"`
}

// JobResponse acknowledges an async photo submission. The result becomes
// available at /v1/results/:id once a worker finishes the job.
type JobResponse struct {
	JobID     uuid.UUID `json:"job_id"`
	ClassName string    `json:"class_name"`
	Status    string    `json:"status"`
}

// WSEvent is a WebSocket message for real-time completion delivery.
type WSEvent struct {
	Type      string    `json:"type"` // photo_processed, photo_failed
	ClassName string    `json:"class_name"`
	ResultID  uuid.UUID `json:"result_id"`
	Faces     int       `json:"faces"`
	Redacted  int       `json:"redacted"`
	OutputRef string    `json:"output_ref,omitempty"`
	Error     string    `json:"error,omitempty"`
}
