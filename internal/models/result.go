package models

import (
	"time"

	"github.com/google/uuid"
)

// Rect is an axis-aligned bounding box in source-image pixel coordinates.
type Rect struct {
	X1 int `json:"x1"`
	Y1 int `json:"y1"`
	X2 int `json:"x2"`
	Y2 int `json:"y2"`
}

func (r Rect) Width() int  { return r.X2 - r.X1 }
func (r Rect) Height() int { return r.Y2 - r.Y1 }

// Expand grows the box by pct of its own size on every side and clamps it
// to the given image dimensions.
func (r Rect) Expand(pct float64, imgW, imgH int) Rect {
	dx := int(float64(r.Width()) * pct)
	dy := int(float64(r.Height()) * pct)
	out := Rect{X1: r.X1 - dx, Y1: r.Y1 - dy, X2: r.X2 + dx, Y2: r.Y2 + dy}
	if out.X1 < 0 {
		out.X1 = 0
	}
	if out.Y1 < 0 {
		out.Y1 = 0
	}
	if out.X2 > imgW {
		out.X2 = imgW
	}
	if out.Y2 > imgH {
		out.Y2 = imgH
	}
	return out
}

// FaceOutcome tags the per-face result inside a processed class photo.
// Per-face failures degrade to FaceErrored instead of aborting the batch.
type FaceOutcome string

const (
	FaceMatched   FaceOutcome = "matched"
	FaceUnmatched FaceOutcome = "unmatched"
	FaceErrored   FaceOutcome = "errored"
)

// DetectedFace is ephemeral per-request state: one detected face with its
// resolved match and whether redaction was applied.
type DetectedFace struct {
	Box        Rect        `json:"box"`
	Confidence float32     `json:"confidence"`
	Embedding  []float32   `json:"-"`
	Outcome    FaceOutcome `json:"outcome"`
	MatchedID  *uuid.UUID  `json:"matched_id,omitempty"`
	Score      float32     `json:"score,omitempty"`
	Redacted   bool        `json:"redacted"`
	Error      string      `json:"error,omitempty"`
}

// ResultStatus is the class-photo processing state machine.
type ResultStatus string

const (
	StatusReceived  ResultStatus = "received"
	StatusDetecting ResultStatus = "detecting"
	StatusEmbedding ResultStatus = "embedding"
	StatusMatching  ResultStatus = "matching"
	StatusRedacting ResultStatus = "redacting"
	StatusPersisted ResultStatus = "persisted"
	StatusFailed    ResultStatus = "failed"
)

// ProcessingResult is the immutable artifact handed back for one class-photo
// request. The output image is always a new blob; the source is never
// overwritten.
type ProcessingResult struct {
	ID        uuid.UUID      `json:"id" db:"id"`
	ClassName string         `json:"class_name" db:"class_name"`
	SourceKey string         `json:"source_key" db:"source_key"`
	OutputKey string         `json:"output_key" db:"output_key"`
	Faces     []DetectedFace `json:"faces"`
	Status    ResultStatus   `json:"status" db:"status"`
	Error     string         `json:"error,omitempty" db:"error_message"`
	CreatedAt time.Time      `json:"created_at" db:"created_at"`
}

// PhotoJob is the message published to NATS for queued class-photo
// processing by a worker.
type PhotoJob struct {
	JobID     uuid.UUID `json:"job_id"`
	ClassName string    `json:"class_name"`
	SourceKey string    `json:"source_key"`
	Submitted time.Time `json:"submitted"`
}
