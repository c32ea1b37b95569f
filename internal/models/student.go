package models

import (
	"time"

	"github.com/google/uuid"
)

// Student is an enrolled identity: roster data, redaction policy and the
// reference embeddings the matcher compares probe faces against.
type Student struct {
	ID         uuid.UUID            `json:"id" db:"id"`
	Name       string               `json:"name" db:"name"`
	ClassName  string               `json:"class_name" db:"class_name"`
	BlurPolicy bool                 `json:"blur_policy" db:"blur_policy"`
	PhotoKey   string               `json:"photo_key" db:"photo_key"` // enrollment original, display only
	Embeddings []ReferenceEmbedding `json:"-"`
	CreatedAt  time.Time            `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time            `json:"updated_at" db:"updated_at"`
}

// Enrolled reports whether the student carries at least one reference
// embedding. Students without embeddings must never reach the matcher.
func (s *Student) Enrolled() bool {
	return len(s.Embeddings) > 0
}

// ReferenceEmbedding is one embedding produced from one accepted enrollment
// photo. Re-enrollment appends; old vectors are kept to tolerate lighting
// and pose variation.
type ReferenceEmbedding struct {
	ID        uuid.UUID `json:"id" db:"id"`
	StudentID uuid.UUID `json:"student_id" db:"student_id"`
	Vector    []float32 `json:"-" db:"embedding"`
	SourceKey string    `json:"source_key" db:"source_key"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
