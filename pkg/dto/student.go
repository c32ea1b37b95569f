package dto

import "github.com/google/uuid"

type StudentResponse struct {
	ID             uuid.UUID `json:"id"`
	Name           string    `json:"name"`
	ClassName      string    `json:"class_name"`
	BlurFace       bool      `json:"blur_face"`
	PhotoRef       string    `json:"photo_ref"`
	EmbeddingCount int       `json:"embedding_count"`
	CreatedAt      string    `json:"created_at"`
}

type StudentListResponse struct {
	Students []StudentResponse `json:"students"`
	Total    int               `json:"total"`
}

type ReferenceEmbeddingResponse struct {
	ID        uuid.UUID `json:"id"`
	StudentID uuid.UUID `json:"student_id"`
	SourceRef string    `json:"source_ref"`
	CreatedAt string    `json:"created_at"`
}

type UpdatePolicyRequest struct {
	BlurFace *bool `json:"blur_face" binding:"required"`
}

type ClassListResponse struct {
	Classes []string `json:"classes"`
	Total   int      `json:"total"`
}

type SearchResult struct {
	StudentID uuid.UUID `json:"student_id"`
	Name      string    `json:"name"`
	Distance  float64   `json:"distance"`
}
