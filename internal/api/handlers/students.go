package handlers

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/your-org/classguard/internal/models"
	"github.com/your-org/classguard/internal/pipeline"
	"github.com/your-org/classguard/internal/storage"
	"github.com/your-org/classguard/pkg/dto"
)

type StudentHandler struct {
	db   *storage.PostgresStore
	pipe *pipeline.Pipeline
}

func NewStudentHandler(db *storage.PostgresStore, pipe *pipeline.Pipeline) *StudentHandler {
	return &StudentHandler{db: db, pipe: pipe}
}

// Enroll accepts a multipart form with name, class_name, blur_face and a
// photo containing exactly one face. Nothing is persisted on failure.
func (h *StudentHandler) Enroll(c *gin.Context) {
	name := strings.TrimSpace(c.PostForm("name"))
	className := strings.TrimSpace(c.PostForm("class_name"))
	if name == "" || className == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name and class_name are required"})
		return
	}
	blurFace := c.PostForm("blur_face") == "true"

	photo, err := readPhotoFile(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	st, err := h.pipe.Enroll(c.Request.Context(), name, className, blurFace, photo)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, studentToDTO(st))
}

// AddPhoto appends a reference embedding to an existing student. The
// exactly-one-face rule from enrollment applies.
func (h *StudentHandler) AddPhoto(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid student id"})
		return
	}

	photo, err := readPhotoFile(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ref, err := h.pipe.ReEnroll(c.Request.Context(), id, photo)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, dto.ReferenceEmbeddingResponse{
		ID:        ref.ID,
		StudentID: ref.StudentID,
		SourceRef: ref.SourceKey,
		CreatedAt: ref.CreatedAt.Format("2006-01-02T15:04:05Z"),
	})
}

func (h *StudentHandler) List(c *gin.Context) {
	var className *string
	if cn := c.Query("class_name"); cn != "" {
		className = &cn
	}

	students, err := h.db.ListStudents(c.Request.Context(), className)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	resp := make([]dto.StudentResponse, 0, len(students))
	for i := range students {
		resp = append(resp, studentToDTO(&students[i]))
	}

	c.JSON(http.StatusOK, dto.StudentListResponse{Students: resp, Total: len(resp)})
}

func (h *StudentHandler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid student id"})
		return
	}

	st, err := h.db.GetStudent(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if st == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "student not found"})
		return
	}

	c.JSON(http.StatusOK, studentToDTO(st))
}

// UpdatePolicy flips a student's blur policy. Takes effect for photos
// processed after the change; already-produced artifacts are untouched.
func (h *StudentHandler) UpdatePolicy(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid student id"})
		return
	}

	var req dto.UpdatePolicyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	st, err := h.db.UpdatePolicy(c.Request.Context(), id, *req.BlurFace)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, studentToDTO(st))
}

func (h *StudentHandler) Delete(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid student id"})
		return
	}

	keys, err := h.db.DeleteStudent(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	_ = h.pipe.SweepBlobs(c.Request.Context(), keys)

	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

// Search performs an identity lookup by uploading a single-face photo.
// Runs server-side through pgvector rather than the in-process matcher.
func (h *StudentHandler) Search(c *gin.Context) {
	photo, err := readPhotoFile(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	embedding, err := h.pipe.EmbedProbe(c.Request.Context(), photo)
	if err != nil {
		writeError(c, err)
		return
	}

	var className *string
	if cn := c.PostForm("class_name"); cn != "" {
		className = &cn
	}

	maxDistance := 0.65
	if v := c.PostForm("max_distance"); v != "" {
		if f, perr := strconv.ParseFloat(v, 64); perr == nil && f > 0 {
			maxDistance = f
		}
	}

	matches, err := h.db.SearchFaces(c.Request.Context(), embedding, className, maxDistance, 5)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	results := make([]dto.SearchResult, 0, len(matches))
	for _, m := range matches {
		results = append(results, dto.SearchResult{
			StudentID: m.StudentID,
			Name:      m.Name,
			Distance:  float64(m.Distance),
		})
	}
	c.JSON(http.StatusOK, gin.H{"results": results, "total": len(results)})
}

type ClassHandler struct {
	db *storage.PostgresStore
}

func NewClassHandler(db *storage.PostgresStore) *ClassHandler {
	return &ClassHandler{db: db}
}

func (h *ClassHandler) List(c *gin.Context) {
	classes, err := h.db.ListClasses(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, dto.ClassListResponse{Classes: classes, Total: len(classes)})
}

func studentToDTO(st *models.Student) dto.StudentResponse {
	return dto.StudentResponse{
		ID:             st.ID,
		Name:           st.Name,
		ClassName:      st.ClassName,
		BlurFace:       st.BlurPolicy,
		PhotoRef:       st.PhotoKey,
		EmbeddingCount: len(st.Embeddings),
		CreatedAt:      st.CreatedAt.Format("2006-01-02T15:04:05Z"),
	}
}

// readPhotoFile pulls the "photo" part out of a multipart form.
func readPhotoFile(c *gin.Context) ([]byte, error) {
	file, _, err := c.Request.FormFile("photo")
	if err != nil {
		return nil, errors.New("photo file required")
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, errors.New("read photo failed")
	}
	return data, nil
}
