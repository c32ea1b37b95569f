package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/your-org/classguard/internal/imaging"
	"github.com/your-org/classguard/internal/models"
	"github.com/your-org/classguard/internal/pipeline"
	"github.com/your-org/classguard/internal/queue"
	"github.com/your-org/classguard/internal/storage"
	"github.com/your-org/classguard/pkg/dto"
)

type PhotoHandler struct {
	db       *storage.PostgresStore
	blobs    *storage.BlobStore
	pipe     *pipeline.Pipeline
	producer *queue.Producer
}

func NewPhotoHandler(db *storage.PostgresStore, blobs *storage.BlobStore, pipe *pipeline.Pipeline, producer *queue.Producer) *PhotoHandler {
	return &PhotoHandler{db: db, blobs: blobs, pipe: pipe, producer: producer}
}

// Process runs the full detect/match/redact pipeline synchronously and
// returns the persisted result.
func (h *PhotoHandler) Process(c *gin.Context) {
	className := strings.TrimSpace(c.PostForm("class_name"))
	if className == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "class_name is required"})
		return
	}

	photo, err := readPhotoFile(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	res, err := h.pipe.ProcessClassPhoto(c.Request.Context(), className, photo)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, resultToDTO(res))
}

// SubmitJob stores the photo and enqueues it for a worker. Responds
// immediately with the job ID; the result appears at /v1/results/:id.
func (h *PhotoHandler) SubmitJob(c *gin.Context) {
	className := strings.TrimSpace(c.PostForm("class_name"))
	if className == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "class_name is required"})
		return
	}

	photo, err := readPhotoFile(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	contentType := imaging.DetectFormat(photo)
	job := models.PhotoJob{
		JobID:     uuid.New(),
		ClassName: className,
		SourceKey: storage.ClassPhotoKey(className, contentType),
		Submitted: time.Now().UTC(),
	}
	if err := h.blobs.Put(c.Request.Context(), job.SourceKey, photo, contentType); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "store photo failed"})
		return
	}
	if err := h.producer.PublishJob(c.Request.Context(), className, job); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "enqueue photo failed"})
		return
	}

	c.JSON(http.StatusAccepted, dto.JobResponse{
		JobID:     job.JobID,
		ClassName: className,
		Status:    "queued",
	})
}

func (h *PhotoHandler) GetResult(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid result id"})
		return
	}

	res, err := h.db.GetResult(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, resultToDTO(res))
}

// Artifact streams a stored image (enrollment original, class photo or
// processed output) by its blob ref.
func (h *PhotoHandler) Artifact(c *gin.Context) {
	ref := strings.TrimPrefix(c.Param("ref"), "/")
	if ref == "" || strings.Contains(ref, "..") {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid ref"})
		return
	}

	data, err := h.blobs.Get(c.Request.Context(), ref)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "artifact not found"})
		return
	}

	contentType := "image/jpeg"
	if strings.HasSuffix(ref, ".png") {
		contentType = "image/png"
	}
	c.Data(http.StatusOK, contentType, data)
}

// Reset irreversibly wipes all students, results and stored images.
func (h *PhotoHandler) Reset(c *gin.Context) {
	if err := h.pipe.Reset(c.Request.Context()); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "reset"})
}

func resultToDTO(res *models.ProcessingResult) dto.ResultResponse {
	faces := make([]dto.FaceResponse, 0, len(res.Faces))
	for _, f := range res.Faces {
		faces = append(faces, dto.FaceResponse{
			Box:        [4]int{f.Box.X1, f.Box.Y1, f.Box.X2, f.Box.Y2},
			Confidence: f.Confidence,
			Outcome:    string(f.Outcome),
			StudentID:  f.MatchedID,
			Distance:   f.Score,
			Redacted:   f.Redacted,
			Error:      f.Error,
		})
	}
	return dto.ResultResponse{
		ID:        res.ID,
		ClassName: res.ClassName,
		Status:    string(res.Status),
		SourceRef: res.SourceKey,
		OutputRef: res.OutputKey,
		Faces:     faces,
		Error:     res.Error,
		CreatedAt: res.CreatedAt.Format("2006-01-02T15:04:05Z"),
	}
}
