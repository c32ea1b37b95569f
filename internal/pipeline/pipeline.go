// Package pipeline sequences detection, embedding, matching and redaction
// for the two user-facing operations: enroll a student, process a class
// photo.
package pipeline

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/your-org/classguard/internal/config"
	"github.com/your-org/classguard/internal/imaging"
	"github.com/your-org/classguard/internal/match"
	"github.com/your-org/classguard/internal/models"
	"github.com/your-org/classguard/internal/observability"
	"github.com/your-org/classguard/internal/redact"
	"github.com/your-org/classguard/internal/storage"
	"github.com/your-org/classguard/internal/vision"
)

// Detector locates faces in a decoded image. Implementations must treat
// "no face" as an empty result, not an error.
type Detector interface {
	Detect(img image.Image) ([]vision.Detection, error)
}

// Embedder converts a detected face region into a fixed-length descriptor.
// Must be deterministic for a fixed input.
type Embedder interface {
	Embed(img image.Image, det vision.Detection) ([]float32, error)
}

// RosterStore is the pipeline's view of the identity store.
type RosterStore interface {
	CreateStudent(ctx context.Context, st *models.Student, embedding []float32, sourceKey string) error
	AppendEmbedding(ctx context.Context, studentID uuid.UUID, embedding []float32, sourceKey string) (*models.ReferenceEmbedding, error)
	GetStudent(ctx context.Context, id uuid.UUID) (*models.Student, error)
	LoadRoster(ctx context.Context, className string) ([]models.Student, error)
	SaveResult(ctx context.Context, res *models.ProcessingResult) error
	ResetAll(ctx context.Context) ([]string, error)
}

// Blobs is the pipeline's view of the blob store.
type Blobs interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
	DeleteBatch(ctx context.Context, keys []string) error
	List(ctx context.Context, prefix string) ([]string, error)
}

// Pipeline orchestrates enroll and class-photo processing. Detector and
// embedder backends are injected so they can be swapped without touching
// the flow.
type Pipeline struct {
	detector Detector
	embedder Embedder
	matcher  *match.Matcher
	engine   *redact.Engine
	db       RosterStore
	blobs    Blobs

	maxPixelArea int
	timeout      time.Duration
}

// New wires a pipeline from its collaborators.
func New(cfg *config.Config, detector Detector, embedder Embedder, db RosterStore, blobs Blobs) *Pipeline {
	return &Pipeline{
		detector: detector,
		embedder: embedder,
		matcher:  match.New(float32(cfg.Match.DistanceThreshold), float32(cfg.Match.TieMargin)),
		engine: redact.NewEngine(redact.Options{
			Mode:         redact.Mode(cfg.Redact.Mode),
			MarginPct:    cfg.Redact.MarginPct,
			SigmaDivisor: cfg.Redact.SigmaDivisor,
			BlockDivisor: cfg.Redact.BlockDivisor,
		}),
		db:           db,
		blobs:        blobs,
		maxPixelArea: cfg.Vision.MaxPixelArea,
		timeout:      cfg.Vision.InferenceTimeout,
	}
}

// NewONNX loads the RetinaFace and ArcFace models and wires a production
// pipeline, mirroring the layout of the model files on disk.
func NewONNX(cfg *config.Config, db *storage.PostgresStore, blobs *storage.BlobStore) (*Pipeline, func(), error) {
	detPath := filepath.Join(cfg.Vision.ModelsDir, "det_10g.onnx")
	embPath := filepath.Join(cfg.Vision.ModelsDir, "w600k_r50.onnx")

	slog.Info("loading detection model", "path", detPath)
	det, err := vision.NewDetector(detPath, float32(cfg.Vision.DetectionThreshold), nil)
	if err != nil {
		return nil, nil, fmt.Errorf("load detector: %w", err)
	}

	slog.Info("loading embedding model", "path", embPath)
	emb, err := vision.NewEmbedder(embPath)
	if err != nil {
		det.Close()
		return nil, nil, fmt.Errorf("load embedder: %w", err)
	}

	cleanup := func() {
		det.Close()
		emb.Close()
	}
	return New(cfg, det, emb, db, blobs), cleanup, nil
}

// Enroll binds a student record to the single face in the photo. Exactly
// one detectable face is a business rule of enrollment: zero or multiple
// faces fail the request and nothing is persisted.
func (p *Pipeline) Enroll(ctx context.Context, name, className string, blurPolicy bool, photo []byte) (*models.Student, error) {
	embedding, err := p.embedSingleFace(ctx, photo)
	if err != nil {
		observability.EnrollmentsTotal.WithLabelValues("error").Inc()
		return nil, err
	}

	contentType := imaging.DetectFormat(photo)
	photoKey := storage.EnrollmentKey(name, contentType)
	if err := p.blobs.Put(ctx, photoKey, photo, contentType); err != nil {
		observability.EnrollmentsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("store enrollment photo: %w", err)
	}

	st := &models.Student{
		Name:       name,
		ClassName:  className,
		BlurPolicy: blurPolicy,
		PhotoKey:   photoKey,
	}
	if err := p.db.CreateStudent(ctx, st, embedding, photoKey); err != nil {
		// Keep creation atomic: the blob must not outlive a failed record.
		if derr := p.blobs.Delete(ctx, photoKey); derr != nil {
			slog.Warn("orphaned enrollment blob", "key", photoKey, "error", derr)
		}
		observability.EnrollmentsTotal.WithLabelValues("error").Inc()
		return nil, err
	}

	observability.EnrollmentsTotal.WithLabelValues("ok").Inc()
	slog.Info("student enrolled", "id", st.ID, "class", className)
	return st, nil
}

// ReEnroll appends another reference embedding to an existing student to
// tolerate lighting and pose variation. The same exactly-one-face rule
// applies.
func (p *Pipeline) ReEnroll(ctx context.Context, studentID uuid.UUID, photo []byte) (*models.ReferenceEmbedding, error) {
	st, err := p.db.GetStudent(ctx, studentID)
	if err != nil {
		return nil, err
	}
	if st == nil {
		return nil, models.NewError(models.KindNotFound, "student not found")
	}

	embedding, err := p.embedSingleFace(ctx, photo)
	if err != nil {
		return nil, err
	}

	contentType := imaging.DetectFormat(photo)
	sourceKey := storage.EnrollmentKey(st.Name, contentType)
	if err := p.blobs.Put(ctx, sourceKey, photo, contentType); err != nil {
		return nil, fmt.Errorf("store enrollment photo: %w", err)
	}

	ref, err := p.db.AppendEmbedding(ctx, studentID, embedding, sourceKey)
	if err != nil {
		if derr := p.blobs.Delete(ctx, sourceKey); derr != nil {
			slog.Warn("orphaned enrollment blob", "key", sourceKey, "error", derr)
		}
		return nil, err
	}
	return ref, nil
}

// EmbedProbe extracts the embedding of the single face in a photo without
// persisting anything. Serves identity lookups.
func (p *Pipeline) EmbedProbe(ctx context.Context, photo []byte) ([]float32, error) {
	return p.embedSingleFace(ctx, photo)
}

// embedSingleFace enforces the exactly-one-face policy and returns the
// embedding of that face.
func (p *Pipeline) embedSingleFace(ctx context.Context, photo []byte) ([]float32, error) {
	img, err := imaging.Decode(photo)
	if err != nil {
		return nil, err
	}
	img, _ = imaging.BoundPixelArea(img, p.maxPixelArea)

	detections, err := p.detect(ctx, img)
	if err != nil {
		return nil, err
	}
	switch {
	case len(detections) == 0:
		return nil, models.NewError(models.KindNoFace, "no face detected in enrollment photo")
	case len(detections) > 1:
		return nil, models.NewError(models.KindMultipleFaces,
			fmt.Sprintf("enrollment photo contains %d faces, expected exactly one", len(detections)))
	}

	return p.embed(ctx, img, detections[0])
}

// ProcessClassPhoto runs the full pipeline over a class photo. Zero faces
// is a success; per-face failures degrade that face to errored; only an
// undecodable image fails the whole request, with nothing persisted.
func (p *Pipeline) ProcessClassPhoto(ctx context.Context, className string, photo []byte) (*models.ProcessingResult, error) {
	res := &models.ProcessingResult{
		ID:        uuid.New(),
		ClassName: className,
		Status:    models.StatusReceived,
	}

	img, err := imaging.Decode(photo)
	if err != nil {
		observability.PhotosProcessed.WithLabelValues(string(models.StatusFailed)).Inc()
		return nil, err
	}

	contentType := imaging.DetectFormat(photo)
	res.SourceKey = storage.ClassPhotoKey(className, contentType)
	if err := p.blobs.Put(ctx, res.SourceKey, photo, contentType); err != nil {
		return nil, fmt.Errorf("store class photo: %w", err)
	}

	out, err := p.process(ctx, res, img, photo)
	if err != nil {
		// Nothing recorded points at the source blob yet, so it must not
		// outlive the failed request.
		if derr := p.blobs.Delete(ctx, res.SourceKey); derr != nil {
			slog.Warn("orphaned class photo blob", "key", res.SourceKey, "error", derr)
		}
		return nil, err
	}
	return out, nil
}

// ProcessStored runs the pipeline over a photo already in the blob store,
// used by async workers. The job ID becomes the result ID so clients can
// poll /results with the ID they got back at submission. A decode failure
// is persisted as a failed result here, since the submitter is gone.
func (p *Pipeline) ProcessStored(ctx context.Context, jobID uuid.UUID, className, sourceKey string) (*models.ProcessingResult, error) {
	res := &models.ProcessingResult{
		ID:        jobID,
		ClassName: className,
		SourceKey: sourceKey,
		Status:    models.StatusReceived,
	}

	photo, err := p.blobs.Get(ctx, sourceKey)
	if err != nil {
		return nil, fmt.Errorf("fetch class photo: %w", err)
	}

	img, err := imaging.Decode(photo)
	if err != nil {
		res.Status = models.StatusFailed
		res.Error = err.Error()
		if serr := p.db.SaveResult(ctx, res); serr != nil {
			return nil, fmt.Errorf("save failed result: %w", serr)
		}
		observability.PhotosProcessed.WithLabelValues(string(models.StatusFailed)).Inc()
		return res, nil
	}

	return p.process(ctx, res, img, photo)
}

func (p *Pipeline) process(ctx context.Context, res *models.ProcessingResult, src image.Image, photo []byte) (*models.ProcessingResult, error) {
	className := res.ClassName

	// Inference runs on the area-bounded frame; reported boxes and redacted
	// regions are mapped back to the source's pixel space, which is what the
	// stored artifact uses.
	bounded, scale := imaging.BoundPixelArea(src, p.maxPixelArea)
	if scale != 1.0 {
		slog.Debug("class photo downscaled for inference", "scale", scale)
	}

	res.Status = models.StatusDetecting
	start := time.Now()
	detections, err := p.detect(ctx, bounded)
	if err != nil {
		return nil, fmt.Errorf("detect: %w", err)
	}
	observability.InferenceDuration.WithLabelValues("detect").Observe(time.Since(start).Seconds())
	observability.FacesDetected.Add(float64(len(detections)))

	// Stable reporting order: left to right, ties top to bottom.
	sort.SliceStable(detections, func(i, j int) bool {
		if detections[i].BBox[0] != detections[j].BBox[0] {
			return detections[i].BBox[0] < detections[j].BBox[0]
		}
		return detections[i].BBox[1] < detections[j].BBox[1]
	})

	roster, err := p.db.LoadRoster(ctx, className)
	if err != nil {
		return nil, fmt.Errorf("load roster: %w", err)
	}
	policy := make(map[uuid.UUID]bool, len(roster))
	for _, st := range roster {
		policy[st.ID] = st.BlurPolicy
	}

	var redactBoxes []models.Rect
	res.Faces = make([]models.DetectedFace, 0, len(detections))

	for _, det := range detections {
		face := models.DetectedFace{
			Box:        sourceBox(det.BBox, scale, src.Bounds()),
			Confidence: det.Confidence,
			Outcome:    models.FaceUnmatched,
		}

		res.Status = models.StatusEmbedding
		start = time.Now()
		embedding, err := p.embed(ctx, bounded, det)
		observability.InferenceDuration.WithLabelValues("embed").Observe(time.Since(start).Seconds())
		if err != nil {
			// Partial success: this face degrades, the batch continues.
			face.Outcome = models.FaceErrored
			face.Error = err.Error()
			res.Faces = append(res.Faces, face)
			slog.Warn("face embedding failed", "result", res.ID, "error", err)
			continue
		}
		face.Embedding = embedding

		res.Status = models.StatusMatching
		if m := p.matcher.Match(embedding, roster); m != nil {
			face.Outcome = models.FaceMatched
			face.MatchedID = &m.StudentID
			face.Score = m.Distance
			if policy[m.StudentID] {
				face.Redacted = true
				redactBoxes = append(redactBoxes, face.Box)
			}
		}

		res.Faces = append(res.Faces, face)
	}

	res.Status = models.StatusRedacting
	var outData []byte
	contentType := imaging.DetectFormat(photo)
	if len(redactBoxes) > 0 {
		start = time.Now()
		out := p.engine.Apply(src, redactBoxes)
		outData = imaging.EncodePNG(out)
		contentType = "image/png"
		observability.InferenceDuration.WithLabelValues("redact").Observe(time.Since(start).Seconds())
		observability.FacesRedacted.Add(float64(len(redactBoxes)))
	} else {
		// Nothing to obscure: the output artifact is byte-identical to the
		// source, but still a distinct blob.
		outData = photo
	}

	res.OutputKey = storage.ResultKey(res.ID, contentType)
	if err := p.blobs.Put(ctx, res.OutputKey, outData, contentType); err != nil {
		return nil, fmt.Errorf("store output: %w", err)
	}

	res.Status = models.StatusPersisted
	if err := p.db.SaveResult(ctx, res); err != nil {
		return nil, fmt.Errorf("save result: %w", err)
	}

	observability.PhotosProcessed.WithLabelValues(string(models.StatusPersisted)).Inc()
	slog.Info("class photo processed",
		"result", res.ID,
		"class", className,
		"faces", len(res.Faces),
		"redacted", len(redactBoxes),
	)
	return res, nil
}

// sourceBox maps a detection box from the inference frame back to the
// source image's pixel space, clamped to the source bounds.
func sourceBox(bbox [4]float32, scale float64, bounds image.Rectangle) models.Rect {
	r := models.Rect{
		X1: int(float64(bbox[0]) / scale),
		Y1: int(float64(bbox[1]) / scale),
		X2: int(float64(bbox[2]) / scale),
		Y2: int(float64(bbox[3]) / scale),
	}
	if r.X2 > bounds.Dx() {
		r.X2 = bounds.Dx()
	}
	if r.Y2 > bounds.Dy() {
		r.Y2 = bounds.Dy()
	}
	return r
}

// Reset irreversibly wipes all students, results and blobs. The record
// store is cleared in one transaction; the blob sweep runs after commit
// and also removes blobs orphaned by earlier failed sweeps.
func (p *Pipeline) Reset(ctx context.Context) error {
	keys, err := p.db.ResetAll(ctx)
	if err != nil {
		return err
	}
	if err := p.blobs.DeleteBatch(ctx, keys); err != nil {
		return fmt.Errorf("sweep blobs: %w", err)
	}

	orphans := 0
	for _, prefix := range []string{storage.PrefixEnrollments, storage.PrefixClassPhotos, storage.PrefixResults} {
		leftover, err := p.blobs.List(ctx, prefix)
		if err != nil {
			return fmt.Errorf("list %s: %w", prefix, err)
		}
		if err := p.blobs.DeleteBatch(ctx, leftover); err != nil {
			return fmt.Errorf("sweep %s: %w", prefix, err)
		}
		orphans += len(leftover)
	}

	slog.Info("store reset", "blobs_removed", len(keys), "orphans_removed", orphans)
	return nil
}

// SweepBlobs removes blob keys orphaned by a record deletion. Best effort;
// a failed sweep leaves unreferenced blobs, never dangling records.
func (p *Pipeline) SweepBlobs(ctx context.Context, keys []string) error {
	return p.blobs.DeleteBatch(ctx, keys)
}

// detect runs the detector under the configured per-call timeout.
func (p *Pipeline) detect(ctx context.Context, img image.Image) ([]vision.Detection, error) {
	var detections []vision.Detection
	err := p.withTimeout(ctx, "detection", func() error {
		var err error
		detections, err = p.detector.Detect(img)
		return err
	})
	return detections, err
}

// embed runs the embedder under the configured per-call timeout.
func (p *Pipeline) embed(ctx context.Context, img image.Image, det vision.Detection) ([]float32, error) {
	var embedding []float32
	err := p.withTimeout(ctx, "embedding", func() error {
		var err error
		embedding, err = p.embedder.Embed(img, det)
		return err
	})
	return embedding, err
}

// withTimeout bounds a blocking inference call. The underlying call cannot
// be interrupted, but the request stops waiting for it.
func (p *Pipeline) withTimeout(ctx context.Context, stage string, fn func() error) error {
	if p.timeout <= 0 {
		return fn()
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- fn() }()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return models.WrapError(models.KindTimeout, stage+" timed out", ctx.Err())
	}
}
