// Package match resolves probe embeddings against enrolled students.
//
// The metric is cosine distance. Embeddings coming out of the ArcFace
// embedder are L2-normalized, so cosine distance and squared L2 distance
// rank identically; cosine is kept because the pgvector read path uses the
// same operator.
package match

import (
	"math"

	"github.com/google/uuid"

	"github.com/your-org/classguard/internal/models"
)

// Result is a resolved match: the best-scoring student and its distance.
type Result struct {
	StudentID uuid.UUID
	Distance  float32
}

// Matcher selects the nearest enrolled student within a fixed acceptance
// threshold. A student's score is the minimum distance over all of its
// reference embeddings: any single enrollment photo matching is sufficient
// evidence of identity.
type Matcher struct {
	threshold float32
	tieMargin float32
}

// New builds a matcher. threshold is the maximum cosine distance accepted as
// a match; tieMargin is the minimum separation required between the two
// best-scoring distinct students before the winner is trusted.
func New(threshold, tieMargin float32) *Matcher {
	return &Matcher{threshold: threshold, tieMargin: tieMargin}
}

// Match finds the closest candidate under the threshold, or nil for an
// unknown face. Two distinct students within tieMargin of the best score
// resolve to nil rather than an arbitrary pick: redacting the wrong face is
// a worse failure than leaving a face visible.
func (m *Matcher) Match(probe []float32, candidates []models.Student) *Result {
	if len(probe) == 0 {
		return nil
	}

	best := float32(math.MaxFloat32)
	second := float32(math.MaxFloat32)
	var bestID uuid.UUID
	found := false

	for i := range candidates {
		c := &candidates[i]
		if !c.Enrolled() {
			continue
		}

		score := float32(math.MaxFloat32)
		for _, ref := range c.Embeddings {
			if len(ref.Vector) != len(probe) {
				continue
			}
			if d := CosineDistance(probe, ref.Vector); d < score {
				score = d
			}
		}

		if score < best {
			second = best
			best = score
			bestID = c.ID
			found = true
		} else if score < second {
			second = score
		}
	}

	if !found || best > m.threshold {
		return nil
	}
	if second-best < m.tieMargin {
		return nil // ambiguous between two students
	}

	return &Result{StudentID: bestID, Distance: best}
}

// CosineDistance computes 1 - cosine similarity between two vectors.
// Returns 0 for identical directions and 2 for opposite ones. Invalid or
// zero vectors report maximum distance.
func CosineDistance(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 2.0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 2.0
	}

	sim := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	if sim > 1 {
		sim = 1
	}
	if sim < -1 {
		sim = -1
	}
	return float32(1 - sim)
}
