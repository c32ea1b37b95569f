package match

import (
	"math"
	"testing"

	"github.com/google/uuid"

	"github.com/your-org/classguard/internal/models"
)

func TestCosineDistance(t *testing.T) {
	tests := []struct {
		name     string
		a        []float32
		b        []float32
		expected float32
	}{
		{
			name:     "identical vectors",
			a:        []float32{1, 0, 0},
			b:        []float32{1, 0, 0},
			expected: 0.0,
		},
		{
			name:     "orthogonal vectors",
			a:        []float32{1, 0, 0},
			b:        []float32{0, 1, 0},
			expected: 1.0,
		},
		{
			name:     "opposite vectors",
			a:        []float32{1, 0, 0},
			b:        []float32{-1, 0, 0},
			expected: 2.0,
		},
		{
			name:     "scale invariant",
			a:        []float32{1, 1, 0},
			b:        []float32{10, 10, 0},
			expected: 0.0,
		},
		{
			name:     "length mismatch",
			a:        []float32{1, 0},
			b:        []float32{1, 0, 0},
			expected: 2.0,
		},
		{
			name:     "empty vectors",
			a:        []float32{},
			b:        []float32{},
			expected: 2.0,
		},
		{
			name:     "zero vector",
			a:        []float32{0, 0, 0},
			b:        []float32{1, 0, 0},
			expected: 2.0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := CosineDistance(tt.a, tt.b)
			if math.Abs(float64(result-tt.expected)) > 0.0001 {
				t.Errorf("CosineDistance(%v, %v) = %v, want %v", tt.a, tt.b, result, tt.expected)
			}
		})
	}
}

func student(name string, vectors ...[]float32) models.Student {
	st := models.Student{ID: uuid.New(), Name: name}
	for _, v := range vectors {
		st.Embeddings = append(st.Embeddings, models.ReferenceEmbedding{
			ID:        uuid.New(),
			StudentID: st.ID,
			Vector:    v,
		})
	}
	return st
}

func TestMatch_NearestUnderThreshold(t *testing.T) {
	alice := student("alice", []float32{1, 0, 0})
	bob := student("bob", []float32{0, 1, 0})

	m := New(0.65, 0.05)
	res := m.Match([]float32{0.95, 0.05, 0}, []models.Student{alice, bob})

	if res == nil {
		t.Fatal("expected a match, got nil")
	}
	if res.StudentID != alice.ID {
		t.Errorf("matched %v, want alice %v", res.StudentID, alice.ID)
	}
	if res.Distance > 0.65 {
		t.Errorf("distance %v exceeds threshold", res.Distance)
	}
}

func TestMatch_NoCandidateUnderThreshold(t *testing.T) {
	alice := student("alice", []float32{1, 0, 0})

	m := New(0.65, 0.05)
	res := m.Match([]float32{0, 0, 1}, []models.Student{alice})

	if res != nil {
		t.Errorf("expected nil for distant probe, got %+v", res)
	}
}

func TestMatch_MinOverReferenceEmbeddings(t *testing.T) {
	// Second reference is a near-exact hit even though the first is far.
	alice := student("alice", []float32{0, 1, 0}, []float32{1, 0, 0})

	m := New(0.65, 0.05)
	res := m.Match([]float32{1, 0, 0}, []models.Student{alice})

	if res == nil {
		t.Fatal("expected a match via second reference embedding")
	}
	if res.Distance > 0.0001 {
		t.Errorf("expected near-zero distance, got %v", res.Distance)
	}
}

func TestMatch_AmbiguousTieResolvesToNil(t *testing.T) {
	// Two distinct students nearly equidistant from the probe.
	a := student("a", []float32{1, 0.1, 0})
	b := student("b", []float32{1, -0.1, 0})

	m := New(0.65, 0.05)
	res := m.Match([]float32{1, 0, 0}, []models.Student{a, b})

	if res != nil {
		t.Errorf("expected nil for ambiguous probe, got %+v", res)
	}
}

func TestMatch_SingleCandidateNeedsNoMargin(t *testing.T) {
	alice := student("alice", []float32{1, 0, 0})

	m := New(0.65, 0.05)
	res := m.Match([]float32{1, 0, 0}, []models.Student{alice})

	if res == nil {
		t.Fatal("single close candidate must match")
	}
}

func TestMatch_SkipsUnenrolledStudents(t *testing.T) {
	ghost := models.Student{ID: uuid.New(), Name: "ghost"} // no embeddings
	alice := student("alice", []float32{1, 0, 0})

	m := New(0.65, 0.05)
	res := m.Match([]float32{1, 0, 0}, []models.Student{ghost, alice})

	if res == nil {
		t.Fatal("expected a match")
	}
	if res.StudentID != alice.ID {
		t.Errorf("matched %v, want alice %v", res.StudentID, alice.ID)
	}
}

func TestMatch_EmptyInputs(t *testing.T) {
	m := New(0.65, 0.05)

	if res := m.Match(nil, []models.Student{student("a", []float32{1, 0})}); res != nil {
		t.Errorf("nil probe should not match, got %+v", res)
	}
	if res := m.Match([]float32{1, 0}, nil); res != nil {
		t.Errorf("empty roster should not match, got %+v", res)
	}
}

func TestMatch_DimensionMismatchIgnored(t *testing.T) {
	short := student("short", []float32{1, 0})
	full := student("full", []float32{1, 0, 0})

	m := New(0.65, 0.05)
	res := m.Match([]float32{1, 0, 0}, []models.Student{short, full})

	if res == nil {
		t.Fatal("expected a match against the compatible candidate")
	}
	if res.StudentID != full.ID {
		t.Errorf("matched %v, want %v", res.StudentID, full.ID)
	}
}
