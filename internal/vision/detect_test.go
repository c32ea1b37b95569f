package vision

import (
	"image"
	"math"
	"testing"
)

func TestIoU(t *testing.T) {
	tests := []struct {
		name     string
		a        [4]float32
		b        [4]float32
		expected float32
	}{
		{
			name:     "identical boxes",
			a:        [4]float32{0, 0, 10, 10},
			b:        [4]float32{0, 0, 10, 10},
			expected: 1.0,
		},
		{
			name:     "no overlap",
			a:        [4]float32{0, 0, 10, 10},
			b:        [4]float32{20, 20, 30, 30},
			expected: 0.0,
		},
		{
			name:     "partial overlap",
			a:        [4]float32{0, 0, 10, 10},
			b:        [4]float32{5, 5, 15, 15},
			expected: 25.0 / 175.0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := iou(tt.a, tt.b)
			if math.Abs(float64(got-tt.expected)) > 0.0001 {
				t.Errorf("iou(%v, %v) = %v, want %v", tt.a, tt.b, got, tt.expected)
			}
		})
	}
}

func TestNMS_SuppressesOverlaps(t *testing.T) {
	dets := []Detection{
		{BBox: [4]float32{0, 0, 10, 10}, Confidence: 0.9},
		{BBox: [4]float32{1, 1, 11, 11}, Confidence: 0.8}, // heavy overlap with first
		{BBox: [4]float32{50, 50, 60, 60}, Confidence: 0.7},
	}

	kept := nms(dets, 0.4)

	if len(kept) != 2 {
		t.Fatalf("expected 2 detections after suppression, got %d", len(kept))
	}
	if kept[0].Confidence != 0.9 {
		t.Errorf("highest-confidence detection must be kept first, got %v", kept[0].Confidence)
	}
	if kept[1].BBox[0] != 50 {
		t.Errorf("disjoint detection was suppressed: %+v", kept[1])
	}
}

func TestNMS_KeepsDisjointBoxes(t *testing.T) {
	dets := []Detection{
		{BBox: [4]float32{0, 0, 10, 10}, Confidence: 0.9},
		{BBox: [4]float32{20, 0, 30, 10}, Confidence: 0.9},
		{BBox: [4]float32{40, 0, 50, 10}, Confidence: 0.9},
	}

	kept := nms(dets, 0.4)
	if len(kept) != 3 {
		t.Errorf("disjoint boxes must all survive, got %d", len(kept))
	}
}

func TestNormalize(t *testing.T) {
	v := []float32{3, 4}
	normalize(v)

	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if math.Abs(sum-1.0) > 0.0001 {
		t.Errorf("norm^2 = %v, want 1.0", sum)
	}
}

func TestCropFace(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 200, 200))

	tests := []struct {
		name    string
		det     Detection
		wantNil bool
	}{
		{
			name:    "interior box crops",
			det:     Detection{BBox: [4]float32{50, 50, 150, 150}},
			wantNil: false,
		},
		{
			name:    "box at edge clamps",
			det:     Detection{BBox: [4]float32{-20, -20, 30, 30}},
			wantNil: false,
		},
		{
			name:    "degenerate box yields nil",
			det:     Detection{BBox: [4]float32{100, 100, 100, 100}},
			wantNil: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := cropFace(img, tt.det)
			if tt.wantNil && got != nil {
				t.Errorf("expected nil crop, got bounds %v", got.Bounds())
			}
			if !tt.wantNil && got == nil {
				t.Error("expected a crop, got nil")
			}
		})
	}
}
