package storage

import (
	"strings"
	"testing"

	"github.com/google/uuid"
)

func TestEnrollmentKey(t *testing.T) {
	key := EnrollmentKey("alice", "image/png")
	if !strings.HasPrefix(key, PrefixEnrollments) {
		t.Errorf("key %q missing enrollment prefix", key)
	}
	if !strings.HasSuffix(key, ".png") {
		t.Errorf("key %q should carry the png extension", key)
	}

	if k2 := EnrollmentKey("alice", "image/png"); k2 == key {
		t.Error("keys for repeated enrollments must be unique")
	}
}

func TestClassPhotoKey(t *testing.T) {
	key := ClassPhotoKey("7B", "image/jpeg")
	if !strings.HasPrefix(key, PrefixClassPhotos+"7B/") {
		t.Errorf("key %q not namespaced under the class", key)
	}
	if !strings.HasSuffix(key, ".jpg") {
		t.Errorf("key %q should carry the jpg extension", key)
	}
}

func TestResultKey(t *testing.T) {
	id := uuid.New()

	tests := []struct {
		contentType string
		wantExt     string
	}{
		{contentType: "image/png", wantExt: ".png"},
		{contentType: "image/jpeg", wantExt: ".jpg"},
	}

	for _, tt := range tests {
		key := ResultKey(id, tt.contentType)
		if key != PrefixResults+id.String()+tt.wantExt {
			t.Errorf("ResultKey(%q) = %q, want extension %s", tt.contentType, key, tt.wantExt)
		}
	}
}
