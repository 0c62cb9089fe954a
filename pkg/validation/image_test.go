package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseImageReference(t *testing.T) {
	tests := []struct {
		name     string
		imageRef string
		wantName string
		wantRef  string
	}{
		{
			name:     "simple image with latest tag",
			imageRef: "myapp:latest",
			wantName: "myapp",
			wantRef:  "latest",
		},
		{
			name:     "nested image with custom tag",
			imageRef: "course/demo:v1",
			wantName: "course/demo",
			wantRef:  "v1",
		},
		{
			name:     "image with digest",
			imageRef: "course/demo@sha256:abc123def456",
			wantName: "course/demo",
			wantRef:  "sha256:abc123def456",
		},
		{
			name:     "image without tag defaults to latest",
			imageRef: "coursewarehub/default-course-image",
			wantName: "coursewarehub/default-course-image",
			wantRef:  "latest",
		},
		{
			name:     "trailing colon defaults to latest",
			imageRef: "course/demo:",
			wantName: "course/demo",
			wantRef:  "latest",
		},
		{
			name:     "registry with port and tag",
			imageRef: "localhost:5000/course/demo:v2",
			wantName: "localhost:5000/course/demo",
			wantRef:  "v2",
		},
		{
			name:     "registry with port without tag",
			imageRef: "localhost:5000/course/demo",
			wantName: "localhost:5000/course/demo",
			wantRef:  "latest",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotName, gotRef := ParseImageReference(tt.imageRef)
			assert.Equal(t, tt.wantName, gotName, "name mismatch")
			assert.Equal(t, tt.wantRef, gotRef, "reference mismatch")
		})
	}
}
