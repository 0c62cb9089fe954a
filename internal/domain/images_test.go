package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestShortImageID(t *testing.T) {
	tests := []struct {
		name     string
		digest   string
		expected string
	}{
		{
			name:     "sha256 digest",
			digest:   "sha256:abcdef0123456789abcdef0123456789abcdef0123456789abcdef0123456789",
			expected: "abcdef012345",
		},
		{
			name:     "short hash is returned whole",
			digest:   "sha256:abc",
			expected: "abc",
		},
		{
			name:     "no algorithm prefix",
			digest:   "abcdef0123456789",
			expected: "abcdef012345",
		},
		{
			name:     "empty",
			digest:   "",
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ShortImageID(tt.digest))
		})
	}
}

func TestFullImageName(t *testing.T) {
	assert.Equal(t, "registry.example.com:5000/course/demo:v1", FullImageName("registry.example.com:5000", "course/demo:v1"))
	assert.Equal(t, "registry.example.com/course/demo:v1", FullImageName("registry.example.com/", "course/demo:v1"))
	assert.Equal(t, "course/demo:v1", FullImageName("", "course/demo:v1"))
}

func TestManifest_BlobDigests(t *testing.T) {
	m := &Manifest{
		Config: Descriptor{Digest: "sha256:c"},
		Layers: []Descriptor{
			{Digest: "sha256:l1"},
			{Digest: "sha256:l2"},
			{Digest: "sha256:l1"},
			{Digest: ""},
		},
	}

	assert.Equal(t, []string{"sha256:c", "sha256:l1", "sha256:l2"}, m.BlobDigests())
}

func TestImageConfig_Command(t *testing.T) {
	cfg := &ImageConfig{
		Entrypoint: []string{"/usr/local/bin/repo2docker-entrypoint"},
		Cmd:        []string{"jupyter", "notebook"},
	}
	assert.Equal(t, []string{"/usr/local/bin/repo2docker-entrypoint", "jupyter", "notebook"}, cfg.Command())

	empty := &ImageConfig{}
	assert.Nil(t, empty.Command())
}
