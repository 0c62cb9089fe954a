// Package testutils holds helpers shared by tests across packages.
package testutils

import (
	"context"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
)

// TestContext creates a test context with timeout
func TestContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// CreateTempConfig creates an in-memory filesystem holding path with content
func CreateTempConfig(t *testing.T, path, content string) afero.Fs {
	fs := afero.NewMemMapFs()
	err := afero.WriteFile(fs, path, []byte(content), 0644)
	require.NoError(t, err)
	return fs
}

// LoadFixtureConfig returns a configuration fixture by name
func LoadFixtureConfig(t *testing.T, filename string) string {
	t.Helper()

	content := `[registry]
host = "registry.example.com:5000"
username = "hub"
password = "secret"
insecure = true
timeout = "10s"
max_retries = 3
verify_digests = true

[images]
default_course_image = "coursewarehub/default-course-image:latest"
initial_course_image = "coursewarehub/initial-course-image:latest"
max_concurrency = 4

[logging]
level = "debug"
format = "json"`

	switch filename {
	case "minimal.toml":
		return `[registry]
host = "registry.example.com"`
	case "invalid.toml":
		return `[registry
host = "registry.example.com"`
	default:
		return content
	}
}
