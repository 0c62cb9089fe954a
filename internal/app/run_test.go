package app

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bnema/courseimages/internal/domain"
	"github.com/bnema/courseimages/internal/testutils"
	"github.com/bnema/courseimages/internal/testutils/registrytest"
)

func TestNewFromConfig_WiresImagesService(t *testing.T) {
	reg := registrytest.New(t)
	reg.Push("course/demo", "v1",
		registrytest.CourseImage("course/demo:v1", "Demo", "https://git/x", "v1", []byte("layer")))

	cfg := validConfig()
	cfg.Registry.Host = reg.Host()
	cfg.Registry.Insecure = true
	cfg.Registry.VerifyDigests = true
	cfg.Logging.Level = "error"

	a, err := NewFromConfig(testutils.TestContext(t), cfg, "test")
	require.NoError(t, err)
	t.Cleanup(a.Close)

	ctx := a.Context(testutils.TestContext(t))
	require.NoError(t, a.Ping(ctx))

	records, err := a.Images.ListImages(ctx)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "course/demo:v1", records[0].ImageName)
}

func TestNewFromConfig_InvalidConfig(t *testing.T) {
	cfg := validConfig()
	cfg.Registry.Host = ""

	_, err := NewFromConfig(testutils.TestContext(t), cfg, "test")
	assert.ErrorIs(t, err, domain.ErrInvalidConfig)
}

func TestNewFromConfig_LogFile(t *testing.T) {
	cfg := validConfig()
	cfg.Logging.Level = "info"
	cfg.Logging.File.Enabled = true
	cfg.Logging.File.Path = filepath.Join(t.TempDir(), "courseimages.log")
	cfg.Logging.File.MaxSize = 1

	a, err := NewFromConfig(testutils.TestContext(t), cfg, "test")
	require.NoError(t, err)
	a.Log.Info().Msg("log file check")
	a.Close()
	assert.FileExists(t, cfg.Logging.File.Path)
}

func TestResolveLogFilePath(t *testing.T) {
	var cfg Config
	assert.Equal(t, filepath.Join(DefaultDataDir(), "logs", "courseimages.log"), resolveLogFilePath(cfg))

	cfg.Logging.File.Path = "/var/log/courseimages.log"
	assert.Equal(t, "/var/log/courseimages.log", resolveLogFilePath(cfg))
}
