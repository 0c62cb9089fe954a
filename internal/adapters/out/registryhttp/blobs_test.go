package registryhttp

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bnema/courseimages/internal/domain"
	"github.com/bnema/courseimages/internal/testutils/registrytest"
)

func TestClient_GetConfig(t *testing.T) {
	reg := registrytest.New(t)
	img := registrytest.CourseImage("course/demo:v1", "Demo", "https://git/x", "v1", []byte("layer"))
	img.Entrypoint = []string{"/usr/local/bin/repo2docker-entrypoint"}
	pushed := reg.Push("course/demo", "v1", img)
	c := newTestClient(t, reg.Host())
	ctx := context.Background()

	m, err := c.GetManifest(ctx, "course/demo", "v1")
	require.NoError(t, err)

	cfg, err := c.GetConfig(ctx, "course/demo", m.Config)
	require.NoError(t, err)
	assert.Equal(t, pushed.ConfigDigest, cfg.Digest)
	assert.Equal(t, "course/demo:v1", cfg.Labels[domain.LabelImageName])
	assert.Equal(t, "Demo", cfg.Labels[domain.LabelDisplayName])
	assert.Equal(t, "https://git/x", cfg.Labels[domain.LabelRepo2DockerRepo])
	assert.Equal(t, []string{"/usr/local/bin/repo2docker-entrypoint", "jupyterhub-singleuser"}, cfg.Command())
}

func TestClient_GetConfig_NoLabels(t *testing.T) {
	reg := registrytest.New(t)
	pushed := reg.Push("library/python", "3.12", registrytest.Image{})
	c := newTestClient(t, reg.Host())

	cfg, err := c.GetConfig(context.Background(), "library/python", domain.Descriptor{Digest: pushed.ConfigDigest})
	require.NoError(t, err)
	assert.Empty(t, cfg.Labels)
}

func TestClient_GetConfig_Errors(t *testing.T) {
	reg := registrytest.New(t)
	fake := "sha256:" + strings.Repeat("c", 64)
	reg.PutRawBlob("course/demo", fake, []byte(`{"config":{"Labels":{"a":"b"}}}`))
	notJSON := "sha256:" + strings.Repeat("d", 64)
	reg.PutRawBlob("course/demo", notJSON, []byte(`<html>`))
	ctx := context.Background()

	t.Run("empty descriptor", func(t *testing.T) {
		c := newTestClient(t, reg.Host())
		_, err := c.GetConfig(ctx, "course/demo", domain.Descriptor{})
		var malformed *domain.MalformedResponseError
		require.True(t, errors.As(err, &malformed))
	})

	t.Run("content does not match digest", func(t *testing.T) {
		c := newTestClient(t, reg.Host())
		_, err := c.GetConfig(ctx, "course/demo", domain.Descriptor{Digest: fake})
		assert.ErrorIs(t, err, domain.ErrDigestMismatch)
	})

	t.Run("verification disabled", func(t *testing.T) {
		c := newTestClient(t, reg.Host(), func(c *Config) { c.VerifyDigests = false })
		cfg, err := c.GetConfig(ctx, "course/demo", domain.Descriptor{Digest: fake})
		require.NoError(t, err)
		assert.Equal(t, "b", cfg.Labels["a"])
	})

	t.Run("undecodable config", func(t *testing.T) {
		c := newTestClient(t, reg.Host(), func(c *Config) { c.VerifyDigests = false })
		_, err := c.GetConfig(ctx, "course/demo", domain.Descriptor{Digest: notJSON})
		var malformed *domain.MalformedResponseError
		require.True(t, errors.As(err, &malformed))
		assert.Equal(t, "image config", malformed.What)
	})

	t.Run("unknown blob", func(t *testing.T) {
		c := newTestClient(t, reg.Host())
		_, err := c.GetConfig(ctx, "course/demo", domain.Descriptor{Digest: "sha256:" + strings.Repeat("e", 64)})
		assert.True(t, domain.IsNotFound(err))
	})
}

func TestClient_MountBlob(t *testing.T) {
	reg := registrytest.New(t)
	pushed := reg.Push("course/demo", "v1", registrytest.Image{Layers: [][]byte{[]byte("layer")}})
	c := newTestClient(t, reg.Host())
	ctx := context.Background()

	res, err := c.MountBlob(ctx, "course/new", pushed.LayerDigests[0], "course/demo")
	require.NoError(t, err)
	assert.Equal(t, pushed.LayerDigests[0], res.Digest)
	assert.Equal(t, "/v2/course/new/blobs/"+pushed.LayerDigests[0], res.Location)

	// Mounting twice is harmless.
	_, err = c.MountBlob(ctx, "course/new", pushed.LayerDigests[0], "course/demo")
	require.NoError(t, err)
	assert.Equal(t, 0, reg.OpenUploads())
}

func TestClient_MountBlob_NotMounted(t *testing.T) {
	reg := registrytest.New(t, registrytest.WithMountDisabled())
	pushed := reg.Push("course/demo", "v1", registrytest.Image{Layers: [][]byte{[]byte("layer")}})
	c := newTestClient(t, reg.Host())

	_, err := c.MountBlob(context.Background(), "course/new", pushed.LayerDigests[0], "course/demo")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrMountUnsupported)

	var te *domain.TransportError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, http.StatusAccepted, te.StatusCode)

	// The upload session opened by the registry is cancelled.
	assert.Equal(t, 0, reg.OpenUploads())
	assert.Equal(t, 1, reg.CountRequests(http.MethodDelete, "/blobs/uploads/"))
}

func TestClient_MountBlob_UnknownSourceBlob(t *testing.T) {
	reg := registrytest.New(t)
	reg.CreateRepository("course/demo")
	c := newTestClient(t, reg.Host())

	_, err := c.MountBlob(context.Background(), "course/new", "sha256:"+strings.Repeat("f", 64), "course/demo")
	assert.ErrorIs(t, err, domain.ErrMountUnsupported)
	assert.Equal(t, 0, reg.OpenUploads())
}

func TestClient_MountBlob_NotRetried(t *testing.T) {
	reg := registrytest.New(t)
	pushed := reg.Push("course/demo", "v1", registrytest.Image{})
	reg.InjectFault(registrytest.Fault{Method: http.MethodPost, PathContains: "/blobs/uploads/", Status: http.StatusInternalServerError, Times: 1})
	c := newTestClient(t, reg.Host())

	_, err := c.MountBlob(context.Background(), "course/new", pushed.ConfigDigest, "course/demo")
	require.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrMountUnsupported)
	assert.Equal(t, 1, reg.CountRequests(http.MethodPost, "/blobs/uploads/"))
}

func TestClient_DeleteBlob(t *testing.T) {
	reg := registrytest.New(t)
	pushed := reg.Push("course/demo", "v1", registrytest.Image{Layers: [][]byte{[]byte("layer")}})
	c := newTestClient(t, reg.Host())
	ctx := context.Background()

	require.NoError(t, c.DeleteBlob(ctx, "course/demo", pushed.LayerDigests[0]))
	assert.False(t, reg.HasBlob(pushed.LayerDigests[0]))

	err := c.DeleteBlob(ctx, "course/demo", pushed.LayerDigests[0])
	require.Error(t, err)
	assert.True(t, domain.IsNotFound(err))

	err = c.DeleteBlob(ctx, "course/demo", "not-a-digest")
	assert.ErrorIs(t, err, domain.ErrInvalidDigest)
}

func TestVerifyContent(t *testing.T) {
	content := []byte("hello")
	good := contentDigest(content)

	require.NoError(t, verifyContent(good, content))
	assert.ErrorIs(t, verifyContent(good, []byte("tampered")), domain.ErrDigestMismatch)
	assert.ErrorIs(t, verifyContent("md5:abc", content), domain.ErrInvalidDigest)
	assert.ErrorIs(t, verifyContent("", content), domain.ErrInvalidDigest)
}
