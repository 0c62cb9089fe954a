package images

import (
	"net/http"
	"testing"
	"time"

	"github.com/bnema/zerowrap"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bnema/courseimages/internal/adapters/out/registryhttp"
	"github.com/bnema/courseimages/internal/domain"
	"github.com/bnema/courseimages/internal/testutils/registrytest"
)

// newRegistryService wires the service to an in-memory registry through the
// real HTTP client.
func newRegistryService(t *testing.T, opts ...registrytest.Option) (*Service, *registrytest.Registry) {
	t.Helper()
	reg := registrytest.New(t, opts...)

	client, err := registryhttp.NewClient(registryhttp.Config{
		Host:          reg.Host(),
		Insecure:      true,
		Timeout:       5 * time.Second,
		VerifyDigests: true,
	}, zerowrap.Default(), registryhttp.WithRetryInterval(time.Millisecond))
	require.NoError(t, err)
	t.Cleanup(client.Close)

	svc := NewService(client, Config{
		CourseImages: domain.CourseImages{
			Default: domain.MustParseCoordinate("hub/default:latest"),
			Initial: domain.MustParseCoordinate("hub/initial:latest"),
		},
		MaxConcurrency: 4,
	})
	return svc, reg
}

func TestListImages_SingleBuiltImage(t *testing.T) {
	svc, reg := newRegistryService(t)
	pushed := reg.Push("course/demo", "v1",
		registrytest.CourseImage("course/demo:v1", "Demo", "https://git/x", "v1", []byte("layer")))

	records, err := svc.ListImages(testCtx())
	require.NoError(t, err)
	require.Len(t, records, 1)

	rec := records[0]
	assert.Equal(t, "https://git/x", rec.Repo)
	assert.Equal(t, "v1", rec.Ref)
	assert.Equal(t, "course/demo:v1", rec.ImageName)
	assert.Equal(t, "Demo", rec.DisplayName)
	assert.False(t, rec.IsDefault)
	assert.False(t, rec.IsInitial)
	assert.Equal(t, pushed.ConfigDigest, rec.ImageID)
	assert.Equal(t, domain.ShortImageID(pushed.ConfigDigest), rec.ShortImageID)
	assert.Len(t, rec.ShortImageID, 12)
	assert.Equal(t, pushed.ManifestDigest, rec.ManifestDigest)
	assert.Equal(t, []string{"jupyterhub-singleuser"}, rec.Cmd)
}

func TestListImages_DefaultFlaggedOnPromotedImage(t *testing.T) {
	svc, reg := newRegistryService(t)
	ctx := testCtx()
	pushed := reg.Push("course/demo", "v1",
		registrytest.CourseImage("course/demo:v1", "Demo", "https://git/x", "v1", []byte("layer")))
	reg.Push("course/other", "v1",
		registrytest.CourseImage("course/other:v1", "Other", "https://git/y", "main", []byte("other-layer")))

	_, err := svc.SetDefaultCourseImage(ctx, "course/demo", "v1")
	require.NoError(t, err)

	records, err := svc.ListImages(ctx)
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, "course/demo:v1", records[0].ImageName)
	assert.True(t, records[0].IsDefault)
	assert.Equal(t, pushed.ConfigDigest, records[0].ImageID)
	assert.Equal(t, "course/other:v1", records[1].ImageName)
	assert.False(t, records[1].IsDefault)
}

func TestListImages_RecordIffLabelledOrConfigured(t *testing.T) {
	svc, reg := newRegistryService(t)

	// Labelled for its own coordinate.
	reg.Push("course/a", "v1", registrytest.CourseImage("course/a:v1", "A", "https://git/a", "main", []byte("a")))
	// Same labels re-tagged under another tag: image_name no longer matches.
	reg.Push("course/a", "v2", registrytest.CourseImage("course/a:v1", "A", "https://git/a", "main", []byte("a")))
	// Missing repo2docker.ref.
	broken := registrytest.CourseImage("course/b:v1", "B", "https://git/b", "main")
	delete(broken.Labels, domain.LabelRepo2DockerRef)
	reg.Push("course/b", "v1", broken)
	// Unlabelled third-party image.
	reg.Push("library/python", "3.12", registrytest.Image{Layers: [][]byte{[]byte("py")}})
	// Configured initial image, no labels needed.
	reg.Push("hub/initial", "latest", registrytest.Image{Layers: [][]byte{[]byte("init")}})
	// An empty repository contributes nothing.
	reg.CreateRepository("course/empty")

	records, err := svc.ListImages(testCtx())
	require.NoError(t, err)

	names := make([]string, 0, len(records))
	for _, r := range records {
		names = append(names, r.ImageName)
	}
	assert.Equal(t, []string{"course/a:v1", "hub/initial:latest"}, names)
	assert.True(t, records[1].IsInitial)
	assert.Equal(t, "initial", records[1].DisplayName)
	assert.Equal(t, "-", records[1].Repo)
	assert.Equal(t, "-", records[1].Ref)
}

func TestListImages_DefaultWithoutBuiltRecord(t *testing.T) {
	svc, reg := newRegistryService(t)
	reg.Push("hub/default", "latest", registrytest.Image{Layers: [][]byte{[]byte("d")}})

	records, err := svc.ListImages(testCtx())
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestListImages_FailFastOnTagListFailure(t *testing.T) {
	svc, reg := newRegistryService(t)
	reg.Push("course/a", "v1", registrytest.CourseImage("course/a:v1", "A", "https://git/a", "main"))
	reg.Push("course/b", "v1", registrytest.CourseImage("course/b:v1", "B", "https://git/b", "main"))
	reg.InjectFault(registrytest.Fault{Method: http.MethodGet, PathContains: "course/b/tags/list", Status: http.StatusForbidden})

	records, err := svc.ListImages(testCtx())
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
	assert.Nil(t, records)
}

func TestListImages_SeparatorRunsInRepositoryNames(t *testing.T) {
	svc, reg := newRegistryService(t)
	reg.Push("course/demo", "v1", registrytest.CourseImage("course/demo:v1", "Demo", "https://git/x", "v1", []byte("demo")))
	reg.Push("course/data--science", "v1",
		registrytest.CourseImage("course/data--science:v1", "Data Science", "https://git/ds", "main", []byte("ds")))
	reg.Push("course/intro__py", "v1",
		registrytest.CourseImage("course/intro__py:v1", "Intro Python", "https://git/py", "main", []byte("py")))

	records, err := svc.ListImages(testCtx())
	require.NoError(t, err)

	names := make([]string, 0, len(records))
	for _, r := range records {
		names = append(names, r.ImageName)
	}
	assert.ElementsMatch(t, []string{"course/demo:v1", "course/data--science:v1", "course/intro__py:v1"}, names)
}

func TestPromote_Idempotent(t *testing.T) {
	svc, reg := newRegistryService(t)
	ctx := testCtx()
	pushed := reg.Push("course/demo", "v1",
		registrytest.CourseImage("course/demo:v1", "Demo", "https://git/x", "v1", []byte("l1"), []byte("l2")))

	first, err := svc.Promote(ctx, "hub/default", "latest", "course/demo", "v1")
	require.NoError(t, err)
	second, err := svc.Promote(ctx, "hub/default", "latest", "course/demo", "v1")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, pushed.ManifestDigest, first)

	got, ok := reg.TagDigest("hub/default", "latest")
	require.True(t, ok)
	assert.Equal(t, pushed.ManifestDigest, got)
	assert.Equal(t, 0, reg.OpenUploads())
}

func TestPromote_MountUnsupportedNoManifest(t *testing.T) {
	svc, reg := newRegistryService(t, registrytest.WithMountDisabled())
	reg.Push("course/demo", "v1", registrytest.CourseImage("course/demo:v1", "Demo", "https://git/x", "v1", []byte("l1")))

	_, err := svc.Promote(testCtx(), "hub/default", "latest", "course/demo", "v1")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrMountUnsupported)

	_, ok := reg.TagDigest("hub/default", "latest")
	assert.False(t, ok)
	assert.Zero(t, reg.CountRequests(http.MethodPut, "/manifests/"))
	assert.Equal(t, 0, reg.OpenUploads())
}

func TestPromote_MountFailureNoManifest(t *testing.T) {
	svc, reg := newRegistryService(t)
	reg.Push("course/demo", "v1", registrytest.CourseImage("course/demo:v1", "Demo", "https://git/x", "v1", []byte("l1"), []byte("l2")))
	reg.InjectFault(registrytest.Fault{Method: http.MethodPost, PathContains: "hub/default/blobs/uploads/", Status: http.StatusInternalServerError, Times: 1})

	_, err := svc.Promote(testCtx(), "hub/default", "latest", "course/demo", "v1")
	require.Error(t, err)
	assert.Zero(t, reg.CountRequests(http.MethodPut, "/manifests/"))
}

func TestPromote_MissingSource(t *testing.T) {
	svc, reg := newRegistryService(t)
	reg.CreateRepository("course/demo")

	_, err := svc.Promote(testCtx(), "hub/default", "latest", "course/demo", "v9")
	require.Error(t, err)
	assert.True(t, domain.IsNotFound(err))
}

func TestPromoteThenDelete_KeepsSharedBlobs(t *testing.T) {
	svc, reg := newRegistryService(t)
	ctx := testCtx()
	pushed := reg.Push("course/demo", "v1",
		registrytest.CourseImage("course/demo:v1", "Demo", "https://git/x", "v1", []byte("l1"), []byte("l2")))

	_, err := svc.Promote(ctx, "hub/default", "latest", "course/demo", "v1")
	require.NoError(t, err)
	before, err := svc.Inspect(ctx, "hub/default", "latest")
	require.NoError(t, err)

	report, err := svc.DeleteImage(ctx, "course/demo", "v1")
	require.NoError(t, err)
	assert.Equal(t, pushed.ManifestDigest, report.ManifestDigest)
	assert.Empty(t, report.BlobsDeleted)
	assert.ElementsMatch(t, append([]string{pushed.ConfigDigest}, pushed.LayerDigests...), report.BlobsKept)

	after, err := svc.Inspect(ctx, "hub/default", "latest")
	require.NoError(t, err)
	assert.Equal(t, before.Config.Digest, after.Config.Digest)
	assert.Equal(t, pushed.ConfigDigest, after.Config.Digest)
	assert.Empty(t, reg.BrokenManifests())

	_, ok := reg.TagDigest("course/demo", "v1")
	assert.False(t, ok)
}

func TestDeleteImage_LastReferenceRemovesBlob(t *testing.T) {
	svc, reg := newRegistryService(t)
	ctx := testCtx()

	sharedLayer := []byte("shared-base-layer")
	m := reg.Push("course/m", "v1", registrytest.Image{ConfigExtra: "m", Layers: [][]byte{sharedLayer, []byte("only-m")}})
	m2 := reg.Push("course/m2", "v1", registrytest.Image{ConfigExtra: "m2", Layers: [][]byte{sharedLayer, []byte("only-m2")}})
	require.Equal(t, m.LayerDigests[0], m2.LayerDigests[0])

	report, err := svc.DeleteImage(ctx, "course/m", "v1")
	require.NoError(t, err)

	// X referenced only by M is gone; X referenced by M and M2 stays.
	assert.False(t, reg.HasBlob(m.ConfigDigest))
	assert.False(t, reg.HasBlob(m.LayerDigests[1]))
	assert.True(t, reg.HasBlob(m.LayerDigests[0]))
	assert.ElementsMatch(t, []string{m.ConfigDigest, m.LayerDigests[1]}, report.BlobsDeleted)
	assert.Equal(t, []string{m.LayerDigests[0]}, report.BlobsKept)
	assert.Empty(t, reg.BrokenManifests())

	// Deleting M2 then frees the shared blob.
	_, err = svc.DeleteImage(ctx, "course/m2", "v1")
	require.NoError(t, err)
	assert.False(t, reg.HasBlob(m2.LayerDigests[0]))
	assert.False(t, reg.HasBlob(m2.ConfigDigest))
}

func TestDeleteImage_SameRepositoryOtherTag(t *testing.T) {
	svc, reg := newRegistryService(t)
	ctx := testCtx()

	base := []byte("base")
	v1 := reg.Push("course/demo", "v1", registrytest.Image{ConfigExtra: "v1", Layers: [][]byte{base, []byte("v1")}})
	v2 := reg.Push("course/demo", "v2", registrytest.Image{ConfigExtra: "v2", Layers: [][]byte{base, []byte("v2")}})

	report, err := svc.DeleteImage(ctx, "course/demo", "v1")
	require.NoError(t, err)
	assert.Equal(t, []string{v1.LayerDigests[0]}, report.BlobsKept)

	img, err := svc.Inspect(ctx, "course/demo", "v2")
	require.NoError(t, err)
	assert.Equal(t, v2.ConfigDigest, img.Config.Digest)
	assert.Empty(t, reg.BrokenManifests())
}

func TestDeleteImage_SweepsWithSeparatorRunsElsewhere(t *testing.T) {
	svc, reg := newRegistryService(t)
	ctx := testCtx()

	demo := reg.Push("course/demo", "v1", registrytest.Image{ConfigExtra: "demo", Layers: [][]byte{[]byte("only-demo")}})
	ds := reg.Push("course/data--science", "v1", registrytest.Image{ConfigExtra: "ds", Layers: [][]byte{[]byte("only-ds")}})
	reg.Push("course/intro__py", "v1", registrytest.Image{ConfigExtra: "py", Layers: [][]byte{[]byte("only-py")}})

	report, err := svc.DeleteImage(ctx, "course/demo", "v1")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{demo.ConfigDigest, demo.LayerDigests[0]}, report.BlobsDeleted)
	assert.False(t, reg.HasBlob(demo.LayerDigests[0]))
	assert.True(t, reg.HasBlob(ds.LayerDigests[0]))

	_, ok := reg.TagDigest("course/demo", "v1")
	assert.False(t, ok)
	assert.Empty(t, reg.BrokenManifests())
}

func TestDeleteImage_MarkFailureDeletesNoBlob(t *testing.T) {
	svc, reg := newRegistryService(t)
	ctx := testCtx()
	m := reg.Push("course/m", "v1", registrytest.Image{ConfigExtra: "m", Layers: [][]byte{[]byte("m")}})
	reg.Push("course/other", "v1", registrytest.Image{ConfigExtra: "o", Layers: [][]byte{[]byte("o")}})
	reg.InjectFault(registrytest.Fault{Method: http.MethodGet, PathContains: "course/other/manifests/", Status: http.StatusInternalServerError})

	_, err := svc.DeleteImage(ctx, "course/m", "v1")
	require.Error(t, err)
	assert.Zero(t, reg.CountRequests(http.MethodDelete, "/blobs/"))
	assert.True(t, reg.HasBlob(m.ConfigDigest))
}

func TestDeleteImage_BlobAlreadyGone(t *testing.T) {
	svc, reg := newRegistryService(t)
	ctx := testCtx()
	m := reg.Push("course/m", "v1", registrytest.Image{ConfigExtra: "m", Layers: [][]byte{[]byte("m")}})
	reg.InjectFault(registrytest.Fault{Method: http.MethodDelete, PathContains: m.LayerDigests[0], Status: http.StatusNotFound, Times: 1})

	report, err := svc.DeleteImage(ctx, "course/m", "v1")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{m.ConfigDigest, m.LayerDigests[0]}, report.BlobsDeleted)
}

func TestListRepositoryTags_Registry(t *testing.T) {
	svc, reg := newRegistryService(t, registrytest.WithPageSize(1))
	reg.Push("b/repo", "v2", registrytest.Image{ConfigExtra: "1"})
	reg.Push("b/repo", "v1", registrytest.Image{ConfigExtra: "2"})
	reg.Push("a/repo", "latest", registrytest.Image{ConfigExtra: "3"})
	reg.CreateRepository("c/empty")

	pairs, err := svc.ListRepositoryTags(testCtx())
	require.NoError(t, err)
	assert.Equal(t, []domain.RepositoryTag{
		{Name: "a/repo", Tag: "latest"},
		{Name: "b/repo", Tag: "v1"},
		{Name: "b/repo", Tag: "v2"},
	}, pairs)
}
