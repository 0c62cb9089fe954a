package domain

// Media types exchanged with the registry.
const (
	MediaTypeManifestV2   = "application/vnd.docker.distribution.manifest.v2+json"
	MediaTypeImageConfig  = "application/vnd.docker.container.image.v1+json"
	MediaTypeLayerGzip    = "application/vnd.docker.image.rootfs.diff.tar.gzip"
	MediaTypeJSON         = "application/json"
	RegistryAPIVersion    = "registry/2.0"
	HeaderContentDigest   = "Docker-Content-Digest"
	HeaderUploadUUID      = "Docker-Upload-UUID"
	HeaderAPIVersion      = "Docker-Distribution-API-Version"
	DefaultTag            = "latest"
	PlaceholderRepository = "-"
)

// Descriptor references a content-addressed blob.
type Descriptor struct {
	MediaType string
	Digest    string
	Size      int64
}

// Manifest is a schema-v2 image manifest as stored in the registry.
// Raw keeps the exact bytes so the manifest can be re-tagged without
// changing its digest.
type Manifest struct {
	Name      string
	Reference string
	Digest    string
	MediaType string
	Config    Descriptor
	Layers    []Descriptor
	Raw       []byte
}

// BlobDigests returns the config digest followed by every layer digest,
// without duplicates.
func (m *Manifest) BlobDigests() []string {
	seen := make(map[string]struct{}, len(m.Layers)+1)
	digests := make([]string, 0, len(m.Layers)+1)
	add := func(d string) {
		if d == "" {
			return
		}
		if _, ok := seen[d]; ok {
			return
		}
		seen[d] = struct{}{}
		digests = append(digests, d)
	}

	add(m.Config.Digest)
	for _, layer := range m.Layers {
		add(layer.Digest)
	}
	return digests
}

// ImageConfig is the subset of an image config blob the classifier needs.
type ImageConfig struct {
	Digest     string
	Labels     map[string]string
	Entrypoint []string
	Cmd        []string
}

// Command returns the entrypoint followed by the default arguments.
func (c *ImageConfig) Command() []string {
	if len(c.Entrypoint) == 0 && len(c.Cmd) == 0 {
		return nil
	}
	cmd := make([]string, 0, len(c.Entrypoint)+len(c.Cmd))
	cmd = append(cmd, c.Entrypoint...)
	return append(cmd, c.Cmd...)
}

// RepositoryTag is one (repository, tag) pair of the registry catalog.
type RepositoryTag struct {
	Name string
	Tag  string
}

// String returns name:tag.
func (rt RepositoryTag) String() string {
	return rt.Name + ":" + rt.Tag
}

// ResolvedImage pairs a manifest with its decoded config.
type ResolvedImage struct {
	Manifest *Manifest
	Config   *ImageConfig
}

// MountResult is the registry's answer to a cross-repository mount.
type MountResult struct {
	Digest     string
	Location   string
	UploadUUID string
}

// DeleteReport summarizes a garbage-safe image deletion.
type DeleteReport struct {
	ManifestDigest string
	BlobsDeleted   []string
	BlobsKept      []string
}
