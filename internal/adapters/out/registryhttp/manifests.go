package registryhttp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"strings"

	ocispec "github.com/opencontainers/image-spec/specs-go/v1"

	"github.com/bnema/courseimages/internal/domain"
	"github.com/bnema/courseimages/pkg/validation"
)

// Only schema-v2 manifests are requested; re-PUT during promotion keeps
// this media type.
const manifestAccept = domain.MediaTypeManifestV2

// GetManifest fetches a manifest by tag or digest. The registry's
// Docker-Content-Digest header becomes Manifest.Digest and the exact bytes
// are kept in Manifest.Raw.
func (c *Client) GetManifest(ctx context.Context, name, reference string) (*domain.Manifest, error) {
	if err := validateReference(name, reference); err != nil {
		return nil, err
	}

	resp, err := c.do(ctx, request{
		op:     "get manifest",
		method: http.MethodGet,
		url:    c.endpoint(name+"/manifests/"+reference, nil),
		accept: manifestAccept,
	}, maxManifestSize, http.StatusOK)
	if err != nil {
		return nil, err
	}

	dgst := strings.TrimSpace(resp.header.Get(domain.HeaderContentDigest))
	if dgst == "" {
		return nil, &domain.MalformedResponseError{
			What: "manifest",
			Err:  fmt.Errorf("%s:%s: missing %s header", name, reference, domain.HeaderContentDigest),
		}
	}
	if c.cfg.VerifyDigests {
		if err := verifyContent(dgst, resp.body); err != nil {
			return nil, fmt.Errorf("manifest %s:%s: %w", name, reference, err)
		}
		if validation.IsDigest(reference) && reference != dgst {
			return nil, fmt.Errorf("manifest %s@%s: %w: registry reported %s", name, reference, domain.ErrDigestMismatch, dgst)
		}
	}

	manifest, err := decodeManifest(resp.body)
	if err != nil {
		return nil, err
	}
	manifest.Name = name
	manifest.Reference = reference
	manifest.Digest = dgst
	if manifest.MediaType == "" {
		manifest.MediaType = contentType(resp.header)
	}
	return manifest, nil
}

// PutManifest uploads manifest.Raw unmodified under name:reference.
func (c *Client) PutManifest(ctx context.Context, name, reference string, manifest *domain.Manifest) (string, error) {
	if err := validateReference(name, reference); err != nil {
		return "", err
	}
	if manifest == nil || len(manifest.Raw) == 0 {
		return "", fmt.Errorf("put manifest %s:%s: empty manifest", name, reference)
	}

	mediaType := manifest.MediaType
	if mediaType == "" {
		mediaType = domain.MediaTypeManifestV2
	}

	resp, err := c.do(ctx, request{
		op:          "put manifest",
		method:      http.MethodPut,
		url:         c.endpoint(name+"/manifests/"+reference, nil),
		contentType: mediaType,
		body:        manifest.Raw,
	}, maxErrorBody, http.StatusCreated, http.StatusOK)
	if err != nil {
		return "", err
	}

	expected := contentDigest(manifest.Raw)
	dgst := strings.TrimSpace(resp.header.Get(domain.HeaderContentDigest))
	if dgst == "" {
		return expected, nil
	}
	if c.cfg.VerifyDigests && dgst != expected {
		return "", fmt.Errorf("put manifest %s:%s: %w: registry reported %s, expected %s",
			name, reference, domain.ErrDigestMismatch, dgst, expected)
	}
	return dgst, nil
}

// DeleteManifest deletes a manifest by digest. Every tag pointing at the
// digest in this repository goes with it.
func (c *Client) DeleteManifest(ctx context.Context, name, dgst string) error {
	if err := validateDigest(name, dgst); err != nil {
		return err
	}

	_, err := c.do(ctx, request{
		op:     "delete manifest",
		method: http.MethodDelete,
		url:    c.endpoint(name+"/manifests/"+dgst, nil),
	}, maxErrorBody, http.StatusAccepted, http.StatusOK, http.StatusNoContent)
	if err != nil {
		return err
	}

	c.metrics.RecordManifestDelete(ctx, name)
	return nil
}

func decodeManifest(raw []byte) (*domain.Manifest, error) {
	var wire ocispec.Manifest
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, &domain.MalformedResponseError{What: "manifest", Err: err}
	}
	if wire.SchemaVersion != 2 {
		return nil, &domain.MalformedResponseError{
			What: "manifest",
			Err:  fmt.Errorf("unsupported schema version %d", wire.SchemaVersion),
		}
	}
	if wire.Config.Digest == "" {
		return nil, &domain.MalformedResponseError{What: "manifest", Err: errors.New("missing config digest")}
	}

	manifest := &domain.Manifest{
		MediaType: wire.MediaType,
		Config:    toDescriptor(wire.Config),
		Layers:    make([]domain.Descriptor, 0, len(wire.Layers)),
		Raw:       raw,
	}
	for _, layer := range wire.Layers {
		manifest.Layers = append(manifest.Layers, toDescriptor(layer))
	}
	return manifest, nil
}

func toDescriptor(d ocispec.Descriptor) domain.Descriptor {
	return domain.Descriptor{
		MediaType: d.MediaType,
		Digest:    d.Digest.String(),
		Size:      d.Size,
	}
}

func contentType(header http.Header) string {
	mediaType, _, err := mime.ParseMediaType(header.Get("Content-Type"))
	if err != nil {
		return ""
	}
	return mediaType
}
