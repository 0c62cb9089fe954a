package registryhttp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	ocispec "github.com/opencontainers/image-spec/specs-go/v1"

	"github.com/bnema/courseimages/internal/domain"
)

// GetConfig fetches the config blob described by desc and decodes the
// fields the classifier needs.
func (c *Client) GetConfig(ctx context.Context, name string, desc domain.Descriptor) (*domain.ImageConfig, error) {
	if desc.Digest == "" {
		return nil, &domain.MalformedResponseError{What: "manifest", Err: errors.New("missing config digest")}
	}
	if err := validateDigest(name, desc.Digest); err != nil {
		return nil, err
	}

	resp, err := c.do(ctx, request{
		op:     "get config",
		method: http.MethodGet,
		url:    c.endpoint(name+"/blobs/"+desc.Digest, nil),
	}, maxConfigSize, http.StatusOK)
	if err != nil {
		return nil, err
	}

	if c.cfg.VerifyDigests {
		if err := verifyContent(desc.Digest, resp.body); err != nil {
			return nil, fmt.Errorf("config %s@%s: %w", name, desc.Digest, err)
		}
	}

	var wire ocispec.Image
	if err := json.Unmarshal(resp.body, &wire); err != nil {
		return nil, &domain.MalformedResponseError{What: "image config", Err: err}
	}

	return &domain.ImageConfig{
		Digest:     desc.Digest,
		Labels:     wire.Config.Labels,
		Entrypoint: wire.Config.Entrypoint,
		Cmd:        wire.Config.Cmd,
	}, nil
}

// DeleteBlob deletes a blob by digest. A missing blob is reported as a
// TransportError matching domain.ErrNotFound.
func (c *Client) DeleteBlob(ctx context.Context, name, dgst string) error {
	if err := validateDigest(name, dgst); err != nil {
		return err
	}

	_, err := c.do(ctx, request{
		op:     "delete blob",
		method: http.MethodDelete,
		url:    c.endpoint(name+"/blobs/"+dgst, nil),
	}, maxErrorBody, http.StatusAccepted, http.StatusOK, http.StatusNoContent)
	if err != nil {
		return err
	}

	c.metrics.RecordBlobDelete(ctx, name)
	return nil
}

// MountBlob asks the registry to link blob dgst from repository from into
// name. Only 201 Created means the blob was mounted; a 202 Accepted means the
// registry opened a regular upload instead, which is cancelled and reported
// as domain.ErrMountUnsupported.
func (c *Client) MountBlob(ctx context.Context, name, dgst, from string) (domain.MountResult, error) {
	if err := validateDigest(name, dgst); err != nil {
		return domain.MountResult{}, err
	}
	if err := validateName(from); err != nil {
		return domain.MountResult{}, err
	}

	target := c.endpoint(name+"/blobs/uploads/", url.Values{"mount": {dgst}, "from": {from}})
	resp, err := c.do(ctx, request{
		op:     "mount blob",
		method: http.MethodPost,
		url:    target,
	}, maxErrorBody, http.StatusCreated, http.StatusAccepted)
	if err != nil {
		return domain.MountResult{}, err
	}

	location := resp.header.Get("Location")
	if resp.status == http.StatusAccepted {
		c.cancelUpload(ctx, location)
		return domain.MountResult{}, &domain.TransportError{
			Op:         "mount blob",
			Method:     http.MethodPost,
			URL:        target.String(),
			StatusCode: resp.status,
			Err:        fmt.Errorf("%w %s from %s into %s", domain.ErrMountUnsupported, dgst, from, name),
		}
	}

	mounted := strings.TrimSpace(resp.header.Get(domain.HeaderContentDigest))
	if mounted == "" {
		mounted = dgst
	}
	c.metrics.RecordMount(ctx, name)

	return domain.MountResult{
		Digest:     mounted,
		Location:   location,
		UploadUUID: resp.header.Get(domain.HeaderUploadUUID),
	}, nil
}

// cancelUpload deletes an upload session. Failures are only logged.
func (c *Client) cancelUpload(ctx context.Context, location string) {
	if location == "" {
		return
	}
	u, err := c.resolve(location)
	if err != nil {
		c.log.Warn().Err(err).Str("location", location).Msg("cannot cancel upload session")
		return
	}
	if _, err := c.do(ctx, request{
		op:     "cancel upload",
		method: http.MethodDelete,
		url:    u,
	}, maxErrorBody, http.StatusNoContent, http.StatusOK, http.StatusAccepted); err != nil {
		c.log.Warn().Err(err).Str("location", location).Msg("failed to cancel upload session")
	}
}
