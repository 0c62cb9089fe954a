// Package out defines output ports (interfaces) the use cases depend on.
package out

import (
	"context"

	"github.com/bnema/courseimages/internal/domain"
)

// RegistryClient defines the Docker Registry HTTP API v2 operations the
// image use case needs. Implementations must be safe for concurrent use.
type RegistryClient interface {
	// ListRepositories returns every repository name in the catalog,
	// following pagination.
	ListRepositories(ctx context.Context) ([]string, error)

	// ListTags returns the tags of a repository. A repository without tags
	// yields an empty slice and no error.
	ListTags(ctx context.Context, name string) ([]string, error)

	// GetManifest fetches a schema-v2 manifest by tag or digest.
	GetManifest(ctx context.Context, name, reference string) (*domain.Manifest, error)

	// GetConfig fetches and decodes the image config blob described by desc.
	GetConfig(ctx context.Context, name string, desc domain.Descriptor) (*domain.ImageConfig, error)

	// PutManifest stores the manifest's raw bytes under name:reference and
	// returns the digest reported by the registry.
	PutManifest(ctx context.Context, name, reference string, manifest *domain.Manifest) (string, error)

	// DeleteManifest deletes a manifest by digest.
	DeleteManifest(ctx context.Context, name, digest string) error

	// DeleteBlob deletes a blob by digest.
	DeleteBlob(ctx context.Context, name, digest string) error

	// MountBlob mounts a blob from another repository without transferring it.
	MountBlob(ctx context.Context, name, digest, from string) (domain.MountResult, error)
}
