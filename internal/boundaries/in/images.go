// Package in defines input ports (interfaces) for use cases.
package in

import (
	"context"

	"github.com/bnema/courseimages/internal/domain"
)

// ImageService defines course image operations against the registry.
type ImageService interface {
	// ListImages returns the course image records, sorted by image name.
	ListImages(ctx context.Context) ([]domain.ImageRecord, error)

	// ListRepositoryTags returns every (repository, tag) pair of the registry.
	ListRepositoryTags(ctx context.Context) ([]domain.RepositoryTag, error)

	// Inspect resolves the manifest and config of one image.
	Inspect(ctx context.Context, name, reference string) (domain.ResolvedImage, error)

	// Promote makes sourceName:sourceRef also available as newName:newTag and
	// returns the manifest digest.
	Promote(ctx context.Context, newName, newTag, sourceName, sourceRef string) (string, error)

	// SetDefaultCourseImage promotes name:reference to the configured
	// default course image coordinate.
	SetDefaultCourseImage(ctx context.Context, name, reference string) (string, error)

	// DeleteImage deletes one tag and every blob no surviving manifest references.
	DeleteImage(ctx context.Context, name, reference string) (domain.DeleteReport, error)
}
