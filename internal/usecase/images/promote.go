package images

import (
	"context"
	"fmt"

	"github.com/bnema/zerowrap"

	"github.com/bnema/courseimages/internal/domain"
)

// Promote makes sourceName:sourceRef available as newName:newTag. Every blob
// of the source manifest is mounted into newName, then the unmodified
// manifest bytes are put under the new tag. If any mount fails the manifest
// is not put. Promoting twice is harmless.
func (s *Service) Promote(ctx context.Context, newName, newTag, sourceName, sourceRef string) (string, error) {
	ctx, span, log := s.begin(ctx, "Promote", map[string]any{
		zerowrap.FieldEntityID: sourceName + ":" + sourceRef,
		"target":               newName + ":" + newTag,
	})
	defer span.End()

	if err := validatePair(sourceName, sourceRef); err != nil {
		return "", fail(span, log, err, "invalid source image")
	}
	if err := validatePair(newName, newTag); err != nil {
		return "", fail(span, log, err, "invalid target image")
	}

	manifest, err := s.registry.GetManifest(ctx, sourceName, sourceRef)
	if err != nil {
		return "", fail(span, log, err, "failed to get source manifest")
	}

	digests := manifest.BlobDigests()
	if newName != sourceName {
		err = forEach(ctx, s.concurrency, len(digests), func(ctx context.Context, i int) error {
			if _, err := s.registry.MountBlob(ctx, newName, digests[i], sourceName); err != nil {
				return fmt.Errorf("mount %s from %s: %w", digests[i], sourceName, err)
			}
			return nil
		})
		if err != nil {
			return "", fail(span, log, err, "failed to mount blobs")
		}
	}

	dgst, err := s.registry.PutManifest(ctx, newName, newTag, manifest)
	if err != nil {
		return "", fail(span, log, err, "failed to put manifest")
	}

	log.Info().
		Str("target", newName+":"+newTag).
		Str("digest", dgst).
		Int("blobs", len(digests)).
		Msg("image promoted")

	return dgst, nil
}

// SetDefaultCourseImage promotes name:reference to the configured default
// course image coordinate.
func (s *Service) SetDefaultCourseImage(ctx context.Context, name, reference string) (string, error) {
	target := s.images.Default
	if target.IsZero() {
		return "", fmt.Errorf("%w: no default course image configured", domain.ErrInvalidConfig)
	}
	return s.Promote(ctx, target.Name, target.Tag, name, reference)
}
