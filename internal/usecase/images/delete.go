package images

import (
	"context"
	"fmt"

	"github.com/bnema/zerowrap"

	"github.com/bnema/courseimages/internal/domain"
)

// DeleteImage deletes the manifest name:reference points at, then every
// blob of that manifest that no surviving manifest references.
//
// The sequence is: fetch the manifest, delete it by digest, mark the blobs
// of every other (repository, tag) pair still in the registry, then sweep
// the unmarked blobs. Marking failures abort before any blob is deleted.
func (s *Service) DeleteImage(ctx context.Context, name, reference string) (domain.DeleteReport, error) {
	ctx, span, log := s.begin(ctx, "DeleteImage", map[string]any{
		zerowrap.FieldEntityID: name + ":" + reference,
	})
	defer span.End()

	if err := validatePair(name, reference); err != nil {
		return domain.DeleteReport{}, fail(span, log, err, "invalid image")
	}

	manifest, err := s.registry.GetManifest(ctx, name, reference)
	if err != nil {
		return domain.DeleteReport{}, fail(span, log, err, "failed to get manifest")
	}
	report := domain.DeleteReport{ManifestDigest: manifest.Digest}

	if err := s.registry.DeleteManifest(ctx, name, manifest.Digest); err != nil {
		return report, fail(span, log, err, "failed to delete manifest")
	}

	marked, err := s.mark(ctx, domain.RepositoryTag{Name: name, Tag: reference})
	if err != nil {
		return report, fail(span, log, err, "failed to mark referenced blobs")
	}

	var candidates []string
	for _, d := range manifest.BlobDigests() {
		if _, referenced := marked[d]; referenced {
			report.BlobsKept = append(report.BlobsKept, d)
			continue
		}
		candidates = append(candidates, d)
	}

	deleted, err := s.sweep(ctx, name, candidates)
	report.BlobsDeleted = deleted
	if err != nil {
		return report, fail(span, log, err, "failed to delete blobs")
	}

	log.Info().
		Str("digest", report.ManifestDigest).
		Int("blobs_deleted", len(report.BlobsDeleted)).
		Int("blobs_kept", len(report.BlobsKept)).
		Msg("image deleted")

	return report, nil
}

// mark returns the config and layer digests of every manifest still tagged
// in the registry, except the excluded pair. A tag whose manifest is gone
// references nothing.
func (s *Service) mark(ctx context.Context, excluded domain.RepositoryTag) (map[string]struct{}, error) {
	log := zerowrap.FromCtx(ctx)

	pairs, err := s.enumerate(ctx)
	if err != nil {
		return nil, err
	}

	surviving := make([]domain.RepositoryTag, 0, len(pairs))
	for _, pair := range pairs {
		if pair == excluded {
			continue
		}
		surviving = append(surviving, pair)
	}

	manifests := make([]*domain.Manifest, len(surviving))
	err = forEach(ctx, s.concurrency, len(surviving), func(ctx context.Context, i int) error {
		m, err := s.registry.GetManifest(ctx, surviving[i].Name, surviving[i].Tag)
		if domain.IsNotFound(err) {
			log.Debug().Str(zerowrap.FieldEntityID, surviving[i].String()).Msg("tag no longer resolves, skipping")
			return nil
		}
		if err != nil {
			return fmt.Errorf("get manifest %s: %w", surviving[i], err)
		}
		manifests[i] = m
		return nil
	})
	if err != nil {
		return nil, err
	}

	marked := make(map[string]struct{})
	for _, m := range manifests {
		if m == nil {
			continue
		}
		for _, d := range m.BlobDigests() {
			marked[d] = struct{}{}
		}
	}

	log.Debug().
		Int("surviving_tags", len(surviving)).
		Int("marked_blobs", len(marked)).
		Msg("mark phase complete")

	return marked, nil
}

// sweep deletes the given blobs concurrently and returns those confirmed
// gone. A blob that is already missing counts as deleted.
func (s *Service) sweep(ctx context.Context, name string, digests []string) ([]string, error) {
	done := make([]bool, len(digests))
	err := forEach(ctx, s.concurrency, len(digests), func(ctx context.Context, i int) error {
		err := s.registry.DeleteBlob(ctx, name, digests[i])
		if err != nil && !domain.IsNotFound(err) {
			return fmt.Errorf("delete blob %s: %w", digests[i], err)
		}
		done[i] = true
		return nil
	})

	deleted := make([]string, 0, len(digests))
	for i, d := range digests {
		if done[i] {
			deleted = append(deleted, d)
		}
	}
	return deleted, err
}
