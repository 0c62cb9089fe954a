package images

import (
	"context"
	"sort"

	"github.com/bnema/zerowrap"

	"github.com/bnema/courseimages/internal/domain"
)

// ListImages enumerates the registry, resolves every image and returns the
// course images sorted by image name. The built image the default course
// image points at is flagged IsDefault.
func (s *Service) ListImages(ctx context.Context) ([]domain.ImageRecord, error) {
	ctx, span, log := s.begin(ctx, "ListImages", nil)
	defer span.End()

	pairs, err := s.enumerate(ctx)
	if err != nil {
		return nil, fail(span, log, err, "failed to enumerate registry")
	}

	resolved, err := s.resolveAll(ctx, pairs)
	if err != nil {
		return nil, fail(span, log, err, "failed to resolve images")
	}

	records := make([]domain.ImageRecord, 0, len(pairs))
	var defaultImage *domain.ResolvedImage

	for i, pair := range pairs {
		img := resolved[i]
		classification := domain.Classify(pair.Name, pair.Tag, img.Config.Labels, s.images)

		switch classification.Kind {
		case domain.KindDefault:
			defaultImage = &resolved[i]
		case domain.KindInitial, domain.KindBuilt:
			records = append(records, newRecord(classification.Record, img))
		case domain.KindNotCourseImage:
			log.Debug().Str(zerowrap.FieldEntityID, pair.String()).Msg("skipping image without course labels")
		}
	}

	sort.SliceStable(records, func(i, j int) bool {
		return records[i].ImageName < records[j].ImageName
	})

	if defaultImage != nil {
		flagDefault(records, *defaultImage)
	}

	log.Info().
		Int(zerowrap.FieldCount, len(records)).
		Int("scanned", len(pairs)).
		Bool("default_found", defaultImage != nil).
		Msg("course images listed")

	return records, nil
}

// newRecord fills the digest-derived fields of a classified record.
func newRecord(record domain.ImageRecord, img domain.ResolvedImage) domain.ImageRecord {
	record.ImageID = img.Config.Digest
	record.ShortImageID = domain.ShortImageID(img.Config.Digest)
	record.ManifestDigest = img.Manifest.Digest
	record.Cmd = img.Config.Command()
	return record
}

// flagDefault marks exactly one record as the default course image: the
// one with the default's config digest, preferring the one that also shares
// its manifest digest.
func flagDefault(records []domain.ImageRecord, def domain.ResolvedImage) {
	chosen := -1
	for i := range records {
		if records[i].ImageID != def.Config.Digest {
			continue
		}
		if records[i].ManifestDigest == def.Manifest.Digest {
			chosen = i
			break
		}
		if chosen < 0 {
			chosen = i
		}
	}
	if chosen >= 0 {
		records[chosen].IsDefault = true
	}
}
