package images

import (
	"context"
	"fmt"

	"github.com/bnema/zerowrap"

	"github.com/bnema/courseimages/internal/domain"
)

// Inspect resolves the manifest and config of name:reference.
func (s *Service) Inspect(ctx context.Context, name, reference string) (domain.ResolvedImage, error) {
	ctx, span, log := s.begin(ctx, "Inspect", map[string]any{
		zerowrap.FieldEntityID: name + ":" + reference,
	})
	defer span.End()

	img, err := s.resolve(ctx, name, reference)
	if err != nil {
		return domain.ResolvedImage{}, fail(span, log, err, "failed to resolve image")
	}
	return img, nil
}

// resolve fetches a manifest, then its config blob.
func (s *Service) resolve(ctx context.Context, name, reference string) (domain.ResolvedImage, error) {
	manifest, err := s.registry.GetManifest(ctx, name, reference)
	if err != nil {
		return domain.ResolvedImage{}, fmt.Errorf("get manifest %s:%s: %w", name, reference, err)
	}

	config, err := s.registry.GetConfig(ctx, name, manifest.Config)
	if err != nil {
		return domain.ResolvedImage{}, fmt.Errorf("get config of %s:%s: %w", name, reference, err)
	}

	return domain.ResolvedImage{Manifest: manifest, Config: config}, nil
}

// resolveAll resolves every pair concurrently, keeping the input order.
func (s *Service) resolveAll(ctx context.Context, pairs []domain.RepositoryTag) ([]domain.ResolvedImage, error) {
	resolved := make([]domain.ResolvedImage, len(pairs))
	err := forEach(ctx, s.concurrency, len(pairs), func(ctx context.Context, i int) error {
		img, err := s.resolve(ctx, pairs[i].Name, pairs[i].Tag)
		if err != nil {
			return err
		}
		resolved[i] = img
		return nil
	})
	if err != nil {
		return nil, err
	}
	return resolved, nil
}
