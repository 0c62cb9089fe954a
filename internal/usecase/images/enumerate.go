package images

import (
	"context"
	"fmt"
	"sort"

	"github.com/bnema/zerowrap"

	"github.com/bnema/courseimages/internal/domain"
)

// ListRepositoryTags returns every (repository, tag) pair of the registry,
// sorted by repository then tag.
func (s *Service) ListRepositoryTags(ctx context.Context) ([]domain.RepositoryTag, error) {
	ctx, span, log := s.begin(ctx, "ListRepositoryTags", nil)
	defer span.End()

	pairs, err := s.enumerate(ctx)
	if err != nil {
		return nil, fail(span, log, err, "failed to enumerate registry")
	}

	log.Debug().Int(zerowrap.FieldCount, len(pairs)).Msg("registry enumerated")
	return pairs, nil
}

// enumerate lists the catalog, then fetches the tags of every repository
// concurrently. Repositories without tags are skipped.
func (s *Service) enumerate(ctx context.Context) ([]domain.RepositoryTag, error) {
	repositories, err := s.registry.ListRepositories(ctx)
	if err != nil {
		return nil, err
	}

	tagsByRepo := make([][]string, len(repositories))
	err = forEach(ctx, s.concurrency, len(repositories), func(ctx context.Context, i int) error {
		tags, err := s.registry.ListTags(ctx, repositories[i])
		if err != nil {
			return fmt.Errorf("list tags of %s: %w", repositories[i], err)
		}
		tagsByRepo[i] = tags
		return nil
	})
	if err != nil {
		return nil, err
	}

	var pairs []domain.RepositoryTag
	for i, name := range repositories {
		for _, tag := range tagsByRepo[i] {
			pairs = append(pairs, domain.RepositoryTag{Name: name, Tag: tag})
		}
	}

	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].Name != pairs[j].Name {
			return pairs[i].Name < pairs[j].Name
		}
		return pairs[i].Tag < pairs[j].Tag
	})
	return pairs, nil
}
