// Package images implements the course image use case: listing and
// classifying registry images, promoting them to new coordinates and
// deleting them without breaking images that share their blobs.
package images

import (
	"context"
	"fmt"

	"github.com/bnema/zerowrap"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/bnema/courseimages/internal/boundaries/out"
	"github.com/bnema/courseimages/internal/domain"
	"github.com/bnema/courseimages/pkg/validation"
)

// DefaultMaxConcurrency bounds every fan-out when no limit is configured.
const DefaultMaxConcurrency = 8

const tracerName = "github.com/bnema/courseimages/internal/usecase/images"

// Config holds the use case settings.
type Config struct {
	CourseImages   domain.CourseImages
	MaxConcurrency int
}

// Service implements in.ImageService on top of a registry client.
// It keeps no state between calls; the registry is the only source of truth.
type Service struct {
	registry    out.RegistryClient
	images      domain.CourseImages
	concurrency int
	tracer      trace.Tracer
}

// NewService creates a new images service. Operations log through the
// logger carried by their context.
func NewService(registry out.RegistryClient, cfg Config) *Service {
	concurrency := cfg.MaxConcurrency
	if concurrency <= 0 {
		concurrency = DefaultMaxConcurrency
	}

	return &Service{
		registry:    registry,
		images:      cfg.CourseImages,
		concurrency: concurrency,
		tracer:      otel.Tracer(tracerName),
	}
}

// CourseImages returns the configured default and initial coordinates.
func (s *Service) CourseImages() domain.CourseImages {
	return s.images
}

// begin decorates ctx with use case log fields and opens a span.
func (s *Service) begin(ctx context.Context, useCase string, fields map[string]any) (context.Context, trace.Span, zerowrap.Logger) {
	all := map[string]any{
		zerowrap.FieldLayer:   "usecase",
		zerowrap.FieldUseCase: useCase,
	}
	for k, v := range fields {
		all[k] = v
	}

	ctx = zerowrap.CtxWithFields(ctx, all)
	ctx, span := s.tracer.Start(ctx, "images."+useCase)
	return ctx, span, zerowrap.FromCtx(ctx)
}

// fail records err on span and wraps it with msg.
func fail(span trace.Span, log zerowrap.Logger, err error, msg string) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, msg)
	return log.WrapErr(err, msg)
}

// validatePair rejects a name or reference that cannot be placed in a
// registry URL, before anything is sent.
func validatePair(name, reference string) error {
	if err := validation.ValidateRepositoryName(name); err != nil {
		return fmt.Errorf("%w %s:%s: %v", domain.ErrInvalidCoordinate, name, reference, err)
	}
	if err := validation.ValidateReference(reference); err != nil {
		return fmt.Errorf("%w %s:%s: %v", domain.ErrInvalidCoordinate, name, reference, err)
	}
	return nil
}
