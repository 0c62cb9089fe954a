package telemetry

import (
	"context"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "courseimages"

// Metrics holds the registry client metric instruments.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	// Transport
	RegistryRequests        metric.Int64Counter
	RegistryRequestDuration metric.Float64Histogram

	// Promote / delete
	BlobsMounted     metric.Int64Counter
	BlobsDeleted     metric.Int64Counter
	ManifestsDeleted metric.Int64Counter
}

// NewMetrics creates and registers all metric instruments on mp, or on the
// global MeterProvider when mp is nil. OTel hands out noop instruments until
// a real provider is installed, so the result is always usable.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	meter := mp.Meter(meterName)
	m := &Metrics{}
	var err error

	if m.RegistryRequests, err = meter.Int64Counter("courseimages.registry.requests",
		metric.WithDescription("Total registry HTTP requests")); err != nil {
		return nil, err
	}
	if m.RegistryRequestDuration, err = meter.Float64Histogram("courseimages.registry.request.duration",
		metric.WithDescription("Registry request duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30)); err != nil {
		return nil, err
	}
	if m.BlobsMounted, err = meter.Int64Counter("courseimages.registry.blobs.mounted",
		metric.WithDescription("Total blobs mounted across repositories")); err != nil {
		return nil, err
	}
	if m.BlobsDeleted, err = meter.Int64Counter("courseimages.registry.blobs.deleted",
		metric.WithDescription("Total blobs deleted")); err != nil {
		return nil, err
	}
	if m.ManifestsDeleted, err = meter.Int64Counter("courseimages.registry.manifests.deleted",
		metric.WithDescription("Total manifests deleted")); err != nil {
		return nil, err
	}

	return m, nil
}

// RecordRequest records one registry round trip. status is 0 when no
// response was received.
func (m *Metrics) RecordRequest(ctx context.Context, op, method string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("op", op),
		attribute.String("method", method),
		attribute.String("status", strconv.Itoa(status)),
	)
	m.RegistryRequests.Add(ctx, 1, attrs)
	m.RegistryRequestDuration.Record(ctx, elapsed.Seconds(), attrs)
}

// RecordMount counts a successful cross-repository mount.
func (m *Metrics) RecordMount(ctx context.Context, repository string) {
	if m == nil {
		return
	}
	m.BlobsMounted.Add(ctx, 1, metric.WithAttributes(attribute.String("repository", repository)))
}

// RecordBlobDelete counts a deleted blob.
func (m *Metrics) RecordBlobDelete(ctx context.Context, repository string) {
	if m == nil {
		return
	}
	m.BlobsDeleted.Add(ctx, 1, metric.WithAttributes(attribute.String("repository", repository)))
}

// RecordManifestDelete counts a deleted manifest.
func (m *Metrics) RecordManifestDelete(ctx context.Context, repository string) {
	if m == nil {
		return
	}
	m.ManifestsDeleted.Add(ctx, 1, metric.WithAttributes(attribute.String("repository", repository)))
}
