// Package telemetry exports traces and metrics of registry traffic over
// OTLP/HTTP.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// Config is the [telemetry] section.
type Config struct {
	Enabled         bool    `mapstructure:"enabled"`
	Endpoint        string  `mapstructure:"endpoint"`   // collector base URL, http:// means plaintext
	AuthToken       string  `mapstructure:"auth_token"` // sent as "Authorization: Basic <token>"
	Traces          bool    `mapstructure:"traces"`
	Metrics         bool    `mapstructure:"metrics"`
	TraceSampleRate float64 `mapstructure:"trace_sample_rate"`
}

// Provider exposes the SDK providers that were installed globally. Either
// field is nil when that signal is off.
type Provider struct {
	TracerProvider *sdktrace.TracerProvider
	MeterProvider  *sdkmetric.MeterProvider
}

type collector struct {
	host       string
	pathPrefix string
	plaintext  bool
	headers    map[string]string
}

// NewProvider installs the global tracer and meter providers. With telemetry
// off it installs nothing and the OTel API stays on its noop
// implementation. The returned shutdown flushes pending exports.
func NewProvider(ctx context.Context, cfg Config, serviceName, version string) (*Provider, func(context.Context), error) {
	p := &Provider{}
	if !cfg.Enabled || cfg.Endpoint == "" {
		return p, func(context.Context) {}, nil
	}

	col, err := parseCollector(cfg)
	if err != nil {
		return nil, func(context.Context) {}, err
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			attribute.String("service.name", serviceName),
			attribute.String("service.version", version),
		),
		resource.WithHost(),
	)
	if err != nil {
		return nil, func(context.Context) {}, fmt.Errorf("create resource: %w", err)
	}

	var stops []func(context.Context) error
	shutdown := func(ctx context.Context) {
		for i := len(stops) - 1; i >= 0; i-- {
			_ = stops[i](ctx)
		}
	}

	if cfg.Traces {
		exp, err := otlptracehttp.New(ctx, col.traceOptions()...)
		if err != nil {
			return nil, shutdown, fmt.Errorf("create trace exporter: %w", err)
		}
		p.TracerProvider = sdktrace.NewTracerProvider(
			sdktrace.WithBatcher(exp),
			sdktrace.WithResource(res),
			sdktrace.WithSampler(sampler(cfg.TraceSampleRate)),
		)
		otel.SetTracerProvider(p.TracerProvider)
		otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
			propagation.TraceContext{}, propagation.Baggage{},
		))
		stops = append(stops, p.TracerProvider.Shutdown)
	}

	if cfg.Metrics {
		exp, err := otlpmetrichttp.New(ctx, col.metricOptions()...)
		if err != nil {
			shutdown(ctx)
			return nil, func(context.Context) {}, fmt.Errorf("create metric exporter: %w", err)
		}
		p.MeterProvider = sdkmetric.NewMeterProvider(
			sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exp)),
			sdkmetric.WithResource(res),
		)
		otel.SetMeterProvider(p.MeterProvider)
		stops = append(stops, p.MeterProvider.Shutdown)
	}

	return p, shutdown, nil
}

func parseCollector(cfg Config) (collector, error) {
	u, err := url.Parse(cfg.Endpoint)
	if err != nil {
		return collector{}, fmt.Errorf("telemetry endpoint: %w", err)
	}
	if u.Host == "" {
		return collector{}, errors.New("telemetry endpoint: missing host in " + cfg.Endpoint)
	}

	col := collector{
		host:       u.Host,
		pathPrefix: strings.TrimSuffix(u.Path, "/"),
		plaintext:  u.Scheme == "http",
		headers:    map[string]string{},
	}
	if cfg.AuthToken != "" {
		col.headers["Authorization"] = "Basic " + cfg.AuthToken
	}
	return col, nil
}

func (c collector) traceOptions() []otlptracehttp.Option {
	opts := []otlptracehttp.Option{
		otlptracehttp.WithEndpoint(c.host),
		otlptracehttp.WithHeaders(c.headers),
	}
	if c.pathPrefix != "" {
		opts = append(opts, otlptracehttp.WithURLPath(c.pathPrefix+"/v1/traces"))
	}
	if c.plaintext {
		opts = append(opts, otlptracehttp.WithInsecure())
	}
	return opts
}

func (c collector) metricOptions() []otlpmetrichttp.Option {
	opts := []otlpmetrichttp.Option{
		otlpmetrichttp.WithEndpoint(c.host),
		otlpmetrichttp.WithHeaders(c.headers),
	}
	if c.pathPrefix != "" {
		opts = append(opts, otlpmetrichttp.WithURLPath(c.pathPrefix+"/v1/metrics"))
	}
	if c.plaintext {
		opts = append(opts, otlpmetrichttp.WithInsecure())
	}
	return opts
}

// sampler honours the parent's decision and samples root spans at rate.
func sampler(rate float64) sdktrace.Sampler {
	var root sdktrace.Sampler
	switch {
	case rate <= 0:
		root = sdktrace.NeverSample()
	case rate >= 1:
		root = sdktrace.AlwaysSample()
	default:
		root = sdktrace.TraceIDRatioBased(rate)
	}
	return sdktrace.ParentBased(root)
}
