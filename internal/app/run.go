package app

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/bnema/zerowrap"
	"github.com/spf13/afero"

	"github.com/bnema/courseimages/internal/adapters/out/ratelimit"
	"github.com/bnema/courseimages/internal/adapters/out/registryhttp"
	"github.com/bnema/courseimages/internal/adapters/out/telemetry"
	"github.com/bnema/courseimages/internal/usecase/images"
)

const (
	serviceName     = "courseimages"
	shutdownTimeout = 5 * time.Second
)

// App holds the services wired for one process.
type App struct {
	Config Config
	Log    zerowrap.Logger
	Images *images.Service

	client   *registryhttp.Client
	closers  []func()
	shutdown func(context.Context)
}

// New loads the configuration and wires the logger, telemetry, registry
// client and images service. Close must be called when done.
func New(ctx context.Context, fs afero.Fs, configPath, version string) (*App, error) {
	cfg, err := LoadConfig(fs, configPath)
	if err != nil {
		return nil, err
	}
	return NewFromConfig(ctx, cfg, version)
}

// NewFromConfig wires an App from an already loaded configuration.
func NewFromConfig(ctx context.Context, cfg Config, version string) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	log, logCleanup, err := initLogger(cfg)
	if err != nil {
		return nil, err
	}

	a := &App{Config: cfg, Log: log}
	if logCleanup != nil {
		a.closers = append(a.closers, logCleanup)
	}

	_, shutdown, err := telemetry.NewProvider(ctx, cfg.Telemetry, serviceName, version)
	if err != nil {
		a.Close()
		return nil, log.WrapErr(err, "failed to initialize telemetry")
	}
	a.shutdown = shutdown

	metrics, err := telemetry.NewMetrics(nil)
	if err != nil {
		a.Close()
		return nil, log.WrapErr(err, "failed to create metrics")
	}

	client, err := registryhttp.NewClient(cfg.RegistryConfig(), log,
		registryhttp.WithMetrics(metrics),
		registryhttp.WithThrottle(ratelimit.NewThrottle(cfg.Registry.RateLimit, cfg.Registry.RateBurst, log)),
	)
	if err != nil {
		a.Close()
		return nil, log.WrapErr(err, "failed to create registry client")
	}
	a.client = client

	courseImages, err := cfg.CourseImages()
	if err != nil {
		a.Close()
		return nil, err
	}

	a.Images = images.NewService(client, images.Config{
		CourseImages:   courseImages,
		MaxConcurrency: cfg.Images.MaxConcurrency,
	})

	log.Debug().
		Str(zerowrap.FieldHost, cfg.Registry.Host).
		Str("default_course_image", courseImages.Default.String()).
		Str("initial_course_image", courseImages.Initial.String()).
		Bool("telemetry", cfg.Telemetry.Enabled).
		Msg("application initialized")

	return a, nil
}

// Context attaches the application logger to ctx.
func (a *App) Context(ctx context.Context) context.Context {
	return zerowrap.WithCtx(ctx, a.Log)
}

// Ping checks that the registry answers and accepts the credentials.
func (a *App) Ping(ctx context.Context) error {
	return a.client.Ping(a.Context(ctx))
}

// Close flushes telemetry and releases the HTTP client and log file.
func (a *App) Close() {
	if a.client != nil {
		a.client.Close()
	}
	if a.shutdown != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		a.shutdown(ctx)
		cancel()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// initLogger initializes the zerowrap logger.
func initLogger(cfg Config) (zerowrap.Logger, func(), error) {
	logConfig := zerowrap.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	}

	if cfg.Logging.File.Enabled {
		log, cleanup, err := zerowrap.NewWithFile(logConfig, zerowrap.FileConfig{
			Enabled:    true,
			Path:       resolveLogFilePath(cfg),
			MaxSize:    cfg.Logging.File.MaxSize,
			MaxBackups: cfg.Logging.File.MaxBackups,
			MaxAge:     cfg.Logging.File.MaxAge,
			Compress:   true,
		})
		if err != nil {
			return zerowrap.Default(), nil, fmt.Errorf("failed to create logger with file: %w", err)
		}
		return log, cleanup, nil
	}

	return zerowrap.New(logConfig), nil, nil
}

// resolveLogFilePath returns the configured log file path or
// {data_dir}/logs/courseimages.log.
func resolveLogFilePath(cfg Config) string {
	if cfg.Logging.File.Path != "" {
		return cfg.Logging.File.Path
	}
	return filepath.Join(DefaultDataDir(), "logs", serviceName+".log")
}
