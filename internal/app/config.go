package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/viper"

	"github.com/bnema/courseimages/internal/adapters/out/registryhttp"
	"github.com/bnema/courseimages/internal/adapters/out/telemetry"
	"github.com/bnema/courseimages/internal/domain"
	"github.com/bnema/courseimages/pkg/validation"
)

// Default course image coordinates.
const (
	DefaultCourseImage = "coursewarehub/default-course-image:latest"
	InitialCourseImage = "coursewarehub/initial-course-image:latest"
)

// Config holds the application configuration.
type Config struct {
	Registry struct {
		Host          string        `mapstructure:"host"`
		Username      string        `mapstructure:"username"`
		Password      string        `mapstructure:"password"`
		Insecure      bool          `mapstructure:"insecure"`
		Timeout       time.Duration `mapstructure:"timeout"`
		MaxRetries    int           `mapstructure:"max_retries"`
		VerifyDigests bool          `mapstructure:"verify_digests"`
		RateLimit     float64       `mapstructure:"rate_limit"` // requests per second, 0 disables
		RateBurst     int           `mapstructure:"rate_burst"`
	} `mapstructure:"registry"`

	Images struct {
		DefaultCourseImage string `mapstructure:"default_course_image"`
		InitialCourseImage string `mapstructure:"initial_course_image"`
		MaxConcurrency     int    `mapstructure:"max_concurrency"`
	} `mapstructure:"images"`

	Logging struct {
		Level  string `mapstructure:"level"`
		Format string `mapstructure:"format"`
		File   struct {
			Enabled    bool   `mapstructure:"enabled"`
			Path       string `mapstructure:"path"`
			MaxSize    int    `mapstructure:"max_size"`
			MaxBackups int    `mapstructure:"max_backups"`
			MaxAge     int    `mapstructure:"max_age"`
		} `mapstructure:"file"`
	} `mapstructure:"logging"`

	Telemetry telemetry.Config `mapstructure:"telemetry"`
}

// LoadConfig reads the configuration from fs. An empty configPath searches
// the standard locations; a missing file there is not an error, but a
// missing explicit file is.
func LoadConfig(fs afero.Fs, configPath string) (Config, error) {
	v := viper.New()
	if fs != nil {
		v.SetFs(fs)
	}
	if err := loadConfig(v, configPath); err != nil {
		return Config{}, fmt.Errorf("failed to load config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func loadConfig(v *viper.Viper, configPath string) error {
	v.SetDefault("registry.host", "")
	v.SetDefault("registry.username", "")
	v.SetDefault("registry.password", "")
	v.SetDefault("registry.insecure", false)
	v.SetDefault("registry.timeout", registryhttp.DefaultTimeout.String())
	v.SetDefault("registry.max_retries", registryhttp.DefaultMaxRetries)
	v.SetDefault("registry.verify_digests", true)
	v.SetDefault("registry.rate_limit", 0)
	v.SetDefault("registry.rate_burst", 10)
	v.SetDefault("images.default_course_image", DefaultCourseImage)
	v.SetDefault("images.initial_course_image", InitialCourseImage)
	v.SetDefault("images.max_concurrency", 8)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("logging.file.enabled", false)
	v.SetDefault("logging.file.path", "")
	v.SetDefault("logging.file.max_size", 100)
	v.SetDefault("logging.file.max_backups", 3)
	v.SetDefault("logging.file.max_age", 28)
	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.endpoint", "")
	v.SetDefault("telemetry.auth_token", "")
	v.SetDefault("telemetry.traces", true)
	v.SetDefault("telemetry.metrics", true)
	v.SetDefault("telemetry.trace_sample_rate", 1.0)

	ConfigureViper(v, configPath)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvPrefix("COURSEIMAGES")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return nil
}

// Validate checks the values LoadConfig cannot default.
func (c Config) Validate() error {
	if c.Registry.Host == "" {
		return fmt.Errorf("%w: registry.host is required", domain.ErrInvalidConfig)
	}
	if err := validation.ValidateRegistryHost(c.Registry.Host); err != nil {
		return fmt.Errorf("%w: registry.host: %v", domain.ErrInvalidConfig, err)
	}
	if c.Registry.Timeout <= 0 {
		return fmt.Errorf("%w: registry.timeout must be positive", domain.ErrInvalidConfig)
	}
	if c.Registry.MaxRetries < 0 {
		return fmt.Errorf("%w: registry.max_retries must be >= 0", domain.ErrInvalidConfig)
	}
	if c.Registry.RateLimit < 0 {
		return fmt.Errorf("%w: registry.rate_limit must be >= 0", domain.ErrInvalidConfig)
	}
	if c.Images.MaxConcurrency < 1 {
		return fmt.Errorf("%w: images.max_concurrency must be >= 1", domain.ErrInvalidConfig)
	}
	if _, err := c.CourseImages(); err != nil {
		return err
	}
	if c.Telemetry.TraceSampleRate < 0 || c.Telemetry.TraceSampleRate > 1 {
		return fmt.Errorf("%w: telemetry.trace_sample_rate must be within [0, 1]", domain.ErrInvalidConfig)
	}
	return nil
}

// CourseImages parses the configured default and initial coordinates.
func (c Config) CourseImages() (domain.CourseImages, error) {
	def, err := domain.ParseCoordinate(c.Images.DefaultCourseImage)
	if err != nil {
		return domain.CourseImages{}, fmt.Errorf("%w: images.default_course_image: %v", domain.ErrInvalidConfig, err)
	}
	initial, err := domain.ParseCoordinate(c.Images.InitialCourseImage)
	if err != nil {
		return domain.CourseImages{}, fmt.Errorf("%w: images.initial_course_image: %v", domain.ErrInvalidConfig, err)
	}
	return domain.CourseImages{Default: def, Initial: initial}, nil
}

// RegistryConfig returns the transport settings.
func (c Config) RegistryConfig() registryhttp.Config {
	return registryhttp.Config{
		Host:          c.Registry.Host,
		Username:      c.Registry.Username,
		Password:      c.Registry.Password,
		Insecure:      c.Registry.Insecure,
		Timeout:       c.Registry.Timeout,
		MaxRetries:    c.Registry.MaxRetries,
		VerifyDigests: c.Registry.VerifyDigests,
	}
}
