// Package config provides application configuration loading and management.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const defaultJWTSecret = "your-secret-key-change-in-production"

// Config holds application configuration values loaded from file or environment variables.
type Config struct {
	JWTSecret      string `mapstructure:"JWT_SECRET"`
	Port           string `mapstructure:"PORT"`
	Env            string `mapstructure:"APP_ENV"`
	AllowedOrigins string `mapstructure:"ALLOWED_ORIGINS"`
	FeatureFlags   string `mapstructure:"FEATURE_FLAGS"`

	DBDriver                 string `mapstructure:"DB_DRIVER"`
	DBHost                   string `mapstructure:"DB_HOST"`
	DBPort                   string `mapstructure:"DB_PORT"`
	DBUser                   string `mapstructure:"DB_USER"`
	DBPassword               string `mapstructure:"DB_PASSWORD"`
	DBName                   string `mapstructure:"DB_NAME"`
	DBSSLMode                string `mapstructure:"DB_SSLMODE"`
	SQLitePath               string `mapstructure:"SQLITE_PATH"`
	DBMaxOpenConns           int    `mapstructure:"DB_MAX_OPEN_CONNS"`
	DBMaxIdleConns           int    `mapstructure:"DB_MAX_IDLE_CONNS"`
	DBConnMaxLifetimeMinutes int    `mapstructure:"DB_CONN_MAX_LIFETIME_MINUTES"`

	RedisURL string `mapstructure:"REDIS_URL"`

	BlobBackend        string `mapstructure:"BLOB_BACKEND"`
	BlobDir            string `mapstructure:"BLOB_DIR"`
	BlobBaseURL        string `mapstructure:"BLOB_BASE_URL"`
	GCSBucket          string `mapstructure:"GCS_BUCKET"`
	GCSCredentialsFile string `mapstructure:"GCS_CREDENTIALS_FILE"`

	FeedWindowSize          int     `mapstructure:"FEED_WINDOW_SIZE"`
	MapWindowSize           int     `mapstructure:"MAP_WINDOW_SIZE"`
	DefaultRadiusKm         float64 `mapstructure:"DEFAULT_RADIUS_KM"`
	CommentPageSize         int     `mapstructure:"COMMENT_PAGE_SIZE"`
	AuthorLookupConcurrency int     `mapstructure:"AUTHOR_LOOKUP_CONCURRENCY"`
	MaxPostTextLength       int     `mapstructure:"MAX_POST_TEXT_LENGTH"`
	MaxCommentLength        int     `mapstructure:"MAX_COMMENT_LENGTH"`
	ImageMaxUploadSizeMB    int     `mapstructure:"IMAGE_MAX_UPLOAD_SIZE_MB"`

	PasswordResetTTLMinutes int `mapstructure:"PASSWORD_RESET_TTL_MINUTES"`

	TracingEnabled  bool   `mapstructure:"TRACING_ENABLED"`
	TracingExporter string `mapstructure:"TRACING_EXPORTER"`
	OTLPEndpoint    string `mapstructure:"OTLP_ENDPOINT"`
}

var keys = []string{
	"JWT_SECRET", "PORT", "APP_ENV", "ALLOWED_ORIGINS", "FEATURE_FLAGS",
	"DB_DRIVER", "DB_HOST", "DB_PORT", "DB_USER", "DB_PASSWORD", "DB_NAME", "DB_SSLMODE",
	"SQLITE_PATH", "DB_MAX_OPEN_CONNS", "DB_MAX_IDLE_CONNS", "DB_CONN_MAX_LIFETIME_MINUTES",
	"REDIS_URL",
	"BLOB_BACKEND", "BLOB_DIR", "BLOB_BASE_URL", "GCS_BUCKET", "GCS_CREDENTIALS_FILE",
	"FEED_WINDOW_SIZE", "MAP_WINDOW_SIZE", "DEFAULT_RADIUS_KM", "COMMENT_PAGE_SIZE",
	"AUTHOR_LOOKUP_CONCURRENCY", "MAX_POST_TEXT_LENGTH", "MAX_COMMENT_LENGTH",
	"IMAGE_MAX_UPLOAD_SIZE_MB", "PASSWORD_RESET_TTL_MINUTES",
	"TRACING_ENABLED", "TRACING_EXPORTER", "OTLP_ENDPOINT",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("PORT", "8375")
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("JWT_SECRET", defaultJWTSecret)
	v.SetDefault("ALLOWED_ORIGINS", "http://localhost:5173,http://localhost:3000,http://127.0.0.1:5173")
	v.SetDefault("FEATURE_FLAGS", "")

	v.SetDefault("DB_DRIVER", "postgres")
	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", "5432")
	v.SetDefault("DB_USER", "user")
	v.SetDefault("DB_PASSWORD", "password")
	v.SetDefault("DB_NAME", "petpals")
	v.SetDefault("DB_SSLMODE", "disable")
	v.SetDefault("SQLITE_PATH", "petpals.db")
	v.SetDefault("DB_MAX_OPEN_CONNS", 25)
	v.SetDefault("DB_MAX_IDLE_CONNS", 10)
	v.SetDefault("DB_CONN_MAX_LIFETIME_MINUTES", 30)

	v.SetDefault("REDIS_URL", "localhost:6379")

	v.SetDefault("BLOB_BACKEND", "local")
	v.SetDefault("BLOB_DIR", "./data/blobs")
	v.SetDefault("BLOB_BASE_URL", "http://localhost:8375/media")

	v.SetDefault("FEED_WINDOW_SIZE", 0)
	v.SetDefault("MAP_WINDOW_SIZE", 200)
	v.SetDefault("DEFAULT_RADIUS_KM", 5.0)
	v.SetDefault("COMMENT_PAGE_SIZE", 300)
	v.SetDefault("AUTHOR_LOOKUP_CONCURRENCY", 16)
	v.SetDefault("MAX_POST_TEXT_LENGTH", 2000)
	v.SetDefault("MAX_COMMENT_LENGTH", 500)
	v.SetDefault("IMAGE_MAX_UPLOAD_SIZE_MB", 10)
	v.SetDefault("PASSWORD_RESET_TTL_MINUTES", 30)

	v.SetDefault("TRACING_ENABLED", false)
	v.SetDefault("TRACING_EXPORTER", "stdout")
	v.SetDefault("OTLP_ENDPOINT", "localhost:4318")
}

// LoadConfig loads application configuration from file and environment variables.
func LoadConfig() (*Config, error) {
	v := viper.New()
	v.AddConfigPath(".")
	v.AddConfigPath("..")
	v.AddConfigPath("../..")
	v.SetConfigName("config")
	v.SetConfigType("yml")
	v.AutomaticEnv()
	for _, k := range keys {
		_ = v.BindEnv(k)
	}
	setDefaults(v)

	// The base file is optional.
	_ = v.ReadInConfig()

	env := v.GetString("APP_ENV")
	if env != "development" && env != "" && env != "test" {
		v.SetConfigName("config." + env)
		if err := v.MergeInConfig(); err != nil {
			return nil, fmt.Errorf("required profile-specific config 'config.%s.yml' not found: %w", env, err)
		}
		slog.Info("Loaded profile-specific configuration", slog.String("file", "config."+env+".yml"))
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}
	config.normalize()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

func (c *Config) normalize() {
	c.DBSSLMode = strings.ToLower(strings.TrimSpace(c.DBSSLMode))
	c.DBDriver = strings.ToLower(strings.TrimSpace(c.DBDriver))
	c.BlobBackend = strings.ToLower(strings.TrimSpace(c.BlobBackend))
	c.BlobBaseURL = strings.TrimRight(c.BlobBaseURL, "/")
}

// IsProduction reports whether strict production checks apply.
func (c *Config) IsProduction() bool {
	return c.Env == "production" || c.Env == "prod"
}

// Validate ensures that required configuration values are present and meet security standards.
func (c *Config) Validate() error {
	if c.Port == "" {
		return errors.New("PORT is required")
	}
	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET is required")
	}
	switch c.DBDriver {
	case "", "postgres", "sqlite":
	default:
		return fmt.Errorf("DB_DRIVER must be postgres or sqlite, got %q", c.DBDriver)
	}
	switch c.BlobBackend {
	case "", "local":
	case "gcs":
		if c.GCSBucket == "" {
			return errors.New("GCS_BUCKET is required when BLOB_BACKEND is gcs")
		}
	default:
		return fmt.Errorf("BLOB_BACKEND must be local or gcs, got %q", c.BlobBackend)
	}
	if c.ImageMaxUploadSizeMB <= 0 {
		return errors.New("IMAGE_MAX_UPLOAD_SIZE_MB must be greater than 0")
	}
	if c.DBConnMaxLifetimeMinutes <= 0 {
		return errors.New("DB_CONN_MAX_LIFETIME_MINUTES must be greater than 0")
	}
	if c.DefaultRadiusKm < 0 || c.MapWindowSize < 0 || c.FeedWindowSize < 0 || c.CommentPageSize < 0 {
		return errors.New("window sizes, radius and page size must not be negative")
	}
	if c.CommentPageSize > 500 {
		return errors.New("COMMENT_PAGE_SIZE must not exceed the 500 operation batch limit")
	}

	// Strict checks for production
	if c.IsProduction() {
		if c.JWTSecret == defaultJWTSecret {
			return errors.New("JWT_SECRET must be changed from the default value in production")
		}
		if len(c.JWTSecret) < 32 {
			return errors.New("JWT_SECRET must be at least 32 characters in production")
		}
		if c.DBDriver != "sqlite" {
			if c.DBPassword == "password" || c.DBPassword == "" {
				return errors.New("a strong DB_PASSWORD is required in production")
			}
			if c.DBSSLMode == "disable" || c.DBSSLMode == "" {
				return errors.New("DB_SSLMODE must enable TLS in production")
			}
		}
		if c.AllowedOrigins == "*" {
			slog.Warn("ALLOWED_ORIGINS is set to '*' in production. This is insecure.")
		}
	} else if len(c.JWTSecret) < 32 {
		slog.Warn("JWT_SECRET is shorter than 32 characters. Consider using a stronger secret for production.")
	}

	return nil
}

// ConnMaxLifetime returns DB_CONN_MAX_LIFETIME_MINUTES as a duration.
func (c *Config) ConnMaxLifetime() time.Duration {
	return time.Duration(c.DBConnMaxLifetimeMinutes) * time.Minute
}

// PasswordResetTTL returns PASSWORD_RESET_TTL_MINUTES as a duration.
func (c *Config) PasswordResetTTL() time.Duration {
	return time.Duration(c.PasswordResetTTLMinutes) * time.Minute
}

// ImageMaxUploadBytes returns the upload limit in bytes.
func (c *Config) ImageMaxUploadBytes() int64 {
	return int64(c.ImageMaxUploadSizeMB) << 20
}
