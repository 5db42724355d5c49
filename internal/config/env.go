// Package config loads process settings from the environment (optionally a
// .env file) and the optional YAML run file.
package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Env holds every setting read from the process environment.
type Env struct {
	DatabaseURL  string `env:"DATABASE_URL"`
	DatabaseKind string `env:"DATABASE_KIND" envDefault:"postgres"`

	// BlobToken is "<access-key-id>:<secret>" for the snapshot bucket.
	BlobToken  string `env:"BLOB_READ_WRITE_TOKEN"`
	S3Bucket   string `env:"S3_BUCKET"`
	S3Endpoint string `env:"S3_ENDPOINT"`
	S3Region   string `env:"S3_REGION" envDefault:"auto"`
	S3Prefix   string `env:"S3_PREFIX" envDefault:"backups/"`

	SnapshotDir string `env:"SNAPSHOT_DIR" envDefault:"./backups"`

	NodeEnv  string `env:"NODE_ENV" envDefault:"development"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	StatementTimeout time.Duration `env:"STATEMENT_TIMEOUT" envDefault:"0s"`

	MetricsBackend string `env:"METRICS_BACKEND" envDefault:"none"`
	MetricsTags    string `env:"METRICS_TAGS"`
}

// LoadEnv reads dotenvPath (when it exists) into the environment without
// overriding variables already set, then parses Env.
func LoadEnv(dotenvPath string) (*Env, error) {
	if dotenvPath != "" {
		if err := godotenv.Load(dotenvPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("config: load %s: %w", dotenvPath, err)
		}
	}

	var e Env
	if err := env.Parse(&e); err != nil {
		return nil, fmt.Errorf("config: parse environment: %w", err)
	}
	return &e, e.validate()
}

func (e *Env) validate() error {
	switch e.MetricsBackend {
	case "none", "datadog":
	default:
		return fmt.Errorf("config: METRICS_BACKEND must be none or datadog, got %q", e.MetricsBackend)
	}
	if e.StatementTimeout < 0 {
		return fmt.Errorf("config: STATEMENT_TIMEOUT must not be negative")
	}
	if _, err := parseLevel(e.LogLevel); err != nil {
		return err
	}
	return nil
}

// RequireDatabase reports a configuration error when no DSN is set.
func (e *Env) RequireDatabase() error {
	if strings.TrimSpace(e.DatabaseURL) == "" {
		return fmt.Errorf("config: DATABASE_URL is required")
	}
	return nil
}

// IsProduction switches logging to JSON.
func (e *Env) IsProduction() bool {
	return strings.EqualFold(e.NodeEnv, "production")
}

// SlogLevel maps LOG_LEVEL onto slog.
func (e *Env) SlogLevel() slog.Level {
	l, _ := parseLevel(e.LogLevel)
	return l
}

func parseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("config: unknown LOG_LEVEL %q", s)
}

// BlobCredentials splits BLOB_READ_WRITE_TOKEN into key id and secret.
func (e *Env) BlobCredentials() (keyID, secret string, err error) {
	keyID, secret, ok := strings.Cut(strings.TrimSpace(e.BlobToken), ":")
	if !ok || keyID == "" || secret == "" {
		return "", "", fmt.Errorf("config: BLOB_READ_WRITE_TOKEN must be <key-id>:<secret>")
	}
	return keyID, secret, nil
}

// UsesS3 is true when snapshots live in a bucket rather than SNAPSHOT_DIR.
func (e *Env) UsesS3() bool {
	return e.S3Bucket != ""
}

// NewLogger builds the process logger: text for development, JSON in production.
func (e *Env) NewLogger(w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: e.SlogLevel()}
	if e.IsProduction() {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
