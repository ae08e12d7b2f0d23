// Package config loads the server's runtime settings.
//
// LAYERING (later layers win):
//  1. LoadDefaults: development defaults
//  2. .env file   : optional, loaded into the process environment by godotenv
//  3. environment : PORT, DB_PATH, DATABASE_URL, JWT_SECRET, ...
//  4. flags       : a handful of short flags for local runs
//
// Validate is called last; main refuses to start on an invalid config.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Blob backends.
const (
	BlobLocal = "local"
	BlobS3    = "s3"
)

// MinSecretLength is the shortest JWT secret Validate accepts.
const MinSecretLength = 16

// Config holds runtime settings.
//
// Fields:
//   - Port: HTTP listen port.
//   - DBPath: SQLite file, used when DatabaseURL is empty.
//   - DatabaseURL: PostgreSQL DSN (pgx); selects the Postgres store.
//   - JWTSecret: HMAC secret for bearer tokens (HS256).
//   - GitHub*: optional OAuth sign-in; disabled when ClientID is empty.
//   - CORSOrigins: allowed browser origins, also checked on /socket.
//   - UploadDir: local blob directory (BlobBackend "local").
//   - S3*: object storage settings (BlobBackend "s3").
//   - LogLevel / LogFormat: slog handler selection.
//   - ReconcileInterval: ownership index repair period; 0 disables it.
type Config struct {
	Port               int
	DBPath             string
	DatabaseURL        string
	JWTSecret          string
	GitHubClientID     string
	GitHubClientSecret string
	GitHubCallbackURL  string
	CORSOrigins        []string
	UploadDir          string
	BlobBackend        string
	S3Bucket           string
	S3Region           string
	S3Endpoint         string
	S3AccessKey        string
	S3SecretKey        string
	S3PublicURL        string
	LogLevel           string
	LogFormat          string
	ReconcileInterval  time.Duration
}

// LoadDefaults populates Config with development defaults.
// NOTE: JWTSecret is left empty on purpose so Validate forces a real one.
func (c *Config) LoadDefaults() {
	c.Port = 8080
	c.DBPath = "data/feed.db"
	c.CORSOrigins = []string{"*"}
	c.UploadDir = "images"
	c.BlobBackend = BlobLocal
	c.S3Region = "us-east-1"
	c.LogLevel = "info"
	c.LogFormat = "text"
	c.ReconcileInterval = 10 * time.Minute
}

// Load builds a Config from defaults, an optional .env file, the environment
// and finally args (normally os.Args[1:]).
func Load(envFile string, args []string) (*Config, error) {
	cfg := &Config{}
	cfg.LoadDefaults()

	if err := loadDotEnv(envFile); err != nil {
		return nil, err
	}
	if err := cfg.applyEnv(lookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.parseFlags(args); err != nil {
		return nil, err
	}
	if cfg.GitHubCallbackURL == "" {
		cfg.GitHubCallbackURL = fmt.Sprintf("http://localhost:%d/auth/github/callback", cfg.Port)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports every problem at once.
func (c *Config) Validate() error {
	var errs []error
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("config: port %d out of range", c.Port))
	}
	if len(c.JWTSecret) < MinSecretLength {
		errs = append(errs, fmt.Errorf("config: JWT_SECRET must be at least %d characters", MinSecretLength))
	}
	switch c.BlobBackend {
	case BlobLocal:
		if c.UploadDir == "" {
			errs = append(errs, errors.New("config: UPLOAD_DIR is required for the local blob backend"))
		}
	case BlobS3:
		if c.S3Bucket == "" {
			errs = append(errs, errors.New("config: S3_BUCKET is required for the s3 blob backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("config: unknown blob backend %q", c.BlobBackend))
	}
	if c.DatabaseURL == "" && c.DBPath == "" {
		errs = append(errs, errors.New("config: one of DATABASE_URL or DB_PATH is required"))
	}
	if c.ReconcileInterval < 0 {
		errs = append(errs, errors.New("config: RECONCILE_INTERVAL must not be negative"))
	}
	return errors.Join(errs...)
}

// GitHubEnabled reports whether GitHub sign-in is configured.
func (c *Config) GitHubEnabled() bool {
	return c.GitHubClientID != "" && c.GitHubClientSecret != ""
}

// splitOrigins parses a comma-separated CORS_ORIGIN value.
func splitOrigins(raw string) []string {
	var out []string
	for _, o := range strings.Split(raw, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}
