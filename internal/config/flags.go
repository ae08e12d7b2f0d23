package config

import (
	"flag"
	"fmt"
	"io"
	"strings"
)

// parseFlags overlays command-line flags.
//
// Supported flags:
//
//	-p int      HTTP port
//	-d string   SQLite database path
//	-u string   PostgreSQL DSN (selects the Postgres store)
//	-s string   JWT secret
//	-o string   comma-separated CORS origins
//	-b string   blob backend: local or s3
func (c *Config) parseFlags(args []string) error {
	fs := flag.NewFlagSet("server", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.IntVar(&c.Port, "p", c.Port, "HTTP port")
	fs.StringVar(&c.DBPath, "d", c.DBPath, "SQLite database path")
	fs.StringVar(&c.DatabaseURL, "u", c.DatabaseURL, "PostgreSQL DSN")
	fs.StringVar(&c.JWTSecret, "s", c.JWTSecret, "JWT secret")
	origins := fs.String("o", strings.Join(c.CORSOrigins, ","), "allowed CORS origins")
	fs.StringVar(&c.BlobBackend, "b", c.BlobBackend, "blob backend (local or s3)")

	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("config: parsing flags: %w", err)
	}
	c.CORSOrigins = splitOrigins(*origins)
	return nil
}
