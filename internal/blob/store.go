// Package blob stores uploaded post images and reclaims the ones that are no
// longer referenced.
//
// TWO BACKENDS, ONE INTERFACE:
//   - LocalStore writes into UPLOAD_DIR and the server exposes it at /images/*
//   - S3Store puts objects into a bucket (AWS, MinIO, ...) and returns URLs
//
// Posts store whatever string Save returned. Delete takes that same string
// back, so a post never needs to know which backend produced its image.
package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/google/uuid"
)

// ErrInvalidPath is returned when a path does not belong to the store.
var ErrInvalidPath = errors.New("blob: invalid path")

// Store is the storage backend for uploaded images.
type Store interface {
	// Save writes r under a fresh unique name derived from filename and
	// returns the path a Post should reference.
	Save(ctx context.Context, filename string, r io.Reader) (string, error)
	// Delete removes the blob a previous Save returned.
	Delete(ctx context.Context, path string) error
}

// objectName builds a collision-free name that keeps the original
// extension, e.g. "3f2c...-photo.png".
func objectName(filename string) string {
	base := path.Base(strings.ReplaceAll(filename, "\\", "/"))
	base = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '-'
		}
	}, base)
	if base == "" || base == "." || base == "/" {
		base = "upload"
	}
	return fmt.Sprintf("%s-%s", uuid.New(), base)
}
