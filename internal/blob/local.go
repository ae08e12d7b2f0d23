package blob

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// LocalStore keeps blobs as files in a single directory.
//
// Saved paths look like "images/<name>": the prefix is the URL path the
// server mounts the directory on, so the value works as a relative image URL.
type LocalStore struct {
	dir    string
	prefix string
}

var _ Store = (*LocalStore)(nil)

// NewLocalStore creates dir if needed. prefix is the public path segment,
// normally "images".
func NewLocalStore(dir, prefix string) (*LocalStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("blob: creating upload dir %s: %w", dir, err)
	}
	return &LocalStore{dir: dir, prefix: strings.Trim(prefix, "/")}, nil
}

// Dir is the directory the server serves read-only.
func (s *LocalStore) Dir() string {
	return s.dir
}

// Prefix is the URL path segment saved paths start with.
func (s *LocalStore) Prefix() string {
	return s.prefix
}

func (s *LocalStore) Save(ctx context.Context, filename string, r io.Reader) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	name := objectName(filename)
	f, err := os.OpenFile(filepath.Join(s.dir, name), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("blob: creating %s: %w", name, err)
	}

	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", fmt.Errorf("blob: writing %s: %w", name, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("blob: closing %s: %w", name, err)
	}

	return path.Join(s.prefix, name), nil
}

// Delete removes the file behind p. Only direct children of the upload
// directory are accepted, so "images/../../etc/passwd" is rejected.
func (s *LocalStore) Delete(ctx context.Context, p string) error {
	name, err := s.resolve(p)
	if err != nil {
		return err
	}
	if err := os.Remove(filepath.Join(s.dir, name)); err != nil {
		return fmt.Errorf("blob: removing %s: %w", p, err)
	}
	return nil
}

func (s *LocalStore) resolve(p string) (string, error) {
	p = strings.TrimPrefix(filepath.ToSlash(p), "/")
	rest, ok := strings.CutPrefix(p, s.prefix+"/")
	if !ok || rest == "" || strings.Contains(rest, "/") || rest == "." || rest == ".." {
		return "", fmt.Errorf("%w: %q", ErrInvalidPath, p)
	}
	return rest, nil
}
