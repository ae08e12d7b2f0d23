package blob

import (
	"context"
	"log/slog"
)

// Cleaner reclaims blobs that no post references any more.
//
// BEST EFFORT:
// Deletion happens after the post record has already been written, so a
// failure here cannot undo anything. Errors (including "already gone") are
// logged at Warn and swallowed. The worst outcome is an orphaned file.
type Cleaner struct {
	store  Store
	logger *slog.Logger
}

func NewCleaner(store Store, logger *slog.Logger) *Cleaner {
	return &Cleaner{store: store, logger: logger}
}

// ReplaceIfChanged deletes oldPath when a post's image moved to newPath.
func (c *Cleaner) ReplaceIfChanged(ctx context.Context, oldPath, newPath string) {
	if oldPath == "" || oldPath == newPath {
		return
	}
	c.remove(ctx, oldPath, "replaced")
}

// OnDelete deletes the image of a post whose record was just removed.
func (c *Cleaner) OnDelete(ctx context.Context, path string) {
	if path == "" {
		return
	}
	c.remove(ctx, path, "post deleted")
}

// Discard removes a blob saved for a write that then failed.
func (c *Cleaner) Discard(ctx context.Context, path string) {
	if path == "" {
		return
	}
	c.remove(ctx, path, "write failed")
}

func (c *Cleaner) remove(ctx context.Context, path, reason string) {
	if err := c.store.Delete(ctx, path); err != nil {
		c.logger.Warn("blob cleanup failed",
			slog.String("path", path),
			slog.String("reason", reason),
			slog.String("error", err.Error()),
		)
		return
	}
	c.logger.Debug("blob removed",
		slog.String("path", path),
		slog.String("reason", reason),
	)
}
