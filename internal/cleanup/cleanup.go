// Package cleanup removes leftovers of interrupted downloads.
package cleanup

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/italolelis/asset_harvester/internal/logctx"
	"github.com/italolelis/asset_harvester/internal/storage"
)

// DeleteStalePartials removes partial download files under root whose
// modification time is older than olderThan, and returns how many were
// deleted. A missing root is not an error.
func DeleteStalePartials(ctx context.Context, root string, olderThan time.Duration) (int, error) {
	logger := logctx.LoggerFromContext(ctx)
	now := time.Now()
	deleted := 0

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}

			return err
		}

		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		if d.IsDir() || !strings.HasSuffix(d.Name(), storage.PartialSuffix) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil // already deleted
			}

			return err
		}

		if now.Sub(info.ModTime()) <= olderThan {
			return nil
		}

		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			logger.Error("failed to delete stale partial file", "file", path, "err", err)

			return &storage.StorageError{Op: "remove", Path: path, Err: err}
		}

		logger.Info("deleted stale partial file", "file", path)

		deleted++

		return nil
	})

	return deleted, err
}
