package syncdriver

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/icloud-photos/icloudpd-go/internal/photos"
)

// recentlyDeletedAlbum is the smart album AutoDeleter walks.
const recentlyDeletedAlbum = "Recently Deleted"

// sizesForAutoDelete enumerates the four size variants AutoDeleter checks
// for a local file to remove: original, medium, thumb, and the
// no-suffix variant.
var sizesForAutoDelete = []string{"original", "medium", "thumb", ""}

// runAutoDelete iterates the Recently Deleted album and removes any local
// file that this configuration would have created there.
func (d *Driver) runAutoDelete(ctx context.Context, opts Options) error {
	album, err := d.library.Album(ctx, recentlyDeletedAlbum)
	if err != nil {
		return fmt.Errorf("syncdriver: auto-delete: %w", err)
	}

	return album.Iterate(ctx, nil, func(asset *photos.Asset) bool {
		createdLocal := localCreatedAt(asset.CreatedAt, d.logger)
		datePath := formatFolderTemplate(opts.FolderTemplate, createdLocal)
		downloadDir := filepath.Join(opts.Directory, datePath)

		for _, sizeLabel := range sizesForAutoDelete {
			var filename string

			if sizeLabel == "" {
				filename = asset.Filename()
			} else if v, ok := asset.Version(sizeLabel); ok {
				filename = v.Filename
			} else {
				continue
			}

			path := filepath.Join(downloadDir, filename)

			if _, statErr := os.Stat(path); statErr != nil {
				continue
			}

			if opts.DryRun {
				d.logger.Info("dry run: would delete local copy of remotely-deleted asset", slog.String("path", path))
				continue
			}

			if err := os.Remove(path); err != nil {
				d.logger.Error("auto-delete: removing local file failed", slog.String("path", path), slog.String("error", err.Error()))
				continue
			}

			d.logger.Info("removed local copy of remotely-deleted asset", slog.String("path", path))
		}

		return true
	})
}

// deleteWithGuard enforces the keepICloudRecentDays guard before issuing a
// remote delete after a successful local download.
func (d *Driver) deleteWithGuard(ctx context.Context, asset *photos.Asset, createdLocal time.Time, opts Options) {
	if opts.KeepICloudRecentDays > 0 {
		age := time.Since(createdLocal)
		if age < time.Duration(opts.KeepICloudRecentDays)*24*time.Hour {
			d.logger.Info("skipping remote delete: asset within keep-recent-days guard", slog.String("asset", asset.ID))

			return
		}
	}

	if opts.DryRun {
		d.logger.Info("dry run: would delete remote asset", slog.String("asset", asset.ID))

		return
	}

	if d.deleter == nil {
		return
	}

	for attempt := 1; attempt <= MaxRetries; attempt++ {
		err := d.deleter.Delete(ctx, asset)
		if err == nil {
			return
		}

		if !d.sessionErrorRetry(ctx, err, attempt) {
			d.logger.Error("remote delete failed", slog.String("asset", asset.ID), slog.String("error", err.Error()))

			return
		}
	}
}
