// Package syncdriver implements the central sync state machine: one
// invocation performs one full pass over a selected album, downloading
// each requested size variant, applying dedup and disambiguation rules,
// and optionally deleting remote originals after a successful local
// capture.
package syncdriver

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/icloud-photos/icloudpd-go/internal/download"
	"github.com/icloud-photos/icloudpd-go/internal/filenames"
	"github.com/icloud-photos/icloudpd-go/internal/photos"
	"github.com/icloud-photos/icloudpd-go/internal/transport"
)

// MaxRetries bounds the session-error handler's retry loop.
const MaxRetries = 5

// WaitSeconds is the base unit for the session-error handler's backoff.
const WaitSeconds = 2 * time.Second

// Options configures one SyncDriver pass.
type Options struct {
	Directory            string
	Sizes                []string
	ForceSize            bool
	LivePhotoSize        string
	SkipVideos           bool
	SkipLivePhotos       bool
	SkipPhotos           bool
	Recent               int // 0 means unset
	UntilFound           int // 0 means disabled
	SkipCreatedBefore    time.Time
	SkipCreatedAfter     time.Time
	FolderTemplate       string // Go time-layout-style template, or "none"
	FileMatchPolicy      filenames.FileMatchPolicy
	DeleteAfterDownload  bool
	AutoDelete           bool
	KeepICloudRecentDays int
	OnlyPrintFilenames   bool
	DryRun               bool
	SetExifDatetime      bool
}

// Progress is the mutable, externally observable run state.
type Progress struct {
	Phase            string
	CheckedCount     int
	TotalCount       int
	ToDownloadCount  int
	DownloadedCount  int
	LastMessage      string
}

// ExifWriter sets an EXIF DateTimeOriginal tag on a JPEG-like file.
type ExifWriter interface {
	HasDatetime(path string) (bool, error)
	WriteDatetime(path string, t time.Time) error
}

// Deleter issues the records/modify "soft delete" call for one asset.
type Deleter interface {
	Delete(ctx context.Context, asset *photos.Asset) error
}

// DownloadRecorder persists a successful download to the ledger. The
// Driver only writes to it: whether an asset is already present is
// decided by the filesystem-stat check (probeExistence) alone, so an
// asset whose local copy was moved or deleted is downloaded again.
type DownloadRecorder interface {
	Record(ctx context.Context, account, album, assetID, sizeLabel, path string, byteSize, downloadedAtUnix int64) error
}

// Driver runs one sync pass over a Library/Album.
type Driver struct {
	client     *transport.Client
	library    *photos.Library
	deleter    Deleter
	exif       ExifWriter
	logger     *slog.Logger
	progress   *Progress
	cancel     func() bool // returns true if the WatchLoop requested stop
	reauthFunc func(ctx context.Context) error

	recorder        DownloadRecorder
	recorderAccount string
	currentAlbum    string
}

// New builds a Driver. cancel is polled at each iteration boundary; pass
// a func that always returns false outside WatchLoop mode.
func New(client *transport.Client, library *photos.Library, deleter Deleter, exif ExifWriter, logger *slog.Logger, cancel func() bool) *Driver {
	if cancel == nil {
		cancel = func() bool { return false }
	}

	return &Driver{client: client, library: library, deleter: deleter, exif: exif, logger: logger, progress: &Progress{}, cancel: cancel}
}

// Progress returns the live progress struct for external status reporters.
func (d *Driver) Progress() *Progress { return d.progress }

// SetRecorder installs the download ledger. Every successful download
// during subsequent Run calls is recorded against account.
func (d *Driver) SetRecorder(r DownloadRecorder, account string) {
	d.recorder = r
	d.recorderAccount = account
}

// Run executes one full sync pass over albumName.
func (d *Driver) Run(ctx context.Context, albumName string, opts Options) error {
	d.currentAlbum = albumName

	album, err := d.library.Album(ctx, albumName)
	if err != nil {
		return fmt.Errorf("syncdriver: %w", err)
	}

	totalCount, err := album.Count(ctx)
	if err != nil {
		return fmt.Errorf("syncdriver: counting album: %w", err)
	}

	if opts.Recent > 0 {
		totalCount = opts.Recent
	}

	d.progress.Phase = "downloading"
	d.progress.TotalCount = totalCount
	d.progress.ToDownloadCount = 0
	d.progress.DownloadedCount = 0

	counter := 0
	yielded := 0

	handler := func(err error, retries int) bool {
		return d.sessionErrorRetry(ctx, err, retries)
	}

	iterErr := album.Iterate(ctx, handler, func(asset *photos.Asset) bool {
		if d.cancel() {
			return false
		}

		if opts.Recent > 0 && yielded >= opts.Recent {
			return false
		}

		yielded++
		d.progress.CheckedCount++

		if d.shouldSkip(asset, opts) {
			return true
		}

		createdLocal := localCreatedAt(asset.CreatedAt, d.logger)

		if !opts.SkipCreatedBefore.IsZero() && createdLocal.Before(opts.SkipCreatedBefore) {
			return true
		}

		if !opts.SkipCreatedAfter.IsZero() && !createdLocal.Before(opts.SkipCreatedAfter) {
			return true
		}

		datePath := formatFolderTemplate(opts.FolderTemplate, createdLocal)
		downloadDir := filepath.Join(opts.Directory, datePath)

		downloaded, runErr := d.processAsset(ctx, asset, downloadDir, createdLocal, opts, &counter)
		if runErr != nil {
			d.logger.Error("processing asset failed", slog.String("asset", asset.ID), slog.String("error", runErr.Error()))

			return true
		}

		if downloaded {
			d.progress.DownloadedCount++
			d.progress.LastMessage = asset.Filename()
		}

		if downloaded && opts.DeleteAfterDownload {
			d.deleteWithGuard(ctx, asset, createdLocal, opts)
		}

		if opts.UntilFound > 0 && counter >= opts.UntilFound {
			d.logger.Info("found consecutive existing, exiting", slog.Int("count", counter))

			return false
		}

		return true
	})
	if iterErr != nil {
		return fmt.Errorf("syncdriver: iterating album: %w", iterErr)
	}

	if opts.AutoDelete {
		if err := d.runAutoDelete(ctx, opts); err != nil {
			d.logger.Error("auto-delete pass failed", slog.String("error", err.Error()))
		}
	}

	return nil
}

// shouldSkip applies the terminal skip filters (skipVideos, skipPhotos).
func (d *Driver) shouldSkip(asset *photos.Asset, opts Options) bool {
	if asset.IsVideo() && opts.SkipVideos {
		d.logger.Debug("skipping video", slog.String("asset", asset.ID))

		return true
	}

	if !asset.IsVideo() && opts.SkipPhotos {
		d.logger.Debug("skipping photo", slog.String("asset", asset.ID))

		return true
	}

	return false
}

// processAsset downloads every requested size for one asset, returning
// whether anything was actually downloaded.
func (d *Driver) processAsset(ctx context.Context, asset *photos.Asset, downloadDir string, createdLocal time.Time, opts Options, counter *int) (bool, error) {
	downloaded := false

	for _, size := range opts.Sizes {
		version, ok := asset.Version(size)

		if !ok {
			if opts.ForceSize {
				d.logger.Debug("size unavailable and force-size set, skipping", slog.String("asset", asset.ID), slog.String("size", size))
				continue
			}

			version, ok = asset.Version("original")

			if !ok {
				continue
			}
		}

		targetName := filenames.Suffix(version.Filename, opts.FileMatchPolicy, 0)
		target := filepath.Join(downloadDir, targetName)

		ok, err := d.downloadOneTarget(ctx, asset, version, size, target, createdLocal, opts, counter)
		if err != nil {
			return downloaded, err
		}

		downloaded = downloaded || ok

		if asset.HasLivePhoto() && !opts.SkipLivePhotos {
			lpVersion, ok := asset.Version(opts.LivePhotoSize)
			if ok {
				lpTarget := filepath.Join(downloadDir, lpVersion.Filename)

				lpOK, err := d.downloadOneTarget(ctx, asset, lpVersion, opts.LivePhotoSize, lpTarget, createdLocal, opts, counter)
				if err != nil {
					return downloaded, err
				}

				downloaded = downloaded || lpOK
			}
		}
	}

	return downloaded, nil
}

func (d *Driver) downloadOneTarget(ctx context.Context, asset *photos.Asset, version photos.Version, sizeLabel, target string, createdLocal time.Time, opts Options, counter *int) (bool, error) {
	exists, rewrittenTarget := probeExistence(target, version.Size)
	if rewrittenTarget != target {
		target = rewrittenTarget
		exists, _ = probeExistence(target, version.Size)
	}

	if exists {
		*counter++
		d.logger.Debug("already exists", slog.String("target", target))

		return false, nil
	}

	*counter = 0
	d.progress.ToDownloadCount++

	if opts.OnlyPrintFilenames {
		fmt.Println(target) //nolint:forbidigo // --only-print-filenames is a stdout-enumeration mode

		return false, nil
	}

	dl := download.New(d.httpClientForDownload(), d.reauthenticate, d.logger)

	result, err := dl.Run(ctx, version, target, createdLocal, opts.DryRun)
	if err != nil {
		return false, err
	}

	if result.Downloaded && opts.SetExifDatetime && d.exif != nil && isJPEGLike(target) {
		has, err := d.exif.HasDatetime(target)
		if err == nil && !has {
			if err := d.exif.WriteDatetime(target, createdLocal); err != nil {
				d.logger.Debug("writing exif datetime failed", slog.String("target", target), slog.String("error", err.Error()))
			}
		}
	}

	if result.Downloaded && d.recorder != nil {
		if err := d.recorder.Record(ctx, d.recorderAccount, d.currentAlbum, asset.ID, sizeLabel, target, version.Size, time.Now().Unix()); err != nil {
			d.logger.Debug("recording download to ledger failed", slog.String("target", target), slog.String("error", err.Error()))
		}
	}

	return result.Downloaded, nil
}

// probeExistence implements the local dedup rule: exact-size match,
// legacy "-original" suffix match, or existing size-suffixed variant. If a
// same-named file exists with a mismatched size, returns the
// size-suffixed form as the new target so old and new copies coexist.
func probeExistence(target string, size int64) (exists bool, effectiveTarget string) {
	ext := filepath.Ext(target)
	base := strings.TrimSuffix(target, ext)

	info, statErr := os.Stat(target)
	if statErr == nil && (size <= 0 || info.Size() == size) {
		return true, target
	}

	legacy := base + "-original" + ext
	if info2, err := os.Stat(legacy); err == nil && (size <= 0 || info2.Size() == size) {
		return true, legacy
	}

	if statErr == nil {
		suffixed := fmt.Sprintf("%s-%d%s", base, size, ext)
		if info3, err := os.Stat(suffixed); err == nil && (size <= 0 || info3.Size() == size) {
			return true, suffixed
		}

		return false, suffixed
	}

	return false, target
}

func isJPEGLike(path string) bool {
	lower := strings.ToLower(path)

	return strings.HasSuffix(lower, ".jpg") || strings.HasSuffix(lower, ".jpeg")
}

// localCreatedAt converts an asset's UTC createdAt to local time, falling
// back to the Unix epoch on conversion error.
func localCreatedAt(t time.Time, logger *slog.Logger) time.Time {
	if t.IsZero() {
		logger.Warn("asset has no createdAt, using epoch fallback")

		return time.Unix(0, 0).Local()
	}

	return t.Local()
}

// formatFolderTemplate renders a Go-time-layout folder template; "none"
// yields no subdirectory.
func formatFolderTemplate(template string, t time.Time) string {
	if template == "" || template == "none" {
		return ""
	}

	return t.Format(template)
}

// sessionErrorRetry implements the session-error handler shared by
// Album.Iterate's error callback: re-authenticate on "Invalid global
// session", backoff-and-retry on "INTERNAL_ERROR".
func (d *Driver) sessionErrorRetry(ctx context.Context, err error, retries int) bool {
	if retries > MaxRetries {
		return false
	}

	msg := err.Error()

	if strings.Contains(msg, "Invalid global session") {
		d.logger.Info("session expired during pagination, re-authenticating")

		if rerr := d.reauthenticate(ctx); rerr != nil {
			d.logger.Error("re-authentication failed", slog.String("error", rerr.Error()))

			return false
		}

		return true
	}

	if strings.Contains(msg, "INTERNAL_ERROR") {
		sleepFor := WaitSeconds * time.Duration(retries)

		select {
		case <-time.After(sleepFor):
			return true
		case <-ctx.Done():
			return false
		}
	}

	return false
}

// reauthenticate is a placeholder hook wired by the CLI layer via
// SetReauthenticator; the transport.Client's own ReauthFunc handles the
// common case, this exists for download/pagination call sites that don't
// go through transport.Client.Do.
func (d *Driver) reauthenticate(ctx context.Context) error {
	if d.reauthFunc != nil {
		return d.reauthFunc(ctx)
	}

	return fmt.Errorf("syncdriver: no reauthenticate function configured")
}

// SetReauthenticator installs the callback used by sessionErrorRetry and
// the Downloader's re-auth path.
func (d *Driver) SetReauthenticator(f func(ctx context.Context) error) {
	d.reauthFunc = f
}

func (d *Driver) httpClientForDownload() *http.Client {
	return &http.Client{}
}
