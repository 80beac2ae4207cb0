// Package download implements the Downloader: byte-range resume, retry
// with re-authentication on session expiry, atomic rename, and mtime
// correction from the asset's server-reported creation date.
package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/icloud-photos/icloudpd-go/internal/photos"
)

// MaxRetries bounds the per-variant retry loop.
const MaxRetries = 5

// WaitSeconds is the base backoff unit: sleep WAIT_SECONDS*(attempt+1).
const WaitSeconds = 2 * time.Second

// chunkSize mirrors the reference implementation's 1024-byte copy chunks.
const chunkSize = 1024

// ReauthFunc re-authenticates the session in place; called when a
// download attempt's error indicates session expiry.
type ReauthFunc func(ctx context.Context) error

// Downloader fetches one Asset version to a local path.
type Downloader struct {
	httpClient *http.Client
	reauth     ReauthFunc
	logger     *slog.Logger
}

// New builds a Downloader. httpClient should NOT use the account's
// session cookie jar for pre-signed download URLs — the URL itself is
// never logged and carries its own auth.
func New(httpClient *http.Client, reauth ReauthFunc, logger *slog.Logger) *Downloader {
	return &Downloader{httpClient: httpClient, reauth: reauth, logger: logger}
}

// Result reports what Run actually did, for SyncDriver's exif/delete
// follow-up decisions.
type Result struct {
	Downloaded bool
	SkippedURL bool // "could not find URL for size" — non-retriable, no file written
}

// Run downloads version to targetPath, resuming a partial ".part" file
// when one is present.
// dryRun logs the intended action and returns success without touching
// the filesystem.
func (d *Downloader) Run(ctx context.Context, version photos.Version, targetPath string, createdAt time.Time, dryRun bool) (Result, error) {
	if dryRun {
		d.logger.Info("dry run: would download", slog.String("target", targetPath))

		return Result{Downloaded: true}, nil
	}

	if version.DownloadURL == "" {
		d.logger.Info("could not find URL for size", slog.String("target", targetPath))

		return Result{SkippedURL: true}, nil
	}

	if err := os.MkdirAll(filepath.Dir(targetPath), 0o755); err != nil {
		return Result{}, fmt.Errorf("download: creating parent directory: %w", err)
	}

	partPath := targetPath + ".part"

	for attempt := 0; attempt <= MaxRetries; attempt++ {
		ok, retriable, err := d.attempt(ctx, version, partPath)
		if ok {
			break
		}

		if err != nil && isSessionExpiry(err) {
			d.logger.Info("session expired mid-download, re-authenticating")

			if d.reauth != nil {
				if reauthErr := d.reauth(ctx); reauthErr != nil {
					return Result{}, fmt.Errorf("download: re-authentication failed: %w", reauthErr)
				}
			}

			if attempt == MaxRetries {
				return Result{}, fmt.Errorf("download: exhausted retries: %w", err)
			}

			// Like transport.Client.Do, re-auth retries count against the
			// same MaxRetries budget rather than a separate one.
			continue
		}

		if !retriable {
			return Result{}, err
		}

		if attempt == MaxRetries {
			return Result{}, fmt.Errorf("download: exhausted retries: %w", err)
		}

		sleepFor := WaitSeconds * time.Duration(attempt+1)

		select {
		case <-time.After(sleepFor):
		case <-ctx.Done():
			return Result{}, ctx.Err()
		}
	}

	if err := os.Rename(partPath, targetPath); err != nil {
		return Result{}, fmt.Errorf("download: renaming %s to %s: %w", partPath, targetPath, err)
	}

	setMtime(targetPath, createdAt, d.logger)

	return Result{Downloaded: true}, nil
}

// attempt performs one HTTP GET (with resume Range header if partPath
// already has bytes), streaming the response into partPath.
func (d *Downloader) attempt(ctx context.Context, version photos.Version, partPath string) (ok, retriable bool, err error) {
	var resumeFrom int64

	if info, statErr := os.Stat(partPath); statErr == nil {
		resumeFrom = info.Size()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, version.DownloadURL, nil)
	if err != nil {
		return false, false, err
	}

	if resumeFrom > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", resumeFrom))
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return false, true, fmt.Errorf("download: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusPartialContent {
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			return false, true, fmt.Errorf("download: server returned %d", resp.StatusCode)
		}

		return false, false, fmt.Errorf("download: server returned %d", resp.StatusCode)
	}

	flags := os.O_CREATE | os.O_WRONLY

	if resp.StatusCode == http.StatusPartialContent {
		flags |= os.O_APPEND
	} else {
		// Server ignored the Range header (200, not 206): truncate and
		// restart from the beginning.
		flags |= os.O_TRUNC
		resumeFrom = 0
	}

	f, err := os.OpenFile(partPath, flags, 0o644)
	if err != nil {
		return false, false, fmt.Errorf("download: opening part file: %w", err)
	}
	defer f.Close()

	buf := make([]byte, chunkSize)

	if _, copyErr := io.CopyBuffer(f, resp.Body, buf); copyErr != nil {
		d.logger.Error("write failed, aborting variant", slog.String("error", copyErr.Error()))

		return false, false, fmt.Errorf("download: writing part file: %w", copyErr)
	}

	return true, false, nil
}

func isSessionExpiry(err error) bool {
	return err != nil && strings.Contains(err.Error(), "Invalid global session")
}

func setMtime(path string, createdAt time.Time, logger *slog.Logger) {
	if createdAt.IsZero() {
		return
	}

	local := createdAt.Local()
	if err := os.Chtimes(path, local, local); err != nil {
		logger.Debug("skipping mtime update", slog.String("path", path), slog.String("error", err.Error()))
	}
}

// ErrNotFound is a sentinel for a missing/empty version response.
var ErrNotFound = errors.New("download: version has no downloadable URL")
