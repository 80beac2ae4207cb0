package download

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/icloud-photos/icloudpd-go/internal/photos"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRunDownloadsFreshFile(t *testing.T) {
	const content = "hello world"

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(content))
	}))
	defer srv.Close()

	dir := t.TempDir()
	target := filepath.Join(dir, "photo.jpg")

	d := New(&http.Client{}, nil, discardLogger())

	result, err := d.Run(context.Background(), photos.Version{DownloadURL: srv.URL}, target, time.Now(), false)
	require.NoError(t, err)
	assert.True(t, result.Downloaded)

	data, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, content, string(data))
}

func TestRunResumesFromPartialFile(t *testing.T) {
	const full = "0123456789"

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rangeHeader := r.Header.Get("Range")
		if rangeHeader == "" {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(full))

			return
		}

		w.Header().Set("Content-Range", "bytes 5-9/10")
		w.WriteHeader(http.StatusPartialContent)
		w.Write([]byte(full[5:]))
	}))
	defer srv.Close()

	dir := t.TempDir()
	target := filepath.Join(dir, "photo.jpg")

	require.NoError(t, os.WriteFile(target+".part", []byte(full[:5]), 0o644))

	d := New(&http.Client{}, nil, discardLogger())

	result, err := d.Run(context.Background(), photos.Version{DownloadURL: srv.URL}, target, time.Time{}, false)
	require.NoError(t, err)
	assert.True(t, result.Downloaded)

	data, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, full, string(data))
}

func TestRunSkipsOnMissingURL(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "photo.jpg")

	d := New(&http.Client{}, nil, discardLogger())

	result, err := d.Run(context.Background(), photos.Version{}, target, time.Now(), false)
	require.NoError(t, err)
	assert.True(t, result.SkippedURL)

	_, statErr := os.Stat(target)
	assert.True(t, os.IsNotExist(statErr))
}

func TestRunDryRunDoesNotWriteFile(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "photo.jpg")

	d := New(&http.Client{}, nil, discardLogger())

	result, err := d.Run(context.Background(), photos.Version{DownloadURL: "https://example.com/x"}, target, time.Now(), true)
	require.NoError(t, err)
	assert.True(t, result.Downloaded)

	_, statErr := os.Stat(target)
	assert.True(t, os.IsNotExist(statErr))
}

func TestRunSetsModTimeFromCreatedAt(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("x"))
	}))
	defer srv.Close()

	dir := t.TempDir()
	target := filepath.Join(dir, "photo.jpg")
	created := time.Date(2020, 1, 2, 3, 4, 5, 0, time.UTC)

	d := New(&http.Client{}, nil, discardLogger())

	_, err := d.Run(context.Background(), photos.Version{DownloadURL: srv.URL}, target, created, false)
	require.NoError(t, err)

	info, err := os.Stat(target)
	require.NoError(t, err)
	assert.WithinDuration(t, created.Local(), info.ModTime(), time.Second)
}
