package syncdriver

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestProbeExistenceExactSizeMatch(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "photo.jpg")
	require.NoError(t, os.WriteFile(target, []byte("12345"), 0o644))

	exists, effective := probeExistence(target, 5)
	assert.True(t, exists)
	assert.Equal(t, target, effective)
}

func TestProbeExistenceMismatchWritesSizeSuffixedTarget(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "photo.jpg")
	require.NoError(t, os.WriteFile(target, []byte("1"), 0o644))

	exists, effective := probeExistence(target, 1884695)
	assert.False(t, exists)
	assert.Equal(t, filepath.Join(dir, "photo-1884695.jpg"), effective)
}

func TestProbeExistenceLegacyOriginalSuffix(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "photo.jpg")
	legacy := filepath.Join(dir, "photo-original.jpg")
	require.NoError(t, os.WriteFile(legacy, []byte("12345"), 0o644))

	exists, effective := probeExistence(target, 5)
	assert.True(t, exists)
	assert.Equal(t, legacy, effective)
}

func TestProbeExistenceNoFile(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "photo.jpg")

	exists, effective := probeExistence(target, 5)
	assert.False(t, exists)
	assert.Equal(t, target, effective)
}

func TestFormatFolderTemplateNone(t *testing.T) {
	assert.Equal(t, "", formatFolderTemplate("none", time.Now()))
	assert.Equal(t, "", formatFolderTemplate("", time.Now()))
}

func TestFormatFolderTemplateLayout(t *testing.T) {
	d := time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, "2024/03", formatFolderTemplate("2006/01", d))
}

func TestLocalCreatedAtEpochFallback(t *testing.T) {
	logger := discardLogger()

	result := localCreatedAt(time.Time{}, logger)
	assert.Equal(t, time.Unix(0, 0).Local(), result)
}

func TestIsJPEGLike(t *testing.T) {
	assert.True(t, isJPEGLike("/a/b/IMG_1234.JPG"))
	assert.True(t, isJPEGLike("/a/b/img.jpeg"))
	assert.False(t, isJPEGLike("/a/b/img.HEIC"))
}
