package exifmeta

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// minimalJPEG is a 1x1 JPEG with no EXIF segment.
var minimalJPEG = []byte{
	0xFF, 0xD8, 0xFF, 0xDB, 0x00, 0x04, 0x00, 0x01, 0xFF, 0xD9,
}

func TestHasDatetimeFalseWhenNoExif(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "photo.jpg")
	require.NoError(t, os.WriteFile(path, minimalJPEG, 0o644))

	has, err := HasDatetime(path)
	require.NoError(t, err)
	assert.False(t, has)
}

func TestWriteDatetimeRejectsNonJPEG(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "not-a-photo.jpg")
	require.NoError(t, os.WriteFile(path, []byte("not a jpeg"), 0o644))

	err := WriteDatetime(path, time.Now())
	assert.Error(t, err)
}

func TestWriteDatetimePreservesJPEGMarker(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "photo.jpg")
	require.NoError(t, os.WriteFile(path, minimalJPEG, 0o644))

	err := WriteDatetime(path, time.Date(2023, 5, 6, 7, 8, 9, 0, time.UTC))
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, byte(0xFF), data[0])
	assert.Equal(t, byte(0xD8), data[1])
	assert.Equal(t, byte(0xFF), data[2])
	assert.Equal(t, byte(0xE1), data[3])
}
