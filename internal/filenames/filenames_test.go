package filenames

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractStringType(t *testing.T) {
	name, err := Extract(&EncodedFilename{Type: "STRING", Value: "IMG_1234.HEIC"}, "AAAA", "public.heic")
	require.NoError(t, err)
	assert.Equal(t, "IMG_1234.HEIC", name)
}

func TestExtractEncryptedBytes(t *testing.T) {
	encoded := base64.StdEncoding.EncodeToString([]byte("IMG_5678.JPG"))

	name, err := Extract(&EncodedFilename{Type: "ENCRYPTED_BYTES", Value: encoded}, "BBBB", "public.jpeg")
	require.NoError(t, err)
	assert.Equal(t, "IMG_5678.JPG", name)
}

func TestExtractSynthesizesWhenAbsent(t *testing.T) {
	name, err := Extract(nil, "AbC123-def456-ghi789", "public.heic")
	require.NoError(t, err)
	assert.Equal(t, "AbC123def456.HEIC", name)
}

func TestCleanReplacesReservedChars(t *testing.T) {
	cleaned := Clean(`weird<name>:"file/path\|?*.jpg`)
	assert.NotContains(t, cleaned, "<")
	assert.NotContains(t, cleaned, "/")
	assert.Contains(t, cleaned, "_")
}

func TestCleanIsIdempotent(t *testing.T) {
	once := Clean("IMG_1234<test>.jpg")
	twice := Clean(once)
	assert.Equal(t, once, twice)
}

func TestSuffixNameSizeDedup(t *testing.T) {
	out := Suffix("IMG_1234.JPG", PolicyNameSizeDedup, 204800)
	assert.Equal(t, "IMG_1234-204800.JPG", out)
}

func TestSuffixNameOnlyIsNoop(t *testing.T) {
	out := Suffix("IMG_1234.JPG", PolicyNameOnly, 204800)
	assert.Equal(t, "IMG_1234.JPG", out)
}

func TestLivePhotoMovieName(t *testing.T) {
	assert.Equal(t, "IMG_1234_HEVC.MOV", LivePhotoMovieName("IMG_1234.HEIC"))
	assert.Equal(t, "IMG_1234.MOV", LivePhotoMovieName("IMG_1234.JPG"))
}

func TestWithSizeSuffix(t *testing.T) {
	assert.Equal(t, "IMG_1234_HEVC-medium.MOV", WithSizeSuffix("IMG_1234_HEVC.MOV", "medium"))
	assert.Equal(t, "IMG_1234_HEVC.MOV", WithSizeSuffix("IMG_1234_HEVC.MOV", "original"))
}

func TestAlignRaw(t *testing.T) {
	raw, jpeg := AlignRaw("IMG_1234.CR2", "IMG_1234.JPG", RawAlignAsOriginal)
	assert.Equal(t, "IMG_1234.CR2", raw)
	assert.Equal(t, "IMG_1234.CR2", jpeg)

	raw, jpeg = AlignRaw("IMG_1234.CR2", "IMG_1234.JPG", RawAlignOff)
	assert.Equal(t, "IMG_1234.CR2", raw)
	assert.Equal(t, "IMG_1234.JPG", jpeg)
}
