// Package filenames implements the pure extract → clean → suffix pipeline
// used to turn an asset record into a local filename. Each stage is
// idempotent under repeated application, so the pipeline can be re-run
// safely when disambiguating against an existing file on disk.
package filenames

import (
	"encoding/base64"
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// EncodedFilename mirrors the wire shape of a CPLMaster's filenameEnc
// field: a typed, possibly-encoded value.
type EncodedFilename struct {
	Type  string // "STRING" or "ENCRYPTED_BYTES"
	Value string
}

// Extract decodes filenameEnc per its type, or synthesizes a name from the
// record id and item type when filenameEnc is absent.
func Extract(enc *EncodedFilename, recordID, itemType string) (string, error) {
	if enc != nil && enc.Value != "" {
		switch enc.Type {
		case "STRING":
			return enc.Value, nil
		case "ENCRYPTED_BYTES":
			raw, err := base64.StdEncoding.DecodeString(enc.Value)
			if err != nil {
				return "", fmt.Errorf("filenames: decoding encrypted filename: %w", err)
			}

			return string(raw), nil
		default:
			return "", fmt.Errorf("filenames: unknown filenameEnc type %q", enc.Type)
		}
	}

	return synthesize(recordID, itemType), nil
}

// synthesize builds a filename from the first 12 alphanumeric-normalized
// characters of the record id plus an extension derived from itemType.
func synthesize(recordID, itemType string) string {
	var b strings.Builder

	count := 0

	for _, r := range recordID {
		if count >= 12 {
			break
		}

		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			count++
		}
	}

	return b.String() + extensionForItemType(itemType)
}

// itemTypeExtensions maps a record or version's reported type to its
// canonical extension. Used both when filenameEnc is absent and to give
// each version (original, alternative, ...) the extension matching its
// own type rather than inheriting the primary asset's.
var itemTypeExtensions = map[string]string{
	"public.heic":               ".HEIC",
	"public.jpeg":               ".JPG",
	"public.png":                ".PNG",
	"com.apple.quicktime-movie": ".MOV",
	"public.mpeg-4":              ".MP4",
	"com.adobe.raw-image":        ".DNG",
	"com.canon.cr2-raw-image":    ".CR2",
	"com.canon.crw-raw-image":    ".CRW",
	"com.canon.cr3-raw-image":    ".CR3",
	"com.sony.arw-raw-image":     ".ARW",
	"com.fuji.raw-image":         ".RAF",
	"com.panasonic.rw2-raw-image": ".RW2",
	"com.nikon.nrw-raw-image":    ".NRW",
	"com.nikon.raw-image":        ".NEF",
	"com.pentax.raw-image":       ".PEF",
	"com.olympus.raw-image":      ".ORF",
	"com.olympus.or-raw-image":   ".ORF",
}

func extensionForItemType(itemType string) string {
	if ext, ok := itemTypeExtensions[itemType]; ok {
		return ext
	}

	return ".JPG"
}

// WithFileTypeExtension rewrites name's extension to match fileType's
// canonical extension, e.g. a RAW alternative keeps its own ".CR2"
// instead of inheriting the record's primary extension. name is
// returned unchanged when fileType has no known mapping.
func WithFileTypeExtension(name, fileType string) string {
	ext, ok := itemTypeExtensions[fileType]
	if !ok {
		return name
	}

	return swapExt(name, ext)
}

// reservedChars are the OS-reserved characters replaced by Clean, plus the
// NUL byte.
const reservedChars = "<>:\"/\\|?*\x00"

// Clean strips non-printable characters and replaces OS-reserved
// characters with "_", then applies Unicode NFC normalization so repeated
// application is a no-op (idempotent).
func Clean(name string) string {
	var b strings.Builder

	for _, r := range name {
		if !unicode.IsPrint(r) {
			continue
		}

		if strings.ContainsRune(reservedChars, r) {
			b.WriteRune('_')
			continue
		}

		b.WriteRune(r)
	}

	return norm.NFC.String(b.String())
}

// FileMatchPolicy selects how same-name/different-content collisions are
// disambiguated.
type FileMatchPolicy string

const (
	PolicyNameSizeDedup FileMatchPolicy = "name-size-dedup"
	PolicyNameOnly      FileMatchPolicy = "name-only"
)

// Suffix applies the configured file-match policy's disambiguation suffix.
// Under PolicyNameOnly it is a no-op; under PolicyNameSizeDedup it appends
// "-<size>" before the extension when size is non-zero, matching the
// on-disk dedup naming probeExistence expects. A name that already ends
// in that "-<size>" suffix is returned unchanged.
func Suffix(name string, policy FileMatchPolicy, size int64) string {
	if policy != PolicyNameSizeDedup || size <= 0 {
		return name
	}

	ext := extOf(name)
	base := strings.TrimSuffix(name, ext)
	suffix := fmt.Sprintf("-%d", size)

	if strings.HasSuffix(base, suffix) {
		return name
	}

	return base + suffix + ext
}

func extOf(name string) string {
	i := strings.LastIndex(name, ".")
	if i < 0 {
		return ""
	}

	return name[i:]
}

// LivePhotoMovieName derives a live photo's paired movie filename from its
// still-image filename, e.g. "IMG_1234.HEIC" → "IMG_1234_HEVC.MOV",
// "IMG_1234.JPG" → "IMG_1234.MOV".
func LivePhotoMovieName(stillName string) string {
	ext := extOf(stillName)
	base := strings.TrimSuffix(stillName, ext)

	if strings.EqualFold(ext, ".HEIC") {
		return base + "_HEVC.MOV"
	}

	return base + ".MOV"
}

// WithSizeSuffix appends a non-original size suffix ("-medium", "-thumb")
// to a live-photo movie filename.
func WithSizeSuffix(name, sizeLabel string) string {
	if sizeLabel == "" || sizeLabel == "original" {
		return name
	}

	ext := extOf(name)
	base := strings.TrimSuffix(name, ext)

	return fmt.Sprintf("%s-%s%s", base, sizeLabel, ext)
}

// RawAlignPolicy controls how RAW+JPEG pairs are renamed relative to each
// other.
type RawAlignPolicy string

const (
	RawAlignOff         RawAlignPolicy = "off"
	RawAlignAsOriginal  RawAlignPolicy = "as-original"
	RawAlignAsAlternate RawAlignPolicy = "as-alternative"
)

// AlignRaw swaps extensions between a RAW original and its JPEG
// alternate so that whichever the user considers canonical keeps the bare
// basename, per the configured policy.
func AlignRaw(rawName, jpegName string, policy RawAlignPolicy) (outRaw, outJPEG string) {
	switch policy {
	case RawAlignAsOriginal:
		return rawName, swapExt(jpegName, extOf(rawName))
	case RawAlignAsAlternate:
		return swapExt(rawName, extOf(jpegName)), jpegName
	default:
		return rawName, jpegName
	}
}

func swapExt(name, newExt string) string {
	ext := extOf(name)
	base := strings.TrimSuffix(name, ext)

	return base + newExt
}
