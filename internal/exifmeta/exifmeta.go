// Package exifmeta implements the EXIF read/write hook SyncDriver calls
// when --set-exif-datetime is set and a downloaded JPEG lacks a
// DateTimeOriginal tag.
//
// Reading uses rwcarlsen/goexif, the only maintained EXIF library in the
// example corpus. goexif is read-only; no example repo imports a
// write-capable EXIF library, so WriteDatetime is a minimal hand-rolled
// APP1/Exif segment writer built on the standard library.
package exifmeta

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"
	"time"

	"github.com/rwcarlsen/goexif/exif"
)

// dateTimeLayout matches EXIF's DateTimeOriginal ASCII format.
const dateTimeLayout = "2006:01:02 15:04:05"

// Writer adapts the package-level HasDatetime/WriteDatetime functions to
// the syncdriver.ExifWriter interface.
type Writer struct{}

func (Writer) HasDatetime(path string) (bool, error)        { return HasDatetime(path) }
func (Writer) WriteDatetime(path string, t time.Time) error { return WriteDatetime(path, t) }

// HasDatetime reports whether path's EXIF data already carries a
// DateTimeOriginal tag.
func HasDatetime(path string) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, fmt.Errorf("exifmeta: opening %s: %w", path, err)
	}
	defer f.Close()

	x, err := exif.Decode(f)
	if err != nil {
		// No EXIF segment at all is not an error for this check.
		return false, nil //nolint:nilerr
	}

	_, err = x.Get(exif.DateTimeOriginal)

	return err == nil, nil
}

// WriteDatetime injects a minimal APP1/Exif segment carrying
// DateTimeOriginal into a JPEG file that has none. It does not attempt to
// merge with or preserve any pre-existing EXIF segment; callers only
// invoke it after HasDatetime reports false.
func WriteDatetime(path string, t time.Time) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("exifmeta: reading %s: %w", path, err)
	}

	if len(data) < 2 || data[0] != 0xFF || data[1] != 0xD8 {
		return fmt.Errorf("exifmeta: %s is not a JPEG file", path)
	}

	segment := buildExifSegment(t)

	out := make([]byte, 0, len(data)+len(segment))
	out = append(out, data[:2]...) // SOI marker
	out = append(out, segment...)
	out = append(out, data[2:]...)

	tmp := path + ".exiftmp"
	if err := os.WriteFile(tmp, out, 0o644); err != nil {
		return fmt.Errorf("exifmeta: writing temp file: %w", err)
	}

	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("exifmeta: renaming temp file: %w", err)
	}

	return nil
}

// buildExifSegment constructs a minimal big-endian (Motorola byte order)
// TIFF/Exif APP1 segment with a single DateTimeOriginal IFD entry.
func buildExifSegment(t time.Time) []byte {
	dateStr := t.Format(dateTimeLayout) + "\x00"

	var tiff bytes.Buffer

	tiff.WriteString("MM") // big-endian
	binary.Write(&tiff, binary.BigEndian, uint16(42))
	binary.Write(&tiff, binary.BigEndian, uint32(8)) // offset to IFD0

	const dateTimeOriginalTag = 0x9003

	ifdEntryCount := uint16(1)
	binary.Write(&tiff, binary.BigEndian, ifdEntryCount)
	binary.Write(&tiff, binary.BigEndian, uint16(dateTimeOriginalTag))
	binary.Write(&tiff, binary.BigEndian, uint16(2)) // type ASCII
	binary.Write(&tiff, binary.BigEndian, uint32(len(dateStr)))

	valueOffset := uint32(8 + 2 + 12 + 4) // header + count + one entry + next-IFD offset
	binary.Write(&tiff, binary.BigEndian, valueOffset)
	binary.Write(&tiff, binary.BigEndian, uint32(0)) // next IFD offset
	tiff.WriteString(dateStr)

	var segment bytes.Buffer
	segment.WriteByte(0xFF)
	segment.WriteByte(0xE1) // APP1 marker

	payload := append([]byte("Exif\x00\x00"), tiff.Bytes()...)
	length := uint16(len(payload) + 2)

	binary.Write(&segment, binary.BigEndian, length)
	segment.Write(payload)

	return segment.Bytes()
}
