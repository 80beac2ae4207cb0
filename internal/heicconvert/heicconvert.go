// Package heicconvert converts a downloaded HEIC photo to JPEG on demand:
// THE SERVICE serves "adjusted"/"alternative" sizes as HEIC on some
// accounts, and several downstream viewers only accept JPEG.
//
// ToJPEG converts through davidbyttow/govips, which wraps libvips; it has
// no fallback of its own and returns an error when libvips cannot do the
// conversion. ToJPEGFallback (fallback.go) is a separate function that
// re-encodes BMP/TIFF/WebP input via golang.org/x/image; it does not
// decode HEIC.
package heicconvert

import (
	"fmt"
	"os"

	"github.com/davidbyttow/govips/v2/vips"
)

// initialized guards vips.Startup, which must run exactly once per
// process and is not safe to call concurrently with itself.
var initialized bool

// EnsureInitialized starts libvips if it hasn't been already. Callers
// should invoke this once at process startup when HEIC conversion is
// enabled, and call Shutdown before exit.
func EnsureInitialized() {
	if initialized {
		return
	}

	vips.Startup(nil)

	initialized = true
}

// Shutdown releases libvips resources. Safe to call even if
// EnsureInitialized was never called.
func Shutdown() {
	if initialized {
		vips.Shutdown()

		initialized = false
	}
}

// ToJPEG reads a HEIC file at srcPath and writes a JPEG encoding of it to
// dstPath at the given quality (1-100).
func ToJPEG(srcPath, dstPath string, quality int) error {
	EnsureInitialized()

	img, err := vips.NewImageFromFile(srcPath)
	if err != nil {
		return fmt.Errorf("heicconvert: loading %s: %w", srcPath, err)
	}
	defer img.Close()

	params := vips.NewJpegExportParams()
	params.Quality = quality

	buf, _, err := img.ExportJpeg(params)
	if err != nil {
		return fmt.Errorf("heicconvert: encoding jpeg: %w", err)
	}

	if err := os.WriteFile(dstPath, buf, 0o644); err != nil {
		return fmt.Errorf("heicconvert: writing %s: %w", dstPath, err)
	}

	return nil
}
