package heicconvert

import (
	"fmt"
	"image"
	"image/jpeg"
	"os"

	_ "golang.org/x/image/bmp"  // register BMP decoding
	_ "golang.org/x/image/tiff" // register TIFF decoding
	_ "golang.org/x/image/webp" // register WebP decoding
)

// ToJPEGFallback decodes srcPath with the standard image package extended
// by golang.org/x/image's format registrations and re-encodes it as JPEG.
// It does not handle HEIC (no pure-Go HEIC decoder exists in the
// example corpus); it covers the BMP/TIFF/WebP renditions THE SERVICE
// occasionally serves for older asset formats when libvips is
// unavailable on the host.
func ToJPEGFallback(srcPath, dstPath string, quality int) error {
	f, err := os.Open(srcPath)
	if err != nil {
		return fmt.Errorf("heicconvert: opening %s: %w", srcPath, err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return fmt.Errorf("heicconvert: decoding %s: %w", srcPath, err)
	}

	out, err := os.Create(dstPath)
	if err != nil {
		return fmt.Errorf("heicconvert: creating %s: %w", dstPath, err)
	}
	defer out.Close()

	if err := jpeg.Encode(out, img, &jpeg.Options{Quality: quality}); err != nil {
		return fmt.Errorf("heicconvert: encoding jpeg: %w", err)
	}

	return nil
}
