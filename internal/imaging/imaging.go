// Package imaging normalizes recipe images.
//
// Every stored image goes through the same steps no matter where it came
// from: decode (PNG, JPEG, GIF or WebP), flatten onto white so alpha and
// palettes disappear, shrink so the longer side is at most 800 and the
// shorter at most 600, and encode as a quality-85 JPEG.
package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"math"
	"path/filepath"
	"strings"

	// Decoders register themselves with image.Decode.
	_ "image/gif"
	_ "image/png"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

const (
	// MaxLongSide and MaxShortSide bound the stored image in either
	// orientation: 800x600 landscape, 600x800 portrait.
	MaxLongSide  = 800
	MaxShortSide = 600
	JPEGQuality  = 85
	// MaxUploadBytes bounds how much of an upload or download is read.
	MaxUploadBytes = 10 << 20
	// maxPixels rejects decompression bombs before the full decode.
	maxPixels = 50_000_000
)

// ContentType is the MIME type of everything Process returns.
const ContentType = "image/jpeg"

var allowedExtensions = map[string]bool{
	"png":  true,
	"jpg":  true,
	"jpeg": true,
	"gif":  true,
	"webp": true,
}

var (
	// ErrExtension is returned for a filename whose extension is not allowed.
	ErrExtension = errors.New("imaging: file type not allowed")
	// ErrDecode is returned when the bytes are not a supported image.
	ErrDecode = errors.New("imaging: could not decode image")
)

// AllowedExtension reports whether filename ends in one of png, jpg, jpeg,
// gif or webp, ignoring case.
func AllowedExtension(filename string) bool {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(filename), "."))
	return allowedExtensions[ext]
}

// Decode reads the header first so absurd dimensions fail fast, then
// decodes the full image.
func Decode(data []byte) (image.Image, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecode, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 || cfg.Width*cfg.Height > maxPixels {
		return nil, fmt.Errorf("%w: unsupported dimensions %dx%d", ErrDecode, cfg.Width, cfg.Height)
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecode, err)
	}
	return img, nil
}

// Flatten composites src over opaque white. The result has no alpha
// channel in effect and no palette.
func Flatten(src image.Image) *image.RGBA {
	b := src.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Over)
	return dst
}

// FitSize returns the dimensions of a w x h image scaled down so its
// longer side is at most maxLong and its shorter side at most maxShort,
// with the aspect ratio kept. Images already inside the bounds are
// returned unchanged; images are never enlarged.
func FitSize(w, h, maxLong, maxShort int) (int, int) {
	long, short := max(w, h), min(w, h)
	if long <= maxLong && short <= maxShort {
		return w, h
	}
	scale := min(float64(maxLong)/float64(long), float64(maxShort)/float64(short))
	nl := min(maxLong, max(1, int(math.Round(float64(long)*scale))))
	ns := min(maxShort, max(1, int(math.Round(float64(short)*scale))))
	if w >= h {
		return nl, ns
	}
	return ns, nl
}

// Resize scales src to fit MaxLongSide x MaxShortSide, in whichever
// orientation src has, using Catmull-Rom.
func Resize(src *image.RGBA) *image.RGBA {
	b := src.Bounds()
	w, h := FitSize(b.Dx(), b.Dy(), MaxLongSide, MaxShortSide)
	if w == b.Dx() && h == b.Dy() {
		return src
	}
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Src, nil)
	return dst
}

// EncodeJPEG encodes img at JPEGQuality.
func EncodeJPEG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: JPEGQuality}); err != nil {
		return nil, fmt.Errorf("imaging: encoding jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

// Process runs the full pipeline on raw image bytes and returns JPEG bytes.
func Process(data []byte) ([]byte, error) {
	img, err := Decode(data)
	if err != nil {
		return nil, err
	}
	return EncodeJPEG(Resize(Flatten(img)))
}
