// Package imaging converts uploaded portrait photos into the fixed
// print-ready format required by the card printing tool: 267x400 pixels,
// JPEG, 300 DPI.
package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"

	_ "image/gif"
	_ "image/png"

	"github.com/rwcarlsen/goexif/exif"
	xdraw "golang.org/x/image/draw"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
)

const (
	// TargetWidth and TargetHeight are the passport photo dimensions used on
	// printed cards.
	TargetWidth  = 267
	TargetHeight = 400

	// PrintDPI is stamped into the JFIF header for print quality.
	PrintDPI = 300

	// MaxFileSize is the upload ceiling.
	MaxFileSize = 10 << 20

	// MinWidth and MinHeight are the smallest acceptable source resolution.
	MinWidth  = 200
	MinHeight = 300

	jpegQuality = 95
)

var (
	ErrTooLarge          = errors.New("image file exceeds 10MB")
	ErrTooSmall          = fmt.Errorf("image resolution below minimum %dx%d", MinWidth, MinHeight)
	ErrUnsupportedFormat = errors.New("unsupported image format")
)

// Validate checks an upload before normalization: size ceiling, decodable
// format and minimum resolution.
func Validate(raw []byte) error {
	if int64(len(raw)) > MaxFileSize {
		return ErrTooLarge
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnsupportedFormat, err)
	}
	if cfg.Width < MinWidth || cfg.Height < MinHeight {
		return fmt.Errorf("%w (got %dx%d)", ErrTooSmall, cfg.Width, cfg.Height)
	}
	return nil
}

// Normalize produces the print-ready portrait from raw image bytes.
// Steps run in a fixed order: EXIF orientation correction, forced portrait
// orientation, center crop to the 267:400 aspect, high quality resize,
// flattening onto white and JPEG encoding with 300 DPI metadata.
// The input is never modified; any failure leaves the caller's stored photo
// untouched.
func Normalize(raw []byte) ([]byte, error) {
	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedFormat, err)
	}

	img = applyOrientation(img, orientationOf(raw))

	// Portrait only. Landscape sources are rotated, never stretched.
	if b := img.Bounds(); b.Dx() > b.Dy() {
		img = rotate90(img)
	}

	img = cropToAspect(img, TargetWidth, TargetHeight)

	// White background flattens any transparency during the scale pass.
	dst := image.NewRGBA(image.Rect(0, 0, TargetWidth, TargetHeight))
	xdraw.Draw(dst, dst.Bounds(), image.NewUniform(color.White), image.Point{}, xdraw.Src)
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), img, img.Bounds(), xdraw.Over, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return stampDensity(buf.Bytes(), PrintDPI), nil
}

// orientationOf reads the EXIF orientation tag. Missing or unreadable EXIF
// data yields the identity orientation.
func orientationOf(raw []byte) int {
	x, err := exif.Decode(bytes.NewReader(raw))
	if err != nil {
		return 1
	}
	tag, err := x.Get(exif.Orientation)
	if err != nil {
		return 1
	}
	o, err := tag.Int(0)
	if err != nil {
		return 1
	}
	return o
}

// applyOrientation rotates the image upright for the rotation-only EXIF
// orientations (1, 3, 6, 8). Mirrored orientations are treated as their
// rotated counterparts.
func applyOrientation(img image.Image, orientation int) image.Image {
	switch orientation {
	case 3, 4:
		return rotate180(img)
	case 6, 5:
		return rotate90(img)
	case 8, 7:
		return rotate270(img)
	default:
		return img
	}
}

// rotate90 rotates clockwise by 90 degrees.
func rotate90(src image.Image) image.Image {
	b := src.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dy(), b.Dx()))
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			dst.Set(b.Max.Y-1-y, x-b.Min.X, src.At(x, y))
		}
	}
	return dst
}

func rotate180(src image.Image) image.Image {
	b := src.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			dst.Set(b.Max.X-1-x, b.Max.Y-1-y, src.At(x, y))
		}
	}
	return dst
}

// rotate270 rotates clockwise by 270 degrees.
func rotate270(src image.Image) image.Image {
	b := src.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dy(), b.Dx()))
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			dst.Set(y-b.Min.Y, b.Max.X-1-x, src.At(x, y))
		}
	}
	return dst
}

// cropToAspect trims the longer dimension symmetrically about the center so
// the image matches the target aspect ratio. The image is never stretched.
func cropToAspect(img image.Image, targetW, targetH int) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()

	// Cross-multiplied aspect comparison avoids float rounding.
	switch {
	case w*targetH > h*targetW:
		// Too wide: trim left and right.
		newW := h * targetW / targetH
		left := b.Min.X + (w-newW)/2
		return cropRect(img, image.Rect(left, b.Min.Y, left+newW, b.Max.Y))
	case w*targetH < h*targetW:
		// Too tall: trim top and bottom.
		newH := w * targetH / targetW
		top := b.Min.Y + (h-newH)/2
		return cropRect(img, image.Rect(b.Min.X, top, b.Max.X, top+newH))
	default:
		return img
	}
}

func cropRect(img image.Image, r image.Rectangle) image.Image {
	type subImager interface {
		SubImage(r image.Rectangle) image.Image
	}
	if s, ok := img.(subImager); ok {
		return s.SubImage(r)
	}
	dst := image.NewRGBA(image.Rect(0, 0, r.Dx(), r.Dy()))
	xdraw.Draw(dst, dst.Bounds(), img, r.Min, xdraw.Src)
	return dst
}

// stampDensity writes a JFIF APP0 segment carrying the given dots-per-inch
// density. The standard library encoder emits no APP0 segment, so one is
// inserted directly after the SOI marker; an existing APP0 has its density
// fields overwritten instead.
func stampDensity(jpg []byte, dpi int) []byte {
	if len(jpg) < 4 || jpg[0] != 0xFF || jpg[1] != 0xD8 {
		return jpg
	}

	// SOI(2) + APP0 marker(2) + length(2) + "JFIF\0"(5) + version(2) puts the
	// density unit at offset 13 and the two density words at 14..17.
	if jpg[2] == 0xFF && jpg[3] == 0xE0 && len(jpg) >= 20 {
		out := make([]byte, len(jpg))
		copy(out, jpg)
		out[13] = 0x01 // density unit: dots per inch
		out[14] = byte(dpi >> 8)
		out[15] = byte(dpi)
		out[16] = byte(dpi >> 8)
		out[17] = byte(dpi)
		return out
	}

	app0 := []byte{
		0xFF, 0xE0, // APP0 marker
		0x00, 0x10, // segment length (16)
		'J', 'F', 'I', 'F', 0x00,
		0x01, 0x02, // JFIF version 1.02
		0x01, // density unit: dots per inch
		byte(dpi >> 8), byte(dpi),
		byte(dpi >> 8), byte(dpi),
		0x00, 0x00, // no thumbnail
	}
	out := make([]byte, 0, len(jpg)+len(app0))
	out = append(out, jpg[:2]...)
	out = append(out, app0...)
	out = append(out, jpg[2:]...)
	return out
}

// density reads the DPI values back out of a JFIF APP0 segment. Used for
// quality checks; returns ok=false when no density information is present.
func density(jpg []byte) (x, y int, ok bool) {
	if len(jpg) < 20 || jpg[0] != 0xFF || jpg[1] != 0xD8 || jpg[2] != 0xFF || jpg[3] != 0xE0 {
		return 0, 0, false
	}
	if !bytes.Equal(jpg[6:11], []byte{'J', 'F', 'I', 'F', 0x00}) {
		return 0, 0, false
	}
	if jpg[13] != 0x01 {
		return 0, 0, false
	}
	return int(jpg[14])<<8 | int(jpg[15]), int(jpg[16])<<8 | int(jpg[17]), true
}
