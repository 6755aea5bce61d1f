// Package imagerender encodes rendered tiles for transport between workers
// and views and holds the crop/scale helpers used by the compositor.
package imagerender

import (
	"bytes"
	"fmt"
	"image"
	"image/draw"
	"image/jpeg"
	"image/png"

	"github.com/rs/zerolog/log"
	xdraw "golang.org/x/image/draw"
)

// Format is the tile wire encoding.
type Format string

const (
	FormatPNG  Format = "png"
	FormatJPEG Format = "jpeg"
)

// ColorMode selects RGB or grayscale tile output.
type ColorMode string

const (
	ColorRGB  ColorMode = "rgb"
	ColorGray ColorMode = "gray"
)

// Options controls Encode.
type Options struct {
	Format  Format
	Quality int // jpeg only
	Color   ColorMode
}

// ParseFormat maps a config string to a Format, defaulting to PNG.
func ParseFormat(s string) Format {
	switch s {
	case "jpeg", "jpg":
		return FormatJPEG
	default:
		return FormatPNG
	}
}

// Encode encodes img into bytes using opts.
func Encode(img image.Image, opts Options) ([]byte, error) {
	if img == nil {
		return nil, fmt.Errorf("encode: nil image")
	}
	final := img
	if opts.Color == ColorGray {
		b := img.Bounds()
		gray := image.NewGray(b)
		draw.Draw(gray, b, img, b.Min, draw.Src)
		final = gray
	}

	var buf bytes.Buffer
	switch opts.Format {
	case FormatJPEG:
		q := opts.Quality
		if q <= 0 || q > 100 {
			q = 90
		}
		if err := jpeg.Encode(&buf, final, &jpeg.Options{Quality: q}); err != nil {
			return nil, fmt.Errorf("failed to encode JPEG: %w", err)
		}
	default:
		enc := png.Encoder{CompressionLevel: png.BestSpeed}
		if err := enc.Encode(&buf, final); err != nil {
			return nil, fmt.Errorf("failed to encode PNG: %w", err)
		}
	}

	b := final.Bounds()
	log.Debug().
		Int("width", b.Dx()).
		Int("height", b.Dy()).
		Int("bytes", buf.Len()).
		Str("format", string(opts.Format)).
		Str("color", string(opts.Color)).
		Msg("encoded tile")
	return buf.Bytes(), nil
}

// Decode decodes PNG or JPEG tile bytes.
func Decode(data []byte) (image.Image, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("decode: empty data")
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode tile: %w", err)
	}
	return img, nil
}

// Dimensions extracts the size of encoded tile bytes without decoding pixels.
func Dimensions(data []byte) (width, height int, err error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return 0, 0, fmt.Errorf("failed to read tile header: %w", err)
	}
	return cfg.Width, cfg.Height, nil
}

type subImager interface {
	SubImage(r image.Rectangle) image.Image
}

// Crop returns the part of img inside r, rebased so its bounds start at
// (0, 0). The pixels are copied so the result does not pin the source.
func Crop(img image.Image, r image.Rectangle) *image.RGBA {
	r = r.Intersect(img.Bounds())
	out := image.NewRGBA(image.Rect(0, 0, r.Dx(), r.Dy()))
	if r.Empty() {
		return out
	}
	var src image.Image = img
	if s, ok := img.(subImager); ok {
		src = s.SubImage(r)
	}
	draw.Draw(out, out.Bounds(), src, r.Min, draw.Src)
	return out
}

// Scale crops srcRect out of src and resamples it to size.
func Scale(src image.Image, srcRect image.Rectangle, size image.Point) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, size.X, size.Y))
	if size.X <= 0 || size.Y <= 0 || srcRect.Empty() {
		return dst
	}
	if srcRect.Size() == size {
		draw.Draw(dst, dst.Bounds(), src, srcRect.Min, draw.Src)
		return dst
	}
	xdraw.BiLinear.Scale(dst, dst.Bounds(), src, srcRect, xdraw.Src, nil)
	return dst
}
