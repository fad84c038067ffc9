package imaging

import (
	"bytes"
	"fmt"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"

	"golang.org/x/image/draw"
	"golang.org/x/image/webp"

	"wardrobe/internal/domain"
)

// DefaultMaxPixels caps decoded rasters at roughly a 64 megapixel photo.
const DefaultMaxPixels = 64_000_000

var (
	sigJPEG = []byte{0xFF, 0xD8, 0xFF}
	sigPNG  = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1A, '\n'}
	sigGIF1 = []byte("GIF87a")
	sigGIF2 = []byte("GIF89a")
)

// Sniff identifies the container from its leading bytes. The declared
// content type of an upload is never trusted.
func Sniff(data []byte) (Format, bool) {
	switch {
	case bytes.HasPrefix(data, sigJPEG):
		return FormatJPEG, true
	case bytes.HasPrefix(data, sigPNG):
		return FormatPNG, true
	case bytes.HasPrefix(data, sigGIF1), bytes.HasPrefix(data, sigGIF2):
		return FormatGIF, true
	case len(data) >= 12 && string(data[0:4]) == "RIFF" && string(data[8:12]) == "WEBP":
		return FormatWebP, true
	}
	return "", false
}

// Decode turns uploaded bytes into a non-premultiplied RGBA raster whose
// bounds start at the origin. Animated GIFs yield their first frame.
func Decode(data []byte) (*image.NRGBA, error) {
	return decode(data, DefaultMaxPixels)
}

func decode(data []byte, maxPixels int) (*image.NRGBA, error) {
	format, ok := Sniff(data)
	if !ok {
		return nil, fmt.Errorf("imaging: %w", domain.ErrUnsupportedFormat)
	}
	if maxPixels <= 0 {
		maxPixels = DefaultMaxPixels
	}

	var (
		cfg image.Config
		err error
	)
	switch format {
	case FormatJPEG:
		cfg, err = jpeg.DecodeConfig(bytes.NewReader(data))
	case FormatPNG:
		cfg, err = png.DecodeConfig(bytes.NewReader(data))
	case FormatGIF:
		cfg, err = gif.DecodeConfig(bytes.NewReader(data))
	case FormatWebP:
		cfg, err = webp.DecodeConfig(bytes.NewReader(data))
	}
	if err != nil {
		return nil, fmt.Errorf("imaging: read %s header: %w: %v", format, domain.ErrCorruptData, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("imaging: %s has empty dimensions: %w", format, domain.ErrCorruptData)
	}
	if cfg.Width*cfg.Height > maxPixels {
		return nil, fmt.Errorf("imaging: %dx%d exceeds %d pixels: %w", cfg.Width, cfg.Height, maxPixels, domain.ErrProcessing)
	}

	var src image.Image
	switch format {
	case FormatJPEG:
		src, err = jpeg.Decode(bytes.NewReader(data))
	case FormatPNG:
		src, err = png.Decode(bytes.NewReader(data))
	case FormatGIF:
		src, err = gif.Decode(bytes.NewReader(data))
	case FormatWebP:
		src, err = webp.Decode(bytes.NewReader(data))
	}
	if err != nil {
		return nil, fmt.Errorf("imaging: decode %s: %w: %v", format, domain.ErrCorruptData, err)
	}
	return toNRGBA(src), nil
}

func toNRGBA(src image.Image) *image.NRGBA {
	b := src.Bounds()
	if n, ok := src.(*image.NRGBA); ok && b.Min == (image.Point{}) {
		return n
	}
	dst := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Src)
	return dst
}
