// Package imaging decodes uploaded garment photos, produces resized PNG and
// JPEG renditions and extracts a color palette.
package imaging

import (
	"image"

	"wardrobe/internal/domain"
)

// Format identifies an image container.
type Format string

const (
	FormatJPEG Format = "jpeg"
	FormatPNG  Format = "png"
	FormatGIF  Format = "gif"
	FormatWebP Format = "webp"
)

// ContentType returns the MIME type for the format.
func (f Format) ContentType() string {
	switch f {
	case FormatJPEG:
		return "image/jpeg"
	case FormatPNG:
		return "image/png"
	case FormatGIF:
		return "image/gif"
	case FormatWebP:
		return "image/webp"
	default:
		return "application/octet-stream"
	}
}

// Ext returns the file extension, including the dot.
func (f Format) Ext() string {
	switch f {
	case FormatJPEG:
		return ".jpg"
	case "":
		return ".bin"
	default:
		return "." + string(f)
	}
}

// Encoded is the result of Encode.
type Encoded struct {
	Data        []byte
	Width       int
	Height      int
	ContentType string
}

// Palette is the outcome of ExtractPalette. Secondary is ordered by
// descending cluster size.
type Palette struct {
	Dominant  domain.Color
	Secondary []domain.Color
}

// Colors returns the dominant color followed by the secondary ones.
func (p Palette) Colors() []domain.Color {
	out := make([]domain.Color, 0, len(p.Secondary)+1)
	out = append(out, p.Dominant)
	return append(out, p.Secondary...)
}

// Codec is what the derivation pipeline needs from an image library.
type Codec interface {
	Decode(data []byte) (*image.NRGBA, error)
	Resize(img *image.NRGBA, maxDimension int) *image.NRGBA
	Encode(img *image.NRGBA, format Format, maxDimension int) (Encoded, error)
	ExtractPalette(img *image.NRGBA, size int) (Palette, error)
}

// StdCodec implements Codec with the standard decoders plus golang.org/x/image.
type StdCodec struct {
	// JPEGQuality defaults to DefaultJPEGQuality when zero.
	JPEGQuality int
	// MaxPixels bounds decoded rasters; zero means DefaultMaxPixels.
	MaxPixels int
}

// NewCodec returns a StdCodec with default settings.
func NewCodec() StdCodec {
	return StdCodec{JPEGQuality: DefaultJPEGQuality, MaxPixels: DefaultMaxPixels}
}

func (c StdCodec) Decode(data []byte) (*image.NRGBA, error) {
	return decode(data, c.MaxPixels)
}

func (c StdCodec) Resize(img *image.NRGBA, maxDimension int) *image.NRGBA {
	return Resize(img, maxDimension)
}

func (c StdCodec) Encode(img *image.NRGBA, format Format, maxDimension int) (Encoded, error) {
	return encode(img, format, maxDimension, c.JPEGQuality)
}

func (c StdCodec) ExtractPalette(img *image.NRGBA, size int) (Palette, error) {
	return ExtractPalette(img, size)
}
