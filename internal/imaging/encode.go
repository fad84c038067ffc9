package imaging

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"math"

	"golang.org/x/image/draw"

	"wardrobe/internal/domain"
)

// DefaultJPEGQuality is used when a codec does not set one.
const DefaultJPEGQuality = 85

// FitWithin returns the dimensions of a w x h image scaled down so its long
// edge is at most maxDimension. Images that already fit are unchanged.
func FitWithin(w, h, maxDimension int) (int, int) {
	if maxDimension <= 0 || (w <= maxDimension && h <= maxDimension) {
		return w, h
	}
	if w >= h {
		nh := int(math.Round(float64(h) * float64(maxDimension) / float64(w)))
		return maxDimension, max(nh, 1)
	}
	nw := int(math.Round(float64(w) * float64(maxDimension) / float64(h)))
	return max(nw, 1), maxDimension
}

// Resize downscales img with Catmull-Rom resampling so its long edge is at
// most maxDimension. It never upscales; an image that already fits is
// returned as is.
func Resize(img *image.NRGBA, maxDimension int) *image.NRGBA {
	b := img.Bounds()
	w, h := FitWithin(b.Dx(), b.Dy(), maxDimension)
	if w == b.Dx() && h == b.Dy() {
		return img
	}
	// Scale in premultiplied space so transparent pixels do not bleed color.
	scaled := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(scaled, scaled.Bounds(), img, b, draw.Src, nil)
	out := image.NewNRGBA(scaled.Bounds())
	draw.Draw(out, out.Bounds(), scaled, image.Point{}, draw.Src)
	return out
}

// Encode resizes img to fit maxDimension and serializes it. PNG keeps the
// alpha channel; JPEG flattens it onto white.
func Encode(img *image.NRGBA, format Format, maxDimension int) (Encoded, error) {
	return encode(img, format, maxDimension, DefaultJPEGQuality)
}

func encode(img *image.NRGBA, format Format, maxDimension, quality int) (Encoded, error) {
	if img == nil || img.Bounds().Empty() {
		return Encoded{}, fmt.Errorf("imaging: encode empty raster: %w", domain.ErrProcessing)
	}
	resized := Resize(img, maxDimension)
	b := resized.Bounds()

	var buf bytes.Buffer
	switch format {
	case FormatPNG:
		enc := png.Encoder{CompressionLevel: png.DefaultCompression}
		if err := enc.Encode(&buf, resized); err != nil {
			return Encoded{}, fmt.Errorf("imaging: encode png: %w: %v", domain.ErrProcessing, err)
		}
	case FormatJPEG:
		if quality <= 0 || quality > 100 {
			quality = DefaultJPEGQuality
		}
		if err := jpeg.Encode(&buf, flatten(resized, color.White), &jpeg.Options{Quality: quality}); err != nil {
			return Encoded{}, fmt.Errorf("imaging: encode jpeg: %w: %v", domain.ErrProcessing, err)
		}
	default:
		return Encoded{}, fmt.Errorf("imaging: cannot encode %q: %w", format, domain.ErrUnsupportedFormat)
	}
	return Encoded{
		Data:        buf.Bytes(),
		Width:       b.Dx(),
		Height:      b.Dy(),
		ContentType: format.ContentType(),
	}, nil
}

func flatten(img *image.NRGBA, bg color.Color) *image.RGBA {
	b := img.Bounds()
	out := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(out, out.Bounds(), image.NewUniform(bg), image.Point{}, draw.Src)
	draw.Draw(out, out.Bounds(), img, b.Min, draw.Over)
	return out
}
