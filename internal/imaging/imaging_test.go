package imaging

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/gif"
	"image/jpeg"
	"image/png"
	"math"
	"testing"

	"wardrobe/internal/domain"
)

func solid(w, h int, c color.NRGBA) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = c.R, c.G, c.B, c.A
	}
	return img
}

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png.Encode: %v", err)
	}
	return buf.Bytes()
}

func TestDecodeRecognisedFormats(t *testing.T) {
	src := solid(40, 20, color.NRGBA{R: 200, G: 10, B: 10, A: 255})

	var jpg, gf bytes.Buffer
	if err := jpeg.Encode(&jpg, src, nil); err != nil {
		t.Fatalf("jpeg.Encode: %v", err)
	}
	if err := gif.Encode(&gf, src, nil); err != nil {
		t.Fatalf("gif.Encode: %v", err)
	}

	tests := []struct {
		name   string
		data   []byte
		format Format
	}{
		{"png", encodePNG(t, src), FormatPNG},
		{"jpeg", jpg.Bytes(), FormatJPEG},
		{"gif", gf.Bytes(), FormatGIF},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got, ok := Sniff(tc.data); !ok || got != tc.format {
				t.Fatalf("Sniff = %q, %v", got, ok)
			}
			img, err := Decode(tc.data)
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if b := img.Bounds(); b.Min != (image.Point{}) || b.Dx() != 40 || b.Dy() != 20 {
				t.Fatalf("unexpected bounds %v", b)
			}
		})
	}
}

func TestDecodeErrors(t *testing.T) {
	good := encodePNG(t, solid(8, 8, color.NRGBA{A: 255}))
	tests := []struct {
		name string
		data []byte
		want error
	}{
		{"empty", nil, domain.ErrUnsupportedFormat},
		{"text", []byte("hello, this is not an image"), domain.ErrUnsupportedFormat},
		{"bmp", []byte("BM\x00\x00\x00\x00\x00\x00"), domain.ErrUnsupportedFormat},
		{"truncated png", good[:len(good)/2], domain.ErrCorruptData},
		{"png signature only", good[:8], domain.ErrCorruptData},
		{"webp garbage", []byte("RIFF\x10\x00\x00\x00WEBPVP8 garbage"), domain.ErrCorruptData},
		{"jpeg garbage", []byte{0xFF, 0xD8, 0xFF, 0x00, 0x01, 0x02}, domain.ErrCorruptData},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Decode(tc.data)
			if !errors.Is(err, tc.want) {
				t.Fatalf("Decode err = %v, want %v", err, tc.want)
			}
		})
	}
}

func TestDecodeRejectsOversizedRaster(t *testing.T) {
	data := encodePNG(t, solid(100, 100, color.NRGBA{A: 255}))
	codec := StdCodec{MaxPixels: 50 * 50}
	if _, err := codec.Decode(data); !errors.Is(err, domain.ErrProcessing) {
		t.Fatalf("Decode err = %v, want ErrProcessing", err)
	}
}

func TestEncodeBounds(t *testing.T) {
	tests := []struct {
		w, h, max    int
		wantW, wantH int
	}{
		{4000, 3000, 1600, 1600, 1200},
		{4000, 3000, 300, 300, 225},
		{3000, 4000, 300, 225, 300},
		{1001, 333, 300, 300, 100},
		{200, 100, 1600, 200, 100},
		{5000, 1, 300, 300, 1},
		{300, 300, 300, 300, 300},
	}
	for _, tc := range tests {
		img := solid(tc.w, tc.h, color.NRGBA{R: 10, G: 20, B: 30, A: 255})
		for _, format := range []Format{FormatPNG, FormatJPEG} {
			out, err := Encode(img, format, tc.max)
			if err != nil {
				t.Fatalf("Encode %dx%d %s: %v", tc.w, tc.h, format, err)
			}
			if out.Width != tc.wantW || out.Height != tc.wantH {
				t.Fatalf("Encode %dx%d -> %dx%d, want %dx%d", tc.w, tc.h, out.Width, out.Height, tc.wantW, tc.wantH)
			}
			if out.Width > tc.max || out.Height > tc.max {
				t.Fatalf("Encode exceeded max dimension: %dx%d > %d", out.Width, out.Height, tc.max)
			}
			want := float64(tc.h) * float64(out.Width) / float64(tc.w)
			if math.Abs(want-float64(out.Height)) > 1 {
				t.Fatalf("aspect drift: height %d, expected about %.2f", out.Height, want)
			}
			if out.ContentType != format.ContentType() {
				t.Fatalf("content type = %q", out.ContentType)
			}
			cfg, _, err := image.DecodeConfig(bytes.NewReader(out.Data))
			if err != nil {
				t.Fatalf("decode output: %v", err)
			}
			if cfg.Width != out.Width || cfg.Height != out.Height {
				t.Fatalf("reported %dx%d but encoded %dx%d", out.Width, out.Height, cfg.Width, cfg.Height)
			}
		}
	}
}

func TestEncodeKeepsAlphaForPNGAndFlattensJPEG(t *testing.T) {
	img := solid(10, 10, color.NRGBA{R: 0, G: 0, B: 0, A: 0})

	out, err := Encode(img, FormatPNG, 100)
	if err != nil {
		t.Fatalf("Encode png: %v", err)
	}
	decoded, err := Decode(out.Data)
	if err != nil {
		t.Fatalf("Decode png: %v", err)
	}
	if a := decoded.NRGBAAt(5, 5).A; a != 0 {
		t.Fatalf("png alpha = %d, want 0", a)
	}

	out, err = Encode(img, FormatJPEG, 100)
	if err != nil {
		t.Fatalf("Encode jpeg: %v", err)
	}
	decoded, err = Decode(out.Data)
	if err != nil {
		t.Fatalf("Decode jpeg: %v", err)
	}
	if px := decoded.NRGBAAt(5, 5); px.R < 240 || px.G < 240 || px.B < 240 {
		t.Fatalf("jpeg transparent area not flattened on white: %+v", px)
	}
}

func TestEncodeUnsupportedTarget(t *testing.T) {
	_, err := Encode(solid(4, 4, color.NRGBA{A: 255}), FormatGIF, 10)
	if !errors.Is(err, domain.ErrUnsupportedFormat) {
		t.Fatalf("err = %v, want ErrUnsupportedFormat", err)
	}
}

func TestResizeNeverUpscales(t *testing.T) {
	img := solid(50, 40, color.NRGBA{A: 255})
	if got := Resize(img, 1600); got != img {
		t.Fatalf("Resize returned a new raster for an image that already fits")
	}
}

func stripes(w, h int, colors []color.NRGBA, widths []int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		x := 0
		for i, c := range colors {
			for n := 0; n < widths[i] && x < w; n++ {
				img.SetNRGBA(x, y, c)
				x++
			}
		}
	}
	return img
}

func TestExtractPaletteDominantAndOrder(t *testing.T) {
	red := color.NRGBA{R: 220, G: 20, B: 30, A: 255}
	blue := color.NRGBA{R: 20, G: 40, B: 200, A: 255}
	white := color.NRGBA{R: 250, G: 250, B: 250, A: 255}
	img := stripes(100, 50, []color.NRGBA{red, blue, white}, []int{60, 30, 10})

	p, err := ExtractPalette(img, 5)
	if err != nil {
		t.Fatalf("ExtractPalette: %v", err)
	}
	if p.Dominant != (domain.Color{R: 220, G: 20, B: 30}) {
		t.Fatalf("dominant = %s", p.Dominant)
	}
	if len(p.Secondary) != 2 {
		t.Fatalf("secondary = %v, want 2 colors", p.Secondary)
	}
	if p.Secondary[0] != (domain.Color{R: 20, G: 40, B: 200}) || p.Secondary[1] != (domain.Color{R: 250, G: 250, B: 250}) {
		t.Fatalf("secondary order = %v", p.Secondary)
	}
	if all := p.Colors(); len(all) != 3 || all[0] != p.Dominant {
		t.Fatalf("Colors() = %v", all)
	}
}

func TestExtractPaletteIsDeterministic(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 300, 200))
	for y := 0; y < 200; y++ {
		for x := 0; x < 300; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: uint8(x), G: uint8(y), B: uint8((x * y) % 256), A: 255})
		}
	}
	first, err := ExtractPalette(img, 5)
	if err != nil {
		t.Fatalf("ExtractPalette: %v", err)
	}
	for i := 0; i < 5; i++ {
		again, err := ExtractPalette(img, 5)
		if err != nil {
			t.Fatalf("ExtractPalette: %v", err)
		}
		if again.Dominant != first.Dominant || len(again.Secondary) != len(first.Secondary) {
			t.Fatalf("run %d differs: %v vs %v", i, again, first)
		}
		for j := range first.Secondary {
			if again.Secondary[j] != first.Secondary[j] {
				t.Fatalf("run %d secondary[%d] differs", i, j)
			}
		}
	}
	if n := len(first.Colors()); n < 1 || n > 5 {
		t.Fatalf("palette size %d out of range", n)
	}
}

func TestExtractPaletteIgnoresTransparentPixels(t *testing.T) {
	img := solid(20, 20, color.NRGBA{R: 0, G: 255, B: 0, A: 0})
	for y := 5; y < 15; y++ {
		for x := 5; x < 15; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: 90, G: 60, B: 30, A: 255})
		}
	}
	p, err := ExtractPalette(img, 5)
	if err != nil {
		t.Fatalf("ExtractPalette: %v", err)
	}
	if p.Dominant != (domain.Color{R: 90, G: 60, B: 30}) || len(p.Secondary) != 0 {
		t.Fatalf("palette = %+v", p)
	}
}

func TestExtractPaletteEmptyRaster(t *testing.T) {
	img := solid(10, 10, color.NRGBA{R: 255, A: 0})
	_, err := ExtractPalette(img, 5)
	if !errors.Is(err, ErrEmptyRaster) || !errors.Is(err, domain.ErrProcessing) {
		t.Fatalf("err = %v, want ErrEmptyRaster wrapping ErrProcessing", err)
	}
}

func TestExtractPaletteCountsTranslucentPixels(t *testing.T) {
	tests := []struct {
		name  string
		alpha uint8
	}{
		{"faint", 1},
		{"translucent", 60},
		{"half", 127},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			img := solid(12, 12, color.NRGBA{R: 30, G: 120, B: 200, A: tc.alpha})
			p, err := ExtractPalette(img, 5)
			if err != nil {
				t.Fatalf("ExtractPalette: %v", err)
			}
			if p.Dominant != (domain.Color{R: 30, G: 120, B: 200}) {
				t.Fatalf("dominant = %s", p.Dominant)
			}
		})
	}
}
