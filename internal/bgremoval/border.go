package bgremoval

import (
	"context"
	"fmt"
	"image"
	"sort"

	"wardrobe/internal/domain"
)

// DefaultTolerance is the RGB distance under which a pixel is considered
// part of the backdrop.
const DefaultTolerance = 48

// minBackdropShare is the fraction of border pixels that must match the
// estimated backdrop for the image to be treated as shot on a plain
// background.
const minBackdropShare = 0.5

// BorderRemover assumes a roughly uniform backdrop touching the image edges.
// It estimates the backdrop from the border, flood-fills inwards across
// pixels within Tolerance and clears them.
type BorderRemover struct {
	Tolerance int
	Feather   bool
}

func (r *BorderRemover) RemoveBackground(ctx context.Context, img *image.NRGBA) (*image.NRGBA, error) {
	if img == nil || img.Bounds().Empty() {
		return nil, processingError("empty raster")
	}
	tol := r.Tolerance
	if tol <= 0 {
		tol = DefaultTolerance
	}
	tol2 := tol * tol

	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	out := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		copy(out.Pix[y*out.Stride:y*out.Stride+w*4], img.Pix[img.PixOffset(b.Min.X, b.Min.Y+y):])
	}

	border := borderIndexes(w, h)
	bg := estimateBackdrop(out, border)
	matching := 0
	for _, i := range border {
		if near(out.Pix[i*4:], bg, tol2) {
			matching++
		}
	}
	if float64(matching) < minBackdropShare*float64(len(border)) {
		return nil, processingError("no uniform backdrop")
	}

	mask := make([]bool, w*h)
	queue := make([]int, 0, len(border))
	for _, i := range border {
		if !mask[i] && near(out.Pix[i*4:], bg, tol2) {
			mask[i] = true
			queue = append(queue, i)
		}
	}
	filled := 0
	for len(queue) > 0 {
		if filled&0xFFFF == 0 {
			if err := ctx.Err(); err != nil {
				return nil, fmt.Errorf("bgremoval: flood fill: %w: %w", domain.ErrProcessing, err)
			}
		}
		i := queue[len(queue)-1]
		queue = queue[:len(queue)-1]
		filled++
		x, y := i%w, i/w
		for _, n := range [4][2]int{{x - 1, y}, {x + 1, y}, {x, y - 1}, {x, y + 1}} {
			if n[0] < 0 || n[0] >= w || n[1] < 0 || n[1] >= h {
				continue
			}
			j := n[1]*w + n[0]
			if !mask[j] && near(out.Pix[j*4:], bg, tol2) {
				mask[j] = true
				queue = append(queue, j)
			}
		}
	}
	if filled == w*h {
		return nil, processingError("no foreground found")
	}

	for i, isBg := range mask {
		if isBg {
			p := out.Pix[i*4 : i*4+4]
			p[0], p[1], p[2], p[3] = 0, 0, 0, 0
		}
	}
	if r.Feather {
		feather(out, mask, w, h)
	}
	return out, nil
}

// feather halves the alpha of foreground pixels bordering the cleared area.
func feather(img *image.NRGBA, mask []bool, w, h int) {
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := y*w + x
			if mask[i] {
				continue
			}
			if (x > 0 && mask[i-1]) || (x < w-1 && mask[i+1]) || (y > 0 && mask[i-w]) || (y < h-1 && mask[i+w]) {
				img.Pix[i*4+3] /= 2
			}
		}
	}
}

func borderIndexes(w, h int) []int {
	idx := make([]int, 0, 2*(w+h))
	for x := 0; x < w; x++ {
		idx = append(idx, x)
		if h > 1 {
			idx = append(idx, (h-1)*w+x)
		}
	}
	for y := 1; y < h-1; y++ {
		idx = append(idx, y*w)
		if w > 1 {
			idx = append(idx, y*w+w-1)
		}
	}
	return idx
}

// estimateBackdrop takes the per-channel median of the border pixels.
func estimateBackdrop(img *image.NRGBA, border []int) [3]uint8 {
	var ch [3][]uint8
	for c := range ch {
		ch[c] = make([]uint8, len(border))
	}
	for k, i := range border {
		for c := 0; c < 3; c++ {
			ch[c][k] = img.Pix[i*4+c]
		}
	}
	var out [3]uint8
	for c := range ch {
		sort.Slice(ch[c], func(i, j int) bool { return ch[c][i] < ch[c][j] })
		out[c] = ch[c][len(ch[c])/2]
	}
	return out
}

func near(p []uint8, bg [3]uint8, tol2 int) bool {
	if p[3] == 0 {
		return true
	}
	dr := int(p[0]) - int(bg[0])
	dg := int(p[1]) - int(bg[1])
	db := int(p[2]) - int(bg[2])
	return dr*dr+dg*dg+db*db <= tol2
}
