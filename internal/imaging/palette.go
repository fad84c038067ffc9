package imaging

import (
	"fmt"
	"image"
	"math"
	"sort"

	"wardrobe/internal/domain"
)

const (
	maxPaletteSamples = 16384
	maxKMeansRounds   = 24
)

// ErrEmptyRaster is returned by ExtractPalette when no pixel is visible.
var ErrEmptyRaster = fmt.Errorf("imaging: raster has no visible pixels: %w", domain.ErrProcessing)

type rgb struct{ r, g, b float64 }

func (c rgb) dist(o rgb) float64 {
	dr, dg, db := c.r-o.r, c.g-o.g, c.b-o.b
	return dr*dr + dg*dg + db*db
}

func (c rgb) color() domain.Color {
	return domain.Color{R: clamp8(c.r), G: clamp8(c.g), B: clamp8(c.b)}
}

func clamp8(v float64) uint8 {
	return uint8(math.Max(0, math.Min(255, math.Round(v))))
}

// ExtractPalette clusters the visible pixels of img into at most size colors
// with k-means. Sampling and seeding are deterministic, so equal rasters
// always produce equal palettes. The largest cluster becomes the dominant
// color; the rest follow by descending size, ties broken by packed RGB.
func ExtractPalette(img *image.NRGBA, size int) (Palette, error) {
	if size <= 0 {
		size = 1
	}
	samples := samplePixels(img)
	if len(samples) == 0 {
		return Palette{}, ErrEmptyRaster
	}

	centroids := seedCentroids(samples, size)
	assign := make([]int, len(samples))
	for round := 0; round < maxKMeansRounds; round++ {
		changed := false
		for i, s := range samples {
			if best := nearest(centroids, s); best != assign[i] {
				assign[i] = best
				changed = true
			}
		}
		sums := make([]rgb, len(centroids))
		counts := make([]int, len(centroids))
		for i, s := range samples {
			k := assign[i]
			sums[k].r += s.r
			sums[k].g += s.g
			sums[k].b += s.b
			counts[k]++
		}
		for k := range centroids {
			if counts[k] > 0 {
				n := float64(counts[k])
				centroids[k] = rgb{sums[k].r / n, sums[k].g / n, sums[k].b / n}
			}
		}
		if !changed {
			break
		}
	}

	type bucket struct {
		color domain.Color
		count int
	}
	counts := make([]int, len(centroids))
	for _, k := range assign {
		counts[k]++
	}
	merged := make(map[domain.Color]int, len(centroids))
	for k, c := range centroids {
		if counts[k] > 0 {
			merged[c.color()] += counts[k]
		}
	}
	buckets := make([]bucket, 0, len(merged))
	for c, n := range merged {
		buckets = append(buckets, bucket{color: c, count: n})
	}
	sort.Slice(buckets, func(i, j int) bool {
		if buckets[i].count != buckets[j].count {
			return buckets[i].count > buckets[j].count
		}
		return buckets[i].color.Packed() < buckets[j].color.Packed()
	})

	out := Palette{Dominant: buckets[0].color}
	for _, b := range buckets[1:] {
		out.Secondary = append(out.Secondary, b.color)
	}
	return out, nil
}

// samplePixels takes every n-th visible pixel in row-major order so that at
// most maxPaletteSamples remain.
func samplePixels(img *image.NRGBA) []rgb {
	if img == nil {
		return nil
	}
	b := img.Bounds()
	visible := 0
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if img.Pix[img.PixOffset(x, y)+3] > 0 {
				visible++
			}
		}
	}
	if visible == 0 {
		return nil
	}
	step := (visible + maxPaletteSamples - 1) / maxPaletteSamples
	samples := make([]rgb, 0, visible/step+1)
	seen := 0
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			off := img.PixOffset(x, y)
			if img.Pix[off+3] == 0 {
				continue
			}
			if seen%step == 0 {
				samples = append(samples, rgb{float64(img.Pix[off]), float64(img.Pix[off+1]), float64(img.Pix[off+2])})
			}
			seen++
		}
	}
	return samples
}

// seedCentroids starts from the most frequent coarse color and then keeps
// adding the sample farthest from every chosen centroid.
func seedCentroids(samples []rgb, k int) []rgb {
	hist := make(map[uint32]int)
	for _, s := range samples {
		hist[coarseKey(s)]++
	}
	first, bestCount := 0, -1
	for i, s := range samples {
		key := coarseKey(s)
		if n := hist[key]; n > bestCount || (n == bestCount && key < coarseKey(samples[first])) {
			first, bestCount = i, n
		}
	}
	centroids := []rgb{samples[first]}
	minDist := make([]float64, len(samples))
	for i, s := range samples {
		minDist[i] = s.dist(centroids[0])
	}
	for len(centroids) < k {
		far, farDist := -1, 0.0
		for i, d := range minDist {
			if d > farDist {
				far, farDist = i, d
			}
		}
		if far < 0 {
			break
		}
		c := samples[far]
		centroids = append(centroids, c)
		for i, s := range samples {
			if d := s.dist(c); d < minDist[i] {
				minDist[i] = d
			}
		}
	}
	return centroids
}

func coarseKey(c rgb) uint32 {
	return uint32(c.r)>>3<<10 | uint32(c.g)>>3<<5 | uint32(c.b)>>3
}

func nearest(centroids []rgb, s rgb) int {
	best, bestDist := 0, math.MaxFloat64
	for k, c := range centroids {
		if d := s.dist(c); d < bestDist {
			best, bestDist = k, d
		}
	}
	return best
}
