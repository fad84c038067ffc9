package compositor

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"math"
	"sort"

	"golang.org/x/image/draw"
	"golang.org/x/image/math/f64"
	"golang.org/x/sync/errgroup"

	"wardrobe/internal/domain"
	"wardrobe/internal/storage"
)

// layerTransform maps layer source pixels onto the canvas: scale, then rotate
// clockwise around the layer centre, then place the unrotated top-left corner
// at (X, Y).
func layerTransform(l domain.Layer, w, h int) f64.Aff3 {
	theta := l.Rotation * math.Pi / 180
	sin, cos := math.Sincos(theta)
	a, b := l.Scale*cos, -l.Scale*sin
	d, e := l.Scale*sin, l.Scale*cos
	hw, hh := float64(w)/2, float64(h)/2
	cx, cy := l.X+hw*l.Scale, l.Y+hh*l.Scale
	return f64.Aff3{
		a, b, cx - (a*hw + b*hh),
		d, e, cy - (d*hw + e*hh),
	}
}

// loadLayers fetches and decodes the optimized image of every referenced
// asset in parallel.
func (c *Compositor) loadLayers(ctx context.Context, assets map[string]*domain.DerivedAsset, ids []string) (map[string]*image.NRGBA, error) {
	rasters := make([]*image.NRGBA, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.opts.LoadConcurrency)
	for i, id := range ids {
		asset := assets[id]
		g.Go(func() error {
			data, err := c.store.Get(gctx, asset.Artifacts.Optimized.Key)
			if err != nil {
				if errors.Is(err, storage.ErrNotFound) {
					return fmt.Errorf("compositor: layer image of %s missing: %w", id, domain.ErrComposition)
				}
				return fmt.Errorf("compositor: load layer image of %s: %w", id, err)
			}
			img, err := c.codec.Decode(data)
			if err != nil {
				return fmt.Errorf("compositor: decode layer image of %s: %w: %w", id, domain.ErrComposition, err)
			}
			rasters[i] = img
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	out := make(map[string]*image.NRGBA, len(ids))
	for i, id := range ids {
		out[id] = rasters[i]
	}
	return out, nil
}

// compose draws the layers back to front by ascending z.
func (c *Compositor) compose(ctx context.Context, layout domain.RenderLayout, rasters map[string]*image.NRGBA) (*image.NRGBA, error) {
	canvas := image.NewRGBA(image.Rect(0, 0, c.opts.Canvas.Width, c.opts.Canvas.Height))
	if bg := c.opts.Background; bg.A > 0 {
		draw.Draw(canvas, canvas.Bounds(), image.NewUniform(*bg), image.Point{}, draw.Src)
	}

	layers := append([]domain.Layer(nil), layout.Layers...)
	sort.SliceStable(layers, func(i, j int) bool { return layers[i].Z < layers[j].Z })
	for _, l := range layers {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		src, ok := rasters[l.AssetID]
		if !ok || src == nil {
			return nil, fmt.Errorf("compositor: no raster for asset %s: %w", l.AssetID, domain.ErrComposition)
		}
		// Decoded rasters start at the origin, so source and layer
		// coordinates coincide.
		b := src.Bounds()
		draw.CatmullRom.Transform(canvas, layerTransform(l, b.Dx(), b.Dy()), src, b, draw.Over, nil)
	}

	out := image.NewNRGBA(canvas.Bounds())
	draw.Draw(out, out.Bounds(), canvas, image.Point{}, draw.Src)
	return out, nil
}

var defaultBackground = color.NRGBA{R: 255, G: 255, B: 255, A: 255}
