package compositor

import (
	"context"
	"fmt"
	"math"
	"strings"

	"wardrobe/internal/domain"
)

func invalid(format string, args ...any) error {
	return fmt.Errorf("compositor: %s: %w", fmt.Sprintf(format, args...), domain.ErrInvalidLayout)
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// IsValidRenderData reports whether layout can be rendered right now. It has
// no side effects; Validate explains a negative answer.
func (c *Compositor) IsValidRenderData(ctx context.Context, layout domain.RenderLayout) bool {
	_, err := c.validate(ctx, layout)
	return err == nil
}

// Validate returns nil for a renderable layout and otherwise an error
// describing the first violation. Layout problems wrap
// domain.ErrInvalidLayout; repository failures are returned as they are.
func (c *Compositor) Validate(ctx context.Context, layout domain.RenderLayout) error {
	_, err := c.validate(ctx, layout)
	return err
}

func (c *Compositor) validate(ctx context.Context, layout domain.RenderLayout) (map[string]*domain.DerivedAsset, error) {
	if len(layout.Layers) == 0 {
		return nil, invalid("layout has no layers")
	}
	if len(layout.Layers) > c.opts.MaxLayers {
		return nil, invalid("layout has %d layers, at most %d allowed", len(layout.Layers), c.opts.MaxLayers)
	}
	seenZ := make(map[int]int, len(layout.Layers))
	for i, l := range layout.Layers {
		if strings.TrimSpace(l.AssetID) == "" {
			return nil, invalid("layer %d has no asset id", i)
		}
		if !finite(l.Scale) || l.Scale <= 0 || l.Scale > c.opts.MaxScale {
			return nil, invalid("layer %d scale %v outside (0, %v]", i, l.Scale, c.opts.MaxScale)
		}
		if !finite(l.X) || !finite(l.Y) || !finite(l.Rotation) {
			return nil, invalid("layer %d has a non-finite position or rotation", i)
		}
		if prev, dup := seenZ[l.Z]; dup {
			return nil, invalid("layers %d and %d share z=%d", prev, i, l.Z)
		}
		seenZ[l.Z] = i
	}

	assets, err := c.assets.GetMany(ctx, layout.AssetIDs())
	if err != nil {
		return nil, fmt.Errorf("compositor: load layer assets: %w", err)
	}
	frame := rect{0, 0, float64(c.opts.Canvas.Width), float64(c.opts.Canvas.Height)}
	for i, l := range layout.Layers {
		a, ok := assets[l.AssetID]
		if !ok {
			return nil, invalid("layer %d references unknown asset %s", i, l.AssetID)
		}
		if a.Status != domain.StatusCompleted || a.Artifacts.Optimized.Key == "" {
			return nil, invalid("layer %d asset %s is %s, not completed", i, l.AssetID, a.Status)
		}
		if !layerBounds(l, a.Width, a.Height).overlaps(frame) {
			return nil, invalid("layer %d lies entirely outside the canvas", i)
		}
	}
	return assets, nil
}

type rect struct{ minX, minY, maxX, maxY float64 }

func (r rect) overlaps(o rect) bool {
	return r.minX < o.maxX && r.maxX > o.minX && r.minY < o.maxY && r.maxY > o.minY
}

// layerBounds is the axis aligned box covered by the layer after scaling and
// rotating around its centre.
func layerBounds(l domain.Layer, w, h int) rect {
	m := layerTransform(l, w, h)
	corners := [4][2]float64{{0, 0}, {float64(w), 0}, {0, float64(h)}, {float64(w), float64(h)}}
	out := rect{math.Inf(1), math.Inf(1), math.Inf(-1), math.Inf(-1)}
	for _, p := range corners {
		x := m[0]*p[0] + m[1]*p[1] + m[2]
		y := m[3]*p[0] + m[4]*p[1] + m[5]
		out.minX, out.maxX = math.Min(out.minX, x), math.Max(out.maxX, x)
		out.minY, out.maxY = math.Min(out.minY, y), math.Max(out.maxY, y)
	}
	return out
}
