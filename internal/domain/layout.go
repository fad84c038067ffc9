package domain

import (
	"encoding/json"
	"fmt"
)

// Layer places one derived garment image on the snapshot canvas. X and Y are
// the canvas coordinates of the layer's top-left corner before rotation;
// Scale multiplies the optimized image dimensions; Rotation is in degrees
// clockwise around the layer centre.
type Layer struct {
	AssetID  string  `json:"asset_id"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Scale    float64 `json:"scale"`
	Z        int     `json:"z"`
	Rotation float64 `json:"rotation,omitempty"`
}

// RenderLayout is the declarative description a snapshot is rendered from.
type RenderLayout struct {
	Layers []Layer `json:"layers"`
}

// AssetIDs returns the distinct asset ids referenced by the layout in order
// of first appearance.
func (l RenderLayout) AssetIDs() []string {
	seen := make(map[string]struct{}, len(l.Layers))
	ids := make([]string, 0, len(l.Layers))
	for _, layer := range l.Layers {
		if _, ok := seen[layer.AssetID]; ok {
			continue
		}
		seen[layer.AssetID] = struct{}{}
		ids = append(ids, layer.AssetID)
	}
	return ids
}

// Clone returns a deep copy so stored layouts cannot be mutated by callers.
func (l RenderLayout) Clone() RenderLayout {
	out := RenderLayout{Layers: make([]Layer, len(l.Layers))}
	copy(out.Layers, l.Layers)
	return out
}

// MarshalLayout encodes a layout for storage.
func MarshalLayout(l RenderLayout) ([]byte, error) {
	if l.Layers == nil {
		l.Layers = []Layer{}
	}
	return json.Marshal(l)
}

// UnmarshalLayout decodes a stored layout.
func UnmarshalLayout(data []byte) (RenderLayout, error) {
	var l RenderLayout
	if len(data) == 0 {
		return l, nil
	}
	if err := json.Unmarshal(data, &l); err != nil {
		return RenderLayout{}, fmt.Errorf("decode layout: %w", err)
	}
	return l, nil
}

// Canvas is the fixed render frame for snapshots.
type Canvas struct {
	Width  int
	Height int
}
