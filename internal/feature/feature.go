// Package feature defines the merged per-element record written by the
// combiner and read back by the feature store. The JSON form follows
// GeoJSON: a Feature with a single-ring Polygon and a flat property bag.
package feature

import (
	"encoding/json"
	"fmt"
	"io"
)

// GeoJSON type tags.
const (
	TypeFeature = "Feature"
	TypePolygon = "Polygon"
)

// Polygon is a GeoJSON polygon. Detection element envelopes only ever use the
// exterior ring.
type Polygon struct {
	Type        string         `json:"type"`
	Coordinates [][][2]float64 `json:"coordinates"`
}

// NewPolygon wraps ring as a single-ring polygon.
func NewPolygon(ring [][2]float64) Polygon {
	return Polygon{Type: TypePolygon, Coordinates: [][][2]float64{ring}}
}

// Exterior returns the exterior ring, or nil for an empty polygon.
func (p Polygon) Exterior() [][2]float64 {
	if len(p.Coordinates) == 0 {
		return nil
	}
	return p.Coordinates[0]
}

// Clone returns a deep copy of p.
func (p Polygon) Clone() Polygon {
	out := Polygon{Type: p.Type}
	if p.Coordinates == nil {
		return out
	}
	out.Coordinates = make([][][2]float64, len(p.Coordinates))
	for i, ring := range p.Coordinates {
		out.Coordinates[i] = append([][2]float64(nil), ring...)
	}
	return out
}

// Feature is one detection element: its 2D envelope plus placement metadata.
type Feature struct {
	Type       string     `json:"type"`
	Geometry   Polygon    `json:"geometry"`
	Properties Properties `json:"properties"`
}

// New builds a Feature with the GeoJSON type tag set.
func New(geometry Polygon, props Properties) Feature {
	return Feature{Type: TypeFeature, Geometry: geometry, Properties: props}
}

// DEID is shorthand for f.Properties.DEID.
func (f Feature) DEID() int {
	return f.Properties.DEID
}

// Clone returns a deep copy of f.
func (f Feature) Clone() Feature {
	return Feature{
		Type:       f.Type,
		Geometry:   f.Geometry.Clone(),
		Properties: f.Properties.Clone(),
	}
}

// Decode reads a feature collection document (a JSON array of features).
func Decode(r io.Reader) ([]Feature, error) {
	var features []Feature
	if err := json.NewDecoder(r).Decode(&features); err != nil {
		return nil, fmt.Errorf("failed to decode feature collection: %w", err)
	}
	if features == nil {
		return nil, fmt.Errorf("failed to decode feature collection: document is null")
	}
	return features, nil
}

// Encode writes features as a JSON array.
func Encode(w io.Writer, features []Feature) error {
	if features == nil {
		features = []Feature{}
	}
	if err := json.NewEncoder(w).Encode(features); err != nil {
		return fmt.Errorf("failed to encode feature collection: %w", err)
	}
	return nil
}
