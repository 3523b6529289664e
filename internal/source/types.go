package source

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/banshee-data/mchgeo/internal/feature"
)

// Vertex is one point of an envelope boundary.
type Vertex struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Envelope is the 2D boundary and planar offset of one detection element,
// as returned by the mapping service.
type Envelope struct {
	ID       int      `json:"id"`
	Bending  bool     `json:"bending"`
	X        float64  `json:"x"`
	Y        float64  `json:"y"`
	Vertices []Vertex `json:"vertices"`
}

// Validate checks that the vertices can form a polygon.
func (e Envelope) Validate() error {
	if len(e.Vertices) < MinVertices {
		return fmt.Errorf("deid %d has %d vertices, need at least %d", e.ID, len(e.Vertices), MinVertices)
	}
	return nil
}

// Transformation is an alignable entry that belongs to a detection element.
type Transformation struct {
	DEID      int       `json:"deid"`
	Transform Transform `json:"transform"`
}

// Transform holds the rigid-body parameters of an alignment correction.
// Named parameters are nil when absent from the document or null; any other
// key is kept verbatim in Extra.
type Transform struct {
	TX    *float64
	TY    *float64
	TZ    *float64
	Yaw   *float64
	Pitch *float64
	Roll  *float64

	Extra map[string]json.RawMessage
}

func (t *Transform) field(key string) **float64 {
	switch key {
	case "tx":
		return &t.TX
	case "ty":
		return &t.TY
	case "tz":
		return &t.TZ
	case "yaw":
		return &t.Yaw
	case "pitch":
		return &t.Pitch
	case "roll":
		return &t.Roll
	}
	return nil
}

// UnmarshalJSON decodes a transform object.
func (t *Transform) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw == nil {
		return fmt.Errorf("transform must be an object")
	}
	*t = Transform{}
	for key, value := range raw {
		if dst := t.field(key); dst != nil {
			if feature.IsNull(value) {
				continue
			}
			var v float64
			if err := json.Unmarshal(value, &v); err != nil {
				return fmt.Errorf("transform %q: %w", key, err)
			}
			*dst = &v
			continue
		}
		if t.Extra == nil {
			t.Extra = make(map[string]json.RawMessage)
		}
		t.Extra[key] = value
	}
	return nil
}

// MarshalJSON encodes the transform as a flat object.
func (t Transform) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, 6+len(t.Extra))
	for k, v := range t.Extra {
		out[k] = v
	}
	for _, k := range []string{"tx", "ty", "tz", "yaw", "pitch", "roll"} {
		if v := *t.field(k); v != nil {
			out[k] = *v
		}
	}
	return json.Marshal(out)
}

// ExtraKeys returns the keys of Extra in sorted order.
func (t Transform) ExtraKeys() []string {
	keys := make([]string, 0, len(t.Extra))
	for k := range t.Extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
