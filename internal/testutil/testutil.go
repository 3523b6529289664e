// Package testutil provides shared test fixtures for the geometry packages.
//
// Fixtures are generated deterministically from the detection element id so
// that tests in different packages agree on the expected values.
package testutil

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/banshee-data/mchgeo/internal/deid"
	"github.com/banshee-data/mchgeo/internal/source"
)

// AssertNoError fails the test if err is not nil.
func AssertNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// AssertError fails the test if err is nil.
func AssertError(t *testing.T, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("expected error, got nil")
	}
}

// Envelope returns a rectangular envelope for id. The rectangle is wider for
// higher chambers and its offset encodes the id.
func Envelope(id int, bending bool) source.Envelope {
	w := float64(20 * deid.Chamber(id))
	h := 10.0
	return source.Envelope{
		ID:      id,
		Bending: bending,
		X:       float64(id),
		Y:       -float64(id % 100),
		Vertices: []source.Vertex{
			{X: 0, Y: 0}, {X: w, Y: 0}, {X: w, Y: h}, {X: 0, Y: h},
		},
	}
}

// Envelopes returns one envelope per id, in order.
func Envelopes(ids []int, bending bool) []source.Envelope {
	out := make([]source.Envelope, 0, len(ids))
	for _, id := range ids {
		out = append(out, Envelope(id, bending))
	}
	return out
}

// Transformation returns a complete transformation for id. Translations
// are derived from the id; angles are small and non-zero.
func Transformation(id int) source.Transformation {
	f := func(v float64) *float64 { return &v }
	base := float64(id) / 1000
	return source.Transformation{DEID: id, Transform: source.Transform{
		TX: f(base), TY: f(-base), TZ: f(float64(deid.Chamber(id)) * 100),
		Yaw: f(0.01 * base), Pitch: f(-0.02 * base), Roll: f(0.03 * base),
	}}
}

// Transformations returns one transformation per id, in order.
func Transformations(ids []int) []source.Transformation {
	out := make([]source.Transformation, 0, len(ids))
	for _, id := range ids {
		out = append(out, Transformation(id))
	}
	return out
}

// EnvelopeFragment returns the JSON body the mapping service sends for id.
func EnvelopeFragment(id int, bending bool) string {
	data, err := json.Marshal(Envelope(id, bending))
	if err != nil {
		panic(err)
	}
	return string(data)
}

// EnvelopeDocument encodes envelopes as an envelope document.
func EnvelopeDocument(t *testing.T, envelopes []source.Envelope) []byte {
	t.Helper()
	data, err := json.Marshal(envelopes)
	AssertNoError(t, err)
	return data
}

// AlignmentDocument encodes transformations as an alignment document,
// interleaved with alignables that carry no deid.
func AlignmentDocument(t *testing.T, transformations []source.Transformation) []byte {
	t.Helper()
	alignables := make([]any, 0, 2*len(transformations)+1)
	alignables = append(alignables, map[string]any{"symname": "MCH", "transform": map[string]float64{"tz": 1}})
	for i, tr := range transformations {
		alignables = append(alignables,
			map[string]any{"symname": fmt.Sprintf("MCH/HC%d", i), "transform": map[string]float64{}},
			map[string]any{"deid": tr.DEID, "symname": fmt.Sprintf("MCH/DE%d", tr.DEID), "transform": tr.Transform},
		)
	}
	data, err := json.Marshal(map[string]any{"alignables": alignables})
	AssertNoError(t, err)
	return data
}
