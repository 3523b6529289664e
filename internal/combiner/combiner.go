// Package combiner joins detection element envelopes with their alignment
// transformations into a GeoJSON-like feature collection.
package combiner

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/banshee-data/mchgeo/internal/feature"
	"github.com/banshee-data/mchgeo/internal/fsutil"
	"github.com/banshee-data/mchgeo/internal/monitoring"
	"github.com/banshee-data/mchgeo/internal/source"
)

var (
	// ErrSourceUnavailable is returned when an input set is absent.
	ErrSourceUnavailable = source.ErrSourceUnavailable
	// ErrUnmatchedIdentifier is returned when an envelope has no transformation.
	ErrUnmatchedIdentifier = errors.New("no transformation for detection element")
	// ErrDuplicateTransformation is returned when several transformations
	// share the deid of an envelope and first-match mode is off.
	ErrDuplicateTransformation = errors.New("duplicate transformation for detection element")
)

// UnmatchedIdentifierError names the envelope that could not be matched.
type UnmatchedIdentifierError struct {
	DEID int
}

func (e *UnmatchedIdentifierError) Error() string {
	return fmt.Sprintf("%v %d", ErrUnmatchedIdentifier, e.DEID)
}

func (e *UnmatchedIdentifierError) Unwrap() error { return ErrUnmatchedIdentifier }

// DuplicateTransformationError names a deid carried by more than one
// transformation record.
type DuplicateTransformationError struct {
	DEID  int
	Count int
}

func (e *DuplicateTransformationError) Error() string {
	return fmt.Sprintf("%v %d (%d records)", ErrDuplicateTransformation, e.DEID, e.Count)
}

func (e *DuplicateTransformationError) Unwrap() error { return ErrDuplicateTransformation }

// Options tunes Combine.
type Options struct {
	// FirstMatchWins uses the first of several transformations sharing a
	// deid instead of rejecting the input.
	FirstMatchWins bool
}

// Combine merges each envelope with the transformation of the same deid,
// producing exactly one feature per envelope in input order. A nil input
// slice means the source could not be read and is rejected.
func Combine(envelopes []source.Envelope, transformations []source.Transformation) ([]feature.Feature, error) {
	return CombineWithOptions(envelopes, transformations, Options{})
}

// CombineWithOptions is Combine with explicit Options.
func CombineWithOptions(envelopes []source.Envelope, transformations []source.Transformation, opts Options) ([]feature.Feature, error) {
	if envelopes == nil {
		return nil, fmt.Errorf("%w: no envelope data", ErrSourceUnavailable)
	}
	if transformations == nil {
		return nil, fmt.Errorf("%w: no transformation data", ErrSourceUnavailable)
	}

	byDEID := indexTransformations(transformations)

	features := make([]feature.Feature, 0, len(envelopes))
	for _, de := range envelopes {
		matches := byDEID[de.ID]
		if len(matches) == 0 {
			return nil, &UnmatchedIdentifierError{DEID: de.ID}
		}
		if n := len(matches); n > 1 {
			if !opts.FirstMatchWins {
				return nil, &DuplicateTransformationError{DEID: de.ID, Count: n}
			}
			monitoring.Logf("deid %d has %d transformations, using the first", de.ID, n)
		}
		props, err := properties(de, matches[0].Transform)
		if err != nil {
			return nil, fmt.Errorf("deid %d: %w", de.ID, err)
		}
		features = append(features, feature.New(Geometry(de.Vertices), props))
	}
	return features, nil
}

// indexTransformations groups transformations by deid in document order.
// Records for deids no envelope references are never inspected further.
func indexTransformations(transformations []source.Transformation) map[int][]source.Transformation {
	byDEID := make(map[int][]source.Transformation, len(transformations))
	for _, t := range transformations {
		byDEID[t.DEID] = append(byDEID[t.DEID], t)
	}
	return byDEID
}

// Geometry builds the single-ring polygon of an envelope. Vertices are taken
// in reverse order to flip the mapping winding into the GeoJSON one.
func Geometry(vertices []source.Vertex) feature.Polygon {
	ring := make([][2]float64, 0, len(vertices))
	for i := len(vertices) - 1; i >= 0; i-- {
		ring = append(ring, [2]float64{vertices[i].X, vertices[i].Y})
	}
	return feature.NewPolygon(ring)
}

// properties starts from the envelope fields and overlays every transform
// key. A transform key naming an envelope field replaces it.
func properties(de source.Envelope, t source.Transform) (feature.Properties, error) {
	props := feature.Properties{
		DEID:    de.ID,
		Bending: de.Bending,
		X:       de.X,
		Y:       de.Y,
		TX:      copyFloat(t.TX),
		TY:      copyFloat(t.TY),
		TZ:      copyFloat(t.TZ),
		Yaw:     copyFloat(t.Yaw),
		Pitch:   copyFloat(t.Pitch),
		Roll:    copyFloat(t.Roll),
	}
	for _, k := range t.ExtraKeys() {
		if err := props.Set(k, t.Extra[k]); err != nil {
			return feature.Properties{}, err
		}
	}
	return props, nil
}

func copyFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

// CombineFiles reads the envelope and transformation documents, combines
// them and writes the feature collection to outPath. Nothing is written
// unless every step succeeds.
func CombineFiles(fsys fsutil.FileSystem, envelopePath, transformPath, outPath string, opts Options) ([]feature.Feature, error) {
	transformations, terr := source.ReadTransformations(fsys, transformPath)
	envelopes, eerr := source.ReadEnvelopes(fsys, envelopePath)
	if err := errors.Join(terr, eerr); err != nil {
		return nil, err
	}

	features, err := CombineWithOptions(envelopes, transformations, opts)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := feature.Encode(&buf, features); err != nil {
		return nil, err
	}
	if err := fsutil.WriteFileAtomic(fsys, outPath, buf.Bytes(), 0644); err != nil {
		return nil, err
	}
	monitoring.Logf("wrote %d features to %s", len(features), outPath)
	return features, nil
}
