// Package featurestore serves read-only lookups against a merged detection
// element feature collection. A Store is built once and never mutated, so it
// may be shared between goroutines.
package featurestore

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/banshee-data/mchgeo/internal/deid"
	"github.com/banshee-data/mchgeo/internal/feature"
	"github.com/banshee-data/mchgeo/internal/fsutil"
	"github.com/banshee-data/mchgeo/internal/rotation"
)

var (
	// ErrInvalidIdentifier is returned for a deid outside the known set.
	ErrInvalidIdentifier = errors.New("not a valid detection element ID")
	// ErrFeatureNotFound is returned for a valid deid missing from the store.
	ErrFeatureNotFound = errors.New("no feature for detection element")
)

// InvalidIdentifierError names the rejected deid.
type InvalidIdentifierError struct {
	DEID int
}

func (e *InvalidIdentifierError) Error() string {
	return fmt.Sprintf("%d is %v", e.DEID, ErrInvalidIdentifier)
}

func (e *InvalidIdentifierError) Unwrap() error { return ErrInvalidIdentifier }

// Offset is the planar position of a detection element.
type Offset struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Store holds an immutable feature collection indexed by deid.
type Store struct {
	features []feature.Feature
	index    map[int]int
}

// New builds a store from features. The slice is copied; when several
// features share a deid the first one is served.
func New(features []feature.Feature) (*Store, error) {
	if features == nil {
		return nil, fmt.Errorf("feature collection is absent")
	}
	s := &Store{
		features: make([]feature.Feature, len(features)),
		index:    make(map[int]int, len(features)),
	}
	for i, f := range features {
		s.features[i] = f.Clone()
		if _, seen := s.index[f.DEID()]; !seen {
			s.index[f.DEID()] = i
		}
	}
	return s, nil
}

// Load reads a persisted feature collection from path.
func Load(fsys fsutil.FileSystem, path string) (*Store, error) {
	data, err := fsys.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read feature collection %s: %w", path, err)
	}
	features, err := feature.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return New(features)
}

// Len returns the number of features.
func (s *Store) Len() int {
	return len(s.features)
}

// IDs returns the deids of the stored features in collection order.
func (s *Store) IDs() []int {
	ids := make([]int, len(s.features))
	for i, f := range s.features {
		ids[i] = f.DEID()
	}
	return ids
}

// Features returns a copy of the whole collection.
func (s *Store) Features() []feature.Feature {
	out := make([]feature.Feature, len(s.features))
	for i, f := range s.features {
		out[i] = f.Clone()
	}
	return out
}

// Feature returns the feature of a detection element.
func (s *Store) Feature(id int) (feature.Feature, error) {
	f, err := s.lookup(id)
	if err != nil {
		return feature.Feature{}, err
	}
	return f.Clone(), nil
}

func (s *Store) lookup(id int) (*feature.Feature, error) {
	if !deid.IsValid(id) {
		return nil, &InvalidIdentifierError{DEID: id}
	}
	i, ok := s.index[id]
	if !ok {
		return nil, fmt.Errorf("%w %d", ErrFeatureNotFound, id)
	}
	return &s.features[i], nil
}

// Polygon returns the envelope polygon of a detection element.
func (s *Store) Polygon(id int) (feature.Polygon, error) {
	f, err := s.lookup(id)
	if err != nil {
		return feature.Polygon{}, err
	}
	return f.Geometry.Clone(), nil
}

// Transformation returns the alignment parameters (tx, ty, tz, yaw, pitch,
// roll) recorded for a detection element. Only parameters present in the
// source are returned.
func (s *Store) Transformation(id int) (map[string]float64, error) {
	f, err := s.lookup(id)
	if err != nil {
		return nil, err
	}
	return f.Properties.Transformation(), nil
}

// Offset returns the planar offset of a detection element.
func (s *Store) Offset(id int) (Offset, error) {
	f, err := s.lookup(id)
	if err != nil {
		return Offset{}, err
	}
	return Offset{X: f.Properties.X, Y: f.Properties.Y}, nil
}

// Matrix returns the rotation matrix built from the element's yaw, pitch
// and roll. Missing angles count as zero.
func (s *Store) Matrix(id int, degrees bool) (rotation.Matrix, error) {
	f, err := s.lookup(id)
	if err != nil {
		return rotation.Matrix{}, err
	}
	yaw, pitch, roll := f.Properties.Angles()
	return rotation.AnglesToMatrix(yaw, pitch, roll, degrees), nil
}
