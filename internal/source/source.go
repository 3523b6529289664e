// Package source reads the two input documents of the geometry pipeline: the
// detection element envelopes produced by the mapping service and the
// alignment file holding per-element rigid-body transformations.
package source

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/banshee-data/mchgeo/internal/fsutil"
	"github.com/banshee-data/mchgeo/internal/monitoring"
)

// ErrSourceUnavailable reports an input document that could not be read or
// parsed. Readers return a nil slice alongside it.
var ErrSourceUnavailable = errors.New("source unavailable")

// MinVertices is the smallest vertex count that describes a polygon.
const MinVertices = 3

// ReadEnvelopes reads an envelope document from path.
func ReadEnvelopes(fsys fsutil.FileSystem, path string) ([]Envelope, error) {
	data, err := fsys.ReadFile(path)
	if err != nil {
		return nil, unavailable(path, err)
	}
	envelopes, err := DecodeEnvelopes(bytes.NewReader(data))
	if err != nil {
		return nil, unavailable(path, err)
	}
	return envelopes, nil
}

// ReadTransformations reads an alignment document from path and keeps only
// the alignables that refer to a detection element.
func ReadTransformations(fsys fsutil.FileSystem, path string) ([]Transformation, error) {
	data, err := fsys.ReadFile(path)
	if err != nil {
		return nil, unavailable(path, err)
	}
	transformations, err := DecodeTransformations(bytes.NewReader(data))
	if err != nil {
		return nil, unavailable(path, err)
	}
	return transformations, nil
}

func unavailable(path string, err error) error {
	monitoring.Logf("could not read file %s: %v", path, err)
	return fmt.Errorf("%w: %s: %w", ErrSourceUnavailable, path, err)
}

// DecodeEnvelopes parses an envelope document: a JSON array of envelopes.
// The result is non-nil on success, even for an empty array.
func DecodeEnvelopes(r io.Reader) ([]Envelope, error) {
	var envelopes []Envelope
	if err := json.NewDecoder(r).Decode(&envelopes); err != nil {
		return nil, fmt.Errorf("failed to decode envelopes: %w", err)
	}
	if envelopes == nil {
		return nil, fmt.Errorf("failed to decode envelopes: document is null")
	}
	for i, e := range envelopes {
		if err := e.Validate(); err != nil {
			return nil, fmt.Errorf("envelope %d: %w", i, err)
		}
	}
	return envelopes, nil
}

type alignmentDocument struct {
	Alignables []json.RawMessage `json:"alignables"`
}

// DecodeTransformations parses an alignment document and returns, in
// document order, the alignables carrying a deid key.
func DecodeTransformations(r io.Reader) ([]Transformation, error) {
	var doc alignmentDocument
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to decode alignment document: %w", err)
	}
	if doc.Alignables == nil {
		return nil, fmt.Errorf("alignment document has no alignables array")
	}

	transformations := make([]Transformation, 0, len(doc.Alignables))
	for i, raw := range doc.Alignables {
		var keys map[string]json.RawMessage
		if err := json.Unmarshal(raw, &keys); err != nil {
			return nil, fmt.Errorf("alignable %d: %w", i, err)
		}
		if _, ok := keys["deid"]; !ok {
			continue
		}
		var t Transformation
		if err := json.Unmarshal(raw, &t); err != nil {
			return nil, fmt.Errorf("alignable %d: %w", i, err)
		}
		if _, ok := keys["transform"]; !ok {
			return nil, fmt.Errorf("alignable %d (deid %d) has no transform", i, t.DEID)
		}
		transformations = append(transformations, t)
	}
	return transformations, nil
}
