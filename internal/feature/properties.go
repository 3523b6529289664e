package feature

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
)

// ErrInvalidProperty is returned when a property value does not fit the
// type of its dedicated field.
var ErrInvalidProperty = errors.New("invalid property")

// Property keys with a dedicated field.
const (
	KeyDEID    = "deid"
	KeyBending = "bending"
	KeyX       = "x"
	KeyY       = "y"
	KeyTX      = "tx"
	KeyTY      = "ty"
	KeyTZ      = "tz"
	KeyYaw     = "yaw"
	KeyPitch   = "pitch"
	KeyRoll    = "roll"
)

// TransformKeys are the rigid-body parameters of an alignment transform.
var TransformKeys = []string{KeyTX, KeyTY, KeyTZ, KeyYaw, KeyPitch, KeyRoll}

// Properties is the flat property bag of a Feature. Envelope fields are
// always present; transform parameters are pointers so that a key missing
// from the alignment source stays missing. Keys without a dedicated field
// are carried verbatim in Extra.
type Properties struct {
	DEID    int
	Bending bool
	X       float64
	Y       float64

	TX    *float64
	TY    *float64
	TZ    *float64
	Yaw   *float64
	Pitch *float64
	Roll  *float64

	Extra map[string]json.RawMessage
}

// Set decodes raw into the field named by key. Unknown keys go to Extra.
// A later Set of the same key overwrites the earlier value. A null transform
// parameter clears it; envelope fields must not be null.
func (p *Properties) Set(key string, raw json.RawMessage) error {
	if dst := p.transformField(key); dst != nil && IsNull(raw) {
		*dst = nil
		return nil
	}
	if IsNull(raw) && (key == KeyDEID || key == KeyBending || key == KeyX || key == KeyY) {
		return fmt.Errorf("%w %q: null", ErrInvalidProperty, key)
	}
	var err error
	switch key {
	case KeyDEID:
		err = json.Unmarshal(raw, &p.DEID)
	case KeyBending:
		err = json.Unmarshal(raw, &p.Bending)
	case KeyX:
		err = json.Unmarshal(raw, &p.X)
	case KeyY:
		err = json.Unmarshal(raw, &p.Y)
	default:
		if dst := p.transformField(key); dst != nil {
			var v float64
			if err = json.Unmarshal(raw, &v); err == nil {
				*dst = &v
			}
			break
		}
		if p.Extra == nil {
			p.Extra = make(map[string]json.RawMessage)
		}
		p.Extra[key] = append(json.RawMessage(nil), raw...)
	}
	if err != nil {
		return fmt.Errorf("%w %q: %w", ErrInvalidProperty, key, err)
	}
	return nil
}

// IsNull reports whether raw is the JSON null literal.
func IsNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

func (p *Properties) transformField(key string) **float64 {
	switch key {
	case KeyTX:
		return &p.TX
	case KeyTY:
		return &p.TY
	case KeyTZ:
		return &p.TZ
	case KeyYaw:
		return &p.Yaw
	case KeyPitch:
		return &p.Pitch
	case KeyRoll:
		return &p.Roll
	}
	return nil
}

// Transformation returns the transform parameters that are present, keyed
// by their property name.
func (p Properties) Transformation() map[string]float64 {
	out := make(map[string]float64, len(TransformKeys))
	for _, k := range TransformKeys {
		if v := *p.transformField(k); v != nil {
			out[k] = *v
		}
	}
	return out
}

// Angles returns yaw, pitch and roll, treating missing angles as zero.
func (p Properties) Angles() (yaw, pitch, roll float64) {
	return deref(p.Yaw), deref(p.Pitch), deref(p.Roll)
}

func deref(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}

// Keys returns every key present in p, sorted.
func (p Properties) Keys() []string {
	keys := []string{KeyDEID, KeyBending, KeyX, KeyY}
	keys = append(keys, sortedKeys(p.Transformation())...)
	for k := range p.Extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Clone returns a deep copy of p.
func (p Properties) Clone() Properties {
	out := p
	for _, k := range TransformKeys {
		if v := *p.transformField(k); v != nil {
			c := *v
			*out.transformField(k) = &c
		}
	}
	if p.Extra != nil {
		out.Extra = make(map[string]json.RawMessage, len(p.Extra))
		for k, v := range p.Extra {
			out.Extra[k] = append(json.RawMessage(nil), v...)
		}
	}
	return out
}

// MarshalJSON writes the flat property bag.
func (p Properties) MarshalJSON() ([]byte, error) {
	bag := make(map[string]any, 4+len(TransformKeys)+len(p.Extra))
	for k, v := range p.Extra {
		bag[k] = v
	}
	bag[KeyDEID] = p.DEID
	bag[KeyBending] = p.Bending
	bag[KeyX] = p.X
	bag[KeyY] = p.Y
	for k, v := range p.Transformation() {
		bag[k] = v
	}
	return json.Marshal(bag)
}

// UnmarshalJSON reads the flat property bag. The deid key is required.
func (p *Properties) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return fmt.Errorf("properties must be an object")
	}
	var bag map[string]json.RawMessage
	if err := json.Unmarshal(data, &bag); err != nil {
		return err
	}
	if _, ok := bag[KeyDEID]; !ok {
		return fmt.Errorf("properties missing %q", KeyDEID)
	}
	*p = Properties{}
	for _, k := range sortedKeys(bag) {
		if err := p.Set(k, bag[k]); err != nil {
			return err
		}
	}
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
