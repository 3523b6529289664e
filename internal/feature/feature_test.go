package feature

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func f64(v float64) *float64 { return &v }

func TestPropertiesMarshalFlat(t *testing.T) {
	p := Properties{
		DEID: 501, Bending: true, X: 1.5, Y: -2,
		TX: f64(0.1), Yaw: f64(90),
		Extra: map[string]json.RawMessage{"label": json.RawMessage(`"slat"`)},
	}
	data, err := json.Marshal(p)
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(data, &got))
	want := map[string]any{
		"deid": 501.0, "bending": true, "x": 1.5, "y": -2.0,
		"tx": 0.1, "yaw": 90.0, "label": "slat",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("flat properties mismatch (-want +got):\n%s", diff)
	}
}

func TestPropertiesUnmarshal(t *testing.T) {
	var p Properties
	err := json.Unmarshal([]byte(`{"deid":100,"bending":false,"x":3,"y":4,"tz":-7.5,"roll":1,"owner":{"a":1}}`), &p)
	require.NoError(t, err)

	assert.Equal(t, 100, p.DEID)
	assert.False(t, p.Bending)
	assert.Equal(t, 3.0, p.X)
	assert.Equal(t, 4.0, p.Y)
	assert.Equal(t, map[string]float64{"tz": -7.5, "roll": 1}, p.Transformation())
	assert.JSONEq(t, `{"a":1}`, string(p.Extra["owner"]))
	assert.Equal(t, []string{"bending", "deid", "owner", "roll", "tz", "x", "y"}, p.Keys())
}

func TestPropertiesUnmarshalErrors(t *testing.T) {
	tests := []struct {
		name string
		in   string
	}{
		{"missing deid", `{"x":1,"y":2}`},
		{"null", `null`},
		{"bad transform value", `{"deid":100,"tx":"far"}`},
		{"bad bending", `{"deid":100,"bending":"yes"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var p Properties
			assert.Error(t, json.Unmarshal([]byte(tt.in), &p))
		})
	}
}

func TestPropertiesSetOverwrites(t *testing.T) {
	p := Properties{DEID: 100, X: 1}
	require.NoError(t, p.Set("x", json.RawMessage(`9`)))
	require.NoError(t, p.Set("pitch", json.RawMessage(`2`)))
	require.NoError(t, p.Set("pitch", json.RawMessage(`3`)))
	assert.Equal(t, 9.0, p.X)
	assert.Equal(t, 3.0, *p.Pitch)
	assert.Empty(t, p.Extra)
}

func TestPropertiesSetNullTransformIsAbsent(t *testing.T) {
	p := Properties{DEID: 100, TX: f64(4)}
	require.NoError(t, p.Set("tx", json.RawMessage(`null`)))
	require.NoError(t, p.Set("yaw", json.RawMessage(` null `)))
	assert.Nil(t, p.TX)
	assert.Nil(t, p.Yaw)
	assert.Empty(t, p.Transformation())

	var decoded Properties
	require.NoError(t, json.Unmarshal([]byte(`{"deid":100,"tx":null,"roll":2}`), &decoded))
	assert.Equal(t, map[string]float64{"roll": 2}, decoded.Transformation())
	assert.NotContains(t, decoded.Keys(), "tx")
}

func TestPropertiesSetRejectsMistypedEnvelopeField(t *testing.T) {
	tests := []struct {
		key string
		raw string
	}{
		{"bending", `"yes"`},
		{"x", `"far"`},
		{"deid", `null`},
		{"y", `null`},
	}
	for _, tt := range tests {
		t.Run(tt.key+" "+tt.raw, func(t *testing.T) {
			p := Properties{DEID: 100, X: 1, Y: 2}
			err := p.Set(tt.key, json.RawMessage(tt.raw))
			assert.ErrorIs(t, err, ErrInvalidProperty)
			assert.Contains(t, err.Error(), tt.key)
		})
	}
}

func TestAnglesDefaultToZero(t *testing.T) {
	yaw, pitch, roll := Properties{Pitch: f64(4)}.Angles()
	assert.Equal(t, 0.0, yaw)
	assert.Equal(t, 4.0, pitch)
	assert.Equal(t, 0.0, roll)
}

func TestFeatureCloneIsIndependent(t *testing.T) {
	orig := New(NewPolygon([][2]float64{{0, 0}, {1, 0}, {1, 1}}), Properties{
		DEID:  300,
		TX:    f64(1),
		Extra: map[string]json.RawMessage{"k": json.RawMessage(`1`)},
	})
	c := orig.Clone()
	c.Geometry.Coordinates[0][0] = [2]float64{9, 9}
	*c.Properties.TX = 5
	c.Properties.Extra["k"][0] = '7'

	assert.Equal(t, [2]float64{0, 0}, orig.Geometry.Exterior()[0])
	assert.Equal(t, 1.0, *orig.Properties.TX)
	assert.Equal(t, "1", string(orig.Properties.Extra["k"]))
}

func TestEncodeDecodeCollection(t *testing.T) {
	features := []Feature{
		New(NewPolygon([][2]float64{{1, 1}, {1, 0}, {0, 0}}), Properties{DEID: 100, TX: f64(1)}),
		New(NewPolygon([][2]float64{{2, 2}, {2, 0}, {0, 0}}), Properties{DEID: 101, Bending: true}),
	}
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, features))
	assert.Contains(t, buf.String(), `"type":"Feature"`)
	assert.Contains(t, buf.String(), `"coordinates":[[[1,1],[1,0],[0,0]]]`)

	got, err := Decode(&buf)
	require.NoError(t, err)
	if diff := cmp.Diff(features, got); diff != "" {
		t.Errorf("collection mismatch (-want +got):\n%s", diff)
	}
}

func TestEncodeNilWritesEmptyArray(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, nil))
	assert.Equal(t, "[]", strings.TrimSpace(buf.String()))
}

func TestDecodeRejectsNull(t *testing.T) {
	_, err := Decode(strings.NewReader("null"))
	assert.Error(t, err)
	_, err = Decode(strings.NewReader("{"))
	assert.Error(t, err)
}
