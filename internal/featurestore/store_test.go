package featurestore

import (
	"bytes"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/mchgeo/internal/combiner"
	"github.com/banshee-data/mchgeo/internal/deid"
	"github.com/banshee-data/mchgeo/internal/feature"
	"github.com/banshee-data/mchgeo/internal/fsutil"
	"github.com/banshee-data/mchgeo/internal/rotation"
	"github.com/banshee-data/mchgeo/internal/source"
	"github.com/banshee-data/mchgeo/internal/testutil"
)

func fullStore(t *testing.T) (*Store, []source.Envelope) {
	t.Helper()
	ids := deid.All()
	envelopes := testutil.Envelopes(ids, true)
	features, err := combiner.Combine(envelopes, testutil.Transformations(ids))
	require.NoError(t, err)
	s, err := New(features)
	require.NoError(t, err)
	return s, envelopes
}

func TestFeatureForEveryValidID(t *testing.T) {
	s, _ := fullStore(t)
	require.Equal(t, deid.Count(), s.Len())
	for _, id := range deid.All() {
		f, err := s.Feature(id)
		require.NoError(t, err)
		assert.Equal(t, id, f.Properties.DEID)
	}
}

func TestInvalidIdentifierNeverReturnsValue(t *testing.T) {
	s, _ := fullStore(t)
	for _, id := range []int{0, 99, 104, 518, 726, 1026, -1, 2000} {
		f, err := s.Feature(id)
		require.Error(t, err, "deid %d", id)
		assert.True(t, errors.Is(err, ErrInvalidIdentifier))
		assert.Contains(t, err.Error(), "is not a valid detection element ID")
		assert.Equal(t, feature.Feature{}, f)

		var invalid *InvalidIdentifierError
		require.True(t, errors.As(err, &invalid))
		assert.Equal(t, id, invalid.DEID)

		_, err = s.Polygon(id)
		assert.ErrorIs(t, err, ErrInvalidIdentifier)
		_, err = s.Transformation(id)
		assert.ErrorIs(t, err, ErrInvalidIdentifier)
		_, err = s.Offset(id)
		assert.ErrorIs(t, err, ErrInvalidIdentifier)
		_, err = s.Matrix(id, true)
		assert.ErrorIs(t, err, ErrInvalidIdentifier)
	}
}

func TestPolygonIsReversedVertices(t *testing.T) {
	s, envelopes := fullStore(t)
	for _, e := range envelopes {
		p, err := s.Polygon(e.ID)
		require.NoError(t, err)

		want := make([][2]float64, 0, len(e.Vertices))
		for i := len(e.Vertices) - 1; i >= 0; i-- {
			want = append(want, [2]float64{e.Vertices[i].X, e.Vertices[i].Y})
		}
		assert.Equal(t, want, p.Coordinates[0], "deid %d", e.ID)
	}
}

func TestTransformationReflectsSourceKeys(t *testing.T) {
	f := func(v float64) *float64 { return &v }
	envelopes := testutil.Envelopes([]int{100, 101}, false)
	transformations := []source.Transformation{
		testutil.Transformation(100),
		{DEID: 101, Transform: source.Transform{TX: f(5), Roll: f(-1)}},
	}
	features, err := combiner.Combine(envelopes, transformations)
	require.NoError(t, err)
	s, err := New(features)
	require.NoError(t, err)

	full, err := s.Transformation(100)
	require.NoError(t, err)
	assert.ElementsMatch(t, feature.TransformKeys, keys(full))
	assert.Equal(t, *transformations[0].Transform.TZ, full["tz"])

	partial, err := s.Transformation(101)
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"tx": 5, "roll": -1}, partial)
}

func keys(m map[string]float64) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

func TestOffset(t *testing.T) {
	s, _ := fullStore(t)
	off, err := s.Offset(512)
	require.NoError(t, err)
	assert.Equal(t, Offset{X: 512, Y: -12}, off)
}

func TestMatrixUsesStoredAngles(t *testing.T) {
	s, _ := fullStore(t)
	tr, err := s.Transformation(700)
	require.NoError(t, err)

	m, err := s.Matrix(700, true)
	require.NoError(t, err)
	assert.Equal(t, rotation.AnglesToMatrix(tr["yaw"], tr["pitch"], tr["roll"], true), m)
	assert.True(t, rotation.IsRotation(m, rotation.ValidationTolerance))
}

func TestValidIDMissingFromStore(t *testing.T) {
	features, err := combiner.Combine(testutil.Envelopes([]int{100}, true), testutil.Transformations([]int{100}))
	require.NoError(t, err)
	s, err := New(features)
	require.NoError(t, err)

	_, err = s.Feature(101)
	assert.ErrorIs(t, err, ErrFeatureNotFound)
	assert.NotErrorIs(t, err, ErrInvalidIdentifier)
}

func TestStoreIsImmutable(t *testing.T) {
	features, err := combiner.Combine(testutil.Envelopes([]int{100}, true), testutil.Transformations([]int{100}))
	require.NoError(t, err)
	s, err := New(features)
	require.NoError(t, err)

	features[0].Properties.X = -999
	got, _ := s.Feature(100)
	got.Geometry.Coordinates[0][0] = [2]float64{-1, -1}
	*got.Properties.TX = 1e6

	again, err := s.Feature(100)
	require.NoError(t, err)
	assert.Equal(t, 100.0, again.Properties.X)
	assert.NotEqual(t, [2]float64{-1, -1}, again.Geometry.Coordinates[0][0])
	assert.NotEqual(t, 1e6, *again.Properties.TX)
}

func TestFirstFeatureWinsOnDuplicateDEID(t *testing.T) {
	a := feature.New(feature.NewPolygon([][2]float64{{0, 0}, {1, 0}, {1, 1}}), feature.Properties{DEID: 100, X: 1})
	b := feature.New(feature.NewPolygon([][2]float64{{0, 0}, {1, 0}, {1, 1}}), feature.Properties{DEID: 100, X: 2})
	s, err := New([]feature.Feature{a, b})
	require.NoError(t, err)
	off, err := s.Offset(100)
	require.NoError(t, err)
	assert.Equal(t, 1.0, off.X)
	assert.Equal(t, []int{100, 100}, s.IDs())
}

func TestNewRejectsAbsentCollection(t *testing.T) {
	_, err := New(nil)
	assert.Error(t, err)
}

func TestLoad(t *testing.T) {
	features, err := combiner.Combine(testutil.Envelopes([]int{200, 201}, true), testutil.Transformations([]int{200, 201}))
	require.NoError(t, err)
	var buf bytes.Buffer
	require.NoError(t, feature.Encode(&buf, features))

	mfs := fsutil.NewMemoryFileSystem()
	require.NoError(t, mfs.WriteFile("/data/de-geometry.json", buf.Bytes(), 0644))

	s, err := Load(mfs, "/data/de-geometry.json")
	require.NoError(t, err)
	assert.Equal(t, []int{200, 201}, s.IDs())
	assert.Equal(t, features, s.Features())

	_, err = Load(mfs, "/data/missing.json")
	assert.Error(t, err)

	require.NoError(t, mfs.WriteFile("/data/bad.json", []byte(`[{"type":"Feature","properties":{}}]`), 0644))
	_, err = Load(mfs, "/data/bad.json")
	assert.Error(t, err)
}

func TestConcurrentReaders(t *testing.T) {
	s, _ := fullStore(t)
	var wg sync.WaitGroup
	for _, id := range deid.All() {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			f, err := s.Feature(id)
			assert.NoError(t, err)
			assert.Equal(t, id, f.DEID())
		}(id)
	}
	wg.Wait()
}
