package cli

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/mchgeo/internal/combiner"
	"github.com/banshee-data/mchgeo/internal/feature"
	"github.com/banshee-data/mchgeo/internal/fsutil"
	"github.com/banshee-data/mchgeo/internal/httputil"
	"github.com/banshee-data/mchgeo/internal/mapping"
	"github.com/banshee-data/mchgeo/internal/security"
	"github.com/banshee-data/mchgeo/internal/monitoring"
	"github.com/banshee-data/mchgeo/internal/testutil"
	"github.com/banshee-data/mchgeo/internal/version"
)

// mappingService answers envelope queries from the testutil fixtures.
func mappingService() *httputil.MockHTTPClient {
	m := httputil.NewMockHTTPClient()
	m.DoFunc = func(req *http.Request) (*http.Response, error) {
		id, err := strconv.Atoi(req.URL.Query().Get("deid"))
		if err != nil {
			return nil, err
		}
		bending := req.URL.Query().Get("bending") == "true"
		return &http.Response{
			StatusCode: http.StatusOK,
			Body:       io.NopCloser(strings.NewReader(testutil.EnvelopeFragment(id, bending))),
			Header:     make(http.Header),
			Request:    req,
		}, nil
	}
	return m
}

// run executes the command tree against dataDir and returns stdout.
func run(t *testing.T, a *app, dataDir string, args ...string) (string, error) {
	t.Helper()
	t.Setenv("MCHGEO_DATA_DIR", dataDir)
	t.Setenv("MCHGEO_REQUESTS_PER_SECOND", "0")
	t.Cleanup(func() { monitoring.SetLogger(nil) })

	if a.fsys == nil {
		a.fsys = fsutil.OSFileSystem{}
	}
	cmd := newRootCmd(a)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(append([]string{"--env-file", filepath.Join(dataDir, "missing.env")}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func writeAlignment(t *testing.T, dataDir string, ids []int) {
	t.Helper()
	require.NoError(t, os.MkdirAll(dataDir, 0755))
	doc := testutil.AlignmentDocument(t, testutil.Transformations(ids))
	require.NoError(t, os.WriteFile(filepath.Join(dataDir, "de-transformations.json"), doc, 0644))
}

func TestVersionCommand(t *testing.T) {
	out, err := run(t, &app{}, t.TempDir(), "version")
	require.NoError(t, err)
	assert.Equal(t, version.String()+"\n", out)
}

func TestGenerate(t *testing.T) {
	dir := t.TempDir()
	ids := []int{100, 101, 500, 1025}
	writeAlignment(t, dir, ids)
	client := mappingService()

	out, err := run(t, &app{client: client}, dir,
		"generate", "--deid", "100,101,500,1025", "--bending=false", "--snapshot")
	require.NoError(t, err)
	assert.Contains(t, out, "wrote 4 features")
	assert.Contains(t, out, "recorded snapshot")
	require.Equal(t, 4, client.RequestCount())
	assert.Equal(t, "false", client.GetRequest(0).URL.Query().Get("bending"))
	assert.Equal(t, http.MethodPost, client.GetRequest(0).Method)

	data, err := os.ReadFile(filepath.Join(dir, "de-geometry.json"))
	require.NoError(t, err)
	features, err := feature.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	want, err := combiner.Combine(testutil.Envelopes(ids, false), testutil.Transformations(ids))
	require.NoError(t, err)
	assert.Equal(t, want, features)

	_, err = os.Stat(filepath.Join(dir, "mchgeo.db"))
	assert.NoError(t, err)
}

func TestFetch_FailureWritesNothing(t *testing.T) {
	dir := t.TempDir()
	client := httputil.NewMockHTTPClient().
		AddResponse(http.StatusOK, testutil.EnvelopeFragment(100, true)).
		AddResponse(http.StatusInternalServerError, "")

	_, err := run(t, &app{client: client}, dir, "fetch", "--deid", "100,101,102")
	require.Error(t, err)
	assert.ErrorIs(t, err, mapping.ErrRemoteFetch)
	assert.Equal(t, 2, client.RequestCount())
	_, statErr := os.Stat(filepath.Join(dir, "de-envelops.json"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestFetch_InvalidID(t *testing.T) {
	_, err := run(t, &app{client: mappingService()}, t.TempDir(), "fetch", "--deid", "100,999")
	assert.ErrorContains(t, err, "999 is not a valid detection element ID")
}

func TestCombine_UnmatchedIdentifier(t *testing.T) {
	dir := t.TempDir()
	writeAlignment(t, dir, []int{100})
	require.NoError(t, os.WriteFile(filepath.Join(dir, "de-envelops.json"),
		testutil.EnvelopeDocument(t, testutil.Envelopes([]int{100, 101}, true)), 0644))

	_, err := run(t, &app{}, dir, "combine")
	assert.ErrorIs(t, err, combiner.ErrUnmatchedIdentifier)
	_, statErr := os.Stat(filepath.Join(dir, "de-geometry.json"))
	assert.True(t, os.IsNotExist(statErr))
}

func generated(t *testing.T, ids []int) string {
	t.Helper()
	dir := t.TempDir()
	writeAlignment(t, dir, ids)
	var csv []string
	for _, id := range ids {
		csv = append(csv, strconv.Itoa(id))
	}
	_, err := run(t, &app{client: mappingService()}, dir, "generate", "--deid", strings.Join(csv, ","), "--snapshot")
	require.NoError(t, err)
	return dir
}

func TestQuery(t *testing.T) {
	dir := generated(t, []int{100, 501})

	t.Run("offset", func(t *testing.T) {
		out, err := run(t, &app{}, dir, "query", "offset", "501")
		require.NoError(t, err)
		assert.JSONEq(t, `{"x":501,"y":-1}`, out)
	})

	t.Run("transformation", func(t *testing.T) {
		out, err := run(t, &app{}, dir, "query", "transformation", "100")
		require.NoError(t, err)
		var tr map[string]float64
		require.NoError(t, json.Unmarshal([]byte(out), &tr))
		assert.Len(t, tr, 6)
	})

	t.Run("polygon from snapshot", func(t *testing.T) {
		out, err := run(t, &app{}, dir, "query", "polygon", "100", "--from-snapshot", "latest")
		require.NoError(t, err)
		var p feature.Polygon
		require.NoError(t, json.Unmarshal([]byte(out), &p))
		assert.Equal(t, [][2]float64{{0, 10}, {20, 10}, {20, 0}, {0, 0}}, p.Exterior())
	})

	t.Run("matrix", func(t *testing.T) {
		out, err := run(t, &app{}, dir, "query", "matrix", "100", "--radians")
		require.NoError(t, err)
		var rows [3][3]float64
		require.NoError(t, json.Unmarshal([]byte(out), &rows))
		assert.InDelta(t, 1, rows[2][2], 0.01)
	})

	t.Run("invalid id", func(t *testing.T) {
		_, err := run(t, &app{}, dir, "query", "feature", "999")
		assert.ErrorContains(t, err, "999 is not a valid detection element ID")
	})

	t.Run("absent id", func(t *testing.T) {
		_, err := run(t, &app{}, dir, "query", "feature", "1025")
		assert.Error(t, err)
	})
}

func TestSnapshotCommands(t *testing.T) {
	dir := generated(t, []int{100, 101})

	out, err := run(t, &app{}, dir, "snapshot", "record")
	require.NoError(t, err)
	assert.Contains(t, out, "(2 features)")

	out, err = run(t, &app{}, dir, "snapshot", "list")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	assert.Len(t, lines, 3) // header + two runs
	runID := strings.Fields(lines[1])[0]

	exported := filepath.Join(dir, "export", "geometry.json")
	_, err = run(t, &app{}, dir, "snapshot", "export", runID, "-o", exported)
	require.NoError(t, err)
	original, err := os.ReadFile(filepath.Join(dir, "de-geometry.json"))
	require.NoError(t, err)
	copied, err := os.ReadFile(exported)
	require.NoError(t, err)
	assert.JSONEq(t, string(original), string(copied))

	_, err = run(t, &app{}, dir, "snapshot", "delete", runID)
	require.NoError(t, err)
	_, err = run(t, &app{}, dir, "snapshot", "delete", runID)
	assert.Error(t, err)
}

func TestPlotCommand(t *testing.T) {
	dir := generated(t, []int{100, 101, 200})
	outDir := filepath.Join(dir, "plots")

	out, err := run(t, &app{}, dir, "plot", "-o", outDir)
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(outDir, "chamber_01.png"),
		filepath.Join(outDir, "chamber_02.png"),
	}, strings.Fields(out))

	out, err = run(t, &app{}, dir, "plot", "-o", outDir, "--chamber", "2", "--format", "svg")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(outDir, "chamber_02.svg"), strings.TrimSpace(out))

	_, err = run(t, &app{}, dir, "plot", "--chamber", "11")
	assert.Error(t, err)

	_, err = run(t, &app{}, dir, "plot", "-o", "/proc/self/plots")
	assert.ErrorIs(t, err, security.ErrPathOutsideAllowed)
}

func TestConfigFileAndLogLevel(t *testing.T) {
	dir := t.TempDir()
	writeAlignment(t, dir, []int{100})
	require.NoError(t, os.WriteFile(filepath.Join(dir, "de-envelops.json"),
		testutil.EnvelopeDocument(t, testutil.Envelopes([]int{100}, true)), 0644))

	cfgPath := filepath.Join(dir, "mchgeo.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("geometry_file: merged.json\n"), 0644))

	out, err := run(t, &app{}, dir, "--config", cfgPath, "--log-level", "debug", "combine")
	require.NoError(t, err)
	assert.Contains(t, out, filepath.Join(dir, "merged.json"))

	_, err = run(t, &app{}, dir, "--config", filepath.Join(dir, "missing.yaml"), "combine")
	assert.Error(t, err)
}
