package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestDefaults(t *testing.T) {
	cfg := &Config{}
	assert.Equal(t, filepath.Join("data", "de-envelops.json"), cfg.EnvelopePath())
	assert.Equal(t, filepath.Join("data", "de-transformations.json"), cfg.TransformationPath())
	assert.Equal(t, filepath.Join("data", "de-geometry.json"), cfg.GeometryPath())
	assert.Equal(t, filepath.Join("data", "mchgeo.db"), cfg.GetDBPath())
	assert.Equal(t, "http://localhost:8080", cfg.GetMappingURL())
	assert.True(t, cfg.GetBending())
	assert.Equal(t, 20.0, cfg.GetRequestsPerSecond())
	assert.Equal(t, 10*time.Second, cfg.GetHTTPTimeout())
	assert.False(t, cfg.GetFirstMatchWins())
	assert.True(t, cfg.AnglesInDegrees())
	assert.Equal(t, ":8090", cfg.GetListen())
	assert.Equal(t, "", cfg.GetLogFile())
	assert.Equal(t, "info", cfg.GetLogLevel())
	assert.NoError(t, cfg.Validate())
}

func TestLoadJSON(t *testing.T) {
	path := writeFile(t, "mchgeo.json", `{
		"data_dir": "/srv/geo",
		"geometry_file": "merged.json",
		"bending": false,
		"requests_per_second": 2.5,
		"http_timeout": "3s",
		"angle_unit": "radians"
	}`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/srv/geo/merged.json", cfg.GeometryPath())
	assert.Equal(t, "/srv/geo/de-envelops.json", cfg.EnvelopePath())
	assert.False(t, cfg.GetBending())
	assert.Equal(t, 2.5, cfg.GetRequestsPerSecond())
	assert.Equal(t, 3*time.Second, cfg.GetHTTPTimeout())
	assert.False(t, cfg.AnglesInDegrees())
}

func TestLoadYAML(t *testing.T) {
	path := writeFile(t, "mchgeo.yaml", `
mapping_url: http://mapping.internal:9000
envelope_file: /abs/envelopes.json
first_match_wins: true
listen: 127.0.0.1:9999
log_level: debug
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "http://mapping.internal:9000", cfg.GetMappingURL())
	assert.Equal(t, "/abs/envelopes.json", cfg.EnvelopePath())
	assert.True(t, cfg.GetFirstMatchWins())
	assert.Equal(t, "127.0.0.1:9999", cfg.GetListen())
	assert.Equal(t, "debug", cfg.GetLogLevel())
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
	}{
		{"wrong extension", "mchgeo.toml", `data_dir = "x"`},
		{"bad json", "mchgeo.json", `{`},
		{"bad yaml", "mchgeo.yaml", "data_dir: [unclosed"},
		{"bad timeout", "mchgeo.json", `{"http_timeout": "soon"}`},
		{"negative rate", "mchgeo.json", `{"requests_per_second": -1}`},
		{"bad url", "mchgeo.json", `{"mapping_url": "localhost"}`},
		{"bad angle unit", "mchgeo.json", `{"angle_unit": "gradians"}`},
		{"empty file name", "mchgeo.json", `{"envelope_file": " "}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeFile(t, tt.file, tt.content))
			assert.Error(t, err)
		})
	}

	_, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("MCHGEO_DATA_DIR", "/tmp/geo")
	t.Setenv("MCHGEO_BENDING", "false")
	t.Setenv("MCHGEO_REQUESTS_PER_SECOND", "7")
	t.Setenv("MCHGEO_LISTEN", ":1234")

	dir := "/from/file"
	rate := 1.0
	cfg := &Config{DataDir: &dir, RequestsPerSecond: &rate}
	require.NoError(t, cfg.ApplyEnv())

	assert.Equal(t, "/tmp/geo", cfg.GetDataDir())
	assert.False(t, cfg.GetBending())
	assert.Equal(t, 7.0, cfg.GetRequestsPerSecond())
	assert.Equal(t, ":1234", cfg.GetListen())
	assert.Nil(t, cfg.MappingURL)
	assert.Nil(t, cfg.FirstMatchWins)
}

func TestApplyEnvInvalid(t *testing.T) {
	t.Setenv("MCHGEO_ANGLE_UNIT", "turns")
	assert.Error(t, (&Config{}).ApplyEnv())
}

func TestApplyEnvParseError(t *testing.T) {
	t.Setenv("MCHGEO_REQUESTS_PER_SECOND", "fast")
	assert.Error(t, (&Config{}).ApplyEnv())
}

func TestLoadDotEnv(t *testing.T) {
	assert.NoError(t, LoadDotEnv(filepath.Join(t.TempDir(), ".env")))

	path := writeFile(t, ".env", "MCHGEO_TEST_DOTENV=loaded\n")
	t.Setenv("MCHGEO_TEST_DOTENV", "")
	require.NoError(t, os.Unsetenv("MCHGEO_TEST_DOTENV"))
	require.NoError(t, LoadDotEnv(path))
	assert.Equal(t, "loaded", os.Getenv("MCHGEO_TEST_DOTENV"))
}
