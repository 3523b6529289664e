// Package config loads the settings shared by the mchgeo commands: where the
// geometry documents live, how to reach the mapping service, and how to serve
// the query API.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/banshee-data/mchgeo/internal/units"
)

// Angle units accepted by AngleUnit.
const (
	AngleDegrees = units.Degrees
	AngleRadians = units.Radians
)

// Config is the root configuration. Every field is optional; the Get*
// methods supply the default for a nil field, so partial files are safe.
// Values can come from a .json or .yaml file and be overridden from the
// environment (see ApplyEnv).
type Config struct {
	// Document locations
	DataDir            *string `json:"data_dir,omitempty" yaml:"data_dir,omitempty"`
	EnvelopeFile       *string `json:"envelope_file,omitempty" yaml:"envelope_file,omitempty"`
	TransformationFile *string `json:"transformation_file,omitempty" yaml:"transformation_file,omitempty"`
	GeometryFile       *string `json:"geometry_file,omitempty" yaml:"geometry_file,omitempty"`

	// Mapping service
	MappingURL        *string  `json:"mapping_url,omitempty" yaml:"mapping_url,omitempty"`
	Bending           *bool    `json:"bending,omitempty" yaml:"bending,omitempty"`
	RequestsPerSecond *float64 `json:"requests_per_second,omitempty" yaml:"requests_per_second,omitempty"`
	HTTPTimeout       *string  `json:"http_timeout,omitempty" yaml:"http_timeout,omitempty"` // duration string like "10s"

	// Combination
	FirstMatchWins *bool   `json:"first_match_wins,omitempty" yaml:"first_match_wins,omitempty"`
	AngleUnit      *string `json:"angle_unit,omitempty" yaml:"angle_unit,omitempty"`

	// Serving and storage
	Listen *string `json:"listen,omitempty" yaml:"listen,omitempty"`
	DBPath *string `json:"db_path,omitempty" yaml:"db_path,omitempty"`

	// Logging
	LogFile  *string `json:"log_file,omitempty" yaml:"log_file,omitempty"`
	LogLevel *string `json:"log_level,omitempty" yaml:"log_level,omitempty"`
}

// maxFileSize bounds a configuration file.
const maxFileSize = 1 * 1024 * 1024

// Load reads a configuration file. The format follows the extension:
// .json, .yaml or .yml.
func Load(path string) (*Config, error) {
	cleanPath := filepath.Clean(path)
	ext := strings.ToLower(filepath.Ext(cleanPath))
	if ext != ".json" && ext != ".yaml" && ext != ".yml" {
		return nil, fmt.Errorf("config file must have .json, .yaml or .yml extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &Config{}
	if ext == ".json" {
		err = json.Unmarshal(data, cfg)
	} else {
		err = yaml.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", cleanPath, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// LoadDotEnv loads KEY=value pairs from path into the process environment
// without overriding variables that are already set. A missing file is not
// an error.
func LoadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// envValues mirrors Config with plain types for environment parsing.
type envValues struct {
	DataDir            string  `env:"MCHGEO_DATA_DIR"`
	EnvelopeFile       string  `env:"MCHGEO_ENVELOPE_FILE"`
	TransformationFile string  `env:"MCHGEO_TRANSFORMATION_FILE"`
	GeometryFile       string  `env:"MCHGEO_GEOMETRY_FILE"`
	MappingURL         string  `env:"MCHGEO_MAPPING_URL"`
	Bending            bool    `env:"MCHGEO_BENDING"`
	RequestsPerSecond  float64 `env:"MCHGEO_REQUESTS_PER_SECOND"`
	HTTPTimeout        string  `env:"MCHGEO_HTTP_TIMEOUT"`
	FirstMatchWins     bool    `env:"MCHGEO_FIRST_MATCH_WINS"`
	AngleUnit          string  `env:"MCHGEO_ANGLE_UNIT"`
	Listen             string  `env:"MCHGEO_LISTEN"`
	DBPath             string  `env:"MCHGEO_DB_PATH"`
	LogFile            string  `env:"MCHGEO_LOG_FILE"`
	LogLevel           string  `env:"MCHGEO_LOG_LEVEL"`
}

// ApplyEnv overrides fields from MCHGEO_* environment variables and
// re-validates the result. Only variables that are set take effect.
func (c *Config) ApplyEnv() error {
	var v envValues
	if err := env.Parse(&v); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	set := func(key string) bool {
		_, ok := os.LookupEnv(key)
		return ok
	}

	str := func(tag string, dst **string, val string) {
		if set(tag) {
			*dst = &val
		}
	}
	str("MCHGEO_DATA_DIR", &c.DataDir, v.DataDir)
	str("MCHGEO_ENVELOPE_FILE", &c.EnvelopeFile, v.EnvelopeFile)
	str("MCHGEO_TRANSFORMATION_FILE", &c.TransformationFile, v.TransformationFile)
	str("MCHGEO_GEOMETRY_FILE", &c.GeometryFile, v.GeometryFile)
	str("MCHGEO_MAPPING_URL", &c.MappingURL, v.MappingURL)
	str("MCHGEO_HTTP_TIMEOUT", &c.HTTPTimeout, v.HTTPTimeout)
	str("MCHGEO_ANGLE_UNIT", &c.AngleUnit, v.AngleUnit)
	str("MCHGEO_LISTEN", &c.Listen, v.Listen)
	str("MCHGEO_DB_PATH", &c.DBPath, v.DBPath)
	str("MCHGEO_LOG_FILE", &c.LogFile, v.LogFile)
	str("MCHGEO_LOG_LEVEL", &c.LogLevel, v.LogLevel)
	if set("MCHGEO_BENDING") {
		c.Bending = &v.Bending
	}
	if set("MCHGEO_FIRST_MATCH_WINS") {
		c.FirstMatchWins = &v.FirstMatchWins
	}
	if set("MCHGEO_REQUESTS_PER_SECOND") {
		c.RequestsPerSecond = &v.RequestsPerSecond
	}
	return c.Validate()
}

// Validate checks that the configured values are usable.
func (c *Config) Validate() error {
	if c.HTTPTimeout != nil && *c.HTTPTimeout != "" {
		d, err := time.ParseDuration(*c.HTTPTimeout)
		if err != nil {
			return fmt.Errorf("invalid http_timeout '%s': %w", *c.HTTPTimeout, err)
		}
		if d < 0 {
			return fmt.Errorf("http_timeout must be non-negative, got %s", d)
		}
	}

	if c.RequestsPerSecond != nil && *c.RequestsPerSecond < 0 {
		return fmt.Errorf("requests_per_second must be non-negative, got %f", *c.RequestsPerSecond)
	}

	if c.MappingURL != nil && *c.MappingURL != "" {
		u, err := url.Parse(*c.MappingURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("invalid mapping_url %q", *c.MappingURL)
		}
	}

	if c.AngleUnit != nil && !units.IsValid(*c.AngleUnit) {
		return fmt.Errorf("angle_unit must be one of %s, got %q", units.GetValidUnitsString(), *c.AngleUnit)
	}

	for name, v := range map[string]*string{
		"envelope_file":       c.EnvelopeFile,
		"transformation_file": c.TransformationFile,
		"geometry_file":       c.GeometryFile,
	} {
		if v != nil && strings.TrimSpace(*v) == "" {
			return fmt.Errorf("%s must not be empty", name)
		}
	}
	return nil
}

func stringOr(v *string, def string) string {
	if v == nil || *v == "" {
		return def
	}
	return *v
}

// GetDataDir returns the data directory or the default.
func (c *Config) GetDataDir() string {
	return stringOr(c.DataDir, "data")
}

// dataPath resolves name against the data directory unless it is absolute.
func (c *Config) dataPath(name string) string {
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(c.GetDataDir(), name)
}

// EnvelopePath returns the envelope document path.
func (c *Config) EnvelopePath() string {
	return c.dataPath(stringOr(c.EnvelopeFile, "de-envelops.json"))
}

// TransformationPath returns the alignment document path.
func (c *Config) TransformationPath() string {
	return c.dataPath(stringOr(c.TransformationFile, "de-transformations.json"))
}

// GeometryPath returns the merged feature collection path.
func (c *Config) GeometryPath() string {
	return c.dataPath(stringOr(c.GeometryFile, "de-geometry.json"))
}

// GetMappingURL returns the mapping service base URL or the default.
func (c *Config) GetMappingURL() string {
	return stringOr(c.MappingURL, "http://localhost:8080")
}

// GetBending returns the bending flag used for envelope queries or the default.
func (c *Config) GetBending() bool {
	if c.Bending == nil {
		return true // default
	}
	return *c.Bending
}

// GetRequestsPerSecond returns the mapping query rate or the default.
func (c *Config) GetRequestsPerSecond() float64 {
	if c.RequestsPerSecond == nil {
		return 20
	}
	return *c.RequestsPerSecond
}

// GetHTTPTimeout parses and returns HTTPTimeout as a time.Duration.
func (c *Config) GetHTTPTimeout() time.Duration {
	if c.HTTPTimeout == nil || *c.HTTPTimeout == "" {
		return 10 * time.Second // default
	}
	d, err := time.ParseDuration(*c.HTTPTimeout)
	if err != nil {
		return 10 * time.Second // default on parse error
	}
	return d
}

// GetFirstMatchWins returns the duplicate transformation policy or the default.
func (c *Config) GetFirstMatchWins() bool {
	if c.FirstMatchWins == nil {
		return false
	}
	return *c.FirstMatchWins
}

// AnglesInDegrees reports whether alignment angles are in degrees.
func (c *Config) AnglesInDegrees() bool {
	return stringOr(c.AngleUnit, AngleDegrees) == AngleDegrees
}

// GetListen returns the query API listen address or the default.
func (c *Config) GetListen() string {
	return stringOr(c.Listen, ":8090")
}

// GetDBPath returns the snapshot database path or the default.
func (c *Config) GetDBPath() string {
	return c.dataPath(stringOr(c.DBPath, "mchgeo.db"))
}

// GetLogFile returns the JSON log file path; empty disables file logging.
func (c *Config) GetLogFile() string {
	return stringOr(c.LogFile, "")
}

// GetLogLevel returns the log level name or the default.
func (c *Config) GetLogLevel() string {
	return stringOr(c.LogLevel, "info")
}
