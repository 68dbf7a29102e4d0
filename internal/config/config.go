// Package config resolves the process configuration exactly once and hands it
// out as an explicit value.
//
// Resolution order, later sources winning:
//
//  1. built-in defaults rooted at the base directory
//  2. an optional YAML file, validated against the embedded CUE schema
//  3. environment variables
//
// There is no package-level cached instance: callers construct a *Config and
// pass it to the registry, router and scheduler constructors.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Environment variables recognised by Load.
const (
	EnvConfigFile          = "MLP_CONFIG"
	EnvBaseDir             = "MLP_BASE_DIR"
	EnvModelVersion        = "MODEL_VERSION"
	EnvModelAlias          = "MODEL_ALIAS"
	EnvCanaryAlias         = "CANARY_ALIAS"
	EnvCanaryPercent       = "CANARY_PERCENT"
	EnvRecentRequestWindow = "MLP_RECENT_REQUEST_WINDOW"
	EnvJobBackend          = "MLP_JOB_BACKEND"
	EnvLogLevel            = "MLP_LOG_LEVEL"
)

// Job store backends.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
)

const (
	defaultRecentRequestWindow = 200
	minRecentRequestWindow     = 10
)

// Config is the read-only runtime configuration.
type Config struct {
	BaseDir         string
	DataDir         string
	ArtifactsDir    string
	ModelDir        string
	RegistryDir     string
	SeedRegistryDir string
	OutputsDir      string
	LogsDir         string
	MonitoringDir   string
	JobsDir         string
	BatchOutputsDir string

	// LogsFile receives the JSON prediction event log.
	LogsFile    string
	DriftReport string

	// JobBackend is BackendFile or BackendSQLite; JobsDB is the SQLite path.
	JobBackend string
	JobsDB     string

	// Serving selection. ModelVersion pins an exact version and wins over
	// ModelAlias; CanaryAlias enables the canary handle.
	ModelVersion  string
	ModelAlias    string
	CanaryAlias   string
	CanaryPercent int

	RecentRequestWindow int
	LogLevel            string
}

// LookupFunc reads an environment variable.
type LookupFunc func(key string) (string, bool)

// Default returns the configuration rooted at baseDir with no overrides.
func Default(baseDir string) *Config {
	c := &Config{
		JobBackend:          BackendFile,
		RecentRequestWindow: defaultRecentRequestWindow,
		LogLevel:            "info",
	}
	c.setBaseDir(baseDir)
	return c
}

// setBaseDir recomputes every derived path.
func (c *Config) setBaseDir(baseDir string) {
	c.BaseDir = baseDir
	c.DataDir = filepath.Join(baseDir, "data")
	c.ArtifactsDir = filepath.Join(baseDir, "artifacts")
	c.ModelDir = filepath.Join(c.ArtifactsDir, "model")
	c.RegistryDir = filepath.Join(c.ArtifactsDir, "registry")
	c.SeedRegistryDir = filepath.Join(baseDir, "seed_artifacts", "registry")
	c.OutputsDir = filepath.Join(baseDir, "outputs")
	c.LogsDir = filepath.Join(c.OutputsDir, "logs")
	c.MonitoringDir = filepath.Join(c.OutputsDir, "monitoring")
	c.JobsDir = filepath.Join(c.OutputsDir, "jobs")
	c.BatchOutputsDir = filepath.Join(c.OutputsDir, "batch")
	c.LogsFile = filepath.Join(c.LogsDir, "inference.jsonl")
	c.DriftReport = filepath.Join(c.MonitoringDir, "drift_report.json")
	c.JobsDB = filepath.Join(c.OutputsDir, "jobs.db")
}

// Load resolves the configuration from the process environment.
// path may be empty, in which case MLP_CONFIG is consulted.
func Load(path string) (*Config, error) {
	return LoadWith(path, os.LookupEnv)
}

// LoadWith resolves the configuration using lookup for environment access.
func LoadWith(path string, lookup LookupFunc) (*Config, error) {
	baseDir, ok := lookup(EnvBaseDir)
	if !ok || strings.TrimSpace(baseDir) == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("config: working directory: %w", err)
		}
		baseDir = wd
	}
	c := Default(baseDir)

	if path == "" {
		path, _ = lookup(EnvConfigFile)
	}
	if path != "" {
		fc, err := readFile(path)
		if err != nil {
			return nil, err
		}
		c.applyFile(fc)
		// An explicit env base dir still wins over the file.
		if v, ok := lookup(EnvBaseDir); ok && strings.TrimSpace(v) != "" {
			c.rebase(v, fc)
		}
	}

	c.applyEnv(lookup)
	return c, nil
}

// applyFile overlays values from a validated YAML document.
func (c *Config) applyFile(fc *fileConfig) {
	if fc.BaseDir != "" {
		c.setBaseDir(fc.BaseDir)
	}
	c.applyFilePaths(fc)
	if fc.JobBackend != "" {
		c.JobBackend = fc.JobBackend
	}
	if fc.ModelVersion != "" {
		c.ModelVersion = fc.ModelVersion
	}
	if fc.ModelAlias != "" {
		c.ModelAlias = fc.ModelAlias
	}
	if fc.CanaryAlias != "" {
		c.CanaryAlias = fc.CanaryAlias
	}
	if fc.CanaryPercent != nil {
		c.CanaryPercent = *fc.CanaryPercent
	}
	if fc.RecentRequestWindow != nil {
		c.RecentRequestWindow = *fc.RecentRequestWindow
	}
	if fc.LogLevel != "" {
		c.LogLevel = fc.LogLevel
	}
}

func (c *Config) applyFilePaths(fc *fileConfig) {
	if fc.RegistryDir != "" {
		c.RegistryDir = fc.RegistryDir
	}
	if fc.JobsDir != "" {
		c.JobsDir = fc.JobsDir
	}
	if fc.JobsDB != "" {
		c.JobsDB = fc.JobsDB
	}
}

func (c *Config) rebase(baseDir string, fc *fileConfig) {
	c.setBaseDir(baseDir)
	c.applyFilePaths(fc)
}

// applyEnv overlays environment variables. Numeric values are clamped rather
// than rejected; unparsable numbers keep the previous value.
func (c *Config) applyEnv(lookup LookupFunc) {
	if v, ok := lookup(EnvModelVersion); ok && v != "" {
		c.ModelVersion = v
	}
	if v, ok := lookup(EnvModelAlias); ok && v != "" {
		c.ModelAlias = v
	}
	if v, ok := lookup(EnvCanaryAlias); ok && v != "" {
		c.CanaryAlias = v
	}
	if v, ok := lookup(EnvCanaryPercent); ok {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			c.CanaryPercent = n
		}
	}
	if v, ok := lookup(EnvRecentRequestWindow); ok {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			c.RecentRequestWindow = n
		}
	}
	if v, ok := lookup(EnvJobBackend); ok && v != "" {
		c.JobBackend = v
	}
	if v, ok := lookup(EnvLogLevel); ok && v != "" {
		c.LogLevel = v
	}

	c.CanaryPercent = clamp(c.CanaryPercent, 0, 100)
	if c.RecentRequestWindow < minRecentRequestWindow {
		c.RecentRequestWindow = minRecentRequestWindow
	}
}

// Validate checks values that cannot be clamped.
func (c *Config) Validate() error {
	switch c.JobBackend {
	case BackendFile, BackendSQLite:
	default:
		return fmt.Errorf("config: unknown job backend %q", c.JobBackend)
	}
	if strings.TrimSpace(c.RegistryDir) == "" {
		return fmt.Errorf("config: registry dir is required")
	}
	return nil
}

// EnsureDirs creates the writable directories the platform uses.
func (c *Config) EnsureDirs() error {
	for _, dir := range []string{c.RegistryDir, c.JobsDir, c.LogsDir, c.MonitoringDir, c.BatchOutputsDir, c.ModelDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("config: create %s: %w", dir, err)
		}
	}
	return nil
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
