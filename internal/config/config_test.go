package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rawblock/babel-engine/internal/babel"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "engine.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "local", cfg.ModeDefault)
	assert.Equal(t, 2, cfg.NgramMin)
	assert.Equal(t, 5, cfg.NgramMax)
	assert.Equal(t, 2, cfg.EnumDepth)
	assert.Equal(t, 10, cfg.EnumMaxResults)
	assert.Equal(t, 3, cfg.Pipeline.OverfetchFactor)
	assert.Equal(t, 8, cfg.Pipeline.ConcurrencyLimit)
	assert.Equal(t, 15, cfg.Pipeline.DeadlineSeconds)
	assert.Equal(t, 5, cfg.Pipeline.RemoteTimeoutSeconds)
	assert.Equal(t, 3600, cfg.Cache.TTLSeconds)
	assert.Equal(t, 1024, cfg.Cache.MaxEntries)
	assert.Equal(t, "memory", cfg.Cache.Backend)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9999
ngram_max: 6
weights:
  language: 0.5
  structure: 0.2
  ngram: 0.1
  exact: 0.2
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9999, cfg.Server.Port)
	assert.Equal(t, 6, cfg.NgramMax)
	assert.Equal(t, 0.5, cfg.Weights.Language)
	// Keys absent from the file keep their defaults.
	assert.Equal(t, 2, cfg.NgramMin)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 3600, cfg.Cache.TTLSeconds)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "server:\n  port: 9000\n")

	t.Setenv("BABEL_PORT", "7777")
	t.Setenv("BABEL_DATABASE_URL", "postgres://babel:pw@localhost:5432/babel")
	t.Setenv("BABEL_MODE_DEFAULT", "hybrid")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 7777, cfg.Server.Port)
	assert.Equal(t, "hybrid", cfg.ModeDefault)
	assert.True(t, cfg.Archive.Enabled, "database URL in env enables the archive")
	assert.Equal(t, "postgres://babel:pw@localhost:5432/babel", cfg.Archive.DatabaseURL)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestValidate_RejectsOutOfRangeOptions(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"mode unknown", func(c *Config) { c.ModeDefault = "warp" }},
		{"ngram_min zero", func(c *Config) { c.NgramMin = 0 }},
		{"ngram_min above max", func(c *Config) { c.NgramMin = 6 }},
		{"ngram_max above cap", func(c *Config) { c.NgramMax = 17 }},
		{"depth zero", func(c *Config) { c.EnumDepth = 0 }},
		{"enum results zero", func(c *Config) { c.EnumMaxResults = 0 }},
		{"negative weight", func(c *Config) { c.Weights.Ngram = -0.1 }},
		{"all-zero weights", func(c *Config) {
			c.Weights.Language, c.Weights.Structure, c.Weights.Ngram, c.Weights.Exact = 0, 0, 0, 0
		}},
		{"ttl zero", func(c *Config) { c.Cache.TTLSeconds = 0 }},
		{"entries zero", func(c *Config) { c.Cache.MaxEntries = 0 }},
		{"backend unknown", func(c *Config) { c.Cache.Backend = "disk" }},
		{"redis without addr", func(c *Config) { c.Cache.Backend = "redis" }},
		{"overfetch zero", func(c *Config) { c.Pipeline.OverfetchFactor = 0 }},
		{"overfetch above cap", func(c *Config) { c.Pipeline.OverfetchFactor = 11 }},
		{"concurrency zero", func(c *Config) { c.Pipeline.ConcurrencyLimit = 0 }},
		{"deadline zero", func(c *Config) { c.Pipeline.DeadlineSeconds = 0 }},
		{"remote timeout zero", func(c *Config) { c.Pipeline.RemoteTimeoutSeconds = 0 }},
		{"min score negative", func(c *Config) { c.Pipeline.MinScoreDefault = -1 }},
		{"min score above 100", func(c *Config) { c.Pipeline.MinScoreDefault = 101 }},
		{"port zero", func(c *Config) { c.Server.Port = 0 }},
		{"archive without url", func(c *Config) { c.Archive.Enabled = true }},
		{"sampler interval zero", func(c *Config) {
			c.Sampler.Enabled = true
			c.Sampler.IntervalSeconds = 0
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, errors.Is(err, babel.ErrInvalidConfig),
				"expected ErrInvalidConfig, got %v", err)
		})
	}
}

func TestVersion_TracksResultAffectingOptionsOnly(t *testing.T) {
	base := Default().Version()
	assert.Len(t, base, 16)
	assert.Equal(t, base, Default().Version(), "version must be deterministic")

	reweighted := Default()
	reweighted.Weights.Language = 0.5
	assert.NotEqual(t, base, reweighted.Version())

	deeper := Default()
	deeper.EnumDepth = 3
	assert.NotEqual(t, base, deeper.Version())

	// Operational knobs must not churn fingerprints.
	resized := Default()
	resized.Cache.TTLSeconds = 60
	resized.Server.Port = 9999
	resized.Pipeline.ConcurrencyLimit = 2
	assert.Equal(t, base, resized.Version())
}

func TestEnumerateParams_MatchesPackageDefaults(t *testing.T) {
	assert.Equal(t, babel.DefaultEnumerateParams(), Default().EnumerateParams())
}
