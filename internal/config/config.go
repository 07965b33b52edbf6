package config

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/rawblock/babel-engine/internal/babel"
	"github.com/rawblock/babel-engine/internal/coherence"
	"github.com/rawblock/babel-engine/pkg/models"
)

// Engine Configuration
//
// Layered: compiled defaults, then an optional YAML file, then environment
// overrides (BABEL_*). Validation happens once at load; a request can never
// observe an out-of-range option. Version() digests exactly the options
// that change search results, and is folded into request fingerprints so a
// reconfigured engine never serves stale cache entries.

// Config is the full engine configuration.
type Config struct {
	ModeDefault string `yaml:"mode_default"` // search mode when a request names none

	// Enumerator bounds. The n-gram size ceiling is capped by the
	// enumerator contract at 16.
	NgramMin       int `yaml:"ngram_min"`
	NgramMax       int `yaml:"ngram_max"`
	EnumDepth      int `yaml:"enum_depth"`
	EnumMaxResults int `yaml:"enum_max_results"`

	Weights coherence.Weights `yaml:"weights"`

	Cache         Cache         `yaml:"cache"`
	Pipeline      Pipeline      `yaml:"pipeline"`
	Server        Server        `yaml:"server"`
	Remote        Remote        `yaml:"remote"`
	Archive       Archive       `yaml:"archive"`
	Sampler       Sampler       `yaml:"sampler"`
	Logging       Logging       `yaml:"logging"`
	Normalization Normalization `yaml:"normalization"`
}

type Cache struct {
	TTLSeconds int    `yaml:"ttl_seconds"`
	MaxEntries int    `yaml:"max_entries"`
	Backend    string `yaml:"backend"` // "memory" or "redis"
	Redis      Redis  `yaml:"redis"`
}

type Redis struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type Pipeline struct {
	OverfetchFactor      int     `yaml:"overfetch_factor"`
	ConcurrencyLimit     int     `yaml:"concurrency_limit"`
	DeadlineSeconds      int     `yaml:"deadline_seconds"`
	RemoteTimeoutSeconds int     `yaml:"remote_timeout_seconds"`
	MinScoreDefault      float64 `yaml:"min_score_default"`
}

type Server struct {
	Host               string `yaml:"host"`
	Port               int    `yaml:"port"`
	RateLimitPerMinute int    `yaml:"rate_limit_per_minute"` // 0 disables limiting
}

type Remote struct {
	BaseURL string `yaml:"base_url"` // empty disables remote/hybrid fetching
}

type Archive struct {
	Enabled     bool   `yaml:"enabled"`
	DatabaseURL string `yaml:"database_url"`
}

type Sampler struct {
	Enabled         bool    `yaml:"enabled"`
	IntervalSeconds int     `yaml:"interval_seconds"`
	BatchSize       int     `yaml:"batch_size"`
	SeedPrefix      string  `yaml:"seed_prefix"`
	MinOverall      float64 `yaml:"min_overall"` // finds below this are not broadcast
}

type Logging struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

type Normalization struct {
	Enabled bool `yaml:"enabled"`
}

// Default returns the compiled-in configuration.
func Default() *Config {
	return &Config{
		ModeDefault:    string(models.ModeLocal),
		NgramMin:       2,
		NgramMax:       5,
		EnumDepth:      2,
		EnumMaxResults: 10,
		Weights:        coherence.DefaultWeights(),
		Cache: Cache{
			TTLSeconds: 3600,
			MaxEntries: 1024,
			Backend:    "memory",
		},
		Pipeline: Pipeline{
			OverfetchFactor:      3,
			ConcurrencyLimit:     8,
			DeadlineSeconds:      15,
			RemoteTimeoutSeconds: 5,
			MinScoreDefault:      0,
		},
		Server: Server{
			Host:               "0.0.0.0",
			Port:               8080,
			RateLimitPerMinute: 120,
		},
		Sampler: Sampler{
			Enabled:         false,
			IntervalSeconds: 30,
			BatchSize:       8,
			SeedPrefix:      "sampler",
			MinOverall:      30,
		},
		Logging: Logging{Level: "info"},
	}
}

// Load builds the configuration from defaults, the YAML file at path (if
// non-empty), and environment overrides, then validates.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv lets deployments override the file without editing it.
func (c *Config) applyEnv() {
	envString("BABEL_HOST", &c.Server.Host)
	envInt("BABEL_PORT", &c.Server.Port)
	envString("BABEL_MODE_DEFAULT", &c.ModeDefault)
	envString("BABEL_CACHE_BACKEND", &c.Cache.Backend)
	envString("BABEL_REDIS_ADDR", &c.Cache.Redis.Addr)
	envString("BABEL_REDIS_PASSWORD", &c.Cache.Redis.Password)
	envInt("BABEL_REDIS_DB", &c.Cache.Redis.DB)
	envString("BABEL_REMOTE_URL", &c.Remote.BaseURL)
	envString("BABEL_LOG_LEVEL", &c.Logging.Level)
	envBool("BABEL_SAMPLER_ENABLED", &c.Sampler.Enabled)

	if v := os.Getenv("BABEL_DATABASE_URL"); v != "" {
		c.Archive.DatabaseURL = v
		c.Archive.Enabled = true
	}
}

// Validate checks every recognized option. Violations wrap
// babel.ErrInvalidConfig so callers can classify without string matching.
func (c *Config) Validate() error {
	bad := func(format string, args ...any) error {
		return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), babel.ErrInvalidConfig)
	}

	if !models.SearchMode(c.ModeDefault).Valid() {
		return bad("mode_default %q not one of local/remote/hybrid", c.ModeDefault)
	}
	if c.NgramMin < babel.MinNgramSize {
		return bad("ngram_min %d below %d", c.NgramMin, babel.MinNgramSize)
	}
	if c.NgramMax > babel.MaxNgramSize {
		return bad("ngram_max %d above %d", c.NgramMax, babel.MaxNgramSize)
	}
	if c.NgramMin > c.NgramMax {
		return bad("ngram_min %d above ngram_max %d", c.NgramMin, c.NgramMax)
	}
	if c.EnumDepth < 1 {
		return bad("enum_depth %d below 1", c.EnumDepth)
	}
	if c.EnumMaxResults < 1 {
		return bad("enum_max_results %d below 1", c.EnumMaxResults)
	}

	if c.Weights.Language < 0 || c.Weights.Structure < 0 || c.Weights.Ngram < 0 || c.Weights.Exact < 0 {
		return bad("weights must be non-negative")
	}
	if c.Weights.Language+c.Weights.Structure+c.Weights.Ngram+c.Weights.Exact <= 0 {
		return bad("weights must not all be zero")
	}

	if c.Cache.TTLSeconds < 1 {
		return bad("cache.ttl_seconds %d below 1", c.Cache.TTLSeconds)
	}
	if c.Cache.MaxEntries < 1 {
		return bad("cache.max_entries %d below 1", c.Cache.MaxEntries)
	}
	switch c.Cache.Backend {
	case "memory":
	case "redis":
		if c.Cache.Redis.Addr == "" {
			return bad("cache.backend redis requires cache.redis.addr")
		}
	default:
		return bad("cache.backend %q not one of memory/redis", c.Cache.Backend)
	}

	if c.Pipeline.OverfetchFactor < 1 || c.Pipeline.OverfetchFactor > 10 {
		return bad("pipeline.overfetch_factor %d outside [1,10]", c.Pipeline.OverfetchFactor)
	}
	if c.Pipeline.ConcurrencyLimit < 1 {
		return bad("pipeline.concurrency_limit %d below 1", c.Pipeline.ConcurrencyLimit)
	}
	if c.Pipeline.DeadlineSeconds < 1 {
		return bad("pipeline.deadline_seconds %d below 1", c.Pipeline.DeadlineSeconds)
	}
	if c.Pipeline.RemoteTimeoutSeconds < 1 {
		return bad("pipeline.remote_timeout_seconds %d below 1", c.Pipeline.RemoteTimeoutSeconds)
	}
	if c.Pipeline.MinScoreDefault < 0 || c.Pipeline.MinScoreDefault > 100 {
		return bad("pipeline.min_score_default %v outside [0,100]", c.Pipeline.MinScoreDefault)
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return bad("server.port %d outside [1,65535]", c.Server.Port)
	}
	if c.Server.RateLimitPerMinute < 0 {
		return bad("server.rate_limit_per_minute %d below 0", c.Server.RateLimitPerMinute)
	}

	if c.Archive.Enabled && c.Archive.DatabaseURL == "" {
		return bad("archive.enabled requires archive.database_url")
	}

	if c.Sampler.Enabled {
		if c.Sampler.IntervalSeconds < 1 {
			return bad("sampler.interval_seconds %d below 1", c.Sampler.IntervalSeconds)
		}
		if c.Sampler.BatchSize < 1 {
			return bad("sampler.batch_size %d below 1", c.Sampler.BatchSize)
		}
	}
	return nil
}

// Version digests the options that alter search results. Cache sizing,
// server wiring, and observability knobs deliberately stay out: changing
// them must not invalidate cached results.
func (c *Config) Version() string {
	h := sha256.New()
	fmt.Fprintf(h, "ngram:%d:%d;depth:%d;enum_max:%d;", c.NgramMin, c.NgramMax, c.EnumDepth, c.EnumMaxResults)
	fmt.Fprintf(h, "weights:%.6f:%.6f:%.6f:%.6f;", c.Weights.Language, c.Weights.Structure, c.Weights.Ngram, c.Weights.Exact)
	fmt.Fprintf(h, "overfetch:%d;norm:%t", c.Pipeline.OverfetchFactor, c.Normalization.Enabled)
	return hex.EncodeToString(h.Sum(nil))[:16]
}

// EnumerateParams converts the enumerator options to their package form.
func (c *Config) EnumerateParams() babel.EnumerateParams {
	return babel.EnumerateParams{
		MaxResults: c.EnumMaxResults,
		Depth:      c.EnumDepth,
		MinNgram:   c.NgramMin,
		MaxNgram:   c.NgramMax,
	}
}

func (c *Config) CacheTTL() time.Duration { return time.Duration(c.Cache.TTLSeconds) * time.Second }

func (c *Config) Deadline() time.Duration {
	return time.Duration(c.Pipeline.DeadlineSeconds) * time.Second
}

func (c *Config) RemoteTimeout() time.Duration {
	return time.Duration(c.Pipeline.RemoteTimeoutSeconds) * time.Second
}

func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

func envString(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envInt(key string, dst *int) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func envBool(key string, dst *bool) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}
