package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"go.uber.org/zap/zapcore"
)

// ErrInvalidConfig wraps every validation failure
var ErrInvalidConfig = errors.New("invalid configuration")

const (
	// DefaultDirName is the data directory under the user's home
	DefaultDirName = ".pdfkb"
	// FileName is the config file inside the data directory
	FileName = "config.toml"
	// DatabaseName is the SQLite file inside the data directory
	DatabaseName = "pdfkb.db"
)

// Duration is a time.Duration written as a Go duration string ("5s", "10m")
type Duration struct {
	time.Duration
}

// UnmarshalText parses a duration string
func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(b)))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// MarshalText formats the duration
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Config is the complete application configuration
type Config struct {
	DataDir   string          `toml:"data_dir"`
	Search    SearchConfig    `toml:"search"`
	Embedding EmbeddingConfig `toml:"embedding"`
	Chunking  ChunkingConfig  `toml:"chunking"`
	Indexing  IndexingConfig  `toml:"indexing"`
	HTTP      HTTPConfig      `toml:"http"`
	Watch     WatchConfig     `toml:"watch"`
	Log       LogConfig       `toml:"log"`
}

// SearchConfig tunes ranking and the response cache
type SearchConfig struct {
	DefaultTopK         int      `toml:"default_top_k"`
	MaxTopK             int      `toml:"max_top_k"`
	SemanticWeight      float64  `toml:"semantic_weight"`
	Fusion              string   `toml:"fusion"`
	BM25K1              float64  `toml:"bm25_k1"`
	BM25B               float64  `toml:"bm25_b"`
	RRFK                float64  `toml:"rrf_k"`
	CandidateMultiplier int      `toml:"candidate_multiplier"`
	SemanticTimeout     Duration `toml:"semantic_timeout"`
	CacheSize           int      `toml:"cache_size"` // Negative disables the cache
	CacheTTL            Duration `toml:"cache_ttl"`
}

// EmbeddingConfig selects and tunes the embedding provider. An empty
// provider is detected from the environment.
type EmbeddingConfig struct {
	Provider          string   `toml:"provider"`
	APIKey            string   `toml:"api_key"`
	Model             string   `toml:"model"`
	BaseURL           string   `toml:"base_url"`
	CacheSize         int      `toml:"cache_size"`
	RequestsPerSecond float64  `toml:"requests_per_second"`
	BatchSize         int      `toml:"batch_size"`
	Workers           int      `toml:"workers"`
	Timeout           Duration `toml:"timeout"`
}

// ChunkingConfig controls chunk sizes
type ChunkingConfig struct {
	ChunkSize         int `toml:"chunk_size"`
	MinParagraphChars int `toml:"min_paragraph_chars"`
}

// IndexingConfig controls directory indexing
type IndexingConfig struct {
	Workers int `toml:"workers"` // Zero selects the CPU count
}

// HTTPConfig configures the JSON API listener
type HTTPConfig struct {
	Addr string `toml:"addr"`
}

// WatchConfig configures the directory watcher. An empty Dir disables it.
type WatchConfig struct {
	Dir      string   `toml:"dir"`
	Debounce Duration `toml:"debounce"`
}

// LogConfig configures the logger
type LogConfig struct {
	Level       string `toml:"level"`
	Development bool   `toml:"development"`
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		DataDir: filepath.Join("~", DefaultDirName),
		Search: SearchConfig{
			DefaultTopK:         5,
			MaxTopK:             50,
			SemanticWeight:      0.5,
			Fusion:              "weighted",
			BM25K1:              1.5,
			BM25B:               0.75,
			RRFK:                60,
			CandidateMultiplier: 3,
			SemanticTimeout:     Duration{5 * time.Second},
			CacheSize:           1000,
			CacheTTL:            Duration{10 * time.Minute},
		},
		Embedding: EmbeddingConfig{
			CacheSize: 10000,
			BatchSize: 32,
			Workers:   4,
			Timeout:   Duration{30 * time.Second},
		},
		Chunking: ChunkingConfig{
			ChunkSize:         1000,
			MinParagraphChars: 50,
		},
		HTTP:  HTTPConfig{Addr: ":8080"},
		Watch: WatchConfig{Debounce: Duration{500 * time.Millisecond}},
		Log:   LogConfig{Level: "info"},
	}
}

// DefaultPath returns ~/.pdfkb/config.toml
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, DefaultDirName, FileName), nil
}

// Load builds the configuration from defaults, the TOML file at path and
// PDFKB_* environment variables, in that order, and validates the result.
// An empty path reads the default file if it exists.
func Load(path string) (*Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		p, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		path = p
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := decode(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
		// No config file yet - defaults apply
	default:
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// decode rejects unknown keys so typos don't silently fall back to defaults
func decode(data []byte, cfg *Config) error {
	return toml.NewDecoder(bytes.NewReader(data)).DisallowUnknownFields().Decode(cfg)
}

// Save writes the configuration as TOML, creating the directory if needed
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	data, err := c.TOML()
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// TOML encodes the configuration in file form
func (c *Config) TOML() ([]byte, error) {
	return toml.Marshal(c)
}

// ResolvedDataDir returns DataDir with a leading ~ expanded
func (c *Config) ResolvedDataDir() (string, error) {
	return expandHome(c.DataDir)
}

// DatabasePath returns the SQLite file inside the data directory
func (c *Config) DatabasePath() (string, error) {
	dir, err := c.ResolvedDataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, DatabaseName), nil
}

func expandHome(p string) (string, error) {
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, strings.TrimPrefix(p, "~")), nil
}

// Validate checks every section and reports all problems at once
func (c *Config) Validate() error {
	var problems []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			problems = append(problems, fmt.Errorf(format, args...))
		}
	}

	s := c.Search
	check(c.DataDir != "", "data_dir is required")
	check(s.MaxTopK > 0, "search.max_top_k must be positive, got %d", s.MaxTopK)
	check(s.DefaultTopK > 0 && (s.MaxTopK <= 0 || s.DefaultTopK <= s.MaxTopK),
		"search.default_top_k must be within [1,%d], got %d", s.MaxTopK, s.DefaultTopK)
	check(s.SemanticWeight >= 0 && s.SemanticWeight <= 1,
		"search.semantic_weight must be within [0,1], got %v", s.SemanticWeight)
	check(s.Fusion == "weighted" || s.Fusion == "rrf",
		"search.fusion must be weighted or rrf, got %q", s.Fusion)
	check(s.BM25K1 > 0, "search.bm25_k1 must be positive, got %v", s.BM25K1)
	check(s.BM25B >= 0 && s.BM25B <= 1, "search.bm25_b must be within [0,1], got %v", s.BM25B)
	check(s.RRFK > 0, "search.rrf_k must be positive, got %v", s.RRFK)
	check(s.CandidateMultiplier >= 1, "search.candidate_multiplier must be at least 1, got %d", s.CandidateMultiplier)
	check(s.SemanticTimeout.Duration > 0, "search.semantic_timeout must be positive")
	check(s.CacheTTL.Duration > 0, "search.cache_ttl must be positive")

	e := c.Embedding
	switch strings.ToLower(e.Provider) {
	case "", "local", "openai", "jina", "ollama":
	default:
		check(false, "embedding.provider must be one of local, openai, jina, ollama, got %q", e.Provider)
	}
	check(e.BatchSize >= 0, "embedding.batch_size cannot be negative")
	check(e.Workers >= 0, "embedding.workers cannot be negative")
	check(e.RequestsPerSecond >= 0, "embedding.requests_per_second cannot be negative")

	check(c.Chunking.ChunkSize > 0, "chunking.chunk_size must be positive, got %d", c.Chunking.ChunkSize)
	check(c.Indexing.Workers >= 0, "indexing.workers cannot be negative")
	check(c.Watch.Debounce.Duration >= 0, "watch.debounce cannot be negative")

	if c.Log.Level != "" {
		_, err := zapcore.ParseLevel(c.Log.Level)
		check(err == nil, "log.level %q is not a valid level", c.Log.Level)
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(problems...))
	}
	return nil
}
