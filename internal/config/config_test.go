package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 5, cfg.Search.DefaultTopK)
	assert.Equal(t, 50, cfg.Search.MaxTopK)
	assert.Equal(t, 0.5, cfg.Search.SemanticWeight)
	assert.Equal(t, "weighted", cfg.Search.Fusion)
	assert.Equal(t, 5*time.Second, cfg.Search.SemanticTimeout.Duration)
	assert.Equal(t, 1000, cfg.Chunking.ChunkSize)
	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, 500*time.Millisecond, cfg.Watch.Debounce.Duration)
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
data_dir = "/var/lib/pdfkb"

[search]
default_top_k = 10
semantic_weight = 0.7
fusion = "rrf"
semantic_timeout = "2s"
cache_ttl = "1h"

[embedding]
provider = "ollama"
model = "nomic-embed-text"

[watch]
dir = "/srv/library"
debounce = "1s"

[log]
level = "debug"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/pdfkb", cfg.DataDir)
	assert.Equal(t, 10, cfg.Search.DefaultTopK)
	assert.Equal(t, 0.7, cfg.Search.SemanticWeight)
	assert.Equal(t, "rrf", cfg.Search.Fusion)
	assert.Equal(t, 2*time.Second, cfg.Search.SemanticTimeout.Duration)
	assert.Equal(t, time.Hour, cfg.Search.CacheTTL.Duration)
	assert.Equal(t, "ollama", cfg.Embedding.Provider)
	assert.Equal(t, "/srv/library", cfg.Watch.Dir)
	assert.Equal(t, time.Second, cfg.Watch.Debounce.Duration)
	assert.Equal(t, "debug", cfg.Log.Level)

	// Untouched keys keep their defaults
	assert.Equal(t, 50, cfg.Search.MaxTopK)
	assert.Equal(t, 1.5, cfg.Search.BM25K1)

	dbPath, err := cfg.DatabasePath()
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/pdfkb/pdfkb.db", dbPath)
}

func TestLoad_Errors(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name    string
		content string
	}{
		{"unknown key", "[search]\ntop_kk = 3\n"},
		{"bad duration", "[search]\nsemantic_timeout = \"soon\"\n"},
		{"invalid value", "[search]\nsemantic_weight = 1.5\n"},
		{"malformed toml", "[search\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, tt.name+".toml")
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0o600))
			_, err := Load(path)
			assert.Error(t, err)
		})
	}

	t.Run("explicit path must exist", func(t *testing.T) {
		_, err := Load(filepath.Join(dir, "missing.toml"))
		assert.Error(t, err)
	})
}

func TestLoad_DefaultPathOptional(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default().Search, cfg.Search)

	dir, err := cfg.ResolvedDataDir()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, DefaultDirName), dir)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("[search]\nsemantic_weight = 0.7\n"), 0o600))

	t.Setenv("PDFKB_SEMANTIC_WEIGHT", "0.2")
	t.Setenv("PDFKB_HTTP_ADDR", "127.0.0.1:9000")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 0.2, cfg.Search.SemanticWeight)
	assert.Equal(t, "127.0.0.1:9000", cfg.HTTP.Addr)
}

func TestApplyEnv(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		check   func(t *testing.T, c *Config)
		wantErr bool
	}{
		{
			name: "all kinds",
			env: map[string]string{
				"PDFKB_DATA_DIR":        "/data",
				"PDFKB_MAX_TOP_K":       "20",
				"PDFKB_FUSION":          "rrf",
				"PDFKB_CACHE_TTL":       "30s",
				"PDFKB_LOG_DEVELOPMENT": "true",
				"PDFKB_EMBEDDING_RPS":   "2.5",
				"PDFKB_WATCH_DEBOUNCE":  "250ms",
				"PDFKB_EMBEDDING_MODEL": "text-embedding-3-small",
				"PDFKB_CHUNK_SIZE":      "500",
			},
			check: func(t *testing.T, c *Config) {
				assert.Equal(t, "/data", c.DataDir)
				assert.Equal(t, 20, c.Search.MaxTopK)
				assert.Equal(t, "rrf", c.Search.Fusion)
				assert.Equal(t, 30*time.Second, c.Search.CacheTTL.Duration)
				assert.True(t, c.Log.Development)
				assert.Equal(t, 2.5, c.Embedding.RequestsPerSecond)
				assert.Equal(t, 250*time.Millisecond, c.Watch.Debounce.Duration)
				assert.Equal(t, "text-embedding-3-small", c.Embedding.Model)
				assert.Equal(t, 500, c.Chunking.ChunkSize)
			},
		},
		{
			name: "empty values are ignored",
			env:  map[string]string{"PDFKB_MAX_TOP_K": ""},
			check: func(t *testing.T, c *Config) {
				assert.Equal(t, 50, c.Search.MaxTopK)
			},
		},
		{name: "bad int", env: map[string]string{"PDFKB_MAX_TOP_K": "many"}, wantErr: true},
		{name: "bad float", env: map[string]string{"PDFKB_SEMANTIC_WEIGHT": "half"}, wantErr: true},
		{name: "bad duration", env: map[string]string{"PDFKB_CACHE_TTL": "forever"}, wantErr: true},
		{name: "bad bool", env: map[string]string{"PDFKB_LOG_DEVELOPMENT": "maybe"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			err := cfg.applyEnv(func(k string) (string, bool) {
				v, ok := tt.env[k]
				return v, ok
			})
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidConfig)
				return
			}
			require.NoError(t, err)
			tt.check(t, cfg)
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"empty data dir", func(c *Config) { c.DataDir = "" }},
		{"zero max top k", func(c *Config) { c.Search.MaxTopK = 0 }},
		{"default top k above max", func(c *Config) { c.Search.DefaultTopK = 51 }},
		{"negative weight", func(c *Config) { c.Search.SemanticWeight = -0.1 }},
		{"unknown fusion", func(c *Config) { c.Search.Fusion = "borda" }},
		{"zero k1", func(c *Config) { c.Search.BM25K1 = 0 }},
		{"b above one", func(c *Config) { c.Search.BM25B = 1.2 }},
		{"zero rrf k", func(c *Config) { c.Search.RRFK = 0 }},
		{"zero multiplier", func(c *Config) { c.Search.CandidateMultiplier = 0 }},
		{"zero timeout", func(c *Config) { c.Search.SemanticTimeout = Duration{} }},
		{"unknown provider", func(c *Config) { c.Embedding.Provider = "cohere" }},
		{"zero chunk size", func(c *Config) { c.Chunking.ChunkSize = 0 }},
		{"negative workers", func(c *Config) { c.Indexing.Workers = -1 }},
		{"bad log level", func(c *Config) { c.Log.Level = "loud" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
		})
	}

	t.Run("reports every problem", func(t *testing.T) {
		cfg := Default()
		cfg.Search.Fusion = "borda"
		cfg.Chunking.ChunkSize = -1
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "search.fusion")
		assert.Contains(t, err.Error(), "chunking.chunk_size")
	})

	t.Run("weight boundaries allowed", func(t *testing.T) {
		for _, w := range []float64{0, 1} {
			cfg := Default()
			cfg.Search.SemanticWeight = w
			assert.NoError(t, cfg.Validate())
		}
	})
}

func TestSave_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	cfg := Default()
	cfg.DataDir = "/tmp/kb"
	cfg.Search.Fusion = "rrf"
	cfg.Watch.Debounce = Duration{2 * time.Second}

	require.NoError(t, cfg.Save(path))
	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}
