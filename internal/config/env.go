package config

import (
	"fmt"
	"strconv"
	"time"
)

// EnvPrefix starts every environment override
const EnvPrefix = "PDFKB_"

// envSetter applies one environment value
type envSetter func(c *Config, v string) error

func setString(dst func(*Config) *string) envSetter {
	return func(c *Config, v string) error {
		*dst(c) = v
		return nil
	}
}

func setInt(dst func(*Config) *int) envSetter {
	return func(c *Config, v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return err
		}
		*dst(c) = n
		return nil
	}
}

func setFloat(dst func(*Config) *float64) envSetter {
	return func(c *Config, v string) error {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return err
		}
		*dst(c) = f
		return nil
	}
}

func setDuration(dst func(*Config) *Duration) envSetter {
	return func(c *Config, v string) error {
		d, err := time.ParseDuration(v)
		if err != nil {
			return err
		}
		dst(c).Duration = d
		return nil
	}
}

func setBool(dst func(*Config) *bool) envSetter {
	return func(c *Config, v string) error {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return err
		}
		*dst(c) = b
		return nil
	}
}

// envOverrides maps variable names, without the prefix, to config fields
var envOverrides = map[string]envSetter{
	"DATA_DIR": setString(func(c *Config) *string { return &c.DataDir }),

	"DEFAULT_TOP_K":        setInt(func(c *Config) *int { return &c.Search.DefaultTopK }),
	"MAX_TOP_K":            setInt(func(c *Config) *int { return &c.Search.MaxTopK }),
	"SEMANTIC_WEIGHT":      setFloat(func(c *Config) *float64 { return &c.Search.SemanticWeight }),
	"FUSION":               setString(func(c *Config) *string { return &c.Search.Fusion }),
	"CANDIDATE_MULTIPLIER": setInt(func(c *Config) *int { return &c.Search.CandidateMultiplier }),
	"SEMANTIC_TIMEOUT":     setDuration(func(c *Config) *Duration { return &c.Search.SemanticTimeout }),
	"CACHE_SIZE":           setInt(func(c *Config) *int { return &c.Search.CacheSize }),
	"CACHE_TTL":            setDuration(func(c *Config) *Duration { return &c.Search.CacheTTL }),

	"EMBEDDING_PROVIDER": setString(func(c *Config) *string { return &c.Embedding.Provider }),
	"EMBEDDING_MODEL":    setString(func(c *Config) *string { return &c.Embedding.Model }),
	"EMBEDDING_API_KEY":  setString(func(c *Config) *string { return &c.Embedding.APIKey }),
	"EMBEDDING_BASE_URL": setString(func(c *Config) *string { return &c.Embedding.BaseURL }),
	"EMBEDDING_RPS":      setFloat(func(c *Config) *float64 { return &c.Embedding.RequestsPerSecond }),

	"CHUNK_SIZE":          setInt(func(c *Config) *int { return &c.Chunking.ChunkSize }),
	"MIN_PARAGRAPH_CHARS": setInt(func(c *Config) *int { return &c.Chunking.MinParagraphChars }),

	"HTTP_ADDR":      setString(func(c *Config) *string { return &c.HTTP.Addr }),
	"WATCH_DIR":      setString(func(c *Config) *string { return &c.Watch.Dir }),
	"WATCH_DEBOUNCE": setDuration(func(c *Config) *Duration { return &c.Watch.Debounce }),

	"LOG_LEVEL":       setString(func(c *Config) *string { return &c.Log.Level }),
	"LOG_DEVELOPMENT": setBool(func(c *Config) *bool { return &c.Log.Development }),
}

// applyEnv applies every PDFKB_* variable lookup finds
func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	for name, set := range envOverrides {
		v, ok := lookup(EnvPrefix + name)
		if !ok || v == "" {
			continue
		}
		if err := set(c, v); err != nil {
			return fmt.Errorf("%w: %s%s=%q: %w", ErrInvalidConfig, EnvPrefix, name, v, err)
		}
	}
	return nil
}
