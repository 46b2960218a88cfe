// Package config loads pdfkb settings.
//
// Values are resolved in order: built-in defaults, the TOML file
// (~/.pdfkb/config.toml unless --config names another), then PDFKB_*
// environment variables. The result is validated as a whole and every
// problem is reported in one error wrapping ErrInvalidConfig.
//
//	[search]
//	default_top_k = 5
//	semantic_weight = 0.5
//	fusion = "weighted"   # or "rrf"
//	semantic_timeout = "5s"
//
//	[embedding]
//	provider = "local"    # local, openai, jina, ollama
//
//	[watch]
//	dir = "/srv/library"
//	debounce = "500ms"
package config
