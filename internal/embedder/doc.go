// Package embedder generates vector embeddings for document chunks and
// search queries.
//
// The embedder supports multiple providers (OpenAI, Jina AI, Ollama and an
// offline hashing model) and provides batching, caching, rate limiting and
// retry for production use.
//
// # Basic Usage
//
//	// Create embedder (auto-detects provider from environment)
//	emb, err := embedder.NewFromEnv()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer emb.Close()
//
//	result, err := emb.GenerateEmbedding(ctx, embedder.EmbeddingRequest{
//	    Text: "How do I reset the device?",
//	})
//	fmt.Printf("Vector dimension: %d\n", len(result.Vector))
//
// # Batch Processing
//
// Chunk ingestion embeds in batches of up to MaxBatchSize texts:
//
//	resp, err := emb.GenerateBatch(ctx, embedder.BatchEmbeddingRequest{
//	    Texts: []string{chunk1.Content, chunk2.Content},
//	})
//
// API providers only send the texts missing from the cache.
//
// # Providers
//
// Provider selection (see DetectProvider):
//  1. PDFKB_EMBEDDING_PROVIDER if set
//  2. openai when OPENAI_API_KEY is set
//  3. jina when JINA_API_KEY is set
//  4. local otherwise
//
// The local provider hashes words and character trigrams into 384 signed
// buckets. It captures lexical overlap only, but it is deterministic and
// needs neither network nor model files, which also makes it the provider
// used in tests.
//
// # Errors
//
// Client errors (4xx other than 429) fail immediately. Network errors, 429
// and 5xx responses are retried with exponential backoff (100ms doubling up
// to 5s, three attempts); a 429 with Retry-After waits at least that long,
// still capped at 5s. Failures surface wrapped in ErrProviderFailed.
//
// Vectors are cached per model and text hash (see KeyFor), so switching
// models never serves a vector from the wrong space.
package embedder
