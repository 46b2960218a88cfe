// Package storage provides SQLite-based persistence for the knowledge base.
//
// The storage layer manages:
//   - Document metadata and content hashes
//   - Text chunks with their page and position metadata
//   - Vector embeddings for chunks
//
// It is also the vector store and chunk repository of the search engine:
// SimilaritySearch ranks embeddings by cosine similarity, and GetChunk and
// ListChunks return chunks with the owning document's filename and upload
// date filled in.
//
// # Database Schema
//
// Tables:
//   - documents: filename, source path, status, SHA-256 content hash
//   - chunks: chunk text keyed by stable chunk ID
//   - embeddings: little-endian float32 vectors keyed by chunk ID
//
// Deleting a document cascades to its chunks and embeddings.
//
// # Basic Usage
//
//	store, err := storage.NewSQLiteStorage("~/.pdfkb/pdfkb.db")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer store.Close()
//
//	doc := &types.Document{Filename: "report.pdf", Status: types.StatusPending}
//	if err := store.UpsertDocument(ctx, doc); err != nil {
//	    return err
//	}
//
// # Transactions
//
// Use transactions for atomic operations:
//
//	tx, err := store.BeginTx(ctx)
//	if err != nil {
//	    return err
//	}
//	defer tx.Rollback()
//
//	_ = tx.UpsertDocument(ctx, doc)
//	for _, c := range chunks {
//	    _ = tx.UpsertChunk(ctx, c)
//	}
//
//	if err := tx.Commit(); err != nil {
//	    return err
//	}
//
// The connection pool holds one connection, so code holding a Tx must not
// call methods on the SQLiteStorage itself until it commits or rolls back.
//
// # Build Modes
//
// The default build uses modernc.org/sqlite and ranks vectors in Go. Building
// with the sqlite_vec tag switches to github.com/mattn/go-sqlite3 and ranks
// with vec_distance_cosine in SQL. Both return raw cosine similarity.
package storage
