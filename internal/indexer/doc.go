// Package indexer coordinates the ingestion pipeline of the knowledge base.
//
// The indexer extracts and chunks documents, embeds the chunks in batches,
// stores everything in one transaction per document and then notifies the
// search engine so its corpus index follows storage.
//
// # Basic Usage
//
//	idx := indexer.New(store, emb, indexer.Config{},
//	    indexer.WithNotifier(search),
//	    indexer.WithLogger(logger))
//
//	res, err := idx.IngestFile(ctx, "/library/manual.pdf.txt")
//	if err != nil {
//	    return err
//	}
//	fmt.Printf("%s: %d chunks\n", res.Document.ID, res.ChunksCreated)
//
// # Pipeline
//
//  1. Extract: text by file type, pages split on form feeds
//  2. Chunk: paragraphs, long ones split by sentence
//  3. Embed: batches of BatchSize texts, EmbedWorkers requests at a time
//  4. Store: document row, chunks and embeddings in a single transaction
//  5. Notify: NotifyChunkRemoved for replaced chunks, NotifyChunkAdded for new ones
//
// A document is saved as processing before embedding starts and ends up
// completed or failed. Notification errors are logged and never fail the
// ingest, since storage remains the source of truth.
//
// # Incremental Indexing
//
// IngestFile compares the SHA-256 of the file with the stored document. An
// unchanged completed document is skipped. A changed one is re-chunked under
// the same document ID and its previous chunks and embeddings are dropped in
// the same transaction that stores the new ones.
//
// IndexDirectory walks a directory concurrently, skipping hidden entries and
// unsupported extensions, and deletes documents whose file has disappeared.
// Only one directory run can be active; a concurrent call returns
// ErrIndexingInProgress.
package indexer
