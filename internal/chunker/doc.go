// Package chunker turns document files into paragraph chunks for indexing.
//
// PDF text is expected pre-extracted, one page per form feed, the way
// pdftotext writes it. Plain text, Markdown and HTML are read directly.
//
// # Basic Usage
//
//	c := chunker.New(chunker.Config{ChunkSize: 1000})
//	res, err := c.ChunkFile("/library/manual.pdf.txt")
//	if err != nil {
//	    return err
//	}
//	for _, chunk := range res.Chunks {
//	    fmt.Printf("%s page=%v words=%d\n",
//	        chunk.ID, chunk.Metadata.PageNumber, chunk.Metadata.WordCount)
//	}
//
// # Chunking Strategy
//
// Extracted text is post-processed first: wrapped lines are joined into
// paragraphs, whitespace is collapsed, control characters are removed and
// paragraphs shorter than MinParagraphChars are dropped. Each remaining
// paragraph that fits in ChunkSize characters is one chunk. Longer
// paragraphs are split on sentence boundaries and the sentences are packed
// greedily into chunks.
//
// Chunk IDs have the form chunk_<source hash>_<index>_<content hash>, so
// re-chunking unchanged content yields the same IDs.
package chunker
