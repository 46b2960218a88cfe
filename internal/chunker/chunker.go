package chunker

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/pdfkb/pdfkb-search/pkg/types"
)

const (
	// DefaultChunkSize is the target maximum chunk length in characters
	DefaultChunkSize = 1000

	// DefaultMinParagraphChars drops shorter paragraphs (headers, page numbers)
	DefaultMinParagraphChars = 50
)

// Config controls chunk sizing
type Config struct {
	ChunkSize         int
	MinParagraphChars int // Negative keeps every paragraph
}

// Chunker splits document text into paragraph chunks
type Chunker struct {
	chunkSize int
	minChars  int
}

// New creates a Chunker; zero fields take the defaults
func New(cfg Config) *Chunker {
	c := &Chunker{chunkSize: cfg.ChunkSize, minChars: cfg.MinParagraphChars}
	if c.chunkSize <= 0 {
		c.chunkSize = DefaultChunkSize
	}
	if c.minChars == 0 {
		c.minChars = DefaultMinParagraphChars
	}
	return c
}

// Result is the chunked form of one document
type Result struct {
	Title    string
	NumPages int
	Text     string // Post-processed text, pages joined by blank lines
	Chunks   []*types.Chunk
}

// ChunkFile reads, extracts and chunks a file. The path is the identity
// key of the chunk IDs and its base name is the chunk source.
func (c *Chunker) ChunkFile(path string) (*Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	ex, err := Extract(path, data)
	if err != nil {
		return nil, err
	}
	return c.Process(path, filepath.Base(path), ex), nil
}

// Process chunks extracted text. key keeps chunk IDs stable across
// re-indexing of the same source; name is recorded as Metadata.Source.
// Chunks carry page numbers only when the input had page breaks, and their
// DocumentID is left for the caller to fill.
func (c *Chunker) Process(key, name string, ex *Extracted) *Result {
	res := &Result{Title: ex.Title}
	if ex.Paged {
		res.NumPages = len(ex.Pages)
	}

	var texts []string
	index := 0
	for _, page := range ex.Pages {
		text := PostProcess(page.Text, c.minChars)
		if text == "" {
			continue
		}
		texts = append(texts, text)

		var pageNumber *int
		if ex.Paged {
			pageNumber = types.IntPtr(page.Number)
		}
		for _, para := range paragraphs(text) {
			for _, content := range c.split(para) {
				res.Chunks = append(res.Chunks, newChunk(key, name, index, content, pageNumber))
				index++
			}
		}
	}
	res.Text = strings.Join(texts, "\n\n")
	return res
}

// ChunkText chunks plain text without page information
func (c *Chunker) ChunkText(key, name, text string) []*types.Chunk {
	return c.Process(key, name, &Extracted{Format: FormatText, Pages: []Page{{Number: 1, Text: text}}}).Chunks
}

// split returns the paragraph whole when it fits, otherwise groups its
// sentences greedily into pieces of at most chunkSize characters. A single
// sentence longer than chunkSize becomes its own piece.
func (c *Chunker) split(para string) []string {
	if utf8.RuneCountInString(para) <= c.chunkSize {
		return []string{para}
	}

	var out []string
	var current []string
	length := 0
	for _, sentence := range SplitSentences(para) {
		n := utf8.RuneCountInString(sentence)
		if len(current) > 0 {
			n++ // Joining space
		}
		if length+n > c.chunkSize && len(current) > 0 {
			out = append(out, strings.Join(current, " "))
			current = current[:0]
			length = 0
			n--
		}
		current = append(current, sentence)
		length += n
	}
	if len(current) > 0 {
		out = append(out, strings.Join(current, " "))
	}
	return out
}

func newChunk(key, name string, index int, content string, page *int) *types.Chunk {
	var pageNumber *int
	if page != nil {
		pageNumber = types.IntPtr(*page)
	}
	return &types.Chunk{
		ID:      types.ChunkID(key, index, content),
		Content: content,
		Metadata: types.ChunkMetadata{
			Source:     name,
			PageNumber: pageNumber,
			ChunkIndex: index,
			WordCount:  len(strings.Fields(content)),
			CharCount:  utf8.RuneCountInString(content),
		},
	}
}
