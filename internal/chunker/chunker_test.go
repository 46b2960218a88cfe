package chunker

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdfkb/pdfkb-search/pkg/types"
)

func TestNew(t *testing.T) {
	c := New(Config{})
	assert.Equal(t, DefaultChunkSize, c.chunkSize)
	assert.Equal(t, DefaultMinParagraphChars, c.minChars)

	c = New(Config{ChunkSize: 200, MinParagraphChars: -1})
	assert.Equal(t, 200, c.chunkSize)
	assert.Equal(t, -1, c.minChars)
}

func TestDetectFormat(t *testing.T) {
	tests := []struct {
		name    string
		want    Format
		wantErr bool
	}{
		{"notes.txt", FormatText, false},
		{"scan.pdf.txt", FormatText, false},
		{"REPORT.TEXT", FormatText, false},
		{"readme.md", FormatMarkdown, false},
		{"guide.markdown", FormatMarkdown, false},
		{"index.html", FormatHTML, false},
		{"page.HTM", FormatHTML, false},
		{"manual.pdf", "", true},
		{"archive.zip", "", true},
		{"noext", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DetectFormat(tt.name)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrUnsupportedFormat)
				assert.False(t, Supported(tt.name))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.True(t, Supported(tt.name))
		})
	}
}

func TestExtract_FormFeedPages(t *testing.T) {
	ex, err := Extract("doc.pdf.txt", []byte("first page\r\nline two\fsecond page\f"))
	require.NoError(t, err)
	assert.True(t, ex.Paged)
	require.Len(t, ex.Pages, 2)
	assert.Equal(t, Page{Number: 1, Text: "first page\nline two"}, ex.Pages[0])
	assert.Equal(t, Page{Number: 2, Text: "second page"}, ex.Pages[1])

	ex, err = Extract("plain.txt", []byte("no page breaks here"))
	require.NoError(t, err)
	assert.False(t, ex.Paged)
	assert.Len(t, ex.Pages, 1)
}

func TestExtract_HTML(t *testing.T) {
	doc := `<html><head><title> Field Guide </title><style>p { color: red }</style></head>
<body><h1>Heading</h1><p>First paragraph.</p><script>var secret = 1;</script><p>Second &amp; last</p></body></html>`

	ex, err := Extract("guide.html", []byte(doc))
	require.NoError(t, err)
	assert.Equal(t, "Field Guide", ex.Title)
	assert.Equal(t, FormatHTML, ex.Format)

	text := ex.Pages[0].Text
	assert.Contains(t, text, "First paragraph.")
	assert.Contains(t, text, "Second & last")
	assert.NotContains(t, text, "secret")
	assert.NotContains(t, text, "color")
	assert.NotContains(t, text, "Field Guide")

	paras := paragraphs(PostProcess(text, 1))
	assert.Equal(t, []string{"Heading", "First paragraph.", "Second & last"}, paras)
}

func TestExtract_MarkdownTitle(t *testing.T) {
	ex, err := Extract("notes.md", []byte("intro line\n\n# Solar Basics\n\n## Details\n"))
	require.NoError(t, err)
	assert.Equal(t, "Solar Basics", ex.Title)
}

func TestPostProcess(t *testing.T) {
	in := "This is a line that wraps\nonto the next line and keeps going for a while.\n\n" +
		"short\n\n" +
		"  Another   paragraph\twith  \x07 bell and enough text to keep it.  "

	got := PostProcess(in, 20)
	assert.Equal(t,
		"This is a line that wraps onto the next line and keeps going for a while.\n\n"+
			"Another paragraph with bell and enough text to keep it.",
		got)

	assert.Empty(t, PostProcess("", 10))
	assert.Empty(t, PostProcess("tiny\n\nbits", 50))
}

func TestSplitSentences(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{
			name: "abbreviations",
			in:   "Dr. Smith arrived. He left! Then Mr. Jones came? Yes.",
			want: []string{"Dr. Smith arrived.", "He left!", "Then Mr. Jones came?", "Yes."},
		},
		{
			name: "decimal and lower case continuation",
			in:   "Version 2.5 is out. next one follows",
			want: []string{"Version 2.5 is out. next one follows"},
		},
		{
			name: "latin abbreviation",
			in:   "Use hand tools, e.g. Hammers work. Done",
			want: []string{"Use hand tools, e.g. Hammers work.", "Done"},
		},
		{
			name: "empty",
			in:   "   ",
			want: nil,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SplitSentences(tt.in))
		})
	}
}

func TestProcess_SplitsLongParagraphsBySentence(t *testing.T) {
	sentences := make([]string, 20)
	for i := range sentences {
		sentences[i] = fmt.Sprintf("Sentence number %02d has some words in it.", i)
	}
	para := strings.Join(sentences, " ")

	c := New(Config{ChunkSize: 100, MinParagraphChars: -1})
	chunks := c.ChunkText("/docs/long.txt", "long.txt", para)

	require.Len(t, chunks, 10)
	var rebuilt []string
	for i, chunk := range chunks {
		assert.LessOrEqual(t, utf8.RuneCountInString(chunk.Content), 100)
		assert.Equal(t, i, chunk.Metadata.ChunkIndex)
		assert.Equal(t, "long.txt", chunk.Metadata.Source)
		assert.Nil(t, chunk.Metadata.PageNumber)
		assert.Equal(t, 16, chunk.Metadata.WordCount)
		assert.Equal(t, utf8.RuneCountInString(chunk.Content), chunk.Metadata.CharCount)
		rebuilt = append(rebuilt, chunk.Content)
	}
	assert.Equal(t, para, strings.Join(rebuilt, " "))
}

func TestProcess_OversizedSentenceStaysWhole(t *testing.T) {
	long := strings.Repeat("word ", 40) + "end."
	c := New(Config{ChunkSize: 50, MinParagraphChars: -1})

	chunks := c.ChunkText("k", "k.txt", long+" Short tail.")
	require.Len(t, chunks, 2)
	assert.Equal(t, strings.TrimSpace(long), chunks[0].Content)
	assert.Equal(t, "Short tail.", chunks[1].Content)
}

func TestProcess_PageNumbersAndIDs(t *testing.T) {
	data := "Page one paragraph that is long enough to survive the filter step.\n" +
		"\fPage two paragraph that is also long enough to survive the filter.\f"
	ex, err := Extract("report.pdf.txt", []byte(data))
	require.NoError(t, err)

	c := New(Config{})
	res := c.Process("/library/report.pdf.txt", "report.pdf.txt", ex)
	require.Len(t, res.Chunks, 2)
	assert.Equal(t, 2, res.NumPages)

	for i, chunk := range res.Chunks {
		require.NotNil(t, chunk.Metadata.PageNumber)
		assert.Equal(t, i+1, *chunk.Metadata.PageNumber)
		assert.Equal(t, i, chunk.Metadata.ChunkIndex)
		assert.Equal(t, types.ChunkID("/library/report.pdf.txt", i, chunk.Content), chunk.ID)
		assert.True(t, strings.HasPrefix(chunk.ID, "chunk_"))
	}
	assert.Equal(t, res.Chunks[0].Content+"\n\n"+res.Chunks[1].Content, res.Text)

	again := c.Process("/library/report.pdf.txt", "report.pdf.txt", ex)
	assert.Equal(t, res.Chunks[0].ID, again.Chunks[0].ID, "unchanged content keeps its IDs")

	moved := c.Process("/archive/report.pdf.txt", "report.pdf.txt", ex)
	assert.NotEqual(t, res.Chunks[0].ID, moved.Chunks[0].ID)
}

func TestProcess_DropsShortParagraphs(t *testing.T) {
	text := "Header\n\n3\n\nThis paragraph carries the actual content of the page and is kept."
	chunks := New(Config{}).ChunkText("k", "k.txt", text)
	require.Len(t, chunks, 1)
	assert.Equal(t, 0, chunks[0].Metadata.ChunkIndex)
	assert.Contains(t, chunks[0].Content, "actual content")
}

func TestChunkFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "notes.md")
	content := "# Field Notes\n\nThe inverter tripped twice during the afternoon load test on Tuesday.\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	res, err := New(Config{}).ChunkFile(path)
	require.NoError(t, err)
	assert.Equal(t, "Field Notes", res.Title)
	require.Len(t, res.Chunks, 1)
	assert.Equal(t, "notes.md", res.Chunks[0].Metadata.Source)
	assert.Zero(t, res.NumPages)

	_, err = New(Config{}).ChunkFile(filepath.Join(dir, "missing.txt"))
	assert.Error(t, err)

	bin := filepath.Join(dir, "image.png")
	require.NoError(t, os.WriteFile(bin, []byte{0x89, 'P', 'N', 'G'}, 0o644))
	_, err = New(Config{}).ChunkFile(bin)
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}
