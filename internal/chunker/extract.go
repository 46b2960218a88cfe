package chunker

import (
	"bytes"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"golang.org/x/net/html"
)

// ErrUnsupportedFormat is returned for file types Extract can't read
var ErrUnsupportedFormat = errors.New("unsupported file format")

// formFeed separates pages in pdftotext output
const formFeed = "\f"

// Format identifies how a file's bytes are turned into text
type Format string

const (
	FormatText     Format = "text"
	FormatMarkdown Format = "markdown"
	FormatHTML     Format = "html"
)

// Page is the raw text of one page. Number is 1-based.
type Page struct {
	Number int
	Text   string
}

// Extracted is the text content of one file
type Extracted struct {
	Title  string
	Format Format
	Pages  []Page
	Paged  bool // The input carried page breaks
}

// DetectFormat maps a file name to its format by extension.
// Pre-extracted PDFs are accepted as "name.pdf.txt".
func DetectFormat(name string) (Format, error) {
	lower := strings.ToLower(name)
	if strings.HasSuffix(lower, ".pdf.txt") {
		return FormatText, nil
	}

	switch filepath.Ext(lower) {
	case ".txt", ".text":
		return FormatText, nil
	case ".md", ".markdown":
		return FormatMarkdown, nil
	case ".html", ".htm":
		return FormatHTML, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Base(name))
	}
}

// Supported reports whether Extract can read the named file
func Supported(name string) bool {
	_, err := DetectFormat(name)
	return err == nil
}

// Extract reads the text of a file. Form feeds split the text into pages.
func Extract(name string, data []byte) (*Extracted, error) {
	format, err := DetectFormat(name)
	if err != nil {
		return nil, err
	}
	return ExtractFormat(format, data)
}

// ExtractFormat reads data as the given format regardless of file name
func ExtractFormat(format Format, data []byte) (*Extracted, error) {
	data = bytes.ToValidUTF8(data, []byte("�"))
	out := &Extracted{Format: format}

	var text string
	var err error
	switch format {
	case FormatHTML:
		out.Title, text, err = extractHTML(data)
		if err != nil {
			return nil, err
		}
	case FormatMarkdown:
		text = string(data)
		out.Title = markdownTitle(text)
	default:
		text = string(data)
	}

	text = strings.ReplaceAll(text, "\r\n", "\n")
	raw := strings.Split(text, formFeed)
	// pdftotext ends the last page with a form feed as well
	if len(raw) > 1 && strings.TrimSpace(raw[len(raw)-1]) == "" {
		raw = raw[:len(raw)-1]
	}
	out.Paged = len(raw) > 1
	for i, p := range raw {
		out.Pages = append(out.Pages, Page{Number: i + 1, Text: p})
	}
	return out, nil
}

// markdownTitle returns the first level-one heading
func markdownTitle(text string) string {
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "# ") {
			return strings.TrimSpace(strings.TrimPrefix(line, "# "))
		}
	}
	return ""
}

// blockElements end a paragraph in extracted HTML text
var blockElements = map[string]bool{
	"p": true, "div": true, "br": true, "li": true, "tr": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"section": true, "article": true, "header": true, "footer": true,
	"blockquote": true, "pre": true, "table": true, "ul": true, "ol": true,
}

// extractHTML walks the parsed document, skipping script and style content.
// Block elements become blank-line paragraph breaks.
func extractHTML(data []byte) (string, string, error) {
	doc, err := html.Parse(bytes.NewReader(data))
	if err != nil {
		return "", "", fmt.Errorf("failed to parse HTML: %w", err)
	}

	var title string
	var text strings.Builder

	var extract func(*html.Node)
	extract = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "script", "style", "noscript", "template":
				return
			case "title":
				if n.FirstChild != nil && title == "" {
					title = strings.TrimSpace(n.FirstChild.Data)
				}
				return
			}
		}
		if n.Type == html.TextNode {
			text.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			extract(c)
		}
		if n.Type == html.ElementNode && blockElements[n.Data] {
			text.WriteString("\n\n")
		}
	}
	extract(doc)

	return title, text.String(), nil
}
