package chunker

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// PostProcess joins wrapped lines into paragraphs, collapses whitespace,
// strips control characters and drops paragraphs shorter than minChars.
// Paragraphs are separated by a blank line in the result.
func PostProcess(text string, minChars int) string {
	if text == "" {
		return ""
	}

	var paragraphs []string
	var current []string

	flush := func() {
		if len(current) == 0 {
			return
		}
		p := strings.TrimSpace(strings.Join(current, " "))
		if utf8.RuneCountInString(p) >= minChars {
			paragraphs = append(paragraphs, p)
		}
		current = current[:0]
	}

	for _, line := range strings.Split(text, "\n") {
		line = cleanLine(line)
		if line == "" {
			flush()
			continue
		}
		current = append(current, line)
	}
	flush()

	return strings.Join(paragraphs, "\n\n")
}

// cleanLine collapses whitespace runs and removes control characters
func cleanLine(line string) string {
	line = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) && !unicode.IsSpace(r) {
			return -1
		}
		return r
	}, line)
	return strings.Join(strings.Fields(line), " ")
}

// paragraphs splits post-processed text on blank lines
func paragraphs(text string) []string {
	var out []string
	for _, p := range strings.Split(text, "\n\n") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// abbreviations never end a sentence
var abbreviations = map[string]bool{
	"Dr": true, "Mr": true, "Mrs": true, "Ms": true, "Prof": true,
	"Sr": true, "Jr": true, "Inc": true, "Ltd": true, "Co": true,
	"e.g": true, "i.e": true, "etc": true, "vs": true, "St": true,
}

// SplitSentences breaks text after '.', '!' or '?' when whitespace and an
// upper case letter follow. A period ending a known abbreviation is not a
// boundary.
func SplitSentences(text string) []string {
	runes := []rune(text)
	var out []string
	start := 0

	for i := 0; i < len(runes); i++ {
		r := runes[i]
		if r != '.' && r != '!' && r != '?' {
			continue
		}

		j := i + 1
		for j < len(runes) && unicode.IsSpace(runes[j]) {
			j++
		}
		if j == i+1 || j >= len(runes) || !unicode.IsUpper(runes[j]) {
			continue
		}
		if r == '.' && abbreviations[lastWord(runes[start:i])] {
			continue
		}

		if s := strings.TrimSpace(string(runes[start : i+1])); s != "" {
			out = append(out, s)
		}
		start = j
		i = j - 1
	}

	if s := strings.TrimSpace(string(runes[start:])); s != "" {
		out = append(out, s)
	}
	return out
}

// lastWord returns the trailing run of non-space runes
func lastWord(runes []rune) string {
	end := len(runes)
	begin := end
	for begin > 0 && !unicode.IsSpace(runes[begin-1]) {
		begin--
	}
	return string(runes[begin:end])
}
