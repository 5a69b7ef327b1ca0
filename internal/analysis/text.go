package analysis

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// CloudHint points readers of an analysis at the word-cloud route. The id
// stays a placeholder so the text depends on content bytes alone.
const CloudHint = "You can find Word Cloud of this file in /v1/sources/{id}/word-cloud"

// Stats are the counts embedded in an analysis text.
type Stats struct {
	Words      int `json:"words" yaml:"words"`
	Characters int `json:"characters" yaml:"characters"`
	Lines      int `json:"lines" yaml:"lines"`
}

// Decode turns raw content into text, replacing invalid UTF-8 sequences
// with U+FFFD.
func Decode(data []byte) string {
	return strings.ToValidUTF8(string(data), "\uFFFD")
}

// ComputeStats counts whitespace-delimited words (space, tab, CR, LF),
// decoded characters and lines (newlines plus one).
func ComputeStats(text string) Stats {
	words := strings.FieldsFunc(text, func(r rune) bool {
		return r == ' ' || r == '\t' || r == '\n' || r == '\r'
	})
	return Stats{
		Words:      len(words),
		Characters: utf8.RuneCountInString(text),
		Lines:      strings.Count(text, "\n") + 1,
	}
}

// Summarize renders the fixed-format analysis text for data.
func Summarize(data []byte) string {
	return FormatStats(ComputeStats(Decode(data)))
}

// FormatStats renders st in the analysis text layout.
func FormatStats(st Stats) string {
	return fmt.Sprintf("Word count: %d\nCharacter count: %d\nLines: %d\n%s",
		st.Words, st.Characters, st.Lines, CloudHint)
}
