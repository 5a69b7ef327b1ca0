package analysis

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestComputeStats(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want Stats
	}{
		// 35 characters: the sentence has 29 letters and 6 spaces.
		{name: "sentence", in: "This is a test content for analysis", want: Stats{Words: 7, Characters: 35, Lines: 1}},
		{name: "empty", in: "", want: Stats{Words: 0, Characters: 0, Lines: 1}},
		{name: "trailing newline", in: "one two\n", want: Stats{Words: 2, Characters: 8, Lines: 2}},
		{name: "mixed whitespace", in: " a\t\tb\r\nc  ", want: Stats{Words: 3, Characters: 10, Lines: 2}},
		{name: "only whitespace", in: " \t\r\n ", want: Stats{Words: 0, Characters: 5, Lines: 2}},
		{name: "multibyte", in: "héllo wörld", want: Stats{Words: 2, Characters: 11, Lines: 1}},
		{name: "other unicode space is not a separator", in: "a\u00a0b", want: Stats{Words: 1, Characters: 3, Lines: 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ComputeStats(tt.in))
		})
	}
}

func TestSummarizeFormat(t *testing.T) {
	got := Summarize([]byte("This is a test content for analysis"))
	want := "Word count: 7\nCharacter count: 35\nLines: 1\n" +
		"You can find Word Cloud of this file in /v1/sources/{id}/word-cloud"
	assert.Equal(t, want, got)
}

func TestSummarizeIsPureFunctionOfBytes(t *testing.T) {
	in := []byte("same\ncontent twice")
	assert.Equal(t, Summarize(in), Summarize(append([]byte(nil), in...)))
}

func TestDecodeReplacesInvalidUTF8(t *testing.T) {
	text := Decode([]byte{'o', 'k', 0xff, '!'})
	assert.Equal(t, "ok\uFFFD!", text)
	assert.Equal(t, 4, ComputeStats(text).Characters)
}
