package processing_test

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/require"

	"github.com/DeafMist/news-provenance/internal/processing"
)

func TestTruncate(t *testing.T) {
	tests := []struct {
		name  string
		input string
		limit int
		want  string
	}{
		{name: "empty", input: "", limit: 5, want: ""},
		{name: "shorter", input: "abc", limit: 5, want: "abc"},
		{name: "exact", input: "abcde", limit: 5, want: "abcde"},
		{name: "longer", input: "abcdef", limit: 5, want: "abcde..."},
		{name: "multibyte", input: "时间线生成服务", limit: 3, want: "时间线..."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, processing.Truncate(tt.input, tt.limit))
		})
	}
}

func TestTruncateLength(t *testing.T) {
	long := strings.Repeat("新", 250)
	got := processing.Truncate(long, 200)
	require.Equal(t, 203, utf8.RuneCountInString(got))
	require.True(t, strings.HasSuffix(got, processing.Ellipsis))
}

func TestCleanText(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "empty", input: "", want: ""},
		{name: "punctuation", input: "Hello!!!   world", want: "Hello world"},
		{name: "collapse whitespace", input: "foo\n\nbar\t baz", want: "foo bar baz"},
		{name: "remove urls", input: "Check https://example.com for info", want: "Check for info"},
		{name: "html entities", input: "Tom &amp; Jerry", want: "Tom Jerry"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, processing.CleanText(tt.input))
		})
	}
}

func TestExtractKeywords(t *testing.T) {
	text := "Flood flood report report report river and the sun"
	got := processing.ExtractKeywords(text, 3, 3)
	require.Equal(t, []string{"report", "flood", "river"}, got)

	require.Nil(t, processing.ExtractKeywords("", 5, 3))
}

func TestExtractKeywordsIgnoresURLWords(t *testing.T) {
	text := "report report https://example.com/flood-news river"
	got := processing.ExtractKeywords(text, 3, 3)
	require.ElementsMatch(t, []string{"report", "river"}, got)
}

func TestSourceID(t *testing.T) {
	a := processing.SourceID("https://example.com/a", "title", "one")
	b := processing.SourceID("https://example.com/a", "other title", "two")
	require.NotEmpty(t, a)
	require.Equal(t, a, b)

	c := processing.SourceID("", "title", "one")
	d := processing.SourceID("", "title", "two")
	require.NotEqual(t, c, d)
}

func TestTitleFromText(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		maxWords int
		want     string
	}{
		{name: "empty", text: "", maxWords: 10, want: ""},
		{name: "first sentence", text: "Flooding hits the coast. More rain expected.", maxWords: 10, want: "Flooding hits the coast"},
		{name: "truncated", text: "one two three four five six", maxWords: 3, want: "one two three..."},
		{name: "url only", text: "https://example.com", maxWords: 3, want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, processing.TitleFromText(tt.text, tt.maxWords))
		})
	}
}
