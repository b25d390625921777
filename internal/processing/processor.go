// Package processing holds text helpers shared by the timeline and the
// source archive.
package processing

import (
	"crypto/sha1"
	"encoding/hex"
	"html"
	"regexp"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Ellipsis marks truncated text.
const Ellipsis = "..."

var (
	urlRegex    = regexp.MustCompile(`https?://[^\s]+`)
	whitespace  = regexp.MustCompile(`\s+`)
	punctuation = regexp.MustCompile(`[^\p{L}\p{N}\s]+`)
)

var stopwords = map[string]struct{}{
	"a": {}, "an": {}, "the": {}, "to": {}, "in": {}, "for": {}, "of": {},
	"and": {}, "or": {}, "on": {}, "at": {}, "by": {}, "with": {}, "from": {},
	"is": {}, "are": {}, "was": {}, "were": {}, "this": {}, "that": {},
	"的": {}, "了": {}, "和": {}, "是": {}, "在": {},
}

// Truncate keeps the first limit characters of s and appends Ellipsis when
// anything was cut. Characters are counted as runes.
func Truncate(s string, limit int) string {
	if limit < 0 || utf8.RuneCountInString(s) <= limit {
		return s
	}
	n := 0
	for i := range s {
		if n == limit {
			return s[:i] + Ellipsis
		}
		n++
	}
	return s
}

// RemoveURLs replaces every URL in the input with a space.
func RemoveURLs(input string) string {
	return urlRegex.ReplaceAllString(input, " ")
}

// CleanText unescapes HTML, drops URLs and punctuation, and squeezes whitespace.
func CleanText(input string) string {
	if input == "" {
		return ""
	}
	out := html.UnescapeString(input)
	out = RemoveURLs(out)
	out = punctuation.ReplaceAllString(out, " ")
	out = whitespace.ReplaceAllString(out, " ")
	return strings.TrimSpace(out)
}

// ExtractKeywords returns up to limit of the most frequent non-stopword
// tokens of at least minLen runes. Ties break alphabetically.
func ExtractKeywords(text string, limit, minLen int) []string {
	clean := strings.ToLower(CleanText(text))
	if clean == "" {
		return nil
	}

	freq := make(map[string]int)
	for _, token := range strings.Fields(clean) {
		token = strings.TrimFunc(token, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsNumber(r)
		})
		if utf8.RuneCountInString(token) < minLen {
			continue
		}
		if _, skip := stopwords[token]; skip {
			continue
		}
		freq[token]++
	}
	if len(freq) == 0 {
		return nil
	}

	words := make([]string, 0, len(freq))
	for w := range freq {
		words = append(words, w)
	}
	sort.Slice(words, func(i, j int) bool {
		if freq[words[i]] == freq[words[j]] {
			return words[i] < words[j]
		}
		return freq[words[i]] > freq[words[j]]
	})

	if limit > 0 && limit < len(words) {
		words = words[:limit]
	}
	return words
}

// SourceID derives a stable archive ID for a search result. The URL identifies
// a source on its own; title and content are used only when it is missing.
func SourceID(url, title, content string) string {
	key := strings.TrimSpace(url)
	if key == "" {
		key = title + "|" + content
	}
	s := sha1.Sum([]byte(key))
	return hex.EncodeToString(s[:])
}

// TitleFromText builds a fallback title from the first sentence of text,
// capped at maxWords words.
func TitleFromText(text string, maxWords int) string {
	text = RemoveURLs(text)
	if end := strings.IndexAny(text, ".!?。！？"); end > 0 {
		text = text[:end]
	}
	words := strings.Fields(text)
	if len(words) == 0 {
		return ""
	}
	if maxWords > 0 && len(words) > maxWords {
		return strings.Join(words[:maxWords], " ") + Ellipsis
	}
	return strings.Join(words, " ")
}
