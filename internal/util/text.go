package util

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// PreviewLen is the length, in runes, of text previews.
const PreviewLen = 200

// Truncate shortens s to at most max runes, appending "…" when it cut
// anything. Invalid UTF-8 is passed through rune by rune.
func Truncate(s string, max int) string {
	if max <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	n := 0
	for i := range s {
		if n == max {
			return s[:i] + "…"
		}
		n++
	}
	return s
}

// Preview trims surrounding whitespace and truncates to PreviewLen.
func Preview(s string) string {
	return Truncate(strings.TrimSpace(s), PreviewLen)
}

// Slack wraps links as <url|label>; stop at the pipe and the closing bracket.
var urlPattern = regexp.MustCompile(`https?://[^\s>|)]+`)

// ExtractURLs returns every http(s) URL in text, in order of appearance.
// Duplicates are kept.
func ExtractURLs(text string) []string {
	return urlPattern.FindAllString(text, -1)
}

// ContainsFold reports whether substr occurs in s, ignoring case.
func ContainsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
