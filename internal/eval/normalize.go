package eval

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

var articles = map[string]bool{"a": true, "an": true, "the": true}

// normalizeAnswer applies the standard open-domain QA normalization:
// NFKC fold, lowercase, punctuation stripped, articles removed, whitespace
// collapsed.
func normalizeAnswer(s string) string {
	s = strings.ToLower(norm.NFKC.String(s))

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if unicode.IsPunct(r) {
			b.WriteRune(' ')
			continue
		}
		b.WriteRune(r)
	}

	words := strings.Fields(b.String())
	out := words[:0]
	for _, w := range words {
		if !articles[w] {
			out = append(out, w)
		}
	}
	return strings.Join(out, " ")
}

// tokens returns the normalized unigram list for a string.
func tokens(s string) []string {
	n := normalizeAnswer(s)
	if n == "" {
		return nil
	}
	return strings.Split(n, " ")
}
