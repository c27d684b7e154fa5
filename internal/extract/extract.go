// Package extract finds hyperlink-shaped substrings in generated text and
// normalizes them into encyclopedia lookup keys.
package extract

import (
	"regexp"
	"strings"
)

// linkRegex matches http/https URLs, including the escaped-backslash form
// ("http:\\...") that completion models occasionally emit.
var linkRegex = regexp.MustCompile(`https?:(//|\\\\)+[\w:#@%/;$()~_?+\-=\\.&]*`)

// URLs returns every URL-shaped substring of text, in order, duplicates
// preserved. A single trailing period is stripped from each match so
// sentence-final punctuation does not end up in the lookup key.
func URLs(text string) []string {
	matches := linkRegex.FindAllString(text, -1)
	urls := make([]string, 0, len(matches))
	for _, m := range matches {
		urls = append(urls, strings.TrimSuffix(m, "."))
	}
	return urls
}

// Topic converts a URL into an encyclopedia topic key: the final
// path segment with any #fragment removed. The result is not validated;
// a URL ending in "/" yields the empty string.
func Topic(url string) string {
	if i := strings.Index(url, "#"); i >= 0 {
		url = url[:i]
	}
	if i := strings.LastIndex(url, "/"); i >= 0 {
		return url[i+1:]
	}
	return url
}
