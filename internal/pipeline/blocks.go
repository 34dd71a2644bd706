package pipeline

import (
	"errors"
	"regexp"
	"strings"
)

var (
	ErrBlockMissing = errors.New("structured block missing")
	ErrBlockEmpty   = errors.New("structured block empty")
)

// leading list markers such as "- ", "* ", "1. ", "2) " or bullets
var listMarker = regexp.MustCompile(`^(\s*(-|\*|\d+\.\s|\d+\)\s|\x{2022})\s*)+`)

// ExtractBlock returns the trimmed text between <key> and the following
// </key>. A surrounding markdown code fence and leading list markers are
// removed.
func ExtractBlock(text, key string) (string, error) {
	open, closing := "<"+key+">", "</"+key+">"
	start := strings.Index(text, open)
	if start < 0 {
		return "", ErrBlockMissing
	}
	start += len(open)
	end := strings.Index(text[start:], closing)
	if end < 0 {
		return "", ErrBlockMissing
	}
	body := strings.TrimSpace(text[start : start+end])
	body = stripFence(body)
	body = strings.TrimSpace(listMarker.ReplaceAllString(body, ""))
	if body == "" {
		return "", ErrBlockEmpty
	}
	return body, nil
}

func stripFence(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		// drop a language tag such as ```json
		if tag := strings.TrimSpace(s[:nl]); !strings.ContainsAny(tag, "[{") {
			s = s[nl+1:]
		}
	}
	s = strings.TrimSpace(s)
	return strings.TrimSpace(strings.TrimSuffix(s, "```"))
}

// trimStrayQuote drops one trailing double quote. Some models close the block
// payload with an extra quote after the JSON array.
func trimStrayQuote(s string) string {
	return strings.TrimSuffix(s, `"`)
}
