package helpers

import (
	"strconv"
	"strings"
)

// Citation models metadata for a single referenced source.
type Citation struct {
	Index   int
	Title   string
	URL     string
	Snippet string
}

type citationConfig struct {
	maxSnippet int
}

// CitationOption configures citation formatting.
type CitationOption func(*citationConfig)

// WithMaxSnippetLength truncates snippets to n runes (default 180, 0 drops the snippet).
func WithMaxSnippetLength(n int) CitationOption {
	return func(cfg *citationConfig) {
		if n >= 0 {
			cfg.maxSnippet = n
		}
	}
}

// FormatCitation renders one line of the form:
// [n] Title: "Snippet" (domain) <URL>
func FormatCitation(c Citation, opts ...CitationOption) string {
	cfg := citationConfig{maxSnippet: 180}
	for _, opt := range opts {
		opt(&cfg)
	}

	parts := []string{"[" + strconv.Itoa(c.Index) + "]"}
	title := strings.TrimSpace(c.Title)
	if title == "" {
		title = strings.TrimSpace(c.URL)
	}
	if title != "" {
		parts = append(parts, title+":")
	}
	if snippet := formatSnippet(c.Snippet, cfg.maxSnippet); snippet != "" {
		parts = append(parts, snippet)
	}
	if domain := Domain(c.URL); domain != "" {
		parts = append(parts, "("+domain+")")
	}
	if link := strings.TrimSpace(c.URL); link != "" {
		parts = append(parts, "<"+link+">")
	}
	return strings.TrimSuffix(strings.Join(parts, " "), ":")
}

// FormatCitations renders a collection of citations, one per line.
func FormatCitations(citations []Citation, opts ...CitationOption) string {
	lines := make([]string, 0, len(citations))
	for _, c := range citations {
		lines = append(lines, FormatCitation(c, opts...))
	}
	return strings.Join(lines, "\n")
}

func formatSnippet(snippet string, limit int) string {
	if limit == 0 {
		return ""
	}
	snippet = strings.Join(strings.Fields(snippet), " ")
	if snippet == "" {
		return ""
	}
	if r := []rune(snippet); limit > 0 && len(r) > limit {
		snippet = string(r[:limit]) + "…"
	}
	return `"` + strings.Trim(snippet, `"`) + `"`
}
