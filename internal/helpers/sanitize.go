package helpers

import (
	"html"
	"strings"
	"sync"

	"github.com/microcosm-cc/bluemonday"
)

var (
	strictPolicyOnce sync.Once
	strictPolicy     *bluemonday.Policy
)

// StrictHTMLPolicy returns a singleton bluemonday policy that strips every HTML
// element and attribute.
func StrictHTMLPolicy() *bluemonday.Policy {
	strictPolicyOnce.Do(func() {
		strictPolicy = bluemonday.StrictPolicy()
	})
	return strictPolicy
}

// SanitizeText turns an HTML fragment (search snippets often carry <b> or
// entities) into plain text: tags stripped, entities decoded and whitespace
// runs, newlines included, collapsed to single spaces.
func SanitizeText(s string) string {
	if strings.TrimSpace(s) == "" {
		return ""
	}
	s = StrictHTMLPolicy().Sanitize(s)
	s = html.UnescapeString(s)
	return CollapseWhitespace(s)
}

// CollapseWhitespace replaces every whitespace run with one space and trims.
func CollapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
