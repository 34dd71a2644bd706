package helpers

import (
	"errors"
	"net/url"
	"strings"
)

// EnsureScheme prefixes https:// to links that carry neither http:// nor https://.
func EnsureScheme(link string) string {
	link = strings.TrimSpace(link)
	if link == "" {
		return ""
	}
	lower := strings.ToLower(link)
	if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") {
		return link
	}
	if strings.HasPrefix(link, "//") {
		return "https:" + link
	}
	return "https://" + link
}

// ParseFetchURL normalises link with EnsureScheme and rejects anything that
// does not resolve to an http(s) URL with a host.
func ParseFetchURL(link string) (*url.URL, error) {
	link = EnsureScheme(link)
	if link == "" {
		return nil, errors.New("empty url")
	}
	u, err := url.Parse(link)
	if err != nil {
		return nil, err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, errors.New("unsupported scheme " + u.Scheme)
	}
	if u.Host == "" {
		return nil, errors.New("url missing host")
	}
	return u, nil
}

// Domain returns the lower-cased host of raw without default ports and a leading www.
func Domain(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	u, err := url.Parse(EnsureScheme(raw))
	if err != nil {
		return ""
	}
	host := strings.ToLower(u.Host)
	host = strings.TrimSuffix(host, ":80")
	host = strings.TrimSuffix(host, ":443")
	return strings.TrimPrefix(host, "www.")
}
