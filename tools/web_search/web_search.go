package web_search

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"golang.org/x/time/rate"

	"github.com/mohammad-safakhou/mindsearch/config"
	"github.com/mohammad-safakhou/mindsearch/internal/helpers"
	"github.com/mohammad-safakhou/mindsearch/tools/web_search/brave"
	"github.com/mohammad-safakhou/mindsearch/tools/web_search/models"
	"github.com/mohammad-safakhou/mindsearch/tools/web_search/searxng"
	"github.com/mohammad-safakhou/mindsearch/tools/web_search/serper"
)

// WebSearcher returns ranked raw hits for one keyword.
type WebSearcher interface {
	Search(ctx context.Context, q string, opts models.Options) ([]models.Result, error)
}

type Provider string

const (
	SearxNGProvider Provider = "searxng"
	SerperProvider  Provider = "serper"
	BraveProvider   Provider = "brave"
)

var ErrUnsupportedProvider = errors.New("unsupported search provider")

// NewWebSearcher builds the configured backend, wrapped so that every call is
// rate limited and every hit is reduced to plain text.
func NewWebSearcher(cfg config.SearchConfig) (WebSearcher, error) {
	client := &http.Client{Timeout: cfg.Timeout}
	var backend WebSearcher
	switch Provider(cfg.Provider) {
	case SearxNGProvider:
		backend = searxng.Search{BaseURL: cfg.SearxNGURL, Client: client}
	case SerperProvider:
		backend = serper.Search{ApiKey: cfg.SerperAPIKey, Client: client}
	case BraveProvider:
		backend = brave.Search{ApiKey: cfg.BraveAPIKey, Client: client}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedProvider, cfg.Provider)
	}
	return Wrap(backend, cfg.RatePerSecond, models.Options{MaxResults: cfg.MaxResults, Language: cfg.Language}), nil
}

// Wrap applies rate limiting (perSecond <= 0 disables it), default options and
// snippet sanitisation around next.
func Wrap(next WebSearcher, perSecond float64, defaults models.Options) WebSearcher {
	w := &searcher{next: next, defaults: defaults}
	if perSecond > 0 {
		burst := int(perSecond)
		if burst < 1 {
			burst = 1
		}
		w.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
	return w
}

type searcher struct {
	next     WebSearcher
	limiter  *rate.Limiter
	defaults models.Options
}

func (s *searcher) Search(ctx context.Context, q string, opts models.Options) ([]models.Result, error) {
	q = strings.TrimSpace(q)
	if q == "" {
		return nil, errors.New("empty search keyword")
	}
	if opts.MaxResults <= 0 {
		opts.MaxResults = s.defaults.MaxResults
	}
	if opts.Language == "" {
		opts.Language = s.defaults.Language
	}
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("search rate limit: %w", err)
		}
	}
	results, err := s.next.Search(ctx, q, opts)
	if err != nil {
		return nil, err
	}
	out := results[:0]
	for _, r := range results {
		if strings.TrimSpace(r.URL) == "" {
			continue
		}
		r.Title = helpers.SanitizeText(r.Title)
		r.Content = helpers.SanitizeText(r.Content)
		out = append(out, r)
	}
	return out, nil
}
