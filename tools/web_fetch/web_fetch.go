package web_fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mohammad-safakhou/mindsearch/config"
	"github.com/mohammad-safakhou/mindsearch/internal/helpers"
	"github.com/mohammad-safakhou/mindsearch/internal/runtime"
	"github.com/mohammad-safakhou/mindsearch/models"
	"github.com/mohammad-safakhou/mindsearch/tools/web_fetch/chromedp"
	fetchmodels "github.com/mohammad-safakhou/mindsearch/tools/web_fetch/models"
)

const (
	DefaultTimeout  = 20 * time.Second
	DefaultMaxBytes = 5 << 20
)

// WebFetcher downloads one URL.
type WebFetcher interface {
	Fetch(ctx context.Context, url string) (*fetchmodels.Page, error)
}

// HTTPFetcher performs a plain GET.
type HTTPFetcher struct {
	Client    *http.Client
	MaxBytes  int64
	UserAgent string
}

func (f HTTPFetcher) Fetch(ctx context.Context, url string) (*fetchmodels.Page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	if f.UserAgent != "" {
		req.Header.Set("User-Agent", f.UserAgent)
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/pdf;q=0.9,*/*;q=0.8")

	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}
	t0 := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("fetch %s: status %d", url, resp.StatusCode)
	}
	limit := f.MaxBytes
	if limit <= 0 {
		limit = DefaultMaxBytes
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, limit))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return &fetchmodels.Page{
		URL:         url,
		ContentType: resp.Header.Get("Content-Type"),
		Status:      resp.StatusCode,
		Body:        body,
		RenderMS:    int(time.Since(t0) / time.Millisecond),
	}, nil
}

// Renderer produces script-rendered HTML for a URL.
type Renderer interface {
	Render(ctx context.Context, url string) (*fetchmodels.Page, error)
}

// RenderingFetcher fetches over HTTP and re-renders HTML responses with a
// headless browser. PDFs and render failures keep the HTTP body.
type RenderingFetcher struct {
	HTTP     WebFetcher
	Renderer Renderer
	Logger   *zap.Logger
}

func (f RenderingFetcher) Fetch(ctx context.Context, url string) (*fetchmodels.Page, error) {
	page, err := f.HTTP.Fetch(ctx, url)
	if err != nil {
		return nil, err
	}
	if IsPDF(page.ContentType) {
		return page, nil
	}
	rendered, err := f.Renderer.Render(ctx, url)
	if err != nil {
		if f.Logger != nil {
			f.Logger.Debug("render failed, using raw html", zap.String("url", url), zap.Error(err))
		}
		return page, nil
	}
	return rendered, nil
}

// Store is the fetch-and-extract half of the document store: it downloads
// links concurrently, extracts text and splits it into chunk Documents.
type Store struct {
	fetcher     WebFetcher
	splitter    *Splitter
	concurrency int
	logger      *zap.Logger
	metrics     *runtime.Metrics
}

// StoreOption configures a Store.
type StoreOption func(*Store)

func WithLogger(l *zap.Logger) StoreOption {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

func WithMetrics(m *runtime.Metrics) StoreOption {
	return func(s *Store) { s.metrics = m }
}

func WithConcurrency(n int) StoreOption {
	return func(s *Store) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

func NewStore(fetcher WebFetcher, splitter *Splitter, opts ...StoreOption) *Store {
	if splitter == nil {
		splitter = NewSplitter()
	}
	s := &Store{fetcher: fetcher, splitter: splitter, concurrency: 8, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewStoreFromConfig wires the fetcher selected by cfg.Renderer.
func NewStoreFromConfig(cfg config.FetchConfig, logger *zap.Logger, metrics *runtime.Metrics) *Store {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	var fetcher WebFetcher = HTTPFetcher{
		Client:    &http.Client{Timeout: timeout},
		MaxBytes:  cfg.MaxBytes,
		UserAgent: cfg.UserAgent,
	}
	if cfg.Renderer == "chromedp" {
		fetcher = RenderingFetcher{
			HTTP:     fetcher,
			Renderer: chromedp.Renderer{Timeout: timeout, UserAgent: cfg.UserAgent},
			Logger:   logger,
		}
	}
	return NewStore(fetcher,
		NewSplitter(WithChunkSize(cfg.ChunkSize), WithOverlap(cfg.ChunkOverlap)),
		WithLogger(logger), WithMetrics(metrics), WithConcurrency(cfg.Concurrency))
}

// FetchAndExtract returns the chunk documents of every link that could be
// fetched and parsed, in link order. Failed links are logged and dropped.
func (s *Store) FetchAndExtract(ctx context.Context, links []string) []models.Document {
	perLink := make([][]models.Document, len(links))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, link := range links {
		g.Go(func() error {
			docs, err := s.fetchOne(gctx, link)
			if err != nil {
				s.logger.Warn("read doc link failed", zap.String("url", link), zap.Error(err))
				return nil
			}
			perLink[i] = docs
			return nil
		})
	}
	_ = g.Wait()

	var out []models.Document
	failed := 0
	for _, docs := range perLink {
		if docs == nil {
			failed++
			continue
		}
		out = append(out, docs...)
	}
	s.metrics.Fetches(len(links)-failed, failed)
	return out
}

func (s *Store) fetchOne(ctx context.Context, link string) ([]models.Document, error) {
	u, err := helpers.ParseFetchURL(link)
	if err != nil {
		return nil, err
	}
	page, err := s.fetcher.Fetch(ctx, u.String())
	if err != nil {
		return nil, err
	}
	title, text, err := Extract(page)
	if err != nil {
		return nil, err
	}
	chunks := s.splitter.Split(text)
	docs := make([]models.Document, 0, len(chunks))
	for _, chunk := range chunks {
		docs = append(docs, models.Document{
			PageContent: chunk,
			Metadata:    models.Metadata{Title: title, URL: u.String()},
		})
	}
	return docs, nil
}
