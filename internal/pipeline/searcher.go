package pipeline

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mohammad-safakhou/mindsearch/internal/runtime"
	"github.com/mohammad-safakhou/mindsearch/internal/stream"
	"github.com/mohammad-safakhou/mindsearch/models"
	searchmodels "github.com/mohammad-safakhou/mindsearch/tools/web_search/models"
)

// SearchBackend returns ranked raw hits for one keyword.
type SearchBackend interface {
	Search(ctx context.Context, q string, opts searchmodels.Options) ([]searchmodels.Result, error)
}

// Reranker orders documents by relevance to query.
type Reranker interface {
	Rerank(ctx context.Context, query string, docs []models.Document, topK int, floor float64) []models.Document
}

// Searcher attaches the top search results to every plan that needs them.
type Searcher struct {
	backend SearchBackend
	ranker  Reranker
	topK    int
	floor   float64
	logger  *zap.Logger
	metrics *runtime.Metrics
}

func NewSearcher(backend SearchBackend, ranker Reranker, topK int, floor float64, logger *zap.Logger, metrics *runtime.Metrics) *Searcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Searcher{backend: backend, ranker: ranker, topK: topK, floor: floor, logger: logger, metrics: metrics}
}

// Run visits plans in order and emits a searchResult event per searched plan.
// It stops before the next plan once the stream is cancelled.
func (s *Searcher) Run(ctx context.Context, plans []models.Plan, out *stream.Stream) {
	for i := range plans {
		if out.Cancelled() {
			return
		}
		plan := &plans[i]
		if !plan.NeedSearch {
			continue
		}
		docs := Dedup(s.searchAll(ctx, plan))
		ranked := s.ranker.Rerank(ctx, plan.Name, docs, s.topK, s.floor)

		plan.SearchResult = make([]models.SearchResult, 0, len(ranked))
		for _, d := range ranked {
			plan.SearchResult = append(plan.SearchResult, d.ToSearchResult())
		}
		s.logger.Info("plan searched",
			zap.String("plan", plan.Name),
			zap.Int("hits", len(docs)),
			zap.Int("kept", len(plan.SearchResult)))
		out.Emit(ctx, stream.SearchResult{PlanName: plan.Name, Results: plan.SearchResult})
	}
}

// searchAll runs one backend call per key in parallel and concatenates the
// hits in key order. A failing key contributes nothing.
func (s *Searcher) searchAll(ctx context.Context, plan *models.Plan) []models.Document {
	perKey := make([][]models.Document, len(plan.SearchKeys))
	var g errgroup.Group
	for i, key := range plan.SearchKeys {
		g.Go(func() error {
			hits, err := s.backend.Search(ctx, key, searchmodels.Options{})
			s.metrics.SearchCall(err)
			if err != nil {
				s.logger.Warn("search key failed", zap.String("plan", plan.Name), zap.String("key", key), zap.Error(err))
				return nil
			}
			docs := make([]models.Document, 0, len(hits))
			for _, h := range hits {
				docs = append(docs, models.Document{
					PageContent: h.Content,
					Metadata:    models.Metadata{URL: h.URL, Title: h.Title, ImageSrc: h.ImageSrc},
				})
			}
			perKey[i] = docs
			return nil
		})
	}
	_ = g.Wait()

	var all []models.Document
	for _, docs := range perKey {
		all = append(all, docs...)
	}
	return all
}

// Dedup keeps the first document seen for every URL, in order.
func Dedup(docs []models.Document) []models.Document {
	seen := make(map[string]bool, len(docs))
	out := make([]models.Document, 0, len(docs))
	for _, d := range docs {
		if seen[d.Metadata.URL] {
			continue
		}
		seen[d.Metadata.URL] = true
		out = append(out, d)
	}
	return out
}
