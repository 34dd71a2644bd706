// Package rank scores documents against a query by embedding similarity.
package rank

import (
	"context"
	"math"
	"sort"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mohammad-safakhou/mindsearch/models"
	"github.com/mohammad-safakhou/mindsearch/provider/llm"
)

// SummarizeQuery makes Rerank return its input untouched.
const SummarizeQuery = "Summarize"

// Unbounded disables the result size limit.
const Unbounded = 0

type Measure string

const (
	Cosine Measure = "cosine"
	Dot    Measure = "dot"
)

// Scored is a document and its similarity to the query.
type Scored struct {
	Doc   models.Document
	Score float64
}

type Ranker struct {
	embedder llm.Embedder
	measure  Measure
	logger   *zap.Logger
}

func New(embedder llm.Embedder, measure Measure, logger *zap.Logger) *Ranker {
	if measure != Dot {
		measure = Cosine
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ranker{embedder: embedder, measure: measure, logger: logger}
}

// Score embeds the query and every non-empty document, then returns the
// documents scoring strictly above floor, best first, at most topK of them
// (topK <= 0 means all).
func (r *Ranker) Score(ctx context.Context, query string, docs []models.Document, topK int, floor float64) ([]Scored, error) {
	candidates := make([]models.Document, 0, len(docs))
	texts := make([]string, 0, len(docs))
	for _, d := range docs {
		if strings.TrimSpace(d.PageContent) == "" {
			continue
		}
		candidates = append(candidates, d)
		texts = append(texts, d.PageContent)
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	var (
		qvec []float32
		dvec [][]float32
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		qvec, err = r.embedder.EmbedQuery(gctx, query)
		return err
	})
	g.Go(func() (err error) {
		dvec, err = r.embedder.EmbedDocuments(gctx, texts)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	scored := make([]Scored, 0, len(candidates))
	for i, d := range candidates {
		if i >= len(dvec) {
			break
		}
		s := r.similarity(qvec, dvec[i])
		if s > floor {
			scored = append(scored, Scored{Doc: d, Score: s})
		}
	}
	sort.SliceStable(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
	if topK > 0 && len(scored) > topK {
		scored = scored[:topK]
	}
	return scored, nil
}

// Rerank is Score without the scores. An empty input or the summarize query
// returns docs as given; an embedding failure is logged and yields nothing.
func (r *Ranker) Rerank(ctx context.Context, query string, docs []models.Document, topK int, floor float64) []models.Document {
	if len(docs) == 0 || query == SummarizeQuery {
		return docs
	}
	scored, err := r.Score(ctx, query, docs, topK, floor)
	if err != nil {
		r.logger.Warn("rerank failed", zap.String("query", query), zap.Error(err))
		return nil
	}
	out := make([]models.Document, len(scored))
	for i, s := range scored {
		out[i] = s.Doc
	}
	return out
}

func (r *Ranker) similarity(a, b []float32) float64 {
	if r.measure == Dot {
		return dot(a, b)
	}
	return cosine(a, b)
}

func dot(a, b []float32) float64 {
	n := min(len(a), len(b))
	var s float64
	for i := 0; i < n; i++ {
		s += float64(a[i]) * float64(b[i])
	}
	return s
}

func cosine(a, b []float32) float64 {
	n := min(len(a), len(b))
	var ab, aa, bb float64
	for i := 0; i < n; i++ {
		x, y := float64(a[i]), float64(b[i])
		ab += x * y
		aa += x * x
		bb += y * y
	}
	if aa == 0 || bb == 0 {
		return 0
	}
	return ab / (math.Sqrt(aa) * math.Sqrt(bb))
}
