package server

import (
	"context"
	"sync"
	"testing"

	"go.uber.org/zap"

	"github.com/mohammad-safakhou/mindsearch/config"
	"github.com/mohammad-safakhou/mindsearch/internal/stream"
	"github.com/mohammad-safakhou/mindsearch/models"
	"github.com/mohammad-safakhou/mindsearch/provider"
	"github.com/mohammad-safakhou/mindsearch/provider/llm"
	"github.com/mohammad-safakhou/mindsearch/tools/embedding"
	searchmodels "github.com/mohammad-safakhou/mindsearch/tools/web_search/models"
)

// countingProvider plans one searched step, answers every stream with a
// fixed text and counts the texts it embeds.
type countingProvider struct {
	mu       sync.Mutex
	embedded int
}

func (p *countingProvider) Complete(context.Context, []llm.Message) (string, error) {
	return `<plans>[{"planName":"capital of France","needSearch":true,"searchKeys":["capital of France"]}]</plans>`, nil
}

func (p *countingProvider) Stream(context.Context, []llm.Message) (<-chan llm.Chunk, error) {
	ch := make(chan llm.Chunk, 1)
	ch <- llm.Chunk{Text: "Paris"}
	close(ch)
	return ch, nil
}

func (p *countingProvider) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	p.mu.Lock()
	p.embedded += len(texts)
	p.mu.Unlock()
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 1}
	}
	return out, nil
}

func (p *countingProvider) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	v, err := p.EmbedDocuments(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return v[0], nil
}

func (p *countingProvider) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.embedded
}

type fixedSearch struct{}

func (fixedSearch) Search(context.Context, string, searchmodels.Options) ([]searchmodels.Result, error) {
	return []searchmodels.Result{{Title: "Paris", URL: "https://en.wikipedia.org/wiki/Paris", Content: "Paris is the capital of France."}}, nil
}

type emptyStore struct{}

func (emptyStore) FetchAndExtract(context.Context, []string) []models.Document { return nil }

func TestPipelineBuilderSharesEmbeddingCache(t *testing.T) {
	prov := &countingProvider{}
	cfg := &config.Config{
		General:  config.GeneralConfig{SimilarityMeasure: "cosine"},
		LLM:      config.LLMConfig{Provider: "openai", EmbeddingModel: "text-embedding-3-small"},
		Pipeline: config.PipelineConfig{SearchTopK: 5, SearchSimilarityFloor: 0.5, FetchSimilarityFloor: 0.5},
	}
	b := &PipelineBuilder{
		cfg:    cfg,
		search: fixedSearch{},
		store:  emptyStore{},
		local:  embedding.NewLocalLRU(64),
		newProvider: func(context.Context, config.LLMConfig, provider.Options) (provider.Provider, error) {
			return prov, nil
		},
		logger: zap.NewNop(),
	}

	run := func() {
		t.Helper()
		r, err := b.Build(context.Background(), provider.Options{})
		if err != nil {
			t.Fatalf("build: %v", err)
		}
		res := r.Run(context.Background(), models.Query{Text: "What is the capital of France?"}, stream.New(1024))
		if res.Err != nil {
			t.Fatalf("run: %v", res.Err)
		}
	}

	run()
	first := prov.count()
	if first == 0 {
		t.Fatalf("first run embedded nothing")
	}
	run()
	if got := prov.count(); got != first {
		t.Fatalf("second identical run embedded %d more texts", got-first)
	}
}
