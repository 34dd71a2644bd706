// Package embedding wraps an Embedder with a two-level vector cache: an
// in-process LRU in front of an optional Redis cache.
package embedding

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/mohammad-safakhou/mindsearch/provider/llm"
)

const localTTL = 30 * time.Minute

// Embedding implements llm.Embedder on top of another Embedder.
type Embedding struct {
	inner  llm.Embedder
	model  string
	lru    *LocalLRU
	remote Cache
	ttl    time.Duration
	logger *zap.Logger
}

type Option func(*Embedding)

// WithRemote adds a shared cache consulted after the LRU.
func WithRemote(c Cache, ttl time.Duration) Option {
	return func(e *Embedding) {
		e.remote = c
		if ttl > 0 {
			e.ttl = ttl
		}
	}
}

// WithLRU replaces the private LRU with one shared across instances. Keys
// carry the model, so instances for different models may share it.
func WithLRU(l *LocalLRU) Option {
	return func(e *Embedding) {
		if l != nil {
			e.lru = l
		}
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(e *Embedding) {
		if l != nil {
			e.logger = l
		}
	}
}

// NewEmbedding caches vectors of inner under model. model only scopes cache
// keys; it must change whenever inner's embedding model does.
func NewEmbedding(inner llm.Embedder, model string, opts ...Option) *Embedding {
	e := &Embedding{
		inner:  inner,
		model:  model,
		lru:    NewLocalLRU(0),
		ttl:    24 * time.Hour,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Embedding) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedDocuments(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedDocuments serves what it can from cache and embeds the rest in one
// batch call.
func (e *Embedding) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	keys := make([]string, len(texts))
	for i, t := range texts {
		keys[i] = MakeKey(e.model, t)
	}

	out := e.lru.Get(ctx, keys)
	missing := missingIndices(out)
	if len(missing) > 0 && e.remote != nil {
		sub := make([]string, len(missing))
		for j, i := range missing {
			sub[j] = keys[i]
		}
		for j, vec := range e.remote.Get(ctx, sub) {
			if vec != nil {
				out[missing[j]] = vec
				e.lru.Set(ctx, keys[missing[j]], vec, localTTL)
			}
		}
		missing = missingIndices(out)
	}
	if len(missing) == 0 {
		return out, nil
	}

	batch := make([]string, len(missing))
	for j, i := range missing {
		batch[j] = texts[i]
	}
	vecs, err := e.inner.EmbedDocuments(ctx, batch)
	if err != nil {
		return nil, err
	}
	if len(vecs) != len(batch) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d texts", len(vecs), len(batch))
	}
	for j, i := range missing {
		out[i] = vecs[j]
		e.lru.Set(ctx, keys[i], vecs[j], localTTL)
		if e.remote != nil {
			e.remote.Set(ctx, keys[i], vecs[j], e.ttl)
		}
	}
	e.logger.Debug("embedded", zap.Int("texts", len(texts)), zap.Int("computed", len(batch)))
	return out, nil
}

func missingIndices(vecs [][]float32) []int {
	var idx []int
	for i, v := range vecs {
		if v == nil {
			idx = append(idx, i)
		}
	}
	return idx
}
