package server

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/mohammad-safakhou/mindsearch/config"
	"github.com/mohammad-safakhou/mindsearch/internal/pipeline"
	"github.com/mohammad-safakhou/mindsearch/internal/rank"
	"github.com/mohammad-safakhou/mindsearch/internal/runtime"
	"github.com/mohammad-safakhou/mindsearch/internal/stream"
	"github.com/mohammad-safakhou/mindsearch/models"
	"github.com/mohammad-safakhou/mindsearch/provider"
	"github.com/mohammad-safakhou/mindsearch/tools/embedding"
	"github.com/mohammad-safakhou/mindsearch/tools/web_fetch"
	"github.com/mohammad-safakhou/mindsearch/tools/web_search"
)

// Runner executes one query, writing its events to out and closing it.
type Runner interface {
	Run(ctx context.Context, q models.Query, out *stream.Stream) pipeline.Result
}

// RunnerBuilder returns a Runner bound to the given model overrides.
type RunnerBuilder interface {
	Build(ctx context.Context, opts provider.Options) (Runner, error)
}

type providerFunc func(ctx context.Context, cfg config.LLMConfig, opts provider.Options) (provider.Provider, error)

// PipelineBuilder owns the collaborators shared by every run (search backend,
// document store, embedding caches) and builds a pipeline per connection
// around a freshly configured language model.
type PipelineBuilder struct {
	cfg         *config.Config
	search      pipeline.SearchBackend
	store       pipeline.DocumentStore
	redis       *redis.Client
	local       *embedding.LocalLRU
	remote      embedding.Cache
	newProvider providerFunc
	logger      *zap.Logger
	metrics     *runtime.Metrics
	tracer      trace.Tracer
}

func NewPipelineBuilder(ctx context.Context, cfg *config.Config, logger *zap.Logger, metrics *runtime.Metrics, tracer trace.Tracer) (*PipelineBuilder, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	search, err := web_search.NewWebSearcher(cfg.Search)
	if err != nil {
		return nil, fmt.Errorf("web search: %w", err)
	}
	b := &PipelineBuilder{
		cfg:         cfg,
		search:      search,
		store:       web_fetch.NewStoreFromConfig(cfg.Fetch, logger.Named("fetch"), metrics),
		local:       embedding.NewLocalLRU(cfg.Storage.EmbeddingCacheSize),
		newProvider: provider.NewProvider,
		logger:      logger,
		metrics:     metrics,
		tracer:      tracer,
	}
	if rc := cfg.Storage.Redis; rc.Enabled() {
		b.redis = redis.NewClient(&redis.Options{Addr: rc.Addr(), Password: rc.Password, DB: rc.DB})
		if err := b.redis.Ping(ctx).Err(); err != nil {
			_ = b.redis.Close()
			return nil, fmt.Errorf("redis connection failed (%s): %w", rc.Addr(), err)
		}
		b.remote = embedding.NewRedisCache(b.redis, logger.Named("embedding"))
		logger.Info("embedding cache enabled", zap.String("redis", rc.Addr()))
	}
	return b, nil
}

func (b *PipelineBuilder) Build(ctx context.Context, opts provider.Options) (Runner, error) {
	prov, err := b.newProvider(ctx, b.cfg.LLM, opts)
	if err != nil {
		return nil, err
	}
	model := b.cfg.LLM.EmbeddingModel
	if s := strings.TrimSpace(opts.EmbeddingModel); s != "" {
		model = s
	}
	embOpts := []embedding.Option{
		embedding.WithLogger(b.logger.Named("embedding")),
		embedding.WithLRU(b.local),
	}
	if b.remote != nil {
		embOpts = append(embOpts, embedding.WithRemote(b.remote, b.cfg.Storage.Redis.EmbeddingTTL))
	}
	emb := embedding.NewEmbedding(prov, b.cfg.LLM.Provider+"/"+model, embOpts...)
	ranker := rank.New(emb, rank.Measure(b.cfg.General.SimilarityMeasure), b.logger.Named("rank"))

	return pipeline.New(pipeline.Deps{
		Chat:   prov,
		Search: b.search,
		Store:  b.store,
		Ranker: ranker,
	}, b.cfg.Pipeline,
		pipeline.WithLogger(b.logger),
		pipeline.WithMetrics(b.metrics),
		pipeline.WithTracer(b.tracer),
	), nil
}

func (b *PipelineBuilder) Close() error {
	if b.redis != nil {
		return b.redis.Close()
	}
	return nil
}

// OptionsFromQuery reads the per-connection model overrides: chatModel,
// embeddingModel, temperature and contextSize.
func OptionsFromQuery(q url.Values) (provider.Options, error) {
	opts := provider.Options{
		ChatModel:      q.Get("chatModel"),
		EmbeddingModel: q.Get("embeddingModel"),
	}
	if s := q.Get("temperature"); s != "" {
		t, err := strconv.ParseFloat(s, 64)
		if err != nil || t < 0 || t > 2 {
			return provider.Options{}, fmt.Errorf("invalid temperature %q", s)
		}
		opts.Temperature = &t
	}
	if s := q.Get("contextSize"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			return provider.Options{}, fmt.Errorf("invalid contextSize %q", s)
		}
		opts.MaxTokens = n
	}
	return opts, nil
}
