// Package pipeline answers a query in fixed stages: plan, search, execute,
// outline and compose. Stages run one after another; work inside a stage fans
// out and joins before the next stage starts.
package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/mohammad-safakhou/mindsearch/config"
	"github.com/mohammad-safakhou/mindsearch/internal/runtime"
	"github.com/mohammad-safakhou/mindsearch/internal/stream"
	"github.com/mohammad-safakhou/mindsearch/models"
	"github.com/mohammad-safakhou/mindsearch/provider/llm"
)

// ErrCancelled is reported when the consumer cancelled before the last stage.
var ErrCancelled = errors.New("run cancelled")

// plannerFailureMessage is the text of the error event sent when planning fails.
const plannerFailureMessage = "An error has occurred, please try again later"

// Result is what a finished run produced. Err is nil only when the final
// answer was fully written.
type Result struct {
	RunID   string
	Plans   []models.Plan
	Outline string
	Sources []stream.Source
	Answer  string
	Err     error
}

// Deps are the collaborators of a run.
type Deps struct {
	Chat   llm.ChatModel
	Search SearchBackend
	Store  DocumentStore
	Ranker Reranker
}

type Pipeline struct {
	planner  *Planner
	searcher *Searcher
	executor *Executor
	outliner *Outliner
	composer *Composer
	logger   *zap.Logger
	metrics  *runtime.Metrics
	tracer   trace.Tracer
}

type Option func(*Pipeline)

func WithLogger(l *zap.Logger) Option {
	return func(p *Pipeline) {
		if l != nil {
			p.logger = l
		}
	}
}

func WithMetrics(m *runtime.Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

func WithTracer(t trace.Tracer) Option {
	return func(p *Pipeline) {
		if t != nil {
			p.tracer = t
		}
	}
}

func New(deps Deps, cfg config.PipelineConfig, opts ...Option) *Pipeline {
	p := &Pipeline{logger: zap.NewNop(), tracer: otel.Tracer("mindsearch/pipeline")}
	for _, opt := range opts {
		opt(p)
	}
	cfg = cfg.Normalize()
	p.planner = NewPlanner(deps.Chat, p.logger.Named("planner"), p.metrics)
	p.searcher = NewSearcher(deps.Search, deps.Ranker, cfg.SearchTopK, cfg.SearchSimilarityFloor, p.logger.Named("searcher"), p.metrics)
	p.executor = NewExecutor(deps.Chat, deps.Store, deps.Ranker, ExecutorConfig{
		FetchFloor:  cfg.FetchSimilarityFloor,
		GroupCap:    cfg.GroupCap,
		Concurrency: cfg.ExtractConcurrency,
	}, p.logger.Named("executor"), p.metrics)
	p.outliner = NewOutliner(deps.Chat, p.logger.Named("outline"), p.metrics)
	p.composer = NewComposer(deps.Chat, p.logger.Named("composer"), p.metrics)
	return p
}

// Run executes one query, emitting progress to out, and closes out when it
// returns. The stream ends with responseFinished on success or error when
// planning or composing failed; a cancelled run stops at the next stage
// boundary.
func (p *Pipeline) Run(ctx context.Context, q models.Query, out *stream.Stream) (res Result) {
	defer out.Close()
	res.RunID = uuid.NewString()
	log := p.logger.With(zap.String("run_id", res.RunID))

	ctx, span := p.tracer.Start(ctx, "pipeline.run", trace.WithAttributes(attribute.String("run_id", res.RunID)))
	defer func() {
		outcome := runtime.OutcomeOK
		if res.Err != nil {
			outcome = runtime.OutcomeError
			span.RecordError(res.Err)
			span.SetStatus(codes.Error, res.Err.Error())
		}
		p.metrics.Run(outcome)
		span.End()
	}()

	var plans []models.Plan
	err := p.stage(ctx, "plan", func(ctx context.Context) (err error) {
		plans, err = p.planner.Plan(ctx, q)
		return err
	})
	if err != nil {
		log.Error("planning failed", zap.Error(err))
		out.Emit(ctx, stream.Error{Message: plannerFailureMessage})
		res.Err = err
		return res
	}
	res.Plans = plans
	span.SetAttributes(attribute.Int("plans", len(plans)))
	out.Emit(ctx, stream.Plans{Plans: clonePlans(plans)})

	steps := []struct {
		name string
		fn   func(context.Context) error
	}{
		{"search", func(ctx context.Context) error { p.searcher.Run(ctx, plans, out); return nil }},
		{"execute", func(ctx context.Context) error { p.executor.Run(ctx, plans, out); return nil }},
		{"outline", func(ctx context.Context) error {
			res.Outline = p.outliner.Run(ctx, q.Text, answers(plans), out)
			return nil
		}},
		{"compose", func(ctx context.Context) (err error) {
			res.Sources = Sources(plans)
			res.Answer, err = p.composer.Run(ctx, q, answers(plans), res.Sources, res.Outline, out)
			return err
		}},
	}
	for _, st := range steps {
		if out.Cancelled() {
			log.Info("run cancelled", zap.String("before", st.name))
			res.Err = ErrCancelled
			return res
		}
		if err := p.stage(ctx, st.name, st.fn); err != nil {
			res.Err = err
			return res
		}
	}
	log.Info("run finished", zap.Int("plans", len(plans)), zap.Int("sources", len(res.Sources)))
	return res
}

func (p *Pipeline) stage(ctx context.Context, name string, fn func(context.Context) error) error {
	started := time.Now()
	ctx, span := p.tracer.Start(ctx, "pipeline."+name)
	defer span.End()
	err := fn(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	p.metrics.ObserveStage(name, started)
	return err
}

func answers(plans []models.Plan) []string {
	out := make([]string, len(plans))
	for i, p := range plans {
		out[i] = p.Answer
	}
	return out
}

// clonePlans copies the plan records so consumers never observe later
// in-place updates.
func clonePlans(plans []models.Plan) []models.Plan {
	out := make([]models.Plan, len(plans))
	copy(out, plans)
	return out
}
