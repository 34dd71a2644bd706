package pipeline

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mohammad-safakhou/mindsearch/internal/rank"
	"github.com/mohammad-safakhou/mindsearch/internal/runtime"
	"github.com/mohammad-safakhou/mindsearch/internal/stream"
	"github.com/mohammad-safakhou/mindsearch/models"
	"github.com/mohammad-safakhou/mindsearch/provider/llm"
)

// noAnswer is what the extraction prompt asks the model to reply when a text
// does not address the plan.
const noAnswer = "nothing"

// DocumentStore fetches links and returns their text chunks. Links that fail
// are left out.
type DocumentStore interface {
	FetchAndExtract(ctx context.Context, links []string) []models.Document
}

// Executor answers plans one after another.
type Executor struct {
	chat        llm.ChatModel
	store       DocumentStore
	ranker      Reranker
	floor       float64
	groupCap    int
	concurrency int
	logger      *zap.Logger
	metrics     *runtime.Metrics
}

type ExecutorConfig struct {
	FetchFloor  float64
	GroupCap    int
	Concurrency int
}

func NewExecutor(chat llm.ChatModel, store DocumentStore, ranker Reranker, cfg ExecutorConfig, logger *zap.Logger, metrics *runtime.Metrics) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.GroupCap <= 0 {
		cfg.GroupCap = DefaultGroupCap
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 8
	}
	return &Executor{
		chat:        chat,
		store:       store,
		ranker:      ranker,
		floor:       cfg.FetchFloor,
		groupCap:    cfg.GroupCap,
		concurrency: cfg.Concurrency,
		logger:      logger,
		metrics:     metrics,
	}
}

// Run executes plans sequentially. A failing plan is answered "Unknown" and
// the next one still runs. Every visited plan ends finished.
func (e *Executor) Run(ctx context.Context, plans []models.Plan, out *stream.Stream) {
	for i := range plans {
		if out.Cancelled() {
			return
		}
		plan := &plans[i]
		outcome := runtime.OutcomeOK
		if err := e.execute(ctx, plan, out); err != nil {
			e.logger.Warn("plan failed", zap.String("plan", plan.Name), zap.Error(err))
			_ = plan.SetAnswer(models.UnknownAnswer)
			out.Emit(ctx, stream.PlanAnswerChunk{PlanName: plan.Name, Chunk: models.UnknownAnswer})
			outcome = runtime.OutcomeError
		} else if plan.Answer == models.UnknownAnswer {
			outcome = runtime.OutcomeEmpty
		}
		plan.Finish()
		e.metrics.Plan(outcome)
		out.Emit(ctx, stream.PlanFinished{PlanName: plan.Name, Answer: plan.Answer, Status: string(plan.Status)})
	}
}

func (e *Executor) execute(ctx context.Context, plan *models.Plan, out *stream.Stream) error {
	if !plan.NeedSearch {
		return e.streamAnswer(ctx, plan, directPrompt(plan.Name), out)
	}

	links := make([]string, 0, len(plan.SearchResult))
	for _, r := range plan.SearchResult {
		links = append(links, r.URL)
	}
	var answers []string
	if len(links) > 0 {
		docs := e.store.FetchAndExtract(ctx, links)
		docs = e.ranker.Rerank(ctx, plan.Name, docs, rank.Unbounded, e.floor)
		groups := GroupDocuments(docs, e.groupCap)
		e.logger.Debug("plan evidence",
			zap.String("plan", plan.Name),
			zap.Int("chunks", len(docs)),
			zap.Int("groups", len(groups)))

		var err error
		answers, err = e.extract(ctx, plan.Name, groups)
		if err != nil {
			return err
		}
	}

	if len(answers) == 0 {
		if err := plan.SetAnswer(models.UnknownAnswer); err != nil {
			return err
		}
		out.Emit(ctx, stream.PlanAnswerChunk{PlanName: plan.Name, Chunk: models.UnknownAnswer})
		return nil
	}
	return e.streamAnswer(ctx, plan, summarizePrompt(strings.Join(answers, "\n\n")), out)
}

// extract asks the model, once per group and in parallel, what the group says
// about the plan. Answers keep group order; "nothing" replies are dropped.
func (e *Executor) extract(ctx context.Context, planName string, groups []models.Document) ([]string, error) {
	replies := make([]string, len(groups))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)
	for i, group := range groups {
		g.Go(func() error {
			reply, err := e.chat.Complete(gctx, []llm.Message{llm.User(extractPrompt(planName, group.PageContent))})
			e.metrics.LLMCall("extract", err)
			if err != nil {
				return fmt.Errorf("extract %s: %w", group.Metadata.URL, err)
			}
			replies[i] = strings.TrimSpace(reply)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	answers := make([]string, 0, len(replies))
	for _, r := range replies {
		if r == "" || strings.EqualFold(r, noAnswer) {
			continue
		}
		answers = append(answers, r)
	}
	return answers, nil
}

// streamAnswer folds the streamed reply into the plan answer and forwards
// each chunk.
func (e *Executor) streamAnswer(ctx context.Context, plan *models.Plan, prompt string, out *stream.Stream) error {
	chunks, err := e.chat.Stream(ctx, []llm.Message{llm.User(prompt)})
	if err != nil {
		e.metrics.LLMCall("plan_answer", err)
		return err
	}
	text, err := fold(chunks, func(s string) error {
		if err := plan.AppendAnswer(s); err != nil {
			return err
		}
		out.Emit(ctx, stream.PlanAnswerChunk{PlanName: plan.Name, Chunk: s})
		return nil
	})
	e.metrics.LLMCall("plan_answer", err)
	if err != nil {
		return err
	}
	if strings.TrimSpace(text) == "" {
		return fmt.Errorf("empty answer")
	}
	return nil
}

// fold drains chunks, calling each for every non-empty text and returning the
// concatenation. It stops at the first error but keeps draining so the
// producer can finish.
func fold(chunks <-chan llm.Chunk, each func(string) error) (string, error) {
	var (
		sb       strings.Builder
		firstErr error
	)
	for c := range chunks {
		if firstErr != nil {
			continue
		}
		if c.Err != nil {
			firstErr = c.Err
			continue
		}
		if c.Text == "" {
			continue
		}
		sb.WriteString(c.Text)
		if each != nil {
			if err := each(c.Text); err != nil {
				firstErr = err
			}
		}
	}
	return sb.String(), firstErr
}
