package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/mohammad-safakhou/mindsearch/internal/runtime"
	"github.com/mohammad-safakhou/mindsearch/models"
	"github.com/mohammad-safakhou/mindsearch/provider/llm"
)

var (
	// ErrDecomposition means the model output held no parsable plan list.
	ErrDecomposition = errors.New("query decomposition failed")
	ErrNoPlans       = errors.New("planner returned no plans")
)

// Planner splits a query into independent sub-plans with one model call.
type Planner struct {
	chat    llm.ChatModel
	logger  *zap.Logger
	metrics *runtime.Metrics
}

func NewPlanner(chat llm.ChatModel, logger *zap.Logger, metrics *runtime.Metrics) *Planner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Planner{chat: chat, logger: logger, metrics: metrics}
}

// Plan returns the plans in model output order.
func (p *Planner) Plan(ctx context.Context, q models.Query) ([]models.Plan, error) {
	out, err := p.chat.Complete(ctx, []llm.Message{llm.User(plannerPrompt(q.Text, q.History))})
	p.metrics.LLMCall("plan", err)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecomposition, err)
	}
	p.logger.Debug("planner output", zap.String("output", out))

	plans, err := ParsePlans(out)
	if err != nil {
		p.logger.Error("parse plans", zap.Error(err), zap.String("output", out))
		return nil, err
	}
	return plans, nil
}

type rawPlan struct {
	PlanName   string   `json:"planName"`
	NeedSearch bool     `json:"needSearch"`
	SearchKeys []string `json:"searchKeys"`
}

// ParsePlans reads the <plans> block of a planner response. Search keys are
// trimmed and de-duplicated; a plan that needs search but lists no keys
// searches for its own name, and a plan that needs none keeps no keys.
func ParsePlans(output string) ([]models.Plan, error) {
	block, err := ExtractBlock(output, "plans")
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecomposition, err)
	}
	block = trimStrayQuote(block)

	var raw []rawPlan
	if err := json.Unmarshal([]byte(block), &raw); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecomposition, err)
	}

	plans := make([]models.Plan, 0, len(raw))
	for _, r := range raw {
		name := strings.TrimSpace(r.PlanName)
		if name == "" {
			continue
		}
		plan := models.Plan{Name: name, NeedSearch: r.NeedSearch, Status: models.PlanPending}
		if r.NeedSearch {
			plan.SearchKeys = uniqueKeys(r.SearchKeys)
			if len(plan.SearchKeys) == 0 {
				plan.SearchKeys = []string{name}
			}
		}
		plans = append(plans, plan)
	}
	if len(plans) == 0 {
		return nil, ErrNoPlans
	}
	return plans, nil
}

func uniqueKeys(keys []string) []string {
	seen := make(map[string]bool, len(keys))
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		k = strings.TrimSpace(k)
		if k == "" || seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, k)
	}
	return out
}
