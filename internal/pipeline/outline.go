package pipeline

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/mohammad-safakhou/mindsearch/internal/runtime"
	"github.com/mohammad-safakhou/mindsearch/internal/stream"
	"github.com/mohammad-safakhou/mindsearch/provider/llm"
)

// Outliner turns the plan answers into a markdown mind map rooted at the query.
type Outliner struct {
	chat    llm.ChatModel
	logger  *zap.Logger
	metrics *runtime.Metrics
}

func NewOutliner(chat llm.ChatModel, logger *zap.Logger, metrics *runtime.Metrics) *Outliner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Outliner{chat: chat, logger: logger, metrics: metrics}
}

// Run streams the outline as outlineChunk events and always ends with
// outlineFinished. On a model failure the text produced so far is kept.
func (o *Outliner) Run(ctx context.Context, query string, answers []string, out *stream.Stream) string {
	messages := []llm.Message{
		llm.System(outlinePrompt(strings.Join(answers, "\n\n"))),
		llm.User(query),
	}
	var text string
	chunks, err := o.chat.Stream(ctx, messages)
	if err == nil {
		text, err = fold(chunks, func(s string) error {
			out.Emit(ctx, stream.OutlineChunk{Chunk: s})
			return nil
		})
	}
	o.metrics.LLMCall("outline", err)
	if err != nil {
		o.logger.Warn("outline stream failed", zap.Error(err), zap.Int("partial_len", len(text)))
	}
	out.Emit(ctx, stream.OutlineFinished{Outline: text})
	return text
}
