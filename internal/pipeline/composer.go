package pipeline

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mohammad-safakhou/mindsearch/internal/helpers"
	"github.com/mohammad-safakhou/mindsearch/internal/runtime"
	"github.com/mohammad-safakhou/mindsearch/internal/stream"
	"github.com/mohammad-safakhou/mindsearch/models"
	"github.com/mohammad-safakhou/mindsearch/provider/llm"
)

// Composer writes the final cited answer.
type Composer struct {
	chat    llm.ChatModel
	logger  *zap.Logger
	metrics *runtime.Metrics
	now     func() time.Time
}

func NewComposer(chat llm.ChatModel, logger *zap.Logger, metrics *runtime.Metrics) *Composer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Composer{chat: chat, logger: logger, metrics: metrics, now: time.Now}
}

// Sources numbers the search results of all plans, first occurrence of a URL
// wins, in plan order.
func Sources(plans []models.Plan) []stream.Source {
	seen := make(map[string]bool)
	var out []stream.Source
	for _, p := range plans {
		for _, r := range p.SearchResult {
			if seen[r.URL] {
				continue
			}
			seen[r.URL] = true
			out = append(out, stream.Source{Index: len(out) + 1, Title: r.Title, URL: r.URL, Content: r.Content})
		}
	}
	return out
}

// Run emits sourcesFinal, streams responseChunk events and ends with either
// responseFinished or, when the model fails, an error event.
func (c *Composer) Run(ctx context.Context, q models.Query, answers []string, sources []stream.Source, outline string, out *stream.Stream) (string, error) {
	out.Emit(ctx, stream.SourcesFinal{Sources: sources})

	citations := make([]helpers.Citation, 0, len(sources))
	for _, s := range sources {
		citations = append(citations, helpers.Citation{Index: s.Index, Title: s.Title, URL: s.URL, Snippet: s.Content})
	}
	system := responsePrompt(q.Text, strings.Join(answers, "\n\n"), helpers.FormatCitations(citations), outline, c.now())

	messages := make([]llm.Message, 0, len(q.History)+2)
	messages = append(messages, llm.System(system))
	for _, t := range q.History {
		if t.Role == models.RoleAssistant {
			messages = append(messages, llm.Assistant(t.Text))
		} else {
			messages = append(messages, llm.User(t.Text))
		}
	}
	messages = append(messages, llm.User(q.Text))

	var text string
	chunks, err := c.chat.Stream(ctx, messages)
	if err == nil {
		text, err = fold(chunks, func(s string) error {
			out.Emit(ctx, stream.ResponseChunk{Chunk: s})
			return nil
		})
	}
	c.metrics.LLMCall("response", err)
	if err != nil {
		c.logger.Error("response stream failed", zap.Error(err))
		out.Emit(ctx, stream.Error{Message: "An error occurred while writing the answer, please try again later"})
		return text, err
	}
	out.Emit(ctx, stream.ResponseFinished{Response: text})
	return text, nil
}
