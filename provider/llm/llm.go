// Package llm holds the backend-neutral language model and embedding contracts.
package llm

import "context"

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message represents a message in a conversation
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

func System(content string) Message    { return Message{Role: RoleSystem, Content: content} }
func User(content string) Message      { return Message{Role: RoleUser, Content: content} }
func Assistant(content string) Message { return Message{Role: RoleAssistant, Content: content} }

// Chunk is one element of a streamed completion. A chunk with a non-nil Err is
// the last value sent before the channel closes.
type Chunk struct {
	Text string
	Err  error
}

// ChatModel supports a blocking call and a streaming call. Stream returns a
// channel that is closed after the final chunk; the producer stops early when
// ctx is cancelled.
type ChatModel interface {
	Complete(ctx context.Context, messages []Message) (string, error)
	Stream(ctx context.Context, messages []Message) (<-chan Chunk, error)
}

// Embedder turns texts into vectors. EmbedDocuments returns one vector per
// input, in order.
type Embedder interface {
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}
