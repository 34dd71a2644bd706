package gemini_provider

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/mohammad-safakhou/mindsearch/provider/llm"
)

type client struct {
	genai          *genai.Client
	chatModel      string
	embeddingModel string
	temperature    float64
	maxTokens      int
}

// NewGeminiClient creates a Gemini backed chat and embedding client.
func NewGeminiClient(ctx context.Context, apiKey, chatModel, embeddingModel string, temperature float64, maxTokens int) (*client, error) {
	if apiKey == "" {
		return nil, errors.New("gemini api key is required")
	}
	if embeddingModel == "" {
		embeddingModel = "gemini-embedding-001"
	}
	c, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	return &client{
		genai:          c,
		chatModel:      chatModel,
		embeddingModel: embeddingModel,
		temperature:    temperature,
		maxTokens:      maxTokens,
	}, nil
}

// split moves system messages into the system instruction and maps the rest
// onto user/model contents.
func (c *client) split(messages []llm.Message) ([]*genai.Content, *genai.GenerateContentConfig) {
	var system []string
	contents := make([]*genai.Content, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case llm.RoleSystem:
			system = append(system, m.Content)
		case llm.RoleAssistant:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleModel))
		default:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleUser))
		}
	}
	cfg := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(float32(c.temperature)),
	}
	if c.maxTokens > 0 {
		cfg.MaxOutputTokens = int32(c.maxTokens)
	}
	if len(system) > 0 {
		cfg.SystemInstruction = genai.NewContentFromText(strings.Join(system, "\n\n"), genai.RoleUser)
	}
	if len(contents) == 0 {
		// the API rejects an empty contents list
		contents = append(contents, genai.NewContentFromText(strings.Join(system, "\n\n"), genai.RoleUser))
		cfg.SystemInstruction = nil
	}
	return contents, cfg
}

func (c *client) Complete(ctx context.Context, messages []llm.Message) (string, error) {
	contents, cfg := c.split(messages)
	resp, err := c.genai.Models.GenerateContent(ctx, c.chatModel, contents, cfg)
	if err != nil {
		return "", fmt.Errorf("gemini generate: %w", err)
	}
	return resp.Text(), nil
}

func (c *client) Stream(ctx context.Context, messages []llm.Message) (<-chan llm.Chunk, error) {
	contents, cfg := c.split(messages)
	out := make(chan llm.Chunk, 16)
	go func() {
		defer close(out)
		for resp, err := range c.genai.Models.GenerateContentStream(ctx, c.chatModel, contents, cfg) {
			var chunk llm.Chunk
			if err != nil {
				chunk.Err = fmt.Errorf("gemini stream: %w", err)
			} else {
				chunk.Text = resp.Text()
				if chunk.Text == "" {
					continue
				}
			}
			select {
			case out <- chunk:
			case <-ctx.Done():
				return
			}
			if chunk.Err != nil {
				return
			}
		}
	}()
	return out, nil
}

func (c *client) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	contents := make([]*genai.Content, len(texts))
	for i, text := range texts {
		contents[i] = genai.NewContentFromText(text, genai.RoleUser)
	}
	result, err := c.genai.Models.EmbedContent(ctx, c.embeddingModel, contents, nil)
	if err != nil {
		return nil, fmt.Errorf("gemini embed: %w", err)
	}
	if len(result.Embeddings) != len(texts) {
		return nil, fmt.Errorf("embedding count mismatch: got %d want %d", len(result.Embeddings), len(texts))
	}
	vecs := make([][]float32, len(result.Embeddings))
	for i, emb := range result.Embeddings {
		vecs[i] = emb.Values
	}
	return vecs, nil
}

func (c *client) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vecs, err := c.EmbedDocuments(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}
