package openai_provider

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/mohammad-safakhou/mindsearch/provider/llm"
)

const defaultBaseURL = "https://api.openai.com/v1"

// Settings configures an OpenAI-compatible endpoint.
type Settings struct {
	APIKey         string
	BaseURL        string
	ChatModel      string
	EmbeddingModel string
	Temperature    float64
	MaxTokens      int
	Timeout        time.Duration
	MaxRetries     int
}

// client implements llm.ChatModel and llm.Embedder against any
// OpenAI-compatible API (OpenAI, FastGPT, Ollama, vLLM...).
type client struct {
	apiKey          string
	baseURL         string
	completionModel string
	embeddingModel  string
	temperature     float64
	maxTokens       int
	retries         int
	backoff         time.Duration
	httpClient      *http.Client
	streamClient    *http.Client
}

// request represents a request to the chat completions API
type request struct {
	Model       string        `json:"model"`
	Messages    []llm.Message `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Stream      bool          `json:"stream,omitempty"`
}

// response represents a response from the chat completions API
type response struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

type streamResponse struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
}

// NewOpenAIClient creates a new OpenAI client
func NewOpenAIClient(s Settings) *client {
	if s.BaseURL == "" {
		s.BaseURL = defaultBaseURL
	}
	if s.Timeout <= 0 {
		s.Timeout = 120 * time.Second
	}
	if s.MaxRetries < 0 {
		s.MaxRetries = 0
	}
	return &client{
		apiKey:          s.APIKey,
		baseURL:         strings.TrimRight(s.BaseURL, "/"),
		completionModel: s.ChatModel,
		embeddingModel:  s.EmbeddingModel,
		temperature:     s.Temperature,
		maxTokens:       s.MaxTokens,
		retries:         s.MaxRetries,
		backoff:         300 * time.Millisecond,
		httpClient:      &http.Client{Timeout: s.Timeout},
		// streamed bodies are bounded by the caller's context instead of a client timeout
		streamClient: &http.Client{},
	}
}

// Complete sends a blocking chat completion request.
func (c *client) Complete(ctx context.Context, messages []llm.Message) (string, error) {
	var resp response
	err := c.doJSON(ctx, "/chat/completions", request{
		Model:       c.completionModel,
		Messages:    messages,
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
	}, &resp)
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("no completion choices returned")
	}
	return resp.Choices[0].Message.Content, nil
}

// Stream opens a streamed chat completion and forwards content deltas.
func (c *client) Stream(ctx context.Context, messages []llm.Message) (<-chan llm.Chunk, error) {
	body, err := json.Marshal(request{
		Model:       c.completionModel,
		Messages:    messages,
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
		Stream:      true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	req, err := c.newRequest(ctx, "/chat/completions", body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.streamClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("API returned status %d: %s", resp.StatusCode, string(b))
	}

	out := make(chan llm.Chunk, 16)
	go parseSSE(ctx, resp.Body, out)
	return out, nil
}

// parseSSE reads "data: {json}" lines until "[DONE]". A body that ends before
// "[DONE]" or a cancelled ctx ends the stream with an error chunk.
func parseSSE(ctx context.Context, body io.ReadCloser, out chan<- llm.Chunk) {
	defer close(out)
	defer body.Close()

	send := func(ch llm.Chunk) bool {
		select {
		case out <- ch:
			return true
		case <-ctx.Done():
			return false
		}
	}
	// abort must not block: the consumer may already be gone.
	abort := func(err error) {
		select {
		case out <- llm.Chunk{Err: err}:
		default:
		}
	}

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "[DONE]" {
			return
		}
		var sr streamResponse
		if err := json.Unmarshal([]byte(data), &sr); err != nil {
			send(llm.Chunk{Err: fmt.Errorf("failed to parse stream chunk: %w", err)})
			return
		}
		for _, choice := range sr.Choices {
			if choice.Delta.Content == "" {
				continue
			}
			if !send(llm.Chunk{Text: choice.Delta.Content}) {
				abort(ctx.Err())
				return
			}
		}
	}
	switch {
	case ctx.Err() != nil:
		abort(ctx.Err())
	case scanner.Err() != nil:
		send(llm.Chunk{Err: fmt.Errorf("stream read: %w", scanner.Err())})
	default:
		send(llm.Chunk{Err: fmt.Errorf("stream ended before [DONE]: %w", io.ErrUnexpectedEOF)})
	}
}

// EmbedDocuments generates embeddings for the given texts
func (c *client) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	var resp struct {
		Data []struct {
			Embedding []float32 `json:"embedding"`
			Index     int       `json:"index"`
		} `json:"data"`
	}
	err := c.doJSON(ctx, "/embeddings", map[string]interface{}{
		"model": c.embeddingModel,
		"input": texts,
	}, &resp)
	if err != nil {
		return nil, err
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("embedding count mismatch: got %d want %d", len(resp.Data), len(texts))
	}
	vecs := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(vecs) {
			return nil, fmt.Errorf("embedding index %d out of range", d.Index)
		}
		vecs[d.Index] = d.Embedding
	}
	return vecs, nil
}

// EmbedQuery embeds a single query string.
func (c *client) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vecs, err := c.EmbedDocuments(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (c *client) newRequest(ctx context.Context, path string, body []byte) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	return req, nil
}

// doJSON posts body and decodes a 2xx response into out, retrying transport
// errors, 429 and 5xx with exponential backoff.
func (c *client) doJSON(ctx context.Context, path string, body any, out any) error {
	b, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	var lastErr error
	tries := c.retries + 1
	for attempt := 0; attempt < tries; attempt++ {
		req, err := c.newRequest(ctx, path, b)
		if err != nil {
			return err
		}
		retry, err := c.roundTrip(req, out)
		if err == nil {
			return nil
		}
		lastErr = err
		if !retry {
			return err
		}
		if attempt < tries-1 {
			select {
			case <-time.After(c.backoff * time.Duration(1<<attempt)):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	return lastErr
}

func (c *client) roundTrip(req *http.Request, out any) (bool, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return req.Context().Err() == nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return false, fmt.Errorf("failed to parse response: %w", err)
		}
		return false, nil
	}
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	retry := resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500
	return retry, fmt.Errorf("API returned status %d: %s", resp.StatusCode, string(b))
}
