package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mohammad-safakhou/mindsearch/config"
	gemini_provider "github.com/mohammad-safakhou/mindsearch/provider/gemini"
	"github.com/mohammad-safakhou/mindsearch/provider/llm"
	openai_provider "github.com/mohammad-safakhou/mindsearch/provider/openai"
)

// Client represents different LLM providers
type Client string

const (
	OpenAI Client = "openai"
	Gemini Client = "gemini"
)

// Provider is the interface that all LLM implementations must satisfy
type Provider interface {
	llm.ChatModel
	llm.Embedder
}

// Options overrides the configured models for one connection.
type Options struct {
	ChatModel      string
	EmbeddingModel string
	Temperature    *float64
	MaxTokens      int
}

func (o Options) apply(cfg config.LLMConfig) config.LLMConfig {
	if s := strings.TrimSpace(o.ChatModel); s != "" {
		cfg.ChatModel = s
	}
	if s := strings.TrimSpace(o.EmbeddingModel); s != "" {
		cfg.EmbeddingModel = s
	}
	if o.Temperature != nil {
		cfg.Temperature = *o.Temperature
	}
	if o.MaxTokens > 0 {
		cfg.MaxTokens = o.MaxTokens
	}
	return cfg
}

// NewProvider creates a new LLM client based on the provided configuration
func NewProvider(ctx context.Context, cfg config.LLMConfig, opts Options) (Provider, error) {
	cfg = opts.apply(cfg)
	switch Client(cfg.Provider) {
	case OpenAI:
		if cfg.APIKey == "" && strings.Contains(cfg.BaseURL, "api.openai.com") {
			return nil, errors.New("llm.api_key not set")
		}
		return openai_provider.NewOpenAIClient(openai_provider.Settings{
			APIKey:         cfg.APIKey,
			BaseURL:        cfg.BaseURL,
			ChatModel:      cfg.ChatModel,
			EmbeddingModel: cfg.EmbeddingModel,
			Temperature:    cfg.Temperature,
			MaxTokens:      cfg.MaxTokens,
			Timeout:        cfg.Timeout,
			MaxRetries:     cfg.MaxRetries,
		}), nil
	case Gemini:
		c, err := gemini_provider.NewGeminiClient(ctx, cfg.APIKey, cfg.ChatModel, cfg.EmbeddingModel, cfg.Temperature, cfg.MaxTokens)
		if err != nil {
			return nil, fmt.Errorf("gemini client: %w", err)
		}
		return c, nil
	default:
		return nil, fmt.Errorf("unsupported LLM provider %q", cfg.Provider)
	}
}
