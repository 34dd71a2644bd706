package gemini_provider

import (
	"context"
	"testing"

	"github.com/mohammad-safakhou/mindsearch/provider/llm"
)

func TestNewGeminiClientRequiresKey(t *testing.T) {
	if _, err := NewGeminiClient(context.Background(), "", "gemini-2.0-flash", "", 0.7, 0); err == nil {
		t.Fatalf("expected missing key error")
	}
}

func TestSplitMovesSystemToInstruction(t *testing.T) {
	c := &client{temperature: 0.5, maxTokens: 100}
	contents, cfg := c.split([]llm.Message{
		llm.System("be brief"),
		llm.User("hi"),
		llm.Assistant("hello"),
		llm.User("bye"),
	})
	if len(contents) != 3 {
		t.Fatalf("contents=%d", len(contents))
	}
	if contents[1].Role != "model" {
		t.Fatalf("assistant role mapped to %q", contents[1].Role)
	}
	if cfg.SystemInstruction == nil || cfg.MaxOutputTokens != 100 {
		t.Fatalf("config not populated: %+v", cfg)
	}
}

func TestSplitSystemOnly(t *testing.T) {
	c := &client{}
	contents, cfg := c.split([]llm.Message{llm.System("answer this")})
	if len(contents) != 1 || cfg.SystemInstruction != nil {
		t.Fatalf("system-only prompt should become the user content")
	}
}
