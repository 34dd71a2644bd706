package server

import (
	"github.com/mohammad-safakhou/mindsearch/internal/stream"
	"github.com/mohammad-safakhou/mindsearch/models"
)

// SearchRequest is the body of POST /api/search.
type SearchRequest struct {
	Query     string        `json:"query"`
	History   []models.Turn `json:"history"`
	ChatID    string        `json:"chatId"`
	MessageID string        `json:"messageId"`
}

// headerChatID carries the chat of an SSE response.
const headerChatID = "X-Chat-Id"

// Client frame types accepted on /api/ws.
const (
	frameMessage = "message"
	frameCancel  = "cancel"
)

// ClientFrame is a message sent by a WebSocket client.
type ClientFrame struct {
	Type      string        `json:"type"`
	Content   string        `json:"content"`
	History   []models.Turn `json:"history"`
	ChatID    string        `json:"chatId"`
	MessageID string        `json:"messageId"`
}

type HTTPError struct {
	Error string `json:"error"`
}

// answerMetadata is stored with the assistant message of a run.
type answerMetadata struct {
	RunID   string          `json:"runId"`
	Outline string          `json:"outline,omitempty"`
	Sources []stream.Source `json:"sources,omitempty"`
}
