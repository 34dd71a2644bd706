// Package history persists chats and their messages.
package history

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/mohammad-safakhou/mindsearch/models"
)

// FocusMindSearch is the focus mode recorded for chats answered by the pipeline.
const FocusMindSearch = "mindSearch"

var ErrNotFound = errors.New("chat not found")

type Chat struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	FocusMode string    `json:"focusMode"`
	UserID    string    `json:"-"`
	CreatedAt time.Time `json:"createdAt"`
	Messages  []Message `json:"messages,omitempty"`
}

type Message struct {
	ID        string          `json:"id"`
	ChatID    string          `json:"chatId"`
	MessageID string          `json:"messageId"`
	Role      models.Role     `json:"role"`
	Content   string          `json:"content"`
	Metadata  json.RawMessage `json:"metadata,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
}

// Store is implemented by the in-memory and Postgres backends. Chats are
// scoped to a user; reading or deleting another user's chat is ErrNotFound.
type Store interface {
	CreateChat(ctx context.Context, c Chat) (Chat, error)
	AppendMessage(ctx context.Context, m Message) (Message, error)
	ListChats(ctx context.Context, userID string) ([]Chat, error)
	GetChat(ctx context.Context, userID, id string) (Chat, error)
	DeleteChat(ctx context.Context, userID, id string) error
	History(ctx context.Context, chatID string) ([]models.Turn, error)
}

// ToTurns converts stored messages to conversation turns.
func ToTurns(msgs []Message) []models.Turn {
	turns := make([]models.Turn, 0, len(msgs))
	for _, m := range msgs {
		turns = append(turns, models.Turn{Role: m.Role, Text: m.Content})
	}
	return turns
}
