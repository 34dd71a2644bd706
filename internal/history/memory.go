package history

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mohammad-safakhou/mindsearch/models"
)

// Memory keeps chats in process. It is used when no database is configured.
type Memory struct {
	mu       sync.RWMutex
	chats    map[string]Chat
	messages map[string][]Message
	now      func() time.Time
}

func NewMemory() *Memory {
	return &Memory{chats: map[string]Chat{}, messages: map[string][]Message{}, now: time.Now}
}

func (m *Memory) CreateChat(_ context.Context, c Chat) (Chat, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if _, ok := m.chats[c.ID]; ok {
		return Chat{}, errors.New("chat already exists")
	}
	if c.FocusMode == "" {
		c.FocusMode = FocusMindSearch
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = m.now()
	}
	c.Messages = nil
	m.chats[c.ID] = c
	return c, nil
}

func (m *Memory) AppendMessage(_ context.Context, msg Message) (Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.chats[msg.ChatID]; !ok {
		return Message{}, ErrNotFound
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = m.now()
	}
	m.messages[msg.ChatID] = append(m.messages[msg.ChatID], msg)
	return msg, nil
}

func (m *Memory) ListChats(_ context.Context, userID string) ([]Chat, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Chat
	for _, c := range m.chats {
		if c.UserID == userID {
			out = append(out, c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *Memory) GetChat(_ context.Context, userID, id string) (Chat, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.chats[id]
	if !ok || c.UserID != userID {
		return Chat{}, ErrNotFound
	}
	c.Messages = append([]Message(nil), m.messages[id]...)
	return c, nil
}

func (m *Memory) DeleteChat(_ context.Context, userID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.chats[id]
	if !ok || c.UserID != userID {
		return ErrNotFound
	}
	delete(m.chats, id)
	delete(m.messages, id)
	return nil
}

func (m *Memory) History(_ context.Context, chatID string) ([]models.Turn, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return ToTurns(m.messages[chatID]), nil
}
