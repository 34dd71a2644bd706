package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"

	"github.com/mohammad-safakhou/mindsearch/models"
)

type Postgres struct {
	DB *sql.DB
}

// NewPostgres opens and pings the database at dsn.
func NewPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Postgres{DB: db}, nil
}

func (p *Postgres) Close() error { return p.DB.Close() }

func (p *Postgres) CreateChat(ctx context.Context, c Chat) (Chat, error) {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.FocusMode == "" {
		c.FocusMode = FocusMindSearch
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	_, err := p.DB.ExecContext(ctx,
		`INSERT INTO chats (id, title, focus_mode, user_id, created_at) VALUES ($1,$2,$3,$4,$5)`,
		c.ID, c.Title, c.FocusMode, c.UserID, c.CreatedAt)
	if err != nil {
		return Chat{}, fmt.Errorf("insert chat: %w", err)
	}
	c.Messages = nil
	return c, nil
}

func (p *Postgres) AppendMessage(ctx context.Context, m Message) (Message, error) {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	meta := m.Metadata
	if len(meta) == 0 {
		meta = json.RawMessage(`{}`)
	}
	_, err := p.DB.ExecContext(ctx,
		`INSERT INTO messages (id, chat_id, message_id, role, content, metadata, created_at) VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		m.ID, m.ChatID, m.MessageID, string(m.Role), m.Content, []byte(meta), m.CreatedAt)
	if err != nil {
		return Message{}, fmt.Errorf("insert message: %w", err)
	}
	return m, nil
}

func (p *Postgres) ListChats(ctx context.Context, userID string) ([]Chat, error) {
	rows, err := p.DB.QueryContext(ctx,
		`SELECT id, title, focus_mode, user_id, created_at FROM chats WHERE user_id=$1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Chat
	for rows.Next() {
		var c Chat
		if err := rows.Scan(&c.ID, &c.Title, &c.FocusMode, &c.UserID, &c.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (p *Postgres) GetChat(ctx context.Context, userID, id string) (Chat, error) {
	var c Chat
	err := p.DB.QueryRowContext(ctx,
		`SELECT id, title, focus_mode, user_id, created_at FROM chats WHERE id=$1 AND user_id=$2`, id, userID).
		Scan(&c.ID, &c.Title, &c.FocusMode, &c.UserID, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Chat{}, ErrNotFound
	}
	if err != nil {
		return Chat{}, err
	}
	c.Messages, err = p.messages(ctx, id)
	if err != nil {
		return Chat{}, err
	}
	return c, nil
}

func (p *Postgres) messages(ctx context.Context, chatID string) ([]Message, error) {
	rows, err := p.DB.QueryContext(ctx,
		`SELECT id, chat_id, message_id, role, content, metadata, created_at FROM messages WHERE chat_id=$1 ORDER BY created_at, id`, chatID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Message
	for rows.Next() {
		var (
			m    Message
			role string
			meta []byte
		)
		if err := rows.Scan(&m.ID, &m.ChatID, &m.MessageID, &role, &m.Content, &meta, &m.CreatedAt); err != nil {
			return nil, err
		}
		m.Role = models.NormalizeRole(role)
		if len(meta) > 0 {
			m.Metadata = json.RawMessage(meta)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// DeleteChat removes the chat and its messages in one transaction.
func (p *Postgres) DeleteChat(ctx context.Context, userID, id string) error {
	tx, err := p.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `DELETE FROM chats WHERE id=$1 AND user_id=$2`, id, userID)
	if err != nil {
		return fmt.Errorf("delete chat: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return err
	} else if n == 0 {
		return ErrNotFound
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE chat_id=$1`, id); err != nil {
		return fmt.Errorf("delete messages: %w", err)
	}
	return tx.Commit()
}

func (p *Postgres) History(ctx context.Context, chatID string) ([]models.Turn, error) {
	msgs, err := p.messages(ctx, chatID)
	if err != nil {
		return nil, err
	}
	return ToTurns(msgs), nil
}
