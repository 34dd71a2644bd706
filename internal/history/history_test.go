package history

import (
	"context"
	"encoding/json"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"

	"github.com/mohammad-safakhou/mindsearch/models"
)

func TestMemoryStoreLifecycle(t *testing.T) {
	ctx := context.Background()
	st := NewMemory()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	older, err := st.CreateChat(ctx, Chat{Title: "first", UserID: "u1", CreatedAt: base})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	newer, _ := st.CreateChat(ctx, Chat{ID: "c2", Title: "second", UserID: "u1", CreatedAt: base.Add(time.Hour)})
	_, _ = st.CreateChat(ctx, Chat{Title: "other user", UserID: "u2"})
	if older.FocusMode != FocusMindSearch || older.ID == "" {
		t.Fatalf("defaults not applied: %+v", older)
	}

	if _, err := st.AppendMessage(ctx, Message{ChatID: "c2", Role: models.RoleUser, Content: "hi"}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if _, err := st.AppendMessage(ctx, Message{ChatID: "c2", Role: models.RoleAssistant, Content: "hello"}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if _, err := st.AppendMessage(ctx, Message{ChatID: "missing"}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("append to missing chat: %v", err)
	}

	chats, _ := st.ListChats(ctx, "u1")
	if len(chats) != 2 || chats[0].ID != newer.ID {
		t.Fatalf("list not newest first: %+v", chats)
	}
	got, err := st.GetChat(ctx, "u1", "c2")
	if err != nil || len(got.Messages) != 2 {
		t.Fatalf("get: %+v %v", got, err)
	}
	if _, err := st.GetChat(ctx, "u2", "c2"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("other user read chat: %v", err)
	}
	turns, _ := st.History(ctx, "c2")
	if len(turns) != 2 || turns[1].Role != models.RoleAssistant || turns[1].Text != "hello" {
		t.Fatalf("history: %+v", turns)
	}

	if err := st.DeleteChat(ctx, "u2", "c2"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("other user deleted chat: %v", err)
	}
	if err := st.DeleteChat(ctx, "u1", "c2"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if turns, _ := st.History(ctx, "c2"); len(turns) != 0 {
		t.Fatalf("messages survived delete")
	}
}

func TestPostgresCreateAndAppend(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()
	st := &Postgres{DB: db}
	at := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO chats (id, title, focus_mode, user_id, created_at) VALUES ($1,$2,$3,$4,$5)`)).
		WithArgs("c1", "Paris", FocusMindSearch, "u1", at).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO messages (id, chat_id, message_id, role, content, metadata, created_at) VALUES ($1,$2,$3,$4,$5,$6,$7)`)).
		WithArgs(sqlmock.AnyArg(), "c1", "m1", "user", "Paris", []byte(`{}`), at).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if _, err := st.CreateChat(context.Background(), Chat{ID: "c1", Title: "Paris", UserID: "u1", CreatedAt: at}); err != nil {
		t.Fatalf("create: %v", err)
	}
	msg, err := st.AppendMessage(context.Background(), Message{ChatID: "c1", MessageID: "m1", Role: models.RoleUser, Content: "Paris", CreatedAt: at})
	if err != nil || msg.ID == "" {
		t.Fatalf("append: %+v %v", msg, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestPostgresGetChat(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()
	st := &Postgres{DB: db}
	at := time.Now().UTC()

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT id, title, focus_mode, user_id, created_at FROM chats WHERE id=$1 AND user_id=$2`)).
		WithArgs("c1", "u1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "title", "focus_mode", "user_id", "created_at"}).
			AddRow("c1", "Paris", FocusMindSearch, "u1", at))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT id, chat_id, message_id, role, content, metadata, created_at FROM messages WHERE chat_id=$1 ORDER BY created_at, id`)).
		WithArgs("c1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "chat_id", "message_id", "role", "content", "metadata", "created_at"}).
			AddRow("1", "c1", "m1", "user", "q", []byte(`{}`), at).
			AddRow("2", "c1", "m1", "assistant", "a", []byte(`{"outline":"# x"}`), at))

	c, err := st.GetChat(context.Background(), "u1", "c1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(c.Messages) != 2 || c.Messages[1].Role != models.RoleAssistant {
		t.Fatalf("messages: %+v", c.Messages)
	}
	var meta map[string]string
	if err := json.Unmarshal(c.Messages[1].Metadata, &meta); err != nil || meta["outline"] != "# x" {
		t.Fatalf("metadata: %s", c.Messages[1].Metadata)
	}

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT id, title, focus_mode, user_id, created_at FROM chats WHERE id=$1 AND user_id=$2`)).
		WithArgs("nope", "u1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "title", "focus_mode", "user_id", "created_at"}))
	if _, err := st.GetChat(context.Background(), "u1", "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestPostgresDeleteChat(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()
	st := &Postgres{DB: db}

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM chats WHERE id=$1 AND user_id=$2`)).
		WithArgs("c1", "u1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM messages WHERE chat_id=$1`)).
		WithArgs("c1").WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectCommit()
	if err := st.DeleteChat(context.Background(), "u1", "c1"); err != nil {
		t.Fatalf("delete: %v", err)
	}

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM chats WHERE id=$1 AND user_id=$2`)).
		WithArgs("c1", "u2").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()
	if err := st.DeleteChat(context.Background(), "u2", "c1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
