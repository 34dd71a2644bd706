package server

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mohammad-safakhou/mindsearch/internal/history"
	"github.com/mohammad-safakhou/mindsearch/internal/pipeline"
	"github.com/mohammad-safakhou/mindsearch/internal/stream"
	"github.com/mohammad-safakhou/mindsearch/models"
)

// session is one query bound to a chat.
type session struct {
	userID    string
	chatID    string
	messageID string
	query     models.Query
	persist   bool
}

// prepare resolves the chat of a query, creating it when it does not exist,
// and records the user turn. History sent by the client wins over the stored
// transcript. Storage failures only disable persistence for this query.
func (s *Server) prepare(ctx context.Context, userID, chatID, messageID, text string, turns []models.Turn) session {
	sess := session{
		userID:    userID,
		chatID:    strings.TrimSpace(chatID),
		messageID: messageID,
		query:     models.Query{Text: strings.TrimSpace(text), History: turns},
		persist:   true,
	}
	if sess.messageID == "" {
		sess.messageID = uuid.NewString()
	}
	log := s.logger.With(zap.String("chat", sess.chatID))

	existing := false
	if sess.chatID != "" {
		chat, err := s.history.GetChat(ctx, userID, sess.chatID)
		switch {
		case err == nil:
			existing = true
			if len(sess.query.History) == 0 {
				sess.query.History = history.ToTurns(chat.Messages)
			}
		case !errors.Is(err, history.ErrNotFound):
			log.Warn("load chat failed", zap.Error(err))
			sess.persist = false
			return sess
		}
	} else {
		sess.chatID = uuid.NewString()
	}

	if !existing {
		if _, err := s.history.CreateChat(ctx, history.Chat{ID: sess.chatID, Title: sess.query.Text, UserID: userID}); err != nil {
			log.Warn("create chat failed", zap.Error(err))
			sess.persist = false
			return sess
		}
	}
	if _, err := s.history.AppendMessage(ctx, history.Message{
		ChatID:    sess.chatID,
		MessageID: sess.messageID,
		Role:      models.RoleUser,
		Content:   sess.query.Text,
	}); err != nil {
		log.Warn("append user message failed", zap.Error(err))
		sess.persist = false
	}
	return sess
}

// execute runs the query on its own goroutine and forwards events to sink
// until the run ends or out is cancelled. The run outlives a cancelled
// consumer up to its next stage boundary; execute waits for it and records
// the answer when the run completed.
func (s *Server) execute(ctx context.Context, sess session, runner Runner, out *stream.Stream, sink stream.Sink) error {
	done := make(chan pipeline.Result, 1)
	runCtx := context.WithoutCancel(ctx)
	go func() { done <- runner.Run(runCtx, sess.query, out) }()

	ferr := out.Forward(ctx, sink)
	res := <-done
	s.record(runCtx, sess, res)
	return ferr
}

func (s *Server) record(ctx context.Context, sess session, res pipeline.Result) {
	log := s.logger.With(zap.String("chat", sess.chatID), zap.String("run_id", res.RunID))
	if res.Err != nil {
		log.Info("run ended without answer", zap.Error(res.Err))
		return
	}
	if !sess.persist {
		return
	}
	meta, err := json.Marshal(answerMetadata{RunID: res.RunID, Outline: res.Outline, Sources: res.Sources})
	if err != nil {
		log.Warn("encode answer metadata failed", zap.Error(err))
		meta = nil
	}
	if _, err := s.history.AppendMessage(ctx, history.Message{
		ChatID:    sess.chatID,
		MessageID: sess.messageID,
		Role:      models.RoleAssistant,
		Content:   res.Answer,
		Metadata:  meta,
	}); err != nil {
		log.Warn("append answer failed", zap.Error(err))
	}
}
