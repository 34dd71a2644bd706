package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/mohammad-safakhou/mindsearch/internal/stream"
)

const (
	wsPongWait   = 60 * time.Second
	wsPingPeriod = 20 * time.Second
	wsWriteWait  = 10 * time.Second
	wsReadLimit  = 1 << 20
)

// websocket serves a conversation over one connection. The client sends
// {"type":"message",...} to start a run and {"type":"cancel"} to stop the
// current one; every event is written back as a JSON frame. A new message
// cancels the run still in progress.
//
//	@Summary	Conversational search over WebSocket
//	@Tags		search
//	@Param		chatModel		query	string	false	"Chat model override"
//	@Param		embeddingModel	query	string	false	"Embedding model override"
//	@Param		temperature		query	number	false	"Sampling temperature"
//	@Param		contextSize		query	int		false	"Max tokens"
//	@Router		/api/ws [get]
func (s *Server) websocket(c echo.Context) error {
	opts, err := OptionsFromQuery(c.QueryParams())
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	ctx := c.Request().Context()
	runner, err := s.builder.Build(ctx, opts)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	conn, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// the upgrader has already replied
		return nil
	}
	defer conn.Close()

	userID := subject(c)
	sink := &wsSink{conn: conn}
	log := s.logger.With(zap.String("user", userID))

	conn.SetReadLimit(wsReadLimit)
	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})
	stopPing := make(chan struct{})
	go sink.heartbeat(stopPing)

	var (
		wg      sync.WaitGroup
		current *stream.Stream
	)
	defer func() {
		close(stopPing)
		if current != nil {
			current.Cancel()
		}
		wg.Wait()
	}()

	for {
		var frame ClientFrame
		if err := conn.ReadJSON(&frame); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Debug("websocket read failed", zap.Error(err))
			}
			return nil
		}
		_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))

		switch frame.Type {
		case frameCancel:
			if current != nil {
				current.Cancel()
			}
		case frameMessage:
			if strings.TrimSpace(frame.Content) == "" {
				_ = sink.Send(stream.Event{Data: stream.Error{Message: "message content required"}})
				continue
			}
			if current != nil {
				current.Cancel()
				wg.Wait()
			}
			sess := s.prepare(ctx, userID, frame.ChatID, frame.MessageID, frame.Content, frame.History)
			out := stream.New(s.cfg.Pipeline.EventBuffer)
			current = out
			wg.Add(1)
			go func() {
				defer wg.Done()
				err := s.execute(ctx, sess, runner, out, sink)
				if err != nil && !errors.Is(err, stream.ErrCancelled) && !errors.Is(err, context.Canceled) {
					log.Warn("event stream interrupted", zap.String("chat", sess.chatID), zap.Error(err))
				}
			}()
		default:
			_ = sink.Send(stream.Event{Data: stream.Error{Message: "unknown message type"}})
		}
	}
}

// wsSink serialises writes; gorilla connections allow one concurrent writer.
type wsSink struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (w *wsSink) Send(ev stream.Event) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	_ = w.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return w.conn.WriteJSON(ev)
}

func (w *wsSink) heartbeat(stop <-chan struct{}) {
	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if err := w.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
				return
			}
		}
	}
}
