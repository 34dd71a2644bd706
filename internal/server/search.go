package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/mohammad-safakhou/mindsearch/internal/stream"
)

// search streams one pipeline run as server-sent events.
//
//	@Summary	Answer a query
//	@Tags		search
//	@Accept		json
//	@Produce	text/event-stream
//	@Param		payload			body	SearchRequest	true	"Query and history"
//	@Param		chatModel		query	string			false	"Chat model override"
//	@Param		embeddingModel	query	string			false	"Embedding model override"
//	@Param		temperature		query	number			false	"Sampling temperature"
//	@Param		contextSize		query	int				false	"Max tokens"
//	@Success	200	{string}	string	"data: {type,data} frames"
//	@Failure	400	{object}	HTTPError
//	@Router		/api/search [post]
func (s *Server) search(c echo.Context) error {
	var req SearchRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if strings.TrimSpace(req.Query) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "query required")
	}
	opts, err := OptionsFromQuery(c.QueryParams())
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	ctx := c.Request().Context()
	runner, err := s.builder.Build(ctx, opts)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	sess := s.prepare(ctx, subject(c), req.ChatID, req.MessageID, req.Query, req.History)

	w := c.Response()
	w.Header().Set(echo.HeaderContentType, "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set(headerChatID, sess.chatID)
	w.WriteHeader(http.StatusOK)
	w.Flush()

	out := stream.New(s.cfg.Pipeline.EventBuffer)
	err = s.execute(ctx, sess, runner, out, &sseSink{w: w})
	if err != nil && !errors.Is(err, stream.ErrCancelled) && !errors.Is(err, context.Canceled) {
		s.logger.Warn("event stream interrupted", zap.String("chat", sess.chatID), zap.Error(err))
	}
	return nil
}

type sseSink struct {
	w *echo.Response
}

func (s *sseSink) Send(ev stream.Event) error {
	b, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", b); err != nil {
		return err
	}
	s.w.Flush()
	return nil
}
