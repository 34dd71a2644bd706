// Package server exposes the search pipeline over HTTP: server-sent events,
// WebSocket, and the chat history API.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/mohammad-safakhou/mindsearch/config"
	"github.com/mohammad-safakhou/mindsearch/internal/history"
	"github.com/mohammad-safakhou/mindsearch/internal/runtime"
)

const shutdownTimeout = 10 * time.Second

type Server struct {
	echo     *echo.Echo
	cfg      config.Config
	builder  RunnerBuilder
	history  history.Store
	logger   *zap.Logger
	metrics  *runtime.Metrics
	upgrader websocket.Upgrader
}

func New(cfg config.Config, builder RunnerBuilder, st history.Store, logger *zap.Logger, metrics *runtime.Metrics) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if st == nil {
		st = history.NewMemory()
	}
	cfg.Pipeline = cfg.Pipeline.Normalize()
	s := &Server{
		echo:    echo.New(),
		cfg:     cfg,
		builder: builder,
		history: st,
		logger:  logger,
		metrics: metrics,
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     func(r *http.Request) bool { return originAllowed(cfg.Server.AllowedOrigins, r.Header.Get("Origin")) },
	}
	s.routes()
	return s
}

// Handler returns the configured echo instance.
func (s *Server) Handler() http.Handler { return s.echo }

func (s *Server) routes() {
	e := s.echo
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.HTTPErrorHandler = s.errorHandler
	origins := s.cfg.Server.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: origins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{echo.HeaderContentType, echo.HeaderAuthorization},
		ExposeHeaders: []string{headerChatID},
	}))

	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	if s.metrics != nil {
		e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(s.metrics.Registry, promhttp.HandlerOpts{})))
	}

	api := e.Group("/api", runtime.EchoAuthMiddleware([]byte(s.cfg.Server.JWTSecret)))
	api.POST("/search", s.search)
	api.GET("/ws", s.websocket)

	chats := &ChatsHandler{Store: s.history}
	chats.Register(api.Group("/chats"))
}

// errorHandler renders every failure as {"error": msg}.
func (s *Server) errorHandler(err error, c echo.Context) {
	code := http.StatusInternalServerError
	msg := err.Error()
	var he *echo.HTTPError
	if errors.As(err, &he) {
		code = he.Code
		if he.Message != nil {
			msg = fmt.Sprint(he.Message)
		}
	}
	req := c.Request()
	fields := []zap.Field{
		zap.Int("status", code),
		zap.String("method", req.Method),
		zap.String("path", req.URL.Path),
		zap.String("remote", c.RealIP()),
		zap.Error(err),
	}
	if code >= http.StatusInternalServerError {
		s.logger.Error("request failed", fields...)
	} else {
		s.logger.Debug("request rejected", fields...)
	}
	if !c.Response().Committed {
		_ = c.JSON(code, HTTPError{Error: msg})
	}
}

// Start serves on the configured address until ctx is done, then shuts down
// gracefully.
func (s *Server) Start(ctx context.Context) error {
	addr := s.cfg.Server.Address
	if addr == "" {
		addr = ":3001"
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", zap.String("addr", addr))
		if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return s.echo.Shutdown(shutdownCtx)
}

func originAllowed(allowed []string, origin string) bool {
	if origin == "" || len(allowed) == 0 {
		return true
	}
	for _, o := range allowed {
		if o == "*" || o == origin {
			return true
		}
	}
	return false
}

func subject(c echo.Context) string {
	if sub, ok := runtime.SubjectFromContext(c.Request().Context()); ok {
		return sub
	}
	return runtime.AnonymousSubject
}
