package server

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/mohammad-safakhou/mindsearch/internal/history"
)

// ChatsHandler serves the stored transcripts of the calling user.
type ChatsHandler struct {
	Store history.Store
}

func (h *ChatsHandler) Register(g *echo.Group) {
	g.GET("", h.list)
	g.GET("/:id", h.get)
	g.DELETE("/:id", h.delete)
}

// list
//
//	@Summary	List chats, newest first
//	@Tags		chats
//	@Produce	json
//	@Success	200	{object}	map[string][]history.Chat
//	@Router		/api/chats [get]
func (h *ChatsHandler) list(c echo.Context) error {
	chats, err := h.Store.ListChats(c.Request().Context(), subject(c))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if chats == nil {
		chats = []history.Chat{}
	}
	return c.JSON(http.StatusOK, map[string]any{"chats": chats})
}

// get
//
//	@Summary	Chat with its messages
//	@Tags		chats
//	@Produce	json
//	@Param		id	path		string	true	"Chat ID"
//	@Success	200	{object}	history.Chat
//	@Failure	404	{object}	HTTPError
//	@Router		/api/chats/{id} [get]
func (h *ChatsHandler) get(c echo.Context) error {
	chat, err := h.Store.GetChat(c.Request().Context(), subject(c), c.Param("id"))
	if errors.Is(err, history.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "chat not found")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, chat)
}

func (h *ChatsHandler) delete(c echo.Context) error {
	err := h.Store.DeleteChat(c.Request().Context(), subject(c), c.Param("id"))
	if errors.Is(err, history.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "chat not found")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}
