package routes

import (
	"errors"
	"net/http"

	"github.com/diagraph-app/diagraph/backend/internal/server/middleware"
	"github.com/diagraph-app/diagraph/backend/internal/store"

	"github.com/labstack/echo/v4"
)

// GetMessagesHandler returns the conversation history of a canvas in
// chronological order.
func GetMessagesHandler(c echo.Context) error {
	app := c.(*middleware.AppContext).App
	ctx := c.Request().Context()

	if _, err := app.Store.GetCanvas(ctx, c.Param("id")); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return c.JSON(http.StatusNotFound, map[string]string{
				"error": "Canvas not found",
			})
		}
		return c.JSON(http.StatusInternalServerError, map[string]string{
			"error": "Failed to load canvas",
		})
	}

	messages, err := app.Store.Messages(ctx, c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{
			"error": "Failed to load messages",
		})
	}
	return c.JSON(http.StatusOK, messages)
}
