package routes

import (
	"errors"
	"net/http"

	"github.com/diagraph-app/diagraph/backend/internal/server/middleware"
	"github.com/diagraph-app/diagraph/backend/internal/store"

	"github.com/labstack/echo/v4"
)

// CancelClarificationHandler abandons a pending clarification round and
// returns the conversation to idle. The original request is dropped.
func CancelClarificationHandler(c echo.Context) error {
	app := c.(*middleware.AppContext).App
	ctx := c.Request().Context()

	canvas, err := app.Store.GetCanvas(ctx, c.Param("id"))
	if errors.Is(err, store.ErrNotFound) {
		return c.JSON(http.StatusNotFound, map[string]string{
			"error": "Canvas not found",
		})
	}
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{
			"error": "Failed to load canvas",
		})
	}

	if err := app.Store.SaveConversationState(ctx, canvas.ID, canvas.LastIntent, nil); err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{
			"error": "Failed to cancel clarification",
		})
	}
	return c.JSON(http.StatusOK, map[string]string{
		"message": "Clarification cancelled",
	})
}
