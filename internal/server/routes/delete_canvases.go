package routes

import (
	"errors"
	"net/http"

	"github.com/diagraph-app/diagraph/backend/internal/server/middleware"
	"github.com/diagraph-app/diagraph/backend/internal/store"

	"github.com/labstack/echo/v4"
)

// DeleteCanvasHandler removes a canvas and its conversation.
func DeleteCanvasHandler(c echo.Context) error {
	app := c.(*middleware.AppContext).App
	ctx := c.Request().Context()

	err := app.Store.DeleteCanvas(ctx, c.Param("id"))
	if errors.Is(err, store.ErrNotFound) {
		return c.JSON(http.StatusNotFound, map[string]string{
			"error": "Canvas not found",
		})
	}
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{
			"error": "Failed to delete canvas",
		})
	}
	return c.JSON(http.StatusOK, map[string]string{
		"message": "Canvas deleted",
	})
}
