package routes

import (
	"errors"
	"net/http"

	"github.com/diagraph-app/diagraph/backend/internal/server/middleware"
	"github.com/diagraph-app/diagraph/backend/internal/store"

	"github.com/labstack/echo/v4"
)

// GetCanvasesHandler lists all canvases, most recently updated first.
func GetCanvasesHandler(c echo.Context) error {
	app := c.(*middleware.AppContext).App
	ctx := c.Request().Context()

	summaries, err := app.Store.ListCanvases(ctx)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{
			"error": "Failed to list canvases",
		})
	}
	return c.JSON(http.StatusOK, summaries)
}

// GetCanvasHandler returns one canvas with its full graph.
func GetCanvasHandler(c echo.Context) error {
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
	return c.JSON(http.StatusOK, canvas)
}
