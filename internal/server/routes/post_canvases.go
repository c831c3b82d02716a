package routes

import (
	"net/http"

	"github.com/diagraph-app/diagraph/backend/internal/server/middleware"

	_ "github.com/go-playground/validator"
	"github.com/labstack/echo/v4"
)

// CreateCanvasHandler creates a new empty canvas.
func CreateCanvasHandler(c echo.Context) error {
	type createCanvasBody struct {
		Name string `json:"name" validate:"required"`
	}

	data := new(createCanvasBody)
	if err := c.Bind(data); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "Invalid request body",
		})
	}
	if err := c.Validate(data); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "Invalid request body",
		})
	}

	app := c.(*middleware.AppContext).App
	ctx := c.Request().Context()

	canvas, err := app.Store.CreateCanvas(ctx, data.Name)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{
			"error": "Failed to create canvas",
		})
	}
	return c.JSON(http.StatusCreated, canvas)
}
