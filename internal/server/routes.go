package server

import (
	"github.com/diagraph-app/diagraph/backend/internal/server/routes"

	"github.com/labstack/echo/v4"
)

func RegisterRoutes(e *echo.Echo) {
	// Health check route
	e.GET("/health", func(c echo.Context) error {
		return c.String(200, "OK")
	})

	apiRoutes := e.Group("/api")

	// Canvas routes
	apiRoutes.GET("/canvases", routes.GetCanvasesHandler)
	apiRoutes.POST("/canvases", routes.CreateCanvasHandler)
	apiRoutes.GET("/canvases/:id", routes.GetCanvasHandler)
	apiRoutes.DELETE("/canvases/:id", routes.DeleteCanvasHandler)

	// Conversation routes
	apiRoutes.GET("/canvases/:id/messages", routes.GetMessagesHandler)
	apiRoutes.POST("/canvases/:id/chat", routes.ChatHandler)
	apiRoutes.DELETE("/canvases/:id/chat", routes.CancelClarificationHandler)
}
