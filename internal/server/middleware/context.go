package middleware

import (
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"

	"github.com/diagraph-app/diagraph/backend/internal/store"
	"github.com/diagraph-app/diagraph/backend/pkg/ai"
	"github.com/diagraph-app/diagraph/backend/pkg/assistant"
)

// App carries the long-lived collaborators every handler needs.
type App struct {
	DBConn    *pgxpool.Pool
	Store     *store.CanvasStore
	AiClient  ai.CanvasAIClient
	Assistant *assistant.Assistant
}

type AppContext struct {
	echo.Context
	App *App
}

// AppContextMiddleware wraps every request context with the shared
// application state.
func AppContextMiddleware(app *App) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			cc := &AppContext{c, app}
			return next(cc)
		}
	}
}
