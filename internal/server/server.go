package server

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	mid "github.com/diagraph-app/diagraph/backend/internal/server/middleware"
	"github.com/diagraph-app/diagraph/backend/internal/store"
	"github.com/diagraph-app/diagraph/backend/internal/util"
	"github.com/diagraph-app/diagraph/backend/pkg/ai"
	oll "github.com/diagraph-app/diagraph/backend/pkg/ai/ollama"
	oai "github.com/diagraph-app/diagraph/backend/pkg/ai/openai"
	"github.com/diagraph-app/diagraph/backend/pkg/assistant"
	"github.com/diagraph-app/diagraph/backend/pkg/budget"
	"github.com/diagraph-app/diagraph/backend/pkg/logger"

	"github.com/go-playground/validator"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

type CustomValidator struct {
	validator *validator.Validate
}

func (cv *CustomValidator) Validate(i any) error {
	if err := cv.validator.Struct(i); err != nil {
		return err
	}
	return nil
}

func Init() {
	e := echo.New()
	e.Validator = &CustomValidator{validator: validator.New()}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	conn, err := pgxpool.New(ctx, util.GetEnv("DATABASE_URL"))
	if err != nil {
		logger.Fatal("Failed to connect to database", "err", err)
	}
	defer conn.Close()

	canvasStore := store.NewCanvasStore(conn)
	if err := util.RetryErrWithContext(ctx, 5, func(ctx context.Context) error {
		return canvasStore.Bootstrap(ctx)
	}); err != nil {
		logger.Fatal("Failed to bootstrap schema", "err", err)
	}

	aiClient := newAIClient()

	canvasAssistant := assistant.NewAssistant(assistant.NewAssistantParams{
		Client: aiClient,
		Budget: budget.NewManager(budget.NewManagerParams{
			Counter: newTokenCounter(),
			Config: budget.Config{
				ContextWindow: util.GetEnvInt("AI_CONTEXT_WINDOW", 0),
			},
		}),
		Model:       util.GetEnv("AI_CHAT_MODEL"),
		Temperature: util.GetEnvFloat("AI_TEMPERATURE", 0),
	})

	app := &mid.App{
		DBConn:    conn,
		Store:     canvasStore,
		AiClient:  aiClient,
		Assistant: canvasAssistant,
	}

	e.Use(mid.AppContextMiddleware(app))
	e.Use(middleware.CORS())
	e.Use(middleware.RequestLogger())
	e.Use(middleware.Recover())

	RegisterRoutes(e)

	go func() {
		port := util.GetEnv("PORT")
		if port == "" {
			port = "8080"
		}
		logger.Info("Starting server", "port", port)
		if err := e.Start(":" + port); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed shutting down server", "err", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("Failed to shutdown server", "err", err)
	}
}

func newAIClient() ai.CanvasAIClient {
	switch util.GetEnv("AI_ADAPTER") {
	case "ollama":
		client, err := oll.NewCanvasOllamaClient(oll.NewCanvasOllamaClientParams{
			ChatModel: util.GetEnv("AI_CHAT_MODEL"),

			BaseURL: util.GetEnv("AI_CHAT_URL"),
			ApiKey:  util.GetEnv("AI_CHAT_KEY"),

			MaxConcurrentRequests: int64(util.GetEnvInt("AI_PARALLEL_REQ", 4)),
		})
		if err != nil {
			logger.Fatal("Failed to create Ollama client", "err", err)
		}
		return client
	default:
		return oai.NewCanvasOpenAIClient(oai.NewCanvasOpenAIClientParams{
			ChatModel: util.GetEnv("AI_CHAT_MODEL"),
			ChatURL:   util.GetEnv("AI_CHAT_URL"),
			ChatKey:   util.GetEnv("AI_CHAT_KEY"),
		})
	}
}

// newTokenCounter selects the exact encoder when configured; the
// character heuristic is the default.
func newTokenCounter() budget.TokenCounter {
	encoding := util.GetEnv("AI_TOKEN_ENCODING")
	if encoding == "" {
		return nil
	}
	counter, err := budget.NewTiktokenCounter(encoding)
	if err != nil {
		logger.Warn("Failed to load token encoding, using the heuristic", "encoding", encoding, "err", err)
		return nil
	}
	return counter
}
