package openai

import (
	"net/http"
	"sync"
	"time"

	"github.com/diagraph-app/diagraph/backend/pkg/ai"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

const transportTimeout = 60 * time.Second

// CanvasOpenAIClient talks to an OpenAI-compatible chat endpoint on
// behalf of the canvas assistant.
//
// A CanvasOpenAIClient should be created using NewCanvasOpenAIClient.
type CanvasOpenAIClient struct {
	chatModel string
	chatURL   string
	chatKey   string

	metricsLock sync.Mutex
	metrics     ai.ModelMetrics

	ChatClient *openai.Client
}

// NewCanvasOpenAIClientParams defines the configuration parameters for
// creating a new CanvasOpenAIClient.
//
// ChatModel is the model used for all assistant turns.
// ChatURL and ChatKey configure the chat API endpoint; an empty ChatURL
// means the public OpenAI endpoint.
type NewCanvasOpenAIClientParams struct {
	ChatModel string
	ChatURL   string
	ChatKey   string
}

// NewCanvasOpenAIClient creates and returns a new CanvasOpenAIClient
// configured with the provided parameters.
//
// Example:
//
//	client := openai.NewCanvasOpenAIClient(openai.NewCanvasOpenAIClientParams{
//		ChatModel: "gpt-4o-mini",
//		ChatKey:   os.Getenv("OPENAI_API_KEY"),
//	})
func NewCanvasOpenAIClient(
	params NewCanvasOpenAIClientParams,
) *CanvasOpenAIClient {
	return &CanvasOpenAIClient{
		chatModel: params.ChatModel,
		chatURL:   params.ChatURL,
		chatKey:   params.ChatKey,

		metricsLock: sync.Mutex{},
		metrics: ai.ModelMetrics{
			InputTokens:  0,
			OutputTokens: 0,
			TotalTokens:  0,
			DurationMs:   0,
		},

		ChatClient: newOpenaiClient(params.ChatURL, params.ChatKey),
	}
}

func newOpenaiClient(
	baseURL string,
	apiKey string,
) *openai.Client {
	if apiKey == "" {
		return nil
	}
	options := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithHTTPClient(&http.Client{Timeout: transportTimeout}),
	}

	if baseURL != "" {
		options = append(options, option.WithBaseURL(baseURL))
	}

	client := openai.NewClient(options...)

	return &client
}

// ResetMetrics clears all accumulated token and timing metrics to zero.
func (c *CanvasOpenAIClient) ResetMetrics() {
	c.metricsLock.Lock()
	c.metrics = ai.ModelMetrics{
		InputTokens:  0,
		OutputTokens: 0,
		TotalTokens:  0,
		DurationMs:   0,
	}
	c.metricsLock.Unlock()
}

// GetMetrics returns the accumulated token usage and timing metrics
// since the last reset.
func (c *CanvasOpenAIClient) GetMetrics() ai.ModelMetrics {
	c.metricsLock.Lock()
	defer c.metricsLock.Unlock()
	return c.metrics
}

func (c *CanvasOpenAIClient) modifyMetrics(m ai.ModelMetrics) {
	c.metricsLock.Lock()
	defer c.metricsLock.Unlock()

	c.metrics.InputTokens += m.InputTokens
	c.metrics.OutputTokens += m.OutputTokens
	c.metrics.TotalTokens += m.TotalTokens
	c.metrics.DurationMs += m.DurationMs
}
