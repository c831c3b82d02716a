package ollama

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/diagraph-app/diagraph/backend/pkg/ai"
	"github.com/diagraph-app/diagraph/backend/pkg/logger"

	"github.com/cenkalti/backoff/v4"
	"github.com/ollama/ollama/api"
	"github.com/pkoukk/tiktoken-go"
)

const maxSendRetries = 3

// GenerateChat sends a multi-turn conversation to the Ollama server and
// returns the assistant's reply as plain text. Requests are throttled
// by the client's concurrency limit. Retryable failures are retried up
// to three times with exponential backoff.
func (c *CanvasOllamaClient) GenerateChat(
	ctx context.Context,
	messages []ai.ChatMessage,
	opts ...ai.GenerateOption,
) (string, error) {
	options := ai.GenerateOptions{
		Model:         c.chatModel,
		SystemPrompts: []string{},
		Temperature:   0.2,
	}
	for _, o := range opts {
		o(&options)
	}

	msgs := make([]api.Message, 0, len(options.SystemPrompts)+len(messages))
	for _, sys := range options.SystemPrompts {
		msgs = append(msgs, api.Message{Role: "system", Content: sys})
	}
	for _, m := range messages {
		role := m.Role
		if role == "" {
			role = "user"
		}
		msgs = append(msgs, api.Message{Role: role, Content: m.Message})
	}

	stream := false
	req := &api.ChatRequest{
		Model:    options.Model,
		Messages: msgs,
		Stream:   &stream,
		Options:  map[string]any{"temperature": options.Temperature},
	}
	if options.MaxTokens > 0 {
		req.Options["num_predict"] = options.MaxTokens
	}

	// Grow the context window past the server default when the request
	// itself is already larger than that.
	tokens := 200
	enc, err := tiktoken.GetEncoding("o200k_base")
	if err != nil {
		return "", err
	}
	var chatString strings.Builder
	for _, sys := range options.SystemPrompts {
		chatString.WriteString(sys)
	}
	for _, m := range messages {
		chatString.WriteString(m.Message)
	}
	tokens += len(enc.Encode(chatString.String(), nil, nil))
	if tokens > 4096 {
		req.Options["num_ctx"] = tokens
	}

	if err := c.reqLock.Acquire(ctx, 1); err != nil {
		return "", err
	}
	defer c.reqLock.Release(1)

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 10 * time.Second

	var content string
	operation := func() error {
		start := time.Now()

		var final api.ChatResponse
		if err := c.Client.Chat(ctx, req, func(cr api.ChatResponse) error {
			final.Message.Content += cr.Message.Content
			if cr.Done {
				final.Done = true
				final.Metrics = cr.Metrics
			}
			return nil
		}); err != nil {
			classified := classifyError(err)
			if !ai.IsRetryable(classified) {
				return backoff.Permanent(classified)
			}
			logger.Warn("[Ollama] chat request failed, retrying", "err", err)
			return classified
		}

		metrics := ai.ModelMetrics{
			InputTokens:  final.Metrics.PromptEvalCount,
			OutputTokens: final.Metrics.EvalCount,
			TotalTokens:  final.Metrics.PromptEvalCount + final.Metrics.EvalCount,
			DurationMs:   time.Since(start).Milliseconds(),
		}
		c.modifyMetrics(metrics)

		content = final.Message.Content
		return nil
	}

	retries := backoff.WithMaxRetries(backoff.WithContext(b, ctx), maxSendRetries)
	if err := backoff.Retry(operation, retries); err != nil {
		return "", err
	}

	return content, nil
}

func classifyError(err error) error {
	var statusErr api.StatusError
	if errors.As(err, &statusErr) {
		return ai.ClassifyTransportError("ollama chat", statusErr.StatusCode, err)
	}
	return ai.ClassifyTransportError("ollama chat", 0, err)
}
