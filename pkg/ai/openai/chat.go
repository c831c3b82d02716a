package openai

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/diagraph-app/diagraph/backend/pkg/ai"
	"github.com/diagraph-app/diagraph/backend/pkg/logger"

	"github.com/cenkalti/backoff/v4"
	"github.com/openai/openai-go/v3"
)

const maxSendRetries = 3

// GenerateChat sends a multi-turn chat conversation to the model and
// returns the assistant's reply as plain text.
//
// Retryable transport failures (network errors, timeouts, rate limits,
// 5xx) are retried up to three times with exponential backoff before
// bubbling up. Authentication and malformed-request failures are never
// retried.
//
// Example:
//
//	msgs := []ai.ChatMessage{
//		{Role: "user", Message: "what connects Revenue and Costs?"},
//	}
//	resp, err := client.GenerateChat(ctx, msgs, ai.WithSystemPrompts(system))
func (c *CanvasOpenAIClient) GenerateChat(
	ctx context.Context,
	messages []ai.ChatMessage,
	opts ...ai.GenerateOption,
) (string, error) {
	client := c.ChatClient
	if client == nil {
		return "", &ai.AuthenticationError{
			Op:  "openai chat",
			Err: errors.New("no API key configured"),
		}
	}

	options := ai.GenerateOptions{
		Model:         c.chatModel,
		SystemPrompts: []string{},
		Temperature:   0.2,
	}
	for _, o := range opts {
		o(&options)
	}

	msgs := make([]openai.ChatCompletionMessageParamUnion, 0, len(options.SystemPrompts)+len(messages))
	for _, message := range options.SystemPrompts {
		msgs = append(msgs, openai.SystemMessage(message))
	}
	for _, message := range messages {
		switch message.Role {
		case "user":
			msgs = append(msgs, openai.UserMessage(message.Message))
		case "assistant":
			msgs = append(msgs, openai.AssistantMessage(message.Message))
		}
	}

	body := openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(options.Model),
		Messages:    msgs,
		Temperature: openai.Float(options.Temperature),
	}
	if options.MaxTokens > 0 {
		body.MaxCompletionTokens = openai.Int(int64(options.MaxTokens))
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 10 * time.Second

	var content string
	operation := func() error {
		start := time.Now()
		response, err := client.Chat.Completions.New(ctx, body)
		if err != nil {
			classified := classifyError(err)
			if !ai.IsRetryable(classified) {
				return backoff.Permanent(classified)
			}
			logger.Warn("[OpenAI] chat request failed, retrying", "err", err)
			return classified
		}
		duration := time.Since(start).Milliseconds()

		metrics := ai.ModelMetrics{
			InputTokens:  int(response.Usage.PromptTokens),
			OutputTokens: int(response.Usage.CompletionTokens),
			TotalTokens:  int(response.Usage.TotalTokens),
			DurationMs:   duration,
		}
		c.modifyMetrics(metrics)

		if len(response.Choices) == 0 {
			return backoff.Permanent(&ai.ResponseFormatError{
				Reason: "no choices in response from model",
			})
		}
		content = response.Choices[0].Message.Content
		if content == "" {
			return backoff.Permanent(&ai.ResponseFormatError{
				Reason: fmt.Sprintf("empty response from model (finish_reason: %s)", response.Choices[0].FinishReason),
			})
		}
		return nil
	}

	retries := backoff.WithMaxRetries(backoff.WithContext(b, ctx), maxSendRetries)
	if err := backoff.Retry(operation, retries); err != nil {
		return "", err
	}

	return content, nil
}

func classifyError(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return ai.ClassifyTransportError("openai chat", apiErr.StatusCode, err)
	}
	return ai.ClassifyTransportError("openai chat", 0, err)
}
