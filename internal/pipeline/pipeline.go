// Package pipeline turns a session's history plus a new query into a model
// request and extracts the plain-text reply.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/comigor/mentor-go/internal/config"
	"github.com/comigor/mentor-go/internal/history"
	"github.com/comigor/mentor-go/internal/llm"
	"github.com/comigor/mentor-go/internal/logger"
)

var (
	// ErrServiceUnavailable means the language model service could not be
	// reached or refused the call.
	ErrServiceUnavailable = errors.New("language model service unavailable")
	// ErrInvalidResponse means the service answered but no text could be extracted.
	ErrInvalidResponse = errors.New("invalid language model response")
)

// Payload is a rendered prompt: system instruction, prior turns, new user turn.
type Payload struct {
	Messages []openai.ChatCompletionMessage
}

// Render builds the payload. The system instruction (if any) comes first,
// then every turn in append order, then query as a user turn.
func Render(systemInstruction string, turns []history.Turn, query string) Payload {
	messages := make([]openai.ChatCompletionMessage, 0, len(turns)+2)
	if systemInstruction != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: systemInstruction,
		})
	}
	for _, t := range turns {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    chatRole(t.Role),
			Content: t.Content,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: query,
	})
	return Payload{Messages: messages}
}

func chatRole(r history.Role) string {
	if r == history.RoleAssistant {
		return openai.ChatMessageRoleAssistant
	}
	return openai.ChatMessageRoleUser
}

// Pipeline invokes the language model service with fixed model settings.
type Pipeline struct {
	client      llm.Client
	model       string
	temperature float32
}

// New creates a pipeline for the configured model.
func New(client llm.Client, cfg config.LLMConfig) *Pipeline {
	return &Pipeline{
		client:      client,
		model:       cfg.Model,
		temperature: cfg.Temperature,
	}
}

// Invoke sends payload and returns the reply text. Failures wrap
// ErrServiceUnavailable or ErrInvalidResponse.
func (p *Pipeline) Invoke(ctx context.Context, payload Payload) (string, error) {
	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       p.model,
		Messages:    payload.Messages,
		Temperature: wireTemperature(p.temperature),
	})
	if err != nil {
		logger.L.Error("LLM call failed", "model", p.model, "error", err)
		return "", classify(err)
	}
	logger.L.Debug("LLM response received", "model", resp.Model, "usage", resp.Usage.TotalTokens)

	return extractText(resp)
}

// wireTemperature keeps an explicit 0 on the wire: the request field is
// omitempty, and an absent temperature means the provider's default.
func wireTemperature(t float32) float32 {
	if t == 0 {
		return math.SmallestNonzeroFloat32
	}
	return t
}

func extractText(resp openai.ChatCompletionResponse) (string, error) {
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: no choices", ErrInvalidResponse)
	}
	choice := resp.Choices[0]
	content := choice.Message.Content
	if content == "" && len(choice.Message.MultiContent) > 0 {
		var b strings.Builder
		for _, part := range choice.Message.MultiContent {
			if part.Type == openai.ChatMessagePartTypeText {
				b.WriteString(part.Text)
			}
		}
		content = b.String()
	}
	if strings.TrimSpace(content) == "" {
		return "", fmt.Errorf("%w: empty content (finish reason %q)", ErrInvalidResponse, choice.FinishReason)
	}
	return content, nil
}

// classify maps client errors onto the two pipeline failure kinds, keeping
// the original error in the chain. Any error status from the provider is
// unavailability, even when its body is not JSON.
func classify(err error) error {
	var (
		apiErr    *openai.APIError
		reqErr    *openai.RequestError
		syntaxErr *json.SyntaxError
		typeErr   *json.UnmarshalTypeError
	)
	switch {
	case errors.As(err, &apiErr), errors.As(err, &reqErr):
		return fmt.Errorf("%w: %w", ErrServiceUnavailable, err)
	case errors.As(err, &syntaxErr), errors.As(err, &typeErr), errors.Is(err, io.ErrUnexpectedEOF):
		return fmt.Errorf("%w: %w", ErrInvalidResponse, err)
	default:
		return fmt.Errorf("%w: %w", ErrServiceUnavailable, err)
	}
}
