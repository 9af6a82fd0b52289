// Package llm holds the clients for the hosted model provider: chat
// completions over the OpenAI protocol and the native model catalogue.
package llm

import (
	"context"
	"net/http"

	"github.com/sashabaranov/go-openai"

	"github.com/comigor/mentor-go/internal/config"
)

// Client is the chat-completion call the pipeline depends on. *openai.Client
// satisfies it; tests substitute a mock.
type Client interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// NewClient creates an OpenAI-protocol client for cfg. An empty BaseURL means
// Gemini's OpenAI-compatible endpoint; a zero Timeout leaves the HTTP client
// without a deadline so the caller's context governs.
func NewClient(cfg config.LLMConfig) *openai.Client {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	clientCfg.BaseURL = config.DefaultBaseURL
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	if cfg.Timeout > 0 {
		clientCfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}
	return openai.NewClientWithConfig(clientCfg)
}
