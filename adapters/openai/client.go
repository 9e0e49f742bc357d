// Package openai provides a chat-completion client for the OpenAI API,
// optionally routed through the Cloudflare AI Gateway.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/chatgate/chatgate/domain/chat"
	"github.com/chatgate/chatgate/ports"
)

// Config holds client configuration.
type Config struct {
	APIKey string

	// BaseURL overrides the API endpoint. Takes precedence over the
	// Cloudflare gateway fields.
	BaseURL string

	// AccountID and GatewayID route requests through the Cloudflare
	// AI Gateway for caching and analytics.
	AccountID string
	GatewayID string

	Timeout time.Duration
}

// Client implements ports.CompletionProvider against the OpenAI
// chat-completions API.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// New creates a new OpenAI client.
func New(cfg Config) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" && cfg.AccountID != "" && cfg.GatewayID != "" {
		baseURL = fmt.Sprintf("https://gateway.ai.cloudflare.com/v1/%s/%s/openai", cfg.AccountID, cfg.GatewayID)
	}
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}

	return &Client{
		apiKey:     cfg.APIKey,
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// APIError is a non-2xx response from the OpenAI API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("openai: %d: %s", e.StatusCode, e.Message)
}

type wireMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type completionRequest struct {
	Model       string        `json:"model"`
	Messages    []wireMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature,omitempty"`
}

type completionResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Message      wireMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// Complete sends a chat request upstream and returns the response.
func (c *Client) Complete(ctx context.Context, req chat.Request) (chat.Response, error) {
	wire := completionRequest{
		Model:       req.Model,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	}
	if req.System != "" {
		wire.Messages = append(wire.Messages, wireMessage{Role: "system", Content: req.System})
	}
	for _, m := range req.Messages {
		wire.Messages = append(wire.Messages, wireMessage{Role: m.Role, Content: m.Content})
	}

	body, err := json.Marshal(wire)
	if err != nil {
		return chat.Response{}, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return chat.Response{}, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return chat.Response{}, fmt.Errorf("completion request: %w", err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return chat.Response{}, fmt.Errorf("read response: %w", err)
	}

	var parsed completionResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		if httpResp.StatusCode >= 400 {
			return chat.Response{}, &APIError{StatusCode: httpResp.StatusCode, Message: string(respBody)}
		}
		return chat.Response{}, fmt.Errorf("decode response: %w", err)
	}

	if httpResp.StatusCode >= 400 {
		msg := "request failed"
		if parsed.Error != nil {
			msg = parsed.Error.Message
		}
		return chat.Response{}, &APIError{StatusCode: httpResp.StatusCode, Message: msg}
	}

	if len(parsed.Choices) == 0 {
		return chat.Response{}, fmt.Errorf("openai: response contained no choices")
	}

	choice := parsed.Choices[0]
	return chat.Response{
		ID:           parsed.ID,
		Model:        parsed.Model,
		Content:      choice.Message.Content,
		FinishReason: choice.FinishReason,
		Usage: chat.Usage{
			PromptTokens:     parsed.Usage.PromptTokens,
			CompletionTokens: parsed.Usage.CompletionTokens,
			TotalTokens:      parsed.Usage.TotalTokens,
		},
	}, nil
}

// Ensure interface compliance.
var _ ports.CompletionProvider = (*Client)(nil)
