// Package chat provides chat-completion value types and model identifiers.
package chat

import (
	"errors"
	"fmt"
)

// Supported OpenAI model identifiers.
const (
	ModelGPT4o      = "gpt-4o"
	ModelGPT4oMini  = "gpt-4o-mini"
	ModelGPT35Turbo = "gpt-3.5-turbo"

	DefaultModel = ModelGPT4o
)

// ErrUnsupportedModel is returned when a requested model is not in the
// system's supported set at all. Distinct from a plan not allowing it.
var ErrUnsupportedModel = errors.New("unsupported model")

// ErrInvalidRequest wraps structural request validation failures.
var ErrInvalidRequest = errors.New("invalid chat request")

var supportedModels = []string{ModelGPT4o, ModelGPT4oMini, ModelGPT35Turbo}

// modelLabels are the human-readable names shown in model pickers.
var modelLabels = map[string]string{
	ModelGPT4o:      "GPT-4o (Latest)",
	ModelGPT4oMini:  "GPT-4o Mini (Faster)",
	ModelGPT35Turbo: "GPT-3.5 Turbo (Budget)",
}

// SupportedModels returns the identifiers of all supported models.
func SupportedModels() []string {
	out := make([]string, len(supportedModels))
	copy(out, supportedModels)
	return out
}

// IsSupportedModel reports whether modelID is in the supported set.
func IsSupportedModel(modelID string) bool {
	for _, m := range supportedModels {
		if m == modelID {
			return true
		}
	}
	return false
}

// ModelLabel returns the display label for a model, or the identifier
// itself when no label is registered.
func ModelLabel(modelID string) string {
	if label, ok := modelLabels[modelID]; ok {
		return label
	}
	return modelID
}

// Message is a single chat message.
type Message struct {
	Role    string `json:"role"` // "system", "user", or "assistant"
	Content string `json:"content"`
}

// Request is a chat-completion request.
type Request struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	System      string    `json:"system,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature float64   `json:"temperature,omitempty"`
}

// Usage reports token consumption for a completion.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Response is a completed chat response.
type Response struct {
	ID           string `json:"id"`
	Model        string `json:"model"`
	Content      string `json:"content"`
	FinishReason string `json:"finish_reason"`
	Usage        Usage  `json:"usage"`
}

// Validate checks a request for structural problems.
// Model membership in the supported set is checked separately.
func Validate(req Request) error {
	if len(req.Messages) == 0 {
		return fmt.Errorf("%w: messages are required", ErrInvalidRequest)
	}
	for i, m := range req.Messages {
		switch m.Role {
		case "system", "user", "assistant":
		default:
			return fmt.Errorf("%w: messages[%d]: invalid role %q", ErrInvalidRequest, i, m.Role)
		}
		if m.Content == "" {
			return fmt.Errorf("%w: messages[%d]: content is required", ErrInvalidRequest, i)
		}
	}
	return nil
}
