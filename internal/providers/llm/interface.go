package llm

import (
	"context"
)

// Client is the minimal surface the planning, execution and finalization
// gateways need from a model provider.
type Client interface {
	// GeneratePlan asks for a structured (JSON) reply at low temperature.
	GeneratePlan(ctx context.Context, prompt string) (string, error)
	GenerateText(ctx context.Context, prompt string) (string, error)
	// GenerateTextStream calls onDelta for every text fragment as it arrives.
	// A non-nil error from onDelta aborts the stream and is returned.
	GenerateTextStream(ctx context.Context, prompt string, onDelta func(chunk string) error) error
}

// Settings selects and configures a provider.
type Settings struct {
	Provider        string // openai|anthropic|gemini|mock; empty means auto-detect
	Model           string
	OpenAIKey       string
	OpenAIBase      string
	AnthropicKey    string
	AnthropicURL    string
	GoogleKey       string
	GeminiURL       string
	GeminiTransport string // sdk|http
	HTTPTimeoutMs   int
	// MaxTokens caps Anthropic replies; 0 uses the client default.
	MaxTokens       int
}
