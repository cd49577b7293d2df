package llm

import (
	"context"
	"net/http"
	"strings"

	"github.com/example/mission-control/internal/providers/gemini"
)

// New returns a Client for the configured provider.
// Supported providers:
// - openai:    OpenAIKey, optional OpenAIBase
// - anthropic: AnthropicKey, optional AnthropicURL
// - gemini:    GoogleKey; GeminiTransport "http" skips the SDK
// - mock:      offline deterministic replies
// With no provider set the first present key wins; with no key at all a
// MockClient is returned.
func New(ctx context.Context, s Settings) (Client, error) {
	hc := &http.Client{Timeout: clientTimeout(s.HTTPTimeoutMs)}
	prov := strings.ToLower(strings.TrimSpace(s.Provider))
	if prov == "" {
		switch {
		case s.OpenAIKey != "":
			prov = "openai"
		case s.AnthropicKey != "":
			prov = "anthropic"
		case s.GoogleKey != "":
			prov = "gemini"
		default:
			prov = "mock"
		}
	}
	switch prov {
	case "openai":
		if s.OpenAIKey != "" {
			return &OpenAIClient{APIKey: s.OpenAIKey, Model: modelOr(s.Model, "gpt-4o-mini"), BaseURL: s.OpenAIBase, HTTP: hc}, nil
		}
	case "anthropic":
		if s.AnthropicKey != "" {
			return &AnthropicClient{APIKey: s.AnthropicKey, Model: modelOr(s.Model, "claude-3-5-sonnet-latest"), URL: s.AnthropicURL, HTTP: hc, MaxTokens: s.MaxTokens}, nil
		}
	case "gemini":
		if s.GoogleKey != "" {
			model := modelOr(s.Model, gemini.DefaultModel)
			if strings.EqualFold(s.GeminiTransport, "http") || s.GeminiURL != "" {
				return &GeminiHTTPClient{APIKey: s.GoogleKey, Model: model, BaseURL: s.GeminiURL, HTTP: hc}, nil
			}
			c, err := gemini.New(ctx, s.GoogleKey, model)
			if err != nil {
				return nil, err
			}
			return c, nil
		}
	}
	return &MockClient{}, nil
}

func modelOr(v, def string) string {
	if v = strings.TrimSpace(v); v != "" {
		return v
	}
	return def
}
