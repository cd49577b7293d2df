package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
)

// defaultMaxTokens leaves room for a full final report.
const defaultMaxTokens = 4096

type AnthropicClient struct {
	APIKey    string
	Model     string
	URL       string
	HTTP      *http.Client
	MaxTokens int
}

func (c *AnthropicClient) GeneratePlan(ctx context.Context, prompt string) (string, error) {
	return c.GenerateText(ctx, prompt)
}

func (c *AnthropicClient) GenerateText(ctx context.Context, prompt string) (string, error) {
	var resp struct {
		Content []struct {
			Text string `json:"text"`
		} `json:"content"`
	}
	if err := postJSON(ctx, c.client(), "anthropic", c.endpoint(), c.headers(), c.body(prompt, false), &resp); err != nil {
		return "", err
	}
	if len(resp.Content) == 0 {
		return "", errors.New("no content")
	}
	return resp.Content[0].Text, nil
}

// GenerateTextStream reads the Messages SSE stream and forwards every
// content_block_delta text fragment.
func (c *AnthropicClient) GenerateTextStream(ctx context.Context, prompt string, onDelta func(chunk string) error) error {
	res, err := send(ctx, streamingClient(c.client()), "anthropic", c.endpoint(), c.headers(), c.body(prompt, true))
	if err != nil {
		return err
	}
	defer res.Body.Close()
	return readSSE(res.Body, func(data string) error {
		var ev struct {
			Type  string `json:"type"`
			Delta struct {
				Type string `json:"type"`
				Text string `json:"text"`
			} `json:"delta"`
			Error *struct {
				Message string `json:"message"`
			} `json:"error"`
		}
		if err := json.Unmarshal([]byte(data), &ev); err != nil {
			return nil
		}
		switch ev.Type {
		case "content_block_delta":
			if ev.Delta.Text != "" {
				return onDelta(ev.Delta.Text)
			}
		case "error":
			if ev.Error != nil {
				return errors.New("anthropic stream: " + ev.Error.Message)
			}
			return errors.New("anthropic stream error")
		}
		return nil
	})
}

func (c *AnthropicClient) body(prompt string, stream bool) map[string]any {
	b := map[string]any{
		"model":      c.Model,
		"max_tokens": c.maxTokens(),
		"messages": []map[string]any{{
			"role":    "user",
			"content": []map[string]string{{"type": "text", "text": prompt}},
		}},
	}
	if stream {
		b["stream"] = true
	}
	return b
}

func (c *AnthropicClient) maxTokens() int {
	if c.MaxTokens > 0 {
		return c.MaxTokens
	}
	return defaultMaxTokens
}

func (c *AnthropicClient) headers() map[string]string {
	return map[string]string{
		"x-api-key":         c.APIKey,
		"anthropic-version": "2023-06-01",
	}
}

func (c *AnthropicClient) client() *http.Client {
	if c.HTTP != nil {
		return c.HTTP
	}
	return defaultClient
}

func (c *AnthropicClient) endpoint() string {
	if c.URL != "" {
		return c.URL
	}
	return "https://api.anthropic.com/v1/messages"
}
