package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
)

type OpenAIClient struct {
	APIKey  string
	Model   string
	BaseURL string
	HTTP    *http.Client
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func (c *OpenAIClient) GeneratePlan(ctx context.Context, prompt string) (string, error) {
	return c.complete(ctx, prompt, 0.2)
}

func (c *OpenAIClient) GenerateText(ctx context.Context, prompt string) (string, error) {
	return c.complete(ctx, prompt, 0.3)
}

func (c *OpenAIClient) complete(ctx context.Context, prompt string, temperature float64) (string, error) {
	// Use Chat Completions for broad compatibility
	body := map[string]any{
		"model":       c.Model,
		"messages":    []map[string]string{{"role": "user", "content": prompt}},
		"temperature": temperature,
	}
	var resp chatResponse
	if err := postJSON(ctx, c.client(), "openai", c.endpoint("/v1/chat/completions"), c.headers(), body, &resp); err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

func (c *OpenAIClient) GenerateTextStream(ctx context.Context, prompt string, onDelta func(chunk string) error) error {
	body := map[string]any{
		"model":       c.Model,
		"messages":    []map[string]string{{"role": "user", "content": prompt}},
		"temperature": 0.3,
		"stream":      true,
	}
	res, err := send(ctx, streamingClient(c.client()), "openai", c.endpoint("/v1/chat/completions"), c.headers(), body)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	return readSSE(res.Body, func(data string) error {
		var chunk struct {
			Choices []struct {
				Delta struct {
					Content string `json:"content"`
				} `json:"delta"`
			} `json:"choices"`
		}
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			// keep-alive comments and unknown frames are skipped
			return nil
		}
		if len(chunk.Choices) > 0 && chunk.Choices[0].Delta.Content != "" {
			return onDelta(chunk.Choices[0].Delta.Content)
		}
		return nil
	})
}

func (c *OpenAIClient) headers() map[string]string {
	return map[string]string{"Authorization": "Bearer " + c.APIKey}
}

func (c *OpenAIClient) client() *http.Client {
	if c.HTTP != nil {
		return c.HTTP
	}
	return defaultClient
}

func (c *OpenAIClient) endpoint(path string) string {
	base := strings.TrimRight(c.BaseURL, "/")
	if base == "" {
		base = "https://api.openai.com"
	}
	return base + path
}
