package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// GeminiHTTPClient talks to the Gemini REST API directly. The SDK-backed
// client in providers/gemini is preferred; this one is selected with
// GeminiTransport "http".
type GeminiHTTPClient struct {
	APIKey  string
	Model   string
	BaseURL string
	HTTP    *http.Client
}

type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

func (r geminiResponse) text() string {
	var b strings.Builder
	for _, c := range r.Candidates {
		for _, p := range c.Content.Parts {
			b.WriteString(p.Text)
		}
	}
	return b.String()
}

func (c *GeminiHTTPClient) GeneratePlan(ctx context.Context, prompt string) (string, error) {
	return c.GenerateText(ctx, prompt)
}

func (c *GeminiHTTPClient) GenerateText(ctx context.Context, prompt string) (string, error) {
	var out geminiResponse
	if err := postJSON(ctx, c.client(), "gemini", c.endpoint("generateContent", ""), nil, c.body(prompt), &out); err != nil {
		return "", err
	}
	txt := out.text()
	if txt == "" {
		return "", errors.New("no candidates")
	}
	return txt, nil
}

func (c *GeminiHTTPClient) GenerateTextStream(ctx context.Context, prompt string, onDelta func(chunk string) error) error {
	res, err := send(ctx, streamingClient(c.client()), "gemini", c.endpoint("streamGenerateContent", "&alt=sse"), nil, c.body(prompt))
	if err != nil {
		return err
	}
	defer res.Body.Close()
	return readSSE(res.Body, func(data string) error {
		var chunk geminiResponse
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			return nil
		}
		if s := chunk.text(); s != "" {
			return onDelta(s)
		}
		return nil
	})
}

func (c *GeminiHTTPClient) body(prompt string) map[string]any {
	return map[string]any{
		"contents": []map[string]any{{
			"role":  "user",
			"parts": []map[string]string{{"text": prompt}},
		}},
	}
}

func (c *GeminiHTTPClient) endpoint(method, extra string) string {
	base := strings.TrimRight(c.BaseURL, "/")
	if base == "" {
		base = "https://generativelanguage.googleapis.com/v1beta"
	}
	return fmt.Sprintf("%s/models/%s:%s?key=%s%s", base, url.PathEscape(c.Model), method, url.QueryEscape(c.APIKey), extra)
}

func (c *GeminiHTTPClient) client() *http.Client {
	if c.HTTP != nil {
		return c.HTTP
	}
	return defaultClient
}
