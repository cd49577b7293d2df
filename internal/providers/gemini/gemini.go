// Package gemini adapts the generative-ai-go SDK to the llm client surface.
package gemini

import (
	"context"
	"errors"
	"strings"

	genai "github.com/google/generative-ai-go/genai"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

const DefaultModel = "gemini-2.5-flash"

type Client struct {
	sdk  *genai.Client
	text *genai.GenerativeModel
	plan *genai.GenerativeModel
}

// New dials the Gemini API with an API key. Extra options (endpoint
// override, HTTP client) are passed through to the SDK.
func New(ctx context.Context, apiKey, model string, opts ...option.ClientOption) (*Client, error) {
	if apiKey == "" {
		return nil, errors.New("gemini: missing api key")
	}
	if model == "" {
		model = DefaultModel
	}
	c, err := genai.NewClient(ctx, append([]option.ClientOption{option.WithAPIKey(apiKey)}, opts...)...)
	if err != nil {
		return nil, err
	}
	plan := c.GenerativeModel(model)
	plan.ResponseMIMEType = "application/json"
	plan.SetTemperature(0.2)
	return &Client{sdk: c, text: c.GenerativeModel(model), plan: plan}, nil
}

func (c *Client) Close() error { return c.sdk.Close() }

func (c *Client) GeneratePlan(ctx context.Context, prompt string) (string, error) {
	resp, err := c.plan.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", err
	}
	return firstText(resp), nil
}

func (c *Client) GenerateText(ctx context.Context, prompt string) (string, error) {
	resp, err := c.text.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", err
	}
	txt := firstText(resp)
	if txt == "" {
		return "", errors.New("gemini: empty response")
	}
	return txt, nil
}

func (c *Client) GenerateTextStream(ctx context.Context, prompt string, onDelta func(chunk string) error) error {
	it := c.text.GenerateContentStream(ctx, genai.Text(prompt))
	for {
		resp, err := it.Next()
		if errors.Is(err, iterator.Done) {
			return nil
		}
		if err != nil {
			return err
		}
		if s := firstText(resp); s != "" {
			if err := onDelta(s); err != nil {
				return err
			}
		}
	}
}

func firstText(r *genai.GenerateContentResponse) string {
	if r == nil {
		return ""
	}
	var b strings.Builder
	for _, c := range r.Candidates {
		if c.Content == nil {
			continue
		}
		for _, part := range c.Content.Parts {
			if t, ok := part.(genai.Text); ok {
				b.WriteString(string(t))
			}
		}
		break
	}
	return b.String()
}
