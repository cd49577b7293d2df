package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collect(t *testing.T, c Client, prompt string) (string, error) {
	t.Helper()
	var b strings.Builder
	err := c.GenerateTextStream(context.Background(), prompt, func(chunk string) error {
		b.WriteString(chunk)
		return nil
	})
	return b.String(), err
}

func TestOpenAIStream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer k", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprintln(w, `data: {"choices":[{"delta":{"content":"Hel"}}]}`)
		fmt.Fprintln(w, ``)
		fmt.Fprintln(w, `data: {"choices":[{"delta":{"content":"lo"}}]}`)
		fmt.Fprintln(w, `data: [DONE]`)
		fmt.Fprintln(w, `data: {"choices":[{"delta":{"content":"ignored"}}]}`)
	}))
	defer srv.Close()

	c := &OpenAIClient{APIKey: "k", Model: "m", BaseURL: srv.URL}
	out, err := collect(t, c, "hi")
	require.NoError(t, err)
	assert.Equal(t, "Hello", out)
}

func TestOpenAIStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		fmt.Fprint(w, `{"error":"slow down"}`)
	}))
	defer srv.Close()

	c := &OpenAIClient{APIKey: "k", Model: "m", BaseURL: srv.URL}
	_, err := c.GenerateText(context.Background(), "hi")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "openai status 429")
}

func TestAnthropicStream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "k", r.Header.Get("x-api-key"))
		fmt.Fprintln(w, "event: message_start")
		fmt.Fprintln(w, `data: {"type":"message_start"}`)
		fmt.Fprintln(w, `data: {"type":"content_block_delta","delta":{"type":"text_delta","text":"a"}}`)
		fmt.Fprintln(w, `data: {"type":"content_block_delta","delta":{"type":"text_delta","text":"b"}}`)
		fmt.Fprintln(w, `data: {"type":"message_stop"}`)
	}))
	defer srv.Close()

	c := &AnthropicClient{APIKey: "k", Model: "m", URL: srv.URL}
	out, err := collect(t, c, "hi")
	require.NoError(t, err)
	assert.Equal(t, "ab", out)
}

func TestAnthropicStreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, `data: {"type":"content_block_delta","delta":{"text":"partial"}}`)
		fmt.Fprintln(w, `data: {"type":"error","error":{"message":"overloaded"}}`)
	}))
	defer srv.Close()

	c := &AnthropicClient{APIKey: "k", Model: "m", URL: srv.URL}
	out, err := collect(t, c, "hi")
	assert.Equal(t, "partial", out)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "overloaded")
}

func TestGeminiHTTPGenerate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/models/g:generateContent", r.URL.Path)
		assert.Equal(t, "k", r.URL.Query().Get("key"))
		fmt.Fprint(w, `{"candidates":[{"content":{"parts":[{"text":"report"}]}}]}`)
	}))
	defer srv.Close()

	c := &GeminiHTTPClient{APIKey: "k", Model: "g", BaseURL: srv.URL}
	out, err := c.GenerateText(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, "report", out)
}

func TestNewSelectsProvider(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name string
		s    Settings
		want any
	}{
		{"empty is mock", Settings{}, &MockClient{}},
		{"auto openai", Settings{OpenAIKey: "k"}, &OpenAIClient{}},
		{"explicit anthropic", Settings{Provider: "Anthropic", AnthropicKey: "k"}, &AnthropicClient{}},
		{"gemini over http", Settings{Provider: "gemini", GoogleKey: "k", GeminiTransport: "http"}, &GeminiHTTPClient{}},
		{"missing key falls back", Settings{Provider: "openai"}, &MockClient{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := New(ctx, tt.s)
			require.NoError(t, err)
			assert.IsType(t, tt.want, c)
		})
	}
}

func TestStreamOutlivesClientTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprintln(w, `data: {"choices":[{"delta":{"content":"slow "}}]}`)
		w.(http.Flusher).Flush()
		time.Sleep(300 * time.Millisecond)
		fmt.Fprintln(w, `data: {"choices":[{"delta":{"content":"stream"}}]}`)
		fmt.Fprintln(w, `data: [DONE]`)
	}))
	defer srv.Close()

	hc := &http.Client{Timeout: 100 * time.Millisecond}
	c := &OpenAIClient{APIKey: "k", Model: "m", BaseURL: srv.URL, HTTP: hc}
	out, err := collect(t, c, "hi")
	require.NoError(t, err)
	assert.Equal(t, "slow stream", out)
	assert.Equal(t, 100*time.Millisecond, hc.Timeout, "caller's client is left alone")
}

func TestStreamStillBoundsResponseHeaders(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
		fmt.Fprintln(w, `data: [DONE]`)
	}))
	defer srv.Close()

	c := &OpenAIClient{APIKey: "k", Model: "m", BaseURL: srv.URL, HTTP: &http.Client{Timeout: 100 * time.Millisecond}}
	_, err := collect(t, c, "hi")
	require.Error(t, err)
}

func TestStreamingClientIsReused(t *testing.T) {
	hc := &http.Client{Timeout: time.Second}
	sc := streamingClient(hc)
	assert.Zero(t, sc.Timeout)
	assert.Same(t, sc, streamingClient(hc))

	unbounded := &http.Client{}
	assert.Same(t, unbounded, streamingClient(unbounded))
}

func TestAnthropicMaxTokens(t *testing.T) {
	var got []int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			MaxTokens int `json:"max_tokens"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		got = append(got, body.MaxTokens)
		fmt.Fprint(w, `{"content":[{"type":"text","text":"report"}]}`)
	}))
	defer srv.Close()

	for _, c := range []*AnthropicClient{
		{APIKey: "k", Model: "m", URL: srv.URL},
		{APIKey: "k", Model: "m", URL: srv.URL, MaxTokens: 16000},
	} {
		out, err := c.GenerateText(context.Background(), "finalize")
		require.NoError(t, err)
		assert.Equal(t, "report", out)
	}
	assert.Equal(t, []int{defaultMaxTokens, 16000}, got)

	c, err := New(context.Background(), Settings{Provider: "anthropic", AnthropicKey: "k", MaxTokens: 8192})
	require.NoError(t, err)
	assert.Equal(t, 8192, c.(*AnthropicClient).MaxTokens)
}
