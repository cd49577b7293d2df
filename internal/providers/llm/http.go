package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
)

const defaultTimeout = 45 * time.Second

// defaultClient serves providers constructed without an HTTP client.
var defaultClient = &http.Client{Timeout: defaultTimeout}

var streamClients sync.Map // *http.Client -> *http.Client

func clientTimeout(ms int) time.Duration {
	if ms > 0 {
		return time.Duration(ms) * time.Millisecond
	}
	return defaultTimeout
}

// postJSON sends one request and decodes a 2xx body into out. There is no
// retry here: a failed call surfaces to the orchestrator as-is.
func postJSON(ctx context.Context, hc *http.Client, provider, url string, headers map[string]string, body, out any) error {
	res, err := send(ctx, hc, provider, url, headers, body)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	return json.NewDecoder(res.Body).Decode(out)
}

// send posts body as JSON and returns the response when the status is 2xx.
// The caller owns res.Body.
func send(ctx context.Context, hc *http.Client, provider, url string, headers map[string]string, body any) (*http.Response, error) {
	b, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := hc.Do(req)
	if err != nil {
		return nil, err
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		defer res.Body.Close()
		var eresp map[string]any
		_ = json.NewDecoder(res.Body).Decode(&eresp)
		return nil, fmt.Errorf("%s status %d: %v", provider, res.StatusCode, eresp)
	}
	return res, nil
}

// streamingClient derives the client for streamed replies from hc. Its total
// timeout becomes a response header timeout; the body is bounded by ctx only.
func streamingClient(hc *http.Client) *http.Client {
	if hc.Timeout == 0 {
		return hc
	}
	if sc, ok := streamClients.Load(hc); ok {
		return sc.(*http.Client)
	}
	sc := *hc
	sc.Timeout = 0
	base := hc.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	if t, ok := base.(*http.Transport); ok {
		t = t.Clone()
		t.ResponseHeaderTimeout = hc.Timeout
		sc.Transport = t
	}
	v, _ := streamClients.LoadOrStore(hc, &sc)
	return v.(*http.Client)
}

// readSSE calls onData with the payload of every "data:" line until the
// stream ends or a "[DONE]" sentinel arrives.
func readSSE(r io.Reader, onData func(data string) error) error {
	sc := newLineReader(r)
	for sc.Scan() {
		line := sc.Text()
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "[DONE]" {
			return nil
		}
		if err := onData(data); err != nil {
			return err
		}
	}
	return sc.Err()
}

// newLineReader returns a scanner for SSE lines.
func newLineReader(r io.Reader) *bufio.Scanner {
	sc := bufio.NewScanner(r)
	buf := make([]byte, 0, 64*1024)
	sc.Buffer(buf, 1024*1024)
	return sc
}
