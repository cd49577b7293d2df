package tools

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Document is a fetched HTTP body, capped at the fetcher's byte limit.
type Document struct {
	URL         string
	Status      int
	ContentType string
	Body        []byte
	Truncated   bool
}

type Fetcher struct {
	Client   *http.Client
	MaxBytes int64
}

func NewFetcher(timeout time.Duration, maxBytes int64) *Fetcher {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if maxBytes <= 0 {
		maxBytes = 2 << 20
	}
	return &Fetcher{Client: &http.Client{Timeout: timeout}, MaxBytes: maxBytes}
}

func (f *Fetcher) Get(ctx context.Context, url string) (*Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := f.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("GET %s: status %d", url, resp.StatusCode)
	}
	// read one byte past the cap to detect truncation
	lr := io.LimitedReader{R: resp.Body, N: f.MaxBytes + 1}
	b, err := io.ReadAll(&lr)
	if err != nil {
		return nil, err
	}
	doc := &Document{URL: url, Status: resp.StatusCode, ContentType: resp.Header.Get("Content-Type"), Body: b}
	if int64(len(b)) > f.MaxBytes {
		doc.Body = b[:f.MaxBytes]
		doc.Truncated = true
	}
	return doc, nil
}
