package tools

import (
	"context"
	"regexp"
	"strings"

	"golang.org/x/sync/errgroup"
)

var urlPattern = regexp.MustCompile(`https?://[^\s<>"'()\[\]]+`)

// FindURLs returns the distinct http(s) URLs in text, in order of appearance.
func FindURLs(text string) []string {
	seen := map[string]bool{}
	var out []string
	for _, u := range urlPattern.FindAllString(text, -1) {
		u = strings.TrimRight(u, ".,;:!?")
		if !seen[u] {
			seen[u] = true
			out = append(out, u)
		}
	}
	return out
}

// Reference is the text of one URL cited by a task. Err is set instead of
// Text when the fetch or conversion failed.
type Reference struct {
	URL  string
	Kind string
	Text string
	Err  string
}

// Collector gathers reference material for research tasks.
type Collector struct {
	Fetcher     *Fetcher
	MaxRefs     int
	MaxParallel int
	MaxChars    int
	MaxPages    int
}

// Collect fetches the URLs cited in text with bounded concurrency. A failing
// URL never fails the batch; it is reported on its Reference.
func (c *Collector) Collect(ctx context.Context, text string) []Reference {
	urls := FindURLs(text)
	if c.MaxRefs > 0 && len(urls) > c.MaxRefs {
		urls = urls[:c.MaxRefs]
	}
	if len(urls) == 0 {
		return nil
	}
	refs := make([]Reference, len(urls))
	g, gctx := errgroup.WithContext(ctx)
	if c.MaxParallel > 0 {
		g.SetLimit(c.MaxParallel)
	}
	for i, u := range urls {
		g.Go(func() error {
			refs[i] = c.one(gctx, u)
			return nil
		})
	}
	_ = g.Wait()
	return refs
}

func (c *Collector) one(ctx context.Context, url string) Reference {
	ref := Reference{URL: url}
	doc, err := c.Fetcher.Get(ctx, url)
	if err != nil {
		ref.Err = err.Error()
		return ref
	}
	text, kind, err := ExtractText(doc.Body, url, doc.ContentType, c.MaxPages)
	if err != nil {
		ref.Err = err.Error()
		return ref
	}
	if c.MaxChars > 0 {
		if t, cut := Truncate(text, c.MaxChars); cut {
			text = t + "\n[truncated]"
		}
	}
	ref.Kind, ref.Text = kind, text
	return ref
}
