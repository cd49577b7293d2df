package tools

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTMLToText(t *testing.T) {
	out, err := HTMLToText(`<html><head><style>p{}</style><script>var x</script></head>
<body><h1>Title</h1><p>First   line</p><div>Second<br>Third</div></body></html>`)
	require.NoError(t, err)
	assert.Equal(t, "Title\nFirst line\nSecond\nThird", out)
}

func TestFindURLs(t *testing.T) {
	got := FindURLs("See https://a.example/x, and (http://b.example/y). Again https://a.example/x.")
	assert.Equal(t, []string{"https://a.example/x", "http://b.example/y"}, got)
	assert.Empty(t, FindURLs("no links here"))
}

func TestExtractText(t *testing.T) {
	text, kind, err := ExtractText([]byte("plain notes"), "notes.md", "", 0)
	require.NoError(t, err)
	assert.Equal(t, "text", kind)
	assert.Equal(t, "plain notes", text)

	text, kind, err = ExtractText([]byte("<!DOCTYPE html><html><body>hi</body></html>"), "", "", 0)
	require.NoError(t, err)
	assert.Equal(t, "html", kind)
	assert.Equal(t, "hi", text)

	_, kind, err = ExtractText([]byte("%PDF-1.4 garbage"), "", "application/pdf", 0)
	assert.Equal(t, "pdf", kind)
	assert.Error(t, err)

	_, _, err = ExtractText([]byte{0x89, 'P', 'N', 'G'}, "img.png", "image/png", 0)
	assert.True(t, errors.Is(err, ErrUnsupported))
}

func TestFetcherTruncates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, strings.Repeat("x", 100))
	}))
	defer srv.Close()

	f := NewFetcher(time.Second, 10)
	doc, err := f.Get(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Len(t, doc.Body, 10)
	assert.True(t, doc.Truncated)
}

func TestCollectorReportsPerURLFailures(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/page", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, "<html><body><p>Market is growing</p></body></html>")
	})
	mux.HandleFunc("/missing", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := &Collector{Fetcher: NewFetcher(time.Second, 1<<16), MaxRefs: 5, MaxParallel: 2}
	refs := c.Collect(context.Background(), fmt.Sprintf("Read %s/page then %s/missing", srv.URL, srv.URL))
	require.Len(t, refs, 2)

	assert.Equal(t, "html", refs[0].Kind)
	assert.Equal(t, "Market is growing", refs[0].Text)
	assert.Empty(t, refs[0].Err)

	assert.Contains(t, refs[1].Err, "status 404")
	assert.Empty(t, refs[1].Text)
}

func TestCollectorCapsReferences(t *testing.T) {
	c := &Collector{Fetcher: NewFetcher(time.Second, 1), MaxRefs: 1}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	refs := c.Collect(ctx, "http://a.invalid/1 http://a.invalid/2")
	require.Len(t, refs, 1)
	assert.NotEmpty(t, refs[0].Err)
}

func TestTruncateKeepsRunesWhole(t *testing.T) {
	for _, tc := range []struct {
		in   string
		n    int
		want string
		cut  bool
	}{
		{"short", 10, "short", false},
		{"abcdef", 3, "abc", true},
		{"héllo", 2, "h", true},
		{"日本語", 4, "日", true},
		{"日本語", 6, "日本", true},
		{"日本語", 0, "", true},
	} {
		got, cut := Truncate(tc.in, tc.n)
		assert.Equal(t, tc.want, got, "%q[:%d]", tc.in, tc.n)
		assert.Equal(t, tc.cut, cut)
		assert.True(t, utf8.ValidString(got))
	}
}

func TestCollectorTruncatesOnRuneBoundary(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		fmt.Fprint(w, "ééééé")
	}))
	defer srv.Close()

	c := &Collector{Fetcher: NewFetcher(time.Second, 1<<16), MaxChars: 3}
	refs := c.Collect(context.Background(), srv.URL+"/notes")
	require.Len(t, refs, 1)
	require.Empty(t, refs[0].Err)
	assert.Equal(t, "é\n[truncated]", refs[0].Text)
	assert.True(t, utf8.ValidString(refs[0].Text))
}
