package fetch

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

const samplePage = `<!DOCTYPE html>
<html>
<head>
<title>  Understanding Go Contexts  </title>
<meta name="description" content="A deep dive into context.Context &amp; cancellation.">
<meta property="og:title" content="Understanding Go Contexts (OG)">
<meta property="og:description" content="Everything about contexts, deadlines and cancellation in Go programs.">
<meta property="og:image" content="https://example.com/cover.png">
</head>
<body>
<nav>Home | About</nav>
<header>Site header</header>
<main>
<h1>Understanding Go Contexts</h1>
<p>Contexts carry deadlines across API boundaries.</p>
<script>console.log("ignored")</script>
</main>
<footer>Copyright</footer>
</body>
</html>`

func newTestClient(t *testing.T, handler http.Handler) (*Client, string) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient().WithHTTPClient(srv.Client()), srv.URL
}

func TestMetadata(t *testing.T) {
	c, url := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ua := r.Header.Get("User-Agent"); !strings.Contains(ua, "Mozilla") {
			t.Errorf("expected browser user agent, got %q", ua)
		}
		fmt.Fprint(w, samplePage)
	}))

	meta, err := c.Metadata(context.Background(), url)
	if err != nil {
		t.Fatalf("Metadata returned error: %v", err)
	}
	if meta.Title != "Understanding Go Contexts" {
		t.Errorf("unexpected title: %q", meta.Title)
	}
	if meta.Description != "A deep dive into context.Context & cancellation." {
		t.Errorf("unexpected description: %q", meta.Description)
	}
	if meta.OGImage != "https://example.com/cover.png" {
		t.Errorf("unexpected og:image: %q", meta.OGImage)
	}
	if meta.BestTitle() != "Understanding Go Contexts (OG)" {
		t.Errorf("BestTitle should prefer og:title, got %q", meta.BestTitle())
	}
	if !meta.IsQuality() {
		t.Error("expected quality metadata")
	}
}

func TestMetadataFollowsRedirects(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/start", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/final", http.StatusFound)
	})
	mux.HandleFunc("/final", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><head><title>Final</title></head><body></body></html>`)
	})
	c, url := newTestClient(t, mux)

	meta, err := c.Metadata(context.Background(), url+"/start")
	if err != nil {
		t.Fatalf("Metadata returned error: %v", err)
	}
	if !strings.HasSuffix(meta.URL, "/final") {
		t.Errorf("expected final URL after redirect, got %q", meta.URL)
	}
}

func TestMetadataErrorStatus(t *testing.T) {
	c, url := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	if _, err := c.Metadata(context.Background(), url); err == nil {
		t.Fatal("expected error for 403 response")
	}
}

func TestContentStripsChrome(t *testing.T) {
	c, url := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, samplePage)
	}))

	content, err := c.Content(context.Background(), url)
	if err != nil {
		t.Fatalf("Content returned error: %v", err)
	}
	if content.Title != "Understanding Go Contexts" {
		t.Errorf("unexpected title: %q", content.Title)
	}
	if !strings.Contains(content.Text, "Contexts carry deadlines") {
		t.Errorf("expected main text, got %q", content.Text)
	}
	for _, chrome := range []string{"Home | About", "Site header", "Copyright", "console.log"} {
		if strings.Contains(content.Text, chrome) {
			t.Errorf("chrome %q leaked into content text", chrome)
		}
	}
}

func TestContentTruncates(t *testing.T) {
	c, url := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `<html><body><main>%s</main></body></html>`, strings.Repeat("word ", 5000))
	}))

	content, err := c.Content(context.Background(), url)
	if err != nil {
		t.Fatalf("Content returned error: %v", err)
	}
	if len([]rune(content.Text)) > maxContentRunes+3 {
		t.Errorf("content not truncated: %d runes", len([]rune(content.Text)))
	}
	if !strings.HasSuffix(content.Text, "...") {
		t.Error("truncated content should end with ellipsis")
	}
}

func TestIsQuality(t *testing.T) {
	cases := map[string]struct {
		meta Metadata
		want bool
	}{
		"good":              {Metadata{Title: "A reasonably long title", Description: "A description with enough words in it."}, true},
		"short title":       {Metadata{Title: "Short", Description: "A description with enough words in it."}, false},
		"short description": {Metadata{Title: "A reasonably long title", Description: "tiny"}, false},
		"og fills gaps":     {Metadata{Title: "x", OGTitle: "A reasonably long title", OGDescription: "A description with enough words in it."}, true},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			if got := tc.meta.IsQuality(); got != tc.want {
				t.Errorf("IsQuality() = %v, want %v", got, tc.want)
			}
		})
	}
}
