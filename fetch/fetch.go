// Package fetch retrieves webpages and extracts titles, meta descriptions,
// Open Graph tags and readable body text.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"golang.org/x/net/html"
)

const defaultTimeout = 10 * time.Second

// Some sites refuse requests without a browser user agent.
const userAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) " +
	"AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

const maxBodyBytes = 2 << 20

// Metadata holds the tags extracted from a page head.
type Metadata struct {
	URL           string
	Title         string
	Description   string
	OGTitle       string
	OGDescription string
	OGImage       string
}

// BestTitle prefers the Open Graph title over the document title.
func (m *Metadata) BestTitle() string {
	if m.OGTitle != "" {
		return m.OGTitle
	}
	return m.Title
}

// BestDescription prefers the Open Graph description over the meta description.
func (m *Metadata) BestDescription() string {
	if m.OGDescription != "" {
		return m.OGDescription
	}
	return m.Description
}

// IsQuality reports whether the metadata alone is good enough to describe the
// page without fetching the full content.
func (m *Metadata) IsQuality() bool {
	return len(m.BestTitle()) >= 10 && len(m.BestDescription()) >= 20
}

// Content is the readable text of a page, for enrichment prompts.
type Content struct {
	URL   string
	Title string
	Text  string
}

// Client fetches pages with a browser user agent and bounded timeouts.
type Client struct {
	http *http.Client
}

func NewClient() *Client {
	return &Client{http: &http.Client{Timeout: defaultTimeout}}
}

// WithHTTPClient overrides the underlying HTTP client, for tests.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.http = hc
	return c
}

func (c *Client) get(ctx context.Context, url string) (*html.Node, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", err
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, "", fmt.Errorf("fetch %s: unexpected status %s", url, resp.Status)
	}

	doc, err := html.Parse(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, "", fmt.Errorf("parse %s: %w", url, err)
	}
	// Final URL after redirects.
	return doc, resp.Request.URL.String(), nil
}

// Metadata fetches a page and extracts title, description and Open Graph tags.
func (c *Client) Metadata(ctx context.Context, url string) (*Metadata, error) {
	doc, finalURL, err := c.get(ctx, url)
	if err != nil {
		return nil, err
	}
	return &Metadata{
		URL:           finalURL,
		Title:         elementText(doc, "title"),
		Description:   metaContent(doc, "name", "description"),
		OGTitle:       metaContent(doc, "property", "og:title"),
		OGDescription: metaContent(doc, "property", "og:description"),
		OGImage:       metaContent(doc, "property", "og:image"),
	}, nil
}

var skipElements = map[string]bool{
	"script":   true,
	"style":    true,
	"nav":      true,
	"header":   true,
	"footer":   true,
	"aside":    true,
	"noscript": true,
}

const maxContentRunes = 10000

// Content fetches a page and extracts its main readable text, with chrome
// elements stripped and length capped for prompt use.
func (c *Client) Content(ctx context.Context, url string) (*Content, error) {
	doc, finalURL, err := c.get(ctx, url)
	if err != nil {
		return nil, err
	}

	root := mainContent(doc)
	if root == nil {
		root = doc
	}
	var segments []string
	collectText(root, &segments)
	text := cleanText(strings.Join(segments, "\n"))
	if runes := []rune(text); len(runes) > maxContentRunes {
		text = string(runes[:maxContentRunes]) + "..."
	}

	return &Content{
		URL:   finalURL,
		Title: elementText(doc, "title"),
		Text:  text,
	}, nil
}

// mainContent picks the most specific content container the page offers.
func mainContent(doc *html.Node) *html.Node {
	matchers := []func(*html.Node) bool{
		isElement("main"),
		isElement("article"),
		hasAttr("role", "main"),
		hasAttr("id", "content"),
		hasClass("content"),
		isElement("body"),
	}
	for _, match := range matchers {
		if n := findNode(doc, match); n != nil {
			return n
		}
	}
	return nil
}

func isElement(name string) func(*html.Node) bool {
	return func(n *html.Node) bool {
		return n.Type == html.ElementNode && n.Data == name
	}
}

func hasAttr(key, value string) func(*html.Node) bool {
	return func(n *html.Node) bool {
		return n.Type == html.ElementNode && attr(n, key) == value
	}
}

func hasClass(class string) func(*html.Node) bool {
	return func(n *html.Node) bool {
		if n.Type != html.ElementNode {
			return false
		}
		for _, c := range strings.Fields(attr(n, "class")) {
			if c == class {
				return true
			}
		}
		return false
	}
}

func findNode(n *html.Node, match func(*html.Node) bool) *html.Node {
	if match(n) {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findNode(c, match); found != nil {
			return found
		}
	}
	return nil
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func elementText(doc *html.Node, name string) string {
	n := findNode(doc, isElement(name))
	if n == nil {
		return ""
	}
	var segments []string
	collectText(n, &segments)
	return strings.TrimSpace(strings.Join(segments, " "))
}

func metaContent(doc *html.Node, attrKey, attrValue string) string {
	n := findNode(doc, func(n *html.Node) bool {
		return n.Type == html.ElementNode && n.Data == "meta" && attr(n, attrKey) == attrValue
	})
	if n == nil {
		return ""
	}
	return strings.TrimSpace(attr(n, "content"))
}

func collectText(n *html.Node, out *[]string) {
	if n.Type == html.ElementNode && skipElements[n.Data] {
		return
	}
	if n.Type == html.TextNode {
		if s := strings.TrimSpace(n.Data); s != "" {
			*out = append(*out, s)
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectText(c, out)
	}
}

var (
	multiNewlineRe = regexp.MustCompile(`\n{3,}`)
	multiSpaceRe   = regexp.MustCompile(` {2,}`)
)

func cleanText(text string) string {
	text = multiNewlineRe.ReplaceAllString(text, "\n\n")
	text = multiSpaceRe.ReplaceAllString(text, " ")
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(line)
	}
	return strings.Join(lines, "\n")
}
