package bookmarks

import (
	"context"
	"fmt"
	"strings"

	"github.com/bytedance/sonic"
	"google.golang.org/genai"
)

// Enrichment is the model's read on a page.
type Enrichment struct {
	Summary  string   `json:"summary"`
	Tags     []string `json:"tags"`
	Category string   `json:"category"`
}

// Enricher summarizes and tags pages with a Gemini model. It is optional;
// the service degrades to page metadata and host heuristics without it.
type Enricher struct {
	client *genai.Client
	model  string
}

func NewEnricher(ctx context.Context, apiKey, model string) (*Enricher, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("genai API key is required")
	}
	if model == "" {
		model = "gemini-2.0-flash"
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}
	return &Enricher{client: client, model: model}, nil
}

func (e *Enricher) Close() error {
	if e.client != nil {
		return e.client.Close()
	}
	return nil
}

var enrichSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"summary":  {Type: genai.TypeString, Description: "Concise informative summary of the content, 2-3 sentences max"},
		"tags":     {Type: genai.TypeArray, Items: &genai.Schema{Type: genai.TypeString}, Description: "3-5 relevant tags in kebab-case, e.g. machine-learning, web-dev"},
		"category": {Type: genai.TypeString, Description: "One of: tech, reference, article, tool, tutorial, news, personal, business, design, other"},
	},
	Required: []string{"tags", "category"},
}

// Enrich summarizes and tags full page content.
func (e *Enricher) Enrich(ctx context.Context, title, content string) (*Enrichment, error) {
	if runes := []rune(content); len(runes) > 6000 {
		content = string(runes[:6000])
	}
	prompt := fmt.Sprintf(`Analyze this webpage and return JSON with a summary, tags and a category.

Title: %s

Content:
%s`, title, content)
	return e.generate(ctx, prompt, 500)
}

// Tag generates tags and a category from title and description alone, for
// saves that skip the full page fetch.
func (e *Enricher) Tag(ctx context.Context, content string) (*Enrichment, error) {
	if runes := []rune(content); len(runes) > 1000 {
		content = string(runes[:1000])
	}
	prompt := fmt.Sprintf(`Generate tags and a category for this webpage. Leave the summary empty.

Content:
%s`, content)
	return e.generate(ctx, prompt, 200)
}

func (e *Enricher) generate(ctx context.Context, prompt string, maxTokens int32) (*Enrichment, error) {
	contents := []*genai.Content{
		genai.NewContentFromText(prompt, genai.RoleUser),
	}
	resp, err := e.client.Models.GenerateContent(ctx, e.model, contents, &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema:   enrichSchema,
		Temperature:      genai.Ptr[float32](0),
		MaxOutputTokens:  maxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("genai enrichment failed: %w", err)
	}
	return decodeEnrichment(resp.Text())
}

// decodeEnrichment maps the model JSON onto an Enrichment, tolerating
// markdown code fences and clamping the category to the known set.
func decodeEnrichment(payload string) (*Enrichment, error) {
	payload = stripFences(payload)

	var out Enrichment
	if err := sonic.Unmarshal([]byte(payload), &out); err != nil {
		return nil, fmt.Errorf("failed to parse model response: %w", err)
	}
	if out.Tags == nil {
		out.Tags = []string{}
	}
	if !validCategory(out.Category) {
		out.Category = "other"
	}
	return &out, nil
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if idx := strings.Index(s, "```json"); idx >= 0 {
		s = s[idx+len("```json"):]
		if end := strings.Index(s, "```"); end >= 0 {
			s = s[:end]
		}
	} else if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```")
		if end := strings.Index(s, "```"); end >= 0 {
			s = s[:end]
		}
	}
	return strings.TrimSpace(s)
}
