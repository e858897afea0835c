package tasks

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"google.golang.org/genai"
)

// Extractor parses task input with a Gemini model constrained to a JSON
// schema. It is optional; callers fall back to Parse when it errors.
type Extractor struct {
	client *genai.Client
	model  string
}

func NewExtractor(ctx context.Context, apiKey, model string) (*Extractor, error) {
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
	return &Extractor{client: client, model: model}, nil
}

func (e *Extractor) Close() error {
	if e.client != nil {
		return e.client.Close()
	}
	return nil
}

var parseSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"title":      {Type: genai.TypeString, Description: "The core task action, clean imperative form without temporal or project references"},
		"note":       {Type: genai.TypeString, Description: "The original input cleaned up with proper capitalization and punctuation"},
		"project":    {Type: genai.TypeString, Description: "Project name if mentioned, empty if none"},
		"context":    {Type: genai.TypeString, Description: "Context like @home, @work, @errands, @phone with the @ prefix, empty if none"},
		"due_date":   {Type: genai.TypeString, Description: "Due date in YYYY-MM-DD format, empty if none"},
		"defer_date": {Type: genai.TypeString, Description: "Start/defer date in YYYY-MM-DD format, empty if none"},
		"tags":       {Type: genai.TypeArray, Items: &genai.Schema{Type: genai.TypeString}},
		"flagged":    {Type: genai.TypeBoolean},
		"confidence": {Type: genai.TypeNumber, Description: "Confidence in the extraction accuracy, 0.0-1.0"},
	},
	Required: []string{"title", "confidence"},
}

func buildPrompt(text string, now time.Time) string {
	today := now.Format("Monday, 2006-01-02")
	tomorrow := now.AddDate(0, 0, 1).Format("2006-01-02")
	return fmt.Sprintf(`Today is %s. Tomorrow is %s.

Extract task information from this voice input. Return JSON only, no explanation.

Voice input: %q

Convert relative dates to YYYY-MM-DD: "tomorrow" = %s, "next week" = 7 days from today, weekday names mean the coming one.`,
		today, tomorrow, text, tomorrow)
}

// Parse asks the model for the task fields. Any transport, model or decode
// error is returned so the caller can use the deterministic parser instead.
func (e *Extractor) Parse(ctx context.Context, text string, now time.Time) (ParseResult, error) {
	contents := []*genai.Content{
		genai.NewContentFromText(buildPrompt(text, now), genai.RoleUser),
	}
	resp, err := e.client.Models.GenerateContent(ctx, e.model, contents, &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema:   parseSchema,
		Temperature:      genai.Ptr[float32](0),
		MaxOutputTokens:  500,
	})
	if err != nil {
		return ParseResult{}, fmt.Errorf("genai parse failed: %w", err)
	}
	return decodeModelParse(resp.Text(), text)
}

// decodeModelParse maps the model JSON onto a ParseResult, tolerating
// markdown code fences some models wrap responses in.
func decodeModelParse(payload, raw string) (ParseResult, error) {
	payload = stripFences(payload)

	var out struct {
		Title      string   `json:"title"`
		Note       string   `json:"note"`
		Project    string   `json:"project"`
		Context    string   `json:"context"`
		DueDate    string   `json:"due_date"`
		DeferDate  string   `json:"defer_date"`
		Tags       []string `json:"tags"`
		Flagged    bool     `json:"flagged"`
		Confidence float64  `json:"confidence"`
	}
	if err := sonic.Unmarshal([]byte(payload), &out); err != nil {
		return ParseResult{}, fmt.Errorf("failed to parse model response: %w", err)
	}

	res := ParseResult{
		Title:      out.Title,
		Note:       out.Note,
		Project:    out.Project,
		Context:    out.Context,
		DueDate:    out.DueDate,
		DeferDate:  out.DeferDate,
		Tags:       out.Tags,
		Flagged:    out.Flagged,
		Confidence: out.Confidence,
		RawInput:   raw,
	}
	if res.Title == "" {
		res.Title = raw
	}
	if res.Tags == nil {
		res.Tags = []string{}
	}
	if res.Confidence <= 0 {
		res.Confidence = 0.5
	}
	if res.Confidence > 1 {
		res.Confidence = 1
	}
	return res, nil
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
