package tasks

import (
	"context"
	"fmt"

	"github.com/bytedance/sonic"
	"google.golang.org/genai"
)

// ActionItem is a task mined from a daily note.
type ActionItem struct {
	Title   string `json:"title"`
	Context string `json:"context,omitempty"`
}

var actionSchema = &genai.Schema{
	Type: genai.TypeArray,
	Items: &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"title":   {Type: genai.TypeString, Description: "Clear, actionable task title in imperative form"},
			"context": {Type: genai.TypeString, Description: "Where in the note it was found, e.g. Brain Dump, Journal"},
		},
		Required: []string{"title"},
	},
}

// ExtractActions pulls actionable items out of a daily note: brain-dump
// entries, unfinished tasks, anything phrased as a follow-up. Errors are
// returned so callers can fall back to scanning for open checkboxes.
func (e *Extractor) ExtractActions(ctx context.Context, content string) ([]ActionItem, error) {
	if runes := []rune(content); len(runes) > 4000 {
		content = string(runes[:4000])
	}
	prompt := fmt.Sprintf(`Analyze this daily note and extract any action items or tasks that should be added to a task manager.

Look for:
- Items mentioned in Brain Dump that are actionable
- Tasks mentioned in Journal that weren't completed
- Any "TODO" or action-oriented items

Daily note content:
%s

If no action items are found, return an empty array.`, content)

	contents := []*genai.Content{
		genai.NewContentFromText(prompt, genai.RoleUser),
	}
	resp, err := e.client.Models.GenerateContent(ctx, e.model, contents, &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema:   actionSchema,
		Temperature:      genai.Ptr[float32](0),
		MaxOutputTokens:  500,
	})
	if err != nil {
		return nil, fmt.Errorf("genai extraction failed: %w", err)
	}
	return decodeActions(resp.Text())
}

func decodeActions(payload string) ([]ActionItem, error) {
	payload = stripFences(payload)

	var items []ActionItem
	if err := sonic.Unmarshal([]byte(payload), &items); err != nil {
		return nil, fmt.Errorf("failed to parse model response: %w", err)
	}
	out := items[:0]
	for _, item := range items {
		if item.Title == "" {
			continue
		}
		out = append(out, item)
	}
	return out, nil
}
