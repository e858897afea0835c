package note

import (
	"strings"

	"gopkg.in/yaml.v3"
)

// Frontmatter holds the fields this service reads back out of vault notes.
// Unknown keys are ignored on parse; the body is returned verbatim.
type Frontmatter struct {
	Title         string   `yaml:"title"`
	URL           string   `yaml:"url"`
	Tags          []string `yaml:"tags"`
	Category      string   `yaml:"category"`
	Created       string   `yaml:"created"`
	ContentType   string   `yaml:"content_type"`
	EstimatedTime int      `yaml:"estimated_time"`
	QueueStatus   string   `yaml:"queue_status"`
	Priority      string   `yaml:"priority"`
	AddedToQueue  string   `yaml:"added_to_queue"`
	LastTouched   string   `yaml:"last_touched"`
	ConsumedAt    string   `yaml:"consumed_at"`
}

// ParseFrontmatter splits a note into its YAML frontmatter and body. Notes
// without a frontmatter block return a zero Frontmatter and the full content
// as body.
func ParseFrontmatter(content string) (Frontmatter, string, error) {
	var fm Frontmatter
	if !strings.HasPrefix(content, "---\n") {
		return fm, content, nil
	}
	rest := content[len("---\n"):]
	idx := strings.Index(rest, "\n---")
	if idx < 0 {
		return fm, content, nil
	}
	block := rest[:idx+1]
	body := rest[idx+len("\n---"):]
	body = strings.TrimPrefix(body, "\n")
	if err := yaml.Unmarshal([]byte(block), &fm); err != nil {
		return Frontmatter{}, content, err
	}
	return fm, body, nil
}

// UpdateFrontmatterField rewrites a single field between the frontmatter
// markers, leaving every other byte of the note untouched. Fields absent from
// the frontmatter are left absent.
func UpdateFrontmatterField(content, field, value string) string {
	lines := strings.Split(content, "\n")
	inFrontmatter := false
	prefix := field + ":"
	for i, line := range lines {
		if strings.TrimSpace(line) == "---" {
			inFrontmatter = !inFrontmatter
			continue
		}
		if inFrontmatter && strings.HasPrefix(line, prefix) {
			lines[i] = field + ": " + value
		}
	}
	return strings.Join(lines, "\n")
}
