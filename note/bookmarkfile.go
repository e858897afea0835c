package note

import "strings"

// BookmarkFile describes a bookmark note to be written.
type BookmarkFile struct {
	Title    string
	URL      string
	Tags     []string
	Category string
	Date     string
	Summary  string
	Notes    string
	OGImage  string
}

// Render produces the bookmark markdown. The frontmatter tag list always
// leads with "bookmark" and the category, deduplicated preserving order.
func (b BookmarkFile) Render() string {
	allTags := []string{"bookmark"}
	if b.Category != "" {
		allTags = append(allTags, b.Category)
	}
	allTags = append(allTags, b.Tags...)
	allTags = dedupe(allTags)

	safeTitle := strings.ReplaceAll(b.Title, `"`, "'")

	lines := []string{
		"---",
		`title: "` + safeTitle + `"`,
		"url: " + b.URL,
		"tags: [" + strings.Join(allTags, ", ") + "]",
		"created: " + b.Date,
		"---",
		"",
		"# " + b.Title,
		"",
		"## Source",
		b.URL,
		"",
	}

	if b.OGImage != "" {
		lines = append(lines,
			"## Preview",
			"![preview]("+b.OGImage+")",
			"",
		)
	}

	summary := b.Summary
	if summary == "" {
		summary = "*No summary available*"
	}
	lines = append(lines,
		"## Summary",
		summary,
		"",
		"## Notes",
		b.Notes,
		"",
		"## Related",
		"",
	)

	return strings.Join(lines, "\n")
}

func dedupe(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := values[:0]
	for _, v := range values {
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
