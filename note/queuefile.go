package note

import (
	"regexp"
	"strconv"
	"strings"
)

// QueueFolder is the vault folder holding unconsumed review-queue items.
const QueueFolder = "ReadQueue"

// BookmarkFolder is the vault folder holding consumed content.
const BookmarkFolder = "Bookmarks"

var (
	slugStripRe    = regexp.MustCompile(`[^\p{L}\p{N}_\s-]`)
	slugSpaceRe    = regexp.MustCompile(`[\s_]+`)
	slugCollapseRe = regexp.MustCompile(`-+`)
)

// Slug derives a file-safe identifier fragment from a title: lowercased,
// punctuation stripped, whitespace collapsed to dashes, capped at 50 runes.
func Slug(title string) string {
	s := slugStripRe.ReplaceAllString(strings.ToLower(title), "")
	s = slugSpaceRe.ReplaceAllString(s, "-")
	s = slugCollapseRe.ReplaceAllString(s, "-")
	s = strings.Trim(s, "-")
	if runes := []rune(s); len(runes) > 50 {
		s = string(runes[:50])
	}
	return s
}

// FileID builds a note identifier from its date and slugified title. Queue
// items and bookmarks share the scheme.
func FileID(title, dateStr string) string {
	return dateStr + "-" + Slug(title)
}

// QueueFile describes a review-queue note to be written.
type QueueFile struct {
	Title         string
	URL           string
	Date          string
	ContentType   string
	EstimatedTime int
	Priority      string
	Notes         string
	Description   string
	OGImage       string
}

// Render produces the queue item markdown: tracking frontmatter followed by
// Source/Preview/Summary/Notes sections.
func (q QueueFile) Render() string {
	safeTitle := strings.ReplaceAll(q.Title, `"`, "'")

	lines := []string{
		"---",
		`title: "` + safeTitle + `"`,
		"url: " + q.URL,
		"created: " + q.Date,
		"content_type: " + q.ContentType,
		"estimated_time: " + strconv.Itoa(q.EstimatedTime),
		"queue_status: unread",
		"priority: " + q.Priority,
		"added_to_queue: " + q.Date,
		"last_touched: " + q.Date,
		"consumed_at:",
		"---",
		"",
		"# " + q.Title,
		"",
		"## Source",
		q.URL,
		"",
	}

	if q.OGImage != "" {
		lines = append(lines,
			"## Preview",
			"![preview]("+q.OGImage+")",
			"",
		)
	}

	summary := q.Description
	if summary == "" {
		summary = "*No description available*"
	}
	lines = append(lines,
		"## Summary",
		summary,
		"",
		"## Notes",
		q.Notes,
		"",
	)

	return strings.Join(lines, "\n")
}
