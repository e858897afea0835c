package note

import (
	"regexp"
	"strings"
)

var nextHeadingRe = regexp.MustCompile(`(?m)^##\s`)

func headingRe(heading string) *regexp.Regexp {
	return regexp.MustCompile(`(?m)^` + regexp.QuoteMeta(heading) + `[ \t]*$`)
}

// headingPosition returns the offset just past the heading line, or -1 when
// the heading is absent.
func headingPosition(content, heading string) int {
	loc := headingRe(heading).FindStringIndex(content)
	if loc == nil {
		return -1
	}
	end := loc[1]
	if end < len(content) && content[end] == '\n' {
		return end + 1
	}
	return end
}

// InsertAfterHeading inserts text under a heading, after any blank lines and
// bare "-" placeholder lines the daily template leaves behind, but before
// existing entries. A missing heading is appended at the end of the note.
func InsertAfterHeading(content, heading, text string) string {
	pos := headingPosition(content, heading)
	if pos < 0 {
		return content + "\n\n" + heading + "\n" + text
	}

	skip := 0
	for _, line := range strings.Split(content[pos:], "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || trimmed == "-" {
			skip++
			continue
		}
		break
	}

	at := pos
	for i := 0; i < skip; i++ {
		nl := strings.Index(content[at:], "\n")
		if nl < 0 {
			break
		}
		at += nl + 1
	}

	return content[:at] + text + content[at:]
}

// SectionBounds returns the interval of a section's body: from just past the
// heading line to the next level-two heading (or end of note).
func SectionBounds(content, heading string) (start, end int, ok bool) {
	start = headingPosition(content, heading)
	if start < 0 {
		return 0, 0, false
	}
	if loc := nextHeadingRe.FindStringIndex(content[start:]); loc != nil {
		return start, start + loc[0], true
	}
	return start, len(content), true
}

// ReplaceSection swaps a section's body for new content. Repeated calls with
// the same content converge: the note ends up byte-identical. A missing
// section is appended at the end.
func ReplaceSection(content, heading, body string) string {
	start, end, ok := SectionBounds(content, heading)
	if !ok {
		return strings.TrimRight(content, " \t\n") + "\n\n" + heading + "\n" + body + "\n"
	}
	return content[:start] + body + "\n\n" + strings.TrimLeft(content[end:], " \t\n")
}

// AppendUnderNotes puts takeaway text directly below the Notes heading. Notes
// sections missing entirely are created ahead of the Related section when one
// exists.
func AppendUnderNotes(content, notes string) string {
	if strings.Contains(content, "## Notes") {
		return strings.Replace(content, "## Notes\n", "## Notes\n"+notes+"\n", 1)
	}
	return strings.Replace(content, "## Related", "## Notes\n"+notes+"\n\n## Related", 1)
}
