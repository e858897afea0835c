package routines

import (
	"fmt"
	"strings"

	"github.com/knight-systems/productivity-service/note"
	"github.com/knight-systems/productivity-service/tasks"
)

// BriefTask is one flagged task pulled from the task manager for the
// morning brief.
type BriefTask struct {
	Title    string `json:"title"`
	Project  string `json:"project,omitempty"`
	Priority string `json:"priority,omitempty"`
	Size     string `json:"size,omitempty"`
}

var priorityLabels = map[string]string{
	"A": "🔴 Priority A",
	"B": "🟡 Priority B",
	"C": "🟢 Priority C",
	"":  "⚪ No Priority",
}

// formatTasks renders the priority-grouped checklist for the Tasks section.
func formatTasks(briefTasks []BriefTask) string {
	if len(briefTasks) == 0 {
		return "- No flagged tasks for today"
	}

	groups := map[string][]BriefTask{}
	for _, t := range briefTasks {
		p := t.Priority
		if _, known := priorityLabels[p]; !known {
			p = ""
		}
		groups[p] = append(groups[p], t)
	}

	var lines []string
	for _, p := range []string{"A", "B", "C", ""} {
		group := groups[p]
		if len(group) == 0 {
			continue
		}
		if len(lines) > 0 {
			lines = append(lines, "")
		}
		lines = append(lines, "**"+priorityLabels[p]+"**")
		for _, t := range group {
			line := "- [ ] " + t.Title
			if t.Size != "" {
				line += " `" + t.Size + "`"
			}
			if t.Project != "" {
				line += " [" + t.Project + "]"
			}
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n")
}

// inboxSummary renders the inbox status line that follows the checklist.
func inboxSummary(count int, themes []string) string {
	if count == 0 {
		return "✅ Inbox is clear!"
	}
	lines := []string{fmt.Sprintf("⚠️ **Inbox: %d items need processing**", count)}
	if len(themes) > 0 {
		shown := themes
		if len(shown) > 3 {
			shown = shown[:3]
		}
		lines = append(lines, "Themes: "+strings.Join(shown, ", "))
	}
	if count > 3 {
		lines = append(lines, fmt.Sprintf("*...and %d more*", count-3))
	}
	return strings.Join(lines, "\n")
}

// briefSummary is the response-only digest of the morning brief.
func briefSummary(briefTasks []BriefTask, inboxCount int) string {
	if len(briefTasks) == 0 && inboxCount == 0 {
		return "Good morning! No flagged tasks today. Use this time for deep work or planning."
	}
	msg := fmt.Sprintf("You have %d flagged tasks today.", len(briefTasks))
	for _, t := range briefTasks {
		if t.Priority == "A" {
			msg += " Start with Priority A!"
			break
		}
	}
	if inboxCount > 0 {
		msg += fmt.Sprintf(" %d inbox items need processing.", inboxCount)
	}
	return msg
}

// openActionItems scans the Brain Dump section for unchecked checkboxes.
// The fallback when no model extractor is configured.
func openActionItems(content string) []tasks.ActionItem {
	heading, err := note.ResolveHeading("Brain Dump")
	if err != nil {
		return []tasks.ActionItem{}
	}
	start, end, ok := note.SectionBounds(content, heading)
	if !ok {
		return []tasks.ActionItem{}
	}

	items := []tasks.ActionItem{}
	for _, line := range strings.Split(content[start:end], "\n") {
		trimmed := strings.TrimSpace(line)
		if !strings.HasPrefix(trimmed, "- [ ]") {
			continue
		}
		title := strings.TrimSpace(strings.TrimPrefix(trimmed, "- [ ]"))
		if title == "" {
			continue
		}
		items = append(items, tasks.ActionItem{Title: title, Context: "Brain Dump"})
	}
	return items
}

// reflectionText builds the evening reflection line from what the note
// shows was done and what got captured for tomorrow.
func reflectionText(content string, sent int) string {
	done := strings.Count(content, "- [x]") + strings.Count(content, "- [X]")
	switch {
	case done > 0 && sent > 0:
		return fmt.Sprintf("Closed out %d items and captured %d follow-ups for tomorrow.", done, sent)
	case done > 0:
		return fmt.Sprintf("Closed out %d items today.", done)
	case sent > 0:
		return fmt.Sprintf("Captured %d follow-ups for tomorrow.", sent)
	default:
		return "Day complete. Great job on whatever you accomplished!"
	}
}
