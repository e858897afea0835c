// Package maildrop creates task-manager tasks by emailing the Mail Drop
// address, with a durable spool for messages that could not be sent.
package maildrop

import (
	"strings"

	"github.com/knight-systems/productivity-service/domain"
)

// Compose builds the Mail Drop subject line.
//
// Mail Drop format:
//   - Task title
//   - ::Project (double colon prefix)
//   - @Context (at sign prefix)
//   - #Tag (hash prefix for additional tags)
//   - --YYYY-MM-DD (double dash for due date)
//   - //YYYY-MM-DD (double slash for defer date)
//   - ! (exclamation for flagged)
//
// Example: "Buy milk ::Grocery @errands --2024-01-15"
func Compose(task domain.TaskFields) string {
	parts := []string{task.Title}

	if task.Project != "" {
		parts = append(parts, "::"+task.Project)
	}
	if task.Context != "" {
		context := task.Context
		if !strings.HasPrefix(context, "@") {
			context = "@" + context
		}
		parts = append(parts, context)
	}
	for _, tag := range task.Tags {
		if tag != "" {
			parts = append(parts, "#"+tag)
		}
	}
	if task.DueDate != "" {
		parts = append(parts, "--"+task.DueDate)
	}
	if task.DeferDate != "" {
		parts = append(parts, "//"+task.DeferDate)
	}
	if task.Flagged {
		parts = append(parts, "!")
	}

	return strings.Join(parts, " ")
}
