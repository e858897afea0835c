package note

import (
	"fmt"
	"sort"
	"time"
)

// Daily notes live under the journal tree, one file per day.
const dailyPathFormat = "20 - Journal/21 - Daily/%s/%s %s.md"

// headingMap resolves display names to the vault's markdown headings. The
// headings carry the emoji and curly apostrophe used by the daily template.
var headingMap = map[string]string{
	"Brain Dump":   "## ☕ Brain Dump",
	"Bookmarks":    "## 🔖 Bookmarks",
	"Tasks":        "## 📋 Today’s Tasks (from OmniFocus)",
	"Morning Plan": "## 🌅 Morning Plan",
	"Journal":      "## 📝 Journal & Reflection",
	"Carry-Over":   "## 🔁 Carry-Over Tasks",
}

// DailyPath returns the vault path of the daily note for the given time.
func DailyPath(t time.Time) string {
	return fmt.Sprintf(dailyPathFormat, t.Format("2006"), t.Format("2006-01-02"), t.Format("Mon"))
}

// ResolveHeading maps a display name ("Brain Dump") to the vault heading.
// Strings already shaped like a markdown heading pass through unchanged.
func ResolveHeading(name string) (string, error) {
	if h, ok := headingMap[name]; ok {
		return h, nil
	}
	if len(name) >= 2 && name[:2] == "##" {
		return name, nil
	}
	return "", fmt.Errorf("unknown heading: %s", name)
}

// Headings lists the known display names, sorted, for error messages.
func Headings() []string {
	names := make([]string, 0, len(headingMap))
	for name := range headingMap {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Bullet formats an entry line for a daily note section. When stamp is
// non-zero the line carries an HH:MM prefix.
func Bullet(content string, stamp time.Time) string {
	if stamp.IsZero() {
		return "- " + content + "\n"
	}
	return "- " + stamp.Format("15:04") + " " + content + "\n"
}
