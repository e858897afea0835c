// Package tasks extracts structured task fields from natural language
// capture input, deterministically or through a model when one is
// configured.
package tasks

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"
)

// ParseResult is the parse endpoint response.
type ParseResult struct {
	Title      string   `json:"title"`
	Note       string   `json:"note,omitempty"`
	Project    string   `json:"project,omitempty"`
	Context    string   `json:"context,omitempty"`
	DueDate    string   `json:"due_date,omitempty"`
	DeferDate  string   `json:"defer_date,omitempty"`
	Tags       []string `json:"tags"`
	Flagged    bool     `json:"flagged,omitempty"`
	Confidence float64  `json:"confidence"`
	RawInput   string   `json:"raw_input"`
}

const datePhrase = `today|tomorrow|next week|monday|tuesday|wednesday|thursday|friday|saturday|sunday|\d{4}-\d{2}-\d{2}|\d{1,2}/\d{1,2}`

var (
	noteRe       = regexp.MustCompile(`(?i)\bnotes?:\s*`)
	projectRe    = regexp.MustCompile(`::(\S+)`)
	contextRe    = regexp.MustCompile(`@(\w+)`)
	tagRe        = regexp.MustCompile(`#(\w+)`)
	explicitDue  = regexp.MustCompile(`(?:^|\s)--(\S+)`)
	explicitDef  = regexp.MustCompile(`(?:^|\s)//(\S+)`)
	naturalDue   = regexp.MustCompile(`(?i)\b(?:due(?:\s+(?:by|on))?|by|on)\s+(` + datePhrase + `)\b`)
	naturalDefer = regexp.MustCompile(`(?i)\b(?:defer(?:red)?\s+(?:until|to)|start(?:ing)?)\s+(` + datePhrase + `)\b`)
	bareTemporal = regexp.MustCompile(`(?i)\b(today|tomorrow|next week)\b`)
	naturalProj  = regexp.MustCompile(`(?i)\b(?:for|to|in)\s+(?:the\s+)?([\w][\w\s]*?)\s+project\b`)
	flagRe       = regexp.MustCompile(`(?i)\b(?:flag(?:ged)?|important)\b`)
	spaceRe      = regexp.MustCompile(`\s+`)
)

var weekdays = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

// Parse extracts task fields from free text without calling a model.
// It understands the Mail Drop markers (::project, @context, #tag, --due,
// //defer) plus common natural phrasing for dates, projects and flags.
func Parse(text string, now time.Time) ParseResult {
	res := ParseResult{Tags: []string{}, RawInput: text}
	working := text

	if loc := noteRe.FindStringIndex(working); loc != nil {
		res.Note = strings.TrimSpace(working[loc[1]:])
		working = working[:loc[0]]
	}

	if m := projectRe.FindStringSubmatch(working); m != nil {
		res.Project = m[1]
		working = projectRe.ReplaceAllString(working, " ")
	}
	if m := contextRe.FindStringSubmatch(working); m != nil {
		res.Context = "@" + m[1]
		working = contextRe.ReplaceAllString(working, " ")
	}
	for _, m := range tagRe.FindAllStringSubmatch(working, -1) {
		res.Tags = append(res.Tags, m[1])
	}
	working = tagRe.ReplaceAllString(working, " ")

	if m := explicitDue.FindStringSubmatch(working); m != nil {
		res.DueDate = resolveDate(m[1], now)
		working = explicitDue.ReplaceAllString(working, " ")
	}
	if m := explicitDef.FindStringSubmatch(working); m != nil {
		res.DeferDate = resolveDate(m[1], now)
		working = explicitDef.ReplaceAllString(working, " ")
	}

	if res.DeferDate == "" {
		if m := naturalDefer.FindStringSubmatch(working); m != nil {
			res.DeferDate = resolveDate(m[1], now)
			working = naturalDefer.ReplaceAllString(working, " ")
		}
	}
	if res.DueDate == "" {
		if m := naturalDue.FindStringSubmatch(working); m != nil {
			res.DueDate = resolveDate(m[1], now)
			working = naturalDue.ReplaceAllString(working, " ")
		}
	}
	if res.DueDate == "" {
		if m := bareTemporal.FindStringSubmatch(working); m != nil {
			res.DueDate = resolveDate(m[1], now)
			working = bareTemporal.ReplaceAllString(working, " ")
		}
	}

	if res.Project == "" {
		if m := naturalProj.FindStringSubmatch(working); m != nil {
			res.Project = titleCase(strings.TrimSpace(m[1]))
			working = naturalProj.ReplaceAllString(working, " ")
		}
	}

	if flagRe.MatchString(working) {
		res.Flagged = true
		working = flagRe.ReplaceAllString(working, " ")
	}

	res.Title = cleanTitle(working)
	if res.Title == "" {
		res.Title = strings.TrimSpace(text)
	}

	res.Confidence = confidence(res)
	return res
}

func cleanTitle(s string) string {
	s = spaceRe.ReplaceAllString(s, " ")
	return strings.Trim(s, " ,.-")
}

func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		r := []rune(w)
		r[0] = unicode.ToUpper(r[0])
		words[i] = string(r)
	}
	return strings.Join(words, " ")
}

// resolveDate turns a date phrase into YYYY-MM-DD, passing through values it
// does not recognize so explicit Mail Drop markers survive untouched.
func resolveDate(phrase string, now time.Time) string {
	p := strings.ToLower(strings.TrimSpace(phrase))
	switch p {
	case "today":
		return now.Format("2006-01-02")
	case "tomorrow":
		return now.AddDate(0, 0, 1).Format("2006-01-02")
	case "next week":
		return now.AddDate(0, 0, 7).Format("2006-01-02")
	}
	if wd, ok := weekdays[p]; ok {
		days := (int(wd) - int(now.Weekday()) + 7) % 7
		if days == 0 {
			days = 7
		}
		return now.AddDate(0, 0, days).Format("2006-01-02")
	}
	if _, err := time.Parse("2006-01-02", p); err == nil {
		return p
	}
	if month, day, ok := splitMonthDay(p); ok {
		return fmt.Sprintf("%04d-%02d-%02d", now.Year(), month, day)
	}
	return phrase
}

func splitMonthDay(p string) (int, int, bool) {
	parts := strings.Split(p, "/")
	if len(parts) != 2 {
		return 0, 0, false
	}
	month, err := strconv.Atoi(parts[0])
	if err != nil || month < 1 || month > 12 {
		return 0, 0, false
	}
	day, err := strconv.Atoi(parts[1])
	if err != nil || day < 1 || day > 31 {
		return 0, 0, false
	}
	return month, day, true
}

// confidence scores how much structure the parser recognized: half a point
// for any structure at all, a tenth per recognized field, capped below full
// certainty. Bare text scores low.
func confidence(res ParseResult) float64 {
	fields := 0
	if res.Project != "" {
		fields++
	}
	if res.Context != "" {
		fields++
	}
	if res.DueDate != "" {
		fields++
	}
	if res.DeferDate != "" {
		fields++
	}
	if len(res.Tags) > 0 {
		fields++
	}
	if res.Flagged {
		fields++
	}
	if res.Note != "" {
		fields++
	}
	if fields == 0 {
		return 0.3
	}
	score := 50 + 10*fields
	if score > 95 {
		score = 95
	}
	return float64(score) / 100
}
