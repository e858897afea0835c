package bookmarks

import (
	"regexp"
	"strings"
	"unicode"
)

// Categories a bookmark may be filed under. Model enrichment is clamped to
// this set; anything else becomes "other".
var categories = []string{
	"tech", "reference", "article", "tool", "tutorial",
	"news", "personal", "business", "design", "other",
}

func validCategory(c string) bool {
	for _, known := range categories {
		if c == known {
			return true
		}
	}
	return false
}

// hostRules map URL fragments onto categories, first match wins. Checked
// before title keywords so a GitHub tutorial still files under tech.
var hostRules = []struct {
	fragment string
	category string
}{
	{"github.com", "tech"},
	{"gitlab.com", "tech"},
	{"stackoverflow.com", "tech"},
	{"news.ycombinator.com", "tech"},
	{"lobste.rs", "tech"},
	{"wikipedia.org", "reference"},
	{"developer.mozilla.org", "reference"},
	{"pkg.go.dev", "reference"},
	{"docs.", "reference"},
	{"medium.com", "article"},
	{"substack.com", "article"},
	{"producthunt.com", "tool"},
	{"dribbble.com", "design"},
	{"behance.net", "design"},
	{"figma.com", "design"},
	{"bloomberg.com", "business"},
	{"forbes.com", "business"},
	{"hbr.org", "business"},
	{"nytimes.com", "news"},
	{"bbc.co", "news"},
	{"reuters.com", "news"},
	{"theguardian.com", "news"},
	{"arstechnica.com", "news"},
}

var keywordRules = []struct {
	keyword  string
	category string
}{
	{"tutorial", "tutorial"},
	{"how to", "tutorial"},
	{"getting started", "tutorial"},
	{"guide", "tutorial"},
	{"documentation", "reference"},
	{"cheat sheet", "reference"},
	{"cheatsheet", "reference"},
}

// Categorize assigns a category from the URL host and title keywords. The
// optional model enrichment refines the result later.
func Categorize(url, title string) string {
	lowerURL := strings.ToLower(url)
	for _, r := range hostRules {
		if strings.Contains(lowerURL, r.fragment) {
			return r.category
		}
	}
	lowerTitle := strings.ToLower(title)
	for _, r := range keywordRules {
		if strings.Contains(lowerTitle, r.keyword) {
			return r.category
		}
	}
	return "other"
}

var (
	protocolRe  = regexp.MustCompile(`^https?://(www\.)?`)
	queryRe     = regexp.MustCompile(`[?#].*$`)
	separatorRe = regexp.MustCompile(`[-_/]`)
)

// TitleFromURL derives a readable fallback title from the URL itself: strip
// protocol and www, drop query and fragment, map separators to spaces,
// title-case the words. Capped at 100 runes.
func TitleFromURL(url string) string {
	title := protocolRe.ReplaceAllString(url, "")
	title = strings.TrimRight(queryRe.ReplaceAllString(title, ""), "/")
	title = separatorRe.ReplaceAllString(title, " ")
	title = titleCase(title)
	if runes := []rune(title); len(runes) > 100 {
		title = string(runes[:100])
	}
	return title
}

func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		runes := []rune(w)
		runes[0] = unicode.ToUpper(runes[0])
		words[i] = string(runes)
	}
	return strings.Join(words, " ")
}
