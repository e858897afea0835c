package review

import (
	"regexp"
	"strings"

	"github.com/knight-systems/productivity-service/domain"
)

// Pattern order matters: first match wins, anything unmatched is an article.
var contentPatterns = []struct {
	contentType string
	patterns    []*regexp.Regexp
}{
	{domain.ContentVideo, compileAll(
		`youtube\.com/watch`,
		`youtu\.be/`,
		`vimeo\.com/`,
		`twitch\.tv/`,
	)},
	{domain.ContentTweet, compileAll(
		`twitter\.com/.+/status/`,
		`x\.com/.+/status/`,
	)},
	{domain.ContentPDF, compileAll(
		`\.pdf$`,
		`\.pdf\?`,
	)},
	{domain.ContentDoc, compileAll(
		`docs\.google\.com/`,
		`notion\.so/`,
		`dropbox\.com/.*\.(docx?|xlsx?|pptx?)`,
	)},
	{domain.ContentPodcast, compileAll(
		`podcasts\.apple\.com/`,
		`spotify\.com/episode/`,
		`overcast\.fm/`,
		`pocketcasts\.com/`,
	)},
}

func compileAll(patterns ...string) []*regexp.Regexp {
	res := make([]*regexp.Regexp, len(patterns))
	for i, p := range patterns {
		res[i] = regexp.MustCompile(`(?i)` + p)
	}
	return res
}

// DetectContentType classifies a URL by its shape.
func DetectContentType(url string) string {
	for _, group := range contentPatterns {
		for _, re := range group.patterns {
			if re.MatchString(url) {
				return group.contentType
			}
		}
	}
	return domain.ContentArticle
}

// Default reading times by content type, in minutes.
var defaultReadTimes = map[string]int{
	domain.ContentTweet:   1,
	domain.ContentArticle: 5,
	domain.ContentVideo:   10,
	domain.ContentPDF:     10,
	domain.ContentDoc:     5,
	domain.ContentPodcast: 30,
	domain.ContentOther:   5,
}

// SnackThreshold is the estimated-minutes cutoff at or below which an item
// can be consumed in a spare moment.
const SnackThreshold = 2

// EstimateReadTime estimates minutes to consume an item. Articles with a
// description scale with its length, treating the description as roughly a
// tenth of the article read at 200 words per minute.
func EstimateReadTime(contentType, description string) int {
	if description != "" && contentType == domain.ContentArticle {
		words := len(strings.Fields(description))
		est := words * 10 / 200
		if est < 1 {
			est = 1
		}
		return est
	}
	if t, ok := defaultReadTimes[contentType]; ok {
		return t
	}
	return 5
}

// IsSnack reports whether an estimate is small enough to snack on.
func IsSnack(estimatedTime int) bool {
	return estimatedTime <= SnackThreshold
}
