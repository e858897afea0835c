package domain

// Queue item statuses.
const (
	StatusUnread   = "unread"
	StatusReading  = "reading"
	StatusConsumed = "consumed"
	StatusArchived = "archived"
)

// Queue priorities.
const (
	PriorityMustRead = "must-read"
	PriorityNormal   = "normal"
	PrioritySomeday  = "someday"
	PrioritySnack    = "snack"
)

// Content types detected from URLs.
const (
	ContentArticle = "article"
	ContentVideo   = "video"
	ContentTweet   = "tweet"
	ContentPDF     = "pdf"
	ContentDoc     = "doc"
	ContentPodcast = "podcast"
	ContentOther   = "other"
)

// ValidStatus reports whether s is a recognized queue status.
func ValidStatus(s string) bool {
	switch s {
	case StatusUnread, StatusReading, StatusConsumed, StatusArchived:
		return true
	}
	return false
}

// ValidPriority reports whether p is a recognized queue priority.
func ValidPriority(p string) bool {
	switch p {
	case PriorityMustRead, PriorityNormal, PrioritySomeday, PrioritySnack:
		return true
	}
	return false
}

// QueueStats is the review-queue read model maintained by the route worker.
type QueueStats struct {
	Total                   int            `json:"total"`
	Unread                  int            `json:"unread"`
	Snacks                  int            `json:"snacks"`
	ByPriority              map[string]int `json:"byPriority"`
	ByType                  map[string]int `json:"byType"`
	EstimatedBacklogMinutes int            `json:"estimatedBacklogMinutes"`
}
