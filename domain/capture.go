package domain

// Capture kinds recorded in the journal.
const (
	KindTask     = "task"
	KindBookmark = "bookmark"
	KindQueue    = "queue"
	KindDaily    = "daily"
	KindRoutine  = "routine"
)

// Capture actions.
const (
	ActionCreated       = "created"
	ActionConsumed      = "consumed"
	ActionStatusChanged = "status-changed"
	ActionAppended      = "appended"
	ActionBriefWritten  = "brief-written"
	ActionSummaryRun    = "summary-run"
)

// Routing destinations for a capture.
const (
	RoutedMailDrop = "maildrop"
	RoutedVault    = "vault"
)

// CaptureEvent describes one routed capture on the wire between the API and
// the route worker.
type CaptureEvent struct {
	ID            string `json:"id"`
	Kind          string `json:"kind"`
	Action        string `json:"action"`
	Title         string `json:"title,omitempty"`
	URL           string `json:"url,omitempty"`
	Path          string `json:"path,omitempty"`
	RoutedTo      string `json:"routedTo,omitempty"`
	Fallback      bool   `json:"fallback,omitempty"`
	ContentType   string `json:"contentType,omitempty"`
	Priority      string `json:"priority,omitempty"`
	Status        string `json:"status,omitempty"`
	EstimatedTime int    `json:"estimatedTime,omitempty"`
	Timestamp     int64  `json:"timestamp"`
}
