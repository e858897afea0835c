package domain

// TaskFields is the structured form of a captured task. Field names follow
// the capture API wire format.
type TaskFields struct {
	Title      string   `json:"title"`
	Note       string   `json:"note,omitempty"`
	Project    string   `json:"project,omitempty"`
	Context    string   `json:"context,omitempty"`
	Tags       []string `json:"tags,omitempty"`
	DueDate    string   `json:"due_date,omitempty"`
	DeferDate  string   `json:"defer_date,omitempty"`
	Flagged    bool     `json:"flagged,omitempty"`
	Confidence float64  `json:"confidence"`
}
