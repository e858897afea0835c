package api

import (
	"github.com/knight-systems/productivity-service/maildrop"
	"github.com/knight-systems/productivity-service/tasks"
)

const maxBodySize = 64 * 1024 // 64 KiB

type healthResponse struct {
	Status      string `json:"status"`
	Service     string `json:"service"`
	Environment string `json:"environment"`
}

type parseRequest struct {
	Text string `json:"text"`
}

// captureResponse is the one-shot parse-and-create response: the create
// result at the top level plus the parsed fields.
type captureResponse struct {
	maildrop.TaskResult
	Parsed tasks.ParseResult `json:"parsed"`
}

type consumeRequest struct {
	Notes string `json:"notes,omitempty"`
}

type statusRequest struct {
	Status string `json:"status"`
}

type statsResponse struct {
	Total                   int            `json:"total"`
	Unread                  int            `json:"unread"`
	Snacks                  int            `json:"snacks"`
	ByPriority              map[string]int `json:"by_priority"`
	ByType                  map[string]int `json:"by_type"`
	EstimatedBacklogMinutes int            `json:"estimated_backlog_minutes"`
	AsOf                    string         `json:"as_of"`
}

type dailyAppendRequest struct {
	Heading string `json:"heading,omitempty"`
	Content string `json:"content"`
	// Timestamp defaults to true when absent.
	Timestamp *bool  `json:"timestamp,omitempty"`
	Date      string `json:"date,omitempty"`
}

type dailyAppendResponse struct {
	Success   bool   `json:"success"`
	Path      string `json:"path"`
	CommitSHA string `json:"commit_sha,omitempty"`
	Heading   string `json:"heading"`
	Content   string `json:"content"`
	Message   string `json:"message,omitempty"`
}

type dailyGetResponse struct {
	Success bool   `json:"success"`
	Path    string `json:"path"`
	Content string `json:"content"`
	Exists  bool   `json:"exists"`
}

type eveningRequest struct {
	Date string `json:"date,omitempty"`
}

// duplicateResponse short-circuits a request whose idempotency key was
// already processed.
type duplicateResponse struct {
	Duplicate bool `json:"duplicate"`
}
