// Package tidy plans and executes filesystem cleanup actions. Files that
// appear in watched folders are classified into a reviewable plan; nothing
// is moved or deleted until an operator approves the plan.
package tidy

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Plan actions.
const (
	ActionMove    = "move"
	ActionDelete  = "delete"
	ActionArchive = "archive"
	ActionRename  = "rename"
	ActionSkip    = "skip"
)

// Plan lifecycle statuses.
const (
	StatusPending  = "pending"
	StatusApproved = "approved"
	StatusExecuted = "executed"
	StatusRejected = "rejected"
	StatusFailed   = "failed"
)

// Plan sources.
const (
	SourceRules   = "rules"
	SourceLearned = "learned"
)

// Domains files can be filed under inside the organized root.
var Domains = []string{"Finance", "Family", "Work", "Health", "Property", "Personal"}

// Plan is a proposed action for a single file. Destination is the full
// target path for move, archive and rename actions and empty otherwise.
type Plan struct {
	ID          string
	SourcePath  string
	Action      string
	Destination string
	Category    string
	Domain      string
	Subfolder   string
	Confidence  float64
	Reason      string
	Source      string
	Status      string
	SizeBytes   int64
	CreatedAt   time.Time
	ExecutedAt  time.Time
	Error       string
}

// NewPlanID returns a short random plan identifier.
func NewPlanID() string {
	return uuid.NewString()[:8]
}

// Filename returns the base name of the plan's source file.
func (p *Plan) Filename() string {
	return filepath.Base(p.SourcePath)
}

// Correction is an operator-taught rule recorded when a plan is rejected
// with a better destination. Corrections outrank the built-in rules.
type Correction struct {
	ID           string
	CreatedAt    time.Time
	Filename     string
	Pattern      string
	Keywords     []string
	Action       string
	Domain       string
	Subfolder    string
	TimesApplied int
	LastApplied  time.Time
}

// Summary aggregates the pending plans for review.
type Summary struct {
	Total      int
	ByAction   map[string]int
	ByDomain   map[string]int
	ByCategory map[string]int
	// BytesFreed is the total size of files pending deletion.
	BytesFreed int64
}

// ValidAction reports whether a is a known plan action.
func ValidAction(a string) bool {
	switch a {
	case ActionMove, ActionDelete, ActionArchive, ActionRename, ActionSkip:
		return true
	}
	return false
}

// ValidStatus reports whether s is a known plan status.
func ValidStatus(s string) bool {
	switch s {
	case StatusPending, StatusApproved, StatusExecuted, StatusRejected, StatusFailed:
		return true
	}
	return false
}

// ParseDestination splits an operator-supplied "Domain/Subfolder" value.
// The subfolder part is optional.
func ParseDestination(dest string) (domain, subfolder string, err error) {
	dest = strings.Trim(dest, "/")
	if dest == "" {
		return "", "", fmt.Errorf("empty destination")
	}
	parts := strings.SplitN(dest, "/", 2)
	domain = parts[0]
	if len(parts) == 2 {
		subfolder = parts[1]
	}
	return domain, subfolder, nil
}
