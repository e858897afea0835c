// Package routines implements the daily automation flows: the morning brief
// that fills the Tasks section of the daily note and the evening summary
// that mines it for follow-ups.
package routines

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/knight-systems/productivity-service/dailynote"
	"github.com/knight-systems/productivity-service/domain"
	"github.com/knight-systems/productivity-service/maildrop"
	"github.com/knight-systems/productivity-service/tasks"
)

var timeNow = time.Now

// DailyNotes is the slice of the daily-note service the routines use.
type DailyNotes interface {
	Get(ctx context.Context, day time.Time) (dailynote.Note, error)
	Append(ctx context.Context, heading, content string, stamp bool, day time.Time) (dailynote.AppendResult, error)
	ReplaceSection(ctx context.Context, heading, body string, day time.Time) (string, error)
}

// TaskCreator routes extracted follow-ups into the task manager.
type TaskCreator interface {
	CreateTask(ctx context.Context, task domain.TaskFields) maildrop.TaskResult
}

// ActionExtractor mines a daily note for actionable items. Optional; the
// service scans for open checkboxes without it.
type ActionExtractor interface {
	ExtractActions(ctx context.Context, content string) ([]tasks.ActionItem, error)
}

// Config wires a Service.
type Config struct {
	Daily     DailyNotes
	Tasks     TaskCreator
	Extractor ActionExtractor
	Timezone  *time.Location
}

// Service runs the morning and evening routines against the daily note.
type Service struct {
	daily     DailyNotes
	tasks     TaskCreator
	extractor ActionExtractor
	tz        *time.Location
	logger    *log.Logger
}

func NewService(cfg Config, logger *log.Logger) *Service {
	if cfg.Timezone == nil {
		cfg.Timezone = time.UTC
	}
	return &Service{
		daily:     cfg.Daily,
		tasks:     cfg.Tasks,
		extractor: cfg.Extractor,
		tz:        cfg.Timezone,
		logger:    logger,
	}
}

// MorningRequest carries the flagged tasks pulled from the task manager and
// the inbox state.
type MorningRequest struct {
	Tasks       []BriefTask `json:"tasks"`
	InboxCount  int         `json:"inbox_count"`
	InboxThemes []string    `json:"inbox_themes,omitempty"`
}

// MorningResult reports the injected brief.
type MorningResult struct {
	Success   bool   `json:"success"`
	Path      string `json:"path,omitempty"`
	TaskCount int    `json:"task_count"`
	Summary   string `json:"summary,omitempty"`
	Message   string `json:"message,omitempty"`
}

// Morning replaces the Tasks section of today's note with the priority
// checklist and inbox status. Re-running it on the same input leaves the
// note unchanged, so the routine is safe to retry.
func (s *Service) Morning(ctx context.Context, req MorningRequest) (MorningResult, error) {
	content := formatTasks(req.Tasks) + "\n\n" + inboxSummary(req.InboxCount, req.InboxThemes)

	path, err := s.daily.ReplaceSection(ctx, "Tasks", content, time.Time{})
	if err != nil {
		return MorningResult{}, err
	}

	s.logger.WithFields(log.Fields{"path": path, "tasks": len(req.Tasks)}).Info("morning brief injected")
	return MorningResult{
		Success:   true,
		Path:      path,
		TaskCount: len(req.Tasks),
		Summary:   briefSummary(req.Tasks, req.InboxCount),
		Message:   fmt.Sprintf("Morning brief generated (%d tasks, %d inbox items)", len(req.Tasks), req.InboxCount),
	}, nil
}

// EveningResult reports the extracted follow-ups and the reflection.
type EveningResult struct {
	Success         bool               `json:"success"`
	Path            string             `json:"path,omitempty"`
	ExtractedTasks  []tasks.ActionItem `json:"extracted_tasks"`
	TasksSent       int                `json:"tasks_sent"`
	Subjects        []string           `json:"subjects,omitempty"`
	Summary         string             `json:"summary,omitempty"`
	ReflectionAdded bool               `json:"reflection_added"`
	Message         string             `json:"message,omitempty"`
}

// Evening reads the daily note for day (zero value: today), turns its open
// action items into mail-drop tasks and appends a reflection line to the
// Journal section. A missing note is reported in-band, not as an error.
func (s *Service) Evening(ctx context.Context, day time.Time) EveningResult {
	n, err := s.daily.Get(ctx, day)
	if err != nil {
		s.logger.WithError(err).Error("failed to read daily note")
		return EveningResult{Success: false, ExtractedTasks: []tasks.ActionItem{}, Message: "Failed to read daily note: " + err.Error()}
	}
	if !n.Exists {
		return EveningResult{Success: false, Path: n.Path, ExtractedTasks: []tasks.ActionItem{}, Message: "Daily note not found"}
	}

	extracted := s.extractActions(ctx, n.Content)

	noteDate := day
	if noteDate.IsZero() {
		noteDate = timeNow().In(s.tz)
	}
	dateStr := noteDate.Format("2006-01-02")

	sent := 0
	var subjects []string
	if s.tasks != nil {
		for _, item := range extracted {
			res := s.tasks.CreateTask(ctx, domain.TaskFields{
				Title: item.Title,
				Note:  fmt.Sprintf("Extracted from daily note (%s)", dateStr),
			})
			if !res.Success {
				s.logger.WithFields(log.Fields{"title": item.Title, "reason": res.Message}).Warn("failed to create extracted task")
				continue
			}
			sent++
			subjects = append(subjects, res.MailDropSubject)
		}
	}

	reflection := reflectionText(n.Content, sent)
	reflectionAdded := false
	if _, err := s.daily.Append(ctx, "Journal", "**Evening Reflection**: "+reflection, true, day); err != nil {
		s.logger.WithError(err).Warn("failed to append evening reflection")
	} else {
		reflectionAdded = true
	}

	return EveningResult{
		Success:         true,
		Path:            n.Path,
		ExtractedTasks:  extracted,
		TasksSent:       sent,
		Subjects:        subjects,
		Summary:         reflection,
		ReflectionAdded: reflectionAdded,
		Message:         fmt.Sprintf("Evening summary complete. Extracted %d tasks, sent %d to the task manager.", len(extracted), sent),
	}
}

func (s *Service) extractActions(ctx context.Context, content string) []tasks.ActionItem {
	if s.extractor != nil {
		items, err := s.extractor.ExtractActions(ctx, content)
		if err != nil {
			s.logger.WithError(err).Warn("model extraction failed, scanning for open checkboxes")
		} else {
			return items
		}
	}
	return openActionItems(content)
}
