// Package review implements the read-queue capture flow: classify a URL,
// estimate its reading time, write the queue note and route must-read items
// into the task manager.
package review

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/knight-systems/productivity-service/domain"
	"github.com/knight-systems/productivity-service/fetch"
	"github.com/knight-systems/productivity-service/note"
	"github.com/knight-systems/productivity-service/vault"
)

var timeNow = time.Now

// MetadataFetcher supplies page metadata when the client did not send any.
type MetadataFetcher interface {
	Metadata(ctx context.Context, url string) (*fetch.Metadata, error)
}

// TaskSender routes must-read items into the task manager.
type TaskSender interface {
	SendTask(ctx context.Context, task domain.TaskFields) error
}

// Config wires a Service.
type Config struct {
	Vault          vault.Vault
	Fetcher        MetadataFetcher
	Tasks          TaskSender
	Timezone       *time.Location
	ReadingProject string
}

// Service implements the review-queue operations over a vault.
type Service struct {
	vault          vault.Vault
	fetcher        MetadataFetcher
	tasks          TaskSender
	tz             *time.Location
	readingProject string
	logger         *log.Logger
}

func NewService(cfg Config, logger *log.Logger) *Service {
	if cfg.Timezone == nil {
		cfg.Timezone = time.UTC
	}
	if cfg.ReadingProject == "" {
		cfg.ReadingProject = "Reading"
	}
	return &Service{
		vault:          cfg.Vault,
		fetcher:        cfg.Fetcher,
		tasks:          cfg.Tasks,
		tz:             cfg.Timezone,
		readingProject: cfg.ReadingProject,
		logger:         logger,
	}
}

// AddRequest is the queue add payload.
type AddRequest struct {
	URL             string `json:"url"`
	Title           string `json:"title,omitempty"`
	MetaDescription string `json:"meta_description,omitempty"`
	Priority        string `json:"priority,omitempty"`
	Notes           string `json:"notes,omitempty"`
}

// AddResult reports what happened to an added item.
type AddResult struct {
	Success       bool   `json:"success"`
	QueueID       string `json:"queue_id"`
	Title         string `json:"title"`
	URL           string `json:"url"`
	ContentType   string `json:"content_type"`
	EstimatedTime int    `json:"estimated_time"`
	Priority      string `json:"priority"`
	IsSnack       bool   `json:"is_snack"`
	RoutedTo      string `json:"routed_to,omitempty"`
	Fallback      bool   `json:"fallback"`
	Error         string `json:"error,omitempty"`
}

// Add classifies the URL, writes the queue note and routes by priority.
// Failures are reported in-band so a capture request never turns into a 5xx.
func (s *Service) Add(ctx context.Context, req AddRequest) AddResult {
	now := timeNow().In(s.tz)
	dateStr := now.Format("2006-01-02")

	title := req.Title
	description := req.MetaDescription
	ogImage := ""
	if (title == "" || description == "") && s.fetcher != nil {
		meta, err := s.fetcher.Metadata(ctx, req.URL)
		if err != nil {
			s.logger.WithError(err).WithField("url", req.URL).Warn("metadata fetch failed")
		} else {
			if title == "" {
				title = meta.BestTitle()
			}
			if description == "" {
				description = meta.BestDescription()
			}
			ogImage = meta.OGImage
		}
	}
	if title == "" {
		title = req.URL
	}

	contentType := DetectContentType(req.URL)
	estimatedTime := EstimateReadTime(contentType, description)
	isSnack := IsSnack(estimatedTime)
	priority := req.Priority
	if priority == "" {
		priority = domain.PriorityNormal
	}
	if isSnack {
		priority = domain.PrioritySnack
	}

	queueID := note.FileID(title, dateStr)
	queuePath := note.QueueFolder + "/" + queueID + ".md"
	content := note.QueueFile{
		Title:         title,
		URL:           req.URL,
		Date:          dateStr,
		ContentType:   contentType,
		EstimatedTime: estimatedTime,
		Priority:      priority,
		Notes:         req.Notes,
		Description:   description,
		OGImage:       ogImage,
	}.Render()

	existing, err := s.vault.Get(ctx, queuePath)
	if err != nil {
		return s.addFailure(req, err)
	}
	sha := ""
	verb := "Add to"
	if existing != nil {
		sha = existing.SHA
		verb = "Update"
	}
	message := fmt.Sprintf("%s read queue: %s", verb, truncate(title, 50))
	if _, err := s.vault.Put(ctx, queuePath, content, message, sha); err != nil {
		return s.addFailure(req, err)
	}

	routedTo := domain.RoutedVault
	fallback := false
	if priority == domain.PriorityMustRead {
		switch {
		case s.tasks == nil:
			s.logger.WithField("queueId", queueID).Warn("mail drop not configured, must-read captured to vault only")
			fallback = true
		default:
			task := s.readingTask(title, req.URL, estimatedTime, now)
			if err := s.tasks.SendTask(ctx, task); err != nil {
				s.logger.WithError(err).WithField("queueId", queueID).Warn("mail drop routing failed, captured to vault only")
				fallback = true
			} else {
				routedTo = domain.RoutedMailDrop
			}
		}
	}

	return AddResult{
		Success:       true,
		QueueID:       queueID,
		Title:         title,
		URL:           req.URL,
		ContentType:   contentType,
		EstimatedTime: estimatedTime,
		Priority:      priority,
		IsSnack:       isSnack,
		RoutedTo:      routedTo,
		Fallback:      fallback,
	}
}

// readingTask builds the task-manager entry for a must-read item: due the
// next day, flagged, carrying the source URL and the estimate in the note.
func (s *Service) readingTask(title, url string, estimatedTime int, now time.Time) domain.TaskFields {
	return domain.TaskFields{
		Title:   "Read: " + title,
		Note:    fmt.Sprintf("%s\n\nEstimated time: %d min", url, estimatedTime),
		Project: s.readingProject,
		Context: "reading",
		DueDate: now.AddDate(0, 0, 1).Format("2006-01-02"),
		Flagged: true,
	}
}

func (s *Service) addFailure(req AddRequest, err error) AddResult {
	s.logger.WithError(err).WithField("url", req.URL).Error("failed to add to queue")
	priority := req.Priority
	if priority == "" {
		priority = domain.PriorityNormal
	}
	title := req.Title
	if title == "" {
		title = req.URL
	}
	return AddResult{
		Success:       false,
		Title:         title,
		URL:           req.URL,
		ContentType:   domain.ContentArticle,
		EstimatedTime: 5,
		Priority:      priority,
		Error:         err.Error(),
	}
}

func truncate(s string, n int) string {
	if runes := []rune(s); len(runes) > n {
		return string(runes[:n])
	}
	return s
}
