// Package bookmarks saves web pages into the vault: a permanent bookmark
// note plus a line in the daily journal, with optional model enrichment.
package bookmarks

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/knight-systems/productivity-service/dailynote"
	"github.com/knight-systems/productivity-service/fetch"
	"github.com/knight-systems/productivity-service/note"
	"github.com/knight-systems/productivity-service/vault"
)

var timeNow = time.Now

// Save modes. Auto resolves to quick when the fetched metadata is good
// enough and escalates to rich otherwise.
const (
	ModeAuto  = "auto"
	ModeQuick = "quick"
	ModeRich  = "rich"
)

// PageFetcher supplies page metadata and, for rich saves, the full text.
type PageFetcher interface {
	Metadata(ctx context.Context, url string) (*fetch.Metadata, error)
	Content(ctx context.Context, url string) (*fetch.Content, error)
}

// ContentEnricher produces model summaries and tags. May be absent; the
// service then relies on metadata and host heuristics.
type ContentEnricher interface {
	Enrich(ctx context.Context, title, content string) (*Enrichment, error)
	Tag(ctx context.Context, content string) (*Enrichment, error)
}

// DailyAppender drops the bookmark line into the daily note.
type DailyAppender interface {
	Append(ctx context.Context, heading, content string, stamp bool, day time.Time) (dailynote.AppendResult, error)
}

// Config wires a Service.
type Config struct {
	Vault    vault.Vault
	Fetcher  PageFetcher
	Enricher ContentEnricher
	Daily    DailyAppender
	Timezone *time.Location
}

// Service implements the bookmark save flow over a vault.
type Service struct {
	vault    vault.Vault
	fetcher  PageFetcher
	enricher ContentEnricher
	daily    DailyAppender
	tz       *time.Location
	logger   *log.Logger
}

func NewService(cfg Config, logger *log.Logger) *Service {
	if cfg.Timezone == nil {
		cfg.Timezone = time.UTC
	}
	return &Service{
		vault:    cfg.Vault,
		fetcher:  cfg.Fetcher,
		enricher: cfg.Enricher,
		daily:    cfg.Daily,
		tz:       cfg.Timezone,
		logger:   logger,
	}
}

// SaveRequest is the bookmark save payload.
type SaveRequest struct {
	URL             string   `json:"url"`
	Mode            string   `json:"mode,omitempty"`
	Title           string   `json:"title,omitempty"`
	MetaDescription string   `json:"meta_description,omitempty"`
	Notes           string   `json:"notes,omitempty"`
	Tags            []string `json:"tags,omitempty"`
}

// SaveResult reports what happened to a saved bookmark.
type SaveResult struct {
	Success          bool     `json:"success"`
	BookmarkID       string   `json:"bookmark_id"`
	Title            string   `json:"title"`
	Status           string   `json:"status"`
	Category         string   `json:"category,omitempty"`
	ModeUsed         string   `json:"mode_used,omitempty"`
	DailyNoteUpdated bool     `json:"daily_note_updated"`
	BookmarkFilePath string   `json:"bookmark_file_path"`
	Summary          string   `json:"summary,omitempty"`
	Tags             []string `json:"tags"`
	Error            string   `json:"error,omitempty"`
}

// Save writes the bookmark note and the daily-note entry. Quick saves use
// request data only; rich saves fetch the page and run enrichment; auto
// fetches metadata and escalates to rich when it is low quality. A failed
// daily-note update does not fail the save.
func (s *Service) Save(ctx context.Context, req SaveRequest) SaveResult {
	now := timeNow().In(s.tz)
	dateStr := now.Format("2006-01-02")

	mode := req.Mode
	if mode == "" {
		mode = ModeAuto
	}
	if mode != ModeAuto && mode != ModeQuick && mode != ModeRich {
		return s.saveFailure(req, fmt.Errorf("unknown mode: %s", req.Mode))
	}

	meta := &fetch.Metadata{URL: req.URL}
	if mode != ModeQuick && s.fetcher != nil {
		m, err := s.fetcher.Metadata(ctx, req.URL)
		if err != nil {
			s.logger.WithError(err).WithField("url", req.URL).Warn("metadata fetch failed")
		} else {
			meta = m
		}
	}

	title := req.Title
	if title == "" {
		title = meta.BestTitle()
	}
	if title == "" {
		title = TitleFromURL(req.URL)
	}

	modeUsed := mode
	if mode == ModeAuto {
		if meta.IsQuality() {
			modeUsed = ModeQuick
		} else {
			modeUsed = ModeRich
		}
	}

	summary := req.MetaDescription
	if summary == "" {
		summary = meta.BestDescription()
	}
	category := Categorize(req.URL, title)
	var autoTags []string

	switch {
	case modeUsed == ModeRich:
		if enrichment := s.richEnrichment(ctx, req.URL, title); enrichment != nil {
			if enrichment.Summary != "" {
				summary = enrichment.Summary
			}
			autoTags = enrichment.Tags
			if enrichment.Category != "" {
				category = enrichment.Category
			}
		}
	case mode == ModeAuto && s.enricher != nil:
		// The browser-extension default: keep the metadata summary but let
		// the model refine tags from title and description.
		enrichment, err := s.enricher.Tag(ctx, title+"\n\n"+summary)
		if err != nil {
			s.logger.WithError(err).WithField("url", req.URL).Warn("tag generation failed")
		} else {
			autoTags = enrichment.Tags
			if enrichment.Category != "" {
				category = enrichment.Category
			}
		}
	}

	allTags := mergeTags(req.Tags, autoTags)

	entry := fmt.Sprintf("[%s](%s)", title, req.URL)
	if req.Notes != "" {
		entry += " - " + req.Notes
	}
	dailyUpdated := false
	if s.daily != nil {
		if _, err := s.daily.Append(ctx, "Bookmarks", entry, true, time.Time{}); err != nil {
			s.logger.WithError(err).WithField("url", req.URL).Warn("daily note update failed")
		} else {
			dailyUpdated = true
		}
	}

	bookmarkID := note.FileID(title, dateStr)
	path := note.BookmarkFolder + "/" + bookmarkID + ".md"
	content := note.BookmarkFile{
		Title:    title,
		URL:      req.URL,
		Tags:     allTags,
		Category: category,
		Date:     dateStr,
		Summary:  summary,
		Notes:    req.Notes,
		OGImage:  meta.OGImage,
	}.Render()

	existing, err := s.vault.Get(ctx, path)
	if err != nil {
		return s.saveFailure(req, err)
	}
	sha := ""
	verb := "Add"
	if existing != nil {
		sha = existing.SHA
		verb = "Update"
	}
	message := fmt.Sprintf("%s bookmark: %s", verb, truncate(title, 50))
	if _, err := s.vault.Put(ctx, path, content, message, sha); err != nil {
		return s.saveFailure(req, err)
	}

	return SaveResult{
		Success:          true,
		BookmarkID:       bookmarkID,
		Title:            title,
		Status:           "complete",
		Category:         category,
		ModeUsed:         modeUsed,
		DailyNoteUpdated: dailyUpdated,
		BookmarkFilePath: path,
		Summary:          summary,
		Tags:             allTags,
	}
}

// richEnrichment fetches the full page and asks the model for a summary.
// Any failure returns nil and the caller keeps the metadata description.
func (s *Service) richEnrichment(ctx context.Context, url, title string) *Enrichment {
	if s.fetcher == nil || s.enricher == nil {
		return nil
	}
	content, err := s.fetcher.Content(ctx, url)
	if err != nil {
		s.logger.WithError(err).WithField("url", url).Warn("full content fetch failed")
		return nil
	}
	enrichment, err := s.enricher.Enrich(ctx, title, content.Text)
	if err != nil {
		s.logger.WithError(err).WithField("url", url).Warn("bookmark enrichment failed")
		return nil
	}
	return enrichment
}

func (s *Service) saveFailure(req SaveRequest, err error) SaveResult {
	s.logger.WithError(err).WithField("url", req.URL).Error("failed to save bookmark")
	title := req.Title
	if title == "" {
		title = req.URL
	}
	return SaveResult{
		Success: false,
		Title:   title,
		Status:  "failed",
		Tags:    []string{},
		Error:   err.Error(),
	}
}

// mergeTags joins user tags with generated ones, deduplicated preserving
// order.
func mergeTags(user, auto []string) []string {
	seen := make(map[string]struct{}, len(user)+len(auto))
	out := make([]string, 0, len(user)+len(auto))
	for _, group := range [][]string{user, auto} {
		for _, tag := range group {
			if tag == "" {
				continue
			}
			if _, dup := seen[tag]; dup {
				continue
			}
			seen[tag] = struct{}{}
			out = append(out, tag)
		}
	}
	return out
}

func truncate(s string, n int) string {
	if runes := []rune(s); len(runes) > n {
		return string(runes[:n])
	}
	return s
}
