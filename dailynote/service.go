// Package dailynote edits the vault's daily journal notes: timestamped
// appends under known headings and idempotent section rewrites.
package dailynote

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/knight-systems/productivity-service/note"
	"github.com/knight-systems/productivity-service/vault"
)

var timeNow = time.Now

var (
	// ErrNotFound reports that the daily note has not been created yet.
	ErrNotFound = errors.New("daily note not found")
	// ErrUnknownHeading reports a heading outside the daily template.
	ErrUnknownHeading = errors.New("unknown heading")
)

// Service reads and edits daily notes through a vault.
type Service struct {
	vault  vault.Vault
	tz     *time.Location
	logger *log.Logger
}

func NewService(v vault.Vault, tz *time.Location, logger *log.Logger) *Service {
	if tz == nil {
		tz = time.UTC
	}
	return &Service{vault: v, tz: tz, logger: logger}
}

// AppendResult reports where an entry landed.
type AppendResult struct {
	Path      string
	CommitSHA string
	Heading   string
	Content   string
}

// Note is one daily note read from the vault.
type Note struct {
	Path    string
	Content string
	Exists  bool
}

// day resolves the target note date. The zero value means today. Explicit
// dates are taken at face value, not shifted into the vault timezone.
func (s *Service) day(t time.Time) time.Time {
	if t.IsZero() {
		return timeNow().In(s.tz)
	}
	return t
}

// Append inserts a bullet under the named heading of the daily note for day
// (zero value: today). The entry carries an HH:MM prefix when stamp is true.
// Returns ErrNotFound when the note does not exist and ErrUnknownHeading for
// headings outside the template.
func (s *Service) Append(ctx context.Context, heading, content string, stamp bool, day time.Time) (AppendResult, error) {
	markdownHeading, err := note.ResolveHeading(heading)
	if err != nil {
		return AppendResult{}, fmt.Errorf("%w: %s (valid: %s)", ErrUnknownHeading, heading, strings.Join(note.Headings(), ", "))
	}

	path := note.DailyPath(s.day(day))
	f, err := s.vault.Get(ctx, path)
	if err != nil {
		return AppendResult{}, fmt.Errorf("failed to read daily note: %w", err)
	}
	if f == nil {
		return AppendResult{}, fmt.Errorf("%w: %s, create the daily note first", ErrNotFound, path)
	}

	entry := note.Bullet(content, time.Time{})
	if stamp {
		entry = note.Bullet(content, timeNow().In(s.tz))
	}
	updated := note.InsertAfterHeading(f.Content, markdownHeading, entry)

	message := fmt.Sprintf("Add to %s: %s...", heading, truncate(content, 50))
	sha, err := s.vault.Put(ctx, path, updated, message, f.SHA)
	if err != nil {
		return AppendResult{}, fmt.Errorf("failed to update daily note: %w", err)
	}

	s.logger.WithFields(log.Fields{"path": path, "heading": heading}).Debug("appended to daily note")
	return AppendResult{Path: path, CommitSHA: sha, Heading: heading, Content: content}, nil
}

// Get returns the daily note for day (zero value: today). A missing note is
// not an error; Exists is false.
func (s *Service) Get(ctx context.Context, day time.Time) (Note, error) {
	path := note.DailyPath(s.day(day))
	f, err := s.vault.Get(ctx, path)
	if err != nil {
		return Note{Path: path}, fmt.Errorf("failed to read daily note: %w", err)
	}
	if f == nil {
		return Note{Path: path}, nil
	}
	return Note{Path: path, Content: f.Content, Exists: true}, nil
}

// ReplaceSection swaps the body of a section in the daily note for day (zero
// value: today). Running it again with the same body leaves the note
// byte-identical.
func (s *Service) ReplaceSection(ctx context.Context, heading, body string, day time.Time) (string, error) {
	markdownHeading, err := note.ResolveHeading(heading)
	if err != nil {
		return "", fmt.Errorf("%w: %s (valid: %s)", ErrUnknownHeading, heading, strings.Join(note.Headings(), ", "))
	}

	path := note.DailyPath(s.day(day))
	f, err := s.vault.Get(ctx, path)
	if err != nil {
		return "", fmt.Errorf("failed to read daily note: %w", err)
	}
	if f == nil {
		return "", fmt.Errorf("%w: %s, create the daily note first", ErrNotFound, path)
	}

	updated := note.ReplaceSection(f.Content, markdownHeading, body)
	message := fmt.Sprintf("Update %s section", heading)
	if _, err := s.vault.Put(ctx, path, updated, message, f.SHA); err != nil {
		return "", fmt.Errorf("failed to update daily note: %w", err)
	}
	return path, nil
}

func truncate(s string, n int) string {
	if runes := []rune(s); len(runes) > n {
		return string(runes[:n])
	}
	return s
}
