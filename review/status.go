package review

import (
	"context"
	"errors"
	"fmt"

	"github.com/knight-systems/productivity-service/domain"
	"github.com/knight-systems/productivity-service/note"
	"github.com/knight-systems/productivity-service/vault"
)

// ErrNotFound marks an item id present in neither ReadQueue nor Bookmarks.
var ErrNotFound = errors.New("queue item not found")

// ConsumeResult reports the outcome of a consume or status update.
type ConsumeResult struct {
	Success    bool   `json:"success"`
	BookmarkID string `json:"bookmark_id"`
	Status     string `json:"status"`
	ConsumedAt string `json:"consumed_at,omitempty"`
	Error      string `json:"error,omitempty"`
}

// locate looks an item up in ReadQueue first, then Bookmarks, since consumed
// items may have been moved.
func (s *Service) locate(ctx context.Context, itemID string) (string, *vault.File, error) {
	path := note.QueueFolder + "/" + itemID + ".md"
	f, err := s.vault.Get(ctx, path)
	if err != nil || f != nil {
		return path, f, err
	}
	path = note.BookmarkFolder + "/" + itemID + ".md"
	f, err = s.vault.Get(ctx, path)
	return path, f, err
}

// Consume marks an item consumed: stamps queue_status, consumed_at and
// last_touched in the frontmatter and appends any takeaways under Notes.
// A missing item returns ErrNotFound; other failures report in-band.
func (s *Service) Consume(ctx context.Context, itemID, notes string) (ConsumeResult, error) {
	now := timeNow().In(s.tz)
	consumedAt := now.Format("2006-01-02 15:04")

	path, f, err := s.locate(ctx, itemID)
	if err != nil {
		return s.opFailure(itemID, "consume", err), nil
	}
	if f == nil {
		return ConsumeResult{}, ErrNotFound
	}

	content := note.UpdateFrontmatterField(f.Content, "queue_status", domain.StatusConsumed)
	content = note.UpdateFrontmatterField(content, "consumed_at", consumedAt)
	content = note.UpdateFrontmatterField(content, "last_touched", now.Format("2006-01-02"))
	if notes != "" {
		content = note.AppendUnderNotes(content, notes)
	}

	if _, err := s.vault.Put(ctx, path, content, "Mark consumed: "+itemID, f.SHA); err != nil {
		return s.opFailure(itemID, "consume", err), nil
	}
	return ConsumeResult{
		Success:    true,
		BookmarkID: itemID,
		Status:     domain.StatusConsumed,
		ConsumedAt: consumedAt,
	}, nil
}

// UpdateStatus sets queue_status, useful for marking items as reading or
// archived. Marking consumed also stamps consumed_at.
func (s *Service) UpdateStatus(ctx context.Context, itemID, status string) (ConsumeResult, error) {
	now := timeNow().In(s.tz)

	path, f, err := s.locate(ctx, itemID)
	if err != nil {
		return s.opFailure(itemID, "status update", err), nil
	}
	if f == nil {
		return ConsumeResult{}, ErrNotFound
	}

	content := note.UpdateFrontmatterField(f.Content, "queue_status", status)
	content = note.UpdateFrontmatterField(content, "last_touched", now.Format("2006-01-02"))

	consumedAt := ""
	if status == domain.StatusConsumed {
		consumedAt = now.Format("2006-01-02 15:04")
		content = note.UpdateFrontmatterField(content, "consumed_at", consumedAt)
	}

	message := fmt.Sprintf("Update status to %s: %s", status, itemID)
	if _, err := s.vault.Put(ctx, path, content, message, f.SHA); err != nil {
		return s.opFailure(itemID, "status update", err), nil
	}
	return ConsumeResult{
		Success:    true,
		BookmarkID: itemID,
		Status:     status,
		ConsumedAt: consumedAt,
	}, nil
}

func (s *Service) opFailure(itemID, op string, err error) ConsumeResult {
	s.logger.WithError(err).WithField("itemId", itemID).Error("queue " + op + " failed")
	return ConsumeResult{
		Success:    false,
		BookmarkID: itemID,
		Status:     domain.StatusUnread,
		Error:      err.Error(),
	}
}
