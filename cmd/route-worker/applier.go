package main

import (
	"context"
	"path"
	"strings"

	"github.com/knight-systems/productivity-service/domain"
	"github.com/knight-systems/productivity-service/storage"
)

type eventStore interface {
	UpsertCapture(ctx context.Context, ent storage.CaptureEntity) error
	UpsertQueueItem(ctx context.Context, ent storage.QueueItemEntity) error
	MergeQueueItem(ctx context.Context, upd storage.QueueItemUpdate) error
}

// applier folds capture events into the journal and the queue-items read
// model. Every event lands in the journal; only queue events touch the
// read model.
type applier struct {
	store eventStore
}

func (a applier) Apply(ctx context.Context, ev domain.CaptureEvent) error {
	if err := a.store.UpsertCapture(ctx, captureRow(ev)); err != nil {
		return err
	}
	if ev.Kind != domain.KindQueue {
		return nil
	}
	itemID := queueItemID(ev.Path)
	if itemID == "" {
		return nil
	}
	switch ev.Action {
	case domain.ActionCreated:
		return a.store.UpsertQueueItem(ctx, queueItemRow(itemID, ev))
	case domain.ActionConsumed, domain.ActionStatusChanged:
		return a.store.MergeQueueItem(ctx, queueItemUpdate(itemID, ev))
	}
	return nil
}

func captureRow(ev domain.CaptureEvent) storage.CaptureEntity {
	return storage.CaptureEntity{
		Entity:             storage.Entity{PartitionKey: ev.Kind, RowKey: ev.ID},
		Action:             ev.Action,
		Title:              ev.Title,
		URL:                ev.URL,
		Path:               ev.Path,
		RoutedTo:           ev.RoutedTo,
		Fallback:           ev.Fallback,
		ContentType:        ev.ContentType,
		Priority:           ev.Priority,
		Status:             ev.Status,
		EstimatedTime:      ev.EstimatedTime,
		EventTimestamp:     ev.Timestamp,
		EventTimestampType: storage.EdmInt64,
	}
}

// queueItemID derives the read-model row key from the note path the event
// references.
func queueItemID(notePath string) string {
	if notePath == "" {
		return ""
	}
	return strings.TrimSuffix(path.Base(notePath), ".md")
}

func queueItemRow(itemID string, ev domain.CaptureEvent) storage.QueueItemEntity {
	status := ev.Status
	if status == "" {
		status = domain.StatusUnread
	}
	return storage.QueueItemEntity{
		Entity:          storage.Entity{PartitionKey: storage.QueuePartition, RowKey: itemID},
		Title:           ev.Title,
		URL:             ev.URL,
		ContentType:     ev.ContentType,
		Priority:        ev.Priority,
		Status:          status,
		EstimatedTime:   ev.EstimatedTime,
		AddedAt:         ev.Timestamp,
		AddedAtType:     storage.EdmInt64,
		LastTouched:     ev.Timestamp,
		LastTouchedType: storage.EdmInt64,
	}
}

func queueItemUpdate(itemID string, ev domain.CaptureEvent) storage.QueueItemUpdate {
	upd := storage.QueueItemUpdate{
		Entity: storage.Entity{PartitionKey: storage.QueuePartition, RowKey: itemID},
	}
	if ev.Status != "" {
		status := ev.Status
		upd.Status = &status
	}
	ts := ev.Timestamp
	tsType := storage.EdmInt64
	upd.LastTouched = &ts
	upd.LastTouchedType = &tsType
	if ev.Action == domain.ActionConsumed {
		consumedAt := ev.Timestamp
		consumedType := storage.EdmInt64
		upd.ConsumedAt = &consumedAt
		upd.ConsumedAtType = &consumedType
	}
	return upd
}
