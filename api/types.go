package api

import (
	"context"
	"time"

	"github.com/knight-systems/productivity-service/bookmarks"
	"github.com/knight-systems/productivity-service/dailynote"
	"github.com/knight-systems/productivity-service/domain"
	"github.com/knight-systems/productivity-service/maildrop"
	"github.com/knight-systems/productivity-service/review"
	"github.com/knight-systems/productivity-service/routines"
	"github.com/knight-systems/productivity-service/tasks"
)

// Authenticator is implemented by types able to extract the request
// principal from Authorization headers.
type Authenticator interface {
	PrincipalFromAuthHeader(string) (string, error)
}

// Deduper prevents re-execution of captures that carry a previously seen
// idempotency key.
type Deduper interface {
	// Add records the idempotency key and returns true if it was newly added.
	Add(ctx context.Context, principal, key string) (bool, error)
	// Remove deletes a previously added key, used when the capture fails so
	// the caller may retry with the same key.
	Remove(ctx context.Context, principal, key string) error
}

// EventSink accepts capture events destined for the route worker.
type EventSink interface {
	EnqueueCapture(ctx context.Context, ev domain.CaptureEvent) error
}

// StatsSource serves the review-queue statistics read model.
type StatsSource interface {
	Stats(ctx context.Context) (domain.QueueStats, time.Time, error)
}

// TaskParser extracts structured task fields from free-form capture text.
type TaskParser interface {
	Parse(ctx context.Context, text string) tasks.ParseResult
}

// TaskCreator sends tasks into the task manager.
type TaskCreator interface {
	CreateTask(ctx context.Context, task domain.TaskFields) maildrop.TaskResult
}

// BookmarkSaver persists bookmarks into the vault.
type BookmarkSaver interface {
	Save(ctx context.Context, req bookmarks.SaveRequest) bookmarks.SaveResult
}

// QueueService implements the review-queue operations.
type QueueService interface {
	Add(ctx context.Context, req review.AddRequest) review.AddResult
	Consume(ctx context.Context, itemID, notes string) (review.ConsumeResult, error)
	UpdateStatus(ctx context.Context, itemID, status string) (review.ConsumeResult, error)
}

// DailyService edits and reads the vault's daily notes.
type DailyService interface {
	Append(ctx context.Context, heading, content string, stamp bool, day time.Time) (dailynote.AppendResult, error)
	Get(ctx context.Context, day time.Time) (dailynote.Note, error)
}

// RoutineService runs the morning and evening automations.
type RoutineService interface {
	Morning(ctx context.Context, req routines.MorningRequest) (routines.MorningResult, error)
	Evening(ctx context.Context, day time.Time) routines.EveningResult
}
