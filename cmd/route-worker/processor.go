package main

import (
	"context"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/knight-systems/productivity-service/domain"
)

type eventApplier interface {
	Apply(ctx context.Context, ev domain.CaptureEvent) error
}

type statsRefresher interface {
	Refresh(ctx context.Context)
}

// processEvent applies one capture event to the read model, refreshes the
// stats cache for queue changes and notifies subscribers. A failed apply is
// returned so the message stays on the queue; a failed publish is only
// logged.
func processEvent(ctx context.Context, a eventApplier, cache statsRefresher, rc *redis.Client, channel string, ev domain.CaptureEvent, payload string) error {
	if err := a.Apply(ctx, ev); err != nil {
		return err
	}
	if cache != nil && ev.Kind == domain.KindQueue {
		cache.Refresh(ctx)
	}
	if err := rc.Publish(ctx, channel, payload).Err(); err != nil {
		log.Errorf("Unable to publish capture %s to %s", ev.ID, channel)
	}
	return nil
}
