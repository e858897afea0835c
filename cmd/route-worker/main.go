package main

import (
	"context"
	"crypto/tls"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"
	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/knight-systems/productivity-service/domain"
	"github.com/knight-systems/productivity-service/storage"
)

func main() {
	if dbg, err := strconv.ParseBool(os.Getenv("DEBUG")); err == nil && dbg {
		log.SetLevel(log.DebugLevel)
	}
	log.Info("route worker starting")

	connStr := os.Getenv("STORAGE_CONNECTION_STRING")
	capturesTable := os.Getenv("CAPTURES_TABLE")
	queueItemsTable := os.Getenv("QUEUE_ITEMS_TABLE")
	eventsQueue := os.Getenv("CAPTURE_EVENTS_QUEUE")
	if connStr == "" || capturesTable == "" || queueItemsTable == "" || eventsQueue == "" {
		log.Fatal("missing storage config")
	}

	store, err := storage.New(connStr, capturesTable, queueItemsTable, eventsQueue)
	if err != nil {
		log.Fatalf("storage: %v", err)
	}

	redisConn := os.Getenv("REDIS_CONNECTION_STRING")
	if redisConn == "" {
		log.Fatal("missing redis config")
	}
	rc := redis.NewClient(redisOptions(redisConn))

	cacheTTL := 10 * time.Minute
	if v := os.Getenv("STATS_CACHE_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			log.Fatalf("invalid STATS_CACHE_TTL: %v", err)
		}
		cacheTTL = d
	}
	cache := storage.NewStatsCache(store, rc, cacheTTL, log.StandardLogger())

	channel := os.Getenv("CAPTURES_CHANNEL")
	if channel == "" {
		channel = "captures"
	}
	pollInterval := time.Second
	if v := os.Getenv("POLL_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			log.Fatalf("invalid POLL_INTERVAL: %v", err)
		}
		pollInterval = d
	}

	ctx := context.Background()
	a := applier{store: store}
	for {
		msg, err := store.DequeueCapture(ctx)
		if err != nil {
			log.Errorf("receive: %v", err)
			time.Sleep(pollInterval)
			continue
		}
		if msg == nil {
			time.Sleep(pollInterval)
			continue
		}

		payload := ""
		if msg.MessageText != nil {
			payload = *msg.MessageText
		}
		var ev domain.CaptureEvent
		if err := sonic.UnmarshalString(payload, &ev); err != nil {
			log.Errorf("malformed capture event, dropping: %v", err)
			deleteMessage(ctx, store, msg)
			continue
		}

		// Apply failures keep the message queued for redelivery.
		if err := processEvent(ctx, a, cache, rc, channel, ev, payload); err != nil {
			log.Errorf("apply capture %s: %v", ev.ID, err)
			continue
		}
		deleteMessage(ctx, store, msg)
	}
}

func deleteMessage(ctx context.Context, store *storage.Storage, msg *azqueue.DequeuedMessage) {
	if msg.MessageID == nil || msg.PopReceipt == nil {
		return
	}
	if err := store.DeleteCapture(ctx, *msg.MessageID, *msg.PopReceipt); err != nil {
		log.Errorf("delete message %s: %v", *msg.MessageID, err)
	}
}

func redisOptions(connStr string) *redis.Options {
	opts, err := redis.ParseURL(connStr)
	if err == nil {
		return opts
	}
	parts := strings.Split(connStr, ",")
	opts = &redis.Options{Addr: parts[0]}
	for _, p := range parts[1:] {
		kv := strings.SplitN(p, "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch strings.ToLower(kv[0]) {
		case "password":
			opts.Password = kv[1]
		case "ssl":
			if strings.ToLower(kv[1]) == "true" {
				opts.TLSConfig = &tls.Config{}
			}
		}
	}
	return opts
}
