// Command tidy-daemon watches the configured folders and files a pending
// plan for every new file that settles. Plans are reviewed and executed
// with the tidy CLI; the daemon itself never moves anything.
package main

import (
	"context"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"

	"github.com/knight-systems/productivity-service/tidy"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Debug("no .env file")
	}
	if dbg, err := strconv.ParseBool(os.Getenv("DEBUG")); err == nil && dbg {
		log.SetLevel(log.DebugLevel)
	}

	configPath := os.Getenv("TIDY_CONFIG")
	if configPath == "" {
		configPath = tidy.DefaultConfigPath()
	}
	cfg, err := tidy.LoadConfig(configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	store, err := tidy.NewStore(cfg.DBPath)
	if err != nil {
		log.Fatalf("plan store: %v", err)
	}
	defer store.Close()

	watcher, err := tidy.NewWatcher(cfg, store, log.StandardLogger())
	if err != nil {
		log.Fatalf("watcher: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := watcher.Start(ctx); err != nil {
		log.Fatalf("start watcher: %v", err)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Infof("received %s, shutting down", sig)
	watcher.Stop()

	stats := watcher.Stats()
	log.WithFields(log.Fields{
		"queued":  stats.Queued,
		"planned": stats.Planned,
		"ignored": stats.Ignored,
		"errors":  stats.Errors,
	}).Info("watcher stopped")
}
