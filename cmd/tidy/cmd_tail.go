package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/knight-systems/productivity-service/domain"
)

func init() {
	rootCmd.AddCommand(tailCmd)
}

var tailCmd = &cobra.Command{
	Use:   "tail",
	Short: "Stream capture events as the route worker publishes them",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		rc := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer rc.Close()

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		fmt.Printf("listening on %q (ctrl-c to stop)\n", cfg.CapturesChannel)
		for {
			sub := rc.Subscribe(ctx, cfg.CapturesChannel)
			ch := sub.Channel()
		receive:
			for {
				select {
				case <-ctx.Done():
					sub.Close()
					return nil
				case msg, ok := <-ch:
					if !ok {
						break receive
					}
					printEvent(msg.Payload)
				}
			}
			sub.Close()
			if ctx.Err() != nil {
				return nil
			}
			log.Warn("pubsub channel closed, reconnecting")
			time.Sleep(time.Second)
		}
	},
}

func printEvent(payload string) {
	var ev domain.CaptureEvent
	if err := sonic.UnmarshalString(payload, &ev); err != nil {
		fmt.Printf("%s  %s\n", time.Now().Format("15:04:05"), payload)
		return
	}
	when := time.Now()
	if ev.Timestamp > 0 {
		// Event timestamps are unix nanoseconds.
		when = time.Unix(0, ev.Timestamp)
	}
	subject := ev.Title
	if subject == "" {
		subject = ev.Path
	}
	fmt.Printf("%s  %-8s %-14s %s\n", when.Local().Format("15:04:05"), ev.Kind, ev.Action, subject)
}
