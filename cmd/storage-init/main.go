package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Provisions the tables and queue the API and route worker expect. Safe to
// run repeatedly; already-existing resources are not an error.
func main() {
	if dbg, err := strconv.ParseBool(os.Getenv("DEBUG")); err == nil && dbg {
		log.SetLevel(log.DebugLevel)
	}
	log.Info("storage init starting")

	connStr := os.Getenv("STORAGE_CONNECTION_STRING")
	capturesTable := os.Getenv("CAPTURES_TABLE")
	queueItemsTable := os.Getenv("QUEUE_ITEMS_TABLE")
	eventsQueue := os.Getenv("CAPTURE_EVENTS_QUEUE")
	if connStr == "" || capturesTable == "" || queueItemsTable == "" || eventsQueue == "" {
		log.Fatal("missing storage config")
	}

	// Each resource gets its own client, so creations run concurrently.
	eg, ctx := errgroup.WithContext(context.Background())
	for _, table := range []string{capturesTable, queueItemsTable} {
		eg.Go(func() error {
			if err := createTable(ctx, connStr, table); err != nil {
				return fmt.Errorf("create table %s: %w", table, err)
			}
			return nil
		})
	}
	eg.Go(func() error {
		if err := createQueue(ctx, connStr, eventsQueue); err != nil {
			return fmt.Errorf("create queue %s: %w", eventsQueue, err)
		}
		return nil
	})
	if err := eg.Wait(); err != nil {
		log.Fatal(err)
	}

	log.Info("storage init complete")
}

func createTable(ctx context.Context, connStr, name string) error {
	svc, err := aztables.NewServiceClientFromConnectionString(connStr, nil)
	if err != nil {
		return err
	}
	_, err = svc.NewClient(name).CreateTable(ctx, nil)
	if err != nil {
		var respErr *azcore.ResponseError
		if errors.As(err, &respErr) && respErr.ErrorCode == string(aztables.TableAlreadyExists) {
			log.Debugf("table %s already exists", name)
			return nil
		}
		return err
	}
	return nil
}

func createQueue(ctx context.Context, connStr, name string) error {
	q, err := azqueue.NewQueueClientFromConnectionString(connStr, name, nil)
	if err != nil {
		return err
	}
	_, err = q.Create(ctx, nil)
	if err != nil {
		var respErr *azcore.ResponseError
		if errors.As(err, &respErr) && respErr.ErrorCode == "QueueAlreadyExists" {
			log.Debugf("queue %s already exists", name)
			return nil
		}
		return err
	}
	return nil
}
