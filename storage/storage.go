// Package storage provides the Azure-backed capture pipeline persistence:
// the capture-events queue, the capture journal table and the queue-items
// read model, plus the Redis statistics cache on top of it.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"
	"github.com/bytedance/sonic"

	"github.com/knight-systems/productivity-service/domain"
)

// Storage provides access to underlying persistence mechanisms.
type Storage struct {
	captureTable   *aztables.Client
	queueItemTable *aztables.Client
	eventQueue     *azqueue.QueueClient
}

// New creates a Storage instance from the given connection string.
func New(connStr, capturesTable, queueItemsTable, eventsQueue string) (*Storage, error) {
	tablesClientOptions := aztables.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    3,
				TryTimeout:    time.Minute * 3,
				RetryDelay:    time.Second * 1,
				MaxRetryDelay: time.Second * 15,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	svc, err := aztables.NewServiceClientFromConnectionString(connStr, &tablesClientOptions)
	if err != nil {
		return nil, err
	}
	queueClientOptions := azqueue.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    5,
				TryTimeout:    time.Minute * 5,
				RetryDelay:    time.Second * 1,
				MaxRetryDelay: time.Second * 60,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	q, err := azqueue.NewQueueClientFromConnectionString(connStr, eventsQueue, &queueClientOptions)
	if err != nil {
		return nil, err
	}
	return &Storage{
		captureTable:   svc.NewClient(capturesTable),
		queueItemTable: svc.NewClient(queueItemsTable),
		eventQueue:     q,
	}, nil
}

// EnqueueCapture sends one capture event to the events queue.
func (s *Storage) EnqueueCapture(ctx context.Context, ev domain.CaptureEvent) error {
	data, err := sonic.Marshal(ev)
	if err != nil {
		return err
	}
	_, err = s.eventQueue.EnqueueMessage(ctx, string(data), nil)
	return err
}

// DequeueCapture retrieves a single message from the events queue, nil when
// the queue is empty.
func (s *Storage) DequeueCapture(ctx context.Context) (*azqueue.DequeuedMessage, error) {
	resp, err := s.eventQueue.DequeueMessage(ctx, nil)
	if err != nil {
		return nil, err
	}
	if len(resp.Messages) == 0 {
		return nil, nil
	}
	return resp.Messages[0], nil
}

// DeleteCapture removes a processed message from the queue.
func (s *Storage) DeleteCapture(ctx context.Context, id, receipt string) error {
	_, err := s.eventQueue.DeleteMessage(ctx, id, receipt, nil)
	return err
}

// UpsertCapture creates or replaces a journal row. Redelivered events write
// the same row again, which keeps the journal idempotent.
func (s *Storage) UpsertCapture(ctx context.Context, ent CaptureEntity) error {
	payload, err := sonic.Marshal(ent)
	if err == nil {
		_, err = s.captureTable.UpsertEntity(ctx, payload, nil)
	}
	return err
}

// GetQueueItem retrieves a read-model row if present.
func (s *Storage) GetQueueItem(ctx context.Context, id string) (*QueueItemEntity, error) {
	ent, err := s.queueItemTable.GetEntity(ctx, QueuePartition, id, nil)
	if err != nil {
		var respErr *azcore.ResponseError
		if errors.As(err, &respErr) && respErr.StatusCode == 404 {
			return nil, nil
		}
		return nil, err
	}
	var item QueueItemEntity
	if err := sonic.Unmarshal(ent.Value, &item); err != nil {
		return nil, err
	}
	return &item, nil
}

// UpsertQueueItem creates or replaces a read-model row.
func (s *Storage) UpsertQueueItem(ctx context.Context, ent QueueItemEntity) error {
	payload, err := sonic.Marshal(ent)
	if err == nil {
		_, err = s.queueItemTable.UpsertEntity(ctx, payload, nil)
	}
	return err
}

// MergeQueueItem merges partial updates into a read-model row. Insert-or-merge
// keeps a status event that overtook its add event from poisoning the queue.
func (s *Storage) MergeQueueItem(ctx context.Context, upd QueueItemUpdate) error {
	payload, err := sonic.Marshal(upd)
	if err == nil {
		_, err = s.queueItemTable.UpsertEntity(ctx, payload, &aztables.UpsertEntityOptions{UpdateMode: aztables.UpdateModeMerge})
	}
	return err
}

// ListQueueItems scans the read-model partition.
func (s *Storage) ListQueueItems(ctx context.Context) ([]QueueItemEntity, error) {
	filter := "PartitionKey eq '" + QueuePartition + "'"
	pager := s.queueItemTable.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})
	items := []QueueItemEntity{}
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, e := range resp.Entities {
			var item QueueItemEntity
			if err := sonic.Unmarshal(e, &item); err != nil {
				return nil, err
			}
			items = append(items, item)
		}
	}
	return items, nil
}
