package storage

// Entity represents base table entity keys.
type Entity struct {
	PartitionKey string `json:"PartitionKey"`
	RowKey       string `json:"RowKey"`
}

const EdmInt64 = "Edm.Int64"

// QueuePartition is the single partition of the queue-items read model.
const QueuePartition = "queue"

// CaptureEntity is one row of the capture journal. The partition key is the
// capture kind, the row key the event id.
type CaptureEntity struct {
	Entity
	Action             string `json:"Action"`
	Title              string `json:"Title,omitempty"`
	URL                string `json:"URL,omitempty"`
	Path               string `json:"Path,omitempty"`
	RoutedTo           string `json:"RoutedTo,omitempty"`
	Fallback           bool   `json:"Fallback,omitempty"`
	ContentType        string `json:"ContentType,omitempty"`
	Priority           string `json:"Priority,omitempty"`
	Status             string `json:"Status,omitempty"`
	EstimatedTime      int    `json:"EstimatedTime,omitempty"`
	EventTimestamp     int64  `json:"EventTimestamp,string"`
	EventTimestampType string `json:"EventTimestamp@odata.type"`
}

// QueueItemEntity is one row of the queue-items read model.
type QueueItemEntity struct {
	Entity
	Title           string `json:"Title,omitempty"`
	URL             string `json:"URL,omitempty"`
	ContentType     string `json:"ContentType,omitempty"`
	Priority        string `json:"Priority,omitempty"`
	Status          string `json:"Status,omitempty"`
	EstimatedTime   int    `json:"EstimatedTime,omitempty"`
	AddedAt         int64  `json:"AddedAt,string"`
	AddedAtType     string `json:"AddedAt@odata.type"`
	LastTouched     int64  `json:"LastTouched,string"`
	LastTouchedType string `json:"LastTouched@odata.type"`
	ConsumedAt      int64  `json:"ConsumedAt,omitempty,string"`
	ConsumedAtType  string `json:"ConsumedAt@odata.type,omitempty"`
}

// QueueItemUpdate carries partial updates for a read-model row.
type QueueItemUpdate struct {
	Entity
	Status          *string `json:"Status,omitempty"`
	LastTouched     *int64  `json:"LastTouched,omitempty,string"`
	LastTouchedType *string `json:"LastTouched@odata.type,omitempty"`
	ConsumedAt      *int64  `json:"ConsumedAt,omitempty,string"`
	ConsumedAtType  *string `json:"ConsumedAt@odata.type,omitempty"`
}
