package storage

import (
	"strings"
	"testing"

	"github.com/bytedance/sonic"

	"github.com/knight-systems/productivity-service/domain"
)

func TestQueueItemEntityAnnotatesTimestamps(t *testing.T) {
	ent := QueueItemEntity{
		Entity:          Entity{PartitionKey: QueuePartition, RowKey: "2025-03-14-go-generics"},
		Title:           "Go Generics",
		ContentType:     domain.ContentArticle,
		Priority:        domain.PriorityMustRead,
		Status:          domain.StatusUnread,
		EstimatedTime:   15,
		AddedAt:         1742000000,
		AddedAtType:     EdmInt64,
		LastTouched:     1742000000,
		LastTouchedType: EdmInt64,
	}
	data, err := sonic.Marshal(ent)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	payload := string(data)
	for _, want := range []string{
		`"AddedAt":"1742000000"`,
		`"AddedAt@odata.type":"Edm.Int64"`,
		`"LastTouched":"1742000000"`,
		`"LastTouched@odata.type":"Edm.Int64"`,
	} {
		if !strings.Contains(payload, want) {
			t.Fatalf("payload missing %s: %s", want, payload)
		}
	}
	if strings.Contains(payload, "ConsumedAt") {
		t.Fatalf("unset ConsumedAt should be omitted: %s", payload)
	}
}

func TestDecodeQueueItemEntity(t *testing.T) {
	data := []byte(`{"PartitionKey":"queue","RowKey":"2025-03-14-go-generics","Title":"Go Generics","ContentType":"article","Priority":"must-read","Status":"unread","EstimatedTime":15,"AddedAt":"1742000000","AddedAt@odata.type":"Edm.Int64","LastTouched":"1742000000","LastTouched@odata.type":"Edm.Int64"}`)
	var ent QueueItemEntity
	if err := sonic.Unmarshal(data, &ent); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if ent.PartitionKey != QueuePartition || ent.RowKey != "2025-03-14-go-generics" {
		t.Fatalf("unexpected keys: %+v", ent.Entity)
	}
	if ent.AddedAt != 1742000000 || ent.LastTouched != 1742000000 {
		t.Fatalf("timestamps not decoded: %+v", ent)
	}
	if ent.EstimatedTime != 15 || ent.Priority != domain.PriorityMustRead {
		t.Fatalf("unexpected entity: %+v", ent)
	}
}

func TestDecodeCaptureEvent(t *testing.T) {
	data := []byte(`{"id":"ev-1","kind":"queue","action":"created","title":"Go Generics","url":"https://go.dev/blog/generics","path":"ReadQueue/2025-03-14-go-generics.md","routedTo":"maildrop","contentType":"article","priority":"must-read","estimatedTime":15,"timestamp":1742000000}`)
	var ev domain.CaptureEvent
	if err := sonic.Unmarshal(data, &ev); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if ev.ID != "ev-1" || ev.Kind != domain.KindQueue || ev.Action != domain.ActionCreated {
		t.Fatalf("unexpected event: %+v", ev)
	}
	if ev.EstimatedTime != 15 || ev.Timestamp != 1742000000 {
		t.Fatalf("numeric fields not decoded: %+v", ev)
	}
}
