package tasks

import "testing"

func TestDecodeActions(t *testing.T) {
	items, err := decodeActions("```json\n[{\"title\":\"Schedule dentist appointment\",\"context\":\"Brain Dump\"},{\"title\":\"\",\"context\":\"Journal\"}]\n```")
	if err != nil {
		t.Fatalf("decodeActions returned error: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("expected 1 item after dropping the untitled one, got %d", len(items))
	}
	if items[0].Title != "Schedule dentist appointment" || items[0].Context != "Brain Dump" {
		t.Fatalf("unexpected item: %+v", items[0])
	}
}

func TestDecodeActionsEmptyArray(t *testing.T) {
	items, err := decodeActions("[]")
	if err != nil {
		t.Fatalf("decodeActions returned error: %v", err)
	}
	if len(items) != 0 {
		t.Fatalf("expected no items, got %v", items)
	}
}

func TestDecodeActionsRejectsGarbage(t *testing.T) {
	if _, err := decodeActions("no tasks today, boss"); err == nil {
		t.Fatal("expected decode error")
	}
}
