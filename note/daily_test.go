package note

import (
	"testing"
	"time"
)

func TestDailyPath(t *testing.T) {
	day := time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)
	want := "20 - Journal/21 - Daily/2025/2025-03-14 Fri.md"
	if got := DailyPath(day); got != want {
		t.Fatalf("DailyPath = %q, want %q", got, want)
	}
}

func TestResolveHeading(t *testing.T) {
	h, err := ResolveHeading("Brain Dump")
	if err != nil {
		t.Fatalf("resolve known heading: %v", err)
	}
	if h != "## ☕ Brain Dump" {
		t.Fatalf("unexpected heading: %q", h)
	}

	custom, err := ResolveHeading("## Custom Section")
	if err != nil {
		t.Fatalf("resolve literal heading: %v", err)
	}
	if custom != "## Custom Section" {
		t.Fatalf("literal heading should pass through, got %q", custom)
	}

	if _, err := ResolveHeading("Unknown"); err == nil {
		t.Fatal("expected error for unknown heading")
	}
}

func TestBullet(t *testing.T) {
	stamp := time.Date(2025, 3, 14, 7, 5, 0, 0, time.UTC)
	if got := Bullet("call the bank", stamp); got != "- 07:05 call the bank\n" {
		t.Fatalf("unexpected bullet: %q", got)
	}
	if got := Bullet("no stamp", time.Time{}); got != "- no stamp\n" {
		t.Fatalf("unexpected unstamped bullet: %q", got)
	}
}
