package bookmarks

import (
	"context"
	"errors"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"

	"github.com/knight-systems/productivity-service/dailynote"
	"github.com/knight-systems/productivity-service/fetch"
	"github.com/knight-systems/productivity-service/vault"
)

type memVault struct {
	files   map[string]string
	commits []string
	putErr  error
}

func newMemVault() *memVault {
	return &memVault{files: map[string]string{}}
}

func (m *memVault) Get(_ context.Context, path string) (*vault.File, error) {
	c, ok := m.files[path]
	if !ok {
		return nil, nil
	}
	return &vault.File{Content: c, SHA: "sha-" + path}, nil
}

func (m *memVault) Put(_ context.Context, path, content, message, _ string) (string, error) {
	if m.putErr != nil {
		return "", m.putErr
	}
	m.files[path] = content
	m.commits = append(m.commits, message)
	return "commit", nil
}

func (m *memVault) Append(ctx context.Context, path, content, message string) (string, error) {
	existing := m.files[path]
	return m.Put(ctx, path, existing+content, message, "")
}

func (m *memVault) Exists(_ context.Context, path string) (bool, error) {
	_, ok := m.files[path]
	return ok, nil
}

func (m *memVault) List(_ context.Context, folder string) ([]string, error) {
	var out []string
	for p := range m.files {
		if strings.HasPrefix(p, folder+"/") {
			out = append(out, p)
		}
	}
	sort.Strings(out)
	return out, nil
}

type stubFetcher struct {
	meta         *fetch.Metadata
	metaErr      error
	content      *fetch.Content
	contentErr   error
	metaCalls    int
	contentCalls int
}

func (s *stubFetcher) Metadata(context.Context, string) (*fetch.Metadata, error) {
	s.metaCalls++
	return s.meta, s.metaErr
}

func (s *stubFetcher) Content(context.Context, string) (*fetch.Content, error) {
	s.contentCalls++
	return s.content, s.contentErr
}

type stubEnricher struct {
	enrichRes   *Enrichment
	enrichErr   error
	tagRes      *Enrichment
	tagErr      error
	enrichCalls int
	tagCalls    int
}

func (s *stubEnricher) Enrich(context.Context, string, string) (*Enrichment, error) {
	s.enrichCalls++
	return s.enrichRes, s.enrichErr
}

func (s *stubEnricher) Tag(context.Context, string) (*Enrichment, error) {
	s.tagCalls++
	return s.tagRes, s.tagErr
}

type stubDaily struct {
	entries []string
	err     error
}

func (s *stubDaily) Append(_ context.Context, heading, content string, _ bool, _ time.Time) (dailynote.AppendResult, error) {
	if s.err != nil {
		return dailynote.AppendResult{}, s.err
	}
	s.entries = append(s.entries, heading+": "+content)
	return dailynote.AppendResult{Path: "daily.md", Heading: heading, Content: content}, nil
}

func newTestService(v vault.Vault, fetcher PageFetcher, enricher ContentEnricher, daily DailyAppender) *Service {
	logger, _ := test.NewNullLogger()
	return NewService(Config{Vault: v, Fetcher: fetcher, Enricher: enricher, Daily: daily, Timezone: time.UTC}, logger)
}

func withFixedNow(t *testing.T, fixed time.Time) {
	t.Helper()
	prev := timeNow
	timeNow = func() time.Time { return fixed }
	t.Cleanup(func() { timeNow = prev })
}

func TestSaveQuickUsesRequestDataOnly(t *testing.T) {
	withFixedNow(t, time.Date(2025, 3, 14, 10, 0, 0, 0, time.UTC))
	v := newMemVault()
	fetcher := &stubFetcher{}
	daily := &stubDaily{}
	svc := newTestService(v, fetcher, nil, daily)

	res := svc.Save(context.Background(), SaveRequest{
		URL:             "https://example.com/tools/widget",
		Mode:            ModeQuick,
		Title:           "Widget Toolbox",
		MetaDescription: "A toolbox of widgets.",
		Notes:           "for the side project",
		Tags:            []string{"tools"},
	})

	if !res.Success {
		t.Fatalf("save failed: %s", res.Error)
	}
	if fetcher.metaCalls != 0 || fetcher.contentCalls != 0 {
		t.Fatalf("quick mode must not fetch, got %d/%d calls", fetcher.metaCalls, fetcher.contentCalls)
	}
	if res.BookmarkID != "2025-03-14-widget-toolbox" {
		t.Fatalf("unexpected bookmark id: %q", res.BookmarkID)
	}
	if res.ModeUsed != ModeQuick {
		t.Fatalf("mode_used = %q, want quick", res.ModeUsed)
	}
	if res.Summary != "A toolbox of widgets." {
		t.Fatalf("unexpected summary: %q", res.Summary)
	}
	if !res.DailyNoteUpdated {
		t.Fatal("daily note should be updated")
	}
	if len(daily.entries) != 1 || daily.entries[0] != "Bookmarks: [Widget Toolbox](https://example.com/tools/widget) - for the side project" {
		t.Fatalf("unexpected daily entries: %v", daily.entries)
	}

	file := v.files["Bookmarks/2025-03-14-widget-toolbox.md"]
	if !strings.Contains(file, "tags: [bookmark, other, tools]") {
		t.Fatalf("unexpected tags line:\n%s", file)
	}
	if len(v.commits) != 1 || v.commits[0] != "Add bookmark: Widget Toolbox" {
		t.Fatalf("unexpected commits: %v", v.commits)
	}
}

func TestSaveAutoKeepsQualityMetadata(t *testing.T) {
	withFixedNow(t, time.Date(2025, 3, 14, 10, 0, 0, 0, time.UTC))
	v := newMemVault()
	fetcher := &stubFetcher{meta: &fetch.Metadata{
		URL:         "https://github.com/golang/go",
		Title:       "The Go Programming Language",
		Description: "Go is an open source programming language.",
	}}
	enricher := &stubEnricher{tagRes: &Enrichment{Tags: []string{"golang", "compilers"}, Category: "tech"}}
	svc := newTestService(v, fetcher, enricher, &stubDaily{})

	res := svc.Save(context.Background(), SaveRequest{URL: "https://github.com/golang/go"})

	if !res.Success {
		t.Fatalf("save failed: %s", res.Error)
	}
	if res.ModeUsed != ModeQuick {
		t.Fatalf("mode_used = %q, want quick", res.ModeUsed)
	}
	if enricher.tagCalls != 1 || enricher.enrichCalls != 0 {
		t.Fatalf("expected lightweight tagging only, got tag=%d enrich=%d", enricher.tagCalls, enricher.enrichCalls)
	}
	if fetcher.contentCalls != 0 {
		t.Fatal("quality metadata must not trigger a full fetch")
	}
	if res.Summary != "Go is an open source programming language." {
		t.Fatalf("unexpected summary: %q", res.Summary)
	}
	if res.Category != "tech" {
		t.Fatalf("unexpected category: %q", res.Category)
	}
	file := v.files["Bookmarks/2025-03-14-the-go-programming-language.md"]
	if !strings.Contains(file, "tags: [bookmark, tech, golang, compilers]") {
		t.Fatalf("unexpected tags line:\n%s", file)
	}
}

func TestSaveAutoEscalatesToRich(t *testing.T) {
	withFixedNow(t, time.Date(2025, 3, 14, 10, 0, 0, 0, time.UTC))
	v := newMemVault()
	fetcher := &stubFetcher{
		meta:    &fetch.Metadata{URL: "https://blog.example.com/post", Title: "Post"},
		content: &fetch.Content{URL: "https://blog.example.com/post", Text: "Long body text."},
	}
	enricher := &stubEnricher{enrichRes: &Enrichment{
		Summary:  "A model-written summary.",
		Tags:     []string{"essays"},
		Category: "article",
	}}
	svc := newTestService(v, fetcher, enricher, &stubDaily{})

	res := svc.Save(context.Background(), SaveRequest{URL: "https://blog.example.com/post"})

	if !res.Success {
		t.Fatalf("save failed: %s", res.Error)
	}
	if res.ModeUsed != ModeRich {
		t.Fatalf("mode_used = %q, want rich", res.ModeUsed)
	}
	if fetcher.contentCalls != 1 || enricher.enrichCalls != 1 {
		t.Fatalf("expected full fetch + enrichment, got content=%d enrich=%d", fetcher.contentCalls, enricher.enrichCalls)
	}
	if res.Summary != "A model-written summary." {
		t.Fatalf("unexpected summary: %q", res.Summary)
	}
	if res.Category != "article" {
		t.Fatalf("unexpected category: %q", res.Category)
	}
}

func TestSaveRichSurvivesEnrichmentFailure(t *testing.T) {
	withFixedNow(t, time.Date(2025, 3, 14, 10, 0, 0, 0, time.UTC))
	v := newMemVault()
	fetcher := &stubFetcher{
		meta: &fetch.Metadata{
			URL:           "https://github.com/golang/go",
			Title:         "The Go Programming Language",
			OGDescription: "Go is expressive, concise, clean.",
		},
		content: &fetch.Content{Text: "body"},
	}
	enricher := &stubEnricher{enrichErr: errors.New("model unavailable")}
	svc := newTestService(v, fetcher, enricher, &stubDaily{})

	res := svc.Save(context.Background(), SaveRequest{URL: "https://github.com/golang/go", Mode: ModeRich})

	if !res.Success {
		t.Fatalf("save failed: %s", res.Error)
	}
	if res.Summary != "Go is expressive, concise, clean." {
		t.Fatalf("summary should fall back to metadata, got %q", res.Summary)
	}
	if res.Category != "tech" {
		t.Fatalf("category should fall back to heuristics, got %q", res.Category)
	}
}

func TestSaveDailyNoteFailureDoesNotFailSave(t *testing.T) {
	withFixedNow(t, time.Date(2025, 3, 14, 10, 0, 0, 0, time.UTC))
	v := newMemVault()
	daily := &stubDaily{err: errors.New("daily note not found")}
	svc := newTestService(v, nil, nil, daily)

	res := svc.Save(context.Background(), SaveRequest{URL: "https://example.com", Mode: ModeQuick, Title: "Example"})

	if !res.Success {
		t.Fatalf("save failed: %s", res.Error)
	}
	if res.DailyNoteUpdated {
		t.Fatal("daily_note_updated should be false")
	}
	if _, ok := v.files["Bookmarks/2025-03-14-example.md"]; !ok {
		t.Fatal("bookmark file should still be written")
	}
}

func TestSaveSecondTimeUpdates(t *testing.T) {
	withFixedNow(t, time.Date(2025, 3, 14, 10, 0, 0, 0, time.UTC))
	v := newMemVault()
	svc := newTestService(v, nil, nil, &stubDaily{})

	req := SaveRequest{URL: "https://example.com", Mode: ModeQuick, Title: "Example"}
	if res := svc.Save(context.Background(), req); !res.Success {
		t.Fatalf("first save failed: %s", res.Error)
	}
	if res := svc.Save(context.Background(), req); !res.Success {
		t.Fatalf("second save failed: %s", res.Error)
	}

	if len(v.commits) != 2 || v.commits[0] != "Add bookmark: Example" || v.commits[1] != "Update bookmark: Example" {
		t.Fatalf("unexpected commits: %v", v.commits)
	}
}

func TestSaveVaultErrorReportsFailure(t *testing.T) {
	withFixedNow(t, time.Date(2025, 3, 14, 10, 0, 0, 0, time.UTC))
	v := newMemVault()
	v.putErr = errors.New("github unavailable")
	svc := newTestService(v, nil, nil, &stubDaily{})

	res := svc.Save(context.Background(), SaveRequest{URL: "https://example.com", Mode: ModeQuick, Title: "Example"})

	if res.Success {
		t.Fatal("save should fail when the vault write fails")
	}
	if res.Status != "failed" {
		t.Fatalf("unexpected status: %q", res.Status)
	}
	if res.Error == "" {
		t.Fatal("error should be reported")
	}
}

func TestSaveRejectsUnknownMode(t *testing.T) {
	svc := newTestService(newMemVault(), nil, nil, nil)

	res := svc.Save(context.Background(), SaveRequest{URL: "https://example.com", Mode: "turbo"})

	if res.Success {
		t.Fatal("unknown mode should fail")
	}
	if !strings.Contains(res.Error, "unknown mode") {
		t.Fatalf("unexpected error: %q", res.Error)
	}
}

func TestSaveMetadataFetchFailureDegrades(t *testing.T) {
	withFixedNow(t, time.Date(2025, 3, 14, 10, 0, 0, 0, time.UTC))
	v := newMemVault()
	fetcher := &stubFetcher{metaErr: errors.New("timeout")}
	svc := newTestService(v, fetcher, nil, &stubDaily{})

	res := svc.Save(context.Background(), SaveRequest{URL: "https://www.example.com/deep/dive"})

	if !res.Success {
		t.Fatalf("save failed: %s", res.Error)
	}
	if res.Title != "Example.com Deep Dive" {
		t.Fatalf("title should derive from the URL, got %q", res.Title)
	}
	// Empty metadata is low quality, but without an enricher the rich path
	// degrades to a plain write.
	if res.ModeUsed != ModeRich {
		t.Fatalf("mode_used = %q, want rich", res.ModeUsed)
	}
}
