package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"github.com/knight-systems/productivity-service/bookmarks"
	"github.com/knight-systems/productivity-service/dailynote"
	"github.com/knight-systems/productivity-service/domain"
	"github.com/knight-systems/productivity-service/maildrop"
	"github.com/knight-systems/productivity-service/review"
	"github.com/knight-systems/productivity-service/routines"
	"github.com/knight-systems/productivity-service/tasks"
	"github.com/knight-systems/productivity-service/voice"
)

type stubAuth struct{}

func (stubAuth) PrincipalFromAuthHeader(string) (string, error) { return "user", nil }

type deniedAuth struct{}

func (deniedAuth) PrincipalFromAuthHeader(string) (string, error) {
	return "", errors.New("invalid token")
}

type recordingSink struct {
	mu     sync.Mutex
	events []domain.CaptureEvent
}

func (s *recordingSink) EnqueueCapture(_ context.Context, ev domain.CaptureEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	return nil
}

func (s *recordingSink) Events() []domain.CaptureEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.CaptureEvent, len(s.events))
	copy(out, s.events)
	return out
}

type stubParser struct {
	res   tasks.ParseResult
	calls int
	last  string
}

func (p *stubParser) Parse(_ context.Context, text string) tasks.ParseResult {
	p.calls++
	p.last = text
	return p.res
}

type stubCreator struct {
	res   maildrop.TaskResult
	calls int
	last  domain.TaskFields
}

func (cr *stubCreator) CreateTask(_ context.Context, f domain.TaskFields) maildrop.TaskResult {
	cr.calls++
	cr.last = f
	return cr.res
}

type stubBookmarks struct {
	res  bookmarks.SaveResult
	last bookmarks.SaveRequest
}

func (b *stubBookmarks) Save(_ context.Context, req bookmarks.SaveRequest) bookmarks.SaveResult {
	b.last = req
	return b.res
}

type stubQueue struct {
	addRes     review.AddResult
	lastAdd    review.AddRequest
	consumeRes review.ConsumeResult
	consumeErr error
	lastID     string
	lastNotes  string
	lastStatus string
}

func (q *stubQueue) Add(_ context.Context, req review.AddRequest) review.AddResult {
	q.lastAdd = req
	return q.addRes
}

func (q *stubQueue) Consume(_ context.Context, id, notes string) (review.ConsumeResult, error) {
	q.lastID = id
	q.lastNotes = notes
	return q.consumeRes, q.consumeErr
}

func (q *stubQueue) UpdateStatus(_ context.Context, id, status string) (review.ConsumeResult, error) {
	q.lastID = id
	q.lastStatus = status
	return q.consumeRes, q.consumeErr
}

type stubStats struct {
	stats domain.QueueStats
	asOf  time.Time
	err   error
}

func (s stubStats) Stats(context.Context) (domain.QueueStats, time.Time, error) {
	return s.stats, s.asOf, s.err
}

type stubDaily struct {
	appendRes   dailynote.AppendResult
	appendErr   error
	lastHeading string
	lastContent string
	lastStamp   bool
	lastDay     time.Time
	note        dailynote.Note
	getErr      error
}

func (sd *stubDaily) Append(_ context.Context, heading, content string, stamp bool, day time.Time) (dailynote.AppendResult, error) {
	sd.lastHeading = heading
	sd.lastContent = content
	sd.lastStamp = stamp
	sd.lastDay = day
	return sd.appendRes, sd.appendErr
}

func (sd *stubDaily) Get(context.Context, time.Time) (dailynote.Note, error) {
	return sd.note, sd.getErr
}

type stubRoutines struct {
	morningRes routines.MorningResult
	morningErr error
	lastReq    routines.MorningRequest
	eveningRes routines.EveningResult
	lastDay    time.Time
}

func (r *stubRoutines) Morning(_ context.Context, req routines.MorningRequest) (routines.MorningResult, error) {
	r.lastReq = req
	return r.morningRes, r.morningErr
}

func (r *stubRoutines) Evening(_ context.Context, day time.Time) routines.EveningResult {
	r.lastDay = day
	return r.eveningRes
}

func testDeps() Deps {
	return Deps{
		Auth:        stubAuth{},
		ServiceName: "productivity-api",
		Environment: "test",
		Log:         log.New(),
	}
}

// initTestPublisher runs the event pool against a recording sink and tears
// it down with the test.
func initTestPublisher(t *testing.T, sink EventSink) {
	t.Helper()
	shutdownEventPublisher()
	initEventPublisher(sink, log.New())
	t.Cleanup(shutdownEventPublisher)
}

// drainEvents stops the publisher, which flushes every queued job, and
// returns what reached the sink.
func drainEvents(sink *recordingSink) []domain.CaptureEvent {
	shutdownEventPublisher()
	return sink.Events()
}

func jsonRequest(method, target, body string) *http.Request {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	req.Header.Set(echo.HeaderAuthorization, "Bearer token")
	return req
}

func TestHealth(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := health(testDeps())(c); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200 got %d", rec.Code)
	}
	var resp healthResponse
	if err := sonic.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if resp.Status != "healthy" || resp.Service != "productivity-api" || resp.Environment != "test" {
		t.Fatalf("unexpected health response: %#v", resp)
	}
}

func TestTaskParseReturnsFields(t *testing.T) {
	e := echo.New()
	parser := &stubParser{res: tasks.ParseResult{
		Title:      "buy milk",
		Project:    "groceries",
		Context:    "@errands",
		DueDate:    "2025-03-15",
		Tags:       []string{"shopping"},
		Confidence: 0.9,
	}}
	d := testDeps()
	d.Parser = parser

	rec := httptest.NewRecorder()
	c := e.NewContext(jsonRequest(http.MethodPost, "/api/tasks/parse", `{"text":"buy milk tomorrow"}`), rec)

	if err := postTaskParse(d)(c); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200 got %d", rec.Code)
	}
	if parser.last != "buy milk tomorrow" {
		t.Fatalf("expected text to be forwarded, got %q", parser.last)
	}
	var resp tasks.ParseResult
	if err := sonic.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if resp.Title != "buy milk" || resp.Project != "groceries" || resp.DueDate != "2025-03-15" {
		t.Fatalf("unexpected parse response: %#v", resp)
	}
}

func TestTaskParseInvalidRequests(t *testing.T) {
	testCases := map[string]string{
		"empty_text":    `{"text":"  "}`,
		"unknown_field": `{"text":"x","bogus":1}`,
		"not_json":      `{"text":`,
	}
	for name, body := range testCases {
		t.Run(name, func(t *testing.T) {
			e := echo.New()
			parser := &stubParser{}
			d := testDeps()
			d.Parser = parser

			rec := httptest.NewRecorder()
			c := e.NewContext(jsonRequest(http.MethodPost, "/api/tasks/parse", body), rec)

			if err := postTaskParse(d)(c); err != nil {
				t.Fatalf("handler returned error: %v", err)
			}
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected status 400 got %d", rec.Code)
			}
			if parser.calls != 0 {
				t.Fatalf("expected parser to not be called, got %d calls", parser.calls)
			}
		})
	}
}

func TestTaskParseUnauthorized(t *testing.T) {
	e := echo.New()
	d := testDeps()
	d.Auth = deniedAuth{}
	d.Parser = &stubParser{}

	rec := httptest.NewRecorder()
	c := e.NewContext(jsonRequest(http.MethodPost, "/api/tasks/parse", `{"text":"x"}`), rec)

	if err := postTaskParse(d)(c); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401 got %d", rec.Code)
	}
}

func TestTaskCreateSendsTaskAndEmitsEvent(t *testing.T) {
	sink := &recordingSink{}
	initTestPublisher(t, sink)

	e := echo.New()
	creator := &stubCreator{res: maildrop.TaskResult{
		Success:         true,
		Message:         "Task created: review budget",
		MailDropSubject: "review budget ::finance",
	}}
	d := testDeps()
	d.Tasks = creator

	body := `{"title":"review budget","project":"finance","flagged":true}`
	rec := httptest.NewRecorder()
	c := e.NewContext(jsonRequest(http.MethodPost, "/api/tasks/create", body), rec)

	if err := postTaskCreate(d)(c); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200 got %d", rec.Code)
	}
	if creator.last.Title != "review budget" || creator.last.Project != "finance" || !creator.last.Flagged {
		t.Fatalf("unexpected task fields: %#v", creator.last)
	}
	var resp maildrop.TaskResult
	if err := sonic.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if !resp.Success || resp.MailDropSubject != "review budget ::finance" {
		t.Fatalf("unexpected response: %#v", resp)
	}

	events := drainEvents(sink)
	if len(events) != 1 {
		t.Fatalf("expected 1 capture event, got %d", len(events))
	}
	ev := events[0]
	if ev.Kind != domain.KindTask || ev.Action != domain.ActionCreated || ev.RoutedTo != domain.RoutedMailDrop {
		t.Fatalf("unexpected event: %#v", ev)
	}
	if ev.ID == "" || ev.Timestamp == 0 {
		t.Fatalf("expected event identity to be assigned, got %#v", ev)
	}
	if ev.Title != "review budget" {
		t.Fatalf("unexpected event title: %q", ev.Title)
	}
}

func TestTaskCreateMissingTitle(t *testing.T) {
	e := echo.New()
	creator := &stubCreator{}
	d := testDeps()
	d.Tasks = creator

	rec := httptest.NewRecorder()
	c := e.NewContext(jsonRequest(http.MethodPost, "/api/tasks/create", `{"note":"no title"}`), rec)

	if err := postTaskCreate(d)(c); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400 got %d", rec.Code)
	}
	if creator.calls != 0 {
		t.Fatalf("expected creator to not be called, got %d calls", creator.calls)
	}
}

func TestTaskCreateFailureEmitsNoEvent(t *testing.T) {
	sink := &recordingSink{}
	initTestPublisher(t, sink)

	e := echo.New()
	creator := &stubCreator{res: maildrop.TaskResult{
		Success: false,
		Message: "Mail Drop not configured. Set MAIL_DROP_EMAIL.",
	}}
	d := testDeps()
	d.Tasks = creator

	rec := httptest.NewRecorder()
	c := e.NewContext(jsonRequest(http.MethodPost, "/api/tasks/create", `{"title":"x"}`), rec)

	if err := postTaskCreate(d)(c); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200 got %d", rec.Code)
	}
	var resp maildrop.TaskResult
	if err := sonic.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if resp.Success {
		t.Fatal("expected in-band failure")
	}
	if events := drainEvents(sink); len(events) != 0 {
		t.Fatalf("expected no capture events on failure, got %d", len(events))
	}
}

func TestTaskCaptureParsesAndCreates(t *testing.T) {
	sink := &recordingSink{}
	initTestPublisher(t, sink)

	e := echo.New()
	parser := &stubParser{res: tasks.ParseResult{
		Title:   "call mom",
		Context: "@phone",
		DueDate: "2025-03-15",
	}}
	creator := &stubCreator{res: maildrop.TaskResult{
		Success:         true,
		MailDropSubject: "call mom @phone --due 2025-03-15",
	}}
	d := testDeps()
	d.Parser = parser
	d.Tasks = creator

	rec := httptest.NewRecorder()
	c := e.NewContext(jsonRequest(http.MethodPost, "/api/tasks/capture", `{"text":"call mom friday"}`), rec)

	if err := postTaskCapture(d)(c); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200 got %d", rec.Code)
	}
	if parser.last != "call mom friday" {
		t.Fatalf("expected text to be forwarded, got %q", parser.last)
	}
	if creator.last.Context != "phone" {
		t.Fatalf("expected @ to be stripped from context, got %q", creator.last.Context)
	}
	if creator.last.DueDate != "2025-03-15" {
		t.Fatalf("expected due date to be forwarded, got %q", creator.last.DueDate)
	}

	var resp captureResponse
	if err := sonic.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if !resp.Success || resp.Parsed.Title != "call mom" {
		t.Fatalf("unexpected response: %#v", resp)
	}

	events := drainEvents(sink)
	if len(events) != 1 || events[0].Title != "call mom" {
		t.Fatalf("unexpected events: %#v", events)
	}
}

func TestAlexaRouteToleratesUnknownEnvelopeFields(t *testing.T) {
	e := echo.New()
	parser := &stubParser{res: tasks.ParseResult{Title: "buy milk"}}
	creator := &stubCreator{res: maildrop.TaskResult{Success: true, MailDropSubject: "buy milk"}}
	d := testDeps()
	d.Parser = parser
	d.Tasks = creator
	d.AlexaSkillID = "amzn1.ask.skill.12345"

	body := `{
		"version": "1.0",
		"session": {"new": true, "sessionId": "amzn1.echo-api.session.1", "application": {"applicationId": "amzn1.ask.skill.12345"}},
		"context": {"System": {"application": {"applicationId": "amzn1.ask.skill.12345"}, "device": {"deviceId": "d1"}}},
		"request": {"type": "IntentRequest", "requestId": "amzn1.echo-api.request.1", "locale": "en-US", "intent": {"name": "CaptureTaskIntent", "slots": {"taskText": {"name": "taskText", "value": "buy milk"}}}}
	}`
	req := httptest.NewRequest(http.MethodPost, "/api/alexa", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := postAlexa(d)(c); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200 got %d", rec.Code)
	}
	var resp voice.Response
	if err := sonic.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if resp.Response.OutputSpeech.Text != "Added: buy milk." {
		t.Fatalf("unexpected speech: %q", resp.Response.OutputSpeech.Text)
	}
	if creator.calls != 1 {
		t.Fatalf("expected one task creation, got %d", creator.calls)
	}
}

func TestAlexaRouteRejectsWrongSkill(t *testing.T) {
	e := echo.New()
	d := testDeps()
	d.Parser = &stubParser{}
	d.Tasks = &stubCreator{}
	d.AlexaSkillID = "amzn1.ask.skill.99999"

	body := `{"version":"1.0","session":{"application":{"applicationId":"amzn1.ask.skill.12345"}},"request":{"type":"LaunchRequest"}}`
	req := httptest.NewRequest(http.MethodPost, "/api/alexa", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := postAlexa(d)(c); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected status 403 got %d", rec.Code)
	}
}

func TestBookmarkSaveEmitsEvent(t *testing.T) {
	sink := &recordingSink{}
	initTestPublisher(t, sink)

	e := echo.New()
	saver := &stubBookmarks{res: bookmarks.SaveResult{
		Success:          true,
		BookmarkID:       "2025-06-01-go-profiling",
		Title:            "Go Profiling",
		Status:           "saved",
		Category:         "Tech/Programming",
		ModeUsed:         "quick",
		DailyNoteUpdated: true,
		BookmarkFilePath: "Bookmarks/2025-06-01-go-profiling.md",
		Tags:             []string{"go"},
	}}
	d := testDeps()
	d.Bookmarks = saver

	body := `{"url":"https://go.dev/blog/profiling","mode":"quick","title":"Go Profiling"}`
	rec := httptest.NewRecorder()
	c := e.NewContext(jsonRequest(http.MethodPost, "/api/bookmarks/save", body), rec)

	if err := postBookmarkSave(d)(c); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200 got %d", rec.Code)
	}
	if saver.last.URL != "https://go.dev/blog/profiling" || saver.last.Mode != "quick" {
		t.Fatalf("unexpected save request: %#v", saver.last)
	}
	var resp bookmarks.SaveResult
	if err := sonic.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if !resp.Success || resp.BookmarkID != "2025-06-01-go-profiling" {
		t.Fatalf("unexpected response: %#v", resp)
	}

	events := drainEvents(sink)
	if len(events) != 1 {
		t.Fatalf("expected 1 capture event, got %d", len(events))
	}
	ev := events[0]
	if ev.Kind != domain.KindBookmark || ev.URL != "https://go.dev/blog/profiling" {
		t.Fatalf("unexpected event: %#v", ev)
	}
	if ev.Path != "Bookmarks/2025-06-01-go-profiling.md" {
		t.Fatalf("unexpected event path: %q", ev.Path)
	}
}

func TestBookmarkSaveMissingURL(t *testing.T) {
	e := echo.New()
	d := testDeps()
	d.Bookmarks = &stubBookmarks{}

	rec := httptest.NewRecorder()
	c := e.NewContext(jsonRequest(http.MethodPost, "/api/bookmarks/save", `{"title":"no url"}`), rec)

	if err := postBookmarkSave(d)(c); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400 got %d", rec.Code)
	}
}

func TestQueueAddReportsRouting(t *testing.T) {
	sink := &recordingSink{}
	initTestPublisher(t, sink)

	e := echo.New()
	q := &stubQueue{addRes: review.AddResult{
		Success:       true,
		QueueID:       "2025-06-01-deep-dive",
		Title:         "Deep Dive",
		URL:           "https://example.com/deep-dive",
		ContentType:   "article",
		EstimatedTime: 12,
		Priority:      "must-read",
		RoutedTo:      "maildrop",
	}}
	d := testDeps()
	d.Queue = q

	body := `{"url":"https://example.com/deep-dive","priority":"must-read"}`
	rec := httptest.NewRecorder()
	c := e.NewContext(jsonRequest(http.MethodPost, "/api/queue/add", body), rec)

	if err := postQueueAdd(d)(c); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200 got %d", rec.Code)
	}
	if q.lastAdd.Priority != "must-read" {
		t.Fatalf("expected priority to be forwarded, got %q", q.lastAdd.Priority)
	}
	var resp review.AddResult
	if err := sonic.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if !resp.Success || resp.RoutedTo != "maildrop" {
		t.Fatalf("unexpected response: %#v", resp)
	}

	events := drainEvents(sink)
	if len(events) != 1 {
		t.Fatalf("expected 1 capture event, got %d", len(events))
	}
	ev := events[0]
	if ev.Kind != domain.KindQueue || ev.Action != domain.ActionCreated {
		t.Fatalf("unexpected event: %#v", ev)
	}
	if ev.Path != "ReadQueue/2025-06-01-deep-dive.md" {
		t.Fatalf("unexpected event path: %q", ev.Path)
	}
	if ev.Priority != "must-read" || ev.ContentType != "article" || ev.EstimatedTime != 12 {
		t.Fatalf("unexpected event classification: %#v", ev)
	}
	if ev.Status != domain.StatusUnread {
		t.Fatalf("expected unread status, got %q", ev.Status)
	}
}

func TestQueueAddInvalidPriority(t *testing.T) {
	e := echo.New()
	d := testDeps()
	d.Queue = &stubQueue{}

	rec := httptest.NewRecorder()
	c := e.NewContext(jsonRequest(http.MethodPost, "/api/queue/add", `{"url":"https://x.test","priority":"urgent"}`), rec)

	if err := postQueueAdd(d)(c); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400 got %d", rec.Code)
	}
}

func TestQueueAddFailureSkipsEvent(t *testing.T) {
	sink := &recordingSink{}
	initTestPublisher(t, sink)

	e := echo.New()
	q := &stubQueue{addRes: review.AddResult{
		Success: false,
		Title:   "Deep Dive",
		Error:   "vault write failed",
	}}
	d := testDeps()
	d.Queue = q

	rec := httptest.NewRecorder()
	c := e.NewContext(jsonRequest(http.MethodPost, "/api/queue/add", `{"url":"https://example.com/deep-dive"}`), rec)

	if err := postQueueAdd(d)(c); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200 got %d", rec.Code)
	}
	var resp review.AddResult
	if err := sonic.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if resp.Success || resp.Error != "vault write failed" {
		t.Fatalf("unexpected response: %#v", resp)
	}
	if events := drainEvents(sink); len(events) != 0 {
		t.Fatalf("expected no capture events on failure, got %d", len(events))
	}
}
