package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"github.com/knight-systems/productivity-service/bookmarks"
	"github.com/knight-systems/productivity-service/dailynote"
	"github.com/knight-systems/productivity-service/domain"
	"github.com/knight-systems/productivity-service/maildrop"
	"github.com/knight-systems/productivity-service/note"
	"github.com/knight-systems/productivity-service/review"
	"github.com/knight-systems/productivity-service/routines"
	"github.com/knight-systems/productivity-service/tasks"
	"github.com/knight-systems/productivity-service/voice"
)

const headerIdempotencyKey = "Idempotency-Key"

// Deps carries everything the handlers need. Register fails on nothing;
// absent optional members degrade the matching feature instead.
type Deps struct {
	Auth      Authenticator
	Deduper   Deduper
	Events    EventSink
	Parser    TaskParser
	Tasks     TaskCreator
	Bookmarks BookmarkSaver
	Queue     QueueService
	Stats     StatsSource
	Daily     DailyService
	Routines  RoutineService

	AlexaSkillID string
	ServiceName  string
	Environment  string
	Log          *log.Logger
}

// Register wires up all API routes on the provided Echo instance.
func Register(e *echo.Echo, d Deps) {
	e.GET("/health", health(d))

	e.POST("/api/tasks/parse", postTaskParse(d))
	e.POST("/api/tasks/create", postTaskCreate(d))
	e.POST("/api/tasks/capture", postTaskCapture(d))
	e.POST("/api/alexa", postAlexa(d))
	e.POST("/api/bookmarks/save", postBookmarkSave(d))
	e.POST("/api/queue/add", postQueueAdd(d))
	e.PATCH("/api/queue/:id/consume", patchQueueConsume(d))
	e.PATCH("/api/queue/:id/status", patchQueueStatus(d))
	e.GET("/api/queue/stats", getQueueStats(d))
	e.POST("/api/vault/daily/append", postDailyAppend(d))
	e.GET("/api/vault/daily", getDaily(d))
	e.POST("/api/routines/morning-brief", postMorningBrief(d))
	e.POST("/api/routines/evening-summary", postEveningSummary(d))

	initEventPublisher(d.Events, d.Log)
}

func decodeBody(c echo.Context, out any) error {
	lr := io.LimitReader(c.Request().Body, maxBodySize)
	dec := sonic.ConfigStd.NewDecoder(lr)
	dec.DisallowUnknownFields()
	return dec.Decode(out)
}

// dedupe records the request's idempotency key, generating one when the
// header is absent. It reports the recorded key and whether the request is
// a duplicate. A deduper failure disables deduplication for this request
// rather than failing the capture.
func dedupe(c echo.Context, d Deps, principal string) (string, bool) {
	if d.Deduper == nil {
		return "", false
	}
	key := c.Request().Header.Get(headerIdempotencyKey)
	if key == "" {
		key = uuid.NewString()
	}
	added, err := d.Deduper.Add(c.Request().Context(), principal, key)
	if err != nil {
		if d.Log != nil {
			d.Log.WithError(err).Warn("idempotency check failed; proceeding without deduplication")
		}
		return "", false
	}
	if !added {
		return key, true
	}
	return key, false
}

// releaseKey drops a recorded idempotency key after a failed capture so the
// client may retry with the same key.
func releaseKey(c echo.Context, d Deps, principal, key string) {
	if d.Deduper == nil || key == "" {
		return
	}
	if err := d.Deduper.Remove(c.Request().Context(), principal, key); err != nil && d.Log != nil {
		d.Log.WithError(err).Warn("failed to release idempotency key")
	}
}

func parseDay(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	return time.Parse("2006-01-02", raw)
}

func taskFieldsFromParse(p tasks.ParseResult) domain.TaskFields {
	return domain.TaskFields{
		Title:      p.Title,
		Note:       p.Note,
		Project:    p.Project,
		Context:    strings.TrimPrefix(p.Context, "@"),
		Tags:       p.Tags,
		DueDate:    p.DueDate,
		DeferDate:  p.DeferDate,
		Flagged:    p.Flagged,
		Confidence: p.Confidence,
	}
}

func health(d Deps) echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.JSON(http.StatusOK, healthResponse{
			Status:      "healthy",
			Service:     d.ServiceName,
			Environment: d.Environment,
		})
	}
}

func postTaskParse(d Deps) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		if _, err := d.Auth.PrincipalFromAuthHeader(c.Request().Header.Get("Authorization")); err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}

		var req parseRequest
		if err := decodeBody(c, &req); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		text := strings.TrimSpace(req.Text)
		if text == "" {
			return c.String(http.StatusBadRequest, "missing text")
		}

		return c.JSON(http.StatusOK, d.Parser.Parse(ctx, text))
	}
}

func postTaskCreate(d Deps) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		principal, err := d.Auth.PrincipalFromAuthHeader(c.Request().Header.Get("Authorization"))
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}

		var fields domain.TaskFields
		if err := decodeBody(c, &fields); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		if strings.TrimSpace(fields.Title) == "" {
			return c.String(http.StatusBadRequest, "missing title")
		}

		key, duplicate := dedupe(c, d, principal)
		if duplicate {
			return c.JSON(http.StatusOK, duplicateResponse{Duplicate: true})
		}

		res := d.Tasks.CreateTask(ctx, fields)
		if res.Success {
			emitCapture(domain.CaptureEvent{
				Kind:     domain.KindTask,
				Action:   domain.ActionCreated,
				Title:    fields.Title,
				RoutedTo: domain.RoutedMailDrop,
			})
		} else {
			releaseKey(c, d, principal, key)
		}
		return c.JSON(http.StatusOK, res)
	}
}

func postTaskCapture(d Deps) echo.HandlerFunc {
	return func(c echo.Context) (err error) {
		ctx := c.Request().Context()
		metrics, spanCtx := newCaptureRequestMetrics(ctx, d.Log, "/api/tasks/capture")
		if spanCtx != nil {
			c.SetRequest(c.Request().WithContext(spanCtx))
			ctx = spanCtx
		}
		defer func() {
			metrics.Log(c.Response().Status, err)
		}()
		metrics.SetKind(domain.KindTask)

		authStart := time.Now()
		principal, authErr := d.Auth.PrincipalFromAuthHeader(c.Request().Header.Get("Authorization"))
		metrics.ObserveAuth(time.Since(authStart))
		if authErr != nil {
			metrics.SetErrorStage("auth")
			err = c.String(http.StatusUnauthorized, authErr.Error())
			return err
		}

		var req parseRequest
		if decodeErr := decodeBody(c, &req); decodeErr != nil {
			metrics.SetErrorStage("invalid_body")
			err = c.String(http.StatusBadRequest, "invalid body")
			return err
		}
		text := strings.TrimSpace(req.Text)
		if text == "" {
			metrics.SetErrorStage("missing_text")
			err = c.String(http.StatusBadRequest, "missing text")
			return err
		}

		key, duplicate := dedupe(c, d, principal)
		if duplicate {
			err = c.JSON(http.StatusOK, duplicateResponse{Duplicate: true})
			return err
		}

		handleStart := time.Now()
		parsed := d.Parser.Parse(ctx, text)
		res := d.Tasks.CreateTask(ctx, taskFieldsFromParse(parsed))
		metrics.ObserveHandle(time.Since(handleStart))
		metrics.SetRoutedTo(domain.RoutedMailDrop)

		if res.Success {
			emitCapture(domain.CaptureEvent{
				Kind:     domain.KindTask,
				Action:   domain.ActionCreated,
				Title:    parsed.Title,
				RoutedTo: domain.RoutedMailDrop,
			})
		} else {
			metrics.SetErrorStage("create")
			releaseKey(c, d, principal, key)
		}

		encodeStart := time.Now()
		err = c.JSON(http.StatusOK, captureResponse{TaskResult: res, Parsed: parsed})
		metrics.ObserveEncode(time.Since(encodeStart))
		if err != nil {
			metrics.SetErrorStage("encode_response")
		}
		return err
	}
}

// eventingCreator emits a capture event for tasks created through the voice
// flow, which bypasses the task handlers.
type eventingCreator struct {
	inner TaskCreator
}

func (e eventingCreator) CreateTask(ctx context.Context, task domain.TaskFields) maildrop.TaskResult {
	res := e.inner.CreateTask(ctx, task)
	if res.Success {
		emitCapture(domain.CaptureEvent{
			Kind:     domain.KindTask,
			Action:   domain.ActionCreated,
			Title:    task.Title,
			RoutedTo: domain.RoutedMailDrop,
		})
	}
	return res
}

func postAlexa(d Deps) echo.HandlerFunc {
	alexa := voice.NewHandler(d.Parser, eventingCreator{inner: d.Tasks}, d.AlexaSkillID, d.Log)
	return func(c echo.Context) error {
		ctx := c.Request().Context()

		// Alexa envelopes carry many fields this service never reads, so
		// unknown keys are allowed here.
		var env voice.Envelope
		lr := io.LimitReader(c.Request().Body, maxBodySize)
		if err := sonic.ConfigStd.NewDecoder(lr).Decode(&env); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}

		resp, err := alexa.Handle(ctx, env)
		if errors.Is(err, voice.ErrSkillMismatch) {
			return c.String(http.StatusForbidden, err.Error())
		}
		if err != nil {
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, "alexa request failed")
		}
		return c.JSON(http.StatusOK, resp)
	}
}

func postBookmarkSave(d Deps) echo.HandlerFunc {
	return func(c echo.Context) (err error) {
		ctx := c.Request().Context()
		metrics, spanCtx := newCaptureRequestMetrics(ctx, d.Log, "/api/bookmarks/save")
		if spanCtx != nil {
			c.SetRequest(c.Request().WithContext(spanCtx))
			ctx = spanCtx
		}
		defer func() {
			metrics.Log(c.Response().Status, err)
		}()
		metrics.SetKind(domain.KindBookmark)

		authStart := time.Now()
		principal, authErr := d.Auth.PrincipalFromAuthHeader(c.Request().Header.Get("Authorization"))
		metrics.ObserveAuth(time.Since(authStart))
		if authErr != nil {
			metrics.SetErrorStage("auth")
			err = c.String(http.StatusUnauthorized, authErr.Error())
			return err
		}

		var req bookmarks.SaveRequest
		if decodeErr := decodeBody(c, &req); decodeErr != nil {
			metrics.SetErrorStage("invalid_body")
			err = c.String(http.StatusBadRequest, "invalid body")
			return err
		}
		if strings.TrimSpace(req.URL) == "" {
			metrics.SetErrorStage("missing_url")
			err = c.String(http.StatusBadRequest, "missing url")
			return err
		}

		key, duplicate := dedupe(c, d, principal)
		if duplicate {
			err = c.JSON(http.StatusOK, duplicateResponse{Duplicate: true})
			return err
		}

		handleStart := time.Now()
		res := d.Bookmarks.Save(ctx, req)
		metrics.ObserveHandle(time.Since(handleStart))
		metrics.SetRoutedTo(domain.RoutedVault)

		if res.Success {
			emitCapture(domain.CaptureEvent{
				Kind:     domain.KindBookmark,
				Action:   domain.ActionCreated,
				Title:    res.Title,
				URL:      req.URL,
				Path:     res.BookmarkFilePath,
				RoutedTo: domain.RoutedVault,
			})
		} else {
			metrics.SetErrorStage("save")
			releaseKey(c, d, principal, key)
		}

		encodeStart := time.Now()
		err = c.JSON(http.StatusOK, res)
		metrics.ObserveEncode(time.Since(encodeStart))
		if err != nil {
			metrics.SetErrorStage("encode_response")
		}
		return err
	}
}

func postQueueAdd(d Deps) echo.HandlerFunc {
	return func(c echo.Context) (err error) {
		ctx := c.Request().Context()
		metrics, spanCtx := newCaptureRequestMetrics(ctx, d.Log, "/api/queue/add")
		if spanCtx != nil {
			c.SetRequest(c.Request().WithContext(spanCtx))
			ctx = spanCtx
		}
		defer func() {
			metrics.Log(c.Response().Status, err)
		}()
		metrics.SetKind(domain.KindQueue)

		authStart := time.Now()
		principal, authErr := d.Auth.PrincipalFromAuthHeader(c.Request().Header.Get("Authorization"))
		metrics.ObserveAuth(time.Since(authStart))
		if authErr != nil {
			metrics.SetErrorStage("auth")
			err = c.String(http.StatusUnauthorized, authErr.Error())
			return err
		}

		var req review.AddRequest
		if decodeErr := decodeBody(c, &req); decodeErr != nil {
			metrics.SetErrorStage("invalid_body")
			err = c.String(http.StatusBadRequest, "invalid body")
			return err
		}
		if strings.TrimSpace(req.URL) == "" {
			metrics.SetErrorStage("missing_url")
			err = c.String(http.StatusBadRequest, "missing url")
			return err
		}
		if req.Priority != "" && !domain.ValidPriority(req.Priority) {
			metrics.SetErrorStage("invalid_priority")
			err = c.String(http.StatusBadRequest, "invalid priority")
			return err
		}

		key, duplicate := dedupe(c, d, principal)
		if duplicate {
			err = c.JSON(http.StatusOK, duplicateResponse{Duplicate: true})
			return err
		}

		handleStart := time.Now()
		res := d.Queue.Add(ctx, req)
		metrics.ObserveHandle(time.Since(handleStart))
		metrics.SetPriority(res.Priority)
		metrics.SetContentType(res.ContentType)
		metrics.SetSnack(res.IsSnack)
		metrics.SetRoutedTo(res.RoutedTo)
		metrics.SetFallback(res.Fallback)

		if res.Success {
			emitCapture(domain.CaptureEvent{
				Kind:          domain.KindQueue,
				Action:        domain.ActionCreated,
				Title:         res.Title,
				URL:           res.URL,
				Path:          note.QueueFolder + "/" + res.QueueID + ".md",
				RoutedTo:      res.RoutedTo,
				Fallback:      res.Fallback,
				ContentType:   res.ContentType,
				Priority:      res.Priority,
				Status:        domain.StatusUnread,
				EstimatedTime: res.EstimatedTime,
			})
		} else {
			metrics.SetErrorStage("add")
			releaseKey(c, d, principal, key)
		}

		encodeStart := time.Now()
		err = c.JSON(http.StatusOK, res)
		metrics.ObserveEncode(time.Since(encodeStart))
		if err != nil {
			metrics.SetErrorStage("encode_response")
		}
		return err
	}
}

func patchQueueConsume(d Deps) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		principal, err := d.Auth.PrincipalFromAuthHeader(c.Request().Header.Get("Authorization"))
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		itemID := c.Param("id")

		// The body is optional on consume.
		var req consumeRequest
		if err := decodeBody(c, &req); err != nil && !errors.Is(err, io.EOF) {
			return c.String(http.StatusBadRequest, "invalid body")
		}

		key, duplicate := dedupe(c, d, principal)
		if duplicate {
			return c.JSON(http.StatusOK, duplicateResponse{Duplicate: true})
		}

		res, err := d.Queue.Consume(ctx, itemID, req.Notes)
		if errors.Is(err, review.ErrNotFound) {
			releaseKey(c, d, principal, key)
			return c.String(http.StatusNotFound, "queue item not found")
		}
		if err != nil {
			releaseKey(c, d, principal, key)
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, "consume failed")
		}

		if res.Success {
			emitCapture(domain.CaptureEvent{
				Kind:   domain.KindQueue,
				Action: domain.ActionConsumed,
				Path:   note.QueueFolder + "/" + itemID + ".md",
				Status: domain.StatusConsumed,
			})
		} else {
			releaseKey(c, d, principal, key)
		}
		return c.JSON(http.StatusOK, res)
	}
}

func patchQueueStatus(d Deps) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		principal, err := d.Auth.PrincipalFromAuthHeader(c.Request().Header.Get("Authorization"))
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		itemID := c.Param("id")

		var req statusRequest
		if err := decodeBody(c, &req); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		if !domain.ValidStatus(req.Status) {
			return c.String(http.StatusBadRequest, "invalid status")
		}

		key, duplicate := dedupe(c, d, principal)
		if duplicate {
			return c.JSON(http.StatusOK, duplicateResponse{Duplicate: true})
		}

		res, err := d.Queue.UpdateStatus(ctx, itemID, req.Status)
		if errors.Is(err, review.ErrNotFound) {
			releaseKey(c, d, principal, key)
			return c.String(http.StatusNotFound, "queue item not found")
		}
		if err != nil {
			releaseKey(c, d, principal, key)
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, "status update failed")
		}

		if res.Success {
			emitCapture(domain.CaptureEvent{
				Kind:   domain.KindQueue,
				Action: domain.ActionStatusChanged,
				Path:   note.QueueFolder + "/" + itemID + ".md",
				Status: res.Status,
			})
		} else {
			releaseKey(c, d, principal, key)
		}
		return c.JSON(http.StatusOK, res)
	}
}

func getQueueStats(d Deps) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		if _, err := d.Auth.PrincipalFromAuthHeader(c.Request().Header.Get("Authorization")); err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}

		stats, asOf, err := d.Stats.Stats(ctx)
		if err != nil {
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, "failed to load queue stats")
		}

		return c.JSON(http.StatusOK, statsResponse{
			Total:                   stats.Total,
			Unread:                  stats.Unread,
			Snacks:                  stats.Snacks,
			ByPriority:              stats.ByPriority,
			ByType:                  stats.ByType,
			EstimatedBacklogMinutes: stats.EstimatedBacklogMinutes,
			AsOf:                    asOf.UTC().Format(time.RFC3339),
		})
	}
}

func postDailyAppend(d Deps) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		principal, err := d.Auth.PrincipalFromAuthHeader(c.Request().Header.Get("Authorization"))
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}

		var req dailyAppendRequest
		if err := decodeBody(c, &req); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		if strings.TrimSpace(req.Content) == "" {
			return c.String(http.StatusBadRequest, "missing content")
		}
		heading := req.Heading
		if heading == "" {
			heading = "Notes"
		}
		stamp := req.Timestamp == nil || *req.Timestamp
		day, err := parseDay(req.Date)
		if err != nil {
			return c.String(http.StatusBadRequest, "invalid date")
		}

		key, duplicate := dedupe(c, d, principal)
		if duplicate {
			return c.JSON(http.StatusOK, duplicateResponse{Duplicate: true})
		}

		res, err := d.Daily.Append(ctx, heading, req.Content, stamp, day)
		if errors.Is(err, dailynote.ErrNotFound) {
			releaseKey(c, d, principal, key)
			return c.String(http.StatusNotFound, "daily note not found")
		}
		if errors.Is(err, dailynote.ErrUnknownHeading) {
			releaseKey(c, d, principal, key)
			return c.String(http.StatusBadRequest, err.Error())
		}
		if err != nil {
			releaseKey(c, d, principal, key)
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, "append failed")
		}

		emitCapture(domain.CaptureEvent{
			Kind:     domain.KindDaily,
			Action:   domain.ActionAppended,
			Path:     res.Path,
			RoutedTo: domain.RoutedVault,
		})
		return c.JSON(http.StatusOK, dailyAppendResponse{
			Success:   true,
			Path:      res.Path,
			CommitSHA: res.CommitSHA,
			Heading:   res.Heading,
			Content:   res.Content,
			Message:   "Appended to " + res.Heading,
		})
	}
}

func getDaily(d Deps) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		if _, err := d.Auth.PrincipalFromAuthHeader(c.Request().Header.Get("Authorization")); err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}

		day, err := parseDay(c.QueryParam("date"))
		if err != nil {
			return c.String(http.StatusBadRequest, "invalid date")
		}

		n, err := d.Daily.Get(ctx, day)
		if err != nil {
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, "failed to read daily note")
		}
		return c.JSON(http.StatusOK, dailyGetResponse{
			Success: true,
			Path:    n.Path,
			Content: n.Content,
			Exists:  n.Exists,
		})
	}
}

func postMorningBrief(d Deps) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		principal, err := d.Auth.PrincipalFromAuthHeader(c.Request().Header.Get("Authorization"))
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}

		var req routines.MorningRequest
		if err := decodeBody(c, &req); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}

		key, duplicate := dedupe(c, d, principal)
		if duplicate {
			return c.JSON(http.StatusOK, duplicateResponse{Duplicate: true})
		}

		res, err := d.Routines.Morning(ctx, req)
		if errors.Is(err, dailynote.ErrNotFound) {
			releaseKey(c, d, principal, key)
			return c.String(http.StatusNotFound, "daily note not found")
		}
		if err != nil {
			releaseKey(c, d, principal, key)
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, "morning brief failed")
		}

		emitCapture(domain.CaptureEvent{
			Kind:     domain.KindRoutine,
			Action:   domain.ActionBriefWritten,
			Path:     res.Path,
			RoutedTo: domain.RoutedVault,
		})
		return c.JSON(http.StatusOK, res)
	}
}

func postEveningSummary(d Deps) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		principal, err := d.Auth.PrincipalFromAuthHeader(c.Request().Header.Get("Authorization"))
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}

		// The body is optional on evening summary.
		var req eveningRequest
		if err := decodeBody(c, &req); err != nil && !errors.Is(err, io.EOF) {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		day, err := parseDay(req.Date)
		if err != nil {
			return c.String(http.StatusBadRequest, "invalid date")
		}

		key, duplicate := dedupe(c, d, principal)
		if duplicate {
			return c.JSON(http.StatusOK, duplicateResponse{Duplicate: true})
		}

		res := d.Routines.Evening(ctx, day)
		if res.Success {
			routedTo := domain.RoutedVault
			if res.TasksSent > 0 {
				routedTo = domain.RoutedMailDrop
			}
			emitCapture(domain.CaptureEvent{
				Kind:     domain.KindRoutine,
				Action:   domain.ActionSummaryRun,
				Path:     res.Path,
				RoutedTo: routedTo,
			})
		} else {
			releaseKey(c, d, principal, key)
		}
		return c.JSON(http.StatusOK, res)
	}
}
