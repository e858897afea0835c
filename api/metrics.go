package api

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	captureEventName   = "capture.request.metrics"
	captureEventDomain = "capture"
	captureSpanName    = "capture.request"
	observabilityEvent = "observability.event"
	tracerName         = "productivity-api"
)

// captureRequestMetrics collects per-request timings and capture outcomes
// and emits them once, as a structured log entry plus an OTel span with a
// matching span event.
type captureRequestMetrics struct {
	logger *log.Logger
	span   trace.Span
	route  string
	start  time.Time

	authDuration   time.Duration
	handleDuration time.Duration
	encodeDuration time.Duration

	kind        string
	priority    string
	contentType string
	routedTo    string
	snack       bool
	fallback    bool
	errorStage  string
}

func newCaptureRequestMetrics(ctx context.Context, logger *log.Logger, route string) (*captureRequestMetrics, context.Context) {
	spanCtx, span := otel.Tracer(tracerName).Start(ctx, captureSpanName)
	m := &captureRequestMetrics{
		logger: logger,
		span:   span,
		route:  route,
		start:  time.Now(),
	}
	return m, spanCtx
}

func (m *captureRequestMetrics) ObserveAuth(duration time.Duration) {
	if duration <= 0 {
		return
	}
	m.authDuration = duration
}

func (m *captureRequestMetrics) ObserveHandle(duration time.Duration) {
	if duration <= 0 {
		return
	}
	m.handleDuration = duration
}

func (m *captureRequestMetrics) ObserveEncode(duration time.Duration) {
	if duration <= 0 {
		return
	}
	m.encodeDuration = duration
}

func (m *captureRequestMetrics) SetKind(kind string) {
	m.kind = kind
}

func (m *captureRequestMetrics) SetPriority(priority string) {
	m.priority = priority
}

func (m *captureRequestMetrics) SetContentType(contentType string) {
	m.contentType = contentType
}

func (m *captureRequestMetrics) SetRoutedTo(routedTo string) {
	m.routedTo = routedTo
}

func (m *captureRequestMetrics) SetSnack(snack bool) {
	m.snack = snack
}

func (m *captureRequestMetrics) SetFallback(fallback bool) {
	m.fallback = fallback
}

func (m *captureRequestMetrics) SetErrorStage(stage string) {
	if stage == "" {
		return
	}
	m.errorStage = stage
}

// severityForStatus maps an HTTP status to OTel log severity. A non-nil
// error forces ERROR regardless of status.
func severityForStatus(status int, err error) (string, int) {
	if err != nil {
		return "ERROR", 17
	}
	switch {
	case status >= 500:
		return "ERROR", 17
	case status >= 400:
		return "WARN", 13
	default:
		return "INFO", 9
	}
}

func (m *captureRequestMetrics) Log(status int, err error) {
	if m == nil {
		return
	}

	severityText, severityNumber := severityForStatus(status, err)

	attrs := map[string]any{
		"http.route":                    m.route,
		"http.status_code":              int64(status),
		"productivity.capture.total_ms": durationToMillis(time.Since(m.start)),
	}
	if m.authDuration > 0 {
		attrs["productivity.capture.auth_ms"] = durationToMillis(m.authDuration)
	}
	if m.handleDuration > 0 {
		attrs["productivity.capture.handle_ms"] = durationToMillis(m.handleDuration)
	}
	if m.encodeDuration > 0 {
		attrs["productivity.capture.encode_ms"] = durationToMillis(m.encodeDuration)
	}
	if m.kind != "" {
		attrs["productivity.capture.kind"] = m.kind
	}
	if m.priority != "" {
		attrs["productivity.capture.priority"] = m.priority
	}
	if m.contentType != "" {
		attrs["productivity.capture.content_type"] = m.contentType
	}
	if m.routedTo != "" {
		attrs["productivity.capture.routed_to"] = m.routedTo
	}
	if m.snack {
		attrs["productivity.capture.is_snack"] = true
	}
	if m.fallback {
		attrs["productivity.capture.fallback"] = true
	}
	if m.errorStage != "" {
		attrs["productivity.capture.error_stage"] = m.errorStage
	}
	if err != nil {
		attrs["error.message"] = err.Error()
	}

	if m.span != nil {
		spanAttrs := make([]attribute.KeyValue, 0, len(attrs))
		for k, v := range attrs {
			spanAttrs = append(spanAttrs, spanAttribute(k, v))
		}
		m.span.SetAttributes(spanAttrs...)

		eventAttrs := make([]attribute.KeyValue, 0, len(spanAttrs)+4)
		eventAttrs = append(eventAttrs,
			attribute.String("event.name", captureEventName),
			attribute.String("event.domain", captureEventDomain),
			attribute.String("severity_text", severityText),
			attribute.Int("severity_number", severityNumber),
		)
		eventAttrs = append(eventAttrs, spanAttrs...)
		m.span.AddEvent(observabilityEvent, trace.WithAttributes(eventAttrs...))

		if err != nil || status >= 500 {
			description := "request failed"
			if err != nil {
				description = err.Error()
			}
			m.span.SetStatus(codes.Error, description)
		} else {
			m.span.SetStatus(codes.Ok, "")
		}
		m.span.End()
	}

	if m.logger == nil {
		return
	}

	fields := log.Fields{
		"event.name":      captureEventName,
		"event.domain":    captureEventDomain,
		"attributes":      attrs,
		"severity_text":   severityText,
		"severity_number": severityNumber,
	}
	if m.span != nil {
		if sc := m.span.SpanContext(); sc.IsValid() {
			fields["trace_id"] = sc.TraceID().String()
			fields["span_id"] = sc.SpanID().String()
		}
	}

	entry := m.logger.WithFields(fields)
	switch severityText {
	case "ERROR":
		entry.Error(observabilityEvent)
	case "WARN":
		entry.Warn(observabilityEvent)
	default:
		entry.Info(observabilityEvent)
	}
}

func spanAttribute(key string, value any) attribute.KeyValue {
	switch v := value.(type) {
	case string:
		return attribute.String(key, v)
	case bool:
		return attribute.Bool(key, v)
	case int:
		return attribute.Int(key, v)
	case int64:
		return attribute.Int64(key, v)
	case float64:
		return attribute.Float64(key, v)
	default:
		return attribute.String(key, fmt.Sprintf("%v", v))
	}
}

func durationToMillis(d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return float64(d) / float64(time.Millisecond)
}
