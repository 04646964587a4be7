package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	wishesTracerName  = "wishboard/api"
	wishesSpanName    = "wishes.request"
	wishesEventName   = "wishes.request.metrics"
	wishesEventDomain = "wishboard.api"
	observabilityMsg  = "observability.event"
)

type wishRequestMetrics struct {
	logger        *log.Logger
	span          trace.Span
	method        string
	start         time.Time
	storeDuration time.Duration
	wishCount     int
	errorStage    string
}

func newWishRequestMetrics(ctx context.Context, logger *log.Logger, method string) (*wishRequestMetrics, context.Context) {
	spanCtx, span := otel.Tracer(wishesTracerName).Start(ctx, wishesSpanName, trace.WithSpanKind(trace.SpanKindServer))
	return &wishRequestMetrics{
		logger: logger,
		span:   span,
		method: method,
		start:  time.Now(),
	}, spanCtx
}

func (m *wishRequestMetrics) ObserveStore(duration time.Duration) {
	if duration <= 0 {
		return
	}
	m.storeDuration = duration
}

func (m *wishRequestMetrics) SetWishCount(count int) {
	if count < 0 {
		count = 0
	}
	m.wishCount = count
}

func (m *wishRequestMetrics) SetErrorStage(stage string) {
	if stage == "" {
		return
	}
	m.errorStage = stage
}

// Log finishes the span and writes one structured entry describing the request.
func (m *wishRequestMetrics) Log(status int, err error) {
	if m == nil {
		return
	}

	severityText, severityNumber := severityForStatus(status, err)
	attrs := []attribute.KeyValue{
		attribute.String("http.route", wishesRoute),
		attribute.String("http.method", m.method),
		attribute.Int("http.status_code", status),
		attribute.Float64("wishboard.wishes.total_ms", durationToMillis(time.Since(m.start))),
		attribute.Int("wishboard.wishes.count", m.wishCount),
	}
	if m.storeDuration > 0 {
		attrs = append(attrs, attribute.Float64("wishboard.wishes.store_ms", durationToMillis(m.storeDuration)))
	}
	if m.errorStage != "" {
		attrs = append(attrs, attribute.String("wishboard.wishes.error_stage", m.errorStage))
	}
	if err != nil {
		attrs = append(attrs, attribute.String("error.message", err.Error()))
	}

	if m.span != nil {
		m.span.SetAttributes(attrs...)
		eventAttrs := append([]attribute.KeyValue{
			attribute.String("event.name", wishesEventName),
			attribute.String("event.domain", wishesEventDomain),
			attribute.String("severity_text", severityText),
			attribute.Int("severity_number", severityNumber),
		}, attrs...)
		m.span.AddEvent(observabilityMsg, trace.WithAttributes(eventAttrs...))
		if severityText == "ERROR" {
			desc := fmt.Sprintf("status %d", status)
			if err != nil {
				desc = err.Error()
			}
			m.span.SetStatus(codes.Error, desc)
		} else {
			m.span.SetStatus(codes.Ok, "")
		}
		m.span.End()
	}

	if m.logger == nil {
		return
	}
	attrMap := make(map[string]any, len(attrs))
	for _, kv := range attrs {
		attrMap[string(kv.Key)] = kv.Value.AsInterface()
	}
	fields := log.Fields{
		"event.name":      wishesEventName,
		"event.domain":    wishesEventDomain,
		"severity_text":   severityText,
		"severity_number": severityNumber,
		"attributes":      attrMap,
	}
	if m.span != nil {
		if sc := m.span.SpanContext(); sc.IsValid() {
			fields["trace_id"] = sc.TraceID().String()
			fields["span_id"] = sc.SpanID().String()
		}
	}
	m.logger.WithFields(fields).Log(logLevelFor(severityText), observabilityMsg)
}

func severityForStatus(status int, err error) (string, int) {
	switch {
	case err != nil || status >= http.StatusInternalServerError:
		return "ERROR", 17
	case status >= http.StatusBadRequest:
		return "WARN", 13
	default:
		return "INFO", 9
	}
}

func logLevelFor(severity string) log.Level {
	switch severity {
	case "ERROR":
		return log.ErrorLevel
	case "WARN":
		return log.WarnLevel
	default:
		return log.InfoLevel
	}
}

func durationToMillis(d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return float64(d) / float64(time.Millisecond)
}
