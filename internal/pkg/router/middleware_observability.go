package router

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/julienschmidt/httprouter"
	"github.com/shandysiswandi/otpgate/internal/pkg/config"
	"github.com/shandysiswandi/otpgate/internal/pkg/instrument"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

const (
	maxLoggedBodyBytes = 16 * 1024
	maskValue          = "***"
	scopeHTTPServer    = "otpgate.http.server"
)

// statusRecorder captures what the handler wrote so it can be logged once
// the response is complete.
type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
	body   bytes.Buffer
	capped bool
	err    error
}

func (w *statusRecorder) WriteHeader(code int) {
	if w.status == 0 {
		w.status = code
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusRecorder) Write(p []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}

	if room := maxLoggedBodyBytes - w.body.Len(); room < len(p) {
		w.body.Write(p[:max(room, 0)])
		w.capped = true
	} else {
		w.body.Write(p)
	}

	n, err := w.ResponseWriter.Write(p)
	w.bytes += n
	return n, err
}

// SetError keeps the handler error for the span.
func (w *statusRecorder) SetError(err error) { w.err = err }

// Unwrap lets http.ResponseController reach the underlying writer.
func (w *statusRecorder) Unwrap() http.ResponseWriter { return w.ResponseWriter }

func (w *statusRecorder) Status() int {
	if w.status == 0 {
		return http.StatusOK
	}
	return w.status
}

type httpMetrics struct {
	requests  metric.Int64Counter
	duration  metric.Float64Histogram
	throttled metric.Int64Counter
}

func newHTTPMetrics(meter metric.Meter) httpMetrics {
	var m httpMetrics
	var err error

	if m.requests, err = meter.Int64Counter("http.server.requests",
		metric.WithDescription("Number of HTTP requests served")); err != nil {
		slog.Error("failed to create http request counter", "error", err)
	}
	if m.duration, err = meter.Float64Histogram("http.server.duration",
		metric.WithDescription("HTTP request duration"), metric.WithUnit("ms")); err != nil {
		slog.Error("failed to create http duration histogram", "error", err)
	}
	if m.throttled, err = meter.Int64Counter("otpgate.http.throttled",
		metric.WithDescription("Responses refused with 429 by the rate limiter")); err != nil {
		slog.Error("failed to create throttled counter", "error", err)
	}

	return m
}

func (m httpMetrics) observe(ctx context.Context, status int, elapsed time.Duration, attrs []attribute.KeyValue) {
	opt := metric.WithAttributes(attrs...)
	if m.requests != nil {
		m.requests.Add(ctx, 1, opt)
	}
	if m.duration != nil {
		m.duration.Record(ctx, float64(elapsed.Microseconds())/1000, opt)
	}
	if m.throttled != nil && status == http.StatusTooManyRequests {
		m.throttled.Add(ctx, 1, opt)
	}
}

func routePattern(r *http.Request) string {
	if p := httprouter.ParamsFromContext(r.Context()).MatchedRoutePath(); p != "" {
		return p
	}
	return r.URL.Path
}

// peekBody reads up to the log limit and puts it back in front of the rest
// of the stream for the handler.
func peekBody(r *http.Request) []byte {
	if r.Body == nil || r.Body == http.NoBody {
		return nil
	}

	//nolint:errcheck // logging only
	head, _ := io.ReadAll(io.LimitReader(r.Body, maxLoggedBodyBytes))
	r.Body = struct {
		io.Reader
		io.Closer
	}{io.MultiReader(bytes.NewReader(head), r.Body), r.Body}
	return head
}

// loggableBody turns a captured body into a log value with secrets masked.
// JSON and form bodies are masked per field. Other text is kept as is.
func loggableBody(contentType string, body []byte, capped bool, maskKeys map[string]struct{}) any {
	if len(body) == 0 {
		return nil
	}

	var out any
	var js any
	switch {
	case !capped && json.Unmarshal(body, &js) == nil:
		out = instrument.MaskData(js, maskKeys)
	case strings.HasPrefix(strings.ToLower(contentType), "application/x-www-form-urlencoded"):
		out = maskForm(string(body), maskKeys)
	case utf8.Valid(body):
		out = string(body)
	default:
		out = "<binary body omitted>"
	}

	if capped {
		return map[string]any{"body": out, "truncated": true}
	}
	return out
}

func maskForm(raw string, maskKeys map[string]struct{}) any {
	values, err := url.ParseQuery(raw)
	if err != nil {
		return "<unparsable form omitted>"
	}

	out := make(map[string]any, len(values))
	for k, v := range values {
		switch {
		case isMasked(k, maskKeys):
			out[k] = maskValue
		case len(v) == 1:
			out[k] = v[0]
		default:
			out[k] = v
		}
	}
	return out
}

func maskHeaders(h http.Header, maskKeys map[string]struct{}) map[string]string {
	out := make(map[string]string, len(h))
	for k := range h {
		if isMasked(k, maskKeys) {
			out[k] = maskValue
			continue
		}
		out[k] = h.Get(k)
	}
	return out
}

func isMasked(key string, maskKeys map[string]struct{}) bool {
	_, ok := maskKeys[strings.ToLower(key)]
	return ok
}

func logLevelFor(status int) slog.Level {
	switch {
	case status >= http.StatusInternalServerError:
		return slog.LevelError
	case status == http.StatusTooManyRequests, status == http.StatusUnauthorized, status == http.StatusForbidden:
		return slog.LevelWarn
	default:
		return slog.LevelInfo
	}
}

// middlewareObservability wraps each request in a server span, records the
// request metrics and writes one masked log line per request.
func middlewareObservability(cfg config.Config, ins instrument.Instrumentation) Middleware {
	var maskFields []string
	if cfg != nil {
		maskFields = cfg.GetArray("instrument.log_mask_fields")
	}
	maskKeys := instrument.MaskKeys(maskFields)
	tracer := ins.Tracer(scopeHTTPServer)
	metrics := newHTTPMetrics(ins.Meter(scopeHTTPServer))

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			route := routePattern(r)

			ctx, span := tracer.Start(r.Context(), r.Method+" "+route,
				trace.WithSpanKind(trace.SpanKindServer),
				trace.WithAttributes(
					semconv.HTTPRequestMethodKey.String(r.Method),
					semconv.HTTPRouteKey.String(route),
					semconv.ClientAddressKey.String(r.RemoteAddr),
					semconv.UserAgentOriginalKey.String(r.UserAgent()),
				),
			)
			defer span.End()

			reqBody := peekBody(r)
			rec := &statusRecorder{ResponseWriter: w}
			next.ServeHTTP(rec, r.WithContext(ctx))

			status := rec.Status()
			elapsed := time.Since(start)

			attrs := []attribute.KeyValue{
				semconv.HTTPRequestMethodKey.String(r.Method),
				semconv.HTTPRouteKey.String(route),
				semconv.HTTPResponseStatusCodeKey.Int(status),
			}
			metrics.observe(ctx, status, elapsed, attrs)

			span.SetAttributes(semconv.HTTPResponseStatusCodeKey.Int(status),
				semconv.HTTPResponseBodySizeKey.Int(rec.bytes))
			if ra := rec.Header().Get("Retry-After"); ra != "" {
				span.SetAttributes(attribute.String("otpgate.retry_after", ra))
			}
			if rec.err != nil {
				span.RecordError(rec.err)
			}
			if status >= http.StatusInternalServerError {
				span.SetStatus(codes.Error, http.StatusText(status))
			}

			slog.Log(ctx, logLevelFor(status), "http request",
				"method", r.Method,
				"route", route,
				"client_ip", r.RemoteAddr,
				"status", status,
				"bytes", rec.bytes,
				"latency_ms", elapsed.Milliseconds(),
				"request_headers", maskHeaders(r.Header, maskKeys),
				"request_body", loggableBody(r.Header.Get("Content-Type"), reqBody, len(reqBody) == maxLoggedBodyBytes, maskKeys),
				"response_body", loggableBody(rec.Header().Get("Content-Type"), rec.body.Bytes(), rec.capped, maskKeys),
			)
		})
	}
}
