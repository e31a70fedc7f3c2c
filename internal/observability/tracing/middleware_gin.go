package tracing

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	obscontext "github.com/smallbiznis/billbook/internal/observability/context"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/baggage"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// MiddlewareConfig tunes the server spans.
type MiddlewareConfig struct {
	// SkipPaths are routes that never get a span, e.g. health checks.
	SkipPaths []string
	// ErrorClassifier maps a handler error to its API error type and code.
	ErrorClassifier func(error) (string, string)
}

// routeSubjects maps the resource a routed :id refers to.
var routeSubjects = map[string]string{
	"/v1/parties/":   "billbook.party_id",
	"/v1/bills/":     "billbook.bill_id",
	"/v1/tax-rates/": "billbook.tax_rate_id",
}

// GinMiddleware instruments inbound HTTP requests. It must run after the
// request logger so the request id is already on the context.
func GinMiddleware(cfg MiddlewareConfig) gin.HandlerFunc {
	tracer := otel.Tracer("billbook/http")
	skip := make(map[string]struct{}, len(cfg.SkipPaths))
	for _, path := range cfg.SkipPaths {
		skip[path] = struct{}{}
	}

	return func(c *gin.Context) {
		if _, ok := skip[c.Request.URL.Path]; ok {
			c.Next()
			return
		}

		ctx := ExtractContext(c.Request.Context(), propagation.HeaderCarrier(c.Request.Header))
		ctx, span := tracer.Start(ctx, "HTTP "+strings.ToUpper(c.Request.Method), trace.WithSpanKind(trace.SpanKindServer))
		defer span.End()

		if requestID := obscontext.RequestIDFromContext(ctx); requestID != "" {
			ctx = withRequestIDBaggage(ctx, requestID)
			span.SetAttributes(attribute.String("request_id", requestID))
		}

		c.Request = c.Request.WithContext(ctx)
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unknown"
		}
		status := c.Writer.Status()
		span.SetName("HTTP " + strings.ToUpper(c.Request.Method) + " " + route)

		attrs := []attribute.KeyValue{
			attribute.String("http.method", c.Request.Method),
			attribute.String("http.route", route),
			attribute.Int("http.status_code", status),
			attribute.Int64("http.server_duration_ms", time.Since(start).Milliseconds()),
			attribute.String("org_id", obscontext.OrgIDFromContext(c.Request.Context())),
		}
		if key, id := routeSubject(route, c.Param("id")); key != "" {
			attrs = append(attrs, attribute.String(key, id))
		}

		lastErr := c.Errors.Last()
		if lastErr != nil && status >= http.StatusBadRequest && cfg.ErrorClassifier != nil {
			errType, errCode := cfg.ErrorClassifier(lastErr.Err)
			attrs = append(attrs,
				attribute.String("error.type", errType),
				attribute.String("error.code", errCode),
			)
		}
		span.SetAttributes(SafeAttributes(attrs...)...)

		switch {
		case status >= http.StatusInternalServerError:
			if lastErr != nil {
				span.RecordError(SafeError(lastErr.Err))
			}
			span.SetStatus(codes.Error, "request error")
		case status == http.StatusConflict:
			// a conflict is a rejected posting, not a server fault
			span.AddEvent("posting.rejected")
		}
	}
}

func routeSubject(route, id string) (string, string) {
	if id == "" {
		return "", ""
	}
	for prefix, key := range routeSubjects {
		if strings.HasPrefix(route, prefix) {
			return key, id
		}
	}
	return "", ""
}

func withRequestIDBaggage(ctx context.Context, requestID string) context.Context {
	member, err := baggage.NewMember("request_id", requestID)
	if err != nil {
		return ctx
	}
	bag, err := baggage.New(member)
	if err != nil {
		return ctx
	}
	return baggage.ContextWithBaggage(ctx, bag)
}
