package tracing

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func installRecorder(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	previous := otel.GetTracerProvider()
	otel.SetTracerProvider(provider)
	t.Cleanup(func() { otel.SetTracerProvider(previous) })
	return recorder
}

func TestGinMiddlewareNamesSpanByRoute(t *testing.T) {
	gin.SetMode(gin.TestMode)
	recorder := installRecorder(t)

	r := gin.New()
	r.Use(GinMiddleware(MiddlewareConfig{}))
	r.GET("/v1/bills/:id", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.POST("/v1/payments", func(c *gin.Context) {
		_ = c.Error(fmt.Errorf("post payment: %w", errors.New("ledger_post_failure")))
		c.Status(http.StatusInternalServerError)
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/v1/bills/42", nil))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/v1/payments", nil))

	spans := recorder.Ended()
	if len(spans) != 2 {
		t.Fatalf("expected 2 spans, got %d", len(spans))
	}
	if got := spans[0].Name(); got != "HTTP GET /v1/bills/:id" {
		t.Fatalf("unexpected span name %q", got)
	}
	if spans[0].Status().Code == codes.Error {
		t.Fatalf("successful request marked as error")
	}
	if spans[1].Status().Code != codes.Error {
		t.Fatalf("expected error status on 500")
	}
	events := spans[1].Events()
	if len(events) == 0 {
		t.Fatalf("expected recorded error event")
	}
	for _, attr := range events[0].Attributes {
		if attr.Key == "exception.message" && attr.Value.AsString() != "ledger_post_failure" {
			t.Fatalf("error message leaked wrapping context: %q", attr.Value.AsString())
		}
	}
}

func TestSafeAttributesDropsPaymentDetails(t *testing.T) {
	attrs := SafeAttributes(
		attribute.String("utr", "412345678901"),
		attribute.String("http.route", strings.Repeat("a", 400)),
		attribute.Int("http.status_code", 201),
	)
	if len(attrs) != 2 {
		t.Fatalf("expected blocked key dropped, got %v", attrs)
	}
	if got := len(attrs[0].Value.AsString()); got != maxAttributeLength {
		t.Fatalf("expected truncation to %d, got %d", maxAttributeLength, got)
	}
}

func TestClampRatio(t *testing.T) {
	cases := map[float64]float64{-1: 0, 0.25: 0.25, 3: 1}
	for in, want := range cases {
		if got := clampRatio(in); got != want {
			t.Fatalf("clampRatio(%v) = %v, want %v", in, got, want)
		}
	}
}

func TestGinMiddlewareTagsSubjectAndErrorCode(t *testing.T) {
	gin.SetMode(gin.TestMode)
	recorder := installRecorder(t)

	r := gin.New()
	r.Use(GinMiddleware(MiddlewareConfig{
		SkipPaths: []string{"/healthz"},
		ErrorClassifier: func(err error) (string, string) {
			return "concurrency_conflict", err.Error()
		},
	}))
	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.POST("/v1/bills/:id/cancel", func(c *gin.Context) {
		_ = c.Error(errors.New("concurrency_conflict"))
		c.Status(http.StatusConflict)
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/healthz", nil))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/v1/bills/77/cancel", nil))

	spans := recorder.Ended()
	if len(spans) != 1 {
		t.Fatalf("expected health check to be skipped, got %d spans", len(spans))
	}
	span := spans[0]
	if span.Status().Code == codes.Error {
		t.Fatalf("conflict must not mark the span as a server error")
	}

	attrs := map[attribute.Key]string{}
	for _, attr := range span.Attributes() {
		attrs[attr.Key] = attr.Value.Emit()
	}
	if attrs["billbook.bill_id"] != "77" {
		t.Fatalf("expected bill id attribute, got %v", attrs)
	}
	if attrs["error.type"] != "concurrency_conflict" || attrs["error.code"] != "concurrency_conflict" {
		t.Fatalf("expected classified error attributes, got %v", attrs)
	}

	var rejected bool
	for _, event := range span.Events() {
		if event.Name == "posting.rejected" {
			rejected = true
		}
	}
	if !rejected {
		t.Fatalf("expected posting.rejected event on conflict")
	}
}
