package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"petpals/internal/observability"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func recordSpans(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	prev := observability.Tracer
	observability.Tracer = tp.Tracer("petpals-test")
	t.Cleanup(func() {
		observability.Tracer = prev
		_ = tp.Shutdown(context.Background())
	})
	return rec
}

func spanAttr(span sdktrace.ReadOnlySpan, key string) (attribute.Value, bool) {
	for _, kv := range span.Attributes() {
		if string(kv.Key) == key {
			return kv.Value, true
		}
	}
	return attribute.Value{}, false
}

func TestTracingMiddleware_NamesSpanByRoute(t *testing.T) {
	rec := recordSpans(t)
	app := fiber.New()
	app.Use(TracingMiddleware())
	app.Get("/api/posts/:id/comments/:commentId", func(c *fiber.Ctx) error {
		c.Locals("userID", "u1")
		return c.SendStatus(fiber.StatusOK)
	})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/posts/p42/comments/c7", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	spans := rec.Ended()
	require.Len(t, spans, 1)
	span := spans[0]
	assert.Equal(t, "GET /api/posts/:id/comments/:commentId", span.Name())
	assert.Equal(t, span.SpanContext().TraceID().String(), resp.Header.Get("X-Trace-ID"))

	for key, want := range map[string]string{
		"petpals.post_id":    "p42",
		"petpals.comment_id": "c7",
		"enduser.id":         "u1",
		"http.route":         "/api/posts/:id/comments/:commentId",
	} {
		v, ok := spanAttr(span, key)
		require.True(t, ok, key)
		assert.Equal(t, want, v.AsString(), key)
	}
	status, ok := spanAttr(span, "http.status_code")
	require.True(t, ok)
	assert.Equal(t, int64(http.StatusOK), status.AsInt64())
	assert.NotEqual(t, codes.Error, span.Status().Code)
}

func TestTracingMiddleware_MarksServerErrors(t *testing.T) {
	rec := recordSpans(t)
	app := fiber.New()
	app.Use(TracingMiddleware())
	app.Get("/api/feed", func(c *fiber.Ctx) error {
		return fiber.NewError(fiber.StatusServiceUnavailable, "store down")
	})
	app.Get("/api/users/:userId/stats", func(c *fiber.Ctx) error {
		return fiber.NewError(fiber.StatusNotFound, "no such user")
	})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/feed", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/api/users/bob/stats", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	spans := rec.Ended()
	require.Len(t, spans, 2)

	status, _ := spanAttr(spans[0], "http.status_code")
	assert.Equal(t, int64(http.StatusServiceUnavailable), status.AsInt64())
	assert.Equal(t, codes.Error, spans[0].Status().Code)

	target, ok := spanAttr(spans[1], "petpals.target_user_id")
	require.True(t, ok)
	assert.Equal(t, "bob", target.AsString())
	assert.NotEqual(t, codes.Error, spans[1].Status().Code)
}
