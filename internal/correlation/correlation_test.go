package correlation

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewID_Length(t *testing.T) {
	id := NewID()
	assert.Len(t, id, 8)
}

func TestNewID_Unique(t *testing.T) {
	ids := make(map[string]struct{}, 100)
	for i := 0; i < 100; i++ {
		ids[NewID()] = struct{}{}
	}
	assert.Len(t, ids, 100)
}

func TestWithID_and_ID_Roundtrip(t *testing.T) {
	ctx := WithID(context.Background(), "abc12345")
	id, ok := ID(ctx)
	assert.True(t, ok)
	assert.Equal(t, "abc12345", id)
}

func TestID_Missing(t *testing.T) {
	id, ok := ID(context.Background())
	assert.False(t, ok)
	assert.Empty(t, id)
}

func TestID_EmptyString(t *testing.T) {
	ctx := WithID(context.Background(), "")
	id, ok := ID(ctx)
	assert.False(t, ok)
	assert.Empty(t, id)
}

func TestMiddleware_GeneratesID(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	var seen string
	handler := Middleware()(func(c echo.Context) error {
		id, ok := ID(c.Request().Context())
		require.True(t, ok)
		seen = id
		return nil
	})

	require.NoError(t, handler(c))
	assert.Len(t, seen, 8)
	assert.Equal(t, seen, rec.Header().Get(HeaderName))
}

func TestMiddleware_ReusesClientID(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set(HeaderName, "client99")
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	handler := Middleware()(func(c echo.Context) error {
		id, ok := ID(c.Request().Context())
		require.True(t, ok)
		assert.Equal(t, "client99", id)
		return nil
	})

	require.NoError(t, handler(c))
	assert.Equal(t, "client99", rec.Header().Get(HeaderName))
}

func TestMiddleware_ReplacesOversizedClientID(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set(HeaderName, strings.Repeat("x", maxInboundIDLength+1))
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	handler := Middleware()(func(c echo.Context) error {
		return nil
	})

	require.NoError(t, handler(c))
	assert.Len(t, rec.Header().Get(HeaderName), 8)
}

func TestHandler_AddsCorrelationID(t *testing.T) {
	var buf bytes.Buffer
	inner := slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	handler := NewHandler(inner)
	logger := slog.New(handler)

	ctx := WithID(context.Background(), "test1234")
	logger.InfoContext(ctx, "test message", "key", "value")

	output := buf.String()
	assert.Contains(t, output, "correlation_id=test1234")
	assert.Contains(t, output, "key=value")
	assert.Contains(t, output, "test message")
}

func TestHandler_NoCorrelationID_WhenMissing(t *testing.T) {
	var buf bytes.Buffer
	inner := slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	handler := NewHandler(inner)
	logger := slog.New(handler)

	logger.InfoContext(context.Background(), "no correlation")

	output := buf.String()
	assert.NotContains(t, output, "correlation_id")
}

func TestHandler_WithAttrs_PreservesCorrelation(t *testing.T) {
	var buf bytes.Buffer
	inner := slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	handler := NewHandler(inner)
	logger := slog.New(handler).With("component", "test")

	ctx := WithID(context.Background(), "attr1234")
	logger.InfoContext(ctx, "with attrs")

	output := buf.String()
	assert.Contains(t, output, "correlation_id=attr1234")
	assert.Contains(t, output, "component=test")
}
