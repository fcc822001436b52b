package errors

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTPErrorsTotal tracks HTTP errors by type
	HTTPErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_errors_total",
			Help: "Total HTTP errors by error type",
		},
		[]string{"type"},
	)
)

// Middleware returns an Echo middleware that handles structured errors.
// It catches errors returned by handlers and converts them to appropriate
// HTTP responses.
func Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			err := next(c)
			if err == nil {
				return nil
			}

			// Echo HTTPErrors (router 404s, body-limit rejections) keep
			// their status code; the default handler renders them.
			var httpErr *echo.HTTPError
			if errors.As(err, &httpErr) {
				HTTPErrorsTotal.WithLabelValues(string(classifyStatus(httpErr.Code))).Inc()
				return err
			}

			structuredErr := AsStructuredError(err)
			HTTPErrorsTotal.WithLabelValues(string(structuredErr.Type)).Inc()
			logError(c, structuredErr)

			if err := c.JSON(structuredErr.HTTPStatus(), structuredErr.ToResponse()); err != nil {
				return fmt.Errorf("failed to write error response: %w", err)
			}
			return nil
		}
	}
}

// logError logs an error with request context.
func logError(c echo.Context, err *Error) {
	ctx := c.Request().Context()
	attrs := []any{
		"error_type", err.Type,
		"message", err.Message,
		"path", c.Request().URL.Path,
		"method", c.Request().Method,
		"status", err.HTTPStatus(),
	}
	for k, v := range err.Context {
		attrs = append(attrs, k, v)
	}

	switch err.Type {
	case TypeValidation:
		slog.InfoContext(ctx, "Validation error", attrs...)
	case TypeNotFound:
		slog.InfoContext(ctx, "Not found", attrs...)
	case TypeCapacity:
		slog.WarnContext(ctx, "Capacity refused", attrs...)
	case TypeInternal:
		if err.Cause != nil {
			attrs = append(attrs, "cause", err.Cause)
		}
		slog.ErrorContext(ctx, "Internal error", attrs...)
	default:
		slog.ErrorContext(ctx, "Unknown error type", attrs...)
	}
}

// classifyStatus maps an HTTP status code onto the error taxonomy for
// metric labels.
func classifyStatus(code int) ErrorType {
	switch code {
	case http.StatusBadRequest:
		return TypeValidation
	case http.StatusNotFound:
		return TypeNotFound
	case http.StatusServiceUnavailable:
		return TypeCapacity
	default:
		return TypeInternal
	}
}
