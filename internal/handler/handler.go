package handler

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/fazamuttaqien/permitting/pkg/common"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// ServiceTimeout bounds every service call made from a handler.
const ServiceTimeout = 15 * time.Second

// Base carries the instruments every permitting handler records into.
type Base struct {
	Validate *validator.Validate

	tracer          trace.Tracer
	log             *zap.Logger
	requestCount    metric.Int64Counter
	requestDuration metric.Float64Histogram
	errorCount      metric.Int64Counter
	responseSize    metric.Int64Histogram
}

func NewBase(meter metric.Meter, tracer trace.Tracer, log *zap.Logger) Base {
	requestCount, err := meter.Int64Counter(
		"api.request.count",
		metric.WithDescription("Number of API requests received"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		zap.L().Fatal("Failed to create request count metric", zap.Error(err))
	}

	requestDuration, err := meter.Float64Histogram(
		"api.request.duration",
		metric.WithDescription("Duration of API requests"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		zap.L().Fatal("Failed to create request duration metric", zap.Error(err))
	}

	errorCount, err := meter.Int64Counter(
		"api.error.count",
		metric.WithDescription("Number of API errors"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		zap.L().Fatal("Failed to create error count metric", zap.Error(err))
	}

	responseSize, err := meter.Int64Histogram(
		"api.response.size",
		metric.WithDescription("Size of API responses in bytes"),
		metric.WithUnit("By"),
	)
	if err != nil {
		zap.L().Fatal("Failed to create response size metric", zap.Error(err))
	}

	return Base{
		Validate:        validator.New(validator.WithRequiredStructEnabled()),
		tracer:          tracer,
		log:             log,
		requestCount:    requestCount,
		requestDuration: requestDuration,
		errorCount:      errorCount,
		responseSize:    responseSize,
	}
}

// Start opens the handler span and counts the request.
func (b *Base) Start(c *fiber.Ctx, operation string) (context.Context, trace.Span, time.Time) {
	ctx, span := b.tracer.Start(c.UserContext(), "handler."+operation)
	start := time.Now()

	span.SetAttributes(
		attribute.String("http.method", c.Method()),
		attribute.String("http.route", c.Path()),
		attribute.String("http.user_agent", string(c.Request().Header.UserAgent())),
		attribute.String("http.client_ip", c.IP()),
	)

	b.log.Debug("Received "+operation+" request",
		zap.String("method", c.Method()),
		zap.String("path", c.Path()),
		zap.String("client_ip", c.IP()),
		zap.String("trace_id", span.SpanContext().TraceID().String()),
	)

	b.requestCount.Add(ctx, 1, metric.WithAttributes(
		attribute.String("endpoint", c.Path()),
		attribute.String("method", c.Method()),
	))

	return ctx, span, start
}

// RecordError records an error with observability and writes {"error": message}.
func (b *Base) RecordError(
	ctx context.Context, span trace.Span, c *fiber.Ctx,
	start time.Time, err error, statusCode int, errorType, message string, fields ...zap.Field) error {
	return b.recordError(ctx, span, c, start, err, statusCode, errorType, message, fiber.Map{"error": message}, fields...)
}

// RecordServiceError maps a service error onto its HTTP status by kind.
// Conflicts carry a retryable flag so clients know whether to re-fetch and retry.
func (b *Base) RecordServiceError(
	ctx context.Context, span trace.Span, c *fiber.Ctx,
	start time.Time, err error, fields ...zap.Field) error {
	fields = append(fields, zap.Error(err))

	switch {
	case errors.Is(err, common.ErrValidation):
		return b.recordError(ctx, span, c, start, err,
			fiber.StatusBadRequest, "validation_error", "Validation failed",
			fiber.Map{"error": err.Error()}, fields...)
	case errors.Is(err, common.ErrAuthorization):
		return b.recordError(ctx, span, c, start, err,
			fiber.StatusForbidden, "authorization_error", "Access denied",
			fiber.Map{"error": err.Error()}, fields...)
	case errors.Is(err, common.ErrNotFound):
		return b.recordError(ctx, span, c, start, err,
			fiber.StatusNotFound, "not_found", "Resource not found",
			fiber.Map{"error": err.Error()}, fields...)
	case errors.Is(err, common.ErrConflict):
		retryable := common.IsRetryable(err)
		return b.recordError(ctx, span, c, start, err,
			fiber.StatusConflict, "conflict", "Request conflicts with current state",
			fiber.Map{"error": err.Error(), "retryable": retryable}, append(fields, zap.Bool("retryable", retryable))...)
	case errors.Is(err, context.DeadlineExceeded):
		return b.recordError(ctx, span, c, start, err,
			fiber.StatusGatewayTimeout, "timeout", "Request timed out",
			fiber.Map{"error": "Request timed out"}, fields...)
	default:
		return b.recordError(ctx, span, c, start, err,
			fiber.StatusInternalServerError, "service_error", "Internal server error",
			fiber.Map{"error": "Internal server error"}, fields...)
	}
}

func (b *Base) recordError(
	ctx context.Context, span trace.Span, c *fiber.Ctx,
	start time.Time, err error, statusCode int, errorType, message string, body fiber.Map, fields ...zap.Field) error {
	b.errorCount.Add(ctx, 1, metric.WithAttributes(
		attribute.String("endpoint", c.Path()),
		attribute.String("method", c.Method()),
		attribute.String("error_type", errorType),
		attribute.Int("status_code", statusCode),
	))

	duration := float64(time.Since(start).Nanoseconds()) / 1e6
	b.requestDuration.Record(ctx, duration, metric.WithAttributes(
		attribute.String("endpoint", c.Path()),
		attribute.String("method", c.Method()),
		attribute.Int("status_code", statusCode),
	))

	span.SetAttributes(
		attribute.String("error.type", errorType),
		attribute.String("error.message", err.Error()),
		attribute.Int("http.status_code", statusCode),
	)
	span.RecordError(err)

	logFields := append([]zap.Field{
		zap.String("trace_id", span.SpanContext().TraceID().String()),
		zap.String("span_id", span.SpanContext().SpanID().String()),
		zap.Int("status_code", statusCode),
		zap.String("error_type", errorType),
		zap.Float64("duration_ms", duration),
	}, fields...)

	// Client mistakes are expected traffic; only server faults are errors.
	if statusCode >= fiber.StatusInternalServerError {
		b.log.Error(message, logFields...)
	} else {
		b.log.Warn(message, logFields...)
	}

	return c.Status(statusCode).JSON(body)
}

// RecordSuccess records a successful response with observability.
func (b *Base) RecordSuccess(
	ctx context.Context, span trace.Span, c *fiber.Ctx,
	start time.Time, statusCode int, responseData any, fields ...zap.Field) error {
	duration := float64(time.Since(start).Nanoseconds()) / 1e6
	b.requestDuration.Record(ctx, duration, metric.WithAttributes(
		attribute.String("endpoint", c.Path()),
		attribute.String("method", c.Method()),
		attribute.Int("status_code", statusCode),
	))

	span.SetAttributes(
		attribute.Int("http.status_code", statusCode),
		attribute.Float64("request.duration_ms", duration),
	)

	logFields := append([]zap.Field{
		zap.String("trace_id", span.SpanContext().TraceID().String()),
		zap.String("span_id", span.SpanContext().SpanID().String()),
		zap.Int("status_code", statusCode),
		zap.Float64("duration_ms", duration),
	}, fields...)

	b.log.Info("Request completed successfully", logFields...)

	if responseData == nil {
		return c.SendStatus(statusCode)
	}

	if err := c.Status(statusCode).JSON(responseData); err != nil {
		return err
	}
	b.responseSize.Record(ctx, int64(len(c.Response().Body())), metric.WithAttributes(
		attribute.String("endpoint", c.Path()),
		attribute.String("method", c.Method()),
	))
	return nil
}

// ParseID reads a positive numeric path parameter.
func ParseID(c *fiber.Ctx, name string) (uint64, error) {
	id, err := strconv.ParseUint(c.Params(name), 10, 64)
	if err != nil || id == 0 {
		return 0, common.NewValidation("", nil, "invalid %s %q", name, c.Params(name))
	}
	return id, nil
}

// ServiceContext bounds a service call.
func ServiceContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, ServiceTimeout)
}
