package middleware

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// RequestMetrics records per-route HTTP metrics and one log line per
// request. Spans come from otelfiber, which must run first.
type RequestMetrics struct {
	requests     metric.Int64Counter
	duration     metric.Float64Histogram
	responseSize metric.Int64Histogram
	inFlight     metric.Int64UpDownCounter
	log          *zap.Logger
}

func NewRequestMetrics(meter metric.Meter, log *zap.Logger) (*RequestMetrics, error) {
	requests, err1 := meter.Int64Counter("http.server.request.count",
		metric.WithDescription("HTTP requests by route and status"),
		metric.WithUnit("{request}"))
	duration, err2 := meter.Float64Histogram("http.server.request.duration",
		metric.WithDescription("HTTP request latency"),
		metric.WithUnit("ms"))
	responseSize, err3 := meter.Int64Histogram("http.server.response.size",
		metric.WithUnit("By"))
	inFlight, err4 := meter.Int64UpDownCounter("http.server.active.requests",
		metric.WithUnit("{request}"))
	if err := errors.Join(err1, err2, err3, err4); err != nil {
		return nil, err
	}

	return &RequestMetrics{
		requests:     requests,
		duration:     duration,
		responseSize: responseSize,
		inFlight:     inFlight,
		log:          log,
	}, nil
}

func (m *RequestMetrics) Handle() fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx := c.UserContext()
		start := time.Now()

		m.inFlight.Add(ctx, 1)
		defer m.inFlight.Add(ctx, -1)

		err := c.Next()

		status := statusOf(c, err)
		elapsed := float64(time.Since(start).Microseconds()) / 1000
		size := int64(len(c.Response().Body()))
		attrs := metric.WithAttributes(
			attribute.String("http.method", c.Method()),
			attribute.String("http.route", routeOf(c)),
			attribute.Int("http.status_code", status),
		)
		m.requests.Add(ctx, 1, attrs)
		m.duration.Record(ctx, elapsed, attrs)
		m.responseSize.Record(ctx, size, attrs)

		fields := []zap.Field{
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.Int("status", status),
			zap.Float64("duration_ms", elapsed),
			zap.Int64("response_size", size),
			zap.String("trace_id", trace.SpanFromContext(ctx).SpanContext().TraceID().String()),
		}
		switch {
		case status >= fiber.StatusInternalServerError:
			m.log.Error("HTTP request failed", append(fields, zap.Error(err))...)
		case status >= fiber.StatusBadRequest:
			m.log.Warn("HTTP request rejected", fields...)
		default:
			m.log.Info("HTTP request completed", fields...)
		}

		return err
	}
}

// statusOf is the status the error handler will write when err is set.
func statusOf(c *fiber.Ctx, err error) int {
	if err == nil {
		return c.Response().StatusCode()
	}
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return fe.Code
	}
	return fiber.StatusInternalServerError
}

// routeOf keeps metric cardinality bounded by preferring the route pattern.
func routeOf(c *fiber.Ctx) string {
	if r := c.Route(); r != nil && r.Path != "" {
		return r.Path
	}
	return c.Path()
}
