package service

import (
	"context"
	"strings"
	"time"

	"github.com/fazamuttaqien/permitting/pkg/common"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Instruments holds the operation metrics of one service.
type Instruments struct {
	service           string
	operationDuration metric.Float64Histogram
	operationCount    metric.Int64Counter
	errorCount        metric.Int64Counter
}

func NewInstruments(meter metric.Meter, service string) *Instruments {
	operationDuration, _ := meter.Float64Histogram(
		"service.operation.duration",
		metric.WithDescription("Duration of service operations"),
		metric.WithUnit("ms"),
	)

	operationCount, _ := meter.Int64Counter(
		"service.operation.count",
		metric.WithDescription("Number of service operations"),
		metric.WithUnit("{operation}"),
	)

	errorCount, _ := meter.Int64Counter(
		"service.error.count",
		metric.WithDescription("Number of service errors"),
		metric.WithUnit("{error}"),
	)

	return &Instruments{
		service:           service,
		operationDuration: operationDuration,
		operationCount:    operationCount,
		errorCount:        errorCount,
	}
}

type Operation struct {
	ins   *Instruments
	ctx   context.Context
	span  trace.Span
	name  string
	start time.Time
}

func (i *Instruments) Begin(ctx context.Context, span trace.Span, operation string) *Operation {
	i.operationCount.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("operation", operation),
			attribute.String("service", i.service),
		),
	)
	span.SetAttributes(attribute.String("service", i.service))

	return &Operation{ins: i, ctx: ctx, span: span, name: operation, start: time.Now()}
}

// End records the outcome and returns the elapsed milliseconds.
func (o *Operation) End(err error) float64 {
	duration := float64(time.Since(o.start).Milliseconds())
	status := "success"

	if err != nil {
		status = "error"
		o.span.SetStatus(codes.Error, err.Error())
		o.span.RecordError(err)

		o.ins.errorCount.Add(o.ctx, 1,
			metric.WithAttributes(
				attribute.String("operation", o.name),
				attribute.String("service", o.ins.service),
				attribute.String("error_type", ErrorType(err)),
			),
		)
	} else {
		o.span.SetStatus(codes.Ok, o.name)
	}

	o.ins.operationDuration.Record(o.ctx, duration,
		metric.WithAttributes(
			attribute.String("operation", o.name),
			attribute.String("service", o.ins.service),
			attribute.String("status", status),
		),
	)

	return duration
}

// ErrorType names the error kind for metrics and logs.
func ErrorType(err error) string {
	kind := common.Kind(err)
	if kind == nil {
		return "internal"
	}
	return strings.ReplaceAll(kind.Error(), " ", "_")
}
