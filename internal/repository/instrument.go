package repository

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Instruments holds the query metrics shared by every repository.
type Instruments struct {
	queryDuration   metric.Float64Histogram
	queryCount      metric.Int64Counter
	errorCount      metric.Int64Counter
	connectionGauge metric.Int64UpDownCounter
	rowsWritten     metric.Int64Counter
	rowsRetrieved   metric.Int64Counter
}

func NewInstruments(meter metric.Meter) *Instruments {
	queryDuration, _ := meter.Float64Histogram(
		"db.query.duration",
		metric.WithDescription("Duration of database queries"),
		metric.WithUnit("ms"),
	)

	queryCount, _ := meter.Int64Counter(
		"db.query.count",
		metric.WithDescription("Number of database queries"),
		metric.WithUnit("{query}"),
	)

	errorCount, _ := meter.Int64Counter(
		"db.error.count",
		metric.WithDescription("Number of database errors"),
		metric.WithUnit("{error}"),
	)

	connectionGauge, _ := meter.Int64UpDownCounter(
		"db.connections",
		metric.WithDescription("Number of active database operations"),
		metric.WithUnit("{connection}"),
	)

	rowsWritten, _ := meter.Int64Counter(
		"db.rows.written",
		metric.WithDescription("Number of rows inserted or updated"),
		metric.WithUnit("{row}"),
	)

	rowsRetrieved, _ := meter.Int64Counter(
		"db.rows.retrieved",
		metric.WithDescription("Number of rows retrieved from the database"),
		metric.WithUnit("{row}"),
	)

	return &Instruments{
		queryDuration:   queryDuration,
		queryCount:      queryCount,
		errorCount:      errorCount,
		connectionGauge: connectionGauge,
		rowsWritten:     rowsWritten,
		rowsRetrieved:   rowsRetrieved,
	}
}

// Query is one observed database operation. Finish must be called exactly once.
type Query struct {
	ins       *Instruments
	ctx       context.Context
	span      trace.Span
	operation string
	table     string
	start     time.Time
}

func (i *Instruments) Start(ctx context.Context, span trace.Span, operation, table string) *Query {
	attrs := metric.WithAttributes(
		attribute.String("operation", operation),
		attribute.String("table", table),
	)
	i.connectionGauge.Add(ctx, 1, attrs)
	i.queryCount.Add(ctx, 1, attrs)

	span.SetAttributes(
		attribute.String("db.operation", operation),
		attribute.String("db.table", table),
	)

	return &Query{ins: i, ctx: ctx, span: span, operation: operation, table: table, start: time.Now()}
}

// Finish records duration and outcome, and returns the elapsed milliseconds.
// read and written feed the row counters.
func (q *Query) Finish(err error, read, written int) float64 {
	attrs := metric.WithAttributes(
		attribute.String("operation", q.operation),
		attribute.String("table", q.table),
	)
	q.ins.connectionGauge.Add(q.ctx, -1, attrs)

	duration := float64(time.Since(q.start).Milliseconds())
	status := "success"

	if err != nil {
		status = "error"
		q.span.SetStatus(codes.Error, err.Error())
		q.span.RecordError(err)
		q.ins.errorCount.Add(q.ctx, 1,
			metric.WithAttributes(
				attribute.String("operation", q.operation),
				attribute.String("table", q.table),
				attribute.String("error", err.Error()),
			),
		)
	} else {
		q.span.SetStatus(codes.Ok, q.operation+" "+q.table)
		if read > 0 {
			q.ins.rowsRetrieved.Add(q.ctx, int64(read), metric.WithAttributes(attribute.String("table", q.table)))
		}
		if written > 0 {
			q.ins.rowsWritten.Add(q.ctx, int64(written), metric.WithAttributes(attribute.String("table", q.table)))
		}
	}

	q.ins.queryDuration.Record(q.ctx, duration,
		metric.WithAttributes(
			attribute.String("operation", q.operation),
			attribute.String("table", q.table),
			attribute.String("status", status),
		),
	)

	return duration
}
