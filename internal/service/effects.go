package service

import (
	"context"
	"time"

	"github.com/fazamuttaqien/permitting/internal/audit"
	"github.com/fazamuttaqien/permitting/internal/domain"
	"github.com/fazamuttaqien/permitting/internal/notify"
	"github.com/fazamuttaqien/permitting/internal/repository"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Settings are the tunables shared by the application, assessment and
// payment services.
type Settings struct {
	LockTimeout      time.Duration
	PaymentTolerance decimal.Decimal
	Now              func() time.Time
}

func (s Settings) Clock() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

// Effects runs the post-commit side effects of a lifecycle operation. None
// of them can fail the operation.
type Effects struct {
	Audit    *audit.Recorder
	Notifier notify.Notifier
	Users    repository.UserRepository
	Roles    domain.RoleCapabilities
	Log      *zap.Logger
}

func (e *Effects) Record(ctx context.Context, actorID, applicationID uint64, action, format string, args ...any) {
	if e == nil || e.Audit == nil {
		return
	}
	e.Audit.Record(ctx, actorID, applicationID, action, format, args...)
}

// NotifyCreator tells the user who filed the application.
func (e *Effects) NotifyCreator(ctx context.Context, app *domain.Application, eventType domain.EventType, message string) {
	if e == nil || e.Notifier == nil {
		return
	}
	e.Notifier.Notify(ctx, []uint64{app.CreatorID}, NewEvent(eventType, app, message))
}

// NotifyCapability tells every user whose roles grant capability.
func (e *Effects) NotifyCapability(ctx context.Context, capability domain.Capability, app *domain.Application, eventType domain.EventType, message string) {
	if e == nil || e.Notifier == nil || e.Users == nil {
		return
	}

	users, err := e.Users.FindAll(context.WithoutCancel(ctx))
	if err != nil {
		e.Log.Error("Failed to resolve notification recipients",
			zap.Uint64("application_id", app.ID),
			zap.String("capability", string(capability)),
			zap.String("trace_id", trace.SpanFromContext(ctx).SpanContext().TraceID().String()),
			zap.Error(err),
		)
		return
	}

	var recipients []uint64
	for _, u := range users {
		if e.Roles.Resolve(u.Roles).Has(capability) {
			recipients = append(recipients, u.ID)
		}
	}

	e.Notifier.Notify(ctx, recipients, NewEvent(eventType, app, message))
}

func NewEvent(eventType domain.EventType, app *domain.Application, message string) domain.Event {
	event := domain.Event{
		Type:          eventType,
		ApplicationID: app.ID,
		Status:        app.Status,
		Message:       message,
	}
	if app.ApplicationNumber != nil {
		event.ApplicationNumber = *app.ApplicationNumber
	}
	return event
}

// LogOutcome writes the closing log line of a service operation. Domain
// errors are expected outcomes and log at warn level.
func LogOutcome(log *zap.Logger, span trace.Span, operation string, duration float64, err error, fields ...zap.Field) {
	fields = append(fields,
		zap.String("operation", operation),
		zap.Float64("duration_ms", duration),
		zap.String("trace_id", span.SpanContext().TraceID().String()),
	)

	switch {
	case err == nil:
		log.Info("Operation completed", fields...)
	case ErrorType(err) != "internal":
		log.Warn("Operation rejected", append(fields, zap.String("error_type", ErrorType(err)), zap.Error(err))...)
	default:
		log.Error("Operation failed", append(fields, zap.Error(err))...)
	}
}
