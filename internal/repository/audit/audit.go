package auditrepo

import (
	"context"
	"fmt"

	"github.com/fazamuttaqien/permitting/internal/domain"
	"github.com/fazamuttaqien/permitting/internal/model"
	"github.com/fazamuttaqien/permitting/internal/repository"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const table = "audit_entries"

type auditRepository struct {
	db     *gorm.DB
	tracer trace.Tracer
	log    *zap.Logger
	ins    *repository.Instruments
}

// Create implements AuditRepository.
func (a *auditRepository) Create(ctx context.Context, entry *domain.AuditEntry) error {
	ctx, span := a.tracer.Start(ctx, "repository.Audit.Create")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("application.id", int64(entry.ApplicationID)),
		attribute.String("audit.action", entry.ActionCode),
	)
	q := a.ins.Start(ctx, span, "insert", table)

	data := model.AuditEntryFromEntity(entry)
	err := a.db.WithContext(ctx).Create(&data).Error

	q.Finish(err, 0, 1)
	if err != nil {
		return fmt.Errorf("create audit entry: %w", err)
	}

	entry.ID = data.ID
	entry.CreatedAt = data.CreatedAt
	return nil
}

// FindByApplication implements AuditRepository.
func (a *auditRepository) FindByApplication(ctx context.Context, applicationID uint64) ([]domain.AuditEntry, error) {
	ctx, span := a.tracer.Start(ctx, "repository.Audit.FindByApplication")
	defer span.End()

	q := a.ins.Start(ctx, span, "select", table)

	var data []model.AuditEntry
	err := a.db.WithContext(ctx).
		Where("application_id = ?", applicationID).
		Order("id ASC").
		Find(&data).Error

	q.Finish(err, len(data), 0)
	if err != nil {
		a.log.Error("Error listing audit entries",
			zap.Uint64("application_id", applicationID),
			zap.String("trace_id", span.SpanContext().TraceID().String()),
			zap.Error(err),
		)
		return nil, fmt.Errorf("list audit entries: %w", err)
	}

	entries := make([]domain.AuditEntry, len(data))
	for i, e := range data {
		entries[i] = model.AuditEntryToEntity(e)
	}
	return entries, nil
}

func NewAuditRepository(
	db *gorm.DB,
	meter metric.Meter,
	tracer trace.Tracer,
	log *zap.Logger,
) repository.AuditRepository {
	return &auditRepository{
		db:     db,
		tracer: tracer,
		log:    log,
		ins:    repository.NewInstruments(meter),
	}
}
