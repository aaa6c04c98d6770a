package entityrepo

import (
	"context"
	"errors"
	"fmt"

	"github.com/fazamuttaqien/permitting/internal/domain"
	"github.com/fazamuttaqien/permitting/internal/model"
	"github.com/fazamuttaqien/permitting/internal/repository"
	"github.com/fazamuttaqien/permitting/pkg/common"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type entityRepository struct {
	db     *gorm.DB
	tracer trace.Tracer
	log    *zap.Logger
	ins    *repository.Instruments
}

// FindByID implements EntityRepository.
func (e *entityRepository) FindByID(ctx context.Context, id uint64) (*domain.Entity, error) {
	ctx, span := e.tracer.Start(ctx, "repository.Entity.FindByID")
	defer span.End()

	q := e.ins.Start(ctx, span, "select", "entities")

	var data model.Entity
	err := e.db.WithContext(ctx).First(&data, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		q.Finish(nil, 0, 0)
		return nil, common.NewNotFound("entity", id)
	}

	q.Finish(err, 1, 0)
	if err != nil {
		e.log.Error("Error finding entity",
			zap.Uint64("entity_id", id),
			zap.String("trace_id", span.SpanContext().TraceID().String()),
			zap.Error(err),
		)
		return nil, fmt.Errorf("find entity: %w", err)
	}

	return model.EntityToEntity(data), nil
}

func NewEntityRepository(
	db *gorm.DB,
	meter metric.Meter,
	tracer trace.Tracer,
	log *zap.Logger,
) repository.EntityRepository {
	return &entityRepository{
		db:     db,
		tracer: tracer,
		log:    log,
		ins:    repository.NewInstruments(meter),
	}
}
