package catalogrepo

import (
	"context"
	"errors"
	"fmt"

	"github.com/fazamuttaqien/permitting/internal/domain"
	"github.com/fazamuttaqien/permitting/internal/model"
	"github.com/fazamuttaqien/permitting/internal/repository"
	"github.com/fazamuttaqien/permitting/pkg/common"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type catalogRepository struct {
	db     *gorm.DB
	tracer trace.Tracer
	log    *zap.Logger
	ins    *repository.Instruments
}

// FindPermitType implements CatalogRepository.
func (c *catalogRepository) FindPermitType(ctx context.Context, id uint) (*domain.PermitType, error) {
	ctx, span := c.tracer.Start(ctx, "repository.Catalog.FindPermitType")
	defer span.End()

	span.SetAttributes(attribute.Int("permit_type.id", int(id)))
	q := c.ins.Start(ctx, span, "select", "permit_types")

	var data model.PermitType
	err := c.db.WithContext(ctx).First(&data, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		q.Finish(nil, 0, 0)
		return nil, common.NewNotFound("permit_type", id)
	}

	q.Finish(err, 1, 0)
	if err != nil {
		c.log.Error("Error finding permit type",
			zap.Uint("permit_type_id", id),
			zap.String("trace_id", span.SpanContext().TraceID().String()),
			zap.Error(err),
		)
		return nil, fmt.Errorf("find permit type: %w", err)
	}

	return model.PermitTypeToEntity(data), nil
}

// ResolveRules implements CatalogRepository.
func (c *catalogRepository) ResolveRules(ctx context.Context, permitTypeID uint) ([]domain.FeeRule, error) {
	ctx, span := c.tracer.Start(ctx, "repository.Catalog.ResolveRules")
	defer span.End()

	span.SetAttributes(attribute.Int("permit_type.id", int(permitTypeID)))
	q := c.ins.Start(ctx, span, "select", "permit_type_rules")

	var data []model.PermitTypeRule
	err := c.db.WithContext(ctx).
		Where("permit_type_id = ?", permitTypeID).
		Order("position ASC, id ASC").
		Find(&data).Error

	var rules []domain.FeeRule
	if err == nil {
		rules, err = model.RulesToEntity(data)
	}

	duration := q.Finish(err, len(data), 0)
	if err != nil {
		c.log.Error("Error resolving permit type rules",
			zap.Uint("permit_type_id", permitTypeID),
			zap.String("trace_id", span.SpanContext().TraceID().String()),
			zap.Error(err),
		)
		return nil, fmt.Errorf("resolve permit type rules: %w", err)
	}

	c.log.Debug("Permit type rules resolved",
		zap.Uint("permit_type_id", permitTypeID),
		zap.Int("count", len(rules)),
		zap.Float64("duration_ms", duration),
		zap.String("trace_id", span.SpanContext().TraceID().String()),
	)

	return rules, nil
}

// FindFeesByIDs implements CatalogRepository.
func (c *catalogRepository) FindFeesByIDs(ctx context.Context, ids []uint) (map[uint]domain.Fee, error) {
	fees := make(map[uint]domain.Fee, len(ids))
	if len(ids) == 0 {
		return fees, nil
	}

	ctx, span := c.tracer.Start(ctx, "repository.Catalog.FindFeesByIDs")
	defer span.End()

	q := c.ins.Start(ctx, span, "select", "fees")

	var data []model.Fee
	err := c.db.WithContext(ctx).Preload("Category").Where("id IN ?", ids).Find(&data).Error

	q.Finish(err, len(data), 0)
	if err != nil {
		c.log.Error("Error finding fees",
			zap.Int("count", len(ids)),
			zap.String("trace_id", span.SpanContext().TraceID().String()),
			zap.Error(err),
		)
		return nil, fmt.Errorf("find fees: %w", err)
	}

	for _, f := range data {
		fees[f.ID] = model.FeeToEntity(f)
	}

	return fees, nil
}

// ListFeesByCategory implements CatalogRepository.
func (c *catalogRepository) ListFeesByCategory(ctx context.Context, categoryID uint) ([]domain.Fee, error) {
	ctx, span := c.tracer.Start(ctx, "repository.Catalog.ListFeesByCategory")
	defer span.End()

	span.SetAttributes(attribute.Int("fee_category.id", int(categoryID)))
	q := c.ins.Start(ctx, span, "select", "fees")

	var data []model.Fee
	err := c.db.WithContext(ctx).
		Preload("Category").
		Where("category_id = ?", categoryID).
		Order("name ASC").
		Find(&data).Error

	q.Finish(err, len(data), 0)
	if err != nil {
		c.log.Error("Error listing fees by category",
			zap.Uint("category_id", categoryID),
			zap.String("trace_id", span.SpanContext().TraceID().String()),
			zap.Error(err),
		)
		return nil, fmt.Errorf("list fees by category: %w", err)
	}

	return model.FeesToEntity(data), nil
}

func NewCatalogRepository(
	db *gorm.DB,
	meter metric.Meter,
	tracer trace.Tracer,
	log *zap.Logger,
) repository.CatalogRepository {
	return &catalogRepository{
		db:     db,
		tracer: tracer,
		log:    log,
		ins:    repository.NewInstruments(meter),
	}
}
