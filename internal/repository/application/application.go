package applicationrepo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fazamuttaqien/permitting/internal/domain"
	"github.com/fazamuttaqien/permitting/internal/model"
	"github.com/fazamuttaqien/permitting/internal/repository"
	"github.com/fazamuttaqien/permitting/pkg/common"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const table = "applications"

type applicationRepository struct {
	db     *gorm.DB
	tracer trace.Tracer
	log    *zap.Logger
	ins    *repository.Instruments
}

// Create implements ApplicationRepository.
func (a *applicationRepository) Create(ctx context.Context, app *domain.Application) error {
	ctx, span := a.tracer.Start(ctx, "repository.Application.Create")
	defer span.End()

	q := a.ins.Start(ctx, span, "insert", table)

	data := model.ApplicationFromEntity(app)
	params := data.Parameters
	data.Parameters = nil

	err := a.db.WithContext(ctx).Omit(clause.Associations).Create(&data).Error
	if err == nil && len(params) > 0 {
		for i := range params {
			params[i].ApplicationID = data.ID
		}
		err = a.db.WithContext(ctx).Create(&params).Error
	}

	duration := q.Finish(err, 0, 1+len(params))
	if err != nil {
		a.log.Error("Error creating application",
			zap.Uint64("entity_id", app.EntityID),
			zap.String("trace_id", span.SpanContext().TraceID().String()),
			zap.Error(err),
		)
		return fmt.Errorf("create application: %w", err)
	}

	app.ID = data.ID
	app.Version = data.Version
	app.CreatedAt = data.CreatedAt
	app.UpdatedAt = data.UpdatedAt

	span.SetAttributes(attribute.Int64("application.id", int64(data.ID)))
	a.log.Debug("Application created",
		zap.Uint64("application_id", data.ID),
		zap.Int("parameters", len(params)),
		zap.Float64("duration_ms", duration),
		zap.String("trace_id", span.SpanContext().TraceID().String()),
	)

	return nil
}

// FindByID implements ApplicationRepository.
func (a *applicationRepository) FindByID(ctx context.Context, id uint64) (*domain.Application, error) {
	ctx, span := a.tracer.Start(ctx, "repository.Application.FindByID")
	defer span.End()

	return a.find(ctx, span, id, false)
}

// FindByIDForUpdate implements ApplicationRepository.
func (a *applicationRepository) FindByIDForUpdate(ctx context.Context, id uint64) (*domain.Application, error) {
	ctx, span := a.tracer.Start(ctx, "repository.Application.FindByIDForUpdate")
	defer span.End()

	return a.find(ctx, span, id, true)
}

func (a *applicationRepository) find(ctx context.Context, span trace.Span, id uint64, lock bool) (*domain.Application, error) {
	span.SetAttributes(
		attribute.Int64("application.id", int64(id)),
		attribute.Bool("db.lock", lock),
	)

	operation := "select"
	if lock {
		operation = "select_for_update"
	}
	q := a.ins.Start(ctx, span, operation, table)

	query := a.db.WithContext(ctx)
	if lock {
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}

	var data model.Application
	err := query.
		Preload("PermitType").
		Preload("Parameters", func(db *gorm.DB) *gorm.DB {
			return db.Order("position ASC, id ASC")
		}).
		Preload("AssessedFees", func(db *gorm.DB) *gorm.DB {
			return db.Order("position ASC, id ASC")
		}).
		Preload("Payments", func(db *gorm.DB) *gorm.DB {
			return db.Order("payment_date ASC, id ASC")
		}).
		Preload("Payments.Recorder").
		First(&data, "id = ?", id).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		q.Finish(nil, 0, 0)
		return nil, common.NewNotFound("application", id)
	}

	duration := q.Finish(err, 1, 0)
	if err != nil {
		a.log.Error("Error finding application",
			zap.Uint64("application_id", id),
			zap.Bool("lock", lock),
			zap.String("trace_id", span.SpanContext().TraceID().String()),
			zap.Error(err),
		)
		return nil, repository.MapError("application", id, fmt.Errorf("find application: %w", err))
	}

	a.log.Debug("Application found",
		zap.Uint64("application_id", id),
		zap.String("status", data.Status),
		zap.Float64("duration_ms", duration),
		zap.String("trace_id", span.SpanContext().TraceID().String()),
	)

	return model.ApplicationToEntity(data), nil
}

// CompareAndSetStatus implements ApplicationRepository.
func (a *applicationRepository) CompareAndSetStatus(ctx context.Context, update repository.StatusUpdate) error {
	ctx, span := a.tracer.Start(ctx, "repository.Application.CompareAndSetStatus")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("application.id", int64(update.ID)),
		attribute.String("status.from", string(update.From)),
		attribute.String("status.to", string(update.To)),
	)

	q := a.ins.Start(ctx, span, "update", table)

	values := map[string]any{
		"status":     string(update.To),
		"version":    gorm.Expr("version + 1"),
		"updated_at": time.Now().UTC(),
	}
	for column, value := range update.Columns {
		values[column] = value
	}

	result := a.db.WithContext(ctx).
		Model(&model.Application{}).
		Where("id = ? AND status = ? AND version = ?", update.ID, string(update.From), update.Version).
		Updates(values)

	duration := q.Finish(result.Error, 0, int(result.RowsAffected))
	if result.Error != nil {
		a.log.Error("Error updating application status",
			zap.Uint64("application_id", update.ID),
			zap.String("from", string(update.From)),
			zap.String("to", string(update.To)),
			zap.String("trace_id", span.SpanContext().TraceID().String()),
			zap.Error(result.Error),
		)
		return repository.MapError("application", update.ID, fmt.Errorf("update application status: %w", result.Error))
	}

	if result.RowsAffected == 0 {
		a.log.Warn("Application status changed concurrently",
			zap.Uint64("application_id", update.ID),
			zap.String("expected_status", string(update.From)),
			zap.Uint("expected_version", update.Version),
			zap.String("trace_id", span.SpanContext().TraceID().String()),
		)
		return common.NewRetryableConflict("application", update.ID, common.ErrStaleWrite)
	}

	a.log.Debug("Application status updated",
		zap.Uint64("application_id", update.ID),
		zap.String("from", string(update.From)),
		zap.String("to", string(update.To)),
		zap.Float64("duration_ms", duration),
		zap.String("trace_id", span.SpanContext().TraceID().String()),
	)

	return nil
}

// ChangePermitType implements ApplicationRepository.
func (a *applicationRepository) ChangePermitType(ctx context.Context, id uint64, version uint, permitTypeID uint) error {
	ctx, span := a.tracer.Start(ctx, "repository.Application.ChangePermitType")
	defer span.End()

	q := a.ins.Start(ctx, span, "update", table)

	result := a.db.WithContext(ctx).
		Model(&model.Application{}).
		Where("id = ? AND status = ? AND version = ?", id, string(domain.StatusPending), version).
		Updates(map[string]any{
			"permit_type_id": permitTypeID,
			"version":        gorm.Expr("version + 1"),
			"updated_at":     time.Now().UTC(),
		})

	q.Finish(result.Error, 0, int(result.RowsAffected))
	if result.Error != nil {
		a.log.Error("Error changing permit type",
			zap.Uint64("application_id", id),
			zap.String("trace_id", span.SpanContext().TraceID().String()),
			zap.Error(result.Error),
		)
		return repository.MapError("application", id, fmt.Errorf("change permit type: %w", result.Error))
	}
	if result.RowsAffected == 0 {
		return common.NewRetryableConflict("application", id, common.ErrStaleWrite)
	}

	return nil
}

// ReplaceFees implements ApplicationRepository.
func (a *applicationRepository) ReplaceFees(ctx context.Context, id uint64, fees []domain.AssessedFee) error {
	ctx, span := a.tracer.Start(ctx, "repository.Application.ReplaceFees")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("application.id", int64(id)),
		attribute.Int("fees.count", len(fees)),
	)

	q := a.ins.Start(ctx, span, "replace", "assessed_fees")

	err := a.db.WithContext(ctx).Where("application_id = ?", id).Delete(&model.AssessedFee{}).Error
	rows := model.AssessedFeesFromEntity(id, fees)
	if err == nil && len(rows) > 0 {
		err = a.db.WithContext(ctx).Create(&rows).Error
	}

	duration := q.Finish(err, 0, len(rows))
	if err != nil {
		a.log.Error("Error replacing assessed fees",
			zap.Uint64("application_id", id),
			zap.String("trace_id", span.SpanContext().TraceID().String()),
			zap.Error(err),
		)
		return repository.MapError("application", id, fmt.Errorf("replace assessed fees: %w", err))
	}

	for i := range fees {
		fees[i].ID = rows[i].ID
		fees[i].ApplicationID = id
	}

	a.log.Debug("Assessed fees replaced",
		zap.Uint64("application_id", id),
		zap.Int("count", len(rows)),
		zap.Float64("duration_ms", duration),
		zap.String("trace_id", span.SpanContext().TraceID().String()),
	)

	return nil
}

// UpdateFeeAmount implements ApplicationRepository.
func (a *applicationRepository) UpdateFeeAmount(ctx context.Context, id uint64, feeID uint64, amount decimal.Decimal) error {
	ctx, span := a.tracer.Start(ctx, "repository.Application.UpdateFeeAmount")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("application.id", int64(id)),
		attribute.Int64("assessed_fee.id", int64(feeID)),
	)

	q := a.ins.Start(ctx, span, "update", "assessed_fees")

	result := a.db.WithContext(ctx).
		Model(&model.AssessedFee{}).
		Where("id = ? AND application_id = ? AND locked = ?", feeID, id, false).
		Update("assessed_amount", amount)

	q.Finish(result.Error, 0, int(result.RowsAffected))
	if result.Error != nil {
		a.log.Error("Error updating assessed fee",
			zap.Uint64("application_id", id),
			zap.Uint64("assessed_fee_id", feeID),
			zap.String("trace_id", span.SpanContext().TraceID().String()),
			zap.Error(result.Error),
		)
		return repository.MapError("assessed_fee", feeID, fmt.Errorf("update assessed fee: %w", result.Error))
	}
	if result.RowsAffected == 0 {
		return common.NewNotFound("assessed_fee", feeID)
	}

	return nil
}

// LockFees implements ApplicationRepository.
func (a *applicationRepository) LockFees(ctx context.Context, id uint64) error {
	ctx, span := a.tracer.Start(ctx, "repository.Application.LockFees")
	defer span.End()

	q := a.ins.Start(ctx, span, "update", "assessed_fees")

	result := a.db.WithContext(ctx).
		Model(&model.AssessedFee{}).
		Where("application_id = ?", id).
		Update("locked", true)

	q.Finish(result.Error, 0, int(result.RowsAffected))
	if result.Error != nil {
		a.log.Error("Error locking assessed fees",
			zap.Uint64("application_id", id),
			zap.String("trace_id", span.SpanContext().TraceID().String()),
			zap.Error(result.Error),
		)
		return repository.MapError("application", id, fmt.Errorf("lock assessed fees: %w", result.Error))
	}

	return nil
}

// AppendParameters implements ApplicationRepository.
func (a *applicationRepository) AppendParameters(ctx context.Context, id uint64, offset int, params []domain.Parameter) error {
	if len(params) == 0 {
		return nil
	}

	ctx, span := a.tracer.Start(ctx, "repository.Application.AppendParameters")
	defer span.End()

	q := a.ins.Start(ctx, span, "insert", "application_parameters")

	rows := model.ParametersFromEntity(id, params)
	for i := range rows {
		rows[i].Position = offset + i
	}
	err := a.db.WithContext(ctx).Create(&rows).Error

	q.Finish(err, 0, len(rows))
	if err != nil {
		a.log.Error("Error appending application parameters",
			zap.Uint64("application_id", id),
			zap.String("trace_id", span.SpanContext().TraceID().String()),
			zap.Error(err),
		)
		return repository.MapError("application", id, fmt.Errorf("append parameters: %w", err))
	}

	return nil
}

// Delete implements ApplicationRepository. Payments are never cascaded;
// the caller checks there are none while holding the row lock.
func (a *applicationRepository) Delete(ctx context.Context, id uint64) error {
	ctx, span := a.tracer.Start(ctx, "repository.Application.Delete")
	defer span.End()

	q := a.ins.Start(ctx, span, "delete", table)

	db := a.db.WithContext(ctx)
	err := db.Where("application_id = ?", id).Delete(&model.AssessedFee{}).Error
	if err == nil {
		err = db.Where("application_id = ?", id).Delete(&model.ApplicationParameter{}).Error
	}
	var affected int64
	if err == nil {
		result := db.Where("id = ?", id).Delete(&model.Application{})
		err = result.Error
		affected = result.RowsAffected
	}

	q.Finish(err, 0, int(affected))
	if err != nil {
		a.log.Error("Error deleting application",
			zap.Uint64("application_id", id),
			zap.String("trace_id", span.SpanContext().TraceID().String()),
			zap.Error(err),
		)
		return repository.MapError("application", id, fmt.Errorf("delete application: %w", err))
	}
	if affected == 0 {
		return common.NewNotFound("application", id)
	}

	return nil
}

// NextApplicationNumber implements ApplicationRepository. The counter row of
// the year is created on first use and bumped in the caller's transaction,
// so numbers are unique and never go backwards.
func (a *applicationRepository) NextApplicationNumber(ctx context.Context, now time.Time) (string, error) {
	ctx, span := a.tracer.Start(ctx, "repository.Application.NextApplicationNumber")
	defer span.End()

	year := now.UTC().Year()
	span.SetAttributes(attribute.Int("sequence.year", year))

	q := a.ins.Start(ctx, span, "upsert", "application_sequences")

	db := a.db.WithContext(ctx)
	err := db.Clauses(clause.OnConflict{DoNothing: true}).
		Create(&model.ApplicationSequence{Year: year, LastValue: 0}).Error
	if err == nil {
		err = db.Model(&model.ApplicationSequence{}).
			Where("year = ?", year).
			Update("last_value", gorm.Expr("last_value + 1")).Error
	}

	var seq model.ApplicationSequence
	if err == nil {
		err = db.First(&seq, "year = ?", year).Error
	}

	q.Finish(err, 1, 1)
	if err != nil {
		a.log.Error("Error allocating application number",
			zap.Int("year", year),
			zap.String("trace_id", span.SpanContext().TraceID().String()),
			zap.Error(err),
		)
		return "", repository.MapError("application_sequence", year, fmt.Errorf("allocate application number: %w", err))
	}

	return FormatApplicationNumber(year, seq.LastValue), nil
}

// FormatApplicationNumber renders YYYY-NNNNNN.
func FormatApplicationNumber(year int, value uint64) string {
	return fmt.Sprintf("%04d-%06d", year, value)
}

func NewApplicationRepository(
	db *gorm.DB,
	meter metric.Meter,
	tracer trace.Tracer,
	log *zap.Logger,
) repository.ApplicationRepository {
	return &applicationRepository{
		db:     db,
		tracer: tracer,
		log:    log,
		ins:    repository.NewInstruments(meter),
	}
}
