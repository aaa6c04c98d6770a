package paymentrepo

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

const table = "payments"

type paymentRepository struct {
	db     *gorm.DB
	tracer trace.Tracer
	log    *zap.Logger
	ins    *repository.Instruments
}

// Create implements PaymentRepository. A duplicate idempotency key on the
// same application is a conflict.
func (p *paymentRepository) Create(ctx context.Context, payment *domain.Payment) error {
	ctx, span := p.tracer.Start(ctx, "repository.Payment.Create")
	defer span.End()

	span.SetAttributes(attribute.Int64("application.id", int64(payment.ApplicationID)))
	q := p.ins.Start(ctx, span, "insert", table)

	data := model.PaymentFromEntity(payment)
	err := p.db.WithContext(ctx).Omit("Recorder").Create(&data).Error

	duration := q.Finish(err, 0, 1)
	if err != nil {
		p.log.Error("Error creating payment",
			zap.Uint64("application_id", payment.ApplicationID),
			zap.String("receipt_no", payment.OfficialReceiptNo),
			zap.String("trace_id", span.SpanContext().TraceID().String()),
			zap.Error(err),
		)
		if repository.IsDuplicateKey(err) {
			return common.NewConflict("payment", payment.ApplicationID, "idempotency key already used")
		}
		return repository.MapError("payment", payment.ApplicationID, fmt.Errorf("create payment: %w", err))
	}

	payment.ID = data.ID
	payment.CreatedAt = data.CreatedAt

	p.log.Info("Payment created",
		zap.Uint64("payment_id", data.ID),
		zap.Uint64("application_id", data.ApplicationID),
		zap.String("amount", data.Amount.StringFixed(2)),
		zap.Float64("duration_ms", duration),
		zap.String("trace_id", span.SpanContext().TraceID().String()),
	)

	return nil
}

// FindByIdempotencyKey implements PaymentRepository.
func (p *paymentRepository) FindByIdempotencyKey(ctx context.Context, applicationID uint64, key string) (*domain.Payment, error) {
	ctx, span := p.tracer.Start(ctx, "repository.Payment.FindByIdempotencyKey")
	defer span.End()

	q := p.ins.Start(ctx, span, "select", table)

	var data model.Payment
	err := p.db.WithContext(ctx).
		Preload("Recorder").
		Where("application_id = ? AND idempotency_key = ?", applicationID, key).
		First(&data).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		q.Finish(nil, 0, 0)
		return nil, common.NewNotFound("payment", key)
	}

	q.Finish(err, 1, 0)
	if err != nil {
		p.log.Error("Error finding payment by idempotency key",
			zap.Uint64("application_id", applicationID),
			zap.String("trace_id", span.SpanContext().TraceID().String()),
			zap.Error(err),
		)
		return nil, repository.MapError("payment", applicationID, fmt.Errorf("find payment: %w", err))
	}

	payment := model.PaymentToEntity(data)
	return &payment, nil
}

// ListByApplication implements PaymentRepository.
func (p *paymentRepository) ListByApplication(ctx context.Context, applicationID uint64) ([]domain.Payment, error) {
	ctx, span := p.tracer.Start(ctx, "repository.Payment.ListByApplication")
	defer span.End()

	span.SetAttributes(attribute.Int64("application.id", int64(applicationID)))
	q := p.ins.Start(ctx, span, "select", table)

	var data []model.Payment
	err := p.db.WithContext(ctx).
		Preload("Recorder").
		Where("application_id = ?", applicationID).
		Order("payment_date ASC, id ASC").
		Find(&data).Error

	q.Finish(err, len(data), 0)
	if err != nil {
		p.log.Error("Error listing payments",
			zap.Uint64("application_id", applicationID),
			zap.String("trace_id", span.SpanContext().TraceID().String()),
			zap.Error(err),
		)
		return nil, fmt.Errorf("list payments: %w", err)
	}

	return model.PaymentsToEntity(data), nil
}

func NewPaymentRepository(
	db *gorm.DB,
	meter metric.Meter,
	tracer trace.Tracer,
	log *zap.Logger,
) repository.PaymentRepository {
	return &paymentRepository{
		db:     db,
		tracer: tracer,
		log:    log,
		ins:    repository.NewInstruments(meter),
	}
}
