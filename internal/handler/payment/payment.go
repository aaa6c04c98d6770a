package paymenthandler

import (
	"github.com/fazamuttaqien/permitting/internal/dto"
	"github.com/fazamuttaqien/permitting/internal/handler"
	"github.com/fazamuttaqien/permitting/internal/service"
	"github.com/fazamuttaqien/permitting/middleware"
	"github.com/fazamuttaqien/permitting/pkg/money"

	"github.com/gofiber/fiber/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// IdempotencyHeader may carry the idempotency key instead of the body field.
const IdempotencyHeader = "Idempotency-Key"

type PaymentHandler struct {
	handler.Base
	paymentService service.PaymentService
}

func NewPaymentHandler(
	paymentService service.PaymentService,
	meter metric.Meter,
	tracer trace.Tracer,
	log *zap.Logger,
) *PaymentHandler {
	return &PaymentHandler{
		Base:           handler.NewBase(meter, tracer, log),
		paymentService: paymentService,
	}
}

func (h *PaymentHandler) RecordPayment(c *fiber.Ctx) error {
	ctx, span, start := h.Start(c, "RecordPayment")
	defer span.End()

	caller, err := middleware.GetCallerFromLocals(c)
	if err != nil {
		return h.RecordError(ctx, span, c, start, err,
			fiber.StatusUnauthorized, "unauthorized", "Unauthorized")
	}

	id, err := handler.ParseID(c, "id")
	if err != nil {
		return h.RecordServiceError(ctx, span, c, start, err)
	}
	span.SetAttributes(attribute.Int64("application.id", int64(id)))

	var req dto.RecordPaymentRequest
	if err := c.BodyParser(&req); err != nil {
		return h.RecordError(ctx, span, c, start, err,
			fiber.StatusBadRequest, "parse_error", "Cannot parse request body", zap.Error(err))
	}

	if req.IdempotencyKey == nil {
		if key := c.Get(IdempotencyHeader); key != "" {
			req.IdempotencyKey = &key
		}
	}

	if err := h.Validate.Struct(req); err != nil {
		return h.RecordError(ctx, span, c, start, err,
			fiber.StatusBadRequest, "validation_error", "Validation failed", zap.Error(err))
	}

	span.SetAttributes(
		attribute.String("payment.receipt_no", req.OfficialReceiptNo),
		attribute.String("payment.amount", req.Amount),
	)

	serviceCtx, cancel := handler.ServiceContext(ctx)
	defer cancel()

	payment, err := h.paymentService.RecordPayment(serviceCtx, caller, id, req)
	if err != nil {
		return h.RecordServiceError(ctx, span, c, start, err,
			zap.Uint64("application_id", id),
			zap.String("receipt_no", req.OfficialReceiptNo),
			zap.String("amount", req.Amount),
		)
	}

	return h.RecordSuccess(ctx, span, c, start, fiber.StatusCreated, dto.ToPaymentResponse(*payment),
		zap.Uint64("application_id", id),
		zap.Uint64("payment_id", payment.ID),
		zap.String("amount", money.String(payment.Amount)),
	)
}

func (h *PaymentHandler) ListPayments(c *fiber.Ctx) error {
	ctx, span, start := h.Start(c, "ListPayments")
	defer span.End()

	id, err := handler.ParseID(c, "id")
	if err != nil {
		return h.RecordServiceError(ctx, span, c, start, err)
	}
	span.SetAttributes(attribute.Int64("application.id", int64(id)))

	serviceCtx, cancel := handler.ServiceContext(ctx)
	defer cancel()

	payments, err := h.paymentService.ListPayments(serviceCtx, id)
	if err != nil {
		return h.RecordServiceError(ctx, span, c, start, err, zap.Uint64("application_id", id))
	}

	return h.RecordSuccess(ctx, span, c, start, fiber.StatusOK, fiber.Map{"data": dto.ToPaymentResponses(payments)},
		zap.Uint64("application_id", id),
		zap.Int("count", len(payments)),
	)
}

func (h *PaymentHandler) OutstandingBalance(c *fiber.Ctx) error {
	ctx, span, start := h.Start(c, "OutstandingBalance")
	defer span.End()

	caller, err := middleware.GetCallerFromLocals(c)
	if err != nil {
		return h.RecordError(ctx, span, c, start, err,
			fiber.StatusUnauthorized, "unauthorized", "Unauthorized")
	}

	id, err := handler.ParseID(c, "id")
	if err != nil {
		return h.RecordServiceError(ctx, span, c, start, err)
	}
	span.SetAttributes(attribute.Int64("application.id", int64(id)))

	serviceCtx, cancel := handler.ServiceContext(ctx)
	defer cancel()

	balance, err := h.paymentService.OutstandingBalance(serviceCtx, caller, id)
	if err != nil {
		return h.RecordServiceError(ctx, span, c, start, err, zap.Uint64("application_id", id))
	}

	return h.RecordSuccess(ctx, span, c, start, fiber.StatusOK, dto.ToBalanceResponse(*balance),
		zap.Uint64("application_id", id),
		zap.String("outstanding", money.String(balance.Outstanding)),
	)
}
