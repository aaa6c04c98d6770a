package assessmenthandler

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

type AssessmentHandler struct {
	handler.Base
	assessmentService service.AssessmentService
}

func NewAssessmentHandler(
	assessmentService service.AssessmentService,
	meter metric.Meter,
	tracer trace.Tracer,
	log *zap.Logger,
) *AssessmentHandler {
	return &AssessmentHandler{
		Base:              handler.NewBase(meter, tracer, log),
		assessmentService: assessmentService,
	}
}

func (h *AssessmentHandler) Assess(c *fiber.Ctx) error {
	ctx, span, start := h.Start(c, "AssessApplication")
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

	// The body is optional; an empty one assesses with stored parameters only.
	var req dto.AssessRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return h.RecordError(ctx, span, c, start, err,
				fiber.StatusBadRequest, "parse_error", "Cannot parse request body", zap.Error(err))
		}
	}

	if err := h.Validate.Struct(req); err != nil {
		return h.RecordError(ctx, span, c, start, err,
			fiber.StatusBadRequest, "validation_error", "Validation failed", zap.Error(err))
	}

	serviceCtx, cancel := handler.ServiceContext(ctx)
	defer cancel()

	app, err := h.assessmentService.Assess(serviceCtx, caller, id, req)
	if err != nil {
		return h.RecordServiceError(ctx, span, c, start, err,
			zap.Uint64("application_id", id),
			zap.Uint64("user_id", caller.UserID),
		)
	}

	total := money.String(app.TotalAssessed())
	span.SetAttributes(
		attribute.Int("assessment.fee_count", len(app.AssessedFees)),
		attribute.String("assessment.total", total),
	)

	return h.RecordSuccess(ctx, span, c, start, fiber.StatusOK, dto.ToApplicationResponse(app),
		zap.Uint64("application_id", id),
		zap.Int("fee_count", len(app.AssessedFees)),
		zap.String("total", total),
	)
}

func (h *AssessmentHandler) UpdateFeeAmount(c *fiber.Ctx) error {
	ctx, span, start := h.Start(c, "UpdateFeeAmount")
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

	feeID, err := handler.ParseID(c, "feeId")
	if err != nil {
		return h.RecordServiceError(ctx, span, c, start, err)
	}

	span.SetAttributes(
		attribute.Int64("application.id", int64(id)),
		attribute.Int64("assessed_fee.id", int64(feeID)),
	)

	var req dto.UpdateFeeAmountRequest
	if err := c.BodyParser(&req); err != nil {
		return h.RecordError(ctx, span, c, start, err,
			fiber.StatusBadRequest, "parse_error", "Cannot parse request body", zap.Error(err))
	}

	if err := h.Validate.Struct(req); err != nil {
		return h.RecordError(ctx, span, c, start, err,
			fiber.StatusBadRequest, "validation_error", "Validation failed", zap.Error(err))
	}

	serviceCtx, cancel := handler.ServiceContext(ctx)
	defer cancel()

	fee, err := h.assessmentService.UpdateFeeAmount(serviceCtx, caller, id, feeID, req)
	if err != nil {
		return h.RecordServiceError(ctx, span, c, start, err,
			zap.Uint64("application_id", id),
			zap.Uint64("assessed_fee_id", feeID),
			zap.String("amount", req.Amount),
		)
	}

	return h.RecordSuccess(ctx, span, c, start, fiber.StatusOK, dto.ToAssessedFeeResponse(*fee),
		zap.Uint64("application_id", id),
		zap.Uint64("assessed_fee_id", feeID),
		zap.String("amount", money.String(fee.AssessedAmount)),
	)
}
