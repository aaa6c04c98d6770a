package applicationhandler

import (
	"context"
	"mime/multipart"
	"strings"

	"github.com/fazamuttaqien/permitting/internal/domain"
	"github.com/fazamuttaqien/permitting/internal/dto"
	"github.com/fazamuttaqien/permitting/internal/handler"
	"github.com/fazamuttaqien/permitting/internal/service"
	"github.com/fazamuttaqien/permitting/middleware"

	"github.com/gofiber/fiber/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type ApplicationHandler struct {
	handler.Base
	applicationService service.ApplicationService
}

func NewApplicationHandler(
	applicationService service.ApplicationService,
	meter metric.Meter,
	tracer trace.Tracer,
	log *zap.Logger,
) *ApplicationHandler {
	return &ApplicationHandler{
		Base:               handler.NewBase(meter, tracer, log),
		applicationService: applicationService,
	}
}

func (h *ApplicationHandler) Create(c *fiber.Ctx) error {
	ctx, span, start := h.Start(c, "CreateApplication")
	defer span.End()

	caller, err := middleware.GetCallerFromLocals(c)
	if err != nil {
		return h.RecordError(ctx, span, c, start, err,
			fiber.StatusUnauthorized, "unauthorized", "Unauthorized")
	}

	var req dto.CreateApplicationRequest
	if err := c.BodyParser(&req); err != nil {
		return h.RecordError(ctx, span, c, start, err,
			fiber.StatusBadRequest, "parse_error", "Cannot parse request body", zap.Error(err))
	}

	if err := h.Validate.Struct(req); err != nil {
		return h.RecordError(ctx, span, c, start, err,
			fiber.StatusBadRequest, "validation_error", "Validation failed", zap.Error(err))
	}

	span.SetAttributes(
		attribute.Int64("entity.id", int64(req.EntityID)),
		attribute.Int("permit_type.id", int(req.PermitTypeID)),
	)

	serviceCtx, cancel := handler.ServiceContext(ctx)
	defer cancel()

	app, err := h.applicationService.Create(serviceCtx, caller, req)
	if err != nil {
		return h.RecordServiceError(ctx, span, c, start, err,
			zap.Uint64("user_id", caller.UserID),
			zap.Uint64("entity_id", req.EntityID),
		)
	}

	return h.RecordSuccess(ctx, span, c, start, fiber.StatusCreated, dto.ToApplicationResponse(app),
		zap.Uint64("application_id", app.ID),
		zap.Uint64("user_id", caller.UserID),
	)
}

func (h *ApplicationHandler) Get(c *fiber.Ctx) error {
	ctx, span, start := h.Start(c, "GetApplication")
	defer span.End()

	id, err := handler.ParseID(c, "id")
	if err != nil {
		return h.RecordServiceError(ctx, span, c, start, err)
	}
	span.SetAttributes(attribute.Int64("application.id", int64(id)))

	serviceCtx, cancel := handler.ServiceContext(ctx)
	defer cancel()

	app, err := h.applicationService.Get(serviceCtx, id)
	if err != nil {
		return h.RecordServiceError(ctx, span, c, start, err, zap.Uint64("application_id", id))
	}

	return h.RecordSuccess(ctx, span, c, start, fiber.StatusOK, dto.ToApplicationResponse(app),
		zap.Uint64("application_id", id),
	)
}

func (h *ApplicationHandler) Delete(c *fiber.Ctx) error {
	ctx, span, start := h.Start(c, "DeleteApplication")
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

	if err := h.applicationService.Delete(serviceCtx, caller, id); err != nil {
		return h.RecordServiceError(ctx, span, c, start, err,
			zap.Uint64("application_id", id),
			zap.Uint64("user_id", caller.UserID),
		)
	}

	return h.RecordSuccess(ctx, span, c, start, fiber.StatusNoContent, nil,
		zap.Uint64("application_id", id),
		zap.Uint64("user_id", caller.UserID),
	)
}

func (h *ApplicationHandler) ChangePermitType(c *fiber.Ctx) error {
	ctx, span, start := h.Start(c, "ChangePermitType")
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

	var req dto.ChangePermitTypeRequest
	if err := c.BodyParser(&req); err != nil {
		return h.RecordError(ctx, span, c, start, err,
			fiber.StatusBadRequest, "parse_error", "Cannot parse request body", zap.Error(err))
	}

	if err := h.Validate.Struct(req); err != nil {
		return h.RecordError(ctx, span, c, start, err,
			fiber.StatusBadRequest, "validation_error", "Validation failed", zap.Error(err))
	}

	span.SetAttributes(
		attribute.Int64("application.id", int64(id)),
		attribute.Int("permit_type.id", int(req.PermitTypeID)),
	)

	serviceCtx, cancel := handler.ServiceContext(ctx)
	defer cancel()

	app, err := h.applicationService.ChangePermitType(serviceCtx, caller, id, req)
	if err != nil {
		return h.RecordServiceError(ctx, span, c, start, err,
			zap.Uint64("application_id", id),
			zap.Uint("permit_type_id", req.PermitTypeID),
		)
	}

	return h.RecordSuccess(ctx, span, c, start, fiber.StatusOK, dto.ToApplicationResponse(app),
		zap.Uint64("application_id", id),
		zap.Uint("permit_type_id", req.PermitTypeID),
	)
}

func (h *ApplicationHandler) Submit(c *fiber.Ctx) error {
	return h.transition(c, "SubmitApplication", nil, h.applicationService.Submit)
}

func (h *ApplicationHandler) Approve(c *fiber.Ctx) error {
	return h.transition(c, "ApproveApplication", nil, h.applicationService.Approve)
}

func (h *ApplicationHandler) Release(c *fiber.Ctx) error {
	return h.transition(c, "ReleasePermit", nil, h.applicationService.Release)
}

func (h *ApplicationHandler) Reject(c *fiber.Ctx) error {
	var req dto.RejectRequest

	bind := func(c *fiber.Ctx) error {
		if len(c.Body()) == 0 {
			return nil
		}
		return c.BodyParser(&req)
	}

	return h.transition(c, "RejectApplication", bind, func(ctx context.Context, caller domain.Caller, id uint64) (*domain.Application, error) {
		return h.applicationService.Reject(ctx, caller, id, req)
	})
}

// Issue accepts either a multipart upload in the "document" field or a JSON
// body carrying document_url.
func (h *ApplicationHandler) Issue(c *fiber.Ctx) error {
	var (
		req      dto.IssueRequest
		document *multipart.FileHeader
	)

	bind := func(c *fiber.Ctx) error {
		if strings.HasPrefix(string(c.Request().Header.ContentType()), fiber.MIMEMultipartForm) {
			form, err := c.MultipartForm()
			if err != nil {
				return err
			}
			if files := form.File["document"]; len(files) > 0 {
				document = files[0]
			}
			if values := form.Value["document_url"]; len(values) > 0 {
				req.DocumentURL = strings.TrimSpace(values[0])
			}
		} else if len(c.Body()) > 0 {
			if err := c.BodyParser(&req); err != nil {
				return err
			}
		}
		return h.Validate.Struct(req)
	}

	return h.transition(c, "IssuePermit", bind, func(ctx context.Context, caller domain.Caller, id uint64) (*domain.Application, error) {
		return h.applicationService.Issue(ctx, caller, id, req, document)
	})
}

type action func(ctx context.Context, caller domain.Caller, id uint64) (*domain.Application, error)

// transition runs one lifecycle action against the application in the path.
func (h *ApplicationHandler) transition(c *fiber.Ctx, operation string, bind func(*fiber.Ctx) error, call action) error {
	ctx, span, start := h.Start(c, operation)
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

	if bind != nil {
		if err := bind(c); err != nil {
			return h.RecordError(ctx, span, c, start, err,
				fiber.StatusBadRequest, "parse_error", "Invalid request body", zap.Error(err))
		}
	}

	serviceCtx, cancel := handler.ServiceContext(ctx)
	defer cancel()

	app, err := call(serviceCtx, caller, id)
	if err != nil {
		return h.RecordServiceError(ctx, span, c, start, err,
			zap.String("operation", operation),
			zap.Uint64("application_id", id),
			zap.Uint64("user_id", caller.UserID),
		)
	}

	span.SetAttributes(attribute.String("application.status", string(app.Status)))

	return h.RecordSuccess(ctx, span, c, start, fiber.StatusOK, dto.ToApplicationResponse(app),
		zap.String("operation", operation),
		zap.Uint64("application_id", id),
		zap.String("status", string(app.Status)),
	)
}
