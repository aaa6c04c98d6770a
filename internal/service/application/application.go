package applicationsrv

import (
	"context"
	"errors"
	"fmt"
	"mime/multipart"
	"strings"

	"github.com/fazamuttaqien/permitting/internal/domain"
	"github.com/fazamuttaqien/permitting/internal/dto"
	"github.com/fazamuttaqien/permitting/internal/lifecycle"
	"github.com/fazamuttaqien/permitting/internal/repository"
	applicationrepo "github.com/fazamuttaqien/permitting/internal/repository/application"
	catalogrepo "github.com/fazamuttaqien/permitting/internal/repository/catalog"
	"github.com/fazamuttaqien/permitting/internal/service"
	"github.com/fazamuttaqien/permitting/pkg/common"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type applicationService struct {
	db                    *gorm.DB
	applicationRepository repository.ApplicationRepository
	catalogRepository     repository.CatalogRepository
	entityRepository      repository.EntityRepository
	documents             service.DocumentStore
	effects               *service.Effects
	settings              service.Settings

	meter  metric.Meter
	tracer trace.Tracer
	log    *zap.Logger
	ins    *service.Instruments
}

// mutation adjusts the locked application inside the transition transaction.
// Extra columns go into update.Columns.
type mutation func(ctx context.Context, apps repository.ApplicationRepository, app *domain.Application, update *repository.StatusUpdate) error

// Create implements service.ApplicationService.
func (a *applicationService) Create(ctx context.Context, caller domain.Caller, req dto.CreateApplicationRequest) (*domain.Application, error) {
	ctx, span := a.tracer.Start(ctx, "service.Application.Create")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("entity.id", int64(req.EntityID)),
		attribute.Int("permit_type.id", int(req.PermitTypeID)),
	)
	op := a.ins.Begin(ctx, span, "create_application")

	app, err := a.create(ctx, caller, req)

	var id uint64
	if app != nil {
		id = app.ID
	}
	service.LogOutcome(a.log, span, "create_application", op.End(err), err,
		zap.Uint64("application_id", id),
		zap.Uint64("entity_id", req.EntityID),
		zap.Uint64("user_id", caller.UserID),
	)

	return app, err
}

func (a *applicationService) create(ctx context.Context, caller domain.Caller, req dto.CreateApplicationRequest) (*domain.Application, error) {
	if !caller.Capabilities.Has(domain.CanCreateApplication) {
		return nil, common.NewAuthorization("application", nil, "caller may not create applications")
	}

	if req.EntityID == 0 {
		return nil, common.NewValidation("application", nil, "entity_id is required")
	}
	if req.PermitTypeID == 0 {
		return nil, common.NewValidation("application", nil, "permit_type_id is required")
	}
	params := dto.ToParameters(req.Parameters)
	if err := service.ValidateParameters("application", nil, params); err != nil {
		return nil, err
	}

	if _, err := a.entityRepository.FindByID(ctx, req.EntityID); err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil, common.NewValidation("entity", req.EntityID, "entity does not exist")
		}
		return nil, err
	}
	if err := service.ActivePermitType(ctx, a.catalogRepository, req.PermitTypeID); err != nil {
		return nil, err
	}

	app := &domain.Application{
		EntityID:     req.EntityID,
		PermitTypeID: req.PermitTypeID,
		Status:       domain.StatusPending,
		CreatorID:    caller.UserID,
		Parameters:   params,
	}

	err := repository.WithTransaction(ctx, a.db, a.settings.LockTimeout, "application", nil, func(ctx context.Context, tx *gorm.DB) error {
		return a.applications(tx).Create(ctx, app)
	})
	if err != nil {
		return nil, err
	}

	a.effects.Record(ctx, caller.UserID, app.ID, domain.AuditCreate,
		"Application created for entity %d with %d parameters", app.EntityID, len(params))

	return a.applicationRepository.FindByID(ctx, app.ID)
}

// Get implements service.ApplicationService.
func (a *applicationService) Get(ctx context.Context, id uint64) (*domain.Application, error) {
	ctx, span := a.tracer.Start(ctx, "service.Application.Get")
	defer span.End()

	span.SetAttributes(attribute.Int64("application.id", int64(id)))
	op := a.ins.Begin(ctx, span, "get_application")

	app, err := a.applicationRepository.FindByID(ctx, id)
	duration := op.End(err)
	if err != nil {
		service.LogOutcome(a.log, span, "get_application", duration, err, zap.Uint64("application_id", id))
		return nil, err
	}

	a.log.Debug("Application retrieved",
		zap.Uint64("application_id", id),
		zap.String("status", string(app.Status)),
		zap.Float64("duration_ms", duration),
		zap.String("trace_id", span.SpanContext().TraceID().String()),
	)

	return app, nil
}

// Delete implements service.ApplicationService.
func (a *applicationService) Delete(ctx context.Context, caller domain.Caller, id uint64) error {
	ctx, span := a.tracer.Start(ctx, "service.Application.Delete")
	defer span.End()

	span.SetAttributes(attribute.Int64("application.id", int64(id)))
	op := a.ins.Begin(ctx, span, "delete_application")

	err := a.delete(ctx, caller, id)
	service.LogOutcome(a.log, span, "delete_application", op.End(err), err,
		zap.Uint64("application_id", id),
		zap.Uint64("user_id", caller.UserID),
	)

	return err
}

func (a *applicationService) delete(ctx context.Context, caller domain.Caller, id uint64) error {
	if !caller.Capabilities.HasAny(domain.CanDeleteAny, domain.CanCreateApplication) {
		return common.NewAuthorization("application", id, "caller may not delete applications")
	}

	err := repository.WithTransaction(ctx, a.db, a.settings.LockTimeout, "application", id, func(ctx context.Context, tx *gorm.DB) error {
		apps := a.applications(tx)

		app, err := apps.FindByIDForUpdate(ctx, id)
		if err != nil {
			return err
		}

		if app.Status != domain.StatusPending {
			return common.NewConflict("application", id, "only PENDING applications can be deleted, status is %s", app.Status)
		}
		if len(app.Payments) > 0 {
			return common.NewConflict("application", id, "application has recorded payments")
		}
		if !caller.Capabilities.Has(domain.CanDeleteAny) && app.CreatorID != caller.UserID {
			return common.NewAuthorization("application", id, "only the creator may delete this application")
		}

		return apps.Delete(ctx, id)
	})
	if err != nil {
		return err
	}

	a.effects.Record(ctx, caller.UserID, id, domain.AuditDelete, "Application deleted while PENDING")
	return nil
}

// ChangePermitType implements service.ApplicationService.
func (a *applicationService) ChangePermitType(ctx context.Context, caller domain.Caller, id uint64, req dto.ChangePermitTypeRequest) (*domain.Application, error) {
	ctx, span := a.tracer.Start(ctx, "service.Application.ChangePermitType")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("application.id", int64(id)),
		attribute.Int("permit_type.id", int(req.PermitTypeID)),
	)
	op := a.ins.Begin(ctx, span, "change_permit_type")

	app, err := a.changePermitType(ctx, caller, id, req)
	service.LogOutcome(a.log, span, "change_permit_type", op.End(err), err,
		zap.Uint64("application_id", id),
		zap.Uint("permit_type_id", req.PermitTypeID),
		zap.Uint64("user_id", caller.UserID),
	)

	return app, err
}

func (a *applicationService) changePermitType(ctx context.Context, caller domain.Caller, id uint64, req dto.ChangePermitTypeRequest) (*domain.Application, error) {
	if !caller.Capabilities.Has(domain.CanCreateApplication) {
		return nil, common.NewAuthorization("application", id, "caller may not change the permit type")
	}
	if req.PermitTypeID == 0 {
		return nil, common.NewValidation("application", id, "permit_type_id is required")
	}

	var previous uint
	err := repository.WithTransaction(ctx, a.db, a.settings.LockTimeout, "application", id, func(ctx context.Context, tx *gorm.DB) error {
		apps := a.applications(tx)

		app, err := apps.FindByIDForUpdate(ctx, id)
		if err != nil {
			return err
		}

		if app.Status != domain.StatusPending {
			return common.NewConflict("application", id, "permit type can only change while PENDING, status is %s", app.Status)
		}
		if app.HasLockedFees() {
			return common.NewConflict("application", id, "assessed fees are locked")
		}
		if err := service.ActivePermitType(ctx, a.catalog(tx), req.PermitTypeID); err != nil {
			return err
		}

		previous = app.PermitTypeID
		return apps.ChangePermitType(ctx, id, app.Version, req.PermitTypeID)
	})
	if err != nil {
		return nil, err
	}

	a.effects.Record(ctx, caller.UserID, id, domain.AuditChangePermitType,
		"Permit type changed from %d to %d", previous, req.PermitTypeID)

	return a.applicationRepository.FindByID(ctx, id)
}

// Submit implements service.ApplicationService.
func (a *applicationService) Submit(ctx context.Context, caller domain.Caller, id uint64) (*domain.Application, error) {
	ctx, span := a.tracer.Start(ctx, "service.Application.Submit")
	defer span.End()

	op := a.ins.Begin(ctx, span, "submit_application")

	app, rule, err := a.transition(ctx, span, caller, id, domain.StatusPendingApproval,
		func(ctx context.Context, _ repository.ApplicationRepository, app *domain.Application, _ *repository.StatusUpdate) error {
			if len(app.AssessedFees) == 0 {
				return common.NewConflict("application", id, "application has no assessed fees")
			}
			return service.PayableTotal(app)
		})
	if err == nil {
		a.effects.Record(ctx, caller.UserID, id, rule.Action, "Submitted for approval with total %s", app.TotalAssessed().StringFixed(2))
		a.effects.NotifyCapability(ctx, domain.CanApprove, app, domain.EventSubmittedForApproval, "Application is waiting for approval")
	}

	service.LogOutcome(a.log, span, "submit_application", op.End(err), err,
		zap.Uint64("application_id", id),
		zap.Uint64("user_id", caller.UserID),
	)

	return app, err
}

// Approve implements service.ApplicationService.
func (a *applicationService) Approve(ctx context.Context, caller domain.Caller, id uint64) (*domain.Application, error) {
	ctx, span := a.tracer.Start(ctx, "service.Application.Approve")
	defer span.End()

	op := a.ins.Begin(ctx, span, "approve_application")
	now := a.settings.Clock()

	app, rule, err := a.transition(ctx, span, caller, id, domain.StatusApproved,
		func(ctx context.Context, apps repository.ApplicationRepository, app *domain.Application, update *repository.StatusUpdate) error {
			if err := service.PayableTotal(app); err != nil {
				return err
			}
			if err := apps.LockFees(ctx, id); err != nil {
				return err
			}
			update.Columns["approver_id"] = caller.UserID
			update.Columns["approved_at"] = now
			return service.AssignNumber(ctx, apps, app, update, now)
		})
	if err == nil {
		a.effects.Record(ctx, caller.UserID, id, rule.Action, "Application approved with total %s", app.TotalAssessed().StringFixed(2))
		a.effects.NotifyCreator(ctx, app, domain.EventApproved, "Application approved, payment is due")
	}

	service.LogOutcome(a.log, span, "approve_application", op.End(err), err,
		zap.Uint64("application_id", id),
		zap.Uint64("user_id", caller.UserID),
	)

	return app, err
}

// Reject implements service.ApplicationService.
func (a *applicationService) Reject(ctx context.Context, caller domain.Caller, id uint64, req dto.RejectRequest) (*domain.Application, error) {
	ctx, span := a.tracer.Start(ctx, "service.Application.Reject")
	defer span.End()

	op := a.ins.Begin(ctx, span, "reject_application")
	now := a.settings.Clock()
	reason := strings.TrimSpace(req.Reason)

	var (
		app  *domain.Application
		rule lifecycle.Rule
		err  error
	)
	if reason == "" {
		err = common.NewValidation("application", id, "rejection reason is required")
	} else {
		app, rule, err = a.transition(ctx, span, caller, id, domain.StatusRejected,
			func(ctx context.Context, apps repository.ApplicationRepository, _ *domain.Application, update *repository.StatusUpdate) error {
				if err := apps.LockFees(ctx, id); err != nil {
					return err
				}
				update.Columns["approver_id"] = caller.UserID
				update.Columns["rejection_reason"] = reason
				update.Columns["rejected_at"] = now
				return nil
			})
	}
	if err == nil {
		a.effects.Record(ctx, caller.UserID, id, rule.Action, "Application rejected: %s", reason)
		a.effects.NotifyCreator(ctx, app, domain.EventRejected, reason)
	}

	service.LogOutcome(a.log, span, "reject_application", op.End(err), err,
		zap.Uint64("application_id", id),
		zap.Uint64("user_id", caller.UserID),
	)

	return app, err
}

// Issue implements service.ApplicationService.
func (a *applicationService) Issue(ctx context.Context, caller domain.Caller, id uint64, req dto.IssueRequest, document *multipart.FileHeader) (*domain.Application, error) {
	ctx, span := a.tracer.Start(ctx, "service.Application.Issue")
	defer span.End()

	op := a.ins.Begin(ctx, span, "issue_permit")
	now := a.settings.Clock()

	var (
		app  *domain.Application
		rule lifecycle.Rule
	)
	url, err := a.resolveDocument(ctx, caller, id, req, document)
	if err == nil {
		app, rule, err = a.transition(ctx, span, caller, id, domain.StatusIssued,
			func(_ context.Context, _ repository.ApplicationRepository, _ *domain.Application, update *repository.StatusUpdate) error {
				update.Columns["permit_document_url"] = url
				update.Columns["issued_at"] = now
				return nil
			})
	}
	if err == nil {
		a.effects.Record(ctx, caller.UserID, id, rule.Action, "Permit issued: %s", url)
		a.effects.NotifyCreator(ctx, app, domain.EventIssued, "Permit issued")
	}

	service.LogOutcome(a.log, span, "issue_permit", op.End(err), err,
		zap.Uint64("application_id", id),
		zap.Bool("uploaded", document != nil),
		zap.Uint64("user_id", caller.UserID),
	)

	return app, err
}

// resolveDocument returns the permit document URL, uploading document when
// given. The transition is checked first so nothing is uploaded for an
// application that cannot be issued.
func (a *applicationService) resolveDocument(ctx context.Context, caller domain.Caller, id uint64, req dto.IssueRequest, document *multipart.FileHeader) (string, error) {
	url := strings.TrimSpace(req.DocumentURL)
	if document == nil && url == "" {
		return "", common.NewValidation("application", id, "permit document is required")
	}
	if document == nil {
		return url, nil
	}

	current, err := a.applicationRepository.FindByID(ctx, id)
	if err != nil {
		return "", err
	}
	if _, err := lifecycle.Check(id, current.Status, domain.StatusIssued, caller.Capabilities); err != nil {
		return "", err
	}
	if a.documents == nil {
		return "", common.NewValidation("application", id, "document uploads are not configured")
	}

	name := fmt.Sprintf("%d", id)
	if current.ApplicationNumber != nil {
		name = *current.ApplicationNumber
	}
	url, err = a.documents.UploadDocument(ctx, document, name)
	if err != nil {
		return "", fmt.Errorf("upload permit document: %w", err)
	}

	return url, nil
}

// Release implements service.ApplicationService.
func (a *applicationService) Release(ctx context.Context, caller domain.Caller, id uint64) (*domain.Application, error) {
	ctx, span := a.tracer.Start(ctx, "service.Application.Release")
	defer span.End()

	op := a.ins.Begin(ctx, span, "release_permit")
	now := a.settings.Clock()

	app, rule, err := a.transition(ctx, span, caller, id, domain.StatusReleased,
		func(_ context.Context, _ repository.ApplicationRepository, _ *domain.Application, update *repository.StatusUpdate) error {
			update.Columns["released_at"] = now
			return nil
		})
	if err == nil {
		a.effects.Record(ctx, caller.UserID, id, rule.Action, "Permit released")
		a.effects.NotifyCreator(ctx, app, domain.EventReleased, "Permit released")
	}

	service.LogOutcome(a.log, span, "release_permit", op.End(err), err,
		zap.Uint64("application_id", id),
		zap.Uint64("user_id", caller.UserID),
	)

	return app, err
}

// transition locks the application, checks the edge, applies mutate and
// writes the new status with a compare-and-set. The returned aggregate is
// read after commit.
func (a *applicationService) transition(
	ctx context.Context,
	span trace.Span,
	caller domain.Caller,
	id uint64,
	to domain.Status,
	mutate mutation,
) (*domain.Application, lifecycle.Rule, error) {
	span.SetAttributes(
		attribute.Int64("application.id", int64(id)),
		attribute.String("status.to", string(to)),
	)

	var rule lifecycle.Rule
	err := repository.WithTransaction(ctx, a.db, a.settings.LockTimeout, "application", id, func(ctx context.Context, tx *gorm.DB) error {
		apps := a.applications(tx)

		app, err := apps.FindByIDForUpdate(ctx, id)
		if err != nil {
			return err
		}
		span.SetAttributes(attribute.String("status.from", string(app.Status)))

		rule, err = lifecycle.Check(id, app.Status, to, caller.Capabilities)
		if err != nil {
			return err
		}

		update := repository.StatusUpdate{
			ID:      id,
			From:    app.Status,
			To:      to,
			Version: app.Version,
			Columns: map[string]any{},
		}
		if mutate != nil {
			if err := mutate(ctx, apps, app, &update); err != nil {
				return err
			}
		}

		return apps.CompareAndSetStatus(ctx, update)
	})
	if err != nil {
		return nil, rule, err
	}

	app, err := a.applicationRepository.FindByID(ctx, id)
	if err != nil {
		return nil, rule, err
	}

	span.SetAttributes(attribute.Bool("status.terminal", lifecycle.IsTerminal(to)))
	if lifecycle.IsTerminal(to) {
		a.log.Info("Application closed",
			zap.Uint64("application_id", id),
			zap.String("status", string(to)),
			zap.String("trace_id", span.SpanContext().TraceID().String()),
		)
	}

	return app, rule, nil
}

func (a *applicationService) applications(tx *gorm.DB) repository.ApplicationRepository {
	return applicationrepo.NewApplicationRepository(tx, a.meter, a.tracer, a.log)
}

func (a *applicationService) catalog(tx *gorm.DB) repository.CatalogRepository {
	return catalogrepo.NewCatalogRepository(tx, a.meter, a.tracer, a.log)
}

func NewApplicationService(
	db *gorm.DB,
	applicationRepository repository.ApplicationRepository,
	catalogRepository repository.CatalogRepository,
	entityRepository repository.EntityRepository,
	documents service.DocumentStore,
	effects *service.Effects,
	settings service.Settings,
	meter metric.Meter,
	tracer trace.Tracer,
	log *zap.Logger,
) service.ApplicationService {
	return &applicationService{
		db:                    db,
		applicationRepository: applicationRepository,
		catalogRepository:     catalogRepository,
		entityRepository:      entityRepository,
		documents:             documents,
		effects:               effects,
		settings:              settings,

		meter:  meter,
		tracer: tracer,
		log:    log,
		ins:    service.NewInstruments(meter, "application"),
	}
}
