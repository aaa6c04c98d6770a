package assessmentsrv

import (
	"context"

	"github.com/fazamuttaqien/permitting/internal/assessment"
	"github.com/fazamuttaqien/permitting/internal/domain"
	"github.com/fazamuttaqien/permitting/internal/dto"
	"github.com/fazamuttaqien/permitting/internal/lifecycle"
	"github.com/fazamuttaqien/permitting/internal/repository"
	applicationrepo "github.com/fazamuttaqien/permitting/internal/repository/application"
	catalogrepo "github.com/fazamuttaqien/permitting/internal/repository/catalog"
	"github.com/fazamuttaqien/permitting/internal/service"
	"github.com/fazamuttaqien/permitting/pkg/common"
	"github.com/fazamuttaqien/permitting/pkg/money"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type assessmentService struct {
	db                    *gorm.DB
	applicationRepository repository.ApplicationRepository
	effects               *service.Effects
	settings              service.Settings

	meter         metric.Meter
	tracer        trace.Tracer
	log           *zap.Logger
	ins           *service.Instruments
	feesAssessed  metric.Int64Counter
	feesCorrected metric.Int64Counter
}

// Assess implements service.AssessmentService.
func (s *assessmentService) Assess(ctx context.Context, caller domain.Caller, id uint64, req dto.AssessRequest) (*domain.Application, error) {
	ctx, span := s.tracer.Start(ctx, "service.Assessment.Assess")
	defer span.End()

	span.SetAttributes(attribute.Int64("application.id", int64(id)))
	op := s.ins.Begin(ctx, span, "assess_application")

	app, err := s.assess(ctx, caller, id, req)

	fields := []zap.Field{
		zap.Uint64("application_id", id),
		zap.Uint64("user_id", caller.UserID),
	}
	if app != nil {
		fields = append(fields,
			zap.Int("fees", len(app.AssessedFees)),
			zap.String("total", money.String(app.TotalAssessed())),
		)
	}
	service.LogOutcome(s.log, span, "assess_application", op.End(err), err, fields...)

	return app, err
}

func (s *assessmentService) assess(ctx context.Context, caller domain.Caller, id uint64, req dto.AssessRequest) (*domain.Application, error) {
	extra := dto.ToParameters(req.ExtraParameters)
	if err := service.ValidateParameters("application", id, extra); err != nil {
		return nil, err
	}

	var (
		rule  lifecycle.Rule
		fees  []domain.AssessedFee
		from  domain.Status
		now   = s.settings.Clock()
		total decimal.Decimal
	)
	err := repository.WithTransaction(ctx, s.db, s.settings.LockTimeout, "application", id, func(ctx context.Context, tx *gorm.DB) error {
		apps := applicationrepo.NewApplicationRepository(tx, s.meter, s.tracer, s.log)
		catalog := catalogrepo.NewCatalogRepository(tx, s.meter, s.tracer, s.log)

		app, err := apps.FindByIDForUpdate(ctx, id)
		if err != nil {
			return err
		}
		from = app.Status

		rule, err = lifecycle.Check(id, app.Status, domain.StatusAssessed, caller.Capabilities)
		if err != nil {
			return err
		}

		params := make([]domain.Parameter, 0, len(app.Parameters)+len(extra))
		params = append(params, app.Parameters...)
		params = append(params, extra...)

		rules, err := catalog.ResolveRules(ctx, app.PermitTypeID)
		if err != nil {
			return err
		}
		applicable := assessment.Applicable(rules, params)

		feeIDs := make([]uint, 0, len(applicable))
		for _, r := range applicable {
			feeIDs = append(feeIDs, r.FeeID)
		}
		catalogFees, err := catalog.FindFeesByIDs(ctx, feeIDs)
		if err != nil {
			return err
		}

		fees, err = assessment.Compute(id, applicable, catalogFees, params)
		if err != nil {
			return err
		}

		if err := apps.AppendParameters(ctx, id, len(app.Parameters), extra); err != nil {
			return err
		}
		if err := apps.ReplaceFees(ctx, id, fees); err != nil {
			return err
		}

		update := repository.StatusUpdate{
			ID:      id,
			From:    app.Status,
			To:      domain.StatusAssessed,
			Version: app.Version,
			Columns: map[string]any{"assessor_id": caller.UserID},
		}
		if err := service.AssignNumber(ctx, apps, app, &update, now); err != nil {
			return err
		}

		return apps.CompareAndSetStatus(ctx, update)
	})
	if err != nil {
		return nil, err
	}

	for _, f := range fees {
		total = total.Add(f.AssessedAmount)
	}

	s.feesAssessed.Add(ctx, int64(len(fees)),
		metric.WithAttributes(attribute.String("service", "assessment")),
	)
	s.effects.Record(ctx, caller.UserID, id, rule.Action,
		"Assessed %d fees totalling %s (from %s)", len(fees), money.String(total), from)

	return s.applicationRepository.FindByID(ctx, id)
}

// UpdateFeeAmount implements service.AssessmentService.
func (s *assessmentService) UpdateFeeAmount(ctx context.Context, caller domain.Caller, id uint64, feeID uint64, req dto.UpdateFeeAmountRequest) (*domain.AssessedFee, error) {
	ctx, span := s.tracer.Start(ctx, "service.Assessment.UpdateFeeAmount")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("application.id", int64(id)),
		attribute.Int64("assessed_fee.id", int64(feeID)),
	)
	op := s.ins.Begin(ctx, span, "update_fee_amount")

	fee, err := s.updateFeeAmount(ctx, caller, id, feeID, req)
	service.LogOutcome(s.log, span, "update_fee_amount", op.End(err), err,
		zap.Uint64("application_id", id),
		zap.Uint64("assessed_fee_id", feeID),
		zap.String("amount", req.Amount),
		zap.Uint64("user_id", caller.UserID),
	)

	return fee, err
}

func (s *assessmentService) updateFeeAmount(ctx context.Context, caller domain.Caller, id uint64, feeID uint64, req dto.UpdateFeeAmountRequest) (*domain.AssessedFee, error) {
	if !caller.Capabilities.HasAny(domain.CanAssess, domain.CanApprove) {
		return nil, common.NewAuthorization("assessed_fee", feeID, "caller may not correct assessed fees")
	}

	amount, err := money.Parse(req.Amount)
	if err != nil {
		return nil, common.NewValidation("assessed_fee", feeID, "invalid amount %q", req.Amount)
	}
	if money.IsNegative(amount) {
		return nil, common.NewValidation("assessed_fee", feeID, "amount must not be negative")
	}

	var previous domain.AssessedFee
	err = repository.WithTransaction(ctx, s.db, s.settings.LockTimeout, "application", id, func(ctx context.Context, tx *gorm.DB) error {
		apps := applicationrepo.NewApplicationRepository(tx, s.meter, s.tracer, s.log)

		app, err := apps.FindByIDForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !app.Status.FeesEditable() {
			return common.NewConflict("application", id, "assessed fees cannot change while %s", app.Status)
		}

		found := false
		for _, f := range app.AssessedFees {
			if f.ID == feeID {
				previous, found = f, true
				break
			}
		}
		if !found {
			return common.NewNotFound("assessed_fee", feeID)
		}

		return apps.UpdateFeeAmount(ctx, id, feeID, amount)
	})
	if err != nil {
		return nil, err
	}

	s.feesCorrected.Add(ctx, 1,
		metric.WithAttributes(attribute.String("service", "assessment")),
	)
	s.effects.Record(ctx, caller.UserID, id, domain.AuditFeeUpdate,
		"%s changed from %s to %s", previous.FeeName, money.String(previous.AssessedAmount), money.String(amount))

	updated := previous
	updated.AssessedAmount = amount
	return &updated, nil
}

func NewAssessmentService(
	db *gorm.DB,
	applicationRepository repository.ApplicationRepository,
	effects *service.Effects,
	settings service.Settings,
	meter metric.Meter,
	tracer trace.Tracer,
	log *zap.Logger,
) service.AssessmentService {
	feesAssessed, _ := meter.Int64Counter(
		"service.fees.assessed",
		metric.WithDescription("Number of assessed fee lines written"),
		metric.WithUnit("{fee}"),
	)

	feesCorrected, _ := meter.Int64Counter(
		"service.fees.corrected",
		metric.WithDescription("Number of assessed fee amounts corrected"),
		metric.WithUnit("{fee}"),
	)

	return &assessmentService{
		db:                    db,
		applicationRepository: applicationRepository,
		effects:               effects,
		settings:              settings,

		meter:         meter,
		tracer:        tracer,
		log:           log,
		ins:           service.NewInstruments(meter, "assessment"),
		feesAssessed:  feesAssessed,
		feesCorrected: feesCorrected,
	}
}
