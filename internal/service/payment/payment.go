package paymentsrv

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fazamuttaqien/permitting/internal/domain"
	"github.com/fazamuttaqien/permitting/internal/dto"
	"github.com/fazamuttaqien/permitting/internal/lifecycle"
	"github.com/fazamuttaqien/permitting/internal/repository"
	applicationrepo "github.com/fazamuttaqien/permitting/internal/repository/application"
	auditrepo "github.com/fazamuttaqien/permitting/internal/repository/audit"
	paymentrepo "github.com/fazamuttaqien/permitting/internal/repository/payment"
	"github.com/fazamuttaqien/permitting/internal/service"
	"github.com/fazamuttaqien/permitting/pkg/common"
	"github.com/fazamuttaqien/permitting/pkg/money"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const paymentDateLayout = "2006-01-02"

type paymentService struct {
	db                    *gorm.DB
	applicationRepository repository.ApplicationRepository
	paymentRepository     repository.PaymentRepository
	effects               *service.Effects
	settings              service.Settings

	meter              metric.Meter
	tracer             trace.Tracer
	log                *zap.Logger
	ins                *service.Instruments
	paymentsRecorded   metric.Int64Counter
	paymentsReplayed   metric.Int64Counter
	applicationsPaid   metric.Int64Counter
	overpaymentsMarked metric.Int64Counter
}

// RecordPayment implements service.PaymentService.
func (p *paymentService) RecordPayment(ctx context.Context, caller domain.Caller, id uint64, req dto.RecordPaymentRequest) (*domain.Payment, error) {
	ctx, span := p.tracer.Start(ctx, "service.Payment.RecordPayment")
	defer span.End()

	span.SetAttributes(attribute.Int64("application.id", int64(id)))
	op := p.ins.Begin(ctx, span, "record_payment")

	payment, err := p.recordPayment(ctx, caller, id, req)
	service.LogOutcome(p.log, span, "record_payment", op.End(err), err,
		zap.Uint64("application_id", id),
		zap.String("receipt_no", req.OfficialReceiptNo),
		zap.String("amount", req.Amount),
		zap.Uint64("user_id", caller.UserID),
	)

	return payment, err
}

func (p *paymentService) recordPayment(ctx context.Context, caller domain.Caller, id uint64, req dto.RecordPaymentRequest) (*domain.Payment, error) {
	if !caller.Capabilities.Has(domain.CanRecordPayment) {
		return nil, common.NewAuthorization("payment", id, "caller may not record payments")
	}

	receipt := strings.TrimSpace(req.OfficialReceiptNo)
	if receipt == "" {
		return nil, common.NewValidation("payment", id, "official receipt number is required")
	}
	amount, err := money.Parse(req.Amount)
	if err != nil {
		return nil, common.NewValidation("payment", id, "invalid amount %q", req.Amount)
	}
	if !money.IsPositive(amount) {
		return nil, common.NewValidation("payment", id, "amount must be greater than zero")
	}
	date, err := time.Parse(paymentDateLayout, strings.TrimSpace(req.PaymentDate))
	if err != nil {
		return nil, common.NewValidation("payment", id, "payment_date must be YYYY-MM-DD")
	}

	var key *string
	if req.IdempotencyKey != nil && strings.TrimSpace(*req.IdempotencyKey) != "" {
		trimmed := strings.TrimSpace(*req.IdempotencyKey)
		key = &trimmed
	}

	var (
		payment *domain.Payment
		replay  bool
		paid    bool
		now     = p.settings.Clock()
		tol     = p.settings.PaymentTolerance
	)
	err = repository.WithTransaction(ctx, p.db, p.settings.LockTimeout, "application", id, func(ctx context.Context, tx *gorm.DB) error {
		apps := applicationrepo.NewApplicationRepository(tx, p.meter, p.tracer, p.log)
		payments := paymentrepo.NewPaymentRepository(tx, p.meter, p.tracer, p.log)

		app, err := apps.FindByIDForUpdate(ctx, id)
		if err != nil {
			return err
		}

		if key != nil {
			existing, err := payments.FindByIdempotencyKey(ctx, id, *key)
			if err == nil {
				payment, replay = existing, true
				return nil
			}
			if !errors.Is(err, common.ErrNotFound) {
				return err
			}
		}

		if app.Status != domain.StatusApproved {
			return common.NewConflict("application", id, "payments are accepted only while APPROVED, status is %s", app.Status)
		}

		total := app.TotalAssessed()
		collected := app.TotalCollected().Add(amount)
		if collected.GreaterThan(total.Add(tol)) {
			return common.NewValidation("payment", id, "payment of %s exceeds the outstanding balance of %s",
				money.String(amount), money.String(money.ClampZero(total.Sub(app.TotalCollected()))))
		}

		payment = &domain.Payment{
			ApplicationID:     id,
			OfficialReceiptNo: receipt,
			PaymentDate:       date,
			Amount:            amount,
			Address:           req.Address,
			RecordedBy:        caller.UserID,
			IdempotencyKey:    key,
		}
		if err := payments.Create(ctx, payment); err != nil {
			return err
		}

		if collected.LessThan(total.Sub(tol)) {
			return nil
		}

		if _, err := lifecycle.Check(id, app.Status, domain.StatusPaid, caller.Capabilities); err != nil {
			return err
		}
		paid = true
		return apps.CompareAndSetStatus(ctx, repository.StatusUpdate{
			ID:      id,
			From:    app.Status,
			To:      domain.StatusPaid,
			Version: app.Version,
			Columns: map[string]any{"paid_at": now},
		})
	})
	if err != nil {
		return nil, err
	}

	if replay {
		p.paymentsReplayed.Add(ctx, 1, metric.WithAttributes(attribute.String("service", "payment")))
		p.log.Info("Payment replayed from idempotency key",
			zap.Uint64("application_id", id),
			zap.Uint64("payment_id", payment.ID),
			zap.String("trace_id", trace.SpanFromContext(ctx).SpanContext().TraceID().String()),
		)
		return payment, nil
	}

	p.paymentsRecorded.Add(ctx, 1, metric.WithAttributes(attribute.String("service", "payment")))
	p.effects.Record(ctx, caller.UserID, id, domain.AuditPayment,
		"Payment %s of %s recorded", payment.OfficialReceiptNo, money.String(payment.Amount))

	app, err := p.applicationRepository.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	for _, recorded := range app.Payments {
		if recorded.ID == payment.ID {
			payment.RecordedByName = recorded.RecordedByName
			break
		}
	}

	if paid {
		p.applicationsPaid.Add(ctx, 1, metric.WithAttributes(attribute.String("service", "payment")))
		p.effects.Record(ctx, caller.UserID, id, domain.AuditPaid,
			"Application paid in full, collected %s of %s", money.String(app.TotalCollected()), money.String(app.TotalAssessed()))
		p.effects.NotifyCreator(ctx, app, domain.EventPaid, "Payment received in full")
	}

	return payment, nil
}

// ListPayments implements service.PaymentService.
func (p *paymentService) ListPayments(ctx context.Context, id uint64) ([]domain.Payment, error) {
	ctx, span := p.tracer.Start(ctx, "service.Payment.ListPayments")
	defer span.End()

	span.SetAttributes(attribute.Int64("application.id", int64(id)))
	op := p.ins.Begin(ctx, span, "list_payments")

	payments, err := p.paymentRepository.ListByApplication(ctx, id)
	if err == nil && len(payments) == 0 {
		_, err = p.applicationRepository.FindByID(ctx, id)
	}
	duration := op.End(err)
	if err != nil {
		service.LogOutcome(p.log, span, "list_payments", duration, err, zap.Uint64("application_id", id))
		return nil, err
	}

	p.log.Debug("Payments listed",
		zap.Uint64("application_id", id),
		zap.Int("count", len(payments)),
		zap.Float64("duration_ms", duration),
		zap.String("trace_id", span.SpanContext().TraceID().String()),
	)

	return payments, nil
}

// OutstandingBalance implements service.PaymentService. An overpaid
// application is flagged in the audit trail once.
func (p *paymentService) OutstandingBalance(ctx context.Context, caller domain.Caller, id uint64) (*domain.Balance, error) {
	ctx, span := p.tracer.Start(ctx, "service.Payment.OutstandingBalance")
	defer span.End()

	span.SetAttributes(attribute.Int64("application.id", int64(id)))
	op := p.ins.Begin(ctx, span, "outstanding_balance")

	app, err := p.applicationRepository.FindByID(ctx, id)
	duration := op.End(err)
	if err != nil {
		service.LogOutcome(p.log, span, "outstanding_balance", duration, err, zap.Uint64("application_id", id))
		return nil, err
	}

	balance := app.Balance()
	if money.IsPositive(balance.Overpaid) {
		p.flagOverpayment(ctx, span, caller, id)
	}

	p.log.Debug("Outstanding balance computed",
		zap.Uint64("application_id", id),
		zap.String("outstanding", money.String(balance.Outstanding)),
		zap.String("overpaid", money.String(balance.Overpaid)),
		zap.Float64("duration_ms", duration),
		zap.String("trace_id", span.SpanContext().TraceID().String()),
	)

	return &balance, nil
}

// flagOverpayment writes the OVERPAYMENT_DETECTED entry under the
// application row lock, so concurrent balance reads add it at most once.
func (p *paymentService) flagOverpayment(ctx context.Context, span trace.Span, caller domain.Caller, id uint64) {
	var (
		flagged bool
		balance domain.Balance
	)
	err := repository.WithTransaction(ctx, p.db, p.settings.LockTimeout, "application", id, func(ctx context.Context, tx *gorm.DB) error {
		apps := applicationrepo.NewApplicationRepository(tx, p.meter, p.tracer, p.log)
		audits := auditrepo.NewAuditRepository(tx, p.meter, p.tracer, p.log)

		app, err := apps.FindByIDForUpdate(ctx, id)
		if err != nil {
			return err
		}
		balance = app.Balance()
		if !money.IsPositive(balance.Overpaid) {
			return nil
		}

		entries, err := audits.FindByApplication(ctx, id)
		if err != nil {
			return err
		}
		for _, entry := range entries {
			if entry.ActionCode == domain.AuditOverpayment {
				return nil
			}
		}

		flagged = true
		return audits.Create(ctx, &domain.AuditEntry{
			ActorID:       caller.UserID,
			ApplicationID: id,
			ActionCode:    domain.AuditOverpayment,
			Description: fmt.Sprintf("Collected %s exceeds total %s by %s",
				money.String(balance.Collected), money.String(balance.Total), money.String(balance.Overpaid)),
		})
	})
	if err != nil {
		p.log.Error("Failed to flag overpayment",
			zap.Uint64("application_id", id),
			zap.String("trace_id", span.SpanContext().TraceID().String()),
			zap.Error(err),
		)
		return
	}
	if !flagged {
		return
	}

	p.overpaymentsMarked.Add(ctx, 1, metric.WithAttributes(attribute.String("service", "payment")))
	p.log.Warn("Overpayment detected",
		zap.Uint64("application_id", id),
		zap.String("overpaid", money.String(balance.Overpaid)),
		zap.String("trace_id", span.SpanContext().TraceID().String()),
	)
}

func NewPaymentService(
	db *gorm.DB,
	applicationRepository repository.ApplicationRepository,
	paymentRepository repository.PaymentRepository,
	effects *service.Effects,
	settings service.Settings,
	meter metric.Meter,
	tracer trace.Tracer,
	log *zap.Logger,
) service.PaymentService {
	paymentsRecorded, _ := meter.Int64Counter(
		"service.payments.recorded",
		metric.WithDescription("Number of payments recorded"),
		metric.WithUnit("{payment}"),
	)

	paymentsReplayed, _ := meter.Int64Counter(
		"service.payments.replayed",
		metric.WithDescription("Number of payments answered from an idempotency key"),
		metric.WithUnit("{payment}"),
	)

	applicationsPaid, _ := meter.Int64Counter(
		"service.applications.paid",
		metric.WithDescription("Number of applications paid in full"),
		metric.WithUnit("{application}"),
	)

	overpaymentsMarked, _ := meter.Int64Counter(
		"service.overpayments.detected",
		metric.WithDescription("Number of overpaid applications flagged"),
		metric.WithUnit("{application}"),
	)

	return &paymentService{
		db:                    db,
		applicationRepository: applicationRepository,
		paymentRepository:     paymentRepository,
		effects:               effects,
		settings:              settings,

		meter:              meter,
		tracer:             tracer,
		log:                log,
		ins:                service.NewInstruments(meter, "payment"),
		paymentsRecorded:   paymentsRecorded,
		paymentsReplayed:   paymentsReplayed,
		applicationsPaid:   applicationsPaid,
		overpaymentsMarked: overpaymentsMarked,
	}
}
