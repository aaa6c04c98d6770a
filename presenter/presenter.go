package presenter

import (
	"context"

	"github.com/fazamuttaqien/permitting/config"
	"github.com/fazamuttaqien/permitting/internal/audit"
	applicationhandler "github.com/fazamuttaqien/permitting/internal/handler/application"
	assessmenthandler "github.com/fazamuttaqien/permitting/internal/handler/assessment"
	paymenthandler "github.com/fazamuttaqien/permitting/internal/handler/payment"
	private_handler "github.com/fazamuttaqien/permitting/internal/handler/private"
	"github.com/fazamuttaqien/permitting/internal/notify"
	applicationrepo "github.com/fazamuttaqien/permitting/internal/repository/application"
	auditrepo "github.com/fazamuttaqien/permitting/internal/repository/audit"
	catalogrepo "github.com/fazamuttaqien/permitting/internal/repository/catalog"
	entityrepo "github.com/fazamuttaqien/permitting/internal/repository/entity"
	paymentrepo "github.com/fazamuttaqien/permitting/internal/repository/payment"
	userrepo "github.com/fazamuttaqien/permitting/internal/repository/user"
	"github.com/fazamuttaqien/permitting/internal/service"
	applicationsrv "github.com/fazamuttaqien/permitting/internal/service/application"
	assessmentsrv "github.com/fazamuttaqien/permitting/internal/service/assessment"
	paymentsrv "github.com/fazamuttaqien/permitting/internal/service/payment"
	privatesrv "github.com/fazamuttaqien/permitting/internal/service/private"
	pkgcloudinary "github.com/fazamuttaqien/permitting/pkg/cloudinary"
	"github.com/fazamuttaqien/permitting/pkg/telemetry"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/gofiber/fiber/v2/middleware/session"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

type Presenter struct {
	PrivatePresenter     *private_handler.PrivateHandler
	ApplicationPresenter *applicationhandler.ApplicationHandler
	AssessmentPresenter  *assessmenthandler.AssessmentHandler
	PaymentPresenter     *paymenthandler.PaymentHandler

	dispatcher *notify.Dispatcher
}

// Close drains queued notifications.
func (p Presenter) Close(ctx context.Context) error {
	if p.dispatcher == nil {
		return nil
	}
	return p.dispatcher.Close(ctx)
}

// NewPresenter wires repositories, services and handlers. cld may be nil, in
// which case Issue only accepts a document URL.
func NewPresenter(
	db *gorm.DB,
	cld *cloudinary.Cloudinary,
	redisClient *redis.Client,
	store *session.Store,
	tel *telemetry.OpenTelemetry,
	cfg *config.Config,
) Presenter {
	// Repository
	applicationRepositoryMeter := tel.MeterProvider.Meter("application-repository-meter")
	applicationRepositoryTracer := tel.TracerProvider.Tracer("application-repository-tracer")
	applicationRepository := applicationrepo.NewApplicationRepository(
		db,
		applicationRepositoryMeter,
		applicationRepositoryTracer,
		tel.Log,
	)

	catalogRepositoryMeter := tel.MeterProvider.Meter("catalog-repository-meter")
	catalogRepositoryTracer := tel.TracerProvider.Tracer("catalog-repository-tracer")
	catalogRepository := catalogrepo.NewCatalogRepository(
		db,
		catalogRepositoryMeter,
		catalogRepositoryTracer,
		tel.Log,
	)

	entityRepositoryMeter := tel.MeterProvider.Meter("entity-repository-meter")
	entityRepositoryTracer := tel.TracerProvider.Tracer("entity-repository-tracer")
	entityRepository := entityrepo.NewEntityRepository(
		db,
		entityRepositoryMeter,
		entityRepositoryTracer,
		tel.Log,
	)

	paymentRepositoryMeter := tel.MeterProvider.Meter("payment-repository-meter")
	paymentRepositoryTracer := tel.TracerProvider.Tracer("payment-repository-tracer")
	paymentRepository := paymentrepo.NewPaymentRepository(
		db,
		paymentRepositoryMeter,
		paymentRepositoryTracer,
		tel.Log,
	)

	auditRepositoryMeter := tel.MeterProvider.Meter("audit-repository-meter")
	auditRepositoryTracer := tel.TracerProvider.Tracer("audit-repository-tracer")
	auditRepository := auditrepo.NewAuditRepository(
		db,
		auditRepositoryMeter,
		auditRepositoryTracer,
		tel.Log,
	)

	userRepositoryMeter := tel.MeterProvider.Meter("user-repository-meter")
	userRepositoryTracer := tel.TracerProvider.Tracer("user-repository-tracer")
	userRepository := userrepo.NewUserRepository(
		db,
		userRepositoryMeter,
		userRepositoryTracer,
		tel.Log,
	)

	// Side effects
	var (
		notifier   notify.Notifier = notify.Nop{}
		dispatcher *notify.Dispatcher
	)
	if redisClient != nil {
		dispatcher = notify.NewDispatcher(
			notify.NewRedisPublisher(redisClient, cfg.NOTIFY_CHANNEL),
			cfg.NOTIFY_BUFFER,
			tel.Log,
		)
		notifier = dispatcher
	}

	effects := &service.Effects{
		Audit:    audit.NewRecorder(auditRepository, tel.Log),
		Notifier: notifier,
		Users:    userRepository,
		Roles:    cfg.ROLE_CAPABILITIES,
		Log:      tel.Log,
	}

	settings := service.Settings{
		LockTimeout:      cfg.LOCK_TIMEOUT,
		PaymentTolerance: cfg.PAYMENT_TOLERANCE,
	}

	var documents service.DocumentStore
	if cld != nil {
		documents = pkgcloudinary.NewUploader(cld, cfg.PERMIT_DOCUMENT_FOLDER)
	}

	// Service
	privateServiceMeter := tel.MeterProvider.Meter("private-service-meter")
	privateServiceTracer := tel.TracerProvider.Tracer("private-service-trace")
	privateService := privatesrv.NewPrivateService(
		cfg.JWT_SECRET_KEY,
		userRepository,
		privateServiceMeter,
		privateServiceTracer,
		tel.Log,
	)

	applicationServiceMeter := tel.MeterProvider.Meter("application-service-meter")
	applicationServiceTracer := tel.TracerProvider.Tracer("application-service-trace")
	applicationService := applicationsrv.NewApplicationService(
		db,
		applicationRepository,
		catalogRepository,
		entityRepository,
		documents,
		effects,
		settings,
		applicationServiceMeter,
		applicationServiceTracer,
		tel.Log,
	)

	assessmentServiceMeter := tel.MeterProvider.Meter("assessment-service-meter")
	assessmentServiceTracer := tel.TracerProvider.Tracer("assessment-service-trace")
	assessmentService := assessmentsrv.NewAssessmentService(
		db,
		applicationRepository,
		effects,
		settings,
		assessmentServiceMeter,
		assessmentServiceTracer,
		tel.Log,
	)

	paymentServiceMeter := tel.MeterProvider.Meter("payment-service-meter")
	paymentServiceTracer := tel.TracerProvider.Tracer("payment-service-trace")
	paymentService := paymentsrv.NewPaymentService(
		db,
		applicationRepository,
		paymentRepository,
		effects,
		settings,
		paymentServiceMeter,
		paymentServiceTracer,
		tel.Log,
	)

	// Handler
	privateHandlerMeter := tel.MeterProvider.Meter("private-handler-meter")
	privateHandlerTracer := tel.TracerProvider.Tracer("private-handler-trace")
	privateHandler := private_handler.NewPrivateHandler(
		privateService,
		store,
		!cfg.DEVELOPMENT_MODE,
		privateHandlerMeter,
		privateHandlerTracer,
		tel.Log,
	)

	applicationHandlerMeter := tel.MeterProvider.Meter("application-handler-meter")
	applicationHandlerTracer := tel.TracerProvider.Tracer("application-handler-trace")
	applicationHandler := applicationhandler.NewApplicationHandler(
		applicationService,
		applicationHandlerMeter,
		applicationHandlerTracer,
		tel.Log,
	)

	assessmentHandlerMeter := tel.MeterProvider.Meter("assessment-handler-meter")
	assessmentHandlerTracer := tel.TracerProvider.Tracer("assessment-handler-trace")
	assessmentHandler := assessmenthandler.NewAssessmentHandler(
		assessmentService,
		assessmentHandlerMeter,
		assessmentHandlerTracer,
		tel.Log,
	)

	paymentHandlerMeter := tel.MeterProvider.Meter("payment-handler-meter")
	paymentHandlerTracer := tel.TracerProvider.Tracer("payment-handler-trace")
	paymentHandler := paymenthandler.NewPaymentHandler(
		paymentService,
		paymentHandlerMeter,
		paymentHandlerTracer,
		tel.Log,
	)

	return Presenter{
		PrivatePresenter:     privateHandler,
		ApplicationPresenter: applicationHandler,
		AssessmentPresenter:  assessmentHandler,
		PaymentPresenter:     paymentHandler,
		dispatcher:           dispatcher,
	}
}
