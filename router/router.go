package router

import (
	"errors"
	"time"

	"github.com/fazamuttaqien/permitting/config"
	mysqldb "github.com/fazamuttaqien/permitting/infra/mysql"
	"github.com/fazamuttaqien/permitting/internal/domain"
	"github.com/fazamuttaqien/permitting/middleware"
	"github.com/fazamuttaqien/permitting/pkg/common"
	ratelimiter "github.com/fazamuttaqien/permitting/pkg/rate-limiter"
	"github.com/fazamuttaqien/permitting/pkg/telemetry"
	"github.com/fazamuttaqien/permitting/presenter"

	"github.com/gofiber/contrib/otelfiber/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/session"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func NewRouter(
	presenter presenter.Presenter,
	db *gorm.DB,
	tel *telemetry.OpenTelemetry,
	cfg *config.Config,
	limiter *ratelimiter.RateLimiter,
	store *session.Store,
) *fiber.App {
	jwtAuth := middleware.NewJWTAuthMiddleware(cfg.JWT_SECRET_KEY, cfg.ROLE_CAPABILITIES)
	customCSRF := middleware.NewCustomCSRFMiddleware(store)

	app := fiber.New(fiber.Config{
		BodyLimit:    10 * 1024 * 1024,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
		ErrorHandler: ErrorCustomHandler(tel.Log),
	})

	// 1. Recover from panics
	app.Use(recover.New(recover.Config{EnableStackTrace: true}))
	// 2. Security Headers
	app.Use(helmet.New())
	// 3. CORS
	app.Use(cors.New(cors.Config{
		AllowOrigins:     "http://localhost:5000",
		AllowHeaders:     "Origin, Content-Type, Accept, X-CSRF-Token, Idempotency-Key",
		AllowMethods:     "GET, POST, PUT, DELETE, OPTIONS",
		AllowCredentials: true,
	}))

	if cfg.DEVELOPMENT_MODE {
		app.Use(logger.New(logger.Config{
			Format:     "[${time}] ${ip} ${status} - ${latency} ${method} ${path}\n",
			TimeFormat: "2006-01-02 15:04:05",
		}))
	}

	app.Use(otelfiber.Middleware(
		otelfiber.WithTracerProvider(tel.TracerProvider),
		otelfiber.WithPropagators(otel.GetTextMapPropagator()),
	))

	if cfg.REQUESTS_METRIC {
		zap.L().Info("Enabling HTTP request metrics middleware")
		metrics, err := middleware.NewRequestMetrics(tel.MeterProvider.Meter("permitting-http-middleware"), tel.Log)
		if err != nil {
			zap.L().Fatal("Failed to create HTTP request metrics", zap.Error(err))
		}
		app.Use(metrics.Handle())
	} else {
		zap.L().Info("HTTP request metrics middleware is disabled")
	}

	app.Get("/health", func(c *fiber.Ctx) error {
		if err := mysqldb.Ping(db, c.Context()); err != nil {
			zap.L().Error("Health check failed: database ping error", zap.Error(err))
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
				"status": "unhealthy",
				"error":  "database connection failed",
			})
		}
		return c.Status(fiber.StatusOK).JSON(fiber.Map{
			"status":      "healthy",
			"service":     cfg.SERVICE_NAME,
			"version":     cfg.SERVICE_VERSION,
			"environment": cfg.ENVIRONMENT,
			"database":    cfg.DB_DRIVER,
			"timestamp":   time.Now().UTC().Format(time.RFC3339),
		})
	})

	api := app.Group("/api/v1")
	api.Use(limiter.RateLimitMiddleware())

	RegisterRoutes(api, presenter, jwtAuth, customCSRF)

	app.Use(func(c *fiber.Ctx) error {
		return common.ErrorResponse(c, fiber.StatusNotFound, "Resource not found")
	})

	return app
}

// RegisterRoutes mounts the permitting API on api. Lifecycle transitions are
// not capability-gated here: the service checks state before capability.
func RegisterRoutes(api fiber.Router, presenter presenter.Presenter, jwtAuth, customCSRF fiber.Handler) {
	requireCreate := middleware.RequireCapability(domain.CanCreateApplication)
	requireFeeEdit := middleware.RequireCapability(domain.CanAssess, domain.CanApprove)
	requireCashier := middleware.RequireCapability(domain.CanRecordPayment)

	authAPI := api.Group("/auth")
	{
		authAPI.Post("/login", presenter.PrivatePresenter.Login)
		authAPI.Post("/logout", jwtAuth, customCSRF, presenter.PrivatePresenter.Logout)
		authAPI.Get("/csrf-token", presenter.PrivatePresenter.CSRFToken)
	}

	applicationsAPI := api.Group("/applications", jwtAuth, customCSRF)
	{
		applicationsAPI.Post("", requireCreate, presenter.ApplicationPresenter.Create)
		applicationsAPI.Get("/:id", presenter.ApplicationPresenter.Get)
		applicationsAPI.Delete("/:id", presenter.ApplicationPresenter.Delete)
		applicationsAPI.Put("/:id/permit-type", presenter.ApplicationPresenter.ChangePermitType)

		applicationsAPI.Post("/:id/assess", presenter.AssessmentPresenter.Assess)
		applicationsAPI.Put("/:id/fees/:feeId", requireFeeEdit, presenter.AssessmentPresenter.UpdateFeeAmount)

		applicationsAPI.Post("/:id/submit", presenter.ApplicationPresenter.Submit)
		applicationsAPI.Post("/:id/approve", presenter.ApplicationPresenter.Approve)
		applicationsAPI.Post("/:id/reject", presenter.ApplicationPresenter.Reject)

		applicationsAPI.Post("/:id/payments", requireCashier, presenter.PaymentPresenter.RecordPayment)
		applicationsAPI.Get("/:id/payments", presenter.PaymentPresenter.ListPayments)
		applicationsAPI.Get("/:id/balance", presenter.PaymentPresenter.OutstandingBalance)

		applicationsAPI.Post("/:id/issue", presenter.ApplicationPresenter.Issue)
		applicationsAPI.Post("/:id/release", presenter.ApplicationPresenter.Release)
	}
}

func ErrorCustomHandler(log *zap.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code := fiber.StatusInternalServerError
		message := "Internal Server Error"

		var e *fiber.Error
		if errors.As(err, &e) {
			code = e.Code
			message = e.Message
		}

		log.Error("Request error occured",
			zap.Error(err),
			zap.String("path", c.Path()),
			zap.String("method", c.Method()),
			zap.Int("status_code", code),
		)

		return common.ErrorResponse(c, code, message)
	}
}
