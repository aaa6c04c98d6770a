package private_handler

import (
	"errors"
	"time"

	"github.com/fazamuttaqien/permitting/internal/dto"
	"github.com/fazamuttaqien/permitting/internal/handler"
	"github.com/fazamuttaqien/permitting/internal/service"
	"github.com/fazamuttaqien/permitting/middleware"
	"github.com/fazamuttaqien/permitting/pkg/common"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/session"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// TokenTTL matches the lifetime of the issued JWT.
const TokenTTL = 72 * time.Hour

type PrivateHandler struct {
	handler.Base
	privateService service.PrivateService
	store          *session.Store
	secureCookie   bool
}

func NewPrivateHandler(
	privateService service.PrivateService,
	store *session.Store,
	secureCookie bool,
	meter metric.Meter,
	tracer trace.Tracer,
	log *zap.Logger,
) *PrivateHandler {
	return &PrivateHandler{
		Base:           handler.NewBase(meter, tracer, log),
		privateService: privateService,
		store:          store,
		secureCookie:   secureCookie,
	}
}

func (h *PrivateHandler) Login(c *fiber.Ctx) error {
	ctx, span, start := h.Start(c, "Login")
	defer span.End()

	var req dto.LoginRequest
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

	res, err := h.privateService.Login(serviceCtx, req)
	if err != nil {
		if errors.Is(err, common.ErrInvalidCredentials) {
			return h.RecordError(ctx, span, c, start, err,
				fiber.StatusUnauthorized, "invalid_credentials", err.Error(), zap.String("username", req.Username))
		}
		return h.RecordServiceError(ctx, span, c, start, err, zap.String("username", req.Username))
	}

	c.Cookie(&fiber.Cookie{
		Name:     middleware.AuthCookie,
		Value:    res.Token,
		Path:     "/",
		Expires:  time.Now().Add(TokenTTL),
		HTTPOnly: true,
		Secure:   h.secureCookie,
		SameSite: fiber.CookieSameSiteStrictMode,
	})

	return h.RecordSuccess(ctx, span, c, start, fiber.StatusOK, res, zap.String("username", req.Username))
}

func (h *PrivateHandler) Logout(c *fiber.Ctx) error {
	ctx, span, start := h.Start(c, "Logout")
	defer span.End()

	c.Cookie(&fiber.Cookie{
		Name:     middleware.AuthCookie,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		HTTPOnly: true,
		Secure:   h.secureCookie,
		SameSite: fiber.CookieSameSiteStrictMode,
	})

	if sess, err := h.store.Get(c); err == nil {
		if err := sess.Destroy(); err != nil {
			return h.RecordError(ctx, span, c, start, err,
				fiber.StatusInternalServerError, "session_error", "Session error", zap.Error(err))
		}
	}

	return h.RecordSuccess(ctx, span, c, start, fiber.StatusOK, fiber.Map{"message": "Logged out"})
}

// CSRFToken returns the session's CSRF token, minting one on first use.
func (h *PrivateHandler) CSRFToken(c *fiber.Ctx) error {
	ctx, span, start := h.Start(c, "CSRFToken")
	defer span.End()

	sess, err := h.store.Get(c)
	if err != nil {
		return h.RecordError(ctx, span, c, start, err,
			fiber.StatusInternalServerError, "session_error", "Session error", zap.Error(err))
	}

	token, _ := sess.Get(middleware.CSRFSessionKey).(string)
	if token == "" {
		token, err = middleware.GenerateCSRFToken()
		if err != nil {
			return h.RecordError(ctx, span, c, start, err,
				fiber.StatusInternalServerError, "csrf_error", "Failed to generate CSRF token", zap.Error(err))
		}
		sess.Set(middleware.CSRFSessionKey, token)
		if err := sess.Save(); err != nil {
			return h.RecordError(ctx, span, c, start, err,
				fiber.StatusInternalServerError, "session_error", "Session error", zap.Error(err))
		}
	}

	return h.RecordSuccess(ctx, span, c, start, fiber.StatusOK, fiber.Map{"csrf_token": token})
}
