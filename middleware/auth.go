package middleware

import (
	"errors"

	"github.com/fazamuttaqien/permitting/internal/domain"
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
)

const (
	AuthCookie  = "private"
	callerLocal = "caller"
)

// NewJWTAuthMiddleware verifies the auth cookie and resolves the token roles
// into a domain.Caller through the configured role mapping.
func NewJWTAuthMiddleware(secret string, roles domain.RoleCapabilities) fiber.Handler {
	return func(c *fiber.Ctx) error {
		tokenStr := c.Cookies(AuthCookie)
		if tokenStr == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Missing auth token cookie"})
		}

		claims := &domain.JwtCustomClaims{}
		token, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (any, error) {
			return []byte(secret), nil
		}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))

		if err != nil || !token.Valid {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid or expired JWT"})
		}

		c.Locals(callerLocal, roles.Caller(claims.UserID, claims.Roles))
		return c.Next()
	}
}

// RequireCapability rejects callers holding none of the given capabilities.
// Services repeat the check; this only short-circuits obvious misses.
func RequireCapability(capabilities ...domain.Capability) fiber.Handler {
	return func(c *fiber.Ctx) error {
		caller, err := GetCallerFromLocals(c)
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Could not parse user claims"})
		}

		if caller.Capabilities.HasAny(capabilities...) {
			return c.Next()
		}

		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Access denied: insufficient permissions"})
	}
}

func GetCallerFromLocals(c *fiber.Ctx) (domain.Caller, error) {
	caller, ok := c.Locals(callerLocal).(domain.Caller)
	if !ok {
		return domain.Caller{}, errors.New("caller not found in context")
	}
	return caller, nil
}
