package common

import (
	"os"

	"github.com/gofiber/fiber/v2"
)

func GetEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}

	return defaultValue
}

// ErrorResponse is the body for failures raised outside a handler, such as
// unknown routes and errors reaching the app error handler.
func ErrorResponse(c *fiber.Ctx, statusCode int, message string) error {
	return c.Status(statusCode).JSON(fiber.Map{
		"status":  "error",
		"error":   message,
		"message": message,
	})
}
