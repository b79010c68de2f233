package httputil

import (
	"net/http"

	"github.com/gofiber/fiber/v2"
)

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Error string `json:"error"`
}

// WriteError writes {"error": msg}, defaulting msg to the status text.
func WriteError(c *fiber.Ctx, status int, msg string) error {
	if msg == "" {
		msg = http.StatusText(status)
		if msg == "" {
			msg = "unknown error"
		}
	}
	return c.Status(status).JSON(ErrorBody{Error: msg})
}
