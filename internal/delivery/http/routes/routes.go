package routes

import (
	v1 "rentpulse/internal/delivery/http/routes/v1"

	"github.com/gofiber/fiber/v3"
)

func Register(app *fiber.App, d v1.Deps) {
	if app == nil {
		return
	}

	api := app.Group("/api")
	RegisterV1(api.Group("/v1"), d)
}
