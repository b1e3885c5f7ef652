package app

import (
	"fmt"
	"strings"

	"rentpulse/internal/config"
	"rentpulse/internal/delivery/http/middleware"
	"rentpulse/internal/delivery/http/routes"
	v1 "rentpulse/internal/delivery/http/routes/v1"
	"rentpulse/internal/pkg/response"

	"github.com/gofiber/fiber/v3"
)

type App struct {
	Fiber     *fiber.App
	Container *Container
}

func New(c *Container) *App {
	f := fiber.New(fiber.Config{AppName: c.Config.App.AppName})

	registerGlobalMiddleware(f, c)
	registerRoutes(f, c)

	return &App{Fiber: f, Container: c}
}

func Bootstrap(cfg config.Config) (*App, func() error, error) {
	c, err := NewContainer(cfg)
	if err != nil {
		return nil, nil, err
	}
	return New(c), c.Close, nil
}

func registerGlobalMiddleware(app *fiber.App, c *Container) {
	if app == nil {
		return
	}

	errMw := middleware.NewErrorMiddleware()
	app.Use(errMw.Middleware())

	accessMw := middleware.NewAccessLogMiddleware(c.Logger)
	app.Use(accessMw.Middleware())
}

func registerRoutes(app *fiber.App, c *Container) {
	if app == nil {
		return
	}

	app.Get("/health", func(fc fiber.Ctx) error {
		return response.Success(fc, fiber.StatusOK, response.MessageOK, nil)
	})

	routes.Register(app, v1.Deps{
		DB:               c.DB,
		Cache:            c.Cache,
		Sources:          c.Sources,
		Listings:         c.Listings,
		Snapshots:        c.Snapshots,
		Queue:            c.Queue,
		Reviews:          c.Reviews,
		Index:            c.Index,
		Runs:             c.Runs,
		Status:           c.Status,
		Gate:             c.Gate,
		DiscoveryLimiter: c.DiscoveryLimiter,
		Ingestor:         c.Ingestor,
		Review:           c.Review,
		Rewrite:          c.Rewrite,
		Geotitle:         c.Geotitle,
		Deactivate:       c.Deactivate,
		Builder:          c.Builder,
	})
}

func ListenAddr(port string) (string, error) {
	p := strings.TrimSpace(port)
	if p == "" {
		return "", fmt.Errorf("empty HTTP port")
	}
	if strings.HasPrefix(p, ":") {
		return p, nil
	}
	return ":" + p, nil
}
