// Package server assembles the fiber application: middleware stack, error
// handler and routes.
package server

import (
	"errors"
	"log/slog"

	"github.com/ahmetcoskunkizilkaya/auth-service/internal/config"
	"github.com/ahmetcoskunkizilkaya/auth-service/internal/dto"
	"github.com/ahmetcoskunkizilkaya/auth-service/internal/handlers"
	"github.com/ahmetcoskunkizilkaya/auth-service/internal/middleware"
	"github.com/ahmetcoskunkizilkaya/auth-service/internal/routes"
	"github.com/ahmetcoskunkizilkaya/auth-service/internal/services"
	sentryfiber "github.com/getsentry/sentry-go/fiber"
	"github.com/gofiber/fiber/v2"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"gorm.io/gorm"
)

type Options struct {
	// LimiterStorage shares rate limit counters between instances; nil
	// keeps them in memory.
	LimiterStorage fiber.Storage
	// Sentry enables the sentry middleware; sentry.Init must have run.
	Sentry bool
	// AccessLog enables the per-request log line.
	AccessLog bool
}

// New builds the application and the services behind it. It fails when the
// signing configuration is unusable.
func New(cfg *config.Config, db *gorm.DB, opts Options) (*fiber.App, *services.AuthService, error) {
	issuer, err := services.NewTokenIssuer(cfg)
	if err != nil {
		return nil, nil, err
	}
	validator, err := services.NewTokenValidator(cfg)
	if err != nil {
		return nil, nil, err
	}
	authService := services.NewAuthService(db, cfg, issuer, validator)

	app := fiber.New(fiber.Config{
		BodyLimit:    64 * 1024,
		ErrorHandler: errorHandler,
	})

	if opts.Sentry {
		app.Use(sentryfiber.New(sentryfiber.Options{
			Repanic:         true,
			WaitForDelivery: false,
		}))
	}
	app.Use(recover.New())
	app.Use(requestid.New())
	if opts.AccessLog {
		app.Use(fiberlogger.New(fiberlogger.Config{
			Format: "${time} | ${status} | ${latency} | ${ip} | ${method} | ${path}\n",
		}))
	}
	app.Use(middleware.CORS(cfg))
	app.Use(middleware.SecurityHeaders())

	routes.Setup(
		app,
		cfg,
		authService,
		handlers.NewAuthHandler(authService, cfg),
		handlers.NewHealthHandler(db),
		opts.LimiterStorage,
	)

	return app, authService, nil
}

func errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal server error"
	var e *fiber.Error
	if errors.As(err, &e) {
		code = e.Code
		message = e.Message
	}

	// Only expose error details for client errors (4xx), not server errors (5xx)
	if code >= 500 {
		slog.Error("unhandled server error",
			"method", c.Method(),
			"path", c.Path(),
			"request_id", c.GetRespHeader(fiber.HeaderXRequestID),
			"error", err.Error(),
		)
		message = "Internal server error"
	}

	return c.Status(code).JSON(dto.ErrorResponse{
		Error:   true,
		Message: message,
	})
}
