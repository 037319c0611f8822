package routes

import (
	"github.com/ahmetcoskunkizilkaya/auth-service/internal/config"
	"github.com/ahmetcoskunkizilkaya/auth-service/internal/handlers"
	"github.com/ahmetcoskunkizilkaya/auth-service/internal/middleware"
	"github.com/ahmetcoskunkizilkaya/auth-service/internal/services"
	"github.com/gofiber/fiber/v2"
)

// Setup mounts the /api routes. limiterStorage may be nil for in-memory
// rate limit counters.
func Setup(
	app *fiber.App,
	cfg *config.Config,
	authService *services.AuthService,
	authHandler *handlers.AuthHandler,
	healthHandler *handlers.HealthHandler,
	limiterStorage fiber.Storage,
) {
	api := app.Group("/api")

	// General API rate limiter per IP
	api.Use(middleware.RateLimit("api", cfg.RateLimitMax, limiterStorage))

	api.Get("/health", healthHandler.Check)

	// Credential endpoints get a stricter limit against password guessing.
	authLimit := middleware.RateLimit("auth", cfg.AuthRateLimitMax, limiterStorage)
	api.Post("/register", authLimit, authHandler.Register)
	api.Post("/login", authLimit, authHandler.Login)

	// Cookie-authenticated session endpoints
	api.Post("/refresh", authHandler.Refresh)
	api.Post("/logout", authHandler.Logout)

	// Bearer-authenticated
	api.Get("/users/me", middleware.RequireUser(cfg, authService), authHandler.Me)
}
