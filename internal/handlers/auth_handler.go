package handlers

import (
	"errors"
	"log/slog"
	"time"

	"github.com/ahmetcoskunkizilkaya/auth-service/internal/config"
	"github.com/ahmetcoskunkizilkaya/auth-service/internal/dto"
	"github.com/ahmetcoskunkizilkaya/auth-service/internal/middleware"
	"github.com/ahmetcoskunkizilkaya/auth-service/internal/services"
	"github.com/gofiber/fiber/v2"
)

const (
	RefreshCookieName = "refresh_token"
	refreshCookiePath = "/api"
)

type AuthHandler struct {
	authService  *services.AuthService
	cookieMaxAge int
	cookieSecure bool
}

func NewAuthHandler(authService *services.AuthService, cfg *config.Config) *AuthHandler {
	return &AuthHandler{
		authService:  authService,
		cookieMaxAge: int(authService.RefreshTTL() / time.Second),
		cookieSecure: cfg.CookieSecure,
	}
}

func (h *AuthHandler) Register(c *fiber.Ctx) error {
	var req dto.RegisterRequest
	if err := c.BodyParser(&req); err != nil {
		return errorJSON(c, fiber.StatusUnprocessableEntity, "Invalid request body")
	}
	if err := req.Validate(); err != nil {
		return errorJSON(c, fiber.StatusUnprocessableEntity, err.Error())
	}

	user, err := h.authService.Register(c.UserContext(), &req)
	if err != nil {
		if errors.Is(err, services.ErrEmailTaken) {
			return errorJSON(c, fiber.StatusBadRequest, "Email already registered")
		}
		return err
	}

	return c.JSON(user)
}

func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req dto.LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return errorJSON(c, fiber.StatusUnprocessableEntity, "Invalid request body")
	}
	if err := req.Validate(); err != nil {
		return errorJSON(c, fiber.StatusUnprocessableEntity, err.Error())
	}

	session, err := h.authService.Login(c.UserContext(), &req)
	if err != nil {
		if errors.Is(err, services.ErrInvalidCredentials) {
			return errorJSON(c, fiber.StatusBadRequest, "Incorrect email or password")
		}
		return err
	}

	h.setRefreshCookie(c, session.RefreshToken)
	return c.JSON(dto.NewTokenResponse(session.AccessToken))
}

func (h *AuthHandler) Refresh(c *fiber.Ctx) error {
	accessToken, err := h.authService.Refresh(c.UserContext(), c.Cookies(RefreshCookieName))
	if err != nil {
		if errors.Is(err, services.ErrUnauthorized) {
			h.clearRefreshCookie(c)
			return errorJSON(c, fiber.StatusUnauthorized, "Invalid or expired refresh token")
		}
		return err
	}

	return c.JSON(dto.NewTokenResponse(accessToken))
}

// Logout always succeeds and always clears the cookie.
func (h *AuthHandler) Logout(c *fiber.Ctx) error {
	h.authService.Logout(c.UserContext(), c.Cookies(RefreshCookieName))
	h.clearRefreshCookie(c)
	return c.JSON(dto.MessageResponse{Message: "Logged out successfully"})
}

func (h *AuthHandler) Me(c *fiber.Ctx) error {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		slog.Error("current user missing from context", "path", c.Path())
		return fiber.ErrUnauthorized
	}
	return c.JSON(user)
}

func (h *AuthHandler) setRefreshCookie(c *fiber.Ctx, token string) {
	c.Cookie(&fiber.Cookie{
		Name:     RefreshCookieName,
		Value:    token,
		Path:     refreshCookiePath,
		MaxAge:   h.cookieMaxAge,
		Secure:   h.cookieSecure,
		HTTPOnly: true,
		SameSite: fiber.CookieSameSiteLaxMode,
	})
}

func (h *AuthHandler) clearRefreshCookie(c *fiber.Ctx) {
	c.Cookie(&fiber.Cookie{
		Name:     RefreshCookieName,
		Value:    "",
		Path:     refreshCookiePath,
		Expires:  time.Unix(0, 0),
		Secure:   h.cookieSecure,
		HTTPOnly: true,
		SameSite: fiber.CookieSameSiteLaxMode,
	})
}

func errorJSON(c *fiber.Ctx, status int, message string) error {
	return c.Status(status).JSON(dto.ErrorResponse{Error: true, Message: message})
}
