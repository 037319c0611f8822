package middleware

import (
	"errors"

	"github.com/ahmetcoskunkizilkaya/auth-service/internal/config"
	"github.com/ahmetcoskunkizilkaya/auth-service/internal/dto"
	"github.com/ahmetcoskunkizilkaya/auth-service/internal/services"
	jwtware "github.com/gofiber/contrib/jwt"
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
)

const currentUserKey = "current_user"

// RequireUser rejects requests without a valid bearer access token whose
// subject is still a registered user. The resolved user is stored for
// CurrentUser.
func RequireUser(cfg *config.Config, authService *services.AuthService) fiber.Handler {
	return jwtware.New(jwtware.Config{
		SigningKey: jwtware.SigningKey{
			JWTAlg: cfg.JWTAlgorithm,
			Key:    []byte(cfg.JWTSecret),
		},
		SuccessHandler: func(c *fiber.Ctx) error {
			token, ok := c.Locals("user").(*jwt.Token)
			if !ok {
				return unauthorized(c)
			}
			user, err := authService.WhoAmI(c.UserContext(), token.Raw)
			if err != nil {
				if errors.Is(err, services.ErrUnauthorized) {
					return unauthorized(c)
				}
				return err
			}
			c.Locals(currentUserKey, user)
			return c.Next()
		},
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			return unauthorized(c)
		},
	})
}

// CurrentUser returns the user resolved by RequireUser.
func CurrentUser(c *fiber.Ctx) (*dto.UserResponse, bool) {
	user, ok := c.Locals(currentUserKey).(*dto.UserResponse)
	return user, ok
}

func unauthorized(c *fiber.Ctx) error {
	c.Set(fiber.HeaderWWWAuthenticate, "Bearer")
	return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{
		Error:   true,
		Message: "Could not validate credentials",
	})
}
