package dto

import (
	"errors"
	"net/mail"
	"strings"
)

var (
	ErrInvalidEmail  = errors.New("value is not a valid email address")
	ErrEmptyPassword = errors.New("password must not be empty")
)

type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (r *RegisterRequest) Validate() error {
	return validateCredentials(r.Email, r.Password)
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (r *LoginRequest) Validate() error {
	return validateCredentials(r.Email, r.Password)
}

type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

// NewTokenResponse wraps an access token in the bearer response body.
func NewTokenResponse(accessToken string) TokenResponse {
	return TokenResponse{AccessToken: accessToken, TokenType: "bearer"}
}

type UserResponse struct {
	ID    uint   `json:"id"`
	Email string `json:"email"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

type ErrorResponse struct {
	Error   bool   `json:"error"`
	Message string `json:"message"`
}

type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	DB        string `json:"db"`
}

func validateCredentials(email, password string) error {
	if !IsEmail(email) {
		return ErrInvalidEmail
	}
	if password == "" {
		return ErrEmptyPassword
	}
	return nil
}

// IsEmail accepts a bare addr-spec with a dotted domain. Display names,
// angle brackets and surrounding whitespace are rejected.
func IsEmail(s string) bool {
	if s == "" || strings.TrimSpace(s) != s {
		return false
	}
	addr, err := mail.ParseAddress(s)
	if err != nil || addr.Address != s || addr.Name != "" {
		return false
	}
	at := strings.LastIndex(s, "@")
	domain := s[at+1:]
	return strings.Contains(domain, ".") && !strings.HasPrefix(domain, ".") && !strings.HasSuffix(domain, ".")
}
