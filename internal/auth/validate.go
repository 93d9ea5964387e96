package auth

import (
	"strings"

	"github.com/ukydev/fleet-console/internal/api"
	"github.com/ukydev/fleet-console/internal/models"
)

// ValidatePassword validates password strength
func ValidatePassword(password string) error {
	if len(password) < 8 {
		return api.Validation("password must be at least 8 characters long")
	}
	return nil
}

// ValidateEmail validates email format
func ValidateEmail(email string) error {
	at := strings.LastIndex(email, "@")
	if at < 1 || !strings.Contains(email[at:], ".") || strings.ContainsAny(email, " \t") {
		return api.Validation("invalid email format")
	}
	return nil
}

// ValidateUsername validates username format
func ValidateUsername(username string) error {
	if len(username) < 3 {
		return api.Validation("username must be at least 3 characters long")
	}
	if len(username) > 50 {
		return api.Validation("username must be less than 50 characters")
	}
	return nil
}

// ValidateCredentials rejects a sign-in attempt that cannot succeed.
func ValidateCredentials(username, password string) error {
	if strings.TrimSpace(username) == "" || password == "" {
		return api.Validation("username and password are required")
	}
	return nil
}

// ValidateRegistration checks a registration before it is sent.
func ValidateRegistration(req models.RegisterRequest) error {
	if err := ValidateUsername(req.Username); err != nil {
		return err
	}
	if err := ValidateEmail(req.Email); err != nil {
		return err
	}
	if err := ValidatePassword(req.Password); err != nil {
		return err
	}
	if strings.TrimSpace(req.Name) == "" {
		return api.Validation("name is required")
	}
	return nil
}
