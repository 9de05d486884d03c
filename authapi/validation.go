package authapi

import (
	"fmt"
	"net/mail"
	"strings"

	"github.com/jrsteele09/go-inventory-session/users"
)

const (
	minUsernameLen = 3
	maxUsernameLen = 50
)

// Validator checks request payloads before they are sent, so obviously
// malformed requests fail as validation errors without a network call.
type Validator struct{}

// NewValidator creates a new Validator instance
func NewValidator() *Validator {
	return &Validator{}
}

// ValidateCredentials requires an email and a password.
func (v *Validator) ValidateCredentials(c Credentials) error {
	if strings.TrimSpace(c.Email) == "" {
		return validationError("email is required")
	}
	if c.Password == "" {
		return validationError("password is required")
	}
	return nil
}

// ValidateRegistration checks username length, email format, password
// strength and confirmation.
func (v *Validator) ValidateRegistration(r Registration) error {
	if err := v.ValidateUsername(r.Username); err != nil {
		return err
	}
	if err := v.ValidateEmail(r.Email); err != nil {
		return err
	}
	if err := users.ValidatePasswordStrength(r.Password); err != nil {
		return validationError(err.Error())
	}
	if r.ConfirmPassword != r.Password {
		return validationError("passwords do not match")
	}
	return nil
}

// ValidateProfileUpdate rejects empty updates and checks any supplied fields.
func (v *Validator) ValidateProfileUpdate(p ProfileUpdate) error {
	if p.IsEmpty() {
		return validationError("profile update has no fields")
	}
	if p.Username != nil {
		if err := v.ValidateUsername(*p.Username); err != nil {
			return err
		}
	}
	if p.Email != nil {
		if err := v.ValidateEmail(*p.Email); err != nil {
			return err
		}
	}
	return nil
}

// ValidatePasswordChange requires both passwords and a strong, different new one.
func (v *Validator) ValidatePasswordChange(p PasswordChange) error {
	if p.CurrentPassword == "" {
		return validationError("current password is required")
	}
	if p.NewPassword == "" {
		return validationError("new password is required")
	}
	if p.NewPassword == p.CurrentPassword {
		return validationError("new password must differ from the current password")
	}
	if err := users.ValidatePasswordStrength(p.NewPassword); err != nil {
		return validationError(err.Error())
	}
	return nil
}

// ValidateUsername checks the username length bounds.
func (v *Validator) ValidateUsername(username string) error {
	n := len(strings.TrimSpace(username))
	if n < minUsernameLen || n > maxUsernameLen {
		return validationError(fmt.Sprintf("username must be between %d and %d characters", minUsernameLen, maxUsernameLen))
	}
	return nil
}

// ValidateEmail checks that email is a bare address.
func (v *Validator) ValidateEmail(email string) error {
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return validationError("invalid email format")
	}
	return nil
}
