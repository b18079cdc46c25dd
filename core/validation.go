package core

import (
	"fmt"
	"net/mail"
	"regexp"

	"github.com/caasmo/identity/config"
)

// phoneRegex accepts E.164 formatted numbers: a plus sign followed by up to
// fifteen digits, no separators.
var phoneRegex = regexp.MustCompile(`^\+[1-9][0-9]{6,14}$`)

func ValidateEmail(email string) error {
	_, err := mail.ParseAddress(email)
	if err != nil {
		return fmt.Errorf("invalid email format: %w", err)
	}
	return nil
}

func ValidatePhone(phone string) error {
	if !phoneRegex.MatchString(phone) {
		return fmt.Errorf("invalid phone format: %q is not E.164", phone)
	}
	return nil
}

// ValidateIdentity checks the identity against the format required by the
// configured authentication method.
func ValidateIdentity(authMethod, identity string) error {
	if authMethod == config.AuthMethodPhone {
		return ValidatePhone(identity)
	}
	return ValidateEmail(identity)
}

// validatePasswordPolicy checks the configured minimum length. Returns
// ErrPolicyViolation so callers can classify without inspecting the message.
func validatePasswordPolicy(password string, minLength int) error {
	if len(password) < minLength {
		return fmt.Errorf("%w: password shorter than %d characters", ErrPolicyViolation, minLength)
	}
	return nil
}
