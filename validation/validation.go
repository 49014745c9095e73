// Package validation sanitizes and validates user input before it reaches
// the network. Rules are deliberately strict: a value rejected here is never
// retried or "fixed up" downstream.
package validation

import (
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

// FieldError names the offending field alongside a user-facing message.
type FieldError struct {
	Field   string
	Message string
}

func (e *FieldError) Error() string {
	return e.Field + ": " + e.Message
}

var validate = validator.New()

var (
	strippedChars = regexp.MustCompile(`[<>'"]`)
	jsProtocol    = regexp.MustCompile(`(?i)javascript:`)
	eventHandler  = regexp.MustCompile(`(?i)on\w+=`)

	upperClass   = regexp.MustCompile(`[A-Z]`)
	lowerClass   = regexp.MustCompile(`[a-z]`)
	digitClass   = regexp.MustCompile(`\d`)
	specialClass = regexp.MustCompile(`[!@#$%^&*(),.?":{}|<>]`)

	commonPasswords = regexp.MustCompile(`(?i)123456|password|qwerty`)
	onlyLetters     = regexp.MustCompile(`^[a-zA-Z]+$`)
	onlyDigits      = regexp.MustCompile(`^\d+$`)

	nameChars = regexp.MustCompile(`^[a-zA-Z\s\-']+$`)
)

const (
	passwordMinLength = 12
	emailMaxLength    = 254
	nameMinLength     = 2
	nameMaxLength     = 50
)

// SanitizeInput strips markup-significant characters, the javascript:
// protocol, and inline event handler fragments, then trims whitespace.
func SanitizeInput(input string) string {
	s := strings.TrimSpace(input)
	s = strippedChars.ReplaceAllString(s, "")
	s = jsProtocol.ReplaceAllString(s, "")
	s = eventHandler.ReplaceAllString(s, "")
	return s
}

// Email sanitizes, validates, and lowercases an email address.
func Email(raw string) (string, error) {
	sanitized := SanitizeInput(raw)
	if sanitized == "" {
		return "", &FieldError{Field: "email", Message: "Email is required"}
	}
	if len(sanitized) > emailMaxLength {
		return "", &FieldError{Field: "email", Message: "Email is too long"}
	}
	if err := validate.Var(sanitized, "email"); err != nil {
		return "", &FieldError{Field: "email", Message: "Invalid email format"}
	}
	return strings.ToLower(sanitized), nil
}

// Password enforces the strong-password policy: 12+ characters drawn from
// upper, lower, digit, and special classes, with common weak shapes
// rejected. The value is returned untouched, never sanitized.
func Password(password string) (string, error) {
	fail := func(message string) (string, error) {
		return "", &FieldError{Field: "password", Message: message}
	}
	if password == "" {
		return fail("Password is required")
	}
	if len(password) < passwordMinLength {
		return fail("Password must be at least 12 characters long")
	}
	if !upperClass.MatchString(password) {
		return fail("Password must contain at least one uppercase letter")
	}
	if !lowerClass.MatchString(password) {
		return fail("Password must contain at least one lowercase letter")
	}
	if !digitClass.MatchString(password) {
		return fail("Password must contain at least one number")
	}
	if !specialClass.MatchString(password) {
		return fail("Password must contain at least one special character")
	}
	if hasRepeatedRun(password, 3) ||
		commonPasswords.MatchString(password) ||
		onlyLetters.MatchString(password) ||
		onlyDigits.MatchString(password) {
		return fail("Password is too weak. Please choose a stronger password.")
	}
	return password, nil
}

// hasRepeatedRun reports whether s contains n identical consecutive runes.
func hasRepeatedRun(s string, n int) bool {
	run := 0
	var prev rune
	for i, r := range s {
		if i > 0 && r == prev {
			run++
		} else {
			run = 1
		}
		if run >= n {
			return true
		}
		prev = r
	}
	return false
}

// Name sanitizes and validates a display name: 2 to 50 characters of
// letters, spaces, and hyphens.
func Name(raw string) (string, error) {
	sanitized := SanitizeInput(raw)
	if sanitized == "" {
		return "", &FieldError{Field: "name", Message: "Name is required"}
	}
	if len(sanitized) < nameMinLength {
		return "", &FieldError{Field: "name", Message: "Name must be at least 2 characters long"}
	}
	if len(sanitized) > nameMaxLength {
		return "", &FieldError{Field: "name", Message: "Name is too long"}
	}
	if !nameChars.MatchString(sanitized) {
		return "", &FieldError{Field: "name", Message: "Name contains invalid characters"}
	}
	return sanitized, nil
}

// PasswordConfirmation checks the two entries match.
func PasswordConfirmation(password, confirm string) error {
	if password != confirm {
		return &FieldError{Field: "confirmPassword", Message: "Passwords do not match"}
	}
	return nil
}

// PasswordStrength scores a password 0 to 4 for meter displays. It is
// advisory only; [Password] is the gate.
func PasswordStrength(password string) int {
	score := 0
	if len(password) >= 8 {
		score++
	}
	if len(password) >= 12 {
		score++
	}
	if upperClass.MatchString(password) && lowerClass.MatchString(password) {
		score++
	}
	if digitClass.MatchString(password) {
		score++
	}
	if specialClass.MatchString(password) {
		score++
	}
	if score > 4 {
		score = 4
	}
	return score
}

// StrengthText maps a strength score to its label.
func StrengthText(score int) string {
	texts := []string{"Very Weak", "Weak", "Fair", "Good", "Strong"}
	if score < 0 || score >= len(texts) {
		return texts[0]
	}
	return texts[score]
}
