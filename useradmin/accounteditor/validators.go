package accounteditor

import (
	"errors"
	"regexp"
	"strings"
	"unicode"

	multierror "github.com/hashicorp/go-multierror"
)

// MaxUsernameLen is the platform's maximum login-name length
// (UT_NAMESIZE minus the terminator).
const MaxUsernameLen = 31

var emailPattern = regexp.MustCompile(`^[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,4}$`)

var (
	ErrNameOnlyWhitespace = errors.New("the name cannot consist only of spaces")
	ErrUsernameEmpty      = errors.New("the username cannot be empty")
	ErrUsernameTaken      = errors.New("the username is already used")
	ErrUsernameFirstChar  = errors.New("the username must start with a lowercase letter")
	ErrUsernameCharset    = errors.New("the username can contain only letters, numbers, dash, underscore and dot")
	ErrUsernameTooLong    = errors.New("the username is too long")
	ErrEmailShape         = errors.New("the email address is incorrect")
)

// CleanName normalizes a display name. Display names are free-form, so
// this is the identity today; it exists so the symmetry with the other
// fields holds.
func CleanName(name string) string {
	return name
}

// ValidateName rejects input that is non-empty but collapses to
// nothing once trimmed. Callers are expected to reset the raw field on
// rejection.
func ValidateName(name string) error {
	if name != "" && strings.TrimSpace(name) == "" {
		return ErrNameOnlyWhitespace
	}
	return nil
}

// CleanUsername lower-cases a leading capital and strips interior
// spaces.
func CleanUsername(username string) string {
	if username == "" {
		return ""
	}
	runes := []rune(username)
	if unicode.IsUpper(runes[0]) {
		runes[0] = unicode.ToLower(runes[0])
	}
	return strings.ReplaceAll(string(runes), " ", "")
}

// ValidateUsername checks a cleaned login name. The taken func answers
// whether the name already exists on the system. All applicable shape
// violations are reported together.
func ValidateUsername(username string, taken func(string) bool) error {
	if username == "" {
		return ErrUsernameEmpty
	}
	if taken != nil && taken(username) {
		return ErrUsernameTaken
	}

	var errs *multierror.Error

	if username[0] < 'a' || username[0] > 'z' {
		errs = multierror.Append(errs, ErrUsernameFirstChar)
	}
	for _, c := range []byte(username) {
		valid := (c >= 'a' && c <= 'z') ||
			(c >= 'A' && c <= 'Z') ||
			(c >= '0' && c <= '9') ||
			c == '_' || c == '.' || c == '-'
		if !valid {
			errs = multierror.Append(errs, ErrUsernameCharset)
			break
		}
	}
	if len(username) > MaxUsernameLen {
		errs = multierror.Append(errs, ErrUsernameTooLong)
	}

	return errs.ErrorOrNil()
}

// CleanEmail lower-cases and strips interior spaces.
func CleanEmail(email string) string {
	if email == "" {
		return ""
	}
	return strings.ReplaceAll(strings.ToLower(email), " ", "")
}

// ValidateEmail checks the address shape. By contract a mismatch is a
// diagnostic only: the caller still stages the value.
func ValidateEmail(email string) error {
	if !emailPattern.MatchString(email) {
		return ErrEmailShape
	}
	return nil
}
