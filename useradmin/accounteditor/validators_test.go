package accounteditor

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCleanUsername(t *testing.T) {
	assert.Equal(t, "", CleanUsername(""))
	// Only the leading capital is lowered; interior case is kept.
	assert.Equal(t, "johnDoe", CleanUsername("John Doe"))
	assert.Equal(t, "jdoe", CleanUsername("jdoe"))
	assert.Equal(t, "jdoe", CleanUsername("Jdoe"))
}

func TestValidateUsername(t *testing.T) {
	nobody := func(string) bool { return false }

	// The raw form is rejected, its normalized form accepted.
	assert.Error(t, ValidateUsername("John Doe", nobody))
	assert.NoError(t, ValidateUsername(CleanUsername("John Doe"), nobody))

	assert.ErrorIs(t, ValidateUsername("", nobody), ErrUsernameEmpty)
	assert.ErrorIs(t, ValidateUsername("9lives", nobody), ErrUsernameFirstChar)
	assert.ErrorIs(t, ValidateUsername("john!", nobody), ErrUsernameCharset)
	assert.ErrorIs(t, ValidateUsername(strings.Repeat("a", MaxUsernameLen+1), nobody), ErrUsernameTooLong)
	assert.NoError(t, ValidateUsername(strings.Repeat("a", MaxUsernameLen), nobody))
	assert.NoError(t, ValidateUsername("john_doe.v2-x", nobody))

	taken := func(name string) bool { return name == "jdoe" }
	assert.ErrorIs(t, ValidateUsername("jdoe", taken), ErrUsernameTaken)
}

func TestValidateUsernameReportsAllViolations(t *testing.T) {
	err := ValidateUsername("Ünèx"+strings.Repeat("x", MaxUsernameLen), nil)

	assert.ErrorIs(t, err, ErrUsernameFirstChar)
	assert.ErrorIs(t, err, ErrUsernameCharset)
	assert.ErrorIs(t, err, ErrUsernameTooLong)
}

func TestValidateName(t *testing.T) {
	assert.NoError(t, ValidateName(""))
	assert.NoError(t, ValidateName("John Doe"))
	assert.ErrorIs(t, ValidateName("   "), ErrNameOnlyWhitespace)
}

func TestCleanEmail(t *testing.T) {
	assert.Equal(t, "", CleanEmail(""))
	assert.Equal(t, "a@b.com", CleanEmail("A@B.Com"))
	assert.Equal(t, "jdoe@example.com", CleanEmail(" jdoe @ example.com "))
}

func TestValidateEmail(t *testing.T) {
	assert.NoError(t, ValidateEmail("a@b.com"))
	assert.NoError(t, ValidateEmail("first.last+tag@sub.example.org"))

	assert.True(t, errors.Is(ValidateEmail("not-an-email"), ErrEmailShape))
	assert.True(t, errors.Is(ValidateEmail("a@b"), ErrEmailShape))
}
