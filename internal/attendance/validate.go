package attendance

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"

	"qrattend/internal/apperr"
)

const (
	// DateLayout is the calendar day format used in records and URLs.
	DateLayout    = "2006-01-02"
	maxNameLength = 100
)

var validate = validator.New()

// NormalizeName trims name and checks it is non-empty and at most 100 characters.
func NormalizeName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", apperr.Validation("name is required")
	}
	if utf8.RuneCountInString(name) > maxNameLength {
		return "", apperr.Validation("name must be at most 100 characters")
	}
	return name, nil
}

// ValidDate reports whether date is a real calendar day written as YYYY-MM-DD.
func ValidDate(date string) bool {
	return len(date) == len(DateLayout) && validate.Var(date, "required,datetime="+DateLayout) == nil
}

// CheckDate returns a validation error for malformed dates.
func CheckDate(date string) error {
	if !ValidDate(date) {
		return apperr.Validation("invalid date format, expected YYYY-MM-DD")
	}
	return nil
}

// Today is the UTC calendar day containing now.
func Today(now time.Time) string {
	return now.UTC().Format(DateLayout)
}
