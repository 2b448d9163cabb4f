package user

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// ErrInvalidValue is matched by every field validation error.
var ErrInvalidValue = errors.New("invalid value")

// NameError reports an empty name or one holding a digit or punctuation.
type NameError struct {
	Message string
}

func (e *NameError) Error() string { return e.Message }

// Unwrap lets errors.Is match ErrInvalidValue.
func (e *NameError) Unwrap() error { return ErrInvalidValue }

// PhoneError reports a phone number that is too short or not numeric.
type PhoneError struct {
	Message string
}

func (e *PhoneError) Error() string { return e.Message }

// Unwrap lets errors.Is match ErrInvalidValue.
func (e *PhoneError) Unwrap() error { return ErrInvalidValue }

const (
	minPhoneDigits = 10
	// asciiPunctuation is the set of printable ASCII symbols.
	asciiPunctuation = "!\"#$%&'()*+,-./:;<=>?@[\\]^_`{|}~"
	forbiddenInNames = "0123456789" + asciiPunctuation
)

// ValidateNames checks that both names are present, valid UTF-8 and free of
// digits and ASCII punctuation. Other Unicode letters are accepted.
func ValidateNames(firstName, lastName string) error {
	if firstName == "" || lastName == "" {
		return &NameError{Message: fmt.Sprintf("Invalid value : %s %s", firstName, lastName)}
	}
	if !utf8.ValidString(firstName) || !utf8.ValidString(lastName) {
		return &NameError{Message: fmt.Sprintf("Invalid value : %q %q", firstName, lastName)}
	}
	if strings.ContainsAny(firstName+lastName, forbiddenInNames) {
		full := User{FirstName: firstName, LastName: lastName}.FullName()
		return &NameError{Message: fmt.Sprintf("Name invalid : %s", full)}
	}
	return nil
}

// ValidatePhone strips '+', parentheses and whitespace, then requires at
// least ten characters, all of them decimal digits.
func ValidatePhone(phoneNumber string) error {
	if !utf8.ValidString(phoneNumber) {
		return &PhoneError{Message: fmt.Sprintf("Invalid phone number : %q", phoneNumber)}
	}
	digits := NormalizePhone(phoneNumber)
	if len(digits) < minPhoneDigits || !isDigits(digits) {
		return &PhoneError{Message: fmt.Sprintf("Invalid phone number : %s", phoneNumber)}
	}
	return nil
}

// NormalizePhone removes '+', parentheses and Unicode whitespace. Hyphens
// and dots are kept, so "01-23-45-67-89" is rejected by ValidatePhone.
func NormalizePhone(phoneNumber string) string {
	return strings.Map(func(r rune) rune {
		if r == '+' || r == '(' || r == ')' || unicode.IsSpace(r) {
			return -1
		}
		return r
	}, phoneNumber)
}

// Validate checks names first, then the phone number, and returns the first
// failure.
func Validate(u User) error {
	if err := ValidateNames(u.FirstName, u.LastName); err != nil {
		return err
	}
	return ValidatePhone(u.PhoneNumber)
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
