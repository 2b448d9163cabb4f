package user

import (
	"fmt"
	"log/slog"
	"strings"
)

// Record keys used in the document store.
const (
	FieldFirstName   = "first_name"
	FieldLastName    = "last_name"
	FieldPhoneNumber = "phone_number"
	FieldAddress     = "address"
)

// User is an address book entry. A User may hold invalid data until it is
// validated; nothing is checked at construction.
type User struct {
	FirstName   string
	LastName    string
	PhoneNumber string
	Address     string
}

// FullName returns the first name followed by the upper-cased last name.
func (u User) FullName() string {
	return fmt.Sprintf("%s %s", u.FirstName, strings.ToUpper(u.LastName))
}

// String renders the user as full name, phone number and address lines.
func (u User) String() string {
	return fmt.Sprintf("%s\n%s\n%s", u.FullName(), u.PhoneNumber, u.Address)
}

// LogValue implements slog.LogValuer.
func (u User) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String(FieldFirstName, u.FirstName),
		slog.String(FieldLastName, u.LastName),
		slog.String(FieldPhoneNumber, u.PhoneNumber),
		slog.String(FieldAddress, FormatAddress(u.Address)),
	)
}

// Validate runs the name and phone checks.
func (u User) Validate() error {
	return Validate(u)
}

// Record builds the mapping written to the store.
func (u User) Record() map[string]string {
	return map[string]string{
		FieldFirstName:   u.FirstName,
		FieldLastName:    u.LastName,
		FieldPhoneNumber: u.PhoneNumber,
		FieldAddress:     FormatAddress(u.Address),
	}
}

// FromRecord rebuilds a User from a stored mapping. Missing keys stay empty.
func FromRecord(fields map[string]string) User {
	return User{
		FirstName:   fields[FieldFirstName],
		LastName:    fields[FieldLastName],
		PhoneNumber: fields[FieldPhoneNumber],
		Address:     fields[FieldAddress],
	}
}

var addressReplacer = strings.NewReplacer("\r", "", "\n", "")

// FormatAddress applies the storage formatting policy for addresses:
// carriage returns and newlines are removed.
func FormatAddress(address string) string {
	return addressReplacer.Replace(address)
}
