package user

import (
	"strings"

	"github.com/brianvoe/gofakeit/v7"
)

// phoneFormats mimic French numbers as written by hand. '#' becomes a digit.
var phoneFormats = []string{
	"0# ## ## ## ##",
	"+33 (0)# ## ## ## ##",
	"+33 # ## ## ## ##",
	"0#########",
}

// Generator produces fake users for demos and tests.
type Generator struct {
	faker *gofakeit.Faker
}

// NewGenerator returns a generator. A zero seed draws a random one; any other
// seed yields a repeatable sequence.
func NewGenerator(seed uint64) *Generator {
	return &Generator{faker: gofakeit.New(seed)}
}

// User returns one fake user. Names come straight from the faker and are not
// guaranteed to pass ValidateNames.
func (g *Generator) User() User {
	f := g.faker
	address := f.Street() + "\n" + f.Zip() + " " + f.City()
	return User{
		FirstName:   f.FirstName(),
		LastName:    f.LastName(),
		PhoneNumber: f.Numerify(f.RandomString(phoneFormats)),
		Address:     strings.ReplaceAll(address, "\n", " "),
	}
}

// Users returns n fake users.
func (g *Generator) Users(n int) []User {
	if n <= 0 {
		return nil
	}
	users := make([]User, 0, n)
	for i := 0; i < n; i++ {
		users = append(users, g.User())
	}
	return users
}
