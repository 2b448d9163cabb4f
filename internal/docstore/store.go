package docstore

import (
	"context"
	"errors"
	"fmt"
	"unicode/utf8"
)

var (
	// ErrNotFound is returned when no document carries the requested id.
	ErrNotFound = errors.New("document not found")
	// ErrClosed is returned by operations on a store that has been closed.
	ErrClosed = errors.New("store closed")
	// ErrInvalidEncoding is returned by Insert when a field name or value is
	// not valid UTF-8 and could not be stored without being altered.
	ErrInvalidEncoding = errors.New("field is not valid UTF-8")
)

// DefaultTable is the name of the single table every backend writes to.
const DefaultTable = "_default"

// Document is a stored record with its store-assigned id.
type Document struct {
	ID     int
	Fields map[string]string
}

// Store defines the contract implemented by document store backends.
// Ids are sequential from 1 and are not reused until the store is dropped.
// Insert accepts an empty field map and rejects non UTF-8 fields with
// ErrInvalidEncoding.
type Store interface {
	Insert(ctx context.Context, fields map[string]string) (int, error)
	Get(ctx context.Context, q Query) (Document, bool, error)
	GetByID(ctx context.Context, id int) (Document, error)
	All(ctx context.Context) ([]Document, error)
	Remove(ctx context.Context, ids ...int) ([]int, error)
	DropAll(ctx context.Context) error
	Close() error
}

// Condition is a single field equality test.
type Condition struct {
	Field string
	Value string
}

// Query is a conjunction of conditions. The zero Query matches every document.
type Query []Condition

// Where starts a query on a single field.
func Where(field, value string) Query {
	return Query{{Field: field, Value: value}}
}

// And returns a copy of q extended with another condition.
func (q Query) And(field, value string) Query {
	out := make(Query, 0, len(q)+1)
	out = append(out, q...)
	return append(out, Condition{Field: field, Value: value})
}

// Match reports whether fields satisfy every condition of q.
func (q Query) Match(fields map[string]string) bool {
	for _, c := range q {
		v, ok := fields[c.Field]
		if !ok || v != c.Value {
			return false
		}
	}
	return true
}

func cloneFields(fields map[string]string) map[string]string {
	out := make(map[string]string, len(fields))
	for k, v := range fields {
		out[k] = v
	}
	return out
}

// checkFields reports the first field whose name or value is not valid UTF-8.
func checkFields(fields map[string]string) error {
	for k, v := range fields {
		if !utf8.ValidString(k) || !utf8.ValidString(v) {
			return fmt.Errorf("field %q: %w", k, ErrInvalidEncoding)
		}
	}
	return nil
}
