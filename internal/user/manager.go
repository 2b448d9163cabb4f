package user

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/userbook/userbook/internal/docstore"
)

// NotSaved is returned by Save when a matching record already exists.
const NotSaved = -1

// Manager bridges User values and a document store. The store is owned by
// the caller, who must close it when done.
type Manager struct {
	store  docstore.Store
	logger *slog.Logger
}

// NewManager creates a manager over store.
func NewManager(store docstore.Store, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{store: store, logger: logger}
}

// identity is the lookup used to detect an existing record: first name and
// last name must both match. Several records may share it.
func identity(u User) docstore.Query {
	return docstore.Where(FieldFirstName, u.FirstName).And(FieldLastName, u.LastName)
}

// FindMatch returns the lowest-id record sharing the user's names.
func (m *Manager) FindMatch(ctx context.Context, u User) (docstore.Document, bool, error) {
	doc, ok, err := m.store.Get(ctx, identity(u))
	if err != nil {
		return docstore.Document{}, false, fmt.Errorf("find user: %w", err)
	}
	return doc, ok, nil
}

// Exists reports whether a record with the user's names is stored.
func (m *Manager) Exists(ctx context.Context, u User) (bool, error) {
	_, ok, err := m.FindMatch(ctx, u)
	return ok, err
}

// Save inserts the user unless a matching record exists, in which case it
// returns NotSaved without writing. With validate set, validation errors are
// returned unchanged and nothing is written.
func (m *Manager) Save(ctx context.Context, u User, validate bool) (int, error) {
	if validate {
		if err := Validate(u); err != nil {
			m.logger.Error("user validation failed", "error", err, "user", u)
			return 0, err
		}
	}

	doc, ok, err := m.FindMatch(ctx, u)
	if err != nil {
		return 0, err
	}
	if ok {
		m.logger.Info("user already stored", "id", doc.ID, "user", u)
		return NotSaved, nil
	}

	id, err := m.store.Insert(ctx, u.Record())
	if err != nil {
		return 0, fmt.Errorf("insert user: %w", err)
	}
	m.logger.Info("user saved", "id", id, "user", u)
	return id, nil
}

// Delete removes the first matching record and returns its id, or an empty
// slice when nothing matches.
func (m *Manager) Delete(ctx context.Context, u User) ([]int, error) {
	doc, ok, err := m.FindMatch(ctx, u)
	if err != nil {
		return nil, err
	}
	if !ok {
		return []int{}, nil
	}

	removed, err := m.store.Remove(ctx, doc.ID)
	if err != nil {
		return nil, fmt.Errorf("remove user %d: %w", doc.ID, err)
	}
	if removed == nil {
		removed = []int{}
	}
	m.logger.Info("user deleted", "id", doc.ID, "user", u)
	return removed, nil
}

// Get loads the user stored under id.
func (m *Manager) Get(ctx context.Context, id int) (User, error) {
	doc, err := m.store.GetByID(ctx, id)
	if err != nil {
		return User{}, fmt.Errorf("get user %d: %w", id, err)
	}
	return FromRecord(doc.Fields), nil
}

// List returns every stored user ordered by id.
func (m *Manager) List(ctx context.Context) ([]User, error) {
	docs, err := m.store.All(ctx)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	users := make([]User, 0, len(docs))
	for _, d := range docs {
		users = append(users, FromRecord(d.Fields))
	}
	return users, nil
}
