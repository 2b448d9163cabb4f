package user

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/userbook/userbook/internal/docstore"
	"github.com/userbook/userbook/internal/logging"
)

func pierre() User {
	return User{
		FirstName:   "Pierre",
		LastName:    "Legrand",
		PhoneNumber: "0123456789",
		Address:     "Fake address",
	}
}

func newTestManager(t *testing.T) (*Manager, *docstore.FileStore) {
	t.Helper()
	store, err := docstore.Open(filepath.Join(t.TempDir(), "test_db.json"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return NewManager(store, logging.Discard()), store
}

func readDefaultTable(t *testing.T, path string) map[string]map[string]string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read store: %v", err)
	}
	var file map[string]map[string]map[string]string
	if err := json.Unmarshal(data, &file); err != nil {
		t.Fatalf("decode store: %v", err)
	}
	table, ok := file[docstore.DefaultTable]
	if !ok {
		t.Fatalf("missing %s table", docstore.DefaultTable)
	}
	return table
}

func TestSaveWritesRecord(t *testing.T) {
	mgr, store := newTestManager(t)
	ctx := context.Background()

	data, err := os.ReadFile(store.Path())
	if err != nil {
		t.Fatalf("read store: %v", err)
	}
	if string(data) != "{}" {
		t.Fatalf("expected empty store, got %q", data)
	}

	id, err := mgr.Save(ctx, pierre(), false)
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if id != 1 {
		t.Fatalf("expected id 1, got %d", id)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	got := readDefaultTable(t, store.Path())["1"]
	want := map[string]string{
		"first_name":   "Pierre",
		"last_name":    "Legrand",
		"phone_number": "0123456789",
		"address":      "Fake address",
	}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for k, v := range want {
		if got[k] != v {
			t.Fatalf("field %s: expected %q, got %q", k, v, got[k])
		}
	}
}

func TestSaveIsIdempotent(t *testing.T) {
	mgr, store := newTestManager(t)
	ctx := context.Background()

	if id, err := mgr.Save(ctx, pierre(), false); err != nil || id != 1 {
		t.Fatalf("first save: id=%d err=%v", id, err)
	}
	id, err := mgr.Save(ctx, pierre(), false)
	if err != nil {
		t.Fatalf("second save: %v", err)
	}
	if id != NotSaved {
		t.Fatalf("expected %d, got %d", NotSaved, id)
	}

	if table := readDefaultTable(t, store.Path()); len(table) != 1 {
		t.Fatalf("expected a single record, got %v", table)
	}
}

func TestSaveIdentityUsesBothNames(t *testing.T) {
	mgr, _ := newTestManager(t)
	ctx := context.Background()

	if _, err := mgr.Save(ctx, pierre(), false); err != nil {
		t.Fatalf("save: %v", err)
	}

	sibling := pierre()
	sibling.LastName = "Martin"
	id, err := mgr.Save(ctx, sibling, false)
	if err != nil {
		t.Fatalf("save sibling: %v", err)
	}
	if id != 2 {
		t.Fatalf("different last name must be stored, got id %d", id)
	}

	moved := pierre()
	moved.PhoneNumber = "0999999999"
	moved.Address = "Elsewhere"
	if id, err := mgr.Save(ctx, moved, false); err != nil || id != NotSaved {
		t.Fatalf("same names must count as existing: id=%d err=%v", id, err)
	}
}

func TestSaveWithValidation(t *testing.T) {
	var buf bytes.Buffer
	store, err := docstore.Open(filepath.Join(t.TempDir(), "db.json"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer store.Close()
	mgr := NewManager(store, slog.New(slog.NewTextHandler(&buf, nil)))
	ctx := context.Background()

	bad := pierre()
	bad.PhoneNumber = "012"
	_, err = mgr.Save(ctx, bad, true)
	var phoneErr *PhoneError
	if !errors.As(err, &phoneErr) {
		t.Fatalf("expected PhoneError, got %v", err)
	}
	if !strings.Contains(buf.String(), "level=ERROR") || !strings.Contains(buf.String(), "user.phone_number=012") {
		t.Fatalf("expected error log with the rejected user, got %q", buf.String())
	}
	if exists, err := mgr.Exists(ctx, bad); err != nil || exists {
		t.Fatalf("rejected user must not be stored: exists=%v err=%v", exists, err)
	}

	id, err := mgr.Save(ctx, bad, false)
	if err != nil || id != 1 {
		t.Fatalf("unvalidated save should succeed: id=%d err=%v", id, err)
	}

	badName := pierre()
	badName.FirstName = "Pi3rre"
	var nameErr *NameError
	if _, err := mgr.Save(ctx, badName, true); !errors.As(err, &nameErr) {
		t.Fatalf("expected NameError, got %v", err)
	}
}

func TestExists(t *testing.T) {
	mgr, _ := newTestManager(t)
	ctx := context.Background()

	exists, err := mgr.Exists(ctx, pierre())
	if err != nil || exists {
		t.Fatalf("expected missing user: exists=%v err=%v", exists, err)
	}
	if _, err := mgr.Save(ctx, pierre(), false); err != nil {
		t.Fatalf("save: %v", err)
	}
	exists, err = mgr.Exists(ctx, pierre())
	if err != nil || !exists {
		t.Fatalf("expected stored user: exists=%v err=%v", exists, err)
	}

	doc, ok, err := mgr.FindMatch(ctx, pierre())
	if err != nil || !ok || doc.ID != 1 {
		t.Fatalf("unexpected match %+v found=%v err=%v", doc, ok, err)
	}
}

func TestDelete(t *testing.T) {
	mgr, store := newTestManager(t)
	ctx := context.Background()

	if _, err := mgr.Save(ctx, pierre(), false); err != nil {
		t.Fatalf("save: %v", err)
	}
	ids, err := mgr.Delete(ctx, pierre())
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if len(ids) != 1 || ids[0] != 1 {
		t.Fatalf("expected [1], got %v", ids)
	}
	if _, ok := readDefaultTable(t, store.Path())["1"]; ok {
		t.Fatalf("record 1 still stored")
	}

	ids, err = mgr.Delete(ctx, pierre())
	if err != nil {
		t.Fatalf("second delete: %v", err)
	}
	if ids == nil || len(ids) != 0 {
		t.Fatalf("expected empty slice, got %#v", ids)
	}
}

func TestDeleteRemovesFirstOfDuplicates(t *testing.T) {
	mgr, store := newTestManager(t)
	ctx := context.Background()

	// Duplicates can only come from outside the manager.
	for i := 0; i < 2; i++ {
		if _, err := store.Insert(ctx, pierre().Record()); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}
	ids, err := mgr.Delete(ctx, pierre())
	if err != nil || len(ids) != 1 || ids[0] != 1 {
		t.Fatalf("expected [1], got %v err=%v", ids, err)
	}
	exists, err := mgr.Exists(ctx, pierre())
	if err != nil || !exists {
		t.Fatalf("second duplicate should remain: exists=%v err=%v", exists, err)
	}
}

func TestRoundTripThroughStore(t *testing.T) {
	mgr, _ := newTestManager(t)
	ctx := context.Background()

	u := pierre()
	u.Address = "3 place du Capitole\n31000 Toulouse"
	id, err := mgr.Save(ctx, u, true)
	if err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := mgr.Get(ctx, id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	want := u
	want.Address = "3 place du Capitole31000 Toulouse"
	if got != want {
		t.Fatalf("expected %+v, got %+v", want, got)
	}

	if _, err := mgr.Get(ctx, 99); !errors.Is(err, docstore.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSaveSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "user_db.json")
	ctx := context.Background()
	u := User{FirstName: "Élodie", LastName: "Lefèvre", PhoneNumber: "0123456789", Address: "Lyon"}

	store, err := docstore.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if id, err := NewManager(store, logging.Discard()).Save(ctx, u, true); err != nil || id != 1 {
		t.Fatalf("expected id 1, got %d err=%v", id, err)
	}
	store.Close()

	reopened, err := docstore.Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	mgr := NewManager(reopened, logging.Discard())

	exists, err := mgr.Exists(ctx, u)
	if err != nil || !exists {
		t.Fatalf("expected match after reopen: exists=%v err=%v", exists, err)
	}
	if id, err := mgr.Save(ctx, u, true); err != nil || id != NotSaved {
		t.Fatalf("expected NotSaved after reopen, got %d err=%v", id, err)
	}
}

func TestSaveRejectsInvalidUTF8(t *testing.T) {
	mgr, store := newTestManager(t)
	ctx := context.Background()

	u := pierre()
	u.FirstName = "Pi\xffrre"

	var nameErr *NameError
	if _, err := mgr.Save(ctx, u, true); !errors.As(err, &nameErr) {
		t.Fatalf("expected NameError, got %v", err)
	}
	if _, err := mgr.Save(ctx, u, false); !errors.Is(err, docstore.ErrInvalidEncoding) {
		t.Fatalf("expected ErrInvalidEncoding, got %v", err)
	}
	data, err := os.ReadFile(store.Path())
	if err != nil {
		t.Fatalf("read store: %v", err)
	}
	if string(data) != "{}" {
		t.Fatalf("expected nothing stored, got %s", data)
	}
}

func TestList(t *testing.T) {
	mgr, _ := newTestManager(t)
	ctx := context.Background()

	users := NewGenerator(3).Users(4)
	for i := range users {
		users[i].FirstName = []string{"Anne", "Bruno", "Chloé", "Denis"}[i]
		if _, err := mgr.Save(ctx, users[i], false); err != nil {
			t.Fatalf("save: %v", err)
		}
	}

	got, err := mgr.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != len(users) {
		t.Fatalf("expected %d users, got %d", len(users), len(got))
	}
	for i := range users {
		if got[i] != users[i] {
			t.Fatalf("user %d: expected %+v, got %+v", i, users[i], got[i])
		}
	}
}

type failingStore struct {
	docstore.Store
	err error
}

func (s failingStore) Get(context.Context, docstore.Query) (docstore.Document, bool, error) {
	return docstore.Document{}, false, s.err
}

func TestStoreErrorsPropagate(t *testing.T) {
	boom := errors.New("disk full")
	mgr := NewManager(failingStore{err: boom}, logging.Discard())
	ctx := context.Background()

	if _, err := mgr.Save(ctx, pierre(), false); !errors.Is(err, boom) {
		t.Fatalf("expected store error from Save, got %v", err)
	}
	if _, err := mgr.Exists(ctx, pierre()); !errors.Is(err, boom) {
		t.Fatalf("expected store error from Exists, got %v", err)
	}
	if _, err := mgr.Delete(ctx, pierre()); !errors.Is(err, boom) {
		t.Fatalf("expected store error from Delete, got %v", err)
	}
}
