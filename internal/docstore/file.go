package docstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"

	"github.com/hashicorp/go-memdb"
)

const (
	indexID     = "id"
	indexFields = "fields"
)

func fileSchema() *memdb.DBSchema {
	return &memdb.DBSchema{
		Tables: map[string]*memdb.TableSchema{
			DefaultTable: {
				Name: DefaultTable,
				Indexes: map[string]*memdb.IndexSchema{
					indexID: {
						Name:    indexID,
						Unique:  true,
						Indexer: &memdb.IntFieldIndex{Field: "ID"},
					},
					indexFields: {
						Name:         indexFields,
						AllowMissing: true,
						Indexer:      &memdb.StringMapFieldIndex{Field: "Fields"},
					},
				},
			},
		},
	}
}

// FileStore is a JSON file backed store. Documents live in an in-memory
// go-memdb table and every write rewrites the whole file.
type FileStore struct {
	mu       sync.Mutex
	path     string
	db       *memdb.MemDB
	next     int
	hasTable bool
	extra    map[string]json.RawMessage
	closed   bool
}

// Open loads the store at path, creating the file (and its directory) when
// it does not exist yet.
func Open(path string) (*FileStore, error) {
	if path == "" {
		return nil, fmt.Errorf("store path is required")
	}
	db, err := memdb.NewMemDB(fileSchema())
	if err != nil {
		return nil, fmt.Errorf("build memdb: %w", err)
	}
	s := &FileStore{path: path, db: db, next: 1}

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create store dir: %w", err)
		}
		if err := s.writeFile([]byte("{}")); err != nil {
			return nil, err
		}
		return s, nil
	case err != nil:
		return nil, fmt.Errorf("read store %s: %w", path, err)
	}

	if err := s.load(data); err != nil {
		return nil, fmt.Errorf("load store %s: %w", path, err)
	}
	return s, nil
}

// Path returns the backing file location.
func (s *FileStore) Path() string {
	return s.path
}

func (s *FileStore) load(data []byte) error {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	var tables map[string]json.RawMessage
	if err := json.Unmarshal(data, &tables); err != nil {
		return err
	}

	raw, ok := tables[DefaultTable]
	delete(tables, DefaultTable)
	if len(tables) > 0 {
		s.extra = tables
	}
	if !ok {
		return nil
	}

	var docs map[string]map[string]string
	if err := json.Unmarshal(raw, &docs); err != nil {
		return fmt.Errorf("decode %s table: %w", DefaultTable, err)
	}
	s.hasTable = true

	txn := s.db.Txn(true)
	defer txn.Abort()
	for key, fields := range docs {
		id, err := strconv.Atoi(key)
		if err != nil || id < 1 {
			return fmt.Errorf("invalid document id %q", key)
		}
		if fields == nil {
			fields = map[string]string{}
		}
		if err := txn.Insert(DefaultTable, &Document{ID: id, Fields: fields}); err != nil {
			return err
		}
		if id >= s.next {
			s.next = id + 1
		}
	}
	txn.Commit()
	return nil
}

// Insert stores fields under the next id and returns it.
func (s *FileStore) Insert(_ context.Context, fields map[string]string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, ErrClosed
	}
	if err := checkFields(fields); err != nil {
		return 0, err
	}

	id := s.next
	txn := s.db.Txn(true)
	defer txn.Abort()
	if err := txn.Insert(DefaultTable, &Document{ID: id, Fields: cloneFields(fields)}); err != nil {
		return 0, err
	}

	hadTable := s.hasTable
	s.hasTable = true
	if err := s.flush(txn); err != nil {
		s.hasTable = hadTable
		return 0, err
	}
	txn.Commit()
	s.next++
	return id, nil
}

// Get returns the lowest-id document matching q.
func (s *FileStore) Get(_ context.Context, q Query) (Document, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return Document{}, false, ErrClosed
	}

	txn := s.db.Txn(false)
	it, err := s.lookup(txn, q)
	if err != nil {
		return Document{}, false, err
	}

	var (
		best  *Document
		found bool
	)
	for raw := it.Next(); raw != nil; raw = it.Next() {
		doc := raw.(*Document)
		if !q.Match(doc.Fields) {
			continue
		}
		if !found || doc.ID < best.ID {
			best, found = doc, true
		}
	}
	if !found {
		return Document{}, false, nil
	}
	return Document{ID: best.ID, Fields: cloneFields(best.Fields)}, true, nil
}

// lookup narrows the scan through the fields index on the first non-empty
// condition; the caller still checks the whole query.
func (s *FileStore) lookup(txn *memdb.Txn, q Query) (memdb.ResultIterator, error) {
	for _, c := range q {
		if c.Field != "" && c.Value != "" {
			return txn.Get(DefaultTable, indexFields, c.Field, c.Value)
		}
	}
	return txn.Get(DefaultTable, indexID)
}

// GetByID returns the document stored under id.
func (s *FileStore) GetByID(_ context.Context, id int) (Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return Document{}, ErrClosed
	}

	raw, err := s.db.Txn(false).First(DefaultTable, indexID, id)
	if err != nil {
		return Document{}, err
	}
	if raw == nil {
		return Document{}, ErrNotFound
	}
	doc := raw.(*Document)
	return Document{ID: doc.ID, Fields: cloneFields(doc.Fields)}, nil
}

// All returns every document ordered by id.
func (s *FileStore) All(_ context.Context) ([]Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}

	docs, err := collect(s.db.Txn(false))
	if err != nil {
		return nil, err
	}
	out := make([]Document, 0, len(docs))
	for _, d := range docs {
		out = append(out, Document{ID: d.ID, Fields: cloneFields(d.Fields)})
	}
	return out, nil
}

// Remove deletes the given ids and returns the ones that existed.
func (s *FileStore) Remove(_ context.Context, ids ...int) ([]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}

	txn := s.db.Txn(true)
	defer txn.Abort()
	removed := make([]int, 0, len(ids))
	for _, id := range ids {
		raw, err := txn.First(DefaultTable, indexID, id)
		if err != nil {
			return nil, err
		}
		if raw == nil {
			continue
		}
		if err := txn.Delete(DefaultTable, raw); err != nil {
			return nil, err
		}
		removed = append(removed, id)
	}
	if len(removed) == 0 {
		return removed, nil
	}
	if err := s.flush(txn); err != nil {
		return nil, err
	}
	txn.Commit()
	return removed, nil
}

// DropAll removes every table. The file is left as an empty object and ids
// start again at 1.
func (s *FileStore) DropAll(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	txn := s.db.Txn(true)
	defer txn.Abort()
	if _, err := txn.DeleteAll(DefaultTable, indexID); err != nil {
		return err
	}
	if err := s.writeFile([]byte("{}")); err != nil {
		return err
	}
	txn.Commit()
	s.hasTable = false
	s.extra = nil
	s.next = 1
	return nil
}

// Close releases the store. Writes are synchronous, so nothing is pending.
func (s *FileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func collect(txn *memdb.Txn) ([]*Document, error) {
	it, err := txn.Get(DefaultTable, indexID)
	if err != nil {
		return nil, err
	}
	var docs []*Document
	for raw := it.Next(); raw != nil; raw = it.Next() {
		docs = append(docs, raw.(*Document))
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].ID < docs[j].ID })
	return docs, nil
}

// flush writes the state visible in txn to disk.
func (s *FileStore) flush(txn *memdb.Txn) error {
	docs, err := collect(txn)
	if err != nil {
		return err
	}

	tables := make(map[string]any, len(s.extra)+1)
	for name, raw := range s.extra {
		tables[name] = raw
	}
	if s.hasTable {
		tables[DefaultTable] = orderedTable(docs)
	}

	data, err := json.MarshalIndent(tables, "", "  ")
	if err != nil {
		return fmt.Errorf("encode store: %w", err)
	}
	return s.writeFile(data)
}

func (s *FileStore) writeFile(data []byte) error {
	dir, base := filepath.Split(s.path)
	if dir == "" {
		dir = "."
	}
	tmp, err := os.CreateTemp(dir, base+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op once renamed

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write store: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync store: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("replace store: %w", err)
	}
	return nil
}

// orderedTable encodes documents keyed by their string id in ascending
// numeric order, which a plain map would not preserve.
type orderedTable []*Document

func (t orderedTable) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, d := range t {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(strconv.Itoa(d.ID))
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		fields, err := json.Marshal(d.Fields)
		if err != nil {
			return nil, err
		}
		buf.Write(fields)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
