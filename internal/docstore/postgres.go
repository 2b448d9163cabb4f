package docstore

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DefaultPostgresTable is used when no table name is configured.
const DefaultPostgresTable = "user_documents"

// PostgresStore persists documents as JSONB rows in a single table.
type PostgresStore struct {
	db    *pgxpool.Pool
	table string
}

// NewPostgresStore constructs a Postgres-backed store and creates its table
// when missing. The store owns the pool and closes it on Close.
func NewPostgresStore(ctx context.Context, db *pgxpool.Pool, table string) (*PostgresStore, error) {
	if table == "" {
		table = DefaultPostgresTable
	}
	s := &PostgresStore{db: db, table: pgx.Identifier{table}.Sanitize()}
	_, err := db.Exec(ctx, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
        id BIGSERIAL PRIMARY KEY,
        fields JSONB NOT NULL
    )`, s.table))
	if err != nil {
		return nil, fmt.Errorf("create table %s: %w", s.table, err)
	}
	return s, nil
}

// Insert adds a row and returns its serial id.
func (s *PostgresStore) Insert(ctx context.Context, fields map[string]string) (int, error) {
	if err := checkFields(fields); err != nil {
		return 0, err
	}
	var id int64
	err := s.db.QueryRow(ctx, fmt.Sprintf(`INSERT INTO %s (fields) VALUES ($1) RETURNING id`, s.table), cloneFields(fields)).Scan(&id)
	if err != nil {
		return 0, err
	}
	return int(id), nil
}

// Get returns the lowest-id row whose fields contain every condition of q.
func (s *PostgresStore) Get(ctx context.Context, q Query) (Document, bool, error) {
	match := make(map[string]string, len(q))
	for _, c := range q {
		if prev, ok := match[c.Field]; ok && prev != c.Value {
			return Document{}, false, nil
		}
		match[c.Field] = c.Value
	}

	var (
		id  int64
		doc Document
	)
	err := s.db.QueryRow(ctx, fmt.Sprintf(`SELECT id, fields FROM %s WHERE fields @> $1 ORDER BY id LIMIT 1`, s.table), match).
		Scan(&id, &doc.Fields)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Document{}, false, nil
		}
		return Document{}, false, err
	}
	doc.ID = int(id)
	return doc, true, nil
}

// GetByID fetches a row by id.
func (s *PostgresStore) GetByID(ctx context.Context, id int) (Document, error) {
	doc := Document{ID: id}
	err := s.db.QueryRow(ctx, fmt.Sprintf(`SELECT fields FROM %s WHERE id = $1`, s.table), int64(id)).Scan(&doc.Fields)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Document{}, ErrNotFound
		}
		return Document{}, err
	}
	return doc, nil
}

// All returns every row ordered by id.
func (s *PostgresStore) All(ctx context.Context) ([]Document, error) {
	rows, err := s.db.Query(ctx, fmt.Sprintf(`SELECT id, fields FROM %s ORDER BY id`, s.table))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		var (
			id  int64
			doc Document
		)
		if err := rows.Scan(&id, &doc.Fields); err != nil {
			return nil, err
		}
		doc.ID = int(id)
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// Remove deletes rows by id and returns the ids that existed.
func (s *PostgresStore) Remove(ctx context.Context, ids ...int) ([]int, error) {
	removed := make([]int, 0, len(ids))
	if len(ids) == 0 {
		return removed, nil
	}
	keys := make([]int64, len(ids))
	for i, id := range ids {
		keys[i] = int64(id)
	}

	rows, err := s.db.Query(ctx, fmt.Sprintf(`DELETE FROM %s WHERE id = ANY($1) RETURNING id`, s.table), keys)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		removed = append(removed, int(id))
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sort.Ints(removed)
	return removed, nil
}

// DropAll empties the table and resets the id sequence.
func (s *PostgresStore) DropAll(ctx context.Context) error {
	_, err := s.db.Exec(ctx, fmt.Sprintf(`TRUNCATE %s RESTART IDENTITY`, s.table))
	return err
}

// Close closes the pool.
func (s *PostgresStore) Close() error {
	s.db.Close()
	return nil
}
