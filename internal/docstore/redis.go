package docstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync/atomic"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisPrefix namespaces keys when no prefix is configured.
const DefaultRedisPrefix = "userbook"

// RedisStore keeps one hash per document and a sorted set of ids scored by
// id, so scans come back in insertion order. Membership in the id set decides
// whether a document exists; an empty document has no hash.
type RedisStore struct {
	client *redis.Client
	prefix string
	closed atomic.Bool
}

// NewRedisStore builds a store on top of client. The store owns the client
// and closes it on Close.
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &RedisStore{client: client, prefix: prefix + ":" + DefaultTable}
}

func (s *RedisStore) seqKey() string { return s.prefix + ":seq" }
func (s *RedisStore) idsKey() string { return s.prefix + ":ids" }
func (s *RedisStore) docKey(id int) string {
	return s.prefix + ":doc:" + strconv.Itoa(id)
}

// Insert allocates the next id and writes the document hash.
func (s *RedisStore) Insert(ctx context.Context, fields map[string]string) (int, error) {
	if s.closed.Load() {
		return 0, ErrClosed
	}
	if err := checkFields(fields); err != nil {
		return 0, err
	}

	next, err := s.client.Incr(ctx, s.seqKey()).Result()
	if err != nil {
		return 0, fmt.Errorf("allocate id: %w", err)
	}
	id := int(next)

	values := make(map[string]any, len(fields))
	for k, v := range fields {
		values[k] = v
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if len(values) > 0 {
			pipe.HSet(ctx, s.docKey(id), values)
		}
		pipe.ZAdd(ctx, s.idsKey(), redis.Z{Score: float64(id), Member: strconv.Itoa(id)})
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("write document %d: %w", id, err)
	}
	return id, nil
}

// Get scans documents in id order and returns the first match.
func (s *RedisStore) Get(ctx context.Context, q Query) (Document, bool, error) {
	ids, err := s.ids(ctx)
	if err != nil {
		return Document{}, false, err
	}
	for _, id := range ids {
		fields, err := s.client.HGetAll(ctx, s.docKey(id)).Result()
		if err != nil {
			return Document{}, false, fmt.Errorf("read document %d: %w", id, err)
		}
		if q.Match(fields) {
			return Document{ID: id, Fields: fields}, true, nil
		}
	}
	return Document{}, false, nil
}

// GetByID returns the document stored under id.
func (s *RedisStore) GetByID(ctx context.Context, id int) (Document, error) {
	if s.closed.Load() {
		return Document{}, ErrClosed
	}
	if _, err := s.client.ZScore(ctx, s.idsKey(), strconv.Itoa(id)).Result(); err != nil {
		if errors.Is(err, redis.Nil) {
			return Document{}, ErrNotFound
		}
		return Document{}, fmt.Errorf("read document %d: %w", id, err)
	}
	fields, err := s.client.HGetAll(ctx, s.docKey(id)).Result()
	if err != nil {
		return Document{}, fmt.Errorf("read document %d: %w", id, err)
	}
	return Document{ID: id, Fields: fields}, nil
}

// All returns every document ordered by id.
func (s *RedisStore) All(ctx context.Context) ([]Document, error) {
	ids, err := s.ids(ctx)
	if err != nil {
		return nil, err
	}
	docs := make([]Document, 0, len(ids))
	for _, id := range ids {
		fields, err := s.client.HGetAll(ctx, s.docKey(id)).Result()
		if err != nil {
			return nil, fmt.Errorf("read document %d: %w", id, err)
		}
		docs = append(docs, Document{ID: id, Fields: fields})
	}
	return docs, nil
}

// Remove deletes the given ids and returns the ones that existed.
func (s *RedisStore) Remove(ctx context.Context, ids ...int) ([]int, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	removed := make([]int, 0, len(ids))
	for _, id := range ids {
		n, err := s.client.ZRem(ctx, s.idsKey(), strconv.Itoa(id)).Result()
		if err != nil {
			return removed, fmt.Errorf("remove document %d: %w", id, err)
		}
		if n == 0 {
			continue
		}
		if err := s.client.Del(ctx, s.docKey(id)).Err(); err != nil {
			return removed, fmt.Errorf("remove document %d: %w", id, err)
		}
		removed = append(removed, id)
	}
	return removed, nil
}

// DropAll deletes every document together with the id sequence.
func (s *RedisStore) DropAll(ctx context.Context) error {
	ids, err := s.ids(ctx)
	if err != nil {
		return err
	}
	keys := make([]string, 0, len(ids)+2)
	for _, id := range ids {
		keys = append(keys, s.docKey(id))
	}
	keys = append(keys, s.idsKey(), s.seqKey())
	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("drop documents: %w", err)
	}
	return nil
}

// Close closes the underlying client.
func (s *RedisStore) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	return s.client.Close()
}

func (s *RedisStore) ids(ctx context.Context) ([]int, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	members, err := s.client.ZRange(ctx, s.idsKey(), 0, -1).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("list ids: %w", err)
	}
	ids := make([]int, 0, len(members))
	for _, m := range members {
		id, err := strconv.Atoi(m)
		if err != nil {
			return nil, fmt.Errorf("invalid document id %q", m)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
