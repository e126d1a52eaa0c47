package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	fibersession "github.com/gofiber/fiber/v2/middleware/session"
	"github.com/redis/go-redis/v9"
)

// Store persists sessions by id.
type Store interface {
	// Load returns the stored session or nil when it does not exist or expired.
	Load(ctx context.Context, id string) (*Session, error)
	Save(ctx context.Context, s *Session, ttl time.Duration) error
	Destroy(ctx context.Context, id string) error
}

const keyPrefix = "session:"

// RedisStore keeps sessions as JSON documents with a TTL.
type RedisStore struct {
	client redis.UniversalClient
}

// NewRedisStore returns a Store backed by client.
func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client}
}

func (r *RedisStore) Load(ctx context.Context, id string) (*Session, error) {
	raw, err := r.client.Get(ctx, keyPrefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("session: load: %w", err)
	}
	return decode(id, raw)
}

func (r *RedisStore) Save(ctx context.Context, s *Session, ttl time.Duration) error {
	raw, err := encode(s)
	if err != nil {
		return err
	}
	if err := r.client.Set(ctx, keyPrefix+s.ID(), raw, ttl).Err(); err != nil {
		return fmt.Errorf("session: save: %w", err)
	}
	s.markClean()
	return nil
}

func (r *RedisStore) Destroy(ctx context.Context, id string) error {
	if err := r.client.Del(ctx, keyPrefix+id).Err(); err != nil {
		return fmt.Errorf("session: destroy: %w", err)
	}
	return nil
}

// StorageStore keeps sessions as JSON documents in a fiber.Storage backend.
type StorageStore struct {
	storage fiber.Storage
}

// NewStorageStore returns a Store backed by storage.
func NewStorageStore(storage fiber.Storage) *StorageStore {
	return &StorageStore{storage: storage}
}

// NewMemoryStore returns a StorageStore on fiber's in-process session storage.
// It is meant for tests and single-node development; expiry has one-second
// resolution.
func NewMemoryStore() *StorageStore {
	return NewStorageStore(fibersession.New().Storage)
}

func (st *StorageStore) Load(_ context.Context, id string) (*Session, error) {
	raw, err := st.storage.Get(keyPrefix + id)
	if err != nil {
		return nil, fmt.Errorf("session: load: %w", err)
	}
	if raw == nil {
		return nil, nil
	}
	return decode(id, raw)
}

func (st *StorageStore) Save(_ context.Context, s *Session, ttl time.Duration) error {
	raw, err := encode(s)
	if err != nil {
		return err
	}
	if err := st.storage.Set(keyPrefix+s.ID(), raw, ttl); err != nil {
		return fmt.Errorf("session: save: %w", err)
	}
	s.markClean()
	return nil
}

func (st *StorageStore) Destroy(_ context.Context, id string) error {
	if err := st.storage.Delete(keyPrefix + id); err != nil {
		return fmt.Errorf("session: destroy: %w", err)
	}
	return nil
}

func encode(s *Session) ([]byte, error) {
	raw, err := json.Marshal(s.snapshot())
	if err != nil {
		return nil, fmt.Errorf("session: encode: %w", err)
	}
	return raw, nil
}

func decode(id string, raw []byte) (*Session, error) {
	var values map[string]json.RawMessage
	if err := json.Unmarshal(raw, &values); err != nil {
		return nil, fmt.Errorf("session: decode: %w", err)
	}
	return restore(id, values), nil
}
