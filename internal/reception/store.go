package reception

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store persists reception sessions between requests. Load returns ErrNotOpen
// when key has no session.
type Store interface {
	Load(ctx context.Context, key string) (*Session, error)
	Save(ctx context.Context, key string, sess *Session) error
	Delete(ctx context.Context, key string) error
}

// RedisStore keeps sessions as JSON values that expire after ttl.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore constructs a RedisStore.
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

func (s *RedisStore) redisKey(key string) string {
	return "economato:reception:" + key
}

// Load implements Store.
func (s *RedisStore) Load(ctx context.Context, key string) (*Session, error) {
	payload, err := s.client.Get(ctx, s.redisKey(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotOpen
		}
		return nil, fmt.Errorf("reception: load session: %w", err)
	}
	var sess Session
	if err := json.Unmarshal(payload, &sess); err != nil {
		return nil, fmt.Errorf("reception: decode session: %w", err)
	}
	if sess.Pending == nil {
		sess.Pending = map[string]PendingConfirmation{}
	}
	return &sess, nil
}

// Save implements Store.
func (s *RedisStore) Save(ctx context.Context, key string, sess *Session) error {
	payload, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("reception: encode session: %w", err)
	}
	if err := s.client.Set(ctx, s.redisKey(key), payload, s.ttl).Err(); err != nil {
		return fmt.Errorf("reception: save session: %w", err)
	}
	return nil
}

// Delete implements Store.
func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.redisKey(key)).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("reception: delete session: %w", err)
	}
	return nil
}

// MemoryStore keeps sessions in process. Values are stored encoded so callers
// never share state with the store.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string][]byte
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string][]byte)}
}

// Load implements Store.
func (s *MemoryStore) Load(_ context.Context, key string) (*Session, error) {
	s.mu.Lock()
	payload, ok := s.sessions[key]
	s.mu.Unlock()
	if !ok {
		return nil, ErrNotOpen
	}
	var sess Session
	if err := json.Unmarshal(payload, &sess); err != nil {
		return nil, err
	}
	if sess.Pending == nil {
		sess.Pending = map[string]PendingConfirmation{}
	}
	return &sess, nil
}

// Save implements Store.
func (s *MemoryStore) Save(_ context.Context, key string, sess *Session) error {
	payload, err := json.Marshal(sess)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.sessions[key] = payload
	s.mu.Unlock()
	return nil
}

// Delete implements Store.
func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.sessions, key)
	s.mu.Unlock()
	return nil
}
