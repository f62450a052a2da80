package repository

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nikolayk812/shoppingcart/internal/port"
	"github.com/redis/go-redis/v9"
)

const DefaultSessionPrefix = "cart"

type memorySessionStore struct {
	mu     sync.Mutex
	states map[port.CartKey]port.SessionState
}

// NewMemorySessionStore keeps sessions in process memory.
func NewMemorySessionStore() port.SessionStore {
	return &memorySessionStore{
		states: map[port.CartKey]port.SessionState{},
	}
}

func (s *memorySessionStore) Load(_ context.Context, key port.CartKey) (port.SessionState, error) {
	if err := validateKey(key); err != nil {
		return port.SessionState{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.states[key], nil
}

func (s *memorySessionStore) Save(_ context.Context, key port.CartKey, state port.SessionState) error {
	if err := validateKey(key); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if current := s.states[key]; current.Revision != state.Revision {
		return fmt.Errorf("%w: revision %d, loaded %d", port.ErrSessionConflict, current.Revision, state.Revision)
	}

	state.Revision++
	s.states[key] = state
	return nil
}

func (s *memorySessionStore) Delete(_ context.Context, key port.CartKey) error {
	if err := validateKey(key); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.states, key)
	return nil
}

type redisSessionStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisClient parses url, connects and verifies connectivity.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	if url == "" {
		return nil, errors.New("redis url is required")
	}

	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis.ParseURL: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, errors.Join(fmt.Errorf("ping redis: %w", err), client.Close())
	}

	return client, nil
}

// NewRedisSessionStore keeps one JSON document per cart key. A zero ttl
// keeps sessions until they are deleted.
func NewRedisSessionStore(client *redis.Client, prefix string, ttl time.Duration) (port.SessionStore, error) {
	if client == nil {
		return nil, errors.New("redis client is nil")
	}
	if prefix == "" {
		prefix = DefaultSessionPrefix
	}

	return &redisSessionStore{
		client: client,
		prefix: prefix,
		ttl:    ttl,
	}, nil
}

func (s *redisSessionStore) Load(ctx context.Context, key port.CartKey) (port.SessionState, error) {
	if err := validateKey(key); err != nil {
		return port.SessionState{}, err
	}

	data, err := s.client.Get(ctx, s.redisKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return port.SessionState{}, nil
	}
	if err != nil {
		return port.SessionState{}, fmt.Errorf("client.Get: %w", err)
	}

	return decodeSessionState(data)
}

// Save writes state only if nobody saved the key since state was loaded.
func (s *redisSessionStore) Save(ctx context.Context, key port.CartKey, state port.SessionState) error {
	if err := validateKey(key); err != nil {
		return err
	}

	redisKey := s.redisKey(key)

	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		var current int64

		data, err := tx.Get(ctx, redisKey).Bytes()
		switch {
		case errors.Is(err, redis.Nil):
		case err != nil:
			return fmt.Errorf("tx.Get: %w", err)
		default:
			stored, err := decodeSessionState(data)
			if err != nil {
				return err
			}
			current = stored.Revision
		}

		if current != state.Revision {
			return fmt.Errorf("%w: revision %d, loaded %d", port.ErrSessionConflict, current, state.Revision)
		}

		state.Revision++
		payload, err := json.Marshal(state)
		if err != nil {
			return fmt.Errorf("json.Marshal: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, redisKey, payload, s.ttl)
			return nil
		})
		return err
	}, redisKey)
	if errors.Is(err, redis.TxFailedErr) {
		return fmt.Errorf("%w: %s", port.ErrSessionConflict, redisKey)
	}

	return err
}

func (s *redisSessionStore) Delete(ctx context.Context, key port.CartKey) error {
	if err := validateKey(key); err != nil {
		return err
	}

	if err := s.client.Del(ctx, s.redisKey(key)).Err(); err != nil {
		return fmt.Errorf("client.Del: %w", err)
	}
	return nil
}

func (s *redisSessionStore) redisKey(key port.CartKey) string {
	return s.prefix + ":" + key.Instance + ":" + key.Session
}

func decodeSessionState(data []byte) (port.SessionState, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var state port.SessionState
	if err := dec.Decode(&state); err != nil {
		return port.SessionState{}, fmt.Errorf("dec.Decode: %w", err)
	}
	return state, nil
}

func validateKey(key port.CartKey) error {
	if key.Session == "" {
		return fmt.Errorf("session is empty")
	}
	if key.Instance == "" {
		return fmt.Errorf("instance is empty")
	}
	return nil
}
