package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"progresskit/core"

	"github.com/redis/go-redis/v9"
)

// Config holds Redis connection configuration
type Config struct {
	Addr         string
	Password     string
	DB           int
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DefaultConfig returns sensible defaults for Redis configuration
func DefaultConfig() Config {
	return Config{
		Addr:         "localhost:6379",
		Password:     "",
		DB:           0,
		PoolSize:     10,
		MinIdleConns: 2,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	}
}

// Store implements engine.Store on Redis. Each user maps to one hash:
// - progress:{user_id} -> {version: int64, state: JSON ProgressionState}
// Creation and compare-and-swap run as Lua scripts so the version check and
// the write are a single atomic step on the server.
type Store struct {
	client *redis.Client
}

// New creates a Redis-backed store and verifies connectivity.
func New(config Config) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         config.Addr,
		Password:     config.Password,
		DB:           config.DB,
		PoolSize:     config.PoolSize,
		MinIdleConns: config.MinIdleConns,
		DialTimeout:  config.DialTimeout,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("%w: connecting to redis: %v", core.ErrStorageUnavailable, err)
	}

	return &Store{client: client}, nil
}

// NewWithClient creates a Store using an existing Redis client (useful for testing)
func NewWithClient(client *redis.Client) *Store {
	return &Store{client: client}
}

// Close closes the Redis connection
func (s *Store) Close() error {
	return s.client.Close()
}

func userKey(user core.UserID) string {
	return fmt.Sprintf("progress:%s", user)
}

var createScript = redis.NewScript(`
	if redis.call('EXISTS', KEYS[1]) == 1 then
		return 0
	end
	redis.call('HSET', KEYS[1], 'version', ARGV[1], 'state', ARGV[2])
	return 1
`)

// casScript checks the stored version before writing. Returns -1 when the
// record is missing, 0 on a version mismatch, 1 on success.
var casScript = redis.NewScript(`
	local v = redis.call('HGET', KEYS[1], 'version')
	if not v then
		return -1
	end
	if tonumber(v) ~= tonumber(ARGV[1]) then
		return 0
	end
	redis.call('HSET', KEYS[1], 'version', ARGV[2], 'state', ARGV[3])
	return 1
`)

func (s *Store) Create(ctx context.Context, user core.UserID) error {
	state := core.NewState(user)
	payload, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encoding state: %w", err)
	}
	created, err := createScript.Run(ctx, s.client, []string{userKey(user)}, state.Version, payload).Int64()
	if err != nil {
		return fmt.Errorf("%w: creating record: %v", core.ErrStorageUnavailable, err)
	}
	if created == 0 {
		return core.ErrAlreadyExists
	}
	return nil
}

func (s *Store) Load(ctx context.Context, user core.UserID) (core.ProgressionState, error) {
	vals, err := s.client.HMGet(ctx, userKey(user), "version", "state").Result()
	if err != nil {
		return core.ProgressionState{}, fmt.Errorf("%w: loading record: %v", core.ErrStorageUnavailable, err)
	}
	if vals[0] == nil || vals[1] == nil {
		return core.ProgressionState{}, core.ErrNotFound
	}
	raw, ok := vals[1].(string)
	if !ok {
		return core.ProgressionState{}, fmt.Errorf("unexpected state type %T", vals[1])
	}
	var state core.ProgressionState
	if err := json.Unmarshal([]byte(raw), &state); err != nil {
		return core.ProgressionState{}, fmt.Errorf("decoding state: %w", err)
	}
	return state, nil
}

func (s *Store) CompareAndSwap(ctx context.Context, user core.UserID, expectedVersion int64, next core.ProgressionState) error {
	payload, err := json.Marshal(next)
	if err != nil {
		return fmt.Errorf("encoding state: %w", err)
	}
	res, err := casScript.Run(ctx, s.client, []string{userKey(user)}, expectedVersion, next.Version, payload).Int64()
	if err != nil {
		return fmt.Errorf("%w: swapping record: %v", core.ErrStorageUnavailable, err)
	}
	switch res {
	case -1:
		return core.ErrNotFound
	case 0:
		return core.ErrVersionConflict
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, user core.UserID) error {
	n, err := s.client.Del(ctx, userKey(user)).Result()
	if err != nil {
		return fmt.Errorf("%w: deleting record: %v", core.ErrStorageUnavailable, err)
	}
	if n == 0 {
		return core.ErrNotFound
	}
	return nil
}
