// Package redis implements deliberation.CheckpointStore on Redis.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sweetpotato0/deliberate/deliberation"
	deliberr "github.com/sweetpotato0/deliberate/errors"
)

// Store persists workflow snapshots keyed by session ID.
type Store struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

var _ deliberation.CheckpointStore = (*Store)(nil)

// Config holds Redis checkpoint configuration
type Config struct {
	Addr     string        // Redis server address (e.g., "localhost:6379")
	Password string        // Redis password (if any)
	DB       int           // Redis database number
	Prefix   string        // Key prefix for namespacing
	TTL      time.Duration // Time-to-live for snapshots (0 means no expiration)
}

// New creates a Redis-backed checkpoint store
func New(config *Config) *Store {
	if config == nil {
		config = &Config{
			Addr:   "localhost:6379",
			Prefix: "deliberate:checkpoint:",
			TTL:    24 * time.Hour,
		}
	}
	if config.Prefix == "" {
		config.Prefix = "deliberate:checkpoint:"
	}

	client := redis.NewClient(&redis.Options{
		Addr:     config.Addr,
		Password: config.Password,
		DB:       config.DB,
	})

	return &Store{
		client: client,
		prefix: config.Prefix,
		ttl:    config.TTL,
	}
}

// Save overwrites the snapshot for sessionID. Every stage transition
// saves, so only the latest state is kept.
func (s *Store) Save(ctx context.Context, sessionID string, state *deliberation.WorkflowState) error {
	if sessionID == "" {
		return fmt.Errorf("session ID cannot be empty")
	}
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal workflow state: %w", err)
	}
	if err := s.client.Set(ctx, s.prefix+sessionID, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to store checkpoint in Redis: %w", err)
	}
	return nil
}

// Load returns the latest snapshot for sessionID, or ErrNotFound.
func (s *Store) Load(ctx context.Context, sessionID string) (*deliberation.WorkflowState, error) {
	data, err := s.client.Get(ctx, s.prefix+sessionID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("checkpoint %s: %w", sessionID, deliberr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load checkpoint from Redis: %w", err)
	}
	var state deliberation.WorkflowState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("failed to unmarshal workflow state: %w", err)
	}
	return &state, nil
}

// Delete removes the snapshot for sessionID.
func (s *Store) Delete(ctx context.Context, sessionID string) error {
	return s.client.Del(ctx, s.prefix+sessionID).Err()
}

// Close releases the Redis connection.
func (s *Store) Close() error {
	return s.client.Close()
}
