package repository

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"carebridge-auth/pkg/redis"
)

// RelayStore keeps relayed fragment payloads in Redis. Take uses GETDEL so an
// entry can be read exactly once.
type RelayStore struct {
	redis *redis.Client
}

func NewRelayStore(redisClient *redis.Client) *RelayStore {
	return &RelayStore{redis: redisClient}
}

// Stash stores raw under a new random relay ID
func (s *RelayStore) Stash(ctx context.Context, raw string, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = redis.TTLRelayPayload
	}

	id := uuid.NewString()
	if err := s.redis.Set(ctx, s.redis.KeyBuilder.KeyRelayPayload(id), raw, ttl); err != nil {
		return "", fmt.Errorf("failed to stash relay payload: %w", err)
	}

	return id, nil
}

// Take reads and removes the payload for id
func (s *RelayStore) Take(ctx context.Context, id string) (string, bool, error) {
	if !validRelayID(id) {
		return "", false, nil
	}

	raw, err := s.redis.GetDel(ctx, s.redis.KeyBuilder.KeyRelayPayload(id))
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read relay payload: %w", err)
	}

	return raw, true, nil
}

// MemoryRelayStore is the single-instance fallback used when Redis is not configured
type MemoryRelayStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

type memoryEntry struct {
	value     string
	expiresAt time.Time
}

func NewMemoryRelayStore() *MemoryRelayStore {
	return &MemoryRelayStore{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

func (s *MemoryRelayStore) Stash(ctx context.Context, raw string, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = redis.TTLRelayPayload
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.evictExpired()
	id := uuid.NewString()
	s.entries[id] = memoryEntry{value: raw, expiresAt: s.now().Add(ttl)}

	return id, nil
}

func (s *MemoryRelayStore) Take(ctx context.Context, id string) (string, bool, error) {
	if !validRelayID(id) {
		return "", false, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[id]
	delete(s.entries, id)
	if !ok || !s.now().Before(entry.expiresAt) {
		return "", false, nil
	}

	return entry.value, true, nil
}

func (s *MemoryRelayStore) evictExpired() {
	now := s.now()
	for id, entry := range s.entries {
		if !now.Before(entry.expiresAt) {
			delete(s.entries, id)
		}
	}
}

func validRelayID(id string) bool {
	if id == "" {
		return false
	}
	_, err := uuid.Parse(id)
	return err == nil
}
