package repository

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"carebridge-auth/pkg/redis"
)

// ExchangeGuard records consumed authorization codes in Redis so a replayed
// code is rejected across instances. Only a hash of the code is stored.
type ExchangeGuard struct {
	redis *redis.Client
	ttl   time.Duration
}

func NewExchangeGuard(redisClient *redis.Client) *ExchangeGuard {
	return &ExchangeGuard{redis: redisClient, ttl: redis.TTLExchangeClaim}
}

// Claim returns true for the first caller presenting code
func (g *ExchangeGuard) Claim(ctx context.Context, code string) (bool, error) {
	ok, err := g.redis.SetNX(ctx, g.redis.KeyBuilder.KeyExchangeClaim(HashCode(code)), "1", g.ttl)
	if err != nil {
		return false, fmt.Errorf("failed to claim authorization code: %w", err)
	}
	return ok, nil
}

// MemoryExchangeGuard is the single-instance fallback
type MemoryExchangeGuard struct {
	mu      sync.Mutex
	claimed map[string]time.Time
	ttl     time.Duration
	now     func() time.Time
}

func NewMemoryExchangeGuard() *MemoryExchangeGuard {
	return &MemoryExchangeGuard{
		claimed: make(map[string]time.Time),
		ttl:     redis.TTLExchangeClaim,
		now:     time.Now,
	}
}

func (g *MemoryExchangeGuard) Claim(ctx context.Context, code string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	for hash, expiresAt := range g.claimed {
		if !now.Before(expiresAt) {
			delete(g.claimed, hash)
		}
	}

	hash := HashCode(code)
	if _, taken := g.claimed[hash]; taken {
		return false, nil
	}
	g.claimed[hash] = now.Add(g.ttl)

	return true, nil
}

// HashCode returns the hex SHA-256 of an authorization code
func HashCode(code string) string {
	sum := sha256.Sum256([]byte(code))
	return hex.EncodeToString(sum[:])
}
