// Package blacklist is the Redis-backed, shared symbol blacklist: a
// time-bounded veto written by engines after stop-loss exits and read by
// the Signal Quality Gate. Reads are lock-free key lookups; writes use a
// short critical section, per the shared-resource contract. Adapted from
// the teacher's CacheService graceful-degradation wrapper.
package blacklist

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"tradecore/internal/logging"
	"tradecore/internal/model"
)

const keyPrefix = "blacklist:"

// Config configures the Redis connection backing the blacklist.
type Config struct {
	Enabled  bool
	Address  string
	Password string
	DB       int
}

// Store is the shared blacklist. When Redis is unavailable it degrades to
// an in-memory map scoped to this process, so a single engine still
// enforces its own cool-downs.
type Store struct {
	client *redis.Client
	cfg    Config

	mu       sync.RWMutex
	healthy  bool
	fallback map[string]model.BlacklistEntry
}

// New constructs a Store, probing Redis connectivity once and falling
// back to in-memory mode on failure rather than failing startup.
func New(cfg Config) *Store {
	s := &Store{cfg: cfg, fallback: make(map[string]model.BlacklistEntry)}
	if !cfg.Enabled {
		return s
	}

	s.client = redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.client.Ping(ctx).Err(); err != nil {
		blacklistLog := logging.Component("blacklist")
		blacklistLog.Warn().Err(err).Msg("redis unavailable, falling back to in-memory blacklist")
		return s
	}
	s.healthy = true
	return s
}

// Add blacklists symbol for duration, recording reason.
func (s *Store) Add(ctx context.Context, symbol string, duration time.Duration, reason string) error {
	entry := model.BlacklistEntry{
		Symbol:    symbol,
		EntryTime: time.Now(),
		ExpiresAt: time.Now().Add(duration),
		Reason:    reason,
	}

	if s.healthy {
		key := keyPrefix + symbol
		if err := s.client.Set(ctx, key, reason, duration).Err(); err != nil {
			blacklistLog := logging.Component("blacklist")
			blacklistLog.Warn().Err(err).Msg("redis write failed, using in-memory fallback")
		} else {
			return nil
		}
	}

	s.mu.Lock()
	s.fallback[symbol] = entry
	s.mu.Unlock()
	return nil
}

// IsBlacklisted reports whether symbol is currently vetoed. Satisfies the
// gate's BlacklistChecker interface.
func (s *Store) IsBlacklisted(symbol string) bool {
	if s.healthy {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		exists, err := s.client.Exists(ctx, keyPrefix+symbol).Result()
		if err == nil {
			return exists > 0
		}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.fallback[symbol]
	if !ok {
		return false
	}
	return time.Now().Before(entry.ExpiresAt)
}

// Remove clears a symbol's blacklist entry early, e.g. on manual override.
func (s *Store) Remove(ctx context.Context, symbol string) error {
	if s.healthy {
		if err := s.client.Del(ctx, keyPrefix+symbol).Err(); err != nil {
			return fmt.Errorf("remove blacklist entry: %w", err)
		}
	}
	s.mu.Lock()
	delete(s.fallback, symbol)
	s.mu.Unlock()
	return nil
}
