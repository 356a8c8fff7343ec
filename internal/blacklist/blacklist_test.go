package blacklist

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAddAndIsBlacklisted_InMemoryFallback(t *testing.T) {
	s := New(Config{Enabled: false})
	ctx := context.Background()

	assert.False(t, s.IsBlacklisted("ETHUSDT"))

	err := s.Add(ctx, "ETHUSDT", time.Hour, "stop_loss_exit")
	assert.NoError(t, err)
	assert.True(t, s.IsBlacklisted("ETHUSDT"))
}

func TestIsBlacklisted_ExpiresAfterDuration(t *testing.T) {
	s := New(Config{Enabled: false})
	ctx := context.Background()

	assert.NoError(t, s.Add(ctx, "BTCUSDT", -time.Second, "already_expired"))
	assert.False(t, s.IsBlacklisted("BTCUSDT"))
}

func TestRemove_ClearsEntryEarly(t *testing.T) {
	s := New(Config{Enabled: false})
	ctx := context.Background()

	assert.NoError(t, s.Add(ctx, "SOLUSDT", time.Hour, "manual"))
	assert.True(t, s.IsBlacklisted("SOLUSDT"))

	assert.NoError(t, s.Remove(ctx, "SOLUSDT"))
	assert.False(t, s.IsBlacklisted("SOLUSDT"))
}

func TestIsBlacklisted_UnknownSymbolIsFalse(t *testing.T) {
	s := New(Config{Enabled: false})
	assert.False(t, s.IsBlacklisted("DOGEUSDT"))
}
