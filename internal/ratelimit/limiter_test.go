package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLimiter(t *testing.T) (*Limiter, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return NewLimiter(client), mr
}

func TestIPRateLimit(t *testing.T) {
	limiter, _ := newTestLimiter(t)
	ctx := context.Background()

	limited, err := limiter.CheckIPRateLimit(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.False(t, limited, "fresh IP must not be limited")

	for i := 0; i < ipRequestLimit; i++ {
		require.NoError(t, limiter.RecordIPRequest(ctx, "10.0.0.1"))
	}

	limited, err = limiter.CheckIPRateLimit(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.True(t, limited)

	limited, err = limiter.CheckIPRateLimit(ctx, "10.0.0.2")
	require.NoError(t, err)
	assert.False(t, limited, "limits are per IP")
}

func TestIPRateLimitWindowExpires(t *testing.T) {
	limiter, mr := newTestLimiter(t)
	ctx := context.Background()

	for i := 0; i < ipRequestLimit; i++ {
		require.NoError(t, limiter.RecordIPRequest(ctx, "10.0.0.1"))
	}

	limited, err := limiter.CheckIPRateLimit(ctx, "10.0.0.1")
	require.NoError(t, err)
	require.True(t, limited)

	mr.FastForward(ipWindow + time.Second)

	limited, err = limiter.CheckIPRateLimit(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.False(t, limited, "counter must reset after the window")
}

func TestIPRateLimitPurposesAreIndependent(t *testing.T) {
	limiter, _ := newTestLimiter(t)
	ctx := context.Background()

	for i := 0; i < ipRequestLimit; i++ {
		require.NoError(t, limiter.RecordIPRequestWithPurpose(ctx, "10.0.0.1", "forgot-password"))
	}

	limited, err := limiter.CheckIPRateLimitWithPurpose(ctx, "10.0.0.1", "forgot-password")
	require.NoError(t, err)
	require.True(t, limited)

	limited, err = limiter.CheckIPRateLimitWithPurpose(ctx, "10.0.0.1", "login")
	require.NoError(t, err)
	assert.False(t, limited, "one endpoint's budget must not spend another's")
}

func TestEmailCooldown(t *testing.T) {
	limiter, mr := newTestLimiter(t)
	ctx := context.Background()

	cooling, err := limiter.CheckEmailCooldown(ctx, "alice@example.com")
	require.NoError(t, err)
	require.False(t, cooling)

	require.NoError(t, limiter.SetEmailCooldown(ctx, "alice@example.com"))

	cooling, err = limiter.CheckEmailCooldown(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.True(t, cooling)

	cooling, err = limiter.CheckEmailCooldown(ctx, "bob@example.com")
	require.NoError(t, err)
	assert.False(t, cooling, "cooldowns are per address")

	mr.FastForward(emailCooldown + time.Second)

	cooling, err = limiter.CheckEmailCooldown(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.False(t, cooling)
}
