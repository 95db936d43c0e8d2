package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLimiterSpacesSameHost(t *testing.T) {
	t.Parallel()

	l := New(Config{PerHostRPS: 10, PerHostBurst: 1})
	ctx := context.Background()

	require.NoError(t, l.Wait(ctx, "https://example.com/a"))
	start := time.Now()
	require.NoError(t, l.Wait(ctx, "https://example.com/b"))
	assert.GreaterOrEqual(t, time.Since(start), 80*time.Millisecond)
}

func TestLimiterHostsAreIndependent(t *testing.T) {
	t.Parallel()

	l := New(Config{PerHostRPS: 1, PerHostBurst: 1})
	ctx := context.Background()

	require.NoError(t, l.Wait(ctx, "https://one.example.com"))
	start := time.Now()
	require.NoError(t, l.Wait(ctx, "https://two.example.com"))
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestLimiterDisabled(t *testing.T) {
	t.Parallel()

	l := New(Config{})
	for i := 0; i < 100; i++ {
		require.NoError(t, l.Wait(context.Background(), "https://example.com"))
	}
	var nilLimiter *Limiter
	require.NoError(t, nilLimiter.Wait(context.Background(), "https://example.com"))
}

func TestLimiterContextCanceled(t *testing.T) {
	t.Parallel()

	l := New(Config{PerHostRPS: 0.1, PerHostBurst: 1})
	require.NoError(t, l.Wait(context.Background(), "https://slow.example.com"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := l.Wait(ctx, "https://slow.example.com")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limit wait")
}
