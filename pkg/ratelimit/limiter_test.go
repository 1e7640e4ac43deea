package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMemoryLimiter_WindowExhaustion(t *testing.T) {
	l := NewMemoryLimiter(3, time.Minute)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		ok, _, err := l.Allow(ctx, "1.2.3.4")
		assert.NoError(t, err)
		assert.True(t, ok, "request %d", i)
	}

	ok, retryAfter, err := l.Allow(ctx, "1.2.3.4")
	assert.NoError(t, err)
	assert.False(t, ok)
	assert.Greater(t, retryAfter, time.Duration(0))
	assert.LessOrEqual(t, retryAfter, time.Minute)
}

func TestMemoryLimiter_KeysAreIndependent(t *testing.T) {
	l := NewMemoryLimiter(1, time.Minute)
	ctx := context.Background()

	ok, _, _ := l.Allow(ctx, "a")
	assert.True(t, ok)
	ok, _, _ = l.Allow(ctx, "a")
	assert.False(t, ok)

	ok, _, _ = l.Allow(ctx, "b")
	assert.True(t, ok)
}

func TestMemoryLimiter_WindowRollsOver(t *testing.T) {
	l := NewMemoryLimiter(1, time.Minute)
	now := time.Now()
	l.now = func() time.Time { return now }
	ctx := context.Background()

	ok, _, _ := l.Allow(ctx, "a")
	assert.True(t, ok)
	ok, _, _ = l.Allow(ctx, "a")
	assert.False(t, ok)

	now = now.Add(time.Minute + time.Second)
	ok, _, _ = l.Allow(ctx, "a")
	assert.True(t, ok)
}

func TestMemoryLimiter_Reset(t *testing.T) {
	l := NewMemoryLimiter(1, time.Minute)
	ctx := context.Background()

	l.Allow(ctx, "a")
	ok, _, _ := l.Allow(ctx, "a")
	assert.False(t, ok)

	l.Reset()
	ok, _, _ = l.Allow(ctx, "a")
	assert.True(t, ok)
}
