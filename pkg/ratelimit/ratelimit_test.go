package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLimiter_Burst(t *testing.T) {
	l := New("open-library", 2)
	assert.Equal(t, "open-library", l.Name())

	assert.True(t, l.Allow())
	assert.True(t, l.Allow())
	assert.False(t, l.Allow(), "突发容量用完后应被限流")
}

func TestLimiter_Unlimited(t *testing.T) {
	l := New("unlimited", 0)
	for i := 0; i < 100; i++ {
		assert.True(t, l.Allow())
	}
}

func TestLimiter_WaitCancelled(t *testing.T) {
	l := New("slow", 0.001)
	assert.True(t, l.Allow())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err := l.Wait(ctx)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "slow")
}
