package throttle

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestGate_SingleInFlight(t *testing.T) {
	g := New(0)

	var acquired int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if g.TryAcquire() {
				atomic.AddInt32(&acquired, 1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), acquired, "同一时刻只能有一个执行者")
	g.Release(true)
	assert.True(t, g.TryAcquire(), "interval为0时释放后可立即再次获取")
}

func TestGate_MinInterval(t *testing.T) {
	now := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)
	g := New(10 * time.Minute)
	g.now = func() time.Time { return now }

	assert.True(t, g.TryAcquire())
	g.Release(true)
	assert.Equal(t, now.Add(10*time.Minute), g.NextAllowed())

	now = now.Add(5 * time.Minute)
	assert.False(t, g.TryAcquire(), "间隔不足")

	now = now.Add(6 * time.Minute)
	assert.True(t, g.TryAcquire())
}

func TestGate_FailedRunDoesNotConsumeInterval(t *testing.T) {
	g := New(time.Hour)

	assert.True(t, g.TryAcquire())
	g.Release(false)
	assert.True(t, g.NextAllowed().IsZero())
	assert.True(t, g.TryAcquire(), "失败的执行不计入间隔")
}
