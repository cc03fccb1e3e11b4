// Package throttle 周期任务节流：最小间隔 + 同一时刻只允许一个执行
//
// 状态归属于创建它的组件实例，多实例部署时只是单实例内的尽力节流。
package throttle

import (
	"sync"
	"time"
)

// Gate 节流闸门
type Gate struct {
	mu       sync.Mutex
	interval time.Duration
	lastRun  time.Time
	inFlight bool
	now      func() time.Time
}

// New 创建闸门，interval<=0表示只限制并发不限制频率
func New(interval time.Duration) *Gate {
	return &Gate{interval: interval, now: time.Now}
}

// TryAcquire 尝试获得执行权
// 成功后必须调用Release；距离上次成功执行不足interval或已有执行在进行时返回false
func (g *Gate) TryAcquire() bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.inFlight {
		return false
	}
	if !g.lastRun.IsZero() && g.interval > 0 && g.now().Sub(g.lastRun) < g.interval {
		return false
	}
	g.inFlight = true
	return true
}

// Release 释放执行权；succeeded为false时不刷新lastRun，允许立即重试
func (g *Gate) Release(succeeded bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.inFlight = false
	if succeeded {
		g.lastRun = g.now()
	}
}

// NextAllowed 下一次允许执行的时间（零值表示现在即可）
func (g *Gate) NextAllowed() time.Time {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.lastRun.IsZero() || g.interval <= 0 {
		return time.Time{}
	}
	return g.lastRun.Add(g.interval)
}
