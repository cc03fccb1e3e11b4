// Package ratelimit 对x/time/rate的简单封装，带名称便于日志和指标
package ratelimit

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

// Limiter 命名的令牌桶限流器
type Limiter struct {
	limiter *rate.Limiter
	name    string
}

// New 每秒rps个请求，突发容量等于rps；rps<=0表示不限流
func New(name string, rps float64) *Limiter {
	burst := int(rps)
	if burst < 1 {
		burst = 1
	}
	limit := rate.Limit(rps)
	if rps <= 0 {
		limit = rate.Inf
	}
	return &Limiter{limiter: rate.NewLimiter(limit, burst), name: name}
}

// Wait 阻塞直到可以发起请求，ctx取消时返回错误
func (l *Limiter) Wait(ctx context.Context) error {
	if err := l.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait for %s: %w", l.name, err)
	}
	return nil
}

// Allow 非阻塞判断
func (l *Limiter) Allow() bool {
	return l.limiter.Allow()
}

// Name 限流器名称
func (l *Limiter) Name() string {
	return l.name
}
