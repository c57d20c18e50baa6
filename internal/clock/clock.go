// Package clock 时间抽象，便于测试缓存新鲜度等依赖当前时间的逻辑
package clock

import (
	"sync"
	"time"
)

// Clock 时间来源
type Clock interface {
	Now() time.Time
}

// Real 系统时间
type Real struct{}

// Now 返回当前系统时间
func (Real) Now() time.Time {
	return time.Now()
}

// Mock 可控时间，并发安全
type Mock struct {
	mu  sync.Mutex
	now time.Time
}

// NewMock 创建固定在 t 的时钟
func NewMock(t time.Time) *Mock {
	return &Mock{now: t}
}

// Now 返回当前模拟时间
func (m *Mock) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Set 设置模拟时间
func (m *Mock) Set(t time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = t
}

// Advance 推进模拟时间，d 可以为负
func (m *Mock) Advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = m.now.Add(d)
}
