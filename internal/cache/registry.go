package cache

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/langchou/tripdash/internal/metrics"
)

type registryEntry struct {
	cache    *Cache
	lastSeen time.Time
}

// Registry 按会话 ID 管理缓存
type Registry struct {
	mu      sync.Mutex
	open    StoreFactory
	ttl     time.Duration
	logger  *zap.Logger
	metrics *metrics.Metrics
	entries map[string]*registryEntry
}

// NewRegistry 创建会话缓存注册表
func NewRegistry(open StoreFactory, ttl time.Duration, logger *zap.Logger, m *metrics.Metrics) *Registry {
	if open == nil {
		open = MemoryFactory
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		open:    open,
		ttl:     ttl,
		logger:  logger,
		metrics: m,
		entries: make(map[string]*registryEntry),
	}
}

// Get 返回会话对应的缓存，不存在时创建
func (r *Registry) Get(sessionID string, now time.Time) *Cache {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.entries[sessionID]
	if !ok {
		store := r.open(sessionID)
		entry = &registryEntry{
			cache: New(store, r.ttl, r.logger.With(zap.String("session", sessionID)), r.metrics),
		}
		r.entries[sessionID] = entry
	}
	entry.lastSeen = now
	return entry.cache
}

// Drop 清空并移除会话缓存
func (r *Registry) Drop(ctx context.Context, sessionID string) error {
	r.mu.Lock()
	entry, ok := r.entries[sessionID]
	delete(r.entries, sessionID)
	r.mu.Unlock()

	if ok {
		return entry.cache.Clear(ctx)
	}
	return r.open(sessionID).Clear(ctx)
}

// Sweep 移除超过 idle 未访问的会话，返回移除数量
//
// 只释放本进程持有的句柄，外部存储依赖自身的过期时间
func (r *Registry) Sweep(now time.Time, idle time.Duration) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for id, entry := range r.entries {
		if now.Sub(entry.lastSeen) >= idle {
			delete(r.entries, id)
			removed++
		}
	}
	if removed > 0 {
		r.logger.Debug("Swept idle session caches", zap.Int("count", removed))
	}
	return removed
}

// Len 当前持有的会话数
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Run 周期性清理空闲会话，直到 ctx 结束
func (r *Registry) Run(ctx context.Context, interval, idle time.Duration, now func() time.Time) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep(now(), idle)
		}
	}
}
