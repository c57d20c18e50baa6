package cache

import (
	"context"
	"errors"
	"sync"
)

// ErrMiss 键不存在
var ErrMiss = errors.New("cache: key not found")

// Store 单个会话的键值存储
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	// SetMany 写入多个键，保留其他键
	SetMany(ctx context.Context, entries map[string][]byte) error
	// Replace 用 entries 整体替换会话内容
	Replace(ctx context.Context, entries map[string][]byte) error
	Clear(ctx context.Context) error
}

// StoreFactory 按会话 ID 打开存储
type StoreFactory func(sessionID string) Store

// MemoryStore 进程内存储
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string][]byte
}

// NewMemoryStore 创建内存存储
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string][]byte)}
}

// MemoryFactory 每个会话一个独立的内存存储
func MemoryFactory(string) Store {
	return NewMemoryStore()
}

func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.entries[key]
	if !ok {
		return nil, ErrMiss
	}
	return append([]byte(nil), v...), nil
}

func (s *MemoryStore) SetMany(_ context.Context, entries map[string][]byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, v := range entries {
		s.entries[k] = append([]byte(nil), v...)
	}
	return nil
}

func (s *MemoryStore) Replace(_ context.Context, entries map[string][]byte) error {
	next := make(map[string][]byte, len(entries))
	for k, v := range entries {
		next[k] = append([]byte(nil), v...)
	}
	s.mu.Lock()
	s.entries = next
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Clear(_ context.Context) error {
	s.mu.Lock()
	s.entries = make(map[string][]byte)
	s.mu.Unlock()
	return nil
}

// Len 当前键数量
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Delete 删除单个键
func (s *MemoryStore) Delete(key string) {
	s.mu.Lock()
	delete(s.entries, key)
	s.mu.Unlock()
}
