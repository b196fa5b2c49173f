package cache

import (
	"context"
	"sync"
	"time"

	"github.com/iWorld-y/bazi_agent/app/bazi_agent/pkg/model"
)

type memEntry struct {
	ds        model.FortuneDataset
	expiresAt time.Time
}

// MemoryStore 进程内存储。ttl 为 0 时条目在进程生命周期内有效。
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]memEntry
	ttl     time.Duration
	now     func() time.Time
}

// NewMemoryStore 创建内存存储
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]memEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

func (s *MemoryStore) expired(e memEntry) bool {
	return !e.expiresAt.IsZero() && !s.now().Before(e.expiresAt)
}

// Get 读取条目，过期条目视为未命中
func (s *MemoryStore) Get(_ context.Context, key string) (model.FortuneDataset, bool, error) {
	s.mu.RLock()
	e, ok := s.entries[key]
	s.mu.RUnlock()
	if !ok {
		return model.FortuneDataset{}, false, nil
	}
	if s.expired(e) {
		s.mu.Lock()
		if cur, ok := s.entries[key]; ok && s.expired(cur) {
			delete(s.entries, key)
		}
		s.mu.Unlock()
		return model.FortuneDataset{}, false, nil
	}
	return e.ds, true, nil
}

// Set 写入条目
func (s *MemoryStore) Set(_ context.Context, key string, ds model.FortuneDataset) error {
	e := memEntry{ds: ds}
	if s.ttl > 0 {
		e.expiresAt = s.now().Add(s.ttl)
	}
	s.mu.Lock()
	s.entries[key] = e
	s.mu.Unlock()
	return nil
}

// Keys 返回未过期的 key
func (s *MemoryStore) Keys(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.entries))
	for k, e := range s.entries {
		if s.expired(e) {
			continue
		}
		keys = append(keys, k)
	}
	return keys, nil
}
