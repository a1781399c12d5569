package cache

import (
	"context"
	"sync"
	"time"
)

type memoryItem struct {
	value     []byte
	expiresAt time.Time
}

// MemoryBackend is an in-process Backend for development and tests.
// Expired items are dropped lazily on read and swept periodically.
type MemoryBackend struct {
	mu    sync.Mutex
	items map[string]memoryItem

	stopOnce sync.Once
	done     chan struct{}

	now func() time.Time
}

// NewMemoryBackend creates an in-memory cache backend. Call Close to stop
// the background sweeper.
func NewMemoryBackend() *MemoryBackend {
	b := &MemoryBackend{
		items: make(map[string]memoryItem),
		done:  make(chan struct{}),
		now:   time.Now,
	}
	go b.sweep()
	return b
}

// Get returns the unexpired value for key.
func (b *MemoryBackend) Get(_ context.Context, key string) ([]byte, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	item, ok := b.items[key]
	if !ok {
		return nil, false, nil
	}
	if b.now().After(item.expiresAt) {
		delete(b.items, key)
		return nil, false, nil
	}
	return item.value, true, nil
}

// Set stores value under key for ttl.
func (b *MemoryBackend) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.items[key] = memoryItem{value: value, expiresAt: b.now().Add(ttl)}
	return nil
}

// Close stops the sweeper. Safe to call multiple times.
func (b *MemoryBackend) Close() error {
	b.stopOnce.Do(func() { close(b.done) })
	return nil
}

func (b *MemoryBackend) sweep() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-b.done:
			return
		case <-ticker.C:
			b.mu.Lock()
			now := b.now()
			for key, item := range b.items {
				if now.After(item.expiresAt) {
					delete(b.items, key)
				}
			}
			b.mu.Unlock()
		}
	}
}
