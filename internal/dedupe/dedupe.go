// Package dedupe remembers which jobs were already delivered successfully.
// Exactly-once delivery is best effort: a key is marked only after its job
// succeeded, so a crash between the two lets the job run again.
package dedupe

import (
	"context"
	"sync"
)

type Store interface {
	Seen(ctx context.Context, key string) (bool, error)
	Mark(ctx context.Context, key string) error
}

// Memory is a capacity-bounded set. Once full, marking a new key evicts the
// oldest one.
type Memory struct {
	mu       sync.Mutex
	capacity int
	ring     []string
	next     int
	keys     map[string]struct{}
}

func NewMemory(capacity int) *Memory {
	if capacity < 1 {
		capacity = 1
	}
	return &Memory{
		capacity: capacity,
		ring:     make([]string, capacity),
		keys:     make(map[string]struct{}, capacity),
	}
}

func (m *Memory) Seen(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.keys[key]
	return ok, nil
}

func (m *Memory) Mark(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.keys[key]; ok {
		return nil
	}
	if len(m.keys) == m.capacity {
		delete(m.keys, m.ring[m.next])
	}
	m.ring[m.next] = key
	m.next = (m.next + 1) % m.capacity
	m.keys[key] = struct{}{}
	return nil
}

func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.keys)
}
