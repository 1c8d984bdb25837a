package lock

import (
	"context"
	"sync"

	"github.com/melih/lighthouse-sandbox/internal/core/ports"
)

// Memory is an in-process SessionLocker. It only serializes requests handled
// by the same replica.
type Memory struct {
	mu   sync.Mutex
	held map[string]struct{}
}

var _ ports.SessionLocker = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{held: make(map[string]struct{})}
}

func (m *Memory) TryLock(_ context.Context, key string) (func(), error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.held[key]; ok {
		return nil, ports.ErrLocked
	}
	m.held[key] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.held, key)
			m.mu.Unlock()
		})
	}, nil
}
