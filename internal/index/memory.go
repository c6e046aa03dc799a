package index

import (
	"context"
	"sync"

	"github.com/Borislavv/go-ash-imgcache/model"
)

// Memory is a process-local index. It does not survive restarts.
type Memory struct {
	mu      sync.Mutex
	entries map[string]model.Entry
}

func NewMemory() *Memory {
	return &Memory{entries: make(map[string]model.Entry)}
}

func (m *Memory) Load(context.Context) ([]model.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Entry, 0, len(m.entries))
	for _, e := range m.entries {
		out = append(out, e)
	}
	return out, nil
}

func (m *Memory) Put(_ context.Context, e model.Entry) error {
	m.mu.Lock()
	m.entries[e.Key] = e
	m.mu.Unlock()
	return nil
}

func (m *Memory) Touch(_ context.Context, e model.Entry) error {
	m.mu.Lock()
	if live, ok := m.entries[e.Key]; ok {
		m.entries[e.Key], _ = touched(live, e)
	}
	m.mu.Unlock()
	return nil
}

func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.entries, key)
	m.mu.Unlock()
	return nil
}

func (m *Memory) Clear(context.Context) error {
	m.mu.Lock()
	clear(m.entries)
	m.mu.Unlock()
	return nil
}

func (m *Memory) Flush(context.Context) error { return nil }
func (m *Memory) Close() error                { return nil }
