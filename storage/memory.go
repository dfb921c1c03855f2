package storage

import (
	"context"
	"sync"
)

const subscriberBuffer = 32

// Memory is an in-process KV and Bus. It is the default backend and the
// fallback when nothing durable is configured.
type Memory struct {
	mu    sync.RWMutex
	items map[string]string
	subs  map[chan Change]struct{}
}

// NewMemory creates an empty in-process store.
func NewMemory() *Memory {
	return &Memory{
		items: make(map[string]string),
		subs:  make(map[chan Change]struct{}),
	}
}

func (m *Memory) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	v, ok := m.items[key]

	return v, ok, nil
}

func (m *Memory) Set(_ context.Context, key, value string) error {
	if key == "" {
		return ErrEmptyKey
	}

	m.mu.Lock()
	m.items[key] = value
	m.mu.Unlock()

	return nil
}

func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.items, key)
	m.mu.Unlock()

	return nil
}

// Publish delivers change to all subscribers. A subscriber whose buffer is
// full misses this change; every change carries a full snapshot, so the next
// one catches it up.
func (m *Memory) Publish(_ context.Context, change Change) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for ch := range m.subs {
		select {
		case ch <- change:
		default:
		}
	}

	return nil
}

func (m *Memory) Subscribe(ctx context.Context) (<-chan Change, error) {
	ch := make(chan Change, subscriberBuffer)

	m.mu.Lock()
	m.subs[ch] = struct{}{}
	m.mu.Unlock()

	go func() {
		<-ctx.Done()

		m.mu.Lock()
		delete(m.subs, ch)
		close(ch)
		m.mu.Unlock()
	}()

	return ch, nil
}

// Subscribers returns the number of live subscriptions.
func (m *Memory) Subscribers() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.subs)
}
