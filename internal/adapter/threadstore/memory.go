package threadstore

import (
	"context"
	"slices"
	"sync"

	"coral-agents/internal/domain"
)

// Memory is a process-lifetime ThreadStore. Each thread has its own lock;
// the store lock only guards the thread index, so appends to different
// threads never wait on each other. Threads are never evicted.
type Memory struct {
	mu      sync.RWMutex
	threads map[string]*memThread
}

type memThread struct {
	mu   sync.Mutex
	msgs []domain.Message
}

var _ domain.ThreadStore = (*Memory)(nil)

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{threads: make(map[string]*memThread)}
}

func (m *Memory) Name() string { return "memory" }

// lookup returns the thread for id, creating it when create is set.
func (m *Memory) lookup(id string, create bool) *memThread {
	m.mu.RLock()
	t, ok := m.threads[id]
	m.mu.RUnlock()
	if ok || !create {
		return t
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok = m.threads[id]; !ok {
		t = &memThread{}
		m.threads[id] = t
	}
	return t
}

// Append adds msg to the end of threadID's log.
func (m *Memory) Append(_ context.Context, threadID string, msg domain.Message) error {
	t := m.lookup(threadID, true)
	t.mu.Lock()
	t.msgs = append(t.msgs, msg)
	t.mu.Unlock()
	return nil
}

// Thread returns a copy of threadID's log, or an empty slice.
func (m *Memory) Thread(_ context.Context, threadID string) ([]domain.Message, error) {
	t := m.lookup(threadID, false)
	if t == nil {
		return []domain.Message{}, nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return slices.Clone(t.msgs), nil
}

// Threads returns the known thread IDs in sorted order.
func (m *Memory) Threads(_ context.Context) ([]string, error) {
	m.mu.RLock()
	ids := make([]string, 0, len(m.threads))
	for id := range m.threads {
		ids = append(ids, id)
	}
	m.mu.RUnlock()
	slices.Sort(ids)
	return ids, nil
}

func (m *Memory) Stats(_ context.Context) (domain.ThreadStats, error) {
	m.mu.RLock()
	threads := make([]*memThread, 0, len(m.threads))
	for _, t := range m.threads {
		threads = append(threads, t)
	}
	m.mu.RUnlock()

	stats := domain.ThreadStats{Threads: len(threads)}
	for _, t := range threads {
		t.mu.Lock()
		stats.Messages += len(t.msgs)
		t.mu.Unlock()
	}
	return stats, nil
}
