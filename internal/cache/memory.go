package cache

import (
	"strings"
	"sync"
)

// memoryTier keeps decoded entries keyed by signature. It exists purely to
// skip re-reading and re-decoding durable partitions inside one process
// lifetime; the durable tier remains authoritative.
type memoryTier struct {
	mu      sync.RWMutex
	entries map[string]*Entry
}

func newMemoryTier() *memoryTier {
	return &memoryTier{entries: make(map[string]*Entry)}
}

func (m *memoryTier) get(signature string) (*Entry, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[signature]
	return e, ok
}

func (m *memoryTier) put(e *Entry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[e.Key.Signature] = e
}

func (m *memoryTier) remove(signature string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, signature)
}

func (m *memoryTier) removePrefix(league, dataset string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for sig, e := range m.entries {
		if strings.EqualFold(e.Key.League, league) && (dataset == "" || strings.EqualFold(e.Key.Dataset, dataset)) {
			delete(m.entries, sig)
		}
	}
}
