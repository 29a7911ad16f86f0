package orchestrator

import (
	"sort"
	"strings"
	"sync"
	"time"
)

// DatasetHealth is the readiness side-channel for one (league, dataset)
// pair: what last worked, what last failed and whether callers are being
// served stale data. Monitoring reads it; the query path never does.
type DatasetHealth struct {
	League        string    `json:"league"`
	Dataset       string    `json:"dataset"`
	LastMethod    string    `json:"last_method,omitempty"`
	LastSuccess   time.Time `json:"last_success,omitempty"`
	LastErrorKind string    `json:"last_error_kind,omitempty"`
	LastError     string    `json:"last_error,omitempty"`
	Stale         bool      `json:"stale"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Health tracks per-pair fetch outcomes. Safe for concurrent use.
type Health struct {
	mu  sync.RWMutex
	m   map[string]*DatasetHealth
	now func() time.Time
}

// NewHealth creates an empty health registry.
func NewHealth() *Health {
	return &Health{m: make(map[string]*DatasetHealth), now: time.Now}
}

func healthKey(league, dataset string) string {
	return strings.ToUpper(league) + "/" + strings.ToLower(dataset)
}

func (h *Health) entry(league, dataset string) *DatasetHealth {
	k := healthKey(league, dataset)
	e, ok := h.m[k]
	if !ok {
		e = &DatasetHealth{League: strings.ToUpper(league), Dataset: strings.ToLower(dataset)}
		h.m[k] = e
	}
	return e
}

// RecordSuccess notes a fetch (or stale serve) that satisfied a request.
func (h *Health) RecordSuccess(league, dataset, method string, stale bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	e := h.entry(league, dataset)
	e.LastMethod = method
	e.Stale = stale
	if !stale {
		e.LastSuccess = h.now()
		e.LastErrorKind = ""
		e.LastError = ""
	}
	e.UpdatedAt = h.now()
}

// RecordFailure notes a request that no method could satisfy.
func (h *Health) RecordFailure(league, dataset, kind, msg string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	e := h.entry(league, dataset)
	e.LastErrorKind = kind
	e.LastError = msg
	e.UpdatedAt = h.now()
}

// For returns the health record for one pair.
func (h *Health) For(league, dataset string) (DatasetHealth, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	e, ok := h.m[healthKey(league, dataset)]
	if !ok {
		return DatasetHealth{}, false
	}
	return *e, true
}

// Snapshot returns all records ordered by league then dataset.
func (h *Health) Snapshot() []DatasetHealth {
	h.mu.RLock()
	out := make([]DatasetHealth, 0, len(h.m))
	for _, e := range h.m {
		out = append(out, *e)
	}
	h.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].League != out[j].League {
			return out[i].League < out[j].League
		}
		return out[i].Dataset < out[j].Dataset
	})
	return out
}
