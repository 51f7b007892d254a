package obs

import (
	"strconv"
	"sync"
	"sync/atomic"
	"time"
)

// TraceGenerator hands out trace IDs. An order keeps the same trace ID for
// every event it produces until it is released.
type TraceGenerator struct {
	next atomic.Uint64

	mu    sync.Mutex
	byKey map[string]string
}

// NewTraceGenerator returns a generator seeded with the given value.
func NewTraceGenerator(seed uint64) *TraceGenerator {
	if seed == 0 {
		seed = uint64(time.Now().UTC().UnixNano())
	}
	g := &TraceGenerator{byKey: make(map[string]string)}
	g.next.Store(seed)
	return g
}

// Next returns a fresh trace ID formatted as 16 hex digits.
func (g *TraceGenerator) Next() string {
	if g == nil {
		return ""
	}
	id := strconv.FormatUint(g.next.Add(1), 16)
	for len(id) < 16 {
		id = "0" + id
	}
	return id
}

// For returns the trace ID bound to key, allocating one on first use.
// An empty key always gets a fresh ID.
func (g *TraceGenerator) For(key string) string {
	if g == nil {
		return ""
	}
	if key == "" {
		return g.Next()
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if id, ok := g.byKey[key]; ok {
		return id
	}
	id := g.Next()
	g.byKey[key] = id
	return id
}

// Release drops the binding for key.
func (g *TraceGenerator) Release(key string) {
	if g == nil {
		return
	}
	g.mu.Lock()
	delete(g.byKey, key)
	g.mu.Unlock()
}
