package store

import (
	"fmt"
	"sync"

	"github.com/dshills/trackdeck/internal/track"
)

// Mem is an in-memory Store for tests and ephemeral sessions.
type Mem struct {
	mu     sync.Mutex
	docs   map[string]*track.File
	log    map[int]Entry
	cursor int
}

// NewMem returns an empty in-memory store.
func NewMem() *Mem {
	return &Mem{
		docs:   make(map[string]*track.File),
		log:    make(map[int]Entry),
		cursor: NoCursor,
	}
}

// Apply implements Store. The whole batch commits under one lock hold, so
// readers never observe a torn group.
func (m *Mem) Apply(b *Batch) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, f := range b.putDocs {
		m.docs[f.ID] = f.Clone()
	}
	for _, id := range b.deleteDocs {
		delete(m.docs, id)
	}
	for _, r := range b.deletes {
		for i := r.Min; i < r.Max; i++ {
			delete(m.log, i)
		}
	}
	for _, e := range b.appends {
		m.log[e.Index] = e
	}
	if b.cursor != nil {
		m.cursor = *b.cursor
	}
	return nil
}

// Snapshots implements Store.
func (m *Mem) Snapshots() (map[string]*track.File, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[string]*track.File, len(m.docs))
	for id, f := range m.docs {
		out[id] = f.Clone()
	}
	return out, nil
}

// LogEntry implements Store.
func (m *Mem) LogEntry(index int) (Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.log[index]
	if !ok {
		return Entry{}, fmt.Errorf("%w: log entry %d", ErrNotFound, index)
	}
	return e, nil
}

// RangeKeys implements Store.
func (m *Mem) RangeKeys() (Range, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return logRange(m.log), nil
}

// ReadCursor implements Store.
func (m *Mem) ReadCursor() (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cursor, nil
}

// logRange derives [min, max) from the stored keys. Entries always form a
// contiguous range; only the bounds matter.
func logRange(log map[int]Entry) Range {
	if len(log) == 0 {
		return Range{}
	}
	first := true
	var r Range
	for i := range log {
		if first {
			r = Range{Min: i, Max: i + 1}
			first = false
			continue
		}
		if i < r.Min {
			r.Min = i
		}
		if i+1 > r.Max {
			r.Max = i + 1
		}
	}
	return r
}
