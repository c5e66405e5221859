// Package buffercache keeps binary payloads on the host side of the sandbox
// boundary. Guest code only ever sees a Handle; the bytes stay here until a
// consumer looks them up by id.
package buffercache

import (
	"sync"

	"github.com/google/uuid"

	"connkit/internal/jsvmerr"
)

// Handle identifies a cached payload.
type Handle struct {
	ID    string `json:"id"`
	Bytes int    `json:"bytes"`
}

// Stats describes the current contents of a Store.
type Stats struct {
	Entries int
	Bytes   int64
}

// Store maps opaque ids to binary payloads. Entries are never evicted.
type Store interface {
	// Put stores a copy of data under a freshly generated id.
	Put(data []byte) (Handle, error)
	// Get returns the payload for id or jsvmerr.ErrBufferNotFound.
	Get(id string) ([]byte, error)
	// Stats reports entry count and total payload size.
	Stats() (Stats, error)
	// Close releases the store's resources.
	Close() error
}

// newID returns a fresh buffer identifier.
func newID() string {
	return uuid.NewString()
}

// Memory is a process-local Store. Dropping the value drops every payload.
type Memory struct {
	mu      sync.RWMutex
	entries map[string][]byte
	total   int64
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{entries: make(map[string][]byte)}
}

// Put implements Store.
func (m *Memory) Put(data []byte) (Handle, error) {
	buf := make([]byte, len(data))
	copy(buf, data)

	id := newID()
	m.mu.Lock()
	m.entries[id] = buf
	m.total += int64(len(buf))
	m.mu.Unlock()

	return Handle{ID: id, Bytes: len(buf)}, nil
}

// Get implements Store.
func (m *Memory) Get(id string) ([]byte, error) {
	m.mu.RLock()
	buf, ok := m.entries[id]
	m.mu.RUnlock()
	if !ok {
		return nil, jsvmerr.ErrBufferNotFound
	}

	out := make([]byte, len(buf))
	copy(out, buf)
	return out, nil
}

// Stats implements Store.
func (m *Memory) Stats() (Stats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Stats{Entries: len(m.entries), Bytes: m.total}, nil
}

// Close implements Store. The memory store drops all entries.
func (m *Memory) Close() error {
	m.mu.Lock()
	m.entries = make(map[string][]byte)
	m.total = 0
	m.mu.Unlock()
	return nil
}
