package persist

import (
	"sync"

	"github.com/justmebob123/autonomy-sub001/bus"
)

// Memory is an in-process archive. It stores copies in arrival order and
// is safe for concurrent use. Useful as a test double and for
// single-process runs that only need the archive for their own lifetime.
type Memory struct {
	mu     sync.RWMutex
	msgs   []*bus.Message
	byID   map[string]*bus.Message
	closed bool
}

// NewMemory creates an empty in-memory archive.
func NewMemory() *Memory {
	return &Memory{byID: make(map[string]*bus.Message)}
}

// Persist stores a copy of the message. Implements bus.Persister.
func (m *Memory) Persist(msg *bus.Message) error {
	if msg == nil {
		return bus.ErrNilMessage
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	c := msg.Clone()
	m.msgs = append(m.msgs, c)
	m.byID[c.ID] = c
	return nil
}

// Messages returns copies of every stored message in arrival order.
func (m *Memory) Messages() []*bus.Message {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*bus.Message, len(m.msgs))
	for i, msg := range m.msgs {
		out[i] = msg.Clone()
	}
	return out
}

// Len returns the number of stored messages.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.msgs)
}

// Get returns a copy of the message with the given ID, or ErrNotFound.
func (m *Memory) Get(id string) (*bus.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}
	msg, ok := m.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return msg.Clone(), nil
}

// Close marks the archive closed. Subsequent writes return ErrClosed.
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
