package registry

import (
	"sync"

	"github.com/Carmen-Shannon/hexfab/engine/id"
)

// ErrorRecord is one user-visible error: a message key from ErrIds plus
// its formatting arguments.
type ErrorRecord struct {
	Id   id.Id
	Args []string
}

// ErrorManager queues user-visible errors for the GUI layer to drain and
// display. Safe for concurrent use; the simulation pushes, the GUI pops.
type ErrorManager struct {
	mu    sync.Mutex
	queue []ErrorRecord
}

// Push appends an error record.
func (m *ErrorManager) Push(errId id.Id, args ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queue = append(m.queue, ErrorRecord{Id: errId, Args: args})
}

// Pop removes and returns the oldest record, reporting whether one
// existed.
func (m *ErrorManager) Pop() (ErrorRecord, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.queue) == 0 {
		return ErrorRecord{}, false
	}
	rec := m.queue[0]
	m.queue = m.queue[1:]
	return rec, true
}

// Peek returns the oldest record without removing it.
func (m *ErrorManager) Peek() (ErrorRecord, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.queue) == 0 {
		return ErrorRecord{}, false
	}
	return m.queue[0], true
}

// Len returns the number of queued records.
func (m *ErrorManager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queue)
}
