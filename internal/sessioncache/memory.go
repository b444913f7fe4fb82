package sessioncache

import (
	"container/list"
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/Skufu/triage/internal/session"
)

const defaultCapacity = 256

// ErrNotFound aliases session.ErrNotFound so callers can match either.
var ErrNotFound = session.ErrNotFound

// Memory is an LRU of recent sessions, used when no Redis is configured.
type Memory struct {
	mu       sync.Mutex
	ll       *list.List
	byID     map[uuid.UUID]*list.Element
	capacity int
}

// NewMemory returns an LRU holding at most capacity sessions. If
// capacity <= 0, a default of 256 is used.
func NewMemory(capacity int) *Memory {
	if capacity <= 0 {
		capacity = defaultCapacity
	}
	return &Memory{
		ll:       list.New(),
		byID:     make(map[uuid.UUID]*list.Element),
		capacity: capacity,
	}
}

func (m *Memory) Put(_ context.Context, s *session.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ele, ok := m.byID[s.ID]; ok {
		m.ll.MoveToFront(ele)
		ele.Value = s
		return nil
	}
	m.byID[s.ID] = m.ll.PushFront(s)
	if m.ll.Len() > m.capacity {
		// evict least recently used
		if tail := m.ll.Back(); tail != nil {
			delete(m.byID, tail.Value.(*session.Session).ID)
			m.ll.Remove(tail)
		}
	}
	return nil
}

func (m *Memory) Get(_ context.Context, id uuid.UUID) (*session.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ele, ok := m.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	m.ll.MoveToFront(ele)
	return ele.Value.(*session.Session), nil
}

func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ll.Len()
}
