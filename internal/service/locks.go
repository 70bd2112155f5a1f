package service

import (
	"sync"

	"github.com/google/uuid"
)

// Locks serializes mutations per tournament. Reads share the lock so they never observe a half-built stage.
type Locks struct {
	mu   sync.Mutex
	byID map[uuid.UUID]*sync.RWMutex
}

func NewLocks() *Locks {
	return &Locks{byID: make(map[uuid.UUID]*sync.RWMutex)}
}

func (l *Locks) get(id uuid.UUID) *sync.RWMutex {
	l.mu.Lock()
	defer l.mu.Unlock()

	m, ok := l.byID[id]
	if !ok {
		m = &sync.RWMutex{}
		l.byID[id] = m
	}
	return m
}

// Lock takes the write lock of a tournament and returns its release func.
func (l *Locks) Lock(id uuid.UUID) func() {
	m := l.get(id)
	m.Lock()
	return m.Unlock
}

func (l *Locks) RLock(id uuid.UUID) func() {
	m := l.get(id)
	m.RLock()
	return m.RUnlock
}
