package handoff

import (
	"context"
	"fmt"
	"sync"
)

// MemoryStore is an in-process Store. Writes close the current notification channel so
// a waiting orchestrator resumes without sleeping out the poll interval.
type MemoryStore struct {
	mu      sync.Mutex
	port    int
	hasPort bool
	code    string
	hasCode bool
	changed chan struct{}
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{changed: make(chan struct{})}
}

// WritePort implements Store.
func (s *MemoryStore) WritePort(_ context.Context, port int) error {
	if port <= 0 || port > 65535 {
		return fmt.Errorf("handoff: invalid port %d", port)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.port, s.hasPort = port, true
	s.notifyLocked()
	return nil
}

// WriteCode implements Store.
func (s *MemoryStore) WriteCode(_ context.Context, code string) error {
	if code == "" {
		return fmt.Errorf("handoff: empty code")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.code, s.hasCode = code, true
	s.notifyLocked()
	return nil
}

// Port implements Store.
func (s *MemoryStore) Port(context.Context) (int, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.port, s.hasPort, nil
}

// Code implements Store.
func (s *MemoryStore) Code(context.Context) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.code, s.hasCode, nil
}

// Erase implements Store.
func (s *MemoryStore) Erase(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.port, s.hasPort = 0, false
	s.code, s.hasCode = "", false
	s.notifyLocked()
	return nil
}

// Changed implements Notifier.
func (s *MemoryStore) Changed() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.changed == nil {
		s.changed = make(chan struct{})
	}
	return s.changed
}

func (s *MemoryStore) notifyLocked() {
	if s.changed != nil {
		close(s.changed)
	}
	s.changed = make(chan struct{})
}
