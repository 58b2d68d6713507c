package progress

import (
	"context"
	"sync"
)

// Store persists lesson and node completions. Record operations are
// idempotent: recording an existing completion reports alreadyCompleted
// true and is not an error.
type Store interface {
	Snapshot(ctx context.Context, userID string) (Snapshot, error)
	RecordLessonCompletion(ctx context.Context, userID, lessonID string) (alreadyCompleted bool, err error)
	RecordNodeCompletion(ctx context.Context, userID, nodeID string) (alreadyCompleted bool, err error)
}

// MemoryStore is an in-memory Store implementation.
type MemoryStore struct {
	mu      sync.RWMutex
	lessons map[string]map[string]bool // userID -> lessonID set
	nodes   map[string]map[string]bool // userID -> nodeID set
}

// NewMemoryStore creates a new in-memory progress store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		lessons: make(map[string]map[string]bool),
		nodes:   make(map[string]map[string]bool),
	}
}

func (s *MemoryStore) Snapshot(ctx context.Context, userID string) (Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := NewSnapshot()
	for id := range s.lessons[userID] {
		snap.CompletedLessons[id] = true
	}
	for id := range s.nodes[userID] {
		snap.CompletedNodes[id] = true
	}
	return snap, nil
}

func (s *MemoryStore) RecordLessonCompletion(ctx context.Context, userID, lessonID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.lessons[userID] == nil {
		s.lessons[userID] = make(map[string]bool)
	}
	if s.lessons[userID][lessonID] {
		return true, nil
	}
	s.lessons[userID][lessonID] = true
	return false, nil
}

func (s *MemoryStore) RecordNodeCompletion(ctx context.Context, userID, nodeID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.nodes[userID] == nil {
		s.nodes[userID] = make(map[string]bool)
	}
	if s.nodes[userID][nodeID] {
		return true, nil
	}
	s.nodes[userID][nodeID] = true
	return false, nil
}
