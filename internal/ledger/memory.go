package ledger

import (
	"context"
	"fmt"
	"sync"

	"github.com/funnet/funnet-server/internal/progress"
)

// MemoryStore is an in-memory Store implementation for tests and local
// runs. Completion records go through the supplied progress store so both
// stay consistent, mirroring the single-transaction behavior of the
// postgres store under one mutex.
type MemoryStore struct {
	mu          sync.Mutex
	profiles    map[string]*Profile
	completions progress.Store
	levelStep   int
}

// NewMemoryStore creates an in-memory ledger recording completions in
// completions.
func NewMemoryStore(completions progress.Store, levelStep int) *MemoryStore {
	if levelStep <= 0 {
		levelStep = DefaultLevelStep
	}
	return &MemoryStore{
		profiles:    make(map[string]*Profile),
		completions: completions,
		levelStep:   levelStep,
	}
}

func (s *MemoryStore) Profile(ctx context.Context, userID string) (Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.profileLocked(userID), nil
}

// SetDisplayName sets the profile display name, creating the profile if
// needed.
func (s *MemoryStore) SetDisplayName(userID, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profileLocked(userID).DisplayName = name
}

// SeedProfile replaces a profile wholesale. Test hook.
func (s *MemoryStore) SeedProfile(p Profile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := p
	s.profiles[p.UserID] = &cp
}

func (s *MemoryStore) profileLocked(userID string) *Profile {
	p, ok := s.profiles[userID]
	if !ok {
		p = &Profile{UserID: userID, CurrentLevel: 1}
		s.profiles[userID] = p
	}
	return p
}

func (s *MemoryStore) CompleteLesson(ctx context.Context, userID, lessonID string, award int) (LessonReward, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	already, err := s.completions.RecordLessonCompletion(ctx, userID, lessonID)
	if err != nil {
		return LessonReward{}, fmt.Errorf("record lesson completion: %w", err)
	}
	if already {
		return LessonReward{}, ErrAlreadyCompleted
	}

	p := s.profileLocked(userID)
	newXP, newLevel := applyAward(p.CurrentXP, p.CurrentLevel, award, s.levelStep)
	reward := LessonReward{
		Awarded:   award,
		NewXP:     newXP,
		NewLevel:  newLevel,
		LeveledUp: newLevel > p.CurrentLevel,
	}
	p.CurrentXP = newXP
	p.CurrentLevel = newLevel
	p.TotalXPEarned += award
	p.LessonsCompleted++

	return reward, nil
}

func (s *MemoryStore) CompleteNode(ctx context.Context, userID, nodeID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	already, err := s.completions.RecordNodeCompletion(ctx, userID, nodeID)
	if err != nil {
		return false, fmt.Errorf("record node completion: %w", err)
	}
	if already {
		return true, nil
	}

	s.profileLocked(userID).NodesCompleted++
	return false, nil
}
