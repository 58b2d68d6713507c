// Package ledger implements the reward accounting for lesson and node
// completions: XP awards, leveling, completion counters. All mutations are
// atomic per user; a completion record and its reward always commit
// together or not at all.
package ledger

import (
	"context"
	"errors"
	"log/slog"
)

// ErrAlreadyCompleted reports a duplicate completion attempt. It is a
// benign outcome, not a failure: no reward is applied twice.
var ErrAlreadyCompleted = errors.New("already completed")

// DefaultLevelStep is the XP multiplier for level thresholds: clearing
// level n takes n * DefaultLevelStep XP.
const DefaultLevelStep = 50

// Profile is a user's reward state. Created lazily with level 1 and 0 XP.
type Profile struct {
	UserID           string `json:"userId"`
	DisplayName      string `json:"displayName"`
	CurrentXP        int    `json:"currentXp"`
	CurrentLevel     int    `json:"currentLevel"`
	TotalXPEarned    int    `json:"totalXpEarned"`
	LessonsCompleted int    `json:"lessonsCompleted"`
	NodesCompleted   int    `json:"nodesCompleted"`
}

// LessonReward is the outcome of a successful lesson completion.
type LessonReward struct {
	Awarded   int  `json:"awarded"`
	NewXP     int  `json:"newXp"`
	NewLevel  int  `json:"newLevel"`
	LeveledUp bool `json:"leveledUp"`
}

// Store persists profiles and applies completion transactions.
// CompleteLesson returns ErrAlreadyCompleted without mutating anything
// when the lesson is already recorded; CompleteNode treats duplicates as a
// no-op success and reports them via the bool.
type Store interface {
	Profile(ctx context.Context, userID string) (Profile, error)
	CompleteLesson(ctx context.Context, userID, lessonID string, award int) (LessonReward, error)
	CompleteNode(ctx context.Context, userID, nodeID string) (alreadyCompleted bool, err error)
}

// applyAward adds XP to a profile and resolves level-ups. The loop handles
// awards large enough to clear several levels at once. Invariant on
// return: 0 <= xp < level*step.
func applyAward(xp, level, award, step int) (newXP, newLevel int) {
	newXP = xp + award
	newLevel = level
	for newXP >= newLevel*step {
		newXP -= newLevel * step
		newLevel++
	}
	return newXP, newLevel
}

// Listener observes committed reward transactions. Listener failures never
// affect the committed transaction.
type Listener interface {
	LessonCompleted(ctx context.Context, userID, lessonID string, reward LessonReward)
	NodeCompleted(ctx context.Context, userID, nodeID string)
}

// Service is the reward ledger facade: it runs completion transactions
// through the store and fans out committed results to listeners.
type Service struct {
	store     Store
	lessonXP  int
	listeners []Listener
}

// NewService creates a ledger service awarding lessonXP per lesson.
func NewService(store Store, lessonXP int) *Service {
	return &Service{store: store, lessonXP: lessonXP}
}

// Subscribe registers a listener for committed completions. Not safe for
// concurrent use with Complete calls; subscribe during wiring.
func (s *Service) Subscribe(l Listener) {
	s.listeners = append(s.listeners, l)
}

// Profile returns the user's profile, creating it on first access.
func (s *Service) Profile(ctx context.Context, userID string) (Profile, error) {
	return s.store.Profile(ctx, userID)
}

// CompleteLesson records a lesson completion and awards XP in one
// transaction. A duplicate returns ErrAlreadyCompleted and awards nothing.
func (s *Service) CompleteLesson(ctx context.Context, userID, lessonID string) (LessonReward, error) {
	reward, err := s.store.CompleteLesson(ctx, userID, lessonID, s.lessonXP)
	if err != nil {
		return LessonReward{}, err
	}

	slog.Info("lesson completed",
		"user_id", userID,
		"lesson_id", lessonID,
		"awarded", reward.Awarded,
		"new_level", reward.NewLevel,
		"leveled_up", reward.LeveledUp,
	)
	for _, l := range s.listeners {
		l.LessonCompleted(ctx, userID, lessonID, reward)
	}
	return reward, nil
}

// CompleteNode records a node completion and bumps the node counter.
// Duplicates are a no-op success reported through the bool, so callers can
// attach one-time effects (such as checkpoint rewards) to the fresh insert
// only.
func (s *Service) CompleteNode(ctx context.Context, userID, nodeID string) (alreadyCompleted bool, err error) {
	already, err := s.store.CompleteNode(ctx, userID, nodeID)
	if err != nil {
		return false, err
	}
	if already {
		return true, nil
	}

	slog.Info("node completed", "user_id", userID, "node_id", nodeID)
	for _, l := range s.listeners {
		l.NodeCompleted(ctx, userID, nodeID)
	}
	return false, nil
}
