// Package player runs a single lesson attempt as a state machine over the
// lesson's questions. Sessions are local and ephemeral: nothing is
// persisted until the final question is answered and Continue commits the
// completion effects. Abandoning a session mid-lesson writes nothing.
package player

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/funnet/funnet-server/internal/content"
	"github.com/funnet/funnet-server/internal/economy"
	"github.com/funnet/funnet-server/internal/ledger"
	"github.com/funnet/funnet-server/internal/progress"
)

// State is the session's position in the answer/check/continue loop.
type State string

const (
	StateAnswering State = "answering"
	StateCorrect   State = "correct"
	StateIncorrect State = "incorrect"
	StateCompleted State = "completed"
)

var (
	// ErrUnknownQuestionKind reports a question variant the player cannot
	// grade. The session state is left unchanged.
	ErrUnknownQuestionKind = errors.New("unknown question kind")

	// ErrInvalidTransition reports a call that the current state does not
	// allow, such as Check outside StateAnswering.
	ErrInvalidTransition = errors.New("invalid session transition")
)

// Rewards applies the persistent effects of a finished lesson.
// ledger.Service satisfies it.
type Rewards interface {
	CompleteLesson(ctx context.Context, userID, lessonID string) (ledger.LessonReward, error)
	CompleteNode(ctx context.Context, userID, nodeID string) (alreadyCompleted bool, err error)
}

// SnapshotReader reads a user's completion snapshot.
type SnapshotReader interface {
	Snapshot(ctx context.Context, userID string) (progress.Snapshot, error)
}

// GemCrediter grants gem rewards; nil disables checkpoint rewards.
// economy.Service satisfies it.
type GemCrediter interface {
	Credit(ctx context.Context, userID string, amount int, reason string) (economy.Balance, error)
}

// Deps are the collaborators a session commits completion effects through.
type Deps struct {
	Rewards  Rewards
	Progress SnapshotReader
	Gems     GemCrediter
}

// Outcome is returned by the Continue that finishes the lesson.
type Outcome struct {
	Completed        bool                `json:"completed"`
	Reward           ledger.LessonReward `json:"reward"`
	AlreadyCompleted bool                `json:"alreadyCompleted"`
	NodeCompleted    bool                `json:"nodeCompleted"`
}

// Session steps one user through one lesson. Not safe for concurrent use;
// each attempt gets its own session.
type Session struct {
	userID string
	lesson content.LessonContent
	node   content.LearningNode
	deps   Deps

	state State
	index int

	// Current-question answer buffers. Exactly one is meaningful for a
	// given question kind; Retry and advancing both reset them.
	answer   string
	ordering []string
	matches  map[string]string
}

// NewSession starts a session at the lesson's first question. The node is
// the learning node owning the lesson; its completion is checked after the
// lesson commits.
func NewSession(userID string, lesson content.LessonContent, node content.LearningNode, deps Deps) (*Session, error) {
	if len(lesson.Questions) == 0 {
		return nil, fmt.Errorf("lesson %s has no questions", lesson.LessonID)
	}
	if deps.Rewards == nil || deps.Progress == nil {
		return nil, fmt.Errorf("session for lesson %s: missing collaborators", lesson.LessonID)
	}

	s := &Session{
		userID: userID,
		lesson: lesson,
		node:   node,
		deps:   deps,
		state:  StateAnswering,
	}
	s.resetBuffers()
	return s, nil
}

// State returns the current session state.
func (s *Session) State() State { return s.state }

// Index returns the zero-based position of the current question.
func (s *Session) Index() int { return s.index }

// Total returns the number of questions in the lesson.
func (s *Session) Total() int { return len(s.lesson.Questions) }

// Question returns the question currently being answered.
func (s *Session) Question() content.Question {
	return s.lesson.Questions[s.index]
}

func (s *Session) resetBuffers() {
	s.answer = ""
	s.matches = make(map[string]string)

	q := s.Question()
	if q.Kind == content.QuestionOrder {
		// Items arrive pre-scrambled relative to the answer; the buffer
		// starts in presentation order.
		s.ordering = append([]string(nil), q.Items...)
	} else {
		s.ordering = nil
	}
}

// SetAnswer records a scalar answer for MCQ, TypeIn and TrueFalse
// questions (TrueFalse expects "true" or "false").
func (s *Session) SetAnswer(answer string) error {
	if s.state != StateAnswering {
		return ErrInvalidTransition
	}
	switch s.Question().Kind {
	case content.QuestionMCQ, content.QuestionTypeIn, content.QuestionTrueFalse:
		s.answer = answer
		return nil
	default:
		return fmt.Errorf("question %d takes no scalar answer", s.index)
	}
}

// MoveItem reorders the ordering buffer by moving the item at from to to.
func (s *Session) MoveItem(from, to int) error {
	if s.state != StateAnswering {
		return ErrInvalidTransition
	}
	if s.Question().Kind != content.QuestionOrder {
		return fmt.Errorf("question %d is not an ordering question", s.index)
	}
	if from < 0 || from >= len(s.ordering) || to < 0 || to >= len(s.ordering) {
		return fmt.Errorf("move %d -> %d out of range", from, to)
	}

	item := s.ordering[from]
	s.ordering = append(s.ordering[:from], s.ordering[from+1:]...)
	s.ordering = append(s.ordering[:to], append([]string{item}, s.ordering[to:]...)...)
	return nil
}

// SelectMatch pairs a left item with a right item; selecting a new right
// for the same left replaces the earlier choice.
func (s *Session) SelectMatch(left, right string) error {
	if s.state != StateAnswering {
		return ErrInvalidTransition
	}
	q := s.Question()
	if q.Kind != content.QuestionMatch {
		return fmt.Errorf("question %d is not a matching question", s.index)
	}
	if _, ok := q.Pairs[left]; !ok {
		return fmt.Errorf("unknown match item %q", left)
	}
	s.matches[left] = right
	return nil
}

// CanCheck reports whether the current buffers form a complete answer.
func (s *Session) CanCheck() bool {
	if s.state != StateAnswering {
		return false
	}
	switch s.Question().Kind {
	case content.QuestionMCQ, content.QuestionTypeIn, content.QuestionTrueFalse:
		return strings.TrimSpace(s.answer) != ""
	case content.QuestionOrder:
		return true // buffer always holds every item
	case content.QuestionMatch:
		return len(s.matches) == len(s.Question().Pairs)
	default:
		return false
	}
}

// Check grades the current answer and moves the session to StateCorrect or
// StateIncorrect. An unknown question kind leaves the state unchanged.
func (s *Session) Check() (bool, error) {
	if s.state != StateAnswering {
		return false, ErrInvalidTransition
	}

	correct, err := grade(s.Question(), s.answer, s.ordering, s.matches)
	if err != nil {
		return false, err
	}

	if correct {
		s.state = StateCorrect
	} else {
		s.state = StateIncorrect
	}
	return correct, nil
}

func grade(q content.Question, answer string, ordering []string, matches map[string]string) (bool, error) {
	switch q.Kind {
	case content.QuestionMCQ:
		return answer == q.Answer, nil

	case content.QuestionTypeIn:
		return normalize(answer) == normalize(q.Answer), nil

	case content.QuestionTrueFalse:
		got, err := strconv.ParseBool(strings.TrimSpace(answer))
		if err != nil {
			return false, nil
		}
		return got == q.BoolAnswer, nil

	case content.QuestionOrder:
		if len(ordering) != len(q.OrderAnswer) {
			return false, nil
		}
		for i, item := range ordering {
			if item != q.OrderAnswer[i] {
				return false, nil
			}
		}
		return true, nil

	case content.QuestionMatch:
		if len(matches) != len(q.Pairs) {
			return false, nil
		}
		for left, right := range q.Pairs {
			if matches[left] != right {
				return false, nil
			}
		}
		return true, nil

	default:
		return false, fmt.Errorf("question kind %q: %w", q.Kind, ErrUnknownQuestionKind)
	}
}

// normalize prepares typed-in text for comparison: Unicode NFC so composed
// and decomposed accents compare equal, plus surrounding-space trim.
func normalize(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}

// Retry returns an incorrectly answered question to StateAnswering with
// fresh buffers. Earlier progress in the lesson is untouched.
func (s *Session) Retry() error {
	if s.state != StateIncorrect {
		return ErrInvalidTransition
	}
	s.resetBuffers()
	s.state = StateAnswering
	return nil
}

// Continue advances past a correctly answered question. On intermediate
// questions it moves to the next one; on the last it commits the
// completion effects and finishes the session. If any effect write fails
// the session stays in StateCorrect so Continue can be retried.
func (s *Session) Continue(ctx context.Context) (Outcome, error) {
	if s.state != StateCorrect {
		return Outcome{}, ErrInvalidTransition
	}

	if s.index+1 < len(s.lesson.Questions) {
		s.index++
		s.resetBuffers()
		s.state = StateAnswering
		return Outcome{}, nil
	}

	outcome, err := Complete(ctx, s.userID, s.lesson.LessonID, s.node, s.deps)
	if err != nil {
		return Outcome{}, err
	}
	s.state = StateCompleted
	return outcome, nil
}

// Complete runs the end-of-lesson effects outside any session: award the
// lesson, re-read a fresh snapshot, and finish the owning node when this
// was its last outstanding lesson. A duplicate lesson completion is benign
// and reported through the outcome.
func Complete(ctx context.Context, userID, lessonID string, node content.LearningNode, deps Deps) (Outcome, error) {
	outcome := Outcome{Completed: true}

	reward, err := deps.Rewards.CompleteLesson(ctx, userID, lessonID)
	switch {
	case errors.Is(err, ledger.ErrAlreadyCompleted):
		outcome.AlreadyCompleted = true
	case err != nil:
		return Outcome{}, fmt.Errorf("complete lesson %s: %w", lessonID, err)
	default:
		outcome.Reward = reward
	}

	// The snapshot must be re-read after the award commits: another
	// session may have completed sibling lessons in the meantime.
	snap, err := deps.Progress.Snapshot(ctx, userID)
	if err != nil {
		return Outcome{}, fmt.Errorf("read progress for %s: %w", userID, err)
	}

	if !progress.NodeComplete(node, snap) || snap.CompletedNodes[node.ID] {
		return outcome, nil
	}

	// Only the insert that actually lands the node completion may carry
	// one-time effects: a concurrent session working from a stale snapshot
	// reaches this point too, and must not credit the reward again.
	already, err := deps.Rewards.CompleteNode(ctx, userID, node.ID)
	if err != nil {
		return Outcome{}, fmt.Errorf("complete node %s: %w", node.ID, err)
	}
	if already {
		return outcome, nil
	}
	outcome.NodeCompleted = true

	if node.Reward != nil && node.Reward.Gems > 0 && deps.Gems != nil {
		// Best effort: the node completion is already committed, so a
		// failed credit is logged rather than failing the caller.
		if _, err := deps.Gems.Credit(ctx, userID, node.Reward.Gems, "checkpoint "+node.ID); err != nil {
			slog.Error("checkpoint gem credit failed",
				"user_id", userID,
				"node_id", node.ID,
				"gems", node.Reward.Gems,
				"error", err,
			)
		}
	}
	return outcome, nil
}
