// Package content defines the static lesson content tree: topics, sections,
// units, learning nodes and typed questions, plus loading and validation.
package content

import (
	"encoding/json"
	"fmt"
)

// NodeKind distinguishes the two learning node variants.
type NodeKind string

const (
	KindSkill      NodeKind = "skill"
	KindCheckpoint NodeKind = "checkpoint"
)

// QuestionKind distinguishes the question variants.
type QuestionKind string

const (
	QuestionMCQ       QuestionKind = "MCQ"
	QuestionTypeIn    QuestionKind = "TypeIn"
	QuestionTrueFalse QuestionKind = "TrueFalse"
	QuestionOrder     QuestionKind = "Order"
	QuestionMatch     QuestionKind = "Match"
)

// Topic is the root of a content tree. Immutable once loaded.
type Topic struct {
	Name     string    `json:"topic"`
	Sections []Section `json:"sections"`
}

// Section groups units within a topic.
type Section struct {
	Name  string `json:"name"`
	Units []Unit `json:"units"`
}

// Unit groups learning nodes and carries an optional guidebook.
type Unit struct {
	Name      string         `json:"name"`
	Guidebook *Guidebook     `json:"guidebook,omitempty"`
	Nodes     []LearningNode `json:"nodes"`
}

// Guidebook is the reference material attached to a unit.
type Guidebook struct {
	Summary   string   `json:"summary"`
	KeyPoints []string `json:"key_points"`
}

// LearningNode is a skill or checkpoint node gating one or more lessons.
// Requires and Reward are only meaningful for checkpoint nodes.
type LearningNode struct {
	ID      string      `json:"id"`
	Kind    NodeKind    `json:"type"`
	Title   string      `json:"title"`
	Lessons []LessonRef `json:"lessons"`

	// Checkpoint fields: node ids that must all be completed before this
	// node unlocks, and the gem/badge reward granted on completion.
	Requires []string          `json:"requires,omitempty"`
	Reward   *CheckpointReward `json:"reward,omitempty"`
}

// CheckpointReward is granted once when a checkpoint node completes.
type CheckpointReward struct {
	Gems  int    `json:"gems"`
	Badge string `json:"badge"`
}

// LessonRef points at a lesson file from the tree.
type LessonRef struct {
	ID            string       `json:"id"`
	QuestionCount int          `json:"question_count"`
	ContentRef    string       `json:"content_ref"`
	Reward        LessonReward `json:"reward"`
}

// LessonReward is the XP attached to a lesson reference.
type LessonReward struct {
	XP      int `json:"xp"`
	BonusXP int `json:"bonus_xp"`
}

// LessonContent is an ordered sequence of questions for one lesson.
type LessonContent struct {
	LessonID  string     `json:"lesson_id"`
	Questions []Question `json:"questions"`
}

// Question is the tagged union over all question variants. Only the fields
// matching Kind are populated; UnmarshalJSON rejects unknown kinds.
type Question struct {
	Kind              QuestionKind
	Prompt            string
	CorrectFeedback   string
	IncorrectFeedback string
	Explanation       string

	Options     []string          // MCQ
	Answer      string            // MCQ, TypeIn
	BoolAnswer  bool              // TrueFalse
	Items       []string          // Order: items as presented
	OrderAnswer []string          // Order: canonical ordering
	Pairs       map[string]string // Match: left -> right
}

type questionHead struct {
	Type              QuestionKind    `json:"type"`
	Question          string          `json:"question"`
	CorrectFeedback   string          `json:"correct_feedback"`
	IncorrectFeedback string          `json:"incorrect_feedback"`
	Explanation       string          `json:"explanation"`
	Options           []string        `json:"options"`
	Items             []string        `json:"items"`
	Pairs             map[string]string `json:"pairs"`
	Answer            json.RawMessage `json:"answer"`
}

// UnmarshalJSON decodes a question, interpreting the answer field per the
// declared type. Unknown types are an error, never a silent fallthrough.
func (q *Question) UnmarshalJSON(data []byte) error {
	var head questionHead
	if err := json.Unmarshal(data, &head); err != nil {
		return err
	}

	q.Kind = head.Type
	q.Prompt = head.Question
	q.CorrectFeedback = head.CorrectFeedback
	q.IncorrectFeedback = head.IncorrectFeedback
	q.Explanation = head.Explanation

	switch head.Type {
	case QuestionMCQ:
		if len(head.Options) == 0 {
			return fmt.Errorf("MCQ question %q has no options", head.Question)
		}
		q.Options = head.Options
		if err := json.Unmarshal(head.Answer, &q.Answer); err != nil {
			return fmt.Errorf("MCQ answer: %w", err)
		}
	case QuestionTypeIn:
		if err := json.Unmarshal(head.Answer, &q.Answer); err != nil {
			return fmt.Errorf("TypeIn answer: %w", err)
		}
	case QuestionTrueFalse:
		if err := json.Unmarshal(head.Answer, &q.BoolAnswer); err != nil {
			return fmt.Errorf("TrueFalse answer: %w", err)
		}
	case QuestionOrder:
		if len(head.Items) == 0 {
			return fmt.Errorf("Order question %q has no items", head.Question)
		}
		q.Items = head.Items
		if err := json.Unmarshal(head.Answer, &q.OrderAnswer); err != nil {
			return fmt.Errorf("Order answer: %w", err)
		}
		if len(q.OrderAnswer) != len(q.Items) {
			return fmt.Errorf("Order question %q: answer length %d != items length %d",
				head.Question, len(q.OrderAnswer), len(q.Items))
		}
	case QuestionMatch:
		if len(head.Pairs) == 0 {
			return fmt.Errorf("Match question %q has no pairs", head.Question)
		}
		q.Pairs = head.Pairs
	default:
		return fmt.Errorf("unknown question type %q", head.Type)
	}

	return nil
}

// Validate checks structural invariants of a loaded topic: known node
// kinds, globally unique node ids, and checkpoint requires referencing
// nodes that exist in the tree.
func (t *Topic) Validate() error {
	seen := make(map[string]bool)
	for _, n := range Flatten(t) {
		if n.Kind != KindSkill && n.Kind != KindCheckpoint {
			return fmt.Errorf("node %s: unknown kind %q", n.ID, n.Kind)
		}
		if n.ID == "" {
			return fmt.Errorf("node with empty id in topic %s", t.Name)
		}
		if seen[n.ID] {
			return fmt.Errorf("duplicate node id %s in topic %s", n.ID, t.Name)
		}
		seen[n.ID] = true
	}
	for _, n := range Flatten(t) {
		for _, req := range n.Requires {
			if !seen[req] {
				return fmt.Errorf("node %s requires unknown node %s", n.ID, req)
			}
		}
	}
	return nil
}
