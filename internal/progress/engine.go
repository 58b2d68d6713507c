// Package progress tracks which lessons and nodes a user has completed and
// derives node unlock states from the content tree.
package progress

import (
	"github.com/funnet/funnet-server/internal/content"
)

// NodeState is the derived unlock state of a node. It is never stored.
type NodeState struct {
	IsLocked    bool `json:"isLocked"`
	IsCompleted bool `json:"isCompleted"`
	IsAvailable bool `json:"isAvailable"` // unlocked but not completed
}

// Snapshot is a point-in-time view of a user's completions. Sets are keyed
// by lesson/node id.
type Snapshot struct {
	CompletedLessons map[string]bool
	CompletedNodes   map[string]bool
}

// NewSnapshot returns an empty snapshot.
func NewSnapshot() Snapshot {
	return Snapshot{
		CompletedLessons: make(map[string]bool),
		CompletedNodes:   make(map[string]bool),
	}
}

// Evaluate derives the unlock state of one node. Pure: same inputs always
// produce the same output.
//
// Rules:
//   - the first node of the flattened sequence is never locked;
//   - a checkpoint node is locked until every id in its requires list is
//     completed, regardless of its linear position;
//   - any other node is locked until the node immediately before it in the
//     flattened sequence is completed;
//   - an id not present in the tree is locked (never grant access to
//     unknown nodes).
func Evaluate(nodeID string, snap Snapshot, topic *content.Topic) NodeState {
	nodes := content.Flatten(topic)

	idx := -1
	for i, n := range nodes {
		if n.ID == nodeID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return NodeState{IsLocked: true}
	}

	node := nodes[idx]
	completed := snap.CompletedNodes[node.ID]

	// Checkpoint gates apply everywhere, including position 0.
	if node.Kind == content.KindCheckpoint {
		unlocked := true
		for _, req := range node.Requires {
			if !snap.CompletedNodes[req] {
				unlocked = false
				break
			}
		}
		return NodeState{
			IsLocked:    !unlocked,
			IsCompleted: completed,
			IsAvailable: unlocked && !completed,
		}
	}

	if idx == 0 {
		return NodeState{
			IsLocked:    false,
			IsCompleted: completed,
			IsAvailable: !completed,
		}
	}

	prevDone := snap.CompletedNodes[nodes[idx-1].ID]
	return NodeState{
		IsLocked:    !prevDone,
		IsCompleted: completed,
		IsAvailable: prevDone && !completed,
	}
}

// EvaluateAll derives states for every node of a topic, keyed by node id.
func EvaluateAll(snap Snapshot, topic *content.Topic) map[string]NodeState {
	states := make(map[string]NodeState)
	for _, n := range content.Flatten(topic) {
		states[n.ID] = Evaluate(n.ID, snap, topic)
	}
	return states
}

// NodeComplete reports whether every lesson of the node is in the snapshot.
func NodeComplete(node content.LearningNode, snap Snapshot) bool {
	if len(node.Lessons) == 0 {
		return false
	}
	for _, ref := range node.Lessons {
		if !snap.CompletedLessons[ref.ID] {
			return false
		}
	}
	return true
}
