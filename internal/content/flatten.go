package content

// Flatten returns the canonical linear node sequence of a topic: sections,
// then units, then nodes, depth-first in declaration order. The sequence
// defines the default "previous node" edge for sequential unlocking.
func Flatten(t *Topic) []LearningNode {
	var nodes []LearningNode
	for _, section := range t.Sections {
		for _, unit := range section.Units {
			nodes = append(nodes, unit.Nodes...)
		}
	}
	return nodes
}

// FindNode returns the node with the given id, searching the flattened
// sequence, along with its linear index.
func FindNode(t *Topic, nodeID string) (LearningNode, int, bool) {
	for i, n := range Flatten(t) {
		if n.ID == nodeID {
			return n, i, true
		}
	}
	return LearningNode{}, -1, false
}
