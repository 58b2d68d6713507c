package content

import (
	"fmt"
	"strings"
)

// LessonID is the decomposed form of a lesson identifier following the
// "{SUBJECT}-{UNIT}{0}{NODE}-L{n}" convention, e.g. "FRA-101-L1".
type LessonID struct {
	Subject string // "FRA"
	Unit    int    // 1
	Node    int    // 1
	Lesson  int    // 1
}

// ParseLessonID decomposes a lesson identifier.
func ParseLessonID(id string) (LessonID, error) {
	parts := strings.Split(id, "-")
	if len(parts) != 3 {
		return LessonID{}, fmt.Errorf("malformed lesson id %q", id)
	}

	subject, nodeCode, lessonPart := parts[0], parts[1], parts[2]
	if subject == "" {
		return LessonID{}, fmt.Errorf("malformed lesson id %q: empty subject", id)
	}
	if len(nodeCode) != 3 || nodeCode[1] != '0' {
		return LessonID{}, fmt.Errorf("malformed lesson id %q: node code %q", id, nodeCode)
	}

	var unit, node, lesson int
	if _, err := fmt.Sscanf(nodeCode, "%1d0%1d", &unit, &node); err != nil {
		return LessonID{}, fmt.Errorf("malformed lesson id %q: %w", id, err)
	}
	if _, err := fmt.Sscanf(lessonPart, "L%d", &lesson); err != nil {
		return LessonID{}, fmt.Errorf("malformed lesson id %q: %w", id, err)
	}

	return LessonID{Subject: subject, Unit: unit, Node: node, Lesson: lesson}, nil
}

// NodeIDOf returns the owning node id of a lesson id:
// "FRA-101-L1" -> "FRA-101". Returns an error for malformed ids.
func NodeIDOf(lessonID string) (string, error) {
	parts := strings.Split(lessonID, "-")
	if len(parts) < 2 {
		return "", fmt.Errorf("malformed lesson id %q", lessonID)
	}
	return parts[0] + "-" + parts[1], nil
}
