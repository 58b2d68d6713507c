package content

import (
	"testing"
)

func TestParseLessonID(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    LessonID
		wantErr bool
	}{
		{"basic", "FRA-101-L1", LessonID{Subject: "FRA", Unit: 1, Node: 1, Lesson: 1}, false},
		{"unit-two", "FRA-203-L4", LessonID{Subject: "FRA", Unit: 2, Node: 3, Lesson: 4}, false},
		{"other-subject", "ALG-102-L2", LessonID{Subject: "ALG", Unit: 1, Node: 2, Lesson: 2}, false},
		{"missing-lesson-part", "FRA-101", LessonID{}, true},
		{"bad-node-code", "FRA-11-L1", LessonID{}, true},
		{"no-zero-separator", "FRA-111-L1", LessonID{}, true},
		{"bad-lesson-part", "FRA-101-X1", LessonID{}, true},
		{"empty", "", LessonID{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseLessonID(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseLessonID(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("ParseLessonID(%q) = %+v, want %+v", tt.in, got, tt.want)
			}
		})
	}
}

func TestNodeIDOf(t *testing.T) {
	got, err := NodeIDOf("FRA-101-L1")
	if err != nil {
		t.Fatalf("NodeIDOf() error = %v", err)
	}
	if got != "FRA-101" {
		t.Errorf("NodeIDOf() = %q, want FRA-101", got)
	}

	if _, err := NodeIDOf("FRA"); err == nil {
		t.Error("NodeIDOf() should reject id without node part")
	}
}
