package content

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

// ErrNotFound is returned when a referenced topic, lesson or node does not
// exist in the loaded tree.
var ErrNotFound = errors.New("content not found")

//go:embed lesson.schema.json
var lessonSchema []byte

// Loader loads and caches content from the filesystem. Topics are files
// named *.topic.json; every other .json file is lesson content validated
// against the lesson schema.
type Loader struct {
	rootDir string
	topics  map[string]*Topic
	lessons map[string]*LessonContent
	schema  *gojsonschema.Schema
	mu      sync.RWMutex
}

// NewLoader creates a new content loader and loads all content under rootDir.
func NewLoader(rootDir string) (*Loader, error) {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(lessonSchema))
	if err != nil {
		return nil, fmt.Errorf("compiling lesson schema: %w", err)
	}

	l := &Loader{
		rootDir: rootDir,
		topics:  make(map[string]*Topic),
		lessons: make(map[string]*LessonContent),
		schema:  schema,
	}

	if err := l.loadAll(); err != nil {
		return nil, fmt.Errorf("loading content: %w", err)
	}

	slog.Info("content loaded", "topics", len(l.topics), "lessons", len(l.lessons))
	return l, nil
}

// Topic returns a topic by name.
func (l *Loader) Topic(name string) (*Topic, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	t, ok := l.topics[name]
	return t, ok
}

// Lesson returns lesson content by lesson id.
func (l *Loader) Lesson(id string) (*LessonContent, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	c, ok := l.lessons[id]
	return c, ok
}

// TopicNames returns the names of all loaded topics.
func (l *Loader) TopicNames() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	names := make([]string, 0, len(l.topics))
	for name := range l.topics {
		names = append(names, name)
	}
	return names
}

// TopicOfNode returns the topic containing the given node id.
func (l *Loader) TopicOfNode(nodeID string) (*Topic, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for _, t := range l.topics {
		if _, _, ok := FindNode(t, nodeID); ok {
			return t, true
		}
	}
	return nil, false
}

// LessonRefOf returns the lesson reference and owning node for a lesson id.
func (l *Loader) LessonRefOf(lessonID string) (LessonRef, LearningNode, error) {
	nodeID, err := NodeIDOf(lessonID)
	if err != nil {
		return LessonRef{}, LearningNode{}, err
	}

	topic, ok := l.TopicOfNode(nodeID)
	if !ok {
		return LessonRef{}, LearningNode{}, fmt.Errorf("node %s: %w", nodeID, ErrNotFound)
	}
	node, _, _ := FindNode(topic, nodeID)
	for _, ref := range node.Lessons {
		if ref.ID == lessonID {
			return ref, node, nil
		}
	}
	return LessonRef{}, LearningNode{}, fmt.Errorf("lesson %s: %w", lessonID, ErrNotFound)
}

func (l *Loader) loadAll() error {
	return filepath.Walk(l.rootDir, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return nil
		}

		switch {
		case strings.HasSuffix(path, ".topic.json"):
			return l.loadTopic(path)
		case strings.HasSuffix(path, ".json"):
			return l.loadLesson(path)
		}
		return nil
	})
}

func (l *Loader) loadTopic(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var topic Topic
	if err := json.Unmarshal(data, &topic); err != nil {
		slog.Warn("skipping invalid topic JSON", "path", path, "error", err)
		return nil
	}
	if topic.Name == "" {
		return nil // Not a topic file
	}
	if err := topic.Validate(); err != nil {
		return fmt.Errorf("topic %s: %w", path, err)
	}

	l.mu.Lock()
	l.topics[topic.Name] = &topic
	l.mu.Unlock()

	return nil
}

func (l *Loader) loadLesson(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	result, err := l.schema.Validate(gojsonschema.NewBytesLoader(data))
	if err != nil {
		slog.Warn("skipping unreadable lesson JSON", "path", path, "error", err)
		return nil
	}
	if !result.Valid() {
		slog.Warn("skipping invalid lesson JSON", "path", path, "violation", result.Errors()[0].String())
		return nil
	}

	var lesson LessonContent
	if err := json.Unmarshal(data, &lesson); err != nil {
		slog.Warn("skipping undecodable lesson JSON", "path", path, "error", err)
		return nil
	}
	if lesson.LessonID == "" {
		return nil
	}

	l.mu.Lock()
	l.lessons[lesson.LessonID] = &lesson
	l.mu.Unlock()

	return nil
}
