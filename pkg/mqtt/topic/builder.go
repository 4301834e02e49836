package topic

import (
	"strings"
)

const (
	// Wildcard matches exactly one level.
	Wildcard = "+"

	// MultiWildcard matches the remaining levels. Must be last.
	MultiWildcard = "#"
)

// TopicBuilder maps realtime database paths onto MQTT topics under a root
// namespace and back.
type TopicBuilder struct {
	// root is the namespace prefix (e.g. "campustrack/db").
	root string
}

func NewTopicBuilder(root string) *TopicBuilder {
	return &TopicBuilder{root: strings.Trim(root, "/")}
}

// Record returns the topic carrying the record at path.
func (b *TopicBuilder) Record(path string) string {
	return b.build(path)
}

// Children returns the filter matching every direct child of path.
func (b *TopicBuilder) Children(path string) string {
	return b.build(path, Wildcard)
}

// Subtree returns the filter matching everything below path.
func (b *TopicBuilder) Subtree(path string) string {
	return b.build(path, MultiWildcard)
}

// Path strips the root from topic. It reports false for foreign topics.
func (b *TopicBuilder) Path(topic string) (string, bool) {
	if b.root == "" {
		return topic, true
	}
	rest, ok := strings.CutPrefix(topic, b.root+"/")
	return rest, ok
}

// Key returns the last level of topic.
func Key(topic string) string {
	if i := strings.LastIndexByte(topic, '/'); i >= 0 {
		return topic[i+1:]
	}
	return topic
}

func (b *TopicBuilder) build(parts ...string) string {
	segs := make([]string, 0, len(parts)+1)
	if b.root != "" {
		segs = append(segs, b.root)
	}
	for _, p := range parts {
		if p = strings.Trim(p, "/"); p != "" {
			segs = append(segs, p)
		}
	}
	return strings.Join(segs, "/")
}
