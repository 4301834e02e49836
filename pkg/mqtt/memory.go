package mqtt

import (
	"context"
	"sort"
	"sync"
)

// MemoryClient is an in-process broker and client in one. Retained messages
// are replayed to new subscribers and an empty retained payload clears the
// topic, the same as a real broker. Handlers run on the publishing goroutine.
// It backs offline runs and tests.
type MemoryClient struct {
	mu       sync.Mutex
	started  bool
	retained map[string][]byte
	// order keeps retained topics in first-publish order for replay.
	order []string

	subscriptions sync.Map
}

var (
	_ Client           = (*MemoryClient)(nil)
	_ RetainedReplayer = (*MemoryClient)(nil)
)

func NewMemoryClient() *MemoryClient {
	return &MemoryClient{retained: make(map[string][]byte)}
}

func (m *MemoryClient) Start(context.Context) error {
	m.mu.Lock()
	m.started = true
	m.mu.Unlock()
	return nil
}

func (m *MemoryClient) Disconnect(context.Context) {
	m.mu.Lock()
	m.started = false
	m.mu.Unlock()
}

func (m *MemoryClient) Publish(_ context.Context, topic string, _ int, retain bool, payload []byte) error {
	if !m.IsConnected() {
		return ErrNotStarted
	}

	if retain {
		m.mu.Lock()
		if len(payload) == 0 {
			delete(m.retained, topic)
			m.order = removeString(m.order, topic)
		} else {
			if _, ok := m.retained[topic]; !ok {
				m.order = append(m.order, topic)
			}
			m.retained[topic] = append([]byte(nil), payload...)
		}
		m.mu.Unlock()
	}

	dispatch(&m.subscriptions, topic, payload)
	return nil
}

func (m *MemoryClient) Subscribe(ctx context.Context, topic string, qos int, handler MessageHandler) error {
	if !m.IsConnected() {
		return ErrNotStarted
	}
	m.subscriptions.Store(topic, subscriptionEntry{topic: topic, qos: qos, handler: handler})

	// Replay retained state to the new subscriber.
	m.mu.Lock()
	type msg struct {
		topic   string
		payload []byte
	}
	var replay []msg
	for _, t := range m.order {
		if TopicsMatch(topic, t) {
			replay = append(replay, msg{t, m.retained[t]})
		}
	}
	m.mu.Unlock()

	for _, r := range replay {
		handler(ctx, r.topic, r.payload)
	}
	return nil
}

// ReplaysRetained is always true: Subscribe replays retained state inline.
func (m *MemoryClient) ReplaysRetained() bool { return true }

func (m *MemoryClient) Unsubscribe(_ context.Context, topic string) error {
	m.subscriptions.Delete(topic)
	return nil
}

func (m *MemoryClient) AwaitConnection(ctx context.Context) error {
	if m.IsConnected() {
		return nil
	}
	<-ctx.Done()
	return ctx.Err()
}

func (m *MemoryClient) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.started
}

// Retained returns the retained topics matching filter, sorted.
func (m *MemoryClient) Retained(filter string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []string
	for t := range m.retained {
		if TopicsMatch(filter, t) {
			out = append(out, t)
		}
	}
	sort.Strings(out)
	return out
}

// Payload returns the retained payload for topic.
func (m *MemoryClient) Payload(topic string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.retained[topic]
	return p, ok
}

func removeString(s []string, v string) []string {
	for i := range s {
		if s[i] == v {
			return append(s[:i], s[i+1:]...)
		}
	}
	return s
}
