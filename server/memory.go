package server

import (
	"context"
	"sync"
)

// MemoryBroker is a process-local broker used for development and tests.
type MemoryBroker struct {
	mu         sync.RWMutex
	nextID     int
	subs       map[string]map[int]chan Message
	announced  map[string]struct{}
	transforms map[string]string
	tfSubs     map[string]struct{}
	state      RobotState
	closed     bool
	bufferSize int
}

func NewMemoryBroker() *MemoryBroker {
	return &MemoryBroker{
		subs:       make(map[string]map[int]chan Message),
		announced:  make(map[string]struct{}),
		transforms: make(map[string]string),
		tfSubs:     make(map[string]struct{}),
		state:      RobotStopped,
		bufferSize: 64,
	}
}

func (m *MemoryBroker) Publish(ctx context.Context, topic, payload string) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return ErrBrokerClosed
	}
	for _, ch := range m.subs[topic] {
		select {
		case ch <- Message{Topic: topic, Payload: payload}:
		default:
			// Drop for slow subscribers rather than stalling publishers.
		}
	}
	return nil
}

func (m *MemoryBroker) Subscribe(ctx context.Context, topic string) (<-chan Message, func(), error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, nil, ErrBrokerClosed
	}
	if _, ok := m.subs[topic]; !ok {
		m.subs[topic] = make(map[int]chan Message)
	}
	id := m.nextID
	m.nextID++
	ch := make(chan Message, m.bufferSize)
	m.subs[topic][id] = ch

	cancel := func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if byTopic, ok := m.subs[topic]; ok {
			if sub, exists := byTopic[id]; exists {
				delete(byTopic, id)
				close(sub)
			}
			if len(byTopic) == 0 {
				delete(m.subs, topic)
			}
		}
	}
	return ch, cancel, nil
}

func (m *MemoryBroker) Announce(ctx context.Context, topic string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.announced[topic] = struct{}{}
	return nil
}

// Announced reports whether a publisher was announced for topic.
func (m *MemoryBroker) Announced(topic string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.announced[topic]
	return ok
}

// Subscribers returns the number of live subscriptions to topic.
func (m *MemoryBroker) Subscribers(topic string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.subs[topic])
}

func (m *MemoryBroker) SubscribeTransform(ctx context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tfSubs[name] = struct{}{}
	return nil
}

func (m *MemoryBroker) SetTransform(ctx context.Context, name, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transforms[name] = value
	return nil
}

func (m *MemoryBroker) Transform(ctx context.Context, name string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.transforms[name]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

func (m *MemoryBroker) SetRobotState(ctx context.Context, state RobotState) error {
	m.mu.Lock()
	m.state = state
	m.mu.Unlock()
	return m.Publish(ctx, ControlTopic, string(state))
}

// RobotState returns the last recorded run state.
func (m *MemoryBroker) RobotState() RobotState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

func (m *MemoryBroker) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	for topic, byTopic := range m.subs {
		for _, ch := range byTopic {
			close(ch)
		}
		delete(m.subs, topic)
	}
	return nil
}
