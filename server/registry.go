package server

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"
)

// topicState caches the latest message of a subscribed topic.
type topicState struct {
	refs    int
	cancel  func()
	latest  string
	seq     uint64
	served  uint64 // seq of the last message handed to a get
	changed chan struct{}
}

// Registry tracks which topics the bridge listens to and the latest message
// of each, so gets can long-poll for the next one.
type Registry struct {
	broker Broker
	clock  clock.Clock
	logger *zap.Logger

	mu        sync.Mutex
	topics    map[string]*topicState
	announced map[string]struct{}
}

func NewRegistry(broker Broker, clk clock.Clock, logger *zap.Logger) *Registry {
	return &Registry{
		broker:    broker,
		clock:     clk,
		logger:    logger,
		topics:    make(map[string]*topicState),
		announced: make(map[string]struct{}),
	}
}

// Subscribe adds a reference to topic, opening a broker subscription for the
// first one.
func (r *Registry) Subscribe(ctx context.Context, topic string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, err := r.subscribeLocked(ctx, topic)
	return err
}

func (r *Registry) subscribeLocked(ctx context.Context, topic string) (*topicState, error) {
	if st, ok := r.topics[topic]; ok {
		st.refs++
		return st, nil
	}

	msgs, cancel, err := r.broker.Subscribe(ctx, topic)
	if err != nil {
		return nil, err
	}

	st := &topicState{refs: 1, cancel: cancel, changed: make(chan struct{})}
	r.topics[topic] = st
	go r.pump(topic, st, msgs)

	r.logger.Info("topic subscribed", zap.String("topic", topic))
	return st, nil
}

func (r *Registry) pump(topic string, st *topicState, msgs <-chan Message) {
	for msg := range msgs {
		r.mu.Lock()
		st.latest = msg.Payload
		st.seq++
		close(st.changed)
		st.changed = make(chan struct{})
		r.mu.Unlock()
	}
}

// Unsubscribe drops a reference to topic and closes the broker subscription
// with the last one. Unknown topics are ignored.
func (r *Registry) Unsubscribe(topic string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	st, ok := r.topics[topic]
	if !ok {
		return
	}
	st.refs--
	if st.refs > 0 {
		return
	}

	delete(r.topics, topic)
	st.cancel()
	r.logger.Info("topic unsubscribed", zap.String("topic", topic))
}

// Next returns the first message on topic not yet handed to a get, waiting
// up to timeout for one. On timeout it returns the latest message seen, if
// any. A topic nobody subscribed to is subscribed implicitly.
func (r *Registry) Next(ctx context.Context, topic string, timeout time.Duration) (string, bool, error) {
	r.mu.Lock()
	st, ok := r.topics[topic]
	if !ok {
		var err error
		if st, err = r.subscribeLocked(ctx, topic); err != nil {
			r.mu.Unlock()
			return "", false, err
		}
	}
	if st.seq > st.served {
		st.served = st.seq
		latest := st.latest
		r.mu.Unlock()
		return latest, true, nil
	}
	changed := st.changed
	r.mu.Unlock()

	timer := r.clock.Timer(timeout)
	defer timer.Stop()

	select {
	case <-changed:
	case <-timer.C:
	case <-ctx.Done():
		return "", false, ctx.Err()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	st.served = st.seq
	return st.latest, st.seq > 0, nil
}

// Announce records a publisher for topic.
func (r *Registry) Announce(ctx context.Context, topic string) error {
	if err := r.broker.Announce(ctx, topic); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.announced[topic] = struct{}{}
	return nil
}

// SplitPublish separates a publish path remainder into topic and message.
// The longest announced or subscribed topic that prefixes rest wins;
// otherwise the first path segment is the topic.
func (r *Registry) SplitPublish(rest string) (topic, msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for name := range r.announced {
		if strings.HasPrefix(rest, name) && len(name) > len(topic) {
			topic = name
		}
	}
	for name := range r.topics {
		if strings.HasPrefix(rest, name) && len(name) > len(topic) {
			topic = name
		}
	}
	if topic != "" {
		return topic, rest[len(topic):]
	}

	if i := strings.Index(rest[min(1, len(rest)):], "/"); i >= 0 {
		cut := i + min(1, len(rest))
		return rest[:cut], rest[cut:]
	}
	return rest, ""
}

// Refs returns the reference count of topic.
func (r *Registry) Refs(topic string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if st, ok := r.topics[topic]; ok {
		return st.refs
	}
	return 0
}

// Close drops every broker subscription.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for topic, st := range r.topics {
		st.cancel()
		delete(r.topics, topic)
	}
}
