package rosweb

import (
	"context"
	"sync"
)

// Bridge is the entry point for talking to a robot through a polling
// pub/sub bridge.
type Bridge interface {
	// Topic creates a topic subscription with its own channel. Several
	// subscriptions to one name are independent of each other.
	Topic(name string) *Topic
	// Tf creates a transform subscription with its own channel.
	Tf(name string) *Tf
	// Publish sends msg on topic without waiting for the answer.
	Publish(ctx context.Context, topic, msg string) error
	// Announce advertises a publisher for topic without waiting for the answer.
	Announce(ctx context.Context, topic string) error
	// Startup brings the robot up and waits for the bridge to answer.
	Startup(ctx context.Context) (Result, error)
	// Shutdown stops the robot and waits for the bridge to answer.
	Shutdown(ctx context.Context) (Result, error)
	// Close stops every running subscription loop and waits for them to
	// exit. Subscriptions cannot be restarted afterwards.
	Close() error
	IsClosed() bool
}

type bridgeImpl struct {
	transport Transport
	options   Options
	metrics   *metrics
	ctx       context.Context
	cancel    context.CancelFunc

	mu     sync.RWMutex
	loops  map[*subscription]struct{}
	closed bool
}

func (b *bridgeImpl) newClient() *Client {
	return NewClient(newChannel(b.transport, b.options, b.metrics))
}

func (b *bridgeImpl) loopStarted(s *subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.loops[s] = struct{}{}
}

func (b *bridgeImpl) loopExited(s *subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.loops, s)
}

// activeLoops returns how many subscription loops are running.
func (b *bridgeImpl) activeLoops() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.loops)
}

func (b *bridgeImpl) Topic(name string) *Topic {
	t := &Topic{fireAndForget: b.newClient}
	t.init("topic", name, b.newClient(), b.ctx, b, b.options, b.metrics)
	return t
}

func (b *bridgeImpl) Tf(name string) *Tf {
	t := &Tf{interval: b.options.TfInterval}
	t.init("tf", name, b.newClient(), b.ctx, b, b.options, b.metrics)
	return t
}

func (b *bridgeImpl) Publish(ctx context.Context, topic, msg string) error {
	if b.IsClosed() {
		return ErrBridgeClosed
	}
	return b.newClient().Publish(ctx, topic, msg, nil)
}

func (b *bridgeImpl) Announce(ctx context.Context, topic string) error {
	if b.IsClosed() {
		return ErrBridgeClosed
	}
	return b.newClient().Announce(ctx, topic, nil)
}

func (b *bridgeImpl) Startup(ctx context.Context) (Result, error) {
	return b.call(ctx, func(c *Client, done Completion) error {
		return c.Startup(ctx, done)
	})
}

func (b *bridgeImpl) Shutdown(ctx context.Context) (Result, error) {
	return b.call(ctx, func(c *Client, done Completion) error {
		return c.Shutdown(ctx, done)
	})
}

// call issues one request on a fresh channel and waits for its completion.
func (b *bridgeImpl) call(ctx context.Context, issue func(*Client, Completion) error) (Result, error) {
	if b.IsClosed() {
		return Result{}, ErrBridgeClosed
	}

	results := make(chan Result, 1)
	if err := issue(b.newClient(), func(res Result) { results <- res }); err != nil {
		return Result{}, err
	}

	res := <-results
	return res, res.Err
}

func (b *bridgeImpl) IsClosed() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.closed
}

func (b *bridgeImpl) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.cancel()
	running := make([]*subscription, 0, len(b.loops))
	for s := range b.loops {
		running = append(running, s)
	}
	b.mu.Unlock()

	for _, s := range running {
		s.Stop()
		<-s.Done()
	}

	b.options.Logger.Info("bridge closed")
	return nil
}

// NewBridge creates a bridge over transport.
func NewBridge(transport Transport, opts ...Option) Bridge {
	options := buildOptions(opts)
	ctx, cancel := context.WithCancel(context.Background())
	return &bridgeImpl{
		transport: transport,
		options:   options,
		metrics:   newMetrics(options.Registerer),
		ctx:       ctx,
		cancel:    cancel,
		loops:     make(map[*subscription]struct{}),
	}
}

// NewHTTPBridge creates a bridge talking HTTP to the bridge at baseURL.
func NewHTTPBridge(baseURL string, opts ...Option) (Bridge, error) {
	transport, err := NewHTTPTransport(baseURL, nil)
	if err != nil {
		return nil, err
	}
	return NewBridge(transport, opts...), nil
}
