package rosweb

import (
	"context"
	"sync"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// State is the lifecycle position of a subscription.
type State int32

const (
	StateIdle State = iota
	StateSubscribing
	StatePolling
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSubscribing:
		return "subscribing"
	case StatePolling:
		return "polling"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// loopTracker is told when a subscription loop starts and exits, so its
// owner can wait for the loops still running.
type loopTracker interface {
	loopStarted(s *subscription)
	loopExited(s *subscription)
}

// advanceFunc consumes the completion of the request issued for step and
// returns the next step, or false when the loop is over.
type advanceFunc func(ctx context.Context, step Op, res Result) (Op, bool)

// subscription holds what topic and tf loops share: the owned channel, the
// consumer handler and the loop lifecycle.
type subscription struct {
	kind      string
	name      string
	id        string
	client    *Client
	clock     clock.Clock
	logger    *zap.Logger
	metrics   *metrics
	bridgeCtx context.Context
	tracker   loopTracker

	mu      sync.Mutex
	handler Handler
	state   State
	active  bool
	cancel  context.CancelFunc
	results chan Result
	done    chan struct{}
}

func (s *subscription) init(kind, name string, client *Client, bridgeCtx context.Context, tracker loopTracker, options Options, m *metrics) {
	s.kind = kind
	s.name = name
	s.id = uuid.NewString()
	s.client = client
	s.clock = options.Clock
	s.logger = options.Logger.With(zap.String("kind", kind), zap.String("name", name), zap.String("subscription_id", s.id))
	s.metrics = m
	s.bridgeCtx = bridgeCtx
	s.tracker = tracker
	s.state = StateIdle
}

// Name returns the topic or transform name.
func (s *subscription) Name() string { return s.name }

// ID uniquely identifies the subscription within the process.
func (s *subscription) ID() string { return s.id }

// Channel returns the channel owned by the subscription.
func (s *subscription) Channel() *Channel { return s.client.Channel() }

func (s *subscription) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Done returns a channel that is closed once the poll loop has exited. It is
// already closed when no loop is running.
func (s *subscription) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done == nil {
		closed := make(chan struct{})
		close(closed)
		return closed
	}
	return s.done
}

// Stop cancels the poll loop. The request in flight is cancelled through its
// context and its completion is awaited before the loop exits; no further
// request is issued.
func (s *subscription) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	active := s.active
	s.mu.Unlock()

	if active && cancel != nil {
		cancel()
	}
}

func (s *subscription) currentHandler() Handler {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handler
}

// startLocked begins a new loop whose first request is op.
func (s *subscription) startLocked(parent context.Context, op Op, advance advanceFunc) error {
	if s.bridgeCtx.Err() != nil {
		return ErrBridgeClosed
	}

	ctx, cancel := context.WithCancel(parent)
	unregister := context.AfterFunc(s.bridgeCtx, cancel)
	s.cancel = func() {
		unregister()
		cancel()
	}
	s.results = make(chan Result, 1)
	s.done = make(chan struct{})
	s.active = true

	if err := s.issueLocked(ctx, op); err != nil {
		s.stopLocked()
		close(s.done)
		return err
	}

	s.tracker.loopStarted(s)
	go s.loop(ctx, op, s.results, s.done, advance)
	return nil
}

func (s *subscription) loop(ctx context.Context, step Op, results <-chan Result, done chan struct{}, advance advanceFunc) {
	defer close(done)
	defer s.tracker.loopExited(s)

	s.metrics.subscriptionStarted(s.kind)
	defer s.metrics.subscriptionStopped(s.kind)

	s.logger.Info("subscription loop started")
	defer s.logger.Info("subscription loop stopped")

	for {
		res := <-results
		next, ok := advance(ctx, step, res)
		if !ok {
			return
		}
		step = next
	}
}

// issueLocked sends op on the owned channel; its completion is fed back to
// the loop.
func (s *subscription) issueLocked(ctx context.Context, op Op) error {
	results := s.results
	deliver := func(res Result) { results <- res }

	var err error
	switch op {
	case OpSubscribe:
		s.state = StateSubscribing
		err = s.client.Subscribe(ctx, s.name, deliver)
	case OpGet:
		s.state = StatePolling
		err = s.client.Get(ctx, s.name, deliver)
	case OpUnsubscribe:
		err = s.client.Unsubscribe(ctx, s.name, deliver)
	case OpTfSubscribe:
		s.state = StateSubscribing
		err = s.client.TfSubscribe(ctx, s.name, deliver)
	case OpTfGet:
		s.state = StatePolling
		err = s.client.TfGet(ctx, s.name, deliver)
	}
	if err != nil {
		s.logger.Error("failed to issue request", zap.String("op", string(op)), zap.Error(err))
	}
	return err
}

func (s *subscription) stopLocked() {
	s.active = false
	s.state = StateStopped
	if s.cancel != nil {
		s.cancel()
	}
}

// dispatch hands res to h unless the loop is being cancelled.
func (s *subscription) dispatch(ctx context.Context, h Handler, res Result) {
	if h == nil || ctx.Err() != nil {
		return
	}
	h(ctx, Message{Name: s.name, SubscriptionID: s.id, Result: res})
}

// issueNextLocked issues op and reports it as the next step, stopping the
// loop if the channel refuses the request.
func (s *subscription) issueNextLocked(ctx context.Context, op Op) (Op, bool) {
	if err := s.issueLocked(ctx, op); err != nil {
		s.stopLocked()
		return "", false
	}
	return op, true
}
