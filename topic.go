package rosweb

import (
	"context"

	"go.uber.org/zap"
)

// Topic polls a named bridge topic and hands every answer to a handler.
//
// After the subscribe completes a get is issued; each get completion is
// delivered and immediately followed by the next get. Clearing the handler
// with Unsubscribe ends the loop at the next completion.
type Topic struct {
	subscription

	unsubscribePending bool
	// fireAndForget returns a client on a fresh channel.
	fireAndForget func() *Client
}

// SetCallback installs h and starts polling if the topic is not already
// polling. With a loop already running only the handler is replaced. A nil h
// lets the running loop end at its next completion without telling the
// bridge.
//
// ctx bounds the lifetime of a newly started loop.
func (t *Topic) SetCallback(ctx context.Context, h Handler) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.handler = h
	if t.active {
		if h != nil {
			t.unsubscribePending = false
		}
		return nil
	}
	if h == nil {
		return nil
	}

	return t.startLocked(ctx, OpSubscribe, t.advance)
}

// Unsubscribe clears the handler and deregisters the topic on the bridge.
// A get already in flight still completes; its result is dropped and the
// unsubscribe request follows it on the same channel.
func (t *Topic) Unsubscribe(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.handler = nil
	if t.active {
		t.unsubscribePending = true
		return nil
	}

	return t.startLocked(ctx, OpUnsubscribe, t.advance)
}

// Publish sends msg on the topic over a separate channel so the poll loop is
// not disturbed. The answer is not awaited.
func (t *Topic) Publish(ctx context.Context, msg string) error {
	if t.bridgeCtx.Err() != nil {
		return ErrBridgeClosed
	}
	return t.fireAndForget().Publish(ctx, t.name, msg, nil)
}

// Announce advertises a publisher for the topic. The answer is not awaited.
func (t *Topic) Announce(ctx context.Context) error {
	if t.bridgeCtx.Err() != nil {
		return ErrBridgeClosed
	}
	return t.fireAndForget().Announce(ctx, t.name, nil)
}

func (t *Topic) advance(ctx context.Context, step Op, res Result) (Op, bool) {
	switch step {
	case OpSubscribe:
		if !res.OK() {
			t.logger.Warn("subscribe failed, polling anyway", zap.Error(res.Err))
		}

		t.mu.Lock()
		defer t.mu.Unlock()
		if ctx.Err() != nil {
			t.stopLocked()
			return "", false
		}
		return t.issueNextLocked(ctx, OpGet)

	case OpGet:
		t.dispatch(ctx, t.currentHandler(), res)

		t.mu.Lock()
		defer t.mu.Unlock()
		switch {
		case ctx.Err() != nil:
			t.stopLocked()
			return "", false
		case t.handler != nil:
			return t.issueNextLocked(ctx, OpGet)
		case t.unsubscribePending:
			t.unsubscribePending = false
			return t.issueNextLocked(ctx, OpUnsubscribe)
		default:
			t.stopLocked()
			return "", false
		}

	case OpUnsubscribe:
		if !res.OK() {
			t.logger.Warn("unsubscribe failed", zap.Error(res.Err))
		}

		t.mu.Lock()
		defer t.mu.Unlock()
		// A handler installed while the unsubscribe was in flight re-arms
		// the topic.
		if ctx.Err() == nil && t.handler != nil {
			return t.issueNextLocked(ctx, OpSubscribe)
		}
		t.stopLocked()
		return "", false
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopLocked()
	return "", false
}
