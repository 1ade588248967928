package rosweb

import (
	"context"
	"time"
)

// Tf polls a coordinate transform at a fixed interval.
//
// Unlike Topic, clearing the handler does not end polling; only Stop,
// cancelling the context passed to SetCallback or closing the Bridge does.
type Tf struct {
	subscription

	interval time.Duration
}

// SetCallback installs h and, when interval > 0, the poll interval. It
// starts polling unless a loop is already running.
func (t *Tf) SetCallback(ctx context.Context, h Handler, interval time.Duration) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.handler = h
	if interval > 0 {
		t.interval = interval
	}
	if t.active {
		return nil
	}

	return t.startLocked(ctx, OpTfSubscribe, t.advance)
}

// Interval returns the delay between a get completion and the next get.
func (t *Tf) Interval() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.interval
}

func (t *Tf) advance(ctx context.Context, step Op, res Result) (Op, bool) {
	if step == OpTfGet {
		t.dispatch(ctx, t.currentHandler(), res)

		timer := t.clock.Timer(t.Interval())
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
		}
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if ctx.Err() != nil {
		t.stopLocked()
		return "", false
	}
	return t.issueNextLocked(ctx, OpTfGet)
}
