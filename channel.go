package rosweb

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Channel is a request slot with at most one request in flight. It remembers
// the result of the last completed request.
type Channel struct {
	transport Transport
	options   Options
	metrics   *metrics
	logger    *zap.Logger

	mu       sync.Mutex
	inFlight bool
	last     Result
	sent     uint64
}

// Send issues req asynchronously. done, if non-nil, fires exactly once after
// the request finished, whether it succeeded or not. By then Last already
// returns the new result and the channel accepts the next Send.
//
// Send returns ErrChannelBusy without touching the transport when a request
// is still in flight.
func (c *Channel) Send(ctx context.Context, req Request, done Completion) error {
	c.mu.Lock()
	if c.inFlight {
		c.mu.Unlock()
		return ErrChannelBusy
	}
	c.inFlight = true
	c.sent++
	c.mu.Unlock()

	go c.complete(ctx, req, done)
	return nil
}

func (c *Channel) complete(ctx context.Context, req Request, done Completion) {
	start := c.options.Clock.Now()
	res := c.execute(ctx, req)
	c.metrics.observeRequest(req.Op, res, c.options.Clock.Since(start))

	if res.OK() {
		c.logger.Debug("bridge request completed", zap.String("path", req.Path()))
	} else {
		c.logger.Warn("bridge request failed",
			zap.String("path", req.Path()),
			zap.Stringer("kind", res.Kind()),
			zap.Error(res.Err))
	}

	c.mu.Lock()
	c.last = res
	c.inFlight = false
	c.mu.Unlock()

	if done != nil {
		done(res)
	}
}

// execute runs the attempts for one request, backing off between failures.
func (c *Channel) execute(ctx context.Context, req Request) Result {
	backoff := c.options.RetryBackoff

	for attempt := 1; ; attempt++ {
		res := c.attempt(ctx, req)
		if res.OK() || attempt >= c.options.MaxAttempts || ctx.Err() != nil {
			return res
		}

		c.metrics.observeRetry(req.Op)
		c.logger.Debug("retrying bridge request",
			zap.String("path", req.Path()),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", backoff))

		timer := c.options.Clock.Timer(backoff)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return Result{Request: req, Err: ctx.Err()}
		}

		backoff *= 2
		if backoff > c.options.MaxRetryBackoff {
			backoff = c.options.MaxRetryBackoff
		}
	}
}

func (c *Channel) attempt(ctx context.Context, req Request) Result {
	path := req.Path()

	attemptCtx, cancel := ctx, context.CancelFunc(func() {})
	if c.options.RequestTimeout > 0 {
		attemptCtx, cancel = context.WithTimeout(ctx, c.options.RequestTimeout)
	}
	defer cancel()

	body, err := c.transport.RoundTrip(attemptCtx, path)
	if err != nil {
		if ctx.Err() == nil && errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
			err = fmt.Errorf("%w: %s after %s", ErrRequestTimeout, path, c.options.RequestTimeout)
		}

		res := Result{Request: req, Err: err}
		var statusErr *StatusError
		if errors.As(err, &statusErr) {
			res.StatusCode = statusErr.Code
		}
		return res
	}

	return Result{Request: req, Payload: body}
}

// Last returns the result of the most recently completed request.
func (c *Channel) Last() Result {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last
}

// InFlight reports whether a request is outstanding.
func (c *Channel) InFlight() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inFlight
}

// Sent returns how many requests were accepted by Send.
func (c *Channel) Sent() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sent
}

func newChannel(transport Transport, options Options, m *metrics) *Channel {
	return &Channel{
		transport: transport,
		options:   options,
		metrics:   m,
		logger:    options.Logger,
	}
}

// NewChannel creates a standalone channel over transport.
func NewChannel(transport Transport, opts ...Option) *Channel {
	options := buildOptions(opts)
	return newChannel(transport, options, newMetrics(options.Registerer))
}
