package rosweb

import (
	"context"
	"errors"
)

// PathPrefix is the root of every bridge endpoint.
const PathPrefix = "/ros/"

// Op names a bridge endpoint.
type Op string

const (
	OpSubscribe   Op = "subscribe"
	OpGet         Op = "get"
	OpPublish     Op = "pub"
	OpUnsubscribe Op = "unsubscribe"
	OpAnnounce    Op = "announce"
	OpTfSubscribe Op = "tfsub"
	OpTfGet       Op = "tfget"
	OpStartup     Op = "startup"
	OpShutdown    Op = "shutdown"
)

// Request describes one bridge call.
type Request struct {
	Op      Op
	Name    string
	Payload string
}

// Path renders the request as a bridge path. Name and payload are appended
// verbatim.
func (r Request) Path() string {
	return PathPrefix + string(r.Op) + r.Name + r.Payload
}

// FailureKind classifies a failed Result.
type FailureKind int

const (
	FailureNone FailureKind = iota
	FailureTransport
	FailureStatus
	FailureTimeout
	FailureCanceled
)

func (k FailureKind) String() string {
	switch k {
	case FailureNone:
		return "none"
	case FailureTransport:
		return "transport"
	case FailureStatus:
		return "status"
	case FailureTimeout:
		return "timeout"
	case FailureCanceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// Result is the outcome of one request on a Channel.
type Result struct {
	Request Request
	Payload string
	// StatusCode is set when the bridge answered with a non-2xx status.
	StatusCode int
	Err        error
}

// OK reports whether the request succeeded.
func (r Result) OK() bool { return r.Err == nil }

// Raw returns the payload, or ErrorSentinel when the request failed.
func (r Result) Raw() string {
	if r.Err != nil {
		return ErrorSentinel
	}
	return r.Payload
}

// Kind classifies the failure, if any.
func (r Result) Kind() FailureKind {
	var statusErr *StatusError
	switch {
	case r.Err == nil:
		return FailureNone
	case errors.Is(r.Err, ErrRequestTimeout), errors.Is(r.Err, context.DeadlineExceeded):
		return FailureTimeout
	case errors.Is(r.Err, context.Canceled):
		return FailureCanceled
	case errors.As(r.Err, &statusErr):
		return FailureStatus
	default:
		return FailureTransport
	}
}

// Completion receives the result of a request. It fires exactly once per
// request.
type Completion func(Result)

// Message is what a subscription hands to its consumer.
type Message struct {
	Name           string
	SubscriptionID string
	Result
}

// Handler consumes messages from a subscription. It runs on the
// subscription's loop goroutine; the next poll waits for it to return.
type Handler func(ctx context.Context, msg Message)
