package rosweb

import (
	"errors"
	"fmt"
)

// ErrorSentinel is the raw payload reported for a failed request.
const ErrorSentinel = "error"

var (
	ErrChannelBusy         = errors.New("request already in flight on channel")
	ErrBridgeClosed        = errors.New("bridge is closed")
	ErrRequestTimeout      = errors.New("request timed out")
	ErrInvalidBatteryState = errors.New("invalid battery state")
	ErrResponseTooLarge    = errors.New("response body too large")
)

// StatusError is returned by a transport when the bridge answers with a
// non-2xx status.
type StatusError struct {
	Code int
	Path string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("bridge returned status %d for %s", e.Code, e.Path)
}
