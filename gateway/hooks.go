package gateway

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/BaSui01/toolbridge/types"
)

// CallEvent describes one backend call made on behalf of a tool invocation.
type CallEvent struct {
	InvocationID string
	Tool         string
	Operation    string
	Method       string
	Status       int
	StatusClass  string
	Duration     time.Duration
	ErrorType    string
}

// Hooks receives call-site events. Implementations must be safe for
// concurrent use; composite steps report from their own goroutines.
type Hooks interface {
	OnCall(event CallEvent)
}

// HooksFunc adapts a function to Hooks.
type HooksFunc func(event CallEvent)

// OnCall implements Hooks.
func (f HooksFunc) OnCall(event CallEvent) { f(event) }

type nopHooks struct{}

func (nopHooks) OnCall(CallEvent) {}

// StatusClass buckets an HTTP status ("2xx" ... "5xx"). Zero means no
// response was received.
func StatusClass(status int) string {
	if status < 100 || status > 599 {
		return "none"
	}
	return fmt.Sprintf("%dxx", status/100)
}

// ErrorType classifies a call failure for hooks and logs. Successful
// responses with an error status report "HTTP_ERROR".
func ErrorType(status int, err error) string {
	switch {
	case err == nil && status >= 400:
		return "HTTP_ERROR"
	case err == nil:
		return ""
	case errors.Is(err, context.Canceled):
		return "CANCELED"
	case errors.Is(err, context.DeadlineExceeded):
		return "DEADLINE_EXCEEDED"
	}
	if code := types.GetErrorCode(err); code != "" {
		return string(code)
	}
	return "UNKNOWN"
}
