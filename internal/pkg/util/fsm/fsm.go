package fsm

import (
	"context"
	"errors"

	"github.com/looplab/fsm"
)

// WrapEvent adapts an error-returning callback to looplab/fsm. A returned
// error is stored on the event, which aborts a before_ transition.
func WrapEvent(fn func(ctx context.Context, event *fsm.Event) error) fsm.Callback {
	return func(ctx context.Context, event *fsm.Event) {
		if err := fn(ctx, event); err != nil {
			event.Cancel(err)
		}
	}
}

// IsRealError filters out the errors looplab/fsm uses for control flow:
// NoTransitionError (already in the target state) and a cancellation
// without an underlying cause.
func IsRealError(err error) bool {
	if err == nil {
		return false
	}
	var noTransition fsm.NoTransitionError
	if errors.As(err, &noTransition) {
		return false
	}
	var canceled fsm.CanceledError
	if errors.As(err, &canceled) {
		return canceled.Err != nil
	}
	return true
}

// Cause unwraps a CanceledError to the error that cancelled it.
func Cause(err error) error {
	var canceled fsm.CanceledError
	if errors.As(err, &canceled) && canceled.Err != nil {
		return canceled.Err
	}
	return err
}
