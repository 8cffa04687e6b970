package dialer

import (
	"errors"
	"fmt"
)

// ErrSessionGone marks a presence-query failure that means the session no
// longer exists on the provider side. Providers wrap their "not found"
// errors with it; the manager treats it as proof the call ended.
var ErrSessionGone = errors.New("session no longer exists")

// ValidationError reports a malformed request. It is returned before any
// side effect takes place.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Reason
}

// DispatchError reports that the provider rejected or failed a call
// placement. No registry entry exists when this is returned, and the
// dispatch is not retried.
type DispatchError struct {
	PhoneNumber string
	Cause       error
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("dispatch failed for %s: %v", e.PhoneNumber, e.Cause)
}

func (e *DispatchError) Unwrap() error {
	return e.Cause
}
