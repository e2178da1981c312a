package soc

import (
	"errors"
	"runtime"
	"time"
)

var ErrTimeout = errors.New("poll timeout")

// Poll calls cond until it returns true or timeout has passed. The condition
// is evaluated at least once, even with a zero timeout.
func Poll(timeout time.Duration, cond func() bool) error {
	return PollUntil(time.Now().Add(timeout), cond)
}

// PollUntil is like Poll, but waits until an absolute deadline. Use it to
// share a single timeout across consecutive waits.
func PollUntil(deadline time.Time, cond func() bool) error {
	for {
		if cond() {
			return nil
		}
		if time.Now().After(deadline) {
			return ErrTimeout
		}
		runtime.Gosched()
	}
}
