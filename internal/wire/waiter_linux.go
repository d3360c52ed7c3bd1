//go:build linux

package wire

import (
	"time"

	"golang.org/x/sys/unix"
)

// futexWaiter implements hostadapter.Waiter with the real Linux futex
// syscall, so blocking on the shared region's lock word costs no CPU
// while parked. Modeled on golang.org/x/sys/unix's presence in
// hanwen/go-fuse's dependency set, used there for equally low-level
// syscall access from Go.
type futexWaiter struct{}

// NewWaiter returns the platform's atomic wait primitive.
func NewWaiter() Waiter { return futexWaiter{} }

func (futexWaiter) Wait(addr *uint32, expected uint32, timeout time.Duration) bool {
	var ts *unix.Timespec
	if timeout > 0 {
		t := unix.NsecToTimespec(timeout.Nanoseconds())
		ts = &t
	}
	err := unix.Futex(addr, unix.FUTEX_WAIT, int32(expected), ts, nil, 0)
	switch err {
	case nil:
		return true
	case unix.EAGAIN:
		// The value already differed from expected: treat as success.
		return true
	case unix.ETIMEDOUT:
		return false
	default:
		return true
	}
}

func (futexWaiter) Wake(addr *uint32, count int) {
	_ = unix.Futex(addr, unix.FUTEX_WAKE, int32(count), nil, nil, 0)
}
