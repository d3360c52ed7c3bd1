//go:build !linux

package wire

import (
	"sync/atomic"
	"time"
)

// portableWaiter implements hostadapter.Waiter without a kernel futex,
// for platforms hanwen/go-fuse itself only partially supports with raw
// syscalls (its internal/openat, internal/utimens split by GOOS the same
// way). It spins with a short, exponentially-backed-off sleep instead of
// parking in the kernel; correctness (never missing a Wake) is preserved
// because Wait re-checks the value every iteration rather than relying on
// being woken.
type portableWaiter struct{}

// NewWaiter returns the platform's atomic wait primitive.
func NewWaiter() Waiter { return portableWaiter{} }

func (portableWaiter) Wait(addr *uint32, expected uint32, timeout time.Duration) bool {
	deadline := time.Time{}
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}
	backoff := time.Microsecond
	const maxBackoff = time.Millisecond
	for {
		if atomic.LoadUint32(addr) != expected {
			return true
		}
		if !deadline.IsZero() && time.Now().After(deadline) {
			return false
		}
		time.Sleep(backoff)
		if backoff < maxBackoff {
			backoff *= 2
		}
	}
}

func (portableWaiter) Wake(addr *uint32, count int) {
	// No kernel-side parking to wake: waiters are polling and will observe
	// the new value on their next check.
}
