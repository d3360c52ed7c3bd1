// Package poll implements poll_oneoff and the monotonic/realtime clock
// subsystem: a subscription list of clock deadlines and FD readiness
// queries resolves to the events that are ready, never blocking past the
// earliest requested deadline.
//
// Grounded on wazero's imports/wasi_snapshot_preview1/poll.go
// pollOneoffFn: the same two-pass shape (classify every subscription
// first, computing the smallest outstanding relative timeout, then block
// at most that long) generalized from its single-FD, tty-only readiness
// check to this runtime's driver.File.BytesAvailable used uniformly for
// every FD kind, since here any driver (not only stdio) can report
// readiness.
package poll

import (
	"context"
	"time"

	"github.com/wasicore/runtime/internal/driver"
	"github.com/wasicore/runtime/wasierrno"
)

// EventType distinguishes a ready event's subscription kind.
type EventType uint8

const (
	EventTypeClock EventType = iota
	EventTypeFDRead
	EventTypeFDWrite
)

// ClockID selects a clock source.
type ClockID uint8

const (
	// ClockMonotonic reports nanoseconds from an arbitrary epoch, never
	// decreasing.
	ClockMonotonic ClockID = iota
	// ClockRealtime reports nanoseconds since 1970-01-01T00:00:00Z,
	// non-monotonic.
	ClockRealtime
)

var processStart = time.Now()

// Now returns the current reading of the given clock.
func Now(id ClockID) int64 {
	if id == ClockRealtime {
		return time.Now().UnixNano()
	}
	return time.Since(processStart).Nanoseconds()
}

// Resolution reports the granularity of the given clock. Both clocks are
// backed by the Go runtime's nanosecond-resolution timer.
func Resolution(ClockID) time.Duration { return time.Nanosecond }

// ClockSubscription waits for a clock deadline, relative to now or
// absolute against the clock's own epoch.
type ClockSubscription struct {
	ID       ClockID
	Timeout  time.Duration // nanoseconds, relative unless Absolute
	Absolute bool
}

// FDSubscription waits for an FD to become ready for read or write.
type FDSubscription struct {
	File  driver.File
	Write bool
}

// Subscription is one poll_oneoff entry: exactly one of Clock or FD is
// set.
type Subscription struct {
	UserData uint64
	Clock    *ClockSubscription
	FD       *FDSubscription
}

// Event is one resolved subscription outcome.
type Event struct {
	UserData uint64
	Type     EventType
	Errno    wasierrno.Errno
}

// Oneoff resolves subs and returns the ready events in the order of subs.
// If any subscription is ready on the first check, it returns at once.
// Otherwise, when subs holds a clock subscription, it waits until the
// smallest outstanding clock deadline passes or ctx is canceled, then
// reports every clock subscription together with the FD subscriptions
// ready at that point; an FD that becomes ready during the wait does not
// end it early. When nothing is ready and subs holds no clock
// subscription, it returns an empty event list without blocking.
func Oneoff(ctx context.Context, subs []Subscription) ([]Event, wasierrno.Errno) {
	if len(subs) == 0 {
		return nil, wasierrno.Einval
	}

	events := make([]Event, len(subs))
	ready := make([]bool, len(subs))
	anyReady := false
	haveDeadline := false
	var minDeadline time.Duration

	for i, s := range subs {
		events[i].UserData = s.UserData
		switch {
		case s.Clock != nil:
			events[i].Type = EventTypeClock
			until := s.Clock.Timeout
			if s.Clock.Absolute {
				until = time.Duration(int64(s.Clock.Timeout) - Now(s.Clock.ID))
			}
			if until <= 0 {
				ready[i] = true
				anyReady = true
			} else if !haveDeadline || until < minDeadline {
				minDeadline = until
				haveDeadline = true
			}
		case s.FD != nil:
			if s.FD.Write {
				events[i].Type = EventTypeFDWrite
			} else {
				events[i].Type = EventTypeFDRead
			}
			if r, errno := checkFD(ctx, s.FD); errno != wasierrno.Success {
				events[i].Errno = errno
				ready[i] = true
				anyReady = true
			} else if r {
				ready[i] = true
				anyReady = true
			}
		default:
			return nil, wasierrno.Einval
		}
	}

	if !anyReady && haveDeadline {
		timer := time.NewTimer(minDeadline)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
		}
		for i, s := range subs {
			switch {
			case s.Clock != nil:
				ready[i] = true
				anyReady = true
			case s.FD != nil:
				if r, errno := checkFD(ctx, s.FD); errno != wasierrno.Success {
					events[i].Errno = errno
					ready[i] = true
					anyReady = true
				} else if r {
					ready[i] = true
					anyReady = true
				}
			}
		}
	}

	out := make([]Event, 0, len(subs))
	for i, ok := range ready {
		if ok {
			out = append(out, events[i])
		}
	}
	return out, wasierrno.Success
}

func checkFD(ctx context.Context, fd *FDSubscription) (bool, wasierrno.Errno) {
	return fd.File.BytesAvailable(ctx, nil)
}
