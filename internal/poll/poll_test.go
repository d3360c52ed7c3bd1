package poll

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/wasicore/runtime/internal/driver"
	"github.com/wasicore/runtime/wasierrno"
)

type fakeFile struct {
	driver.Unimplemented
	ready atomic.Bool
}

func newFakeFile(ready bool) *fakeFile {
	f := &fakeFile{}
	f.ready.Store(ready)
	return f
}

func (f *fakeFile) BytesAvailable(context.Context, *time.Duration) (bool, wasierrno.Errno) {
	return f.ready.Load(), wasierrno.Success
}

func TestOneoffEmptyIsEinval(t *testing.T) {
	_, errno := Oneoff(context.Background(), nil)
	require.Equal(t, wasierrno.Einval, errno)
}

func TestOneoffFDAlreadyReady(t *testing.T) {
	subs := []Subscription{
		{UserData: 1, FD: &FDSubscription{File: newFakeFile(true)}},
		{UserData: 2, FD: &FDSubscription{File: newFakeFile(false)}},
	}
	events, errno := Oneoff(context.Background(), subs)
	require.Equal(t, wasierrno.Success, errno)
	require.Len(t, events, 1)
	require.EqualValues(t, 1, events[0].UserData)
}

func TestOneoffClockExpiresImmediately(t *testing.T) {
	subs := []Subscription{
		{UserData: 7, Clock: &ClockSubscription{ID: ClockMonotonic, Timeout: 0}},
	}
	events, errno := Oneoff(context.Background(), subs)
	require.Equal(t, wasierrno.Success, errno)
	require.Len(t, events, 1)
	require.Equal(t, EventTypeClock, events[0].Type)
}

func TestOneoffBlocksUntilDeadlineThenClockReady(t *testing.T) {
	start := time.Now()
	subs := []Subscription{
		{UserData: 3, Clock: &ClockSubscription{ID: ClockMonotonic, Timeout: 20 * time.Millisecond}},
	}
	events, errno := Oneoff(context.Background(), subs)
	require.Equal(t, wasierrno.Success, errno)
	require.Len(t, events, 1)
	require.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}

func TestOneoffFDBecomesReadyBeforeDeadline(t *testing.T) {
	f := newFakeFile(false)
	subs := []Subscription{
		{UserData: 5, FD: &FDSubscription{File: f}},
		{UserData: 6, Clock: &ClockSubscription{ID: ClockMonotonic, Timeout: 50 * time.Millisecond}},
	}

	go func() {
		time.Sleep(5 * time.Millisecond)
		f.ready.Store(true)
	}()

	events, errno := Oneoff(context.Background(), subs)
	require.Equal(t, wasierrno.Success, errno)
	require.NotEmpty(t, events)
}

func TestMonotonicNeverDecreases(t *testing.T) {
	a := Now(ClockMonotonic)
	time.Sleep(time.Millisecond)
	b := Now(ClockMonotonic)
	require.GreaterOrEqual(t, b, a)
}
