package guest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/wasicore/runtime/hostadapter"
	"github.com/wasicore/runtime/internal/wasip1"
	"github.com/wasicore/runtime/internal/wire"
	"github.com/wasicore/runtime/wasierrno"
)

// fakeTransport simulates a service worker for one test: Post hands the
// posted region's bytes to an optional handle callback on a goroutine,
// standing in for the service worker's dispatch loop.
type fakeTransport struct {
	mu     sync.Mutex
	handle func(raw []byte)
}

func (t *fakeTransport) Post(_ context.Context, msg hostadapter.Message) error {
	t.mu.Lock()
	h := t.handle
	t.mu.Unlock()
	if h != nil {
		go h(msg.Region)
	}
	return nil
}

func (t *fakeTransport) OnReceive(func(hostadapter.Message)) {}

func (t *fakeTransport) SpawnWorker(context.Context, string) (hostadapter.WorkerHandle, error) {
	return nil, errors.New("fakeTransport cannot spawn workers")
}

func TestDoSuccessRoundTrip(t *testing.T) {
	transport := &fakeTransport{}
	waiter := wire.NewWaiter()
	conn := NewHostConnection(transport, waiter)

	transport.handle = func(raw []byte) {
		sig := wasip1.Table[wasip1.OpRandomGet]
		layout := wire.ComputeLayout(sig.Params, sig.Results, 0, 4)
		r := &wire.Region{Buf: raw, Layout: layout}

		data := r.Blob(layout.ParamOffset(0))
		copy(data, []byte{9, 8, 7, 6})
		r.SetErrno(uint16(wasierrno.Success))
		r.StoreLock(wire.LockCompleted)
		waiter.Wake(r.LockAddr(), 1)
	}

	call, err := conn.Do(context.Background(), Request{
		Method: "random_get",
		BinOut: 4,
		Setup: func(r *wire.Region) {
			r.PutBlob(r.Layout.ParamOffset(0), r.Layout.BinOutOffset, make([]byte, 4))
		},
	})

	require.NoError(t, err)
	require.False(t, call.TimedOut)
	require.Equal(t, wasierrno.Success, call.Errno)
	require.Equal(t, []byte{9, 8, 7, 6}, call.Region.Blob(call.Region.Layout.ParamOffset(0)))
}

func TestDoUnknownMethodIsError(t *testing.T) {
	conn := NewHostConnection(&fakeTransport{}, wire.NewWaiter())
	_, err := conn.Do(context.Background(), Request{Method: "not_a_real_method"})
	require.Error(t, err)
}

func TestDoTimesOutWithoutReadingResults(t *testing.T) {
	// No handle registered: the region's lock word never completes.
	conn := NewHostConnection(&fakeTransport{}, wire.NewWaiter())

	call, err := conn.Do(context.Background(), Request{
		Method:  "sched_yield",
		Timeout: 20 * time.Millisecond,
	})

	require.NoError(t, err)
	require.True(t, call.TimedOut)
}

func TestDoReturnsOnContextCancellation(t *testing.T) {
	conn := NewHostConnection(&fakeTransport{}, wire.NewWaiter())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := conn.Do(ctx, Request{Method: "sched_yield"})
	require.ErrorIs(t, err, context.Canceled)
}

func TestScatterResultsCopiesBlobIntoDestination(t *testing.T) {
	layout := wire.ComputeLayout(nil, []wire.Field{{Name: "out", Kind: wire.KindBlob}}, 0, 5)
	r := wire.NewRegion(layout)
	r.PutBlob(layout.ResultFieldOffset(0), layout.BinOutOffset, []byte("hello"))

	dest := make([]byte, 5)
	ScatterResults(r, []Scatter{{ResultIndex: 0, Dest: dest}})
	require.Equal(t, "hello", string(dest))
}
