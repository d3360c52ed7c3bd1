package process

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/wasicore/runtime/internal/driver"
	"github.com/wasicore/runtime/internal/fd"
	"github.com/wasicore/runtime/wasierrno"
)

type fakeFile struct {
	driver.Unimplemented
	closed bool
}

func (f *fakeFile) Close(context.Context) wasierrno.Errno {
	f.closed = true
	return wasierrno.Success
}

type fakeCloser struct{ closed bool }

func (c *fakeCloser) Close() error {
	c.closed = true
	return nil
}

func TestProcExitSignalsWait(t *testing.T) {
	p := New(context.Background(), fd.New())
	go p.ProcExit(context.Background(), 42)

	got := make(chan int32, 1)
	go func() { got <- p.Wait() }()
	select {
	case code := <-got:
		require.EqualValues(t, 42, code)
	case <-time.After(time.Second):
		t.Fatal("Wait never returned")
	}
}

func TestProcExitClosesEveryFD(t *testing.T) {
	table := fd.New()
	f := &fakeFile{}
	h := table.Insert(&fd.Entry{File: f})

	p := New(context.Background(), table)
	p.ProcExit(context.Background(), 0)

	require.True(t, f.closed)
	_, errno := table.Get(h)
	require.Equal(t, wasierrno.Ebadf, errno)
}

func TestProcExitTearsDownRegisteredClosers(t *testing.T) {
	p := New(context.Background(), fd.New())
	c := &fakeCloser{}
	p.RegisterCloser(c)

	p.ProcExit(context.Background(), 0)
	require.True(t, c.closed)
}

func TestProcExitTerminatesAuxWorkers(t *testing.T) {
	p := New(context.Background(), fd.New())
	started := make(chan struct{})
	stopped := make(chan struct{})
	p.SpawnAux(1, func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		close(stopped)
		return nil
	})

	<-started
	p.ProcExit(context.Background(), 0)

	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("aux worker never stopped")
	}
}

func TestThreadExitOnlyTearsDownItsOwnWorker(t *testing.T) {
	p := New(context.Background(), fd.New())
	aStopped := make(chan struct{})
	bRunning := make(chan struct{})

	p.SpawnAux(1, func(ctx context.Context) error {
		<-ctx.Done()
		close(aStopped)
		return nil
	})
	p.SpawnAux(2, func(ctx context.Context) error {
		close(bRunning)
		<-ctx.Done()
		return nil
	})

	<-bRunning
	p.ThreadExit(1)

	select {
	case <-aStopped:
	case <-time.After(time.Second):
		t.Fatal("worker 1 never stopped")
	}

	select {
	case <-p.result:
		t.Fatal("process should not have exited")
	default:
	}
}

func TestSecondProcExitIsNoop(t *testing.T) {
	p := New(context.Background(), fd.New())
	p.ProcExit(context.Background(), 1)
	p.ProcExit(context.Background(), 2)
	require.EqualValues(t, 1, p.Wait())
}
