// Package process implements the process/thread lifecycle: one main
// worker, zero or more auxiliary workers spawned by thread-spawn, and
// the exit cascade that tears both down.
//
// Grounded on rclone's backend/combine.Fs construction (combine.go),
// which fans out one errgroup.Group goroutine per upstream sharing a
// single derived context and a mutex-guarded map — the same shape used
// here for auxiliary workers sharing one process's fd table and
// cancellation context, except a worker's lifetime is independently
// cancelable (thread-exit) rather than only jointly canceled on the
// first error.
package process

import (
	"context"
	"io"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/wasicore/runtime/internal/fd"
)

// Worker tracks one auxiliary worker's cancellation.
type Worker struct {
	TID    uint32
	cancel context.CancelFunc
}

// Process owns the shared state every worker (main and auxiliary) of one
// guest process operates against: the fd table and the exit cascade.
type Process struct {
	fds *fd.Table

	group    *errgroup.Group
	groupCtx context.Context

	mu      sync.Mutex
	workers map[uint32]*Worker
	closers []io.Closer

	result     chan int32
	resultOnce sync.Once
}

// New creates a process sharing fds across every worker it spawns.
// ctx is the parent for every worker's context; canceling it (e.g. via
// an external Terminate) unblocks every worker's own ctx.Done().
func New(ctx context.Context, fds *fd.Table) *Process {
	g, gctx := errgroup.WithContext(ctx)
	return &Process{
		fds:      fds,
		group:    g,
		groupCtx: gctx,
		workers:  make(map[uint32]*Worker),
		result:   make(chan int32, 1),
	}
}

// RegisterCloser adds c to the set torn down by the exit cascade (pipes,
// terminals), alongside the FD table.
func (p *Process) RegisterCloser(c io.Closer) {
	p.mu.Lock()
	p.closers = append(p.closers, c)
	p.mu.Unlock()
}

// SpawnAux starts an auxiliary worker under tid running fn, which should
// return when its context is canceled. The worker is torn down either by
// ThreadExit(tid) or by the process-wide exit cascade.
func (p *Process) SpawnAux(tid uint32, fn func(ctx context.Context) error) {
	ctx, cancel := context.WithCancel(p.groupCtx)
	p.mu.Lock()
	p.workers[tid] = &Worker{TID: tid, cancel: cancel}
	p.mu.Unlock()

	p.group.Go(func() error {
		defer p.forgetWorker(tid)
		return fn(ctx)
	})
}

func (p *Process) forgetWorker(tid uint32) {
	p.mu.Lock()
	delete(p.workers, tid)
	p.mu.Unlock()
}

// ThreadExit tears down only tid's own resources: its context is
// canceled so its worker goroutine returns, but the process keeps
// running.
func (p *Process) ThreadExit(tid uint32) {
	p.mu.Lock()
	w, ok := p.workers[tid]
	delete(p.workers, tid)
	p.mu.Unlock()
	if ok {
		w.cancel()
	}
}

// ProcExit runs the full exit cascade: signal rval to Wait, terminate
// every auxiliary worker, close every FD, and tear down every registered
// closer. Only the first call takes effect; later calls are no-ops,
// matching "a main worker exit without proc_exit is treated as
// proc_exit(0)" collapsing to the same single cascade regardless of how
// it was triggered.
func (p *Process) ProcExit(ctx context.Context, rval int32) {
	p.resultOnce.Do(func() {
		p.result <- rval
		p.terminateAuxWorkers()
		p.fds.CloseAll(ctx)
		p.teardownClosers()
	})
}

// Terminate runs the same cascade as ProcExit(0) but is invoked from the
// host side rather than by the guest calling proc_exit.
func (p *Process) Terminate(ctx context.Context) {
	p.ProcExit(ctx, 0)
}

func (p *Process) terminateAuxWorkers() {
	p.mu.Lock()
	workers := make([]*Worker, 0, len(p.workers))
	for _, w := range p.workers {
		workers = append(workers, w)
	}
	p.mu.Unlock()
	for _, w := range workers {
		w.cancel()
	}
	_ = p.group.Wait()
}

func (p *Process) teardownClosers() {
	p.mu.Lock()
	closers := p.closers
	p.closers = nil
	p.mu.Unlock()
	for _, c := range closers {
		_ = c.Close()
	}
}

// Wait blocks until the process has exited and returns its result code.
func (p *Process) Wait() int32 {
	return <-p.result
}
