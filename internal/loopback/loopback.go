// Package loopback implements hostadapter.Transport entirely in
// process, for tests that want the full guest/service round trip
// (internal/guest posts, internal/dispatch handles, internal/guest
// wakes back up) without an actual worker runtime underneath. Modeled
// on hanwen/go-fuse's TestFS harness, which wires a real fuse.Server to
// an in-memory loopback FS for its test suite rather than mocking the
// kernel protocol away; here the two Transport halves exercise the
// identical shared-region/lock-word dance a real worker pair would,
// just inside one process and one address space.
package loopback

import (
	"context"
	"fmt"
	"sync"

	"github.com/wasicore/runtime/hostadapter"
	"github.com/wasicore/runtime/internal/dispatch"
	"github.com/wasicore/runtime/internal/wire"
)

// Transport is one half of an in-process pair. Post on one half invokes
// the other half's registered receive callback on a new goroutine,
// mirroring a real worker transport's asynchronous delivery.
type Transport struct {
	mu        sync.Mutex
	peer      *Transport
	onReceive func(hostadapter.Message)
	spawner   func(ctx context.Context, scriptURI string) (hostadapter.WorkerHandle, error)
}

// NewPair returns two connected Transports. By convention the first is
// given to the compute worker side (internal/guest) and the second to
// the service worker side (internal/dispatch via ServeDispatcher), but
// the pair is symmetric.
func NewPair() (a, b *Transport) {
	a = &Transport{}
	b = &Transport{}
	a.peer = b
	b.peer = a
	return a, b
}

func (t *Transport) Post(_ context.Context, msg hostadapter.Message) error {
	t.mu.Lock()
	peer := t.peer
	t.mu.Unlock()

	peer.mu.Lock()
	cb := peer.onReceive
	peer.mu.Unlock()

	if cb == nil {
		return fmt.Errorf("loopback: peer has no receiver registered")
	}
	go cb(msg)
	return nil
}

func (t *Transport) OnReceive(f func(hostadapter.Message)) {
	t.mu.Lock()
	t.onReceive = f
	t.mu.Unlock()
}

// SetSpawner configures the function SpawnWorker delegates to. Tests
// that never spawn additional threads can leave this unset.
func (t *Transport) SetSpawner(f func(ctx context.Context, scriptURI string) (hostadapter.WorkerHandle, error)) {
	t.mu.Lock()
	t.spawner = f
	t.mu.Unlock()
}

func (t *Transport) SpawnWorker(ctx context.Context, scriptURI string) (hostadapter.WorkerHandle, error) {
	t.mu.Lock()
	spawner := t.spawner
	t.mu.Unlock()
	if spawner == nil {
		return nil, fmt.Errorf("loopback: no spawner configured")
	}
	return spawner(ctx, scriptURI)
}

// ServeDispatcher wires transport's receive callback to run every
// incoming call message through d, then marks the region complete and
// wakes whatever is parked on its lock word. Control messages (worker
// lifecycle notifications, not calls) are ignored; a real service
// worker's main loop would route those elsewhere.
func ServeDispatcher(transport hostadapter.Transport, waiter hostadapter.Waiter, d *dispatch.Dispatcher) {
	transport.OnReceive(func(msg hostadapter.Message) {
		if msg.Control != nil {
			return
		}
		region, ok := dispatch.RegionFromBuf(msg.Region)
		if !ok {
			return
		}
		d.Dispatch(context.Background(), region)
		region.StoreLock(wire.LockCompleted)
		waiter.Wake(region.LockAddr(), 1)
	})
}
