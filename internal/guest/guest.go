// Package guest implements the compute-worker side of the shared-region
// call protocol: pack a method's arguments into a wire.Region, post it
// to the service worker over a hostadapter.Transport, and block on the
// region's lock word until the dispatcher completes the call or the
// caller-supplied timeout expires.
//
// This package does not instantiate or run WebAssembly; that loop
// belongs to the embedder. What it provides is the stub a generated (or
// hand-written) WASI preview-1 import would call into: given a method
// name and a way to fill in its parameters, it returns the call's errno
// and a Region to read results and result blobs back out of.
//
// Modeled on wazero's wasi_snapshot_preview1 host function bodies, which
// follow exactly this shape in reverse (decode params from guest memory,
// do the syscall, encode results back into guest memory) — here the
// "syscall" is a round trip to the service worker instead of a direct
// host call.
package guest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/wasicore/runtime/hostadapter"
	"github.com/wasicore/runtime/internal/wasip1"
	"github.com/wasicore/runtime/internal/wire"
	"github.com/wasicore/runtime/wasierrno"
)

// Call is one in-flight request's packed region plus the outcome the
// caller needs: whether it timed out (in which case Region's contents
// must not be read, since the dispatcher may still be writing to it),
// and otherwise the errno the dispatcher recorded.
type Call struct {
	Region    *wire.Region
	TimedOut  bool
	Errno     wasierrno.Errno
}

// HostConnection is one compute worker's connection to its service
// worker. A connection serializes calls: the shared-region protocol has
// exactly one lock word per call, so two calls in flight at once on the
// same connection would race on which region gets Post-ed and waited on
// first. Callers needing concurrency open multiple connections (one per
// compute worker), matching the one-compute-worker-per-thread model.
type HostConnection struct {
	transport hostadapter.Transport
	waiter    hostadapter.Waiter

	mu sync.Mutex
}

// NewHostConnection builds a connection over transport, waking and
// waiting via waiter.
func NewHostConnection(transport hostadapter.Transport, waiter hostadapter.Waiter) *HostConnection {
	return &HostConnection{transport: transport, waiter: waiter}
}

// Request describes one call by method name, the sizes of its binary-in
// (guest-to-host) and binary-out (host-to-guest) areas, and a callback
// that fills in parameters once the region is allocated but before it is
// posted.
type Request struct {
	Method string
	BinIn  uint32
	BinOut uint32
	Setup  func(*wire.Region)
	// Timeout bounds how long Do blocks waiting for the dispatcher to
	// complete the call. Zero means wait forever.
	Timeout time.Duration
}

// Do posts req and blocks until the dispatcher completes it or
// req.Timeout elapses. ctx is checked before each wait on the lock word,
// not during one: a canceled ctx ends Do only once the current wait
// returns.
//
// On timeout, Do returns immediately with TimedOut set; per the
// cancellation contract, the dispatcher is not told to abandon the
// call, so it runs to completion on the service side and its results
// are discarded here. The region must not be reused or its memory
// inspected after a timed-out Do, since the dispatcher may still be
// writing into it; callers that time out should treat the connection's
// request as abandoned for that region going forward.
func (c *HostConnection) Do(ctx context.Context, req Request) (*Call, error) {
	op, ok := wasip1.Lookup(req.Method)
	if !ok {
		return nil, fmt.Errorf("guest: unknown method %q", req.Method)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	sig := wasip1.Table[op]
	layout := wire.ComputeLayout(sig.Params, sig.Results, req.BinIn, req.BinOut)
	region := wire.NewRegion(layout)
	region.SetMethodID(uint32(op))
	region.StoreLock(wire.LockPending)

	if req.Setup != nil {
		req.Setup(region)
	}

	if err := c.transport.Post(ctx, hostadapter.Message{Region: region.Buf}); err != nil {
		return nil, fmt.Errorf("guest: post %s: %w", req.Method, err)
	}

	deadline := req.Timeout
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if region.LoadLock() == wire.LockCompleted {
			break
		}
		woken := c.waiter.Wait(region.LockAddr(), wire.LockPending, deadline)
		if !woken {
			return &Call{Region: region, TimedOut: true}, nil
		}
		// Spurious wake or a wake delivered before the dispatcher set
		// LockCompleted: loop and recheck rather than trusting woken alone.
	}

	return &Call{Region: region, Errno: wasierrno.Errno(region.Errno())}, nil
}

// Scatter describes one result blob that must be copied out of the
// region and into a caller-owned destination (standing in for a span of
// guest linear memory) after a call completes.
type Scatter struct {
	ResultIndex int
	Dest        []byte
}

// ScatterResults copies each described result blob's bytes into its
// destination. Dest must already be sized to the blob's expected length;
// fewer bytes are copied if the blob turned out shorter.
func ScatterResults(region *wire.Region, plan []Scatter) {
	for _, s := range plan {
		data := region.Blob(region.Layout.ResultFieldOffset(s.ResultIndex))
		copy(s.Dest, data)
	}
}
