// Package fd implements the file-descriptor table: allocation,
// lifecycle, rights, and per-fd state (cursor bookkeeping lives on the
// driver.File itself; this package owns the numeric handle, its rights,
// and its inode pin).
//
// Grounded on wazero's internal/sys.FSContext/FileTable design (a
// descriptor-table-backed map from fd number to an open-file record,
// preopens seeded before guest code runs), adapted here to this
// runtime's own driver.File capability interface and to the spec's
// three-preopen-then-per-mount numbering (stdin/stdout/stderr occupy
// 0..2, each mount point then follows in declaration order starting at
// 3) rather than wazero's single-root-preopen convention.
package fd

import (
	"context"
	"sync"

	"github.com/wasicore/runtime/internal/descriptor"
	"github.com/wasicore/runtime/internal/driver"
	"github.com/wasicore/runtime/wasierrno"
)

// Handle is the numeric fd value exposed to the guest.
type Handle = uint32

// Entry is one open file descriptor's table-owned state.
type Entry struct {
	File             driver.File
	RightsBase       driver.Rights
	RightsInheriting driver.Rights
	FdFlags          driver.FdFlags
	// IsPreopen marks entries created at startup (stdio + mount points);
	// these are never renumbered away from their original slot by
	// allocate() picking the next free id below 3+len(mounts), but they
	// CAN still be closed and reused like any other fd per §4.4.
	IsPreopen bool
	// PreopenPath is the mount-point path this preopen exposes, used by
	// fd_prestat_dir_name; empty for non-preopen entries.
	PreopenPath string
}

// Table is the process-wide fd table. It is safe for concurrent use
// since multiple compute workers' service-side handlers may resolve fds
// concurrently (§5: "calls from different compute workers ... may
// interleave cooperatively").
type Table struct {
	mu    sync.Mutex
	slots descriptor.Table[Handle, *Entry]
}

// New creates an empty table. Preopens are installed by the caller: stdio
// via InsertAt(0..2), and each mount via Insert, which never hands out
// 0-2, so mounts take 3, 4, ... in declaration order, per §4.4.
func New() *Table {
	return &Table{}
}

// Insert allocates the lowest unused handle >= 3 and stores e there.
// Handles 0-2 are reserved for stdio and must be installed with InsertAt.
func (t *Table) Insert(e *Entry) Handle {
	t.mu.Lock()
	defer t.mu.Unlock()
	// Reserve 0-2 permanently for stdio even if not yet occupied, so a
	// non-stdio Insert before stdio setup can never steal those slots.
	for {
		h := t.slots.Insert(e)
		if h >= 3 {
			return h
		}
		// Slot 0-2 was free (stdio not installed yet): park a nil
		// placeholder there and retry for the next free slot.
		t.slots.InsertAt(nil, h)
	}
}

// InsertAt installs e at the exact handle h, overwriting any previous
// occupant (used for preopens and fd_renumber's target slot).
func (t *Table) InsertAt(h Handle, e *Entry) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.slots.InsertAt(e, h)
}

// Get resolves h to its entry, or Ebadf if unoccupied.
func (t *Table) Get(h Handle) (*Entry, wasierrno.Errno) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.slots.Lookup(h)
	if !ok || e == nil {
		return nil, wasierrno.Ebadf
	}
	return e, wasierrno.Success
}

// Remove closes and removes the entry at h, if any, calling File.Close.
// Returns Ebadf if h was not occupied.
func (t *Table) Remove(ctx context.Context, h Handle) wasierrno.Errno {
	t.mu.Lock()
	e, ok := t.slots.Lookup(h)
	if !ok || e == nil {
		t.mu.Unlock()
		return wasierrno.Ebadf
	}
	t.slots.Delete(h)
	t.mu.Unlock()
	return e.File.Close(ctx)
}

// Renumber atomically replaces the occupant of `to` with the occupant of
// `from`, closing whatever was previously at `to`; `from` is left empty.
// Per §4.4/§8 this is atomic with respect to other table operations: a
// concurrent Get(to) never observes a half-renumbered state.
func (t *Table) Renumber(ctx context.Context, from, to Handle) wasierrno.Errno {
	t.mu.Lock()
	src, ok := t.slots.Lookup(from)
	if !ok || src == nil {
		t.mu.Unlock()
		return wasierrno.Ebadf
	}
	prev, hadPrev := t.slots.Lookup(to)
	t.slots.InsertAt(src, to)
	t.slots.Delete(from)
	t.mu.Unlock()
	if hadPrev && prev != nil {
		return prev.File.Close(ctx)
	}
	return wasierrno.Success
}

// Range calls fn for every occupied handle in ascending order.
func (t *Table) Range(fn func(Handle, *Entry) bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.slots.Range(func(h Handle, e *Entry) bool {
		if e == nil {
			return true
		}
		return fn(h, e)
	})
}

// CloseAll closes every occupied fd, used by the process exit cascade
// (§4.9 step "close every FD").
func (t *Table) CloseAll(ctx context.Context) {
	var handles []Handle
	t.mu.Lock()
	t.slots.Range(func(h Handle, e *Entry) bool {
		if e != nil {
			handles = append(handles, h)
		}
		return true
	})
	t.mu.Unlock()
	for _, h := range handles {
		_ = t.Remove(ctx, h)
	}
}

// CheckRight returns Enotcapable if right is not present in e's
// rights_base, per §3's Rights invariant.
func CheckRight(e *Entry, right driver.Rights) wasierrno.Errno {
	if e.RightsBase&right == 0 {
		return wasierrno.Enotcapable
	}
	return wasierrno.Success
}
