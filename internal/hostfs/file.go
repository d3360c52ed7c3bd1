package hostfs

import (
	"context"
	"time"

	"github.com/wasicore/runtime/internal/driver"
	"github.com/wasicore/runtime/internal/vfs"
	"github.com/wasicore/runtime/wasierrno"
)

// fileHandle is the driver.File for an open regular file. Per-fd cursor
// state lives here, not in the shared vfs.Node or content cache, so two
// fds opened on the same file have independent cursors (§3 FileDescriptor
// "per-kind state (e.g. file cursor)").
type fileHandle struct {
	driver.Unimplemented
	mount   *Mount
	node    *vfs.Node
	fdflags driver.FdFlags
	cursor  int64
}

func (f *fileHandle) FileType() driver.FileType { return driver.FileTypeRegular }

func (f *fileHandle) FdstatGet(context.Context) (driver.FdFlags, wasierrno.Errno) {
	return f.fdflags, wasierrno.Success
}

func (f *fileHandle) SetFdFlags(_ context.Context, flags driver.FdFlags) wasierrno.Errno {
	f.fdflags = flags
	return wasierrno.Success
}

func (f *fileHandle) FilestatGet(ctx context.Context) (driver.FileStat, wasierrno.Errno) {
	c, errno := f.mount.load(ctx, f.node)
	if errno != wasierrno.Success {
		return driver.FileStat{}, errno
	}
	c.mu.Lock()
	size := uint64(len(c.data))
	c.mu.Unlock()
	return driver.FileStat{Type: driver.FileTypeRegular, Size: size}, wasierrno.Success
}

func (f *fileHandle) SetFilestatSize(ctx context.Context, size uint64) wasierrno.Errno {
	c, errno := f.mount.load(ctx, f.node)
	if errno != wasierrno.Success {
		return errno
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	// Truncate or zero-extend in place; data within the retained range
	// is preserved, per §4.5 "File cursor semantics".
	switch {
	case uint64(len(c.data)) > size:
		c.data = c.data[:size]
	case uint64(len(c.data)) < size:
		grown := make([]byte, size)
		copy(grown, c.data)
		c.data = grown
	}
	return f.mount.flushLocked(ctx, f.node, c)
}

// resetToEndIfAppend repositions f.cursor to end-of-file; called before
// every Write when fdflags.append is set, per §4.5.
func (f *fileHandle) resetToEndIfAppend(ctx context.Context, c *content) {
	if f.fdflags&driver.FdFlagAppend != 0 {
		f.cursor = int64(len(c.data))
	}
}

func (f *fileHandle) Read(ctx context.Context, buf []byte) (int, wasierrno.Errno) {
	n, errno := f.Pread(ctx, buf, f.cursor)
	if errno == wasierrno.Success {
		f.cursor += int64(n)
	}
	return n, errno
}

func (f *fileHandle) Pread(ctx context.Context, buf []byte, offset int64) (int, wasierrno.Errno) {
	c, errno := f.mount.load(ctx, f.node)
	if errno != wasierrno.Success {
		return 0, errno
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if offset < 0 || offset >= int64(len(c.data)) {
		return 0, wasierrno.Success
	}
	n := copy(buf, c.data[offset:])
	return n, wasierrno.Success
}

func (f *fileHandle) Write(ctx context.Context, buf []byte) (int, wasierrno.Errno) {
	c, errno := f.mount.load(ctx, f.node)
	if errno != wasierrno.Success {
		return 0, errno
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	f.resetToEndIfAppend(ctx, c)
	n, errno := f.pwriteLocked(ctx, c, buf, f.cursor)
	if errno == wasierrno.Success {
		f.cursor += int64(n)
	}
	return n, errno
}

func (f *fileHandle) Pwrite(ctx context.Context, buf []byte, offset int64) (int, wasierrno.Errno) {
	c, errno := f.mount.load(ctx, f.node)
	if errno != wasierrno.Success {
		return 0, errno
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return f.pwriteLocked(ctx, c, buf, offset)
}

// pwriteLocked writes buf at offset, growing the cached content as
// needed, then eagerly flushes through the adapter. Caller holds c.mu.
func (f *fileHandle) pwriteLocked(ctx context.Context, c *content, buf []byte, offset int64) (int, wasierrno.Errno) {
	if offset < 0 {
		return 0, wasierrno.Einval
	}
	end := offset + int64(len(buf))
	if end > int64(len(c.data)) {
		grown := make([]byte, end)
		copy(grown, c.data)
		c.data = grown
	}
	n := copy(c.data[offset:], buf)
	if errno := f.mount.flushLocked(ctx, f.node, c); errno != wasierrno.Success {
		return 0, errno
	}
	return n, wasierrno.Success
}

func (f *fileHandle) Seek(_ context.Context, offset int64, whence driver.Whence) (int64, wasierrno.Errno) {
	c := f.mount.contentFor(f.node.Ino)
	c.mu.Lock()
	size := int64(len(c.data))
	c.mu.Unlock()

	var newOffset int64
	switch whence {
	case driver.WhenceSet:
		newOffset = offset
	case driver.WhenceCur:
		newOffset = f.cursor + offset
	case driver.WhenceEnd:
		newOffset = size + offset
	default:
		return 0, wasierrno.Einval
	}
	if newOffset < 0 {
		// Negative results are clamped to 0, per §4.5.
		newOffset = 0
	}
	f.cursor = newOffset
	return newOffset, wasierrno.Success
}

func (f *fileHandle) Tell(context.Context) (int64, wasierrno.Errno) {
	return f.cursor, wasierrno.Success
}

func (f *fileHandle) Sync(ctx context.Context) wasierrno.Errno {
	c := f.mount.contentFor(f.node.Ino)
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.loaded {
		return wasierrno.Success
	}
	return f.mount.flushLocked(ctx, f.node, c)
}

func (f *fileHandle) Datasync(ctx context.Context) wasierrno.Errno { return f.Sync(ctx) }

func (f *fileHandle) Allocate(ctx context.Context, offset, length uint64) wasierrno.Errno {
	target := offset + length
	c, errno := f.mount.load(ctx, f.node)
	if errno != wasierrno.Success {
		return errno
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if target > uint64(len(c.data)) {
		grown := make([]byte, target)
		copy(grown, c.data)
		c.data = grown
		return f.mount.flushLocked(ctx, f.node, c)
	}
	return wasierrno.Success
}

func (f *fileHandle) Advise(context.Context, uint64, uint64, uint8) wasierrno.Errno {
	return wasierrno.Success
}

func (f *fileHandle) BytesAvailable(context.Context, *time.Duration) (bool, wasierrno.Errno) {
	return true, wasierrno.Success
}

// Close releases this handle's pin on f.node. If that was the last pin
// on a tombstoned (unlinked) node, the cached content is reclaimed now,
// per §3's inode refcount invariant.
func (f *fileHandle) Close(context.Context) wasierrno.Errno {
	if f.mount.tree.Unref(f.node) {
		f.mount.dropContent(f.node.Ino)
	}
	return wasierrno.Success
}
