package dispatch

import (
	"context"
	"sync"
	"time"

	"github.com/wasicore/runtime/hostadapter"
	"github.com/wasicore/runtime/internal/driver"
	"github.com/wasicore/runtime/wasierrno"
)

// loopbackFile is a minimal read/write driver.File backed by an
// in-memory byte slice, used only to exercise fd_read/fd_write dispatch
// without pulling in a whole mount.
type loopbackFile struct {
	driver.Unimplemented
	mu   sync.Mutex
	data []byte
}

func newLoopbackFile() *loopbackFile { return &loopbackFile{} }

func (f *loopbackFile) FileType() driver.FileType { return driver.FileTypeRegular }

func (f *loopbackFile) Write(_ context.Context, buf []byte) (int, wasierrno.Errno) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data = append(f.data, buf...)
	return len(buf), wasierrno.Success
}

func (f *loopbackFile) Read(_ context.Context, buf []byte) (int, wasierrno.Errno) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := copy(buf, f.data)
	f.data = f.data[n:]
	return n, wasierrno.Success
}

func (f *loopbackFile) BytesAvailable(context.Context, *time.Duration) (bool, wasierrno.Errno) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.data) > 0, wasierrno.Success
}

func (f *loopbackFile) Close(context.Context) wasierrno.Errno { return wasierrno.Success }

// memFSForDispatch is a minimal in-memory hostadapter.FileSystem used
// only by this package's path_open/path_create_directory tests.
type memFSForDispatch struct {
	mu   sync.Mutex
	dirs map[string]bool
}

func newMemFSForDispatch() *memFSForDispatch {
	return &memFSForDispatch{dirs: map[string]bool{"": true}}
}

func (m *memFSForDispatch) Stat(_ context.Context, uri string) (hostadapter.Stat, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.dirs[uri] {
		return hostadapter.Stat{Type: hostadapter.FileTypeDirectory}, nil
	}
	return hostadapter.Stat{}, hostadapter.ErrNotFound
}

func (m *memFSForDispatch) ReadFile(context.Context, string) ([]byte, error) {
	return nil, hostadapter.ErrNotFound
}

func (m *memFSForDispatch) WriteFile(context.Context, string, []byte) error { return nil }

func (m *memFSForDispatch) ReadDirectory(context.Context, string) ([]hostadapter.DirEntry, error) {
	return nil, nil
}

func (m *memFSForDispatch) CreateDirectory(_ context.Context, uri string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dirs[uri] = true
	return nil
}

func (m *memFSForDispatch) Delete(_ context.Context, uri string, _ hostadapter.DeleteOptions) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.dirs, uri)
	return nil
}

func (m *memFSForDispatch) Rename(_ context.Context, from, to string, _ hostadapter.RenameOptions) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.dirs[from] {
		m.dirs[to] = true
		delete(m.dirs, from)
		return nil
	}
	return hostadapter.ErrNotFound
}
