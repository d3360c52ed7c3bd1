package hostfs

import (
	"context"
	"sync"

	"github.com/wasicore/runtime/hostadapter"
)

// memFS is a minimal in-memory hostadapter.FileSystem used only by this
// package's tests, modeled on the fake backing stores wazero's own
// sysfs tests construct rather than touching a real filesystem.
type memFS struct {
	mu    sync.Mutex
	files map[string][]byte
	dirs  map[string]bool
}

func newMemFS() *memFS {
	return &memFS{files: map[string][]byte{}, dirs: map[string]bool{"": true}}
}

func (m *memFS) Stat(_ context.Context, uri string) (hostadapter.Stat, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if data, ok := m.files[uri]; ok {
		return hostadapter.Stat{Type: hostadapter.FileTypeFile, Size: uint64(len(data))}, nil
	}
	if m.dirs[uri] {
		return hostadapter.Stat{Type: hostadapter.FileTypeDirectory}, nil
	}
	return hostadapter.Stat{}, hostadapter.ErrNotFound
}

func (m *memFS) ReadFile(_ context.Context, uri string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.files[uri]
	if !ok {
		return nil, hostadapter.ErrNotFound
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

func (m *memFS) WriteFile(_ context.Context, uri string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]byte, len(data))
	copy(cp, data)
	m.files[uri] = cp
	return nil
}

func (m *memFS) ReadDirectory(_ context.Context, uri string) ([]hostadapter.DirEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	prefix := uri + "/"
	var out []hostadapter.DirEntry
	for f := range m.files {
		if rest, ok := trimPrefixNoSlash(f, prefix); ok {
			out = append(out, hostadapter.DirEntry{Name: rest, Type: hostadapter.FileTypeFile})
		}
	}
	for d := range m.dirs {
		if rest, ok := trimPrefixNoSlash(d, prefix); ok {
			out = append(out, hostadapter.DirEntry{Name: rest, Type: hostadapter.FileTypeDirectory})
		}
	}
	return out, nil
}

func trimPrefixNoSlash(s, prefix string) (string, bool) {
	if len(s) <= len(prefix) || s[:len(prefix)] != prefix {
		return "", false
	}
	rest := s[len(prefix):]
	for _, c := range rest {
		if c == '/' {
			return "", false
		}
	}
	return rest, true
}

func (m *memFS) CreateDirectory(_ context.Context, uri string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dirs[uri] = true
	return nil
}

func (m *memFS) Delete(_ context.Context, uri string, _ hostadapter.DeleteOptions) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.files, uri)
	delete(m.dirs, uri)
	return nil
}

func (m *memFS) Rename(_ context.Context, from, to string, _ hostadapter.RenameOptions) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if data, ok := m.files[from]; ok {
		m.files[to] = data
		delete(m.files, from)
		return nil
	}
	if m.dirs[from] {
		m.dirs[to] = true
		delete(m.dirs, from)
		return nil
	}
	return hostadapter.ErrNotFound
}
