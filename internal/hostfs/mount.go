// Package hostfs implements the file-system driver: a single mounted
// device backed by a host file-system adapter (hostadapter.FileSystem),
// owning one inode tree (internal/vfs) and lazily materializing file
// content through the adapter on first read, eagerly flushing it back
// on every write.
//
// Grounded on wazero's experimental/sysfs.FS (a driver.File-shaped
// wrapper around a concrete backing store, constructed with a root URI
// and exposed as one mounted mountable root) generalized here to an
// abstract hostadapter.FileSystem instead of a concrete os.DirFS, since
// this runtime's backing store is always a caller-supplied adapter
// (§6.2), never a real local filesystem the driver opens itself.
package hostfs

import (
	"context"
	"strings"
	"sync"

	"github.com/wasicore/runtime/hostadapter"
	"github.com/wasicore/runtime/internal/driver"
	"github.com/wasicore/runtime/internal/errmap"
	"github.com/wasicore/runtime/internal/vfs"
	"github.com/wasicore/runtime/wasierrno"
)

// content is the lazily-fetched, eagerly-flushed byte cache for one file
// inode. Kept as a sidecar map rather than a field on vfs.Node so the
// inode tree stays a generic, device-agnostic structure.
type content struct {
	mu     sync.Mutex
	loaded bool
	data   []byte
}

// Mount is one mounted host file system: an inode tree rooted at
// mountPoint, with sub-paths resolved against baseURI through adapter.
type Mount struct {
	adapter    hostadapter.FileSystem
	baseURI    string
	mountPoint string

	tree *vfs.Tree

	contentMu sync.Mutex
	contents  map[vfs.Ino]*content
}

// New creates a mount exposing adapter's baseURI subtree at mountPoint.
func New(adapter hostadapter.FileSystem, baseURI, mountPoint string) *Mount {
	return &Mount{
		adapter:    adapter,
		baseURI:    strings.TrimSuffix(baseURI, "/"),
		mountPoint: mountPoint,
		tree:       vfs.New(),
		contents:   make(map[vfs.Ino]*content),
	}
}

// MountPoint returns the absolute path at which this device's root is
// exposed to the guest, reported by fd_prestat_dir_name.
func (m *Mount) MountPoint() string { return m.mountPoint }

// Root returns a driver.File for the device's root directory, suitable
// for installation as a preopen; its rights are those of the fd table
// entry it is installed in.
func (m *Mount) Root() driver.File {
	root := m.tree.Root()
	m.tree.Ref(root)
	return &dirHandle{mount: m, node: root, isPreopen: true}
}

func (m *Mount) uri(n *vfs.Node) string {
	return m.childURI(n, "")
}

// childURI joins baseURI, n's path, and an optional leaf name, without
// introducing doubled slashes when n is the root (whose path is empty)
// or leaf is empty.
func (m *Mount) childURI(n *vfs.Node, leaf string) string {
	parts := []string{m.baseURI}
	if p := nodePath(n); p != "" {
		parts = append(parts, p)
	}
	if leaf != "" {
		parts = append(parts, leaf)
	}
	return strings.Join(parts, "/")
}

// nodePath reconstructs the slash-separated path of n relative to its
// device's root by walking parent links bottom-up, per §3's "the full
// path is derivable bottom-up" invariant.
func nodePath(n *vfs.Node) string {
	if n.Parent == nil {
		return ""
	}
	var parts []string
	for cur := n; cur.Parent != nil; cur = cur.Parent {
		parts = append(parts, cur.Name)
	}
	for i, j := 0, len(parts)-1; i < j; i, j = i+1, j-1 {
		parts[i], parts[j] = parts[j], parts[i]
	}
	return strings.Join(parts, "/")
}

func (m *Mount) contentFor(ino vfs.Ino) *content {
	m.contentMu.Lock()
	defer m.contentMu.Unlock()
	c, ok := m.contents[ino]
	if !ok {
		c = &content{}
		m.contents[ino] = c
	}
	return c
}

func (m *Mount) dropContent(ino vfs.Ino) {
	m.contentMu.Lock()
	delete(m.contents, ino)
	m.contentMu.Unlock()
}

// load fetches and caches n's bytes from the adapter on first touch.
func (m *Mount) load(ctx context.Context, n *vfs.Node) (*content, wasierrno.Errno) {
	c := m.contentFor(n.Ino)
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.loaded {
		return c, wasierrno.Success
	}
	data, err := m.adapter.ReadFile(ctx, m.uri(n))
	if err != nil {
		return nil, errmap.FileSystem(err)
	}
	c.data = data
	c.loaded = true
	return c, wasierrno.Success
}

// flushLocked writes c's current bytes back through the adapter. Caller must
// hold c.mu.
func (m *Mount) flushLocked(ctx context.Context, n *vfs.Node, c *content) wasierrno.Errno {
	if err := m.adapter.WriteFile(ctx, m.uri(n), c.data); err != nil {
		return errmap.FileSystem(err)
	}
	return wasierrno.Success
}

func toDriverType(t hostadapter.FileType) driver.FileType {
	switch t {
	case hostadapter.FileTypeFile:
		return driver.FileTypeRegular
	case hostadapter.FileTypeDirectory:
		return driver.FileTypeDirectory
	default:
		return driver.FileTypeUnknown
	}
}
