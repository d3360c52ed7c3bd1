package hostfs

import (
	"context"
	"strings"
	"time"

	"github.com/wasicore/runtime/hostadapter"
	"github.com/wasicore/runtime/internal/driver"
	"github.com/wasicore/runtime/internal/errmap"
	"github.com/wasicore/runtime/internal/vfs"
	"github.com/wasicore/runtime/wasierrno"
)

// dirHandle is the driver.File for an open directory fd.
type dirHandle struct {
	driver.Unimplemented
	mount     *Mount
	node      *vfs.Node
	isPreopen bool
}

func (d *dirHandle) FileType() driver.FileType { return driver.FileTypeDirectory }

func (d *dirHandle) FdstatGet(context.Context) (driver.FdFlags, wasierrno.Errno) {
	return 0, wasierrno.Success
}

func (d *dirHandle) FilestatGet(context.Context) (driver.FileStat, wasierrno.Errno) {
	return driver.FileStat{Type: driver.FileTypeDirectory}, wasierrno.Success
}

func (d *dirHandle) PrestatDirName(context.Context) (string, wasierrno.Errno) {
	if !d.isPreopen {
		return "", wasierrno.Enosys
	}
	return d.mount.mountPoint, wasierrno.Success
}

// Close releases this handle's pin on d.node. If that was the last pin
// on a tombstoned node, any cached content for it is reclaimed now,
// per §3's inode refcount invariant.
func (d *dirHandle) Close(context.Context) wasierrno.Errno {
	if d.mount.tree.Unref(d.node) {
		d.mount.dropContent(d.node.Ino)
	}
	return wasierrno.Success
}

func (d *dirHandle) BytesAvailable(context.Context, *time.Duration) (bool, wasierrno.Errno) {
	return true, wasierrno.Success
}

func splitPath(p string) []string {
	var out []string
	for _, seg := range strings.Split(p, "/") {
		if seg != "" && seg != "." {
			out = append(out, seg)
		}
	}
	return out
}

// walkToParent walks every segment but the last under start, creating
// missing intermediate directories as in-memory placeholders per §4.5
// ("creating missing intermediate directory inodes as in-memory
// placeholders while leaving leaf existence to the host adapter's
// stat"). It returns the resolved parent node and the final segment
// name; the leaf itself is resolved by the caller.
func (m *Mount) walkToParent(start *vfs.Node, segments []string) (*vfs.Node, string, wasierrno.Errno) {
	if len(segments) == 0 {
		return start.Parent, start.Name, wasierrno.Success
	}
	cur := start
	for _, seg := range segments[:len(segments)-1] {
		child, ok := m.tree.Lookup(cur, seg)
		if !ok {
			created, ok2 := m.tree.Create(cur, seg, vfs.KindDirectory)
			if !ok2 {
				// Lost a create race: someone else materialized it first.
				child, ok = m.tree.Lookup(cur, seg)
				if !ok {
					return nil, "", wasierrno.Enoent
				}
			} else {
				child = created
			}
		}
		if child.Kind != vfs.KindDirectory {
			return nil, "", wasierrno.Enotdir
		}
		cur = child
	}
	return cur, segments[len(segments)-1], wasierrno.Success
}

// resolveLeaf looks up parent/leaf in the tree, lazily materializing it
// from the host adapter via Stat if the tree does not yet know about it.
// existed reports whether the leaf was found to exist (in the tree or on
// the backing store) before this call.
func (m *Mount) resolveLeaf(ctx context.Context, parent *vfs.Node, leaf string) (node *vfs.Node, existed bool, errno wasierrno.Errno) {
	if child, ok := m.tree.Lookup(parent, leaf); ok {
		return child, true, wasierrno.Success
	}
	uri := m.childURI(parent, leaf)
	st, err := m.adapter.Stat(ctx, uri)
	if err != nil {
		if err == hostadapter.ErrNotFound {
			return nil, false, wasierrno.Success
		}
		return nil, false, errmap.FileSystem(err)
	}
	kind := vfs.KindFile
	if st.Type == hostadapter.FileTypeDirectory {
		kind = vfs.KindDirectory
	}
	child, ok := m.tree.Create(parent, leaf, kind)
	if !ok {
		// Raced with a concurrent materialization; use whatever is there now.
		child, ok = m.tree.Lookup(parent, leaf)
		if !ok {
			return nil, false, wasierrno.Enoent
		}
	}
	return child, true, wasierrno.Success
}

// PathOpen resolves name under d and returns a new driver.File for it,
// applying oflags in the order §4.5 specifies: creat, then excl, then
// directory, then trunc.
func (d *dirHandle) PathOpen(ctx context.Context, name string, _ driver.LookupFlags, oflags driver.OFlags, fdflags driver.FdFlags) (driver.File, wasierrno.Errno) {
	segments := splitPath(name)
	if len(segments) == 0 {
		// path_open(".") duplicates the parent fd with the same rights;
		// the caller (dispatch) fills in rights from this same node.
		d.mount.tree.Ref(d.node)
		return &dirHandle{mount: d.mount, node: d.node}, wasierrno.Success
	}

	parent, leaf, errno := d.mount.walkToParent(d.node, segments)
	if errno != wasierrno.Success {
		return nil, errno
	}

	node, existed, errno := d.mount.resolveLeaf(ctx, parent, leaf)
	if errno != wasierrno.Success {
		return nil, errno
	}

	if !existed {
		if oflags&driver.OFlagCreat == 0 {
			return nil, wasierrno.Enoent
		}
		leafURI := d.mount.childURI(parent, leaf)
		if err := d.mount.adapter.WriteFile(ctx, leafURI, nil); err != nil {
			return nil, errmap.FileSystem(err)
		}
		var ok bool
		node, ok = d.mount.tree.Create(parent, leaf, vfs.KindFile)
		if !ok {
			return nil, wasierrno.Eexist
		}
	} else if oflags&driver.OFlagCreat != 0 && oflags&driver.OFlagExcl != 0 {
		return nil, wasierrno.Eexist
	}

	isDir := node.Kind == vfs.KindDirectory
	if oflags&driver.OFlagDirectory != 0 && !isDir {
		return nil, wasierrno.Enotdir
	}

	d.mount.tree.Ref(node)

	if isDir {
		return &dirHandle{mount: d.mount, node: node}, wasierrno.Success
	}

	fh := &fileHandle{mount: d.mount, node: node, fdflags: fdflags}
	if oflags&driver.OFlagTrunc != 0 {
		if errno := fh.SetFilestatSize(ctx, 0); errno != wasierrno.Success {
			if d.mount.tree.Unref(node) {
				d.mount.dropContent(node.Ino)
			}
			return nil, errno
		}
	}
	return fh, wasierrno.Success
}

func (d *dirHandle) PathCreateDirectory(ctx context.Context, name string) wasierrno.Errno {
	segments := splitPath(name)
	if len(segments) == 0 {
		return wasierrno.Einval
	}
	parent, leaf, errno := d.mount.walkToParent(d.node, segments)
	if errno != wasierrno.Success {
		return errno
	}
	if _, existed, errno := d.mount.resolveLeaf(ctx, parent, leaf); errno != wasierrno.Success {
		return errno
	} else if existed {
		return wasierrno.Eexist
	}
	uri := d.mount.childURI(parent, leaf)
	if err := d.mount.adapter.CreateDirectory(ctx, uri); err != nil {
		return errmap.FileSystem(err)
	}
	if _, ok := d.mount.tree.Create(parent, leaf, vfs.KindDirectory); !ok {
		return wasierrno.Eexist
	}
	return wasierrno.Success
}

func (d *dirHandle) PathRemoveDirectory(ctx context.Context, name string) wasierrno.Errno {
	segments := splitPath(name)
	if len(segments) == 0 {
		return wasierrno.Einval
	}
	parent, leaf, errno := d.mount.walkToParent(d.node, segments)
	if errno != wasierrno.Success {
		return errno
	}
	node, existed, errno := d.mount.resolveLeaf(ctx, parent, leaf)
	if errno != wasierrno.Success {
		return errno
	}
	if !existed {
		return wasierrno.Enoent
	}
	if node.Kind != vfs.KindDirectory {
		return wasierrno.Enotdir
	}
	if len(d.mount.tree.Children(node)) > 0 {
		return wasierrno.Enotempty
	}
	uri := d.mount.uri(node)
	if err := d.mount.adapter.Delete(ctx, uri, hostadapter.DeleteOptions{}); err != nil {
		return errmap.FileSystem(err)
	}
	if _, reclaim, _ := d.mount.tree.Remove(parent, leaf); reclaim {
		d.mount.dropContent(node.Ino)
	}
	return wasierrno.Success
}

func (d *dirHandle) PathUnlinkFile(ctx context.Context, name string) wasierrno.Errno {
	segments := splitPath(name)
	if len(segments) == 0 {
		return wasierrno.Einval
	}
	parent, leaf, errno := d.mount.walkToParent(d.node, segments)
	if errno != wasierrno.Success {
		return errno
	}
	node, existed, errno := d.mount.resolveLeaf(ctx, parent, leaf)
	if errno != wasierrno.Success {
		return errno
	}
	if !existed {
		return wasierrno.Enoent
	}
	if node.Kind == vfs.KindDirectory {
		return wasierrno.Eisdir
	}
	// Force the content cache to hold node's bytes before the backing
	// file goes away: a still-open fd pinning this inode must keep
	// serving its last-loaded bytes after unlink, and it can only do
	// that from the cache, never by re-fetching a now-deleted URI.
	if _, errno := d.mount.load(ctx, node); errno != wasierrno.Success {
		return errno
	}
	uri := d.mount.uri(node)
	if err := d.mount.adapter.Delete(ctx, uri, hostadapter.DeleteOptions{}); err != nil {
		return errmap.FileSystem(err)
	}
	// The tree tombstone above takes effect immediately (name stops
	// resolving). The content cache is different: dropContent only runs
	// once the tombstone and every open handle's Unref have both
	// happened, per §3's inode-refcount invariant, so a pinned fd keeps
	// reading/writing its cached copy until it closes.
	if _, reclaim, _ := d.mount.tree.Remove(parent, leaf); reclaim {
		d.mount.dropContent(node.Ino)
	}
	return wasierrno.Success
}

func (d *dirHandle) PathRename(ctx context.Context, oldName string, newDirFile driver.File, newName string) wasierrno.Errno {
	newDir, ok := newDirFile.(*dirHandle)
	if !ok || newDir.mount != d.mount {
		return wasierrno.Exdev
	}
	oldSegs, newSegs := splitPath(oldName), splitPath(newName)
	if len(oldSegs) == 0 || len(newSegs) == 0 {
		return wasierrno.Einval
	}
	oldParent, oldLeaf, errno := d.mount.walkToParent(d.node, oldSegs)
	if errno != wasierrno.Success {
		return errno
	}
	newParent, newLeaf, errno := d.mount.walkToParent(newDir.node, newSegs)
	if errno != wasierrno.Success {
		return errno
	}
	if _, existed, errno := d.mount.resolveLeaf(ctx, newParent, newLeaf); errno != wasierrno.Success {
		return errno
	} else if existed {
		// §4.6: fails file_exists even if the host adapter could overwrite it.
		return wasierrno.Eexist
	}
	src, existed, errno := d.mount.resolveLeaf(ctx, oldParent, oldLeaf)
	if errno != wasierrno.Success {
		return errno
	}
	if !existed {
		return wasierrno.Enoent
	}
	fromURI := d.mount.uri(src)
	toURI := d.mount.childURI(newParent, newLeaf)
	if err := d.mount.adapter.Rename(ctx, fromURI, toURI, hostadapter.RenameOptions{}); err != nil {
		return errmap.FileSystem(err)
	}
	if !d.mount.tree.Rename(oldParent, oldLeaf, newParent, newLeaf) {
		return wasierrno.UnknownError
	}
	return wasierrno.Success
}

func (d *dirHandle) PathFilestatGet(ctx context.Context, name string) (driver.FileStat, wasierrno.Errno) {
	segments := splitPath(name)
	parent, leaf, errno := d.mount.walkToParent(d.node, segments)
	if errno != wasierrno.Success {
		return driver.FileStat{}, errno
	}
	node, existed, errno := d.mount.resolveLeaf(ctx, parent, leaf)
	if errno != wasierrno.Success {
		return driver.FileStat{}, errno
	}
	if !existed {
		return driver.FileStat{}, wasierrno.Enoent
	}
	if node.Kind == vfs.KindDirectory {
		return driver.FileStat{Type: driver.FileTypeDirectory}, wasierrno.Success
	}
	c, errno := d.mount.load(ctx, node)
	if errno != wasierrno.Success {
		return driver.FileStat{}, errno
	}
	c.mu.Lock()
	size := uint64(len(c.data))
	c.mu.Unlock()
	return driver.FileStat{Type: driver.FileTypeRegular, Size: size}, wasierrno.Success
}

// dirStream folds a fresh host-adapter directory listing into the tree
// (materializing any child the tree does not yet know about) and
// iterates the merged result, per §4.6 "Directory listings are re-read
// from the host adapter on each fd_readdir call and folded into the
// inode tree".
type dirStream struct {
	entries []driver.Dirent
	pos     int
}

func (s *dirStream) Next(context.Context) (driver.Dirent, bool, wasierrno.Errno) {
	if s.pos >= len(s.entries) {
		return driver.Dirent{}, false, wasierrno.Success
	}
	e := s.entries[s.pos]
	s.pos++
	return e, true, wasierrno.Success
}

func (s *dirStream) Close(context.Context) wasierrno.Errno { return wasierrno.Success }

func (d *dirHandle) Readdir(ctx context.Context, cookie uint64) (driver.DirStream, wasierrno.Errno) {
	listing, err := d.mount.adapter.ReadDirectory(ctx, d.mount.uri(d.node))
	if err != nil {
		return nil, errmap.FileSystem(err)
	}
	entries := make([]driver.Dirent, 0, len(listing))
	for i, de := range listing {
		if _, ok := d.mount.tree.Lookup(d.node, de.Name); !ok {
			kind := vfs.KindFile
			if de.Type == hostadapter.FileTypeDirectory {
				kind = vfs.KindDirectory
			}
			d.mount.tree.Create(d.node, de.Name, kind)
		}
		entries = append(entries, driver.Dirent{
			Name:   de.Name,
			Type:   toDriverType(de.Type),
			Cookie: uint64(i + 1),
		})
	}
	if cookie > uint64(len(entries)) {
		cookie = uint64(len(entries))
	}
	return &dirStream{entries: entries[cookie:]}, wasierrno.Success
}
