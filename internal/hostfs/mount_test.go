package hostfs

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wasicore/runtime/internal/driver"
	"github.com/wasicore/runtime/wasierrno"
)

func TestPathRoundTrip(t *testing.T) {
	ctx := context.Background()
	m := New(newMemFS(), "mem://root", "/mnt")
	root := m.Root()

	require.Equal(t, wasierrno.Success, root.PathCreateDirectory(ctx, "a"))

	f, errno := root.PathOpen(ctx, "a/b.txt", 0, driver.OFlagCreat|driver.OFlagTrunc, 0)
	require.Equal(t, wasierrno.Success, errno)
	n, errno := f.Write(ctx, []byte("hello"))
	require.Equal(t, wasierrno.Success, errno)
	require.Equal(t, 5, n)
	require.Equal(t, wasierrno.Success, f.Close(ctx))

	f2, errno := root.PathOpen(ctx, "a/b.txt", 0, 0, 0)
	require.Equal(t, wasierrno.Success, errno)
	buf := make([]byte, 5)
	n, errno = f2.Read(ctx, buf)
	require.Equal(t, wasierrno.Success, errno)
	require.Equal(t, 5, n)
	require.Equal(t, "hello", string(buf))
}

func TestAppendInvariant(t *testing.T) {
	ctx := context.Background()
	m := New(newMemFS(), "mem://root", "/mnt")
	root := m.Root()

	f, errno := root.PathOpen(ctx, "c.txt", 0, driver.OFlagCreat, 0)
	require.Equal(t, wasierrno.Success, errno)
	_, errno = f.Write(ctx, []byte("abc"))
	require.Equal(t, wasierrno.Success, errno)

	fa, errno := root.PathOpen(ctx, "c.txt", 0, 0, driver.FdFlagAppend)
	require.Equal(t, wasierrno.Success, errno)
	n, errno := fa.Write(ctx, []byte("de"))
	require.Equal(t, wasierrno.Success, errno)
	require.Equal(t, 2, n)

	off, errno := fa.Tell(ctx)
	require.Equal(t, wasierrno.Success, errno)
	require.EqualValues(t, 5, off, "cursor equals the post-write file size")

	st, errno := fa.FilestatGet(ctx)
	require.Equal(t, wasierrno.Success, errno)
	require.EqualValues(t, 5, st.Size)

	buf := make([]byte, 2)
	_, errno = fa.Pread(ctx, buf, 3)
	require.Equal(t, wasierrno.Success, errno)
	require.Equal(t, "de", string(buf), "the last |buf| bytes equal buf")
}

func TestPathCreateDirectoryThenOpenReportsDirectory(t *testing.T) {
	ctx := context.Background()
	m := New(newMemFS(), "mem://root", "/mnt")
	root := m.Root()

	require.Equal(t, wasierrno.Success, root.PathCreateDirectory(ctx, "d"))
	f, errno := root.PathOpen(ctx, "d", 0, driver.OFlagDirectory, 0)
	require.Equal(t, wasierrno.Success, errno)
	require.Equal(t, driver.FileTypeDirectory, f.FileType())
}

func TestPathRemoveDirectoryThenStatFails(t *testing.T) {
	ctx := context.Background()
	m := New(newMemFS(), "mem://root", "/mnt")
	root := m.Root()

	require.Equal(t, wasierrno.Success, root.PathCreateDirectory(ctx, "e"))
	require.Equal(t, wasierrno.Success, root.PathRemoveDirectory(ctx, "e"))

	_, errno := root.PathFilestatGet(ctx, "e")
	require.Equal(t, wasierrno.Enoent, errno)
}

func TestPathRemoveDirectoryNonEmptyFails(t *testing.T) {
	ctx := context.Background()
	m := New(newMemFS(), "mem://root", "/mnt")
	root := m.Root()

	require.Equal(t, wasierrno.Success, root.PathCreateDirectory(ctx, "f"))
	f, errno := root.PathOpen(ctx, "f/x.txt", 0, driver.OFlagCreat, 0)
	require.Equal(t, wasierrno.Success, errno)
	require.Equal(t, wasierrno.Success, f.Close(ctx))

	require.Equal(t, wasierrno.Enotempty, root.PathRemoveDirectory(ctx, "f"))
}

func TestPathOpenExclFailsWhenExists(t *testing.T) {
	ctx := context.Background()
	m := New(newMemFS(), "mem://root", "/mnt")
	root := m.Root()

	f, errno := root.PathOpen(ctx, "g.txt", 0, driver.OFlagCreat, 0)
	require.Equal(t, wasierrno.Success, errno)
	require.Equal(t, wasierrno.Success, f.Close(ctx))

	_, errno = root.PathOpen(ctx, "g.txt", 0, driver.OFlagCreat|driver.OFlagExcl, 0)
	require.Equal(t, wasierrno.Eexist, errno)
}

func TestPathRenameFailsIfDestinationExists(t *testing.T) {
	ctx := context.Background()
	m := New(newMemFS(), "mem://root", "/mnt")
	root := m.Root()

	for _, name := range []string{"h1.txt", "h2.txt"} {
		f, errno := root.PathOpen(ctx, name, 0, driver.OFlagCreat, 0)
		require.Equal(t, wasierrno.Success, errno)
		require.Equal(t, wasierrno.Success, f.Close(ctx))
	}

	require.Equal(t, wasierrno.Eexist, root.PathRename(ctx, "h1.txt", root, "h2.txt"))
}

func TestUnlinkDoesNotBreakAlreadyOpenHandle(t *testing.T) {
	ctx := context.Background()
	m := New(newMemFS(), "mem://root", "/mnt")
	root := m.Root()

	a, errno := root.PathOpen(ctx, "j.txt", 0, driver.OFlagCreat, 0)
	require.Equal(t, wasierrno.Success, errno)
	_, errno = a.Write(ctx, []byte("pinned"))
	require.Equal(t, wasierrno.Success, errno)
	_, errno = a.Seek(ctx, 0, driver.WhenceSet)
	require.Equal(t, wasierrno.Success, errno)

	require.Equal(t, wasierrno.Success, root.PathUnlinkFile(ctx, "j.txt"))

	_, errno = root.PathFilestatGet(ctx, "j.txt")
	require.Equal(t, wasierrno.Enoent, errno, "the name no longer resolves")

	buf := make([]byte, 6)
	n, errno := a.Read(ctx, buf)
	require.Equal(t, wasierrno.Success, errno, "a still-open handle keeps serving its pinned content")
	require.Equal(t, 6, n)
	require.Equal(t, "pinned", string(buf))

	require.Equal(t, wasierrno.Success, a.Close(ctx))

	b, errno := root.PathOpen(ctx, "j.txt", 0, driver.OFlagCreat, 0)
	require.Equal(t, wasierrno.Success, errno, "recreating under the same name gets a fresh, empty file")
	st, errno := b.FilestatGet(ctx)
	require.Equal(t, wasierrno.Success, errno)
	require.EqualValues(t, 0, st.Size)
}

func TestSeekClampsNegativeToZero(t *testing.T) {
	ctx := context.Background()
	m := New(newMemFS(), "mem://root", "/mnt")
	root := m.Root()

	f, errno := root.PathOpen(ctx, "i.txt", 0, driver.OFlagCreat, 0)
	require.Equal(t, wasierrno.Success, errno)

	off, errno := f.Seek(ctx, -10, driver.WhenceSet)
	require.Equal(t, wasierrno.Success, errno)
	require.EqualValues(t, 0, off)
}
