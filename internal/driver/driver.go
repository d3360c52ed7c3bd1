// Package driver defines the device-driver capability set: the
// polymorphic interface every mounted device (a file system, stdio, a
// terminal, a console) implements. A driver need only implement what its
// filetype supports; unsupported operations return wasierrno.Enosys
// ("no_system").
//
// Modeled on wazero's fsapi.File/Dir interfaces (methods named
// Read/Pread/Seek/Readdir/Truncate/... each returning a syscall.Errno),
// generalized here to path-based directory operations (path_open,
// path_rename, ...) which that design splits across a separate FSContext
// instead, and re-typed onto wasierrno.Errno so the capability set is
// independent of the host OS's syscall package: this runtime's backing
// store is an abstract host adapter, not always a real OS file system.
package driver

import (
	"context"
	"time"

	"github.com/wasicore/runtime/wasierrno"
)

// FileType is the file descriptor's kind enumeration.
type FileType uint8

const (
	FileTypeUnknown FileType = iota
	FileTypeRegular
	FileTypeDirectory
	FileTypeCharacterDevice
	FileTypePipe
	FileTypeSocket
)

// FdFlags are the per-fd flags (fs_flags in WASI terms).
type FdFlags uint16

const (
	FdFlagAppend FdFlags = 1 << iota
	FdFlagDsync
	FdFlagNonblock
	FdFlagRsync
	FdFlagSync
)

// OFlags are path_open's open flags.
type OFlags uint16

const (
	OFlagCreat OFlags = 1 << iota
	OFlagDirectory
	OFlagExcl
	OFlagTrunc
)

// LookupFlags control path resolution.
type LookupFlags uint32

const (
	LookupFlagSymlinkFollow LookupFlags = 1 << iota
)

// Whence selects fd_seek's origin.
type Whence uint8

const (
	WhenceSet Whence = iota
	WhenceCur
	WhenceEnd
)

// Rights is the capability bitset. Bit meanings follow WASI preview-1's
// rights_base/rights_inheriting split.
type Rights uint64

const (
	RightFdDatasync Rights = 1 << iota
	RightFdRead
	RightFdSeek
	RightFdFdstatSetFlags
	RightFdSync
	RightFdTell
	RightFdWrite
	RightFdAdvise
	RightFdAllocate
	RightPathCreateDirectory
	RightPathCreateFile
	RightPathLinkSource
	RightPathLinkTarget
	RightPathOpen
	RightFdReaddir
	RightPathReadlink
	RightPathRenameSource
	RightPathRenameTarget
	RightPathFilestatGet
	RightPathFilestatSetSize
	RightPathFilestatSetTimes
	RightFdFilestatGet
	RightFdFilestatSetSize
	RightFdFilestatSetTimes
	RightPathSymlink
	RightPathRemoveDirectory
	RightPathUnlinkFile
	RightPollFdReadwrite
)

// dirOnlyRights is the set of bits meaningful only on a directory FD;
// path_open strips these from a file's inherited rights_base.
const dirOnlyRights = RightPathCreateDirectory | RightPathCreateFile |
	RightPathLinkSource | RightPathLinkTarget | RightPathOpen | RightFdReaddir |
	RightPathReadlink | RightPathRenameSource | RightPathRenameTarget |
	RightPathFilestatGet | RightPathFilestatSetSize | RightPathFilestatSetTimes |
	RightPathSymlink | RightPathRemoveDirectory | RightPathUnlinkFile

// fileOnlyRights is the complementary set, meaningful only on a regular
// file.
const fileOnlyRights = RightFdDatasync | RightFdRead | RightFdSeek |
	RightFdSync | RightFdTell | RightFdWrite | RightFdAdvise | RightFdAllocate

// Inherit computes a child's rights_base/rights_inheriting when opening
// it via path_open: the child's
// rights_base is (parent.rights_inheriting & requested) with the bits
// that only make sense for the opposite kind removed, and its
// rights_inheriting is filtered the same way.
func Inherit(parentInheriting, requestedBase, requestedInheriting Rights, childIsDir bool) (base, inheriting Rights) {
	opposite := fileOnlyRights
	if !childIsDir {
		opposite = dirOnlyRights
	}
	base = (parentInheriting & requestedBase) &^ opposite
	inheriting = (parentInheriting & requestedInheriting) &^ opposite
	return base, inheriting
}

// FileStat mirrors the host adapter's Stat shape, extended with the WASI
// filetype tag a caller needs to interpret it.
type FileStat struct {
	Type    FileType
	Size    uint64
	MtimeMs int64
	CtimeMs int64
}

// Dirent is one entry yielded by Readdir.
type Dirent struct {
	Name string
	Type FileType
	// Cookie is the opaque position to resume a subsequent fd_readdir
	// from, matching WASI's d_next cookie semantics.
	Cookie uint64
}

// DirStream is a stateful cursor over a directory's entries, returned by
// File.Readdir. Directory listings are re-read fresh on each fd_readdir
// call rather than cached across calls.
type DirStream interface {
	// Next returns the next entry, or ok=false at end of stream.
	Next(ctx context.Context) (entry Dirent, ok bool, errno wasierrno.Errno)
	Close(ctx context.Context) wasierrno.Errno
}

// File is the capability set of every open file descriptor's
// driver-specific behavior. A driver should embed Unimplemented to get
// wasierrno.Enosys defaults for anything it does not support; a driver
// need implement only what its filetype actually supports.
type File interface {
	FileType() FileType

	// --- Metadata ---
	FdstatGet(ctx context.Context) (flags FdFlags, errno wasierrno.Errno)
	SetFdFlags(ctx context.Context, flags FdFlags) wasierrno.Errno
	FilestatGet(ctx context.Context) (FileStat, wasierrno.Errno)
	SetFilestatSize(ctx context.Context, size uint64) wasierrno.Errno

	// --- File I/O ---
	Read(ctx context.Context, buf []byte) (n int, errno wasierrno.Errno)
	Write(ctx context.Context, buf []byte) (n int, errno wasierrno.Errno)
	Pread(ctx context.Context, buf []byte, offset int64) (n int, errno wasierrno.Errno)
	Pwrite(ctx context.Context, buf []byte, offset int64) (n int, errno wasierrno.Errno)
	Seek(ctx context.Context, offset int64, whence Whence) (newOffset int64, errno wasierrno.Errno)
	Tell(ctx context.Context) (offset int64, errno wasierrno.Errno)
	Sync(ctx context.Context) wasierrno.Errno
	Datasync(ctx context.Context) wasierrno.Errno
	Allocate(ctx context.Context, offset, length uint64) wasierrno.Errno
	Advise(ctx context.Context, offset, length uint64, advice uint8) wasierrno.Errno

	// --- Directory ---
	Readdir(ctx context.Context, cookie uint64) (DirStream, wasierrno.Errno)
	PathCreateDirectory(ctx context.Context, name string) wasierrno.Errno
	PathRemoveDirectory(ctx context.Context, name string) wasierrno.Errno
	PathUnlinkFile(ctx context.Context, name string) wasierrno.Errno
	// PathOpen resolves name within this directory FD and returns a new
	// File for it: create-if-missing is applied before the excl check,
	// which is applied before truncation.
	PathOpen(ctx context.Context, name string, dirflags LookupFlags, oflags OFlags, fdflags FdFlags) (File, wasierrno.Errno)
	PathRename(ctx context.Context, oldName string, newDir File, newName string) wasierrno.Errno
	PathLink(ctx context.Context, oldName string, newDir File, newName string) wasierrno.Errno
	PathSymlink(ctx context.Context, target, linkName string) wasierrno.Errno
	PathReadlink(ctx context.Context, name string, buf []byte) (n int, errno wasierrno.Errno)
	PathFilestatGet(ctx context.Context, name string) (FileStat, wasierrno.Errno)

	// --- Prestat ---
	PrestatDirName(ctx context.Context) (string, wasierrno.Errno)

	// --- Polling ---
	// BytesAvailable reports read readiness; if a driver does not
	// implement it, poll treats the FD as always ready.
	BytesAvailable(ctx context.Context, timeout *time.Duration) (ready bool, errno wasierrno.Errno)

	Close(ctx context.Context) wasierrno.Errno
}

// Unimplemented is embeddable by drivers so they only need to override
// the methods their filetype actually supports.
type Unimplemented struct{}

func (Unimplemented) FileType() FileType { return FileTypeUnknown }
func (Unimplemented) FdstatGet(context.Context) (FdFlags, wasierrno.Errno) {
	return 0, wasierrno.Enosys
}
func (Unimplemented) SetFdFlags(context.Context, FdFlags) wasierrno.Errno { return wasierrno.Enosys }
func (Unimplemented) FilestatGet(context.Context) (FileStat, wasierrno.Errno) {
	return FileStat{}, wasierrno.Enosys
}
func (Unimplemented) SetFilestatSize(context.Context, uint64) wasierrno.Errno {
	return wasierrno.Enosys
}
func (Unimplemented) Read(context.Context, []byte) (int, wasierrno.Errno)  { return 0, wasierrno.Enosys }
func (Unimplemented) Write(context.Context, []byte) (int, wasierrno.Errno) { return 0, wasierrno.Enosys }
func (Unimplemented) Pread(context.Context, []byte, int64) (int, wasierrno.Errno) {
	return 0, wasierrno.Enosys
}
func (Unimplemented) Pwrite(context.Context, []byte, int64) (int, wasierrno.Errno) {
	return 0, wasierrno.Enosys
}
func (Unimplemented) Seek(context.Context, int64, Whence) (int64, wasierrno.Errno) {
	return 0, wasierrno.Enosys
}
func (Unimplemented) Tell(context.Context) (int64, wasierrno.Errno) { return 0, wasierrno.Enosys }
func (Unimplemented) Sync(context.Context) wasierrno.Errno          { return wasierrno.Enosys }
func (Unimplemented) Datasync(context.Context) wasierrno.Errno      { return wasierrno.Enosys }
func (Unimplemented) Allocate(context.Context, uint64, uint64) wasierrno.Errno {
	return wasierrno.Enosys
}
func (Unimplemented) Advise(context.Context, uint64, uint64, uint8) wasierrno.Errno {
	return wasierrno.Enosys
}
func (Unimplemented) Readdir(context.Context, uint64) (DirStream, wasierrno.Errno) {
	return nil, wasierrno.Enosys
}
func (Unimplemented) PathCreateDirectory(context.Context, string) wasierrno.Errno {
	return wasierrno.Enosys
}
func (Unimplemented) PathRemoveDirectory(context.Context, string) wasierrno.Errno {
	return wasierrno.Enosys
}
func (Unimplemented) PathUnlinkFile(context.Context, string) wasierrno.Errno { return wasierrno.Enosys }
func (Unimplemented) PathOpen(context.Context, string, LookupFlags, OFlags, FdFlags) (File, wasierrno.Errno) {
	return nil, wasierrno.Enosys
}
func (Unimplemented) PathRename(context.Context, string, File, string) wasierrno.Errno {
	return wasierrno.Enosys
}
func (Unimplemented) PathLink(context.Context, string, File, string) wasierrno.Errno {
	return wasierrno.Enosys
}
func (Unimplemented) PathSymlink(context.Context, string, string) wasierrno.Errno {
	return wasierrno.Enosys
}
func (Unimplemented) PathReadlink(context.Context, string, []byte) (int, wasierrno.Errno) {
	return 0, wasierrno.Enosys
}
func (Unimplemented) PathFilestatGet(context.Context, string) (FileStat, wasierrno.Errno) {
	return FileStat{}, wasierrno.Enosys
}
func (Unimplemented) PrestatDirName(context.Context) (string, wasierrno.Errno) {
	return "", wasierrno.Enosys
}
func (Unimplemented) BytesAvailable(context.Context, *time.Duration) (bool, wasierrno.Errno) {
	return true, 0
}
func (Unimplemented) Close(context.Context) wasierrno.Errno { return 0 }
