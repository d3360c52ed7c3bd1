package wasicore

import (
	"github.com/wasicore/runtime/internal/driver"
)

// StdioKind selects what backs one of a process's three stdio slots,
// mirroring the four variants a process configuration's stdio entry may
// name: an open file, an attached terminal, an anonymous pipe, or the
// embedder's own console stream.
type StdioKind uint8

const (
	// StdioConsole inherits whatever io.Reader/io.Writer the embedder
	// wired in (e.g. the extension host's output channel). The default
	// for all three slots.
	StdioConsole StdioKind = iota
	StdioFile
	StdioTerminal
	StdioPipe
)

// StdioSlot configures one of a process's three stdio handles.
type StdioSlot struct {
	Kind    StdioKind
	Path    string
	OFlags  driver.OFlags
	FdFlags driver.FdFlags
}

// FileStdio backs a slot with a path opened through the process's mounts,
// matching stdio's file(path,oflags,fdflags) variant.
func FileStdio(path string, oflags driver.OFlags, fdflags driver.FdFlags) StdioSlot {
	return StdioSlot{Kind: StdioFile, Path: path, OFlags: oflags, FdFlags: fdflags}
}

// TerminalStdio backs a slot with a pseudo-terminal line discipline.
func TerminalStdio() StdioSlot { return StdioSlot{Kind: StdioTerminal} }

// PipeStdio backs a slot with an anonymous in-memory pipe.
func PipeStdio() StdioSlot { return StdioSlot{Kind: StdioPipe} }

// ConsoleStdio backs a slot with the embedder's own console stream.
func ConsoleStdio() StdioSlot { return StdioSlot{Kind: StdioConsole} }

// StdioConfig configures all three stdio slots. The zero value is all
// three slots set to ConsoleStdio.
type StdioConfig struct {
	In  StdioSlot
	Out StdioSlot
	Err StdioSlot
}

// MountKind selects one of a mount entry's three variants.
type MountKind uint8

const (
	MountWorkspaceFolder MountKind = iota
	MountExtensionLocation
	MountHostFilesystem
)

// MountConfig describes one entry of the ordered mount list. Entries are
// exposed to the guest as preopened directory file descriptors, numbered
// starting at 3 in declaration order, after the three stdio slots.
type MountConfig struct {
	Kind       MountKind
	Path       string // meaningful for MountExtensionLocation
	URI        string // meaningful for MountWorkspaceFolder and MountHostFilesystem
	MountPoint string
}

// WorkspaceFolderMount exposes uri (a VS Code workspace folder's root) at
// mountPoint.
func WorkspaceFolderMount(uri, mountPoint string) MountConfig {
	return MountConfig{Kind: MountWorkspaceFolder, URI: uri, MountPoint: mountPoint}
}

// ExtensionLocationMount exposes path (a location relative to the
// extension's own install directory) at mountPoint.
func ExtensionLocationMount(path, mountPoint string) MountConfig {
	return MountConfig{Kind: MountExtensionLocation, Path: path, MountPoint: mountPoint}
}

// HostFilesystemMount exposes uri (an arbitrary host adapter URI) at
// mountPoint.
func HostFilesystemMount(uri, mountPoint string) MountConfig {
	return MountConfig{Kind: MountHostFilesystem, URI: uri, MountPoint: mountPoint}
}

// baseURI returns the URI a hostfs.Mount should concatenate sub-paths
// against. The three mount kinds differ in how the embedder resolves
// them to a URI up front, not in how the driver subsequently addresses
// sub-paths, so by the time a MountConfig reaches NewProcess its Path or
// URI field already names the resolved root.
func (m MountConfig) baseURI() string {
	if m.Kind == MountExtensionLocation {
		return m.Path
	}
	return m.URI
}
