// Package wasicore wires together the wire codec, fd table, device
// drivers, dispatcher, and process lifecycle defined by the internal
// packages into the one entry point an embedder actually calls:
// NewProcess builds a ready-to-serve Dispatcher, and Process tracks that
// process's lifetime the way a host process handle would.
//
// Grounded on wazero's top-level wazero.go/config.go split (a small
// public package assembling internal runtime/wasm/sys pieces behind a
// fluent Config type), adapted here to this runtime's own dispatch/fd/
// process seams instead of wazero's Runtime/Module/sys.Context.
package wasicore

import (
	"context"
	"crypto/rand"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/wasicore/runtime/internal/dispatch"
	"github.com/wasicore/runtime/internal/driver"
	"github.com/wasicore/runtime/internal/fd"
	"github.com/wasicore/runtime/internal/hostfs"
	"github.com/wasicore/runtime/internal/process"
	"github.com/wasicore/runtime/internal/stdiofs"
	"github.com/wasicore/runtime/internal/trace"
	"github.com/wasicore/runtime/internal/ttyfs"
	"github.com/wasicore/runtime/wasierrno"
)

// Process is one running (or exited) wasicore process: its fd table,
// its dispatcher (the service-side half an embedder's worker loop feeds
// every call through), its trace sink, and its lifecycle handle.
type Process struct {
	fds   *fd.Table
	proc  *process.Process
	disp  *dispatch.Dispatcher
	trace *trace.Sink
}

// NewProcess builds a Process from opts: installs the three stdio
// slots at handles 0-2, each configured mount as a preopen starting at
// handle 3 in declaration order, and a Dispatcher ready to serve calls
// against the result. It does not itself run anything; an embedder
// drives it by feeding posted regions (or control messages) from its
// worker transport through Process.Dispatcher().Dispatch, and by
// calling Process.Wait for the final exit code.
func NewProcess(ctx context.Context, opts *ProcessOptions) (*Process, error) {
	if opts == nil {
		opts = NewProcessOptions()
	}

	table := fd.New()

	mounts := make(map[string]*hostfs.Mount, len(opts.mounts))
	for _, m := range opts.mounts {
		if opts.fs == nil {
			return nil, fmt.Errorf("wasicore: mount %q configured without a host file system adapter (see WithFileSystem)", m.MountPoint)
		}
		mount := hostfs.New(opts.fs, m.baseURI(), m.MountPoint)
		mounts[m.MountPoint] = mount
		table.Insert(&fd.Entry{
			File:             mount.Root(),
			RightsBase:       allRights,
			RightsInheriting: allRights,
			IsPreopen:        true,
			PreopenPath:      m.MountPoint,
		})
	}

	stdin, stdout, stderr, closers, err := buildStdio(opts, mounts)
	if err != nil {
		return nil, err
	}
	table.InsertAt(0, &fd.Entry{File: stdin, RightsBase: driver.RightFdRead | driver.RightPollFdReadwrite, IsPreopen: true})
	table.InsertAt(1, &fd.Entry{File: stdout, RightsBase: driver.RightFdWrite | driver.RightPollFdReadwrite, IsPreopen: true})
	table.InsertAt(2, &fd.Entry{File: stderr, RightsBase: driver.RightFdWrite | driver.RightPollFdReadwrite, IsPreopen: true})

	proc := process.New(ctx, table)
	for _, c := range closers {
		proc.RegisterCloser(c)
	}

	random := opts.random
	if random == nil {
		random = rand.Reader
	}

	sink := trace.NewSink(opts.traceScopes)

	disp := &dispatch.Dispatcher{
		FDs:    table,
		Proc:   proc,
		Trace:  sink,
		Args:   opts.args,
		Env:    envSlice(opts.env),
		Random: random,
		Spawn:  opts.spawnThread,
	}

	return &Process{fds: table, proc: proc, disp: disp, trace: sink}, nil
}

// Dispatcher returns the service-side call handler: the embedder's
// worker transport receive callback should decode each posted region
// (see internal/dispatch.RegionFromBuf for a transport that hands back
// raw bytes rather than an already-allocated Region) and pass it to
// Dispatch, then signal the region's lock word.
func (p *Process) Dispatcher() *dispatch.Dispatcher { return p.disp }

// Trace returns the process's trace sink.
func (p *Process) Trace() *trace.Sink { return p.trace }

// Wait blocks until the process exits via proc_exit or Terminate and
// returns its exit code. The main worker returning does not by itself
// end the wait.
func (p *Process) Wait() int32 { return p.proc.Wait() }

// Terminate forces the process to exit with code 0, running the same
// exit cascade proc_exit(0) would.
func (p *Process) Terminate(ctx context.Context) { p.proc.Terminate(ctx) }

// allRights grants every capability bit; preopened mount roots get the
// full set and path_open narrows it for descendants via driver.Inherit.
const allRights = driver.Rights(0) |
	driver.RightFdDatasync | driver.RightFdRead | driver.RightFdSeek |
	driver.RightFdFdstatSetFlags | driver.RightFdSync | driver.RightFdTell |
	driver.RightFdWrite | driver.RightFdAdvise | driver.RightFdAllocate |
	driver.RightPathCreateDirectory | driver.RightPathCreateFile |
	driver.RightPathLinkSource | driver.RightPathLinkTarget | driver.RightPathOpen |
	driver.RightFdReaddir | driver.RightPathReadlink | driver.RightPathRenameSource |
	driver.RightPathRenameTarget | driver.RightPathFilestatGet |
	driver.RightPathFilestatSetSize | driver.RightPathFilestatSetTimes |
	driver.RightFdFilestatGet | driver.RightFdFilestatSetSize | driver.RightFdFilestatSetTimes |
	driver.RightPathSymlink | driver.RightPathRemoveDirectory | driver.RightPathUnlinkFile |
	driver.RightPollFdReadwrite

// buildStdio resolves the three stdio slots to driver.Files. It has no
// closers of its own to report: each returned file is installed into
// the fd table at handles 0-2, so fd.Table.CloseAll already tears it
// down as part of the same exit cascade that closes every other fd.
// The closers return exists for resources NewProcess opens outside the
// fd table (none yet), not for stdio.
func buildStdio(opts *ProcessOptions, mounts map[string]*hostfs.Mount) (in, out, err driver.File, closers []io.Closer, _ error) {
	resolve := func(slot StdioSlot, console func() driver.File) (driver.File, error) {
		switch slot.Kind {
		case StdioConsole:
			return console(), nil
		case StdioPipe:
			return stdiofs.NewPipe(), nil
		case StdioTerminal:
			return ttyfs.NewOutput(), nil
		case StdioFile:
			return openFileStdio(mounts, slot)
		default:
			return nil, fmt.Errorf("wasicore: unknown stdio kind %d", slot.Kind)
		}
	}

	switch opts.stdio.In.Kind {
	case StdioConsole:
		in = stdiofs.NewReader(opts.consoleIn)
	case StdioTerminal:
		in = ttyfs.NewInput(true, nil)
	default:
		var resolveErr error
		in, resolveErr = resolve(opts.stdio.In, nil)
		if resolveErr != nil {
			return nil, nil, nil, nil, resolveErr
		}
	}

	var outErr, errErr error
	out, outErr = resolve(opts.stdio.Out, func() driver.File { return stdiofs.NewWriter(opts.consoleOut) })
	if outErr != nil {
		return nil, nil, nil, nil, outErr
	}
	err, errErr = resolve(opts.stdio.Err, func() driver.File { return stdiofs.NewWriter(opts.consoleErr) })
	if errErr != nil {
		return nil, nil, nil, nil, errErr
	}
	return in, out, err, nil, nil
}

// openFileStdio opens slot.Path (absolute, under one of the process's
// configured mounts) through that mount's already-installed hostfs.Mount,
// for the file() stdio variant. Reusing the same Mount the corresponding
// preopen fd uses keeps them sharing one inode tree and content cache,
// rather than each seeing its own, possibly stale, view of the file.
func openFileStdio(mounts map[string]*hostfs.Mount, slot StdioSlot) (driver.File, error) {
	for mountPoint, mount := range mounts {
		if !strings.HasPrefix(slot.Path, mountPoint) {
			continue
		}
		rel := strings.TrimPrefix(strings.TrimPrefix(slot.Path, mountPoint), "/")
		f, errno := mount.Root().PathOpen(context.Background(), rel, 0, slot.OFlags, slot.FdFlags)
		if errno != wasierrno.Success {
			return nil, fmt.Errorf("wasicore: open stdio file %q: %w", slot.Path, errno)
		}
		return f, nil
	}
	return nil, fmt.Errorf("wasicore: stdio file %q does not match any configured mount", slot.Path)
}

// envSlice renders the environment map as a sorted "name=value" slice,
// so args_get/environ_get observe a deterministic order across calls.
func envSlice(env map[string]string) []string {
	names := make([]string, 0, len(env))
	for k := range env {
		names = append(names, k)
	}
	sort.Strings(names)
	out := make([]string, len(names))
	for i, k := range names {
		out[i] = k + "=" + env[k]
	}
	return out
}
