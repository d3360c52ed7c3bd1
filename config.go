package wasicore

import (
	"io"

	"github.com/wasicore/runtime/hostadapter"
	"github.com/wasicore/runtime/internal/trace"
	"github.com/wasicore/runtime/wasierrno"
)

// ProcessOptions is process configuration, built with NewProcessOptions
// and a chain of With* calls. Every With* method returns a modified
// copy, so a base configuration can be safely reused as a template for
// several processes.
type ProcessOptions struct {
	args  []string
	env   map[string]string
	stdio StdioConfig

	consoleIn         io.Reader
	consoleOut        io.Writer
	consoleErr        io.Writer

	mounts []MountConfig
	fs     hostadapter.FileSystem

	transport hostadapter.Transport
	random    io.Reader

	traceScopes trace.Scope

	spawnThread func(startArg uint32) (tid int32, errno wasierrno.Errno)
}

// NewProcessOptions returns the default configuration: no args, no env,
// all three stdio slots on console, no mounts, and tracing disabled.
func NewProcessOptions() *ProcessOptions {
	return &ProcessOptions{env: map[string]string{}}
}

func (o *ProcessOptions) clone() *ProcessOptions {
	ret := *o
	ret.args = append([]string(nil), o.args...)
	ret.env = make(map[string]string, len(o.env))
	for k, v := range o.env {
		ret.env[k] = v
	}
	ret.mounts = append([]MountConfig(nil), o.mounts...)
	return &ret
}

// WithArgs sets argv. Defaults to empty.
func (o *ProcessOptions) WithArgs(args ...string) *ProcessOptions {
	ret := o.clone()
	ret.args = append([]string(nil), args...)
	return ret
}

// WithEnv sets one environment variable, replacing any prior value for
// the same name.
func (o *ProcessOptions) WithEnv(name, value string) *ProcessOptions {
	ret := o.clone()
	ret.env[name] = value
	return ret
}

// WithStdio sets all three stdio slots at once.
func (o *ProcessOptions) WithStdio(cfg StdioConfig) *ProcessOptions {
	ret := o.clone()
	ret.stdio = cfg
	return ret
}

// WithConsole sets the streams a ConsoleStdio slot reads from or writes
// to. Any left nil keeps that stream's "always EOF" / "discard" default.
func (o *ProcessOptions) WithConsole(in io.Reader, out, err io.Writer) *ProcessOptions {
	ret := o.clone()
	ret.consoleIn, ret.consoleOut, ret.consoleErr = in, out, err
	return ret
}

// WithMount appends one entry to the ordered mount list. Mounts are
// exposed to the guest as preopens in the order they were added.
func (o *ProcessOptions) WithMount(m MountConfig) *ProcessOptions {
	ret := o.clone()
	ret.mounts = append(ret.mounts, m)
	return ret
}

// WithFileSystem sets the host file-system adapter backing every mount.
// Required if any mount is configured.
func (o *ProcessOptions) WithFileSystem(fs hostadapter.FileSystem) *ProcessOptions {
	ret := o.clone()
	ret.fs = fs
	return ret
}

// WithTransport records the worker transport that carries calls between
// the compute and service workers. NewProcess does not read it; calls
// reach the process through Process.Dispatcher.
func (o *ProcessOptions) WithTransport(t hostadapter.Transport) *ProcessOptions {
	ret := o.clone()
	ret.transport = t
	return ret
}

// WithRandom sets the source random_get draws from. Defaults to
// crypto/rand's Reader.
func (o *ProcessOptions) WithRandom(r io.Reader) *ProcessOptions {
	ret := o.clone()
	ret.random = r
	return ret
}

// WithTrace enables the given trace scopes. Disabled (ScopeNone) by
// default; the returned Process's Trace() sink still counts every call
// toward its summary regardless of which scopes are enabled, only the
// enabled scopes' lines are retained individually.
func (o *ProcessOptions) WithTrace(scopes trace.Scope) *ProcessOptions {
	ret := o.clone()
	ret.traceScopes = scopes
	return ret
}

// WithThreadSpawner sets the function thread_spawn delegates to. thread
// creation means instantiating a new compute worker against the
// embedder's own WebAssembly runtime, which this module does not own;
// leaving this unset makes thread_spawn fail with Enosys.
func (o *ProcessOptions) WithThreadSpawner(fn func(startArg uint32) (tid int32, errno wasierrno.Errno)) *ProcessOptions {
	ret := o.clone()
	ret.spawnThread = fn
	return ret
}
