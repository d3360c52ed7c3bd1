// Package stdiofs implements the plain stdio driver variants named by a
// process's stdio slot configuration: a console stream backed by an
// io.Reader/io.Writer the embedder supplies, and an in-memory pipe. The
// file variant is opened through internal/hostfs and the terminal variant
// is internal/ttyfs; this package only wires the console and the pipe.
//
// Grounded on wazero's ModuleConfig.WithStdin/WithStdout/WithStderr
// (config.go), which accept a plain io.Reader/io.Writer for fd 0/1/2 and
// default to "return io.EOF" / "io.Discard" respectively — generalized
// here into driver.File adapters since this runtime's FD table holds
// driver.File values, not raw io.Reader/io.Writer.
package stdiofs

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/wasicore/runtime/internal/driver"
	"github.com/wasicore/runtime/wasierrno"
)

// Reader adapts an io.Reader as a read-only stdio driver.File, e.g. for
// the console stdin slot. A nil source behaves like wazero's default:
// every Read reports 0 bytes, as if already at end-of-file.
type Reader struct {
	driver.Unimplemented
	mu  sync.Mutex
	src io.Reader
}

// NewReader wraps src (nil means "always at EOF") as a stdin driver.
func NewReader(src io.Reader) *Reader { return &Reader{src: src} }

func (r *Reader) FileType() driver.FileType { return driver.FileTypeCharacterDevice }

func (r *Reader) Read(_ context.Context, buf []byte) (int, wasierrno.Errno) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.src == nil {
		return 0, wasierrno.Success
	}
	n, err := r.src.Read(buf)
	if err != nil && err != io.EOF {
		return n, wasierrno.Eio
	}
	return n, wasierrno.Success
}

func (r *Reader) FdstatGet(context.Context) (driver.FdFlags, wasierrno.Errno) { return 0, wasierrno.Success }
func (r *Reader) SetFdFlags(context.Context, driver.FdFlags) wasierrno.Errno  { return wasierrno.Success }
func (r *Reader) FilestatGet(context.Context) (driver.FileStat, wasierrno.Errno) {
	return driver.FileStat{Type: driver.FileTypeCharacterDevice}, wasierrno.Success
}
func (r *Reader) BytesAvailable(context.Context, *time.Duration) (bool, wasierrno.Errno) {
	return true, wasierrno.Success
}
func (r *Reader) Close(context.Context) wasierrno.Errno { return wasierrno.Success }

// Writer adapts an io.Writer as a write-only stdio driver.File, e.g. for
// the console stdout/stderr slot. A nil sink behaves like wazero's
// default io.Discard: every Write reports full success and drops bytes.
type Writer struct {
	driver.Unimplemented
	mu  sync.Mutex
	dst io.Writer
}

// NewWriter wraps dst (nil means "discard") as a stdout/stderr driver.
func NewWriter(dst io.Writer) *Writer { return &Writer{dst: dst} }

func (w *Writer) FileType() driver.FileType { return driver.FileTypeCharacterDevice }

func (w *Writer) Write(_ context.Context, buf []byte) (int, wasierrno.Errno) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.dst == nil {
		return len(buf), wasierrno.Success
	}
	n, err := w.dst.Write(buf)
	if err != nil {
		return n, wasierrno.Eio
	}
	return n, wasierrno.Success
}

func (w *Writer) Pwrite(ctx context.Context, buf []byte, _ int64) (int, wasierrno.Errno) {
	return w.Write(ctx, buf)
}

func (w *Writer) FdstatGet(context.Context) (driver.FdFlags, wasierrno.Errno) { return 0, wasierrno.Success }
func (w *Writer) SetFdFlags(context.Context, driver.FdFlags) wasierrno.Errno  { return wasierrno.Success }
func (w *Writer) FilestatGet(context.Context) (driver.FileStat, wasierrno.Errno) {
	return driver.FileStat{Type: driver.FileTypeCharacterDevice}, wasierrno.Success
}
func (w *Writer) Sync(context.Context) wasierrno.Errno     { return wasierrno.Success }
func (w *Writer) Datasync(context.Context) wasierrno.Errno { return wasierrno.Success }
func (w *Writer) Close(context.Context) wasierrno.Errno    { return wasierrno.Success }

// Pipe is an in-memory byte queue used for the `pipe` stdio slot: one end
// is written, the other read, entirely within this process with no host
// adapter or external terminal host involved. The queue has no size
// limit: Write appends and never blocks.
type Pipe struct {
	driver.Unimplemented
	mu     sync.Mutex
	cond   *sync.Cond
	buf    []byte
	closed bool
}

// NewPipe creates an empty pipe driver; reads and writes on the same
// *Pipe value share one queue.
func NewPipe() *Pipe {
	p := &Pipe{}
	p.cond = sync.NewCond(&p.mu)
	return p
}

func (p *Pipe) FileType() driver.FileType { return driver.FileTypePipe }

func (p *Pipe) Write(_ context.Context, buf []byte) (int, wasierrno.Errno) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return 0, wasierrno.Epipe
	}
	p.buf = append(p.buf, buf...)
	p.cond.Broadcast()
	return len(buf), wasierrno.Success
}

func (p *Pipe) Read(ctx context.Context, buf []byte) (int, wasierrno.Errno) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for len(p.buf) == 0 && !p.closed {
		if ctx.Err() != nil {
			return 0, wasierrno.Success
		}
		p.cond.Wait()
	}
	n := copy(buf, p.buf)
	p.buf = p.buf[n:]
	return n, wasierrno.Success
}

func (p *Pipe) FdstatGet(context.Context) (driver.FdFlags, wasierrno.Errno) { return 0, wasierrno.Success }
func (p *Pipe) SetFdFlags(context.Context, driver.FdFlags) wasierrno.Errno  { return wasierrno.Success }
func (p *Pipe) FilestatGet(context.Context) (driver.FileStat, wasierrno.Errno) {
	return driver.FileStat{Type: driver.FileTypePipe}, wasierrno.Success
}
func (p *Pipe) BytesAvailable(context.Context, *time.Duration) (bool, wasierrno.Errno) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.buf) > 0 || p.closed, wasierrno.Success
}

func (p *Pipe) Close(context.Context) wasierrno.Errno {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	p.cond.Broadcast()
	return wasierrno.Success
}
