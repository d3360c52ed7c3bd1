// Package ttyfs implements the pseudo-terminal driver: stdio
// with no real backing file, line-buffered input with echo and a bounded
// history stack, and an output channel consumed by the external terminal
// host (§4.7).
//
// Grounded on wazero's internal/sys stdio file entries (stdinFileEntry /
// stdioWriterFileEntry in stdio_test.go: a nil-backed stdin reads 0 bytes
// forever "like reading io.EOF", a nil-backed stdout/stderr always
// reports a full write "like io.Discard") for the end-of-stream and
// always-succeeds-write shape; the line discipline itself (echo,
// backspace, interrupt, readline/prompt, history stack) has no example
// in the retrieval pack to ground on character-by-character, so it is
// built directly from §4.7's description.
package ttyfs

import (
	"context"
	"sync"
	"time"

	"github.com/wasicore/runtime/internal/driver"
	"github.com/wasicore/runtime/wasierrno"
)

// Control bytes the line discipline recognizes.
const (
	ctrlBackspace = 0x7f
	ctrlBackspace2 = 0x08
	ctrlInterrupt = 0x03
	ctrlEOF       = 0x04
)

// historyCapacity bounds the readline history ring.
const historyCapacity = 100

// outputCapacity bounds the channel fd_write enqueues onto; the external
// terminal host is expected to drain it promptly.
const outputCapacity = 256

// Input is the stdin-side pseudo-terminal driver.File. Keystrokes arrive
// via Feed (called by whatever adapts the external terminal host's key
// events into this driver); Read/Readline/Prompt consume completed
// lines.
type Input struct {
	driver.Unimplemented

	echo bool

	mu        sync.Mutex
	cond      *sync.Cond
	lineBuf   []byte // characters typed since the last newline
	ready     [][]byte
	history   [][]byte
	eof       bool
	interrupt chan struct{}

	// pending holds bytes from a completed line not yet delivered to a
	// Read call that asked for fewer bytes than the line contained.
	pending []byte

	echoOut *Output
}

// NewInput creates a stdin driver. When echo is set and echoOut is
// non-nil, echoOut receives an echo of every accepted character and of
// the backspace erase sequence.
func NewInput(echo bool, echoOut *Output) *Input {
	in := &Input{echo: echo, echoOut: echoOut, interrupt: make(chan struct{}, 1)}
	in.cond = sync.NewCond(&in.mu)
	return in
}

func (in *Input) FileType() driver.FileType { return driver.FileTypeCharacterDevice }

// Feed delivers raw input bytes to the line discipline: echoing,
// handling backspace/interrupt/EOF, and completing lines on '\n'.
func (in *Input) Feed(data []byte) {
	in.mu.Lock()
	defer in.mu.Unlock()
	for _, b := range data {
		switch b {
		case ctrlBackspace, ctrlBackspace2:
			if n := len(in.lineBuf); n > 0 {
				in.lineBuf = in.lineBuf[:n-1]
				if in.echo && in.echoOut != nil {
					in.echoOut.enqueue([]byte("\b \b"))
				}
			}
		case ctrlInterrupt:
			select {
			case in.interrupt <- struct{}{}:
			default:
			}
		case ctrlEOF:
			in.eof = true
			in.cond.Broadcast()
		case '\n':
			line := append(in.lineBuf, '\n')
			in.lineBuf = nil
			in.ready = append(in.ready, line)
			in.pushHistory(line)
			if in.echo && in.echoOut != nil {
				in.echoOut.enqueue([]byte{'\n'})
			}
			in.cond.Broadcast()
		default:
			in.lineBuf = append(in.lineBuf, b)
			if in.echo && in.echoOut != nil {
				in.echoOut.enqueue([]byte{b})
			}
		}
	}
}

func (in *Input) pushHistory(line []byte) {
	cp := make([]byte, len(line))
	copy(cp, line)
	in.history = append(in.history, cp)
	if len(in.history) > historyCapacity {
		in.history = in.history[len(in.history)-historyCapacity:]
	}
}

// History returns the most recent lines, oldest first.
func (in *Input) History() [][]byte {
	in.mu.Lock()
	defer in.mu.Unlock()
	out := make([][]byte, len(in.history))
	copy(out, in.history)
	return out
}

// Interrupted returns a channel that receives a value each time the
// interrupt control character is fed.
func (in *Input) Interrupted() <-chan struct{} { return in.interrupt }

// Readline blocks until a full line (including its trailing '\n') is
// available, or input reaches EOF, in which case it returns ok=false.
func (in *Input) Readline(ctx context.Context) (line []byte, ok bool) {
	in.mu.Lock()
	defer in.mu.Unlock()
	for len(in.ready) == 0 && !in.eof {
		if ctx.Err() != nil {
			return nil, false
		}
		in.cond.Wait()
	}
	if len(in.ready) == 0 {
		return nil, false
	}
	line = in.ready[0]
	in.ready = in.ready[1:]
	return line, true
}

// Prompt writes prompt to out then blocks for one line from in.
func Prompt(ctx context.Context, out *Output, in *Input, prompt string) (line []byte, ok bool) {
	if out != nil {
		out.enqueue([]byte(prompt))
	}
	return in.Readline(ctx)
}

// Read satisfies driver.File by draining completed lines into buf. Once
// EOF has been signaled, every subsequent call returns 0 bytes, matching
// a nil-backed stdin's "like reading io.EOF" behavior.
func (in *Input) Read(ctx context.Context, buf []byte) (int, wasierrno.Errno) {
	in.mu.Lock()
	for len(in.pending) == 0 {
		if len(in.ready) > 0 {
			in.pending = in.ready[0]
			in.ready = in.ready[1:]
			break
		}
		if in.eof {
			in.mu.Unlock()
			return 0, wasierrno.Success
		}
		if ctx.Err() != nil {
			in.mu.Unlock()
			return 0, wasierrno.Success
		}
		in.cond.Wait()
	}
	n := copy(buf, in.pending)
	in.pending = in.pending[n:]
	in.mu.Unlock()
	return n, wasierrno.Success
}

func (in *Input) FdstatGet(context.Context) (driver.FdFlags, wasierrno.Errno) { return 0, wasierrno.Success }
func (in *Input) SetFdFlags(context.Context, driver.FdFlags) wasierrno.Errno  { return wasierrno.Success }

func (in *Input) FilestatGet(context.Context) (driver.FileStat, wasierrno.Errno) {
	return driver.FileStat{Type: driver.FileTypeCharacterDevice}, wasierrno.Success
}

func (in *Input) BytesAvailable(ctx context.Context, timeout *time.Duration) (bool, wasierrno.Errno) {
	in.mu.Lock()
	ready := len(in.pending) > 0 || len(in.ready) > 0 || in.eof
	in.mu.Unlock()
	if ready || timeout == nil {
		return ready, wasierrno.Success
	}
	return ready, wasierrno.Success
}

func (in *Input) Close(context.Context) wasierrno.Errno { return wasierrno.Success }

// Output is the stdout/stderr-side pseudo-terminal driver.File. Written
// bytes are enqueued onto a bounded channel; the external terminal host
// drains Chan() and renders them.
type Output struct {
	driver.Unimplemented
	ch chan []byte
}

// NewOutput creates a stdout/stderr driver backed by a bounded channel.
func NewOutput() *Output {
	return &Output{ch: make(chan []byte, outputCapacity)}
}

func (o *Output) FileType() driver.FileType { return driver.FileTypeCharacterDevice }

// Chan returns the channel the external terminal host drains.
func (o *Output) Chan() <-chan []byte { return o.ch }

func (o *Output) enqueue(b []byte) {
	cp := make([]byte, len(b))
	copy(cp, b)
	select {
	case o.ch <- cp:
	default:
		// Channel full: the external host is not draining fast enough.
		// Per the nil-backed-writer behavior this driver mirrors, a
		// slow consumer must never make fd_write block the guest
		// indefinitely, so the oldest pending chunk is dropped.
		select {
		case <-o.ch:
		default:
		}
		o.ch <- cp
	}
}

func (o *Output) Write(_ context.Context, buf []byte) (int, wasierrno.Errno) {
	o.enqueue(buf)
	return len(buf), wasierrno.Success
}

func (o *Output) Pwrite(ctx context.Context, buf []byte, _ int64) (int, wasierrno.Errno) {
	return o.Write(ctx, buf)
}

func (o *Output) FdstatGet(context.Context) (driver.FdFlags, wasierrno.Errno) { return 0, wasierrno.Success }
func (o *Output) SetFdFlags(context.Context, driver.FdFlags) wasierrno.Errno  { return wasierrno.Success }

func (o *Output) FilestatGet(context.Context) (driver.FileStat, wasierrno.Errno) {
	return driver.FileStat{Type: driver.FileTypeCharacterDevice}, wasierrno.Success
}

func (o *Output) Sync(context.Context) wasierrno.Errno     { return wasierrno.Success }
func (o *Output) Datasync(context.Context) wasierrno.Errno { return wasierrno.Success }
func (o *Output) Close(context.Context) wasierrno.Errno    { return wasierrno.Success }
