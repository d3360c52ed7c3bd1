// Package dispatch implements the service worker's call dispatcher: read
// the shared region's header, resolve the method via wasip1.Table,
// validate the target fd's rights, invoke the resolved driver.File
// method, write results and errno back into the region, and record a
// trace event.
//
// Grounded on wazero's imports/wasi_snapshot_preview1/*.go host
// functions (fdReadFn, fdWriteFn, pathOpenFn, pollOneoffFn, ...), which
// the same way extract typed arguments, call into an fsapi.File, and
// write a fixed Errno back — adapted here to read/write through
// wire.Region's param/result accessors instead of api.Module.Memory,
// since every argument already arrives pre-decoded into the region
// rather than as raw wasm linear-memory offsets.
package dispatch

import (
	"context"
	"io"
	"strings"
	"time"

	"github.com/wasicore/runtime/internal/driver"
	"github.com/wasicore/runtime/internal/fd"
	"github.com/wasicore/runtime/internal/poll"
	"github.com/wasicore/runtime/internal/process"
	"github.com/wasicore/runtime/internal/trace"
	"github.com/wasicore/runtime/internal/wasip1"
	"github.com/wasicore/runtime/internal/wire"
	"github.com/wasicore/runtime/wasierrno"
)

// Dispatcher holds everything a call handler needs beyond the region
// itself: the shared fd table, process lifecycle hooks, and process
// configuration (argv/env/random source).
type Dispatcher struct {
	FDs     *fd.Table
	Proc    *process.Process
	Trace   *trace.Sink
	Args    []string
	Env     []string
	Random  io.Reader
	Spawn   func(startArg uint32) (tid int32, errno wasierrno.Errno)
}

// Dispatch resolves and runs one call in place, leaving the region ready
// for the caller to signal completion (set lock, notify).
func (d *Dispatcher) Dispatch(ctx context.Context, r *wire.Region) {
	start := time.Now()
	id := r.MethodID()
	if !wasip1.Valid(id) {
		r.SetErrno(uint16(wasierrno.NoHandlerFound))
		return
	}
	op := wasip1.Op(id)
	sig := wasip1.Table[id]

	errno := d.invoke(ctx, op, r)
	r.SetErrno(uint16(errno))

	if d.Trace != nil {
		d.Trace.Record(trace.Event{
			Method:   sig.Name,
			FD:       fdArgOrNegative(op, r),
			Errno:    uint32(errno),
			Duration: time.Since(start),
		})
	}
}

// RegionFromBuf reconstructs a Region over buf without having computed
// its layout itself, by reading the method_id header field and looking
// up that op's deterministic field layout. Used by a service-side
// transport receiver, which gets raw bytes off the wire and did not
// allocate the region (the guest did).
func RegionFromBuf(buf []byte) (*wire.Region, bool) {
	if len(buf) < int(wire.OffsetParams) {
		return nil, false
	}
	probe := &wire.Region{Buf: buf}
	id := probe.MethodID()
	if !wasip1.Valid(id) {
		return nil, false
	}
	return &wire.Region{Buf: buf, Layout: wasip1.LayoutFor(wasip1.Op(id))}, true
}

// fdArgOrNegative returns the fd parameter for ops whose first parameter
// is an fd, or -1 for ops with none (matching trace.Event.FD's contract).
func fdArgOrNegative(op wasip1.Op, r *wire.Region) int32 {
	switch op {
	case wasip1.OpArgsGet, wasip1.OpArgsSizesGet, wasip1.OpEnvironGet, wasip1.OpEnvironSizesGet,
		wasip1.OpClockResGet, wasip1.OpClockTimeGet, wasip1.OpPollOneoff, wasip1.OpProcExit,
		wasip1.OpProcRaise, wasip1.OpSchedYield, wasip1.OpRandomGet, wasip1.OpThreadSpawn,
		wasip1.OpPathSymlink:
		return -1
	default:
		return int32(r.U32(r.Layout.ParamOffset(0)))
	}
}

func paramU32(r *wire.Region, i int) uint32  { return r.U32(r.Layout.ParamOffset(i)) }
func paramU64(r *wire.Region, i int) uint64  { return r.U64(r.Layout.ParamOffset(i)) }
func paramU16(r *wire.Region, i int) uint16  { return r.U16(r.Layout.ParamOffset(i)) }
func paramU8(r *wire.Region, i int) uint8    { return r.U8(r.Layout.ParamOffset(i)) }
func paramBlob(r *wire.Region, i int) []byte  { return r.Blob(r.Layout.ParamOffset(i)) }
func resultBlob(r *wire.Region, i int) []byte { return r.Blob(r.Layout.ResultFieldOffset(i)) }
func paramPath(r *wire.Region, i int) string { return string(paramBlob(r, i)) }

func setResultU32(r *wire.Region, i int, v uint32) { r.PutU32(r.Layout.ResultFieldOffset(i), v) }
func setResultU64(r *wire.Region, i int, v uint64) { r.PutU64(r.Layout.ResultFieldOffset(i), v) }
func setResultU16(r *wire.Region, i int, v uint16) { r.PutU16(r.Layout.ResultFieldOffset(i), v) }
func setResultU8(r *wire.Region, i int, v uint8)   { r.Buf[r.Layout.ResultFieldOffset(i)] = v }

func (d *Dispatcher) invoke(ctx context.Context, op wasip1.Op, r *wire.Region) wasierrno.Errno {
	switch op {
	case wasip1.OpArgsGet:
		return d.argsGet(r)
	case wasip1.OpArgsSizesGet:
		return d.argsSizesGet(r)
	case wasip1.OpEnvironGet:
		return d.environGet(r)
	case wasip1.OpEnvironSizesGet:
		return d.environSizesGet(r)
	case wasip1.OpClockResGet:
		setResultU64(r, 0, uint64(poll.Resolution(poll.ClockID(paramU32(r, 0)))))
		return wasierrno.Success
	case wasip1.OpClockTimeGet:
		setResultU64(r, 0, uint64(poll.Now(poll.ClockID(paramU32(r, 0)))))
		return wasierrno.Success
	case wasip1.OpSchedYield:
		return wasierrno.Success
	case wasip1.OpRandomGet:
		buf := paramBlob(r, 0)
		if d.Random != nil {
			if _, err := io.ReadFull(d.Random, buf); err != nil {
				return wasierrno.Eio
			}
		}
		return wasierrno.Success
	case wasip1.OpProcExit:
		rval := paramU32(r, 0)
		if d.Proc != nil {
			d.Proc.ProcExit(ctx, int32(rval))
		}
		return wasierrno.Success
	case wasip1.OpProcRaise:
		return wasierrno.Enosys
	case wasip1.OpThreadSpawn:
		if d.Spawn == nil {
			return wasierrno.Enosys
		}
		tid, errno := d.Spawn(paramU32(r, 0))
		setResultU32(r, 0, uint32(tid))
		return errno
	case wasip1.OpSockAccept:
		return wasierrno.Enosys
	case wasip1.OpPollOneoff:
		return d.pollOneoff(ctx, r)
	case wasip1.OpPathSymlink:
		// Symlinks are out of scope for this runtime's flat VFS; its fd
		// parameter is not in the usual leading position so this must not
		// fall through to invokeFD's generic fd lookup.
		return wasierrno.Enosys
	default:
		return d.invokeFD(ctx, op, r)
	}
}

func (d *Dispatcher) argsSizesGet(r *wire.Region) wasierrno.Errno {
	total := 0
	for _, a := range d.Args {
		total += len(a) + 1
	}
	setResultU32(r, 0, uint32(len(d.Args)))
	setResultU32(r, 1, uint32(total))
	return wasierrno.Success
}

func (d *Dispatcher) argsGet(r *wire.Region) wasierrno.Errno {
	return writeNulSeparated(paramBlob(r, 0), d.Args)
}

func (d *Dispatcher) environSizesGet(r *wire.Region) wasierrno.Errno {
	total := 0
	for _, e := range d.Env {
		total += len(e) + 1
	}
	setResultU32(r, 0, uint32(len(d.Env)))
	setResultU32(r, 1, uint32(total))
	return wasierrno.Success
}

func (d *Dispatcher) environGet(r *wire.Region) wasierrno.Errno {
	return writeNulSeparated(paramBlob(r, 0), d.Env)
}

// writeNulSeparated copies entries as consecutive NUL-terminated strings
// into dst, which the caller has already sized exactly via the
// preceding *_sizes_get call.
func writeNulSeparated(dst []byte, entries []string) wasierrno.Errno {
	off := 0
	for _, e := range entries {
		n := copy(dst[off:], e)
		off += n
		if off < len(dst) {
			dst[off] = 0
			off++
		}
	}
	return wasierrno.Success
}

func (d *Dispatcher) pollOneoff(ctx context.Context, r *wire.Region) wasierrno.Errno {
	in := paramBlob(r, 0)
	const subSize = 48
	if len(in)%subSize != 0 {
		return wasierrno.Einval
	}
	n := len(in) / subSize
	subs := make([]poll.Subscription, 0, n)
	// userdata kept alongside so results can be matched back up after
	// poll.Oneoff returns a (possibly reordered-by-filtering) subset.
	for i := 0; i < n; i++ {
		base := i * subSize
		userData := le64(in[base:])
		eventType := in[base+8]
		body := in[base+16:]
		switch eventType {
		case 0: // clock
			timeout := le64(body[8:])
			flags := le16(body[24:])
			subs = append(subs, poll.Subscription{
				UserData: userData,
				Clock: &poll.ClockSubscription{
					ID:       poll.ClockID(le32(body[0:])),
					Timeout:  time.Duration(timeout),
					Absolute: flags&1 != 0,
				},
			})
		case 1, 2: // fd_read, fd_write
			fdNum := le32(body)
			entry, errno := d.FDs.Get(fdNum)
			if errno != wasierrno.Success {
				subs = append(subs, poll.Subscription{UserData: userData})
				continue
			}
			subs = append(subs, poll.Subscription{
				UserData: userData,
				FD:       &poll.FDSubscription{File: entry.File, Write: eventType == 2},
			})
		default:
			return wasierrno.Einval
		}
	}

	events, errno := poll.Oneoff(ctx, subs)
	if errno != wasierrno.Success {
		return errno
	}

	out := resultBlob(r, 0)
	const eventSize = 32
	written := 0
	for _, ev := range events {
		if (written+1)*eventSize > len(out) {
			break
		}
		base := written * eventSize
		putLE64(out[base:], ev.UserData)
		out[base+8] = byte(ev.Errno)
		out[base+9] = 0
		putLE32(out[base+10:], uint32(ev.Type))
		written++
	}
	setResultU32(r, 1, uint32(written))
	return wasierrno.Success
}

func le16(b []byte) uint16 { return uint16(b[0]) | uint16(b[1])<<8 }
func le32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}
func le64(b []byte) uint64 {
	return uint64(le32(b)) | uint64(le32(b[4:]))<<32
}
func putLE32(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}
func putLE64(b []byte, v uint64) {
	putLE32(b, uint32(v))
	putLE32(b[4:], uint32(v>>32))
}

// invokeFD handles every op whose first parameter is an fd: resolve the
// entry, check rights, call through to the driver.
func (d *Dispatcher) invokeFD(ctx context.Context, op wasip1.Op, r *wire.Region) wasierrno.Errno {
	h := paramU32(r, 0)
	entry, errno := d.FDs.Get(h)
	if errno != wasierrno.Success {
		return errno
	}
	f := entry.File

	switch op {
	case wasip1.OpFdAdvise:
		if errno := fd.CheckRight(entry, driver.RightFdAdvise); errno != wasierrno.Success {
			return errno
		}
		return f.Advise(ctx, paramU64(r, 1), paramU64(r, 2), paramU8(r, 3))
	case wasip1.OpFdAllocate:
		if errno := fd.CheckRight(entry, driver.RightFdAllocate); errno != wasierrno.Success {
			return errno
		}
		return f.Allocate(ctx, paramU64(r, 1), paramU64(r, 2))
	case wasip1.OpFdClose:
		return d.FDs.Remove(ctx, h)
	case wasip1.OpFdDatasync:
		if errno := fd.CheckRight(entry, driver.RightFdDatasync); errno != wasierrno.Success {
			return errno
		}
		return f.Datasync(ctx)
	case wasip1.OpFdFdstatGet:
		flags, errno := f.FdstatGet(ctx)
		if errno != wasierrno.Success {
			return errno
		}
		setResultU8(r, 0, uint8(f.FileType()))
		setResultU16(r, 1, uint16(flags))
		setResultU64(r, 2, uint64(entry.RightsBase))
		setResultU64(r, 3, uint64(entry.RightsInheriting))
		return wasierrno.Success
	case wasip1.OpFdFdstatSetFlags:
		if errno := fd.CheckRight(entry, driver.RightFdFdstatSetFlags); errno != wasierrno.Success {
			return errno
		}
		return f.SetFdFlags(ctx, driver.FdFlags(paramU16(r, 1)))
	case wasip1.OpFdFilestatGet:
		if errno := fd.CheckRight(entry, driver.RightFdFilestatGet); errno != wasierrno.Success {
			return errno
		}
		st, errno := f.FilestatGet(ctx)
		if errno != wasierrno.Success {
			return errno
		}
		setResultU8(r, 0, uint8(st.Type))
		setResultU64(r, 1, st.Size)
		setResultU64(r, 2, uint64(st.MtimeMs))
		setResultU64(r, 3, uint64(st.CtimeMs))
		return wasierrno.Success
	case wasip1.OpFdFilestatSetSize:
		if errno := fd.CheckRight(entry, driver.RightFdFilestatSetSize); errno != wasierrno.Success {
			return errno
		}
		return f.SetFilestatSize(ctx, paramU64(r, 1))
	case wasip1.OpFdFilestatSetTimes:
		return wasierrno.Enosys
	case wasip1.OpFdPread:
		if errno := fd.CheckRight(entry, driver.RightFdSeek); errno != wasierrno.Success {
			return errno
		}
		buf := paramBlob(r, 1)
		n, errno := f.Pread(ctx, buf, int64(paramU64(r, 2)))
		setResultU32(r, 0, uint32(n))
		return errno
	case wasip1.OpFdPrestatGet:
		name, errno := f.PrestatDirName(ctx)
		if errno != wasierrno.Success {
			return errno
		}
		setResultU32(r, 0, uint32(len(name)))
		return wasierrno.Success
	case wasip1.OpFdPrestatDirName:
		name, errno := f.PrestatDirName(ctx)
		if errno != wasierrno.Success {
			return errno
		}
		copy(paramBlob(r, 1), name)
		return wasierrno.Success
	case wasip1.OpFdPwrite:
		if errno := fd.CheckRight(entry, driver.RightFdSeek); errno != wasierrno.Success {
			return errno
		}
		buf := paramBlob(r, 1)
		n, errno := f.Pwrite(ctx, buf, int64(paramU64(r, 2)))
		setResultU32(r, 0, uint32(n))
		return errno
	case wasip1.OpFdRead:
		if errno := fd.CheckRight(entry, driver.RightFdRead); errno != wasierrno.Success {
			return errno
		}
		buf := paramBlob(r, 1)
		n, errno := f.Read(ctx, buf)
		setResultU32(r, 0, uint32(n))
		return errno
	case wasip1.OpFdReaddir:
		if errno := fd.CheckRight(entry, driver.RightFdReaddir); errno != wasierrno.Success {
			return errno
		}
		n, errno := readdirInto(ctx, f, paramBlob(r, 1), paramU64(r, 2))
		setResultU32(r, 0, uint32(n))
		return errno
	case wasip1.OpFdRenumber:
		return d.FDs.Renumber(ctx, h, paramU32(r, 1))
	case wasip1.OpFdSeek:
		if errno := fd.CheckRight(entry, driver.RightFdSeek); errno != wasierrno.Success {
			return errno
		}
		off, errno := f.Seek(ctx, int64(paramU64(r, 1)), driver.Whence(paramU8(r, 2)))
		setResultU64(r, 0, uint64(off))
		return errno
	case wasip1.OpFdSync:
		if errno := fd.CheckRight(entry, driver.RightFdSync); errno != wasierrno.Success {
			return errno
		}
		return f.Sync(ctx)
	case wasip1.OpFdTell:
		if errno := fd.CheckRight(entry, driver.RightFdTell); errno != wasierrno.Success {
			return errno
		}
		off, errno := f.Tell(ctx)
		setResultU64(r, 0, uint64(off))
		return errno
	case wasip1.OpFdWrite:
		if errno := fd.CheckRight(entry, driver.RightFdWrite); errno != wasierrno.Success {
			return errno
		}
		buf := paramBlob(r, 1)
		n, errno := f.Write(ctx, buf)
		setResultU32(r, 0, uint32(n))
		return errno

	case wasip1.OpPathCreateDirectory:
		if errno := fd.CheckRight(entry, driver.RightPathCreateDirectory); errno != wasierrno.Success {
			return errno
		}
		return f.PathCreateDirectory(ctx, paramPath(r, 1))
	case wasip1.OpPathFilestatGet:
		if errno := fd.CheckRight(entry, driver.RightPathFilestatGet); errno != wasierrno.Success {
			return errno
		}
		st, errno := f.PathFilestatGet(ctx, paramPath(r, 2))
		if errno != wasierrno.Success {
			return errno
		}
		setResultU8(r, 0, uint8(st.Type))
		setResultU64(r, 1, st.Size)
		setResultU64(r, 2, uint64(st.MtimeMs))
		setResultU64(r, 3, uint64(st.CtimeMs))
		return wasierrno.Success
	case wasip1.OpPathFilestatSetTimes:
		return wasierrno.Enosys
	case wasip1.OpPathLink:
		return wasierrno.Enosys
	case wasip1.OpPathOpen:
		if errno := fd.CheckRight(entry, driver.RightPathOpen); errno != wasierrno.Success {
			return errno
		}
		name := paramPath(r, 2)
		oflags := driver.OFlags(paramU16(r, 3))
		fdflags := driver.FdFlags(paramU16(r, 6))
		opened, errno := f.PathOpen(ctx, name, driver.LookupFlags(paramU32(r, 1)), oflags, fdflags)
		if errno != wasierrno.Success {
			return errno
		}
		childIsDir := opened.FileType() == driver.FileTypeDirectory
		base, inheriting := driver.Inherit(entry.RightsInheriting,
			driver.Rights(paramU64(r, 4)), driver.Rights(paramU64(r, 5)), childIsDir)
		if strings.Trim(name, "/.") == "" && !strings.Contains(name, "..") {
			// Opening "." duplicates the directory fd with its own rights.
			base, inheriting = entry.RightsBase, entry.RightsInheriting
		}
		newHandle := d.FDs.Insert(&fd.Entry{File: opened, RightsBase: base, RightsInheriting: inheriting})
		setResultU32(r, 0, newHandle)
		return wasierrno.Success
	case wasip1.OpPathReadlink:
		return wasierrno.Enosys
	case wasip1.OpPathRemoveDirectory:
		if errno := fd.CheckRight(entry, driver.RightPathRemoveDirectory); errno != wasierrno.Success {
			return errno
		}
		return f.PathRemoveDirectory(ctx, paramPath(r, 1))
	case wasip1.OpPathRename:
		if errno := fd.CheckRight(entry, driver.RightPathRenameSource); errno != wasierrno.Success {
			return errno
		}
		newFD := paramU32(r, 2)
		newEntry, errno := d.FDs.Get(newFD)
		if errno != wasierrno.Success {
			return errno
		}
		if errno := fd.CheckRight(newEntry, driver.RightPathRenameTarget); errno != wasierrno.Success {
			return errno
		}
		return f.PathRename(ctx, paramPath(r, 1), newEntry.File, paramPath(r, 3))
	case wasip1.OpPathUnlinkFile:
		if errno := fd.CheckRight(entry, driver.RightPathUnlinkFile); errno != wasierrno.Success {
			return errno
		}
		return f.PathUnlinkFile(ctx, paramPath(r, 1))
	default:
		return wasierrno.NoHandlerFound
	}
}

// readdirInto writes as many dirents as fit into buf, starting from
// cookie, using a fixed 16-byte header {cookie u64, filetype u8, pad[3],
// name_len u32} per entry, immediately followed by the name bytes. This
// wire shape is local to this runtime (not the raw WASI dirent_t layout)
// since the shared-region protocol already owns its own encoding.
func readdirInto(ctx context.Context, f driver.File, buf []byte, cookie uint64) (int, wasierrno.Errno) {
	stream, errno := f.Readdir(ctx, cookie)
	if errno != wasierrno.Success {
		return 0, errno
	}
	defer stream.Close(ctx)

	off := 0
	for {
		entry, ok, errno := stream.Next(ctx)
		if errno != wasierrno.Success {
			return off, errno
		}
		if !ok {
			break
		}
		need := 16 + len(entry.Name)
		if off+need > len(buf) {
			break
		}
		putLE64(buf[off:], entry.Cookie)
		buf[off+8] = uint8(entry.Type)
		putLE32(buf[off+12:], uint32(len(entry.Name)))
		copy(buf[off+16:], entry.Name)
		off += need
	}
	return off, wasierrno.Success
}
