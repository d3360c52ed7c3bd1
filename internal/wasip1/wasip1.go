// Package wasip1 is the WASI preview-1 method registry: the dense,
// versioned method_id space, paired with each method's wire signature.
// internal/dispatch looks methods up here by id; internal/guest looks
// them up by name to build a call.
//
// Grounded on the function-name constants and per-function wasm.ValueType
// signatures of imports/wasi_snapshot_preview1/*.go (functionFdRead,
// functionPathOpen, etc. and their ParamTypes/ParamNames), translated from
// wasm value types into this module's wire.Field/wire.Kind vocabulary.
package wasip1

import "github.com/wasicore/runtime/internal/wire"

// Op is a method_id: a dense index into the Table.
type Op uint32

// The full preview-1 surface this host implements, numbered densely
// starting at zero. Numbering is part of the wire contract: never
// renumber an existing Op.
const (
	OpArgsGet Op = iota
	OpArgsSizesGet
	OpEnvironGet
	OpEnvironSizesGet
	OpClockResGet
	OpClockTimeGet
	OpFdAdvise
	OpFdAllocate
	OpFdClose
	OpFdDatasync
	OpFdFdstatGet
	OpFdFdstatSetFlags
	OpFdFilestatGet
	OpFdFilestatSetSize
	OpFdFilestatSetTimes
	OpFdPread
	OpFdPrestatGet
	OpFdPrestatDirName
	OpFdPwrite
	OpFdRead
	OpFdReaddir
	OpFdRenumber
	OpFdSeek
	OpFdSync
	OpFdTell
	OpFdWrite
	OpPathCreateDirectory
	OpPathFilestatGet
	OpPathFilestatSetTimes
	OpPathLink
	OpPathOpen
	OpPathReadlink
	OpPathRemoveDirectory
	OpPathRename
	OpPathSymlink
	OpPathUnlinkFile
	OpPollOneoff
	OpProcExit
	OpProcRaise
	OpSchedYield
	OpRandomGet
	OpSockAccept
	OpThreadSpawn

	opCount
)

// Signature describes one method's wire shape: its ordered
// parameters and its fixed-size result slot. Every non-scalar parameter
// (buffers, path strings, iovec lists) is represented as KindBlob, a
// {offset,length} pair into the call's binary-in/out area.
type Signature struct {
	Name    string
	Params  []wire.Field
	Results []wire.Field
}

func f(name string, kind wire.Kind) wire.Field { return wire.Field{Name: name, Kind: kind} }

// u32r and u64r are the single scalar result fields used by methods that
// return one value. The errno every call carries travels in the region
// header (`errno` field), so Signature.Results lists only additional
// fixed-size return values beyond that.
var u32r = f("result", wire.KindU32)
var u64r = f("result", wire.KindU64)

// Table maps every Op to its Signature, indexed densely by Op. An
// unknown id returns no_handler_found without reading further bytes —
// callers must bounds-check against len(Table) first.
var Table = [opCount]Signature{
	OpArgsGet:      {Name: "args_get", Params: []wire.Field{f("argv_blob", wire.KindBlob)}},
	OpArgsSizesGet: {Name: "args_sizes_get", Results: []wire.Field{f("argc", wire.KindU32), f("argv_len", wire.KindU32)}},
	OpEnvironGet:   {Name: "environ_get", Params: []wire.Field{f("environ_blob", wire.KindBlob)}},
	OpEnvironSizesGet: {Name: "environ_sizes_get", Results: []wire.Field{
		f("environc", wire.KindU32), f("environv_len", wire.KindU32),
	}},
	OpClockResGet:  {Name: "clock_res_get", Params: []wire.Field{f("clock_id", wire.KindU32)}, Results: []wire.Field{u64r}},
	OpClockTimeGet: {Name: "clock_time_get", Params: []wire.Field{f("clock_id", wire.KindU32), f("precision", wire.KindU64)}, Results: []wire.Field{u64r}},

	OpFdAdvise:   {Name: "fd_advise", Params: []wire.Field{f("fd", wire.KindU32), f("offset", wire.KindU64), f("len", wire.KindU64), f("advice", wire.KindU8)}},
	OpFdAllocate: {Name: "fd_allocate", Params: []wire.Field{f("fd", wire.KindU32), f("offset", wire.KindU64), f("len", wire.KindU64)}},
	OpFdClose:    {Name: "fd_close", Params: []wire.Field{f("fd", wire.KindU32)}},
	OpFdDatasync: {Name: "fd_datasync", Params: []wire.Field{f("fd", wire.KindU32)}},
	OpFdFdstatGet: {Name: "fd_fdstat_get", Params: []wire.Field{f("fd", wire.KindU32)}, Results: []wire.Field{
		f("fs_filetype", wire.KindU8), f("fs_flags", wire.KindU16), f("rights_base", wire.KindU64), f("rights_inheriting", wire.KindU64),
	}},
	OpFdFdstatSetFlags: {Name: "fd_fdstat_set_flags", Params: []wire.Field{f("fd", wire.KindU32), f("flags", wire.KindU16)}},
	OpFdFilestatGet: {Name: "fd_filestat_get", Params: []wire.Field{f("fd", wire.KindU32)}, Results: []wire.Field{
		f("filetype", wire.KindU8), f("size", wire.KindU64), f("mtim", wire.KindU64), f("ctim", wire.KindU64),
	}},
	OpFdFilestatSetSize:  {Name: "fd_filestat_set_size", Params: []wire.Field{f("fd", wire.KindU32), f("size", wire.KindU64)}},
	OpFdFilestatSetTimes: {Name: "fd_filestat_set_times", Params: []wire.Field{f("fd", wire.KindU32), f("atim", wire.KindU64), f("mtim", wire.KindU64), f("flags", wire.KindU16)}},
	OpFdPread:            {Name: "fd_pread", Params: []wire.Field{f("fd", wire.KindU32), f("iovs", wire.KindBlob), f("offset", wire.KindU64)}, Results: []wire.Field{u32r}},
	OpFdPrestatGet:       {Name: "fd_prestat_get", Params: []wire.Field{f("fd", wire.KindU32)}, Results: []wire.Field{f("pr_name_len", wire.KindU32)}},
	OpFdPrestatDirName:   {Name: "fd_prestat_dir_name", Params: []wire.Field{f("fd", wire.KindU32), f("path_blob", wire.KindBlob)}},
	OpFdPwrite:           {Name: "fd_pwrite", Params: []wire.Field{f("fd", wire.KindU32), f("iovs", wire.KindBlob), f("offset", wire.KindU64)}, Results: []wire.Field{u32r}},
	OpFdRead:             {Name: "fd_read", Params: []wire.Field{f("fd", wire.KindU32), f("iovs", wire.KindBlob)}, Results: []wire.Field{u32r}},
	OpFdReaddir:          {Name: "fd_readdir", Params: []wire.Field{f("fd", wire.KindU32), f("buf", wire.KindBlob), f("cookie", wire.KindU64)}, Results: []wire.Field{u32r}},
	OpFdRenumber:         {Name: "fd_renumber", Params: []wire.Field{f("fd", wire.KindU32), f("to", wire.KindU32)}},
	OpFdSeek:             {Name: "fd_seek", Params: []wire.Field{f("fd", wire.KindU32), f("offset", wire.KindS64), f("whence", wire.KindU8)}, Results: []wire.Field{u64r}},
	OpFdSync:             {Name: "fd_sync", Params: []wire.Field{f("fd", wire.KindU32)}},
	OpFdTell:             {Name: "fd_tell", Params: []wire.Field{f("fd", wire.KindU32)}, Results: []wire.Field{u64r}},
	OpFdWrite:            {Name: "fd_write", Params: []wire.Field{f("fd", wire.KindU32), f("iovs", wire.KindBlob)}, Results: []wire.Field{u32r}},

	OpPathCreateDirectory:  {Name: "path_create_directory", Params: []wire.Field{f("fd", wire.KindU32), f("path_blob", wire.KindBlob)}},
	OpPathFilestatGet:      {Name: "path_filestat_get", Params: []wire.Field{f("fd", wire.KindU32), f("flags", wire.KindU32), f("path_blob", wire.KindBlob)}, Results: []wire.Field{f("filetype", wire.KindU8), f("size", wire.KindU64), f("mtim", wire.KindU64), f("ctim", wire.KindU64)}},
	OpPathFilestatSetTimes: {Name: "path_filestat_set_times", Params: []wire.Field{f("fd", wire.KindU32), f("flags", wire.KindU32), f("path_blob", wire.KindBlob), f("atim", wire.KindU64), f("mtim", wire.KindU64), f("fst_flags", wire.KindU16)}},
	OpPathLink:             {Name: "path_link", Params: []wire.Field{f("old_fd", wire.KindU32), f("old_flags", wire.KindU32), f("old_path_blob", wire.KindBlob), f("new_fd", wire.KindU32), f("new_path_blob", wire.KindBlob)}},
	OpPathOpen: {Name: "path_open", Params: []wire.Field{
		f("fd", wire.KindU32), f("dirflags", wire.KindU32), f("path_blob", wire.KindBlob),
		f("oflags", wire.KindU16), f("rights_base", wire.KindU64), f("rights_inheriting", wire.KindU64), f("fdflags", wire.KindU16),
	}, Results: []wire.Field{f("opened_fd", wire.KindU32)}},
	OpPathReadlink:        {Name: "path_readlink", Params: []wire.Field{f("fd", wire.KindU32), f("path_blob", wire.KindBlob), f("buf", wire.KindBlob)}, Results: []wire.Field{u32r}},
	OpPathRemoveDirectory: {Name: "path_remove_directory", Params: []wire.Field{f("fd", wire.KindU32), f("path_blob", wire.KindBlob)}},
	OpPathRename:          {Name: "path_rename", Params: []wire.Field{f("fd", wire.KindU32), f("old_path_blob", wire.KindBlob), f("new_fd", wire.KindU32), f("new_path_blob", wire.KindBlob)}},
	OpPathSymlink:         {Name: "path_symlink", Params: []wire.Field{f("old_path_blob", wire.KindBlob), f("fd", wire.KindU32), f("new_path_blob", wire.KindBlob)}},
	OpPathUnlinkFile:      {Name: "path_unlink_file", Params: []wire.Field{f("fd", wire.KindU32), f("path_blob", wire.KindBlob)}},

	OpPollOneoff: {Name: "poll_oneoff", Params: []wire.Field{f("subscriptions", wire.KindBlob)}, Results: []wire.Field{f("events_blob", wire.KindBlob), f("nevents", wire.KindU32)}},

	OpProcExit:  {Name: "proc_exit", Params: []wire.Field{f("rval", wire.KindU32)}},
	OpProcRaise: {Name: "proc_raise", Params: []wire.Field{f("sig", wire.KindU8)}},

	OpSchedYield: {Name: "sched_yield"},
	OpRandomGet:  {Name: "random_get", Params: []wire.Field{f("buf", wire.KindBlob)}},
	OpSockAccept: {Name: "sock_accept", Params: []wire.Field{f("fd", wire.KindU32), f("flags", wire.KindU16)}, Results: []wire.Field{u32r}},

	OpThreadSpawn: {Name: "thread-spawn", Params: []wire.Field{f("start_arg", wire.KindU32)}, Results: []wire.Field{f("tid", wire.KindS32)}},
}

var byName map[string]Op

func init() {
	byName = make(map[string]Op, len(Table))
	for id, sig := range Table {
		byName[sig.Name] = Op(id)
	}
}

// Lookup returns the Op for a method name, and whether it was found.
func Lookup(name string) (Op, bool) {
	op, ok := byName[name]
	return op, ok
}

// Valid reports whether id names a known method (unknown ids
// must fail fast, without reading further bytes).
func Valid(id uint32) bool { return id < uint32(opCount) }

// LayoutFor computes op's region layout with empty binary areas. Param
// and result field offsets depend only on each Signature's field list,
// never on the binary area sizes, so a receiver reconstructing a region
// from raw bytes it did not allocate itself (the service side of a
// shared-region call) can recover the same field offsets the sender
// used without knowing how large the sender made its binary-in/out
// areas.
func LayoutFor(op Op) wire.Layout {
	sig := Table[op]
	return wire.ComputeLayout(sig.Params, sig.Results, 0, 0)
}
