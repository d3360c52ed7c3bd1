// Package wire implements the shared-region wire format: a fixed
// little-endian header, a packed parameter block, a fixed-size result
// block, and optional trailing variable-length binary areas, all inside
// one shared byte buffer allocated once per in-flight call and never
// grown.
//
// Modeled on two shapes from the retrieval pack: the explicit,
// offset-documented struct layouts of hanwen/go-fuse's raw/types.go
// (every field's byte offset is part of the contract, so this package
// computes and freezes offsets the same way rather than relying on Go
// struct layout), and wazero's api.Memory little-endian accessors
// (ReadUint32Le etc.) for the value codec.
package wire

import (
	"encoding/binary"
	"sync/atomic"
	"unsafe"
)

// Fixed header offsets. These never change: they are read by
// every guest stub and service dispatcher before anything else.
const (
	OffsetLock     = 0
	OffsetMethodID = 4
	OffsetErrno    = 8
	// 2 bytes of padding at offset 10 align the params block to 4 bytes.
	OffsetParams = 12

	LockPending   = 0
	LockCompleted = 1
)

var le = binary.LittleEndian

// Kind identifies the wire representation of one parameter or result
// field.
type Kind uint8

const (
	KindU8 Kind = iota
	KindU16
	KindU32
	KindU64
	KindS8
	KindS16
	KindS32
	KindS64
	// KindBlob is a {offset, length} pair (both u32) addressing a span of
	// the trailing binary area. Used for ptr<T> parameters and iovec/
	// ciovec lists flattened into one contiguous scratch buffer, and
	// reverse-transferred back into guest memory after the call completes.
	KindBlob
)

// Size returns the field's size in bytes, not counting any trailing
// binary-area payload a KindBlob field references.
func (k Kind) Size() uint32 {
	switch k {
	case KindU8, KindS8:
		return 1
	case KindU16, KindS16:
		return 2
	case KindU32, KindS32:
		return 4
	case KindU64, KindS64:
		return 8
	case KindBlob:
		return 8 // offset u32 + length u32
	default:
		return 0
	}
}

func (k Kind) align() uint32 {
	if a := k.Size(); a <= 4 {
		return a
	}
	return 8
}

// Field describes one named parameter or result slot.
type Field struct {
	Name string
	Kind Kind
}

// Layout is the computed, frozen byte layout of one call's shared region.
// Every offset is relative to the start of the region.
type Layout struct {
	ParamsOffset   uint32
	ParamFields    []Field
	paramOffsets   []uint32
	ResultOffset   uint32
	ResultFields   []Field
	resultOffsets  []uint32
	BinInOffset    uint32
	BinInSize      uint32
	BinOutOffset   uint32
	BinOutSize     uint32
	TotalSize      uint32
}

// align4 rounds n up to the next multiple of 4; the params/result blocks
// and binary areas are always 4-byte aligned.
func align4(n uint32) uint32 { return (n + 3) &^ 3 }

func alignTo(n, a uint32) uint32 {
	if a == 0 {
		return n
	}
	return (n + a - 1) &^ (a - 1)
}

func packFields(start uint32, fields []Field) (offsets []uint32, end uint32) {
	offsets = make([]uint32, len(fields))
	off := start
	for i, f := range fields {
		off = alignTo(off, f.Kind.align())
		offsets[i] = off
		off += f.Kind.Size()
	}
	return offsets, off
}

// ComputeLayout lays out one call's header, params, result, and binary
// areas. binInSize/binOutSize are the caller-supplied sizes of
// the variable-length payload areas (e.g. the flattened iovec scratch
// buffer); zero means no such area.
func ComputeLayout(params, results []Field, binInSize, binOutSize uint32) Layout {
	paramOffsets, afterParams := packFields(OffsetParams, params)
	resultStart := align4(afterParams)
	resultOffsets, afterResult := packFields(resultStart, results)

	binInOffset := align4(afterResult)
	binOutOffset := align4(binInOffset + binInSize)
	total := align4(binOutOffset + binOutSize)

	return Layout{
		ParamsOffset:  OffsetParams,
		ParamFields:   params,
		paramOffsets:  paramOffsets,
		ResultOffset:  resultStart,
		ResultFields:  results,
		resultOffsets: resultOffsets,
		BinInOffset:   binInOffset,
		BinInSize:     binInSize,
		BinOutOffset:  binOutOffset,
		BinOutSize:    binOutSize,
		TotalSize:     total,
	}
}

// ParamOffset returns the byte offset of the i'th parameter field.
func (l Layout) ParamOffset(i int) uint32 { return l.paramOffsets[i] }

// ResultFieldOffset returns the byte offset of the i'th result field.
func (l Layout) ResultFieldOffset(i int) uint32 { return l.resultOffsets[i] }

// Region is one allocated shared-region buffer. Total size is
// computed by ComputeLayout before allocation and never grows afterwards.
type Region struct {
	Buf    []byte
	Layout Layout
}

// NewRegion allocates a zeroed region sized for layout.
func NewRegion(layout Layout) *Region {
	return &Region{Buf: make([]byte, layout.TotalSize), Layout: layout}
}

func (r *Region) lockPtr() *uint32 {
	return (*uint32)(unsafe.Pointer(&r.Buf[OffsetLock]))
}

// LockAddr exposes the lock word's address for use with a Waiter, which
// operates on a bare *uint32 rather than a Region so it can be tested
// without one.
func (r *Region) LockAddr() *uint32 { return r.lockPtr() }

// LoadLock atomically reads the lock word.
func (r *Region) LoadLock() uint32 { return atomic.LoadUint32(r.lockPtr()) }

// StoreLock atomically writes the lock word.
func (r *Region) StoreLock(v uint32) { atomic.StoreUint32(r.lockPtr(), v) }

// CompareAndSwapLock atomically swaps the lock word if it still equals old.
func (r *Region) CompareAndSwapLock(old, new uint32) bool {
	return atomic.CompareAndSwapUint32(r.lockPtr(), old, new)
}

// MethodID/SetMethodID access the method_id header field.
func (r *Region) MethodID() uint32      { return le.Uint32(r.Buf[OffsetMethodID:]) }
func (r *Region) SetMethodID(id uint32) { le.PutUint32(r.Buf[OffsetMethodID:], id) }

// Errno/SetErrno access the errno header field. The field is 2 bytes
// wide; values are masked/truncated accordingly.
func (r *Region) Errno() uint16      { return le.Uint16(r.Buf[OffsetErrno:]) }
func (r *Region) SetErrno(e uint16)  { le.PutUint16(r.Buf[OffsetErrno:], e) }

// --- scalar param/result accessors ---

func (r *Region) PutU8(off uint32, v uint8)   { r.Buf[off] = v }
func (r *Region) PutU16(off uint32, v uint16) { le.PutUint16(r.Buf[off:], v) }
func (r *Region) PutU32(off uint32, v uint32) { le.PutUint32(r.Buf[off:], v) }
func (r *Region) PutU64(off uint32, v uint64) { le.PutUint64(r.Buf[off:], v) }

func (r *Region) U8(off uint32) uint8   { return r.Buf[off] }
func (r *Region) U16(off uint32) uint16 { return le.Uint16(r.Buf[off:]) }
func (r *Region) U32(off uint32) uint32 { return le.Uint32(r.Buf[off:]) }
func (r *Region) U64(off uint32) uint64 { return le.Uint64(r.Buf[off:]) }

// PutBlob writes a {offset,length} pair at off describing a span inside
// the binary area, and copies data into that span. The caller must have
// sized the region's binary area to fit.
func (r *Region) PutBlob(off uint32, areaOffset uint32, data []byte) {
	le.PutUint32(r.Buf[off:], areaOffset)
	le.PutUint32(r.Buf[off+4:], uint32(len(data)))
	copy(r.Buf[areaOffset:], data)
}

// Blob reads the {offset,length} pair at off and returns the referenced
// bytes as a sub-slice of the region (no copy).
func (r *Region) Blob(off uint32) []byte {
	areaOffset := le.Uint32(r.Buf[off:])
	length := le.Uint32(r.Buf[off+4:])
	return r.Buf[areaOffset : areaOffset+length]
}

// BinIn/BinOut return the trailing binary areas as sub-slices.
func (r *Region) BinIn() []byte {
	return r.Buf[r.Layout.BinInOffset : r.Layout.BinInOffset+r.Layout.BinInSize]
}

func (r *Region) BinOut() []byte {
	return r.Buf[r.Layout.BinOutOffset : r.Layout.BinOutOffset+r.Layout.BinOutSize]
}
