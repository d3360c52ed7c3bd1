package wire

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestComputeLayout_ScalarRoundTrip(t *testing.T) {
	params := []Field{
		{Name: "fd", Kind: KindU32},
		{Name: "offset", Kind: KindU64},
		{Name: "whence", Kind: KindU8},
	}
	results := []Field{
		{Name: "new_offset", Kind: KindU64},
	}
	layout := ComputeLayout(params, results, 0, 0)
	r := NewRegion(layout)

	r.PutU32(layout.ParamOffset(0), 0xdeadbeef)
	r.PutU64(layout.ParamOffset(1), 0x0102030405060708)
	r.PutU8(layout.ParamOffset(2), 2)
	r.PutU64(layout.ResultFieldOffset(0), 42)

	require.Equal(t, uint32(0xdeadbeef), r.U32(layout.ParamOffset(0)))
	require.Equal(t, uint64(0x0102030405060708), r.U64(layout.ParamOffset(1)))
	require.Equal(t, uint8(2), r.U8(layout.ParamOffset(2)))
	require.Equal(t, uint64(42), r.U64(layout.ResultFieldOffset(0)))
}

// TestComputeLayout_NeverGrows verifies the invariant that total
// size is computed before allocation and never grows.
func TestComputeLayout_NeverGrows(t *testing.T) {
	layout := ComputeLayout(
		[]Field{{Name: "buf", Kind: KindBlob}},
		[]Field{{Name: "n", Kind: KindU32}},
		64, 16,
	)
	r := NewRegion(layout)
	before := len(r.Buf)
	payload := make([]byte, 64)
	for i := range payload {
		payload[i] = byte(i)
	}
	r.PutBlob(layout.ParamOffset(0), layout.BinInOffset, payload)
	require.Equal(t, before, len(r.Buf))
	require.Equal(t, payload, r.Blob(layout.ParamOffset(0)))
}

func TestComputeLayout_AlignedFields(t *testing.T) {
	// A u8 followed by a u64 must leave the u64 8-byte aligned relative to
	// the region, not merely to the params block.
	layout := ComputeLayout(
		[]Field{{Name: "a", Kind: KindU8}, {Name: "b", Kind: KindU64}},
		nil, 0, 0,
	)
	require.Equal(t, uint32(0), layout.ParamOffset(0)-layout.ParamsOffset)
	require.True(t, layout.ParamOffset(1)%8 == 0, "u64 param must be 8-byte aligned")
}

// TestLockLiveness is the lock-liveness property: if the responder
// writes lock=1 and notifies, the waiter observes completion or returns
// timed_out; it never deadlocks.
func TestLockLiveness(t *testing.T) {
	layout := ComputeLayout(nil, nil, 0, 0)
	r := NewRegion(layout)
	waiter := NewWaiter()

	done := make(chan struct{})
	go func() {
		time.Sleep(5 * time.Millisecond)
		r.StoreLock(LockCompleted)
		waiter.Wake(r.lockPtr(), 1)
		close(done)
	}()

	woken := waiter.Wait(r.lockPtr(), LockPending, time.Second)
	require.True(t, woken)
	<-done
	require.Equal(t, uint32(LockCompleted), r.LoadLock())
}

func TestLockLiveness_Timeout(t *testing.T) {
	layout := ComputeLayout(nil, nil, 0, 0)
	r := NewRegion(layout)
	waiter := NewWaiter()

	woken := waiter.Wait(r.lockPtr(), LockPending, 10*time.Millisecond)
	require.False(t, woken)
}
