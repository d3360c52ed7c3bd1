package descriptor

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// fdSlot stands in for the shape of data this allocator actually backs
// in this repo: internal/fd.Entry's handle->open-file record. Kept
// local (rather than importing internal/fd) to avoid a cycle, since
// internal/fd imports this package.
type fdSlot struct {
	preopenPath string
	rightsBase  uint64
}

func TestTable_ChunkGrowth(t *testing.T) {
	tests := []struct {
		name         string
		operation    func(*Table[uint32, *fdSlot])
		expectedSize int
	}{
		{
			name:         "no fds open",
			operation:    func(table *Table[uint32, *fdSlot]) {},
			expectedSize: 0,
		},
		{
			name: "one preopen",
			operation: func(table *Table[uint32, *fdSlot]) {
				table.Insert(&fdSlot{preopenPath: "/workspace"})
			},
			expectedSize: 1,
		},
		{
			name: "32 fds stay within the first chunk",
			operation: func(table *Table[uint32, *fdSlot]) {
				for i := 0; i < 32; i++ {
					table.Insert(&fdSlot{rightsBase: uint64(i)})
				}
			},
			expectedSize: 1,
		},
		{
			name: "257 fds span five chunks",
			operation: func(table *Table[uint32, *fdSlot]) {
				for i := 0; i < 257; i++ {
					table.Insert(&fdSlot{rightsBase: uint64(i)})
				}
			},
			expectedSize: 5,
		},
		{
			name: "fd_renumber target at handle 63 stays in chunk 0",
			operation: func(table *Table[uint32, *fdSlot]) {
				table.InsertAt(&fdSlot{preopenPath: "/data"}, 63)
			},
			expectedSize: 1,
		},
		{
			name: "fd_renumber target at handle 64 grows a second chunk",
			operation: func(table *Table[uint32, *fdSlot]) {
				table.InsertAt(&fdSlot{preopenPath: "/data"}, 64)
			},
			expectedSize: 2,
		},
		{
			name: "preopen installed far past the stdio reservation",
			operation: func(table *Table[uint32, *fdSlot]) {
				table.InsertAt(&fdSlot{preopenPath: "/mnt/far"}, 257)
			},
			expectedSize: 5,
		},
		{
			name: "mount points installed up through handle 319",
			operation: func(table *Table[uint32, *fdSlot]) {
				for i := uint32(3); i < 320; i++ {
					table.InsertAt(&fdSlot{preopenPath: "/mnt"}, i)
				}
			},
			expectedSize: 5,
		},
	}
	for _, tt := range tests {
		tc := tt

		t.Run(tc.name, func(t *testing.T) {
			table := new(Table[uint32, *fdSlot])
			tc.operation(table)
			require.Equal(t, tc.expectedSize, len(table.masks))
			require.Equal(t, tc.expectedSize*64, len(table.items))
		})
	}
}

func TestTable_InsertLookupDelete(t *testing.T) {
	var table Table[uint32, *fdSlot]

	stdout := &fdSlot{preopenPath: "", rightsBase: 0x1}
	workspace := &fdSlot{preopenPath: "/workspace", rightsBase: 0xFF}

	h1 := table.Insert(stdout)
	h2 := table.Insert(workspace)
	require.NotEqual(t, h1, h2)

	v, ok := table.Lookup(h1)
	require.True(t, ok)
	require.Same(t, stdout, v)

	table.Delete(h1)
	_, ok = table.Lookup(h1)
	require.False(t, ok)

	// A closed fd's handle is the next one allocate() hands back out.
	extension := &fdSlot{preopenPath: "/ext", rightsBase: 0xF}
	h3 := table.Insert(extension)
	require.Equal(t, h1, h3)

	require.Equal(t, 2, table.Len())
}

func TestTable_Range(t *testing.T) {
	var table Table[uint32, *fdSlot]
	table.InsertAt(&fdSlot{preopenPath: ""}, 0)          // stdin
	table.InsertAt(&fdSlot{preopenPath: ""}, 1)          // stdout
	table.InsertAt(&fdSlot{preopenPath: "/workspace"}, 3) // first mount

	seen := map[uint32]string{}
	table.Range(func(h uint32, s *fdSlot) bool {
		seen[h] = s.preopenPath
		return true
	})
	require.Equal(t, map[uint32]string{0: "", 1: "", 3: "/workspace"}, seen)
}
