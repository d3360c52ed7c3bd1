package ttyfs

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/wasicore/runtime/wasierrno"
)

func TestInputEchoesToOutput(t *testing.T) {
	out := NewOutput()
	in := NewInput(true, out)

	in.Feed([]byte("ab"))
	require.Equal(t, []byte("a"), <-out.Chan())
	require.Equal(t, []byte("b"), <-out.Chan())
}

func TestInputBackspaceErasesLastChar(t *testing.T) {
	out := NewOutput()
	in := NewInput(true, out)

	in.Feed([]byte("ab"))
	<-out.Chan()
	<-out.Chan()
	in.Feed([]byte{ctrlBackspace})
	require.Equal(t, []byte("\b \b"), <-out.Chan())

	in.Feed([]byte("c\n"))
	<-out.Chan() // echo of 'c'
	<-out.Chan() // echo of '\n'

	line, ok := in.Readline(context.Background())
	require.True(t, ok)
	require.Equal(t, "ac\n", string(line))
}

func TestInputInterrupt(t *testing.T) {
	in := NewInput(false, nil)
	in.Feed([]byte{ctrlInterrupt})
	select {
	case <-in.Interrupted():
	default:
		t.Fatal("expected interrupt signal")
	}
}

func TestInputEOFThenReadsReturnZeroRepeatedly(t *testing.T) {
	in := NewInput(false, nil)
	in.Feed([]byte{ctrlEOF})

	buf := make([]byte, 8)
	for i := 0; i < 3; i++ {
		n, errno := in.Read(context.Background(), buf)
		require.Equal(t, wasierrno.Success, errno)
		require.Equal(t, 0, n)
	}
}

func TestInputReadlineBlocksUntilNewline(t *testing.T) {
	in := NewInput(false, nil)
	done := make(chan []byte, 1)
	go func() {
		line, ok := in.Readline(context.Background())
		require.True(t, ok)
		done <- line
	}()

	time.Sleep(10 * time.Millisecond)
	in.Feed([]byte("hi\n"))

	select {
	case line := <-done:
		require.Equal(t, "hi\n", string(line))
	case <-time.After(time.Second):
		t.Fatal("readline never unblocked")
	}
}

func TestInputHistoryCapped(t *testing.T) {
	in := NewInput(false, nil)
	for i := 0; i < historyCapacity+10; i++ {
		in.Feed([]byte("x\n"))
	}
	require.Len(t, in.History(), historyCapacity)
}

func TestOutputWriteAlwaysSucceeds(t *testing.T) {
	out := NewOutput()
	n, errno := out.Write(context.Background(), []byte("hello"))
	require.Equal(t, wasierrno.Success, errno)
	require.Equal(t, 5, n)
	require.Equal(t, []byte("hello"), <-out.Chan())
}

func TestOutputDropsOldestWhenFull(t *testing.T) {
	out := NewOutput()
	for i := 0; i < outputCapacity+5; i++ {
		_, errno := out.Write(context.Background(), []byte{byte(i)})
		require.Equal(t, wasierrno.Success, errno)
	}
	// Channel never blocks the writer regardless of drain rate.
	require.LessOrEqual(t, len(out.Chan()), outputCapacity)
	// The five oldest chunks (bytes 0-4) were dropped to make room.
	require.Equal(t, []byte{5}, <-out.Chan())
}

func TestPromptWritesThenReadsLine(t *testing.T) {
	out := NewOutput()
	in := NewInput(false, nil)

	done := make(chan []byte, 1)
	go func() {
		line, ok := Prompt(context.Background(), out, in, "> ")
		require.True(t, ok)
		done <- line
	}()

	require.Equal(t, []byte("> "), <-out.Chan())
	in.Feed([]byte("reply\n"))

	select {
	case line := <-done:
		require.Equal(t, "reply\n", string(line))
	case <-time.After(time.Second):
		t.Fatal("prompt never completed")
	}
}
