package stream

import (
	"context"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLinkPumps(t *testing.T) {
	local, remote := net.Pipe()
	l := New("pipe", local)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()

	l.Write([]byte("hello"))
	buf := make([]byte, 5)
	_, err := io.ReadFull(remote, buf)
	require.NoError(t, err)
	require.Equal(t, "hello", string(buf))

	_, err = remote.Write([]byte("mesh"))
	require.NoError(t, err)
	for l.Available() < 4 {
		time.Sleep(time.Millisecond)
	}
	require.Equal(t, 4, l.Read(buf))
	require.Equal(t, "mesh", string(buf[:4]))

	cancel()
	require.Equal(t, context.Canceled, <-done)
}

func TestLinkSingleUse(t *testing.T) {
	local, remote := net.Pipe()
	l := New("pipe", local)
	done := make(chan error, 1)
	go func() { done <- l.Run(context.Background()) }()
	remote.Close()
	require.Error(t, <-done)
}
