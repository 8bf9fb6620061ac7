package xgrid

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDedupCheckAndRecord(t *testing.T) {
	c := NewDedupCache(4)
	id := PacketID{Source: 1, Type: 2, Seq: 3}
	require.True(t, c.CheckAndRecord(id))
	require.False(t, c.CheckAndRecord(id))
	require.True(t, c.IsKnown(id))
	require.Equal(t, 1, c.Len())

	// the triple is the identity
	require.True(t, c.CheckAndRecord(PacketID{Source: 1, Type: 2, Seq: 4}))
	require.True(t, c.CheckAndRecord(PacketID{Source: 1, Type: 3, Seq: 3}))
	require.True(t, c.CheckAndRecord(PacketID{Source: 2, Type: 2, Seq: 3}))
}

func TestDedupForgetsOldest(t *testing.T) {
	const size = 16
	c := NewDedupCache(size)
	first := PacketID{Source: 0xffff, Seq: 1}
	c.Record(first)
	for i := 0; i < size-1; i++ {
		c.Record(PacketID{Source: uint16(i)})
		require.True(t, c.IsKnown(first), "after %d others", i+1)
	}
	c.Record(PacketID{Source: size})
	require.False(t, c.IsKnown(first))
	require.Equal(t, size, c.Len())
}

func TestDedupFlush(t *testing.T) {
	c := NewDedupCache(0)
	require.Equal(t, DefaultDedupSize, len(c.ids))
	id := PacketID{Source: 1}
	c.Record(id)
	c.Flush()
	require.False(t, c.IsKnown(id))
	require.Zero(t, c.Len())
	require.True(t, c.CheckAndRecord(id))
}
