package sh

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/robotalks/xgrid.go/pkg/sim"
	"github.com/robotalks/xgrid.go/pkg/xgrid"
)

func newTestShell(t *testing.T) (*Shell, *sim.Recorder) {
	cfg := xgrid.DefaultConfig()
	cfg.PageSize = 64
	cfg.Timing = FastTiming
	s := &Shell{Mesh: sim.NewMesh(cfg), ImageSize: 4 * 64}
	rec := &sim.Recorder{}
	s.Mesh.Events.Subscribe(rec)
	require.NoError(t, s.AddNode("a", "0x10", "2"))
	require.NoError(t, s.AddNode("b", "17", "2"))
	require.NoError(t, s.Mesh.Connect("a", "b"))
	return s, rec
}

func TestParseType(t *testing.T) {
	cases := []struct {
		str string
		typ xgrid.PacketType
	}{
		{"ping", xgrid.TypePingRequest},
		{"flush", xgrid.TypeFlushDedup},
		{"0x10", 0x10},
		{"32", 32},
	}
	for _, c := range cases {
		typ, err := ParseType(c.str)
		require.NoError(t, err)
		require.Equal(t, c.typ, typ)
	}
	_, err := ParseType("0x100")
	require.Error(t, err)
}

func TestAddNodeErrors(t *testing.T) {
	s, _ := newTestShell(t)
	require.Error(t, s.AddNode("c", "0x10000", "1"))
	require.Error(t, s.AddNode("c", "1", "x"))
	require.Error(t, s.AddNode("a", "1", "1"))
}

func TestSend(t *testing.T) {
	s, rec := newTestShell(t)
	require.NoError(t, s.Send("a", "0x10", "2", "trace", "01", "02"))
	s.Mesh.Run(3)
	pkts := rec.Of("b", 0x10)
	require.Len(t, pkts, 1)
	require.Equal(t, uint16(0x10), pkts[0].SourceID)
	require.Equal(t, xgrid.FlagTrace, pkts[0].Flags)
	require.Equal(t, []byte{1, 2}, pkts[0].Payload)

	require.Error(t, s.Send("c", "ping", "1"))
	require.Error(t, s.Send("a", "ping"))
	require.Error(t, s.Send("a", "ping", "x"))
	require.Error(t, s.Send("a", "ping", "1", "zz"))
}

func TestTables(t *testing.T) {
	s, _ := newTestShell(t)
	nodes := s.NodesTable()
	require.Len(t, nodes, 3)
	require.Equal(t, []string{"a", "0010", "2"}, nodes[1][:3])
	require.Equal(t, "b", nodes[1][5])

	infos := s.NodeInfos()
	require.Equal(t, []string{"a"}, infos[1].Neighbors)

	neighbors, err := s.NeighborsTable("a")
	require.NoError(t, err)
	require.Equal(t, []string{"0", "b", "0", "0000"}, neighbors[1])

	stats, err := s.StatsTable("b")
	require.NoError(t, err)
	require.Equal(t, []string{"rx_frames", "0"}, stats[1])

	_, err = s.StatsTable("x")
	require.Error(t, err)
}
