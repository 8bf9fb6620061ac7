package main

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/robotalks/xgrid.go/pkg/xgrid"
)

func TestMonitorReassembles(t *testing.T) {
	var got []string
	var junk int
	m := NewMonitor()
	m.Frame = func(topic string, pkt *xgrid.Packet) {
		got = append(got, topic+" "+Describe(pkt))
	}
	m.Junk = func(_ string, n int) { junk += n }

	ping := (&xgrid.Packet{SourceID: 1, Type: xgrid.TypePingRequest, Radius: 1}).Bytes()
	reply := (&xgrid.Packet{
		SourceID: 2,
		Type:     xgrid.TypePingReply,
		Radius:   1,
		Payload:  xgrid.PingReply{Build: 4, CRC: 0xbeef}.EncodeTo(make([]byte, xgrid.PingReplySize)),
	}).Bytes()

	m.HandleMessage("ab/a", append([]byte{0, 1}, ping[:4]...))
	require.Empty(t, got)
	// another topic doesn't interfere
	m.HandleMessage("ab/b", reply)
	m.HandleMessage("ab/a", append(ping[4:], reply[:2]...))
	m.HandleMessage("ab/a", reply[2:])
	require.Equal(t, []string{
		"ab/b pong build=4 crc=beef",
		"ab/a ping",
		"ab/a pong build=4 crc=beef",
	}, got)
	require.Equal(t, 2, junk)
}

func TestDescribe(t *testing.T) {
	cases := []struct {
		pkt  xgrid.Packet
		desc string
	}{
		{xgrid.Packet{Type: xgrid.TypeMaintenance, Payload: xgrid.StartUpdate(0x1234, 9).Bytes()}, "start-update build=9 crc=1234"},
		{xgrid.Packet{Type: xgrid.TypeMaintenance, Payload: xgrid.Maintenance{Cmd: xgrid.CmdReset, Magic: xgrid.UpdateMagic}.Bytes()}, "reset bad-magic=0badf00d"},
		{xgrid.Packet{Type: xgrid.TypeMaintenance, Payload: []byte{1}}, "malformed"},
		{xgrid.Packet{Type: xgrid.TypeFirmwareBlock, Payload: []byte{3, 0, 1, 2}}, "block 3 len=2"},
		{xgrid.Packet{Type: 0x10, Payload: []byte{1, 2}}, "01 02"},
	}
	for _, c := range cases {
		require.Equal(t, c.desc, Describe(&c.pkt))
	}
}
