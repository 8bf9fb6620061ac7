package main

import (
	"fmt"
	"sync"

	"github.com/robotalks/xgrid.go/pkg/xgrid"
)

// maxPending bounds the bytes kept per topic while waiting for the rest
// of a frame.
const maxPending = 4096

// Monitor reassembles frames from the byte chunks published on each link
// topic.
type Monitor struct {
	// Frame is called with each decoded frame.
	Frame func(topic string, pkt *xgrid.Packet)
	// Junk is called with bytes skipped while looking for a frame.
	Junk func(topic string, n int)

	lock    sync.Mutex
	pending map[string][]byte
}

// NewMonitor creates a Monitor.
func NewMonitor() *Monitor {
	return &Monitor{pending: make(map[string][]byte)}
}

// HandleMessage implements mqtt.Handler.
func (m *Monitor) HandleMessage(topic string, payload []byte) {
	m.lock.Lock()
	defer m.lock.Unlock()
	buf := append(m.pending[topic], payload...)
	for {
		frame, skip := xgrid.FindFrame(buf)
		if skip > 0 && m.Junk != nil {
			m.Junk(topic, skip)
		}
		buf = buf[skip:]
		if frame == nil {
			break
		}
		var pkt xgrid.Packet
		if err := xgrid.DecodeFrame(frame, &pkt); err == nil && m.Frame != nil {
			pkt.RxLink = xgrid.NoLink
			m.Frame(topic, &pkt)
		}
		buf = buf[len(frame):]
	}
	if len(buf) > maxPending {
		if m.Junk != nil {
			m.Junk(topic, len(buf))
		}
		buf = nil
	}
	m.pending[topic] = append([]byte(nil), buf...)
}

// Describe summarizes the payload of network packets.
func Describe(pkt *xgrid.Packet) string {
	switch pkt.Type {
	case xgrid.TypePingRequest:
		return "ping"
	case xgrid.TypePingReply:
		if r, err := xgrid.DecodePingReply(pkt.Payload); err == nil {
			return fmt.Sprintf("pong build=%d crc=%04x", r.Build, r.CRC)
		}
	case xgrid.TypeMaintenance:
		if m, err := xgrid.DecodeMaintenance(pkt.Payload); err == nil {
			return describeMaintenance(m)
		}
	case xgrid.TypeFirmwareBlock:
		if len(pkt.Payload) >= 2 {
			return fmt.Sprintf("block %d len=%d", int(pkt.Payload[0])|int(pkt.Payload[1])<<8, len(pkt.Payload)-2)
		}
	case xgrid.TypeFlushDedup:
		return "flush"
	case xgrid.TypeDebug:
		return fmt.Sprintf("debug %q", pkt.Payload)
	default:
		return fmt.Sprintf("% x", pkt.Payload)
	}
	return "malformed"
}

func describeMaintenance(m xgrid.Maintenance) string {
	var s string
	switch m.Cmd {
	case xgrid.CmdReset:
		s = "reset"
	case xgrid.CmdStartUpdate:
		s = fmt.Sprintf("start-update build=%d crc=%04x", m.Build, m.CRC)
	case xgrid.CmdFinishUpdate:
		s = "finish-update"
	case xgrid.CmdAbortUpdate:
		s = "abort-update"
	default:
		s = fmt.Sprintf("maintenance %02x", byte(m.Cmd))
	}
	if !m.Authentic() {
		s += fmt.Sprintf(" bad-magic=%08x", m.Magic)
	}
	return s
}
