package sim

import (
	"github.com/robotalks/xgrid.go/pkg/xgrid"
)

// Listener observes a Mesh.
type Listener interface {
	// PacketReceived is called for every packet a node accepts, pkt is
	// only valid during the call.
	PacketReceived(n *Node, pkt *xgrid.Packet)
	// StateChanged is called when the update state of a node changes.
	StateChanged(n *Node, from, to xgrid.UpdateState)
}

// Caster implements Listener to cast notifications to subscribers.
type Caster struct {
	listeners []Listener
}

// Subscribe adds a listener.
func (c *Caster) Subscribe(ln Listener) {
	c.listeners = append(c.listeners, ln)
}

// PacketReceived implements Listener.
func (c *Caster) PacketReceived(n *Node, pkt *xgrid.Packet) {
	for _, ln := range c.listeners {
		ln.PacketReceived(n, pkt)
	}
}

// StateChanged implements Listener.
func (c *Caster) StateChanged(n *Node, from, to xgrid.UpdateState) {
	for _, ln := range c.listeners {
		ln.StateChanged(n, from, to)
	}
}

// Recorder is a Listener keeping copies of received packets.
type Recorder struct {
	Received []Received
}

// Received is a packet received by a node.
type Received struct {
	Node   string
	Packet xgrid.Packet
}

// PacketReceived implements Listener.
func (r *Recorder) PacketReceived(n *Node, pkt *xgrid.Packet) {
	p := *pkt
	p.Payload = append([]byte(nil), pkt.Payload...)
	r.Received = append(r.Received, Received{Node: n.Name, Packet: p})
}

// StateChanged implements Listener.
func (r *Recorder) StateChanged(*Node, xgrid.UpdateState, xgrid.UpdateState) {}

// Of returns the packets received by a node with a type.
func (r *Recorder) Of(node string, typ xgrid.PacketType) (res []xgrid.Packet) {
	for _, rcv := range r.Received {
		if rcv.Node == node && rcv.Packet.Type == typ {
			res = append(res, rcv.Packet)
		}
	}
	return
}
