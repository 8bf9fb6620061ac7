package xgrid

import (
	"sync"

	"github.com/golang/glog"
)

// Sender sends locally originated packets.
type Sender interface {
	// SendTo stamps source and seq and queues the packet to the links
	// in mask.
	SendTo(pkt *Packet, mask LinkMask) error
}

// PacketHandler receives packets the engine doesn't handle itself.
// The packet and its payload are only valid during the call. s must be
// used for sending from inside the handler.
type PacketHandler interface {
	HandlePacket(s Sender, pkt *Packet)
}

// HandlePacketFunc is func type of PacketHandler.
type HandlePacketFunc func(Sender, *Packet)

// HandlePacket implements PacketHandler.
func (f HandlePacketFunc) HandlePacket(s Sender, pkt *Packet) {
	f(s, pkt)
}

// Engine relays packets between links and runs firmware updates.
type Engine struct {
	cfg     Config
	id      uint16
	seq     uint8
	build   uint32
	crc     uint16
	flash   FlashImage
	handler PacketHandler
	tap     func(*Packet)

	pool    *Pool
	dedup   *DedupCache
	links   []*link
	allMask LinkMask

	update updater
	stats  Stats

	rxPacket Packet
	scratch  []byte
	discard  []byte
	txOrder  []SlotID

	// lock serializes Tick with senders and link producers touching
	// slots and link state.
	lock sync.Mutex
}

// New creates an Engine. The running image CRC is computed from flash.
func New(cfg Config, flash FlashImage) *Engine {
	cfg.normalize()
	e := &Engine{
		cfg:     cfg,
		id:      cfg.ID,
		build:   cfg.Build,
		flash:   flash,
		pool:    NewPool(cfg.SmallSlots, cfg.SmallSlotSize, cfg.LargeSlots, cfg.LargeSlotSize()),
		dedup:   NewDedupCache(cfg.DedupSize),
		scratch: make([]byte, BlockSize(cfg.PageSize)),
		discard: make([]byte, 64),
		txOrder: make([]SlotID, 0, cfg.SmallSlots+cfg.LargeSlots),
	}
	if flash != nil {
		e.crc = flash.CRC16(RegionRunning)
	}
	e.update.init(&cfg)
	return e
}

// AddLink attaches a neighbor link.
func (e *Engine) AddLink(s ByteLink) (LinkID, error) {
	e.lock.Lock()
	defer e.lock.Unlock()
	if len(e.links) >= MaxLinks {
		return NoLink, ErrTooManyLinks
	}
	l := &link{
		id:     LinkID(len(e.links)),
		stream: s,
		rxSlot: NoSlot,
		txSlot: NoSlot,
	}
	e.links = append(e.links, l)
	e.allMask |= MaskOf(l.id)
	return l.id, nil
}

// SetHandler sets the sink for packets of application types.
func (e *Engine) SetHandler(h PacketHandler) {
	e.lock.Lock()
	e.handler = h
	e.lock.Unlock()
}

// SetTap sets a function observing every accepted received packet
// before it's relayed. The packet is only valid during the call.
func (e *Engine) SetTap(fn func(*Packet)) {
	e.lock.Lock()
	e.tap = fn
	e.lock.Unlock()
}

// ID returns the node id.
func (e *Engine) ID() uint16 {
	return e.id
}

// Firmware returns the build number and CRC of the running image.
func (e *Engine) Firmware() (build uint32, crc uint16) {
	e.lock.Lock()
	defer e.lock.Unlock()
	return e.build, e.crc
}

// State returns the update state.
func (e *Engine) State() UpdateState {
	e.lock.Lock()
	defer e.lock.Unlock()
	return e.update.state
}

// Stats returns a snapshot of the counters.
func (e *Engine) Stats() Stats {
	e.lock.Lock()
	defer e.lock.Unlock()
	s := e.stats
	s.SlotsInUse = e.pool.InUse()
	s.State = e.update.state
	return s
}

// Neighbors returns what ping replies told about each link.
func (e *Engine) Neighbors() []Neighbor {
	e.lock.Lock()
	defer e.lock.Unlock()
	res := make([]Neighbor, len(e.links))
	for n, l := range e.links {
		res[n] = Neighbor{Link: l.id, Build: l.build, CRC: l.crc}
	}
	return res
}

// Links returns the mask of all attached links.
func (e *Engine) Links() LinkMask {
	e.lock.Lock()
	defer e.lock.Unlock()
	return e.allMask
}

// Send sends a packet to all links.
func (e *Engine) Send(pkt *Packet) error {
	return e.SendTo(pkt, AllLinks)
}

// SendTo implements Sender.
func (e *Engine) SendTo(pkt *Packet, mask LinkMask) error {
	e.lock.Lock()
	defer e.lock.Unlock()
	return e.send(pkt, mask)
}

// Tick runs one scheduling step: receive on all links, transmit pending
// slots, then advance the update state machine. It never blocks.
func (e *Engine) Tick() {
	e.lock.Lock()
	defer e.lock.Unlock()
	for _, l := range e.links {
		e.serviceRx(l)
	}
	e.serviceTx()
	e.advanceUpdate()
}

func (e *Engine) send(pkt *Packet, mask LinkMask) error {
	pkt.SourceID = e.id
	pkt.Seq = e.seq
	pkt.RxLink = NoLink
	e.seq++
	if pkt.Type != TypeFirmwareBlock && pkt.Type != TypeFlushDedup {
		e.dedup.CheckAndRecord(pkt.ID())
	}
	return e.submit(pkt, mask)
}

// sendNew sends a radius-1 packet of the engine's own protocol.
func (e *Engine) sendNew(typ PacketType, payload []byte, mask LinkMask) error {
	pkt := Packet{Type: typ, Radius: 1, Payload: payload}
	return e.send(&pkt, mask)
}

func (e *Engine) submit(pkt *Packet, mask LinkMask) error {
	if e.update.state == StateFwRx && !pkt.Type.IsNetwork() {
		e.stats.Filtered++
		return ErrUpdateInProgress
	}
	mask = e.outgoingMask(pkt.Type, mask)
	if mask == 0 {
		return nil
	}
	n := pkt.FrameSize()
	if n > e.pool.MaxCapacity() {
		return ErrFrameSize
	}
	id, ok := e.pool.Allocate(n, e.pool.ClassFor(n), SlotTx)
	if !ok {
		e.stats.SendFailures++
		return ErrPoolExhausted
	}
	sl := e.pool.slot(id)
	if _, err := pkt.EncodeTo(sl.buf); err != nil {
		e.pool.Release(id)
		return err
	}
	sl.size, sl.mask = n, mask
	e.stats.Sent++
	return nil
}

// outgoingMask restricts mask to attached links, and keeps ordinary
// traffic away from nodes being updated.
func (e *Engine) outgoingMask(typ PacketType, mask LinkMask) LinkMask {
	mask &= e.allMask
	if e.update.state == StateFwPush && !typ.IsNetwork() {
		mask &^= e.update.targets
	}
	return mask
}

// relay turns the received slot into a transmit slot if the packet still
// has hops to go. It returns false if the slot isn't reused.
func (e *Engine) relay(pkt *Packet, id SlotID) bool {
	if pkt.Radius <= 1 {
		return false
	}
	mask := e.outgoingMask(pkt.Type, e.allMask.Without(pkt.RxLink))
	if mask == 0 {
		return false
	}
	sl := e.pool.slot(id)
	if pkt.Flags&FlagTrace != 0 && sl.size < len(sl.buf) && sl.size-PrefixSize < 0xffff {
		sl.buf[sl.size] = byte(pkt.RxLink)
		sl.size++
		putFrameSizeField(sl.buf, sl.size-PrefixSize)
	}
	sl.buf[offRadius]--
	e.pool.promote(id, mask)
	e.stats.Relayed++
	return true
}

// serviceTx drains transmit slots. A link drains one slot at a time and a
// slot advances by the smallest write space among its links.
// serviceTx drains Tx slots oldest first. A link is granted to a
// waiting slot only once every older slot wanting it has been served.
func (e *Engine) serviceTx() {
	var blocked LinkMask
	e.txOrder = e.pool.TxOrder(e.txOrder[:0])
	for _, id := range e.txOrder {
		sl := e.pool.slot(id)
		if !e.holds(id, sl.mask) && (sl.mask&blocked != 0 || !e.acquire(id, sl.mask)) {
			blocked |= sl.mask
			continue
		}
		free := sl.size - sl.ptr
		for _, l := range e.links {
			if sl.mask.Has(l.id) {
				if f := l.stream.WriteFree(); f < free {
					free = f
				}
			}
		}
		if free > 0 {
			chunk := sl.buf[sl.ptr : sl.ptr+free]
			for _, l := range e.links {
				if sl.mask.Has(l.id) {
					if n := l.stream.Write(chunk); n < len(chunk) {
						glog.Warningf("link %d: short write %d of %d", l.id, n, len(chunk))
					}
				}
			}
			sl.ptr += free
		}
		if sl.ptr >= sl.size {
			for _, l := range e.links {
				if sl.mask.Has(l.id) {
					l.txSlot = NoSlot
					sl.mask = sl.mask.Without(l.id)
				}
			}
			e.pool.Release(id)
			e.stats.TxFrames++
		}
	}
}

// holds tells whether all links of mask are already assigned to the slot.
func (e *Engine) holds(id SlotID, mask LinkMask) bool {
	for _, l := range e.links {
		if mask.Has(l.id) && l.txSlot != id {
			return false
		}
	}
	return true
}

// acquire assigns all links of mask to the slot, or none of them if any
// is busy with another slot.
func (e *Engine) acquire(id SlotID, mask LinkMask) bool {
	for _, l := range e.links {
		if mask.Has(l.id) && l.txSlot != NoSlot && l.txSlot != id {
			return false
		}
	}
	for _, l := range e.links {
		if mask.Has(l.id) {
			l.txSlot = id
		}
	}
	return true
}

func (e *Engine) dispatch(pkt *Packet) {
	switch pkt.Type {
	case TypePingRequest:
		if pkt.IsLocal() {
			return
		}
		reply := PingReply{Build: e.build, CRC: e.crc}
		if err := e.sendNew(TypePingReply, reply.EncodeTo(e.scratch), MaskOf(pkt.RxLink)); err != nil {
			glog.V(2).Infof("ping reply to link %d: %v", pkt.RxLink, err)
		}
	case TypePingReply:
		reply, err := DecodePingReply(pkt.Payload)
		if err != nil || pkt.IsLocal() {
			return
		}
		l := e.links[pkt.RxLink]
		l.build, l.crc = reply.Build, reply.CRC
	case TypeMaintenance:
		e.handleMaintenance(pkt)
	case TypeFirmwareBlock:
		e.handleFirmwareBlock(pkt)
	case TypeFlushDedup:
		e.dedup.Flush()
	default:
		if e.handler != nil {
			e.handler.HandlePacket(tickSender{e}, pkt)
		} else {
			e.stats.Unhandled++
		}
	}
}

// tickSender sends from inside Tick where the lock is already held.
type tickSender struct {
	e *Engine
}

func (s tickSender) SendTo(pkt *Packet, mask LinkMask) error {
	return s.e.send(pkt, mask)
}
